package automation_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"casework/internal/automation"
	"casework/internal/logging"
	"casework/internal/services"
	"casework/internal/store"
	"casework/internal/testsupport"
)

func writeAutomation(t *testing.T, root, name, manifestName, manifest, exeName, body string) string {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if manifestName != "" {
		if err := os.WriteFile(filepath.Join(dir, manifestName), []byte(manifest), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if exeName != "" {
		testsupport.WriteScript(t, filepath.Join(dir, exeName), body)
	}
	return dir
}

const yamlManifest = `version: "1.2"
author: Support Tools
description: Unpacks vendor traces
type: unpack
downloadFirst: true
extensions: [TRC, .dump]
options:
  - name: outdir
    type: path
    default: /tmp/out/../out
  - name: mode
    type: string
    default: fast
`

const jsonManifest = `{
  // comments are allowed
  "version": "0.1",
  "type": "custom",
  "extensions": ["log"],
  "options": [
    {"name": "pattern", "type": "string", "default": "ERROR"},
  ],
}`

func TestDiscoverAdmitsOnlyValidEntries(t *testing.T) {
	root := t.TempDir()
	writeAutomation(t, root, "tracer", "manifest.yaml", yamlManifest, "tracer", "exit 0\n")
	writeAutomation(t, root, "grepper", "manifest.json", jsonManifest, "run", "exit 0\n")
	writeAutomation(t, root, "no-manifest", "", "", "run", "exit 0\n")
	writeAutomation(t, root, "no-exe", "manifest.yaml", "version: \"1\"\n", "", "")
	writeAutomation(t, root, "bad-yaml", "manifest.yaml", "version: [unterminated\n", "run", "exit 0\n")
	writeAutomation(t, root, "bad-option", "manifest.yaml", "options:\n  - name: x\n    type: number\n", "run", "exit 0\n")
	writeAutomation(t, root, "dup-option", "manifest.yaml", "options:\n  - {name: x, type: path}\n  - {name: x, type: string}\n", "run", "exit 0\n")
	writeAutomation(t, root, "bad-type", "manifest.yaml", "type: magic\n", "run", "exit 0\n")
	writeAutomation(t, root, "unknown-key", "manifest.yaml", "colour: blue\n", "run", "exit 0\n")
	writeAutomation(t, root, "pinned", "manifest.yaml", "hash: deadbeef\n", "run", "exit 0\n")
	writeAutomation(t, root, "escaping", "manifest.yaml", "executable: ../tracer/tracer\n", "", "")
	notExec := writeAutomation(t, root, "not-exec", "manifest.yaml", "version: \"1\"\n", "", "")
	if err := os.WriteFile(filepath.Join(notExec, "run"), []byte("#!/bin/sh\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	descs, err := automation.Discover(root, logging.NewNop())
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	names := make([]string, 0, len(descs))
	for _, d := range descs {
		names = append(names, d.Name)
	}
	if strings.Join(names, ",") != "grepper,tracer" {
		t.Fatalf("unexpected admitted set %v", names)
	}

	tracer := descs[1]
	if tracer.Kind != automation.KindUnpack || !tracer.DownloadFirst || tracer.Version != "1.2" {
		t.Fatalf("unexpected tracer descriptor %+v", tracer)
	}
	if strings.Join(tracer.Extensions, ",") != ".trc,.dump" {
		t.Fatalf("extensions not normalized: %v", tracer.Extensions)
	}
	if len(tracer.ExecutableHash) != 64 {
		t.Fatalf("expected blake3 hex digest, got %q", tracer.ExecutableHash)
	}
	if len(tracer.Options) != 2 {
		t.Fatalf("expected 2 options, got %d", len(tracer.Options))
	}
	path, ok := tracer.Options[0].(automation.PathOption)
	if !ok || path.Value != "/tmp/out" {
		t.Fatalf("expected cleaned PathOption, got %#v", tracer.Options[0])
	}
	if _, ok := tracer.Options[1].(automation.StringOption); !ok {
		t.Fatalf("expected StringOption, got %#v", tracer.Options[1])
	}

	grepper := descs[0]
	if grepper.Kind != automation.KindCustom || filepath.Base(grepper.ExecutablePath) != "run" {
		t.Fatalf("unexpected grepper descriptor %+v", grepper)
	}
}

func TestDiscoverMissingDirectory(t *testing.T) {
	descs, err := automation.Discover(filepath.Join(t.TempDir(), "missing"), nil)
	if err != nil || len(descs) != 0 {
		t.Fatalf("expected empty result, got %v err=%v", descs, err)
	}
}

func TestDiscoverHonoursMatchingPin(t *testing.T) {
	root := t.TempDir()
	dir := writeAutomation(t, root, "pinned", "manifest.yaml", "version: \"1\"\n", "run", "exit 0\n")
	desc, err := automation.LoadDescriptor(dir)
	if err != nil {
		t.Fatal(err)
	}
	pinned := "hash: " + strings.ToUpper(desc.ExecutableHash) + "\n"
	if err := os.WriteFile(filepath.Join(dir, "manifest.yaml"), []byte(pinned), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := automation.LoadDescriptor(dir); err != nil {
		t.Fatalf("matching pin rejected: %v", err)
	}
}

func TestRegistryPersistsEnabledFlag(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	writeAutomation(t, cfg.Paths.ExtensionsDir, "grepper", "manifest.json", jsonManifest, "run", "exit 0\n")
	ctx := context.Background()

	reg := automation.NewFromConfig(cfg, st, nil, logging.NewNop())
	if err := reg.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if d, ok := reg.Get("grepper"); !ok || !d.Enabled {
		t.Fatalf("expected enabled grepper, got %+v ok=%v", d, ok)
	}
	if err := reg.SetEnabled(ctx, "grepper", false); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}
	if err := reg.SetEnabled(ctx, "missing", false); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	reloaded := automation.NewFromConfig(cfg, st, nil, logging.NewNop())
	if err := reloaded.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if d, _ := reloaded.Get("grepper"); d.Enabled {
		t.Fatal("disabled flag lost across reload")
	}
	if got := reloaded.ForExtension("log"); len(got) != 0 {
		t.Fatalf("disabled automation offered for extension: %v", got)
	}
	if err := reloaded.SetEnabled(ctx, "grepper", true); err != nil {
		t.Fatal(err)
	}
	if got := reloaded.ForExtension(".LOG"); len(got) != 1 {
		t.Fatalf("expected grepper for .log, got %v", got)
	}
}

func TestValidateDetectsSwappedExecutable(t *testing.T) {
	root := t.TempDir()
	writeAutomation(t, root, "grepper", "manifest.json", jsonManifest, "run", "exit 0\n")
	reg := automation.NewRegistry(root, nil, nil, nil)
	if err := reg.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	desc, _ := reg.Get("grepper")
	if err := reg.Validate(desc); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	testsupport.WriteScript(t, desc.ExecutablePath, "echo swapped\n")
	if err := reg.Validate(desc); !errors.Is(err, services.ErrIntegrity) {
		t.Fatalf("expected integrity error, got %v", err)
	}
}

type recordingEnqueuer struct {
	tasks []string
}

func (r *recordingEnqueuer) EnqueuePrefetch(_ context.Context, caseID, name, src, dst string) (string, error) {
	r.tasks = append(r.tasks, "download:"+caseID+":"+filepath.Base(src)+"->"+filepath.Base(dst)+" for "+name)
	return "d1", nil
}

func (r *recordingEnqueuer) EnqueueAutomation(_ context.Context, caseID, name, _, _ string, _ map[string]string) (string, error) {
	r.tasks = append(r.tasks, "automation:"+caseID+":"+name)
	return "a1", nil
}

func TestDispatchEnqueuesDownloadFirst(t *testing.T) {
	root := t.TempDir()
	writeAutomation(t, root, "tracer", "manifest.yaml", yamlManifest, "tracer", "exit 0\n")
	reg := automation.NewRegistry(root, nil, nil, nil)
	if err := reg.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	ws := t.TempDir()
	req := automation.DispatchRequest{
		Name:       "tracer",
		CaseID:     "c1",
		TargetPath: "/mnt/cases/c1/core.trc",
		LocalPath:  filepath.Join(ws, "core.trc"),
	}

	q := &recordingEnqueuer{}
	ids, err := reg.Dispatch(context.Background(), q, req)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if strings.Join(ids, ",") != "d1,a1" {
		t.Fatalf("unexpected ids %v", ids)
	}
	if q.tasks[0] != "download:c1:core.trc->core.trc for tracer" || q.tasks[1] != "automation:c1:tracer" {
		t.Fatalf("unexpected enqueue order %v", q.tasks)
	}

	testsupport.WriteFile(t, req.LocalPath, 1)
	q = &recordingEnqueuer{}
	ids, err = reg.Dispatch(context.Background(), q, req)
	if err != nil || len(ids) != 1 || q.tasks[0] != "automation:c1:tracer" {
		t.Fatalf("expected only automation task, got ids=%v tasks=%v err=%v", ids, q.tasks, err)
	}

	req.Overrides = map[string]string{"nope": "x"}
	if _, err := reg.Dispatch(context.Background(), &recordingEnqueuer{}, req); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for unknown option, got %v", err)
	}
	if err := reg.SetEnabled(context.Background(), "tracer", false); err != nil {
		t.Fatal(err)
	}
	req.Overrides = nil
	if _, err := reg.Dispatch(context.Background(), &recordingEnqueuer{}, req); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected disabled automation to be refused, got %v", err)
	}
}

type transitions []string

func (tr *transitions) record(from, to store.TaskState) {
	*tr = append(*tr, string(from)+">"+string(to))
}

func TestExecuteCustomPassesInvocationBlob(t *testing.T) {
	root := t.TempDir()
	dir := writeAutomation(t, root, "grepper", "manifest.json", jsonManifest, "run",
		"[ \"$1\" = \"-i\" ] || exit 9\nprintf '%s' \"$2\" > \"$(dirname \"$0\")/invocation.json\"\n")
	reg := automation.NewRegistry(root, nil, nil, logging.NewNop())
	if err := reg.Load(context.Background()); err != nil {
		t.Fatal(err)
	}

	var tr transitions
	err := reg.Execute(context.Background(), automation.DispatchRequest{
		Name:       "grepper",
		TargetPath: "/remote/app.log",
		LocalPath:  "/local/app.log",
		Overrides:  map[string]string{"pattern": "FATAL"},
	}, automation.NewLifecycle(tr.record), nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if strings.Join(tr, " ") != "pending>running running>succeeded" {
		t.Fatalf("unexpected transitions %v", tr)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "invocation.json"))
	if err != nil {
		t.Fatal(err)
	}
	var blob struct {
		TargetPath      string `json:"target_path"`
		LocalTargetPath string `json:"local_target_path"`
		Options         map[string]struct {
			Type string `json:"type"`
			Val  string `json:"val"`
		} `json:"options"`
	}
	if err := json.Unmarshal(raw, &blob); err != nil {
		t.Fatalf("invocation not JSON: %v (%s)", err, raw)
	}
	if blob.TargetPath != "/remote/app.log" || blob.LocalTargetPath != "/local/app.log" {
		t.Fatalf("unexpected paths %+v", blob)
	}
	if opt := blob.Options["pattern"]; opt.Type != "string" || opt.Val != "FATAL" {
		t.Fatalf("unexpected option payload %+v", blob.Options)
	}
}

func TestExecuteFailureCapturesStderr(t *testing.T) {
	root := t.TempDir()
	writeAutomation(t, root, "grepper", "manifest.json", jsonManifest, "run", "echo 'trace parse error' >&2\nexit 3\n")
	reg := automation.NewRegistry(root, nil, nil, nil)
	if err := reg.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	var tr transitions
	err := reg.Execute(context.Background(), automation.DispatchRequest{Name: "grepper"}, automation.NewLifecycle(tr.record), nil)
	var toolErr *services.ToolError
	if !errors.As(err, &toolErr) {
		t.Fatalf("expected ToolError, got %v", err)
	}
	if toolErr.ExitCode != 3 || toolErr.Stderr != "trace parse error\n" {
		t.Fatalf("unexpected tool error %+v", toolErr)
	}
	if strings.Join(tr, " ") != "pending>running running>failed" {
		t.Fatalf("unexpected transitions %v", tr)
	}
}

func TestExecuteUnpackDownloadsAndChecksOutput(t *testing.T) {
	root := t.TempDir()
	ws := t.TempDir()
	local := filepath.Join(ws, "core.trc")
	outDir := filepath.Join(ws, "core")
	writeAutomation(t, root, "tracer", "manifest.yaml", yamlManifest, "tracer",
		"mkdir -p '"+outDir+"' && echo done > '"+outDir+"/result.txt'\n")
	reg := automation.NewRegistry(root, nil, nil, nil)
	if err := reg.Load(context.Background()); err != nil {
		t.Fatal(err)
	}

	fetched := false
	fetch := func(_ context.Context, src, dst string) error {
		fetched = true
		testsupport.WriteFile(t, dst, 10)
		return nil
	}
	var tr transitions
	err := reg.Execute(context.Background(), automation.DispatchRequest{Name: "tracer", TargetPath: "/remote/core.trc", LocalPath: local},
		automation.NewLifecycle(tr.record), fetch)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !fetched {
		t.Fatal("expected download-first fetch")
	}
	want := "pending>downloading downloading>running running>succeeded"
	if strings.Join(tr, " ") != want {
		t.Fatalf("transitions = %v, want %s", tr, want)
	}
}

func TestExecuteUnpackWithoutOutputFails(t *testing.T) {
	root := t.TempDir()
	ws := t.TempDir()
	local := filepath.Join(ws, "core.trc")
	testsupport.WriteFile(t, local, 1)
	writeAutomation(t, root, "tracer", "manifest.yaml", yamlManifest, "tracer", "exit 0\n")
	reg := automation.NewRegistry(root, nil, nil, nil)
	if err := reg.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	lc := automation.NewLifecycle(nil)
	err := reg.Execute(context.Background(), automation.DispatchRequest{Name: "tracer", LocalPath: local}, lc, nil)
	if !errors.Is(err, services.ErrToolFailure) {
		t.Fatalf("expected missing-output failure, got %v", err)
	}
	if lc.State() != store.TaskFailed {
		t.Fatalf("expected failed state, got %s", lc.State())
	}
}

func TestLifecycleRejectsSkippedStates(t *testing.T) {
	lc := automation.NewLifecycle(nil)
	if err := lc.Advance(store.TaskSucceeded); err == nil {
		t.Fatal("pending -> succeeded must be rejected")
	}
	if err := lc.Advance(store.TaskRunning); err != nil {
		t.Fatal(err)
	}
	if err := lc.Advance(store.TaskDownloading); err == nil {
		t.Fatal("running -> downloading must be rejected")
	}
	if err := lc.Advance(store.TaskFailed); err != nil {
		t.Fatal(err)
	}
	if err := lc.Advance(store.TaskRunning); err == nil {
		t.Fatal("failed is terminal")
	}
}

func TestKindTextRoundTrip(t *testing.T) {
	var k automation.Kind
	if err := k.UnmarshalText([]byte("UNPACK")); err != nil || k != automation.KindUnpack {
		t.Fatalf("UnmarshalText: %v %v", k, err)
	}
	if err := k.UnmarshalText([]byte("other")); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}
