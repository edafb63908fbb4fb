package ipc_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"casework/internal/daemon"
	"casework/internal/ipc"
	"casework/internal/logging"
	"casework/internal/testsupport"
)

func TestIPCServerClient(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	c := testsupport.MustAddCase(t, store, cfg, "c1")
	testsupport.WriteFile(t, filepath.Join(c.RemotePath, "notes.txt"), 16)
	if err := os.MkdirAll(c.LocalPath, 0o755); err != nil {
		t.Fatal(err)
	}

	autoDir := filepath.Join(cfg.Paths.ExtensionsDir, "tracer")
	if err := os.MkdirAll(autoDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(autoDir, "manifest.yaml"), []byte("version: \"1\"\ntype: custom\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	testsupport.WriteScript(t, filepath.Join(autoDir, "run"), "exit 0\n")

	logger := logging.NewNop()
	d, err := daemon.New(cfg, store, logger)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(d.Stop)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := d.Start(ctx); err != nil {
		t.Fatalf("daemon Start: %v", err)
	}

	srv, err := ipc.NewServer(ctx, cfg.SocketPath(), d, logger)
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC server test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(srv.Close)

	client, err := ipc.Dial(cfg.SocketPath())
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	t.Cleanup(func() {
		client.Close()
	})

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if !status.Running || status.PID != os.Getpid() {
		t.Fatalf("unexpected status %+v", status)
	}

	autos, err := client.Automations()
	if err != nil {
		t.Fatalf("Automations RPC failed: %v", err)
	}
	if len(autos.Automations) != 1 || autos.Automations[0].Name != "tracer" || !autos.Automations[0].Enabled {
		t.Fatalf("unexpected automations %+v", autos.Automations)
	}

	set, err := client.SetAutomation("tracer", false)
	if err != nil {
		t.Fatalf("SetAutomation failed: %v", err)
	}
	if set.Enabled {
		t.Fatalf("expected disabled, got %+v", set)
	}
	if _, err := client.SetAutomation("missing", true); err == nil {
		t.Fatal("expected unknown automation error")
	}

	if _, err := client.Enqueue(ipc.EnqueueRequest{Kind: "teleport"}); err == nil {
		t.Fatal("expected unknown kind to be rejected")
	}
	if _, err := client.Enqueue(ipc.EnqueueRequest{Kind: "automation", CaseID: "c1", Automation: "tracer", SourcePath: "/x"}); err == nil {
		t.Fatal("expected disabled automation to be rejected")
	}

	refresh, err := client.Enqueue(ipc.EnqueueRequest{Kind: "refresh", CaseID: "c1"})
	if err != nil {
		t.Fatalf("Enqueue refresh: %v", err)
	}
	if len(refresh.TaskIDs) != 1 {
		t.Fatalf("expected one id, got %v", refresh.TaskIDs)
	}
	poll, err := client.PollNow()
	if err != nil || poll.TaskID == "" {
		t.Fatalf("PollNow: %+v %v", poll, err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		tasks, err := client.Tasks(10)
		if err != nil {
			t.Fatalf("Tasks RPC failed: %v", err)
		}
		done := 0
		for _, task := range tasks.Tasks {
			if task.State == "succeeded" {
				done++
			}
		}
		if done == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("tasks did not finish: %+v", tasks.Tasks)
		}
		time.Sleep(20 * time.Millisecond)
	}

	logPath := cfg.LogPath()
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(logPath, []byte("first\nsecond task=a\nthird\n"), 0o644); err != nil {
		t.Fatalf("write log file: %v", err)
	}

	logResp, err := client.LogTail(ipc.LogTailRequest{Offset: -1, Limit: 2})
	if err != nil {
		t.Fatalf("LogTail initial failed: %v", err)
	}
	if len(logResp.Lines) != 2 || logResp.Lines[0] != "second task=a" || logResp.Lines[1] != "third" {
		t.Fatalf("unexpected log tail response: %#v", logResp.Lines)
	}
	matched, err := client.LogTail(ipc.LogTailRequest{Offset: 0, Match: "task=a"})
	if err != nil || len(matched.Lines) != 1 {
		t.Fatalf("unexpected matched tail %#v err=%v", matched, err)
	}

	followDone := make(chan struct{})
	go func(offset int64) {
		defer close(followDone)
		resp, err := client.LogTail(ipc.LogTailRequest{Offset: offset, Follow: true, WaitMillis: 2000})
		if err != nil {
			t.Errorf("LogTail follow error: %v", err)
			return
		}
		if len(resp.Lines) != 1 || resp.Lines[0] != "fourth" {
			t.Errorf("unexpected follow lines: %#v", resp.Lines)
		}
	}(logResp.Offset)

	time.Sleep(100 * time.Millisecond)
	if f, err := os.OpenFile(logPath, os.O_APPEND|os.O_WRONLY, 0o644); err == nil {
		_, _ = f.WriteString("fourth\n")
		_ = f.Close()
	} else {
		t.Fatalf("append log: %v", err)
	}

	select {
	case <-followDone:
	case <-time.After(10 * time.Second):
		t.Fatal("log tail follow timed out")
	}
}
