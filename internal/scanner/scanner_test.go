package scanner_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"casework/internal/logging"
	"casework/internal/scanner"
	"casework/internal/store"
	"casework/internal/testsupport"
)

func buildTree(t *testing.T, root string) {
	t.Helper()
	testsupport.WriteFile(t, filepath.Join(root, "top.log"), 10)
	testsupport.WriteFile(t, filepath.Join(root, "README"), 5)
	testsupport.WriteFile(t, filepath.Join(root, "a", "a1.txt"), 10)
	testsupport.WriteFile(t, filepath.Join(root, "a", "b", "b1.TXT"), 10)
	testsupport.WriteFile(t, filepath.Join(root, "a", "b", "c", "deep.gz"), 10)
	testsupport.WriteFile(t, filepath.Join(root, "z", "z1.log"), 10)
}

func TestScanIsBreadthFirst(t *testing.T) {
	root := t.TempDir()
	buildTree(t, root)

	s := scanner.New(nil, logging.NewNop())
	records, err := s.Scan(context.Background(), scanner.Target{CaseID: "c1", Root: root, Location: store.LocationLocal})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(records) != 10 {
		t.Fatalf("expected 10 records, got %d: %+v", len(records), records)
	}
	maxSeen := 0
	for i, rec := range records {
		if rec.DepthIndex < maxSeen {
			t.Fatalf("record %d (%s) at depth %d after depth %d", i, rec.Path, rec.DepthIndex, maxSeen)
		}
		maxSeen = rec.DepthIndex
		if rec.CaseID != "c1" || rec.Location != store.LocationLocal {
			t.Fatalf("unexpected identity on %+v", rec)
		}
	}
	if maxSeen != 3 {
		t.Fatalf("expected deepest level 3, got %d", maxSeen)
	}

	byPath := make(map[string]store.FileRecord)
	for _, rec := range records {
		byPath[rec.Path] = rec
	}
	checks := map[string]string{
		"a":             store.TypeDir,
		"README":        "noext",
		"a/b/b1.TXT":    "txt",
		"a/b/c/deep.gz": "gz",
		"top.log":       "log",
	}
	for path, want := range checks {
		rec, ok := byPath[path]
		if !ok {
			t.Fatalf("missing record %s", path)
		}
		if rec.Type != want {
			t.Fatalf("%s type = %q, want %q", path, rec.Type, want)
		}
	}
	if byPath["a/b/c/deep.gz"].DepthIndex != 3 {
		t.Fatalf("unexpected depth for deep.gz: %d", byPath["a/b/c/deep.gz"].DepthIndex)
	}
	if byPath["a"].Size != 0 || byPath["top.log"].Size != 10 {
		t.Fatalf("unexpected sizes")
	}
}

func TestScanLevelsStreamsEachDepthOnce(t *testing.T) {
	root := t.TempDir()
	buildTree(t, root)

	var depths []int
	s := scanner.New(nil, nil)
	err := s.ScanLevels(context.Background(), scanner.Target{CaseID: "c1", Root: root, Location: store.LocationRemote}, func(depth int, records []store.FileRecord) error {
		depths = append(depths, depth)
		for _, rec := range records {
			if rec.DepthIndex != depth {
				t.Fatalf("record %s at depth %d delivered with level %d", rec.Path, rec.DepthIndex, depth)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ScanLevels: %v", err)
	}
	if len(depths) != 4 || depths[0] != 0 || depths[3] != 3 {
		t.Fatalf("unexpected level sequence %v", depths)
	}
}

func TestScanLevelsStopsOnCallbackError(t *testing.T) {
	root := t.TempDir()
	buildTree(t, root)
	stop := errors.New("stop")
	calls := 0
	err := scanner.New(nil, nil).ScanLevels(context.Background(), scanner.Target{Root: root, Location: store.LocationLocal}, func(int, []store.FileRecord) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) || calls != 1 {
		t.Fatalf("expected stop after first level, calls=%d err=%v", calls, err)
	}
}

func TestScanUnreadableRootYieldsNothing(t *testing.T) {
	s := scanner.New(nil, nil)
	records, err := s.Scan(context.Background(), scanner.Target{Root: filepath.Join(t.TempDir(), "missing"), Location: store.LocationRemote})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no records, got %d", len(records))
	}
}

func TestScanSkipsPermissionDeniedSubdirectory(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}
	root := t.TempDir()
	testsupport.WriteFile(t, filepath.Join(root, "open", "ok.log"), 1)
	testsupport.WriteFile(t, filepath.Join(root, "locked", "secret.log"), 1)
	locked := filepath.Join(root, "locked")
	if err := os.Chmod(locked, 0o000); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chmod(locked, 0o755) })

	records, err := scanner.New(nil, nil).Scan(context.Background(), scanner.Target{Root: root, Location: store.LocationLocal})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	paths := make(map[string]bool)
	for _, rec := range records {
		paths[rec.Path] = true
	}
	if !paths["locked"] || !paths["open/ok.log"] {
		t.Fatalf("expected locked dir record and readable sibling, got %v", paths)
	}
	if paths["locked/secret.log"] {
		t.Fatal("unreadable directory contents should be skipped")
	}
}

func TestScanCancelled(t *testing.T) {
	root := t.TempDir()
	buildTree(t, root)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := scanner.New(nil, nil).Scan(ctx, scanner.Target{Root: root}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestFavoritesFlaggedAndNewestWins(t *testing.T) {
	remote := t.TempDir()
	local := t.TempDir()
	testsupport.WriteFile(t, filepath.Join(remote, "sys", "messages.log"), 1)
	testsupport.WriteFile(t, filepath.Join(local, "messages.log"), 1)
	testsupport.WriteFile(t, filepath.Join(local, "other.log"), 1)

	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(filepath.Join(remote, "sys", "messages.log"), old, old); err != nil {
		t.Fatal(err)
	}

	s := scanner.New([]string{"messages.log"}, nil)
	idx := scanner.NewFavoriteIndex()
	for _, target := range []scanner.Target{
		{CaseID: "c1", Root: remote, Location: store.LocationRemote},
		{CaseID: "c1", Root: local, Location: store.LocationLocal},
	} {
		records, err := s.Scan(context.Background(), target)
		if err != nil {
			t.Fatal(err)
		}
		for _, rec := range records {
			if rec.Name == "other.log" && rec.Favorite {
				t.Fatal("non-favorite flagged")
			}
		}
		idx.Add(records...)
	}

	if idx.Len() != 1 {
		t.Fatalf("expected one favorite name, got %d", idx.Len())
	}
	fav, ok := idx.Lookup("messages.log")
	if !ok {
		t.Fatal("expected messages.log in index")
	}
	if fav.Location != store.LocationLocal || fav.Path != "messages.log" {
		t.Fatalf("expected newest (local) copy, got %+v", fav)
	}
}

func TestRootCount(t *testing.T) {
	root := t.TempDir()
	buildTree(t, root)
	n, err := scanner.RootCount(root)
	if err != nil {
		t.Fatal(err)
	}
	if n != 4 {
		t.Fatalf("RootCount = %d, want 4", n)
	}
	if n, err := scanner.RootCount(filepath.Join(root, "missing")); err != nil || n != 0 {
		t.Fatalf("missing root: n=%d err=%v", n, err)
	}
}

func TestFileType(t *testing.T) {
	cases := map[string]string{
		"a.LOG":          "log",
		"archive.tar.gz": "gz",
		"Makefile":       "noext",
		".hidden":        "hidden",
	}
	for name, want := range cases {
		if got := scanner.FileType(name); got != want {
			t.Errorf("FileType(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestRecordMatchesScanDepth(t *testing.T) {
	root := t.TempDir()
	buildTree(t, root)
	s := scanner.New([]string{"deep.gz"}, logging.NewNop())
	target := scanner.Target{CaseID: "c1", Root: root, Location: store.LocationRemote}

	rec, err := s.Record(target, filepath.Join(root, "a", "b", "c", "deep.gz"))
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if rec.Path != "a/b/c/deep.gz" || rec.DepthIndex != 3 || rec.Type != "gz" || !rec.Favorite {
		t.Fatalf("unexpected record %+v", rec)
	}
	if _, err := s.Record(target, filepath.Join(t.TempDir(), "elsewhere")); err == nil {
		t.Fatal("expected error for a path outside the root")
	}
}
