package daemon_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"casework/internal/config"
	"casework/internal/daemon"
	"casework/internal/events"
	"casework/internal/logging"
	"casework/internal/store"
	"casework/internal/testsupport"
	"casework/internal/workqueue"
)

func newDaemon(t *testing.T) (*daemon.Daemon, *store.Store, *config.Config) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	testsupport.MustAddCase(t, st, cfg, "c1")
	d, err := daemon.New(cfg, st, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(d.Stop)
	return d, st, cfg
}

func TestDaemonStartStop(t *testing.T) {
	d, _, _ := newDaemon(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !d.Status().Running {
		t.Fatal("expected daemon to report running")
	}
	if !d.Status().Work.Running {
		t.Fatal("expected work daemon to report running")
	}

	// Second start should fail
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	if d.Status().Running {
		t.Fatal("expected daemon to be stopped")
	}
	if err := d.Start(ctx); err != nil {
		t.Fatalf("restart after stop: %v", err)
	}
}

func TestSecondInstanceIsRejected(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	first, err := daemon.New(cfg, st, logging.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	second, err := daemon.New(cfg, st, logging.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(first.Stop)
	t.Cleanup(second.Stop)

	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if err := second.Start(context.Background()); err == nil {
		t.Fatal("expected lock contention to reject the second instance")
	}
}

func TestStartFailsInterruptedTasks(t *testing.T) {
	d, st, _ := newDaemon(t)
	ctx := context.Background()
	if err := st.RecordTask(ctx, store.TaskRecord{
		ID:         "stale",
		Kind:       "download",
		State:      store.TaskRunning,
		EnqueuedAt: time.Now().Add(-time.Hour),
	}); err != nil {
		t.Fatal(err)
	}

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	tasks, err := d.RecentTasks(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 1 || tasks[0].State != store.TaskFailed {
		t.Fatalf("expected interrupted task failed, got %+v", tasks)
	}
}

func TestEnqueueRunsDownload(t *testing.T) {
	d, _, cfg := newDaemon(t)
	ctx := context.Background()
	done := make(chan events.TaskCompleted, 4)
	d.Bus().SubscribeCompletion(func(c events.TaskCompleted) { done <- c })
	if err := d.Start(ctx); err != nil {
		t.Fatal(err)
	}

	remote := filepath.Join(cfg.CaseRemoteDir("c1"), "notes.txt")
	testsupport.WriteFile(t, remote, 512)

	ids, err := d.Enqueue(ctx, workqueue.Task{Kind: workqueue.KindDownload, CaseID: "c1", SourcePath: remote})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("expected one task id, got %v", ids)
	}

	select {
	case got := <-done:
		if got.TaskID != ids[0] || !got.Succeeded() {
			t.Fatalf("unexpected completion %+v", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("download never completed")
	}
	local := filepath.Join(cfg.CaseLocalDir("c1"), "notes.txt")
	if _, err := os.Stat(local); err != nil {
		t.Fatalf("expected local copy: %v", err)
	}
}

func TestEnqueueUnknownAutomation(t *testing.T) {
	d, _, _ := newDaemon(t)
	_, err := d.Enqueue(context.Background(), workqueue.Task{
		Kind:           workqueue.KindAutomation,
		CaseID:         "c1",
		AutomationName: "missing",
		SourcePath:     "/remote/c1/file.zip",
	})
	if err == nil {
		t.Fatal("expected unknown automation to be rejected")
	}
}
