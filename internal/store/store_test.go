package store_test

import (
	"context"
	"testing"
	"time"

	"casework/internal/store"
	"casework/internal/testsupport"
)

func TestOpenCreatesSchemaAndReopens(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	testsupport.MustAddCase(t, st, cfg, "c1")
	if err := st.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened := testsupport.MustOpenStore(t, cfg)
	got, err := reopened.GetCase(context.Background(), "c1")
	if err != nil {
		t.Fatalf("GetCase: %v", err)
	}
	if got == nil || got.RemotePath != cfg.CaseRemoteDir("c1") {
		t.Fatalf("unexpected case after reopen: %#v", got)
	}
}

func TestGetCaseMissingReturnsNil(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	got, err := st.GetCase(context.Background(), "nope")
	if err != nil || got != nil {
		t.Fatalf("expected nil case, got %#v err=%v", got, err)
	}
}

func TestUpsertFileRecordsIsKeyedByPathAndLocation(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	testsupport.MustAddCase(t, st, cfg, "c1")
	ctx := context.Background()

	base := store.FileRecord{CaseID: "c1", Name: "a.log", Path: "logs/a.log", Type: "log", Size: 10, DepthIndex: 1}
	remote := base
	remote.Location = store.LocationRemote
	local := base
	local.Location = store.LocationLocal

	if err := st.UpsertFileRecords(ctx, []store.FileRecord{remote, local}); err != nil {
		t.Fatalf("UpsertFileRecords: %v", err)
	}
	if err := st.SetNotes(ctx, "c1", "logs/a.log", store.LocationRemote, "interesting"); err != nil {
		t.Fatalf("SetNotes: %v", err)
	}

	remote.Size = 20
	if err := st.UpsertFileRecords(ctx, []store.FileRecord{remote}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	all, err := st.ListFileRecords(ctx, "c1", "")
	if err != nil {
		t.Fatalf("ListFileRecords: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected two records (one per location), got %d", len(all))
	}
	got, err := st.GetFileRecord(ctx, "c1", "logs/a.log", store.LocationRemote)
	if err != nil || got == nil {
		t.Fatalf("GetFileRecord: %v %v", got, err)
	}
	if got.Size != 20 {
		t.Fatalf("size = %d, want 20", got.Size)
	}
	if got.Notes != "interesting" {
		t.Fatalf("notes should survive rescans, got %q", got.Notes)
	}
}

func TestVanishedRecordsArePreserved(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	testsupport.MustAddCase(t, st, cfg, "c1")
	ctx := context.Background()

	first := []store.FileRecord{
		{CaseID: "c1", Name: "a", Path: "a", Location: store.LocationLocal, Type: "noext"},
		{CaseID: "c1", Name: "b", Path: "b", Location: store.LocationLocal, Type: "noext"},
	}
	if err := st.UpsertFileRecords(ctx, first); err != nil {
		t.Fatal(err)
	}
	if err := st.UpsertFileRecords(ctx, first[:1]); err != nil {
		t.Fatal(err)
	}
	records, err := st.ListFileRecords(ctx, "c1", store.LocationLocal)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("stale record should persist, got %d records", len(records))
	}
}

func TestDeleteCaseCascades(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	testsupport.MustAddCase(t, st, cfg, "c1")
	ctx := context.Background()

	if err := st.UpsertFileRecords(ctx, []store.FileRecord{{CaseID: "c1", Name: "a", Path: "a", Location: store.LocationLocal, Type: "noext"}}); err != nil {
		t.Fatal(err)
	}
	if err := st.PutSyncState(ctx, store.CaseSyncState{CaseID: "c1", LastFileCount: 3}); err != nil {
		t.Fatal(err)
	}
	if err := st.DeleteCase(ctx, "c1"); err != nil {
		t.Fatalf("DeleteCase: %v", err)
	}
	records, err := st.ListFileRecords(ctx, "c1", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 0 {
		t.Fatalf("expected records removed with case, got %d", len(records))
	}
	if _, ok, _ := st.GetSyncState(ctx, "c1"); ok {
		t.Fatal("expected sync state removed with case")
	}
}

func TestSyncStateRoundTrip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	testsupport.MustAddCase(t, st, cfg, "c1")
	ctx := context.Background()

	if _, ok, err := st.GetSyncState(ctx, "c1"); err != nil || ok {
		t.Fatalf("expected no state yet, ok=%v err=%v", ok, err)
	}
	polled := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := st.PutSyncState(ctx, store.CaseSyncState{CaseID: "c1", LastFileCount: 4, LastPollTime: polled}); err != nil {
		t.Fatal(err)
	}
	// A refresh updates the count without touching the poll time.
	if err := st.PutSyncState(ctx, store.CaseSyncState{CaseID: "c1", LastFileCount: 6}); err != nil {
		t.Fatal(err)
	}
	state, ok, err := st.GetSyncState(ctx, "c1")
	if err != nil || !ok {
		t.Fatalf("GetSyncState: ok=%v err=%v", ok, err)
	}
	if state.LastFileCount != 6 || !state.LastPollTime.Equal(polled) {
		t.Fatalf("unexpected state %+v", state)
	}
}

func TestFavoritesKeepNewestCopy(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	testsupport.MustAddCase(t, st, cfg, "old")
	testsupport.MustAddCase(t, st, cfg, "new")
	ctx := context.Background()

	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)
	if err := st.UpsertFavorites(ctx, []store.Favorite{{Name: "sys.log", CaseID: "new", Path: "sys.log", Location: store.LocationRemote, ModifiedAt: newer}}); err != nil {
		t.Fatal(err)
	}
	if err := st.UpsertFavorites(ctx, []store.Favorite{{Name: "sys.log", CaseID: "old", Path: "sys.log", Location: store.LocationRemote, ModifiedAt: older}}); err != nil {
		t.Fatal(err)
	}
	favs, err := st.ListFavorites(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(favs) != 1 || favs[0].CaseID != "new" {
		t.Fatalf("expected newest copy to win, got %+v", favs)
	}
}

func TestAutomationEnabledFlagSurvivesResync(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	a := store.Automation{Name: "unzipper", Version: "1.0", Kind: "unpack", ExecutablePath: "/x", ExecutableHash: "h1"}
	if err := st.SyncAutomation(ctx, a); err != nil {
		t.Fatal(err)
	}
	if ok, err := st.SetAutomationEnabled(ctx, "unzipper", false); err != nil || !ok {
		t.Fatalf("SetAutomationEnabled: ok=%v err=%v", ok, err)
	}
	a.ExecutableHash = "h2"
	if err := st.SyncAutomation(ctx, a); err != nil {
		t.Fatal(err)
	}
	rows, err := st.ListAutomations(ctx)
	if err != nil {
		t.Fatal(err)
	}
	got := rows["unzipper"]
	if got.Enabled || got.ExecutableHash != "h2" {
		t.Fatalf("unexpected automation row %+v", got)
	}
	if ok, _ := st.SetAutomationEnabled(ctx, "missing", true); ok {
		t.Fatal("expected no row for unknown automation")
	}
}

func TestTaskHistory(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	now := time.Now()

	if err := st.RecordTask(ctx, store.TaskRecord{ID: "t1", Kind: "download", State: store.TaskPending, EnqueuedAt: now}); err != nil {
		t.Fatal(err)
	}
	if err := st.RecordTask(ctx, store.TaskRecord{ID: "t2", Kind: "upload", State: store.TaskRunning, EnqueuedAt: now.Add(time.Second), StartedAt: now}); err != nil {
		t.Fatal(err)
	}
	if err := st.RecordTask(ctx, store.TaskRecord{ID: "t1", Kind: "download", State: store.TaskSucceeded, EnqueuedAt: now, FinishedAt: now}); err != nil {
		t.Fatal(err)
	}
	changed, err := st.FailInterruptedTasks(ctx, "daemon restarted")
	if err != nil || changed != 1 {
		t.Fatalf("FailInterruptedTasks changed=%d err=%v", changed, err)
	}
	tasks, err := st.RecentTasks(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 2 || tasks[0].ID != "t2" {
		t.Fatalf("expected newest first, got %+v", tasks)
	}
	if tasks[0].State != store.TaskFailed || tasks[0].ErrorMessage != "daemon restarted" {
		t.Fatalf("unexpected interrupted task %+v", tasks[0])
	}
	if tasks[1].State != store.TaskSucceeded {
		t.Fatalf("unexpected state %s", tasks[1].State)
	}
}
