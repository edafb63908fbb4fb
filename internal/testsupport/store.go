package testsupport

import (
	"context"
	"testing"

	"casework/internal/config"
	"casework/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()
	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})
	return st
}

// MustAddCase registers a case whose trees live under the config's remote
// root and workspace.
func MustAddCase(t testing.TB, st *store.Store, cfg *config.Config, id string) store.Case {
	t.Helper()
	c := store.Case{ID: id, RemotePath: cfg.CaseRemoteDir(id), LocalPath: cfg.CaseLocalDir(id)}
	if err := st.PutCase(context.Background(), c); err != nil {
		t.Fatalf("PutCase %s: %v", id, err)
	}
	return c
}
