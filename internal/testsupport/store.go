package testsupport

import (
	"context"
	"testing"

	"camsync/internal/config"
	"camsync/internal/ledger"
)

// MustOpenLedger opens a ledger.Store for tests and registers cleanup.
func MustOpenLedger(t testing.TB, cfg *config.Config) *ledger.Store {
	t.Helper()

	store, err := ledger.Open(cfg)
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// BeginRun inserts a running ledger row for tests.
func BeginRun(t testing.TB, store *ledger.Store, stage string) ledger.Run {
	t.Helper()

	run, err := store.BeginRun(context.Background(), ledger.Run{Stage: stage})
	if err != nil {
		t.Fatalf("store.BeginRun: %v", err)
	}
	return run
}
