package testsupport

import (
	"context"
	"testing"

	"lrcforge/internal/config"
	"lrcforge/internal/history"
)

// MustOpenHistory opens the batch ledger for tests and registers cleanup.
func MustOpenHistory(t testing.TB, cfg *config.Config) *history.Store {
	t.Helper()

	store, err := history.Open(context.Background(), cfg.HistoryDBPath())
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}
