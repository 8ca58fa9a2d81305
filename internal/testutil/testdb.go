// Package testutil provides shared test helpers: a migrated test
// database and an in-memory TVHeadend stand-in.
package testutil

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/jedp/fptv/internal/db"
)

// NewTestRepo creates a Repository backed by a temp-file SQLite
// database with all migrations applied. Closed automatically when the
// test finishes.
func NewTestRepo(t *testing.T) *db.Repository {
	t.Helper()
	repo, err := db.NewRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewRepository: %v", err)
	}
	t.Cleanup(func() {
		if err := repo.Close(); err != nil {
			t.Logf("closing test repo: %v", err)
		}
	})
	return repo
}

// InsertScanRun inserts a run row directly, for tests that need
// history without driving the runner.
func InsertScanRun(t *testing.T, repo *db.Repository, id, status string, startedAt time.Time) {
	t.Helper()
	run := db.ScanRun{
		ID:          id,
		TriggeredBy: "api",
		StartedAt:   startedAt,
	}
	if err := repo.CreateScanRun(run); err != nil {
		t.Fatalf("CreateScanRun: %v", err)
	}
	if status != db.RunStatusRunning {
		completed := startedAt.Add(time.Minute)
		run.Status = status
		run.CompletedAt = &completed
		if err := repo.CompleteScanRun(run); err != nil {
			t.Fatalf("CompleteScanRun: %v", err)
		}
	}
}
