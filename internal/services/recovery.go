package services

import (
	"database/sql"
	"time"

	"github.com/jedp/fptv/internal/db"
	"github.com/jedp/fptv/internal/logger"
)

// RecoveryService reconciles run state on startup. A run left in
// "running" means the process died mid-scan; the backend has already
// abandoned the scan, so the row is closed out as failed.
type RecoveryService struct {
	db *sql.DB
}

func NewRecoveryService(database *sql.DB) *RecoveryService {
	return &RecoveryService{db: database}
}

// Run executes the recovery process once, after the database is open
// and before any new run can start.
func (r *RecoveryService) Run() {
	res, err := db.ExecWithRetry(r.db, `
        UPDATE scan_runs
        SET status = ?, error = 'interrupted by shutdown', completed_at = ?
        WHERE status = ?
    `, db.RunStatusFailed, time.Now().UTC(), db.RunStatusRunning)
	if err != nil {
		logger.Errorf("Recovery: failed to close interrupted runs: %v", err)
		return
	}

	if n, err := res.RowsAffected(); err == nil && n > 0 {
		logger.Infof("Recovery: closed %d interrupted scan run(s)", n)
	}

	// Phases from interrupted runs stay "running" too.
	_, err = db.ExecWithRetry(r.db, `
        UPDATE scan_phases
        SET status = 'failed'
        WHERE status = 'running'
    `)
	if err != nil {
		logger.Errorf("Recovery: failed to close interrupted phases: %v", err)
	}
}
