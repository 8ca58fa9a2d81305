package db

import (
	"database/sql"
	"fmt"
	"time"
)

// ScanRun is a single reconciliation run, persisted for history and the API.
type ScanRun struct {
	ID              string     `json:"id"`
	TriggeredBy     string     `json:"triggered_by"`
	DryRun          bool       `json:"dry_run"`
	Status          string     `json:"status"`
	Error           string     `json:"error,omitempty"`
	MuxesCreated    int        `json:"muxes_created"`
	MuxesFailed     int        `json:"muxes_failed"`
	ServicesMapped  int        `json:"services_mapped"`
	ChannelsCreated int        `json:"channels_created"`
	ChannelsMerged  int        `json:"channels_merged"`
	ChannelsDeleted int        `json:"channels_deleted"`
	ServicesPruned  int        `json:"services_pruned"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// ScanPhase is one phase record within a run.
type ScanPhase struct {
	ID           int64      `json:"id"`
	RunID        string     `json:"run_id"`
	Phase        string     `json:"phase"`
	Status       string     `json:"status"`
	Detail       string     `json:"detail,omitempty"`
	OKCount      int        `json:"ok_count"`
	SkippedCount int        `json:"skipped_count"`
	FailedCount  int        `json:"failed_count"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// Scan run statuses.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
	RunStatusCancelled = "cancelled"
)

// CreateScanRun inserts a new run in the running state.
func (r *Repository) CreateScanRun(run ScanRun) error {
	_, err := ExecWithRetry(r.DB, `
		INSERT INTO scan_runs (id, triggered_by, dry_run, status, started_at)
		VALUES (?, ?, ?, ?, ?)
	`, run.ID, run.TriggeredBy, run.DryRun, RunStatusRunning, run.StartedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to create scan run: %w", err)
	}
	return nil
}

// CompleteScanRun records the final status and counters for a run.
func (r *Repository) CompleteScanRun(run ScanRun) error {
	completed := time.Now().UTC()
	if run.CompletedAt != nil {
		completed = run.CompletedAt.UTC()
	}
	_, err := ExecWithRetry(r.DB, `
		UPDATE scan_runs SET
			status = ?, error = ?,
			muxes_created = ?, muxes_failed = ?,
			services_mapped = ?,
			channels_created = ?, channels_merged = ?, channels_deleted = ?,
			services_pruned = ?,
			completed_at = ?
		WHERE id = ?
	`, run.Status, run.Error,
		run.MuxesCreated, run.MuxesFailed,
		run.ServicesMapped,
		run.ChannelsCreated, run.ChannelsMerged, run.ChannelsDeleted,
		run.ServicesPruned,
		completed, run.ID)
	if err != nil {
		return fmt.Errorf("failed to complete scan run: %w", err)
	}
	return nil
}

// GetScanRun fetches a single run by ID. Returns sql.ErrNoRows if missing.
func (r *Repository) GetScanRun(id string) (*ScanRun, error) {
	row := r.DB.QueryRow(`
		SELECT id, triggered_by, dry_run, status, COALESCE(error, ''),
			muxes_created, muxes_failed, services_mapped,
			channels_created, channels_merged, channels_deleted, services_pruned,
			started_at, completed_at
		FROM scan_runs WHERE id = ?
	`, id)
	return scanRunFromRow(row)
}

// ListScanRuns returns the most recent runs, newest first.
func (r *Repository) ListScanRuns(limit int) ([]ScanRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := QueryWithRetry(r.DB, `
		SELECT id, triggered_by, dry_run, status, COALESCE(error, ''),
			muxes_created, muxes_failed, services_mapped,
			channels_created, channels_merged, channels_deleted, services_pruned,
			started_at, completed_at
		FROM scan_runs ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list scan runs: %w", err)
	}
	defer rows.Close()

	var runs []ScanRun
	for rows.Next() {
		run, err := scanRunFromRow(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scanning.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRunFromRow(row rowScanner) (*ScanRun, error) {
	var run ScanRun
	var completedAt sql.NullTime
	err := row.Scan(&run.ID, &run.TriggeredBy, &run.DryRun, &run.Status, &run.Error,
		&run.MuxesCreated, &run.MuxesFailed, &run.ServicesMapped,
		&run.ChannelsCreated, &run.ChannelsMerged, &run.ChannelsDeleted, &run.ServicesPruned,
		&run.StartedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	if completedAt.Valid {
		t := completedAt.Time
		run.CompletedAt = &t
	}
	return &run, nil
}

// RecordPhase inserts a completed phase record for a run.
func (r *Repository) RecordPhase(phase ScanPhase) error {
	completed := time.Now().UTC()
	if phase.CompletedAt != nil {
		completed = phase.CompletedAt.UTC()
	}
	_, err := ExecWithRetry(r.DB, `
		INSERT INTO scan_phases (run_id, phase, status, detail, ok_count, skipped_count, failed_count, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, phase.RunID, phase.Phase, phase.Status, phase.Detail,
		phase.OKCount, phase.SkippedCount, phase.FailedCount,
		phase.StartedAt.UTC(), completed)
	if err != nil {
		return fmt.Errorf("failed to record scan phase: %w", err)
	}
	return nil
}

// ListPhases returns the phase records for a run in execution order.
func (r *Repository) ListPhases(runID string) ([]ScanPhase, error) {
	rows, err := QueryWithRetry(r.DB, `
		SELECT id, run_id, phase, status, COALESCE(detail, ''), ok_count, skipped_count, failed_count, started_at, completed_at
		FROM scan_phases WHERE run_id = ? ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list scan phases: %w", err)
	}
	defer rows.Close()

	var phases []ScanPhase
	for rows.Next() {
		var p ScanPhase
		var completedAt sql.NullTime
		if err := rows.Scan(&p.ID, &p.RunID, &p.Phase, &p.Status, &p.Detail,
			&p.OKCount, &p.SkippedCount, &p.FailedCount, &p.StartedAt, &completedAt); err != nil {
			return nil, err
		}
		if completedAt.Valid {
			t := completedAt.Time
			p.CompletedAt = &t
		}
		phases = append(phases, p)
	}
	return phases, rows.Err()
}

// GetSetting returns a setting value, or empty string if unset.
func (r *Repository) GetSetting(key string) (string, error) {
	var value string
	err := r.DB.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get setting %s: %w", key, err)
	}
	return value, nil
}

// SetSetting inserts or updates a setting.
func (r *Repository) SetSetting(key, value string) error {
	_, err := ExecWithRetry(r.DB, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set setting %s: %w", key, err)
	}
	return nil
}
