package services

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jedp/fptv/internal/logger"
)

// Schedule is a cron-driven scan trigger stored in scan_schedules.
type Schedule struct {
	ID             int64     `json:"id"`
	CronExpression string    `json:"cron_expression"`
	Enabled        bool      `json:"enabled"`
	DryRun         bool      `json:"dry_run"`
	CreatedAt      time.Time `json:"created_at"`
}

// SchedulerService fires scan runs on cron schedules. A run that is
// already in progress when a schedule fires is skipped, not queued.
type SchedulerService struct {
	db     *sql.DB
	runner *Runner
	cron   *cron.Cron
	jobs   map[int64]cron.EntryID
	mu     sync.Mutex
}

func NewSchedulerService(db *sql.DB, runner *Runner) *SchedulerService {
	return &SchedulerService{
		db:     db,
		runner: runner,
		cron:   cron.New(),
		jobs:   make(map[int64]cron.EntryID),
	}
}

func (s *SchedulerService) Start() {
	logger.Infof("Starting Scheduler Service...")
	s.cron.Start()
	if err := s.LoadSchedules(); err != nil {
		logger.Errorf("Failed to load schedules: %v", err)
	}
}

func (s *SchedulerService) Stop() {
	s.cron.Stop()
}

func (s *SchedulerService) LoadSchedules() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, entryID := range s.jobs {
		s.cron.Remove(entryID)
	}
	s.jobs = make(map[int64]cron.EntryID)

	rows, err := s.db.Query("SELECT id, cron_expression, dry_run FROM scan_schedules WHERE enabled = 1")
	if err != nil {
		return err
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var id int64
		var cronExpr string
		var dryRun bool
		if err := rows.Scan(&id, &cronExpr, &dryRun); err != nil {
			logger.Errorf("Failed to scan schedule row: %v", err)
			continue
		}

		if err := s.addJob(id, cronExpr, dryRun); err != nil {
			logger.Errorf("Failed to add job for schedule %d: %v", id, err)
		} else {
			count++
		}
	}
	logger.Infof("Loaded %d active scan schedules", count)
	return rows.Err()
}

func (s *SchedulerService) addJob(scheduleID int64, cronExpr string, dryRun bool) error {
	entryID, err := s.cron.AddFunc(cronExpr, func() {
		logger.Infof("Executing scheduled scan (schedule ID: %d, dry_run: %v)", scheduleID, dryRun)
		runID, err := s.runner.StartRun("cron", dryRun)
		if err == ErrRunInProgress {
			logger.Warnf("Skipping schedule %d: a scan run is already in progress", scheduleID)
			return
		}
		if err != nil {
			logger.Errorf("Scheduled scan failed to start (schedule %d): %v", scheduleID, err)
			return
		}
		logger.Infof("Scheduled scan started: run %s", runID)
	})
	if err != nil {
		return err
	}

	s.jobs[scheduleID] = entryID
	return nil
}

func (s *SchedulerService) ListSchedules() ([]Schedule, error) {
	rows, err := s.db.Query("SELECT id, cron_expression, enabled, dry_run, created_at FROM scan_schedules ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var schedules []Schedule
	for rows.Next() {
		var sch Schedule
		if err := rows.Scan(&sch.ID, &sch.CronExpression, &sch.Enabled, &sch.DryRun, &sch.CreatedAt); err != nil {
			return nil, err
		}
		schedules = append(schedules, sch)
	}
	return schedules, rows.Err()
}

func (s *SchedulerService) AddSchedule(cronExpr string, dryRun bool) (int64, error) {
	if _, err := cron.ParseStandard(cronExpr); err != nil {
		return 0, fmt.Errorf("invalid cron expression: %v", err)
	}

	res, err := s.db.Exec("INSERT INTO scan_schedules (cron_expression, enabled, dry_run) VALUES (?, 1, ?)", cronExpr, dryRun)
	if err != nil {
		return 0, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.addJob(id, cronExpr, dryRun); err != nil {
		return id, fmt.Errorf("saved to DB but failed to schedule: %v", err)
	}

	return id, nil
}

func (s *SchedulerService) DeleteSchedule(id int64) error {
	_, err := s.db.Exec("DELETE FROM scan_schedules WHERE id = ?", id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if entryID, ok := s.jobs[id]; ok {
		s.cron.Remove(entryID)
		delete(s.jobs, id)
	}

	return nil
}

func (s *SchedulerService) UpdateSchedule(id int64, cronExpr string, enabled, dryRun bool) error {
	if cronExpr != "" {
		if _, err := cron.ParseStandard(cronExpr); err != nil {
			return fmt.Errorf("invalid cron expression: %v", err)
		}
	}

	query := "UPDATE scan_schedules SET enabled = ?, dry_run = ?"
	args := []interface{}{enabled, dryRun}
	if cronExpr != "" {
		query += ", cron_expression = ?"
		args = append(args, cronExpr)
	}
	query += " WHERE id = ?"
	args = append(args, id)

	if _, err := s.db.Exec(query, args...); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, ok := s.jobs[id]; ok {
		s.cron.Remove(entryID)
		delete(s.jobs, id)
	}

	if enabled {
		var currentCron string
		var currentDryRun bool
		err := s.db.QueryRow("SELECT cron_expression, dry_run FROM scan_schedules WHERE id = ?", id).Scan(&currentCron, &currentDryRun)
		if err != nil {
			return fmt.Errorf("failed to fetch updated schedule: %v", err)
		}

		if err := s.addJob(id, currentCron, currentDryRun); err != nil {
			logger.Errorf("Failed to reschedule job %d: %v", id, err)
		}
	}

	return nil
}
