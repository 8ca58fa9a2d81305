package services

import (
	"testing"
	"time"

	"github.com/jedp/fptv/internal/clock"
	"github.com/jedp/fptv/internal/eventbus"
	"github.com/jedp/fptv/internal/testutil"
)

func testScheduler(t *testing.T) *SchedulerService {
	t.Helper()
	repo := testutil.NewTestRepo(t)
	eb := eventbus.NewEventBus(repo.DB)
	t.Cleanup(eb.Shutdown)
	runner := NewRunner(repo, eb, testutil.NewFakeTVH(), clock.NewMockClock(time.Unix(0, 0)))
	s := NewSchedulerService(repo.DB, runner)
	t.Cleanup(s.Stop)
	return s
}

func TestSchedulerAddSchedule(t *testing.T) {
	s := testScheduler(t)

	id, err := s.AddSchedule("0 3 * * *", false)
	if err != nil {
		t.Fatalf("AddSchedule: %v", err)
	}
	if id == 0 {
		t.Fatal("schedule ID is zero")
	}

	schedules, err := s.ListSchedules()
	if err != nil {
		t.Fatalf("ListSchedules: %v", err)
	}
	if len(schedules) != 1 {
		t.Fatalf("got %d schedules, want 1", len(schedules))
	}
	if schedules[0].CronExpression != "0 3 * * *" {
		t.Errorf("cron = %q", schedules[0].CronExpression)
	}
	if !schedules[0].Enabled {
		t.Error("schedule not enabled")
	}
	if schedules[0].DryRun {
		t.Error("dry_run should default to false")
	}
}

func TestSchedulerAddScheduleInvalidCron(t *testing.T) {
	s := testScheduler(t)

	if _, err := s.AddSchedule("not a cron expression", false); err == nil {
		t.Fatal("expected error for invalid cron expression")
	}

	schedules, err := s.ListSchedules()
	if err != nil {
		t.Fatalf("ListSchedules: %v", err)
	}
	if len(schedules) != 0 {
		t.Errorf("invalid schedule was persisted: %d rows", len(schedules))
	}
}

func TestSchedulerUpdateSchedule(t *testing.T) {
	s := testScheduler(t)

	id, err := s.AddSchedule("0 3 * * *", false)
	if err != nil {
		t.Fatalf("AddSchedule: %v", err)
	}

	if err := s.UpdateSchedule(id, "30 4 * * 0", true, true); err != nil {
		t.Fatalf("UpdateSchedule: %v", err)
	}

	schedules, err := s.ListSchedules()
	if err != nil {
		t.Fatalf("ListSchedules: %v", err)
	}
	if schedules[0].CronExpression != "30 4 * * 0" {
		t.Errorf("cron = %q, want updated expression", schedules[0].CronExpression)
	}
	if !schedules[0].DryRun {
		t.Error("dry_run not updated")
	}

	// Disabling should remove the cron job but keep the row.
	if err := s.UpdateSchedule(id, "", false, false); err != nil {
		t.Fatalf("UpdateSchedule disable: %v", err)
	}
	schedules, _ = s.ListSchedules()
	if schedules[0].Enabled {
		t.Error("schedule still enabled")
	}
	s.mu.Lock()
	_, active := s.jobs[id]
	s.mu.Unlock()
	if active {
		t.Error("disabled schedule still has a cron job")
	}
}

func TestSchedulerUpdateScheduleInvalidCron(t *testing.T) {
	s := testScheduler(t)

	id, err := s.AddSchedule("0 3 * * *", false)
	if err != nil {
		t.Fatalf("AddSchedule: %v", err)
	}
	if err := s.UpdateSchedule(id, "bogus", true, false); err == nil {
		t.Fatal("expected error for invalid cron expression")
	}
}

func TestSchedulerDeleteSchedule(t *testing.T) {
	s := testScheduler(t)

	id, err := s.AddSchedule("*/5 * * * *", true)
	if err != nil {
		t.Fatalf("AddSchedule: %v", err)
	}
	if err := s.DeleteSchedule(id); err != nil {
		t.Fatalf("DeleteSchedule: %v", err)
	}

	schedules, err := s.ListSchedules()
	if err != nil {
		t.Fatalf("ListSchedules: %v", err)
	}
	if len(schedules) != 0 {
		t.Errorf("got %d schedules after delete, want 0", len(schedules))
	}
}

func TestSchedulerLoadSchedules(t *testing.T) {
	s := testScheduler(t)

	if _, err := s.AddSchedule("0 3 * * *", false); err != nil {
		t.Fatalf("AddSchedule: %v", err)
	}
	if _, err := s.AddSchedule("0 4 * * *", true); err != nil {
		t.Fatalf("AddSchedule: %v", err)
	}

	if err := s.LoadSchedules(); err != nil {
		t.Fatalf("LoadSchedules: %v", err)
	}

	s.mu.Lock()
	n := len(s.jobs)
	s.mu.Unlock()
	if n != 2 {
		t.Errorf("loaded %d jobs, want 2", n)
	}
}
