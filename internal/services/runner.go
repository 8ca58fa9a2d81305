package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jedp/fptv/internal/clock"
	"github.com/jedp/fptv/internal/config"
	"github.com/jedp/fptv/internal/db"
	"github.com/jedp/fptv/internal/domain"
	"github.com/jedp/fptv/internal/eventbus"
	"github.com/jedp/fptv/internal/logger"
	"github.com/jedp/fptv/internal/scan"
)

// ErrRunInProgress is returned when a scan run is requested while
// another run is still active. Runs are exclusive because they mutate
// the same mux and channel grid on the backend.
var ErrRunInProgress = errors.New("a scan run is already in progress")

// RunStatus is a snapshot of the active (or most recent) run, exposed
// through the status endpoint and the websocket hub.
type RunStatus struct {
	Running   bool           `json:"running"`
	RunID     string         `json:"run_id,omitempty"`
	Trigger   string         `json:"trigger,omitempty"`
	DryRun    bool           `json:"dry_run"`
	Phase     string         `json:"phase,omitempty"`
	States    scan.MuxStates `json:"states"`
	StartedAt time.Time      `json:"started_at,omitempty"`
}

// Runner owns scan run lifecycle: it enforces single-run exclusivity,
// persists run and phase records, drives the orchestrator, and
// publishes the domain events that metrics, notifications, and the
// websocket hub consume.
type Runner struct {
	repo *db.Repository
	eb   *eventbus.EventBus
	api  scan.API
	clk  clock.Clock

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	status  RunStatus
	wg      sync.WaitGroup
}

func NewRunner(repo *db.Repository, eb *eventbus.EventBus, api scan.API, clk clock.Clock) *Runner {
	return &Runner{
		repo: repo,
		eb:   eb,
		api:  api,
		clk:  clk,
	}
}

// StartRun launches a run in the background and returns its ID.
// Returns ErrRunInProgress if a run is already active.
func (r *Runner) StartRun(trigger string, dryRun bool) (string, error) {
	runID, err := r.acquire(trigger, dryRun)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer cancel()
		r.execute(ctx, runID, trigger, dryRun)
		r.release()
	}()

	return runID, nil
}

// RunOnce executes a run synchronously. Used by the one-shot CLI.
func (r *Runner) RunOnce(ctx context.Context, trigger string, dryRun bool) (*db.ScanRun, error) {
	runID, err := r.acquire(trigger, dryRun)
	if err != nil {
		return nil, err
	}
	defer r.release()

	r.execute(ctx, runID, trigger, dryRun)
	return r.repo.GetScanRun(runID)
}

// CancelRun requests cancellation of the active run. Returns false if
// no run is active.
func (r *Runner) CancelRun() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running || r.cancel == nil {
		return false
	}
	r.cancel()
	return true
}

// Status returns a snapshot of the current run state.
func (r *Runner) Status() RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Stop cancels any active run and waits for it to finish.
func (r *Runner) Stop() {
	r.CancelRun()
	r.wg.Wait()
}

func (r *Runner) acquire(trigger string, dryRun bool) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return "", ErrRunInProgress
	}
	runID := uuid.New().String()
	r.running = true
	r.status = RunStatus{
		Running:   true,
		RunID:     runID,
		Trigger:   trigger,
		DryRun:    dryRun,
		StartedAt: r.clk.Now(),
	}
	return runID, nil
}

func (r *Runner) release() {
	r.mu.Lock()
	r.running = false
	r.cancel = nil
	r.status.Running = false
	r.mu.Unlock()
}

// execute runs the full pipeline for a single run and records the
// outcome. It never returns an error: failures are captured on the
// scan_runs row and published as ScanFailed.
func (r *Runner) execute(ctx context.Context, runID, trigger string, dryRun bool) {
	cfg := *config.Get()
	if dryRun {
		cfg.DryRunMode = true
	}

	started := r.clk.Now()
	run := db.ScanRun{
		ID:          runID,
		TriggeredBy: trigger,
		DryRun:      cfg.DryRunMode,
		Status:      db.RunStatusRunning,
		StartedAt:   started,
	}
	if err := r.repo.CreateScanRun(run); err != nil {
		logger.Errorf("Runner: failed to create scan run %s: %v", runID, err)
	}

	r.publish(domain.ScanStarted, runID, map[string]interface{}{
		"run_id":  runID,
		"trigger": trigger,
		"dry_run": cfg.DryRunMode,
		"network": cfg.NetworkName,
	})

	logger.Infof("Runner: run %s started (trigger=%s dry_run=%v)", runID, trigger, cfg.DryRunMode)

	res := scan.NewOrchestrator(r.api, r.clk, &cfg).Run(ctx, func(message string, states scan.MuxStates) {
		r.mu.Lock()
		r.status.Phase = message
		r.status.States = states
		r.mu.Unlock()
		r.publish(domain.ScanProgress, runID, map[string]interface{}{
			"run_id":  runID,
			"message": message,
			"active":  states.Active,
			"pending": states.Pending,
			"ok":      states.OK,
			"fail":    states.Fail,
			"idle":    states.Idle,
			"total":   states.Total,
		})
	})

	r.recordPhases(runID, res)
	r.publishChannelEvents(runID, res)

	cleanerDeleted := phaseOK(res.Orphans) + phaseOK(res.Placeholder)

	run.MuxesCreated = phaseOK(res.Created)
	run.MuxesFailed = res.FinalStates.Fail
	run.ServicesMapped = res.Reconciled.Created + res.Reconciled.AlreadyMapped
	run.ChannelsCreated = res.Reconciled.Created
	run.ChannelsMerged = res.Deduped.MergedGroups
	run.ChannelsDeleted = res.Deduped.DeletedChannels + cleanerDeleted + res.Pruned.ChannelsDeleted
	run.ServicesPruned = res.Pruned.LinksRemoved

	completed := r.clk.Now()
	run.CompletedAt = &completed

	switch {
	case ctx.Err() != nil:
		run.Status = db.RunStatusCancelled
		run.Error = ctx.Err().Error()
	case res.Success:
		run.Status = db.RunStatusCompleted
	default:
		run.Status = db.RunStatusFailed
		run.Error = res.Reason
	}

	if err := r.repo.CompleteScanRun(run); err != nil {
		logger.Errorf("Runner: failed to complete scan run %s: %v", runID, err)
	}

	if run.Status == db.RunStatusCompleted {
		r.publish(domain.ScanCompleted, runID, map[string]interface{}{
			"run_id":           runID,
			"trigger":          trigger,
			"dry_run":          cfg.DryRunMode,
			"network":          cfg.NetworkName,
			"muxes_created":    run.MuxesCreated,
			"muxes_ok":         res.FinalStates.OK,
			"muxes_fail":       res.FinalStates.Fail,
			"channels_created": run.ChannelsCreated,
			"channels_merged":  run.ChannelsMerged,
			"channels_deleted": run.ChannelsDeleted,
		})
		logger.Infof("Runner: run %s completed (muxes ok=%d fail=%d, channels created=%d merged=%d deleted=%d)",
			runID, res.FinalStates.OK, res.FinalStates.Fail,
			run.ChannelsCreated, run.ChannelsMerged, run.ChannelsDeleted)
	} else {
		r.publish(domain.ScanFailed, runID, map[string]interface{}{
			"run_id":  runID,
			"trigger": trigger,
			"dry_run": cfg.DryRunMode,
			"network": cfg.NetworkName,
			"reason":  run.Error,
		})
		logger.Errorf("Runner: run %s %s: %s", runID, run.Status, run.Error)
	}
}

// recordPhases writes one scan_phases row per pipeline stage so the run
// detail endpoint can show where time and failures went.
func (r *Runner) recordPhases(runID string, res scan.Result) {
	now := r.clk.Now()

	record := func(phase string, ok, skipped, failed int) {
		status := "completed"
		if failed > 0 {
			status = "failed"
		}
		err := r.repo.RecordPhase(db.ScanPhase{
			RunID:        runID,
			Phase:        phase,
			Status:       status,
			OKCount:      ok,
			SkippedCount: skipped,
			FailedCount:  failed,
			StartedAt:    now,
			CompletedAt:  &now,
		})
		if err != nil {
			logger.Errorf("Runner: failed to record phase %s for run %s: %v", phase, runID, err)
		}
	}

	record("frontends", res.Frontends.Updated+res.Frontends.AlreadyOK, 0, res.Frontends.Errors)
	if res.Wiped != nil {
		record("wipe", res.Wiped.OK, res.Wiped.Skipped, res.Wiped.Failed)
	}
	if res.Created != nil {
		record("provision", res.Created.OK, res.Created.Skipped, res.Created.Failed)
	}
	if res.Scanned != nil {
		record("scan", res.Scanned.OK, res.Scanned.Skipped, res.Scanned.Failed)
	}
	if res.Orphans != nil {
		record("orphans", res.Orphans.OK, res.Orphans.Skipped, res.Orphans.Failed)
	}
	record("reconcile", res.Reconciled.Created, res.Reconciled.AlreadyMapped+res.Reconciled.SkippedUnnamed, res.Reconciled.Failed)
	if res.Placeholder != nil {
		record("placeholders", res.Placeholder.OK, res.Placeholder.Skipped, res.Placeholder.Failed)
	}
	record("dedupe", res.Deduped.MergedGroups, 0, res.Deduped.Failed)
	record("prune", res.Pruned.LinksRemoved, res.Pruned.ChannelsChecked, res.Pruned.Failed)
}

func (r *Runner) publishChannelEvents(runID string, res scan.Result) {
	r.publish(domain.ChannelsReconciled, runID, map[string]interface{}{
		"run_id":  runID,
		"created": res.Reconciled.Created,
	})

	cleanerDeleted := phaseOK(res.Orphans) + phaseOK(res.Placeholder)
	r.publish(domain.ChannelsCleaned, runID, map[string]interface{}{
		"run_id":  runID,
		"deleted": cleanerDeleted,
	})

	r.publish(domain.ChannelsDeduped, runID, map[string]interface{}{
		"run_id":        runID,
		"merged_groups": res.Deduped.MergedGroups,
		"deleted":       res.Deduped.DeletedChannels,
	})

	reasons := make(map[string]interface{}, len(res.Pruned.RemovalReasons))
	for reason, n := range res.Pruned.RemovalReasons {
		reasons[reason] = n
	}
	r.publish(domain.ChannelsPruned, runID, map[string]interface{}{
		"run_id":           runID,
		"channels_deleted": res.Pruned.ChannelsDeleted,
		"links_removed":    res.Pruned.LinksRemoved,
		"reasons":          reasons,
	})
}

func (r *Runner) publish(eventType domain.EventType, runID string, data map[string]interface{}) {
	err := r.eb.Publish(domain.Event{
		AggregateType: "scan",
		AggregateID:   runID,
		EventType:     eventType,
		EventData:     data,
		CreatedAt:     r.clk.Now().UTC(),
	})
	if err != nil {
		logger.Errorf("Runner: failed to publish %s: %v", eventType, err)
	}
}

func phaseOK(s *scan.PhaseStats) int {
	if s == nil {
		return 0
	}
	return s.OK
}
