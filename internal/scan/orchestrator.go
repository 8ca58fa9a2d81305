package scan

import (
	"context"
	"errors"
	"fmt"

	"github.com/jedp/fptv/internal/clock"
	"github.com/jedp/fptv/internal/config"
	"github.com/jedp/fptv/internal/logger"
)

// ProgressFunc receives a message and the latest mux state counts
// after every phase transition and every poll.
type ProgressFunc func(message string, states MuxStates)

// Result is the overall outcome of one pipeline run: a boolean plus a
// human-readable reason, never a stack trace.
type Result struct {
	Success bool
	Reason  string

	Frontends   FrontendStats
	Wiped       *PhaseStats
	Created     *PhaseStats
	Scanned     *PhaseStats
	Orphans     *PhaseStats
	Reconciled  ReconcileStats
	Placeholder *PhaseStats
	Deduped     DedupeStats
	Pruned      PruneStats
	FinalStates MuxStates
}

// Orchestrator sequences the scan pipeline. Single-threaded and
// run-to-completion; callers must guarantee exclusive provisioning
// access since concurrent writers would break the idempotency
// guarantees.
type Orchestrator struct {
	api API
	clk clock.Clock
	cfg *config.Config

	provisioner  *Provisioner
	frontends    *FrontendConfigurator
	poller       *Poller
	reconciler   *Reconciler
	cleaner      *Cleaner
	deduplicator *Deduplicator
	pruner       *Pruner
}

// NewOrchestrator wires the pipeline components from configuration.
func NewOrchestrator(api API, clk clock.Clock, cfg *config.Config) *Orchestrator {
	dryRun := cfg.DryRunMode
	cleaner := NewCleaner(api, cfg.PlaceholderNames, dryRun)
	return &Orchestrator{
		api:          api,
		clk:          clk,
		cfg:          cfg,
		provisioner:  NewProvisioner(api, cfg.Modulation, dryRun),
		frontends:    NewFrontendConfigurator(api, DefaultFrontendMatcher(), dryRun),
		poller:       NewPoller(api, clk, cfg.PollInterval, cfg.ScanTimeout),
		reconciler:   NewReconciler(api, dryRun),
		cleaner:      cleaner,
		deduplicator: NewDeduplicator(api, cleaner, cfg.ProbeTimeout, dryRun),
		pruner:       NewPruner(api, dryRun),
	}
}

// Run executes the full pipeline. Fatal conditions (network not found,
// poll timeout) abort the run; everything else is best-effort per item.
func (o *Orchestrator) Run(ctx context.Context, progress ProgressFunc) Result {
	report := func(msg string, states MuxStates) {
		logger.Infof("Scan: %s", msg)
		if progress != nil {
			progress(msg, states)
		}
	}
	result := Result{}

	// Phase 1: stop the EPG grabber competing for tuners. Best-effort.
	report("Disabling EPG auto-grab", MuxStates{})
	if o.cfg.DryRunMode {
		logger.Infof("Scan: [dry-run] would disable EPG auto-grab")
	} else if err := o.api.DisableEPGAutoGrab(ctx); err != nil {
		logger.Warnf("Scan: EPG auto-grab disable failed (continuing): %v", err)
	}

	// Phase 2: resolve the network. Fatal if absent.
	report(fmt.Sprintf("Resolving network %q", o.cfg.NetworkName), MuxStates{})
	network, err := o.api.FindNetwork(ctx, o.cfg.NetworkName)
	if err != nil {
		result.Reason = fmt.Sprintf("network lookup failed: %v", err)
		report(result.Reason, MuxStates{})
		return result
	}
	if network == nil {
		result.Reason = fmt.Sprintf("network not found: %s", o.cfg.NetworkName)
		report(result.Reason, MuxStates{})
		return result
	}
	netUUID, netName := network.UUID, network.DisplayName()
	report(fmt.Sprintf("Network %q resolved to %s", netName, netUUID), MuxStates{})

	// Phase 3: frontends. Best-effort.
	report("Configuring tuner frontends", MuxStates{})
	result.Frontends = o.frontends.Configure(ctx, netUUID)
	report(fmt.Sprintf("Frontends: found=%d updated=%d already-ok=%d errors=%d",
		result.Frontends.Found, result.Frontends.Updated, result.Frontends.AlreadyOK, result.Frontends.Errors), MuxStates{})

	// Phase 4: optional wipe. Best-effort per mux.
	if o.cfg.WipeExistingMuxes {
		report("Wiping existing muxes", MuxStates{})
		result.Wiped = o.provisioner.Wipe(ctx, netUUID, netName)
		report(fmt.Sprintf("Wiped muxes: %s", result.Wiped), MuxStates{})
	}

	// Phase 5: create muxes across the RF range. Best-effort per mux.
	report(fmt.Sprintf("Creating muxes RF %d..%d (modulation=%s)",
		o.cfg.RFStart, o.cfg.RFEnd, o.cfg.Modulation), MuxStates{})
	result.Created = o.provisioner.CreateRange(ctx, netUUID, o.cfg.RFStart, o.cfg.RFEnd)
	report(fmt.Sprintf("Created muxes: %s", result.Created), MuxStates{})

	// Phase 6: queue a scan everywhere. Best-effort per mux.
	report("Forcing scan on all muxes", MuxStates{})
	result.Scanned = o.provisioner.ScanAll(ctx, netUUID, netName)
	report(fmt.Sprintf("Queued scans: %s", result.Scanned), MuxStates{})

	// Phase 7: wait for convergence. Fatal on timeout; the whole run
	// aborts even though some muxes may have finished.
	report(fmt.Sprintf("Polling scan progress (timeout %s)", o.cfg.ScanTimeout), MuxStates{})
	finalStates, err := o.poller.Wait(ctx, netUUID, netName, func(states MuxStates) {
		if progress != nil {
			progress(states.String(), states)
		}
	})
	result.FinalStates = finalStates
	if err != nil {
		var timeoutErr *ErrPollTimeout
		if errors.As(err, &timeoutErr) {
			result.Reason = timeoutErr.Error()
		} else {
			result.Reason = fmt.Sprintf("poll interrupted: %v", err)
		}
		report(result.Reason, finalStates)
		return result
	}
	report("Scan settled", finalStates)

	// Phase 8: settle, then clear pre-existing orphans and park muxes
	// that finished with Fail.
	o.settle(ctx)
	report("Cleaning orphan channels", finalStates)
	result.Orphans = o.cleaner.CleanOrphans(ctx)
	report(fmt.Sprintf("Orphan cleanup: %s", result.Orphans), finalStates)
	disabled := o.provisioner.DisableFailedMuxes(ctx, netUUID, netName)
	report(fmt.Sprintf("Disabled failed muxes: %s", disabled), finalStates)

	// Phase 9: map services to channels.
	if o.cfg.MapServicesToChannels {
		report("Reconciling services to channels", finalStates)
		result.Reconciled = o.reconciler.Reconcile(ctx)
		report(fmt.Sprintf("Reconciled: created=%d already-mapped=%d skipped-unnamed=%d",
			result.Reconciled.Created, result.Reconciled.AlreadyMapped, result.Reconciled.SkippedUnnamed), finalStates)
	}

	// Phase 10: placeholder cleanup.
	if o.cfg.CleanupChannels {
		report("Cleaning placeholder channels", finalStates)
		result.Placeholder = o.cleaner.CleanPlaceholders(ctx)
		report(fmt.Sprintf("Placeholder cleanup: %s", result.Placeholder), finalStates)
	}

	// Phase 11: dedup, scored against the current health map.
	if o.cfg.DedupeChannels {
		report("Deduplicating channels", finalStates)
		health, serviceMux, _ := o.healthSnapshot(ctx, netUUID, netName)
		result.Deduped = o.deduplicator.Dedupe(ctx, health, serviceMux)
		report(fmt.Sprintf("Dedup: merged=%d updated=%d deleted=%d",
			result.Deduped.MergedGroups, result.Deduped.UpdatedChannels, result.Deduped.DeletedChannels), finalStates)
	}

	// Phase 12: settle again and refresh health for the final pass.
	o.settle(ctx)
	report("Running health diagnostics", finalStates)
	health, serviceMux, allMuxes := o.healthSnapshot(ctx, netUUID, netName)
	good := 0
	for _, rec := range health {
		if rec.Good() {
			good++
		}
	}
	report(fmt.Sprintf("Health: %d/%d muxes good", good, len(health)), finalStates)

	// Phase 13: the final safety net.
	report("Pruning invalid service links", finalStates)
	result.Pruned = o.pruner.Prune(ctx, health, serviceMux, allMuxes)
	report(fmt.Sprintf("Pruned: links-removed=%d trimmed=%d deleted=%d reasons=%v",
		result.Pruned.LinksRemoved, result.Pruned.ChannelsTrimmed,
		result.Pruned.ChannelsDeleted, result.Pruned.RemovalReasons), finalStates)

	result.Success = true
	report("Scan complete", finalStates)
	return result
}

// settle pauses briefly so backend state (service discovery, grid
// counters) catches up with the scan that just finished.
func (o *Orchestrator) settle(ctx context.Context) {
	if o.cfg.SettleDelay > 0 {
		_ = o.clk.Sleep(ctx, o.cfg.SettleDelay)
	}
}

// healthSnapshot reads the mux grid and service grid once and derives
// the health map, the service->mux map and the set of all mux uuids.
func (o *Orchestrator) healthSnapshot(ctx context.Context, netUUID, netName string) (HealthMap, map[string]string, map[string]bool) {
	health := make(HealthMap)
	allMuxes := make(map[string]bool)

	muxes, err := o.api.ListMuxes(ctx)
	if err != nil {
		logger.Warnf("Scan: health snapshot mux read failed: %v", err)
	} else {
		health = BuildHealthMap(muxes, netUUID, netName)
		for _, m := range muxes {
			if m.UUID != "" {
				allMuxes[m.UUID] = true
			}
		}
	}

	serviceMux, err := o.api.ServiceMuxMap(ctx)
	if err != nil {
		logger.Warnf("Scan: health snapshot service read failed: %v", err)
		serviceMux = make(map[string]string)
	}
	return health, serviceMux, allMuxes
}
