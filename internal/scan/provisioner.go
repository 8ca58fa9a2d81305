package scan

import (
	"context"

	"github.com/jedp/fptv/internal/atsc"
	"github.com/jedp/fptv/internal/logger"
	"github.com/jedp/fptv/internal/tvh"
)

// Provisioner wipes and creates RF tuning points and queues hardware
// scans. Every per-mux failure is counted, never fatal.
type Provisioner struct {
	api        API
	modulation string
	dryRun     bool
}

// NewProvisioner builds a provisioner with the configured modulation.
func NewProvisioner(api API, modulation string, dryRun bool) *Provisioner {
	return &Provisioner{api: api, modulation: modulation, dryRun: dryRun}
}

// Wipe deletes every mux on the target network.
func (p *Provisioner) Wipe(ctx context.Context, netUUID, netName string) *PhaseStats {
	stats := NewPhaseStats()

	muxes, err := p.api.ListMuxes(ctx)
	if err != nil {
		logger.Errorf("Provisioner: mux grid read failed: %v", err)
		stats.Record(Failedf("mux_grid_read: %v", err))
		return stats
	}

	for _, m := range muxes {
		if !m.BelongsTo(netUUID, netName) {
			continue
		}
		if p.dryRun {
			logger.Infof("Provisioner: [dry-run] would delete mux %s (%d Hz)", m.UUID, m.Frequency)
			stats.Record(OK())
			continue
		}
		if err := p.api.DeleteMux(ctx, m.UUID); err != nil {
			logger.Warnf("Provisioner: delete failed for mux %s: %v", m.UUID, err)
			stats.Record(Failedf("delete_mux: %v", err))
			continue
		}
		stats.Record(OK())
	}
	logger.Infof("Provisioner: wiped muxes (%s)", stats)
	return stats
}

// CreateRange creates one mux per RF channel in [rfStart, rfEnd].
// The configuration is seeded from the network's declared mux schema
// so the create never sends fields this backend build doesn't know.
func (p *Provisioner) CreateRange(ctx context.Context, netUUID string, rfStart, rfEnd int) *PhaseStats {
	stats := NewPhaseStats()

	muxClass, err := p.api.GetMuxClass(ctx, netUUID)
	if err != nil {
		logger.Errorf("Provisioner: mux class read failed: %v", err)
		stats.Record(Failedf("mux_class_read: %v", err))
		return stats
	}
	defaults := tvh.BuildMuxConf(muxClass)

	for rf := rfStart; rf <= rfEnd; rf++ {
		freq, err := atsc.RFToFrequencyHz(rf)
		if err != nil {
			stats.Record(Skipped("invalid_rf_channel"))
			continue
		}

		conf := make(map[string]interface{}, len(defaults)+3)
		for k, v := range defaults {
			conf[k] = v
		}
		conf["enabled"] = true
		conf["frequency"] = freq
		// Only set fields the schema declares; not all builds carry them.
		if _, ok := defaults["modulation"]; ok {
			conf["modulation"] = p.modulation
		}
		if _, ok := defaults["scan_state"]; ok {
			conf["scan_state"] = int(tvh.ScanStatePending)
		}

		if p.dryRun {
			logger.Infof("Provisioner: [dry-run] would create mux RF %d (%d Hz)", rf, freq)
			stats.Record(OK())
			continue
		}
		if err := p.api.CreateMux(ctx, netUUID, conf); err != nil {
			logger.Warnf("Provisioner: create failed for RF %d (%d Hz): %v", rf, freq, err)
			stats.Record(Failedf("create_mux: %v", err))
			continue
		}
		logger.Debugf("Provisioner: created mux RF %d -> %d Hz", rf, freq)
		stats.Record(OK())
	}
	logger.Infof("Provisioner: created muxes RF %d..%d (%s)", rfStart, rfEnd, stats)
	return stats
}

// ScanAll queues a hardware scan on every mux of the network.
func (p *Provisioner) ScanAll(ctx context.Context, netUUID, netName string) *PhaseStats {
	stats := NewPhaseStats()

	muxes, err := p.api.ListMuxes(ctx)
	if err != nil {
		logger.Errorf("Provisioner: mux grid read failed: %v", err)
		stats.Record(Failedf("mux_grid_read: %v", err))
		return stats
	}

	for _, m := range muxes {
		if !m.BelongsTo(netUUID, netName) {
			continue
		}
		if p.dryRun {
			logger.Infof("Provisioner: [dry-run] would force-scan mux %s", m.UUID)
			stats.Record(OK())
			continue
		}
		if err := p.api.ForceScanMux(ctx, m.UUID); err != nil {
			logger.Warnf("Provisioner: force scan failed for mux %s: %v", m.UUID, err)
			stats.Record(Failedf("force_scan: %v", err))
			continue
		}
		stats.Record(OK())
	}
	logger.Infof("Provisioner: queued scans (%s)", stats)
	return stats
}

// DisableFailedMuxes disables muxes whose scan finished with Fail so
// they stop occupying tuner time on later passes.
func (p *Provisioner) DisableFailedMuxes(ctx context.Context, netUUID, netName string) *PhaseStats {
	stats := NewPhaseStats()

	muxes, err := p.api.ListMuxes(ctx)
	if err != nil {
		logger.Errorf("Provisioner: mux grid read failed: %v", err)
		stats.Record(Failedf("mux_grid_read: %v", err))
		return stats
	}

	for _, m := range muxes {
		if !m.BelongsTo(netUUID, netName) {
			continue
		}
		if m.ScanResult != tvh.ScanResultFail || !m.Enabled.Bool() {
			continue
		}
		if p.dryRun {
			logger.Infof("Provisioner: [dry-run] would disable failed mux %s (%d Hz)", m.UUID, m.Frequency)
			stats.Record(OK())
			continue
		}
		if err := p.api.SaveIDNode(ctx, tvh.Node{"uuid": m.UUID, "enabled": false}); err != nil {
			logger.Warnf("Provisioner: disable failed for mux %s: %v", m.UUID, err)
			stats.Record(Failedf("disable_mux: %v", err))
			continue
		}
		logger.Infof("Provisioner: disabled failed mux %s (%d Hz)", m.UUID, m.Frequency)
		stats.Record(OK())
	}
	return stats
}
