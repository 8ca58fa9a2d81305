package scan

import (
	"context"

	"github.com/jedp/fptv/internal/logger"
)

// Removal reasons tracked by the pruner for observability.
const (
	ReasonUnknownMux        = "unknown_mux"
	ReasonWrongNetwork      = "wrong_network"
	ReasonMuxDisabled       = "mux_disabled"
	ReasonMuxBadScan        = "mux_bad_scan"
	ReasonServiceMissingMux = "service_missing_mux"
	ReasonServiceInvalid    = "service_uuid_invalid"
)

// PruneStats summarizes one pruning pass.
type PruneStats struct {
	ChannelsChecked int
	LinksRemoved    int
	ChannelsTrimmed int
	ChannelsDeleted int
	Failed          int
	RemovalReasons  map[string]int
}

// Pruner is the final safety net: it strips channel->service links
// that point at unhealthy hardware and deletes channels left with no
// valid link. Dedup and reconciliation can run before health data has
// fully settled; this pass restores the invariants afterwards.
type Pruner struct {
	api    API
	dryRun bool
}

// NewPruner builds a pruner.
func NewPruner(api API, dryRun bool) *Pruner {
	return &Pruner{api: api, dryRun: dryRun}
}

// Prune re-validates every channel's service links against the health
// map. Surviving channels are re-saved with the trimmed list; channels
// whose every link was invalid are deleted. allMuxUUIDs is the set of
// every mux on the backend regardless of network, used to distinguish
// a vanished mux from one on a foreign network.
func (p *Pruner) Prune(ctx context.Context, health HealthMap, serviceMux map[string]string, allMuxUUIDs map[string]bool) PruneStats {
	stats := PruneStats{RemovalReasons: make(map[string]int)}

	channels, err := p.api.ListChannels(ctx)
	if err != nil {
		logger.Errorf("Pruner: channel grid failed: %v", err)
		stats.Failed++
		return stats
	}

	for _, ch := range channels {
		if ch.UUID == "" {
			continue
		}
		stats.ChannelsChecked++

		var valid []string
		removed := 0
		for _, svc := range ch.Services {
			if reason := p.validateLink(svc, health, serviceMux, allMuxUUIDs); reason != "" {
				logger.Debugf("Pruner: dropping link %s from channel %q: %s", svc, ch.Name, reason)
				stats.RemovalReasons[reason]++
				removed++
				continue
			}
			valid = append(valid, svc)
		}

		if removed == 0 {
			continue
		}
		stats.LinksRemoved += removed

		if len(valid) == 0 {
			if p.dryRun {
				logger.Infof("Pruner: [dry-run] would delete channel %q (%s), no valid links remain", ch.Name, ch.UUID)
				stats.ChannelsDeleted++
				continue
			}
			if err := p.api.DeleteIDNode(ctx, ch.UUID); err != nil {
				logger.Warnf("Pruner: delete failed for channel %q (%s): %v", ch.Name, ch.UUID, err)
				stats.Failed++
				continue
			}
			logger.Infof("Pruner: deleted channel %q (%s), no valid links remained", ch.Name, ch.UUID)
			stats.ChannelsDeleted++
			continue
		}

		if p.dryRun {
			logger.Infof("Pruner: [dry-run] would trim channel %q (%s) to %d services", ch.Name, ch.UUID, len(valid))
			stats.ChannelsTrimmed++
			continue
		}
		if err := p.api.SaveIDNodeParams(ctx, ch.UUID, "channel",
			map[string]interface{}{"services": valid}); err != nil {
			logger.Warnf("Pruner: trim save failed for channel %q (%s): %v", ch.Name, ch.UUID, err)
			stats.Failed++
			continue
		}
		logger.Infof("Pruner: trimmed channel %q (%s) from %d to %d services",
			ch.Name, ch.UUID, len(ch.Services), len(valid))
		stats.ChannelsTrimmed++
	}

	logger.Infof("Pruner: checked=%d links-removed=%d trimmed=%d deleted=%d failed=%d reasons=%v",
		stats.ChannelsChecked, stats.LinksRemoved, stats.ChannelsTrimmed,
		stats.ChannelsDeleted, stats.Failed, stats.RemovalReasons)
	return stats
}

// validateLink returns "" for a healthy link, or the removal reason.
func (p *Pruner) validateLink(serviceUUID string, health HealthMap, serviceMux map[string]string, allMuxUUIDs map[string]bool) string {
	if serviceUUID == "" {
		return ReasonServiceInvalid
	}
	muxUUID, known := serviceMux[serviceUUID]
	if !known {
		return ReasonServiceInvalid
	}
	if muxUUID == "" {
		return ReasonServiceMissingMux
	}
	rec, ok := health[muxUUID]
	if !ok {
		if allMuxUUIDs[muxUUID] {
			return ReasonWrongNetwork
		}
		return ReasonUnknownMux
	}
	if !rec.Enabled {
		return ReasonMuxDisabled
	}
	if !rec.Good() {
		return ReasonMuxBadScan
	}
	return ""
}
