package scan

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/jedp/fptv/internal/logger"
	"github.com/jedp/fptv/internal/tvh"
)

// DedupeStats summarizes one deduplication pass.
type DedupeStats struct {
	MergedGroups    int
	UpdatedChannels int
	DeletedChannels int
	Failed          int
}

// Deduplicator merges channels that share a display name into one
// canonical channel. The most failure-prone phase: it probes live
// streams and issues backend writes, so every per-item failure is
// tolerated and counted.
type Deduplicator struct {
	api          API
	cleaner      *Cleaner
	probeTimeout time.Duration
	dryRun       bool
}

// NewDeduplicator builds a deduplicator. The cleaner supplies the
// placeholder-name set; probeTimeout bounds each stream probe.
func NewDeduplicator(api API, cleaner *Cleaner, probeTimeout time.Duration, dryRun bool) *Deduplicator {
	return &Deduplicator{api: api, cleaner: cleaner, probeTimeout: probeTimeout, dryRun: dryRun}
}

// channelScore orders candidates for canonical selection. Higher good
// service count wins, then enabled, then the lowest (major, minor)
// number, then the larger total service count.
type channelScore struct {
	goodServices  int
	enabled       bool
	hasNumber     bool
	major, minor  int
	totalServices int
}

func scoreChannel(ch tvh.Channel, health HealthMap, serviceMux map[string]string) channelScore {
	major, minor, ok := ch.Number.MajorMinor()
	if !ok {
		major, minor = 1<<30, 1<<30
	}
	return channelScore{
		goodServices:  health.GoodCount(ch.Services, serviceMux),
		enabled:       ch.Enabled.Bool(),
		hasNumber:     ok,
		major:         major,
		minor:         minor,
		totalServices: len(ch.Services),
	}
}

// better reports whether a outranks b.
func (a channelScore) better(b channelScore) bool {
	if a.goodServices != b.goodServices {
		return a.goodServices > b.goodServices
	}
	if a.enabled != b.enabled {
		return a.enabled
	}
	if a.major != b.major {
		return a.major < b.major
	}
	if a.minor != b.minor {
		return a.minor < b.minor
	}
	return a.totalServices > b.totalServices
}

// Dedupe groups channels by trimmed name and collapses each group of
// duplicates onto its best-scoring member, merging all services onto
// it in first-seen order.
func (d *Deduplicator) Dedupe(ctx context.Context, health HealthMap, serviceMux map[string]string) DedupeStats {
	stats := DedupeStats{}

	channels, err := d.api.ListChannels(ctx)
	if err != nil {
		logger.Errorf("Dedupe: channel grid failed: %v", err)
		stats.Failed++
		return stats
	}

	groups := make(map[string][]tvh.Channel)
	var names []string
	for _, ch := range channels {
		name := strings.TrimSpace(ch.Name)
		if ch.UUID == "" || d.cleaner.IsPlaceholder(name) {
			continue
		}
		// Only appliance-managed channels; hand-curated ones keep
		// their name and services untouched.
		if !ch.AutoName.Bool() || !ch.EPGAuto.Bool() {
			continue
		}
		if _, seen := groups[name]; !seen {
			names = append(names, name)
		}
		groups[name] = append(groups[name], ch)
	}
	sort.Strings(names)

	for _, name := range names {
		group := groups[name]
		if len(group) < 2 {
			continue
		}
		if d.dedupeGroup(ctx, name, group, health, serviceMux, &stats) {
			stats.MergedGroups++
		}
	}

	logger.Infof("Dedupe: merged %d groups, updated %d canonical channels, deleted %d duplicates, %d failures",
		stats.MergedGroups, stats.UpdatedChannels, stats.DeletedChannels, stats.Failed)
	return stats
}

func (d *Deduplicator) dedupeGroup(ctx context.Context, name string, group []tvh.Channel,
	health HealthMap, serviceMux map[string]string, stats *DedupeStats) bool {

	sorted := make([]tvh.Channel, len(group))
	copy(sorted, group)
	sort.SliceStable(sorted, func(i, j int) bool {
		return scoreChannel(sorted[i], health, serviceMux).better(scoreChannel(sorted[j], health, serviceMux))
	})

	canonical := d.pickCanonical(ctx, sorted, health, serviceMux)

	// Merge services in first-seen order across the whole group,
	// canonical first, dropping duplicates.
	seen := make(map[string]bool)
	var merged []string
	appendServices := func(ch tvh.Channel) {
		for _, svc := range ch.Services {
			if svc != "" && !seen[svc] {
				seen[svc] = true
				merged = append(merged, svc)
			}
		}
	}
	appendServices(canonical)
	for _, ch := range sorted {
		if ch.UUID != canonical.UUID {
			appendServices(ch)
		}
	}

	if d.dryRun {
		logger.Infof("Dedupe: [dry-run] would keep %q (%s) with %d merged services and delete %d duplicates",
			name, canonical.UUID, len(merged), len(sorted)-1)
		stats.UpdatedChannels++
		stats.DeletedChannels += len(sorted) - 1
		return true
	}

	if err := d.api.SaveIDNodeParams(ctx, canonical.UUID, "channel",
		map[string]interface{}{"services": merged}); err != nil {
		logger.Warnf("Dedupe: merge save failed for %q (%s): %v", name, canonical.UUID, err)
		stats.Failed++
		return false
	}
	stats.UpdatedChannels++

	for _, ch := range sorted {
		if ch.UUID == canonical.UUID {
			continue
		}
		if err := d.api.DeleteIDNode(ctx, ch.UUID); err != nil {
			logger.Warnf("Dedupe: delete failed for duplicate %q (%s): %v", name, ch.UUID, err)
			stats.Failed++
			continue
		}
		stats.DeletedChannels++
	}
	logger.Infof("Dedupe: %q -> canonical %s with %d services", name, canonical.UUID, len(merged))
	return true
}

// pickCanonical returns the best group member. When scoring leaves the
// top two tied on good service count, a short live-stream probe of
// each breaks the tie in favor of the one that actually streams.
func (d *Deduplicator) pickCanonical(ctx context.Context, sorted []tvh.Channel,
	health HealthMap, serviceMux map[string]string) tvh.Channel {

	best := sorted[0]
	if len(sorted) < 2 || d.dryRun {
		return best
	}

	second := sorted[1]
	bestScore := scoreChannel(best, health, serviceMux)
	secondScore := scoreChannel(second, health, serviceMux)
	if bestScore.goodServices != secondScore.goodServices {
		return best
	}

	logger.Debugf("Dedupe: probing streams to break tie between %s and %s", best.UUID, second.UUID)
	bestStreams := d.api.ProbeStream(ctx, best.UUID, d.probeTimeout)
	secondStreams := d.api.ProbeStream(ctx, second.UUID, d.probeTimeout)
	if !bestStreams && secondStreams {
		logger.Infof("Dedupe: tie-break prefers %s (streams) over %s (silent)", second.UUID, best.UUID)
		return second
	}
	return best
}
