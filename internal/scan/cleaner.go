package scan

import (
	"context"
	"strings"

	"github.com/jedp/fptv/internal/logger"
)

// Cleaner deletes orphaned and placeholder-named channels. Two passes
// run per pipeline: one before reconciliation (pre-existing orphans)
// and one after (placeholder names from stale backend state).
type Cleaner struct {
	api          API
	placeholders map[string]bool
	dryRun       bool
}

// NewCleaner builds a cleaner. placeholderNames are treated as junk in
// addition to blank names.
func NewCleaner(api API, placeholderNames []string, dryRun bool) *Cleaner {
	placeholders := make(map[string]bool, len(placeholderNames)+1)
	placeholders[""] = true
	for _, name := range placeholderNames {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			placeholders[trimmed] = true
		}
	}
	return &Cleaner{api: api, placeholders: placeholders, dryRun: dryRun}
}

// IsPlaceholder reports whether a trimmed channel name marks junk.
func (c *Cleaner) IsPlaceholder(name string) bool {
	return c.placeholders[strings.TrimSpace(name)]
}

// CleanOrphans deletes channels with an empty services list.
func (c *Cleaner) CleanOrphans(ctx context.Context) *PhaseStats {
	return c.clean(ctx, "orphan", func(services []string, name string) bool {
		return len(services) == 0
	})
}

// CleanPlaceholders deletes channels whose name is blank or in the
// placeholder set.
func (c *Cleaner) CleanPlaceholders(ctx context.Context) *PhaseStats {
	return c.clean(ctx, "placeholder", func(services []string, name string) bool {
		return c.IsPlaceholder(name)
	})
}

func (c *Cleaner) clean(ctx context.Context, kind string, junk func(services []string, name string) bool) *PhaseStats {
	stats := NewPhaseStats()

	channels, err := c.api.ListChannels(ctx)
	if err != nil {
		logger.Errorf("Cleaner: channel grid failed: %v", err)
		stats.Record(Failedf("channel_grid_read: %v", err))
		return stats
	}

	for _, ch := range channels {
		if ch.UUID == "" || !junk(ch.Services, ch.Name) {
			continue
		}
		if c.dryRun {
			logger.Infof("Cleaner: [dry-run] would delete %s channel %q (%s)", kind, ch.Name, ch.UUID)
			stats.Record(OK())
			continue
		}
		if err := c.api.DeleteIDNode(ctx, ch.UUID); err != nil {
			logger.Warnf("Cleaner: delete failed for %s channel %q (%s): %v", kind, ch.Name, ch.UUID, err)
			stats.Record(Failedf("delete_channel: %v", err))
			continue
		}
		logger.Infof("Cleaner: deleted %s channel %q (%s)", kind, ch.Name, ch.UUID)
		stats.Record(OK())
	}
	return stats
}
