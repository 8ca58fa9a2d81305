package scan

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/jedp/fptv/internal/logger"
	"github.com/jedp/fptv/internal/tvh"
)

// ReconcileStats summarizes one service->channel reconciliation pass.
type ReconcileStats struct {
	Created        int
	AlreadyMapped  int
	SkippedUnnamed int
	Failed         int
}

// Reconciler creates one channel per newly discovered, named service.
// Pure set-addition: it never deletes or merges.
type Reconciler struct {
	api    API
	dryRun bool
}

// NewReconciler builds a reconciler.
func NewReconciler(api API, dryRun bool) *Reconciler {
	return &Reconciler{api: api, dryRun: dryRun}
}

// Reconcile lists services and channels and creates a channel for
// every unreferenced service with a resolvable name. Services without
// a name are skipped so junk entries never reach the channel list;
// the name usually appears on a later pass once PSIP data lands.
func (r *Reconciler) Reconcile(ctx context.Context) ReconcileStats {
	stats := ReconcileStats{}

	services, err := r.api.ListServices(ctx)
	if err != nil {
		logger.Errorf("Reconciler: service list failed: %v", err)
		stats.Failed++
		return stats
	}
	channels, err := r.api.ListChannels(ctx)
	if err != nil {
		logger.Errorf("Reconciler: channel grid failed: %v", err)
		stats.Failed++
		return stats
	}

	mapped := make(map[string]bool)
	for _, ch := range channels {
		for _, svc := range ch.Services {
			if svc != "" {
				mapped[svc] = true
			}
		}
	}

	for _, svc := range services {
		uuid := svc.Identifier()
		if uuid == "" {
			continue
		}
		if mapped[uuid] {
			stats.AlreadyMapped++
			continue
		}

		name := r.resolveName(ctx, svc)
		if name == "" {
			logger.Debugf("Reconciler: skipping unnamed service %s", uuid)
			stats.SkippedUnnamed++
			continue
		}

		if r.dryRun {
			logger.Infof("Reconciler: [dry-run] would create channel %q for service %s", name, uuid)
			stats.Created++
			continue
		}
		if _, err := r.api.CreateChannel(ctx, name, uuid); err != nil {
			logger.Warnf("Reconciler: channel create failed for %q (%s): %v", name, uuid, err)
			stats.Failed++
			continue
		}
		logger.Infof("Reconciler: created channel %q for service %s", name, uuid)
		stats.Created++
	}

	logger.Infof("Reconciler: created=%d already-mapped=%d skipped-unnamed=%d failed=%d",
		stats.Created, stats.AlreadyMapped, stats.SkippedUnnamed, stats.Failed)
	return stats
}

// resolveName tries name sources in order: the broadcast name param,
// the direct name field, the generic text field (stripping the
// "Network/Freq/" prefix builds prepend there), then a full parameter
// load as a last resort.
func (r *Reconciler) resolveName(ctx context.Context, svc tvh.Service) string {
	if name := strings.TrimSpace(svc.ParamValue("svcname")); name != "" {
		return name
	}
	if name := strings.TrimSpace(svc.SvcName); name != "" {
		return name
	}
	if name := strings.TrimSpace(svc.Name); name != "" {
		return name
	}
	if name := stripLocationPrefix(strings.TrimSpace(svc.Text)); name != "" {
		return name
	}

	uuid := svc.Identifier()
	entry, err := r.api.LoadIDNode(ctx, uuid)
	if err != nil {
		logger.Debugf("Reconciler: name fallback load failed for %s: %v", uuid, err)
		return ""
	}
	for _, id := range []string{"svcname", "name"} {
		if p := entry.ParamValue(id); p != nil {
			var s string
			if err := json.Unmarshal(p, &s); err == nil {
				if s = strings.TrimSpace(s); s != "" {
					return s
				}
			}
		}
	}
	return stripLocationPrefix(strings.TrimSpace(entry.Text))
}

// stripLocationPrefix removes a "Network/Frequency/" style prefix from
// a generic label, keeping only the trailing service name.
func stripLocationPrefix(s string) string {
	if idx := strings.LastIndexByte(s, '/'); idx >= 0 {
		return strings.TrimSpace(s[idx+1:])
	}
	return s
}
