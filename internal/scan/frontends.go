package scan

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/jedp/fptv/internal/logger"
	"github.com/jedp/fptv/internal/tvh"
)

// hardwareTreeRoot is the id of the device tree's top node.
const hardwareTreeRoot = "root"

// FrontendMatcher decides whether a device-tree node is an ATSC
// terrestrial frontend. Immutable; configured at construction.
type FrontendMatcher struct {
	// ClassSubstrings match against the node's device class.
	ClassSubstrings []string
	// LabelSubstrings match against the node's display label.
	LabelSubstrings []string
}

// DefaultFrontendMatcher covers the class names and labels seen across
// linuxdvb and generic builds.
func DefaultFrontendMatcher() FrontendMatcher {
	return FrontendMatcher{
		ClassSubstrings: []string{"linuxdvb_frontend_atsc_t", "frontend_atsc"},
		LabelSubstrings: []string{"atsc-t", "atsc_t", "atsc (t", "#atsc"},
	}
}

// Matches applies the heuristic to one node.
func (m FrontendMatcher) Matches(node tvh.DeviceNode) bool {
	class := strings.ToLower(node.Class)
	for _, s := range m.ClassSubstrings {
		if s != "" && strings.Contains(class, s) {
			return true
		}
	}
	label := strings.ToLower(node.Text)
	for _, s := range m.LabelSubstrings {
		if s != "" && strings.Contains(label, s) {
			return true
		}
	}
	return false
}

// FrontendStats summarizes one configurator pass.
type FrontendStats struct {
	Found     int
	Updated   int
	AlreadyOK int
	Errors    int
}

// FrontendConfigurator ensures physical tuner frontends are enabled
// and linked to the target network. Already-correct frontends produce
// zero writes, keeping the pass idempotent.
type FrontendConfigurator struct {
	api     API
	matcher FrontendMatcher
	dryRun  bool
}

// NewFrontendConfigurator builds a configurator with the given matcher.
func NewFrontendConfigurator(api API, matcher FrontendMatcher, dryRun bool) *FrontendConfigurator {
	return &FrontendConfigurator{api: api, matcher: matcher, dryRun: dryRun}
}

// Configure walks the hardware tree depth-first from the root and
// fixes up every matching frontend.
func (fc *FrontendConfigurator) Configure(ctx context.Context, netUUID string) FrontendStats {
	stats := FrontendStats{}
	visited := make(map[string]bool)
	fc.walk(ctx, hardwareTreeRoot, netUUID, visited, &stats)
	logger.Infof("Frontends: found=%d updated=%d already-ok=%d errors=%d",
		stats.Found, stats.Updated, stats.AlreadyOK, stats.Errors)
	return stats
}

func (fc *FrontendConfigurator) walk(ctx context.Context, nodeID, netUUID string, visited map[string]bool, stats *FrontendStats) {
	if visited[nodeID] {
		return
	}
	visited[nodeID] = true

	children, err := fc.api.HardwareTree(ctx, nodeID)
	if err != nil {
		logger.Debugf("Frontends: tree read failed at %s: %v", nodeID, err)
		return
	}

	for _, child := range children {
		if child.UUID == "" || visited[child.UUID] {
			continue
		}
		if fc.matcher.Matches(child) {
			stats.Found++
			fc.configureFrontend(ctx, child, netUUID, stats)
			visited[child.UUID] = true
			continue
		}
		if !child.Leaf {
			fc.walk(ctx, child.UUID, netUUID, visited, stats)
		}
	}
}

// configureFrontend loads the frontend's parameters and issues a
// single write setting enabled and the network link together when
// either is wrong.
func (fc *FrontendConfigurator) configureFrontend(ctx context.Context, node tvh.DeviceNode, netUUID string, stats *FrontendStats) {
	entry, err := fc.api.LoadIDNode(ctx, node.UUID)
	if err != nil {
		logger.Warnf("Frontends: load failed for %s (%s): %v", node.Text, node.UUID, err)
		stats.Errors++
		return
	}

	enabled := paramBool(entry, "enabled")
	networks := paramStringList(entry, "networks")

	linked := false
	for _, n := range networks {
		if n == netUUID {
			linked = true
			break
		}
	}

	if enabled && linked {
		stats.AlreadyOK++
		return
	}

	if !linked {
		networks = append(networks, netUUID)
	}

	if fc.dryRun {
		logger.Infof("Frontends: [dry-run] would enable %s and link network %s", node.Text, netUUID)
		stats.Updated++
		return
	}

	save := tvh.Node{
		"uuid":     node.UUID,
		"enabled":  true,
		"networks": networks,
	}
	if entry.Class != "" {
		save["class"] = entry.Class
	}
	if err := fc.api.SaveIDNode(ctx, save); err != nil {
		logger.Warnf("Frontends: save failed for %s: %v", node.Text, err)
		stats.Errors++
		return
	}
	logger.Infof("Frontends: enabled %s and linked network", node.Text)
	stats.Updated++
}

func paramBool(entry *tvh.IDNodeEntry, id string) bool {
	raw := entry.ParamValue(id)
	if raw == nil {
		return false
	}
	var b tvh.FlexBool
	if err := json.Unmarshal(raw, &b); err != nil {
		return false
	}
	return b.Bool()
}

func paramStringList(entry *tvh.IDNodeEntry, id string) []string {
	raw := entry.ParamValue(id)
	if raw == nil {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil && single != "" {
		return []string{single}
	}
	return nil
}
