package scan

import "github.com/jedp/fptv/internal/tvh"

// HealthRecord is the per-mux health verdict derived from the live
// mux grid. Not persisted; recomputed every run.
type HealthRecord struct {
	Enabled    bool
	ScanResult tvh.ScanResult
}

// Good reports whether a mux is usable: enabled with a successful scan.
func (r HealthRecord) Good() bool {
	return r.Enabled && r.ScanResult == tvh.ScanResultOK
}

// HealthMap maps mux uuid to its health record for the target network.
type HealthMap map[string]HealthRecord

// BuildHealthMap classifies every mux belonging to the network,
// matched by uuid or display name since backend versions report one
// or the other.
func BuildHealthMap(muxes []tvh.Mux, netUUID, netName string) HealthMap {
	health := make(HealthMap)
	for _, m := range muxes {
		if m.UUID == "" || !m.BelongsTo(netUUID, netName) {
			continue
		}
		health[m.UUID] = HealthRecord{
			Enabled:    m.Enabled.Bool(),
			ScanResult: m.ScanResult,
		}
	}
	return health
}

// GoodCount returns how many of the service uuids resolve, via the
// service->mux map, to a good mux.
func (h HealthMap) GoodCount(serviceUUIDs []string, serviceMux map[string]string) int {
	count := 0
	for _, svc := range serviceUUIDs {
		muxUUID, ok := serviceMux[svc]
		if !ok {
			continue
		}
		if rec, ok := h[muxUUID]; ok && rec.Good() {
			count++
		}
	}
	return count
}
