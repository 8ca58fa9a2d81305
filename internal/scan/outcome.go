// Package scan implements the multi-phase scan and reconciliation
// pipeline: provisioning RF tuning points, waiting for hardware scan
// convergence, mapping discovered services to channels, deduplicating
// same-named channels and pruning links to unhealthy hardware.
package scan

import "fmt"

// OutcomeKind classifies the result of one per-item operation.
type OutcomeKind int

const (
	OutcomeOK OutcomeKind = iota
	OutcomeSkipped
	OutcomeFailed
)

// Outcome is the typed result of a single mutation or resolution.
// Per-item failures never abort a phase; they are collected into
// PhaseStats instead.
type Outcome struct {
	Kind   OutcomeKind
	Reason string
}

func OK() Outcome                        { return Outcome{Kind: OutcomeOK} }
func Skipped(reason string) Outcome      { return Outcome{Kind: OutcomeSkipped, Reason: reason} }
func Failed(reason string) Outcome       { return Outcome{Kind: OutcomeFailed, Reason: reason} }
func Failedf(format string, args ...interface{}) Outcome {
	return Outcome{Kind: OutcomeFailed, Reason: fmt.Sprintf(format, args...)}
}

// PhaseStats aggregates outcomes across one phase's item loop.
type PhaseStats struct {
	OK      int
	Skipped int
	Failed  int
	Reasons map[string]int
}

// NewPhaseStats returns an empty stats collector.
func NewPhaseStats() *PhaseStats {
	return &PhaseStats{Reasons: make(map[string]int)}
}

// Record counts an outcome, tracking skip/failure reasons.
func (s *PhaseStats) Record(o Outcome) {
	switch o.Kind {
	case OutcomeOK:
		s.OK++
	case OutcomeSkipped:
		s.Skipped++
	case OutcomeFailed:
		s.Failed++
	}
	if o.Reason != "" {
		s.Reasons[o.Reason]++
	}
}

// Total returns the number of recorded outcomes.
func (s *PhaseStats) Total() int {
	return s.OK + s.Skipped + s.Failed
}

func (s *PhaseStats) String() string {
	return fmt.Sprintf("ok=%d skipped=%d failed=%d", s.OK, s.Skipped, s.Failed)
}
