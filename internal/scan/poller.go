package scan

import (
	"context"
	"fmt"
	"time"

	"github.com/jedp/fptv/internal/clock"
	"github.com/jedp/fptv/internal/logger"
	"github.com/jedp/fptv/internal/tvh"
)

// MuxStates counts the scan progress of a network's muxes.
type MuxStates struct {
	Active  int `json:"active"`
	Pending int `json:"pending"`
	OK      int `json:"ok"`
	Fail    int `json:"fail"`
	Idle    int `json:"idle"`
	Total   int `json:"total"`
}

// Settled reports whether no mux is scanning or queued to scan.
func (s MuxStates) Settled() bool {
	return s.Active+s.Pending == 0
}

func (s MuxStates) String() string {
	return fmt.Sprintf("ACTIVE: %d, PENDING: %d, OK: %d, FAIL: %d, IDLE: %d, TOTAL: %d",
		s.Active, s.Pending, s.OK, s.Fail, s.Idle, s.Total)
}

// CountMuxStates classifies every mux of the network by scan state
// and result.
func CountMuxStates(muxes []tvh.Mux, netUUID, netName string) MuxStates {
	var states MuxStates
	for _, m := range muxes {
		if !m.BelongsTo(netUUID, netName) {
			continue
		}
		states.Total++
		switch m.ScanState {
		case tvh.ScanStateActive:
			states.Active++
		case tvh.ScanStatePending:
			states.Pending++
		default:
			switch m.ScanResult {
			case tvh.ScanResultOK:
				states.OK++
			case tvh.ScanResultFail:
				states.Fail++
			default:
				states.Idle++
			}
		}
	}
	return states
}

// ErrPollTimeout is returned when the network does not settle in time.
// The orchestrator treats it as fatal for the whole run.
type ErrPollTimeout struct {
	Timeout time.Duration
	Last    MuxStates
}

func (e *ErrPollTimeout) Error() string {
	return fmt.Sprintf("scan did not settle within %s (last: %s)", e.Timeout, e.Last)
}

// Poller waits for a network's muxes to finish scanning.
type Poller struct {
	api      API
	clk      clock.Clock
	interval time.Duration
	timeout  time.Duration
}

// NewPoller builds a poller with the configured interval and timeout.
func NewPoller(api API, clk clock.Clock, interval, timeout time.Duration) *Poller {
	return &Poller{api: api, clk: clk, interval: interval, timeout: timeout}
}

// Wait polls the mux grid until Active+Pending reaches zero, calling
// progress after every poll. Returns ErrPollTimeout when the deadline
// passes first, or the context error on cancellation.
func (p *Poller) Wait(ctx context.Context, netUUID, netName string, progress func(MuxStates)) (MuxStates, error) {
	start := p.clk.Now()
	var last MuxStates

	for {
		if elapsed := p.clk.Now().Sub(start); elapsed > p.timeout {
			logger.Errorf("Poller: timed out after %s waiting for scan to settle (%s)", elapsed.Round(time.Second), last)
			return last, &ErrPollTimeout{Timeout: p.timeout, Last: last}
		}

		muxes, err := p.api.ListMuxes(ctx)
		if err != nil {
			// Transient grid read failures shouldn't end the wait;
			// the adapter has already retried.
			logger.Warnf("Poller: mux grid read failed: %v", err)
		} else {
			last = CountMuxStates(muxes, netUUID, netName)
			logger.Infof("Poller: %s", last)
			if progress != nil {
				progress(last)
			}
			if last.Settled() {
				return last, nil
			}
		}

		if err := p.clk.Sleep(ctx, p.interval); err != nil {
			return last, err
		}
	}
}
