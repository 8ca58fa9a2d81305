package tvh

import (
	"errors"
	"sync"
	"time"
)

// ErrBackendUnavailable is returned without touching the network while
// the circuit is open.
var ErrBackendUnavailable = errors.New("tvh: backend unavailable, circuit open")

type circuitState int

const (
	circuitClosed circuitState = iota
	circuitOpen
	circuitHalfOpen
)

func (s circuitState) String() string {
	switch s {
	case circuitClosed:
		return "closed"
	case circuitOpen:
		return "open"
	case circuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

const (
	breakerFailureThreshold = 5
	breakerResetTimeout     = 30 * time.Second
	breakerSuccessThreshold = 2
)

// breaker stops requests to a backend that keeps failing. After
// breakerFailureThreshold consecutive failures the circuit opens and
// calls fail fast; after breakerResetTimeout a probe request is let
// through, and breakerSuccessThreshold successes close it again.
type breaker struct {
	mu          sync.Mutex
	state       circuitState
	failures    int
	successes   int
	lastFailure time.Time
}

func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case circuitOpen:
		if time.Since(b.lastFailure) >= breakerResetTimeout {
			b.state = circuitHalfOpen
			b.successes = 0
			return true
		}
		return false
	default:
		return true
	}
}

func (b *breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case circuitClosed:
		b.failures = 0
	case circuitHalfOpen:
		b.successes++
		if b.successes >= breakerSuccessThreshold {
			b.state = circuitClosed
			b.failures = 0
			b.successes = 0
		}
	case circuitOpen:
		// A success slipping through an open circuit means the reset
		// window raced; treat it as a probe.
		b.state = circuitHalfOpen
		b.successes = 1
	}
}

func (b *breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.successes = 0
	b.lastFailure = time.Now()

	switch b.state {
	case circuitClosed:
		if b.failures >= breakerFailureThreshold {
			b.state = circuitOpen
		}
	case circuitHalfOpen:
		b.state = circuitOpen
	}
}

func (b *breaker) currentState() circuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
