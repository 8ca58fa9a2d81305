package tvh

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestBreakerOpensAfterThreshold(t *testing.T) {
	var b breaker

	for i := 0; i < breakerFailureThreshold-1; i++ {
		b.recordFailure()
		if !b.allow() {
			t.Fatalf("circuit opened after %d failures, threshold is %d", i+1, breakerFailureThreshold)
		}
	}

	b.recordFailure()
	if b.currentState() != circuitOpen {
		t.Errorf("expected open state, got %v", b.currentState())
	}
	if b.allow() {
		t.Error("open circuit should reject requests")
	}
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	var b breaker

	for i := 0; i < breakerFailureThreshold-1; i++ {
		b.recordFailure()
	}
	b.recordSuccess()
	b.recordFailure()

	if b.currentState() != circuitClosed {
		t.Errorf("expected closed state after success reset, got %v", b.currentState())
	}
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	var b breaker
	for i := 0; i < breakerFailureThreshold; i++ {
		b.recordFailure()
	}

	// Backdate the last failure past the reset timeout so the next
	// request is let through as a probe.
	b.mu.Lock()
	b.lastFailure = time.Now().Add(-breakerResetTimeout - time.Second)
	b.mu.Unlock()

	if !b.allow() {
		t.Fatal("expected probe request after reset timeout")
	}
	if b.currentState() != circuitHalfOpen {
		t.Fatalf("expected half-open state, got %v", b.currentState())
	}

	b.recordSuccess()
	if b.currentState() != circuitHalfOpen {
		t.Errorf("one success should not close the circuit yet, got %v", b.currentState())
	}
	b.recordSuccess()
	if b.currentState() != circuitClosed {
		t.Errorf("expected closed state after %d successes, got %v", breakerSuccessThreshold, b.currentState())
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	var b breaker
	for i := 0; i < breakerFailureThreshold; i++ {
		b.recordFailure()
	}
	b.mu.Lock()
	b.lastFailure = time.Now().Add(-breakerResetTimeout - time.Second)
	b.mu.Unlock()

	if !b.allow() {
		t.Fatal("expected probe request after reset timeout")
	}
	b.recordFailure()

	if b.currentState() != circuitOpen {
		t.Errorf("failed probe should reopen the circuit, got %v", b.currentState())
	}
	if b.allow() {
		t.Error("reopened circuit should reject requests")
	}
}

func TestClientFailsFastWhenCircuitOpen(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", "")

	// Two full read cycles exhaust the failure threshold: each GET
	// records one failure per attempt.
	var out map[string]interface{}
	for i := 0; i < 2; i++ {
		if err := client.GetJSON(context.Background(), "/api/status", nil, &out); err == nil {
			t.Fatal("expected error from failing backend")
		}
	}
	if client.breaker.currentState() != circuitOpen {
		t.Fatalf("expected open circuit after repeated 5xx, got %v", client.breaker.currentState())
	}

	before := calls.Load()
	err := client.GetJSON(context.Background(), "/api/status", nil, &out)
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}
	if calls.Load() != before {
		t.Error("open circuit should not issue requests")
	}

	if _, _, err := client.PostForm(context.Background(), "/api/mpegts/network/scan", nil); !errors.Is(err, ErrBackendUnavailable) {
		t.Errorf("expected ErrBackendUnavailable from PostForm, got %v", err)
	}
}
