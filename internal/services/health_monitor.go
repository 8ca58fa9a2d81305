package services

import (
	"context"
	"sync"
	"time"

	"github.com/jedp/fptv/internal/logger"
	"github.com/jedp/fptv/internal/scan"
)

// BackendHealth is a snapshot of TVHeadend reachability.
type BackendHealth struct {
	Healthy          bool      `json:"healthy"`
	LastCheck        time.Time `json:"last_check"`
	LastError        string    `json:"last_error,omitempty"`
	ConsecutiveFails int       `json:"consecutive_fails"`
}

// HealthMonitorService periodically probes the TVHeadend backend so the
// health endpoint can report reachability without making a live call
// per request.
type HealthMonitorService struct {
	api        scan.API
	shutdownCh chan struct{}
	wg         sync.WaitGroup

	checkInterval time.Duration

	mu     sync.Mutex
	health BackendHealth
}

func NewHealthMonitorService(api scan.API) *HealthMonitorService {
	return &HealthMonitorService{
		api:           api,
		shutdownCh:    make(chan struct{}),
		checkInterval: time.Minute,
	}
}

// Start begins background health checks.
func (h *HealthMonitorService) Start() {
	h.wg.Add(1)
	go h.run()
	logger.Infof("Health monitor started (check interval: %s)", h.checkInterval)
}

// Shutdown stops the health monitor and waits for it to finish.
func (h *HealthMonitorService) Shutdown() {
	close(h.shutdownCh)
	h.wg.Wait()
}

// Status returns the last observed backend health.
func (h *HealthMonitorService) Status() BackendHealth {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.health
}

func (h *HealthMonitorService) run() {
	defer h.wg.Done()

	h.Check()

	ticker := time.NewTicker(h.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.shutdownCh:
			return
		case <-ticker.C:
			h.Check()
		}
	}
}

// Check probes the backend once and records the result.
func (h *HealthMonitorService) Check() BackendHealth {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.api.HardwareTree(ctx, "root")

	h.mu.Lock()
	defer h.mu.Unlock()

	h.health.LastCheck = time.Now().UTC()
	if err != nil {
		h.health.Healthy = false
		h.health.LastError = err.Error()
		h.health.ConsecutiveFails++
		if h.health.ConsecutiveFails == 1 || h.health.ConsecutiveFails%10 == 0 {
			logger.Warnf("Health monitor: backend unreachable (%d consecutive): %v", h.health.ConsecutiveFails, err)
		}
	} else {
		if !h.health.Healthy && h.health.ConsecutiveFails > 0 {
			logger.Infof("Health monitor: backend reachable again after %d failed check(s)", h.health.ConsecutiveFails)
		}
		h.health.Healthy = true
		h.health.LastError = ""
		h.health.ConsecutiveFails = 0
	}
	return h.health
}
