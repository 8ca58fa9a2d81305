package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jedp/fptv/internal/domain"
	"github.com/jedp/fptv/internal/eventbus"
	"github.com/jedp/fptv/internal/logger"
)

// MetricsService exposes Prometheus metrics for the scan engine.
type MetricsService struct {
	eventBus *eventbus.EventBus
	registry *prometheus.Registry

	// Counters
	scansTotal         *prometheus.CounterVec
	channelsCreated    prometheus.Counter
	channelsMerged     prometheus.Counter
	channelsDeleted    prometheus.Counter
	linksPruned        *prometheus.CounterVec
	notificationsTotal *prometheus.CounterVec

	// Gauges
	scanActive   prometheus.Gauge
	muxesActive  prometheus.Gauge
	muxesPending prometheus.Gauge
	muxesOK      prometheus.Gauge
	muxesFail    prometheus.Gauge

	// Histograms
	scanDuration prometheus.Histogram

	mu         sync.Mutex
	startTimes map[string]time.Time
}

// NewMetricsService creates and registers scan metrics on a private
// registry so multiple instances never collide.
func NewMetricsService(eb *eventbus.EventBus) *MetricsService {
	m := &MetricsService{
		eventBus:   eb,
		registry:   prometheus.NewRegistry(),
		startTimes: make(map[string]time.Time),

		scansTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fptv_scans_total",
				Help: "Total number of scan runs by outcome",
			},
			[]string{"outcome"}, // completed, failed
		),

		channelsCreated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "fptv_channels_created_total",
				Help: "Total number of channels created by reconciliation",
			},
		),

		channelsMerged: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "fptv_channels_merged_total",
				Help: "Total number of duplicate channel groups merged",
			},
		),

		channelsDeleted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "fptv_channels_deleted_total",
				Help: "Total number of channels deleted by cleanup, dedup and pruning",
			},
		),

		linksPruned: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fptv_service_links_pruned_total",
				Help: "Total number of channel service links removed by reason",
			},
			[]string{"reason"},
		),

		notificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fptv_notifications_total",
				Help: "Total number of notifications sent by outcome",
			},
			[]string{"outcome"}, // sent, failed
		),

		scanActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "fptv_scan_active",
				Help: "Whether a scan run is currently in progress (0 or 1)",
			},
		),

		muxesActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "fptv_muxes_active",
				Help: "Muxes currently being scanned",
			},
		),

		muxesPending: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "fptv_muxes_pending",
				Help: "Muxes queued for scanning",
			},
		),

		muxesOK: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "fptv_muxes_ok",
				Help: "Muxes whose last scan succeeded",
			},
		),

		muxesFail: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "fptv_muxes_fail",
				Help: "Muxes whose last scan failed",
			},
		),

		scanDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "fptv_scan_duration_seconds",
				Help:    "Duration of scan runs in seconds",
				Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10s to ~3 hours
			},
		),
	}

	m.registry.MustRegister(
		m.scansTotal,
		m.channelsCreated,
		m.channelsMerged,
		m.channelsDeleted,
		m.linksPruned,
		m.notificationsTotal,
		m.scanActive,
		m.muxesActive,
		m.muxesPending,
		m.muxesOK,
		m.muxesFail,
		m.scanDuration,
	)

	return m
}

// Start subscribes to events and updates metrics.
func (m *MetricsService) Start() {
	m.eventBus.Subscribe(domain.ScanStarted, m.handleScanStarted)
	m.eventBus.Subscribe(domain.ScanProgress, m.handleScanProgress)
	m.eventBus.Subscribe(domain.ScanCompleted, m.handleScanCompleted)
	m.eventBus.Subscribe(domain.ScanFailed, m.handleScanFailed)
	m.eventBus.Subscribe(domain.ChannelsReconciled, m.handleChannelsReconciled)
	m.eventBus.Subscribe(domain.ChannelsDeduped, m.handleChannelsDeduped)
	m.eventBus.Subscribe(domain.ChannelsCleaned, m.handleChannelsCleaned)
	m.eventBus.Subscribe(domain.ChannelsPruned, m.handleChannelsPruned)
	m.eventBus.Subscribe(domain.NotificationSent, m.handleNotificationSent)
	m.eventBus.Subscribe(domain.NotificationFailed, m.handleNotificationFailed)

	logger.Infof("Metrics service started")
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func (m *MetricsService) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the private registry, used by tests to gather.
func (m *MetricsService) Registry() *prometheus.Registry {
	return m.registry
}

// Event handlers

func (m *MetricsService) handleScanStarted(event domain.Event) {
	m.scanActive.Set(1)
	if runID, ok := event.GetString("run_id"); ok {
		m.mu.Lock()
		m.startTimes[runID] = event.CreatedAt
		m.mu.Unlock()
	}
}

func (m *MetricsService) handleScanProgress(event domain.Event) {
	data, ok := event.ParsePhaseEventData()
	if !ok {
		return
	}
	m.muxesActive.Set(float64(data.Active))
	m.muxesPending.Set(float64(data.Pending))
	m.muxesOK.Set(float64(data.OK))
	m.muxesFail.Set(float64(data.Fail))
}

func (m *MetricsService) handleScanCompleted(event domain.Event) {
	m.scansTotal.WithLabelValues("completed").Inc()
	m.scanActive.Set(0)
	m.observeDuration(event)
}

func (m *MetricsService) handleScanFailed(event domain.Event) {
	m.scansTotal.WithLabelValues("failed").Inc()
	m.scanActive.Set(0)
	m.observeDuration(event)
}

func (m *MetricsService) observeDuration(event domain.Event) {
	runID, ok := event.GetString("run_id")
	if !ok {
		return
	}
	m.mu.Lock()
	start, found := m.startTimes[runID]
	delete(m.startTimes, runID)
	m.mu.Unlock()
	if found {
		m.scanDuration.Observe(event.CreatedAt.Sub(start).Seconds())
	}
}

func (m *MetricsService) handleChannelsReconciled(event domain.Event) {
	m.channelsCreated.Add(float64(event.GetInt64Or("created", 0)))
}

func (m *MetricsService) handleChannelsDeduped(event domain.Event) {
	m.channelsMerged.Add(float64(event.GetInt64Or("merged_groups", 0)))
	m.channelsDeleted.Add(float64(event.GetInt64Or("deleted", 0)))
}

func (m *MetricsService) handleChannelsCleaned(event domain.Event) {
	m.channelsDeleted.Add(float64(event.GetInt64Or("deleted", 0)))
}

func (m *MetricsService) handleChannelsPruned(event domain.Event) {
	m.channelsDeleted.Add(float64(event.GetInt64Or("channels_deleted", 0)))
	if reasons, ok := event.EventData["reasons"].(map[string]interface{}); ok {
		for reason, count := range reasons {
			switch n := count.(type) {
			case float64:
				m.linksPruned.WithLabelValues(reason).Add(n)
			case int:
				m.linksPruned.WithLabelValues(reason).Add(float64(n))
			case int64:
				m.linksPruned.WithLabelValues(reason).Add(float64(n))
			}
		}
	}
}

func (m *MetricsService) handleNotificationSent(event domain.Event) {
	m.notificationsTotal.WithLabelValues("sent").Inc()
}

func (m *MetricsService) handleNotificationFailed(event domain.Event) {
	m.notificationsTotal.WithLabelValues("failed").Inc()
}
