package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "fraudmonitor"

// Refresh sources
const (
	SourceDashboard = "dashboard"
	SourceHeatmap   = "heatmap"
)

// Registry holds all metrics for the view service. A nil *Registry is valid
// and records nothing, which keeps components usable in tests without one.
type Registry struct {
	// Live stream metrics
	EventsReceived  *prometheus.CounterVec
	MalformedFrames prometheus.Counter
	Reconnects      prometheus.Counter
	LiveConnected   prometheus.Gauge

	// View state metrics
	AlertsRaised    prometheus.Counter
	AlertsDismissed prometheus.Counter
	HistorySize     prometheus.Gauge
	AlertCount      prometheus.Gauge

	// Refresh metrics
	RefreshDuration *prometheus.HistogramVec
	RefreshTotal    *prometheus.CounterVec

	// API metrics
	APIRequestDuration *prometheus.HistogramVec
	ViewSubscribers    prometheus.Gauge
}

// NewRegistry creates and registers all metrics on reg
func NewRegistry(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)
	r := &Registry{}
	r.initLiveMetrics(factory)
	r.initViewMetrics(factory)
	r.initRefreshMetrics(factory)
	r.initAPIMetrics(factory)
	return r
}

func (r *Registry) initLiveMetrics(f promauto.Factory) {
	r.EventsReceived = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "live",
		Name:      "events_received_total",
		Help:      "Live events received by event name",
	}, []string{"event"})

	r.MalformedFrames = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "live",
		Name:      "malformed_frames_total",
		Help:      "Live frames dropped because they could not be decoded",
	})

	r.Reconnects = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "live",
		Name:      "reconnects_total",
		Help:      "Reconnection attempts to the live stream",
	})

	r.LiveConnected = f.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "live",
		Name:      "connected",
		Help:      "1 while the live stream is connected",
	})
}

func (r *Registry) initViewMetrics(f promauto.Factory) {
	r.AlertsRaised = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "alerts",
		Name:      "raised_total",
		Help:      "Alerts raised from live transactions",
	})

	r.AlertsDismissed = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "alerts",
		Name:      "dismissed_total",
		Help:      "Alerts dismissed by analysts",
	})

	r.HistorySize = f.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "view",
		Name:      "history_size",
		Help:      "Transactions currently held in the history view",
	})

	r.AlertCount = f.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "view",
		Name:      "alert_count",
		Help:      "Alerts currently held in the alert feed",
	})
}

func (r *Registry) initRefreshMetrics(f promauto.Factory) {
	r.RefreshDuration = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "refresh",
		Name:      "duration_seconds",
		Help:      "Backend refresh latency",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"source"})

	r.RefreshTotal = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "refresh",
		Name:      "total",
		Help:      "Backend refreshes by source and outcome",
	}, []string{"source", "outcome"})
}

func (r *Registry) initAPIMetrics(f promauto.Factory) {
	r.APIRequestDuration = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "View API request latency",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	r.ViewSubscribers = f.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "view_subscribers",
		Help:      "Browser clients connected to the snapshot stream",
	})
}

// RecordEvent counts one inbound live event
func (r *Registry) RecordEvent(name string) {
	if r == nil {
		return
	}
	r.EventsReceived.WithLabelValues(name).Inc()
}

// RecordMalformed counts one dropped frame
func (r *Registry) RecordMalformed() {
	if r == nil {
		return
	}
	r.MalformedFrames.Inc()
}

// RecordReconnect counts one reconnection attempt
func (r *Registry) RecordReconnect() {
	if r == nil {
		return
	}
	r.Reconnects.Inc()
}

// SetLiveConnected flips the connectivity gauge
func (r *Registry) SetLiveConnected(connected bool) {
	if r == nil {
		return
	}
	if connected {
		r.LiveConnected.Set(1)
		return
	}
	r.LiveConnected.Set(0)
}

func (r *Registry) RecordAlertRaised() {
	if r == nil {
		return
	}
	r.AlertsRaised.Inc()
}

func (r *Registry) RecordAlertsDismissed(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.AlertsDismissed.Add(float64(n))
}

// SetViewSizes publishes the current list sizes
func (r *Registry) SetViewSizes(history, alerts int) {
	if r == nil {
		return
	}
	r.HistorySize.Set(float64(history))
	r.AlertCount.Set(float64(alerts))
}

// RecordRefresh records the latency and outcome of a backend refresh
func (r *Registry) RecordRefresh(source string, d time.Duration, err error) {
	if r == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	r.RefreshDuration.WithLabelValues(source).Observe(d.Seconds())
	r.RefreshTotal.WithLabelValues(source, outcome).Inc()
}

// RecordRequest records one view API request
func (r *Registry) RecordRequest(method, route, status string, d time.Duration) {
	if r == nil {
		return
	}
	r.APIRequestDuration.WithLabelValues(method, route, status).Observe(d.Seconds())
}

// AddSubscribers adjusts the connected browser client gauge
func (r *Registry) AddSubscribers(delta int) {
	if r == nil {
		return
	}
	r.ViewSubscribers.Add(float64(delta))
}
