// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring sandbox provisioning.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ProvisionBuckets defines histogram buckets suited for sandbox provisioning,
// which ranges from a few seconds (snapshot boot) to tens of minutes (cold
// clone and install).
var ProvisionBuckets = []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 2700}

// ProviderBuckets covers single provider API calls, from fast status reads
// to blocking commands.
var ProviderBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 300}

var (
	// RequestsTotal counts HTTP requests by method, matched route, and status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neuro_sandbox_http_requests_total",
			Help: "HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// RequestDuration records HTTP request duration in seconds.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "neuro_sandbox_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: ProviderBuckets,
		},
		[]string{"method", "route"},
	)

	// SnapshotLookupsTotal counts snapshot cache lookups by result
	// (reused or refreshed).
	SnapshotLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neuro_sandbox_snapshot_lookups_total",
			Help: "Snapshot cache lookups",
		},
		[]string{"result"},
	)

	// ProvisioningDuration records how long snapshot provisioning runs took.
	ProvisioningDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "neuro_sandbox_provisioning_duration_seconds",
			Help:    "Snapshot provisioning duration",
			Buckets: ProvisionBuckets,
		},
		[]string{"outcome"},
	)

	// ProvisionsInFlight tracks provisioning runs currently executing.
	ProvisionsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "neuro_sandbox_provisions_in_flight",
			Help: "Provisioning runs in flight",
		},
	)

	// SandboxAcquisitionsTotal counts sandboxes handed to callers, by owner
	// (exercise or agent) and path (reused, persisted, created).
	SandboxAcquisitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neuro_sandbox_sandbox_acquisitions_total",
			Help: "Sandbox acquisitions",
		},
		[]string{"owner", "path"},
	)

	// ProviderRequestsTotal counts calls to the sandbox provider.
	ProviderRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neuro_sandbox_provider_requests_total",
			Help: "Provider requests",
		},
		[]string{"provider", "operation", "status"},
	)

	// ProviderLatency records sandbox provider latency in seconds.
	ProviderLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "neuro_sandbox_provider_latency_seconds",
			Help:    "Provider latency",
			Buckets: ProviderBuckets,
		},
		[]string{"provider", "operation"},
	)

	// AuthRejectedTotal counts requests rejected by authentication.
	AuthRejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "neuro_sandbox_auth_rejected_total",
			Help: "Requests rejected by authentication",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		SnapshotLookupsTotal,
		ProvisioningDuration,
		ProvisionsInFlight,
		SandboxAcquisitionsTotal,
		ProviderRequestsTotal,
		ProviderLatency,
		AuthRejectedTotal,
	)
}

// ObserveProvider records one provider call that started at start.
func ObserveProvider(provider, operation string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	ProviderRequestsTotal.WithLabelValues(provider, operation, status).Inc()
	ProviderLatency.WithLabelValues(provider, operation).Observe(time.Since(start).Seconds())
}
