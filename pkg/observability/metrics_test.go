package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// TestMetricsRegistered verifies that all metrics are registered in the
// default registry.
func TestMetricsRegistered(t *testing.T) {
	// Vectors only appear after first observation, so seed them.
	RequestsTotal.WithLabelValues("GET", "GET /healthz", "2xx").Add(0)
	RequestDuration.WithLabelValues("GET", "GET /healthz").Observe(0.01)
	SnapshotLookupsTotal.WithLabelValues("reused").Add(0)
	ProvisioningDuration.WithLabelValues("success").Observe(1)
	SandboxAcquisitionsTotal.WithLabelValues("exercise", "created").Add(0)
	ProviderRequestsTotal.WithLabelValues("fake", "get", "ok").Add(0)
	ProviderLatency.WithLabelValues("fake", "get").Observe(0.01)

	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("unexpected gather error: %v", err)
	}

	expected := map[string]bool{
		"neuro_sandbox_http_requests_total":           false,
		"neuro_sandbox_http_request_duration_seconds": false,
		"neuro_sandbox_snapshot_lookups_total":        false,
		"neuro_sandbox_provisioning_duration_seconds": false,
		"neuro_sandbox_provisions_in_flight":          false,
		"neuro_sandbox_sandbox_acquisitions_total":    false,
		"neuro_sandbox_provider_requests_total":       false,
		"neuro_sandbox_provider_latency_seconds":      false,
		"neuro_sandbox_auth_rejected_total":           false,
	}
	for _, mf := range families {
		if _, ok := expected[mf.GetName()]; ok {
			expected[mf.GetName()] = true
		}
	}
	for name, found := range expected {
		if !found {
			t.Errorf("metric %q not found in default registry", name)
		}
	}
}

// TestMiddlewareRecordsRoutePattern verifies that the route label is the
// matched pattern, not the raw path.
func TestMiddlewareRecordsRoutePattern(t *testing.T) {
	const route = "POST /v1/exercises/{id}/sandbox"
	before := counterValue(t, RequestsTotal, "POST", route, "2xx")

	mux := http.NewServeMux()
	mux.HandleFunc(route, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := MetricsMiddleware(mux)

	for _, id := range []string{"1", "2", "3"} {
		req := httptest.NewRequest("POST", "/v1/exercises/"+id+"/sandbox", nil)
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}

	after := counterValue(t, RequestsTotal, "POST", route, "2xx")
	if after-before != 3 {
		t.Errorf("expected request count to increase by 3, got delta=%f", after-before)
	}
}

func TestMiddlewareUnmatchedRoute(t *testing.T) {
	before := counterValue(t, RequestsTotal, "GET", "unmatched", "4xx")

	handler := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/nope", nil))

	after := counterValue(t, RequestsTotal, "GET", "unmatched", "4xx")
	if after-before != 1 {
		t.Errorf("expected 4xx count to increase by 1, got delta=%f", after-before)
	}
}

// TestMiddlewareRecordsDuration verifies that the middleware records
// a request duration observation.
func TestMiddlewareRecordsDuration(t *testing.T) {
	before := histogramCount(t, RequestDuration, "DELETE", "unmatched")

	handler := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(5 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("DELETE", "/v1/anything", nil))

	after := histogramCount(t, RequestDuration, "DELETE", "unmatched")
	if after-before != 1 {
		t.Errorf("expected histogram sample count to increase by 1, got delta=%d", after-before)
	}
}

func TestObserveProvider(t *testing.T) {
	okBefore := counterValue(t, ProviderRequestsTotal, "test", "create", "ok")
	errBefore := counterValue(t, ProviderRequestsTotal, "test", "create", "error")
	latBefore := histogramCount(t, ProviderLatency, "test", "create")

	ObserveProvider("test", "create", time.Now(), nil)
	ObserveProvider("test", "create", time.Now(), errors.New("boom"))

	if d := counterValue(t, ProviderRequestsTotal, "test", "create", "ok") - okBefore; d != 1 {
		t.Errorf("ok delta = %f, want 1", d)
	}
	if d := counterValue(t, ProviderRequestsTotal, "test", "create", "error") - errBefore; d != 1 {
		t.Errorf("error delta = %f, want 1", d)
	}
	if d := histogramCount(t, ProviderLatency, "test", "create") - latBefore; d != 2 {
		t.Errorf("latency samples delta = %d, want 2", d)
	}
}

// TestStatusWriterFlush verifies that the statusWriter Flush method
// delegates to the underlying writer when it implements http.Flusher.
func TestStatusWriterFlush(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: rec, status: http.StatusOK}

	sw.Flush()

	if !rec.Flushed {
		t.Error("expected underlying writer to be flushed")
	}
}

// counterValue reads the current value of a CounterVec for the given labels.
func counterValue(t *testing.T, cv *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	m := &dto.Metric{}
	c, err := cv.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("getting counter metric: %v", err)
	}
	if err := c.(prometheus.Metric).Write(m); err != nil {
		t.Fatalf("writing counter metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

// histogramCount reads the observation count from a HistogramVec.
func histogramCount(t *testing.T, hv *prometheus.HistogramVec, labels ...string) uint64 {
	t.Helper()
	m := &dto.Metric{}
	obs, err := hv.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("getting histogram metric: %v", err)
	}
	if err := obs.(prometheus.Metric).Write(m); err != nil {
		t.Fatalf("writing histogram metric: %v", err)
	}
	return m.GetHistogram().GetSampleCount()
}
