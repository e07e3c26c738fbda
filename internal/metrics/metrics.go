package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	WriteResultWritten   = "written"
	WriteResultUnchanged = "unchanged"
	WriteResultFailed    = "failed"
)

// Metrics exposes application metrics that are safe to scrape via Prometheus.
type Metrics struct {
	registry                  *prometheus.Registry
	httpRequests              *prometheus.CounterVec
	httpRequestDuration       *prometheus.HistogramVec
	controllerRequests        *prometheus.CounterVec
	controllerRequestDuration *prometheus.HistogramVec
	mappingWrites             *prometheus.CounterVec
	highlightsDropped         prometheus.Counter
}

// New creates a fresh Metrics registry with HTTP, controller and mapping metrics registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledmap",
		Name:      "http_requests_total",
		Help:      "Count of HTTP requests processed by wled-mapper",
	}, []string{"method", "path", "status"})

	httpRequestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ledmap",
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests served by wled-mapper",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	controllerRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledmap",
		Name:      "controller_requests_total",
		Help:      "Requests sent to the LED controller by operation and outcome",
	}, []string{"op", "outcome"})

	controllerRequestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ledmap",
		Name:      "controller_request_duration_seconds",
		Help:      "Round-trip duration of LED controller requests",
		Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"op"})

	mappingWrites := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledmap",
		Name:      "mapping_writes_total",
		Help:      "Mapping write-back attempts by result",
	}, []string{"result"})

	highlightsDropped := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ledmap",
		Name:      "highlights_dropped_total",
		Help:      "Highlight requests dropped because another was in flight",
	})

	registry.MustRegister(
		httpRequests,
		httpRequestDuration,
		controllerRequests,
		controllerRequestDuration,
		mappingWrites,
		highlightsDropped,
	)

	return &Metrics{
		registry:                  registry,
		httpRequests:              httpRequests,
		httpRequestDuration:       httpRequestDuration,
		controllerRequests:        controllerRequests,
		controllerRequestDuration: controllerRequestDuration,
		mappingWrites:             mappingWrites,
		highlightsDropped:         highlightsDropped,
	}
}

// ObserveHTTPRequest records a single HTTP request/response cycle.
func (m *Metrics) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{
		"method": method,
		"path":   path,
		"status": strconv.Itoa(status),
	}
	m.httpRequests.With(labels).Inc()
	m.httpRequestDuration.With(labels).Observe(duration.Seconds())
}

// ObserveControllerRequest records one request to the controller.
func (m *Metrics) ObserveControllerRequest(op string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.controllerRequests.With(prometheus.Labels{"op": op, "outcome": outcome}).Inc()
	m.controllerRequestDuration.With(prometheus.Labels{"op": op}).Observe(duration.Seconds())
}

// IncMappingWrite counts a write-back by result (see WriteResult* constants).
func (m *Metrics) IncMappingWrite(result string) {
	if m == nil {
		return
	}
	m.mappingWrites.With(prometheus.Labels{"result": result}).Inc()
}

func (m *Metrics) IncHighlightDropped() {
	if m == nil {
		return
	}
	m.highlightsDropped.Inc()
}

// Handler exposes the Prometheus registry over HTTP.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("metrics unavailable"))
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
