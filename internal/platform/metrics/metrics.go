package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the HLS gateway.
type Metrics struct {
	registry             *prometheus.Registry
	requestsTotal        prometheus.Counter
	masterManifestsTotal prometheus.Counter
	mediaManifestsTotal  prometheus.Counter
	errorsTotal          prometheus.Counter
	codecMappings        prometheus.Gauge
}

// New creates and registers Prometheus metrics for the gateway.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hls_requests_total",
		Help: "Total number of HTTP requests received",
	})
	masterManifestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hls_master_manifests_total",
		Help: "Total number of master playlists generated",
	})
	mediaManifestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hls_media_manifests_total",
		Help: "Total number of media playlists generated",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hls_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	codecMappings := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hls_codec_mappings",
		Help: "Number of entries in the loaded codec mapping table",
	})

	registry.MustRegister(
		requestsTotal,
		masterManifestsTotal,
		mediaManifestsTotal,
		errorsTotal,
		codecMappings,
	)

	return &Metrics{
		registry:             registry,
		requestsTotal:        requestsTotal,
		masterManifestsTotal: masterManifestsTotal,
		mediaManifestsTotal:  mediaManifestsTotal,
		errorsTotal:          errorsTotal,
		codecMappings:        codecMappings,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncMasterManifests increments the master playlist counter.
func (m *Metrics) IncMasterManifests() {
	m.masterManifestsTotal.Inc()
}

// IncMediaManifests increments the media playlist counter.
func (m *Metrics) IncMediaManifests() {
	m.mediaManifestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// SetCodecMappings sets the codec mapping table size gauge.
func (m *Metrics) SetCodecMappings(n int) {
	m.codecMappings.Set(float64(n))
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values (e.g.
// the codec mapping count).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
