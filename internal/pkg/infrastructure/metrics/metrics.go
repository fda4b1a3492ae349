package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

//Recorder collects the service level prometheus metrics
type Recorder struct {
	widgetDataRequests *prometheus.CounterVec
	fetchDuration      prometheus.Histogram
	samplesIngested    prometheus.Counter
	handler            http.Handler
}

//NewRecorder creates the metric instruments and registers them with a fresh registry
func NewRecorder() *Recorder {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dashboard_widget_data_requests_total",
		Help: "Widget data requests served, partitioned by response status.",
	}, []string{"status"})

	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "dashboard_widget_data_fetch_duration_seconds",
		Help:    "Time spent resolving scope and fetching all series for one request.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	ingested := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dashboard_telemetry_samples_ingested_total",
		Help: "Telemetry samples accepted through the ingest endpoint.",
	})

	registry.MustRegister(requests, duration, ingested)

	return &Recorder{
		widgetDataRequests: requests,
		fetchDuration:      duration,
		samplesIngested:    ingested,
		handler:            promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}
}

//CountWidgetDataRequest increments the request counter for the given status label
func (r *Recorder) CountWidgetDataRequest(status string) {
	r.widgetDataRequests.WithLabelValues(status).Inc()
}

//ObserveFetchDuration records the duration of one complete widget data fetch
func (r *Recorder) ObserveFetchDuration(seconds float64) {
	r.fetchDuration.Observe(seconds)
}

//CountIngestedSample increments the ingest counter
func (r *Recorder) CountIngestedSample() {
	r.samplesIngested.Inc()
}

//Handler exposes the registry for scraping
func (r *Recorder) Handler() http.Handler {
	return r.handler
}
