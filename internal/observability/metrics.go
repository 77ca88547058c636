package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Labels: "ok", "error"
	datasetLoads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dashboard_dataset_loads_total",
		Help: "Dataset loads by result",
	}, []string{"result"})

	datasetCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dashboard_dataset_cache_hits_total",
		Help: "Dataset requests served from the cache",
	})

	datasetInvalidations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dashboard_dataset_invalidations_total",
		Help: "Cache invalidations caused by source changes",
	})

	datasetRows = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dashboard_dataset_rows",
		Help: "Rows in the currently cached dataset",
	})

	// Labels: "load", "filter", "aggregate"
	pipelineDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dashboard_pipeline_duration_seconds",
		Help:    "Pipeline stage duration",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 9),
	}, []string{"stage"})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dashboard_http_requests_total",
		Help: "HTTP requests by method and status class",
	}, []string{"method", "status"})
)

func RecordDatasetLoad(err error, rows int) {
	if err != nil {
		datasetLoads.WithLabelValues("error").Inc()
		return
	}
	datasetLoads.WithLabelValues("ok").Inc()
	datasetRows.Set(float64(rows))
}

func RecordCacheHit() { datasetCacheHits.Inc() }

func RecordInvalidation() { datasetInvalidations.Inc() }

func observeStage(stage string, d time.Duration) {
	pipelineDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func RecordHTTPRequest(method string, status int) {
	class := "5xx"
	switch {
	case status < 300:
		class = "2xx"
	case status < 400:
		class = "3xx"
	case status < 500:
		class = "4xx"
	}
	httpRequests.WithLabelValues(method, class).Inc()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
