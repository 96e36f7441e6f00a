package metrics

import (
	"context"
	"net/http"
	"strconv"

	"gbr-server/internal/artifact"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gbr"

// Collectors holds the service metrics on a private registry.
type Collectors struct {
	registry *prometheus.Registry

	predictRequests *prometheus.CounterVec
	predictRows     prometheus.Histogram
	artifactLoads   *prometheus.CounterVec
	loadDuration    prometheus.Histogram
	artifactBytes   prometheus.Gauge
}

var _ artifact.Observer = (*Collectors)(nil)

func New() *Collectors {
	c := &Collectors{
		registry: prometheus.NewRegistry(),
		predictRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predict_requests_total",
			Help:      "Prediction requests by response status code.",
		}, []string{"code"}),
		predictRows: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "predict_rows",
			Help:      "Rows scored per successful prediction request.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
		artifactLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifact_loads_total",
			Help:      "Artifact load attempts by result.",
		}, []string{"result"}),
		loadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "artifact_load_seconds",
			Help:      "Time spent fetching and decoding the artifact.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		artifactBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "artifact_size_bytes",
			Help:      "Size of the currently loaded artifact.",
		}),
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.predictRequests,
		c.predictRows,
		c.artifactLoads,
		c.loadDuration,
		c.artifactBytes,
	)

	return c
}

func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *Collectors) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collectors) ObserveLoad(_ context.Context, attempt artifact.Attempt) {
	c.loadDuration.Observe(attempt.Duration.Seconds())
	if attempt.Err != nil {
		c.artifactLoads.WithLabelValues("failure").Inc()
		return
	}
	c.artifactLoads.WithLabelValues("success").Inc()
	c.artifactBytes.Set(float64(attempt.SizeBytes))
}

func (c *Collectors) ObservePredict(code int, rows int) {
	c.predictRequests.WithLabelValues(strconv.Itoa(code)).Inc()
	if code == http.StatusOK {
		c.predictRows.Observe(float64(rows))
	}
}
