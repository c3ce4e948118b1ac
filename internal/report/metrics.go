package report

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/RoqueChristian/backup-inteligencia/internal/schema"
)

// Metrics exposes Prometheus collectors for extract loading.
type Metrics struct {
	loads    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the loader metrics. A nil registerer uses the default
// Prometheus registerer once per process.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	loads := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "inteligencia_report_loads_total",
		Help: "Extract loads partitioned by dataset and result (hit, miss, error).",
	}, []string{"dataset", "result"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "inteligencia_report_load_duration_seconds",
		Help:    "Time spent reading and normalizing extracts.",
		Buckets: prometheus.DefBuckets,
	}, []string{"dataset"})
	registerer.MustRegister(loads, duration)
	return &Metrics{loads: loads, duration: duration}
}

type loadTracker struct {
	metrics *Metrics
	dataset string
	start   time.Time
}

func (m *Metrics) trackLoad(ds schema.Dataset) loadTracker {
	return loadTracker{metrics: m, dataset: string(ds), start: time.Now()}
}

// end records the outcome and returns err untouched.
func (t loadTracker) end(err error, hit bool) error {
	if t.metrics == nil {
		return err
	}
	result := "miss"
	switch {
	case err != nil:
		result = "error"
	case hit:
		result = "hit"
	}
	t.metrics.loads.WithLabelValues(t.dataset, result).Inc()
	if !hit && err == nil {
		t.metrics.duration.WithLabelValues(t.dataset).Observe(time.Since(t.start).Seconds())
	}
	return err
}
