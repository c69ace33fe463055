package batch

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records batch run outcomes in Prometheus collectors.
type Metrics struct {
	runs     *prometheus.CounterVec
	duration prometheus.Histogram
}

// NewMetrics registers the batch collectors on reg. If reg is nil the default
// registerer is used; already-registered collectors are reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fmulab_batch_runs_total",
		Help: "Total number of finished batch runs",
	}, []string{"result"})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "fmulab_batch_run_duration_seconds",
		Help:    "Wall-clock duration of individual batch runs",
		Buckets: prometheus.DefBuckets,
	})

	if err := reg.Register(runs); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			runs = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(duration); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			duration = are.ExistingCollector.(prometheus.Histogram)
		} else {
			return nil, err
		}
	}
	return &Metrics{runs: runs, duration: duration}, nil
}

func (m *Metrics) observe(ok bool, elapsed time.Duration) {
	result := "ok"
	if !ok {
		result = "error"
	}
	m.runs.WithLabelValues(result).Inc()
	m.duration.Observe(elapsed.Seconds())
}
