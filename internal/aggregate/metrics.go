package aggregate

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "agristat_aggregate_query_duration_seconds",
		Help:    "Time to answer an aggregation query",
		Buckets: []float64{0.00001, 0.0001, 0.001, 0.01, 0.1, 1},
	}, []string{"op"})

	scopeSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "agristat_aggregate_scope_codes",
		Help:    "Zone codes in the scope of an aggregation query",
		Buckets: []float64{1, 10, 100, 1000, 10000},
	})
)

func observe(op string, start time.Time) {
	queryDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
