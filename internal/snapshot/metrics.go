package snapshot

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agristat_snapshot_reloads_total",
		Help: "Snapshot reload attempts by result",
	}, []string{"result"})

	buildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "agristat_snapshot_build_duration_seconds",
		Help:    "Time to load a dataset and build a snapshot",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30},
	})

	generationGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "agristat_snapshot_generation",
		Help: "Generation number of the active snapshot",
	})

	zonesGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "agristat_snapshot_zones",
		Help: "Zones in the active snapshot",
	})

	factsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "agristat_snapshot_facts",
		Help: "Facts in the active snapshot",
	})
)
