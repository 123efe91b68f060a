package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rowsScanned = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sheetsync_rows_scanned_total",
		Help: "Source rows examined, including invalid and blank rows.",
	}, []string{"block"})

	rowsAppended = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sheetsync_rows_appended_total",
		Help: "Rows appended to the master ledger.",
	}, []string{"block"})

	rowsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sheetsync_rows_skipped_total",
		Help: "Rows skipped for missing required cells.",
	}, []string{"block"})

	pairFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sheetsync_pair_failures_total",
		Help: "Pairs that ended a run in a failed state.",
	}, []string{"block"})

	pairDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sheetsync_pair_duration_seconds",
		Help:    "Wall time spent processing one pair's chunk.",
		Buckets: prometheus.DefBuckets,
	}, []string{"block"})
)
