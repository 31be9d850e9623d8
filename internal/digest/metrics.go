package digest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var curatedPosts = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "digest_curated_posts",
	Help:    "Number of posts kept per freshly curated result",
	Buckets: []float64{0, 1, 5, 10, 20, 50, 100},
})

var summaryOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "digest_summaries_total",
	Help: "Summary requests by outcome",
}, []string{"outcome"})

var snapshotFailures = promauto.NewCounter(prometheus.CounterOpts{
	Name: "digest_snapshot_failures_total",
	Help: "Best-effort snapshot saves that failed",
})
