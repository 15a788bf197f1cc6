package ingest

import "github.com/prometheus/client_golang/prometheus"

var (
	ridesLoaded = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "trainlog",
		Subsystem: "ingest",
		Name:      "rides_loaded_total",
		Help:      "Number of activities imported and persisted.",
	})

	ridesSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "trainlog",
		Subsystem: "ingest",
		Name:      "rides_skipped_total",
		Help:      "Number of import keys skipped because the activity already existed.",
	})

	ridesFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "trainlog",
		Subsystem: "ingest",
		Name:      "rides_failed_total",
		Help:      "Number of import keys that ended in an error outcome.",
	})

	batchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "trainlog",
		Subsystem: "ingest",
		Name:      "import_batch_duration_seconds",
		Help:      "Time spent processing one import batch end to end.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
	})

	backfillUpdated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "trainlog",
		Subsystem: "ingest",
		Name:      "backfill_updated_total",
		Help:      "Number of activities whose normalized fields were repaired from raw payloads.",
	})
)

func init() {
	prometheus.MustRegister(ridesLoaded, ridesSkipped, ridesFailed, batchDuration, backfillUpdated)
}
