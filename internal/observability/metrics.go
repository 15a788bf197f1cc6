package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	importWatermarkGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "trainlog",
		Subsystem: "persistence",
		Name:      "last_import_timestamp_seconds",
		Help:      "Unix timestamp of the most recent activity import persisted to Postgres.",
	})
	backfillWatermarkGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "trainlog",
		Subsystem: "persistence",
		Name:      "last_backfill_timestamp_seconds",
		Help:      "Unix timestamp of the most recent backfill repair applied to an activity.",
	})
)

func init() {
	prometheus.MustRegister(importWatermarkGauge, backfillWatermarkGauge)
}

// RecordActivityImported updates the import watermark gauge.
func RecordActivityImported(ts time.Time) {
	if ts.IsZero() {
		return
	}
	importWatermarkGauge.Set(float64(ts.Unix()))
}

// RecordActivityBackfilled updates the backfill watermark gauge.
func RecordActivityBackfilled(ts time.Time) {
	if ts.IsZero() {
		return
	}
	backfillWatermarkGauge.Set(float64(ts.Unix()))
}
