package domain

import "time"

// ReconcileSummary carries the counts for one reconciliation run. The
// invariant missing + already_loaded = checked holds for every run.
type ReconcileSummary struct {
	CheckedRecentRides int
	AlreadyLoaded      int
	Missing            int
}

// ReconcileReport lists remote rides absent from the local store, most
// recent first.
type ReconcileReport struct {
	GeneratedAt time.Time
	Summary     ReconcileSummary
	Rides       []RemoteRide
}

// ImportError records why one identity key failed to import.
type ImportError struct {
	ExternalID string
	Reason     string
}

// ImportReport aggregates per-key outcomes for one import batch. Every
// submitted key lands in exactly one bucket.
type ImportReport struct {
	Loaded      int
	Skipped     int
	Errors      []ImportError
	ImportedIDs []string
}

// BackfillReport summarizes one repair run over stored raw payloads.
type BackfillReport struct {
	UpdatedActivities     int
	ActivitiesWithNewLaps int
}

// DaySummary is the rollup over one day's activities. Sums over zero
// activities are zero; the stress average over zero samples is nil.
type DaySummary struct {
	ActivityCount int
	MovingTimeS   int
	DistanceM     float64
	StressTotal   float64
	StressAvg     *float64
}

// DayGroup is one Monday-first calendar day with its activities in storage
// order.
type DayGroup struct {
	Date       time.Time
	Weekday    string
	Activities []Activity
	Summary    DaySummary
}

// WeekSummary mirrors DaySummary at week scope.
type WeekSummary struct {
	ActivityCount int
	MovingTimeS   int
	DistanceM     float64
	StressTotal   float64
	StressAvg     *float64
}

// Progress reports target attainment for a week, each ratio clamped to
// [0,100].
type Progress struct {
	DistancePercent float64
	TimePercent     float64
	LoadScore       int
}

// WeekReport is the full weekly query result: seven day groups plus the
// week-level rollup and progress block.
type WeekReport struct {
	WeekStart time.Time
	WeekEnd   time.Time
	Days      []DayGroup
	Summary   WeekSummary
	Progress  Progress
}

// WeekIndexEntry is one row of the weeks-available index.
type WeekIndexEntry struct {
	WeekStart     time.Time
	WeekEnd       time.Time
	ActivityCount int
}
