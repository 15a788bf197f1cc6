package outbox

import "time"

// ActivityImported is recorded in the import transaction and published once
// the activity row is durable.
type ActivityImported struct {
	EventID      string     `json:"event_id"`
	Provider     string     `json:"provider"`
	ExternalID   string     `json:"external_id"`
	ActivityID   int64      `json:"activity_id"`
	Name         string     `json:"name"`
	Sport        *string    `json:"sport,omitempty"`
	StartedAtUTC *time.Time `json:"started_at_utc,omitempty"`
	DurationS    *int       `json:"duration_s,omitempty"`
	DistanceM    *float64   `json:"distance_m,omitempty"`
	OccurredAt   time.Time  `json:"occurred_at"`
}

// ActivityBackfilled is recorded alongside a backfill repair of one
// activity's normalized fields.
type ActivityBackfilled struct {
	EventID    string    `json:"event_id"`
	Provider   string    `json:"provider"`
	ExternalID string    `json:"external_id"`
	ActivityID int64     `json:"activity_id"`
	OccurredAt time.Time `json:"occurred_at"`
}
