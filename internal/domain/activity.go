// Package domain defines the entities and value types shared across the
// ingestion, backfill, and aggregation paths.
package domain

import (
	"fmt"
	"time"
)

// Provider identifies the external fitness platform an activity came from.
type Provider string

// ProviderGarmin is the only provider wired today; the identity key keeps
// room for more.
const ProviderGarmin Provider = "garmin"

// ActivityKey is the (provider, external_id) pair that uniquely identifies a
// remote activity. It is the sole deduplication key; the numeric local ID is
// never provider-visible.
type ActivityKey struct {
	Provider   Provider
	ExternalID string
}

func (k ActivityKey) String() string {
	return string(k.Provider) + ":" + k.ExternalID
}

// Activity is the display-normalized projection of one training session.
// Fields the provider did not supply stay nil rather than zero.
type Activity struct {
	ID           int64
	Key          ActivityKey
	Name         string
	Sport        *string
	StartedAt    *time.Time // provider-local clock, stored naive
	StartedAtUTC *time.Time
	DurationS    *int
	DistanceM    *float64
	AvgPowerW    *float64
	AvgHeartRate *float64
	AvgSpeedMPS  *float64
	StressScore  *float64
	CreatedAt    time.Time
}

// RawPayload is the unmodified provider document for one activity, stored at
// most once per activity and owned by it.
type RawPayload struct {
	Content     []byte
	ContentType string
	SHA256      string
	SizeBytes   int
	FetchedAt   time.Time
}

// Session is the provider-reported session-level snapshot, kept separate from
// the recomputed Activity fields.
type Session struct {
	SessionIndex  int
	StartTime     *time.Time
	TotalElapsedS *float64
	TotalTimerS   *float64
	TotalDistance *float64
	AvgSpeedMPS   *float64
	MaxSpeedMPS   *float64
	AvgPowerW     *float64
	MaxPowerW     *float64
	AvgHeartRate  *float64
	MaxHeartRate  *float64
}

// Lap is one ordered split belonging to an activity. Absence of laps is
// valid; providers only sometimes supply split data.
type Lap struct {
	LapIndex      int
	StartTime     *time.Time
	TotalElapsedS *float64
	TotalTimerS   *float64
	TotalDistance *float64
	AvgSpeedMPS   *float64
	AvgPowerW     *float64
	MaxPowerW     *float64
	AvgHeartRate  *float64
	MaxHeartRate  *float64
}

// RemoteRide is a provider activity summary normalized into a common shape by
// the remote lister.
type RemoteRide struct {
	Key          ActivityKey
	Name         string
	StartLocal   *time.Time
	StartUTC     *time.Time
	DurationS    *int
	DistanceM    *float64
	AvgPowerW    *float64
	AvgHeartRate *float64
	AvgSpeedMPS  *float64
}

// DecodedActivity is the decoder collaborator's output: normalized fields
// plus the session/lap rows derived from one raw payload. The import and
// backfill paths consume it, never mutate the payload it came from.
type DecodedActivity struct {
	Name         string
	Sport        *string
	StartLocal   *time.Time
	StartUTC     *time.Time
	DurationS    *int
	DistanceM    *float64
	AvgPowerW    *float64
	AvgHeartRate *float64
	AvgSpeedMPS  *float64
	StressScore  *float64
	Session      *Session
	Laps         []Lap
}

// ImportBundle is everything persisted atomically for one imported activity.
type ImportBundle struct {
	Activity Activity
	Payload  RawPayload
	Session  *Session
	Laps     []Lap
}

// StoredPayload pairs an already-persisted activity with its raw payload for
// the backfill path.
type StoredPayload struct {
	Activity Activity
	Content  []byte
}

// DurationLabel renders seconds as HH:MM:SS, or MM:SS under an hour. Nil in,
// nil out.
func DurationLabel(totalSeconds *int) *string {
	if totalSeconds == nil {
		return nil
	}
	total := *totalSeconds
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60
	var label string
	if hours > 0 {
		label = fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
	} else {
		label = fmt.Sprintf("%02d:%02d", minutes, seconds)
	}
	return &label
}
