package ingest

import (
	"context"
	"fmt"
	"log"

	"example.com/trainlog/internal/domain"
)

// BackfillStore is the persistence surface for the repair path.
type BackfillStore interface {
	ListWithPayload(ctx context.Context, provider domain.Provider) ([]domain.StoredPayload, error)
	FillNormalized(ctx context.Context, activityID int64, decoded domain.DecodedActivity) error
	HasLaps(ctx context.Context, activityID int64) (bool, error)
	AddLaps(ctx context.Context, activityID int64, laps []domain.Lap) error
}

// Backfiller re-derives normalized activity fields from stored raw payloads.
// It only fills fields that are currently missing, so repeated runs over an
// unchanged payload are no-ops.
type Backfiller struct {
	provider domain.Provider
	decoder  Decoder
	store    BackfillStore
	logger   *log.Logger
}

// NewBackfiller constructs a Backfiller sharing the import path's decoder.
func NewBackfiller(provider domain.Provider, decoder Decoder, store BackfillStore, opts ...BackfillOption) *Backfiller {
	b := &Backfiller{
		provider: provider,
		decoder:  decoder,
		store:    store,
		logger:   log.New(log.Writer(), "[backfill] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// BackfillOption configures optional behaviour for the Backfiller.
type BackfillOption func(*Backfiller)

// WithBackfillLogger overrides the logger.
func WithBackfillLogger(logger *log.Logger) BackfillOption {
	return func(b *Backfiller) {
		b.logger = logger
	}
}

// Run repairs all stored activities of the provider whose payload is
// present. An undecodable payload is skipped, never fatal.
func (b *Backfiller) Run(ctx context.Context) (domain.BackfillReport, error) {
	stored, err := b.store.ListWithPayload(ctx, b.provider)
	if err != nil {
		return domain.BackfillReport{}, fmt.Errorf("list stored payloads: %w", err)
	}

	var report domain.BackfillReport
	for _, row := range stored {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		decoded, err := b.decoder.Decode(b.provider, row.Content)
		if err != nil {
			b.logger.Printf("backfill %s: undecodable payload: %v", row.Activity.Key, err)
			continue
		}

		if fillsAnything(row.Activity, decoded) {
			if err := b.store.FillNormalized(ctx, row.Activity.ID, decoded); err != nil {
				return report, fmt.Errorf("fill activity %d: %w", row.Activity.ID, err)
			}
			report.UpdatedActivities++
			backfillUpdated.Inc()
		}

		if len(decoded.Laps) > 0 {
			hasLaps, err := b.store.HasLaps(ctx, row.Activity.ID)
			if err != nil {
				return report, fmt.Errorf("check laps for activity %d: %w", row.Activity.ID, err)
			}
			// Existing laps are never duplicated or overwritten.
			if !hasLaps {
				if err := b.store.AddLaps(ctx, row.Activity.ID, decoded.Laps); err != nil {
					return report, fmt.Errorf("add laps for activity %d: %w", row.Activity.ID, err)
				}
				report.ActivitiesWithNewLaps++
			}
		}
	}

	return report, nil
}

// fillsAnything reports whether the decoded payload provides a value for any
// normalized field that is currently missing.
func fillsAnything(stored domain.Activity, decoded domain.DecodedActivity) bool {
	switch {
	case stored.StartedAt == nil && decoded.StartLocal != nil:
		return true
	case stored.StartedAtUTC == nil && decoded.StartUTC != nil:
		return true
	case stored.DurationS == nil && decoded.DurationS != nil:
		return true
	case stored.DistanceM == nil && decoded.DistanceM != nil:
		return true
	case stored.AvgPowerW == nil && decoded.AvgPowerW != nil:
		return true
	case stored.AvgHeartRate == nil && decoded.AvgHeartRate != nil:
		return true
	case stored.AvgSpeedMPS == nil && decoded.AvgSpeedMPS != nil:
		return true
	case stored.StressScore == nil && decoded.StressScore != nil:
		return true
	case stored.Sport == nil && decoded.Sport != nil:
		return true
	}
	return false
}
