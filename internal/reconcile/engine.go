// Package reconcile computes which remote activities are not yet stored
// locally.
package reconcile

import (
	"context"
	"fmt"
	"sort"
	"time"

	"example.com/trainlog/internal/domain"
)

const (
	minLimit = 1
	maxLimit = 200
)

// Lister exposes the provider collaborator's recent-activity listing.
type Lister interface {
	ListRecent(ctx context.Context, limit int) ([]domain.RemoteRide, error)
}

// Index is the read path over the local store used for deduplication.
type Index interface {
	ExistingKeys(ctx context.Context, provider domain.Provider, externalIDs []string) (map[string]struct{}, error)
}

// Engine diffs the remote activity list against the local index. It performs
// no writes.
type Engine struct {
	provider domain.Provider
	lister   Lister
	index    Index
	now      func() time.Time
}

// NewEngine constructs an Engine for one provider.
func NewEngine(provider domain.Provider, lister Lister, index Index) *Engine {
	return &Engine{
		provider: provider,
		lister:   lister,
		index:    index,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// MissingRides returns the remote rides absent locally, most recent first,
// with summary counts. A lister failure surfaces as a single error rather
// than a partial result.
func (e *Engine) MissingRides(ctx context.Context, limit int) (domain.ReconcileReport, error) {
	if limit < minLimit {
		limit = minLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	remote, err := e.lister.ListRecent(ctx, limit)
	if err != nil {
		return domain.ReconcileReport{}, fmt.Errorf("list recent activities: %w", err)
	}

	externalIDs := make([]string, 0, len(remote))
	for _, ride := range remote {
		externalIDs = append(externalIDs, ride.Key.ExternalID)
	}

	existing, err := e.index.ExistingKeys(ctx, e.provider, externalIDs)
	if err != nil {
		return domain.ReconcileReport{}, fmt.Errorf("read local activity index: %w", err)
	}

	missing := make([]domain.RemoteRide, 0, len(remote))
	alreadyLoaded := 0
	for _, ride := range remote {
		if _, ok := existing[ride.Key.ExternalID]; ok {
			alreadyLoaded++
			continue
		}
		missing = append(missing, ride)
	}

	// Most recent first; equal or missing start times keep the provider's
	// original order.
	sort.SliceStable(missing, func(i, j int) bool {
		return rideStart(missing[i]).After(rideStart(missing[j]))
	})

	return domain.ReconcileReport{
		GeneratedAt: e.now(),
		Summary: domain.ReconcileSummary{
			CheckedRecentRides: len(remote),
			AlreadyLoaded:      alreadyLoaded,
			Missing:            len(missing),
		},
		Rides: missing,
	}, nil
}

func rideStart(ride domain.RemoteRide) time.Time {
	if ride.StartLocal != nil {
		return *ride.StartLocal
	}
	if ride.StartUTC != nil {
		return *ride.StartUTC
	}
	return time.Time{}
}
