package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/trainlog/internal/domain"
)

func TestMissingRidesDiffsRemoteAgainstLocal(t *testing.T) {
	ctx := context.Background()

	lister := &stubLister{rides: []domain.RemoteRide{
		ride("1", time.Date(2026, time.February, 11, 9, 0, 0, 0, time.UTC)),
		ride("2", time.Date(2026, time.February, 10, 9, 0, 0, 0, time.UTC)),
		ride("3", time.Date(2026, time.February, 9, 9, 0, 0, 0, time.UTC)),
	}}
	index := &stubIndex{existing: map[string]struct{}{"2": {}}}

	engine := NewEngine(domain.ProviderGarmin, lister, index)
	report, err := engine.MissingRides(ctx, 50)
	require.NoError(t, err)

	require.Equal(t, 3, report.Summary.CheckedRecentRides)
	require.Equal(t, 1, report.Summary.AlreadyLoaded)
	require.Equal(t, 2, report.Summary.Missing)
	require.Len(t, report.Rides, 2)
	require.Equal(t, "1", report.Rides[0].Key.ExternalID)
	require.Equal(t, "3", report.Rides[1].Key.ExternalID)
	require.False(t, report.GeneratedAt.IsZero())
}

func TestMissingRidesKeepsProviderOrderOnEqualStart(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, time.February, 11, 9, 0, 0, 0, time.UTC)

	lister := &stubLister{rides: []domain.RemoteRide{
		ride("a", start),
		ride("b", start),
		ride("c", start),
	}}
	engine := NewEngine(domain.ProviderGarmin, lister, &stubIndex{})

	report, err := engine.MissingRides(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, externalIDs(report.Rides))
}

func TestMissingRidesOrdersNilStartLast(t *testing.T) {
	ctx := context.Background()

	noStart := domain.RemoteRide{Key: domain.ActivityKey{Provider: domain.ProviderGarmin, ExternalID: "x"}}
	lister := &stubLister{rides: []domain.RemoteRide{
		noStart,
		ride("y", time.Date(2026, time.February, 11, 9, 0, 0, 0, time.UTC)),
	}}
	engine := NewEngine(domain.ProviderGarmin, lister, &stubIndex{})

	report, err := engine.MissingRides(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, []string{"y", "x"}, externalIDs(report.Rides))
}

func TestMissingRidesClampsLimit(t *testing.T) {
	ctx := context.Background()
	lister := &stubLister{}
	engine := NewEngine(domain.ProviderGarmin, lister, &stubIndex{})

	_, err := engine.MissingRides(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, 1, lister.lastLimit)

	_, err = engine.MissingRides(ctx, 5000)
	require.NoError(t, err)
	require.Equal(t, 200, lister.lastLimit)
}

func TestMissingRidesSurfacesListerFailure(t *testing.T) {
	ctx := context.Background()
	boom := &domain.ProviderError{Provider: domain.ProviderGarmin, Op: "list activities", Err: errors.New("auth expired")}
	engine := NewEngine(domain.ProviderGarmin, &stubLister{err: boom}, &stubIndex{})

	_, err := engine.MissingRides(ctx, 10)
	require.Error(t, err)

	var providerErr *domain.ProviderError
	require.ErrorAs(t, err, &providerErr)
}

func ride(externalID string, start time.Time) domain.RemoteRide {
	return domain.RemoteRide{
		Key:        domain.ActivityKey{Provider: domain.ProviderGarmin, ExternalID: externalID},
		Name:       "Ride " + externalID,
		StartLocal: &start,
	}
}

func externalIDs(rides []domain.RemoteRide) []string {
	ids := make([]string, 0, len(rides))
	for _, r := range rides {
		ids = append(ids, r.Key.ExternalID)
	}
	return ids
}

type stubLister struct {
	rides     []domain.RemoteRide
	err       error
	lastLimit int
}

func (s *stubLister) ListRecent(_ context.Context, limit int) ([]domain.RemoteRide, error) {
	s.lastLimit = limit
	if s.err != nil {
		return nil, s.err
	}
	return s.rides, nil
}

type stubIndex struct {
	existing map[string]struct{}
	err      error
}

func (s *stubIndex) ExistingKeys(context.Context, domain.Provider, []string) (map[string]struct{}, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.existing == nil {
		return map[string]struct{}{}, nil
	}
	return s.existing, nil
}
