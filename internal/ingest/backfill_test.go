package ingest

import (
	"context"
	"log"
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/trainlog/internal/domain"
)

func TestBackfillFillsMissingFields(t *testing.T) {
	ctx := context.Background()

	power := 210.0
	store := &stubBackfillStore{rows: []domain.StoredPayload{
		{Activity: domain.Activity{ID: 1, Key: key("1")}, Content: []byte(`{}`)},
	}}
	decoder := &stubDecoder{decoded: &domain.DecodedActivity{AvgPowerW: &power}}
	backfiller := newTestBackfiller(t, decoder, store)

	report, err := backfiller.Run(ctx)
	require.NoError(t, err)

	require.Equal(t, 1, report.UpdatedActivities)
	require.Equal(t, []int64{1}, store.filled)
}

func TestBackfillIsIdempotentOnceFieldsArePresent(t *testing.T) {
	ctx := context.Background()

	power := 210.0
	stored := domain.Activity{ID: 1, Key: key("1"), AvgPowerW: &power}
	store := &stubBackfillStore{rows: []domain.StoredPayload{{Activity: stored, Content: []byte(`{}`)}}}
	decoder := &stubDecoder{decoded: &domain.DecodedActivity{AvgPowerW: &power}}
	backfiller := newTestBackfiller(t, decoder, store)

	report, err := backfiller.Run(ctx)
	require.NoError(t, err)

	require.Equal(t, 0, report.UpdatedActivities)
	require.Empty(t, store.filled)
}

func TestBackfillAddsLapsOnlyWhenAbsent(t *testing.T) {
	ctx := context.Background()

	laps := []domain.Lap{{LapIndex: 0}, {LapIndex: 1}}
	store := &stubBackfillStore{
		rows: []domain.StoredPayload{
			{Activity: domain.Activity{ID: 1, Key: key("1")}, Content: []byte(`{}`)},
			{Activity: domain.Activity{ID: 2, Key: key("2")}, Content: []byte(`{}`)},
		},
		hasLaps: map[int64]bool{2: true},
	}
	decoder := &stubDecoder{decoded: &domain.DecodedActivity{Laps: laps}}
	backfiller := newTestBackfiller(t, decoder, store)

	report, err := backfiller.Run(ctx)
	require.NoError(t, err)

	require.Equal(t, 1, report.ActivitiesWithNewLaps)
	require.Equal(t, map[int64][]domain.Lap{1: laps}, store.addedLaps)
}

func TestBackfillSkipsUndecodablePayloads(t *testing.T) {
	ctx := context.Background()

	store := &stubBackfillStore{rows: []domain.StoredPayload{
		{Activity: domain.Activity{ID: 1, Key: key("1")}, Content: []byte(`not json`)},
	}}
	decoder := &stubDecoder{err: &domain.DecodeError{Reason: "malformed summary document"}}
	backfiller := newTestBackfiller(t, decoder, store)

	report, err := backfiller.Run(ctx)
	require.NoError(t, err)

	require.Equal(t, 0, report.UpdatedActivities)
	require.Equal(t, 0, report.ActivitiesWithNewLaps)
}

func newTestBackfiller(t *testing.T, decoder Decoder, store BackfillStore) *Backfiller {
	t.Helper()
	return NewBackfiller(domain.ProviderGarmin, decoder, store,
		WithBackfillLogger(log.New(testWriter{t}, "", 0)),
	)
}

func key(externalID string) domain.ActivityKey {
	return domain.ActivityKey{Provider: domain.ProviderGarmin, ExternalID: externalID}
}

type stubBackfillStore struct {
	rows      []domain.StoredPayload
	hasLaps   map[int64]bool
	filled    []int64
	addedLaps map[int64][]domain.Lap
}

func (s *stubBackfillStore) ListWithPayload(context.Context, domain.Provider) ([]domain.StoredPayload, error) {
	return s.rows, nil
}

func (s *stubBackfillStore) FillNormalized(_ context.Context, activityID int64, _ domain.DecodedActivity) error {
	s.filled = append(s.filled, activityID)
	return nil
}

func (s *stubBackfillStore) HasLaps(_ context.Context, activityID int64) (bool, error) {
	return s.hasLaps[activityID], nil
}

func (s *stubBackfillStore) AddLaps(_ context.Context, activityID int64, laps []domain.Lap) error {
	if s.addedLaps == nil {
		s.addedLaps = make(map[int64][]domain.Lap)
	}
	s.addedLaps[activityID] = laps
	return nil
}
