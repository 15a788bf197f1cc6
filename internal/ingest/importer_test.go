package ingest

import (
	"context"
	"errors"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/trainlog/internal/domain"
)

func TestImportRidesLoadsNewActivities(t *testing.T) {
	ctx := context.Background()
	store := newStubStore()
	importer := newTestImporter(t, &stubFetcher{}, &stubDecoder{}, store)

	report, err := importer.ImportRides(ctx, []string{"100", "200"})
	require.NoError(t, err)

	require.Equal(t, 2, report.Loaded)
	require.Equal(t, 0, report.Skipped)
	require.Empty(t, report.Errors)
	require.Equal(t, []string{"100", "200"}, report.ImportedIDs)
	require.Len(t, store.created, 2)

	first := store.created[0]
	require.Equal(t, domain.ProviderGarmin, first.Activity.Key.Provider)
	require.Equal(t, "100", first.Activity.Key.ExternalID)
	require.NotEmpty(t, first.Payload.SHA256)
	require.Equal(t, "application/json", first.Payload.ContentType)
	require.Equal(t, len(first.Payload.Content), first.Payload.SizeBytes)
}

func TestImportRidesSkipsExistingKey(t *testing.T) {
	ctx := context.Background()
	store := newStubStore()
	store.existing["100"] = true
	importer := newTestImporter(t, &stubFetcher{}, &stubDecoder{}, store)

	report, err := importer.ImportRides(ctx, []string{"100"})
	require.NoError(t, err)

	require.Equal(t, 0, report.Loaded)
	require.Equal(t, 1, report.Skipped)
	require.Empty(t, store.created)
}

func TestImportRidesIsolatesFetchFailure(t *testing.T) {
	ctx := context.Background()
	store := newStubStore()
	fetcher := &stubFetcher{errs: map[string]error{
		"200": &domain.ProviderError{Provider: domain.ProviderGarmin, Op: "fetch activity 200", Err: errors.New("timeout")},
	}}
	importer := newTestImporter(t, fetcher, &stubDecoder{}, store)

	report, err := importer.ImportRides(ctx, []string{"100", "200", "300"})
	require.NoError(t, err)

	require.Equal(t, 2, report.Loaded)
	require.Equal(t, 0, report.Skipped)
	require.Len(t, report.Errors, 1)
	require.Equal(t, "200", report.Errors[0].ExternalID)
	require.Contains(t, report.Errors[0].Reason, "payload fetch failed")
	require.Equal(t, 3, report.Loaded+report.Skipped+len(report.Errors))
}

func TestImportRidesRecordsDecodeFailure(t *testing.T) {
	ctx := context.Background()
	store := newStubStore()
	decoder := &stubDecoder{err: &domain.DecodeError{Reason: "malformed summary document"}}
	importer := newTestImporter(t, &stubFetcher{}, decoder, store)

	report, err := importer.ImportRides(ctx, []string{"100"})
	require.NoError(t, err)

	require.Len(t, report.Errors, 1)
	require.Contains(t, report.Errors[0].Reason, "payload decode failed")
	require.Empty(t, store.created)
}

func TestImportRidesMapsUniquenessRaceToSkipped(t *testing.T) {
	ctx := context.Background()
	store := newStubStore()
	store.createErrs["100"] = domain.ErrDuplicateActivity
	importer := newTestImporter(t, &stubFetcher{}, &stubDecoder{}, store)

	report, err := importer.ImportRides(ctx, []string{"100"})
	require.NoError(t, err)

	require.Equal(t, 0, report.Loaded)
	require.Equal(t, 1, report.Skipped)
	require.Empty(t, report.Errors)
}

func TestImportRidesRecordsStorageFailure(t *testing.T) {
	ctx := context.Background()
	store := newStubStore()
	store.createErrs["100"] = errors.New("connection reset")
	importer := newTestImporter(t, &stubFetcher{}, &stubDecoder{}, store)

	report, err := importer.ImportRides(ctx, []string{"100"})
	require.NoError(t, err)

	require.Len(t, report.Errors, 1)
	require.Contains(t, report.Errors[0].Reason, "storage failed")
}

func TestImportRidesNormalizesSubmittedIDs(t *testing.T) {
	ctx := context.Background()
	store := newStubStore()
	importer := newTestImporter(t, &stubFetcher{}, &stubDecoder{}, store)

	report, err := importer.ImportRides(ctx, []string{" 100 ", "100", "", "200"})
	require.NoError(t, err)

	require.Equal(t, 2, report.Loaded)
	require.Equal(t, []string{"100", "200"}, report.ImportedIDs)
}

func TestImportRidesStoresFITContentType(t *testing.T) {
	ctx := context.Background()
	store := newStubStore()
	payload := make([]byte, 16)
	copy(payload[8:12], ".FIT")
	fetcher := &stubFetcher{payloads: map[string][]byte{"100": payload}}
	importer := newTestImporter(t, fetcher, &stubDecoder{}, store)

	report, err := importer.ImportRides(ctx, []string{"100"})
	require.NoError(t, err)
	require.Equal(t, 1, report.Loaded)
	require.Equal(t, "application/vnd.ant.fit", store.created[0].Payload.ContentType)
}

func newTestImporter(t *testing.T, fetcher *stubFetcher, decoder *stubDecoder, store *stubStore) *Importer {
	t.Helper()
	return NewImporter(domain.ProviderGarmin, fetcher, decoder, store,
		WithLogger(log.New(testWriter{t}, "", 0)),
		WithKeyTimeout(time.Second),
	)
}

type stubFetcher struct {
	payloads map[string][]byte
	errs     map[string]error
}

func (s *stubFetcher) FetchPayload(_ context.Context, externalID string) ([]byte, error) {
	if err, ok := s.errs[externalID]; ok {
		return nil, err
	}
	if payload, ok := s.payloads[externalID]; ok {
		return payload, nil
	}
	return []byte(`{"activityName":"Ride ` + externalID + `"}`), nil
}

type stubDecoder struct {
	err     error
	decoded *domain.DecodedActivity
}

func (s *stubDecoder) Decode(domain.Provider, []byte) (domain.DecodedActivity, error) {
	if s.err != nil {
		return domain.DecodedActivity{}, s.err
	}
	if s.decoded != nil {
		return *s.decoded, nil
	}
	duration := 3600
	distance := 30000.0
	return domain.DecodedActivity{
		Name:      "Decoded ride",
		DurationS: &duration,
		DistanceM: &distance,
	}, nil
}

type stubStore struct {
	existing   map[string]bool
	createErrs map[string]error
	created    []domain.ImportBundle
}

func newStubStore() *stubStore {
	return &stubStore{
		existing:   make(map[string]bool),
		createErrs: make(map[string]error),
	}
}

func (s *stubStore) HasActivity(_ context.Context, key domain.ActivityKey) (bool, error) {
	return s.existing[key.ExternalID], nil
}

func (s *stubStore) CreateImport(_ context.Context, bundle domain.ImportBundle) (int64, error) {
	if err, ok := s.createErrs[bundle.Activity.Key.ExternalID]; ok {
		return 0, err
	}
	s.created = append(s.created, bundle)
	return int64(len(s.created)), nil
}

type testWriter struct {
	t *testing.T
}

func (tw testWriter) Write(p []byte) (int, error) {
	tw.t.Log(string(p))
	return len(p), nil
}
