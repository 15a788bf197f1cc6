// Package ingest moves selected remote activities into the local store and
// repairs stored ones from their raw payloads.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"example.com/trainlog/internal/domain"
	"example.com/trainlog/internal/fitcodec"
)

// PayloadFetcher retrieves the raw provider document for one external id.
type PayloadFetcher interface {
	FetchPayload(ctx context.Context, externalID string) ([]byte, error)
}

// Decoder turns a raw payload into the normalized decoded form.
type Decoder interface {
	Decode(provider domain.Provider, payload []byte) (domain.DecodedActivity, error)
}

// Store is the persistence surface the importer writes through.
type Store interface {
	HasActivity(ctx context.Context, key domain.ActivityKey) (bool, error)
	CreateImport(ctx context.Context, bundle domain.ImportBundle) (int64, error)
}

// Option configures optional behaviour for the Importer.
type Option func(*Importer)

// WithLogger overrides the logger used to report per-key failures.
func WithLogger(logger *log.Logger) Option {
	return func(im *Importer) {
		im.logger = logger
	}
}

// WithKeyTimeout bounds the fetch/decode/persist sequence for a single key.
func WithKeyTimeout(timeout time.Duration) Option {
	return func(im *Importer) {
		im.keyTimeout = timeout
	}
}

// Importer runs the per-key import sequence. Each key is an independent
// transaction: one key's failure never rolls back or blocks a sibling.
type Importer struct {
	provider   domain.Provider
	fetcher    PayloadFetcher
	decoder    Decoder
	store      Store
	keyTimeout time.Duration
	logger     *log.Logger
}

// NewImporter constructs an Importer for one provider.
func NewImporter(provider domain.Provider, fetcher PayloadFetcher, decoder Decoder, store Store, opts ...Option) *Importer {
	im := &Importer{
		provider: provider,
		fetcher:  fetcher,
		decoder:  decoder,
		store:    store,
		logger:   log.New(log.Writer(), "[import] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

// ImportRides imports the submitted external ids in order. Duplicate
// submissions within the batch collapse to one attempt; a key already stored
// (or losing a concurrent race on the uniqueness constraint) reports as
// skipped.
func (im *Importer) ImportRides(ctx context.Context, externalIDs []string) (domain.ImportReport, error) {
	report := domain.ImportReport{Errors: []domain.ImportError{}, ImportedIDs: []string{}}

	start := time.Now()
	defer func() {
		batchDuration.Observe(time.Since(start).Seconds())
	}()

	for _, externalID := range normalizeIDs(externalIDs) {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		switch outcome, reason := im.importOne(ctx, externalID); outcome {
		case outcomeLoaded:
			report.Loaded++
			report.ImportedIDs = append(report.ImportedIDs, externalID)
			ridesLoaded.Inc()
		case outcomeSkipped:
			report.Skipped++
			ridesSkipped.Inc()
		case outcomeError:
			report.Errors = append(report.Errors, domain.ImportError{ExternalID: externalID, Reason: reason})
			ridesFailed.Inc()
			im.logger.Printf("import %s:%s failed: %s", im.provider, externalID, reason)
		}
	}

	return report, nil
}

type outcome int

const (
	outcomeLoaded outcome = iota
	outcomeSkipped
	outcomeError
)

func (im *Importer) importOne(parent context.Context, externalID string) (outcome, string) {
	ctx := parent
	if im.keyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, im.keyTimeout)
		defer cancel()
	}

	key := domain.ActivityKey{Provider: im.provider, ExternalID: externalID}

	// Re-check the index: the reconciliation view the client selected from
	// may be stale.
	exists, err := im.store.HasActivity(ctx, key)
	if err != nil {
		return outcomeError, fmt.Sprintf("index lookup failed: %v", err)
	}
	if exists {
		return outcomeSkipped, ""
	}

	payload, err := im.fetcher.FetchPayload(ctx, externalID)
	if err != nil {
		return outcomeError, fmt.Sprintf("payload fetch failed: %v", err)
	}

	decoded, err := im.decoder.Decode(im.provider, payload)
	if err != nil {
		return outcomeError, fmt.Sprintf("payload decode failed: %v", err)
	}

	bundle := buildBundle(key, payload, decoded)
	if _, err := im.store.CreateImport(ctx, bundle); err != nil {
		if errors.Is(err, domain.ErrDuplicateActivity) {
			// A concurrent import of the same key won the uniqueness race.
			return outcomeSkipped, ""
		}
		return outcomeError, fmt.Sprintf("storage failed: %v", err)
	}

	return outcomeLoaded, ""
}

func buildBundle(key domain.ActivityKey, payload []byte, decoded domain.DecodedActivity) domain.ImportBundle {
	digest := sha256.Sum256(payload)

	contentType := "application/json"
	if fitcodec.IsFIT(payload) {
		contentType = "application/vnd.ant.fit"
	}

	return domain.ImportBundle{
		Activity: domain.Activity{
			Key:          key,
			Name:         decoded.Name,
			Sport:        decoded.Sport,
			StartedAt:    decoded.StartLocal,
			StartedAtUTC: decoded.StartUTC,
			DurationS:    decoded.DurationS,
			DistanceM:    decoded.DistanceM,
			AvgPowerW:    decoded.AvgPowerW,
			AvgHeartRate: decoded.AvgHeartRate,
			AvgSpeedMPS:  decoded.AvgSpeedMPS,
			StressScore:  decoded.StressScore,
		},
		Payload: domain.RawPayload{
			Content:     payload,
			ContentType: contentType,
			SHA256:      hex.EncodeToString(digest[:]),
			SizeBytes:   len(payload),
			FetchedAt:   time.Now().UTC(),
		},
		Session: decoded.Session,
		Laps:    decoded.Laps,
	}
}

// normalizeIDs trims, drops empties, and de-duplicates while preserving the
// submitted order.
func normalizeIDs(externalIDs []string) []string {
	seen := make(map[string]struct{}, len(externalIDs))
	out := make([]string, 0, len(externalIDs))
	for _, raw := range externalIDs {
		id := strings.TrimSpace(raw)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
