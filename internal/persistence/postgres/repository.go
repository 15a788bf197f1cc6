// Package postgres provides the Postgres-backed store for activities, raw
// payloads, sessions, laps, and outbox events.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/trainlog/internal/domain"
	"example.com/trainlog/internal/observability"
	"example.com/trainlog/internal/outbox"
)

// Repository provides Postgres-backed persistence for the import, backfill,
// and aggregation paths.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const activityColumns = `id, provider, external_id, name, sport, started_at, started_at_utc,
        duration_s, distance_m, avg_power_w, avg_heart_rate, avg_speed_mps, stress_score, created_at`

// ExistingKeys reports which of the supplied external ids are already stored
// for the provider.
func (r *Repository) ExistingKeys(ctx context.Context, provider domain.Provider, externalIDs []string) (map[string]struct{}, error) {
	existing := make(map[string]struct{}, len(externalIDs))
	if len(externalIDs) == 0 {
		return existing, nil
	}

	const query = `SELECT external_id FROM activities WHERE provider = $1 AND external_id = ANY($2)`

	rows, err := r.pool.Query(ctx, query, provider, externalIDs)
	if err != nil {
		return nil, fmt.Errorf("query existing keys: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var externalID string
		if err := rows.Scan(&externalID); err != nil {
			return nil, err
		}
		existing[externalID] = struct{}{}
	}
	return existing, rows.Err()
}

// HasActivity reports whether an activity is stored for the identity key.
func (r *Repository) HasActivity(ctx context.Context, key domain.ActivityKey) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM activities WHERE provider = $1 AND external_id = $2)`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, key.Provider, key.ExternalID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check activity %s: %w", key, err)
	}
	return exists, nil
}

// CreateImport persists the activity, its raw payload, the session and lap
// rows, and the imported event inside a single transaction. A uniqueness
// violation on the identity key reports ErrDuplicateActivity.
func (r *Repository) CreateImport(ctx context.Context, bundle domain.ImportBundle) (int64, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	const insertActivity = `INSERT INTO activities
        (provider, external_id, name, sport, started_at, started_at_utc,
         duration_s, distance_m, avg_power_w, avg_heart_rate, avg_speed_mps, stress_score)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
        RETURNING id`

	activity := bundle.Activity
	var activityID int64
	err = tx.QueryRow(ctx, insertActivity,
		activity.Key.Provider,
		activity.Key.ExternalID,
		activity.Name,
		activity.Sport,
		activity.StartedAt,
		activity.StartedAtUTC,
		activity.DurationS,
		activity.DistanceM,
		activity.AvgPowerW,
		activity.AvgHeartRate,
		activity.AvgSpeedMPS,
		activity.StressScore,
	).Scan(&activityID)
	if err != nil {
		if isUniqueViolation(err) {
			err = fmt.Errorf("activity %s: %w", activity.Key, domain.ErrDuplicateActivity)
		}
		return 0, err
	}

	const insertPayload = `INSERT INTO raw_payloads
        (activity_id, content, content_type, sha256, size_bytes, fetched_at)
        VALUES ($1,$2,$3,$4,$5,$6)`

	if _, err = tx.Exec(ctx, insertPayload,
		activityID,
		bundle.Payload.Content,
		bundle.Payload.ContentType,
		bundle.Payload.SHA256,
		bundle.Payload.SizeBytes,
		bundle.Payload.FetchedAt,
	); err != nil {
		return 0, err
	}

	if bundle.Session != nil {
		if err = insertSession(ctx, tx, activityID, *bundle.Session); err != nil {
			return 0, err
		}
	}

	if err = insertLaps(ctx, tx, activityID, bundle.Laps); err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	event := outbox.ActivityImported{
		EventID:      uuid.NewString(),
		Provider:     string(activity.Key.Provider),
		ExternalID:   activity.Key.ExternalID,
		ActivityID:   activityID,
		Name:         activity.Name,
		Sport:        activity.Sport,
		StartedAtUTC: activity.StartedAtUTC,
		DurationS:    activity.DurationS,
		DistanceM:    activity.DistanceM,
		OccurredAt:   now,
	}
	dedupeKey := fmt.Sprintf("%d:activity.imported", activityID)
	if err = insertOutbox(ctx, tx, "activity.imported", activity.Key.String(), dedupeKey, event); err != nil {
		return 0, err
	}

	if err = tx.Commit(ctx); err != nil {
		return 0, err
	}
	observability.RecordActivityImported(now)
	return activityID, nil
}

// ActivitiesBetween returns activities whose local start falls in
// [start, end), ordered by start then id.
func (r *Repository) ActivitiesBetween(ctx context.Context, start, end time.Time) ([]domain.Activity, error) {
	query := `SELECT ` + activityColumns + `
        FROM activities
        WHERE started_at >= $1 AND started_at < $2
        ORDER BY started_at, id`

	rows, err := r.pool.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("query week activities: %w", err)
	}
	defer rows.Close()

	return scanActivities(rows)
}

// StartTimes returns the local start time of every activity that has one.
func (r *Repository) StartTimes(ctx context.Context) ([]time.Time, error) {
	const query = `SELECT started_at FROM activities WHERE started_at IS NOT NULL ORDER BY started_at`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query start times: %w", err)
	}
	defer rows.Close()

	var startTimes []time.Time
	for rows.Next() {
		var started time.Time
		if err := rows.Scan(&started); err != nil {
			return nil, err
		}
		startTimes = append(startTimes, started)
	}
	return startTimes, rows.Err()
}

// ListWithPayload returns every stored activity of the provider together
// with its raw payload bytes.
func (r *Repository) ListWithPayload(ctx context.Context, provider domain.Provider) ([]domain.StoredPayload, error) {
	const query = `SELECT a.id, a.provider, a.external_id, a.name, a.sport, a.started_at, a.started_at_utc,
        a.duration_s, a.distance_m, a.avg_power_w, a.avg_heart_rate, a.avg_speed_mps, a.stress_score, a.created_at, p.content
        FROM activities a
        JOIN raw_payloads p ON p.activity_id = a.id
        WHERE a.provider = $1
        ORDER BY a.id`

	rows, err := r.pool.Query(ctx, query, provider)
	if err != nil {
		return nil, fmt.Errorf("query stored payloads: %w", err)
	}
	defer rows.Close()

	var stored []domain.StoredPayload
	for rows.Next() {
		var row domain.StoredPayload
		if err := scanActivityInto(rows, &row.Activity, &row.Content); err != nil {
			return nil, err
		}
		stored = append(stored, row)
	}
	return stored, rows.Err()
}

// FillNormalized fills the missing normalized fields of one activity from
// the decoded payload and records the backfill event. Fields already present
// keep their stored value.
func (r *Repository) FillNormalized(ctx context.Context, activityID int64, decoded domain.DecodedActivity) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	const stmt = `UPDATE activities SET
        sport          = COALESCE(sport, $2),
        started_at     = COALESCE(started_at, $3),
        started_at_utc = COALESCE(started_at_utc, $4),
        duration_s     = COALESCE(duration_s, $5),
        distance_m     = COALESCE(distance_m, $6),
        avg_power_w    = COALESCE(avg_power_w, $7),
        avg_heart_rate = COALESCE(avg_heart_rate, $8),
        avg_speed_mps  = COALESCE(avg_speed_mps, $9),
        stress_score   = COALESCE(stress_score, $10)
        WHERE id = $1
        RETURNING provider, external_id`

	var provider, externalID string
	err = tx.QueryRow(ctx, stmt,
		activityID,
		decoded.Sport,
		decoded.StartLocal,
		decoded.StartUTC,
		decoded.DurationS,
		decoded.DistanceM,
		decoded.AvgPowerW,
		decoded.AvgHeartRate,
		decoded.AvgSpeedMPS,
		decoded.StressScore,
	).Scan(&provider, &externalID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = fmt.Errorf("activity %d not found", activityID)
		}
		return err
	}

	now := time.Now().UTC()
	event := outbox.ActivityBackfilled{
		EventID:    uuid.NewString(),
		Provider:   provider,
		ExternalID: externalID,
		ActivityID: activityID,
		OccurredAt: now,
	}
	// Each repair run publishes its own event, so the dedupe key carries the
	// event id.
	dedupeKey := fmt.Sprintf("%d:activity.backfilled:%s", activityID, event.EventID)
	if err = insertOutbox(ctx, tx, "activity.backfilled", provider+":"+externalID, dedupeKey, event); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return err
	}
	observability.RecordActivityBackfilled(now)
	return nil
}

// HasLaps reports whether any lap rows exist for the activity.
func (r *Repository) HasLaps(ctx context.Context, activityID int64) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM activity_laps WHERE activity_id = $1)`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, activityID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check laps for activity %d: %w", activityID, err)
	}
	return exists, nil
}

// AddLaps inserts lap rows for an activity that has none.
func (r *Repository) AddLaps(ctx context.Context, activityID int64, laps []domain.Lap) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if err = insertLaps(ctx, tx, activityID, laps); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func insertSession(ctx context.Context, tx pgx.Tx, activityID int64, session domain.Session) error {
	const stmt = `INSERT INTO activity_sessions
        (activity_id, session_index, start_time, total_elapsed_s, total_timer_s, total_distance_m,
         avg_speed_mps, max_speed_mps, avg_power_w, max_power_w, avg_heart_rate, max_heart_rate)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`

	_, err := tx.Exec(ctx, stmt,
		activityID,
		session.SessionIndex,
		session.StartTime,
		session.TotalElapsedS,
		session.TotalTimerS,
		session.TotalDistance,
		session.AvgSpeedMPS,
		session.MaxSpeedMPS,
		session.AvgPowerW,
		session.MaxPowerW,
		session.AvgHeartRate,
		session.MaxHeartRate,
	)
	return err
}

func insertLaps(ctx context.Context, tx pgx.Tx, activityID int64, laps []domain.Lap) error {
	const stmt = `INSERT INTO activity_laps
        (activity_id, lap_index, start_time, total_elapsed_s, total_timer_s, total_distance_m,
         avg_speed_mps, avg_power_w, max_power_w, avg_heart_rate, max_heart_rate)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`

	for _, lap := range laps {
		if _, err := tx.Exec(ctx, stmt,
			activityID,
			lap.LapIndex,
			lap.StartTime,
			lap.TotalElapsedS,
			lap.TotalTimerS,
			lap.TotalDistance,
			lap.AvgSpeedMPS,
			lap.AvgPowerW,
			lap.MaxPowerW,
			lap.AvgHeartRate,
			lap.MaxHeartRate,
		); err != nil {
			return err
		}
	}
	return nil
}

func insertOutbox(ctx context.Context, tx pgx.Tx, eventType, partitionKey, dedupeKey string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	topic := topicCatalog[eventType]
	if topic == "" {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	const stmt = `INSERT INTO outbox (event_type, topic, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5)`

	_, err = tx.Exec(ctx, stmt, eventType, topic, partitionKey, body, dedupeKey)
	return err
}

var topicCatalog = map[string]string{
	"activity.imported":   "activity_events",
	"activity.backfilled": "activity_events",
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanActivityInto(row rowScanner, activity *domain.Activity, extra ...any) error {
	dest := []any{
		&activity.ID,
		&activity.Key.Provider,
		&activity.Key.ExternalID,
		&activity.Name,
		&activity.Sport,
		&activity.StartedAt,
		&activity.StartedAtUTC,
		&activity.DurationS,
		&activity.DistanceM,
		&activity.AvgPowerW,
		&activity.AvgHeartRate,
		&activity.AvgSpeedMPS,
		&activity.StressScore,
		&activity.CreatedAt,
	}
	dest = append(dest, extra...)
	return row.Scan(dest...)
}

func scanActivities(rows pgx.Rows) ([]domain.Activity, error) {
	var activities []domain.Activity
	for rows.Next() {
		var activity domain.Activity
		if err := scanActivityInto(rows, &activity); err != nil {
			return nil, err
		}
		activities = append(activities, activity)
	}
	return activities, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
