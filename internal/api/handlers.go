// Package api exposes the HTTP surface for reconciliation, import, repair,
// and the weekly views.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"example.com/trainlog/internal/aggregate"
	"example.com/trainlog/internal/domain"
	"example.com/trainlog/internal/persistence"
)

// Reconciler answers the missing-rides query.
type Reconciler interface {
	MissingRides(ctx context.Context, limit int) (domain.ReconcileReport, error)
}

// Importer runs an import batch over submitted activity ids.
type Importer interface {
	ImportRides(ctx context.Context, externalIDs []string) (domain.ImportReport, error)
}

// Repairer re-derives normalized fields from stored raw payloads.
type Repairer interface {
	Run(ctx context.Context) (domain.BackfillReport, error)
}

// WeekService serves the weekly query and the weeks-available index.
type WeekService interface {
	Week(ctx context.Context, ref time.Time) (domain.WeekReport, error)
	WeeksAvailable(ctx context.Context) ([]domain.WeekIndexEntry, error)
}

// Handler coordinates HTTP requests with the engines behind them.
type Handler struct {
	reconciler Reconciler
	importer   Importer
	repairer   Repairer
	weeks      WeekService
}

// NewHandler builds a Handler.
func NewHandler(reconciler Reconciler, importer Importer, repairer Repairer, weeks WeekService) *Handler {
	return &Handler{
		reconciler: reconciler,
		importer:   importer,
		repairer:   repairer,
		weeks:      weeks,
	}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/rides/missing", h.missingRides)
	mux.HandleFunc("/v1/rides/import", h.importRides)
	mux.HandleFunc("/v1/rides/repair", h.repairRides)
	mux.HandleFunc("/v1/weeks/activities", h.weekActivities)
	mux.HandleFunc("/v1/weeks", h.weeksAvailable)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) missingRides(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", "limit must be an integer")
			return
		}
		limit = parsed
	}

	report, err := h.reconciler.MissingRides(r.Context(), limit)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toReconcileResponse(report))
}

func (h *Handler) importRides(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	var req ImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if len(req.ActivityIDs) == 0 {
		writeError(w, http.StatusBadRequest, "validation_failed", "activity_ids is required")
		return
	}

	report, err := h.importer.ImportRides(r.Context(), req.ActivityIDs)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toImportResponse(report))
}

func (h *Handler) repairRides(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	report, err := h.repairer.Run(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, RepairResponse{
		UpdatedActivities:     report.UpdatedActivities,
		ActivitiesWithNewLaps: report.ActivitiesWithNewLaps,
	})
}

func (h *Handler) weekActivities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	raw := r.URL.Query().Get("date")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "missing date parameter")
		return
	}
	ref, err := aggregate.ParseReferenceDate(raw)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	report, err := h.weeks.Week(r.Context(), ref)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toWeekResponse(report))
}

func (h *Handler) weeksAvailable(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	cursor, err := persistence.DecodeWeekCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	entries, err := h.weeks.WeeksAvailable(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}

	if cursor != nil {
		filtered := entries[:0:0]
		for _, entry := range entries {
			if entry.WeekStart.Before(*cursor) {
				filtered = append(filtered, entry)
			}
		}
		entries = filtered
	}

	nextCursor := ""
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
		nextCursor = persistence.EncodeWeekCursor(entries[len(entries)-1].WeekStart)
	}

	weeks := make([]WeekIndexView, 0, len(entries))
	for _, entry := range entries {
		weeks = append(weeks, WeekIndexView{
			WeekStart:     entry.WeekStart.Format(dateLayout),
			WeekEnd:       entry.WeekEnd.Format(dateLayout),
			ActivityCount: entry.ActivityCount,
		})
	}
	writeJSON(w, http.StatusOK, WeeksResponse{Weeks: weeks, NextCursor: nextCursor})
}

const dateLayout = "2006-01-02"

// ImportRequest is the payload for POST /v1/rides/import.
type ImportRequest struct {
	ActivityIDs []string `json:"activity_ids"`
}

// ImportResponse aggregates per-key outcomes of one import batch.
type ImportResponse struct {
	Loaded      int               `json:"loaded"`
	Skipped     int               `json:"skipped"`
	Errors      []ImportErrorView `json:"errors"`
	ImportedIDs []string          `json:"imported_ids"`
}

// ImportErrorView reports why one activity id failed to import.
type ImportErrorView struct {
	ActivityID string `json:"activity_id"`
	Reason     string `json:"reason"`
}

// RepairResponse describes the outcome of POST /v1/rides/repair.
type RepairResponse struct {
	UpdatedActivities     int `json:"updated_activities"`
	ActivitiesWithNewLaps int `json:"activities_with_new_laps"`
}

// ReconcileResponse lists remote rides absent from the local store.
type ReconcileResponse struct {
	GeneratedAt time.Time        `json:"generated_at"`
	Summary     ReconcileSummary `json:"summary"`
	Rides       []RideView       `json:"rides"`
}

// ReconcileSummary carries the counts for one reconciliation run.
type ReconcileSummary struct {
	CheckedRecentRides int `json:"checked_recent_rides"`
	AlreadyLoaded      int `json:"already_loaded"`
	Missing            int `json:"missing"`
}

// RideView exposes one remote ride summary.
type RideView struct {
	ActivityID    string     `json:"activity_id"`
	Provider      string     `json:"provider"`
	Name          string     `json:"name"`
	StartLocal    *time.Time `json:"start_local,omitempty"`
	StartUTC      *time.Time `json:"start_utc,omitempty"`
	DurationS     *int       `json:"duration_s,omitempty"`
	DurationLabel *string    `json:"duration_label,omitempty"`
	DistanceM     *float64   `json:"distance_m,omitempty"`
	AvgPowerW     *float64   `json:"avg_power_w,omitempty"`
	AvgHeartRate  *float64   `json:"avg_hr,omitempty"`
	AvgSpeedKMH   *float64   `json:"avg_speed_kmh,omitempty"`
}

// ActivityView exposes one stored activity inside a day group.
type ActivityView struct {
	ActivityID    int64      `json:"activity_id"`
	Provider      string     `json:"provider"`
	ExternalID    string     `json:"external_id"`
	Name          string     `json:"name"`
	Sport         *string    `json:"sport,omitempty"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	DurationS     *int       `json:"duration_s,omitempty"`
	DurationLabel *string    `json:"duration_label,omitempty"`
	DistanceM     *float64   `json:"distance_m,omitempty"`
	AvgPowerW     *float64   `json:"avg_power_w,omitempty"`
	AvgHeartRate  *float64   `json:"avg_hr,omitempty"`
	AvgSpeedKMH   *float64   `json:"avg_speed_kmh,omitempty"`
	StressScore   *float64   `json:"stress_score,omitempty"`
}

// SummaryView is the day or week rollup.
type SummaryView struct {
	ActivityCount int      `json:"activity_count"`
	MovingTimeS   int      `json:"moving_time_s"`
	DistanceM     float64  `json:"distance_m"`
	StressTotal   float64  `json:"stress_total"`
	StressAvg     *float64 `json:"stress_avg"`
}

// DayView is one calendar day of the weekly query.
type DayView struct {
	Date       string         `json:"date"`
	Weekday    string         `json:"weekday"`
	Activities []ActivityView `json:"activities"`
	Summary    SummaryView    `json:"summary"`
}

// ProgressView reports weekly target attainment.
type ProgressView struct {
	DistancePercent float64 `json:"distance_percent"`
	TimePercent     float64 `json:"time_percent"`
	LoadScore       int     `json:"load_score"`
}

// WeekResponse is the full weekly query result.
type WeekResponse struct {
	WeekStart string       `json:"week_start"`
	WeekEnd   string       `json:"week_end"`
	Days      []DayView    `json:"days"`
	Summary   SummaryView  `json:"summary"`
	Progress  ProgressView `json:"progress"`
}

// WeekIndexView is one row of the weeks-available index.
type WeekIndexView struct {
	WeekStart     string `json:"week_start"`
	WeekEnd       string `json:"week_end"`
	ActivityCount int    `json:"activity_count"`
}

// WeeksResponse packages the weeks-available index.
type WeeksResponse struct {
	Weeks      []WeekIndexView `json:"weeks"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

func toReconcileResponse(report domain.ReconcileReport) ReconcileResponse {
	rides := make([]RideView, 0, len(report.Rides))
	for _, ride := range report.Rides {
		rides = append(rides, RideView{
			ActivityID:    ride.Key.ExternalID,
			Provider:      string(ride.Key.Provider),
			Name:          ride.Name,
			StartLocal:    ride.StartLocal,
			StartUTC:      ride.StartUTC,
			DurationS:     ride.DurationS,
			DurationLabel: domain.DurationLabel(ride.DurationS),
			DistanceM:     ride.DistanceM,
			AvgPowerW:     ride.AvgPowerW,
			AvgHeartRate:  ride.AvgHeartRate,
			AvgSpeedKMH:   avgSpeedKMH(ride.DistanceM, ride.DurationS),
		})
	}
	return ReconcileResponse{
		GeneratedAt: report.GeneratedAt,
		Summary: ReconcileSummary{
			CheckedRecentRides: report.Summary.CheckedRecentRides,
			AlreadyLoaded:      report.Summary.AlreadyLoaded,
			Missing:            report.Summary.Missing,
		},
		Rides: rides,
	}
}

func toImportResponse(report domain.ImportReport) ImportResponse {
	errs := make([]ImportErrorView, 0, len(report.Errors))
	for _, importErr := range report.Errors {
		errs = append(errs, ImportErrorView{ActivityID: importErr.ExternalID, Reason: importErr.Reason})
	}
	return ImportResponse{
		Loaded:      report.Loaded,
		Skipped:     report.Skipped,
		Errors:      errs,
		ImportedIDs: report.ImportedIDs,
	}
}

func toWeekResponse(report domain.WeekReport) WeekResponse {
	days := make([]DayView, 0, len(report.Days))
	for _, day := range report.Days {
		activities := make([]ActivityView, 0, len(day.Activities))
		for _, activity := range day.Activities {
			activities = append(activities, toActivityView(activity))
		}
		days = append(days, DayView{
			Date:       day.Date.Format(dateLayout),
			Weekday:    day.Weekday,
			Activities: activities,
			Summary:    toSummaryView(day.Summary.ActivityCount, day.Summary.MovingTimeS, day.Summary.DistanceM, day.Summary.StressTotal, day.Summary.StressAvg),
		})
	}
	return WeekResponse{
		WeekStart: report.WeekStart.Format(dateLayout),
		WeekEnd:   report.WeekEnd.Format(dateLayout),
		Days:      days,
		Summary:   toSummaryView(report.Summary.ActivityCount, report.Summary.MovingTimeS, report.Summary.DistanceM, report.Summary.StressTotal, report.Summary.StressAvg),
		Progress: ProgressView{
			DistancePercent: report.Progress.DistancePercent,
			TimePercent:     report.Progress.TimePercent,
			LoadScore:       report.Progress.LoadScore,
		},
	}
}

func toActivityView(activity domain.Activity) ActivityView {
	return ActivityView{
		ActivityID:    activity.ID,
		Provider:      string(activity.Key.Provider),
		ExternalID:    activity.Key.ExternalID,
		Name:          activity.Name,
		Sport:         activity.Sport,
		StartedAt:     activity.StartedAt,
		DurationS:     activity.DurationS,
		DurationLabel: domain.DurationLabel(activity.DurationS),
		DistanceM:     activity.DistanceM,
		AvgPowerW:     activity.AvgPowerW,
		AvgHeartRate:  activity.AvgHeartRate,
		AvgSpeedKMH:   avgSpeedKMH(activity.DistanceM, activity.DurationS),
		StressScore:   activity.StressScore,
	}
}

func toSummaryView(count, movingTimeS int, distanceM, stressTotal float64, stressAvg *float64) SummaryView {
	return SummaryView{
		ActivityCount: count,
		MovingTimeS:   movingTimeS,
		DistanceM:     distanceM,
		StressTotal:   stressTotal,
		StressAvg:     stressAvg,
	}
}

func avgSpeedKMH(distanceM *float64, durationS *int) *float64 {
	if distanceM == nil || durationS == nil || *durationS <= 0 {
		return nil
	}
	kmh := (*distanceM / 1000) / (float64(*durationS) / 3600)
	return &kmh
}

func writeEngineError(w http.ResponseWriter, err error) {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		writeError(w, http.StatusBadRequest, "validation_failed", verr.Error())
		return
	}
	var perr *domain.ProviderError
	if errors.As(err, &perr) {
		writeError(w, http.StatusBadGateway, "provider_unavailable", perr.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, "server_error", err.Error())
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
