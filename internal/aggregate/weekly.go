// Package aggregate buckets stored activities into Monday-first calendar
// weeks and computes the rollups and progress figures served by the weekly
// views.
package aggregate

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"example.com/trainlog/internal/domain"
)

// Store is the read surface the aggregator consumes. Both methods see the
// same started-at column, so the per-week query and the weeks index can never
// disagree about which bucket an activity belongs to.
type Store interface {
	ActivitiesBetween(ctx context.Context, start, end time.Time) ([]domain.Activity, error)
	StartTimes(ctx context.Context) ([]time.Time, error)
}

// Targets are the configured weekly goals the progress block is measured
// against.
type Targets struct {
	DistanceKM float64
	DurationH  float64
}

// Service answers the weekly query and the weeks-available index.
type Service struct {
	store   Store
	targets Targets
}

// NewService constructs a Service with the given targets.
func NewService(store Store, targets Targets) *Service {
	return &Service{store: store, targets: targets}
}

// WeekStart returns the Monday 00:00 of the week containing d, in d's
// location. Every consumer of week bucketing goes through this function.
func WeekStart(d time.Time) time.Time {
	// time.Weekday is Sunday-based; shift so Monday is day zero.
	offset := (int(d.Weekday()) + 6) % 7
	day := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, d.Location())
	return day.AddDate(0, 0, -offset)
}

// ParseReferenceDate parses the YYYY-MM-DD reference date of the weekly
// query.
func ParseReferenceDate(value string) (time.Time, error) {
	d, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, &domain.ValidationError{Field: "date", Reason: "must be formatted YYYY-MM-DD"}
	}
	return d, nil
}

// Week builds the full report for the week containing ref: seven day groups
// in calendar order, the week rollup, and the progress block.
func (s *Service) Week(ctx context.Context, ref time.Time) (domain.WeekReport, error) {
	weekStart := WeekStart(ref)
	weekEnd := weekStart.AddDate(0, 0, 6)

	activities, err := s.store.ActivitiesBetween(ctx, weekStart, weekStart.AddDate(0, 0, 7))
	if err != nil {
		return domain.WeekReport{}, fmt.Errorf("load week activities: %w", err)
	}

	report := domain.WeekReport{
		WeekStart: weekStart,
		WeekEnd:   weekEnd,
		Days:      make([]domain.DayGroup, 0, 7),
	}

	byDay := make(map[time.Time][]domain.Activity)
	for _, activity := range activities {
		if activity.StartedAt == nil {
			continue
		}
		started := *activity.StartedAt
		day := time.Date(started.Year(), started.Month(), started.Day(), 0, 0, 0, 0, started.Location())
		byDay[day] = append(byDay[day], activity)
	}

	for i := 0; i < 7; i++ {
		date := weekStart.AddDate(0, 0, i)
		dayActivities := byDay[date]
		if dayActivities == nil {
			dayActivities = []domain.Activity{}
		}
		report.Days = append(report.Days, domain.DayGroup{
			Date:       date,
			Weekday:    date.Weekday().String(),
			Activities: dayActivities,
			Summary:    summarizeDay(dayActivities),
		})
	}

	report.Summary = summarizeWeek(report.Days)
	report.Progress = s.progress(report.Summary)
	return report, nil
}

// WeeksAvailable lists every week that contains at least one activity, most
// recent first.
func (s *Service) WeeksAvailable(ctx context.Context) ([]domain.WeekIndexEntry, error) {
	startTimes, err := s.store.StartTimes(ctx)
	if err != nil {
		return nil, fmt.Errorf("load start times: %w", err)
	}

	counts := make(map[time.Time]int)
	for _, started := range startTimes {
		counts[WeekStart(started)]++
	}

	entries := make([]domain.WeekIndexEntry, 0, len(counts))
	for weekStart, count := range counts {
		entries = append(entries, domain.WeekIndexEntry{
			WeekStart:     weekStart,
			WeekEnd:       weekStart.AddDate(0, 0, 6),
			ActivityCount: count,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].WeekStart.After(entries[j].WeekStart)
	})
	return entries, nil
}

func summarizeDay(activities []domain.Activity) domain.DaySummary {
	summary := domain.DaySummary{ActivityCount: len(activities)}
	stressSamples := 0
	for _, activity := range activities {
		if activity.DurationS != nil {
			summary.MovingTimeS += *activity.DurationS
		}
		if activity.DistanceM != nil {
			summary.DistanceM += *activity.DistanceM
		}
		if activity.StressScore != nil {
			summary.StressTotal += *activity.StressScore
			stressSamples++
		}
	}
	if stressSamples > 0 {
		avg := summary.StressTotal / float64(stressSamples)
		summary.StressAvg = &avg
	}
	return summary
}

func summarizeWeek(days []domain.DayGroup) domain.WeekSummary {
	summary := domain.WeekSummary{}
	stressSamples := 0
	for _, day := range days {
		summary.ActivityCount += day.Summary.ActivityCount
		summary.MovingTimeS += day.Summary.MovingTimeS
		summary.DistanceM += day.Summary.DistanceM
		summary.StressTotal += day.Summary.StressTotal
		for _, activity := range day.Activities {
			if activity.StressScore != nil {
				stressSamples++
			}
		}
	}
	if stressSamples > 0 {
		avg := summary.StressTotal / float64(stressSamples)
		summary.StressAvg = &avg
	}
	return summary
}

func (s *Service) progress(summary domain.WeekSummary) domain.Progress {
	distancePercent := clampPercent(summary.DistanceM/1000, s.targets.DistanceKM)
	timePercent := clampPercent(float64(summary.MovingTimeS)/3600, s.targets.DurationH)
	return domain.Progress{
		DistancePercent: distancePercent,
		TimePercent:     timePercent,
		LoadScore:       int(math.Round((distancePercent + timePercent) / 2)),
	}
}

// clampPercent maps actual/target to [0,100]. A non-positive target yields
// zero rather than a division blowup.
func clampPercent(actual, target float64) float64 {
	if target <= 0 {
		return 0
	}
	percent := 100 * actual / target
	if percent < 0 {
		return 0
	}
	if percent > 100 {
		return 100
	}
	return percent
}
