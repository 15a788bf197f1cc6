package garmin

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/trainlog/internal/domain"
)

func TestDecodeSummaryReadsTopLevelAndNestedFields(t *testing.T) {
	raw := []byte(`{
		"activityName": "Morning Ride",
		"activityTypeDTO": {"typeKey": "cycling"},
		"startTimeLocal": "2026-02-11 07:30:00",
		"startTimeGMT": "2026-02-11 06:30:00",
		"trainingStressScore": 85.5,
		"summaryDTO": {
			"duration": 3600.2,
			"distance": 30250.5,
			"averagePower": 210.0,
			"averageHR": 142.0,
			"averageSpeed": 8.4
		}
	}`)

	decoded, err := DecodeSummary(raw)
	require.NoError(t, err)

	require.Equal(t, "Morning Ride", decoded.Name)
	require.NotNil(t, decoded.Sport)
	require.Equal(t, "cycling", *decoded.Sport)
	require.NotNil(t, decoded.StartLocal)
	require.Equal(t, time.Date(2026, 2, 11, 7, 30, 0, 0, time.UTC), *decoded.StartLocal)
	require.NotNil(t, decoded.DurationS)
	require.Equal(t, 3600, *decoded.DurationS)
	require.NotNil(t, decoded.DistanceM)
	require.Equal(t, 30250.5, *decoded.DistanceM)
	require.NotNil(t, decoded.AvgPowerW)
	require.Equal(t, 210.0, *decoded.AvgPowerW)
	require.NotNil(t, decoded.StressScore)
	require.Equal(t, 85.5, *decoded.StressScore)

	require.NotNil(t, decoded.Session)
	require.Equal(t, decoded.DistanceM, decoded.Session.TotalDistance)
}

func TestDecodeSummaryToleratesMissingFields(t *testing.T) {
	decoded, err := DecodeSummary([]byte(`{}`))
	require.NoError(t, err)

	require.Equal(t, "Garmin activity", decoded.Name)
	require.Nil(t, decoded.Sport)
	require.Nil(t, decoded.StartLocal)
	require.Nil(t, decoded.DurationS)
	require.Nil(t, decoded.DistanceM)
	require.Nil(t, decoded.StressScore)
	require.Nil(t, decoded.Laps)
}

func TestDecodeSummaryRejectsMalformedJSON(t *testing.T) {
	_, err := DecodeSummary([]byte(`not json`))

	var derr *domain.DecodeError
	require.ErrorAs(t, err, &derr)
}

func TestDecodeSummaryFallsBackForDurationAndStress(t *testing.T) {
	raw := []byte(`{
		"movingDuration": 1800.0,
		"activityTrainingLoad": 42.0
	}`)

	decoded, err := DecodeSummary(raw)
	require.NoError(t, err)

	require.NotNil(t, decoded.DurationS)
	require.Equal(t, 1800, *decoded.DurationS)
	require.NotNil(t, decoded.StressScore)
	require.Equal(t, 42.0, *decoded.StressScore)
}

func TestDecodeSummaryBuildsLapsFromSplits(t *testing.T) {
	raw := []byte(`{
		"splitSummaries": [
			{"distance": 10000.0, "duration": 1200.0, "averagePower": 220.0},
			{"distance": 9800.0, "duration": 1250.0, "maxHR": 171.0}
		]
	}`)

	decoded, err := DecodeSummary(raw)
	require.NoError(t, err)

	require.Len(t, decoded.Laps, 2)
	require.Equal(t, 0, decoded.Laps[0].LapIndex)
	require.Equal(t, 1, decoded.Laps[1].LapIndex)
	require.NotNil(t, decoded.Laps[0].TotalDistance)
	require.Equal(t, 10000.0, *decoded.Laps[0].TotalDistance)
	require.NotNil(t, decoded.Laps[0].TotalElapsedS)
	require.Equal(t, 1200.0, *decoded.Laps[0].TotalElapsedS)
	require.NotNil(t, decoded.Laps[1].MaxHeartRate)
	require.Equal(t, 171.0, *decoded.Laps[1].MaxHeartRate)
}

func TestMapSummaryItemExtractsIDs(t *testing.T) {
	ride, ok := mapSummaryItem(map[string]any{
		"activityId":   float64(12345678901),
		"activityName": "Evening Ride",
	})
	require.True(t, ok)
	require.Equal(t, "12345678901", ride.Key.ExternalID)
	require.Equal(t, domain.ProviderGarmin, ride.Key.Provider)
	require.Equal(t, "Evening Ride", ride.Name)

	ride, ok = mapSummaryItem(map[string]any{"summaryId": "garmin-42"})
	require.True(t, ok)
	require.Equal(t, "garmin-42", ride.Key.ExternalID)
	require.Equal(t, "Unnamed activity", ride.Name)

	_, ok = mapSummaryItem(map[string]any{"activityName": "no id"})
	require.False(t, ok)
}

func TestToTimeParsesGarminSpellings(t *testing.T) {
	cases := []struct {
		raw  string
		want time.Time
	}{
		{"2026-02-11 07:30:00", time.Date(2026, 2, 11, 7, 30, 0, 0, time.UTC)},
		{"2026-02-11T07:30:00.0", time.Date(2026, 2, 11, 7, 30, 0, 0, time.UTC)},
		{"2026-02-11T06:30:00Z", time.Date(2026, 2, 11, 6, 30, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		parsed := toTime(tc.raw)
		require.NotNil(t, parsed, tc.raw)
		require.True(t, tc.want.Equal(*parsed), "raw %s parsed %v", tc.raw, parsed)
	}

	require.Nil(t, toTime("yesterday"))
	require.Nil(t, toTime(nil))
}
