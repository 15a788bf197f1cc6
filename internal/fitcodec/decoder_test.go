package fitcodec

import (
	"testing"
	"time"

	"github.com/muktihari/fit/profile/typedef"
	"github.com/stretchr/testify/require"

	"example.com/trainlog/internal/domain"
)

func TestIsFIT(t *testing.T) {
	header := make([]byte, 14)
	copy(header[8:12], ".FIT")
	require.True(t, IsFIT(header))

	require.False(t, IsFIT([]byte(`{"activityId":1}`)))
	require.False(t, IsFIT([]byte(".FIT")))
	require.False(t, IsFIT(nil))
}

func TestDecodeRejectsUnusablePayloads(t *testing.T) {
	for _, payload := range [][]byte{nil, []byte("definitely not a fit file")} {
		_, err := Decode(payload)

		var derr *domain.DecodeError
		require.ErrorAs(t, err, &derr)
	}
}

func TestActivityNameUsesSportAndTimeOfDay(t *testing.T) {
	cases := []struct {
		sport typedef.Sport
		hour  int
		want  string
	}{
		{typedef.SportCycling, 7, "Morning Ride"},
		{typedef.SportCycling, 13, "Afternoon Ride"},
		{typedef.SportRunning, 18, "Evening Run"},
		{typedef.SportSwimming, 22, "Night Swim"},
	}
	for _, tc := range cases {
		start := time.Date(2026, 2, 11, tc.hour, 0, 0, 0, time.UTC)
		require.Equal(t, tc.want, activityName(tc.sport, start))
	}

	require.Equal(t, "Ride", activityName(typedef.SportCycling, time.Time{}))
	require.Equal(t, "Activity", activityName(typedef.SportGolf, time.Time{}))
}

func TestSportNameCoversKnownSports(t *testing.T) {
	name := sportName(typedef.SportCycling)
	require.NotNil(t, name)
	require.Equal(t, "cycling", *name)

	require.Nil(t, sportName(typedef.SportGolf))
}
