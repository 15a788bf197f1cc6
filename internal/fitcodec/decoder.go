// Package fitcodec decodes FIT activity exports into the normalized decoded
// form. Providers that hand back the original device recording instead of a
// JSON summary route through here.
package fitcodec

import (
	"bytes"
	"fmt"
	"time"

	"github.com/muktihari/fit/decoder"
	"github.com/muktihari/fit/profile/mesgdef"
	"github.com/muktihari/fit/profile/typedef"

	"example.com/trainlog/internal/domain"
)

// IsFIT reports whether the payload carries the FIT file magic (".FIT" at
// byte offset 8 of the header).
func IsFIT(data []byte) bool {
	return len(data) >= 12 && string(data[8:12]) == ".FIT"
}

// Decode parses FIT bytes into a DecodedActivity. The first session message
// becomes the session snapshot; lap messages become splits in file order.
func Decode(data []byte) (domain.DecodedActivity, error) {
	if len(data) == 0 {
		return domain.DecodedActivity{}, &domain.DecodeError{Reason: "empty FIT payload"}
	}

	fitDec := decoder.New(bytes.NewReader(data))

	var (
		startTime time.Time
		sport     typedef.Sport
		session   *domain.Session
		laps      []domain.Lap
	)

	for fitDec.Next() {
		fitData, err := fitDec.Decode()
		if err != nil {
			return domain.DecodedActivity{}, &domain.DecodeError{Reason: "malformed FIT payload", Err: err}
		}

		for i := range fitData.Messages {
			msg := &fitData.Messages[i]
			switch msg.Num {
			case typedef.MesgNumFileId:
				fileID := mesgdef.NewFileId(msg)
				if startTime.IsZero() && !fileID.TimeCreated.IsZero() {
					startTime = fileID.TimeCreated.UTC()
				}

			case typedef.MesgNumSession:
				sessionMsg := mesgdef.NewSession(msg)
				if session == nil {
					session = mapSession(sessionMsg)
					sport = sessionMsg.Sport
				}
				if startTime.IsZero() && !sessionMsg.StartTime.IsZero() {
					startTime = sessionMsg.StartTime.UTC()
				}

			case typedef.MesgNumLap:
				lapMsg := mesgdef.NewLap(msg)
				laps = append(laps, mapLap(lapMsg, len(laps)))
			}
		}
	}

	if session == nil {
		return domain.DecodedActivity{}, &domain.DecodeError{Reason: "no session message in FIT payload"}
	}

	decoded := domain.DecodedActivity{
		Name:         activityName(sport, startTime),
		Sport:        sportName(sport),
		DurationS:    sessionDuration(session),
		DistanceM:    session.TotalDistance,
		AvgPowerW:    session.AvgPowerW,
		AvgHeartRate: session.AvgHeartRate,
		AvgSpeedMPS:  session.AvgSpeedMPS,
		Session:      session,
		Laps:         laps,
	}
	if !startTime.IsZero() {
		utc := startTime
		decoded.StartUTC = &utc
		local := startTime
		decoded.StartLocal = &local
	}
	return decoded, nil
}

func mapSession(msg *mesgdef.Session) *domain.Session {
	session := &domain.Session{SessionIndex: 0}
	if !msg.StartTime.IsZero() {
		start := msg.StartTime.UTC()
		session.StartTime = &start
	}
	// FIT scales: elapsed/timer in ms, distance in cm, speed in mm/s.
	if msg.TotalElapsedTime != 0xFFFFFFFF {
		elapsed := float64(msg.TotalElapsedTime) / 1000
		session.TotalElapsedS = &elapsed
	}
	if msg.TotalTimerTime != 0xFFFFFFFF {
		timer := float64(msg.TotalTimerTime) / 1000
		session.TotalTimerS = &timer
	}
	if msg.TotalDistance != 0xFFFFFFFF {
		distance := float64(msg.TotalDistance) / 100
		session.TotalDistance = &distance
	}
	if msg.AvgSpeed != 0xFFFF {
		speed := float64(msg.AvgSpeed) / 1000
		session.AvgSpeedMPS = &speed
	}
	if msg.MaxSpeed != 0xFFFF {
		speed := float64(msg.MaxSpeed) / 1000
		session.MaxSpeedMPS = &speed
	}
	if msg.AvgPower != 0xFFFF {
		power := float64(msg.AvgPower)
		session.AvgPowerW = &power
	}
	if msg.MaxPower != 0xFFFF {
		power := float64(msg.MaxPower)
		session.MaxPowerW = &power
	}
	if msg.AvgHeartRate != 0xFF {
		hr := float64(msg.AvgHeartRate)
		session.AvgHeartRate = &hr
	}
	if msg.MaxHeartRate != 0xFF {
		hr := float64(msg.MaxHeartRate)
		session.MaxHeartRate = &hr
	}
	return session
}

func mapLap(msg *mesgdef.Lap, index int) domain.Lap {
	lap := domain.Lap{LapIndex: index}
	if !msg.StartTime.IsZero() {
		start := msg.StartTime.UTC()
		lap.StartTime = &start
	}
	if msg.TotalElapsedTime != 0xFFFFFFFF {
		elapsed := float64(msg.TotalElapsedTime) / 1000
		lap.TotalElapsedS = &elapsed
	}
	if msg.TotalTimerTime != 0xFFFFFFFF {
		timer := float64(msg.TotalTimerTime) / 1000
		lap.TotalTimerS = &timer
	}
	if msg.TotalDistance != 0xFFFFFFFF {
		distance := float64(msg.TotalDistance) / 100
		lap.TotalDistance = &distance
	}
	if msg.AvgSpeed != 0xFFFF {
		speed := float64(msg.AvgSpeed) / 1000
		lap.AvgSpeedMPS = &speed
	}
	if msg.AvgPower != 0xFFFF {
		power := float64(msg.AvgPower)
		lap.AvgPowerW = &power
	}
	if msg.MaxPower != 0xFFFF {
		power := float64(msg.MaxPower)
		lap.MaxPowerW = &power
	}
	if msg.AvgHeartRate != 0xFF {
		hr := float64(msg.AvgHeartRate)
		lap.AvgHeartRate = &hr
	}
	if msg.MaxHeartRate != 0xFF {
		hr := float64(msg.MaxHeartRate)
		lap.MaxHeartRate = &hr
	}
	return lap
}

func sessionDuration(session *domain.Session) *int {
	for _, candidate := range []*float64{session.TotalTimerS, session.TotalElapsedS} {
		if candidate != nil {
			seconds := int(*candidate)
			return &seconds
		}
	}
	return nil
}

func sportName(sport typedef.Sport) *string {
	var name string
	switch sport {
	case typedef.SportCycling:
		name = "cycling"
	case typedef.SportRunning:
		name = "running"
	case typedef.SportSwimming:
		name = "swimming"
	case typedef.SportWalking:
		name = "walking"
	case typedef.SportHiking:
		name = "hiking"
	case typedef.SportRowing:
		name = "rowing"
	case typedef.SportTraining:
		name = "training"
	default:
		return nil
	}
	return &name
}

func activityName(sport typedef.Sport, start time.Time) string {
	label := "Activity"
	switch sport {
	case typedef.SportCycling:
		label = "Ride"
	case typedef.SportRunning:
		label = "Run"
	case typedef.SportSwimming:
		label = "Swim"
	case typedef.SportWalking:
		label = "Walk"
	case typedef.SportHiking:
		label = "Hike"
	}
	if start.IsZero() {
		return label
	}

	hour := start.Hour()
	var timeOfDay string
	switch {
	case hour < 12:
		timeOfDay = "Morning"
	case hour < 17:
		timeOfDay = "Afternoon"
	case hour < 21:
		timeOfDay = "Evening"
	default:
		timeOfDay = "Night"
	}
	return fmt.Sprintf("%s %s", timeOfDay, label)
}
