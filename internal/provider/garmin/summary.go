package garmin

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"example.com/trainlog/internal/domain"
)

// Garmin moves summary fields around between API versions: sometimes they
// sit at the top level, sometimes under a summaryDTO sub-document, and a few
// keys exist in two spellings. Every lookup here tolerates absence by
// returning nil instead of failing the import.

// DecodeSummary turns a raw Garmin activity document into the normalized
// decoded form. Malformed JSON is a DecodeError; missing fields are not.
func DecodeSummary(raw []byte) (domain.DecodedActivity, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return domain.DecodedActivity{}, &domain.DecodeError{Reason: "malformed summary document", Err: err}
	}

	decoded := domain.DecodedActivity{
		Name:         nameOrDefault(doc, "Garmin activity"),
		Sport:        sportKey(doc),
		StartLocal:   toTime(pickValue(doc, "startTimeLocal", "activityStartTimeLocal")),
		StartUTC:     toTime(pickValue(doc, "startTimeGMT", "startTimeUtc")),
		DurationS:    durationSeconds(doc),
		DistanceM:    toFloat(pickValue(doc, "distance")),
		AvgPowerW:    toFloat(pickValue(doc, "avgPower", "averagePower")),
		AvgHeartRate: toFloat(pickValue(doc, "averageHR")),
		AvgSpeedMPS:  toFloat(pickValue(doc, "averageSpeed", "averageMovingSpeed")),
		StressScore:  toFloat(pickValue(doc, "trainingStressScore", "activityTrainingLoad")),
	}

	decoded.Session = sessionFromSummary(decoded)
	decoded.Laps = lapsFromSplits(doc)
	return decoded, nil
}

// mapSummaryItem normalizes one entry of the activity list response. Items
// without an extractable id are dropped.
func mapSummaryItem(item map[string]any) (domain.RemoteRide, bool) {
	externalID, ok := extractActivityID(item)
	if !ok {
		return domain.RemoteRide{}, false
	}

	return domain.RemoteRide{
		Key:          domain.ActivityKey{Provider: domain.ProviderGarmin, ExternalID: externalID},
		Name:         nameOrDefault(item, "Unnamed activity"),
		StartLocal:   toTime(pickValue(item, "startTimeLocal", "activityStartTimeLocal")),
		StartUTC:     toTime(pickValue(item, "startTimeGMT", "startTimeUtc")),
		DurationS:    durationSeconds(item),
		DistanceM:    toFloat(pickValue(item, "distance")),
		AvgPowerW:    toFloat(pickValue(item, "avgPower", "averagePower")),
		AvgHeartRate: toFloat(pickValue(item, "averageHR")),
		AvgSpeedMPS:  toFloat(pickValue(item, "averageSpeed", "averageMovingSpeed")),
	}, true
}

func extractActivityID(item map[string]any) (string, bool) {
	for _, key := range []string{"activityId", "activityIdLong", "summaryId", "id"} {
		value, ok := item[key]
		if !ok || value == nil {
			continue
		}
		switch v := value.(type) {
		case string:
			if v != "" {
				return v, true
			}
		case float64:
			return strconv.FormatInt(int64(v), 10), true
		}
	}
	return "", false
}

func nameOrDefault(doc map[string]any, fallback string) string {
	if name, ok := doc["activityName"].(string); ok && name != "" {
		return name
	}
	return fallback
}

func sportKey(doc map[string]any) *string {
	for _, key := range []string{"activityTypeDTO", "activityType"} {
		if sub, ok := doc[key].(map[string]any); ok {
			if typeKey, ok := sub["typeKey"].(string); ok && typeKey != "" {
				return &typeKey
			}
		}
	}
	return nil
}

// pickValue looks up keys at the top level first, then under summaryDTO.
func pickValue(doc map[string]any, keys ...string) any {
	for _, key := range keys {
		if value, ok := doc[key]; ok && value != nil {
			return value
		}
	}
	summary, ok := doc["summaryDTO"].(map[string]any)
	if !ok {
		return nil
	}
	for _, key := range keys {
		if value, ok := summary[key]; ok && value != nil {
			return value
		}
	}
	return nil
}

func durationSeconds(doc map[string]any) *int {
	for _, key := range []string{"duration", "movingDuration", "elapsedDuration"} {
		if f := toFloat(pickValue(doc, key)); f != nil {
			seconds := int(*f)
			return &seconds
		}
	}
	return nil
}

func toFloat(value any) *float64 {
	switch v := value.(type) {
	case float64:
		return &v
	case string:
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return &parsed
		}
	}
	return nil
}

// toTime parses Garmin's timestamp spellings ("2026-02-11 07:30:00",
// ISO-8601 with or without zone). Unparsable values map to nil.
func toTime(value any) *time.Time {
	text, ok := value.(string)
	if !ok || text == "" {
		return nil
	}
	normalized := strings.NewReplacer("T", " ", "Z", "", ".0", "").Replace(text)
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02 15:04:05.000"} {
		if parsed, err := time.Parse(layout, normalized); err == nil {
			return &parsed
		}
	}
	if parsed, err := time.Parse(time.RFC3339, text); err == nil {
		parsed = parsed.UTC()
		return &parsed
	}
	return nil
}

func sessionFromSummary(decoded domain.DecodedActivity) *domain.Session {
	session := &domain.Session{
		SessionIndex:  0,
		StartTime:     decoded.StartLocal,
		TotalDistance: decoded.DistanceM,
		AvgSpeedMPS:   decoded.AvgSpeedMPS,
		AvgPowerW:     decoded.AvgPowerW,
		AvgHeartRate:  decoded.AvgHeartRate,
	}
	if decoded.DurationS != nil {
		elapsed := float64(*decoded.DurationS)
		session.TotalElapsedS = &elapsed
		timer := elapsed
		session.TotalTimerS = &timer
	}
	return session
}

func lapsFromSplits(doc map[string]any) []domain.Lap {
	rawSplits, ok := doc["splitSummaries"].([]any)
	if !ok || len(rawSplits) == 0 {
		return nil
	}

	laps := make([]domain.Lap, 0, len(rawSplits))
	for i, rawSplit := range rawSplits {
		split, ok := rawSplit.(map[string]any)
		if !ok {
			continue
		}
		lap := domain.Lap{
			LapIndex:      i,
			StartTime:     toTime(pickValue(split, "startTimeLocal", "startTimeGMT")),
			TotalDistance: toFloat(pickValue(split, "distance")),
			AvgSpeedMPS:   toFloat(pickValue(split, "averageSpeed", "averageMovingSpeed")),
			AvgPowerW:     toFloat(pickValue(split, "averagePower")),
			MaxPowerW:     toFloat(pickValue(split, "maxPower")),
			AvgHeartRate:  toFloat(pickValue(split, "averageHR")),
			MaxHeartRate:  toFloat(pickValue(split, "maxHR")),
		}
		if seconds := durationSeconds(split); seconds != nil {
			elapsed := float64(*seconds)
			lap.TotalElapsedS = &elapsed
			timer := elapsed
			lap.TotalTimerS = &timer
		}
		laps = append(laps, lap)
	}
	if len(laps) == 0 {
		return nil
	}
	return laps
}
