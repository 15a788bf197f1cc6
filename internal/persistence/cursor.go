// Package persistence contains helpers shared by repository consumers.
package persistence

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

const weekCursorLayout = "2006-01-02"

// EncodeWeekCursor serialises a week start to an opaque pagination token.
func EncodeWeekCursor(weekStart time.Time) string {
	return base64.StdEncoding.EncodeToString([]byte(weekStart.Format(weekCursorLayout)))
}

// DecodeWeekCursor parses an encoded week cursor token. An empty token means
// no cursor.
func DecodeWeekCursor(token string) (*time.Time, error) {
	if strings.TrimSpace(token) == "" {
		return nil, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, err
	}
	weekStart, err := time.Parse(weekCursorLayout, string(decoded))
	if err != nil {
		return nil, fmt.Errorf("invalid cursor format")
	}
	return &weekStart, nil
}
