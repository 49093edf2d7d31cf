package intent

import (
	"errors"
	"strings"
	"time"
)

// ErrInvalidDateTime means no supported layout matched.
var ErrInvalidDateTime = errors.New("unrecognized date-time")

// DefaultHour is the start hour used when a requested time is unusable.
const DefaultHour = 15

var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02 3:04 PM",
	"2006-01-02 3:04PM",
	"2006/01/02 15:04",
	"01/02/2006 15:04",
	"2006-01-02",
}

// ParseDateTime reads s in one of the supported layouts. Values without
// an offset are taken in loc.
func ParseDateTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrInvalidDateTime
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			if layout == "2006-01-02" {
				t = t.Add(DefaultHour * time.Hour)
			}
			return t, nil
		}
	}
	return time.Time{}, ErrInvalidDateTime
}

// NextDayDefault is 15:00 on the calendar day after now, in now's location.
func NextDayDefault(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d+1, DefaultHour, 0, 0, 0, now.Location())
}

// NormalizeDateTime parses s, falling back to NextDayDefault when s is
// unparseable or earlier than now. ok is false when the fallback was used.
func NormalizeDateTime(s string, now time.Time) (t time.Time, ok bool) {
	parsed, err := ParseDateTime(s, now.Location())
	if err != nil || parsed.Before(now) {
		return NextDayDefault(now), false
	}
	return parsed, true
}
