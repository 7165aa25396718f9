package timeutil

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// InvalidTimeInputError signals an unparseable authoring-time input.
// It is surfaced to the caller for correction, never retried.
type InvalidTimeInputError struct {
	Input  string
	Reason string
}

func (e *InvalidTimeInputError) Error() string {
	return fmt.Sprintf("invalid time input %q: %s", e.Input, e.Reason)
}

// Timezone labels are resolved through a fixed table of offsets. This
// deliberately forfeits daylight-saving precision; do not swap in IANA
// lookups without revisiting the delivery-time guarantees.
var zoneOffsets = map[string]int{
	"UTC":  0,
	"GMT":  0,
	"EST":  -5 * 3600,
	"CST":  -6 * 3600,
	"MST":  -7 * 3600,
	"PST":  -8 * 3600,
	"CET":  1 * 3600,
	"IST":  5*3600 + 1800,
	"JST":  9 * 3600,
	"AEST": 10 * 3600,
}

// Zones returns the recognized timezone labels.
func Zones() []string {
	out := make([]string, 0, len(zoneOffsets))
	for label := range zoneOffsets {
		out = append(out, label)
	}
	return out
}

// ToInstant converts a (date, time-of-day, timezone label) triple into an
// absolute instant in UTC. Date is YYYY-MM-DD, timeOfDay is 24-hour HH:MM.
func ToInstant(date, timeOfDay, timezone string) (time.Time, error) {
	offset, ok := zoneOffsets[timezone]
	if !ok {
		return time.Time{}, &InvalidTimeInputError{Input: timezone, Reason: "unrecognized timezone label"}
	}

	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		return time.Time{}, &InvalidTimeInputError{Input: date, Reason: "date must be YYYY-MM-DD"}
	}

	hour, minute, err := parseClock(timeOfDay)
	if err != nil {
		return time.Time{}, err
	}

	loc := time.FixedZone(timezone, offset)
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, loc).UTC(), nil
}

// IsPast reports whether instant has been reached: now >= instant.
func IsPast(instant, now time.Time) bool {
	return !now.Before(instant)
}

func parseClock(timeOfDay string) (hour, minute int, err error) {
	bad := func(reason string) (int, int, error) {
		return 0, 0, &InvalidTimeInputError{Input: timeOfDay, Reason: reason}
	}

	parts := strings.Split(timeOfDay, ":")
	if len(parts) != 2 || len(parts[0]) != 2 || len(parts[1]) != 2 {
		return bad("time must be 24-hour HH:MM")
	}

	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return bad("hour must be 00-23")
	}

	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return bad("minute must be 00-59")
	}

	return hour, minute, nil
}
