package timeutil

import (
	"errors"
	"testing"
	"time"
)

func TestToInstant_KnownZones(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		tz   string
		want time.Time
	}{
		{"UTC", "UTC", time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC)},
		{"GMT matches UTC", "GMT", time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC)},
		{"PST is UTC-8", "PST", time.Date(2025, 6, 2, 2, 0, 0, 0, time.UTC)},
		{"EST is UTC-5", "EST", time.Date(2025, 6, 1, 23, 0, 0, 0, time.UTC)},
		{"CET is UTC+1", "CET", time.Date(2025, 6, 1, 17, 0, 0, 0, time.UTC)},
		{"IST half-hour offset", "IST", time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)},
		{"JST is UTC+9", "JST", time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)},
		{"AEST is UTC+10", "AEST", time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := ToInstant("2025-06-01", "18:00", tc.tz)
			if err != nil {
				t.Fatalf("ToInstant() error: %v", err)
			}
			if !got.Equal(tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestToInstant_InvalidInputs(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name            string
		date, tod, zone string
	}{
		{"unknown timezone", "2025-06-01", "18:00", "PDT"},
		{"empty timezone", "2025-06-01", "18:00", ""},
		{"bad date", "June 1st", "18:00", "UTC"},
		{"empty date", "", "18:00", "UTC"},
		{"single-digit hour", "2025-06-01", "9:30", "UTC"},
		{"hour out of range", "2025-06-01", "24:00", "UTC"},
		{"minute out of range", "2025-06-01", "18:60", "UTC"},
		{"missing minutes", "2025-06-01", "18", "UTC"},
		{"12-hour format", "2025-06-01", "06:00 PM", "UTC"},
		{"empty time", "2025-06-01", "", "UTC"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := ToInstant(tc.date, tc.tod, tc.zone)
			if err == nil {
				t.Fatalf("expected error, got nil")
			}

			var inputErr *InvalidTimeInputError
			if !errors.As(err, &inputErr) {
				t.Fatalf("expected *InvalidTimeInputError, got %T: %v", err, err)
			}
		})
	}
}

func TestIsPast_Boundary(t *testing.T) {
	t.Parallel()

	instant := time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC)

	if IsPast(instant, instant.Add(-time.Second)) {
		t.Fatalf("expected not past one second before the instant")
	}
	// now == instant counts as past: the deadline is a breach boundary.
	if !IsPast(instant, instant) {
		t.Fatalf("expected past exactly at the instant")
	}
	if !IsPast(instant, instant.Add(time.Second)) {
		t.Fatalf("expected past one second after the instant")
	}
}

func TestZones_ContainsFullTable(t *testing.T) {
	t.Parallel()

	want := []string{"UTC", "GMT", "EST", "CST", "MST", "PST", "CET", "IST", "JST", "AEST"}

	zones := make(map[string]bool)
	for _, z := range Zones() {
		zones[z] = true
	}

	for _, label := range want {
		if !zones[label] {
			t.Fatalf("expected zone table to contain %s, got %v", label, Zones())
		}
	}
	if len(zones) != len(want) {
		t.Fatalf("expected exactly %d zones, got %d", len(want), len(zones))
	}
}
