package attendance

import (
	"testing"
	"time"
)

func TestDateFor(t *testing.T) {
	m := New(nil, time.UTC, 4*time.Hour)

	tests := []struct {
		name string
		ts   time.Time
		want string
	}{
		{"midday", time.Date(2026, 3, 5, 13, 30, 0, 0, time.UTC), "2026-03-05"},
		{"just after midnight", time.Date(2026, 3, 5, 0, 0, 1, 0, time.UTC), "2026-03-05"},
		{"just before midnight", time.Date(2026, 3, 5, 23, 59, 59, 0, time.UTC), "2026-03-05"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := m.DateFor(tt.ts).Format("2006-01-02")
			if got != tt.want {
				t.Errorf("DateFor(%v) = %s, want %s", tt.ts, got, tt.want)
			}
		})
	}
}

func TestDateForCrossesTimeZone(t *testing.T) {
	loc := time.FixedZone("UTC-8", -8*3600)
	m := New(nil, loc, 4*time.Hour)

	// 23:30 Mar 5 UTC is 15:30 Mar 5 in UTC-8 — same date, no boundary cross here.
	// Use a timestamp just after UTC midnight, which is still the previous
	// evening in UTC-8, to exercise the zone conversion.
	ts := time.Date(2026, 3, 6, 2, 0, 0, 0, time.UTC)
	got := m.DateFor(ts).Format("2006-01-02")
	if got != "2026-03-05" {
		t.Errorf("DateFor(%v) in UTC-8 = %s, want 2026-03-05", ts, got)
	}
}

func TestTotalHours(t *testing.T) {
	tests := []struct {
		name     string
		checkIn  time.Time
		checkOut time.Time
		want     float64
	}{
		{
			"exactly eight hours",
			time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC),
			time.Date(2026, 3, 5, 17, 0, 0, 0, time.UTC),
			8.0,
		},
		{
			"rounds to one decimal",
			time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC),
			time.Date(2026, 3, 5, 17, 25, 0, 0, time.UTC),
			8.4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TotalHours(tt.checkIn, tt.checkOut)
			if got != tt.want {
				t.Errorf("TotalHours() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMaxTime(t *testing.T) {
	early := time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC)
	late := time.Date(2026, 3, 5, 17, 0, 0, 0, time.UTC)

	if got := maxTime(early, late); !got.Equal(late) {
		t.Errorf("maxTime(early, late) = %v, want %v", got, late)
	}
	if got := maxTime(late, early); !got.Equal(late) {
		t.Errorf("maxTime(late, early) = %v, want %v", got, late)
	}
}
