package datenorm

import (
	"testing"
	"time"
)

func fixedClock(t time.Time) Normalizer {
	return Normalizer{Now: func() time.Time { return t }}
}

func TestParseZonedStripsToUTC(t *testing.T) {
	got := Parse("2023-01-05T10:00:00+02:00")
	want := time.Date(2023, 1, 5, 8, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if got.Location() != time.UTC {
		t.Errorf("expected UTC location, got %v", got.Location())
	}
}

func TestParseKnownFormats(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2023-01-05T10:00:00Z", time.Date(2023, 1, 5, 10, 0, 0, 0, time.UTC)},
		{"2023-01-05T10:00:00.250+01:00", time.Date(2023, 1, 5, 9, 0, 0, 250000000, time.UTC)},
		{"2023-01-05T10:00:00+0100", time.Date(2023, 1, 5, 9, 0, 0, 0, time.UTC)},
		{"2023-01-05T10:00:00", time.Date(2023, 1, 5, 10, 0, 0, 0, time.UTC)},
		{"2023-01-05 10:30:15", time.Date(2023, 1, 5, 10, 30, 15, 0, time.UTC)},
		{"2023-01-05", time.Date(2023, 1, 5, 0, 0, 0, 0, time.UTC)},
		{"January 5, 2023", time.Date(2023, 1, 5, 0, 0, 0, 0, time.UTC)},
		{"5 January 2023", time.Date(2023, 1, 5, 0, 0, 0, 0, time.UTC)},
		{"01/05/2023", time.Date(2023, 1, 5, 0, 0, 0, 0, time.UTC)},
		{"25/12/2023", time.Date(2023, 12, 25, 0, 0, 0, 0, time.UTC)},
		{"  2023-01-05  ", time.Date(2023, 1, 5, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := Parse(tt.in)
			if !got.Equal(tt.want) {
				t.Errorf("Parse(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseRelative(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	n := fixedClock(now)

	tests := []struct {
		in   string
		want time.Time
	}{
		{"5 minutes ago", now.Add(-5 * time.Minute)},
		{"3 hours ago", now.Add(-3 * time.Hour)},
		{"2 days ago", now.AddDate(0, 0, -2)},
		{"1 week ago", now.AddDate(0, 0, -7)},
		{"2 months ago", now.AddDate(0, 0, -60)},
		{"Posted 4 Hours Ago", now.Add(-4 * time.Hour)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := n.Parse(tt.in); !got.Equal(tt.want) {
				t.Errorf("Parse(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseUnparseableReturnsNow(t *testing.T) {
	for _, in := range []string{"", "not a date at all", "yesterday-ish maybe", "ago", "1/", "12:", "1.2.3.4.5"} {
		before := time.Now().UTC()
		got := Parse(in)
		if d := got.Sub(before); d < -time.Second || d > time.Second {
			t.Errorf("Parse(%q) = %v, expected within 1s of %v", in, got, before)
		}
	}
}

func TestParseRejectsImplausibleLenientDates(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	n := fixedClock(now)
	for _, in := range []string{"1/", "12:", "1.2.3.4.5", "3000-01-01 10:00"} {
		if got := n.Parse(in); !got.Equal(now) {
			t.Errorf("Parse(%q) = %v, want %v", in, got, now)
		}
	}
	want := time.Date(2024, 5, 4, 10, 0, 0, 0, time.UTC)
	if got := n.Parse("2024/05/04 10:00:00"); !got.Equal(want) {
		t.Errorf("lenient tier: got %v, want %v", got, want)
	}
}

func TestFromTime(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	n := fixedClock(now)

	if got := n.FromTime(nil); !got.Equal(now) {
		t.Errorf("nil time: got %v, want %v", got, now)
	}

	loc := time.FixedZone("EST", -5*3600)
	in := time.Date(2024, 1, 1, 7, 0, 0, 0, loc)
	got := n.FromTime(&in)
	want := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	if !got.Equal(want) || got.Location() != time.UTC {
		t.Errorf("got %v, want %v", got, want)
	}
}
