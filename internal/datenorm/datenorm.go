// Package datenorm turns the many date spellings found in feeds and web pages
// into a single representation: a UTC instant with the zone stripped.
package datenorm

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// layouts are tried in order; the first one that parses wins.
var layouts = []string{
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04:05.999999999-0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"January 2, 2006",
	"2 January 2006",
	"1/2/2006",
	"2/1/2006",
}

var relativeExpr = regexp.MustCompile(`(\d+)\s*(minute|min|hour|hr|day|week|month)s?\b`)

// Normalizer parses dates relative to a clock. The zero value uses time.Now.
type Normalizer struct {
	Now func() time.Time
}

// Default is the package-level normalizer backed by the wall clock.
var Default = Normalizer{}

// Parse is shorthand for Default.Parse.
func Parse(raw string) time.Time { return Default.Parse(raw) }

// FromTime is shorthand for Default.FromTime.
func FromTime(t *time.Time) time.Time { return Default.FromTime(t) }

func (n Normalizer) now() time.Time {
	if n.Now != nil {
		return naive(n.Now())
	}
	return naive(time.Now())
}

// FromTime normalizes an already parsed instant. A nil instant yields now.
func (n Normalizer) FromTime(t *time.Time) time.Time {
	if t == nil || t.IsZero() {
		return n.now()
	}
	return naive(*t)
}

// Parse never fails: input it cannot make sense of yields the current time.
func (n Normalizer) Parse(raw string) time.Time {
	s := strings.TrimSpace(raw)
	if s == "" {
		return n.now()
	}

	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return naive(t)
		}
	}

	if t, ok := n.relative(s); ok {
		return t
	}

	if t, err := dateparse.ParseIn(s, time.UTC); err == nil && n.plausible(t) {
		return naive(t)
	}

	return n.now()
}

// minYear bounds the lenient tier, which reads fragments like "12:" as
// year zero.
const minYear = 1970

func (n Normalizer) plausible(t time.Time) bool {
	return t.Year() >= minYear && t.Before(n.now().AddDate(1, 0, 0))
}

// relative handles "N units ago" phrases. Months count as 30 days.
func (n Normalizer) relative(s string) (time.Time, bool) {
	lower := strings.ToLower(s)
	if !strings.Contains(lower, "ago") {
		return time.Time{}, false
	}
	m := relativeExpr.FindStringSubmatch(lower)
	if m == nil {
		return time.Time{}, false
	}
	value, err := strconv.Atoi(m[1])
	if err != nil {
		return time.Time{}, false
	}

	var d time.Duration
	switch m[2] {
	case "minute", "min":
		d = time.Duration(value) * time.Minute
	case "hour", "hr":
		d = time.Duration(value) * time.Hour
	case "day":
		d = time.Duration(value) * 24 * time.Hour
	case "week":
		d = time.Duration(value) * 7 * 24 * time.Hour
	case "month":
		d = time.Duration(value) * 30 * 24 * time.Hour
	}
	return n.now().Truncate(time.Second).Add(-d), true
}

// naive converts t to UTC and drops its location, so stored values compare
// equal regardless of the zone they were reported in.
func naive(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), u.Hour(), u.Minute(), u.Second(), u.Nanosecond(), time.UTC)
}
