package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidDate is returned when a date string matches none of the accepted layouts.
var ErrInvalidDate = errors.New("invalid date")

// missingTokens are the upstream sentinels for "no value".
var missingTokens = map[string]bool{
	"":     true,
	"null": true,
	"-m":   true,
	"m":    true,
	"*":    true,
	"nan":  true,
}

// timestampLayouts are tried before the date-only layouts and keep the time of day.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
}

// dateLayouts mirror the formats seen across USBR, RISE and NRCS downloads.
// Month-first wins over day-first for ambiguous values such as 03/04/2024.
var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"02/01/2006",
	"2006/01/02",
	"01-02-2006",
	"02-01-2006",
}

// ParseNumber converts a JSON leaf, CSV cell or HTML cell into a float.
// It returns nil for missing markers, non-finite values and anything that
// does not parse.
func ParseNumber(v any) *float64 {
	var f float64
	switch t := v.(type) {
	case nil:
		return nil
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case int32:
		f = float64(t)
	case json.Number:
		return ParseNumber(t.String())
	case string:
		s := strings.TrimSpace(t)
		if missingTokens[strings.ToLower(s)] {
			return nil
		}
		s = strings.ReplaceAll(s, ",", "")
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// ParseInt is ParseNumber truncated toward zero.
func ParseInt(v any) *int64 {
	f := ParseNumber(v)
	if f == nil {
		return nil
	}
	n := int64(*f)
	return &n
}

// ParseTimestamp parses a provider date or timestamp. Date-only values come
// back as UTC midnight; timestamps keep their time of day and zone.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrInvalidDate
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

// ParseDate parses a provider date or timestamp and returns its calendar date.
func ParseDate(s string) (time.Time, bool) {
	t, err := ParseTimestamp(s)
	if err != nil {
		return time.Time{}, false
	}
	return DateOf(t), true
}

// IsMidnight reports whether t is exactly 00:00:00 in its own zone.
func IsMidnight(t time.Time) bool {
	h, m, s := t.Clock()
	return h == 0 && m == 0 && s == 0 && t.Nanosecond() == 0
}

// Round rounds v half away from zero to the given number of decimal places.
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int64) *int64 { return &v }
