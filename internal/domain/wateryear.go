package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// WaterYearOf returns the water year containing d.
func WaterYearOf(d time.Time) int {
	if d.Month() >= time.October {
		return d.Year() + 1
	}
	return d.Year()
}

// WaterYearBounds returns Oct 1 of the prior year and Sep 30 of wy.
func WaterYearBounds(wy int) (time.Time, time.Time) {
	start := time.Date(wy-1, time.October, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(wy, time.September, 30, 0, 0, 0, 0, time.UTC)
	return start, end
}

// WaterYearDate rebuilds a calendar date from an "MM-DD" key. October through
// December fall in refYear, January through September in refYear-1. Feb 29
// becomes Feb 28 when that target year is not a leap year, so "02-29" with
// refYear 2023 is 2022-02-28.
func WaterYearDate(mmdd string, refYear int) (time.Time, error) {
	parts := strings.Split(strings.TrimSpace(mmdd), "-")
	if len(parts) != 2 {
		return time.Time{}, fmt.Errorf("%w: water-year key %q", ErrInvalidDate, mmdd)
	}
	month, errM := strconv.Atoi(parts[0])
	day, errD := strconv.Atoi(parts[1])
	if errM != nil || errD != nil || month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, fmt.Errorf("%w: water-year key %q", ErrInvalidDate, mmdd)
	}

	year := refYear
	if month < 10 {
		year = refYear - 1
	}
	if month == 2 && day == 29 && !isLeap(year) {
		day = 28
	}

	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Month() != time.Month(month) {
		return time.Time{}, fmt.Errorf("%w: water-year key %q", ErrInvalidDate, mmdd)
	}
	return t, nil
}

// DateRange returns every calendar date from start through end inclusive.
func DateRange(start, end time.Time) []time.Time {
	start, end = DateOf(start), DateOf(end)
	if end.Before(start) {
		return nil
	}
	days := int(end.Sub(start).Hours()/24) + 1
	out := make([]time.Time, 0, days)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}

func isLeap(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}
