package domain

import (
	"fmt"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestWaterYearDate(t *testing.T) {
	tests := []struct {
		mmdd string
		ref  int
		want time.Time
	}{
		{"11-01", 2024, date(2024, time.November, 1)},
		{"03-15", 2024, date(2023, time.March, 15)},
		{"02-29", 2023, date(2022, time.February, 28)},
		{"02-28", 2023, date(2022, time.February, 28)},
		{"02-29", 2025, date(2024, time.February, 29)},
		{"10-01", 2024, date(2024, time.October, 1)},
		{"09-30", 2024, date(2023, time.September, 30)},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%d", tt.mmdd, tt.ref), func(t *testing.T) {
			got, err := WaterYearDate(tt.mmdd, tt.ref)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, bad := range []string{"", "13-01", "aa-bb", "02-30", "1101"} {
		_, err := WaterYearDate(bad, 2024)
		assert.ErrorIs(t, err, ErrInvalidDate, bad)
	}
}

func TestWaterYearOf(t *testing.T) {
	assert.Equal(t, 2024, WaterYearOf(date(2023, time.October, 1)))
	assert.Equal(t, 2024, WaterYearOf(date(2024, time.September, 30)))
	assert.Equal(t, 2025, WaterYearOf(date(2024, time.December, 31)))

	start, end := WaterYearBounds(2024)
	assert.Equal(t, date(2023, time.October, 1), start)
	assert.Equal(t, date(2024, time.September, 30), end)
}

func TestDateRange(t *testing.T) {
	got := DateRange(date(2025, time.December, 30), date(2026, time.January, 2))
	assert.Equal(t, []time.Time{
		date(2025, time.December, 30),
		date(2025, time.December, 31),
		date(2026, time.January, 1),
		date(2026, time.January, 2),
	}, got)

	assert.Empty(t, DateRange(date(2025, time.January, 2), date(2025, time.January, 1)))
}

func TestToday_UsesClock(t *testing.T) {
	SetClock(clockwork.NewFakeClockAt(time.Date(2025, time.December, 28, 17, 45, 0, 0, time.UTC)))
	t.Cleanup(func() { SetClock(nil) })

	assert.Equal(t, date(2025, time.December, 28), Today())
}

func TestBounds_Contains(t *testing.T) {
	r := LakePowell()
	assert.True(t, r.Elevation.Contains(3000))
	assert.True(t, r.Elevation.Contains(4000))
	assert.False(t, r.Elevation.Contains(4000.01))
	assert.False(t, r.Content.Contains(100000))
	assert.True(t, r.Content.Contains(100001))
	assert.True(t, r.Flow.Contains(0))
	assert.False(t, r.Flow.Contains(-1))
}

func TestSnotelSite_Resolved(t *testing.T) {
	assert.True(t, SnotelSite{SiteID: "CO:LIZA"}.Resolved())
	assert.False(t, SnotelSite{SiteID: "UNKNOWN:LIZARD_HEAD:SAN JUAN"}.Resolved())
}
