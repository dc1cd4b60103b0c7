package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeekKeyAndStart(t *testing.T) {
	// a Wednesday
	at := time.Date(2026, time.October, 14, 15, 30, 0, 0, time.UTC)

	assert.Equal(t, "2026-W42", WeekKey(at))
	assert.Equal(t, time.Date(2026, time.October, 12, 0, 0, 0, 0, time.UTC), WeekStart(at))
}

func TestWeekStartOnSundayAndMonday(t *testing.T) {
	sunday := time.Date(2026, time.October, 18, 23, 59, 0, 0, time.UTC)
	monday := time.Date(2026, time.October, 19, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2026, time.October, 12, 0, 0, 0, 0, time.UTC), WeekStart(sunday))
	assert.Equal(t, monday, WeekStart(monday))
	assert.Equal(t, "2026-W43", WeekKey(monday))
}

func TestParseWeekKeyRoundTrip(t *testing.T) {
	for _, key := range []string{"2026-W01", "2026-W42", "2026-W53", "2025-W53", "2027-W01", "2020-W53"} {
		start, err := ParseWeekKey(key)
		if key == "2025-W53" {
			assert.ErrorIs(t, err, ErrInvalidWeekKey)
			continue
		}
		require.NoError(t, err, key)
		assert.Equal(t, time.Monday, start.Weekday())
		assert.Equal(t, key, WeekKey(start))
	}
}

func TestParseWeekKeyRejectsGarbage(t *testing.T) {
	_, err := ParseWeekKey("last week")
	assert.ErrorIs(t, err, ErrInvalidWeekKey)
	_, err = ParseWeekKey("2026-W00")
	assert.ErrorIs(t, err, ErrInvalidWeekKey)
}

func TestWeekBoundsAndPrevious(t *testing.T) {
	start, end, err := WeekBounds("2026-W42")
	require.NoError(t, err)
	assert.Equal(t, 7*24*time.Hour, end.Sub(start))

	prev, err := PreviousWeekKey("2026-W01")
	require.NoError(t, err)
	assert.Equal(t, "2025-W52", prev)
}
