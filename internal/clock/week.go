package clock

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidWeekKey = errors.New("invalid_week_key")

// WeekStart returns Monday 00:00 UTC of the ISO week containing t.
func WeekStart(t time.Time) time.Time {
	t = t.UTC()
	offset := (int(t.Weekday()) + 6) % 7
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return day.AddDate(0, 0, -offset)
}

// WeekKey formats the ISO week of t as "2026-W42".
func WeekKey(t time.Time) string {
	year, week := t.UTC().ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week)
}

// ParseWeekKey returns the Monday that starts the given ISO week.
func ParseWeekKey(key string) (time.Time, error) {
	var year, week int
	if _, err := fmt.Sscanf(key, "%04d-W%02d", &year, &week); err != nil {
		return time.Time{}, ErrInvalidWeekKey
	}
	if week < 1 || week > 53 {
		return time.Time{}, ErrInvalidWeekKey
	}
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
	start := WeekStart(jan4).AddDate(0, 0, (week-1)*7)
	if WeekKey(start) != key {
		return time.Time{}, ErrInvalidWeekKey
	}
	return start, nil
}

// WeekBounds returns [start, end) for a week key.
func WeekBounds(key string) (time.Time, time.Time, error) {
	start, err := ParseWeekKey(key)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, start.AddDate(0, 0, 7), nil
}

func PreviousWeekKey(key string) (string, error) {
	start, err := ParseWeekKey(key)
	if err != nil {
		return "", err
	}
	return WeekKey(start.AddDate(0, 0, -7)), nil
}
