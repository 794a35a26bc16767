package timeseries

import (
	"fmt"
	"time"
)

// TimeOfDay is a wall-clock instant within a day, with second resolution.
type TimeOfDay struct {
	Hour   int
	Minute int
	Second int
}

// ParseTimeOfDay parses "15:04:05" into a TimeOfDay.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04:05", s)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("parse time of day %q: %w", s, err)
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second()}, nil
}

// MustTimeOfDay is ParseTimeOfDay that panics on error. Intended for
// fixed schedules known at compile time.
func MustTimeOfDay(s string) TimeOfDay {
	td, err := ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return td
}

// String formats the time as "15:04:05".
func (td TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", td.Hour, td.Minute, td.Second)
}

// Matches reports whether t falls exactly on this time of day. Timestamps
// with sub-second components never match.
func (td TimeOfDay) Matches(t time.Time) bool {
	return t.Nanosecond() == 0 &&
		t.Hour() == td.Hour &&
		t.Minute() == td.Minute &&
		t.Second() == td.Second
}
