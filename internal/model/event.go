package model

import (
	"fmt"
	"time"
)

// Event is a single concrete calendar occurrence inside the lookahead
// window. Recurring events are expanded by the source adapter; each
// occurrence arrives as its own Event with a stable per-instance ID.
type Event struct {
	ID    string
	Title string

	// Start and End are UTC instants.
	Start time.Time
	End   time.Time

	AllDay     bool
	CalendarID string

	// LastModified is a monotonic revision marker from the source. Any
	// advance means the occurrence is effectively new: dismissals no
	// longer apply and the alarm instant is recomputed.
	LastModified int64

	// Timezone is the IANA zone the event was authored in. Used only to
	// resolve the all-day wall-clock policy.
	Timezone string
}

// Location resolves the event's timezone, falling back to UTC when the
// zone is absent or unknown.
func (e Event) Location() *time.Location {
	if e.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(e.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// MatchResult pairs an event with a rule that matched it, along with the
// computed alarm instant per the scheduling policy.
type MatchResult struct {
	Event   Event
	Rule    Rule
	AlarmAt time.Time
}

// WallClock is a fixed local time of day, used for the all-day alarm
// policy ("alarm at 08:00 on the event's date").
type WallClock struct {
	Hour   int
	Minute int
}

// OnDate returns the instant at this wall-clock time on t's calendar date
// in the given location, normalized to UTC.
func (w WallClock) OnDate(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), w.Hour, w.Minute, 0, 0, loc).UTC()
}

// ParseWallClock parses an "HH:MM" string.
func ParseWallClock(s string) (WallClock, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return WallClock{}, fmt.Errorf("parse wall clock %q: %w", s, err)
	}
	return WallClock{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (w WallClock) String() string {
	return fmt.Sprintf("%02d:%02d", w.Hour, w.Minute)
}
