package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rivercweiss/chime/internal/model"
)

func TestMatchSubstringCaseInsensitive(t *testing.T) {
	ev := timedEvent("ev-1", "Team MEETING with the board", testNow.Add(4*time.Hour))
	rule := substringRule("r-1", "meeting", 30*time.Minute)

	matches, failures := matchEvents([]model.Event{ev}, []model.Rule{rule}, DefaultAllDayAlarmTime)
	require.Empty(t, failures)
	require.Len(t, matches, 1)
	assert.Equal(t, "ev-1", matches[0].Event.ID)
	assert.Equal(t, "r-1", matches[0].Rule.ID)

	// Lead 30m before a 14:00 start puts the alarm at 13:30.
	assert.Equal(t, ev.Start.Add(-30*time.Minute), matches[0].AlarmAt)
}

func TestMatchSubstringNoHit(t *testing.T) {
	ev := timedEvent("ev-1", "Lunch", testNow.Add(time.Hour))
	rule := substringRule("r-1", "meeting", time.Minute)

	matches, failures := matchEvents([]model.Event{ev}, []model.Rule{rule}, DefaultAllDayAlarmTime)
	assert.Empty(t, failures)
	assert.Empty(t, matches)
}

func TestMatchSubstringUnicodeFolding(t *testing.T) {
	ev := timedEvent("ev-1", "ZAHNARZT Termin", testNow.Add(time.Hour))
	rule := substringRule("r-1", "zahnarzt", time.Minute)

	matches, _ := matchEvents([]model.Event{ev}, []model.Rule{rule}, DefaultAllDayAlarmTime)
	assert.Len(t, matches, 1)
}

func TestMatchRegexIsSubstringSearch(t *testing.T) {
	ev := timedEvent("ev-1", "Weekly standup (team A)", testNow.Add(time.Hour))
	// Not anchored: a substring search, not a full match.
	rule := substringRule("r-1", "stand(up|down)", time.Minute)
	require.Equal(t, model.PatternRegex, rule.Kind)

	matches, failures := matchEvents([]model.Event{ev}, []model.Rule{rule}, DefaultAllDayAlarmTime)
	require.Empty(t, failures)
	assert.Len(t, matches, 1)
}

func TestMatchInvalidRegexExcludedNotFatal(t *testing.T) {
	ev := timedEvent("ev-1", "Team meeting", testNow.Add(time.Hour))
	bad := substringRule("r-bad", "meet[ing", time.Minute)
	good := substringRule("r-good", "meeting", time.Minute)
	require.Equal(t, model.PatternRegex, bad.Kind)

	matches, failures := matchEvents([]model.Event{ev}, []model.Rule{bad, good}, DefaultAllDayAlarmTime)

	require.Len(t, failures, 1)
	assert.Equal(t, CodeInvalidRule, failures[0].Code)
	assert.Equal(t, "r-bad", failures[0].RuleID)

	// The good rule still matched.
	require.Len(t, matches, 1)
	assert.Equal(t, "r-good", matches[0].Rule.ID)
}

func TestMatchCalendarScopeShortCircuit(t *testing.T) {
	work := timedEvent("ev-work", "Doctor checkup", testNow.Add(time.Hour))
	personal := timedEvent("ev-personal", "Doctor checkup", testNow.Add(2*time.Hour))
	personal.CalendarID = "personal"

	rule := substringRule("r-1", "doctor", time.Minute)
	rule.CalendarScope = []string{"personal"}

	matches, _ := matchEvents([]model.Event{work, personal}, []model.Rule{rule}, DefaultAllDayAlarmTime)
	require.Len(t, matches, 1)
	assert.Equal(t, "ev-personal", matches[0].Event.ID)
}

func TestAlarmInstantAllDayIgnoresLeadTime(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	ev := model.Event{
		ID:       "ev-allday",
		Title:    "Anniversary",
		Start:    time.Date(2026, 8, 28, 0, 0, 0, 0, berlin).UTC(),
		AllDay:   true,
		Timezone: "Europe/Berlin",
	}
	wall := model.WallClock{Hour: 9, Minute: 15}

	short := model.Rule{ID: "r-short", LeadTime: 5 * time.Minute}
	long := model.Rule{ID: "r-long", LeadTime: 48 * time.Hour}

	a1 := AlarmInstant(ev, short, wall)
	a2 := AlarmInstant(ev, long, wall)
	assert.True(t, a1.Equal(a2), "lead time must be ignored for all-day events")

	local := a1.In(berlin)
	assert.Equal(t, 9, local.Hour())
	assert.Equal(t, 15, local.Minute())
	assert.Equal(t, 28, local.Day())
}

func TestMatchEventsDeterministicOrder(t *testing.T) {
	events := []model.Event{
		timedEvent("ev-b", "meeting", testNow.Add(time.Hour)),
		timedEvent("ev-a", "meeting", testNow.Add(2*time.Hour)),
	}
	rules := []model.Rule{
		substringRule("r-2", "meeting", time.Minute),
		substringRule("r-1", "meeting", time.Minute),
	}

	matches, _ := matchEvents(events, rules, DefaultAllDayAlarmTime)
	require.Len(t, matches, 4)
	assert.Equal(t, "ev-a", matches[0].Event.ID)
	assert.Equal(t, "r-1", matches[0].Rule.ID)
	assert.Equal(t, "ev-a", matches[1].Event.ID)
	assert.Equal(t, "r-2", matches[1].Rule.ID)
	assert.Equal(t, "ev-b", matches[2].Event.ID)
}

func TestEngineMatchEventDiagnostic(t *testing.T) {
	env := newTestEnv(t)
	ev := timedEvent("ev-1", "Team meeting", testNow.Add(time.Hour))

	matches := env.engine.MatchEvent(ev, []model.Rule{
		substringRule("r-1", "meeting", 10*time.Minute),
		substringRule("r-2", "lunch", 10*time.Minute),
	})
	require.Len(t, matches, 1)
	assert.Equal(t, "r-1", matches[0].Rule.ID)
}

func TestEngineNowReadsClock(t *testing.T) {
	env := newTestEnv(t)
	assert.Equal(t, testNow, env.engine.Now())

	env.clock.Advance(time.Minute)
	assert.Equal(t, testNow.Add(time.Minute), env.engine.Now())
}
