package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rivercweiss/chime/internal/model"
)

func matchWithLead(eventID, ruleID string, start time.Time, lead time.Duration) model.MatchResult {
	ev := timedEvent(eventID, "x", start)
	r := substringRule(ruleID, "x", lead)
	return model.MatchResult{Event: ev, Rule: r, AlarmAt: start.Add(-lead)}
}

func TestDeduplicateAllowMultiple(t *testing.T) {
	start := testNow.Add(4 * time.Hour)
	in := []model.MatchResult{
		matchWithLead("ev-1", "r-1", start, 10*time.Minute),
		matchWithLead("ev-1", "r-2", start, 20*time.Minute),
		matchWithLead("ev-2", "r-1", start, 10*time.Minute),
	}
	out := deduplicate(model.AllowMultiple, in)
	assert.Equal(t, in, out, "allow_multiple passes every match through unchanged")
}

func TestDeduplicateEarliestOnly(t *testing.T) {
	start := testNow.Add(4 * time.Hour)
	in := []model.MatchResult{
		matchWithLead("ev-1", "r-1", start, 10*time.Minute),
		matchWithLead("ev-1", "r-2", start, 60*time.Minute),
		matchWithLead("ev-1", "r-3", start, 30*time.Minute),
	}
	out := deduplicate(model.EarliestOnly, in)
	require.Len(t, out, 1)
	// Earliest alarm instant = longest lead.
	assert.Equal(t, "r-2", out[0].Rule.ID)
	assert.Equal(t, start.Add(-60*time.Minute), out[0].AlarmAt)
}

func TestDeduplicateLatestOnly(t *testing.T) {
	start := testNow.Add(4 * time.Hour)
	in := []model.MatchResult{
		matchWithLead("ev-1", "r-1", start, 10*time.Minute),
		matchWithLead("ev-1", "r-2", start, 60*time.Minute),
	}
	out := deduplicate(model.LatestOnly, in)
	require.Len(t, out, 1)
	assert.Equal(t, "r-1", out[0].Rule.ID)
}

func TestDeduplicateShortestLeadTime(t *testing.T) {
	// Two "doctor" rules with 60m and 15m leads under
	// shortest_lead_time keep the 15m alarm.
	start := testNow.Add(4 * time.Hour)
	in := []model.MatchResult{
		matchWithLead("ev-doc", "r-60", start, 60*time.Minute),
		matchWithLead("ev-doc", "r-15", start, 15*time.Minute),
	}
	out := deduplicate(model.ShortestLeadTime, in)
	require.Len(t, out, 1)
	assert.Equal(t, "r-15", out[0].Rule.ID)
	assert.Equal(t, 15*time.Minute, out[0].Rule.LeadTime)
}

func TestDeduplicateLongestLeadTime(t *testing.T) {
	start := testNow.Add(4 * time.Hour)
	in := []model.MatchResult{
		matchWithLead("ev-1", "r-15", start, 15*time.Minute),
		matchWithLead("ev-1", "r-60", start, 60*time.Minute),
	}
	out := deduplicate(model.LongestLeadTime, in)
	require.Len(t, out, 1)
	assert.Equal(t, "r-60", out[0].Rule.ID)
}

func TestDeduplicateTieBreaksByRuleID(t *testing.T) {
	start := testNow.Add(4 * time.Hour)
	in := []model.MatchResult{
		matchWithLead("ev-1", "r-b", start, 30*time.Minute),
		matchWithLead("ev-1", "r-a", start, 30*time.Minute),
	}
	for _, mode := range []model.DuplicateHandlingMode{
		model.EarliestOnly, model.LatestOnly, model.ShortestLeadTime, model.LongestLeadTime,
	} {
		out := deduplicate(mode, in)
		require.Len(t, out, 1, mode.String())
		assert.Equal(t, "r-a", out[0].Rule.ID, "mode %s must break ties lexically", mode)
	}
}

func TestDeduplicatePerEventIndependence(t *testing.T) {
	start := testNow.Add(4 * time.Hour)
	in := []model.MatchResult{
		matchWithLead("ev-1", "r-1", start, 10*time.Minute),
		matchWithLead("ev-1", "r-2", start, 20*time.Minute),
		matchWithLead("ev-2", "r-3", start, 30*time.Minute),
	}
	out := deduplicate(model.EarliestOnly, in)
	require.Len(t, out, 2)
	assert.Equal(t, "ev-1", out[0].Event.ID)
	assert.Equal(t, "ev-2", out[1].Event.ID)
}
