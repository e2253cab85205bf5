package engine

import (
	"sort"

	"github.com/rivercweiss/chime/internal/model"
)

// deduplicate reduces multiple matches per event according to the
// duplicate handling mode. AllowMultiple passes everything through; every
// other mode keeps at most one match per event. Ties are broken by lexical
// order of rule id for determinism.
func deduplicate(mode model.DuplicateHandlingMode, matches []model.MatchResult) []model.MatchResult {
	if mode == model.AllowMultiple {
		return matches
	}

	byEvent := make(map[string][]model.MatchResult)
	order := make([]string, 0)
	for _, m := range matches {
		if _, seen := byEvent[m.Event.ID]; !seen {
			order = append(order, m.Event.ID)
		}
		byEvent[m.Event.ID] = append(byEvent[m.Event.ID], m)
	}

	kept := make([]model.MatchResult, 0, len(order))
	for _, eventID := range order {
		kept = append(kept, reduceGroup(mode, byEvent[eventID]))
	}

	sort.Slice(kept, func(i, j int) bool { return kept[i].Event.ID < kept[j].Event.ID })
	return kept
}

// reduceGroup picks the single survivor among matches for one event.
// The switch is exhaustive over the closed mode enumeration.
func reduceGroup(mode model.DuplicateHandlingMode, group []model.MatchResult) model.MatchResult {
	best := group[0]
	for _, m := range group[1:] {
		if betterThan(mode, m, best) {
			best = m
		}
	}
	return best
}

func betterThan(mode model.DuplicateHandlingMode, candidate, current model.MatchResult) bool {
	switch mode {
	case model.EarliestOnly:
		if !candidate.AlarmAt.Equal(current.AlarmAt) {
			return candidate.AlarmAt.Before(current.AlarmAt)
		}
	case model.LatestOnly:
		if !candidate.AlarmAt.Equal(current.AlarmAt) {
			return candidate.AlarmAt.After(current.AlarmAt)
		}
	case model.ShortestLeadTime:
		if candidate.Rule.LeadTime != current.Rule.LeadTime {
			return candidate.Rule.LeadTime < current.Rule.LeadTime
		}
	case model.LongestLeadTime:
		if candidate.Rule.LeadTime != current.Rule.LeadTime {
			return candidate.Rule.LeadTime > current.Rule.LeadTime
		}
	case model.AllowMultiple:
		// Handled before grouping; unreachable here.
		return false
	}
	// Tie: lexically smaller rule id wins.
	return candidate.Rule.ID < current.Rule.ID
}
