package model

import "fmt"

// DuplicateHandlingMode decides what happens when several rules match the
// same event. The enumeration is closed; the deduplicator switches over it
// exhaustively.
type DuplicateHandlingMode int

const (
	// AllowMultiple keeps every match (one alarm per rule). Default.
	AllowMultiple DuplicateHandlingMode = iota + 1
	// EarliestOnly keeps the match with the minimal alarm instant.
	EarliestOnly
	// LatestOnly keeps the match with the maximal alarm instant.
	LatestOnly
	// ShortestLeadTime keeps the match whose rule has the minimal lead.
	ShortestLeadTime
	// LongestLeadTime keeps the match whose rule has the maximal lead.
	LongestLeadTime
)

var dedupNames = map[DuplicateHandlingMode]string{
	AllowMultiple:    "allow_multiple",
	EarliestOnly:     "earliest_only",
	LatestOnly:       "latest_only",
	ShortestLeadTime: "shortest_lead_time",
	LongestLeadTime:  "longest_lead_time",
}

func (m DuplicateHandlingMode) String() string {
	if name, ok := dedupNames[m]; ok {
		return name
	}
	return fmt.Sprintf("duplicate_handling(%d)", int(m))
}

// ParseDuplicateHandlingMode converts a configuration string into a mode.
// The empty string maps to AllowMultiple.
func ParseDuplicateHandlingMode(s string) (DuplicateHandlingMode, error) {
	if s == "" {
		return AllowMultiple, nil
	}
	for mode, name := range dedupNames {
		if name == s {
			return mode, nil
		}
	}
	return 0, fmt.Errorf("unknown duplicate handling mode %q", s)
}
