package model

import (
	"strings"
	"time"
)

// PatternKind distinguishes how a rule's pattern is evaluated.
type PatternKind int

const (
	// PatternSubstring performs locale-invariant case-insensitive containment.
	PatternSubstring PatternKind = iota + 1
	// PatternRegex compiles the pattern and performs a substring search
	// (not a full match) against the event title.
	PatternRegex
)

// String returns the lowercase name used in logs and CLI output.
func (k PatternKind) String() string {
	switch k {
	case PatternSubstring:
		return "substring"
	case PatternRegex:
		return "regex"
	default:
		return "unknown"
	}
}

// regexMetachars are the characters whose presence promotes a pattern to
// PatternRegex during auto-detection.
const regexMetachars = `{}[]().*+?^$|\`

// DetectPatternKind classifies a pattern: any regex metacharacter makes it
// PatternRegex, otherwise it is a plain substring.
func DetectPatternKind(pattern string) PatternKind {
	if strings.ContainsAny(pattern, regexMetachars) {
		return PatternRegex
	}
	return PatternSubstring
}

// Rule is a user-authored matching rule. Rules select events by title
// pattern and optional calendar scope, and carry the lead time applied to
// timed events.
type Rule struct {
	ID      string
	Name    string
	Pattern string
	Kind    PatternKind

	// CalendarScope restricts matching to the listed calendar ids.
	// An empty scope matches every calendar.
	CalendarScope []string

	// LeadTime is how long before a timed event's start the alarm fires.
	// Ignored entirely for all-day events.
	LeadTime time.Duration

	Enabled   bool
	CreatedAt time.Time
}

// InScope reports whether the rule applies to the given calendar.
func (r Rule) InScope(calendarID string) bool {
	if len(r.CalendarScope) == 0 {
		return true
	}
	for _, id := range r.CalendarScope {
		if id == calendarID {
			return true
		}
	}
	return false
}
