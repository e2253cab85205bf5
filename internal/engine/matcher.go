package engine

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/search"

	"github.com/rivercweiss/chime/internal/model"
)

// foldingMatcher performs locale-invariant case-insensitive substring
// search for PatternSubstring rules. language.Und keeps the folding
// independent of any user locale.
var foldingMatcher = search.New(language.Und, search.IgnoreCase)

// compiledRule is a rule prepared for repeated evaluation within one pass.
// Exactly one of re/substring is set, per the rule's detected kind.
type compiledRule struct {
	rule      model.Rule
	re        *regexp.Regexp
	substring *search.Pattern
}

// matchesTitle tests the event title against the compiled pattern. Both
// kinds are containment searches, not full matches.
func (c compiledRule) matchesTitle(title string) bool {
	if c.re != nil {
		return c.re.FindStringIndex(title) != nil
	}
	start, _ := c.substring.IndexString(title)
	return start >= 0
}

// compileRules prepares rules for a pass. A pattern that fails to compile
// must not crash the pass: the rule is excluded and reported as an
// InvalidRule failure.
func compileRules(rules []model.Rule) ([]compiledRule, []Failure) {
	compiled := make([]compiledRule, 0, len(rules))
	var failures []Failure

	for _, r := range rules {
		switch r.Kind {
		case model.PatternRegex:
			re, err := regexp.Compile(r.Pattern)
			if err != nil {
				slog.Warn("rule pattern failed to compile, excluding from pass",
					"rule_id", r.ID,
					"pattern", r.Pattern,
					"error", err,
				)
				failures = append(failures, Failure{
					Code:    CodeInvalidRule,
					RuleID:  r.ID,
					Message: fmt.Sprintf("pattern %q: %v", r.Pattern, err),
				})
				continue
			}
			compiled = append(compiled, compiledRule{rule: r, re: re})

		default:
			compiled = append(compiled, compiledRule{
				rule:      r,
				substring: foldingMatcher.CompileString(r.Pattern),
			})
		}
	}

	return compiled, failures
}

// AlarmInstant computes when an alarm for this (event, rule) pair fires.
// Timed events fire lead time before the start. All-day events fire at the
// configured wall-clock time on the event's date, in the event's own
// timezone; the rule's lead time is ignored entirely.
func AlarmInstant(ev model.Event, r model.Rule, allDay model.WallClock) time.Time {
	if ev.AllDay {
		return allDay.OnDate(ev.Start, ev.Location())
	}
	return ev.Start.Add(-r.LeadTime)
}

// matchEvents evaluates every (event, rule) pair and returns the surviving
// matches with their computed alarm instants, plus InvalidRule failures
// for rules that could not be compiled.
//
// Complexity is O(events × rules); the calendar-scope check short-circuits
// before any pattern evaluation. Results are ordered by (event id, rule
// id) so passes are deterministic.
func matchEvents(events []model.Event, rules []model.Rule, allDay model.WallClock) ([]model.MatchResult, []Failure) {
	compiled, failures := compileRules(rules)

	var matches []model.MatchResult
	for _, ev := range events {
		for _, c := range compiled {
			if !c.rule.InScope(ev.CalendarID) {
				continue
			}
			if !c.matchesTitle(ev.Title) {
				continue
			}
			matches = append(matches, model.MatchResult{
				Event:   ev,
				Rule:    c.rule,
				AlarmAt: AlarmInstant(ev, c.rule, allDay),
			})
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Event.ID != matches[j].Event.ID {
			return matches[i].Event.ID < matches[j].Event.ID
		}
		return matches[i].Rule.ID < matches[j].Rule.ID
	})

	return matches, failures
}

// PreviewMatches evaluates the current rules against the current window
// without writing anything. Duplicate handling is not applied; the caller
// sees every raw match plus any InvalidRule failures.
func (e *Engine) PreviewMatches(ctx context.Context) ([]model.MatchResult, []Failure, error) {
	now := e.clock.Now()

	rules, err := e.rules.EnabledValidRules(ctx)
	if err != nil {
		return nil, nil, sourceUnavailable("rules", err)
	}
	events, err := e.events.EventsInWindow(ctx, now, e.horizon)
	if err != nil {
		return nil, nil, sourceUnavailable("events", err)
	}

	matches, failures := matchEvents(events, rules, e.allDayWall)
	return matches, failures, nil
}
