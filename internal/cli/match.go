package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rivercweiss/chime/internal/engine"
	"github.com/rivercweiss/chime/internal/model"
)

// matchRow is the JSON shape of one previewed match.
type matchRow struct {
	EventID    string    `json:"event_id"`
	EventTitle string    `json:"event_title"`
	EventStart time.Time `json:"event_start"`
	RuleID     string    `json:"rule_id"`
	RuleName   string    `json:"rule_name"`
	AlarmAt    time.Time `json:"alarm_at"`
}

// NewMatchCommand creates the match command, a read-only preview of rule
// evaluation.
func NewMatchCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "match [title]",
		Short: "Preview rule matches without scheduling",
		Long: `Evaluate the current rules without writing anything.

With no argument, every event inside the lookahead window is matched and
the raw matches are printed (before duplicate handling). With a title
argument, the rules are evaluated against a synthetic timed event with
that title.

Example:
  chime match
  chime match "Team sync"`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		a, err := openApp(rootOpts)
		if err != nil {
			return err
		}
		defer a.Close()

		out := rootOpts.formatter(cmd)

		var (
			matches  []model.MatchResult
			failures []engine.Failure
		)
		if len(args) == 1 {
			rules, rerr := a.rules.EnabledValidRules(cmd.Context())
			if rerr != nil {
				return WrapExitError(ExitCommandError, "failed to load rules", rerr)
			}
			ev := model.Event{
				ID:    "preview",
				Title: args[0],
				Start: a.engine.Now().Add(time.Hour),
			}
			matches = a.engine.MatchEvent(ev, rules)
		} else {
			matches, failures, err = a.engine.PreviewMatches(cmd.Context())
			if err != nil {
				_ = out.Error(failureCode(err), err.Error(), nil)
				return WrapExitError(ExitFailure, "match preview failed", err)
			}
		}

		rows := make([]matchRow, 0, len(matches))
		for _, m := range matches {
			rows = append(rows, matchRow{
				EventID:    m.Event.ID,
				EventTitle: m.Event.Title,
				EventStart: m.Event.Start,
				RuleID:     m.Rule.ID,
				RuleName:   m.Rule.Name,
				AlarmAt:    m.AlarmAt,
			})
		}

		if done, jerr := out.JSON(struct {
			Matches  []matchRow       `json:"matches"`
			Failures []engine.Failure `json:"failures,omitempty"`
		}{Matches: rows, Failures: failures}); done || jerr != nil {
			return jerr
		}

		if len(rows) == 0 {
			fmt.Fprintln(out.Writer, "no matches")
		}
		for _, r := range rows {
			fmt.Fprintf(out.Writer, "%s  %q  rule=%s  alarm at %s\n",
				r.EventID, r.EventTitle, r.RuleID, r.AlarmAt.Format(time.RFC3339))
		}
		printFailures(out.Writer, failures)
		return nil
	}

	return cmd
}
