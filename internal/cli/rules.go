package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rivercweiss/chime/internal/config"
	"github.com/rivercweiss/chime/internal/rules"
)

// ruleRow is the JSON shape of one listed rule.
type ruleRow struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Pattern   string   `json:"pattern"`
	Kind      string   `json:"kind"`
	Lead      string   `json:"lead"`
	Calendars []string `json:"calendars,omitempty"`
	Enabled   bool     `json:"enabled"`
}

// NewRulesCommand creates the rules command, which lists the rule files'
// contents including structural problems.
func NewRulesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "rules",
		Short:         "List rules and rule file problems",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(rootOpts.Config)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load config", err)
			}

			res, err := rules.LoadDir(cfg.RulesDir)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load rules", err)
			}

			rows := make([]ruleRow, 0, len(res.Rules))
			for _, r := range res.Rules {
				rows = append(rows, ruleRow{
					ID:        r.ID,
					Name:      r.Name,
					Pattern:   r.Pattern,
					Kind:      r.Kind.String(),
					Lead:      r.LeadTime.String(),
					Calendars: r.CalendarScope,
					Enabled:   r.Enabled,
				})
			}
			problems := make([]string, 0, len(res.Errors))
			for _, e := range res.Errors {
				problems = append(problems, e.Error())
			}

			out := rootOpts.formatter(cmd)
			if done, jerr := out.JSON(struct {
				Rules    []ruleRow `json:"rules"`
				Problems []string  `json:"problems,omitempty"`
				Files    int       `json:"file_count"`
			}{Rules: rows, Problems: problems, Files: res.FileCount}); done || jerr != nil {
				return jerr
			}

			fmt.Fprintf(out.Writer, "%d rule(s) in %d file(s)\n", len(rows), res.FileCount)
			for _, r := range rows {
				state := ""
				if !r.Enabled {
					state = "  [disabled]"
				}
				fmt.Fprintf(out.Writer, "  %-20s %-10s %q  lead %s%s\n",
					r.ID, r.Kind, r.Pattern, r.Lead, state)
			}
			if len(problems) > 0 {
				fmt.Fprintln(out.Writer, "problems:")
				for _, p := range problems {
					fmt.Fprintf(out.Writer, "  %s\n", p)
				}
				return NewExitError(ExitFailure, fmt.Sprintf("%d rule problem(s)", len(problems)))
			}
			return nil
		},
	}
}

// leadOrDash formats a lead for display, used by alarm listing too.
func leadOrDash(d time.Duration) string {
	if d == 0 {
		return "-"
	}
	return d.String()
}
