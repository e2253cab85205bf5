package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/rivercweiss/chime/internal/engine"
)

// NewPassCommand creates the pass command, which runs one scheduling pass.
func NewPassCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "pass",
		Short: "Run one scheduling pass",
		Long: `Run a single scheduling pass: fetch events inside the lookahead
window, evaluate rules, and bring the alarm store and host registrations
in line with the matches.

Example:
  chime pass --config chime.yaml
  chime pass --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			out := rootOpts.formatter(cmd)
			res, err := a.engine.RunSchedulingPass(cmd.Context())
			if err != nil {
				_ = out.Error(failureCode(err), err.Error(), res.Failures)
				return WrapExitError(ExitFailure, "scheduling pass failed", err)
			}

			if done, jerr := out.JSON(res); done || jerr != nil {
				return jerr
			}
			fmt.Fprintln(out.Writer, res.Message)
			printFailures(out.Writer, res.Failures)
			if len(res.Failures) > 0 {
				return NewExitError(ExitFailure, fmt.Sprintf("%d item(s) failed", len(res.Failures)))
			}
			return nil
		},
	}
}

// failureCode extracts the engine failure code from a pass error.
func failureCode(err error) string {
	var passErr *engine.PassError
	if errors.As(err, &passErr) {
		return string(passErr.Code)
	}
	return "ERROR"
}

func printFailures(w io.Writer, failures []engine.Failure) {
	for _, f := range failures {
		fmt.Fprintf(w, "  %s", f.Code)
		if f.AlarmID != "" {
			fmt.Fprintf(w, " alarm=%s", f.AlarmID)
		}
		if f.EventID != "" {
			fmt.Fprintf(w, " event=%s", f.EventID)
		}
		if f.RuleID != "" {
			fmt.Fprintf(w, " rule=%s", f.RuleID)
		}
		fmt.Fprintf(w, ": %s\n", f.Message)
	}
}
