package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewReconcileCommand creates the reconcile command, which audits host
// registrations against the store and repairs drift.
func NewReconcileCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Audit host registrations and repair drift",
		Long: `Run a single reconciliation sweep: verify that every active alarm
row is still registered with the host scheduler, re-register missing
ones, and resolve host key collisions.

Example:
  chime reconcile --config chime.yaml`,
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
			res, err := a.engine.RunReconciliationPass(cmd.Context())
			if err != nil {
				_ = out.Error(failureCode(err), err.Error(), res.Failures)
				return WrapExitError(ExitFailure, "reconciliation pass failed", err)
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

// NewRetryCommand creates the retry command, the explicit re-arm for an
// alarm whose automatic recovery gave up.
func NewRetryCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <alarm-id>",
		Short: "Retry a failed alarm registration",
		Long: `Clear the automatic recovery cap for one alarm and immediately try
to re-register it with the host scheduler.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			out := rootOpts.formatter(cmd)
			if err := a.engine.RetryAlarm(cmd.Context(), args[0]); err != nil {
				_ = out.Error("RETRY_FAILED", err.Error(), nil)
				return WrapExitError(ExitFailure, "retry failed", err)
			}

			if done, jerr := out.JSON(map[string]string{"alarm_id": args[0], "state": "registered"}); done || jerr != nil {
				return jerr
			}
			fmt.Fprintf(out.Writer, "alarm %s re-registered\n", args[0])
			return nil
		},
	}
}
