package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rivercweiss/chime/internal/model"
)

// alarmRow is the JSON shape of one stored alarm.
type alarmRow struct {
	ID         string    `json:"id"`
	EventID    string    `json:"event_id"`
	RuleID     string    `json:"rule_id"`
	EventTitle string    `json:"event_title"`
	EventStart time.Time `json:"event_start"`
	AlarmAt    time.Time `json:"alarm_at"`
	Lead       string    `json:"lead"`
	Dismissed  bool      `json:"dismissed"`
	HostKey    int32     `json:"host_key"`
}

func toAlarmRow(a model.Alarm) alarmRow {
	return alarmRow{
		ID:         a.ID,
		EventID:    a.EventID,
		RuleID:     a.RuleID,
		EventTitle: a.EventTitle,
		EventStart: a.EventStart,
		AlarmAt:    a.AlarmAt,
		Lead:       leadOrDash(a.EventStart.Sub(a.AlarmAt)),
		Dismissed:  a.Dismissed,
		HostKey:    a.HostKey,
	}
}

// NewAlarmsCommand creates the alarms command, which lists stored alarm
// rows.
func NewAlarmsCommand(rootOpts *RootOptions) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "alarms",
		Short: "List stored alarms",
		Long: `List alarm rows from the store. By default only active alarms
(non-dismissed, event still in the future) are shown; --all includes
dismissed and elapsed rows.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			var alarms []model.Alarm
			if all {
				alarms, err = a.store.All(cmd.Context())
			} else {
				alarms, err = a.store.Active(cmd.Context(), time.Now())
			}
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to list alarms", err)
			}

			rows := make([]alarmRow, 0, len(alarms))
			for _, al := range alarms {
				rows = append(rows, toAlarmRow(al))
			}

			out := rootOpts.formatter(cmd)
			if done, jerr := out.JSON(rows); done || jerr != nil {
				return jerr
			}

			if len(rows) == 0 {
				fmt.Fprintln(out.Writer, "no alarms")
				return nil
			}
			for _, r := range rows {
				state := ""
				if r.Dismissed {
					state = "  [dismissed]"
				}
				fmt.Fprintf(out.Writer, "%s  %q  fires %s (lead %s)  rule=%s%s\n",
					r.ID, r.EventTitle, r.AlarmAt.Format(time.RFC3339), r.Lead, r.RuleID, state)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "include dismissed and elapsed alarms")
	return cmd
}

// NewDismissCommand creates the dismiss command. A dismissal sticks until
// the underlying event is modified again.
func NewDismissCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "dismiss <alarm-id>",
		Short: "Dismiss an alarm",
		Long: `Mark an alarm dismissed. The row is kept so the dismissal survives
further scheduling passes; it is cleared automatically when the source
event is modified.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.store.Dismiss(cmd.Context(), args[0]); err != nil {
				return WrapExitError(ExitCommandError, "failed to dismiss alarm", err)
			}

			out := rootOpts.formatter(cmd)
			if done, jerr := out.JSON(map[string]string{"alarm_id": args[0], "state": "dismissed"}); done || jerr != nil {
				return jerr
			}
			fmt.Fprintf(out.Writer, "alarm %s dismissed\n", args[0])
			return nil
		},
	}
}
