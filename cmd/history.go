package cmd

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/formgate/internal/audit"
	"github.com/xkilldash9x/formgate/internal/config"
	"github.com/xkilldash9x/formgate/internal/observability"
)

// openRecorder is swapped in tests.
var openRecorder = audit.Open

func newHistoryCmd(state *cliState) *cobra.Command {
	var limit int

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List recent login attempts from the audit log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if state.cfg.Audit().Driver == config.AuditDriverNone {
				return errors.New("auditing is disabled (set audit.driver to postgres or sqlite)")
			}
			rec, err := openRecorder(cmd.Context(), state.cfg.Audit(), observability.GetLogger())
			if err != nil {
				return err
			}
			defer rec.Close()

			attempts, err := rec.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if state.jsonOut {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(attempts)
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "STARTED\tUSER\tTRY\tOUTCOME\tCOOKIES\tDURATION\tERROR")
			for _, a := range attempts {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%d\t%s\t%s\n",
					a.StartedAt.Local().Format(time.DateTime), a.Username, a.Attempt, a.Outcome,
					a.CookieCount, a.Duration.Round(time.Millisecond), a.Error)
			}
			return tw.Flush()
		},
	}

	historyCmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of attempts to show")
	return historyCmd
}
