package cmd

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/gatecheck/internal/observability"
	"github.com/xkilldash9x/gatecheck/internal/reporting"
)

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Shows stored runs, or the results of one run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sc := opts.cfg.Store()
			if sc.DatabaseURL == "" {
				return errors.New("run history needs store.database_url")
			}
			limit, _ := cmd.Flags().GetInt("limit")
			runID, _ := cmd.Flags().GetString("run")

			hs, closeFn, err := openStore(cmd.Context(), sc, observability.GetLogger())
			if err != nil {
				return err
			}
			defer closeFn()

			if runID != "" {
				results, err := hs.RunResults(cmd.Context(), runID)
				if err != nil {
					return err
				}
				if len(results) == 0 {
					return fmt.Errorf("no results stored for run %s", runID)
				}
				rep := reporting.NewTextReporter(reporting.NopCloser(cmd.OutOrStdout()))
				for i := range results {
					if err := rep.Write(&results[i]); err != nil {
						return err
					}
				}
				return rep.Close()
			}

			runs, err := hs.RecentRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN\tSTARTED\tTARGET\tPASSED\tFAILED\tDURATION")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n", r.ID, r.Started.Format(time.RFC3339), r.Target, r.Passed, r.Failed, r.Duration)
			}
			return tw.Flush()
		},
	}
	historyCmd.Flags().Int("limit", 20, "number of runs to list")
	historyCmd.Flags().String("run", "", "show the scenario results of this run")
	return historyCmd
}
