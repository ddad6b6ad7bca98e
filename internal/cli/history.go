package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newHistoryCmd() *cobra.Command {
	var last int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent pipeline runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp("")
			if err != nil {
				return err
			}
			defer a.Close()

			runs, err := a.History().ListRuns(cmd.Context(), last)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(runs)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "STARTED\tMODE\tSOURCES\tFETCHED\tNOVEL\tSTAGED\tERRORS")
			for _, run := range runs {
				totals := run.Totals()
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%d\n",
					run.StartedAt.UTC().Format(time.RFC3339), run.Mode,
					totals.SourcesProcessed+totals.SourcesErrored,
					totals.Fetched, totals.Novel, totals.Staged, len(run.Errors))
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&last, "last", 10, "number of runs to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}
