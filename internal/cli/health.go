package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"kbingest/internal/health"
)

func newHealthCmd() *cobra.Command {
	var checks []string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Run pipeline health checks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp("")
			if err != nil {
				return err
			}
			defer a.Close()

			reporter, err := a.HealthReporter()
			if err != nil {
				return err
			}
			results := reporter.Run(cmd.Context(), checks)

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(results); err != nil {
					return err
				}
			} else {
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "SEVERITY\tCHECK\tMESSAGE")
				for _, res := range results {
					fmt.Fprintf(w, "%s\t%s\t%s\n", res.Severity, res.Check, res.Message)
				}
				if err := w.Flush(); err != nil {
					return err
				}
			}

			if health.Failing(results) {
				return fmt.Errorf("health checks reported problems")
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&checks, "check", nil,
		fmt.Sprintf("specific checks to run %v (default all)", health.CheckNames))
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}
