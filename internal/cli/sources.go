package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newSourcesCmd() *cobra.Command {
	var enabledOnly, asJSON bool

	cmd := &cobra.Command{
		Use:   "sources",
		Short: "List configured sources",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp("")
			if err != nil {
				return err
			}
			defer a.Close()

			registry, err := a.Sources()
			if err != nil {
				return err
			}

			sources := registry.Sources
			if enabledOnly {
				sources = registry.Enabled("", nil)
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(sources)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTYPE\tENABLED\tNAME\tURL")
			for _, src := range sources {
				fmt.Fprintf(w, "%s\t%s\t%t\t%s\t%s\n", src.ID, src.Type, src.Enabled, src.Name, src.URL)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&enabledOnly, "enabled-only", false, "show only enabled sources")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}
