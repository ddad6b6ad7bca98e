// Package cli is the kbingest command surface.
package cli

import (
	"github.com/spf13/cobra"

	"kbingest/internal/app"
	"kbingest/internal/config"
	"kbingest/internal/logging"
)

// New builds the root command with all subcommands attached.
func New() *cobra.Command {
	root := &cobra.Command{
		Use:           "kbingest",
		Short:         "AWS misconfiguration knowledge base ingestion pipeline",
		Long:          "kbingest fetches AWS misconfiguration knowledge from configured sources,\nfilters duplicates against the existing knowledge base, converts findings\ninto structured recommendations and stages them for human review.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.AddCommand(
		newSourcesCmd(),
		newFetchCmd(),
		newStagedCmd(),
		newPromoteCmd(),
		newRejectCmd(),
		newHealthCmd(),
		newHistoryCmd(),
	)
	return root
}

// openApp loads configuration and builds the shared application instance.
// logLevel overrides the configured level when non-empty.
func openApp(logLevel string) (*app.Application, error) {
	cfg := config.Load()
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	return app.New(cfg, logging.New(cfg.Logging.Level))
}
