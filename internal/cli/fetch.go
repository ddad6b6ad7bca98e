package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"kbingest/internal/app"
	"kbingest/internal/domain"
	"kbingest/internal/pipeline"
)

func newFetchCmd() *cobra.Command {
	var (
		sourceIDs   []string
		sourceType  string
		dryRun      bool
		skipConvert bool
		maxItems    int
		threshold   float64
		verbose     bool
	)

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Run the ingestion pipeline",
		RunE: func(cmd *cobra.Command, _ []string) error {
			level := ""
			if verbose {
				level = "debug"
			}
			a, err := openApp(level)
			if err != nil {
				return err
			}
			defer a.Close()

			if sourceType != "" && !domain.ValidSourceType(domain.SourceType(sourceType)) {
				return fmt.Errorf("invalid source type %q", sourceType)
			}
			if threshold > 0 {
				a.Cfg.Dedup.Threshold = threshold
			}

			ctx, cancel := app.RunContext(cmd.Context())
			defer cancel()

			run, err := a.RunPipeline(ctx, pipeline.Options{
				SourceIDs:   sourceIDs,
				SourceType:  domain.SourceType(sourceType),
				DryRun:      dryRun,
				SkipConvert: skipConvert,
				MaxItems:    maxItems,
			})
			if err != nil {
				return err
			}

			printRunSummary(cmd, run)
			if len(run.Errors) > 0 {
				return fmt.Errorf("%d source(s) failed", len(run.Errors))
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&sourceIDs, "source", nil, "source IDs to fetch (default all enabled)")
	cmd.Flags().StringVar(&sourceType, "type", "", "filter sources by type (feed, document-page, repository-rule-file)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "fetch and dedup without converting, staging or saving state")
	cmd.Flags().BoolVar(&skipConvert, "skip-convert", false, "skip conversion and staging")
	cmd.Flags().IntVar(&maxItems, "max-items", 0, "cap items per source")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "override duplicate similarity threshold")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	return cmd
}

func printRunSummary(cmd *cobra.Command, run domain.RunRecord) {
	totals := run.Totals()
	var itemErrs, seen, dup, converted, skipped, validated, failed int
	for _, src := range run.Sources {
		itemErrs += src.ItemErrors
		seen += src.FilteredSeen
		dup += src.FilteredDup
		converted += src.Converted
		skipped += src.ConvertSkipped
		validated += src.Validated
		failed += src.ValidationFailed
	}

	cmd.Printf("Run %s (%s)\n", run.ID, run.Mode)
	cmd.Printf("  sources processed:  %d\n", totals.SourcesProcessed)
	cmd.Printf("  sources errored:    %d\n", totals.SourcesErrored)
	cmd.Printf("  items fetched:      %d\n", totals.Fetched)
	cmd.Printf("  item errors:        %d\n", itemErrs)
	cmd.Printf("  filtered (seen):    %d\n", seen)
	cmd.Printf("  filtered (dedup):   %d\n", dup)
	cmd.Printf("  converted:          %d\n", converted)
	cmd.Printf("  convert skipped:    %d\n", skipped)
	cmd.Printf("  validated:          %d\n", validated)
	cmd.Printf("  validation failed:  %d\n", failed)
	cmd.Printf("  staged:             %d\n", totals.Staged)
	for _, msg := range run.Errors {
		cmd.Printf("  error: %s\n", msg)
	}
}
