package cli

import (
	"encoding/json"
	"fmt"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"kbingest/internal/domain"
)

func newStagedCmd() *cobra.Command {
	var service, category string
	var detail, asJSON bool

	cmd := &cobra.Command{
		Use:   "staged",
		Short: "Show candidates awaiting review",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp("")
			if err != nil {
				return err
			}
			defer a.Close()

			candidates, err := a.Staging().List()
			if err != nil {
				return err
			}
			candidates = filterCandidates(candidates, service, category)

			switch {
			case asJSON:
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(candidates)
			case detail:
				for _, c := range candidates {
					printCandidateDetail(cmd, c)
				}
				return nil
			default:
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tSERVICE\tSCORE\tSOURCE\tSCENARIO")
				for _, c := range candidates {
					scenario, _ := c.Recommendation["scenario"].(string)
					fmt.Fprintf(w, "%s\t%s\t%.2f\t%s\t%s\n", c.ID(), c.Service(), c.DedupScore, c.SourceID, truncate(scenario, 60))
				}
				if err := w.Flush(); err != nil {
					return err
				}
				cmd.Printf("\n%d candidate(s) staged\n", len(candidates))
				return nil
			}
		},
	}

	cmd.Flags().StringVar(&service, "service", "", "filter by AWS service name")
	cmd.Flags().StringVar(&category, "category", "", "filter by source category")
	cmd.Flags().BoolVar(&detail, "detail", false, "print full recommendation payloads")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}

// truncate cuts s to at most n runes, never splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func filterCandidates(candidates []domain.Candidate, service, category string) []domain.Candidate {
	if service == "" && category == "" {
		return candidates
	}
	var out []domain.Candidate
	for _, c := range candidates {
		if service != "" && c.Service() != service {
			continue
		}
		if category != "" && !candidateHasCategory(c, category) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func candidateHasCategory(c domain.Candidate, category string) bool {
	if rc, _ := c.Recommendation["category"].(string); rc == category {
		return true
	}
	tags, _ := c.Recommendation["tags"].([]any)
	return slices.ContainsFunc(tags, func(t any) bool {
		s, _ := t.(string)
		return s == category
	})
}

func printCandidateDetail(cmd *cobra.Command, c domain.Candidate) {
	cmd.Printf("--- %s ---\n", c.ID())
	cmd.Printf("service:     %s\n", c.Service())
	cmd.Printf("staged at:   %s (by %s)\n", c.StagedAt, c.StagedBy)
	cmd.Printf("source:      %s (%s)\n", c.SourceID, c.SourceURL)
	cmd.Printf("dedup score: %.4f", c.DedupScore)
	if c.MatchedID != "" {
		cmd.Printf("  (closest: %s)", c.MatchedID)
	}
	cmd.Println()
	raw, err := json.MarshalIndent(c.Recommendation, "", "  ")
	if err == nil {
		cmd.Println(string(raw))
	}
}
