package cli

import (
	"github.com/spf13/cobra"
)

func newPromoteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "promote <id>",
		Short: "Promote a staged candidate into the knowledge base",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp("")
			if err != nil {
				return err
			}
			defer a.Close()

			service, err := a.Staging().Promote(args[0])
			if err != nil {
				return err
			}
			cmd.Printf("Promoted %s to %s.json\n", args[0], service)
			return nil
		},
	}
}

func newRejectCmd() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "reject <id>",
		Short: "Reject a staged candidate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp("")
			if err != nil {
				return err
			}
			defer a.Close()

			candidate, err := a.Staging().Reject(args[0], reason)
			if err != nil {
				return err
			}
			if err := a.History().RecordRejection(cmd.Context(), candidate, reason); err != nil {
				return err
			}
			cmd.Printf("Rejected %s: %s\n", args[0], reason)
			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "why the candidate is rejected (required)")
	return cmd
}
