package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newSweepCommand(s *session) *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Remove scratch artifacts left behind by abandoned invocations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if olderThan < 0 {
				return &ExitError{Code: 2, Message: "--older-than must not be negative"}
			}
			a, err := s.newApp()
			if err != nil {
				return err
			}
			n, err := a.Sweep(cmd.Context(), olderThan)
			if err != nil {
				return &ExitError{Code: 1, Message: err.Error()}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d stale artifact(s) from %s\n", n, a.ScratchRoot())
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", time.Hour, "only remove artifacts last modified longer ago than this")
	return cmd
}
