package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newOpsCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "ops",
		Short: "List operations under the functions path and compiled-in entrypoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := s.newApp()
			if err != nil {
				return err
			}

			ops, errs := a.Operations(cmd.Context())
			out := cmd.OutOrStdout()
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tMODALITY\tENTRYPOINT\tDESCRIPTION")
			for _, op := range ops {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", op.Name, op.Modality, op.Entrypoint, op.Description)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(out, "\nEntrypoints: %s\n", strings.Join(a.Entrypoints(), ", "))

			if len(errs) > 0 {
				msgs := make([]string, len(errs))
				for i, e := range errs {
					msgs[i] = e.Error()
				}
				return &ExitError{Code: 1, Message: strings.Join(msgs, "\n")}
			}
			return nil
		},
	}
}
