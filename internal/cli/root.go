package cli

import (
	"io"

	"github.com/spf13/cobra"
)

// NewRootCommand builds the udo command tree.
func NewRootCommand(outW, errW io.Writer) *cobra.Command {
	s := newSession(outW, errW)

	root := &cobra.Command{
		Use:   "udo",
		Short: "Run user-defined image and video operations",
		Long: `udo runs user-defined operations (UDOs) against image and video files.

Operations are declared by HCL manifests under the functions path and
implemented by modules compiled into the binary. Every invocation gets an
isolated scratch area; only the output artifact survives a successful run.

Examples:
  udo run flip photo.png
  udo run caption clip.mjpeg --text "hello"
  udo ops
  udo sweep --older-than 2h`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return s.bind(cmd.Root())
		},
	}
	root.SetOut(outW)
	root.SetErr(errW)

	flags := root.PersistentFlags()
	flags.String("config", "", "runtime config file (default is ./"+DefaultConfigFile+" when present)")
	flags.String("functions-path", "", "directory holding operation manifests (default \"functions\")")
	flags.String("scratch-root", "", "directory for scratch artifacts (default is the system temp dir)")
	flags.String("log-level", "", "logging level: 'debug', 'info', 'warn' or 'error' (default \"info\")")
	flags.String("log-format", "", "log output format: 'text' or 'json' (default \"text\")")
	flags.Int("workers", 0, "maximum concurrent invocations (default is the number of CPUs)")

	root.AddCommand(newRunCommand(s))
	root.AddCommand(newOpsCommand(s))
	root.AddCommand(newSweepCommand(s))
	return root
}
