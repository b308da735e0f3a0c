package cli

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/vk/udo/internal/dispatch"
	"github.com/vk/udo/internal/fsutil"
	"github.com/vk/udo/internal/udo"
)

type runOptions struct {
	text      string
	params    []string
	settings  []string
	tmpDir    string
	keepInput bool
}

func newRunCommand(s *session) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run <operation|alias> <input>",
		Short: "Run one operation against an input file",
		Long: `Run one operation against an input file and print the output path.

The input is a file path, or '-' to read the input bytes from stdin. An
in-memory result is written to stdout as is. On failure the error kind and
message are printed and the exit code is 1.

Settings and params are given as key=value pairs and converted to the types
the operation's manifest declares.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperation(cmd, s, opts, args[0], args[1])
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.text, "text", "", "shorthand for --param text=<value>")
	flags.StringArrayVar(&opts.params, "param", nil, "input parameter as key=value (repeatable)")
	flags.StringArrayVar(&opts.settings, "setting", nil, "operation setting as key=value (repeatable)")
	flags.StringVar(&opts.tmpDir, "tmp-dir", "", "scratch directory for this invocation (default is the scratch root)")
	flags.BoolVar(&opts.keepInput, "keep-input", false, "never release the input, even when it lies in the scratch directory")
	return cmd
}

func runOperation(cmd *cobra.Command, s *session, opts *runOptions, op, input string) error {
	a, err := s.newApp()
	if err != nil {
		return err
	}

	req, err := opts.request(op, input, cmd.InOrStdin(), a.ScratchRoot())
	if err != nil {
		return &ExitError{Code: 2, Message: err.Error()}
	}

	res := a.Run(cmd.Context(), req)
	if !res.OK() {
		return &ExitError{Code: 1, Message: res.Err.Error()}
	}

	out := cmd.OutOrStdout()
	if res.Output.Path != "" {
		fmt.Fprintln(out, res.Output.Path)
		return nil
	}
	_, err = out.Write(res.Output.Data)
	return err
}

// request builds the dispatch request for one command line invocation. An
// input inside the invocation's scratch directory is handed over for release
// unless --keep-input is set.
func (o *runOptions) request(op, input string, stdin io.Reader, scratchRoot string) (dispatch.Request, error) {
	settings, err := parseAssignments("setting", o.settings)
	if err != nil {
		return dispatch.Request{}, err
	}
	params, err := parseAssignments("param", o.params)
	if err != nil {
		return dispatch.Request{}, err
	}
	if o.text != "" {
		if params == nil {
			params = make(map[string]any)
		}
		params["text"] = o.text
	}

	req := dispatch.Request{
		Operation:  op,
		Settings:   settings,
		Params:     params,
		TmpDirPath: o.tmpDir,
	}

	if input == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return dispatch.Request{}, fmt.Errorf("failed to read input from stdin: %w", err)
		}
		req.Message = udo.BlobMessage(data)
		return req, nil
	}

	path, err := filepath.Abs(input)
	if err != nil {
		return dispatch.Request{}, fmt.Errorf("invalid input path '%s': %w", input, err)
	}
	req.Message = udo.PathMessage(path)

	tmp := o.tmpDir
	if tmp == "" {
		tmp = scratchRoot
	}
	if !o.keepInput && fsutil.IsWithin(path, tmp) {
		req.Release = []string{path}
	}
	return req, nil
}

// parseAssignments turns key=value pairs into a map. Values stay strings;
// they are converted to the declared types when the operation is invoked.
func parseAssignments(flag string, pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --%s '%s': expected key=value", flag, pair)
		}
		if _, dup := out[key]; dup {
			return nil, fmt.Errorf("--%s '%s' given more than once", flag, key)
		}
		out[key] = value
	}
	return out, nil
}
