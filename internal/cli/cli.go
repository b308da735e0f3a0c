package cli

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/vk/udo/internal/app"
	"github.com/vk/udo/internal/fsutil"
	"github.com/vk/udo/internal/hcl"
)

// EnvPrefix prefixes the environment variables that mirror the global flags,
// e.g. UDO_LOG_LEVEL for --log-level.
const EnvPrefix = "UDO"

// DefaultConfigFile is picked up from the working directory when --config is
// not given.
const DefaultConfigFile = "udo.hcl"

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Execute runs the command line in args. Command output goes to outW and
// logs to errW. Any failure is returned as an *ExitError.
func Execute(ctx context.Context, args []string, outW, errW io.Writer) error {
	root := NewRootCommand(outW, errW)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			return exitErr
		}
		return &ExitError{Code: 2, Message: err.Error()}
	}
	return nil
}

// session carries what every subcommand needs to build an App.
type session struct {
	v    *viper.Viper
	outW io.Writer
	errW io.Writer
}

func newSession(outW, errW io.Writer) *session {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return &session{v: v, outW: outW, errW: errW}
}

// bind makes every flag of cmd readable through viper, so each can also be
// set from the environment.
func (s *session) bind(cmd *cobra.Command) error {
	return s.v.BindPFlags(cmd.PersistentFlags())
}

// newApp validates the global settings and builds the application. Logs are
// written to the error stream so stdout carries only command output.
func (s *session) newApp() (*app.App, error) {
	configPath := s.v.GetString("config")
	if configPath == "" && fsutil.FileExists(DefaultConfigFile) {
		configPath = DefaultConfigFile
	}

	cfg, err := app.NewConfig(app.Config{
		ConfigPath:    configPath,
		FunctionsPath: s.v.GetString("functions-path"),
		ScratchRoot:   s.v.GetString("scratch-root"),
		LogFormat:     strings.ToLower(s.v.GetString("log-format")),
		LogLevel:      strings.ToLower(s.v.GetString("log-level")),
		Workers:       s.v.GetInt("workers"),
	})
	if err != nil {
		return nil, &ExitError{Code: 2, Message: err.Error()}
	}

	a, err := app.NewApp(s.errW, cfg, hcl.NewLoader())
	if err != nil {
		return nil, &ExitError{Code: 2, Message: err.Error()}
	}
	return a, nil
}
