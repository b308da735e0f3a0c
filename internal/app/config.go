package app

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/vk/udo/internal/config"
)

// Built-in values used when neither the command line nor the runtime config
// file sets them.
const (
	DefaultFunctionsPath = "functions"
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "text"
)

// Config holds the caller-supplied settings for an App. Empty fields fall
// back to the runtime config file and then to the built-in defaults.
type Config struct {
	ConfigPath    string // optional udo.hcl
	FunctionsPath string
	ScratchRoot   string

	LogFormat string
	LogLevel  string
	Workers   int
}

// NewConfig validates cfg and returns a copy of it.
func NewConfig(cfg Config) (*Config, error) {
	if err := validateLogging(cfg.LogLevel, cfg.LogFormat); err != nil {
		return nil, err
	}
	if cfg.Workers < 0 {
		return nil, errors.New("workers must not be negative")
	}
	return &cfg, nil
}

func validateLogging(level, format string) error {
	switch level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log-level '%s': must be 'debug', 'info', 'warn', or 'error'", level)
	}
	switch format {
	case "", "text", "json":
	default:
		return fmt.Errorf("invalid log-format '%s': must be 'text' or 'json'", format)
	}
	return nil
}

// effective layers c over the runtime file values in rt and fills in the
// built-in defaults. Relative paths from the file are taken relative to the
// file's directory.
func (c *Config) effective(rt *config.Runtime) (*config.Runtime, error) {
	out := &config.Runtime{}
	if rt != nil {
		*out = *rt
		base := filepath.Dir(c.ConfigPath)
		out.FunctionsPath = relativeTo(base, out.FunctionsPath)
		out.ScratchRoot = relativeTo(base, out.ScratchRoot)
	}

	out.FunctionsPath = firstNonEmpty(c.FunctionsPath, out.FunctionsPath, DefaultFunctionsPath)
	out.ScratchRoot = firstNonEmpty(c.ScratchRoot, out.ScratchRoot)
	out.LogLevel = firstNonEmpty(c.LogLevel, out.LogLevel, DefaultLogLevel)
	out.LogFormat = firstNonEmpty(c.LogFormat, out.LogFormat, DefaultLogFormat)
	if c.Workers > 0 {
		out.Workers = c.Workers
	}

	if err := validateLogging(out.LogLevel, out.LogFormat); err != nil {
		return nil, err
	}
	return out, nil
}

func relativeTo(base, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
