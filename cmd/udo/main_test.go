package main

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vk/udo/internal/cli"
	"github.com/vk/udo/internal/testutil"
)

func TestRun_Help(t *testing.T) {
	t.Parallel()

	out := &bytes.Buffer{}
	err := run(context.Background(), out, &bytes.Buffer{}, []string{"-h"})

	require.NoError(t, err, "run() should return a nil error when help is requested")
	require.Contains(t, out.String(), "Usage:", "Expected help text to be printed to the output buffer")
}

func TestRun_ParseError(t *testing.T) {
	t.Parallel()

	err := run(context.Background(), &bytes.Buffer{}, &bytes.Buffer{}, []string{"--this-is-not-a-valid-flag"})

	var exitErr *cli.ExitError
	require.True(t, errors.As(err, &exitErr), "run() should return an ExitError when argument parsing fails")
	require.Equal(t, 2, exitErr.Code)
	require.Contains(t, exitErr.Message, "unknown flag: --this-is-not-a-valid-flag")
}

func TestRun_FlipEndToEnd(t *testing.T) {
	t.Parallel()

	scratch := t.TempDir()
	input := filepath.Join(t.TempDir(), "photo.png")
	testutil.WritePNG(t, input, testutil.PatternImage(6, 4))

	out := &bytes.Buffer{}
	err := run(context.Background(), out, &bytes.Buffer{}, []string{
		"--functions-path", "../../functions", "--scratch-root", scratch,
		"run", "flip", input,
	})
	require.NoError(t, err)

	path := strings.TrimSpace(out.String())
	require.Equal(t, scratch, filepath.Dir(path))
	require.FileExists(t, path)
}

func TestRun_OperationFailure(t *testing.T) {
	t.Parallel()

	err := run(context.Background(), &bytes.Buffer{}, &bytes.Buffer{}, []string{
		"--functions-path", "../../functions", "--scratch-root", t.TempDir(),
		"run", "flip", "/does/not/exist.png",
	})

	var exitErr *cli.ExitError
	require.True(t, errors.As(err, &exitErr))
	require.Equal(t, 1, exitErr.Code)
	require.Contains(t, exitErr.Message, "InputNotFound")
}
