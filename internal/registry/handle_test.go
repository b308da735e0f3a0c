package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vk/udo/internal/testutil"
	"github.com/vk/udo/internal/udo"
)

func resolveEcho(t *testing.T) *Handle {
	t.Helper()
	dir := testutil.FunctionsDir(t, map[string]string{"echo.hcl": echoManifest})
	h, err := newTestRegistry().Resolve(context.Background(), "echo", dir)
	require.NoError(t, err)
	return h
}

func TestBuildSettings_AppliesDefaults(t *testing.T) {
	h := resolveEcho(t)

	s, err := h.BuildSettings(context.Background(), map[string]any{"opfile": "/scratch/out-"})
	require.NoError(t, err)
	require.Equal(t, &echoSettings{Opfile: "/scratch/out-", Quality: 95}, s)
}

func TestBuildSettings_FreshPerCall(t *testing.T) {
	h := resolveEcho(t)

	a, err := h.BuildSettings(context.Background(), nil)
	require.NoError(t, err)
	b, err := h.BuildSettings(context.Background(), nil)
	require.NoError(t, err)
	require.NotSame(t, a, b)
}

func TestBuildParams(t *testing.T) {
	h := resolveEcho(t)

	p, err := h.BuildParams(context.Background(), map[string]any{"text": "hello"})
	require.NoError(t, err)
	require.Equal(t, &echoParams{Text: "hello"}, p)

	_, err = h.BuildParams(context.Background(), nil)
	require.ErrorIs(t, err, udo.ErrInvalidParameters)

	_, err = h.BuildParams(context.Background(), map[string]any{"text": "a", "color": "red"})
	require.ErrorIs(t, err, udo.ErrInvalidParameters)
	require.ErrorContains(t, err, "color")
}

func TestBuild_NoStruct(t *testing.T) {
	dir := testutil.FunctionsDir(t, map[string]string{"v.hcl": `
operation "v" {
  modality   = "video"
  entrypoint = "bare"
}`})
	h, err := newTestRegistry().Resolve(context.Background(), "v", dir)
	require.NoError(t, err)

	s, err := h.BuildSettings(context.Background(), nil)
	require.NoError(t, err)
	require.Nil(t, s)

	_, err = h.BuildParams(context.Background(), map[string]any{"text": "x"})
	require.ErrorIs(t, err, udo.ErrInvalidParameters)
}
