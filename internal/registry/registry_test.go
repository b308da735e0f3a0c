package registry

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/udo/internal/testutil"
	"github.com/vk/udo/internal/udo"
)

type echoSettings struct {
	Opfile  string `udo:"opfile"`
	Quality int    `udo:"quality"`
}

type echoParams struct {
	Text string `udo:"text"`
}

var echoModule = udo.ModuleFunc(func(ctx context.Context, inv *udo.Invocation) (*udo.Artifact, error) {
	return &udo.Artifact{Data: []byte("ok")}, nil
})

type echoRegistrar struct{}

func (echoRegistrar) Register(r *Registry) {
	r.RegisterEntrypoint("echo", &Entrypoint{
		Module:      echoModule,
		Modality:    udo.ModalityImage,
		NewSettings: func() any { return &echoSettings{} },
		NewParams:   func() any { return &echoParams{} },
	})
	r.RegisterEntrypoint("bare", &Entrypoint{
		Module:   echoModule,
		Modality: udo.ModalityVideo,
	})
}

const echoManifest = `
operation "echo" {
  description = "Echo test operation."
  modality    = "image"
  entrypoint  = "echo"

  setting "opfile" {
    type    = string
    default = ""
  }
  setting "quality" {
    type    = number
    default = 95
  }
  param "text" {
    type = string
  }
}
`

func newTestRegistry() *Registry {
	r := New()
	r.Register(echoRegistrar{})
	return r
}

func TestResolve_FileManifest(t *testing.T) {
	dir := testutil.FunctionsDir(t, map[string]string{"echo.hcl": echoManifest})
	r := newTestRegistry()

	h, err := r.Resolve(context.Background(), "echo", dir)
	require.NoError(t, err)
	require.Equal(t, "echo", h.Descriptor.Name)
	require.Equal(t, "echo", h.Descriptor.Entrypoint)
	require.Equal(t, udo.ModalityImage, h.Descriptor.Modality)
	require.Equal(t, filepath.Join(dir, "echo.hcl"), h.Descriptor.ManifestPath)
	require.NotNil(t, h.Module)
}

func TestResolve_DirectoryManifest(t *testing.T) {
	dir := testutil.FunctionsDir(t, map[string]string{
		"echo/manifest.hcl": echoManifest,
	})
	h, err := newTestRegistry().Resolve(context.Background(), "echo", dir)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "echo", ManifestFile), h.Descriptor.ManifestPath)
}

func TestResolve_CachesSuccess(t *testing.T) {
	dir := testutil.FunctionsDir(t, map[string]string{"echo.hcl": echoManifest})
	r := newTestRegistry()

	first, err := r.Resolve(context.Background(), "echo", dir)
	require.NoError(t, err)

	// The cached handle survives the manifest disappearing.
	require.NoError(t, os.Remove(filepath.Join(dir, "echo.hcl")))
	second, err := r.Resolve(context.Background(), "echo", dir)
	require.NoError(t, err)
	require.Same(t, first, second)
	require.Equal(t, 1, r.Cached())
}

func TestResolve_NotFoundThenAdded(t *testing.T) {
	dir := t.TempDir()
	r := newTestRegistry()

	_, err := r.Resolve(context.Background(), "nonexistent-op", dir)
	require.ErrorIs(t, err, udo.ErrOperationNotFound)
	require.Zero(t, r.Cached())

	testutil.WriteFiles(t, dir, map[string]string{
		"nonexistent-op.hcl": `
operation "nonexistent-op" {
  modality   = "video"
  entrypoint = "bare"
}
`,
	})
	h, err := r.Resolve(context.Background(), "nonexistent-op", dir)
	require.NoError(t, err)
	require.Equal(t, udo.ModalityVideo, h.Descriptor.Modality)
}

func TestResolve_LoadErrorIsNotCached(t *testing.T) {
	dir := testutil.FunctionsDir(t, map[string]string{"echo.hcl": `operation "echo" {`})
	r := newTestRegistry()

	_, err := r.Resolve(context.Background(), "echo", dir)
	require.ErrorIs(t, err, udo.ErrOperationLoadError)

	testutil.WriteFiles(t, dir, map[string]string{"echo.hcl": echoManifest})
	_, err = r.Resolve(context.Background(), "echo", dir)
	require.NoError(t, err)
}

func TestResolve_InvalidNames(t *testing.T) {
	dir := testutil.FunctionsDir(t, map[string]string{"echo.hcl": echoManifest})
	r := newTestRegistry()
	for _, name := range []string{"", ".", "..", "../echo", "sub/echo", `sub\echo`} {
		_, err := r.Resolve(context.Background(), name, dir)
		require.ErrorIs(t, err, udo.ErrOperationNotFound, "name %q", name)
	}
}

func TestResolve_LoadErrors(t *testing.T) {
	cases := map[string]string{
		"unknown entrypoint": `
operation "x" {
  modality   = "image"
  entrypoint = "nope"
}`,
		"modality mismatch": `
operation "x" {
  modality   = "video"
  entrypoint = "echo"
}`,
		"undeclared struct field": `
operation "x" {
  modality   = "image"
  entrypoint = "echo"
  setting "opfile" {
    type    = string
    default = ""
  }
  param "text" {
    type = string
  }
}`,
		"undeclared go field": `
operation "x" {
  modality   = "image"
  entrypoint = "echo"
  setting "opfile" {
    type    = string
    default = ""
  }
  setting "quality" {
    type    = number
    default = 95
  }
  setting "speed" {
    type    = number
    default = 1
  }
  param "text" {
    type = string
  }
}`,
		"type mismatch": `
operation "x" {
  modality   = "image"
  entrypoint = "echo"
  setting "opfile" {
    type    = list(string)
    default = []
  }
  setting "quality" {
    type    = number
    default = 95
  }
  param "text" {
    type = string
  }
}`,
		"params without struct": `
operation "x" {
  modality   = "video"
  entrypoint = "bare"
  param "text" {
    type = string
  }
}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			dir := testutil.FunctionsDir(t, map[string]string{"x.hcl": body})
			_, err := newTestRegistry().Resolve(context.Background(), "x", dir)
			require.ErrorIs(t, err, udo.ErrOperationLoadError)

			uerr, ok := udo.AsError(err)
			require.True(t, ok)
			require.Equal(t, "x", uerr.Op)
			require.Equal(t, filepath.Join(dir, "x.hcl"), uerr.Path)
		})
	}
}

func TestResolve_Concurrent(t *testing.T) {
	dir := testutil.FunctionsDir(t, map[string]string{"echo.hcl": echoManifest})
	r := newTestRegistry()

	const n = 64
	handles := make([]*Handle, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := r.Resolve(context.Background(), "echo", dir)
			assert.NoError(t, err)
			handles[i] = h
		}(i)
	}
	wg.Wait()

	for _, h := range handles[1:] {
		require.Same(t, handles[0], h)
	}
	require.Equal(t, 1, r.Cached())
}

func TestList(t *testing.T) {
	dir := testutil.FunctionsDir(t, map[string]string{
		"echo.hcl": echoManifest,
		"video/manifest.hcl": `
operation "video" {
  modality   = "video"
  entrypoint = "bare"
}`,
		"broken.hcl":        `operation "broken" {`,
		"video/notes/x.hcl": `ignored = true`,
		"video/extra.hcl":   `ignored = true`,
	})

	descs, errs := newTestRegistry().List(context.Background(), dir)
	require.Len(t, errs, 1)
	require.ErrorIs(t, errs[0], udo.ErrOperationLoadError)

	require.Len(t, descs, 2)
	require.Equal(t, "echo", descs[0].Name)
	require.Equal(t, "video", descs[1].Name)
}

func TestEntrypoints(t *testing.T) {
	require.Equal(t, []string{"bare", "echo"}, newTestRegistry().Entrypoints())
}

func TestRegisterEntrypoint_Duplicate(t *testing.T) {
	r := newTestRegistry()
	require.Panics(t, func() {
		r.RegisterEntrypoint("echo", &Entrypoint{Module: echoModule, Modality: udo.ModalityImage})
	})
	require.Panics(t, func() {
		r.RegisterEntrypoint("nomodule", &Entrypoint{Modality: udo.ModalityImage})
	})
	require.Panics(t, func() {
		r.RegisterEntrypoint("nomodality", &Entrypoint{Module: echoModule})
	})
}
