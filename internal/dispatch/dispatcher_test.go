package dispatch

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vk/udo/internal/config"
	"github.com/vk/udo/internal/registry"
	"github.com/vk/udo/internal/tempfile"
	"github.com/vk/udo/internal/testutil"
	"github.com/vk/udo/internal/udo"
)

type scriptedSettings struct {
	Opfile string `udo:"opfile"`
	Mode   string `udo:"mode"`
}

type scriptedParams struct {
	Text string `udo:"text"`
}

// scripted behaves according to its mode setting so one entrypoint covers every
// dispatcher path.
func scripted(ctx context.Context, inv *udo.Invocation) (*udo.Artifact, error) {
	s, err := udo.SettingsOf[scriptedSettings](inv)
	if err != nil {
		return nil, err
	}
	switch s.Mode {
	case "panic":
		panic("boom")
	case "plain-error":
		return nil, errors.New("something broke")
	case "typed-nil":
		var uerr *udo.Error
		return nil, uerr
	case "input-not-found":
		return nil, udo.NewError(udo.KindInputNotFound, inv.Message.Path, "input does not exist")
	case "empty":
		return nil, nil
	case "blob":
		return &udo.Artifact{Data: []byte("payload"), Format: "txt"}, nil
	case "outside":
		return &udo.Artifact{Path: "/etc/passwd"}, nil
	case "missing-output":
		return &udo.Artifact{Path: filepath.Join(inv.TmpDirPath, "never-written.txt")}, nil
	case "scratch-fail":
		if _, err := inv.Scratch.Allocate("tmp"); err != nil {
			return nil, err
		}
		return nil, udo.NewError(udo.KindDecodeFailure, "", "bad input")
	case "opfile":
		path := s.Opfile + inv.ID + ".txt"
		if err := os.WriteFile(path, []byte("ok"), 0o644); err != nil {
			return nil, err
		}
		return &udo.Artifact{Path: path}, nil
	case "echo-params":
		p, err := udo.ParamsOf[scriptedParams](inv)
		if err != nil {
			return nil, err
		}
		return &udo.Artifact{Data: []byte(p.Text + "|" + s.Opfile)}, nil
	}

	work, err := inv.Scratch.Allocate("tmp")
	if err != nil {
		return nil, err
	}
	out, err := inv.Scratch.Allocate("txt")
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(work, []byte("intermediate"), 0o644); err != nil {
		return nil, err
	}
	if err := os.WriteFile(out, []byte("ok"), 0o644); err != nil {
		return nil, err
	}
	return &udo.Artifact{Path: out, Format: "txt"}, nil
}

const scriptedManifest = `
operation "scripted" {
  modality   = "image"
  entrypoint = "scripted"

  setting "opfile" {
    type    = string
    default = ""
  }
  setting "mode" {
    type    = string
    default = "scratch"
  }
  param "text" {
    type    = string
    default = "none"
  }
}
`

type fixture struct {
	functions string
	scratch   string
	temp      *tempfile.Manager
	reg       *registry.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg := registry.New()
	reg.RegisterEntrypoint("scripted", &registry.Entrypoint{
		Module:      udo.ModuleFunc(scripted),
		Modality:    udo.ModalityImage,
		NewSettings: func() any { return &scriptedSettings{} },
		NewParams:   func() any { return &scriptedParams{} },
	})
	return &fixture{
		functions: testutil.FunctionsDir(t, map[string]string{"scripted.hcl": scriptedManifest}),
		scratch:   t.TempDir(),
		temp:      tempfile.New(),
		reg:       reg,
	}
}

func (f *fixture) dispatcher(opts ...Option) *Dispatcher {
	opts = append([]Option{WithFunctionsPath(f.functions), WithScratchRoot(f.scratch)}, opts...)
	return New(f.reg, f.temp, opts...)
}

func request(mode string) Request {
	return Request{
		Operation: "scripted",
		Settings:  map[string]any{"mode": mode},
		Message:   udo.PathMessage("/in/input.png"),
	}
}

func scratchFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestDispatch_SuccessKeepsOnlyOutput(t *testing.T) {
	f := newFixture(t)
	res := f.dispatcher().Dispatch(context.Background(), request("scratch"))

	require.True(t, res.OK(), "unexpected error: %v", res.Err)
	require.Nil(t, res.Err)
	require.FileExists(t, res.Output.Path)
	require.Equal(t, []string{filepath.Base(res.Output.Path)}, scratchFiles(t, f.scratch))
	require.Zero(t, f.temp.Live(), "the output is handed to the caller")
}

func TestDispatch_StateTransitions(t *testing.T) {
	f := newFixture(t)
	var mu sync.Mutex
	var states []State
	d := f.dispatcher(WithObserver(func(tr Transition) {
		mu.Lock()
		defer mu.Unlock()
		states = append(states, tr.State)
	}))

	d.Dispatch(context.Background(), request("blob"))
	require.Equal(t, []State{Received, Resolving, Executing, Succeeded}, states)

	states = nil
	d.Dispatch(context.Background(), Request{Operation: "missing", Message: udo.PathMessage("/in/x.png")})
	require.Equal(t, []State{Received, Resolving, Failed}, states)
}

func TestDispatch_Failures(t *testing.T) {
	cases := map[string]udo.Kind{
		"panic":           udo.KindOperationCrashed,
		"plain-error":     udo.KindOperationCrashed,
		"empty":           udo.KindOperationCrashed,
		"outside":         udo.KindOperationCrashed,
		"missing-output":  udo.KindOperationCrashed,
		"typed-nil":       udo.KindOperationCrashed,
		"input-not-found": udo.KindInputNotFound,
		"scratch-fail":    udo.KindDecodeFailure,
	}
	for mode, kind := range cases {
		t.Run(mode, func(t *testing.T) {
			f := newFixture(t)
			res := f.dispatcher().Dispatch(context.Background(), request(mode))

			require.False(t, res.OK())
			require.Nil(t, res.Output)
			require.NotNil(t, res.Err)
			require.Equal(t, kind, res.Err.Kind, "error: %v", res.Err)
			require.Equal(t, "scripted", res.Err.Op)
			require.Empty(t, scratchFiles(t, f.scratch), "scratch files are released on failure")
			require.Zero(t, f.temp.Live())
		})
	}
}

func TestDispatch_PanicMessage(t *testing.T) {
	f := newFixture(t)
	res := f.dispatcher().Dispatch(context.Background(), request("panic"))
	require.ErrorIs(t, res.Err, udo.ErrOperationCrashed)
	require.Contains(t, res.Err.Error(), "boom")
}

func TestDispatch_TypedNilError(t *testing.T) {
	f := newFixture(t)
	var res udo.Result
	require.NotPanics(t, func() {
		res = f.dispatcher().Dispatch(context.Background(), request("typed-nil"))
	})
	require.ErrorIs(t, res.Err, udo.ErrOperationCrashed)
	require.Contains(t, res.Err.Error(), "nil *udo.Error")
}

func TestGuard(t *testing.T) {
	ctx := context.Background()

	uerr := guard(ctx, "scripted", udo.KindInvalidParameters, func() *udo.Error { panic("bad input") })
	require.NotNil(t, uerr)
	require.Equal(t, udo.KindInvalidParameters, uerr.Kind)
	require.Equal(t, "scripted", uerr.Op)
	require.Contains(t, uerr.Error(), "bad input")

	want := udo.NewError(udo.KindDecodeFailure, "", "x")
	require.Same(t, want, guard(ctx, "scripted", udo.KindOperationCrashed, func() *udo.Error { return want }))
	require.Nil(t, guard(ctx, "scripted", udo.KindOperationCrashed, func() *udo.Error { return nil }))
}

func TestDispatch_ResolveFailures(t *testing.T) {
	f := newFixture(t)
	d := f.dispatcher()

	res := d.Dispatch(context.Background(), Request{Operation: "nonexistent-op", Message: udo.PathMessage("/in/x.png")})
	require.ErrorIs(t, res.Err, udo.ErrOperationNotFound)

	testutil.WriteFiles(t, f.functions, map[string]string{"broken.hcl": `operation "broken" {`})
	res = d.Dispatch(context.Background(), Request{Operation: "broken", Message: udo.PathMessage("/in/x.png")})
	require.ErrorIs(t, res.Err, udo.ErrOperationLoadError)
}

func TestDispatch_InvalidParameters(t *testing.T) {
	f := newFixture(t)
	d := f.dispatcher()

	for name, req := range map[string]Request{
		"unknown setting": {Operation: "scripted", Settings: map[string]any{"colour": "red"}, Message: udo.PathMessage("/in/x.png")},
		"bad param type":  {Operation: "scripted", Params: map[string]any{"text": []any{1}}, Message: udo.PathMessage("/in/x.png")},
		"NaN param":       {Operation: "scripted", Params: map[string]any{"text": math.NaN()}, Message: udo.PathMessage("/in/x.png")},
		"empty message":   {Operation: "scripted"},
		"both message":    {Operation: "scripted", Message: udo.Message{Path: "/in/x.png", Data: []byte{1}}},
	} {
		t.Run(name, func(t *testing.T) {
			var res udo.Result
			require.NotPanics(t, func() { res = d.Dispatch(context.Background(), req) })
			require.ErrorIs(t, res.Err, udo.ErrInvalidParameters)
		})
	}
}

func TestDispatch_OutputUnderOpfile(t *testing.T) {
	f := newFixture(t)
	outDir := t.TempDir()
	req := request("opfile")
	req.Settings["opfile"] = filepath.Join(outDir, "out-")

	res := f.dispatcher().Dispatch(context.Background(), req)
	require.True(t, res.OK(), "unexpected error: %v", res.Err)
	require.Equal(t, outDir, filepath.Dir(res.Output.Path))
}

func TestDispatch_DefaultsAndAliases(t *testing.T) {
	f := newFixture(t)
	d := f.dispatcher(
		WithAliases(map[string]string{"Scripted": "scripted"}),
		WithDefaults(map[string]*config.OperationDefaults{
			"scripted": {
				Settings: map[string]any{"mode": "echo-params", "opfile": "from-defaults"},
				Params:   map[string]any{"text": "default-text"},
			},
		}),
	)

	res := d.Dispatch(context.Background(), Request{Operation: "Scripted", Message: udo.BlobMessage([]byte{1})})
	require.True(t, res.OK(), "unexpected error: %v", res.Err)
	require.Equal(t, "default-text|from-defaults", string(res.Output.Data))

	req := Request{
		Operation: "Scripted",
		Settings:  map[string]any{"opfile": "from-request"},
		Params:    map[string]any{"text": "hello"},
		Message:   udo.BlobMessage([]byte{1}),
	}
	res = d.Dispatch(context.Background(), req)
	require.True(t, res.OK(), "unexpected error: %v", res.Err)
	require.Equal(t, "hello|from-request", string(res.Output.Data))
	require.Equal(t, map[string]any{"opfile": "from-request"}, req.Settings, "request maps are not modified")
}

func TestDispatch_ReleasesRequestedPaths(t *testing.T) {
	f := newFixture(t)
	staged, err := f.temp.Allocate(f.scratch, "png")
	require.NoError(t, err)
	outside := filepath.Join(t.TempDir(), "keep.png")
	require.NoError(t, os.WriteFile(outside, nil, 0o644))

	req := request("blob")
	req.Release = []string{staged, outside}
	res := f.dispatcher().Dispatch(context.Background(), req)
	require.True(t, res.OK())

	require.NoFileExists(t, staged)
	require.FileExists(t, outside, "paths outside the scratch root are never released")
}

func TestDispatch_KeepsRequestedPathsOnFailure(t *testing.T) {
	f := newFixture(t)
	staged, err := f.temp.Allocate(f.scratch, "png")
	require.NoError(t, err)

	req := request("plain-error")
	req.Release = []string{staged}
	res := f.dispatcher().Dispatch(context.Background(), req)
	require.False(t, res.OK())
	require.FileExists(t, staged)
}

func TestDispatchAll_OrderAndIsolation(t *testing.T) {
	f := newFixture(t)
	d := f.dispatcher(WithWorkers(4))

	var reqs []Request
	for i := 0; i < 40; i++ {
		mode := "scratch"
		if i%5 == 0 {
			mode = "panic"
		}
		reqs = append(reqs, request(mode))
	}

	results := d.DispatchAll(context.Background(), reqs)
	require.Len(t, results, len(reqs))

	seen := make(map[string]struct{})
	for i, res := range results {
		if i%5 == 0 {
			require.ErrorIs(t, res.Err, udo.ErrOperationCrashed, "request %d", i)
			continue
		}
		require.True(t, res.OK(), "request %d: %v", i, res.Err)
		_, dup := seen[res.Output.Path]
		require.False(t, dup, fmt.Sprintf("output %s reused", res.Output.Path))
		seen[res.Output.Path] = struct{}{}
	}
	require.Len(t, scratchFiles(t, f.scratch), 32)
}

func TestDispatchAll_CancelledContext(t *testing.T) {
	f := newFixture(t)
	var mu sync.Mutex
	executing := 0
	d := f.dispatcher(WithWorkers(2), WithObserver(func(tr Transition) {
		mu.Lock()
		defer mu.Unlock()
		if tr.State == Executing {
			executing++
		}
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reqs := []Request{request("scratch"), request("blob"), request("panic")}
	results := d.DispatchAll(ctx, reqs)
	require.Len(t, results, len(reqs))
	for i, res := range results {
		require.False(t, res.OK(), "request %d", i)
		require.ErrorIs(t, res.Err, udo.ErrOperationCrashed, "request %d", i)
		require.ErrorIs(t, res.Err, context.Canceled, "request %d", i)
	}
	require.Zero(t, executing, "no module runs once the context is done")
	require.Empty(t, scratchFiles(t, f.scratch))
}

func TestState_String(t *testing.T) {
	require.Equal(t, "received", Received.String())
	require.Equal(t, "failed", Failed.String())
	require.Equal(t, "unknown", State(42).String())
	require.True(t, Succeeded.Terminal())
	require.False(t, Executing.Terminal())
}
