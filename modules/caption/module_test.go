package caption

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vk/udo/internal/dispatch"
	"github.com/vk/udo/internal/media"
	"github.com/vk/udo/internal/registry"
	"github.com/vk/udo/internal/tempfile"
	"github.com/vk/udo/internal/testutil"
	"github.com/vk/udo/internal/udo"
)

const (
	functionsPath = "../../functions"
	frameW        = 64
	frameH        = 48
)

func newDispatcher(t *testing.T) (*dispatch.Dispatcher, string) {
	t.Helper()
	reg := registry.New()
	reg.Register(&Module{})
	scratch := t.TempDir()
	return dispatch.New(reg, tempfile.New(),
		dispatch.WithFunctionsPath(functionsPath),
		dispatch.WithScratchRoot(scratch),
	), scratch
}

func captionRequest(path, text string) dispatch.Request {
	return dispatch.Request{
		Operation: "caption",
		Message:   udo.PathMessage(path),
		Params:    map[string]any{"text": text},
	}
}

func writeClip(t *testing.T, frames []image.Image) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.mjpeg")
	testutil.WriteMJPEG(t, path, frames)
	return path
}

// requireCaptioned checks count, order and overlay of the output frames.
func requireCaptioned(t *testing.T, frames []image.Image, want int) {
	t.Helper()
	require.Len(t, frames, want)
	text := media.TextBounds("hello", 10, 25)
	for i, f := range frames {
		level := int(testutil.FrameLevel(i))
		require.Equal(t, image.Rect(0, 0, frameW, frameH), f.Bounds(), "frame %d", i)
		require.InDelta(t, level, int(testutil.Luma(f, frameW-4, frameH-4)), 3, "frame %d out of order", i)
		require.True(t, testutil.HasBrightPixel(f, text, uint8(level+30)), "frame %d has no caption", i)
		require.False(t, testutil.HasBrightPixel(f, image.Rect(48, 32, 64, 48), uint8(level+10)), "frame %d has stray pixels", i)
	}
}

func TestCaption_AllFrames(t *testing.T) {
	d, _ := newDispatcher(t)
	in := writeClip(t, testutil.GrayFrames(30, frameW, frameH))

	res := d.Dispatch(context.Background(), captionRequest(in, "hello"))
	require.True(t, res.OK(), "unexpected error: %v", res.Err)
	require.Equal(t, "mjpeg", res.Output.Format)

	requireCaptioned(t, testutil.ReadMJPEGFrames(t, res.Output.Path), 30)
}

func TestCaption_CorruptFrameEndsStream(t *testing.T) {
	d, _ := newDispatcher(t)
	frames := testutil.GrayFrames(30, frameW, frameH)
	frames[14] = nil
	in := writeClip(t, frames)

	res := d.Dispatch(context.Background(), captionRequest(in, "hello"))
	require.True(t, res.OK(), "a mid-stream decode failure is a normal end of stream: %v", res.Err)
	requireCaptioned(t, testutil.ReadMJPEGFrames(t, res.Output.Path), 14)
}

func TestCaption_OpfilePrefix(t *testing.T) {
	d, _ := newDispatcher(t)
	in := writeClip(t, testutil.GrayFrames(3, frameW, frameH))
	prefix := filepath.Join(t.TempDir(), "out-")

	req := captionRequest(in, "hello")
	req.Settings = map[string]any{"opfile": prefix}
	res := d.Dispatch(context.Background(), req)
	require.True(t, res.OK(), "unexpected error: %v", res.Err)
	require.True(t, strings.HasPrefix(res.Output.Path, prefix))
	require.True(t, strings.HasSuffix(res.Output.Path, ".mjpeg"))
}

func TestCaption_Errors(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.mjpeg")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	firstBad := filepath.Join(dir, "first-bad.mjpeg")
	testutil.WriteMJPEG(t, firstBad, []image.Image{nil, testutil.GrayFrame(8, 8, 50)})
	img := filepath.Join(dir, "still.png")
	testutil.WritePNG(t, img, testutil.PatternImage(4, 4))
	good := filepath.Join(dir, "good.mjpeg")
	testutil.WriteMJPEG(t, good, testutil.GrayFrames(2, 8, 8))

	cases := map[string]struct {
		req  dispatch.Request
		kind udo.Kind
	}{
		"missing input":       {captionRequest(filepath.Join(dir, "missing.mjpeg"), "hi"), udo.KindInputNotFound},
		"image input":         {captionRequest(img, "hi"), udo.KindUnsupportedFormat},
		"no frames":           {captionRequest(empty, "hi"), udo.KindDecodeFailure},
		"first frame corrupt": {captionRequest(firstBad, "hi"), udo.KindDecodeFailure},
		"missing text":        {dispatch.Request{Operation: "caption", Message: udo.PathMessage(good)}, udo.KindInvalidParameters},
		"missing output dir": {
			dispatch.Request{
				Operation: "caption",
				Message:   udo.PathMessage(good),
				Settings:  map[string]any{"opfile": filepath.Join(dir, "nope", "out-")},
				Params:    map[string]any{"text": "hi"},
			},
			udo.KindOutputDirectoryMissing,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			d, scratch := newDispatcher(t)
			res := d.Dispatch(context.Background(), tc.req)
			require.False(t, res.OK())
			require.Equal(t, tc.kind, res.Err.Kind, "error: %v", res.Err)

			entries, err := os.ReadDir(scratch)
			require.NoError(t, err)
			require.Empty(t, entries, "failed invocations leave nothing in scratch")
		})
	}
}

func TestCaption_BlobInput(t *testing.T) {
	d, scratch := newDispatcher(t)
	src := writeClip(t, testutil.GrayFrames(4, frameW, frameH))
	data, err := os.ReadFile(src)
	require.NoError(t, err)

	res := d.Dispatch(context.Background(), dispatch.Request{
		Operation: "caption",
		Message:   udo.BlobMessage(data),
		Params:    map[string]any{"text": "hello"},
	})
	require.True(t, res.OK(), "unexpected error: %v", res.Err)
	requireCaptioned(t, testutil.ReadMJPEGFrames(t, res.Output.Path), 4)

	entries, err := os.ReadDir(scratch)
	require.NoError(t, err)
	require.Len(t, entries, 1, "the staged input is released, the output kept")

	res = d.Dispatch(context.Background(), dispatch.Request{
		Operation: "caption",
		Message:   udo.BlobMessage([]byte("RIFF....AVI ")),
		Params:    map[string]any{"text": "hello"},
	})
	require.ErrorIs(t, res.Err, udo.ErrUnsupportedFormat)
}

func TestCaption_ContainerFormat(t *testing.T) {
	if !media.FFmpegAvailable() {
		t.Skip("ffmpeg not installed")
	}
	if testing.Short() {
		t.Skip("spawns ffmpeg")
	}
	ctx := context.Background()
	in := filepath.Join(t.TempDir(), "video.avi")
	w, err := media.CreateFrames(ctx, in, media.FrameOptions{Quality: 95, FPS: 10})
	require.NoError(t, err)
	for _, f := range testutil.GrayFrames(6, frameW, frameH) {
		require.NoError(t, w.WriteFrame(f))
	}
	require.NoError(t, w.Close())

	d, _ := newDispatcher(t)
	prefix := filepath.Join(t.TempDir(), "out-")
	req := captionRequest(in, "hello")
	req.Settings = map[string]any{"opfile": prefix}
	res := d.Dispatch(ctx, req)
	require.True(t, res.OK(), "unexpected error: %v", res.Err)
	require.True(t, strings.HasPrefix(res.Output.Path, prefix))
	require.True(t, strings.HasSuffix(res.Output.Path, ".avi"))

	r, err := media.OpenFrames(ctx, res.Output.Path)
	require.NoError(t, err)
	defer r.Close()
	n := 0
	for {
		if _, err := r.Next(); err != nil {
			break
		}
		n++
	}
	require.Equal(t, 6, n)
}
