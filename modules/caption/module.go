// Package caption implements the "caption" operation: overlay a text label on
// every frame of a video.
package caption

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/color"
	"io"
	"os"

	"github.com/vk/udo/internal/ctxlog"
	"github.com/vk/udo/internal/fsutil"
	"github.com/vk/udo/internal/media"
	"github.com/vk/udo/internal/registry"
	"github.com/vk/udo/internal/udo"
)

// Entrypoint is the name manifests use to bind to this module.
const Entrypoint = "caption"

// stagedExt is the container blob messages are staged into.
const stagedExt = "mjpeg"

var jpegSOI = []byte{0xFF, 0xD8}

// Module implements the registry.Module interface for this package.
type Module struct{}

// Settings are the static options of the caption operation.
type Settings struct {
	Opfile  string `udo:"opfile"`
	Quality int    `udo:"quality"`
	FPS     int    `udo:"fps"`
}

// Params are the per-call inputs of the caption operation.
type Params struct {
	Text string `udo:"text"`
	X    int    `udo:"x"`
	Y    int    `udo:"y"`
}

// Run re-encodes the input video frame by frame with the caption drawn on
// each frame. A frame that fails to decode ends the stream; only a failure on
// the very first frame is reported as an error.
func Run(ctx context.Context, inv *udo.Invocation) (*udo.Artifact, error) {
	s, err := udo.SettingsOf[Settings](inv)
	if err != nil {
		return nil, err
	}
	p, err := udo.ParamsOf[Params](inv)
	if err != nil {
		return nil, err
	}

	in, err := input(inv)
	if err != nil {
		return nil, err
	}
	format, err := media.FormatFromPath(in)
	if err != nil || format.Modality != udo.ModalityVideo {
		return nil, udo.NewError(udo.KindUnsupportedFormat, in, "not a video format")
	}

	out, err := inv.OutputPath(s.Opfile, format.Ext)
	if err != nil {
		return nil, err
	}

	frames, err := caption(ctx, in, out, s, p)
	if err != nil {
		_ = os.Remove(out)
		return nil, err
	}
	ctxlog.FromContext(ctx).Debug("Captioned video.", "input", in, "output", out, "frames", frames)
	return &udo.Artifact{Path: out, Format: format.Ext}, nil
}

// input returns the path of the video to read, staging a blob message into
// the scratch root first.
func input(inv *udo.Invocation) (string, error) {
	if inv.Message.IsPath() {
		if !fsutil.FileExists(inv.Message.Path) {
			return "", udo.NewError(udo.KindInputNotFound, inv.Message.Path, "input does not exist")
		}
		return inv.Message.Path, nil
	}

	if !bytes.HasPrefix(inv.Message.Data, jpegSOI) {
		return "", udo.NewError(udo.KindUnsupportedFormat, "", "blob input must be a Motion-JPEG stream")
	}
	path, err := inv.Scratch.Allocate(stagedExt)
	if err != nil {
		return "", udo.WrapError(udo.KindOutputDirectoryMissing, inv.TmpDirPath, err)
	}
	if err := os.WriteFile(path, inv.Message.Data, 0o644); err != nil {
		return "", fmt.Errorf("stage blob input: %w", err)
	}
	return path, nil
}

func caption(ctx context.Context, in, out string, s *Settings, p *Params) (int, error) {
	logger := ctxlog.FromContext(ctx)

	r, err := media.OpenFrames(ctx, in)
	if err != nil {
		if errors.Is(err, media.ErrUnknownFormat) {
			return 0, udo.WrapError(udo.KindUnsupportedFormat, in, err)
		}
		return 0, udo.WrapError(udo.KindDecodeFailure, in, err)
	}
	defer r.Close()

	frame, err := r.Next()
	switch {
	case errors.Is(err, io.EOF):
		return 0, udo.NewError(udo.KindDecodeFailure, in, "input has no frames")
	case err != nil:
		return 0, udo.WrapError(udo.KindDecodeFailure, in, err)
	}

	w, err := media.CreateFrames(ctx, out, media.FrameOptions{Quality: s.Quality, FPS: s.FPS})
	if err != nil {
		if errors.Is(err, media.ErrUnknownFormat) {
			return 0, udo.WrapError(udo.KindUnsupportedFormat, out, err)
		}
		return 0, fmt.Errorf("create output: %w", err)
	}

	n := 0
	for {
		if err := ctx.Err(); err != nil {
			_ = w.Close()
			return n, err
		}
		dst := media.ToRGBA(frame)
		media.DrawText(dst, p.Text, p.X, p.Y, color.White)
		if err := w.WriteFrame(dst); err != nil {
			_ = w.Close()
			return n, fmt.Errorf("write frame %d: %w", n+1, err)
		}
		n++

		frame, err = r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, media.ErrCorruptFrame) {
			logger.Info("Frame failed to decode, ending stream early.", "frame", n+1, "error", err)
			break
		}
		if err != nil {
			_ = w.Close()
			return n, fmt.Errorf("read frame %d: %w", n+1, err)
		}
	}

	if err := w.Close(); err != nil {
		return n, fmt.Errorf("finalize output: %w", err)
	}
	return n, nil
}

// Register registers the entrypoint with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterEntrypoint(Entrypoint, &registry.Entrypoint{
		Module:      udo.ModuleFunc(Run),
		Modality:    udo.ModalityVideo,
		NewSettings: func() any { return new(Settings) },
		NewParams:   func() any { return new(Params) },
	})
}
