package media

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/vk/udo/internal/udo"
)

// ErrCorruptFrame marks a frame that could not be framed or decoded. Readers
// stop at the first one; every later call to Next returns the same error.
var ErrCorruptFrame = errors.New("corrupt frame")

// FrameReader yields decoded frames in stream order. Next returns io.EOF
// after the last frame.
type FrameReader interface {
	Next() (image.Image, error)
	Close() error
}

// FrameWriter encodes frames in the order they are written. Close finalizes
// the output and must be called for the artifact to be complete.
type FrameWriter interface {
	WriteFrame(img image.Image) error
	Close() error
}

// FrameOptions tunes frame encoding.
type FrameOptions struct {
	// Quality is the JPEG quality of each encoded frame, 1..100.
	Quality int
	// FPS is the frame rate written into container formats.
	FPS int
}

func (o FrameOptions) withDefaults() FrameOptions {
	if o.Quality < 1 || o.Quality > 100 {
		o.Quality = DefaultJPEGQuality
	}
	if o.FPS <= 0 {
		o.FPS = 25
	}
	return o
}

// OpenFrames opens the video at path for frame-by-frame reading. The format
// is taken from the extension.
func OpenFrames(ctx context.Context, path string) (FrameReader, error) {
	f, err := videoFormat(path)
	if err != nil {
		return nil, err
	}
	if f.Native {
		return OpenMJPEG(path)
	}
	return openFFmpegReader(ctx, path)
}

// CreateFrames creates the video at path for frame-by-frame writing. The
// format is taken from the extension.
func CreateFrames(ctx context.Context, path string, opts FrameOptions) (FrameWriter, error) {
	f, err := videoFormat(path)
	if err != nil {
		return nil, err
	}
	opts = opts.withDefaults()
	if f.Native {
		return CreateMJPEG(path, opts)
	}
	return openFFmpegWriter(ctx, path, opts)
}

func videoFormat(path string) (Format, error) {
	f, err := FormatFromPath(path)
	if err != nil {
		return Format{}, err
	}
	if f.Modality != udo.ModalityVideo {
		return Format{}, fmt.Errorf("%w: %s is not a video format", ErrUnknownFormat, f.Ext)
	}
	if !f.Native && !FFmpegAvailable() {
		return Format{}, fmt.Errorf("%w: %s requires ffmpeg, which was not found in PATH", ErrUnknownFormat, f.Ext)
	}
	return f, nil
}
