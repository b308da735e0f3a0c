package testutil

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// CorruptFrame is a frame with valid start/end markers and garbage between
// them, so it can be delimited but not decoded.
var CorruptFrame = []byte{0xFF, 0xD8, 'n', 'o', 't', ' ', 'a', ' ', 'j', 'p', 'e', 'g', 0xFF, 0xD9}

// PatternImage returns an opaque image whose every row is distinct, so a
// vertical flip is always observable.
func PatternImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(y * 7), G: uint8(x * 13), B: uint8(x ^ y), A: 255})
		}
	}
	return img
}

// GrayFrame returns a uniform gray frame.
func GrayFrame(w, h int, level uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = level
	}
	return img
}

// FrameLevel is the gray level GrayFrames uses for frame i. Levels are six
// apart so frame order survives lossy re-encoding.
func FrameLevel(i int) uint8 { return uint8(10 + (i*6)%180) }

// GrayFrames returns n frames with distinct gray levels in order.
func GrayFrames(n, w, h int) []image.Image {
	frames := make([]image.Image, n)
	for i := range frames {
		frames[i] = GrayFrame(w, h, FrameLevel(i))
	}
	return frames
}

// WritePNG encodes img as PNG at path.
func WritePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	writeFile(t, path, buf.Bytes())
}

// EncodeJPEG returns img encoded as a JPEG at quality 95.
func EncodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}))
	return buf.Bytes()
}

// WriteMJPEG writes frames as a Motion-JPEG stream. A nil frame is written as
// CorruptFrame.
func WriteMJPEG(t *testing.T, path string, frames []image.Image) {
	t.Helper()
	var buf bytes.Buffer
	for _, f := range frames {
		if f == nil {
			buf.Write(CorruptFrame)
			continue
		}
		buf.Write(EncodeJPEG(t, f))
	}
	writeFile(t, path, buf.Bytes())
}

// ReadMJPEGFrames decodes every frame of a Motion-JPEG file by splitting on
// end-of-image markers. Frames written by the standard encoder contain no
// other 0xFFD9 sequence.
func ReadMJPEGFrames(t *testing.T, path string) []image.Image {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var frames []image.Image
	for len(data) > 0 {
		end := bytes.Index(data, []byte{0xFF, 0xD9})
		require.GreaterOrEqual(t, end, 0, "unterminated frame %d", len(frames)+1)
		img, err := jpeg.Decode(bytes.NewReader(data[:end+2]))
		require.NoError(t, err, "frame %d", len(frames)+1)
		frames = append(frames, img)
		data = data[end+2:]
	}
	return frames
}

// Luma returns the 8-bit luminance of img at (x, y).
func Luma(img image.Image, x, y int) uint8 {
	return color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y
}

// HasBrightPixel reports whether any pixel inside r has luminance above
// threshold.
func HasBrightPixel(img image.Image, r image.Rectangle, threshold uint8) bool {
	r = r.Intersect(img.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			if Luma(img, x, y) > threshold {
				return true
			}
		}
	}
	return false
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}
