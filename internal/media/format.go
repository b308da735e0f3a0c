// Package media holds the codecs operations use to read and write image and
// video artifacts.
//
// Images go through the standard decoders plus golang.org/x/image for BMP,
// TIFF and WebP. Video is handled as a stream of frames: Motion-JPEG files are
// read and written natively, container formats such as MP4 are piped through
// an ffmpeg process as Motion-JPEG.
package media

import (
	"errors"
	"fmt"
	"sort"

	"github.com/vk/udo/internal/fsutil"
	"github.com/vk/udo/internal/udo"
)

// ErrUnknownFormat is returned for extensions outside the format table.
var ErrUnknownFormat = errors.New("unknown media format")

// Format describes one file extension the runtime understands.
type Format struct {
	Ext      string
	Modality udo.Modality
	// CanEncode is false for formats that can only be read.
	CanEncode bool
	// Native is false for video formats that need the ffmpeg binary.
	Native bool
}

var formats = map[string]Format{
	"jpg":   {Ext: "jpg", Modality: udo.ModalityImage, CanEncode: true, Native: true},
	"jpeg":  {Ext: "jpeg", Modality: udo.ModalityImage, CanEncode: true, Native: true},
	"png":   {Ext: "png", Modality: udo.ModalityImage, CanEncode: true, Native: true},
	"gif":   {Ext: "gif", Modality: udo.ModalityImage, CanEncode: true, Native: true},
	"bmp":   {Ext: "bmp", Modality: udo.ModalityImage, CanEncode: true, Native: true},
	"tif":   {Ext: "tif", Modality: udo.ModalityImage, CanEncode: true, Native: true},
	"tiff":  {Ext: "tiff", Modality: udo.ModalityImage, CanEncode: true, Native: true},
	"webp":  {Ext: "webp", Modality: udo.ModalityImage, CanEncode: false, Native: true},
	"mjpeg": {Ext: "mjpeg", Modality: udo.ModalityVideo, CanEncode: true, Native: true},
	"mjpg":  {Ext: "mjpg", Modality: udo.ModalityVideo, CanEncode: true, Native: true},
	"mp4":   {Ext: "mp4", Modality: udo.ModalityVideo, CanEncode: true},
	"avi":   {Ext: "avi", Modality: udo.ModalityVideo, CanEncode: true},
	"mov":   {Ext: "mov", Modality: udo.ModalityVideo, CanEncode: true},
	"mkv":   {Ext: "mkv", Modality: udo.ModalityVideo, CanEncode: true},
	"webm":  {Ext: "webm", Modality: udo.ModalityVideo, CanEncode: true},
}

// LookupFormat returns the format registered for an extension, with or
// without the leading dot, in any case.
func LookupFormat(ext string) (Format, error) {
	f, ok := formats[fsutil.Ext("x."+trimDot(ext))]
	if !ok {
		return Format{}, fmt.Errorf("%w: %q", ErrUnknownFormat, ext)
	}
	return f, nil
}

// FormatFromPath infers the format from the trailing extension of path.
func FormatFromPath(path string) (Format, error) {
	ext := fsutil.Ext(path)
	if ext == "" {
		return Format{}, fmt.Errorf("%w: %s has no extension", ErrUnknownFormat, path)
	}
	return LookupFormat(ext)
}

// Extensions lists the known extensions of one modality, sorted.
func Extensions(m udo.Modality) []string {
	var out []string
	for ext, f := range formats {
		if f.Modality == m {
			out = append(out, ext)
		}
	}
	sort.Strings(out)
	return out
}

func trimDot(ext string) string {
	if len(ext) > 0 && ext[0] == '.' {
		return ext[1:]
	}
	return ext
}
