package media

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"

	"github.com/vk/udo/internal/udo"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp" // registers the WebP decoder
)

// DefaultJPEGQuality is used when an operation does not set one.
const DefaultJPEGQuality = 95

// DecodeImage decodes any registered image format from r and returns the
// image with the format name reported by the decoder.
func DecodeImage(r io.Reader) (image.Image, string, error) {
	img, name, err := image.Decode(r)
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	return img, name, nil
}

// DecodeImageFile opens and decodes the image at path.
func DecodeImageFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := DecodeImage(f)
	return img, err
}

// SniffImage reports the extension matching the encoded image in data, using
// only its header.
func SniffImage(data []byte) (string, error) {
	_, name, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnknownFormat, err)
	}
	return name, nil
}

// EncodeImage writes img to w in the format named by ext. Quality only
// applies to JPEG; values outside 1..100 fall back to DefaultJPEGQuality.
func EncodeImage(w io.Writer, img image.Image, ext string, quality int) error {
	f, err := LookupFormat(ext)
	if err != nil {
		return err
	}
	if !f.CanEncode || f.Modality != udo.ModalityImage {
		return fmt.Errorf("%w: cannot encode images as %q", ErrUnknownFormat, f.Ext)
	}
	switch f.Ext {
	case "jpg", "jpeg":
		if quality < 1 || quality > 100 {
			quality = DefaultJPEGQuality
		}
		return jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
	case "png":
		return png.Encode(w, img)
	case "gif":
		return gif.Encode(w, img, nil)
	case "bmp":
		return bmp.Encode(w, img)
	case "tif", "tiff":
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	}
	return fmt.Errorf("%w: no encoder for %q", ErrUnknownFormat, f.Ext)
}

// EncodeImageFile writes img to path, creating or truncating it. The parent
// directory must already exist.
func EncodeImageFile(path string, img image.Image, ext string, quality int) (err error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return EncodeImage(f, img, ext, quality)
}
