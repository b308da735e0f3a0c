package media

import (
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// FlipVertical returns a copy of img with its rows in reverse order. Pixel
// storage of the common standard types is preserved exactly, so flipping
// twice reproduces the input; other types are converted to RGBA64.
func FlipVertical(img image.Image) image.Image {
	b := img.Bounds()
	switch src := img.(type) {
	case *image.RGBA:
		return &image.RGBA{Pix: flipRows(src.Pix, src.Stride, b.Dy()), Stride: src.Stride, Rect: b}
	case *image.NRGBA:
		return &image.NRGBA{Pix: flipRows(src.Pix, src.Stride, b.Dy()), Stride: src.Stride, Rect: b}
	case *image.RGBA64:
		return &image.RGBA64{Pix: flipRows(src.Pix, src.Stride, b.Dy()), Stride: src.Stride, Rect: b}
	case *image.NRGBA64:
		return &image.NRGBA64{Pix: flipRows(src.Pix, src.Stride, b.Dy()), Stride: src.Stride, Rect: b}
	case *image.Gray:
		return &image.Gray{Pix: flipRows(src.Pix, src.Stride, b.Dy()), Stride: src.Stride, Rect: b}
	case *image.Gray16:
		return &image.Gray16{Pix: flipRows(src.Pix, src.Stride, b.Dy()), Stride: src.Stride, Rect: b}
	case *image.CMYK:
		return &image.CMYK{Pix: flipRows(src.Pix, src.Stride, b.Dy()), Stride: src.Stride, Rect: b}
	case *image.Paletted:
		palette := make(color.Palette, len(src.Palette))
		copy(palette, src.Palette)
		return &image.Paletted{Pix: flipRows(src.Pix, src.Stride, b.Dy()), Stride: src.Stride, Rect: b, Palette: palette}
	}

	dst := image.NewRGBA64(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		mirror := b.Max.Y - 1 - (y - b.Min.Y)
		for x := b.Min.X; x < b.Max.X; x++ {
			dst.Set(x, mirror, img.At(x, y))
		}
	}
	return dst
}

// flipRows copies pix with row order reversed. The last row of a sub-image
// may be shorter than stride.
func flipRows(pix []uint8, stride, rows int) []uint8 {
	out := make([]uint8, len(pix))
	for r := 0; r < rows; r++ {
		end := min((r+1)*stride, len(pix))
		copy(out[(rows-1-r)*stride:], pix[r*stride:end])
	}
	return out
}

// ToRGBA returns img as a mutable *image.RGBA, copying unless it already is
// one whose bounds start at the origin.
func ToRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// DrawText writes text onto dst with its baseline starting at (x, y), using
// the fixed 7x13 bitmap face.
func DrawText(dst draw.Image, text string, x, y int, c color.Color) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

// TextBounds returns the rectangle DrawText would touch for the same
// arguments.
func TextBounds(text string, x, y int) image.Rectangle {
	face := basicfont.Face7x13
	width := font.MeasureString(face, text).Ceil()
	m := face.Metrics()
	return image.Rect(x, y-m.Ascent.Ceil(), x+width, y+m.Descent.Ceil())
}
