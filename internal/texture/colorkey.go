package texture

import (
	"image"
	"image/color"
)

// IsMagentaKey checks if an RGB color matches the magenta transparency key.
// Uses tolerance (R >= 250, G <= 10, B >= 250) to handle BMP decoding variations.
func IsMagentaKey(r, g, b uint8) bool {
	return r >= 250 && g <= 10 && b >= 250
}

// ApplyMagentaKey makes magenta pixels transparent black, in place.
func ApplyMagentaKey(img *image.RGBA) {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			i := img.PixOffset(x, y)
			if IsMagentaKey(img.Pix[i], img.Pix[i+1], img.Pix[i+2]) {
				copy(img.Pix[i:i+4], []byte{0, 0, 0, 0})
			}
		}
	}
}

// ImageToRGBA converts any image.Image to *image.RGBA.
// If applyMagentaKey is true, magenta pixels are made transparent.
func ImageToRGBA(img image.Image, applyMagentaKey bool) *image.RGBA {
	b := img.Bounds()
	rgba := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			rgba.Set(x, y, color.RGBAModel.Convert(img.At(x, y)))
		}
	}
	if applyMagentaKey {
		ApplyMagentaKey(rgba)
	}
	return rgba
}
