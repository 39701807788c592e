// Package texture converts model texture files into images a U3D texture
// continuation can carry.
package texture

import (
	"errors"
	"fmt"
	"image"
	"image/color"
)

// TGA decoding errors.
var (
	ErrTruncatedTGA   = errors.New("TGA data truncated")
	ErrUnsupportedTGA = errors.New("unsupported TGA")
)

// TGA image type constants.
const (
	TGATypeUncompressed = 2  // Uncompressed true-color
	TGATypeRLE          = 10 // RLE compressed true-color
)

const tgaHeaderSize = 18

// DecodeTGA decodes a TGA image file.
// Supports uncompressed true-color (type 2) and RLE compressed (type 10)
// files with 24 or 32 bits per pixel.
func DecodeTGA(data []byte) (*image.RGBA, error) {
	if len(data) < tgaHeaderSize {
		return nil, ErrTruncatedTGA
	}

	idLength := int(data[0])
	colorMapType := data[1]
	imageType := data[2]
	width := int(data[12]) | int(data[13])<<8
	height := int(data[14]) | int(data[15])<<8
	bpp := int(data[16])
	descriptor := data[17]

	if colorMapType != 0 {
		return nil, fmt.Errorf("%w: color-mapped", ErrUnsupportedTGA)
	}
	if imageType != TGATypeUncompressed && imageType != TGATypeRLE {
		return nil, fmt.Errorf("%w: type %d", ErrUnsupportedTGA, imageType)
	}
	if bpp != 24 && bpp != 32 {
		return nil, fmt.Errorf("%w: bit depth %d", ErrUnsupportedTGA, bpp)
	}

	offset := tgaHeaderSize + idLength
	if offset > len(data) {
		return nil, ErrTruncatedTGA
	}

	d := tgaDecoder{
		img:         image.NewRGBA(image.Rect(0, 0, width, height)),
		pix:         data[offset:],
		bpp:         bpp / 8,
		topToBottom: descriptor&0x20 != 0,
	}
	if imageType == TGATypeUncompressed {
		if len(d.pix) < width*height*d.bpp {
			return nil, ErrTruncatedTGA
		}
		for i := 0; i < width*height; i++ {
			d.set(i, d.pixel())
		}
	} else {
		d.decodeRLE()
	}
	return d.img, nil
}

type tgaDecoder struct {
	img         *image.RGBA
	pix         []byte
	pos         int
	bpp         int
	topToBottom bool
}

// pixel reads one BGR(A) pixel and advances.
func (d *tgaDecoder) pixel() color.RGBA {
	p := d.pix[d.pos:]
	c := color.RGBA{R: p[2], G: p[1], B: p[0], A: 255}
	if d.bpp == 4 {
		c.A = p[3]
	}
	d.pos += d.bpp
	return c
}

// set stores c at pixel index i, honoring the origin flag.
func (d *tgaDecoder) set(i int, c color.RGBA) {
	w, h := d.img.Rect.Dx(), d.img.Rect.Dy()
	x, y := i%w, i/w
	if !d.topToBottom {
		y = h - 1 - y
	}
	d.img.SetRGBA(x, y, c)
}

// decodeRLE decodes as many packets as the data holds. Missing pixels
// stay transparent.
func (d *tgaDecoder) decodeRLE() {
	total := d.img.Rect.Dx() * d.img.Rect.Dy()
	for i := 0; i < total && d.pos < len(d.pix); {
		packet := d.pix[d.pos]
		d.pos++
		count := int(packet&0x7F) + 1

		if packet&0x80 != 0 {
			if d.pos+d.bpp > len(d.pix) {
				return
			}
			c := d.pixel()
			for ; count > 0 && i < total; count-- {
				d.set(i, c)
				i++
			}
			continue
		}
		for ; count > 0 && i < total; count-- {
			if d.pos+d.bpp > len(d.pix) {
				return
			}
			d.set(i, d.pixel())
			i++
		}
	}
}
