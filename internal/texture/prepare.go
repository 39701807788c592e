package texture

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"
	"golang.org/x/image/bmp"

	"github.com/Faultbox/u3dkit/pkg/u3d"
)

// ErrUnsupportedImage is returned for image data Prepare cannot convert.
var ErrUnsupportedImage = errors.New("unsupported texture image")

// Prepare returns image bytes and their format for use as a u3d.Texture.
// PNG, JPEG and TIFF pass through unchanged. BMP and TGA (recognised by
// the .tga extension of name) are decoded, magenta-keyed and re-encoded
// as PNG.
func Prepare(name string, data []byte) ([]byte, u3d.ImageFormat, error) {
	if f := u3d.DetectImageFormat(data); f != u3d.ImageFormatInvalid {
		return data, f, nil
	}

	var (
		img *image.RGBA
		err error
	)
	switch {
	case filetype.Is(data, "bmp"):
		var src image.Image
		if src, err = bmp.Decode(bytes.NewReader(data)); err == nil {
			img = ImageToRGBA(src, true)
		}
	case strings.EqualFold(filepath.Ext(name), ".tga"):
		if img, err = DecodeTGA(data); err == nil {
			ApplyMagentaKey(img)
		}
	default:
		return nil, u3d.ImageFormatInvalid, fmt.Errorf("%w: %s", ErrUnsupportedImage, name)
	}
	if err != nil {
		return nil, u3d.ImageFormatInvalid, fmt.Errorf("decoding %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, u3d.ImageFormatInvalid, fmt.Errorf("encoding %s as PNG: %w", name, err)
	}
	return buf.Bytes(), u3d.ImageFormatPNG, nil
}
