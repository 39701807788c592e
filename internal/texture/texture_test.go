package texture

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"golang.org/x/image/bmp"

	"github.com/Faultbox/u3dkit/pkg/u3d"
)

// tgaHeader returns an 18-byte header for a width x height true-color image.
func tgaHeader(imageType, bpp, descriptor uint8, width, height int) []byte {
	h := make([]byte, tgaHeaderSize)
	h[2] = imageType
	h[12], h[13] = byte(width), byte(width>>8)
	h[14], h[15] = byte(height), byte(height>>8)
	h[16] = bpp
	h[17] = descriptor
	return h
}

func TestDecodeTGA_Uncompressed(t *testing.T) {
	tests := []struct {
		name       string
		descriptor uint8
		wantTop    color.RGBA
	}{
		// first stored row is the bottom row
		{"bottom-up", 0x00, color.RGBA{R: 0, G: 0, B: 255, A: 255}},
		{"top-down", 0x20, color.RGBA{R: 255, G: 0, B: 0, A: 255}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tgaHeader(TGATypeUncompressed, 24, tt.descriptor, 1, 2)
			data = append(data,
				0, 0, 255, // red (BGR)
				255, 0, 0, // blue
			)
			img, err := DecodeTGA(data)
			if err != nil {
				t.Fatalf("DecodeTGA failed: %v", err)
			}
			if got := img.RGBAAt(0, 0); got != tt.wantTop {
				t.Errorf("top pixel = %v, want %v", got, tt.wantTop)
			}
		})
	}
}

func TestDecodeTGA_RLE(t *testing.T) {
	data := tgaHeader(TGATypeRLE, 32, 0x20, 4, 1)
	data = append(data,
		0x82, 10, 20, 30, 40, // run of 3
		0x00, 1, 2, 3, 4, // 1 raw pixel
	)
	img, err := DecodeTGA(data)
	if err != nil {
		t.Fatalf("DecodeTGA failed: %v", err)
	}

	run := color.RGBA{R: 30, G: 20, B: 10, A: 40}
	for x := 0; x < 3; x++ {
		if got := img.RGBAAt(x, 0); got != run {
			t.Errorf("pixel %d = %v, want %v", x, got, run)
		}
	}
	if got := img.RGBAAt(3, 0); got != (color.RGBA{R: 3, G: 2, B: 1, A: 4}) {
		t.Errorf("raw pixel = %v", got)
	}
}

func TestDecodeTGA_Errors(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{"short header", make([]byte, 10), ErrTruncatedTGA},
		{"truncated pixels", tgaHeader(TGATypeUncompressed, 24, 0, 2, 2), ErrTruncatedTGA},
		{"color mapped", func() []byte { h := tgaHeader(1, 8, 0, 1, 1); h[1] = 1; return h }(), ErrUnsupportedTGA},
		{"grayscale", tgaHeader(3, 8, 0, 1, 1), ErrUnsupportedTGA},
		{"16 bit", tgaHeader(TGATypeUncompressed, 16, 0, 1, 1), ErrUnsupportedTGA},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeTGA(tt.data); !errors.Is(err, tt.wantErr) {
				t.Errorf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestIsMagentaKey(t *testing.T) {
	tests := []struct {
		r, g, b uint8
		want    bool
	}{
		{255, 0, 255, true},
		{250, 10, 250, true},
		{249, 0, 255, false},
		{255, 11, 255, false},
		{0, 0, 0, false},
	}
	for _, tt := range tests {
		if got := IsMagentaKey(tt.r, tt.g, tt.b); got != tt.want {
			t.Errorf("IsMagentaKey(%d, %d, %d) = %v, want %v", tt.r, tt.g, tt.b, got, tt.want)
		}
	}
}

func TestImageToRGBA_MagentaKey(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	src.Set(0, 0, color.NRGBA{R: 255, G: 0, B: 255, A: 255})
	src.Set(1, 0, color.NRGBA{R: 10, G: 20, B: 30, A: 255})

	keyed := ImageToRGBA(src, true)
	if got := keyed.RGBAAt(0, 0); got != (color.RGBA{}) {
		t.Errorf("magenta pixel = %v, want transparent black", got)
	}
	if got := keyed.RGBAAt(1, 0); got != (color.RGBA{R: 10, G: 20, B: 30, A: 255}) {
		t.Errorf("other pixel = %v", got)
	}

	plain := ImageToRGBA(src, false)
	if got := plain.RGBAAt(0, 0); got.A != 255 {
		t.Errorf("unkeyed magenta alpha = %d, want 255", got.A)
	}
}

func testImage() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.SetRGBA(0, 0, color.RGBA{R: 255, B: 255, A: 255})
	img.SetRGBA(1, 0, color.RGBA{R: 200, A: 255})
	img.SetRGBA(0, 1, color.RGBA{G: 200, A: 255})
	img.SetRGBA(1, 1, color.RGBA{B: 200, A: 255})
	return img
}

func TestPrepare(t *testing.T) {
	var pngBuf, bmpBuf bytes.Buffer
	if err := png.Encode(&pngBuf, testImage()); err != nil {
		t.Fatal(err)
	}
	if err := bmp.Encode(&bmpBuf, testImage()); err != nil {
		t.Fatal(err)
	}
	tga := tgaHeader(TGATypeUncompressed, 24, 0x20, 1, 1)
	tga = append(tga, 255, 0, 255)

	tests := []struct {
		name        string
		file        string
		data        []byte
		passthrough bool
		keyedPixel  bool
	}{
		{"png passthrough", "a.png", pngBuf.Bytes(), true, false},
		{"bmp converted", "a.bmp", bmpBuf.Bytes(), false, true},
		{"tga converted", "a.TGA", tga, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, format, err := Prepare(tt.file, tt.data)
			if err != nil {
				t.Fatalf("Prepare failed: %v", err)
			}
			if format != u3d.ImageFormatPNG {
				t.Errorf("format = %s, want PNG", format)
			}
			if tt.passthrough && !bytes.Equal(out, tt.data) {
				t.Error("PNG data was re-encoded")
			}
			img, err := png.Decode(bytes.NewReader(out))
			if err != nil {
				t.Fatalf("output is not PNG: %v", err)
			}
			if tt.keyedPixel {
				if _, _, _, a := img.At(0, 0).RGBA(); a != 0 {
					t.Errorf("magenta pixel alpha = %d, want 0", a)
				}
			}
		})
	}
}

func TestPrepare_Unsupported(t *testing.T) {
	_, _, err := Prepare("a.gif", []byte("GIF89a\x01\x00\x01\x00"))
	if !errors.Is(err, ErrUnsupportedImage) {
		t.Errorf("got %v, want ErrUnsupportedImage", err)
	}

	_, _, err = Prepare("broken.tga", []byte{1, 2, 3})
	if !errors.Is(err, ErrTruncatedTGA) {
		t.Errorf("got %v, want ErrTruncatedTGA", err)
	}
}
