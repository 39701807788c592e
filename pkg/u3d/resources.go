package u3d

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/tiff"

	"github.com/Faultbox/u3dkit/pkg/encoding"
)

// materialAllAttributes marks ambient, diffuse, specular, emissive,
// reflectivity and opacity as present.
const materialAllAttributes = 0x0000003F

func materialBlocks(cs encoding.Charset, doc *Document) []Block {
	blocks := make([]Block, 0, len(doc.materials.Values))
	for _, m := range doc.materials.Values {
		blocks = append(blocks, materialBlock(cs, m))
	}
	return blocks
}

func materialBlock(cs encoding.Charset, m Material) Block {
	w := NewBlockWriter(cs)
	w.WriteString(m.Name)
	w.WriteU32(materialAllAttributes)
	writeColor(w, m.Ambient)
	writeColor(w, m.Diffuse)
	writeColor(w, m.Specular)
	writeColor(w, m.Emissive)
	w.WriteF32(m.Reflectivity)
	w.WriteF32(m.Opacity)
	return w.GetBlock(BlockMaterialResource)
}

func writeColor(w *BlockWriter, c Color) {
	w.WriteF32(c.R)
	w.WriteF32(c.G)
	w.WriteF32(c.B)
}

// Texture image channel bits.
const (
	channelAlpha     = 0x01
	channelRed       = 0x02
	channelGreen     = 0x04
	channelBlue      = 0x08
	channelLuminance = 0x10

	channelsRGB  = channelRed | channelGreen | channelBlue
	channelsRGBA = channelsRGB | channelAlpha
)

// Continuation image compression types.
const (
	compressionJPEG24 = 0x01
	compressionPNG    = 0x02
	compressionJPEG8  = 0x03
	compressionTIFF   = 0x04
)

func textureBlocks(cs encoding.Charset, doc *Document) (decl, cont []Block, err error) {
	decl = make([]Block, 0, len(doc.textures.Values))
	cont = make([]Block, 0, len(doc.textures.Values))
	for _, t := range doc.textures.Values {
		b, err := textureDeclarationBlock(cs, t)
		if err != nil {
			return nil, nil, err
		}
		decl = append(decl, b)
		cont = append(cont, textureContinuationBlock(cs, t))
	}
	return decl, cont, nil
}

func textureDeclarationBlock(cs encoding.Charset, t Texture) (Block, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(t.Image))
	if err != nil {
		return Block{}, fmt.Errorf("%w: texture %q: %v", ErrInvalidImage, t.Name, err)
	}
	channels := imageChannels(cfg.ColorModel)

	w := NewBlockWriter(cs)
	w.WriteString(t.Name)
	w.WriteU32(uint32(cfg.Height))
	w.WriteU32(uint32(cfg.Width))
	w.WriteU8(channels) // texture image type
	w.WriteU32(1)       // continuation image count
	w.WriteU8(compressionType(t.Format, channels))
	w.WriteU8(channels)
	w.WriteU16(0) // image attributes: data follows in this file
	w.WriteU32(uint32(len(t.Image)))
	return w.GetBlock(BlockTextureDeclaration), nil
}

func textureContinuationBlock(cs encoding.Charset, t Texture) Block {
	w := NewBlockWriter(cs)
	w.WriteString(t.Name)
	w.WriteU32(0) // continuation image index
	w.WriteBytes(t.Image)
	return w.GetBlock(BlockTextureContinuation)
}

func imageChannels(m color.Model) uint8 {
	switch m {
	case color.GrayModel, color.Gray16Model:
		return channelLuminance
	case color.AlphaModel, color.Alpha16Model:
		return channelAlpha
	case color.RGBAModel, color.RGBA64Model, color.NRGBAModel, color.NRGBA64Model:
		return channelsRGBA
	}
	if _, ok := m.(color.Palette); ok {
		return channelsRGBA
	}
	return channelsRGB
}

func compressionType(f ImageFormat, channels uint8) uint8 {
	switch f {
	case ImageFormatJPEG:
		if channels == channelLuminance {
			return compressionJPEG8
		}
		return compressionJPEG24
	case ImageFormatTIFF:
		return compressionTIFF
	default:
		return compressionPNG
	}
}
