package u3d

import (
	"slices"

	"github.com/h2non/filetype"

	"github.com/Faultbox/u3dkit/pkg/math"
)

// NoIndex marks an absent normal or texture coordinate index on a Corner.
const NoIndex = -1

// Node is a placement in the scene hierarchy. An empty Parent makes the
// node a root; an empty Mesh makes it a pure group node.
type Node struct {
	Name           string
	Parent         string
	Mesh           string
	Transformation math.Mat4
}

// Corner is one vertex of a Triangle. Normal and TextureCoordinate are
// either in-range indices or NoIndex.
type Corner struct {
	Position          int
	Normal            int
	TextureCoordinate int
}

// PositionCorner returns a corner carrying only a position index.
func PositionCorner(position int) Corner {
	return Corner{Position: position, Normal: NoIndex, TextureCoordinate: NoIndex}
}

// HasNormal reports whether the corner carries a normal index.
func (c Corner) HasNormal() bool {
	return c.Normal >= 0
}

// HasTextureCoordinate reports whether the corner carries a texture coordinate index.
func (c Corner) HasTextureCoordinate() bool {
	return c.TextureCoordinate >= 0
}

// Triangle is a face of three corners.
type Triangle [3]Corner

// Mesh is a triangle mesh resource shaded by a single Shader.
type Mesh struct {
	Name               string
	Positions          []math.Vec3
	Normals            []math.Vec3
	TextureCoordinates []math.Vec2
	Triangles          []Triangle
	Shader             string
}

// TrianglesValid reports whether every corner index is in range for the
// mesh's own attribute arrays, and whether each corner carries a normal
// (texture coordinate) index exactly when the mesh has normals (texture
// coordinates). The declaration block promises readers that layout.
func (m *Mesh) TrianglesValid() bool {
	hasNormals := len(m.Normals) > 0
	hasTexCoords := len(m.TextureCoordinates) > 0
	for _, tri := range m.Triangles {
		for _, c := range tri {
			if c.Position < 0 || c.Position >= len(m.Positions) {
				return false
			}
			if !validOptionalIndex(c.Normal, len(m.Normals)) || c.HasNormal() != hasNormals {
				return false
			}
			if !validOptionalIndex(c.TextureCoordinate, len(m.TextureCoordinates)) || c.HasTextureCoordinate() != hasTexCoords {
				return false
			}
		}
	}
	return true
}

func validOptionalIndex(idx, n int) bool {
	return idx == NoIndex || (idx >= 0 && idx < n)
}

func (m Mesh) clone() Mesh {
	m.Positions = slices.Clone(m.Positions)
	m.Normals = slices.Clone(m.Normals)
	m.TextureCoordinates = slices.Clone(m.TextureCoordinates)
	m.Triangles = slices.Clone(m.Triangles)
	return m
}

// Shader binds a Material and, optionally, a Texture.
type Shader struct {
	Name     string
	Material string
	Texture  string
}

// Color is a linear RGB color.
type Color struct {
	R, G, B float32
}

// Material carries lighting colors for a Shader.
type Material struct {
	Name         string
	Ambient      Color
	Diffuse      Color
	Specular     Color
	Emissive     Color
	Reflectivity float32
	Opacity      float32
}

// DefaultMaterial returns an opaque light grey material.
func DefaultMaterial(name string) Material {
	return Material{
		Name:         name,
		Ambient:      Color{0.15, 0.15, 0.15},
		Diffuse:      Color{0.75, 0.75, 0.75},
		Specular:     Color{0.2, 0.2, 0.2},
		Reflectivity: 0.1,
		Opacity:      1,
	}
}

// ImageFormat identifies how a Texture's image bytes are compressed.
type ImageFormat uint8

// Image formats a U3D texture continuation can carry.
const (
	ImageFormatInvalid ImageFormat = iota
	ImageFormatJPEG
	ImageFormatPNG
	ImageFormatTIFF
)

// String returns the format name.
func (f ImageFormat) String() string {
	switch f {
	case ImageFormatJPEG:
		return "JPEG"
	case ImageFormatPNG:
		return "PNG"
	case ImageFormatTIFF:
		return "TIFF"
	default:
		return "Invalid"
	}
}

// DetectImageFormat sniffs the image format from its leading bytes.
func DetectImageFormat(data []byte) ImageFormat {
	kind, err := filetype.Match(data)
	if err != nil {
		return ImageFormatInvalid
	}
	switch kind.Extension {
	case "jpg":
		return ImageFormatJPEG
	case "png":
		return ImageFormatPNG
	case "tif":
		return ImageFormatTIFF
	default:
		return ImageFormatInvalid
	}
}

// Texture is an image resource referenced by Shaders.
type Texture struct {
	Name   string
	Image  []byte
	Format ImageFormat
}
