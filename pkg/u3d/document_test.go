package u3d

import (
	"bytes"
	"image"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/tiff"

	"github.com/Faultbox/u3dkit/pkg/encoding"
	"github.com/Faultbox/u3dkit/pkg/math"
)

func triangleMesh(name, shader string) Mesh {
	return Mesh{
		Name:      name,
		Positions: []math.Vec3{{X: 0, Y: 0, Z: 0}, {X: 1, Y: 0, Z: 0}, {X: 0, Y: 1, Z: 0}},
		Triangles: []Triangle{{PositionCorner(0), PositionCorner(1), PositionCorner(2)}},
		Shader:    shader,
	}
}

// sceneDocument returns a document with material M1, shader S1, mesh Mesh1
// and node N1.
func sceneDocument(t *testing.T) *Document {
	t.Helper()
	doc := NewDocument()
	require.True(t, doc.TryAddMaterial(DefaultMaterial("M1")))
	require.True(t, doc.TryAddShader(Shader{Name: "S1", Material: "M1"}))
	require.True(t, doc.TryAddMesh(triangleMesh("Mesh1", "S1")))
	require.True(t, doc.TryAddNode(Node{Name: "N1", Mesh: "Mesh1", Transformation: math.Identity()}))
	return doc
}

func TestNewDocument_DefaultEncoding(t *testing.T) {
	assert.Equal(t, encoding.UTF8, NewDocument().TextEncoding())
	assert.Equal(t, encoding.ShiftJIS, NewDocument(WithTextEncoding(encoding.ShiftJIS)).TextEncoding())
	assert.Equal(t, encoding.UTF8, (&Document{}).TextEncoding())
}

func TestDocument_TryAddMaterial(t *testing.T) {
	doc := NewDocument()
	assert.True(t, doc.TryAddMaterial(DefaultMaterial("M1")))
	assert.False(t, doc.TryAddMaterial(DefaultMaterial("M1")), "duplicate")
	assert.False(t, doc.TryAddMaterial(DefaultMaterial("")), "empty name")
	assert.False(t, doc.TryAddMaterial(DefaultMaterial(strings.Repeat("x", maxStringBytes+1))), "too long")
	assert.Len(t, doc.Materials(), 1)
}

func TestDocument_TryAddTexture(t *testing.T) {
	png := encodePNG(t, 1, 1)
	tests := []struct {
		name string
		tex  Texture
		want bool
	}{
		{"valid", Texture{Name: "T1", Image: png, Format: ImageFormatPNG}, true},
		{"empty image", Texture{Name: "T2", Format: ImageFormatPNG}, false},
		{"invalid format", Texture{Name: "T3", Image: png}, false},
		{"undefined format", Texture{Name: "T5", Image: png, Format: ImageFormatTIFF + 1}, false},
		{"empty name", Texture{Image: png, Format: ImageFormatPNG}, false},
	}

	doc := NewDocument()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, doc.TryAddTexture(tt.tex))
		})
	}
	assert.False(t, doc.TryAddTexture(tests[0].tex), "duplicate")
}

func TestDocument_TryAddTextureCopiesImage(t *testing.T) {
	img := encodePNG(t, 1, 1)
	doc := NewDocument()
	require.True(t, doc.TryAddTexture(Texture{Name: "T1", Image: img, Format: ImageFormatPNG}))
	img[0] = 0

	got, ok := doc.Texture("T1")
	require.True(t, ok)
	assert.Equal(t, byte(0x89), got.Image[0])
}

func TestDocument_TryAddShader(t *testing.T) {
	doc := NewDocument()
	require.True(t, doc.TryAddMaterial(DefaultMaterial("M1")))
	require.True(t, doc.TryAddTexture(Texture{Name: "T1", Image: encodePNG(t, 1, 1), Format: ImageFormatPNG}))

	tests := []struct {
		name   string
		shader Shader
		want   bool
	}{
		{"missing material", Shader{Name: "S0", Material: "nope"}, false},
		{"no material", Shader{Name: "S0"}, false},
		{"missing texture", Shader{Name: "S0", Material: "M1", Texture: "nope"}, false},
		{"material only", Shader{Name: "S1", Material: "M1"}, true},
		{"with texture", Shader{Name: "S2", Material: "M1", Texture: "T1"}, true},
		{"duplicate", Shader{Name: "S1", Material: "M1"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, doc.TryAddShader(tt.shader))
		})
	}
	assert.Len(t, doc.Shaders(), 2)
}

func TestDocument_TryAddMesh(t *testing.T) {
	doc := NewDocument()
	require.True(t, doc.TryAddMaterial(DefaultMaterial("M1")))
	require.True(t, doc.TryAddShader(Shader{Name: "S1", Material: "M1"}))

	withNormals := triangleMesh("normals", "S1")
	withNormals.Normals = []math.Vec3{{X: 0, Y: 0, Z: 1}}
	for i := range withNormals.Triangles[0] {
		withNormals.Triangles[0][i].Normal = 0
	}

	missingNormal := withNormals
	missingNormal.Name = "missing-normal"
	missingNormal.Triangles = []Triangle{{withNormals.Triangles[0][0], withNormals.Triangles[0][1], PositionCorner(2)}}

	outOfRange := triangleMesh("out-of-range", "S1")
	outOfRange.Triangles = []Triangle{{PositionCorner(0), PositionCorner(1), PositionCorner(3)}}

	strayTexCoord := triangleMesh("stray-texcoord", "S1")
	strayTexCoord.Triangles[0][0].TextureCoordinate = 0

	tests := []struct {
		name string
		mesh Mesh
		want bool
	}{
		{"valid", triangleMesh("Mesh1", "S1"), true},
		{"with normals", withNormals, true},
		{"missing shader", triangleMesh("m", "S9"), false},
		{"no shader", triangleMesh("m", ""), false},
		{"position out of range", outOfRange, false},
		{"corner missing normal", missingNormal, false},
		{"texcoord without array", strayTexCoord, false},
		{"empty name", triangleMesh("", "S1"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, doc.TryAddMesh(tt.mesh))
		})
	}
	assert.Len(t, doc.Meshes(), 2)
}

func TestDocument_TryAddMeshDuplicateKeepsOriginal(t *testing.T) {
	doc := sceneDocument(t)

	other := triangleMesh("Mesh1", "S1")
	other.Positions = append(other.Positions, math.Vec3{X: 5})
	assert.False(t, doc.TryAddMesh(other))

	got, ok := doc.Mesh("Mesh1")
	require.True(t, ok)
	assert.Len(t, got.Positions, 3)
}

func TestDocument_TryAddMeshCopiesSlices(t *testing.T) {
	doc := NewDocument()
	require.True(t, doc.TryAddMaterial(DefaultMaterial("M1")))
	require.True(t, doc.TryAddShader(Shader{Name: "S1", Material: "M1"}))

	m := triangleMesh("Mesh1", "S1")
	require.True(t, doc.TryAddMesh(m))
	m.Positions[0] = math.Vec3{X: 9, Y: 9, Z: 9}

	got, _ := doc.Mesh("Mesh1")
	assert.Equal(t, math.Vec3{}, got.Positions[0])
}

func TestDocument_TryAddNode(t *testing.T) {
	doc := sceneDocument(t)

	tests := []struct {
		name string
		node Node
		want bool
	}{
		{"duplicate", Node{Name: "N1"}, false},
		{"missing mesh", Node{Name: "N2", Mesh: "nope"}, false},
		{"missing parent", Node{Name: "N2", Parent: "nope"}, false},
		{"self parent", Node{Name: "N2", Parent: "N2"}, false},
		{"group child", Node{Name: "G", Parent: "N1"}, true},
		{"model grandchild", Node{Name: "N3", Parent: "G", Mesh: "Mesh1"}, true},
		{"empty name", Node{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, doc.TryAddNode(tt.node))
		})
	}

	var names []string
	for _, n := range doc.Nodes() {
		names = append(names, n.Name)
	}
	assert.Equal(t, []string{"N1", "G", "N3"}, names)
}

func TestDocument_Getters(t *testing.T) {
	doc := sceneDocument(t)

	_, ok := doc.Node("N1")
	assert.True(t, ok)
	_, ok = doc.Node("missing")
	assert.False(t, ok)
	s, ok := doc.Shader("S1")
	assert.True(t, ok)
	assert.Equal(t, "M1", s.Material)
	_, ok = doc.Material("M1")
	assert.True(t, ok)
	_, ok = doc.Texture("T1")
	assert.False(t, ok)

	nodes := doc.Nodes()
	nodes[0].Name = "changed"
	n, _ := doc.Node("N1")
	assert.Equal(t, "N1", n.Name)
}

func encodeTIFF(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, tiff.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, 2, 2)), nil))
	return buf.Bytes()
}

func TestDetectImageFormat(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want ImageFormat
	}{
		{"png", encodePNG(t, 1, 1), ImageFormatPNG},
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0x10, 'J', 'F', 'I', 'F', 0}, ImageFormatJPEG},
		{"tiff", encodeTIFF(t), ImageFormatTIFF},
		{"gif", []byte("GIF89a......"), ImageFormatInvalid},
		{"empty", nil, ImageFormatInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectImageFormat(tt.data))
		})
	}
}
