package importer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/u3dkit/pkg/encoding"
	"github.com/Faultbox/u3dkit/pkg/u3d"
)

func TestImport_UnknownFormat(t *testing.T) {
	_, err := Import("model.obj", Options{})
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestSceneBuilder_UniqueName(t *testing.T) {
	b := newSceneBuilder(Options{})
	assert.Equal(t, "a", b.uniqueName("mesh", "a"))
	assert.Equal(t, "a_1", b.uniqueName("mesh", "a"))
	assert.Equal(t, "a_2", b.uniqueName("mesh", "a"))
	assert.Equal(t, "a", b.uniqueName("node", "a"), "kinds have separate namespaces")
	assert.Equal(t, "mesh", b.uniqueName("mesh", ""))

	// an explicit name that collides with a generated one
	assert.Equal(t, "a_1_1", b.uniqueName("mesh", "a_1"))
}

func TestSceneBuilder_Charset(t *testing.T) {
	b := newSceneBuilder(Options{Charset: encoding.ShiftJIS})
	assert.Equal(t, encoding.ShiftJIS, b.doc.TextEncoding())
	assert.Equal(t, encoding.UTF8, newSceneBuilder(Options{}).doc.TextEncoding())
}

func TestSceneBuilder_FallbackShaderOnce(t *testing.T) {
	b := newSceneBuilder(Options{})
	s1, err := b.fallbackShader()
	require.NoError(t, err)
	s2, err := b.fallbackShader()
	require.NoError(t, err)
	assert.Equal(t, s1, s2)
	assert.Len(t, b.doc.Materials(), 1)
}

func TestSceneBuilder_Rejected(t *testing.T) {
	b := newSceneBuilder(Options{})
	_, err := b.addShader("s", "no-such-material", "")
	assert.ErrorIs(t, err, ErrRejected)
	assert.Contains(t, err.Error(), `shader "s"`)
}

func TestAddModelNode_ExtraMeshesBecomeChildren(t *testing.T) {
	b := newSceneBuilder(Options{})
	shader, err := b.fallbackShader()
	require.NoError(t, err)
	var meshes []string
	for i := 0; i < 3; i++ {
		m := u3d.Mesh{
			Name:      "m",
			Positions: triangle,
			Triangles: []u3d.Triangle{{u3d.PositionCorner(0), u3d.PositionCorner(1), u3d.PositionCorner(2)}},
			Shader:    shader,
		}
		name, err := b.addMesh(m)
		require.NoError(t, err)
		meshes = append(meshes, name)
	}

	name, err := b.addModelNode(u3d.Node{Name: "n", Transformation: identity}, meshes)
	require.NoError(t, err)
	assert.Equal(t, "n", name)

	nodes := b.doc.Nodes()
	require.Len(t, nodes, 3)
	assert.Equal(t, "m", nodes[0].Mesh)
	assert.Equal(t, "n_part1", nodes[1].Name)
	assert.Equal(t, "n", nodes[1].Parent)
	assert.Equal(t, "m_2", nodes[2].Mesh)
}

func TestAddFlatNormals(t *testing.T) {
	m := u3d.Mesh{
		Positions: triangle,
		Triangles: []u3d.Triangle{{u3d.PositionCorner(0), u3d.PositionCorner(1), u3d.PositionCorner(2)}},
	}
	addFlatNormals(&m)
	require.Len(t, m.Normals, 1)
	assert.InDelta(t, 1, m.Normals[0].Z, 1e-6)
	for _, c := range m.Triangles[0] {
		assert.Equal(t, 0, c.Normal)
	}
	assert.True(t, m.TrianglesValid())
}

func TestReadTextureFile(t *testing.T) {
	first, second := t.TempDir(), t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(second, "data"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(second, "data", "a.bmp"), []byte("nested"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(first, "a.bmp"), []byte("flat"), 0o644))

	data, path, err := readTextureFile(`data\a.bmp`, []string{first, second})
	require.NoError(t, err)
	assert.Equal(t, "nested", string(data), "relative path wins over base name")
	assert.Equal(t, filepath.Join(second, "data", "a.bmp"), path)

	data, _, err = readTextureFile(`other\a.bmp`, []string{second, first})
	require.NoError(t, err)
	assert.Equal(t, "flat", string(data))

	_, _, err = readTextureFile("missing.bmp", []string{first})
	assert.ErrorIs(t, err, os.ErrNotExist)
}
