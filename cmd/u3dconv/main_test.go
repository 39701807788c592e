package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/u3dkit/pkg/formats"
	"github.com/Faultbox/u3dkit/pkg/grf"
	"github.com/Faultbox/u3dkit/pkg/u3d"
)

// writeRSM writes a one-triangle model and isolates the config lookup.
func writeRSM(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("XDG_CONFIG_HOME", dir)

	model := &formats.RSM{
		Version:  formats.RSMVersion{Major: 1, Minor: 5},
		Alpha:    1,
		RootNode: "root",
		Nodes: []formats.RSMNode{{
			Name:     "root",
			Matrix:   [9]float32{1, 0, 0, 0, 1, 0, 0, 0, 1},
			Scale:    [3]float32{1, 1, 1},
			Vertices: [][3]float32{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}},
			Faces:    []formats.RSMFace{{VertexIDs: [3]uint16{0, 1, 2}}},
		}},
	}
	path := filepath.Join(dir, "box.rsm")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, formats.WriteRSM(f, model))
	return path
}

// writeGRF packs the model written by writeRSM into an archive.
func writeGRF(t *testing.T, model string) string {
	t.Helper()
	data, err := os.ReadFile(model)
	require.NoError(t, err)
	path := filepath.Join(filepath.Dir(model), "data.grf")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, grf.Write(f, []grf.File{
		{Name: `data\model\prontera\box.rsm`, Data: data},
		{Name: `data\readme.txt`, Data: []byte("not a model")},
	}))
	return path
}

func runCmd(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestConvertAndBlocks(t *testing.T) {
	in := writeRSM(t)
	out := filepath.Join(filepath.Dir(in), "box.u3d")

	code, stdout, stderr := runCmd("convert", "-materials", "-encoding", "latin1", in, out)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "box.u3d")

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	blocks, err := u3d.ScanBlocks(data)
	require.NoError(t, err)
	assert.Equal(t, u3d.BlockHeader, blocks[0].Type)

	code, stdout, stderr = runCmd("blocks", out)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "Header")
	assert.Contains(t, stdout, `chain "root"`)
	assert.Contains(t, stdout, "MaterialResource")
}

func TestInfo(t *testing.T) {
	in := writeRSM(t)
	code, stdout, stderr := runCmd("info", in)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "Nodes:     2")
	assert.Contains(t, stdout, "Meshes:    1 (3 vertices, 1 triangles)")
	assert.Contains(t, stdout, "Encoding:  UTF-8")
}

func TestConvert_Errors(t *testing.T) {
	in := writeRSM(t)
	dir := filepath.Dir(in)

	code, _, _ := runCmd("convert", in)
	assert.Equal(t, 2, code, "missing output argument")

	code, _, stderr := runCmd("convert", filepath.Join(dir, "model.obj"), filepath.Join(dir, "x.u3d"))
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "unknown model format")

	code, _, stderr = runCmd("convert", "-encoding", "klingon", in, filepath.Join(dir, "x.u3d"))
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "klingon")
	assert.NoFileExists(t, filepath.Join(dir, "x.u3d"))
}

func TestBlocks_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.u3d")
	require.NoError(t, os.WriteFile(path, []byte{1, 2, 3}, 0o644))
	code, _, stderr := runCmd("blocks", path)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "bad.u3d")
}

func TestInitConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "u3dconv.yaml")
	code, _, stderr := runCmd("init-config", path)
	require.Equal(t, 0, code, stderr)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "encoding: UTF-8")
}

func TestUnknownCommand(t *testing.T) {
	code, _, stderr := runCmd("explode")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "Unknown command: explode")

	code, stdout, _ := runCmd("help")
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "Commands:")

	code, _, _ = runCmd()
	assert.Equal(t, 2, code)
}

func TestConvertFromArchive(t *testing.T) {
	archive := writeGRF(t, writeRSM(t))
	out := filepath.Join(filepath.Dir(archive), "house.u3d")

	code, _, stderr := runCmd("convert", "-grf", archive, "prontera/box.rsm", out)
	require.Equal(t, 0, code, stderr)
	assert.FileExists(t, out)

	code, _, stderr = runCmd("convert", "-grf", filepath.Join(filepath.Dir(archive), "none.grf"), "box.rsm", out)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "none.grf")
}

func TestList(t *testing.T) {
	archive := writeGRF(t, writeRSM(t))

	code, stdout, stderr := runCmd("list", archive)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "data/model/prontera/box.rsm")
	assert.NotContains(t, stdout, "readme.txt")

	code, stdout, _ = runCmd("list", archive, "*.bmp")
	assert.Equal(t, 0, code)
	assert.Empty(t, stdout)

	code, _, _ = runCmd("list")
	assert.Equal(t, 2, code)
}
