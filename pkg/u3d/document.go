package u3d

import (
	"slices"

	"cogentcore.org/core/base/keylist"

	"github.com/Faultbox/u3dkit/pkg/encoding"
)

// Document is an in-memory U3D scene. It owns every entity; entities refer
// to each other only by name.
//
// Each TryAdd method checks all preconditions and inserts only when they
// hold, so a rejected insertion leaves the Document unchanged. Entities must
// therefore be added in dependency order: materials and textures, then
// shaders, meshes, and finally nodes (parents before children).
//
// A Document is not safe for concurrent mutation. Once populated it may be
// encoded concurrently.
type Document struct {
	textEncoding encoding.Charset

	materials keylist.List[string, Material]
	meshes    keylist.List[string, Mesh]
	nodes     keylist.List[string, Node]
	shaders   keylist.List[string, Shader]
	textures  keylist.List[string, Texture]
}

// DocumentOption configures a new Document.
type DocumentOption func(*Document)

// WithTextEncoding sets the charset used for every string in the output.
func WithTextEncoding(cs encoding.Charset) DocumentOption {
	return func(d *Document) {
		if !cs.IsZero() {
			d.textEncoding = cs
		}
	}
}

// NewDocument returns an empty UTF-8 document.
func NewDocument(opts ...DocumentOption) *Document {
	d := &Document{textEncoding: encoding.UTF8}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// TextEncoding returns the document charset.
func (d *Document) TextEncoding() encoding.Charset {
	if d.textEncoding.IsZero() {
		return encoding.UTF8
	}
	return d.textEncoding
}

// validName reports whether name is non-empty and fits a U3D string.
func (d *Document) validName(name string) bool {
	return name != "" && len(d.TextEncoding().Encode(name)) <= maxStringBytes
}

// TryAddMaterial adds a material with a new, valid name.
func (d *Document) TryAddMaterial(m Material) bool {
	if !d.validName(m.Name) || d.materials.IndexByKey(m.Name) >= 0 {
		return false
	}
	return d.materials.Add(m.Name, m) == nil
}

// TryAddTexture adds a texture with a new name, non-empty image bytes and a
// known image format.
func (d *Document) TryAddTexture(t Texture) bool {
	if !d.validName(t.Name) || d.textures.IndexByKey(t.Name) >= 0 {
		return false
	}
	if len(t.Image) == 0 || t.Format == ImageFormatInvalid || t.Format > ImageFormatTIFF {
		return false
	}
	t.Image = append([]byte(nil), t.Image...)
	return d.textures.Add(t.Name, t) == nil
}

// TryAddShader adds a shader whose material, and texture if named, exist.
func (d *Document) TryAddShader(s Shader) bool {
	if !d.validName(s.Name) || d.shaders.IndexByKey(s.Name) >= 0 {
		return false
	}
	if s.Material == "" || d.materials.IndexByKey(s.Material) < 0 {
		return false
	}
	if s.Texture != "" && d.textures.IndexByKey(s.Texture) < 0 {
		return false
	}
	return d.shaders.Add(s.Name, s) == nil
}

// TryAddMesh adds a mesh whose shader exists and whose triangles are valid.
func (d *Document) TryAddMesh(m Mesh) bool {
	if !d.validName(m.Name) || d.meshes.IndexByKey(m.Name) >= 0 {
		return false
	}
	if m.Shader == "" || d.shaders.IndexByKey(m.Shader) < 0 {
		return false
	}
	if !m.TrianglesValid() {
		return false
	}
	return d.meshes.Add(m.Name, m.clone()) == nil
}

// TryAddNode adds a node whose mesh and parent, if named, exist.
func (d *Document) TryAddNode(n Node) bool {
	if !d.validName(n.Name) || d.nodes.IndexByKey(n.Name) >= 0 {
		return false
	}
	if n.Mesh != "" && d.meshes.IndexByKey(n.Mesh) < 0 {
		return false
	}
	if n.Parent != "" && (n.Parent == n.Name || d.nodes.IndexByKey(n.Parent) < 0) {
		return false
	}
	return d.nodes.Add(n.Name, n) == nil
}

// Material returns the named material.
func (d *Document) Material(name string) (Material, bool) {
	return d.materials.AtTry(name)
}

// Texture returns the named texture.
func (d *Document) Texture(name string) (Texture, bool) {
	return d.textures.AtTry(name)
}

// Shader returns the named shader.
func (d *Document) Shader(name string) (Shader, bool) {
	return d.shaders.AtTry(name)
}

// Mesh returns the named mesh. Its slices are shared with the Document and
// must not be modified.
func (d *Document) Mesh(name string) (Mesh, bool) {
	return d.meshes.AtTry(name)
}

// Node returns the named node.
func (d *Document) Node(name string) (Node, bool) {
	return d.nodes.AtTry(name)
}

// Materials returns all materials in insertion order.
func (d *Document) Materials() []Material {
	return slices.Clone(d.materials.Values)
}

// Textures returns all textures in insertion order.
func (d *Document) Textures() []Texture {
	return slices.Clone(d.textures.Values)
}

// Shaders returns all shaders in insertion order.
func (d *Document) Shaders() []Shader {
	return slices.Clone(d.shaders.Values)
}

// Meshes returns all meshes in insertion order.
func (d *Document) Meshes() []Mesh {
	return slices.Clone(d.meshes.Values)
}

// Nodes returns all nodes in insertion order.
func (d *Document) Nodes() []Node {
	return slices.Clone(d.nodes.Values)
}
