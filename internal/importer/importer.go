// Package importer converts model files into u3d Documents.
package importer

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/Faultbox/u3dkit/internal/texture"
	"github.com/Faultbox/u3dkit/pkg/encoding"
	"github.com/Faultbox/u3dkit/pkg/math"
	"github.com/Faultbox/u3dkit/pkg/u3d"
)

// Import errors.
var (
	ErrUnknownFormat = errors.New("unknown model format")
	ErrRejected      = errors.New("entity rejected by document")
)

// Options controls how a model file is converted.
type Options struct {
	// Charset is the text encoding of the produced Document. Zero means UTF-8.
	Charset encoding.Charset

	// Textures enables texture import. When false shaders reference only
	// materials.
	Textures bool

	// TextureDirs are searched, in order, for texture files referenced by
	// relative path. The model's own directory is always searched last.
	TextureDirs []string

	// Archives are searched after TextureDirs for textures, and for RSM
	// models that do not exist on disk.
	Archives []Archive

	// GenerateNormals adds flat per-face normals to models that carry none.
	GenerateNormals bool

	Logger *zap.Logger
}

// Archive is a read-only file container such as a *grf.Archive.
type Archive interface {
	Contains(name string) bool
	Read(name string) ([]byte, error)
}

// Import reads the model at name and returns it as a Document.
// The format is chosen by file extension: .gltf, .glb or .rsm. RSM models
// missing on disk are looked up in opts.Archives.
func Import(name string, opts Options) (*u3d.Document, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".gltf", ".glb":
		return ImportGLTF(name, opts)
	case ".rsm":
		if _, err := os.Stat(name); errors.Is(err, fs.ErrNotExist) {
			if data, ok := readArchived(opts.Archives, name, "data/model"); ok {
				return ImportRSMData(name, data, opts)
			}
		}
		return ImportRSM(name, opts)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, name)
	}
}

// readArchived returns the first archive member matching ref, tried as is
// and below prefix.
func readArchived(archives []Archive, ref, prefix string) ([]byte, bool) {
	rel := strings.TrimPrefix(strings.ReplaceAll(ref, `\`, "/"), "./")
	for _, a := range archives {
		for _, p := range []string{rel, path.Join(prefix, rel)} {
			if !a.Contains(p) {
				continue
			}
			if data, err := a.Read(p); err == nil {
				return data, true
			}
		}
	}
	return nil, false
}

var identity = math.Identity()

const (
	defaultMaterialName = "DefaultMaterial"
	defaultShaderName   = "DefaultShader"
)

// sceneBuilder adds entities to a Document in dependency order and derives
// unique names for them.
type sceneBuilder struct {
	doc             *u3d.Document
	log             *zap.Logger
	textures        bool
	generateNormals bool
	archives        []Archive

	used          map[string]int
	defaultShader string
}

func newSceneBuilder(opts Options) *sceneBuilder {
	var docOpts []u3d.DocumentOption
	if !opts.Charset.IsZero() {
		docOpts = append(docOpts, u3d.WithTextEncoding(opts.Charset))
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &sceneBuilder{
		doc:             u3d.NewDocument(docOpts...),
		log:             log,
		textures:        opts.Textures,
		generateNormals: opts.GenerateNormals,
		archives:        opts.Archives,
		used:            make(map[string]int),
	}
}

// uniqueName returns base, or base with a numeric suffix, unused so far for
// the given entity kind.
func (b *sceneBuilder) uniqueName(kind, base string) string {
	if base == "" {
		base = kind
	}
	name := base
	for {
		key := kind + "\x00" + name
		n := b.used[key]
		b.used[key] = n + 1
		if n == 0 {
			return name
		}
		name = fmt.Sprintf("%s_%d", base, n)
	}
}

func rejected(kind, name string) error {
	return fmt.Errorf("%w: %s %q", ErrRejected, kind, name)
}

func (b *sceneBuilder) addMaterial(m u3d.Material) (string, error) {
	m.Name = b.uniqueName("material", m.Name)
	if !b.doc.TryAddMaterial(m) {
		return "", rejected("material", m.Name)
	}
	return m.Name, nil
}

// addTexture prepares image data and adds it as a texture. Images that
// cannot be converted are logged and skipped; the returned name is then
// empty. Texture import being disabled has the same effect.
func (b *sceneBuilder) addTexture(name string, data []byte) (string, error) {
	if !b.textures {
		return "", nil
	}
	img, format, err := texture.Prepare(name, data)
	if err != nil {
		b.log.Warn("skipping texture", zap.String("texture", name), zap.Error(err))
		return "", nil
	}
	t := u3d.Texture{Name: b.uniqueName("texture", name), Image: img, Format: format}
	if !b.doc.TryAddTexture(t) {
		return "", rejected("texture", t.Name)
	}
	return t.Name, nil
}

func (b *sceneBuilder) addShader(name, material, texture string) (string, error) {
	s := u3d.Shader{Name: b.uniqueName("shader", name), Material: material, Texture: texture}
	if !b.doc.TryAddShader(s) {
		return "", rejected("shader", s.Name)
	}
	return s.Name, nil
}

// fallbackShader returns the shader used by geometry without a material,
// creating it on first use.
func (b *sceneBuilder) fallbackShader() (string, error) {
	if b.defaultShader != "" {
		return b.defaultShader, nil
	}
	mat, err := b.addMaterial(u3d.DefaultMaterial(defaultMaterialName))
	if err != nil {
		return "", err
	}
	if b.defaultShader, err = b.addShader(defaultShaderName, mat, ""); err != nil {
		return "", err
	}
	return b.defaultShader, nil
}

func (b *sceneBuilder) addMesh(m u3d.Mesh) (string, error) {
	m.Name = b.uniqueName("mesh", m.Name)
	if !b.doc.TryAddMesh(m) {
		return "", rejected("mesh", m.Name)
	}
	return m.Name, nil
}

func (b *sceneBuilder) addNode(n u3d.Node) (string, error) {
	n.Name = b.uniqueName("node", n.Name)
	if !b.doc.TryAddNode(n) {
		return "", rejected("node", n.Name)
	}
	return n.Name, nil
}

// addModelNode adds a node for meshes: the first mesh is attached to the
// node itself and each further mesh becomes an identity child node.
func (b *sceneBuilder) addModelNode(n u3d.Node, meshes []string) (string, error) {
	if len(meshes) > 0 {
		n.Mesh = meshes[0]
	}
	name, err := b.addNode(n)
	if err != nil {
		return "", err
	}
	for i, mesh := range meshes[min(1, len(meshes)):] {
		child := u3d.Node{
			Name:           fmt.Sprintf("%s_part%d", name, i+1),
			Parent:         name,
			Mesh:           mesh,
			Transformation: identity,
		}
		if _, err := b.addNode(child); err != nil {
			return "", err
		}
	}
	return name, nil
}

// stats logs entity counts of the finished document.
func (b *sceneBuilder) stats(source string) {
	b.log.Info("imported model",
		zap.String("source", source),
		zap.Int("nodes", len(b.doc.Nodes())),
		zap.Int("meshes", len(b.doc.Meshes())),
		zap.Int("shaders", len(b.doc.Shaders())),
		zap.Int("materials", len(b.doc.Materials())),
		zap.Int("textures", len(b.doc.Textures())))
}

// readTextureFile looks ref up in each of dirs, first by its relative path
// and then by base name alone, and returns the first file found. ref may
// use backslash separators.
func readTextureFile(ref string, dirs []string) ([]byte, string, error) {
	rel := filepath.FromSlash(strings.ReplaceAll(ref, `\`, "/"))
	var candidates []string
	for _, dir := range dirs {
		candidates = append(candidates, filepath.Join(dir, rel))
	}
	if base := filepath.Base(rel); base != rel {
		for _, dir := range dirs {
			candidates = append(candidates, filepath.Join(dir, base))
		}
	}
	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err == nil {
			return data, path, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, path, err
		}
	}
	return nil, "", fmt.Errorf("texture %q: %w", ref, fs.ErrNotExist)
}

// readResource reads a texture reference from dirs, falling back to the
// archives, where textures live below data/texture.
func (b *sceneBuilder) readResource(ref string, dirs []string) ([]byte, error) {
	data, _, err := readTextureFile(ref, dirs)
	if err == nil || !errors.Is(err, fs.ErrNotExist) {
		return data, err
	}
	if data, ok := readArchived(b.archives, ref, "data/texture"); ok {
		return data, nil
	}
	return nil, err
}

// addFlatNormals gives a mesh without normals one normal per triangle.
func addFlatNormals(m *u3d.Mesh) {
	if len(m.Normals) > 0 {
		return
	}
	for i := range m.Triangles {
		tri := &m.Triangles[i]
		a := m.Positions[tri[0].Position]
		e1 := m.Positions[tri[1].Position].Sub(a)
		e2 := m.Positions[tri[2].Position].Sub(a)
		m.Normals = append(m.Normals, e1.Cross(e2).Normalize())
		for c := range tri {
			tri[c].Normal = i
		}
	}
}
