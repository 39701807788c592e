package importer

import (
	"fmt"
	"net/url"
	"path/filepath"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
	"go.uber.org/zap"

	"github.com/Faultbox/u3dkit/pkg/math"
	"github.com/Faultbox/u3dkit/pkg/u3d"
)

// glTF material defaults for properties PBR materials do not carry.
const (
	gltfAmbientFactor = 0.2
	gltfSpecular      = 0.2
	gltfReflectivity  = 0.1
)

// ImportGLTF converts a .gltf or .glb file. Buffers are loaded relative to
// the file's directory.
func ImportGLTF(path string, opts Options) (*u3d.Document, error) {
	src, err := gltf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening glTF %s: %w", path, err)
	}
	g := &gltfImporter{
		sceneBuilder: newSceneBuilder(opts),
		src:          src,
		dirs:         append(append([]string(nil), opts.TextureDirs...), filepath.Dir(path)),
		shaders:      make(map[int]string),
		textures:     make(map[int]string),
		meshes:       make(map[int][]string),
	}
	if err := g.importScene(); err != nil {
		return nil, fmt.Errorf("importing %s: %w", path, err)
	}
	g.stats(path)
	return g.doc, nil
}

type gltfImporter struct {
	*sceneBuilder
	src  *gltf.Document
	dirs []string

	// caches by glTF index
	shaders  map[int]string
	textures map[int]string
	meshes   map[int][]string
}

// roots returns the node indices to import: the default scene, the first
// scene, or every node that is nobody's child.
func (g *gltfImporter) roots() []int {
	if len(g.src.Scenes) > 0 {
		scene := g.src.Scenes[0]
		if g.src.Scene != nil && *g.src.Scene < len(g.src.Scenes) {
			scene = g.src.Scenes[*g.src.Scene]
		}
		return scene.Nodes
	}
	child := make([]bool, len(g.src.Nodes))
	for _, n := range g.src.Nodes {
		for _, c := range n.Children {
			if c >= 0 && c < len(child) {
				child[c] = true
			}
		}
	}
	var roots []int
	for i, isChild := range child {
		if !isChild {
			roots = append(roots, i)
		}
	}
	return roots
}

func (g *gltfImporter) importScene() error {
	visited := make([]bool, len(g.src.Nodes))
	var visit func(idx int, parent string) error
	visit = func(idx int, parent string) error {
		if idx < 0 || idx >= len(g.src.Nodes) || visited[idx] {
			return nil
		}
		visited[idx] = true

		name, err := g.importNode(idx, parent)
		if err != nil {
			return err
		}
		for _, c := range g.src.Nodes[idx].Children {
			if err := visit(c, name); err != nil {
				return err
			}
		}
		return nil
	}
	for _, idx := range g.roots() {
		if err := visit(idx, ""); err != nil {
			return err
		}
	}
	return nil
}

func (g *gltfImporter) importNode(idx int, parent string) (string, error) {
	n := g.src.Nodes[idx]
	node := u3d.Node{
		Name:           n.Name,
		Parent:         parent,
		Transformation: nodeTransform(n),
	}
	if node.Name == "" {
		node.Name = fmt.Sprintf("node%d", idx)
	}

	var meshes []string
	if n.Mesh != nil {
		var err error
		if meshes, err = g.importMesh(*n.Mesh); err != nil {
			return "", err
		}
	}
	g.log.Debug("importing node", zap.String("node", node.Name), zap.Int("meshes", len(meshes)))
	return g.addModelNode(node, meshes)
}

func nodeTransform(n *gltf.Node) math.Mat4 {
	if m := n.MatrixOrDefault(); m != gltf.DefaultMatrix {
		return math.FromFloat64(m)
	}
	t := n.TranslationOrDefault()
	r := n.RotationOrDefault()
	s := n.ScaleOrDefault()
	return math.FromTRS(
		math.Vec3{X: float32(t[0]), Y: float32(t[1]), Z: float32(t[2])},
		math.Quat{X: float32(r[0]), Y: float32(r[1]), Z: float32(r[2]), W: float32(r[3])},
		math.Vec3{X: float32(s[0]), Y: float32(s[1]), Z: float32(s[2])},
	)
}

// importMesh converts each triangle primitive of a glTF mesh into a u3d
// Mesh. Meshes shared by several nodes are converted once.
func (g *gltfImporter) importMesh(idx int) ([]string, error) {
	if names, ok := g.meshes[idx]; ok {
		return names, nil
	}
	if idx < 0 || idx >= len(g.src.Meshes) {
		return nil, fmt.Errorf("mesh index %d out of range", idx)
	}
	src := g.src.Meshes[idx]
	base := src.Name
	if base == "" {
		base = fmt.Sprintf("mesh%d", idx)
	}

	var names []string
	for i, prim := range src.Primitives {
		if prim.Mode != gltf.PrimitiveTriangles {
			g.log.Warn("skipping non-triangle primitive",
				zap.String("mesh", base), zap.Int("primitive", i), zap.Int("mode", int(prim.Mode)))
			continue
		}
		mesh, err := g.readPrimitive(prim)
		if err != nil {
			return nil, fmt.Errorf("mesh %q primitive %d: %w", base, i, err)
		}
		if len(mesh.Triangles) == 0 {
			continue
		}
		if g.generateNormals {
			addFlatNormals(&mesh)
		}
		if mesh.Shader, err = g.primitiveShader(prim); err != nil {
			return nil, err
		}
		mesh.Name = base
		name, err := g.addMesh(mesh)
		if err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	g.meshes[idx] = names
	return names, nil
}

func (g *gltfImporter) accessor(idx int) (*gltf.Accessor, error) {
	if idx < 0 || idx >= len(g.src.Accessors) {
		return nil, fmt.Errorf("accessor index %d out of range", idx)
	}
	return g.src.Accessors[idx], nil
}

func (g *gltfImporter) readPrimitive(prim *gltf.Primitive) (u3d.Mesh, error) {
	var mesh u3d.Mesh

	posIdx, ok := prim.Attributes[gltf.POSITION]
	if !ok {
		return mesh, nil
	}
	acr, err := g.accessor(posIdx)
	if err != nil {
		return mesh, err
	}
	positions, err := modeler.ReadPosition(g.src, acr, nil)
	if err != nil {
		return mesh, fmt.Errorf("reading positions: %w", err)
	}
	for _, p := range positions {
		mesh.Positions = append(mesh.Positions, math.V3(p))
	}

	if idx, ok := prim.Attributes[gltf.NORMAL]; ok {
		acr, err := g.accessor(idx)
		if err != nil {
			return mesh, err
		}
		normals, err := modeler.ReadNormal(g.src, acr, nil)
		if err != nil {
			return mesh, fmt.Errorf("reading normals: %w", err)
		}
		if len(normals) == len(positions) {
			for _, n := range normals {
				mesh.Normals = append(mesh.Normals, math.V3(n))
			}
		} else {
			g.log.Warn("ignoring normals with mismatched count",
				zap.Int("normals", len(normals)), zap.Int("positions", len(positions)))
		}
	}

	if idx, ok := prim.Attributes[gltf.TEXCOORD_0]; ok {
		acr, err := g.accessor(idx)
		if err != nil {
			return mesh, err
		}
		uvs, err := modeler.ReadTextureCoord(g.src, acr, nil)
		if err != nil {
			return mesh, fmt.Errorf("reading texture coordinates: %w", err)
		}
		if len(uvs) == len(positions) {
			for _, uv := range uvs {
				mesh.TextureCoordinates = append(mesh.TextureCoordinates, math.Vec2{X: uv[0], Y: uv[1]}.FlipV())
			}
		} else {
			g.log.Warn("ignoring texture coordinates with mismatched count",
				zap.Int("texcoords", len(uvs)), zap.Int("positions", len(positions)))
		}
	}

	var indices []uint32
	if prim.Indices != nil {
		acr, err := g.accessor(*prim.Indices)
		if err != nil {
			return mesh, err
		}
		if indices, err = modeler.ReadIndices(g.src, acr, nil); err != nil {
			return mesh, fmt.Errorf("reading indices: %w", err)
		}
	} else {
		indices = make([]uint32, len(positions))
		for i := range indices {
			indices[i] = uint32(i)
		}
	}

	corner := func(i uint32) u3d.Corner {
		c := u3d.PositionCorner(int(i))
		if len(mesh.Normals) > 0 {
			c.Normal = int(i)
		}
		if len(mesh.TextureCoordinates) > 0 {
			c.TextureCoordinate = int(i)
		}
		return c
	}
	skipped := 0
	for f := 0; f+2 < len(indices); f += 3 {
		a, b, c := indices[f], indices[f+1], indices[f+2]
		if int(a) >= len(positions) || int(b) >= len(positions) || int(c) >= len(positions) {
			skipped++
			continue
		}
		mesh.Triangles = append(mesh.Triangles, u3d.Triangle{corner(a), corner(b), corner(c)})
	}
	if skipped > 0 {
		g.log.Warn("skipped triangles with out-of-range indices", zap.Int("count", skipped))
	}
	return mesh, nil
}

func (g *gltfImporter) primitiveShader(prim *gltf.Primitive) (string, error) {
	if prim.Material == nil || *prim.Material < 0 || *prim.Material >= len(g.src.Materials) {
		return g.fallbackShader()
	}
	idx := *prim.Material
	if name, ok := g.shaders[idx]; ok {
		return name, nil
	}

	src := g.src.Materials[idx]
	name := src.Name
	if name == "" {
		name = fmt.Sprintf("material%d", idx)
	}
	mat := convertMaterial(name, src)
	matName, err := g.addMaterial(mat)
	if err != nil {
		return "", err
	}

	var texName string
	if pbr := src.PBRMetallicRoughness; pbr != nil && pbr.BaseColorTexture != nil {
		if texName, err = g.importTexture(pbr.BaseColorTexture.Index); err != nil {
			return "", err
		}
	}
	shader, err := g.addShader(name, matName, texName)
	if err != nil {
		return "", err
	}
	g.shaders[idx] = shader
	return shader, nil
}

func convertMaterial(name string, src *gltf.Material) u3d.Material {
	base := [4]float64{1, 1, 1, 1}
	if src.PBRMetallicRoughness != nil {
		base = src.PBRMetallicRoughness.BaseColorFactorOrDefault()
	}
	diffuse := u3d.Color{R: float32(base[0]), G: float32(base[1]), B: float32(base[2])}
	return u3d.Material{
		Name:    name,
		Diffuse: diffuse,
		Ambient: u3d.Color{
			R: diffuse.R * gltfAmbientFactor,
			G: diffuse.G * gltfAmbientFactor,
			B: diffuse.B * gltfAmbientFactor,
		},
		Specular: u3d.Color{R: gltfSpecular, G: gltfSpecular, B: gltfSpecular},
		Emissive: u3d.Color{
			R: float32(src.EmissiveFactor[0]),
			G: float32(src.EmissiveFactor[1]),
			B: float32(src.EmissiveFactor[2]),
		},
		Reflectivity: gltfReflectivity,
		Opacity:      float32(base[3]),
	}
}

// importTexture converts the image behind a glTF texture. The returned
// name is empty when textures are disabled or the image is unusable.
func (g *gltfImporter) importTexture(idx int) (string, error) {
	if !g.sceneBuilder.textures {
		return "", nil
	}
	if name, ok := g.textures[idx]; ok {
		return name, nil
	}
	if idx < 0 || idx >= len(g.src.Textures) || g.src.Textures[idx].Source == nil {
		return "", nil
	}
	imgIdx := *g.src.Textures[idx].Source
	if imgIdx < 0 || imgIdx >= len(g.src.Images) {
		return "", nil
	}
	img := g.src.Images[imgIdx]

	name := img.Name
	if name == "" && img.URI != "" && !img.IsEmbeddedResource() {
		name = filepath.Base(img.URI)
	}
	if name == "" {
		name = fmt.Sprintf("image%d", imgIdx)
	}

	data, err := g.imageData(img)
	if err != nil {
		g.log.Warn("skipping texture", zap.String("texture", name), zap.Error(err))
		g.textures[idx] = ""
		return "", nil
	}
	texName, err := g.addTexture(name, data)
	if err != nil {
		return "", err
	}
	g.textures[idx] = texName
	return texName, nil
}

// imageData returns image bytes from a buffer view, a data URI or a file
// relative to the model.
func (g *gltfImporter) imageData(img *gltf.Image) ([]byte, error) {
	switch {
	case img.BufferView != nil:
		idx := *img.BufferView
		if idx < 0 || idx >= len(g.src.BufferViews) {
			return nil, fmt.Errorf("buffer view %d out of range", idx)
		}
		bv := g.src.BufferViews[idx]
		if bv.Buffer < 0 || bv.Buffer >= len(g.src.Buffers) {
			return nil, fmt.Errorf("buffer %d out of range", bv.Buffer)
		}
		data := g.src.Buffers[bv.Buffer].Data
		end := bv.ByteOffset + bv.ByteLength
		if bv.ByteOffset < 0 || end > len(data) {
			return nil, fmt.Errorf("buffer view %d exceeds buffer", idx)
		}
		return data[bv.ByteOffset:end], nil
	case img.IsEmbeddedResource():
		return img.MarshalData()
	case img.URI != "":
		ref, err := url.PathUnescape(img.URI)
		if err != nil {
			ref = img.URI
		}
		return g.readResource(ref, g.dirs)
	default:
		return nil, fmt.Errorf("image has no data")
	}
}
