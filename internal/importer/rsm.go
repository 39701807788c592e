package importer

import (
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/Faultbox/u3dkit/pkg/formats"
	"github.com/Faultbox/u3dkit/pkg/math"
	"github.com/Faultbox/u3dkit/pkg/u3d"
)

// ImportRSM converts an RSM model file. The model is placed under a root
// group node named after the file that flips Y, since RSM geometry is Y-down.
func ImportRSM(path string, opts Options) (*u3d.Document, error) {
	model, err := formats.ParseRSMFile(path)
	if err != nil {
		return nil, fmt.Errorf("importing %s: %w", path, err)
	}
	dirs := append(append([]string(nil), opts.TextureDirs...), filepath.Dir(path))
	return importRSM(path, model, dirs, opts)
}

// ImportRSMData converts an RSM model held in memory, such as one read
// from an archive. name supplies the root node name; textures are searched
// in opts.TextureDirs and opts.Archives only.
func ImportRSMData(name string, data []byte, opts Options) (*u3d.Document, error) {
	model, err := formats.ParseRSM(data)
	if err != nil {
		return nil, fmt.Errorf("importing %s: %w", name, err)
	}
	return importRSM(name, model, opts.TextureDirs, opts)
}

func importRSM(name string, model *formats.RSM, dirs []string, opts Options) (*u3d.Document, error) {
	r := &rsmImporter{
		sceneBuilder: newSceneBuilder(opts),
		model:        model,
		dirs:         dirs,
		shaders:      make(map[int]string),
	}
	base := refBase(name)
	root := strings.TrimSuffix(base, filepath.Ext(base))
	if err := r.importModel(root); err != nil {
		return nil, fmt.Errorf("importing %s: %w", name, err)
	}
	r.stats(name)
	return r.doc, nil
}

type rsmImporter struct {
	*sceneBuilder
	model *formats.RSM
	dirs  []string

	material string
	shaders  map[int]string // by index into model.Textures
}

func (r *rsmImporter) importModel(rootName string) error {
	root, err := r.addNode(u3d.Node{Name: rootName, Transformation: math.Scale(1, -1, 1)})
	if err != nil {
		return err
	}

	mat := u3d.DefaultMaterial(rootName)
	mat.Opacity = r.model.Alpha
	if r.material, err = r.addMaterial(mat); err != nil {
		return err
	}

	added := make(map[string]string, len(r.model.Nodes))
	for _, node := range r.model.OrderedNodes() {
		parent := root
		if p, ok := added[node.Parent]; ok && node.Parent != node.Name {
			parent = p
		}
		meshes, err := r.nodeMeshes(node)
		if err != nil {
			return err
		}
		name, err := r.addModelNode(u3d.Node{
			Name:           node.Name,
			Parent:         parent,
			Transformation: rsmLocalTransform(node),
		}, meshes)
		if err != nil {
			return err
		}
		if _, dup := added[node.Name]; !dup {
			added[node.Name] = name
		}
	}
	return nil
}

// rsmLocalTransform is the part of a node's transform its children
// inherit: position, rotation and scale. The first rotation keyframe, when
// present, replaces the axis-angle rotation.
func rsmLocalTransform(n *formats.RSMNode) math.Mat4 {
	m := math.Translate(n.Position[0], n.Position[1], n.Position[2])
	switch {
	case len(n.RotKeys) > 0:
		q := n.RotKeys[0].Quaternion
		m = m.Mul(math.Quat{X: q[0], Y: q[1], Z: q[2], W: q[3]}.ToMat4())
	case n.RotAngle != 0:
		axis := math.V3(n.RotAxis)
		if axis.Length() > 1e-6 {
			m = m.Mul(math.RotateAxis(axis.Normalize().Array(), n.RotAngle))
		}
	}
	return m.Mul(math.Scale(n.Scale[0], n.Scale[1], n.Scale[2]))
}

// rsmVertexTransform is the node-only part baked into its vertices.
func rsmVertexTransform(n *formats.RSMNode) math.Mat4 {
	return math.Translate(n.Offset[0], n.Offset[1], n.Offset[2]).Mul(math.FromMat3x3(n.Matrix))
}

// meshBuilder collects the faces of one texture group, remapping node
// vertex and texcoord indices into the mesh's own arrays.
type meshBuilder struct {
	mesh      u3d.Mesh
	positions map[uint16]int
	texcoords map[uint16]int
}

func newMeshBuilder(name string) *meshBuilder {
	return &meshBuilder{
		mesh:      u3d.Mesh{Name: name},
		positions: make(map[uint16]int),
		texcoords: make(map[uint16]int),
	}
}

func (mb *meshBuilder) corner(node *formats.RSMNode, bake math.Mat4, vid, tid uint16) u3d.Corner {
	p, ok := mb.positions[vid]
	if !ok {
		p = len(mb.mesh.Positions)
		mb.positions[vid] = p
		mb.mesh.Positions = append(mb.mesh.Positions, bake.TransformPoint(math.V3(node.Vertices[vid])))
	}
	c := u3d.PositionCorner(p)
	if len(node.TexCoords) == 0 {
		return c
	}
	t, ok := mb.texcoords[tid]
	if !ok {
		t = len(mb.mesh.TextureCoordinates)
		mb.texcoords[tid] = t
		tc := node.TexCoords[tid]
		mb.mesh.TextureCoordinates = append(mb.mesh.TextureCoordinates, math.Vec2{X: tc.U, Y: tc.V}.FlipV())
	}
	c.TextureCoordinate = t
	return c
}

// nodeMeshes groups a node's faces by texture, in order of first use, and
// adds one mesh per group.
func (r *rsmImporter) nodeMeshes(node *formats.RSMNode) ([]string, error) {
	bake := rsmVertexTransform(node)
	reverse := bake.Determinant3x3() < 0

	var order []int
	groups := make(map[int]*meshBuilder)
	skipped := 0
	for _, face := range node.Faces {
		if !validRSMFace(node, face) {
			skipped++
			continue
		}
		tex := -1
		if int(face.TextureID) < len(node.TextureIDs) {
			tex = int(node.TextureIDs[face.TextureID])
		}
		mb, ok := groups[tex]
		if !ok {
			mb = newMeshBuilder(node.Name)
			groups[tex] = mb
			order = append(order, tex)
		}

		var tri u3d.Triangle
		for i := range tri {
			tri[i] = mb.corner(node, bake, face.VertexIDs[i], face.TexCoordIDs[i])
		}
		front, back := tri, u3d.Triangle{tri[2], tri[1], tri[0]}
		if reverse {
			front, back = back, front
		}
		mb.mesh.Triangles = append(mb.mesh.Triangles, front)
		if face.TwoSide != 0 {
			mb.mesh.Triangles = append(mb.mesh.Triangles, back)
		}
	}
	if skipped > 0 {
		r.log.Warn("skipped invalid faces", zap.String("node", node.Name), zap.Int("count", skipped))
	}

	names := make([]string, 0, len(order))
	for _, tex := range order {
		mb := groups[tex]
		if r.generateNormals {
			addFlatNormals(&mb.mesh)
		}
		shader, err := r.textureShader(tex)
		if err != nil {
			return nil, err
		}
		mb.mesh.Shader = shader
		name, err := r.addMesh(mb.mesh)
		if err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, nil
}

// validRSMFace reports whether a face's indices are in range and its
// corners are distinct.
func validRSMFace(node *formats.RSMNode, f formats.RSMFace) bool {
	v := f.VertexIDs
	for i := range v {
		if int(v[i]) >= len(node.Vertices) {
			return false
		}
		if len(node.TexCoords) > 0 && int(f.TexCoordIDs[i]) >= len(node.TexCoords) {
			return false
		}
	}
	a := math.V3(node.Vertices[v[0]])
	e1 := math.V3(node.Vertices[v[1]]).Sub(a)
	e2 := math.V3(node.Vertices[v[2]]).Sub(a)
	return e1.Cross(e2).Length() > 1e-12
}

// textureShader returns the shader for a model texture index, importing
// the texture on first use. Index -1 and textures that cannot be loaded
// map to a material-only shader.
func (r *rsmImporter) textureShader(tex int) (string, error) {
	if name, ok := r.shaders[tex]; ok {
		return name, nil
	}

	var texName string
	if tex >= 0 && tex < len(r.model.Textures) {
		ref := r.model.Textures[tex]
		data, err := r.readTexture(ref)
		if err != nil {
			r.log.Warn("texture not loaded", zap.String("texture", ref), zap.Error(err))
		} else if texName, err = r.addTexture(refBase(ref), data); err != nil {
			return "", err
		}
	}

	var (
		shader string
		err    error
	)
	if texName == "" {
		shader, err = r.untexturedShader()
	} else {
		shader, err = r.addShader(texName, r.material, texName)
	}
	if err != nil {
		return "", err
	}
	r.shaders[tex] = shader
	return shader, nil
}

func (r *rsmImporter) readTexture(ref string) ([]byte, error) {
	if !r.sceneBuilder.textures {
		return nil, nil
	}
	return r.readResource(ref, r.dirs)
}

// untexturedShader is the shared material-only shader for the model.
func (r *rsmImporter) untexturedShader() (string, error) {
	if name, ok := r.shaders[-1]; ok {
		return name, nil
	}
	name, err := r.addShader(r.material, r.material, "")
	if err != nil {
		return "", err
	}
	r.shaders[-1] = name
	return name, nil
}

// refBase returns the last element of a path such as
// `data\texture\wall.bmp`, extension included; texture preparation
// relies on it.
func refBase(ref string) string {
	return filepath.Base(filepath.FromSlash(strings.ReplaceAll(ref, `\`, "/")))
}
