package u3d

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/Faultbox/u3dkit/pkg/encoding"
	"github.com/Faultbox/u3dkit/pkg/math"
)

// Header field values.
const (
	headerVersion       = 0x00000000
	profileNoCompress   = 0x00000004
	metaAttributeString = 0x00000000

	// DefaultProvenanceKey and DefaultProvenanceValue form the metadata pair
	// written into every header unless WithProvenance overrides them.
	DefaultProvenanceKey   = "{Created_by"
	DefaultProvenanceValue = "GLTFtoU3D_converter}"
)

// Modifier chain fields.
const (
	chainTypeNode          = 0
	chainTypeModelResource = 1
	chainAttributesNone    = 0
)

// Option configures an Encoder.
type Option func(*options)

type options struct {
	logger          *zap.Logger
	materials       bool
	textures        bool
	provenanceKey   string
	provenanceValue string
}

// WithLogger sets the logger used for section tracing at debug level.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMaterials enables MaterialResource blocks. Without it materials are
// validated and referenced by shaders but not written.
func WithMaterials(enabled bool) Option {
	return func(o *options) { o.materials = enabled }
}

// WithTextures enables texture declaration and continuation blocks. Without
// it encoding a Document that holds textures fails with ErrUnsupported.
func WithTextures(enabled bool) Option {
	return func(o *options) { o.textures = enabled }
}

// WithProvenance replaces the header's metadata key/value pair.
func WithProvenance(key, value string) Option {
	return func(o *options) {
		o.provenanceKey = key
		o.provenanceValue = value
	}
}

// Encoder writes Documents to an output stream.
type Encoder struct {
	w    io.Writer
	opts options
}

// NewEncoder returns an encoder that writes to w.
func NewEncoder(w io.Writer, opts ...Option) *Encoder {
	o := options{
		logger:          zap.NewNop(),
		provenanceKey:   DefaultProvenanceKey,
		provenanceValue: DefaultProvenanceValue,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Encoder{w: w, opts: o}
}

// Save encodes doc to w.
func Save(w io.Writer, doc *Document, opts ...Option) error {
	return NewEncoder(w, opts...).Encode(doc)
}

// SaveFile encodes doc into a new file at path. The file is removed if
// encoding fails.
func SaveFile(path string, doc *Document, opts ...Option) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("closing %s: %w", path, cerr)
		}
		if err != nil {
			os.Remove(path)
		}
	}()

	bw := bufio.NewWriter(f)
	if err := Save(bw, doc, opts...); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// Decode is not implemented: the package only writes U3D streams.
func Decode(r io.Reader) (*Document, error) {
	return nil, fmt.Errorf("%w: decoding U3D streams", ErrUnsupported)
}

type section struct {
	name   string
	blocks []Block
}

func (s section) size() int {
	n := 0
	for _, b := range s.blocks {
		n += b.Size()
	}
	return n
}

// Encode writes the complete stream for doc: header, node chains, mesh
// declaration chains, shaders, materials, texture declarations, mesh
// continuations and texture continuations, each in insertion order.
// All blocks are built before the first byte is written.
func (e *Encoder) Encode(doc *Document) error {
	if n := len(doc.textures.Values); n > 0 && !e.opts.textures {
		return fmt.Errorf("%w: encoding %d texture(s) requires WithTextures", ErrUnsupported, n)
	}

	cs := doc.TextEncoding()
	declarations := []section{
		{name: "nodes", blocks: nodeBlocks(cs, doc)},
		{name: "mesh declarations", blocks: meshDeclarationBlocks(cs, doc)},
		{name: "shaders", blocks: shaderBlocks(cs, doc)},
	}
	continuations := []section{
		{name: "mesh continuations", blocks: meshContinuationBlocks(cs, doc)},
	}
	if e.opts.materials {
		declarations = append(declarations, section{name: "materials", blocks: materialBlocks(cs, doc)})
	}
	if e.opts.textures {
		decl, cont, err := textureBlocks(cs, doc)
		if err != nil {
			return err
		}
		declarations = append(declarations, section{name: "texture declarations", blocks: decl})
		continuations = append(continuations, section{name: "texture continuations", blocks: cont})
	}

	declSize := e.headerBlock(cs, 0, 0).Size()
	for _, s := range declarations {
		declSize += s.size()
	}
	fileSize := declSize
	for _, s := range continuations {
		fileSize += s.size()
	}

	header := e.headerBlock(cs, uint32(declSize), uint64(fileSize))
	if err := e.write(header); err != nil {
		return err
	}
	for _, s := range append(declarations, continuations...) {
		for _, b := range s.blocks {
			if err := e.write(b); err != nil {
				return err
			}
		}
		e.opts.logger.Debug("wrote section",
			zap.String("section", s.name),
			zap.Int("blocks", len(s.blocks)),
			zap.Int("bytes", s.size()))
	}
	e.opts.logger.Debug("encoded document",
		zap.Int("declaration_size", declSize),
		zap.Int("file_size", fileSize))
	return nil
}

func (e *Encoder) write(b Block) error {
	if _, err := e.w.Write(b.Bytes()); err != nil {
		return fmt.Errorf("writing %s block: %w", b.Type, err)
	}
	return nil
}

func (e *Encoder) headerBlock(cs encoding.Charset, declSize uint32, fileSize uint64) Block {
	w := NewBlockWriter(cs)
	w.WriteI32(headerVersion)
	w.WriteU32(profileNoCompress)
	w.WriteU32(declSize)
	w.WriteU64(fileSize)
	w.WriteU32(cs.MIB)
	w.WriteMetaU32(1) // key/value pair count
	w.WriteMetaU32(metaAttributeString)
	w.WriteMetaString(e.opts.provenanceKey)
	w.WriteMetaString(e.opts.provenanceValue)
	return w.GetBlock(BlockHeader)
}

func nodeBlocks(cs encoding.Charset, doc *Document) []Block {
	blocks := make([]Block, 0, len(doc.nodes.Values))
	for _, node := range doc.nodes.Values {
		if node.Mesh == "" {
			blocks = append(blocks, modifierChain(cs, node.Name, chainTypeNode, groupNodeBlock(cs, node)))
			continue
		}
		mesh, ok := doc.meshes.AtTry(node.Mesh)
		if !ok {
			panic(fmt.Sprintf("u3d: node %q references missing mesh %q", node.Name, node.Mesh))
		}
		blocks = append(blocks, modifierChain(cs, node.Name, chainTypeNode,
			modelNodeBlock(cs, node),
			shadingModifierBlock(cs, node.Name, mesh.Shader)))
	}
	return blocks
}

// modifierChain wraps children in a chain block. Chain attributes are
// always zero: no bounding sphere or box is written.
func modifierChain(cs encoding.Charset, name string, chainType uint32, children ...Block) Block {
	w := NewBlockWriter(cs)
	w.WriteString(name)
	w.WriteU32(chainType)
	w.WriteU32(chainAttributesNone)
	w.WritePadding()
	w.WriteU32(uint32(len(children)))
	for _, c := range children {
		w.WriteBlock(c)
	}
	return w.GetBlock(BlockModifierChain)
}

func writeNodeParent(w *BlockWriter, node Node) {
	w.WriteU32(1) // parent node count
	w.WriteString(node.Parent)
	w.WriteArray(node.Transformation[:])
}

func groupNodeBlock(cs encoding.Charset, node Node) Block {
	w := NewBlockWriter(cs)
	w.WriteString(node.Name)
	writeNodeParent(w, node)
	return w.GetBlock(BlockGroupNode)
}

func modelNodeBlock(cs encoding.Charset, node Node) Block {
	w := NewBlockWriter(cs)
	w.WriteString(node.Name)
	writeNodeParent(w, node)
	w.WriteString(node.Mesh) // model resource name
	w.WriteU32(3)            // visibility: front and back
	return w.GetBlock(BlockModelNode)
}

func shadingModifierBlock(cs encoding.Charset, nodeName, shaderName string) Block {
	w := NewBlockWriter(cs)
	w.WriteString(nodeName)
	w.WriteU32(1) // chain index
	w.WriteU32(1) // shading attributes
	w.WriteU32(1) // shading list count
	w.WriteU32(1) // shader count
	w.WriteString(shaderName)
	return w.GetBlock(BlockShadingModifier)
}

func meshDeclarationBlocks(cs encoding.Charset, doc *Document) []Block {
	blocks := make([]Block, 0, len(doc.meshes.Values))
	for i := range doc.meshes.Values {
		mesh := &doc.meshes.Values[i]
		blocks = append(blocks, modifierChain(cs, mesh.Name, chainTypeModelResource, meshDeclarationBlock(cs, mesh)))
	}
	return blocks
}

func meshDeclarationBlock(cs encoding.Charset, mesh *Mesh) Block {
	w := NewBlockWriter(cs)
	w.WriteString(mesh.Name)
	w.WriteU32(0) // chain index

	// Max mesh description
	var attributes uint32
	if len(mesh.Normals) == 0 {
		attributes = 1 // exclude normals
	}
	w.WriteU32(attributes)
	w.WriteU32(uint32(len(mesh.Triangles)))
	w.WriteU32(uint32(len(mesh.Positions)))
	w.WriteU32(uint32(len(mesh.Normals)))
	w.WriteU32(0) // diffuse color count
	w.WriteU32(0) // specular color count
	w.WriteU32(uint32(len(mesh.TextureCoordinates)))
	w.WriteU32(1) // shading count

	// Shading description
	w.WriteU32(0) // shading attributes
	if len(mesh.TextureCoordinates) > 0 {
		w.WriteU32(1) // texture layer count
		w.WriteU32(2) // texture coordinate dimensions
	} else {
		w.WriteU32(0)
	}
	w.WriteU32(0) // original shading id

	// CLOD description
	w.WriteU32(uint32(len(mesh.Positions))) // minimum resolution
	w.WriteU32(uint32(len(mesh.Positions))) // maximum resolution

	// Resource description
	w.WriteU32(300)   // position quality factor
	w.WriteU32(300)   // normal quality factor
	w.WriteU32(300)   // texture coordinate quality factor
	w.WriteF32(0.01)  // position inverse quant
	w.WriteF32(0.01)  // normal inverse quant
	w.WriteF32(0.01)  // texture coordinate inverse quant
	w.WriteF32(0.01)  // diffuse color inverse quant
	w.WriteF32(0.01)  // specular color inverse quant
	w.WriteF32(0.9)   // normal crease parameter
	w.WriteF32(0.5)   // normal update parameter
	w.WriteF32(0.985) // normal tolerance parameter

	// Skeleton description
	w.WriteU32(0) // bone count
	return w.GetBlock(BlockMeshDeclaration)
}

func meshContinuationBlocks(cs encoding.Charset, doc *Document) []Block {
	blocks := make([]Block, 0, len(doc.meshes.Values))
	for i := range doc.meshes.Values {
		blocks = append(blocks, meshContinuationBlock(cs, &doc.meshes.Values[i]))
	}
	return blocks
}

func meshContinuationBlock(cs encoding.Charset, mesh *Mesh) Block {
	w := NewBlockWriter(cs)
	w.WriteString(mesh.Name)
	w.WriteU32(0) // chain index

	// Base mesh description
	w.WriteU32(uint32(len(mesh.Triangles)))
	w.WriteU32(uint32(len(mesh.Positions)))
	w.WriteU32(uint32(len(mesh.Normals)))
	w.WriteU32(0) // base diffuse color count
	w.WriteU32(0) // base specular color count
	w.WriteU32(uint32(len(mesh.TextureCoordinates)))

	for _, p := range mesh.Positions {
		writeVec3(w, p)
	}
	for _, n := range mesh.Normals {
		writeVec3(w, n)
	}
	for _, tc := range mesh.TextureCoordinates {
		w.WriteF32(tc.X)
		w.WriteF32(tc.Y)
		w.WriteF32(0)
		w.WriteF32(0)
	}

	for _, tri := range mesh.Triangles {
		w.WriteU32(0) // shading id
		for _, c := range tri {
			w.WriteU32(uint32(c.Position))
			if c.HasNormal() {
				w.WriteU32(uint32(c.Normal))
			}
			if c.HasTextureCoordinate() {
				w.WriteU32(uint32(c.TextureCoordinate))
			}
		}
	}
	return w.GetBlock(BlockMeshContinuation)
}

func writeVec3(w *BlockWriter, v math.Vec3) {
	w.WriteF32(v.X)
	w.WriteF32(v.Y)
	w.WriteF32(v.Z)
}

// Lit texture shader constants.
const (
	shaderLightsEnabled     = 0x00000001
	alphaTestAlways         = 0x00000617
	colorBlendMultiply      = 0x00000605
	renderPassEnabled       = 0x00000001
	textureBlendMultiply    = 0x00
	textureBlendSourceConst = 0x01
	textureModeNone         = 0x00
	textureRepeatST         = 0x03
)

func shaderBlocks(cs encoding.Charset, doc *Document) []Block {
	blocks := make([]Block, 0, len(doc.shaders.Values))
	for _, s := range doc.shaders.Values {
		blocks = append(blocks, litTextureShaderBlock(cs, s))
	}
	return blocks
}

func litTextureShaderBlock(cs encoding.Charset, s Shader) Block {
	w := NewBlockWriter(cs)
	w.WriteString(s.Name)
	w.WriteU32(shaderLightsEnabled)
	w.WriteF32(0) // alpha test reference
	w.WriteU32(alphaTestAlways)
	w.WriteU32(colorBlendMultiply)
	w.WriteU32(renderPassEnabled)
	if s.Texture == "" {
		w.WriteU32(0) // shader channels
	} else {
		w.WriteU32(1)
	}
	w.WriteU32(0) // alpha texture channels
	w.WriteString(s.Material)

	if s.Texture != "" {
		identity := math.Identity()
		w.WriteString(s.Texture)
		w.WriteF32(1) // texture intensity
		w.WriteU8(textureBlendMultiply)
		w.WriteU8(textureBlendSourceConst)
		w.WriteF32(1) // blend constant
		w.WriteU8(textureModeNone)
		w.WriteArray(identity[:]) // texture transform
		w.WriteArray(identity[:]) // texture wrap transform
		w.WriteU8(textureRepeatST)
	}
	return w.GetBlock(BlockLitTextureShader)
}
