// Package formats provides readers for model formats the converter imports.
package formats

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Faultbox/u3dkit/pkg/encoding"
)

// RSM format errors.
var (
	ErrInvalidRSMMagic       = errors.New("invalid RSM magic: expected 'GRSM'")
	ErrUnsupportedRSMVersion = errors.New("unsupported RSM version")
	ErrTruncatedRSMData      = errors.New("truncated RSM data")
	ErrInvalidNodeCount      = errors.New("invalid RSM node count")
	ErrInvalidRSMCount       = errors.New("invalid RSM element count")
)

// Limits applied to counts read from the file.
const (
	rsmNameSize     = 40
	rsmMaxNodes     = 10000
	rsmMaxTextures  = 1000
	rsmMaxElements  = 1 << 20
	rsmMaxKeyframes = 100000
)

// RSMVersion represents the RSM file version.
type RSMVersion struct {
	Major uint8
	Minor uint8
}

// String returns the version as "Major.Minor".
func (v RSMVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// AtLeast returns true if version is >= major.minor.
func (v RSMVersion) AtLeast(major, minor uint8) bool {
	if v.Major != major {
		return v.Major > major
	}
	return v.Minor >= minor
}

// RSMShadingType represents the shading mode for rendering.
type RSMShadingType int32

const (
	RSMShadingNone   RSMShadingType = 0 // No shading
	RSMShadingFlat   RSMShadingType = 1 // Flat shading
	RSMShadingSmooth RSMShadingType = 2 // Smooth shading
)

// String returns a human-readable shading type name.
func (s RSMShadingType) String() string {
	switch s {
	case RSMShadingNone:
		return "None"
	case RSMShadingFlat:
		return "Flat"
	case RSMShadingSmooth:
		return "Smooth"
	default:
		return fmt.Sprintf("Unknown(%d)", s)
	}
}

// RSMTexCoord represents a texture coordinate with optional vertex color.
type RSMTexCoord struct {
	Color [4]uint8 // RGBA vertex color (v1.2+)
	U, V  float32
}

// RSMFace represents a triangle face in a mesh.
type RSMFace struct {
	VertexIDs   [3]uint16 // Indices into node vertices
	TexCoordIDs [3]uint16 // Indices into node texcoords
	TextureID   uint16    // Index into node's TextureIDs
	TwoSide     int32
	SmoothGroup int32 // v1.2+
}

// RSMPosKeyframe represents a position animation keyframe.
type RSMPosKeyframe struct {
	Frame    int32
	Position [3]float32
}

// RSMRotKeyframe represents a rotation animation keyframe.
type RSMRotKeyframe struct {
	Frame      int32
	Quaternion [4]float32 // X, Y, Z, W
}

// RSMNode represents a node in the model hierarchy.
type RSMNode struct {
	Name       string
	Parent     string  // empty for the root
	TextureIDs []int32 // Indices into RSM.Textures

	Matrix   [9]float32 // 3x3 basis, row-major
	Offset   [3]float32 // Pivot offset applied after Matrix
	Position [3]float32
	RotAngle float32 // radians
	RotAxis  [3]float32
	Scale    [3]float32

	Vertices  [][3]float32
	TexCoords []RSMTexCoord
	Faces     []RSMFace

	PosKeys []RSMPosKeyframe // v < 1.5
	RotKeys []RSMRotKeyframe
}

// RSMVolumeBox represents a bounding volume box.
type RSMVolumeBox struct {
	Size     [3]float32
	Position [3]float32
	Rotation [3]float32
	Flag     int32 // v1.3+
}

// RSM represents a parsed RSM (Resource Model) file.
// Names and texture paths are decoded from EUC-KR.
type RSM struct {
	Version     RSMVersion
	AnimLength  int32 // milliseconds
	Shading     RSMShadingType
	Alpha       float32 // 0-1
	Textures    []string
	RootNode    string
	Nodes       []RSMNode
	VolumeBoxes []RSMVolumeBox
}

// rsmReader reads little-endian values and remembers the first error.
type rsmReader struct {
	r   *bytes.Reader
	err error
}

func (r *rsmReader) read(v any) {
	if r.err != nil {
		return
	}
	if err := binary.Read(r.r, binary.LittleEndian, v); err != nil {
		r.err = ErrTruncatedRSMData
	}
}

func (r *rsmReader) skip(n int64) {
	if r.err != nil {
		return
	}
	if int64(r.r.Len()) < n {
		r.err = ErrTruncatedRSMData
		return
	}
	r.r.Seek(n, io.SeekCurrent)
}

func (r *rsmReader) name() string {
	buf := make([]byte, rsmNameSize)
	r.read(buf)
	if r.err != nil {
		return ""
	}
	return encoding.FixedStringToUTF8(buf)
}

// count reads an int32 element count and checks it against limit.
func (r *rsmReader) count(what string, limit int32) int {
	var n int32
	r.read(&n)
	if r.err != nil {
		return 0
	}
	if n < 0 || n > limit {
		r.err = fmt.Errorf("%w: %d %s", ErrInvalidRSMCount, n, what)
		return 0
	}
	return int(n)
}

// ParseRSM parses RSM data from a byte slice. Versions 1.1 to 1.5 are
// supported.
func ParseRSM(data []byte) (*RSM, error) {
	if len(data) < 6 {
		return nil, ErrTruncatedRSMData
	}
	if string(data[:4]) != "GRSM" {
		return nil, ErrInvalidRSMMagic
	}

	rsm := &RSM{
		Version: RSMVersion{Major: data[4], Minor: data[5]},
	}
	if rsm.Version.Major != 1 || rsm.Version.Minor < 1 || rsm.Version.Minor > 5 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedRSMVersion, rsm.Version)
	}

	r := &rsmReader{r: bytes.NewReader(data[6:])}
	r.read(&rsm.AnimLength)
	r.read(&rsm.Shading)

	rsm.Alpha = 1
	if rsm.Version.AtLeast(1, 4) {
		var alpha uint8
		r.read(&alpha)
		rsm.Alpha = float32(alpha) / 255
	}
	r.skip(16) // reserved

	rsm.Textures = make([]string, r.count("textures", rsmMaxTextures))
	for i := range rsm.Textures {
		rsm.Textures[i] = r.name()
	}
	rsm.RootNode = r.name()

	var nodeCount int32
	r.read(&nodeCount)
	if r.err != nil {
		return nil, r.err
	}
	if nodeCount < 0 || nodeCount > rsmMaxNodes {
		return nil, fmt.Errorf("%w: %d", ErrInvalidNodeCount, nodeCount)
	}

	rsm.Nodes = make([]RSMNode, nodeCount)
	for i := range rsm.Nodes {
		readRSMNode(r, rsm.Version, &rsm.Nodes[i])
		if r.err != nil {
			return nil, fmt.Errorf("parsing node %d: %w", i, r.err)
		}
	}

	if rsm.Version.Minor < 5 && r.err == nil && r.r.Len() >= 4 {
		// model-level position keyframes
		n := r.count("position keyframes", rsmMaxKeyframes)
		r.skip(int64(n) * 16)
	}

	// Volume boxes are optional trailing data.
	if r.err == nil && r.r.Len() >= 4 {
		rsm.VolumeBoxes = make([]RSMVolumeBox, r.count("volume boxes", rsmMaxElements))
		for i := range rsm.VolumeBoxes {
			box := &rsm.VolumeBoxes[i]
			r.read(&box.Size)
			r.read(&box.Position)
			r.read(&box.Rotation)
			if rsm.Version.AtLeast(1, 3) {
				r.read(&box.Flag)
			}
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	return rsm, nil
}

func readRSMNode(r *rsmReader, version RSMVersion, node *RSMNode) {
	node.Name = r.name()
	node.Parent = r.name()

	node.TextureIDs = make([]int32, r.count("texture ids", rsmMaxTextures))
	r.read(node.TextureIDs)

	r.read(&node.Matrix)
	r.read(&node.Offset)
	r.read(&node.Position)
	r.read(&node.RotAngle)
	r.read(&node.RotAxis)
	r.read(&node.Scale)

	node.Vertices = make([][3]float32, r.count("vertices", rsmMaxElements))
	r.read(node.Vertices)

	node.TexCoords = make([]RSMTexCoord, r.count("texcoords", rsmMaxElements))
	for i := range node.TexCoords {
		tc := &node.TexCoords[i]
		if version.AtLeast(1, 2) {
			r.read(&tc.Color)
		} else {
			tc.Color = [4]uint8{255, 255, 255, 255}
		}
		r.read(&tc.U)
		r.read(&tc.V)
	}

	node.Faces = make([]RSMFace, r.count("faces", rsmMaxElements))
	for i := range node.Faces {
		face := &node.Faces[i]
		r.read(&face.VertexIDs)
		r.read(&face.TexCoordIDs)
		r.read(&face.TextureID)
		r.skip(2) // padding
		r.read(&face.TwoSide)
		if version.AtLeast(1, 2) {
			r.read(&face.SmoothGroup)
		}
	}

	if !version.AtLeast(1, 5) {
		node.PosKeys = make([]RSMPosKeyframe, r.count("position keyframes", rsmMaxKeyframes))
		for i := range node.PosKeys {
			r.read(&node.PosKeys[i].Frame)
			r.read(&node.PosKeys[i].Position)
		}
	}

	node.RotKeys = make([]RSMRotKeyframe, r.count("rotation keyframes", rsmMaxKeyframes))
	for i := range node.RotKeys {
		r.read(&node.RotKeys[i].Frame)
		r.read(&node.RotKeys[i].Quaternion)
	}
}

// ParseRSMFile parses an RSM file from disk.
func ParseRSMFile(path string) (*RSM, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading RSM file: %w", err)
	}
	return ParseRSM(data)
}

// TotalVertexCount returns the number of vertices across all nodes.
func (rsm *RSM) TotalVertexCount() int {
	total := 0
	for _, node := range rsm.Nodes {
		total += len(node.Vertices)
	}
	return total
}

// TotalFaceCount returns the number of faces across all nodes.
func (rsm *RSM) TotalFaceCount() int {
	total := 0
	for _, node := range rsm.Nodes {
		total += len(node.Faces)
	}
	return total
}

// NodeByName returns a node by its name, or nil if not found.
func (rsm *RSM) NodeByName(name string) *RSMNode {
	for i := range rsm.Nodes {
		if rsm.Nodes[i].Name == name {
			return &rsm.Nodes[i]
		}
	}
	return nil
}

// HasAnimation returns true if any node carries keyframes.
func (rsm *RSM) HasAnimation() bool {
	for _, node := range rsm.Nodes {
		if len(node.PosKeys) > 0 || len(node.RotKeys) > 0 {
			return true
		}
	}
	return false
}

// OrderedNodes returns the nodes sorted so that every parent precedes its
// children. Nodes whose parent is missing, or that are part of a cycle, are
// treated as roots. A node naming itself as parent is a root.
func (rsm *RSM) OrderedNodes() []*RSMNode {
	byName := make(map[string]int, len(rsm.Nodes))
	for i, n := range rsm.Nodes {
		if _, dup := byName[n.Name]; !dup {
			byName[n.Name] = i
		}
	}
	children := make(map[int][]int)
	var roots []int
	for i, n := range rsm.Nodes {
		p, ok := byName[n.Parent]
		if !ok || p == i || n.Parent == "" {
			roots = append(roots, i)
			continue
		}
		children[p] = append(children[p], i)
	}

	out := make([]*RSMNode, 0, len(rsm.Nodes))
	visited := make([]bool, len(rsm.Nodes))
	var visit func(int)
	visit = func(i int) {
		if visited[i] {
			return
		}
		visited[i] = true
		out = append(out, &rsm.Nodes[i])
		for _, c := range children[i] {
			visit(c)
		}
	}
	for _, i := range roots {
		visit(i)
	}
	// cycles
	for i := range rsm.Nodes {
		visit(i)
	}
	return out
}
