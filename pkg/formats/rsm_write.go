package formats

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/Faultbox/u3dkit/pkg/encoding"
)

// WriteRSM writes rsm in the layout ParseRSM reads for rsm.Version.
// Names are encoded as EUC-KR and truncated to fit their 40-byte fields.
func WriteRSM(w io.Writer, rsm *RSM) error {
	v := rsm.Version
	if v.Major != 1 || v.Minor < 1 || v.Minor > 5 {
		return fmt.Errorf("%w: %s", ErrUnsupportedRSMVersion, v)
	}

	var buf bytes.Buffer
	le := func(data any) { binary.Write(&buf, binary.LittleEndian, data) }
	name := func(s string) { buf.Write(encoding.UTF8ToFixedString(s, rsmNameSize)) }

	buf.WriteString("GRSM")
	buf.WriteByte(v.Major)
	buf.WriteByte(v.Minor)
	le(rsm.AnimLength)
	le(rsm.Shading)
	if v.AtLeast(1, 4) {
		buf.WriteByte(uint8(rsm.Alpha*255 + 0.5))
	}
	buf.Write(make([]byte, 16)) // reserved

	le(int32(len(rsm.Textures)))
	for _, t := range rsm.Textures {
		name(t)
	}
	name(rsm.RootNode)

	le(int32(len(rsm.Nodes)))
	for i := range rsm.Nodes {
		n := &rsm.Nodes[i]
		name(n.Name)
		name(n.Parent)
		le(int32(len(n.TextureIDs)))
		le(n.TextureIDs)
		le(n.Matrix)
		le(n.Offset)
		le(n.Position)
		le(n.RotAngle)
		le(n.RotAxis)
		le(n.Scale)

		le(int32(len(n.Vertices)))
		le(n.Vertices)

		le(int32(len(n.TexCoords)))
		for _, tc := range n.TexCoords {
			if v.AtLeast(1, 2) {
				le(tc.Color)
			}
			le(tc.U)
			le(tc.V)
		}

		le(int32(len(n.Faces)))
		for _, f := range n.Faces {
			le(f.VertexIDs)
			le(f.TexCoordIDs)
			le(f.TextureID)
			le(uint16(0)) // padding
			le(f.TwoSide)
			if v.AtLeast(1, 2) {
				le(f.SmoothGroup)
			}
		}

		if !v.AtLeast(1, 5) {
			le(int32(len(n.PosKeys)))
			le(n.PosKeys)
		}
		le(int32(len(n.RotKeys)))
		le(n.RotKeys)
	}

	if !v.AtLeast(1, 5) {
		le(int32(0)) // model-level position keyframes
	}
	le(int32(len(rsm.VolumeBoxes)))
	for _, box := range rsm.VolumeBoxes {
		le(box.Size)
		le(box.Position)
		le(box.Rotation)
		if v.AtLeast(1, 3) {
			le(box.Flag)
		}
	}

	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("writing RSM: %w", err)
	}
	return nil
}
