package u3d

import (
	"encoding/binary"
	"math"

	"github.com/Faultbox/u3dkit/pkg/encoding"
)

// maxStringBytes is the largest string a U16 length prefix can describe.
const maxStringBytes = 0xFFFF

// BlockWriter accumulates the data and metadata sections of one block.
// All values are little-endian. A BlockWriter is single-use: after GetBlock
// any further call panics.
type BlockWriter struct {
	charset encoding.Charset
	data    []byte
	meta    []byte
	frozen  bool
}

// NewBlockWriter returns a writer that encodes strings with cs.
func NewBlockWriter(cs encoding.Charset) *BlockWriter {
	return &BlockWriter{charset: cs}
}

// Len returns the current length of the data section.
func (w *BlockWriter) Len() int {
	return len(w.data)
}

func (w *BlockWriter) checkOpen() {
	if w.frozen {
		panic("u3d: write to BlockWriter after GetBlock")
	}
}

// WriteU8 appends a single byte.
func (w *BlockWriter) WriteU8(v uint8) {
	w.checkOpen()
	w.data = append(w.data, v)
}

// WriteU16 appends an unsigned 16-bit integer.
func (w *BlockWriter) WriteU16(v uint16) {
	w.checkOpen()
	w.data = binary.LittleEndian.AppendUint16(w.data, v)
}

// WriteU32 appends an unsigned 32-bit integer.
func (w *BlockWriter) WriteU32(v uint32) {
	w.checkOpen()
	w.data = binary.LittleEndian.AppendUint32(w.data, v)
}

// WriteI32 appends a signed 32-bit integer.
func (w *BlockWriter) WriteI32(v int32) {
	w.WriteU32(uint32(v))
}

// WriteU64 appends an unsigned 64-bit integer.
func (w *BlockWriter) WriteU64(v uint64) {
	w.checkOpen()
	w.data = binary.LittleEndian.AppendUint64(w.data, v)
}

// WriteI64 appends a signed 64-bit integer.
func (w *BlockWriter) WriteI64(v int64) {
	w.WriteU64(uint64(v))
}

// WriteF32 appends an IEEE-754 single precision float.
func (w *BlockWriter) WriteF32(v float32) {
	w.WriteU32(math.Float32bits(v))
}

// WriteArray appends each float in order.
func (w *BlockWriter) WriteArray(values []float32) {
	for _, v := range values {
		w.WriteF32(v)
	}
}

// WriteBytes appends raw bytes.
func (w *BlockWriter) WriteBytes(b []byte) {
	w.checkOpen()
	w.data = append(w.data, b...)
}

// WriteString appends a U16 byte count followed by s in the writer's charset.
func (w *BlockWriter) WriteString(s string) {
	w.checkOpen()
	w.data = appendString(w.data, w.charset, s)
}

// WritePadding appends zero bytes until the data section is 4-byte aligned.
func (w *BlockWriter) WritePadding() {
	w.checkOpen()
	for len(w.data)%4 != 0 {
		w.data = append(w.data, 0)
	}
}

// WriteBlock appends the fully framed bytes of a child block.
func (w *BlockWriter) WriteBlock(b Block) {
	w.checkOpen()
	w.data = append(w.data, b.Bytes()...)
}

// WriteMetaU32 appends an unsigned 32-bit integer to the metadata section.
func (w *BlockWriter) WriteMetaU32(v uint32) {
	w.checkOpen()
	w.meta = binary.LittleEndian.AppendUint32(w.meta, v)
}

// WriteMetaString appends a length-prefixed string to the metadata section.
func (w *BlockWriter) WriteMetaString(s string) {
	w.checkOpen()
	w.meta = appendString(w.meta, w.charset, s)
}

// GetBlock freezes the writer and returns the accumulated block.
func (w *BlockWriter) GetBlock(t BlockType) Block {
	w.checkOpen()
	w.frozen = true
	return Block{Type: t, Data: w.data, MetaData: w.meta}
}

func appendString(buf []byte, cs encoding.Charset, s string) []byte {
	b := cs.Encode(s)
	if len(b) > maxStringBytes {
		panic("u3d: string exceeds 65535 encoded bytes")
	}
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(b)))
	return append(buf, b...)
}
