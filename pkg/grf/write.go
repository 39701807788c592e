package grf

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"github.com/Faultbox/u3dkit/pkg/encoding"
)

// File is one archive member for Write.
type File struct {
	Name string // slash or backslash separated
	Data []byte
}

// Write writes files as a version 0x200 archive with zlib-compressed
// entries. Names are stored with backslash separators and EUC-KR encoded.
func Write(w io.Writer, files []File) error {
	var body, table bytes.Buffer
	le := func(b *bytes.Buffer, v any) { binary.Write(b, binary.LittleEndian, v) }

	for _, f := range files {
		compressed, err := deflate(f.Data)
		if err != nil {
			return fmt.Errorf("compressing %s: %w", f.Name, err)
		}
		if len(compressed) == len(f.Data) {
			// equal sizes mark a stored entry
			compressed = f.Data
		}
		aligned := (len(compressed) + 7) &^ 7
		offset := uint32(body.Len())
		body.Write(compressed)
		body.Write(make([]byte, aligned-len(compressed)))

		table.Write(encoding.UTF8ToEUCKR(strings.ReplaceAll(f.Name, "/", `\`)))
		table.WriteByte(0)
		le(&table, uint32(len(compressed)))
		le(&table, uint32(aligned))
		le(&table, uint32(len(f.Data)))
		table.WriteByte(flagFile)
		le(&table, offset)
	}

	compressedTable, err := deflate(table.Bytes())
	if err != nil {
		return fmt.Errorf("compressing file table: %w", err)
	}

	var out bytes.Buffer
	header := Header{
		TableOffset: uint32(body.Len()),
		FileCount:   uint32(len(files)) + 7,
		Version:     grfVersion,
	}
	copy(header.Magic[:], grfMagic)
	le(&out, header)
	out.Write(body.Bytes())
	le(&out, uint32(len(compressedTable)))
	le(&out, uint32(table.Len()))
	out.Write(compressedTable)

	if _, err := w.Write(out.Bytes()); err != nil {
		return fmt.Errorf("writing GRF: %w", err)
	}
	return nil
}

func deflate(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
