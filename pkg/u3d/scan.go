package u3d

import (
	"encoding/binary"
	"fmt"
)

// BlockInfo describes one block found by ScanBlocks.
type BlockInfo struct {
	Type         BlockType
	Offset       int
	DataSize     int
	MetaDataSize int
	Size         int
	Data         []byte
	MetaData     []byte
}

// ScanBlocks splits a stream into its top-level blocks. Only the framing is
// interpreted; block contents are returned as raw bytes.
func ScanBlocks(stream []byte) ([]BlockInfo, error) {
	if len(stream)%4 != 0 {
		return nil, ErrMisalignedStream
	}
	var blocks []BlockInfo
	for off := 0; off < len(stream); {
		info, err := scanBlock(stream, off)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, info)
		off += info.Size
	}
	return blocks, nil
}

func scanBlock(stream []byte, off int) (BlockInfo, error) {
	if len(stream)-off < blockHeaderSize {
		return BlockInfo{}, fmt.Errorf("%w: header at offset %d", ErrTruncatedBlock, off)
	}
	info := BlockInfo{
		Type:         BlockType(binary.LittleEndian.Uint32(stream[off:])),
		Offset:       off,
		DataSize:     int(binary.LittleEndian.Uint32(stream[off+4:])),
		MetaDataSize: int(binary.LittleEndian.Uint32(stream[off+8:])),
	}
	info.Size = blockHeaderSize + align4(info.DataSize) + align4(info.MetaDataSize)
	if info.Size > len(stream)-off {
		return BlockInfo{}, fmt.Errorf("%w: %s at offset %d needs %d bytes, %d remain",
			ErrTruncatedBlock, info.Type, off, info.Size, len(stream)-off)
	}
	dataStart := off + blockHeaderSize
	metaStart := dataStart + align4(info.DataSize)
	info.Data = stream[dataStart : dataStart+info.DataSize]
	info.MetaData = stream[metaStart : metaStart+info.MetaDataSize]
	return info, nil
}

// ChildBlocks returns the modifiers wrapped by a ModifierChain block.
func ChildBlocks(chain BlockInfo) (name string, children []BlockInfo, err error) {
	if chain.Type != BlockModifierChain {
		return "", nil, fmt.Errorf("u3d: %s is not a modifier chain", chain.Type)
	}
	data := chain.Data
	if len(data) < 2 {
		return "", nil, ErrTruncatedBlock
	}
	n := int(binary.LittleEndian.Uint16(data))
	// name, chain type, attributes, padding, modifier count
	off := align4(2 + n + 8)
	if len(data) < off+4 {
		return "", nil, ErrTruncatedBlock
	}
	name = string(data[2 : 2+n])
	count := int(binary.LittleEndian.Uint32(data[off:]))
	rest := data[off+4:]
	for i := 0; i < count; i++ {
		if len(rest)%4 != 0 {
			return "", nil, ErrMisalignedStream
		}
		child, err := scanBlock(rest, 0)
		if err != nil {
			return "", nil, err
		}
		children = append(children, child)
		rest = rest[child.Size:]
	}
	return name, children, nil
}
