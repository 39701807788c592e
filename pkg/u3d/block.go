// Package u3d builds 3D scene documents and encodes them as ECMA-363
// Universal 3D block streams, the format embedded by 3D annotations in PDF.
package u3d

import (
	"encoding/binary"
	"fmt"
)

// BlockType is the 32-bit tag identifying a block's layout.
type BlockType uint32

// Block types emitted by the encoder (ECMA-363, section 9).
const (
	BlockHeader              BlockType = 0x00443355
	BlockModifierChain       BlockType = 0xFFFFFF14
	BlockGroupNode           BlockType = 0xFFFFFF21
	BlockModelNode           BlockType = 0xFFFFFF22
	BlockLightNode           BlockType = 0xFFFFFF23
	BlockViewNode            BlockType = 0xFFFFFF24
	BlockMeshDeclaration     BlockType = 0xFFFFFF31
	BlockMeshContinuation    BlockType = 0xFFFFFF3B
	BlockShadingModifier     BlockType = 0xFFFFFF45
	BlockLitTextureShader    BlockType = 0xFFFFFF53
	BlockMaterialResource    BlockType = 0xFFFFFF54
	BlockTextureDeclaration  BlockType = 0xFFFFFF55
	BlockTextureContinuation BlockType = 0xFFFFFF5C
)

// String returns a human-readable block type name.
func (t BlockType) String() string {
	switch t {
	case BlockHeader:
		return "Header"
	case BlockModifierChain:
		return "ModifierChain"
	case BlockGroupNode:
		return "GroupNode"
	case BlockModelNode:
		return "ModelNode"
	case BlockLightNode:
		return "LightNode"
	case BlockViewNode:
		return "ViewNode"
	case BlockMeshDeclaration:
		return "MeshDeclaration"
	case BlockMeshContinuation:
		return "MeshContinuation"
	case BlockShadingModifier:
		return "ShadingModifier"
	case BlockLitTextureShader:
		return "LitTextureShader"
	case BlockMaterialResource:
		return "MaterialResource"
	case BlockTextureDeclaration:
		return "TextureDeclaration"
	case BlockTextureContinuation:
		return "TextureContinuation"
	default:
		return fmt.Sprintf("Unknown(0x%08X)", uint32(t))
	}
}

// blockHeaderSize is type + data size + metadata size.
const blockHeaderSize = 12

// Block is a framed unit of a U3D stream. Blocks are produced by
// BlockWriter.GetBlock and must not be modified afterwards.
type Block struct {
	Type     BlockType
	Data     []byte
	MetaData []byte
}

// Size returns the number of bytes Bytes produces, padding included.
func (b Block) Size() int {
	return blockHeaderSize + align4(len(b.Data)) + align4(len(b.MetaData))
}

// Bytes returns the wire form of the block: type, data size, metadata
// size, data, zero padding to 4, metadata, zero padding to 4.
func (b Block) Bytes() []byte {
	out := make([]byte, b.Size())
	binary.LittleEndian.PutUint32(out[0:], uint32(b.Type))
	binary.LittleEndian.PutUint32(out[4:], uint32(len(b.Data)))
	binary.LittleEndian.PutUint32(out[8:], uint32(len(b.MetaData)))
	copy(out[blockHeaderSize:], b.Data)
	copy(out[blockHeaderSize+align4(len(b.Data)):], b.MetaData)
	return out
}

// align4 rounds n up to a multiple of 4.
func align4(n int) int {
	return (n + 3) &^ 3
}
