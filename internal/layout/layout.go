// Package layout packs and unpacks the fixed-width on-disk records
// described in the file system's design: the super block, the two
// bitmaps, the inode, and the plain data/indirect block. Records are
// either packed and unpacked field by field at explicit little-endian
// offsets (SuperBlock, Inode) or viewed in place as a byte slice
// (Bitmap, IndirectBlock, DirPayload), never a Go struct aliased over
// the wire bytes, so the contract is immune to compiler padding and
// host endianness.
package layout

import "encoding/binary"

// BlockSize is the fixed size, in bytes, of every block on the disk.
const BlockSize = 256

// InodesPerBlock is the number of 64-byte inode records packed into
// one data block.
const InodesPerBlock = BlockSize / InodeSize

// PointersPerBlock is the fan-out of an indirect block: 256 bytes of
// little-endian uint16 child pointers.
const PointersPerBlock = BlockSize / 2

// Fixed linear block numbers for the three singleton structures.
const (
	SuperBlockNum   = 0
	InodeBitmapNum  = 1
	BlockBitmapNum  = 2
	FirstInodeBlock = 3
)

// Geometry holds the logical sizing limits derived from the disk's
// raw block count, per the formula: INODE_NUM = 1024 when the disk
// has at least 3600 blocks, else totalBlocks/3 - 2; BLOCK_NUM is
// always 2*INODE_NUM.
type Geometry struct {
	TotalBlocks int
	InodeNum    int
	BlockNum    int
}

// NewGeometry derives a Geometry from a disk's total linear block
// count.
func NewGeometry(totalBlocks int) Geometry {
	g := Geometry{TotalBlocks: totalBlocks}
	if totalBlocks >= 3600 {
		g.InodeNum = 1024
	} else {
		g.InodeNum = totalBlocks/3 - 2
	}
	g.BlockNum = 2 * g.InodeNum
	return g
}

// MinDiskBlocks is the minimum number of physical blocks the
// underlying disk must provide to host this geometry.
func (g Geometry) MinDiskBlocks() int {
	return FirstInodeBlock + g.InodeBlocks() + g.BlockNum
}

// InodeBlocks is the number of blocks occupied by the inode table.
func (g Geometry) InodeBlocks() int {
	return (g.InodeNum + InodesPerBlock - 1) / InodesPerBlock
}

// InodeBlockNum returns the linear block number holding inode i, and
// the byte offset of that inode's 64-byte record within the block.
func (g Geometry) InodeBlockNum(i int) (block int, offset int) {
	return FirstInodeBlock + i/InodesPerBlock, (i % InodesPerBlock) * InodeSize
}

// DataBlockNum maps a physical data/indirect block index k (an index
// into the region following the inode table) to its linear block
// number.
func (g Geometry) DataBlockNum(k int) int {
	return FirstInodeBlock + g.InodeBlocks() + k
}

var byteOrder = binary.LittleEndian
