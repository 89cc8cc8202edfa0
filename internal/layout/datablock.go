package layout

// IndirectBlock views a 256-byte data block as 128 little-endian
// 16-bit child pointers, the shape it takes when used as a single,
// double, or triple indirect block.
type IndirectBlock struct {
	buf []byte
}

// NewIndirectBlock wraps a BlockSize buffer in place.
func NewIndirectBlock(buf []byte) *IndirectBlock {
	return &IndirectBlock{buf: buf}
}

// Get returns the child pointer stored at index i.
func (b *IndirectBlock) Get(i int) int {
	return int(byteOrder.Uint16(b.buf[i*2 : i*2+2]))
}

// Set stores child pointer v at index i.
func (b *IndirectBlock) Set(i int, v int) {
	byteOrder.PutUint16(b.buf[i*2:i*2+2], uint16(v))
}

// Bytes returns the backing buffer.
func (b *IndirectBlock) Bytes() []byte {
	return b.buf
}

// DirPayload views a directory's data as a packed array of 16-bit
// child inode indices, the exact bytes that back a directory's
// regular-file body.
type DirPayload struct {
	buf []byte
}

// NewDirPayload wraps an arbitrary-length byte slice (a directory's
// full captured content) as a sequence of child inode indices.
func NewDirPayload(buf []byte) *DirPayload {
	return &DirPayload{buf: buf}
}

// Len returns the number of 2-byte child-index entries.
func (d *DirPayload) Len() int {
	return len(d.buf) / 2
}

// Get returns the child inode index at entry i.
func (d *DirPayload) Get(i int) int {
	return int(byteOrder.Uint16(d.buf[i*2 : i*2+2]))
}

// EncodeChildIndex renders a single child inode index as its 2-byte
// little-endian wire form, the payload appended when a directory gains
// a new entry.
func EncodeChildIndex(v int) []byte {
	buf := make([]byte, 2)
	byteOrder.PutUint16(buf, uint16(v))
	return buf
}
