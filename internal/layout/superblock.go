package layout

// SuperBlockSize is the number of bytes the super block actually uses
// within block 0.
const SuperBlockSize = 20

// SuperBlock is the fixed 20-byte record stored at block 0: total and
// free counts for inodes and blocks, plus the root inode's index.
type SuperBlock struct {
	TotalInode int
	TotalBlock int
	FreeInode  int
	FreeBlock  int
	RootInode  int
}

// MarshalBinary packs the super block into a BlockSize buffer. Bytes
// past SuperBlockSize are zeroed.
func (s *SuperBlock) MarshalBinary() []byte {
	buf := make([]byte, BlockSize)
	byteOrder.PutUint32(buf[0:4], uint32(s.TotalInode))
	byteOrder.PutUint32(buf[4:8], uint32(s.TotalBlock))
	byteOrder.PutUint32(buf[8:12], uint32(s.FreeInode))
	byteOrder.PutUint32(buf[12:16], uint32(s.FreeBlock))
	byteOrder.PutUint32(buf[16:20], uint32(s.RootInode))
	return buf
}

// UnmarshalBinary reads a super block back out of a BlockSize buffer.
func (s *SuperBlock) UnmarshalBinary(buf []byte) {
	s.TotalInode = int(byteOrder.Uint32(buf[0:4]))
	s.TotalBlock = int(byteOrder.Uint32(buf[4:8]))
	s.FreeInode = int(byteOrder.Uint32(buf[8:12]))
	s.FreeBlock = int(byteOrder.Uint32(buf[12:16]))
	s.RootInode = int(byteOrder.Uint32(buf[16:20]))
}
