package layout

import (
	"bytes"
	"time"
)

// InodeSize is the fixed size, in bytes, of one inode record.
const InodeSize = 64

// NameSize is the width of the NUL-padded name field.
const NameSize = 16

// DirectPointers is the number of direct data-block pointers an inode
// carries before indirection is needed.
const DirectPointers = 8

// Inode is the in-memory form of the 64-byte on-disk inode record.
type Inode struct {
	Info        Info
	Name        string
	SizeFile    int
	TimeAccess  time.Time
	TimeModify  time.Time
	TimeChange  time.Time
	NumBlock    int
	NumLink     int
	Parent      int
	Direct      [DirectPointers]int
	Single      int
	Double      int
	Triple      int
}

// MarshalBinary packs the inode into a 64-byte record.
func (n *Inode) MarshalBinary() []byte {
	buf := make([]byte, InodeSize)

	byteOrder.PutUint32(buf[0:4], uint32(n.Info))
	copy(buf[4:4+NameSize], encodeName(n.Name))
	byteOrder.PutUint32(buf[20:24], uint32(n.SizeFile))
	byteOrder.PutUint32(buf[24:28], PackTime(n.TimeAccess))
	byteOrder.PutUint32(buf[28:32], PackTime(n.TimeModify))
	byteOrder.PutUint32(buf[32:36], PackTime(n.TimeChange))
	byteOrder.PutUint16(buf[36:38], uint16(n.NumBlock))
	byteOrder.PutUint16(buf[38:40], uint16(n.NumLink))
	byteOrder.PutUint16(buf[40:42], uint16(n.Parent))

	off := 42
	for i := 0; i < DirectPointers; i++ {
		byteOrder.PutUint16(buf[off:off+2], uint16(n.Direct[i]))
		off += 2
	}
	byteOrder.PutUint16(buf[off:off+2], uint16(n.Single))
	byteOrder.PutUint16(buf[off+2:off+4], uint16(n.Double))
	byteOrder.PutUint16(buf[off+4:off+6], uint16(n.Triple))

	return buf
}

// UnmarshalBinary reads a 64-byte record back into the inode.
func (n *Inode) UnmarshalBinary(buf []byte) {
	n.Info = Info(byteOrder.Uint32(buf[0:4]))
	n.Name = decodeName(buf[4 : 4+NameSize])
	n.SizeFile = int(byteOrder.Uint32(buf[20:24]))
	n.TimeAccess = UnpackTime(byteOrder.Uint32(buf[24:28]))
	n.TimeModify = UnpackTime(byteOrder.Uint32(buf[28:32]))
	n.TimeChange = UnpackTime(byteOrder.Uint32(buf[32:36]))
	n.NumBlock = int(byteOrder.Uint16(buf[36:38]))
	n.NumLink = int(byteOrder.Uint16(buf[38:40]))
	n.Parent = int(byteOrder.Uint16(buf[40:42]))

	off := 42
	for i := 0; i < DirectPointers; i++ {
		n.Direct[i] = int(byteOrder.Uint16(buf[off : off+2]))
		off += 2
	}
	n.Single = int(byteOrder.Uint16(buf[off : off+2]))
	n.Double = int(byteOrder.Uint16(buf[off+2 : off+4]))
	n.Triple = int(byteOrder.Uint16(buf[off+4 : off+6]))
}

// encodeName truncates/pads a name to the fixed NameSize, NUL-padded.
func encodeName(name string) []byte {
	buf := make([]byte, NameSize)
	n := copy(buf, name)
	_ = n
	return buf
}

// decodeName trims a fixed-width name field at its first NUL.
func decodeName(buf []byte) string {
	if i := bytes.IndexByte(buf, 0); i >= 0 {
		buf = buf[:i]
	}
	return string(buf)
}
