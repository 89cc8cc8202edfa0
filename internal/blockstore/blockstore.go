// Package blockstore is the typed block store facade (C2): it turns
// the five fixed on-disk structures into typed reads and writes over
// a raw block device, re-issuing a disk operation for every logical
// read or write. It deliberately caches nothing across calls; the
// only "cache" is the scratch buffer a single operation needs, e.g.
// the 4-inode block an inode write must read-modify-write.
package blockstore

import (
	"github.com/pkg/errors"

	"github.com/zzzhr97/inodefs/internal/layout"
)

// ErrExceedCapacity is returned when a logical block index (inode or
// data/indirect) falls outside the geometry's addressable range. It is
// non-fatal: the calling command completes best-effort.
var ErrExceedCapacity = errors.New("blockstore: exceed capacity")

// Device is the raw block transport the facade is built on; it is
// satisfied by *blockproto.Client, and by a fake in tests.
type Device interface {
	ReadRaw(linearBlock int) ([]byte, error)
	WriteRaw(linearBlock int, payload []byte) error
}

// Facade is the typed block store.
type Facade struct {
	dev Device
	geo layout.Geometry
}

// New builds a Facade over dev using the given geometry.
func New(dev Device, geo layout.Geometry) *Facade {
	return &Facade{dev: dev, geo: geo}
}

// Geometry returns the facade's geometry.
func (f *Facade) Geometry() layout.Geometry {
	return f.geo
}

// ReadSuperBlock reads block 0.
func (f *Facade) ReadSuperBlock() (*layout.SuperBlock, error) {
	buf, err := f.dev.ReadRaw(layout.SuperBlockNum)
	if err != nil {
		return nil, err
	}
	sb := &layout.SuperBlock{}
	sb.UnmarshalBinary(buf)
	return sb, nil
}

// WriteSuperBlock writes block 0.
func (f *Facade) WriteSuperBlock(sb *layout.SuperBlock) error {
	return f.dev.WriteRaw(layout.SuperBlockNum, sb.MarshalBinary())
}

// ReadInodeBitmap reads block 1.
func (f *Facade) ReadInodeBitmap() (*layout.Bitmap, error) {
	buf, err := f.dev.ReadRaw(layout.InodeBitmapNum)
	if err != nil {
		return nil, err
	}
	return layout.NewBitmap(buf), nil
}

// WriteInodeBitmap writes block 1.
func (f *Facade) WriteInodeBitmap(bm *layout.Bitmap) error {
	return f.dev.WriteRaw(layout.InodeBitmapNum, bm.Bytes())
}

// ReadBlockBitmap reads block 2.
func (f *Facade) ReadBlockBitmap() (*layout.Bitmap, error) {
	buf, err := f.dev.ReadRaw(layout.BlockBitmapNum)
	if err != nil {
		return nil, err
	}
	return layout.NewBitmap(buf), nil
}

// WriteBlockBitmap writes block 2.
func (f *Facade) WriteBlockBitmap(bm *layout.Bitmap) error {
	return f.dev.WriteRaw(layout.BlockBitmapNum, bm.Bytes())
}

// ReadInode loads inode i, re-reading the whole 4-inode block that
// backs it.
func (f *Facade) ReadInode(i int) (*layout.Inode, error) {
	if i < 0 || i >= f.geo.InodeNum {
		return nil, ErrExceedCapacity
	}
	block, offset := f.geo.InodeBlockNum(i)
	buf, err := f.dev.ReadRaw(block)
	if err != nil {
		return nil, err
	}
	n := &layout.Inode{}
	n.UnmarshalBinary(buf[offset : offset+layout.InodeSize])
	return n, nil
}

// WriteInode stores inode i: the whole 4-inode block is read, the
// target 64 bytes are overwritten in RAM, and the block is rewritten.
func (f *Facade) WriteInode(i int, n *layout.Inode) error {
	if i < 0 || i >= f.geo.InodeNum {
		return ErrExceedCapacity
	}
	block, offset := f.geo.InodeBlockNum(i)
	buf, err := f.dev.ReadRaw(block)
	if err != nil {
		return err
	}
	copy(buf[offset:offset+layout.InodeSize], n.MarshalBinary())
	return f.dev.WriteRaw(block, buf)
}

// ReadDataBlock loads physical data/indirect block k.
func (f *Facade) ReadDataBlock(k int) ([]byte, error) {
	if k < 0 || k >= f.geo.BlockNum {
		return nil, ErrExceedCapacity
	}
	return f.dev.ReadRaw(f.geo.DataBlockNum(k))
}

// WriteDataBlock stores physical data/indirect block k.
func (f *Facade) WriteDataBlock(k int, buf []byte) error {
	if k < 0 || k >= f.geo.BlockNum {
		return ErrExceedCapacity
	}
	if len(buf) != layout.BlockSize {
		return errors.Errorf("blockstore: data block payload must be %d bytes, got %d", layout.BlockSize, len(buf))
	}
	return f.dev.WriteRaw(f.geo.DataBlockNum(k), buf)
}
