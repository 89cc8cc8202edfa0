// Package alloc implements the bit-level inode and block allocator
// (C3): a linear, LSB-first bitmap scan backed by the block store
// facade, with free counters maintained in the super block.
package alloc

import (
	"github.com/pkg/errors"

	"github.com/zzzhr97/inodefs/internal/blockstore"
	"github.com/zzzhr97/inodefs/internal/layout"
)

// ErrNoSpace is returned when a bitmap scan finds no free bit. The
// original program left this case undefined; every caller here must
// propagate it as an explicit logical failure instead of silently
// reusing whatever index the scan happened to land on.
var ErrNoSpace = errors.New("alloc: no free space")

// Allocator allocates and releases inodes and blocks.
type Allocator struct {
	fs *blockstore.Facade
}

// New builds an Allocator over fs.
func New(fs *blockstore.Facade) *Allocator {
	return &Allocator{fs: fs}
}

// AllocateInode scans the inode bitmap for the first clear bit, marks
// it used, decrements the super block's free-inode counter, and
// clears the new inode's access time as a sentinel meaning "not yet
// built" (Build will set real timestamps).
func (a *Allocator) AllocateInode() (int, error) {
	bm, err := a.fs.ReadInodeBitmap()
	if err != nil {
		return 0, err
	}
	geo := a.fs.Geometry()
	idx := bm.FirstClear(geo.InodeNum)
	if idx < 0 {
		return 0, ErrNoSpace
	}
	bm.Set(idx, true)
	if err := a.fs.WriteInodeBitmap(bm); err != nil {
		return 0, err
	}

	sb, err := a.fs.ReadSuperBlock()
	if err != nil {
		return 0, err
	}
	sb.FreeInode--
	if err := a.fs.WriteSuperBlock(sb); err != nil {
		return 0, err
	}

	if err := a.fs.WriteInode(idx, &layout.Inode{}); err != nil {
		return 0, err
	}

	return idx, nil
}

// ReleaseInode clears inode i's bitmap bit and bumps the free counter.
func (a *Allocator) ReleaseInode(i int) error {
	bm, err := a.fs.ReadInodeBitmap()
	if err != nil {
		return err
	}
	bm.Set(i, false)
	if err := a.fs.WriteInodeBitmap(bm); err != nil {
		return err
	}

	sb, err := a.fs.ReadSuperBlock()
	if err != nil {
		return err
	}
	sb.FreeInode++
	return a.fs.WriteSuperBlock(sb)
}

// AllocateBlock scans the block bitmap for the first clear bit, marks
// it used, zero-fills the block, and decrements the free-block
// counter.
func (a *Allocator) AllocateBlock() (int, error) {
	bm, err := a.fs.ReadBlockBitmap()
	if err != nil {
		return 0, err
	}
	geo := a.fs.Geometry()
	idx := bm.FirstClear(geo.BlockNum)
	if idx < 0 {
		return 0, ErrNoSpace
	}
	bm.Set(idx, true)
	if err := a.fs.WriteBlockBitmap(bm); err != nil {
		return 0, err
	}

	sb, err := a.fs.ReadSuperBlock()
	if err != nil {
		return 0, err
	}
	sb.FreeBlock--
	if err := a.fs.WriteSuperBlock(sb); err != nil {
		return 0, err
	}

	if err := a.fs.WriteDataBlock(idx, make([]byte, layout.BlockSize)); err != nil {
		return 0, err
	}

	return idx, nil
}

// ReleaseBlock clears block k's bitmap bit and bumps the free counter.
func (a *Allocator) ReleaseBlock(k int) error {
	bm, err := a.fs.ReadBlockBitmap()
	if err != nil {
		return err
	}
	bm.Set(k, false)
	if err := a.fs.WriteBlockBitmap(bm); err != nil {
		return err
	}

	sb, err := a.fs.ReadSuperBlock()
	if err != nil {
		return err
	}
	sb.FreeBlock++
	return a.fs.WriteSuperBlock(sb)
}
