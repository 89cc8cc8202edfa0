// Package inode is the inode engine (C5): it creates, mutates, reads,
// truncates, and destroys inodes on top of the block store facade and
// the address translator, maintaining the three packed timestamps as
// it goes.
package inode

import (
	"time"

	"github.com/pkg/errors"

	"github.com/zzzhr97/inodefs/internal/addr"
	"github.com/zzzhr97/inodefs/internal/alloc"
	"github.com/zzzhr97/inodefs/internal/blockstore"
	"github.com/zzzhr97/inodefs/internal/layout"
)

// Engine bundles the collaborators every operation needs.
type Engine struct {
	fs *blockstore.Facade
	al *alloc.Allocator
}

// New builds an Engine over fs and al.
func New(fs *blockstore.Facade, al *alloc.Allocator) *Engine {
	return &Engine{fs: fs, al: al}
}

// scope selects how far up the parent chain touch propagates.
type scope int

const (
	scopeSelf scope = iota
	scopeSelfAndAncestors
)

// field is one of the three packed timestamps.
type field int

const (
	fieldAccess field = 1 << iota
	fieldModify
	fieldChange
)

// touch stamps the given fields of inode i with now, and — when sc is
// scopeSelfAndAncestors — walks i's parent chain doing the same,
// stopping once inode 0 (the root, which is its own parent) has been
// stamped, or after total_inode steps as a defensive bound against a
// corrupt cycle.
func (e *Engine) touch(i int, sc scope, fields field) error {
	limit := e.fs.Geometry().InodeNum + 1
	for step := 0; step < limit; step++ {
		n, err := e.fs.ReadInode(i)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		if fields&fieldAccess != 0 {
			n.TimeAccess = now
		}
		if fields&fieldModify != 0 {
			n.TimeModify = now
		}
		if fields&fieldChange != 0 {
			n.TimeChange = now
		}
		if err := e.fs.WriteInode(i, n); err != nil {
			return err
		}
		if sc == scopeSelf || i == 0 {
			return nil
		}
		i = n.Parent
	}
	return errors.New("inode: parent chain did not terminate at root")
}

// Build initializes a freshly allocated inode i, setting its
// modify/change times to now and bumping access/modify up the parent
// chain (the "create child" timestamp combination of the design).
func (e *Engine) Build(i int, info layout.Info, name string, size, nblk, nlink, parent int) error {
	n := &layout.Inode{
		Info:     info,
		Name:     name,
		SizeFile: size,
		NumBlock: nblk,
		NumLink:  nlink,
		Parent:   parent,
	}
	now := time.Now().UTC()
	n.TimeModify = now
	n.TimeChange = now
	n.TimeAccess = now
	if err := e.fs.WriteInode(i, n); err != nil {
		return err
	}
	if parent != i {
		if err := e.touch(parent, scopeSelfAndAncestors, fieldAccess|fieldModify); err != nil {
			return err
		}
	}
	return nil
}

// WriteRange overwrites len(data) bytes of inode i starting at pos,
// extending the file (growing its block allocation) as needed.
func (e *Engine) WriteRange(i int, pos int, data []byte) error {
	n, err := e.fs.ReadInode(i)
	if err != nil {
		return err
	}

	newSize := n.SizeFile
	if end := pos + len(data); end > newSize {
		newSize = end
	}
	wantBlocks := ceilDiv(newSize, layout.BlockSize)
	if wantBlocks > n.NumBlock {
		if err := addr.Grow(e.fs, e.al, n, wantBlocks-n.NumBlock); err != nil {
			return err
		}
	}
	n.SizeFile = newSize

	if err := writeAt(e.fs, n, pos, data); err != nil {
		return err
	}

	if err := e.fs.WriteInode(i, n); err != nil {
		return err
	}
	return e.touch(i, scopeSelfAndAncestors, fieldAccess|fieldModify|fieldChange)
}

// writeAt walks the virtual blocks covering [pos, pos+len(data)),
// writing the first block partially from offset pos%256 and every
// subsequent block from offset 0 until data is exhausted.
func writeAt(fs *blockstore.Facade, n *layout.Inode, pos int, data []byte) error {
	v := pos / layout.BlockSize
	off := pos % layout.BlockSize
	for len(data) > 0 {
		blk, err := addr.Physical(fs, n, v)
		if err != nil {
			return err
		}
		buf, err := fs.ReadDataBlock(blk)
		if err != nil {
			return err
		}
		n := copy(buf[off:], data)
		if err := fs.WriteDataBlock(blk, buf); err != nil {
			return err
		}
		data = data[n:]
		off = 0
		v++
	}
	return nil
}

// readRangeBytes reads numBlocks whole blocks of inode n's data region
// starting at virtual block startBlock; an unpopulated slot reads as
// zeros. Callers trim to the exact byte range afterward.
func readRangeBytes(fs *blockstore.Facade, n *layout.Inode, startBlock, numBlocks int) ([]byte, error) {
	out := make([]byte, 0, numBlocks*layout.BlockSize)
	for v := startBlock; v < startBlock+numBlocks; v++ {
		blk, err := addr.Physical(fs, n, v)
		if err != nil {
			return nil, err
		}
		if blk == 0 {
			out = append(out, make([]byte, layout.BlockSize)...)
			continue
		}
		buf, err := fs.ReadDataBlock(blk)
		if err != nil {
			return nil, err
		}
		out = append(out, buf...)
	}
	return out, nil
}

// InsertRange inserts len(data) bytes into inode i at pos, shifting
// the existing tail right. Implemented as the design's capture-free-
// reinsert dance: capture the tail starting at block pos/256, free
// those blocks, assemble (pre-bytes + data + captured tail), then
// regrow and rewrite from block pos/256 onward.
func (e *Engine) InsertRange(i int, pos int, data []byte) error {
	n, err := e.fs.ReadInode(i)
	if err != nil {
		return err
	}
	if pos > n.SizeFile {
		pos = n.SizeFile
	}

	startBlock := pos / layout.BlockSize
	preLen := pos % layout.BlockSize
	tailBlocks := n.NumBlock - startBlock

	var tail []byte
	if tailBlocks > 0 {
		tail, err = readRangeBytes(e.fs, n, startBlock, tailBlocks)
		if err != nil {
			return err
		}
		tail = tail[:n.SizeFile-startBlock*layout.BlockSize]
	}

	if tailBlocks > 0 {
		if _, err := addr.ShrinkRange(e.fs, e.al, n, startBlock, tailBlocks, false); err != nil {
			return err
		}
	}

	overlay := make([]byte, 0, preLen+len(data)+len(tail))
	overlay = append(overlay, tail[:preLen]...)
	overlay = append(overlay, data...)
	overlay = append(overlay, tail[preLen:]...)

	newSize := n.SizeFile + len(data)
	wantBlocks := ceilDiv(newSize, layout.BlockSize)
	n.NumBlock = startBlock
	if err := addr.Grow(e.fs, e.al, n, wantBlocks-startBlock); err != nil {
		return err
	}
	n.SizeFile = newSize

	if err := writeAt(e.fs, n, startBlock*layout.BlockSize, overlay); err != nil {
		return err
	}

	if err := e.fs.WriteInode(i, n); err != nil {
		return err
	}
	return e.touch(i, scopeSelfAndAncestors, fieldAccess|fieldModify|fieldChange)
}

// DeleteRange removes up to length bytes of inode i starting at pos
// (length is clamped to size-pos), shifting the tail left. Uses the
// same capture-free-reinsert dance as InsertRange.
func (e *Engine) DeleteRange(i int, pos int, length int) error {
	n, err := e.fs.ReadInode(i)
	if err != nil {
		return err
	}
	if pos > n.SizeFile {
		pos = n.SizeFile
	}
	if length > n.SizeFile-pos {
		length = n.SizeFile - pos
	}
	if length <= 0 {
		return e.touch(i, scopeSelfAndAncestors, fieldAccess|fieldModify|fieldChange)
	}

	startBlock := pos / layout.BlockSize
	preLen := pos % layout.BlockSize
	tailBlocks := n.NumBlock - startBlock

	tail, err := readRangeBytes(e.fs, n, startBlock, tailBlocks)
	if err != nil {
		return err
	}
	tail = tail[:n.SizeFile-startBlock*layout.BlockSize]

	if _, err := addr.ShrinkRange(e.fs, e.al, n, startBlock, tailBlocks, false); err != nil {
		return err
	}

	overlay := make([]byte, 0, len(tail)-length)
	overlay = append(overlay, tail[:preLen]...)
	overlay = append(overlay, tail[preLen+length:]...)

	newSize := n.SizeFile - length
	wantBlocks := ceilDiv(newSize, layout.BlockSize)
	n.NumBlock = startBlock
	if wantBlocks > startBlock {
		if err := addr.Grow(e.fs, e.al, n, wantBlocks-startBlock); err != nil {
			return err
		}
	}
	n.SizeFile = newSize

	if len(overlay) > 0 {
		if err := writeAt(e.fs, n, startBlock*layout.BlockSize, overlay); err != nil {
			return err
		}
	}

	if err := e.fs.WriteInode(i, n); err != nil {
		return err
	}
	return e.touch(i, scopeSelfAndAncestors, fieldAccess|fieldModify|fieldChange)
}

// Truncate sets inode i's size to 0, releasing all its data and
// indirect blocks.
func (e *Engine) Truncate(i int) error {
	n, err := e.fs.ReadInode(i)
	if err != nil {
		return err
	}
	if n.NumBlock > 0 {
		if _, err := addr.ShrinkRange(e.fs, e.al, n, 0, n.NumBlock, false); err != nil {
			return err
		}
	}
	n.SizeFile = 0
	n.NumBlock = 0
	if err := e.fs.WriteInode(i, n); err != nil {
		return err
	}
	return e.touch(i, scopeSelfAndAncestors, fieldAccess|fieldModify|fieldChange)
}

// ReadAll captures inode i's entire data region into a buffer of
// num_block*256 bytes (trailing NUL padding preserved; callers trim at
// the first NUL or at size_file as they see fit).
func (e *Engine) ReadAll(i int) ([]byte, error) {
	n, err := e.fs.ReadInode(i)
	if err != nil {
		return nil, err
	}
	out, err := readRangeBytes(e.fs, n, 0, n.NumBlock)
	if err != nil {
		return nil, err
	}
	if err := e.touch(i, scopeSelfAndAncestors, fieldAccess); err != nil {
		return nil, err
	}
	return out, nil
}

// Destroy releases inode i's bit. Precondition: the caller has already
// freed all of i's data/indirect blocks (e.g. via Truncate). Bumps the
// parent chain's access/modify times and i's own change time first.
func (e *Engine) Destroy(i int) error {
	n, err := e.fs.ReadInode(i)
	if err != nil {
		return err
	}
	if n.Parent != i {
		if err := e.touch(n.Parent, scopeSelfAndAncestors, fieldAccess|fieldModify); err != nil {
			return err
		}
	}
	if err := e.touch(i, scopeSelf, fieldChange); err != nil {
		return err
	}
	return e.al.ReleaseInode(i)
}

func ceilDiv(a, b int) int {
	if a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}
