// Package addr is the address translator (C4): it maps a file's
// virtual block number to a physical data block through the
// direct/single/double/triple indirection tree, growing or shrinking
// that tree on demand.
//
// Pointer value 0 is reserved to mean "no block allocated yet" at
// every level (direct slot, single/double/triple root, and every
// indirect-block entry). Physical data block 0 is therefore never
// handed out by the allocator for file content; the format operation
// reserves it up front so this convention never collides with a real
// block index. This resolves, by construction, the ambiguity a literal
// reading of the design would otherwise have between "slot holds
// block 0" and "slot was never populated".
package addr

import (
	"github.com/pkg/errors"

	"github.com/zzzhr97/inodefs/internal/alloc"
	"github.com/zzzhr97/inodefs/internal/blockstore"
	"github.com/zzzhr97/inodefs/internal/layout"
)

const (
	// fan-out of one indirect block
	fanOut = layout.PointersPerBlock // 128

	directCount = layout.DirectPointers // 8
	singleCount = fanOut                // 128
	doubleCount = fanOut * fanOut       // 16384
	tripleCount = fanOut * fanOut * fanOut

	singleMax = directCount + singleCount             // 136
	doubleMax = singleMax + doubleCount                // 16520
	tripleMax = doubleMax + tripleCount                // 2113672
)

// MaxBlocks is the largest virtual block count a file can hold.
const MaxBlocks = tripleMax

// ErrFileTooLarge is returned when a requested virtual block exceeds
// the direct+single+double+triple addressing capacity.
var ErrFileTooLarge = errors.New("addr: file exceeds maximum size")

func loadIndirect(fs *blockstore.Facade, k int) (*layout.IndirectBlock, error) {
	buf, err := fs.ReadDataBlock(k)
	if err != nil {
		return nil, err
	}
	return layout.NewIndirectBlock(buf), nil
}

func storeIndirect(fs *blockstore.Facade, k int, ib *layout.IndirectBlock) error {
	return fs.WriteDataBlock(k, ib.Bytes())
}

// Physical resolves virtual block v of inode n to a physical data
// block index.
func Physical(fs *blockstore.Facade, n *layout.Inode, v int) (int, error) {
	if v < 0 || v >= tripleMax {
		return 0, ErrFileTooLarge
	}

	if v < directCount {
		return n.Direct[v], nil
	}
	v -= directCount

	if v < singleCount {
		return indirectGet(fs, n.Single, v)
	}
	v -= singleCount

	if v < doubleCount {
		top, bottom := v/fanOut, v%fanOut
		mid, err := indirectGet(fs, n.Double, top)
		if err != nil {
			return 0, err
		}
		return indirectGet(fs, mid, bottom)
	}
	v -= doubleCount

	top := v / (fanOut * fanOut)
	rem := v % (fanOut * fanOut)
	mid, bottom := rem/fanOut, rem%fanOut

	l2, err := indirectGet(fs, n.Triple, top)
	if err != nil {
		return 0, err
	}
	l1, err := indirectGet(fs, l2, mid)
	if err != nil {
		return 0, err
	}
	return indirectGet(fs, l1, bottom)
}

func indirectGet(fs *blockstore.Facade, root, idx int) (int, error) {
	if root == 0 {
		return 0, nil
	}
	ib, err := loadIndirect(fs, root)
	if err != nil {
		return 0, err
	}
	return ib.Get(idx), nil
}

// ensureRoot returns *rootField, allocating and persisting a fresh
// indirect block into it first if it is still 0.
func ensureRoot(fs *blockstore.Facade, al *alloc.Allocator, rootField *int) (int, error) {
	if *rootField != 0 {
		return *rootField, nil
	}
	k, err := al.AllocateBlock()
	if err != nil {
		return 0, err
	}
	*rootField = k
	return k, nil
}

// ensureChild returns the pointer stored at idx within the indirect
// block rooted at root, allocating a fresh indirect block for that
// slot first if it is still empty.
func ensureChild(fs *blockstore.Facade, al *alloc.Allocator, root, idx int) (int, error) {
	ib, err := loadIndirect(fs, root)
	if err != nil {
		return 0, err
	}
	child := ib.Get(idx)
	if child != 0 {
		return child, nil
	}
	k, err := al.AllocateBlock()
	if err != nil {
		return 0, err
	}
	ib.Set(idx, k)
	if err := storeIndirect(fs, root, ib); err != nil {
		return 0, err
	}
	return k, nil
}

func setLeaf(fs *blockstore.Facade, root, idx, v int) error {
	ib, err := loadIndirect(fs, root)
	if err != nil {
		return err
	}
	ib.Set(idx, v)
	return storeIndirect(fs, root, ib)
}

// setPhysical writes data block dataBlk into virtual slot v of n,
// allocating any indirect blocks newly required along the way.
func setPhysical(fs *blockstore.Facade, al *alloc.Allocator, n *layout.Inode, v, dataBlk int) error {
	if v < directCount {
		n.Direct[v] = dataBlk
		return nil
	}
	v -= directCount

	if v < singleCount {
		root, err := ensureRoot(fs, al, &n.Single)
		if err != nil {
			return err
		}
		return setLeaf(fs, root, v, dataBlk)
	}
	v -= singleCount

	if v < doubleCount {
		top, bottom := v/fanOut, v%fanOut
		root, err := ensureRoot(fs, al, &n.Double)
		if err != nil {
			return err
		}
		mid, err := ensureChild(fs, al, root, top)
		if err != nil {
			return err
		}
		return setLeaf(fs, mid, bottom, dataBlk)
	}
	v -= doubleCount

	top := v / (fanOut * fanOut)
	rem := v % (fanOut * fanOut)
	mid, bottom := rem/fanOut, rem%fanOut

	root, err := ensureRoot(fs, al, &n.Triple)
	if err != nil {
		return err
	}
	l2, err := ensureChild(fs, al, root, top)
	if err != nil {
		return err
	}
	l1, err := ensureChild(fs, al, l2, mid)
	if err != nil {
		return err
	}
	return setLeaf(fs, l1, bottom, dataBlk)
}

// Grow extends n by delta data blocks, allocating a fresh data block
// (and any newly required indirect blocks) for each new virtual
// block. n.NumBlock is advanced by delta; indirect blocks allocated
// along the way are NOT added to NumBlock, matching the design's
// definition of num_block as a count of data blocks only.
func Grow(fs *blockstore.Facade, al *alloc.Allocator, n *layout.Inode, delta int) error {
	if delta < 0 {
		return errors.New("addr: Grow requires a non-negative delta")
	}
	start := n.NumBlock
	end := start + delta
	if end > tripleMax {
		return ErrFileTooLarge
	}
	for v := start; v < end; v++ {
		blk, err := al.AllocateBlock()
		if err != nil {
			return err
		}
		if err := setPhysical(fs, al, n, v, blk); err != nil {
			return err
		}
	}
	n.NumBlock = end
	return nil
}
