package addr

import (
	"github.com/zzzhr97/inodefs/internal/alloc"
	"github.com/zzzhr97/inodefs/internal/blockstore"
	"github.com/zzzhr97/inodefs/internal/layout"
)

// freeVirtualBlock releases the data block stored at virtual slot v of
// n (if any) and returns its physical index (0 if the slot was never
// populated). Whenever the position the data pointer occupied within
// its immediate parent indirect block is index 0, that whole indirect
// block is also released and its own slot in its parent cleared — and
// if THAT slot was also index 0, the same happens one level up. This
// is safe precisely because ShrinkRange always calls this walking
// virtual blocks from high to low: by the time index 0 of a group is
// reached, every other entry in that group has already been released
// in the same call.
func freeVirtualBlock(fs *blockstore.Facade, al *alloc.Allocator, n *layout.Inode, v int) (int, error) {
	if v < directCount {
		blk := n.Direct[v]
		n.Direct[v] = 0
		return blk, nil
	}
	v -= directCount

	if v < singleCount {
		idx := v
		if n.Single == 0 {
			return 0, nil
		}
		ib, err := loadIndirect(fs, n.Single)
		if err != nil {
			return 0, err
		}
		blk := ib.Get(idx)
		ib.Set(idx, 0)
		if err := storeIndirect(fs, n.Single, ib); err != nil {
			return 0, err
		}
		if idx == 0 {
			if err := al.ReleaseBlock(n.Single); err != nil {
				return 0, err
			}
			n.Single = 0
		}
		return blk, nil
	}
	v -= singleCount

	if v < doubleCount {
		top, bottom := v/fanOut, v%fanOut
		if n.Double == 0 {
			return 0, nil
		}
		topIB, err := loadIndirect(fs, n.Double)
		if err != nil {
			return 0, err
		}
		mid := topIB.Get(top)
		if mid == 0 {
			return 0, nil
		}
		midIB, err := loadIndirect(fs, mid)
		if err != nil {
			return 0, err
		}
		blk := midIB.Get(bottom)
		midIB.Set(bottom, 0)
		if err := storeIndirect(fs, mid, midIB); err != nil {
			return 0, err
		}
		if bottom == 0 {
			if err := al.ReleaseBlock(mid); err != nil {
				return 0, err
			}
			topIB.Set(top, 0)
			if err := storeIndirect(fs, n.Double, topIB); err != nil {
				return 0, err
			}
			if top == 0 {
				if err := al.ReleaseBlock(n.Double); err != nil {
					return 0, err
				}
				n.Double = 0
			}
		}
		return blk, nil
	}
	v -= doubleCount

	top := v / (fanOut * fanOut)
	rem := v % (fanOut * fanOut)
	mid, bottom := rem/fanOut, rem%fanOut

	if n.Triple == 0 {
		return 0, nil
	}
	rootIB, err := loadIndirect(fs, n.Triple)
	if err != nil {
		return 0, err
	}
	l2 := rootIB.Get(top)
	if l2 == 0 {
		return 0, nil
	}
	l2IB, err := loadIndirect(fs, l2)
	if err != nil {
		return 0, err
	}
	l1 := l2IB.Get(mid)
	if l1 == 0 {
		return 0, nil
	}
	l1IB, err := loadIndirect(fs, l1)
	if err != nil {
		return 0, err
	}
	blk := l1IB.Get(bottom)
	l1IB.Set(bottom, 0)
	if err := storeIndirect(fs, l1, l1IB); err != nil {
		return 0, err
	}

	if bottom == 0 {
		if err := al.ReleaseBlock(l1); err != nil {
			return 0, err
		}
		l2IB.Set(mid, 0)
		if err := storeIndirect(fs, l2, l2IB); err != nil {
			return 0, err
		}
		if mid == 0 {
			if err := al.ReleaseBlock(l2); err != nil {
				return 0, err
			}
			rootIB.Set(top, 0)
			if err := storeIndirect(fs, n.Triple, rootIB); err != nil {
				return 0, err
			}
			if top == 0 {
				if err := al.ReleaseBlock(n.Triple); err != nil {
					return 0, err
				}
				n.Triple = 0
			}
		}
	}

	return blk, nil
}

// ShrinkRange releases count virtual blocks of n starting at startV.
// When capture is true, the content of each released data block is
// read before release and returned concatenated in virtual-block
// order; when false, nil is returned. Release itself always proceeds
// from the highest virtual block down to startV, so indirect-block
// reclamation (see freeVirtualBlock) observes a fully-drained group
// before acting on its first entry.
func ShrinkRange(fs *blockstore.Facade, al *alloc.Allocator, n *layout.Inode, startV, count int, capture bool) ([]byte, error) {
	var out []byte
	if capture {
		out = make([]byte, 0, count*layout.BlockSize)
		for v := startV; v < startV+count; v++ {
			blk, err := Physical(fs, n, v)
			if err != nil {
				return nil, err
			}
			if blk == 0 {
				out = append(out, make([]byte, layout.BlockSize)...)
				continue
			}
			data, err := fs.ReadDataBlock(blk)
			if err != nil {
				return nil, err
			}
			out = append(out, data...)
		}
	}

	for v := startV + count - 1; v >= startV; v-- {
		blk, err := freeVirtualBlock(fs, al, n, v)
		if err != nil {
			return nil, err
		}
		if blk != 0 {
			if err := al.ReleaseBlock(blk); err != nil {
				return nil, err
			}
		}
	}

	return out, nil
}
