// Package dirent is the directory engine (C6): a directory is a
// regular file whose payload is a packed stream of 16-bit child inode
// indices, and this package implements lookup, creation, removal,
// path traversal, recursive destruction, and sorted listing on top of
// that convention.
package dirent

import (
	"sort"
	"strings"

	"github.com/kennygrant/sanitize"
	"github.com/pkg/errors"

	"github.com/zzzhr97/inodefs/internal/blockstore"
	"github.com/zzzhr97/inodefs/internal/inode"
	"github.com/zzzhr97/inodefs/internal/layout"
)

// ErrNotFound reports a missing name, a bad path component, or a kind
// mismatch (file where a directory was required or vice versa) — all
// logical failures the dispatcher surfaces to the user as "No".
var ErrNotFound = errors.New("dirent: not found")

// ErrExists reports create_entry called with a name already present
// in the directory.
var ErrExists = errors.New("dirent: name exists")

// ErrBadName reports a name that sanitizes to empty, or one too long
// to fit the fixed 16-byte (15 usable + NUL) name field.
var ErrBadName = errors.New("dirent: invalid name")

// maxNameBytes leaves room for the trailing NUL pad inside NameSize.
const maxNameBytes = layout.NameSize - 1

// Engine bundles the collaborators directory operations need.
type Engine struct {
	fs  *blockstore.Facade
	ino *inode.Engine
}

// New builds an Engine over fs and ino.
func New(fs *blockstore.Facade, ino *inode.Engine) *Engine {
	return &Engine{fs: fs, ino: ino}
}

// cleanName sanitizes and length-checks a proposed directory entry
// name. sanitize.Name also lowercases; when case is the only thing it
// changed, the caller's original spelling is kept.
func cleanName(name string) (string, error) {
	clean := sanitize.Name(name)
	if strings.EqualFold(clean, name) {
		clean = name
	}
	if clean == "" || len(clean) > maxNameBytes {
		return "", ErrBadName
	}
	return clean, nil
}

// payload returns dir's data region as a DirPayload view. ReadAll
// returns the full NumBlock*256-byte block-aligned buffer, so it must
// be trimmed to SizeFile before decoding — the tail past SizeFile is
// live zero padding that would otherwise decode as spurious entries
// pointing at inode 0 (the root).
func (e *Engine) payload(dir int) (*layout.DirPayload, error) {
	n, err := e.fs.ReadInode(dir)
	if err != nil {
		return nil, err
	}
	buf, err := e.ino.ReadAll(dir)
	if err != nil {
		return nil, err
	}
	return layout.NewDirPayload(buf[:n.SizeFile]), nil
}

// Lookup linearly scans dir's entries, returning the entry index
// (not the child inode number) of the first child named name, or
// ErrNotFound.
func (e *Engine) Lookup(dir int, name string) (vIndex int, child int, err error) {
	p, err := e.payload(dir)
	if err != nil {
		return 0, 0, err
	}
	for v := 0; v < p.Len(); v++ {
		c := p.Get(v)
		n, err := e.fs.ReadInode(c)
		if err != nil {
			return 0, 0, err
		}
		if n.Name == name {
			return v, c, nil
		}
	}
	return 0, 0, ErrNotFound
}

// CreateEntry allocates a new child inode of kind info named name
// inside dir, appending its index to dir's payload. Fails with
// ErrExists on a duplicate name.
func (e *Engine) CreateEntry(dir int, info layout.Info, name string, alloc func() (int, error)) (int, error) {
	clean, err := cleanName(name)
	if err != nil {
		return 0, err
	}
	if _, _, err := e.Lookup(dir, clean); err == nil {
		return 0, ErrExists
	} else if !errors.Is(err, ErrNotFound) {
		return 0, err
	}

	child, err := alloc()
	if err != nil {
		return 0, err
	}

	p, err := e.payload(dir)
	if err != nil {
		return 0, err
	}
	if err := e.ino.WriteRange(dir, p.Len()*2, layout.EncodeChildIndex(child)); err != nil {
		return 0, err
	}
	if err := e.ino.Build(child, info, clean, 0, 0, 0, dir); err != nil {
		return 0, err
	}
	return child, nil
}

// RemoveEntry splices the vIndex-th 2-byte slot out of dir's payload,
// shifting every later entry left by one slot. Implemented as the
// design's capture-free-reinsert dance: capture the whole payload,
// free all of dir's blocks, then rewrite the payload shortened by
// exactly one entry. The spliced length is size_file - (vIndex+1)*2 —
// the count of live bytes strictly after the removed slot — not the
// over-reading block_num*256-2.
func (e *Engine) RemoveEntry(dir int, vIndex int) error {
	n, err := e.fs.ReadInode(dir)
	if err != nil {
		return err
	}
	full, err := e.ino.ReadAll(dir)
	if err != nil {
		return err
	}
	full = full[:n.SizeFile]

	if vIndex < 0 || vIndex*2 >= len(full) {
		return ErrNotFound
	}

	tailLen := n.SizeFile - (vIndex+1)*2
	out := make([]byte, 0, len(full)-2)
	out = append(out, full[:vIndex*2]...)
	if tailLen > 0 {
		out = append(out, full[(vIndex+1)*2:(vIndex+1)*2+tailLen]...)
	}

	if err := e.ino.Truncate(dir); err != nil {
		return err
	}
	if len(out) > 0 {
		if err := e.ino.WriteRange(dir, 0, out); err != nil {
			return err
		}
	}
	return nil
}

// ChangeDir resolves a /-separated path against cwd (a leading / reset
// to root), returning the inode index of the resulting directory. "."
// is the current component, ".." ascends via parent. Fails with
// ErrNotFound at the first missing or non-directory component.
func (e *Engine) ChangeDir(cwd, root int, path string) (int, error) {
	cur := cwd
	if strings.HasPrefix(path, "/") {
		cur = root
	}
	for _, part := range strings.Split(path, "/") {
		if part == "" || part == "." {
			continue
		}
		if part == ".." {
			n, err := e.fs.ReadInode(cur)
			if err != nil {
				return 0, err
			}
			cur = n.Parent
			continue
		}
		_, child, err := e.Lookup(cur, part)
		if err != nil {
			return 0, ErrNotFound
		}
		cn, err := e.fs.ReadInode(child)
		if err != nil {
			return 0, err
		}
		if !cn.Info.IsDirectory() {
			return 0, ErrNotFound
		}
		cur = child
	}
	return cur, nil
}

// DestroyTree recursively destroys i's children (if i is a directory)
// then truncates and releases i itself. Uses an explicit work-stack
// instead of language recursion so directory depth is bounded only by
// heap, not the host call stack.
func (e *Engine) DestroyTree(i int) error {
	type frame struct {
		idx      int
		children []int
		visited  bool
	}
	stack := []*frame{{idx: i}}

	for len(stack) > 0 {
		top := stack[len(stack)-1]

		if !top.visited {
			top.visited = true
			n, err := e.fs.ReadInode(top.idx)
			if err != nil {
				return err
			}
			if n.Info.IsDirectory() {
				p, err := e.payload(top.idx)
				if err != nil {
					return err
				}
				for v := 0; v < p.Len(); v++ {
					top.children = append(top.children, p.Get(v))
				}
				for _, c := range top.children {
					stack = append(stack, &frame{idx: c})
				}
				continue
			}
		}

		stack = stack[:len(stack)-1]
		if err := e.ino.Truncate(top.idx); err != nil {
			return err
		}
		if err := e.ino.Destroy(top.idx); err != nil {
			return err
		}
	}
	return nil
}

// Entry is one listed directory child.
type Entry struct {
	Child int
	Name  string
	Info  layout.Info
}

// List splits dir's children into files and directories by info&1 and
// sorts each list with: case-insensitive primary order, tiebreak by
// original case with uppercase sorting before lowercase.
func (e *Engine) List(dir int) (files, dirs []Entry, err error) {
	p, err := e.payload(dir)
	if err != nil {
		return nil, nil, err
	}
	for v := 0; v < p.Len(); v++ {
		c := p.Get(v)
		n, err := e.fs.ReadInode(c)
		if err != nil {
			return nil, nil, err
		}
		ent := Entry{Child: c, Name: n.Name, Info: n.Info}
		if n.Info.IsDirectory() {
			dirs = append(dirs, ent)
		} else {
			files = append(files, ent)
		}
	}
	sortEntries(files)
	sortEntries(dirs)
	return files, dirs, nil
}

func sortEntries(es []Entry) {
	sort.SliceStable(es, func(i, j int) bool {
		a, b := es[i].Name, es[j].Name
		la, lb := strings.ToLower(a), strings.ToLower(b)
		if la != lb {
			return la < lb
		}
		return upperBeforeLower(a, b)
	})
}

// upperBeforeLower breaks a case-insensitive tie between two
// original-case strings of equal lowercase form: at the first byte
// where the two differ in case, the one holding the uppercase letter
// sorts first.
func upperBeforeLower(a, b string) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		ca, cb := a[i], b[i]
		if ca == cb {
			continue
		}
		aUpper := ca >= 'A' && ca <= 'Z'
		bUpper := cb >= 'A' && cb <= 'Z'
		if aUpper != bUpper {
			return aUpper
		}
		return ca < cb
	}
	return len(a) < len(b)
}
