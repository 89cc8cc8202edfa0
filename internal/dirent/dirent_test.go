package dirent

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zzzhr97/inodefs/internal/alloc"
	"github.com/zzzhr97/inodefs/internal/blockstore"
	"github.com/zzzhr97/inodefs/internal/inode"
	"github.com/zzzhr97/inodefs/internal/layout"
)

type memDevice struct {
	blocks map[int][]byte
}

func newMemDevice() *memDevice { return &memDevice{blocks: map[int][]byte{}} }

func (m *memDevice) ReadRaw(b int) ([]byte, error) {
	buf, ok := m.blocks[b]
	if !ok {
		buf = make([]byte, layout.BlockSize)
	}
	out := make([]byte, layout.BlockSize)
	copy(out, buf)
	return out, nil
}

func (m *memDevice) WriteRaw(b int, payload []byte) error {
	buf := make([]byte, layout.BlockSize)
	copy(buf, payload)
	m.blocks[b] = buf
	return nil
}

type harness struct {
	fs   *blockstore.Facade
	al   *alloc.Allocator
	ino  *inode.Engine
	dir  *Engine
	root int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	geo := layout.NewGeometry(8192)
	fs := blockstore.New(newMemDevice(), geo)
	require.NoError(t, fs.WriteSuperBlock(&layout.SuperBlock{
		TotalInode: geo.InodeNum,
		TotalBlock: geo.BlockNum,
		FreeInode:  geo.InodeNum,
		FreeBlock:  geo.BlockNum - 1,
	}))
	require.NoError(t, fs.WriteInodeBitmap(layout.NewBitmap(make([]byte, layout.BlockSize))))
	bbm := layout.NewBitmap(make([]byte, layout.BlockSize))
	bbm.Set(0, true)
	require.NoError(t, fs.WriteBlockBitmap(bbm))

	al := alloc.New(fs)
	ino := inode.New(fs, al)
	d := New(fs, ino)

	root, err := al.AllocateInode()
	require.NoError(t, err)
	require.NoError(t, ino.Build(root, layout.DirAllAllow, "/", 0, 0, 0, root))

	return &harness{fs: fs, al: al, ino: ino, dir: d, root: root}
}

func (h *harness) create(t *testing.T, parent int, info layout.Info, name string) int {
	t.Helper()
	child, err := h.dir.CreateEntry(parent, info, name, h.al.AllocateInode)
	require.NoError(t, err)
	return child
}

func TestCreateEntryAndLookup(t *testing.T) {
	h := newHarness(t)
	child := h.create(t, h.root, layout.FileAllAllow, "hello.txt")

	v, c, err := h.dir.Lookup(h.root, "hello.txt")
	require.NoError(t, err)
	require.Equal(t, 0, v)
	require.Equal(t, child, c)
}

func TestCreateEntryDuplicateNameFails(t *testing.T) {
	h := newHarness(t)
	h.create(t, h.root, layout.FileAllAllow, "dup")

	_, err := h.dir.CreateEntry(h.root, layout.FileAllAllow, "dup", h.al.AllocateInode)
	require.ErrorIs(t, err, ErrExists)
}

func TestLookupMissingReturnsNotFound(t *testing.T) {
	h := newHarness(t)
	_, _, err := h.dir.Lookup(h.root, "nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRemoveEntryPreservesOrderOfOthers(t *testing.T) {
	h := newHarness(t)
	h.create(t, h.root, layout.FileAllAllow, "a")
	bIdx := h.create(t, h.root, layout.FileAllAllow, "b")
	h.create(t, h.root, layout.FileAllAllow, "c")

	// remove the middle (non-last) entry
	v, _, err := h.dir.Lookup(h.root, "b")
	require.NoError(t, err)
	require.NoError(t, h.dir.RemoveEntry(h.root, v))

	_, _, err = h.dir.Lookup(h.root, "b")
	require.ErrorIs(t, err, ErrNotFound)

	aV, aChild, err := h.dir.Lookup(h.root, "a")
	require.NoError(t, err)
	cV, cChild, err := h.dir.Lookup(h.root, "c")
	require.NoError(t, err)
	require.Equal(t, 0, aV)
	require.Equal(t, 1, cV)
	require.NotEqual(t, bIdx, aChild)
	require.NotEqual(t, bIdx, cChild)

	files, _, err := h.dir.List(h.root)
	require.NoError(t, err)
	require.Len(t, files, 2)
}

func TestChangeDirAbsoluteRelativeAndDotDot(t *testing.T) {
	h := newHarness(t)
	sub := h.create(t, h.root, layout.DirAllAllow, "sub")

	got, err := h.dir.ChangeDir(h.root, h.root, "sub")
	require.NoError(t, err)
	require.Equal(t, sub, got)

	got, err = h.dir.ChangeDir(sub, h.root, "..")
	require.NoError(t, err)
	require.Equal(t, h.root, got)

	got, err = h.dir.ChangeDir(sub, h.root, "/")
	require.NoError(t, err)
	require.Equal(t, h.root, got)
}

func TestChangeDirMissingComponentFails(t *testing.T) {
	h := newHarness(t)
	_, err := h.dir.ChangeDir(h.root, h.root, "ghost")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestChangeDirThroughFileFails(t *testing.T) {
	h := newHarness(t)
	h.create(t, h.root, layout.FileAllAllow, "f")
	_, err := h.dir.ChangeDir(h.root, h.root, "f")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListSortsCaseInsensitiveUpperBeforeLower(t *testing.T) {
	h := newHarness(t)
	h.create(t, h.root, layout.FileAllAllow, "Banana")
	h.create(t, h.root, layout.FileAllAllow, "apple")
	h.create(t, h.root, layout.FileAllAllow, "banana")
	h.create(t, h.root, layout.FileAllAllow, "Apple")

	files, _, err := h.dir.List(h.root)
	require.NoError(t, err)
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Name
	}
	require.Equal(t, []string{"Apple", "apple", "Banana", "banana"}, names)
}

// TestListSortsWorkedExampleS8 pins the literal worked example: creating
// Banana, apple, apple2, APPLE must list as APPLE, apple, apple2, Banana.
func TestListSortsWorkedExampleS8(t *testing.T) {
	h := newHarness(t)
	h.create(t, h.root, layout.FileAllAllow, "Banana")
	h.create(t, h.root, layout.FileAllAllow, "apple")
	h.create(t, h.root, layout.FileAllAllow, "apple2")
	h.create(t, h.root, layout.FileAllAllow, "APPLE")

	files, _, err := h.dir.List(h.root)
	require.NoError(t, err)
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Name
	}
	require.Equal(t, []string{"APPLE", "apple", "apple2", "Banana"}, names)
}

func TestDestroyTreeRemovesNestedContents(t *testing.T) {
	h := newHarness(t)
	sub := h.create(t, h.root, layout.DirAllAllow, "sub")
	leaf := h.create(t, sub, layout.FileAllAllow, "leaf.txt")
	require.NoError(t, h.ino.WriteRange(leaf, 0, []byte("data")))

	v, _, err := h.dir.Lookup(h.root, "sub")
	require.NoError(t, err)
	require.NoError(t, h.dir.DestroyTree(sub))
	require.NoError(t, h.dir.RemoveEntry(h.root, v))

	bm, err := h.fs.ReadInodeBitmap()
	require.NoError(t, err)
	require.False(t, bm.Get(sub))
	require.False(t, bm.Get(leaf))
}
