package inode

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zzzhr97/inodefs/internal/alloc"
	"github.com/zzzhr97/inodefs/internal/blockstore"
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

func newHarness(t *testing.T) (*Engine, *blockstore.Facade, *alloc.Allocator) {
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
	bbm.Set(0, true) // reserve physical data block 0
	require.NoError(t, fs.WriteBlockBitmap(bbm))

	al := alloc.New(fs)
	eng := New(fs, al)
	return eng, fs, al
}

func TestBuildSetsTimestampsAndTouchesParent(t *testing.T) {
	eng, fs, al := newHarness(t)
	root, err := al.AllocateInode()
	require.NoError(t, err)
	require.NoError(t, eng.Build(root, layout.DirAllAllow, "/", 0, 0, 0, root))

	// wind the parent's modify time back so the touch is observable
	rn, err := fs.ReadInode(root)
	require.NoError(t, err)
	rn.TimeModify = layout.Epoch
	require.NoError(t, fs.WriteInode(root, rn))

	child, err := al.AllocateInode()
	require.NoError(t, err)
	require.NoError(t, eng.Build(child, layout.FileAllAllow, "a.txt", 0, 0, 0, root))

	n, err := fs.ReadInode(child)
	require.NoError(t, err)
	require.Equal(t, "a.txt", n.Name)
	require.False(t, n.TimeModify.IsZero())

	rn, err = fs.ReadInode(root)
	require.NoError(t, err)
	require.True(t, rn.TimeModify.After(layout.Epoch))
}

func TestWriteRangeThenReadAllRoundTrip(t *testing.T) {
	eng, _, al := newHarness(t)
	i, err := al.AllocateInode()
	require.NoError(t, err)
	require.NoError(t, eng.Build(i, layout.FileAllAllow, "f", 0, 0, 0, i))

	payload := bytes.Repeat([]byte("hello world "), 50) // > one block
	require.NoError(t, eng.WriteRange(i, 0, payload))

	out, err := eng.ReadAll(i)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(out, payload))
}

func TestWriteRangeOverwriteMidFile(t *testing.T) {
	eng, _, al := newHarness(t)
	i, err := al.AllocateInode()
	require.NoError(t, err)
	require.NoError(t, eng.Build(i, layout.FileAllAllow, "f", 0, 0, 0, i))

	require.NoError(t, eng.WriteRange(i, 0, bytes.Repeat([]byte{'A'}, 300)))
	require.NoError(t, eng.WriteRange(i, 100, []byte("XYZ")))

	out, err := eng.ReadAll(i)
	require.NoError(t, err)
	require.Equal(t, byte('X'), out[100])
	require.Equal(t, byte('Y'), out[101])
	require.Equal(t, byte('Z'), out[102])
	require.Equal(t, byte('A'), out[99])
	require.Equal(t, byte('A'), out[103])
}

func TestInsertRangeShiftsTailRight(t *testing.T) {
	eng, _, al := newHarness(t)
	i, err := al.AllocateInode()
	require.NoError(t, err)
	require.NoError(t, eng.Build(i, layout.FileAllAllow, "f", 0, 0, 0, i))

	require.NoError(t, eng.WriteRange(i, 0, []byte("helloworld")))
	require.NoError(t, eng.InsertRange(i, 5, []byte(" BIG ")))

	out, err := eng.ReadAll(i)
	require.NoError(t, err)
	require.Equal(t, "hello BIG world", string(out[:15]))
}

func TestDeleteRangeShiftsTailLeft(t *testing.T) {
	eng, _, al := newHarness(t)
	i, err := al.AllocateInode()
	require.NoError(t, err)
	require.NoError(t, eng.Build(i, layout.FileAllAllow, "f", 0, 0, 0, i))

	require.NoError(t, eng.WriteRange(i, 0, []byte("hello BIG world")))
	require.NoError(t, eng.DeleteRange(i, 5, 4))

	out, err := eng.ReadAll(i)
	require.NoError(t, err)
	require.Equal(t, "hello world", string(out[:11]))
}

func TestDeleteRangeZeroLengthIsIdempotent(t *testing.T) {
	eng, fs, al := newHarness(t)
	i, err := al.AllocateInode()
	require.NoError(t, err)
	require.NoError(t, eng.Build(i, layout.FileAllAllow, "f", 0, 0, 0, i))
	require.NoError(t, eng.WriteRange(i, 0, []byte("unchanged")))

	before, err := fs.ReadInode(i)
	require.NoError(t, err)

	require.NoError(t, eng.DeleteRange(i, 3, 0))

	out, err := eng.ReadAll(i)
	require.NoError(t, err)
	require.Equal(t, "unchanged", string(out[:9]))

	after, err := fs.ReadInode(i)
	require.NoError(t, err)
	require.Equal(t, before.SizeFile, after.SizeFile)
	require.Equal(t, before.NumBlock, after.NumBlock)
}

func TestTruncateFreesAllBlocks(t *testing.T) {
	eng, fs, al := newHarness(t)
	i, err := al.AllocateInode()
	require.NoError(t, err)
	require.NoError(t, eng.Build(i, layout.FileAllAllow, "f", 0, 0, 0, i))
	require.NoError(t, eng.WriteRange(i, 0, bytes.Repeat([]byte{'Z'}, 2000)))

	require.NoError(t, eng.Truncate(i))

	n, err := fs.ReadInode(i)
	require.NoError(t, err)
	require.Equal(t, 0, n.SizeFile)
	require.Equal(t, 0, n.NumBlock)
}

func TestDestroyReleasesInodeBit(t *testing.T) {
	eng, fs, al := newHarness(t)
	i, err := al.AllocateInode()
	require.NoError(t, err)
	require.NoError(t, eng.Build(i, layout.FileAllAllow, "f", 0, 0, 0, i))

	require.NoError(t, eng.Destroy(i))

	bm, err := fs.ReadInodeBitmap()
	require.NoError(t, err)
	require.False(t, bm.Get(i))
}
