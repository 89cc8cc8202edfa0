package blockstore

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zzzhr97/inodefs/internal/layout"
)

type memDevice struct {
	blocks map[int][]byte
}

func newMemDevice() *memDevice {
	return &memDevice{blocks: map[int][]byte{}}
}

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

func TestSuperBlockRoundTrip(t *testing.T) {
	f := New(newMemDevice(), layout.NewGeometry(4096))
	sb := &layout.SuperBlock{TotalInode: 1024, TotalBlock: 2048, FreeInode: 1023, FreeBlock: 2047, RootInode: 0}
	require.NoError(t, f.WriteSuperBlock(sb))

	got, err := f.ReadSuperBlock()
	require.NoError(t, err)
	require.Equal(t, sb, got)
}

func TestInodeReadModifyWritePreservesSiblings(t *testing.T) {
	f := New(newMemDevice(), layout.NewGeometry(4096))

	n0 := &layout.Inode{Name: "alpha"}
	n1 := &layout.Inode{Name: "beta"}
	require.NoError(t, f.WriteInode(0, n0))
	require.NoError(t, f.WriteInode(1, n1))

	got0, err := f.ReadInode(0)
	require.NoError(t, err)
	require.Equal(t, "alpha", got0.Name)

	got1, err := f.ReadInode(1)
	require.NoError(t, err)
	require.Equal(t, "beta", got1.Name)
}

func TestInodeOutOfRangeIsExceedCapacity(t *testing.T) {
	f := New(newMemDevice(), layout.NewGeometry(4096))
	_, err := f.ReadInode(99999)
	require.ErrorIs(t, err, ErrExceedCapacity)
}

func TestDataBlockOutOfRangeIsExceedCapacity(t *testing.T) {
	f := New(newMemDevice(), layout.NewGeometry(4096))
	err := f.WriteDataBlock(99999, make([]byte, layout.BlockSize))
	require.ErrorIs(t, err, ErrExceedCapacity)
}
