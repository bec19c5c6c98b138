package fio

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMmapIOReadsWhatFileIOWrote(t *testing.T) {
	path := filepath.Join(t.TempDir(), "segment.data")

	writer, err := newFileIO(path)
	require.NoError(t, err)
	_, err = writer.Write([]byte("persisted bytes"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	m, err := newMmapIO(path)
	require.NoError(t, err)
	defer m.Close()

	size, err := m.Size()
	require.NoError(t, err)
	assert.EqualValues(t, len("persisted bytes"), size)

	buf := make([]byte, len("persisted"))
	n, err := m.Read(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, len("persisted"), n)
	assert.Equal(t, "persisted", string(buf))
}

func TestMmapIOReadPastEndReturnsNoBytesNotError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "segment.data")
	writer, err := newFileIO(path)
	require.NoError(t, err)
	_, err = writer.Write([]byte("ab"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	m, err := newMmapIO(path)
	require.NoError(t, err)
	defer m.Close()

	buf := make([]byte, 16)
	n, err := m.Read(buf, 100)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestMmapIORejectsWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "segment.data")
	m, err := newMmapIO(path)
	require.NoError(t, err)
	defer m.Close()

	_, err = m.Write([]byte("nope"))
	assert.ErrorIs(t, err, ErrMmapWriteUnsupported)
	assert.ErrorIs(t, m.Sync(), ErrMmapWriteUnsupported)
}

func TestMmapIOEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "segment.data")
	m, err := newMmapIO(path)
	require.NoError(t, err)
	defer m.Close()

	size, err := m.Size()
	require.NoError(t, err)
	assert.EqualValues(t, 0, size)
}

func TestNewIOManagerDispatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "segment.data")

	std, err := NewIOManager(path, IOTypeStandardFile)
	require.NoError(t, err)
	_, ok := std.(*FileIO)
	assert.True(t, ok)
	require.NoError(t, std.Close())

	mm, err := NewIOManager(path, IOTypeMemoryMap)
	require.NoError(t, err)
	_, ok = mm.(*MmapIO)
	assert.True(t, ok)
	require.NoError(t, mm.Close())
}
