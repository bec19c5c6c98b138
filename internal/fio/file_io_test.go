package fio

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileIOWriteReadSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "segment.data")
	f, err := newFileIO(path)
	require.NoError(t, err)
	defer f.Close()

	n, err := f.Write([]byte("hello world"))
	require.NoError(t, err)
	assert.Equal(t, 11, n)

	size, err := f.Size()
	require.NoError(t, err)
	assert.EqualValues(t, 11, size)

	buf := make([]byte, 5)
	n, err = f.Read(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", string(buf))
}

func TestFileIOReadPastEndIsNotAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "segment.data")
	f, err := newFileIO(path)
	require.NoError(t, err)
	defer f.Close()

	_, err = f.Write([]byte("ab"))
	require.NoError(t, err)

	buf := make([]byte, 16)
	n, err := f.Read(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, byte('a'), buf[0])
	assert.Equal(t, byte(0), buf[2])
}

func TestFileIOTruncate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "segment.data")
	f, err := newFileIO(path)
	require.NoError(t, err)
	defer f.Close()

	_, err = f.Write([]byte("hello world"))
	require.NoError(t, err)

	require.NoError(t, f.Truncate(5))
	size, err := f.Size()
	require.NoError(t, err)
	assert.EqualValues(t, 5, size)
}
