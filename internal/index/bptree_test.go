package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/barreldb/barreldb/internal/data"
)

func TestBPlusTreeIndexSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	idx, err := NewBPlusTreeIndex(dir)
	require.NoError(t, err)
	require.True(t, idx.Put([]byte("durable"), data.RecordPosition{FileID: 3, Offset: 9}))
	require.NoError(t, idx.Close())

	reopened, err := NewBPlusTreeIndex(dir)
	require.NoError(t, err)
	defer reopened.Close()

	pos, found := reopened.Get([]byte("durable"))
	require.True(t, found)
	assert.Equal(t, data.RecordPosition{FileID: 3, Offset: 9}, pos)
}

func TestBPlusTreeIteratorCloseReleasesTransaction(t *testing.T) {
	dir := t.TempDir()
	idx, err := NewBPlusTreeIndex(dir)
	require.NoError(t, err)
	defer idx.Close()

	idx.Put([]byte("a"), data.RecordPosition{})
	idx.Put([]byte("b"), data.RecordPosition{})

	it := idx.Iterator(IteratorOptions{})
	_, _, ok := it.Next()
	require.True(t, ok)
	it.Close()
	it.Close() // idempotent

	// A fresh write after closing the iterator's read transaction must not
	// deadlock against it.
	assert.True(t, idx.Put([]byte("c"), data.RecordPosition{}))
}
