package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/barreldb/barreldb/internal/data"
)

// backends exercises the shared Indexer contract identically across every
// backend, so a behavioral regression in one shows up regardless of which
// index type a caller configured.
func backends(t *testing.T) map[string]Indexer {
	t.Helper()
	bp, err := NewBPlusTreeIndex(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { bp.Close() })

	return map[string]Indexer{
		"btree":    NewBTreeIndex(),
		"skiplist": NewSkipListIndex(),
		"bptree":   bp,
	}
}

func TestIndexerPutGetDelete(t *testing.T) {
	for name, idx := range backends(t) {
		t.Run(name, func(t *testing.T) {
			pos := data.RecordPosition{FileID: 1, Offset: 42}

			_, found := idx.Get([]byte("missing"))
			assert.False(t, found)

			assert.True(t, idx.Put([]byte("a"), pos))
			got, found := idx.Get([]byte("a"))
			assert.True(t, found)
			assert.Equal(t, pos, got)

			newPos := data.RecordPosition{FileID: 2, Offset: 7}
			assert.True(t, idx.Put([]byte("a"), newPos))
			got, _ = idx.Get([]byte("a"))
			assert.Equal(t, newPos, got)

			assert.True(t, idx.Delete([]byte("a")))
			assert.False(t, idx.Delete([]byte("a")))
			_, found = idx.Get([]byte("a"))
			assert.False(t, found)
		})
	}
}

func TestIndexerIterationOrderAndPrefix(t *testing.T) {
	for name, idx := range backends(t) {
		t.Run(name, func(t *testing.T) {
			keys := []string{"apple", "banana", "apricot", "cherry"}
			for i, k := range keys {
				idx.Put([]byte(k), data.RecordPosition{FileID: 0, Offset: int64(i)})
			}

			it := idx.Iterator(IteratorOptions{})
			defer it.Close()
			var seen []string
			for {
				k, _, ok := it.Next()
				if !ok {
					break
				}
				seen = append(seen, string(k))
			}
			assert.Equal(t, []string{"apple", "apricot", "banana", "cherry"}, seen)

			it2 := idx.Iterator(IteratorOptions{Prefix: []byte("ap")})
			defer it2.Close()
			var prefixed []string
			for {
				k, _, ok := it2.Next()
				if !ok {
					break
				}
				prefixed = append(prefixed, string(k))
			}
			assert.Equal(t, []string{"apple", "apricot"}, prefixed)
		})
	}
}

func TestIndexerIterationReverse(t *testing.T) {
	for name, idx := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for i, k := range []string{"a", "b", "c"} {
				idx.Put([]byte(k), data.RecordPosition{FileID: 0, Offset: int64(i)})
			}

			it := idx.Iterator(IteratorOptions{Reverse: true})
			defer it.Close()
			var seen []string
			for {
				k, _, ok := it.Next()
				if !ok {
					break
				}
				seen = append(seen, string(k))
			}
			assert.Equal(t, []string{"c", "b", "a"}, seen)
		})
	}
}

func TestIndexerListKeys(t *testing.T) {
	for name, idx := range backends(t) {
		t.Run(name, func(t *testing.T) {
			idx.Put([]byte("z"), data.RecordPosition{})
			idx.Put([]byte("a"), data.RecordPosition{})
			keys := idx.ListKeys()
			require.Len(t, keys, 2)
			assert.Equal(t, "a", string(keys[0]))
			assert.Equal(t, "z", string(keys[1]))
		})
	}
}

func TestSliceIteratorSeek(t *testing.T) {
	items := []indexItem{
		{key: []byte("a")}, {key: []byte("c")}, {key: []byte("e")},
	}
	it := newSliceIterator(items, IteratorOptions{})
	it.Seek([]byte("b"))
	k, _, ok := it.Next()
	require.True(t, ok)
	assert.Equal(t, "c", string(k))
}
