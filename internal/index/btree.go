package index

import (
	"bytes"
	"sync"

	"github.com/google/btree"

	"github.com/barreldb/barreldb/internal/data"
)

// btreeEntry is the element type stored in the google/btree tree; Less
// orders entries by key alone so Put can locate-and-replace by key.
type btreeEntry struct {
	key []byte
	pos data.RecordPosition
}

func (e btreeEntry) Less(than btree.Item) bool {
	return bytes.Compare(e.key, than.(btreeEntry).key) < 0
}

// BTreeIndex is the ordered in-memory tree backend, volatile across
// restarts: the engine rebuilds it by scanning the log on every open.
type BTreeIndex struct {
	mu   sync.RWMutex
	tree *btree.BTree
}

// NewBTreeIndex creates an empty ordered-tree index with a fixed
// branching degree of 32 (google/btree's "degree" parameter).
func NewBTreeIndex() *BTreeIndex {
	return &BTreeIndex{tree: btree.New(32)}
}

func (b *BTreeIndex) Put(key []byte, pos data.RecordPosition) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tree.ReplaceOrInsert(btreeEntry{key: append([]byte(nil), key...), pos: pos})
	return true
}

func (b *BTreeIndex) Get(key []byte) (data.RecordPosition, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	item := b.tree.Get(btreeEntry{key: key})
	if item == nil {
		return data.RecordPosition{}, false
	}
	return item.(btreeEntry).pos, true
}

func (b *BTreeIndex) Delete(key []byte) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tree.Delete(btreeEntry{key: key}) != nil
}

func (b *BTreeIndex) Iterator(opts IteratorOptions) Iterator {
	b.mu.RLock()
	defer b.mu.RUnlock()
	items := make([]indexItem, 0, b.tree.Len())
	b.tree.Ascend(func(i btree.Item) bool {
		e := i.(btreeEntry)
		items = append(items, indexItem{key: e.key, pos: e.pos})
		return true
	})
	return newSliceIterator(items, opts)
}

func (b *BTreeIndex) ListKeys() [][]byte {
	b.mu.RLock()
	defer b.mu.RUnlock()
	keys := make([][]byte, 0, b.tree.Len())
	b.tree.Ascend(func(i btree.Item) bool {
		keys = append(keys, i.(btreeEntry).key)
		return true
	})
	return keys
}

func (b *BTreeIndex) Close() error {
	return nil
}
