// Package index provides the in-memory (and, for one backend, persistent)
// mapping from a user key to the position of its most recent record.
package index

import (
	"bytes"
	"sort"

	"github.com/barreldb/barreldb/internal/data"
)

// Type selects an Indexer backend.
type Type int

const (
	// BTreeType is an ordered in-memory tree (google/btree), rebuilt by
	// scanning the log on every open.
	BTreeType Type = iota
	// SkipListType is a volatile skip list, also rebuilt on every open.
	SkipListType
	// BPlusTreeType is a persistent B+tree (bbolt) that survives restarts.
	BPlusTreeType
)

// IteratorOptions controls ordering and filtering of an Iterator's walk.
type IteratorOptions struct {
	Reverse bool
	Prefix  []byte
}

// DefaultIteratorOptions walks forward with no prefix filter.
var DefaultIteratorOptions = IteratorOptions{}

// Indexer is the capability contract every backend implements. All
// methods are safe for concurrent use.
type Indexer interface {
	// Put inserts or replaces the position for key. It returns false only
	// on an irrecoverable backend failure.
	Put(key []byte, pos data.RecordPosition) bool
	// Get returns the position last put for key, if any.
	Get(key []byte) (data.RecordPosition, bool)
	// Delete removes key's entry, reporting whether one existed.
	Delete(key []byte) bool
	// Iterator returns a snapshot iterator honoring opts.
	Iterator(opts IteratorOptions) Iterator
	// ListKeys returns every live key.
	ListKeys() [][]byte
	// Close releases any resources the backend holds open.
	Close() error
}

// Iterator walks a snapshot of an Indexer's key/position pairs in
// lexicographic (or, with Reverse, descending) order, honoring a prefix
// filter applied after ordering and positioning.
type Iterator interface {
	// Rewind returns the iterator to its starting position.
	Rewind()
	// Seek positions the iterator at the first key satisfying the
	// iteration order's lower bound for k: in forward mode the least key
	// >= k, in reverse mode the greatest key <= k.
	Seek(k []byte)
	// Next advances and returns the current pair, or ok=false when
	// exhausted.
	Next() (key []byte, pos data.RecordPosition, ok bool)
	// Close releases any resources the iterator holds open (a backend
	// may hold a transaction for the iterator's lifetime). Safe to call
	// on an exhausted iterator and safe to call more than once.
	Close()
}

// hasPrefix reports whether key starts with prefix; an empty prefix
// matches everything.
func hasPrefix(key, prefix []byte) bool {
	return len(prefix) == 0 || bytes.HasPrefix(key, prefix)
}

// sliceIterator is the shared snapshot-iterator shape used by the BTree
// and skip-list backends (and, empty, by the B+tree backend when it
// cannot begin a read transaction): materialize
// a sorted slice of (key, pos) pairs under the backend's read lock at
// construction, then binary-search to seek. This is the "simplest
// portable realization" the engine's design notes call for.
type sliceIterator struct {
	items []indexItem
	idx   int
	opts  IteratorOptions
}

type indexItem struct {
	key []byte
	pos data.RecordPosition
}

func newSliceIterator(items []indexItem, opts IteratorOptions) *sliceIterator {
	if opts.Reverse {
		for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
			items[i], items[j] = items[j], items[i]
		}
	}
	return &sliceIterator{items: items, opts: opts}
}

func (it *sliceIterator) Rewind() {
	it.idx = 0
}

func (it *sliceIterator) Seek(k []byte) {
	it.idx = sort.Search(len(it.items), func(i int) bool {
		if it.opts.Reverse {
			return bytes.Compare(it.items[i].key, k) <= 0
		}
		return bytes.Compare(it.items[i].key, k) >= 0
	})
}

func (it *sliceIterator) Next() ([]byte, data.RecordPosition, bool) {
	for it.idx < len(it.items) {
		item := it.items[it.idx]
		it.idx++
		if hasPrefix(item.key, it.opts.Prefix) {
			return item.key, item.pos, true
		}
	}
	return nil, data.RecordPosition{}, false
}

func (it *sliceIterator) Close() {}
