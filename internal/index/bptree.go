package index

import (
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/barreldb/barreldb/internal/data"
)

const bPlusTreeFileName = "bptree-index"

var bPlusTreeBucketName = []byte("barrel-index")

// BPlusTreeIndex is the persistent backend: a single bbolt database file
// living alongside the log segments, so the key->position mapping
// survives a restart without a log scan. Put/Get/Delete each open their
// own bbolt transaction; Iterator holds a long-lived read-only
// transaction for the life of the returned Iterator, matching bbolt's
// MVCC model (a read transaction sees a consistent snapshot regardless
// of writes that commit after it starts).
type BPlusTreeIndex struct {
	db *bolt.DB
}

// NewBPlusTreeIndex opens (creating if absent) the bbolt database file
// under dirPath.
func NewBPlusTreeIndex(dirPath string) (*BPlusTreeIndex, error) {
	db, err := bolt.Open(filepath.Join(dirPath, bPlusTreeFileName), 0644, nil)
	if err != nil {
		return nil, fmt.Errorf("index: open bptree index: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bPlusTreeBucketName)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("index: create bptree bucket: %w", err)
	}
	return &BPlusTreeIndex{db: db}, nil
}

func (b *BPlusTreeIndex) Put(key []byte, pos data.RecordPosition) bool {
	err := b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bPlusTreeBucketName).Put(key, data.EncodePosition(pos))
	})
	return err == nil
}

func (b *BPlusTreeIndex) Get(key []byte) (data.RecordPosition, bool) {
	var pos data.RecordPosition
	var found bool
	_ = b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bPlusTreeBucketName).Get(key)
		if v == nil {
			return nil
		}
		p, err := data.DecodePosition(v)
		if err != nil {
			return err
		}
		pos, found = p, true
		return nil
	})
	return pos, found
}

func (b *BPlusTreeIndex) Delete(key []byte) bool {
	var existed bool
	_ = b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bPlusTreeBucketName)
		if bucket.Get(key) == nil {
			return nil
		}
		existed = true
		return bucket.Delete(key)
	})
	return existed
}

func (b *BPlusTreeIndex) ListKeys() [][]byte {
	var keys [][]byte
	_ = b.db.View(func(tx *bolt.Tx) error {
		cursor := tx.Bucket(bPlusTreeBucketName).Cursor()
		for k, _ := cursor.First(); k != nil; k, _ = cursor.Next() {
			keys = append(keys, append([]byte(nil), k...))
		}
		return nil
	})
	return keys
}

func (b *BPlusTreeIndex) Iterator(opts IteratorOptions) Iterator {
	tx, err := b.db.Begin(false)
	if err != nil {
		return newSliceIterator(nil, opts)
	}
	it := &bptreeIterator{tx: tx, cursor: tx.Bucket(bPlusTreeBucketName).Cursor(), opts: opts}
	it.Rewind()
	return it
}

func (b *BPlusTreeIndex) Close() error {
	if err := b.db.Close(); err != nil {
		return fmt.Errorf("index: close bptree index: %w", err)
	}
	return nil
}

// bptreeIterator walks a single bbolt read-only transaction's cursor. It
// holds that transaction open until its own Close is called; running Next
// to exhaustion does not release it.
type bptreeIterator struct {
	tx     *bolt.Tx
	cursor *bolt.Cursor
	opts   IteratorOptions
	key    []byte
	val    []byte
	ok     bool
	closed bool
}

func (it *bptreeIterator) Rewind() {
	if it.opts.Reverse {
		it.key, it.val = it.cursor.Last()
	} else {
		it.key, it.val = it.cursor.First()
	}
	it.ok = it.key != nil
}

func (it *bptreeIterator) Seek(k []byte) {
	key, val := it.cursor.Seek(k)
	if it.opts.Reverse {
		if key == nil {
			key, val = it.cursor.Last()
		} else if string(key) != string(k) {
			key, val = it.cursor.Prev()
		}
	}
	it.key, it.val, it.ok = key, val, key != nil
}

func (it *bptreeIterator) Next() ([]byte, data.RecordPosition, bool) {
	for it.ok {
		key, val := it.key, it.val
		if it.opts.Reverse {
			it.key, it.val = it.cursor.Prev()
		} else {
			it.key, it.val = it.cursor.Next()
		}
		it.ok = it.key != nil

		if !hasPrefix(key, it.opts.Prefix) {
			continue
		}
		pos, err := data.DecodePosition(val)
		if err != nil {
			continue
		}
		return key, pos, true
	}
	return nil, data.RecordPosition{}, false
}

// Close rolls back the iterator's read-only transaction. Safe to call
// more than once (bbolt's own Rollback is not idempotent, so this guards
// it) and on an exhausted iterator.
func (it *bptreeIterator) Close() {
	if it.closed {
		return
	}
	it.closed = true
	_ = it.tx.Rollback()
}
