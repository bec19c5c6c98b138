package barrel

import (
	"github.com/barreldb/barreldb/internal/index"
)

// Iterator is a thin adapter over an index snapshot: it pulls the next
// (key, position) pair from the index and dereferences the position
// through the engine to read the current value.
type Iterator struct {
	engine *Engine
	inner  index.Iterator
	err    error
}

// Iterator opens a snapshot iterator. Callers must call Close once done
// to release any resources the underlying index backend holds open.
func (e *Engine) Iterator(options IteratorOptions) *Iterator {
	return &Iterator{engine: e, inner: e.index.Iterator(options.toIndexOptions())}
}

// Rewind returns the iterator to its starting position.
func (it *Iterator) Rewind() {
	it.inner.Rewind()
}

// Seek positions the iterator per the underlying index's seek contract.
func (it *Iterator) Seek(key []byte) {
	it.inner.Seek(key)
}

// Next advances and returns the current key/value pair, or ok=false once
// the snapshot is exhausted or a dereference fails; check Err after a
// false result to tell the two apart.
func (it *Iterator) Next() (key, value []byte, ok bool) {
	k, pos, has := it.inner.Next()
	if !has {
		return nil, nil, false
	}
	rec, err := it.engine.getValueByPosition(pos)
	if err != nil {
		it.err = err
		return nil, nil, false
	}
	return k, rec.Value, true
}

// Err returns the error, if any, that caused the most recent Next to
// stop short of exhaustion.
func (it *Iterator) Err() error {
	return it.err
}

// Close releases the underlying index iterator's resources.
func (it *Iterator) Close() {
	it.inner.Close()
}

// ListKeys returns every live key in ascending order.
func (e *Engine) ListKeys() [][]byte {
	return e.index.ListKeys()
}

// Fold iterates every live key/value pair in ascending order, calling f
// for each; it stops early the first time f returns false.
func (e *Engine) Fold(f func(key, value []byte) bool) error {
	it := e.Iterator(DefaultIteratorOptions)
	defer it.Close()

	for {
		key, value, ok := it.Next()
		if !ok {
			return it.Err()
		}
		if !f(key, value) {
			return nil
		}
	}
}
