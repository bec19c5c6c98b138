package barrel

import (
	"sync"
	"sync/atomic"

	"github.com/barreldb/barreldb/internal/data"
	"github.com/barreldb/barreldb/internal/index"
)

type pendingWrite struct {
	value   []byte
	recType data.LogRecordType
}

// WriteBatch stages put/delete calls in memory and commits them as one
// atomic group: either every staged record becomes visible, stamped with
// a single sequence number and closed out by a TxnFinished marker, or
// none of it ever reaches the index.
type WriteBatch struct {
	mu        sync.Mutex
	engine    *Engine
	options   WriteBatchOptions
	pending   map[string]pendingWrite
	committed bool
}

// NewWriteBatch opens a batch against e. It is rejected against a
// persistent-B+tree store that is neither a first load nor has a
// persisted sequence number, since such a store has no reliable way to
// allocate a gap-free sequence number for the batch's records.
func (e *Engine) NewWriteBatch(options WriteBatchOptions) (*WriteBatch, error) {
	if e.options.IndexType == index.BPlusTreeType && !e.isFirstLoad && !e.seqNoFileExists {
		return nil, ErrUnableToUseWriteBatch
	}
	return &WriteBatch{engine: e, options: options, pending: make(map[string]pendingWrite)}, nil
}

// Put stages a put; the last call for a given key within the batch wins.
func (wb *WriteBatch) Put(key, value []byte) error {
	if len(key) == 0 {
		return ErrKeyIsEmpty
	}
	wb.mu.Lock()
	defer wb.mu.Unlock()
	wb.pending[string(key)] = pendingWrite{value: value, recType: data.LogRecordNormal}
	return nil
}

// Delete stages a delete. If key is not currently live, the staged
// entry is simply dropped rather than staging a pointless tombstone.
func (wb *WriteBatch) Delete(key []byte) error {
	if len(key) == 0 {
		return ErrKeyIsEmpty
	}
	wb.mu.Lock()
	defer wb.mu.Unlock()

	if _, ok := wb.engine.index.Get(key); !ok {
		delete(wb.pending, string(key))
		return nil
	}
	wb.pending[string(key)] = pendingWrite{recType: data.LogRecordDeleted}
	return nil
}

// Commit materializes every staged record under the engine's batch
// commit mutex: one sequence number is allocated, every staged record is
// re-keyed with it and appended, a TxnFinished marker closes the run, and
// only then are the staged entries applied to the index. A batch with no
// staged writes commits as a no-op. Calling Commit twice on the same
// batch fails without re-appending anything.
func (wb *WriteBatch) Commit() error {
	wb.mu.Lock()
	defer wb.mu.Unlock()

	if wb.committed {
		return ErrBatchAlreadyCommitted
	}
	if len(wb.pending) == 0 {
		return nil
	}
	if uint(len(wb.pending)) > wb.options.MaxBatchSize {
		return ErrBatchSizeExceeded
	}

	engine := wb.engine
	engine.batchCommitMu.Lock()
	defer engine.batchCommitMu.Unlock()

	seqNo := atomic.AddUint64(&engine.seqNo, 1) - 1

	positions := make(map[string]data.RecordPosition, len(wb.pending))
	for keyStr, w := range wb.pending {
		rec := data.LogRecord{Key: encodeSeqKey(seqNo, []byte(keyStr)), Value: w.value, Type: w.recType}
		pos, err := engine.appendLogRecord(rec)
		if err != nil {
			return err
		}
		positions[keyStr] = pos
	}

	finMarker := data.LogRecord{Key: encodeSeqKey(seqNo, []byte(txnFinishedKey)), Type: data.LogRecordTxnFinished}
	if _, err := engine.appendLogRecord(finMarker); err != nil {
		return err
	}

	if wb.options.SyncWrite {
		if err := engine.Sync(); err != nil {
			return err
		}
	}

	for keyStr, w := range wb.pending {
		key := []byte(keyStr)
		if w.recType == data.LogRecordDeleted {
			engine.index.Delete(key)
		} else {
			engine.index.Put(key, positions[keyStr])
		}
	}

	wb.pending = make(map[string]pendingWrite)
	wb.committed = true
	return nil
}
