// Package barrel implements the storage engine: the active/older data
// files, the index, atomic write batches, merge (compaction) and
// snapshot iteration, all behind a single Engine handle.
package barrel

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"github.com/barreldb/barreldb/internal/data"
	"github.com/barreldb/barreldb/internal/fio"
	"github.com/barreldb/barreldb/internal/index"
)

const fileLockName = "file-lock"

// Engine is the top-level store handle. It owns exactly one active data
// file, a set of older (frozen) data files, one index and one
// monotonically increasing sequence-number counter, and holds an
// exclusive directory lock for its lifetime.
type Engine struct {
	options Options
	logger  *zap.Logger

	dirLock *flock.Flock

	activeMu   sync.RWMutex
	activeFile *data.DataFile

	olderMu    sync.RWMutex
	olderFiles map[uint32]*data.DataFile

	index index.Indexer

	seqNo uint64 // accessed only via sync/atomic

	batchCommitMu sync.Mutex
	mergeMu       sync.Mutex

	bytesSinceSync uint

	// seqNoFileExists records whether a sequence-number file was present
	// at open, needed to decide whether a persistent-B+tree store that
	// is not a first load may safely start a WriteBatch.
	seqNoFileExists bool
	isFirstLoad     bool
}

// Open opens (creating if absent) the store rooted at options.DirPath.
func Open(options Options) (*Engine, error) {
	if err := options.validate(); err != nil {
		return nil, err
	}

	logger := options.logger()

	isFirstLoad := false
	if _, err := os.Stat(options.DirPath); os.IsNotExist(err) {
		isFirstLoad = true
		if err := os.MkdirAll(options.DirPath, 0755); err != nil {
			return nil, fmt.Errorf("barrel: create database dir: %w", ErrFailedToCreateDatabaseDir)
		}
	} else if err != nil {
		return nil, fmt.Errorf("barrel: stat database dir: %w", err)
	} else {
		entries, err := os.ReadDir(options.DirPath)
		if err != nil {
			return nil, fmt.Errorf("barrel: read database dir: %w", ErrFailedToReadDatabaseDir)
		}
		isFirstLoad = len(entries) == 0
	}

	dirLock := flock.New(filepath.Join(options.DirPath, fileLockName))
	locked, err := dirLock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("barrel: acquire directory lock: %w", ErrFailedToCreateFileLock)
	}
	if !locked {
		return nil, ErrDatabaseIsUsing
	}

	engine := &Engine{
		options:     options,
		logger:      logger,
		dirLock:     dirLock,
		olderFiles:  make(map[uint32]*data.DataFile),
		isFirstLoad: isFirstLoad,
	}

	ok := false
	defer func() {
		if !ok {
			_ = dirLock.Unlock()
		}
	}()

	if err := engine.loadMergeFiles(); err != nil {
		return nil, err
	}

	if err := engine.loadDataFiles(); err != nil {
		return nil, err
	}

	idx, err := newIndexer(options)
	if err != nil {
		return nil, err
	}
	engine.index = idx

	if options.IndexType != index.BPlusTreeType {
		if err := engine.loadIndexFromHintFile(); err != nil {
			return nil, err
		}
		if err := engine.loadIndexFromDataFiles(); err != nil {
			return nil, err
		}
	} else {
		seqNo, seqFileExists, err := engine.loadSeqNoFile()
		if err != nil {
			return nil, err
		}
		engine.seqNoFileExists = seqFileExists
		atomic.StoreUint64(&engine.seqNo, seqNo)

		size, err := engine.activeFile.Size()
		if err != nil {
			return nil, fmt.Errorf("barrel: stat active file: %w", err)
		}
		engine.activeFile.SetWriteOffset(size)
	}

	logger.Info("engine opened", zap.String("dir", options.DirPath), zap.Bool("first_load", isFirstLoad))
	ok = true
	return engine, nil
}

func newIndexer(options Options) (index.Indexer, error) {
	switch options.IndexType {
	case index.SkipListType:
		return index.NewSkipListIndex(), nil
	case index.BPlusTreeType:
		idx, err := index.NewBPlusTreeIndex(options.DirPath)
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		return index.NewBTreeIndex(), nil
	}
}

// loadDataFiles enumerates *.data files, opens each, and designates the
// highest-numbered one active.
func (e *Engine) loadDataFiles() error {
	entries, err := os.ReadDir(e.options.DirPath)
	if err != nil {
		return fmt.Errorf("barrel: read database dir: %w", ErrFailedToReadDatabaseDir)
	}

	var fileIDs []int
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, data.DataFileNameSuffix) {
			continue
		}
		idStr := strings.TrimSuffix(name, data.DataFileNameSuffix)
		id, err := strconv.Atoi(idStr)
		if err != nil {
			return fmt.Errorf("barrel: parse data file id %q: %w", name, ErrFailedToParseFileID)
		}
		fileIDs = append(fileIDs, id)
	}
	sort.Ints(fileIDs)

	if len(fileIDs) == 0 {
		active, err := data.Open(e.options.DirPath, 0, fio.IOTypeStandardFile)
		if err != nil {
			return fmt.Errorf("barrel: open initial data file: %w", ErrOpenFileError)
		}
		e.activeFile = active
		return nil
	}

	for i, id := range fileIDs {
		// The active file must stay writable, so it always uses the
		// standard file backend even when IOType asks for a memory map;
		// only frozen files are eligible to be mapped.
		ioType := e.options.IOType
		if i == len(fileIDs)-1 {
			ioType = fio.IOTypeStandardFile
		}
		df, err := data.Open(e.options.DirPath, uint32(id), ioType)
		if err != nil {
			return fmt.Errorf("barrel: open data file %d: %w", id, ErrOpenFileError)
		}
		if i == len(fileIDs)-1 {
			e.activeFile = df
		} else {
			e.olderFiles[uint32(id)] = df
		}
	}
	return nil
}

// loadSeqNoFile reads the persisted sequence number, if any.
func (e *Engine) loadSeqNoFile() (uint64, bool, error) {
	path := filepath.Join(e.options.DirPath, data.SequenceNumberFileName)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return 1, false, nil
	}

	df, err := data.OpenSequenceNumberFile(e.options.DirPath)
	if err != nil {
		return 0, false, fmt.Errorf("barrel: open sequence number file: %w", ErrOpenFileError)
	}
	defer df.Close()

	rec, err := df.ReadLogRecord(0)
	if err != nil {
		return 1, true, nil
	}
	seqNo, err := strconv.ParseUint(string(rec.Record.Value), 10, 64)
	if err != nil {
		return 1, true, nil
	}
	return seqNo, true, nil
}

// getActiveFile returns the currently active file under a read lock. The
// caller must not retain it past the lock's scope if a rotation could
// follow.
func (e *Engine) getActiveFile() *data.DataFile {
	e.activeMu.RLock()
	defer e.activeMu.RUnlock()
	return e.activeFile
}

func (e *Engine) getOlderFile(fileID uint32) (*data.DataFile, bool) {
	e.olderMu.RLock()
	defer e.olderMu.RUnlock()
	df, ok := e.olderFiles[fileID]
	return df, ok
}

// getValueByPosition dereferences pos through the active or an older
// file and returns the record stored there.
func (e *Engine) getValueByPosition(pos data.RecordPosition) (data.LogRecord, error) {
	var df *data.DataFile

	active := e.getActiveFile()
	if active.FileID() == pos.FileID {
		df = active
	} else if older, ok := e.getOlderFile(pos.FileID); ok {
		df = older
	} else {
		return data.LogRecord{}, ErrDataFileNotFound
	}

	read, err := df.ReadLogRecord(pos.Offset)
	if err != nil {
		return data.LogRecord{}, fmt.Errorf("barrel: read data file: %w", err)
	}
	return read.Record, nil
}

// appendLogRecord encodes rec, rotating the active file first if it
// would overflow options.DataFileSize, and returns the position the
// record was written at.
func (e *Engine) appendLogRecord(rec data.LogRecord) (data.RecordPosition, error) {
	e.activeMu.Lock()
	defer e.activeMu.Unlock()

	encoded := data.Encode(rec)
	size := int64(len(encoded))

	if e.activeFile.WriteOffset()+size > e.options.DataFileSize {
		if err := e.activeFile.Sync(); err != nil {
			return data.RecordPosition{}, fmt.Errorf("barrel: sync before rotation: %w", ErrSyncFileError)
		}

		frozenID := e.activeFile.FileID()
		e.olderMu.Lock()
		e.olderFiles[frozenID] = e.activeFile
		e.olderMu.Unlock()

		newFile, err := data.Open(e.options.DirPath, frozenID+1, fio.IOTypeStandardFile)
		if err != nil {
			return data.RecordPosition{}, fmt.Errorf("barrel: open rotated data file: %w", ErrOpenFileError)
		}
		e.activeFile = newFile
		e.logger.Info("rotated active data file", zap.Uint32("new_file_id", frozenID+1))
	}

	writeOffset := e.activeFile.WriteOffset()
	if _, err := e.activeFile.Append(encoded); err != nil {
		return data.RecordPosition{}, fmt.Errorf("barrel: append log record: %w", ErrWriteToDataFileError)
	}

	e.bytesSinceSync += uint(size)
	shouldSync := e.options.SyncWrite
	if !shouldSync && e.options.BytesPerSync > 0 && e.bytesSinceSync >= e.options.BytesPerSync {
		shouldSync = true
	}
	if shouldSync {
		if err := e.activeFile.Sync(); err != nil {
			return data.RecordPosition{}, fmt.Errorf("barrel: sync active file: %w", ErrSyncFileError)
		}
		e.bytesSinceSync = 0
	}

	return data.RecordPosition{FileID: e.activeFile.FileID(), Offset: writeOffset}, nil
}

// Put writes key/value as a single auto-commit record.
func (e *Engine) Put(key, value []byte) error {
	if len(key) == 0 {
		return ErrKeyIsEmpty
	}

	rec := data.LogRecord{Key: encodeSeqKey(nonTxnSeqNo, key), Value: value, Type: data.LogRecordNormal}
	pos, err := e.appendLogRecord(rec)
	if err != nil {
		return err
	}

	if !e.index.Put(key, pos) {
		return ErrFailedToUpdateIndex
	}
	return nil
}

// Get looks key up and reads its current value.
func (e *Engine) Get(key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, ErrKeyIsEmpty
	}

	pos, ok := e.index.Get(key)
	if !ok {
		return nil, ErrKeyNotFound
	}

	rec, err := e.getValueByPosition(pos)
	if err != nil {
		return nil, err
	}
	if rec.Type == data.LogRecordDeleted {
		return nil, ErrKeyNotFound
	}
	return rec.Value, nil
}

// Delete removes key, appending a tombstone record first.
func (e *Engine) Delete(key []byte) error {
	if len(key) == 0 {
		return ErrKeyIsEmpty
	}
	if _, ok := e.index.Get(key); !ok {
		return ErrKeyNotFound
	}

	rec := data.LogRecord{Key: encodeSeqKey(nonTxnSeqNo, key), Type: data.LogRecordDeleted}
	if _, err := e.appendLogRecord(rec); err != nil {
		return err
	}

	if !e.index.Delete(key) {
		return ErrFailedToUpdateIndex
	}
	return nil
}

// Sync durably flushes the active file.
func (e *Engine) Sync() error {
	active := e.getActiveFile()
	if err := active.Sync(); err != nil {
		return fmt.Errorf("barrel: sync: %w", ErrSyncFileError)
	}
	return nil
}

// Close persists the sequence number (best-effort), flushes the active
// file and releases the directory lock. Calling Close a second time on
// the same handle is not supported; the lock it would try to release is
// already gone.
func (e *Engine) Close() error {
	if e.activeFile == nil {
		return nil
	}

	if err := e.persistSeqNoFile(); err != nil {
		e.logger.Warn("failed to persist sequence number file", zap.Error(err))
	}

	if err := e.activeFile.Sync(); err != nil {
		return fmt.Errorf("barrel: sync on close: %w", ErrSyncFileError)
	}
	if err := e.activeFile.Close(); err != nil {
		return fmt.Errorf("barrel: close active file: %w", err)
	}

	e.olderMu.RLock()
	for _, df := range e.olderFiles {
		_ = df.Close()
	}
	e.olderMu.RUnlock()

	if err := e.index.Close(); err != nil {
		return fmt.Errorf("barrel: close index: %w", err)
	}

	if err := e.dirLock.Unlock(); err != nil {
		return fmt.Errorf("barrel: release directory lock: %w", ErrFailedToUnlockFileLock)
	}

	e.logger.Info("engine closed", zap.String("dir", e.options.DirPath))
	return nil
}

func (e *Engine) persistSeqNoFile() error {
	// loadSeqNoFile reads only the first record, so drop any record an
	// earlier close left behind before writing the current value.
	path := filepath.Join(e.options.DirPath, data.SequenceNumberFileName)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}

	df, err := data.OpenSequenceNumberFile(e.options.DirPath)
	if err != nil {
		return err
	}
	defer df.Close()

	seqNo := atomic.LoadUint64(&e.seqNo)
	rec := data.LogRecord{Value: []byte(strconv.FormatUint(seqNo, 10)), Type: data.LogRecordNormal}
	if _, err := df.Append(data.Encode(rec)); err != nil {
		return err
	}
	return df.Sync()
}

// Stat summarizes the store's current on-disk footprint.
type Stat struct {
	KeyCount         int
	DataFileCount    int
	ReclaimableBytes int64
}

// Stat reports key count, segment count and an estimate of the bytes a
// merge could reclaim.
func (e *Engine) Stat() (Stat, error) {
	stat := Stat{KeyCount: len(e.index.ListKeys())}

	e.olderMu.RLock()
	stat.DataFileCount = len(e.olderFiles) + 1
	e.olderMu.RUnlock()

	totalSize, err := e.totalDataFileSize()
	if err != nil {
		return Stat{}, err
	}
	stat.ReclaimableBytes = totalSize - e.liveDataSize()
	if stat.ReclaimableBytes < 0 {
		stat.ReclaimableBytes = 0
	}
	return stat, nil
}

func (e *Engine) totalDataFileSize() (int64, error) {
	var total int64

	active := e.getActiveFile()
	size, err := active.Size()
	if err != nil {
		return 0, fmt.Errorf("barrel: stat active file: %w", err)
	}
	total += size

	e.olderMu.RLock()
	defer e.olderMu.RUnlock()
	for _, df := range e.olderFiles {
		size, err := df.Size()
		if err != nil {
			return 0, fmt.Errorf("barrel: stat data file: %w", err)
		}
		total += size
	}
	return total, nil
}

func (e *Engine) liveDataSize() int64 {
	var total int64
	for _, key := range e.index.ListKeys() {
		pos, ok := e.index.Get(key)
		if !ok {
			continue
		}
		rec, err := e.getValueByPosition(pos)
		if err != nil {
			continue
		}
		total += int64(data.EncodedLen(encodeSeqKey(nonTxnSeqNo, key), rec.Value))
	}
	return total
}

// Backup copies every current data file into dstDir, which must not
// already exist. It does not copy the lock file or an in-progress merge
// directory, making it a cheap one-shot replication primitive.
func (e *Engine) Backup(dstDir string) error {
	e.activeMu.RLock()
	e.olderMu.RLock()
	defer e.olderMu.RUnlock()
	defer e.activeMu.RUnlock()

	if err := os.MkdirAll(dstDir, 0755); err != nil {
		return fmt.Errorf("barrel: create backup dir: %w", err)
	}

	entries, err := os.ReadDir(e.options.DirPath)
	if err != nil {
		return fmt.Errorf("barrel: read database dir: %w", ErrFailedToReadDatabaseDir)
	}

	for _, entry := range entries {
		name := entry.Name()
		if name == fileLockName || !strings.HasSuffix(name, data.DataFileNameSuffix) {
			continue
		}
		if err := copyFile(filepath.Join(e.options.DirPath, name), filepath.Join(dstDir, name)); err != nil {
			return fmt.Errorf("barrel: backup %s: %w", name, err)
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
