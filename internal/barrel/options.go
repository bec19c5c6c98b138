package barrel

import (
	"go.uber.org/zap"

	"github.com/barreldb/barreldb/internal/fio"
	"github.com/barreldb/barreldb/internal/index"
)

// Options configures Engine.Open.
type Options struct {
	// DirPath is the directory the store lives in. Created if absent.
	DirPath string
	// DataFileSize bounds a segment's size in bytes before rotation.
	DataFileSize int64
	// SyncWrite fsyncs the active file after every append when true.
	SyncWrite bool
	// BytesPerSync fsyncs once this many bytes have been appended since the
	// last sync; zero disables the threshold (only SyncWrite then forces a
	// sync).
	BytesPerSync uint
	// IndexType selects the in-memory (or persistent) index backend.
	IndexType index.Type
	// IOType selects the backend frozen (read-only) data files use. The
	// active file always uses the standard file backend regardless of
	// this setting, since a memory map cannot support appends.
	IOType fio.IOType
	// DataFileMergeRatio gates Merge: if nonzero, Merge returns
	// ErrMergeRatioUnreached when reclaimable/total bytes falls below it.
	// Zero means always allow merge.
	DataFileMergeRatio float64
	// Logger receives structured diagnostics. Nil defaults to a no-op
	// logger so the library is silent unless a caller opts in.
	Logger *zap.Logger
}

// DefaultOptions returns sane defaults for a new store rooted at dirPath.
func DefaultOptions(dirPath string) Options {
	return Options{
		DirPath:            dirPath,
		DataFileSize:       256 * 1024 * 1024,
		SyncWrite:          false,
		BytesPerSync:       0,
		IndexType:          index.BTreeType,
		IOType:             fio.IOTypeStandardFile,
		DataFileMergeRatio: 0,
		Logger:             nil,
	}
}

func (o Options) logger() *zap.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return zap.NewNop()
}

func (o Options) validate() error {
	if o.DirPath == "" {
		return ErrDirPathIsEmpty
	}
	if o.DataFileSize <= 0 {
		return ErrDataFileSizeIsTooSmall
	}
	return nil
}

// WriteBatchOptions configures a WriteBatch.
type WriteBatchOptions struct {
	// MaxBatchSize caps the number of staged records a batch may commit.
	MaxBatchSize uint
	// SyncWrite fsyncs the active file once the batch's records have all
	// been appended.
	SyncWrite bool
}

// DefaultWriteBatchOptions returns sane defaults for a new batch.
func DefaultWriteBatchOptions() WriteBatchOptions {
	return WriteBatchOptions{MaxBatchSize: 8192, SyncWrite: true}
}

// IteratorOptions controls ordering and filtering of Engine.Iterator
// (Engine.Fold always walks with DefaultIteratorOptions). It mirrors index.IteratorOptions so callers of this package
// never need to import internal/index directly.
type IteratorOptions struct {
	Reverse bool
	Prefix  []byte
}

// DefaultIteratorOptions walks forward with no prefix filter.
var DefaultIteratorOptions = IteratorOptions{}

func (o IteratorOptions) toIndexOptions() index.IteratorOptions {
	return index.IteratorOptions{Reverse: o.Reverse, Prefix: o.Prefix}
}
