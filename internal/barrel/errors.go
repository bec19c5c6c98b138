package barrel

import "errors"

// Input errors: rejected before any file or index operation runs.
var (
	ErrKeyIsEmpty             = errors.New("barrel: key is empty")
	ErrDirPathIsEmpty         = errors.New("barrel: dir path is empty")
	ErrDataFileSizeIsTooSmall = errors.New("barrel: data file size must be greater than zero")
	ErrBatchSizeExceeded      = errors.New("barrel: write batch exceeds max batch size")
	ErrUnableToUseWriteBatch  = errors.New("barrel: cannot use a write batch on an existing store with no persisted sequence number")
)

// Lookup errors.
var (
	ErrKeyNotFound      = errors.New("barrel: key not found")
	ErrDataFileNotFound = errors.New("barrel: data file not found")
)

// I/O errors.
var (
	ErrOpenFileError             = errors.New("barrel: failed to open file")
	ErrReadFromDataFileError     = errors.New("barrel: failed to read from data file")
	ErrWriteToDataFileError      = errors.New("barrel: failed to write to data file")
	ErrSyncFileError             = errors.New("barrel: failed to sync file")
	ErrFailedToCreateDatabaseDir = errors.New("barrel: failed to create database directory")
	ErrFailedToReadDatabaseDir   = errors.New("barrel: failed to read database directory")
	ErrFailedToGetDirEntry       = errors.New("barrel: failed to stat directory entry")
	ErrRemoveDirError            = errors.New("barrel: failed to remove directory")
)

// Integrity errors.
var (
	ErrInvalidLogRecordCrc = errors.New("barrel: invalid log record crc")
	ErrFailedToParseFileID = errors.New("barrel: failed to parse data file id")
)

// Concurrency errors.
var (
	ErrDatabaseIsUsing       = errors.New("barrel: the database directory is already in use")
	ErrFailedToCreateFileLock = errors.New("barrel: failed to acquire directory lock")
	ErrFailedToUnlockFileLock = errors.New("barrel: failed to release directory lock")
	ErrMergeInProgress        = errors.New("barrel: a merge is already in progress")
	ErrFailedToUpdateIndex    = errors.New("barrel: failed to update index")
)

// ErrMergeRatioUnreached is returned by Merge when Options.DataFileMergeRatio
// is nonzero and the computed reclaimable/total ratio falls below it.
var ErrMergeRatioUnreached = errors.New("barrel: reclaimable ratio does not reach the configured merge threshold")

// ErrBatchAlreadyCommitted guards against calling Commit twice on the same
// WriteBatch, which would otherwise stamp a second sequence number for
// staged entries already durable on disk.
var ErrBatchAlreadyCommitted = errors.New("barrel: write batch already committed")
