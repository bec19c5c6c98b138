package data

import "errors"

var (
	// ErrInvalidLogRecordCrc is returned when a decoded record's stored
	// CRC32 does not match the CRC32 computed over its framing bytes.
	ErrInvalidLogRecordCrc = errors.New("data: invalid log record crc")

	// ErrReadDataFileEof is an internal sentinel: a zero key-length and
	// zero value-length header means the scan has reached the unwritten
	// tail of a segment. Callers treat it as end-of-segment, never as a
	// surfaced error.
	ErrReadDataFileEof = errors.New("data: read data file eof")

	// ErrDataFileNotFound names a lookup of a file id that is not open in
	// the engine's file set. No function in this package returns it; the
	// engine reports that case with its own barrel.ErrDataFileNotFound.
	ErrDataFileNotFound = errors.New("data: data file not found")

	// ErrFailedToParseFileID is returned by DecodePosition when its input
	// does not decode as two varints with a file id that fits in 32 bits.
	ErrFailedToParseFileID = errors.New("data: failed to parse file id")
)
