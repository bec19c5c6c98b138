// Package data defines the on-disk record format and the append-only
// data file that stores a sequence of those records.
package data

import (
	"encoding/binary"
	"hash/crc32"
)

// LogRecordType is the one-byte tag stored at the front of every record.
type LogRecordType = byte

const (
	// LogRecordNormal marks a live put.
	LogRecordNormal LogRecordType = 1
	// LogRecordDeleted marks a tombstone.
	LogRecordDeleted LogRecordType = 2
	// LogRecordTxnFinished closes out a WriteBatch's run of records.
	LogRecordTxnFinished LogRecordType = 3
)

// LogRecord is one unit of the log: a key, a value and a type tag.
// The key stored here already carries its sequence-number prefix; callers
// in internal/barrel are responsible for stripping/adding it.
type LogRecord struct {
	Key   []byte
	Value []byte
	Type  LogRecordType
}

// RecordPosition identifies the first byte of a record's framing within a
// numbered data file.
type RecordPosition struct {
	FileID uint32
	Offset int64
}

// ReadRecord bundles a decoded record with the number of bytes its framing
// occupied on disk, so callers can advance a scan cursor.
type ReadRecord struct {
	Record LogRecord
	Size   int64
}

// maxVarintLen32 is the widest a base-128 varint encoding a 32-bit length
// can ever be.
const maxVarintLen32 = 5

// MaxLogRecordHeaderSize is large enough to hold type + two length varints,
// the amount callers must read speculatively before they know the real
// header size.
const MaxLogRecordHeaderSize = 1 + 2*maxVarintLen32

// EncodedLen returns the number of bytes Encode will produce for a record
// with the given key and value, without actually encoding it.
func EncodedLen(key, value []byte) int {
	header := make([]byte, maxVarintLen32*2)
	n := binary.PutUvarint(header, uint64(len(key)))
	n += binary.PutUvarint(header[n:], uint64(len(value)))
	return 1 + n + len(key) + len(value) + 4
}

// Encode serializes the record as:
//
//	type(1) | key_len(varint) | value_len(varint) | key | value | crc32(4, big-endian)
//
// crc32 covers every preceding byte and uses the IEEE/ISO-HDLC polynomial.
func Encode(rec LogRecord) []byte {
	header := make([]byte, maxVarintLen32*2)
	n := binary.PutUvarint(header, uint64(len(rec.Key)))
	n += binary.PutUvarint(header[n:], uint64(len(rec.Value)))

	buf := make([]byte, 1+n+len(rec.Key)+len(rec.Value)+4)
	buf[0] = rec.Type
	copy(buf[1:], header[:n])
	off := 1 + n
	copy(buf[off:], rec.Key)
	off += len(rec.Key)
	copy(buf[off:], rec.Value)
	off += len(rec.Value)

	crc := crc32.ChecksumIEEE(buf[:off])
	binary.BigEndian.PutUint32(buf[off:], crc)
	return buf
}

// EncodeHintRecord builds a hint-file record: the key unprefixed and the
// value is the encoded RecordPosition of its live copy.
func EncodeHintRecord(key []byte, pos RecordPosition) []byte {
	return Encode(LogRecord{Key: key, Value: EncodePosition(pos), Type: LogRecordNormal})
}

// EncodePosition concatenates two varints: file_id then offset.
func EncodePosition(pos RecordPosition) []byte {
	buf := make([]byte, binary.MaxVarintLen32+binary.MaxVarintLen64)
	n := binary.PutUvarint(buf, uint64(pos.FileID))
	n += binary.PutUvarint(buf[n:], uint64(pos.Offset))
	return buf[:n]
}

// DecodePosition is the inverse of EncodePosition. file_id is validated to
// fit in 32 bits even though it travels the wire as a varint-encoded
// 64-bit quantity.
func DecodePosition(b []byte) (RecordPosition, error) {
	fileID, n := binary.Uvarint(b)
	if n <= 0 {
		return RecordPosition{}, ErrFailedToParseFileID
	}
	offset, n2 := binary.Uvarint(b[n:])
	if n2 <= 0 {
		return RecordPosition{}, ErrFailedToParseFileID
	}
	if fileID > 0xFFFFFFFF {
		return RecordPosition{}, ErrFailedToParseFileID
	}
	return RecordPosition{FileID: uint32(fileID), Offset: int64(offset)}, nil
}
