package data

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"path/filepath"
	"sync"

	"github.com/barreldb/barreldb/internal/fio"
)

// DataFileNameSuffix is the extension every numbered segment carries.
const DataFileNameSuffix = ".data"

// HintFileName is the fixed name of the compact key->position index a
// merge produces.
const HintFileName = "hint-index"

// MergeFinishedFileName is the fixed name of the single-record marker a
// merge writes last, once it has fully committed its output.
const MergeFinishedFileName = "merge-finished"

// SequenceNumberFileName is the fixed name of the file that persists the
// last sequence number across a clean close, used only by the persistent
// B+tree index backend.
const SequenceNumberFileName = "sequence.number.file"

// DataFile is one numbered append-only log segment. Only the engine's
// active file is ever appended to; every other DataFile is frozen and
// safe for concurrent positional reads.
type DataFile struct {
	mu          sync.RWMutex
	fileID      uint32
	writeOffset int64
	io          fio.IOManager
}

// FileName returns the zero-padded, 9-digit data-file name for fileID.
func FileName(dirPath string, fileID uint32) string {
	return filepath.Join(dirPath, fmt.Sprintf("%09d%s", fileID, DataFileNameSuffix))
}

// Open opens or creates the numbered segment file, positioning the write
// offset at its current on-disk size.
func Open(dirPath string, fileID uint32, ioType fio.IOType) (*DataFile, error) {
	return openNamed(FileName(dirPath, fileID), fileID, ioType)
}

// OpenHintFile opens or creates the fixed-name hint sidecar file.
func OpenHintFile(dirPath string) (*DataFile, error) {
	return openNamed(filepath.Join(dirPath, HintFileName), 0, fio.IOTypeStandardFile)
}

// OpenMergeFinishedFile opens or creates the fixed-name merge-finished
// sidecar file.
func OpenMergeFinishedFile(dirPath string) (*DataFile, error) {
	return openNamed(filepath.Join(dirPath, MergeFinishedFileName), 0, fio.IOTypeStandardFile)
}

// OpenSequenceNumberFile opens or creates the fixed-name sequence-number
// sidecar file.
func OpenSequenceNumberFile(dirPath string) (*DataFile, error) {
	return openNamed(filepath.Join(dirPath, SequenceNumberFileName), 0, fio.IOTypeStandardFile)
}

func openNamed(path string, fileID uint32, ioType fio.IOType) (*DataFile, error) {
	manager, err := fio.NewIOManager(path, ioType)
	if err != nil {
		return nil, err
	}
	size, err := manager.Size()
	if err != nil {
		return nil, err
	}
	return &DataFile{fileID: fileID, writeOffset: size, io: manager}, nil
}

// FileID returns the segment's numeric id.
func (df *DataFile) FileID() uint32 {
	df.mu.RLock()
	defer df.mu.RUnlock()
	return df.fileID
}

// WriteOffset returns the next offset a successful Append will write to.
func (df *DataFile) WriteOffset() int64 {
	df.mu.RLock()
	defer df.mu.RUnlock()
	return df.writeOffset
}

// SetWriteOffset overrides the tracked write offset. Used when the engine
// sets the active file's offset at open: to where the reconstruction scan
// stopped, or to the file's on-disk size for the persistent B+tree index.
func (df *DataFile) SetWriteOffset(offset int64) {
	df.mu.Lock()
	defer df.mu.Unlock()
	df.writeOffset = offset
}

// Append writes buf to the end of the segment and advances the write
// offset by exactly the number of bytes written; it never partially
// updates the offset on a successful call.
func (df *DataFile) Append(buf []byte) (int, error) {
	df.mu.Lock()
	defer df.mu.Unlock()
	n, err := df.io.Write(buf)
	if err != nil {
		return n, err
	}
	df.writeOffset += int64(n)
	return n, nil
}

// Sync durably flushes the segment.
func (df *DataFile) Sync() error {
	return df.io.Sync()
}

// Close releases the segment's file handle.
func (df *DataFile) Close() error {
	return df.io.Close()
}

// Size returns the segment's current on-disk size.
func (df *DataFile) Size() (int64, error) {
	return df.io.Size()
}

// truncater is implemented by IOManager backends that support shrinking
// their backing file; MmapIO does not, since it is read-only.
type truncater interface {
	Truncate(size int64) error
}

// Truncate shrinks the segment to size, discarding a torn tail record
// left by a crash mid-append. It is a no-op against a backend that
// cannot truncate.
func (df *DataFile) Truncate(size int64) error {
	df.mu.Lock()
	defer df.mu.Unlock()
	t, ok := df.io.(truncater)
	if !ok {
		return nil
	}
	if err := t.Truncate(size); err != nil {
		return err
	}
	df.writeOffset = size
	return nil
}

// ReadLogRecord decodes one framed record starting at offset. It returns
// ErrReadDataFileEof, never wrapped, when both decoded lengths are zero —
// callers use errors.Is against that sentinel to stop a scan, not to
// treat the segment as corrupt.
func (df *DataFile) ReadLogRecord(offset int64) (ReadRecord, error) {
	header := make([]byte, MaxLogRecordHeaderSize)
	if _, err := df.io.Read(header, offset); err != nil {
		return ReadRecord{}, err
	}

	recType := header[0]
	rest := header[1:]
	keyLen, kn := binary.Uvarint(rest)
	if kn <= 0 {
		return ReadRecord{}, ErrReadDataFileEof
	}
	rest = rest[kn:]
	valueLen, vn := binary.Uvarint(rest)
	if vn <= 0 {
		return ReadRecord{}, ErrReadDataFileEof
	}

	if keyLen == 0 && valueLen == 0 {
		return ReadRecord{}, ErrReadDataFileEof
	}

	actualHeaderSize := int64(1 + kn + vn)
	body := make([]byte, int64(keyLen)+int64(valueLen)+4)
	if _, err := df.io.Read(body, offset+actualHeaderSize); err != nil {
		return ReadRecord{}, err
	}

	key := body[:keyLen]
	value := body[keyLen : uint64(keyLen)+valueLen]
	storedCRC := binary.BigEndian.Uint32(body[uint64(keyLen)+valueLen:])

	crcInput := make([]byte, 0, actualHeaderSize+int64(keyLen)+int64(valueLen))
	crcInput = append(crcInput, recType)
	crcInput = append(crcInput, header[1:1+kn+vn]...)
	crcInput = append(crcInput, key...)
	crcInput = append(crcInput, value...)
	if crc32.ChecksumIEEE(crcInput) != storedCRC {
		return ReadRecord{}, ErrInvalidLogRecordCrc
	}

	return ReadRecord{
		Record: LogRecord{Key: append([]byte(nil), key...), Value: append([]byte(nil), value...), Type: recType},
		Size:   actualHeaderSize + int64(keyLen) + int64(valueLen) + 4,
	}, nil
}
