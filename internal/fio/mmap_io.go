package fio

import (
	"fmt"
	"os"
	"sync"

	"github.com/edsrzf/mmap-go"
)

// MmapIO is the read-only, memory-mapped backend. It exists to accelerate
// index reconstruction at startup by avoiding a syscall per record read;
// it is never the active file's backend, since it cannot append.
type MmapIO struct {
	mu   sync.RWMutex
	fd   *os.File
	data mmap.MMap
}

func newMmapIO(path string) (*MmapIO, error) {
	fd, err := os.OpenFile(path, os.O_CREATE|os.O_RDONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("fio: open %s for mmap: %w", path, err)
	}

	info, err := fd.Stat()
	if err != nil {
		fd.Close()
		return nil, fmt.Errorf("fio: stat %s: %w", path, err)
	}

	// A zero-length file cannot be mapped; fall back to an empty region
	// that always reports eof, which is exactly what a freshly created
	// segment should do.
	if info.Size() == 0 {
		return &MmapIO{fd: fd, data: mmap.MMap{}}, nil
	}

	m, err := mmap.MapRegion(fd, int(info.Size()), mmap.RDONLY, 0, 0)
	if err != nil {
		fd.Close()
		return nil, fmt.Errorf("fio: mmap %s: %w", path, err)
	}
	return &MmapIO{fd: fd, data: m}, nil
}

// Read copies from the mapped region at offset.
func (m *MmapIO) Read(buf []byte, offset int64) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	// Past end-of-file reads no bytes rather than erroring: callers that
	// speculatively read a full header near a segment's tail rely on an
	// unfilled, zero-initialized buffer decoding as the eof sentinel, the
	// same contract FileIO.Read honors for a short ReadAt.
	if offset >= int64(len(m.data)) {
		return 0, nil
	}
	n := copy(buf, m.data[offset:])
	return n, nil
}

// Write always fails: MmapIO is read-only by contract.
func (m *MmapIO) Write(buf []byte) (int, error) {
	return 0, ErrMmapWriteUnsupported
}

// Sync always fails: MmapIO is read-only by contract.
func (m *MmapIO) Sync() error {
	return ErrMmapWriteUnsupported
}

// Size returns the length of the mapped region.
func (m *MmapIO) Size() (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.data)), nil
}

// Close unmaps the region and closes the underlying file.
func (m *MmapIO) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.data) > 0 {
		if err := m.data.Unmap(); err != nil {
			m.fd.Close()
			return fmt.Errorf("fio: unmap: %w", err)
		}
	}
	return m.fd.Close()
}
