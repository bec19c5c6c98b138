package barrel

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/barreldb/barreldb/internal/data"
)

// TestCrashMidAppendTornTailDiscarded simulates a process that died partway
// through writing its last record: the tail bytes on disk are garbage, not
// a valid framed record. Reopening must succeed, recover every record that
// was fully flushed, and silently drop the torn one.
func TestCrashMidAppendTornTailDiscarded(t *testing.T) {
	dir := t.TempDir()
	opts := DefaultOptions(dir)
	e, err := Open(opts)
	require.NoError(t, err)

	require.NoError(t, e.Put([]byte("k1"), []byte("v1")))
	require.NoError(t, e.Put([]byte("k2"), []byte("v2")))
	validSize, err := e.activeFile.Size()
	require.NoError(t, err)

	// Append a torn, not-yet-fully-written record: a real header claiming
	// a value longer than the bytes that actually follow, so the CRC check
	// fails rather than a clean EOF.
	torn := data.Encode(data.LogRecord{Key: []byte("\x00k3"), Value: []byte("v3"), Type: data.LogRecordNormal})
	torn = torn[:len(torn)-2] // drop the trailing CRC bytes
	_, err = e.activeFile.Append(torn)
	require.NoError(t, err)
	require.NoError(t, e.activeFile.Sync())
	require.NoError(t, e.activeFile.Close())
	require.NoError(t, e.dirLock.Unlock())

	e2, err := Open(opts)
	require.NoError(t, err)
	defer e2.Close()

	v, err := e2.Get([]byte("k1"))
	require.NoError(t, err)
	assert.Equal(t, "v1", string(v))
	v, err = e2.Get([]byte("k2"))
	require.NoError(t, err)
	assert.Equal(t, "v2", string(v))

	_, err = e2.Get([]byte("k3"))
	assert.ErrorIs(t, err, ErrKeyNotFound)

	size, err := e2.activeFile.Size()
	require.NoError(t, err)
	assert.Equal(t, validSize, size)

	// The torn bytes were truncated off, so a fresh append lands exactly
	// where the last valid record ended rather than leaving a permanent
	// gap of garbage before it.
	require.NoError(t, e2.Put([]byte("k4"), []byte("v4")))
	v, err = e2.Get([]byte("k4"))
	require.NoError(t, err)
	assert.Equal(t, "v4", string(v))
}

// TestCrashDuringBatchCommitDiscardsUnterminatedGroup simulates a crash
// between writing a batch's sub-records and its TxnFinished marker: on
// recovery none of that batch's writes are visible.
func TestCrashDuringBatchCommitDiscardsUnterminatedGroup(t *testing.T) {
	dir := t.TempDir()
	opts := DefaultOptions(dir)
	e, err := Open(opts)
	require.NoError(t, err)

	require.NoError(t, e.Put([]byte("before"), []byte("v0")))

	seqNo := uint64(1)
	pos, err := e.appendLogRecord(data.LogRecord{
		Key: encodeSeqKey(seqNo, []byte("staged")), Value: []byte("v1"), Type: data.LogRecordNormal,
	})
	require.NoError(t, err)
	_ = pos
	// No TxnFinished marker is ever written for seqNo 1: the process died
	// before the batch commit completed.

	require.NoError(t, e.activeFile.Close())
	require.NoError(t, e.dirLock.Unlock())

	e2, err := Open(opts)
	require.NoError(t, err)
	defer e2.Close()

	v, err := e2.Get([]byte("before"))
	require.NoError(t, err)
	assert.Equal(t, "v0", string(v))

	_, err = e2.Get([]byte("staged"))
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

// TestActiveFileOSAppendNeverLeavesGarbageBeforeOffset guards the
// interaction between os.O_APPEND (which always writes at the true
// end-of-file) and the reconstruction scan's logical write offset: after
// truncating a torn tail, the file's real on-disk size must match the
// tracked write offset, or a subsequent append would resurrect the
// garbage bytes ahead of the new data.
func TestActiveFileOSAppendNeverLeavesGarbageBeforeOffset(t *testing.T) {
	dir := t.TempDir()
	opts := DefaultOptions(dir)
	e, err := Open(opts)
	require.NoError(t, err)
	require.NoError(t, e.Put([]byte("k1"), []byte("v1")))

	path := data.FileName(dir, e.activeFile.FileID())
	validSize, err := e.activeFile.Size()
	require.NoError(t, err)

	require.NoError(t, e.activeFile.Close())
	require.NoError(t, e.dirLock.Unlock())

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.Write([]byte{0xDE, 0xAD, 0xBE, 0xEF})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	e2, err := Open(opts)
	require.NoError(t, err)
	defer e2.Close()

	require.NoError(t, e2.Put([]byte("k2"), []byte("v2")))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotEqual(t, byte(0xDE), raw[validSize])
}
