package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/barreldb/barreldb/internal/fio"
	"github.com/barreldb/barreldb/internal/index"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(filepath.Join(dir, "missing.json"), dir)
	require.NoError(t, err)
	assert.Equal(t, DefaultFileConfig(dir), cfg)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "barreldb.json")

	cfg := DefaultFileConfig(dir)
	cfg.DataFileSize = 1024
	cfg.SyncWrite = true
	cfg.IndexType = "skiplist"
	cfg.IOType = "mmap"
	cfg.DataFileMergeRatio = 0.5
	cfg.LogLevel = "debug"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path, dir)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestToEngineOptionsTranslatesBackends(t *testing.T) {
	cases := []struct {
		indexType string
		ioType    string
		wantIndex index.Type
		wantIO    fio.IOType
	}{
		{"", "", index.BTreeType, fio.IOTypeStandardFile},
		{"btree", "standard", index.BTreeType, fio.IOTypeStandardFile},
		{"skiplist", "mmap", index.SkipListType, fio.IOTypeMemoryMap},
		{"bptree", "standard", index.BPlusTreeType, fio.IOTypeStandardFile},
	}

	for _, tc := range cases {
		cfg := DefaultFileConfig(t.TempDir())
		cfg.IndexType = tc.indexType
		cfg.IOType = tc.ioType

		opts, err := cfg.ToEngineOptions(nil)
		require.NoError(t, err)
		assert.Equal(t, tc.wantIndex, opts.IndexType)
		assert.Equal(t, tc.wantIO, opts.IOType)
	}
}

func TestToEngineOptionsRejectsUnknownBackends(t *testing.T) {
	cfg := DefaultFileConfig(t.TempDir())
	cfg.IndexType = "not-a-real-index"
	_, err := cfg.ToEngineOptions(nil)
	assert.Error(t, err)

	cfg = DefaultFileConfig(t.TempDir())
	cfg.IOType = "not-a-real-io"
	_, err = cfg.ToEngineOptions(nil)
	assert.Error(t, err)
}

func TestToEngineOptionsCarriesDataFileSettings(t *testing.T) {
	cfg := DefaultFileConfig(t.TempDir())
	cfg.DataFileSize = 4096
	cfg.SyncWrite = true
	cfg.BytesPerSync = 512
	cfg.DataFileMergeRatio = 0.25

	opts, err := cfg.ToEngineOptions(nil)
	require.NoError(t, err)
	assert.Equal(t, int64(4096), opts.DataFileSize)
	assert.True(t, opts.SyncWrite)
	assert.Equal(t, uint(512), opts.BytesPerSync)
	assert.Equal(t, 0.25, opts.DataFileMergeRatio)
}

func TestNewLoggerAcceptsKnownLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "garbage"} {
		logger, err := NewLogger(level)
		require.NoError(t, err)
		require.NotNil(t, logger)
		logger.Sync()
	}
}
