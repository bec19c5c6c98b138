// Package config provides on-disk configuration for a barreldb store: a
// JSON-serializable settings file plus the translation into the
// barrel.Options the engine actually opens with.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/barreldb/barreldb/internal/barrel"
	"github.com/barreldb/barreldb/internal/fio"
	"github.com/barreldb/barreldb/internal/index"
)

// FileConfig is the JSON shape a barreldb deployment keeps on disk,
// separate from barrel.Options because the index/IO backends need to be
// named as strings to round-trip through JSON.
type FileConfig struct {
	DirPath            string  `json:"dir_path"`
	DataFileSize       int64   `json:"data_file_size"`
	SyncWrite          bool    `json:"sync_write"`
	BytesPerSync       uint    `json:"bytes_per_sync"`
	IndexType          string  `json:"index_type"` // "btree", "skiplist", "bptree"
	IOType             string  `json:"io_type"`     // "standard", "mmap"
	DataFileMergeRatio float64 `json:"data_file_merge_ratio"`
	LogLevel           string  `json:"log_level"`
}

// DefaultFileConfig returns the default configuration, rooted at dirPath.
func DefaultFileConfig(dirPath string) *FileConfig {
	return &FileConfig{
		DirPath:            dirPath,
		DataFileSize:       256 * 1024 * 1024,
		SyncWrite:          false,
		BytesPerSync:       0,
		IndexType:          "btree",
		IOType:             "standard",
		DataFileMergeRatio: 0,
		LogLevel:           "info",
	}
}

// Load loads a FileConfig from a JSON file, falling back to
// DefaultFileConfig(dirPath) if path does not exist.
func Load(path, dirPath string) (*FileConfig, error) {
	cfg := DefaultFileConfig(dirPath)

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := json.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes c to path as indented JSON.
func (c *FileConfig) Save(path string) error {
	raw, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, raw, 0644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// ToEngineOptions translates the on-disk config into the Options
// barrel.Open expects, attaching logger for diagnostics.
func (c *FileConfig) ToEngineOptions(logger *zap.Logger) (barrel.Options, error) {
	opts := barrel.DefaultOptions(c.DirPath)
	opts.DataFileSize = c.DataFileSize
	opts.SyncWrite = c.SyncWrite
	opts.BytesPerSync = c.BytesPerSync
	opts.DataFileMergeRatio = c.DataFileMergeRatio
	opts.Logger = logger

	switch c.IndexType {
	case "", "btree":
		opts.IndexType = index.BTreeType
	case "skiplist":
		opts.IndexType = index.SkipListType
	case "bptree":
		opts.IndexType = index.BPlusTreeType
	default:
		return barrel.Options{}, fmt.Errorf("config: unknown index_type %q", c.IndexType)
	}

	switch c.IOType {
	case "", "standard":
		opts.IOType = fio.IOTypeStandardFile
	case "mmap":
		opts.IOType = fio.IOTypeMemoryMap
	default:
		return barrel.Options{}, fmt.Errorf("config: unknown io_type %q", c.IOType)
	}

	return opts, nil
}

// NewLogger builds a zap.Logger at the named level ("debug", "info",
// "warn", "error"); an unrecognized level falls back to "info", matching
// the teacher's server configuration's tolerance for a bad LogLevel
// string rather than refusing to start.
func NewLogger(level string) (*zap.Logger, error) {
	var zapLevel zap.AtomicLevel
	switch level {
	case "debug":
		zapLevel = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn":
		zapLevel = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapLevel = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		zapLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zapLevel
	cfg.Encoding = "console"
	cfg.EncoderConfig.TimeKey = ""

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("config: build logger: %w", err)
	}
	return logger, nil
}
