package updatelog

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hupe1980/searchgo/codec"
	"github.com/hupe1980/searchgo/internal/fs"
)

// Options contains configuration for the SQLite-backed store.
type Options struct {
	// Path is the directory holding the store's database file.
	Path string

	// UpdateFilesPath is the directory holding captured payload files.
	// Defaults to <Path>/update_files.
	UpdateFilesPath string

	// Capacity bounds the store's total on-disk size in bytes (database plus
	// payload files). Register fails with ErrCapacityExceeded once reached.
	// 0 means unlimited.
	Capacity int64

	// Codec serializes update metadata and dump records.
	// Defaults to codec.Default.
	Codec codec.Codec

	// Compression selects the dump file compression (zstd or lz4).
	Compression Compression

	// Logger receives structured store and applier events.
	Logger *slog.Logger

	// FS abstracts payload-file access, for fault injection in tests.
	FS fs.FileSystem

	// MustExit is an advisory stop flag shared with the owning coordinator.
	// The applier checks it between updates; it is not a synchronization
	// barrier for data.
	MustExit *atomic.Bool

	// PollInterval bounds how long the applier sleeps when idle.
	PollInterval time.Duration
}

// DefaultOptions are the defaults used by Open.
var DefaultOptions = Options{
	Compression:  CompressionZstd,
	PollInterval: time.Second,
}
