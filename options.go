package searchgo

import (
	"time"

	"github.com/hupe1980/searchgo/archive"
	"github.com/hupe1980/searchgo/codec"
	"github.com/hupe1980/searchgo/internal/fs"
	"github.com/hupe1980/searchgo/updatelog"
)

// Options contains configuration for the coordinator.
type Options struct {
	// Capacity bounds the update log's on-disk size in bytes.
	// 0 means unlimited.
	Capacity int64

	// InboxSize is the operation-request channel buffer.
	InboxSize int

	// MaxWorkers bounds concurrent offloaded tasks. The coordinator awaits
	// each task before dispatching the next request, so this matters only
	// when several coordinators share limits; 1 is correct and the default.
	MaxWorkers int64

	// IOLimitBytesPerSec throttles payload capture writes. 0 means unlimited.
	IOLimitBytesPerSec int64

	// Codec serializes update metadata and dump records.
	Codec codec.Codec

	// Compression selects the dump file compression.
	Compression updatelog.Compression

	// PollInterval bounds how long the update log's applier sleeps when idle.
	PollInterval time.Duration

	// Archiver, if set, receives the artifacts of every successful snapshot
	// and dump (e.g. an S3 or MinIO uploader).
	Archiver archive.Uploader

	// Logger receives structured coordinator events.
	Logger *Logger

	// FS abstracts file access, for fault injection in tests.
	FS fs.FileSystem
}

// DefaultOptions are the defaults used by New.
var DefaultOptions = Options{
	InboxSize:   128,
	MaxWorkers:  1,
	Compression: updatelog.CompressionZstd,
}
