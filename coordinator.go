package searchgo

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/hupe1980/searchgo/archive"
	"github.com/hupe1980/searchgo/internal/fs"
	"github.com/hupe1980/searchgo/internal/jsoncheck"
	"github.com/hupe1980/searchgo/internal/resource"
	"github.com/hupe1980/searchgo/updatelog"
)

// Coordinator is the update-ingestion actor. It owns the single handle to the
// update log and processes operation requests strictly in arrival order: no
// two registrations, deletions, snapshots, or dumps ever run concurrently
// through it. Blocking work (file I/O, validation, store calls) runs behind
// the worker gate, never on the run loop's own goroutine.
type Coordinator struct {
	path      string
	filesDir  string
	store     updatelog.Store
	indexes   updatelog.IndexHandle
	inbox     chan msg
	done      chan struct{}
	mustExit  *atomic.Bool
	resources *resource.Controller
	validator *jsoncheck.Validator
	archiver  archive.Uploader
	fsys      fs.FileSystem
	logger    *Logger
}

// New creates a coordinator rooted at path and a handle to talk to it.
// The update log and its payload directory are created under <path>/updates.
// indexes is passed through to the log for applying, snapshotting, and
// dumping index state.
//
// The caller must run the returned coordinator's [Coordinator.Run] loop.
func New(path string, indexes updatelog.IndexHandle, optFns ...func(o *Options)) (*Coordinator, *Handle, error) {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = NewLogger(nil)
	}
	if opts.FS == nil {
		opts.FS = fs.Default
	}
	if opts.InboxSize <= 0 {
		opts.InboxSize = DefaultOptions.InboxSize
	}

	storeDir := filepath.Join(path, "updates")
	filesDir := filepath.Join(storeDir, "update_files")

	mustExit := &atomic.Bool{}

	store, err := updatelog.Open(indexes, func(o *updatelog.Options) {
		o.Path = storeDir
		o.UpdateFilesPath = filesDir
		o.Capacity = opts.Capacity
		o.Codec = opts.Codec
		o.Compression = opts.Compression
		o.Logger = opts.Logger.Logger
		o.FS = opts.FS
		o.MustExit = mustExit
		o.PollInterval = opts.PollInterval
	})
	if err != nil {
		return nil, nil, err
	}

	inbox := make(chan msg, opts.InboxSize)

	c := &Coordinator{
		path:     storeDir,
		filesDir: filesDir,
		store:    store,
		indexes:  indexes,
		inbox:    inbox,
		done:     make(chan struct{}),
		mustExit: mustExit,
		resources: resource.NewController(resource.Config{
			MaxBackgroundWorkers: opts.MaxWorkers,
			IOLimitBytesPerSec:   opts.IOLimitBytesPerSec,
		}),
		validator: &jsoncheck.Validator{},
		archiver:  opts.Archiver,
		fsys:      opts.FS,
		logger:    opts.Logger,
	}

	handle := &Handle{inbox: inbox, done: c.done}

	return c, handle, nil
}

// Stop sets the shared shutdown flag. The run loop observes it on the next
// dequeued request; the update log's applier observes it between updates.
func (c *Coordinator) Stop() {
	c.mustExit.Store(true)
}

// Run processes operation requests until the inbox is closed or the shutdown
// flag is observed. It closes the update log before returning.
//
// A request dequeued after the flag is set is answered with ErrShuttingDown
// rather than silently dropped, so callers can tell shutdown from a lost
// reply.
func (c *Coordinator) Run() {
	c.logger.Info("update coordinator started", slog.String("path", c.path))

	defer func() {
		c.mustExit.Store(true)
		if err := c.store.Close(); err != nil {
			c.logger.Error("update log close failed", slog.Any("error", err))
		}
		close(c.done)
		c.logger.Info("update coordinator stopped")
	}()

	for m := range c.inbox {
		if c.mustExit.Load() {
			c.refuse(m)
			return
		}
		c.dispatch(m)
	}
}

func (c *Coordinator) dispatch(m msg) {
	switch m := m.(type) {
	case updateMsg:
		status, err := c.handleUpdate(m.collection, m.meta, m.payload)
		m.ret <- answer[updatelog.Status]{value: status, err: err}
	case listMsg:
		statuses, err := c.handleListUpdates(m.collection)
		m.ret <- answer[[]updatelog.Status]{value: statuses, err: err}
	case getMsg:
		status, err := c.handleGetUpdate(m.collection, m.id)
		m.ret <- answer[updatelog.Status]{value: status, err: err}
	case deleteMsg:
		m.ret <- answer[struct{}]{err: c.handleDelete(m.collection)}
	case snapshotMsg:
		m.ret <- answer[struct{}]{err: c.handleSnapshot(m.collections, m.path)}
	case dumpMsg:
		m.ret <- answer[struct{}]{err: c.handleDump(m.collections, m.path)}
	case statsMsg:
		stats, err := c.handleStats()
		m.ret <- answer[updatelog.Stats]{value: stats, err: err}
	}
}

// refuse answers a request that arrived during shutdown.
func (c *Coordinator) refuse(m msg) {
	switch m := m.(type) {
	case updateMsg:
		m.ret <- answer[updatelog.Status]{err: ErrShuttingDown}
	case listMsg:
		m.ret <- answer[[]updatelog.Status]{err: ErrShuttingDown}
	case getMsg:
		m.ret <- answer[updatelog.Status]{err: ErrShuttingDown}
	case deleteMsg:
		m.ret <- answer[struct{}]{err: ErrShuttingDown}
	case snapshotMsg:
		m.ret <- answer[struct{}]{err: ErrShuttingDown}
	case dumpMsg:
		m.ret <- answer[struct{}]{err: ErrShuttingDown}
	case statsMsg:
		m.ret <- answer[updatelog.Stats]{err: ErrShuttingDown}
	}
}

// handleUpdate runs the submission pipeline: capture, validate, register.
// The whole pipeline runs as one gated task so no chunk draining or file I/O
// happens on the run loop's own goroutine.
func (c *Coordinator) handleUpdate(collection uuid.UUID, meta updatelog.Meta, payload <-chan Chunk) (updatelog.Status, error) {
	ctx := context.Background()

	var status updatelog.Status
	err := c.resources.Do(ctx, func() error {
		var captured *capturedPayload
		if meta.HasPayload() {
			var err error
			captured, err = c.capturePayload(ctx, payload)
			if err != nil {
				return err
			}
		}

		var blob *uuid.UUID
		if captured != nil {
			defer captured.file.Close()

			if err := c.validator.Validate(captured.file); err != nil {
				c.discardPayload(captured)
				return &InvalidPayloadError{cause: err}
			}
			blob = &captured.id
		}

		var err error
		status, err = c.store.Register(collection, meta, blob)
		if err != nil && captured != nil {
			// The update was never registered; the blob must not linger and
			// count toward the capacity budget.
			c.discardPayload(captured)
		}
		return err
	})
	if err != nil {
		return updatelog.Status{}, err
	}

	c.logger.Info("update enqueued",
		slog.String("collection", collection.String()),
		slog.Uint64("seq", status.ID),
		slog.String("kind", string(meta.Kind)),
	)

	return status, nil
}

func (c *Coordinator) handleListUpdates(collection uuid.UUID) ([]updatelog.Status, error) {
	var statuses []updatelog.Status
	err := c.resources.Do(context.Background(), func() error {
		var err error
		statuses, err = c.store.List(collection)
		return err
	})
	return statuses, err
}

func (c *Coordinator) handleGetUpdate(collection uuid.UUID, id uint64) (updatelog.Status, error) {
	var status *updatelog.Status
	err := c.resources.Do(context.Background(), func() error {
		var err error
		status, err = c.store.Get(collection, id)
		return err
	})
	if err != nil {
		return updatelog.Status{}, err
	}
	if status == nil {
		return updatelog.Status{}, &UnknownUpdateError{Collection: collection, ID: id}
	}
	return *status, nil
}

func (c *Coordinator) handleDelete(collection uuid.UUID) error {
	return c.resources.Do(context.Background(), func() error {
		return c.store.DeleteAll(collection)
	})
}

func (c *Coordinator) handleSnapshot(collections []uuid.UUID, path string) error {
	ctx := context.Background()

	if err := c.resources.Do(ctx, func() error {
		return c.store.Snapshot(collections, path, c.indexes)
	}); err != nil {
		return err
	}

	return c.uploadArtifacts(ctx, path)
}

func (c *Coordinator) handleDump(collections []uuid.UUID, path string) error {
	ctx := context.Background()

	if err := c.resources.Do(ctx, func() error {
		return c.store.Dump(collections, path, c.indexes)
	}); err != nil {
		return err
	}

	return c.uploadArtifacts(ctx, path)
}

func (c *Coordinator) handleStats() (updatelog.Stats, error) {
	var stats updatelog.Stats
	err := c.resources.Do(context.Background(), func() error {
		var err error
		stats, err = c.store.Stats()
		return err
	})
	return stats, err
}

func (c *Coordinator) uploadArtifacts(ctx context.Context, dir string) error {
	if c.archiver == nil {
		return nil
	}
	return c.resources.Do(ctx, func() error {
		return archive.UploadDir(ctx, c.archiver, dir)
	})
}

// Validator exposes the payload validator, mainly so tests can assert the
// diagnostic fallback stays cold for valid payloads.
func (c *Coordinator) Validator() *jsoncheck.Validator {
	return c.validator
}
