package updatelog

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/hupe1980/searchgo/codec"
	"github.com/hupe1980/searchgo/internal/fs"
)

const schema = `
CREATE TABLE IF NOT EXISTS updates (
	collection TEXT NOT NULL,
	seq INTEGER NOT NULL,
	state TEXT NOT NULL DEFAULT 'enqueued',
	meta TEXT NOT NULL,
	blob TEXT,
	enqueued_at INTEGER NOT NULL,
	started_at INTEGER,
	finished_at INTEGER,
	error TEXT,
	PRIMARY KEY (collection, seq)
);

CREATE INDEX IF NOT EXISTS idx_updates_state
ON updates(state, enqueued_at);

CREATE TABLE IF NOT EXISTS collections (
	collection TEXT PRIMARY KEY,
	next_seq INTEGER NOT NULL
);
`

// PayloadFileName returns the file name of a captured payload blob.
// The coordinator writes these files; the store reads and removes them.
func PayloadFileName(id uuid.UUID) string {
	return "update_" + id.String()
}

// SQLiteStore is the SQLite-backed implementation of [Store].
//
// One database file holds every collection's records; sequence counters live
// in a side table so ids stay strictly increasing per collection even after
// records are deleted.
type SQLiteStore struct {
	db       *sql.DB
	dir      string
	filesDir string
	capacity int64
	codec    codec.Codec
	compress Compression
	logger   *slog.Logger
	fsys     fs.FileSystem
	mustExit *atomic.Bool

	pending    *pendingTracker
	processing atomic.Pointer[uuid.UUID]

	notify  chan struct{}
	closeCh chan struct{}
	wg      sync.WaitGroup

	closeOnce sync.Once
	closed    atomic.Bool
}

var _ Store = (*SQLiteStore)(nil)

// Open opens (or creates) the store under the configured path.
//
// indexes drives the background applier; passing nil disables the applier so
// records stay Enqueued (useful for inspection tooling and tests).
func Open(indexes IndexHandle, optFns ...func(o *Options)) (*SQLiteStore, error) {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Path == "" {
		return nil, errors.New("store path is required")
	}
	if opts.UpdateFilesPath == "" {
		opts.UpdateFilesPath = filepath.Join(opts.Path, "update_files")
	}
	if opts.Codec == nil {
		opts.Codec = codec.Default
	}
	if opts.Compression == "" {
		opts.Compression = CompressionZstd
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.FS == nil {
		opts.FS = fs.Default
	}
	if opts.MustExit == nil {
		opts.MustExit = &atomic.Bool{}
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}

	if err := opts.FS.MkdirAll(opts.Path, 0o750); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	if err := opts.FS.MkdirAll(opts.UpdateFilesPath, 0o750); err != nil {
		return nil, fmt.Errorf("create update files directory: %w", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(opts.Path, "updates.db"))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// A single connection serializes all statements, so the coordinator's
	// calls and the applier's transitions never contend on SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable wal: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	s := &SQLiteStore{
		db:       db,
		dir:      opts.Path,
		filesDir: opts.UpdateFilesPath,
		capacity: opts.Capacity,
		codec:    opts.Codec,
		compress: opts.Compression,
		logger:   opts.Logger,
		fsys:     opts.FS,
		mustExit: opts.MustExit,
		pending:  newPendingTracker(),
		notify:   make(chan struct{}, 1),
		closeCh:  make(chan struct{}),
	}

	if err := s.recover(); err != nil {
		_ = db.Close()
		return nil, err
	}

	if indexes != nil {
		s.wg.Add(1)
		go s.runApplier(indexes, opts.PollInterval)
	}

	return s, nil
}

// recover resets records interrupted mid-processing by a crash and rebuilds
// the in-memory pending tracker.
func (s *SQLiteStore) recover() error {
	if _, err := s.db.Exec(
		`UPDATE updates SET state = ?, started_at = NULL WHERE state = ?`,
		StateEnqueued, StateProcessing,
	); err != nil {
		return fmt.Errorf("reset interrupted updates: %w", err)
	}

	rows, err := s.db.Query(`SELECT collection, seq FROM updates WHERE state = ?`, StateEnqueued)
	if err != nil {
		return fmt.Errorf("load pending updates: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var collection string
		var seq uint64
		if err := rows.Scan(&collection, &seq); err != nil {
			return fmt.Errorf("scan pending update: %w", err)
		}
		id, err := uuid.Parse(collection)
		if err != nil {
			return fmt.Errorf("corrupt collection id %q: %w", collection, err)
		}
		s.pending.add(id, seq)
	}

	return rows.Err()
}

// Register records the update and assigns the collection's next sequence id.
func (s *SQLiteStore) Register(collection uuid.UUID, meta Meta, blob *uuid.UUID) (Status, error) {
	if s.closed.Load() {
		return Status{}, ErrClosed
	}

	if s.capacity > 0 {
		size, err := s.sizeOnDisk()
		if err != nil {
			return Status{}, err
		}
		if size >= s.capacity {
			return Status{}, fmt.Errorf("%w: %d bytes used of %d", ErrCapacityExceeded, size, s.capacity)
		}
	}

	metaData, err := s.codec.Marshal(meta)
	if err != nil {
		return Status{}, fmt.Errorf("encode update meta: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return Status{}, fmt.Errorf("begin register tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var seq uint64
	err = tx.QueryRow(`SELECT next_seq FROM collections WHERE collection = ?`, collection.String()).Scan(&seq)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		seq = 1
		if _, err := tx.Exec(
			`INSERT INTO collections (collection, next_seq) VALUES (?, ?)`,
			collection.String(), seq+1,
		); err != nil {
			return Status{}, fmt.Errorf("create collection counter: %w", err)
		}
	case err != nil:
		return Status{}, fmt.Errorf("read collection counter: %w", err)
	default:
		if _, err := tx.Exec(
			`UPDATE collections SET next_seq = next_seq + 1 WHERE collection = ?`,
			collection.String(),
		); err != nil {
			return Status{}, fmt.Errorf("advance collection counter: %w", err)
		}
	}

	now := time.Now()

	var blobText any
	if blob != nil {
		blobText = blob.String()
	}

	if _, err := tx.Exec(
		`INSERT INTO updates (collection, seq, state, meta, blob, enqueued_at) VALUES (?, ?, ?, ?, ?, ?)`,
		collection.String(), seq, StateEnqueued, string(metaData), blobText, now.UnixNano(),
	); err != nil {
		return Status{}, fmt.Errorf("insert update record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Status{}, fmt.Errorf("commit register tx: %w", err)
	}

	s.pending.add(collection, seq)
	s.wake()

	s.logger.Debug("registered update",
		slog.String("collection", collection.String()),
		slog.Uint64("seq", seq),
		slog.String("kind", string(meta.Kind)),
	)

	return Status{
		Collection: collection,
		ID:         seq,
		State:      StateEnqueued,
		Meta:       meta,
		Blob:       blob,
		EnqueuedAt: now,
	}, nil
}

// List returns every record of the collection, oldest first.
func (s *SQLiteStore) List(collection uuid.UUID) ([]Status, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	rows, err := s.db.Query(
		`SELECT seq, state, meta, blob, enqueued_at, started_at, finished_at, error
		 FROM updates WHERE collection = ? ORDER BY seq ASC`,
		collection.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("list updates for %s: %w", collection, err)
	}
	defer rows.Close()

	var out []Status
	for rows.Next() {
		status, err := s.scanStatus(collection, rows)
		if err != nil {
			return nil, err
		}
		out = append(out, status)
	}

	return out, rows.Err()
}

// Get returns the record with the given sequence id, or (nil, nil) if absent.
func (s *SQLiteStore) Get(collection uuid.UUID, id uint64) (*Status, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	rows, err := s.db.Query(
		`SELECT seq, state, meta, blob, enqueued_at, started_at, finished_at, error
		 FROM updates WHERE collection = ? AND seq = ?`,
		collection.String(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("get update %d for %s: %w", id, collection, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}

	status, err := s.scanStatus(collection, rows)
	if err != nil {
		return nil, err
	}

	return &status, nil
}

// DeleteAll removes every record and payload file of the collection.
func (s *SQLiteStore) DeleteAll(collection uuid.UUID) error {
	if s.closed.Load() {
		return ErrClosed
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin delete tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.Query(
		`SELECT blob FROM updates WHERE collection = ? AND blob IS NOT NULL`,
		collection.String(),
	)
	if err != nil {
		return fmt.Errorf("collect payload files for %s: %w", collection, err)
	}

	var blobs []string
	for rows.Next() {
		var blob string
		if err := rows.Scan(&blob); err != nil {
			rows.Close()
			return fmt.Errorf("scan payload file id: %w", err)
		}
		blobs = append(blobs, blob)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	// The counter row survives so sequence ids are never reused, even after
	// the collection's whole history is removed.
	if _, err := tx.Exec(`DELETE FROM updates WHERE collection = ?`, collection.String()); err != nil {
		return fmt.Errorf("delete update records for %s: %w", collection, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete tx: %w", err)
	}

	s.pending.drop(collection)

	for _, blob := range blobs {
		id, err := uuid.Parse(blob)
		if err != nil {
			continue
		}
		path := filepath.Join(s.filesDir, PayloadFileName(id))
		if err := s.fsys.Remove(path); err != nil {
			// Already consumed by the applier, or never fully captured.
			s.logger.Debug("payload file not removed", slog.String("path", path), slog.Any("error", err))
		}
	}

	return nil
}

// Stats returns aggregate statistics for the whole log.
func (s *SQLiteStore) Stats() (Stats, error) {
	if s.closed.Load() {
		return Stats{}, ErrClosed
	}

	stats := Stats{
		Enqueued:   s.pending.count(),
		Processing: s.processing.Load(),
	}

	rows, err := s.db.Query(`SELECT state, COUNT(*) FROM updates GROUP BY state`)
	if err != nil {
		return Stats{}, fmt.Errorf("count update states: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var state State
		var n uint64
		if err := rows.Scan(&state, &n); err != nil {
			return Stats{}, fmt.Errorf("scan state count: %w", err)
		}
		switch state {
		case StateProcessed:
			stats.Processed = n
		case StateFailed:
			stats.Failed = n
		}
	}
	if err := rows.Err(); err != nil {
		return Stats{}, err
	}

	if info, err := s.fsys.Stat(filepath.Join(s.dir, "updates.db")); err == nil {
		stats.DBSizeBytes = info.Size()
	}
	stats.PayloadSizeBytes = s.payloadSize()

	return stats, nil
}

// Close stops the applier and closes the database.
func (s *SQLiteStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.closeCh)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteStore) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *SQLiteStore) payloadSize() int64 {
	entries, err := s.fsys.ReadDir(s.filesDir)
	if err != nil {
		return 0
	}

	var total int64
	for _, entry := range entries {
		if info, err := entry.Info(); err == nil {
			total += info.Size()
		}
	}
	return total
}

func (s *SQLiteStore) sizeOnDisk() (int64, error) {
	var total int64
	if info, err := s.fsys.Stat(filepath.Join(s.dir, "updates.db")); err == nil {
		total = info.Size()
	}
	return total + s.payloadSize(), nil
}

// scanStatus decodes one row of the updates table. The row shape must match
// the SELECT column order used by List and Get.
func (s *SQLiteStore) scanStatus(collection uuid.UUID, rows *sql.Rows) (Status, error) {
	var (
		seq                   uint64
		state                 State
		metaText              string
		blobText              sql.NullString
		enqueuedAt            int64
		startedAt, finishedAt sql.NullInt64
		errText               sql.NullString
	)

	if err := rows.Scan(&seq, &state, &metaText, &blobText, &enqueuedAt, &startedAt, &finishedAt, &errText); err != nil {
		return Status{}, fmt.Errorf("scan update record: %w", err)
	}

	var meta Meta
	if err := s.codec.Unmarshal([]byte(metaText), &meta); err != nil {
		return Status{}, fmt.Errorf("decode update meta: %w", err)
	}

	status := Status{
		Collection: collection,
		ID:         seq,
		State:      state,
		Meta:       meta,
		EnqueuedAt: time.Unix(0, enqueuedAt),
		Error:      errText.String,
	}

	if blobText.Valid {
		id, err := uuid.Parse(blobText.String)
		if err != nil {
			return Status{}, fmt.Errorf("corrupt payload file id %q: %w", blobText.String, err)
		}
		status.Blob = &id
	}
	if startedAt.Valid {
		t := time.Unix(0, startedAt.Int64)
		status.StartedAt = &t
	}
	if finishedAt.Valid {
		t := time.Unix(0, finishedAt.Int64)
		status.FinishedAt = &t
	}

	return status, nil
}
