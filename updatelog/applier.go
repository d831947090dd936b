package updatelog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/searchgo/internal/fs"
)

// runApplier advances registered updates through their lifecycle.
//
// It runs concurrently with the coordinator's serialized calls into the
// store: registrations are append-only and the applier only touches rows it
// has claimed, so the two sides never mutate the same record.
func (s *SQLiteStore) runApplier(indexes IndexHandle, pollInterval time.Duration) {
	defer s.wg.Done()

	s.logger.Info("update applier started")

	for {
		if s.mustExit.Load() {
			s.logger.Info("update applier stopping: must-exit flag set")
			return
		}

		if s.pending.isEmpty() {
			select {
			case <-s.notify:
			case <-time.After(pollInterval):
			case <-s.closeCh:
				return
			}
			continue
		}

		if err := s.processNext(indexes); err != nil {
			if errors.Is(err, errNothingPending) {
				continue
			}
			s.logger.Error("update applier iteration failed", slog.Any("error", err))
			select {
			case <-time.After(pollInterval):
			case <-s.closeCh:
				return
			}
		}
	}
}

var errNothingPending = errors.New("no enqueued update")

// processNext claims the oldest enqueued update, applies it through indexes,
// and records the terminal state. The payload file is removed afterwards in
// either outcome.
func (s *SQLiteStore) processNext(indexes IndexHandle) error {
	var (
		collectionText string
		seq            uint64
	)
	err := s.db.QueryRow(
		`SELECT collection, seq FROM updates WHERE state = ? ORDER BY enqueued_at ASC, seq ASC LIMIT 1`,
		StateEnqueued,
	).Scan(&collectionText, &seq)
	if errors.Is(err, sql.ErrNoRows) {
		return errNothingPending
	}
	if err != nil {
		return fmt.Errorf("pick next update: %w", err)
	}

	collection, err := uuid.Parse(collectionText)
	if err != nil {
		return fmt.Errorf("corrupt collection id %q: %w", collectionText, err)
	}

	started := time.Now()
	if _, err := s.db.Exec(
		`UPDATE updates SET state = ?, started_at = ? WHERE collection = ? AND seq = ?`,
		StateProcessing, started.UnixNano(), collectionText, seq,
	); err != nil {
		return fmt.Errorf("mark update processing: %w", err)
	}

	s.pending.remove(collection, seq)
	s.processing.Store(&collection)
	defer s.processing.Store(nil)

	status, err := s.Get(collection, seq)
	if err != nil {
		return err
	}
	if status == nil {
		// DeleteAll raced us between the claim and the read.
		return nil
	}

	applyErr := s.applyUpdate(indexes, *status)

	finished := time.Now()
	state := StateProcessed
	errText := ""
	if applyErr != nil {
		state = StateFailed
		errText = applyErr.Error()
	}

	if _, err := s.db.Exec(
		`UPDATE updates SET state = ?, finished_at = ?, error = ? WHERE collection = ? AND seq = ?`,
		state, finished.UnixNano(), errText, collectionText, seq,
	); err != nil {
		return fmt.Errorf("mark update %s: %w", state, err)
	}

	if status.Blob != nil {
		path := filepath.Join(s.filesDir, PayloadFileName(*status.Blob))
		if err := s.fsys.Remove(path); err != nil {
			s.logger.Warn("processed payload file not removed",
				slog.String("path", path), slog.Any("error", err))
		}
	}

	s.logger.Info("applied update",
		slog.String("collection", collectionText),
		slog.Uint64("seq", seq),
		slog.String("state", string(state)),
		slog.Duration("took", finished.Sub(started)),
	)

	return nil
}

func (s *SQLiteStore) applyUpdate(indexes IndexHandle, status Status) error {
	var payload fs.File
	if status.Blob != nil {
		f, err := s.fsys.Open(filepath.Join(s.filesDir, PayloadFileName(*status.Blob)))
		if err != nil {
			return fmt.Errorf("open payload file: %w", err)
		}
		defer f.Close()
		payload = f
	}

	if payload != nil {
		return indexes.ProcessUpdate(context.Background(), status, payload)
	}
	return indexes.ProcessUpdate(context.Background(), status, nil)
}
