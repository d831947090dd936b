package updatelog

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// SnapshotDBName is the database copy written into a snapshot directory.
const SnapshotDBName = "updates.db"

// Snapshot writes a consistent copy of the update database plus the payload
// files of still-pending updates for the named collections, then asks indexes
// to snapshot index state alongside it.
//
// The database copy is taken with VACUUM INTO, which produces a compact,
// transactionally consistent file even while the applier keeps running.
func (s *SQLiteStore) Snapshot(collections []uuid.UUID, dst string, indexes IndexHandle) error {
	if s.closed.Load() {
		return ErrClosed
	}

	if err := s.fsys.MkdirAll(dst, 0o750); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}

	// VACUUM INTO refuses to overwrite, so stage through a temp name.
	tmp := filepath.Join(dst, SnapshotDBName+".tmp")
	_ = s.fsys.Remove(tmp)

	if _, err := s.db.Exec(`VACUUM INTO ?`, tmp); err != nil {
		return fmt.Errorf("vacuum update database into snapshot: %w", err)
	}
	if err := s.fsys.Rename(tmp, filepath.Join(dst, SnapshotDBName)); err != nil {
		return fmt.Errorf("finalize snapshot database: %w", err)
	}

	if err := s.snapshotPayloadFiles(collections, dst); err != nil {
		return err
	}

	if indexes != nil {
		for _, collection := range collections {
			if err := indexes.SnapshotIndex(context.Background(), collection, dst); err != nil {
				return fmt.Errorf("snapshot index state for %s: %w", collection, err)
			}
		}
	}

	return nil
}

// snapshotPayloadFiles copies the payload blobs of enqueued updates for the
// named collections into <dst>/update_files. Processed updates have no blob
// left to copy.
func (s *SQLiteStore) snapshotPayloadFiles(collections []uuid.UUID, dst string) error {
	filesDst := filepath.Join(dst, "update_files")
	if err := s.fsys.MkdirAll(filesDst, 0o750); err != nil {
		return fmt.Errorf("create snapshot payload directory: %w", err)
	}

	for _, collection := range collections {
		rows, err := s.db.Query(
			`SELECT blob FROM updates WHERE collection = ? AND state = ? AND blob IS NOT NULL`,
			collection.String(), StateEnqueued,
		)
		if err != nil {
			return fmt.Errorf("collect pending payload files for %s: %w", collection, err)
		}

		var blobs []uuid.UUID
		for rows.Next() {
			var blobText string
			if err := rows.Scan(&blobText); err != nil {
				rows.Close()
				return fmt.Errorf("scan payload file id: %w", err)
			}
			id, err := uuid.Parse(blobText)
			if err != nil {
				rows.Close()
				return fmt.Errorf("corrupt payload file id %q: %w", blobText, err)
			}
			blobs = append(blobs, id)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()

		for _, blob := range blobs {
			name := PayloadFileName(blob)
			if err := s.copyFile(filepath.Join(s.filesDir, name), filepath.Join(filesDst, name)); err != nil {
				return fmt.Errorf("copy payload file %s: %w", name, err)
			}
		}
	}

	return nil
}

func (s *SQLiteStore) copyFile(src, dst string) error {
	in, err := s.fsys.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := s.fsys.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o640)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
