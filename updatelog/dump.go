package updatelog

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/hupe1980/searchgo/codec"
)

// Compression selects the dump file compression algorithm.
type Compression string

const (
	// CompressionZstd is the default: best ratio at good speed.
	CompressionZstd Compression = "zstd"
	// CompressionLZ4 trades some ratio for faster dumps.
	CompressionLZ4 Compression = "lz4"
)

// DumpFileName is the update-history file written into a dump directory.
const DumpFileName = "updates.dump"

const dumpVersion = 1

// dumpHeader is the plain-JSON first line of a dump file. Everything after
// it is a compressed stream of codec-encoded Status lines.
type dumpHeader struct {
	Version     int    `json:"version"`
	Codec       string `json:"codec"`
	Compression string `json:"compression"`
}

// Dump serializes the named collections' update history under dst and asks
// indexes to dump index state alongside it. Payload blobs are not included.
func (s *SQLiteStore) Dump(collections []uuid.UUID, dst string, indexes IndexHandle) error {
	if s.closed.Load() {
		return ErrClosed
	}

	if err := s.fsys.MkdirAll(dst, 0o750); err != nil {
		return fmt.Errorf("create dump directory: %w", err)
	}

	statuses, err := s.listCollections(collections)
	if err != nil {
		return err
	}

	f, err := s.fsys.OpenFile(filepath.Join(dst, DumpFileName), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o640)
	if err != nil {
		return fmt.Errorf("create dump file: %w", err)
	}

	if err := writeDump(f, s.codec, s.compress, statuses); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync dump file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close dump file: %w", err)
	}

	if indexes != nil {
		for _, collection := range collections {
			if err := indexes.DumpIndex(context.Background(), collection, dst); err != nil {
				return fmt.Errorf("dump index state for %s: %w", collection, err)
			}
		}
	}

	return nil
}

// listCollections returns every record of the named collections, ordered by
// collection then sequence id.
func (s *SQLiteStore) listCollections(collections []uuid.UUID) ([]Status, error) {
	var out []Status
	for _, collection := range collections {
		statuses, err := s.List(collection)
		if err != nil {
			return nil, err
		}
		out = append(out, statuses...)
	}
	return out, nil
}

func writeDump(w io.Writer, c codec.Codec, compression Compression, statuses []Status) error {
	header, err := json.Marshal(dumpHeader{
		Version:     dumpVersion,
		Codec:       c.Name(),
		Compression: string(compression),
	})
	if err != nil {
		return fmt.Errorf("encode dump header: %w", err)
	}
	if _, err := w.Write(append(header, '\n')); err != nil {
		return fmt.Errorf("write dump header: %w", err)
	}

	var (
		cw    io.Writer
		flush func() error
	)
	switch compression {
	case CompressionZstd:
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return fmt.Errorf("create zstd writer: %w", err)
		}
		cw, flush = zw, zw.Close
	case CompressionLZ4:
		lw := lz4.NewWriter(w)
		cw, flush = lw, lw.Close
	default:
		return fmt.Errorf("unknown dump compression %q", compression)
	}

	for _, status := range statuses {
		line, err := c.Marshal(status)
		if err != nil {
			return fmt.Errorf("encode update record: %w", err)
		}
		if _, err := cw.Write(append(line, '\n')); err != nil {
			return fmt.Errorf("write update record: %w", err)
		}
	}

	return flush()
}

// ReadDump decodes a dump file previously written by [SQLiteStore.Dump].
// The header makes the file self-describing, so the codec and compression
// used at write time do not need to be known up front.
func ReadDump(r io.Reader) ([]Status, error) {
	br := bufio.NewReader(r)

	headerLine, err := br.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("read dump header: %w", err)
	}

	var header dumpHeader
	if err := json.Unmarshal([]byte(headerLine), &header); err != nil {
		return nil, fmt.Errorf("decode dump header: %w", err)
	}
	if header.Version != dumpVersion {
		return nil, fmt.Errorf("unsupported dump version %d", header.Version)
	}

	c, ok := codec.ByName(header.Codec)
	if !ok {
		return nil, fmt.Errorf("unknown dump codec %q", header.Codec)
	}

	var cr io.Reader
	switch Compression(header.Compression) {
	case CompressionZstd:
		zr, err := zstd.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("create zstd reader: %w", err)
		}
		defer zr.Close()
		cr = zr
	case CompressionLZ4:
		cr = lz4.NewReader(br)
	default:
		return nil, fmt.Errorf("unknown dump compression %q", header.Compression)
	}

	var out []Status
	scanner := bufio.NewScanner(cr)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var status Status
		if err := c.Unmarshal([]byte(line), &status); err != nil {
			return nil, fmt.Errorf("decode update record: %w", err)
		}
		out = append(out, status)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read dump records: %w", err)
	}

	return out, nil
}
