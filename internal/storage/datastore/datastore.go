// Package datastore implements the append-only data file of a series.
//
// The data file is a plain sequence of fixed-size lines. The store is the
// only writer; it keeps the file length a multiple of the line size at all
// times visible to readers, and every read it hands out consists of whole
// lines only.
package datastore

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	lserrors "github.com/xtxerr/linestore/internal/errors"
	"github.com/xtxerr/linestore/internal/logging"
	"github.com/xtxerr/linestore/internal/storage/recfile"
)

// Stats holds data store statistics.
type Stats struct {
	LinesAppended  int64
	BytesWritten   int64
	BytesRead      int64
	SyncsPerformed int64
	Errors         int64
}

// Store is the data file of one series. It is not safe for concurrent use.
type Store struct {
	path     string
	file     *os.File
	lineSize int
	size     uint64

	log   *slog.Logger
	stats Stats
}

// Open opens (or creates) the data file at path for lines of lineSize
// bytes. A trailing partial line left by a crash is truncated.
func Open(path string, lineSize int) (*Store, error) {
	if lineSize <= 0 {
		return nil, lserrors.Wrapf(lserrors.ErrInvalidLineSize, "line size %d", lineSize)
	}

	f, size, err := recfile.OpenAligned(path, lineSize)
	if err != nil {
		return nil, fmt.Errorf("open data file: %w", err)
	}

	return &Store{
		path:     path,
		file:     f,
		lineSize: lineSize,
		size:     uint64(size),
		log:      logging.Component("datastore").With("path", path),
	}, nil
}

// Append writes one encoded line and syncs the file. It returns the
// offset the line was written at.
func (s *Store) Append(line []byte) (uint64, error) {
	if len(line) != s.lineSize {
		return 0, lserrors.NewSizeMismatch(s.lineSize, len(line))
	}

	offset := s.size
	n, err := s.file.Write(line)
	if err != nil {
		s.stats.Errors++
		if n > 0 {
			s.rollback()
		}
		return 0, fmt.Errorf("write line: %w", err)
	}

	s.size += uint64(n)
	s.stats.LinesAppended++
	s.stats.BytesWritten += int64(n)

	if err := s.file.Sync(); err != nil {
		s.stats.Errors++
		return 0, fmt.Errorf("sync data file: %w", err)
	}
	s.stats.SyncsPerformed++
	return offset, nil
}

// rollback cuts a partially written line so later appends stay aligned.
func (s *Store) rollback() {
	if err := s.file.Truncate(int64(s.size)); err != nil {
		s.log.Error("rollback of partial line failed", "size", s.size, "error", err)
	}
}

// ReadBounded reads whole lines starting at start into buf, never reading
// at or beyond stop or the end of the file. The number of bytes read is
// always a multiple of the line size; 0 with io.EOF means nothing is left
// in [start, stop). A buffer smaller than one line yields io.ErrShortBuffer.
func (s *Store) ReadBounded(buf []byte, start, stop uint64) (int, error) {
	stop = min(stop, s.size)
	if start >= stop {
		return 0, io.EOF
	}

	want := min(uint64(len(buf)), stop-start)
	want -= want % uint64(s.lineSize)
	if want == 0 {
		return 0, io.ErrShortBuffer
	}

	n, err := s.file.ReadAt(buf[:want], int64(start))
	if err != nil && !errors.Is(err, io.EOF) {
		s.stats.Errors++
		return 0, fmt.Errorf("read data file at %d: %w", start, err)
	}

	n -= n % s.lineSize
	s.stats.BytesRead += int64(n)
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

// ReadLine reads the line starting at offset.
func (s *Store) ReadLine(offset uint64) ([]byte, error) {
	buf := make([]byte, s.lineSize)
	n, err := s.ReadBounded(buf, offset, offset+uint64(s.lineSize))
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// Size returns the data file length in bytes.
func (s *Store) Size() uint64 {
	return s.size
}

// Lines returns the number of lines in the file.
func (s *Store) Lines() uint64 {
	return s.size / uint64(s.lineSize)
}

// LineSize returns the line size in bytes.
func (s *Store) LineSize() int {
	return s.lineSize
}

// Path returns the data file path.
func (s *Store) Path() string {
	return s.path
}

// Stats returns data store statistics.
func (s *Store) Stats() Stats {
	return s.stats
}

// Sync flushes the data file to disk.
func (s *Store) Sync() error {
	return s.file.Sync()
}

// Close closes the data file.
func (s *Store) Close() error {
	return s.file.Close()
}
