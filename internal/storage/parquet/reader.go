package parquet

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/parquet-go/parquet-go"
)

// Reader reads rows of type R from a Parquet file.
type Reader[R any] struct {
	file   *os.File
	reader *parquet.GenericReader[R]
	path   string
}

// NewReader opens a Parquet file for reading rows of type R.
func NewReader[R any](path string) (*Reader[R], error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}

	return &Reader[R]{
		file:   f,
		reader: parquet.NewGenericReader[R](f, parquet.ReadBufferSize(1024*1024)),
		path:   path,
	}, nil
}

// Read reads up to n rows. It returns io.EOF once no rows are left.
func (r *Reader[R]) Read(n int) ([]R, error) {
	rows := make([]R, n)
	count, err := r.reader.Read(rows)
	if err != nil && !(errors.Is(err, io.EOF) && count > 0) {
		return nil, err
	}
	return rows[:count], nil
}

// ReadAll reads all remaining rows.
func (r *Reader[R]) ReadAll() ([]R, error) {
	var out []R
	for {
		rows, err := r.Read(4096)
		out = append(out, rows...)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// NumRows returns the total number of rows in the file.
func (r *Reader[R]) NumRows() int64 {
	return r.reader.NumRows()
}

// Close closes the reader.
func (r *Reader[R]) Close() error {
	if err := r.reader.Close(); err != nil {
		r.file.Close()
		return err
	}
	return r.file.Close()
}

// Path returns the file path.
func (r *Reader[R]) Path() string {
	return r.path
}

// FileInfo holds information about a Parquet file.
type FileInfo struct {
	Path     string
	Size     int64
	NumRows  int64
	NumCols  int
	Metadata map[string]string
}

// GetFileInfo returns information about a Parquet file, including the
// linestore metadata written by Export.
func GetFileInfo(path string) (*FileInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}

	pf, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		return nil, fmt.Errorf("open parquet file: %w", err)
	}

	info := &FileInfo{
		Path:     path,
		Size:     stat.Size(),
		NumRows:  pf.NumRows(),
		NumCols:  len(pf.Schema().Fields()),
		Metadata: make(map[string]string),
	}
	for _, key := range []string{MetaSeries, MetaPayloadWidth, MetaKind} {
		if v, ok := pf.Lookup(key); ok {
			info.Metadata[key] = v
		}
	}

	return info, nil
}
