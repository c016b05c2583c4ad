package parquet

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"
	"github.com/xtxerr/linestore/internal/constants"
)

// Metadata keys written into exported files.
const (
	MetaSeries       = "linestore.series"
	MetaPayloadWidth = "linestore.payload_width"
	MetaKind         = "linestore.kind"
)

// Options configures the Parquet writer.
type Options struct {
	// Compression algorithm
	Compression CompressionType

	// Metadata is stored as key/value metadata in the file footer.
	Metadata map[string]string
}

// CompressionType represents a Parquet compression algorithm.
type CompressionType int

const (
	CompressionNone CompressionType = iota
	CompressionSnappy
	CompressionZstd
	CompressionLZ4
	CompressionGzip
)

// DefaultOptions returns default Parquet options.
func DefaultOptions() Options {
	return Options{
		Compression: CompressionZstd,
	}
}

// ParseCompressionType parses a compression type string. An empty string
// selects zstd.
func ParseCompressionType(s string) (CompressionType, error) {
	switch s {
	case constants.CompressionSnappy:
		return CompressionSnappy, nil
	case constants.CompressionZstd, "":
		return CompressionZstd, nil
	case constants.CompressionLZ4:
		return CompressionLZ4, nil
	case constants.CompressionGzip:
		return CompressionGzip, nil
	case constants.CompressionNone:
		return CompressionNone, nil
	default:
		return CompressionZstd, fmt.Errorf("unknown compression %q", s)
	}
}

// getCompression returns the parquet-go compression codec.
func getCompression(ct CompressionType) compress.Codec {
	switch ct {
	case CompressionSnappy:
		return &parquet.Snappy
	case CompressionZstd:
		return &parquet.Zstd
	case CompressionLZ4:
		return &parquet.Lz4Raw
	case CompressionGzip:
		return &parquet.Gzip
	default:
		return &parquet.Uncompressed
	}
}

// Writer writes rows of type R to a Parquet file.
type Writer[R any] struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	writer   *parquet.GenericWriter[R]
	rowCount int64
	closed   bool
}

// NewWriter creates a Parquet writer for rows of type R.
func NewWriter[R any](path string, opts Options) (*Writer[R], error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}

	writerOpts := []parquet.WriterOption{
		parquet.Compression(getCompression(opts.Compression)),
	}
	for k, v := range opts.Metadata {
		writerOpts = append(writerOpts, parquet.KeyValueMetadata(k, v))
	}

	return &Writer[R]{
		path:   path,
		file:   f,
		writer: parquet.NewGenericWriter[R](f, writerOpts...),
	}, nil
}

// Write writes rows to the Parquet file.
func (w *Writer[R]) Write(rows []R) error {
	if len(rows) == 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWriterClosed
	}

	n, err := w.writer.Write(rows)
	if err != nil {
		return fmt.Errorf("write rows: %w", err)
	}

	w.rowCount += int64(n)
	return nil
}

// Close flushes the footer and closes the file.
func (w *Writer[R]) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.writer.Close(); err != nil {
		w.file.Close()
		return fmt.Errorf("close writer: %w", err)
	}

	return w.file.Close()
}

// RowCount returns the number of rows written.
func (w *Writer[R]) RowCount() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rowCount
}

// Path returns the file path.
func (w *Writer[R]) Path() string {
	return w.path
}

// ErrWriterClosed is returned when writing to a closed writer.
var ErrWriterClosed = fmt.Errorf("parquet writer is closed")
