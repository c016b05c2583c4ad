// Package recfile opens files made of fixed-size records.
//
// A crash during a write can leave a partial record at the end of the
// file. Opening such a file truncates it back to the last whole record,
// which is the only crash recovery the storage engine needs.
package recfile

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xtxerr/linestore/internal/logging"
)

// OpenAligned opens path for reading and appending, creating it (and its
// directory) if absent. If the file length is not a multiple of
// recordSize the excess bytes are truncated with a warning. It returns the
// file and its length after repair.
func OpenAligned(path string, recordSize int) (*os.File, int64, error) {
	if recordSize <= 0 {
		return nil, 0, fmt.Errorf("record size %d must be positive", recordSize)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, 0, fmt.Errorf("create directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, 0, fmt.Errorf("open %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("stat %s: %w", path, err)
	}

	size := info.Size()
	if rest := size % int64(recordSize); rest > 0 {
		logging.Component("recfile").Warn("last write incomplete, truncating to largest multiple of the record size",
			"path", path,
			"size", size,
			"record_size", recordSize,
			"truncated_bytes", rest)

		size -= rest
		if err := f.Truncate(size); err != nil {
			f.Close()
			return nil, 0, fmt.Errorf("truncate %s: %w", path, err)
		}
	}

	return f, size, nil
}
