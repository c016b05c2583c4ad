// Package index implements the checkpoint log of a series.
//
// The index maps full timestamps to byte offsets in the data file. It is
// kept in memory as a slice sorted by timestamp and mirrored by an
// append-only file of 16-byte records:
//
//	[8 bytes timestamp (int64)][8 bytes offset (uint64)]  little-endian
//
// At most one checkpoint is recorded per checkpoint window (2^16 seconds),
// so the index stays tiny: about 48 records per month of data.
//
// An Index is not safe for concurrent use; the owning series serializes
// access.
package index

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/xtxerr/linestore/config"
	"github.com/xtxerr/linestore/internal/errors"
	"github.com/xtxerr/linestore/internal/logging"
	"github.com/xtxerr/linestore/internal/storage/recfile"
	"github.com/xtxerr/linestore/internal/storage/types"
)

// RecordSize is the on-disk size of one checkpoint.
const RecordSize = config.CheckpointSize

// Options configures an index.
type Options struct {
	// Now supplies the bootstrap checkpoint time of an empty index.
	// Default: time.Now
	Now func() time.Time
}

// Stats holds index statistics.
type Stats struct {
	Checkpoints      int
	CheckpointsAdded int64
	Superseded       int64
	SkippedRecords   int64
}

// Index is the in-memory checkpoint map plus its backing file.
type Index struct {
	path    string
	file    *os.File
	entries []types.Checkpoint

	// lastWindow is the window of the newest checkpoint.
	lastWindow int64

	log   *slog.Logger
	stats Stats
}

// Bounds brackets a target timestamp with byte offsets.
type Bounds struct {
	From uint64 // Offset of the lower checkpoint, or 0
	To   uint64 // Offset of the upper checkpoint, or end of file

	Lower    types.Checkpoint
	HasLower bool
	Upper    types.Checkpoint
	HasUpper bool
}

// Open reads the index file at path, creating it if absent. An empty
// index is seeded with a bootstrap checkpoint (now, 0) that is persisted
// immediately.
func Open(path string, opts Options) (*Index, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}

	f, _, err := recfile.OpenAligned(path, RecordSize)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}

	x := &Index{
		path: path,
		file: f,
		log:  logging.Component("index").With("path", path),
	}

	data, err := io.ReadAll(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("read index: %w", err)
	}

	for off := 0; off+RecordSize <= len(data); off += RecordSize {
		x.insert(decodeRecord(data[off:]))
	}

	if len(x.entries) == 0 {
		now := opts.Now().Unix()
		if now < 0 {
			now = 0
		}
		if err := x.record(types.Checkpoint{Timestamp: now, Offset: 0}); err != nil {
			f.Close()
			return nil, fmt.Errorf("write bootstrap checkpoint: %w", err)
		}
		x.log.Debug("index bootstrapped", "timestamp", now)
	}

	x.lastWindow = x.Last().Window()
	return x, nil
}

// insert adds cp to the in-memory map. A checkpoint sharing the newest
// entry's offset or timestamp replaces it. Records that would break the
// ordering are skipped.
func (x *Index) insert(cp types.Checkpoint) bool {
	n := len(x.entries)
	if n == 0 {
		x.entries = append(x.entries, cp)
		return true
	}

	last := x.entries[n-1]
	switch {
	case cp.Offset == last.Offset || cp.Timestamp == last.Timestamp:
		if n > 1 {
			prev := x.entries[n-2]
			if cp.Timestamp <= prev.Timestamp || cp.Offset <= prev.Offset {
				x.stats.SkippedRecords++
				return false
			}
		}
		x.entries[n-1] = cp
		x.stats.Superseded++
		return true

	case cp.Timestamp > last.Timestamp && cp.Offset > last.Offset:
		x.entries = append(x.entries, cp)
		return true

	default:
		x.log.Warn("skipping out of order checkpoint", "checkpoint", cp.String(), "last", last.String())
		x.stats.SkippedRecords++
		return false
	}
}

// record persists cp, syncs the index file and inserts cp in memory.
func (x *Index) record(cp types.Checkpoint) error {
	var buf [RecordSize]byte
	binary.LittleEndian.PutUint64(buf[0:8], uint64(cp.Timestamp))
	binary.LittleEndian.PutUint64(buf[8:16], cp.Offset)

	if _, err := x.file.Write(buf[:]); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := x.file.Sync(); err != nil {
		return fmt.Errorf("sync index: %w", err)
	}

	x.insert(cp)
	x.lastWindow = cp.Window()
	x.stats.CheckpointsAdded++
	return nil
}

func decodeRecord(b []byte) types.Checkpoint {
	return types.Checkpoint{
		Timestamp: int64(binary.LittleEndian.Uint64(b[0:8])),
		Offset:    binary.LittleEndian.Uint64(b[8:16]),
	}
}

// MaybeCheckpoint records (ts, offset) if ts falls in a later window than
// the newest checkpoint. It is a no-op for further calls in the same
// window. It also re-anchors a checkpoint that no line has been written
// under yet (offset equal to the newest checkpoint's) when ts is older,
// e.g. the bootstrap checkpoint of a series whose first line predates the
// time the series was created.
//
// It returns true if a checkpoint was written.
func (x *Index) MaybeCheckpoint(ts int64, offset uint64) (bool, error) {
	window := types.Window(ts)
	last := x.Last()

	switch {
	case window > x.lastWindow:
	case offset == last.Offset && ts < last.Timestamp && x.canReplaceLast(ts):
	default:
		return false, nil
	}

	cp := types.Checkpoint{Timestamp: ts, Offset: offset}
	if err := x.record(cp); err != nil {
		return false, err
	}

	x.log.Debug("checkpoint written", "timestamp", ts, "offset", offset, "window", window)
	return true, nil
}

func (x *Index) canReplaceLast(ts int64) bool {
	n := len(x.entries)
	return n == 1 || x.entries[n-2].Timestamp < ts
}

// Bounds returns the byte region that must contain the boundary line for
// target: from the greatest checkpoint with timestamp <= target up to the
// least checkpoint with timestamp > target, or eof if there is none.
//
// If no checkpoint lies at or below target, Bounds still returns usable
// bounds starting at byte 0 together with ErrNoDataBeforeRequestedTime.
func (x *Index) Bounds(target int64, eof uint64) (Bounds, error) {
	i := sort.Search(len(x.entries), func(i int) bool {
		return x.entries[i].Timestamp > target
	})

	b := Bounds{From: 0, To: eof}
	if i < len(x.entries) {
		b.Upper = x.entries[i]
		b.HasUpper = true
		b.To = min(b.Upper.Offset, eof)
	}

	if i == 0 {
		return b, errors.Wrapf(errors.ErrNoDataBeforeRequestedTime, "target %d", target)
	}

	b.Lower = x.entries[i-1]
	b.HasLower = true
	b.From = min(b.Lower.Offset, b.To)
	return b, nil
}

// Floor returns the greatest checkpoint with timestamp <= ts.
func (x *Index) Floor(ts int64) (types.Checkpoint, bool) {
	i := sort.Search(len(x.entries), func(i int) bool {
		return x.entries[i].Timestamp > ts
	})
	if i == 0 {
		return types.Checkpoint{}, false
	}
	return x.entries[i-1], true
}

// After returns the least checkpoint with timestamp > ts.
func (x *Index) After(ts int64) (types.Checkpoint, bool) {
	i := sort.Search(len(x.entries), func(i int) bool {
		return x.entries[i].Timestamp > ts
	})
	if i == len(x.entries) {
		return types.Checkpoint{}, false
	}
	return x.entries[i], true
}

// AtOffset returns the checkpoint anchoring the line at pos: the greatest
// checkpoint with offset <= pos. Offsets grow with timestamps, so the
// slice is sorted by offset as well.
func (x *Index) AtOffset(pos uint64) (types.Checkpoint, bool) {
	i := sort.Search(len(x.entries), func(i int) bool {
		return x.entries[i].Offset > pos
	})
	if i == 0 {
		return types.Checkpoint{}, false
	}
	return x.entries[i-1], true
}

// First returns the oldest checkpoint.
func (x *Index) First() types.Checkpoint {
	return x.entries[0]
}

// Last returns the newest checkpoint.
func (x *Index) Last() types.Checkpoint {
	return x.entries[len(x.entries)-1]
}

// Len returns the number of checkpoints.
func (x *Index) Len() int {
	return len(x.entries)
}

// Checkpoints returns a copy of all checkpoints in order.
func (x *Index) Checkpoints() []types.Checkpoint {
	out := make([]types.Checkpoint, len(x.entries))
	copy(out, x.entries)
	return out
}

// Path returns the index file path.
func (x *Index) Path() string {
	return x.path
}

// Stats returns index statistics.
func (x *Index) Stats() Stats {
	s := x.stats
	s.Checkpoints = len(x.entries)
	return s
}

// Sync flushes the index file to disk.
func (x *Index) Sync() error {
	return x.file.Sync()
}

// Close closes the index file.
func (x *Index) Close() error {
	return x.file.Close()
}
