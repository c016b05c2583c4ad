package storage

import (
	"io"
	"sync"
	"time"

	"github.com/xtxerr/linestore/config"
	"github.com/xtxerr/linestore/internal/errors"
	"github.com/xtxerr/linestore/internal/storage/datastore"
	"github.com/xtxerr/linestore/internal/storage/decode"
	"github.com/xtxerr/linestore/internal/storage/index"
	"github.com/xtxerr/linestore/internal/storage/types"
)

// Options configures a series.
type Options struct {
	// Now supplies the time of the bootstrap checkpoint written when the
	// index is empty.
	// Default: time.Now
	Now func() time.Time

	// BatchLines is the number of lines decoded per batch when the caller
	// does not ask for a specific count. It also sizes search reads.
	// Default: 8000
	BatchLines int
}

// DefaultOptions returns options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		Now:        time.Now,
		BatchLines: config.DefaultReadBatchLines,
	}
}

// Stats holds series statistics.
type Stats struct {
	Name         string
	PayloadWidth int
	LineSize     int

	Lines     uint64
	DataBytes uint64

	FirstCheckpoint types.Checkpoint
	LastCheckpoint  types.Checkpoint

	// Regressions counts appends whose timestamp was older than the
	// previous line.
	Regressions int64

	// SearchFallbacks counts searches for a time before the first
	// checkpoint, which scan from the start of the file instead.
	SearchFallbacks int64

	// Current read window.
	StartByte uint64
	StopByte  uint64

	Data  datastore.Stats
	Index index.Stats
}

// Series is one append-only time series backed by <name>.data and
// <name>.h. All methods are safe for concurrent use; operations are
// serialized by a single lock.
type Series struct {
	mu     sync.Mutex
	e      *engine
	closed bool
}

// Open opens or creates the series at path prefix name. payloadWidth is
// the fixed payload size in bytes; every line on disk is payloadWidth+2
// bytes.
func Open(name string, payloadWidth int, opts Options) (*Series, error) {
	e, err := openEngine(name, payloadWidth, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "open series %s", name)
	}

	e.log.Debug("series opened",
		"lines", e.data.Lines(), "checkpoints", e.index.Len(), "line_size", e.codec.Size())

	return &Series{e: e}, nil
}

// Name returns the series path prefix.
func (s *Series) Name() string {
	return s.e.name
}

// PayloadWidth returns the payload size in bytes.
func (s *Series) PayloadWidth() int {
	return s.e.codec.PayloadWidth()
}

// LineSize returns the on-disk size of one line.
func (s *Series) LineSize() int {
	return s.e.codec.Size()
}

// Append writes one line stamped with t. Sub-second precision is
// discarded and times before the Unix epoch are stored as 0.
func (s *Series) Append(t time.Time, payload []byte) error {
	return s.AppendUnix(t.Unix(), payload)
}

// AppendUnix writes one line stamped with ts in Unix seconds.
func (s *Series) AppendUnix(ts int64, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.ErrClosed
	}
	return s.e.append(ts, payload)
}

// LastLineRaw returns the timestamp and a copy of the raw payload of the
// newest line. It returns ErrNoData for an empty series.
func (s *Series) LastLineRaw() (time.Time, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return time.Time{}, nil, errors.ErrClosed
	}

	ts, payload, err := s.e.lastLine()
	if err != nil {
		return time.Time{}, nil, err
	}
	return time.Unix(ts, 0).UTC(), payload, nil
}

// LastLine returns the newest line decoded with d.
func LastLine[T any](s *Series, d decode.Decoder[T]) (time.Time, []T, error) {
	t, raw, err := s.LastLineRaw()
	if err != nil {
		return time.Time{}, nil, err
	}

	vals, err := d.Decode(raw)
	if err != nil {
		return time.Time{}, nil, err
	}
	return t, vals, nil
}

// SetReadStart positions the read start at the line at or just before t.
func (s *Series) SetReadStart(t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.ErrClosed
	}
	return s.e.setReadStart(t.Unix())
}

// SetReadStop sets the exclusive read stop to the first line newer than t.
// While no such line exists the stop follows appends, so later lines at or
// before t are still read.
func (s *Series) SetReadStop(t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.ErrClosed
	}
	return s.e.setReadStop(t.Unix())
}

// ClearReadStop makes reads run to the end of the file as it is when
// each read happens.
func (s *Series) ClearReadStop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.e.clearReadStop()
}

// ReadWindow returns the current read window as byte offsets. An
// unbounded stop is reported as the current file size.
func (s *Series) ReadWindow() (start, stop uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.e.startByte, s.e.stop()
}

// ReadBatch decodes up to n lines from the read window and advances the
// read start past them. n <= 0 uses Options.BatchLines. It returns io.EOF
// once the window is exhausted.
func (s *Series) ReadBatch(n int) (*types.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, errors.ErrClosed
	}
	return s.e.readBatch(n)
}

// Read implements io.Reader over the raw lines in the read window. It
// only ever returns whole lines, so p must hold at least one line.
func (s *Series) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, errors.ErrClosed
	}
	return s.e.read(p)
}

// Range decodes every line with a timestamp in [start, end] and passes
// them to fn in batches. A zero end reads to the end of the file. The
// series stays locked for the duration, so fn must not call back into s.
// Returning an error from fn stops the read and returns that error.
func (s *Series) Range(start, end time.Time, fn func(*types.Batch) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.ErrClosed
	}

	if err := s.e.setReadStart(start.Unix()); err != nil {
		return err
	}
	if end.IsZero() {
		s.e.clearReadStop()
	} else if err := s.e.setReadStop(end.Unix()); err != nil {
		return err
	}

	startTs := max(start.Unix(), 0)
	for {
		batch, err := s.e.readBatch(0)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		trimLeading(batch, startTs)
		if batch.Len() == 0 {
			continue
		}
		if err := fn(batch); err != nil {
			return err
		}
	}
}

// trimLeading drops lines older than start. The read start may land on
// the last line before start so that readers resuming a stream see the
// value in effect at start; Range only reports lines inside its bounds.
func trimLeading(b *types.Batch, start int64) {
	i := 0
	for i < b.Len() && b.Timestamps[i] < start {
		i++
	}
	if i == 0 {
		return
	}
	b.Timestamps = b.Timestamps[i:]
	b.Payloads = b.Payloads[i*b.Width:]
}

// Checkpoints returns a copy of the index.
func (s *Series) Checkpoints() []types.Checkpoint {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.e.index.Checkpoints()
}

// Stats returns series statistics.
func (s *Series) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.e
	return Stats{
		Name:            e.name,
		PayloadWidth:    e.codec.PayloadWidth(),
		LineSize:        e.codec.Size(),
		Lines:           e.data.Lines(),
		DataBytes:       e.data.Size(),
		FirstCheckpoint: e.index.First(),
		LastCheckpoint:  e.index.Last(),
		Regressions:     e.regressions,
		SearchFallbacks: e.fallbacks,
		StartByte:       e.startByte,
		StopByte:        e.stop(),
		Data:            e.data.Stats(),
		Index:           e.index.Stats(),
	}
}

// Close syncs and closes both files. Further calls return ErrClosed.
func (s *Series) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	err := s.e.close()
	s.e.log.Debug("series closed")
	return err
}
