package storage

import (
	"log/slog"
	"math"

	"github.com/xtxerr/linestore/config"
	"github.com/xtxerr/linestore/internal/errors"
	"github.com/xtxerr/linestore/internal/logging"
	"github.com/xtxerr/linestore/internal/storage/datastore"
	"github.com/xtxerr/linestore/internal/storage/index"
	"github.com/xtxerr/linestore/internal/storage/line"
	"github.com/xtxerr/linestore/internal/storage/types"
)

// unboundedStop makes reads run to the end of the data file as it is at
// read time.
const unboundedStop = math.MaxUint64

// engine is the unsynchronized state of one series. Series serializes
// every call into it.
type engine struct {
	name  string
	codec line.Codec
	data  *datastore.Store
	index *index.Index

	// Read window: [startByte, stopByte).
	startByte uint64
	stopByte  uint64

	// An open stop has no line past stopTarget yet and is re-resolved
	// when the file grows.
	stopTarget int64
	stopOpen   bool

	// Decoder cursor: current anchors the line being decoded, next is the
	// least checkpoint above it (or types.Unbounded).
	current types.Checkpoint
	next    types.Checkpoint

	batchLines int
	lineBuf    []byte
	readBuf    []byte

	lastTs      int64
	regressions int64
	fallbacks   int64

	log *slog.Logger
}

func openEngine(name string, payloadWidth int, opts Options) (*engine, error) {
	codec, err := line.NewCodec(payloadWidth)
	if err != nil {
		return nil, err
	}

	data, err := datastore.Open(name+config.DataSuffix, codec.Size())
	if err != nil {
		return nil, err
	}

	idx, err := index.Open(name+config.IndexSuffix, index.Options{Now: opts.Now})
	if err != nil {
		data.Close()
		return nil, err
	}

	e := &engine{
		name:       name,
		codec:      codec,
		data:       data,
		index:      idx,
		stopByte:   unboundedStop,
		batchLines: opts.BatchLines,
		log:        logging.Component("series").With("series", name),
	}
	e.resetCursor(0)

	if data.Size() > 0 {
		ts, _, err := e.lastLine()
		if err != nil {
			e.close()
			return nil, errors.Wrap(err, "read last line")
		}
		e.lastTs = ts
	}

	if last := idx.Last(); last.Offset > data.Size() {
		e.log.Warn("index points past end of data file",
			"checkpoint", last.String(), "data_size", data.Size())
	}

	return e, nil
}

// append writes one line. The checkpoint anchoring the line, if one is
// due, is made durable before the line itself, so a crash between the two
// leaves a checkpoint no line depends on yet.
func (e *engine) append(ts int64, payload []byte) error {
	if ts < 0 {
		ts = 0
	}

	l, err := e.codec.Encode(e.lineBuf[:0], ts, payload)
	if err != nil {
		return err
	}
	e.lineBuf = l

	offset := e.data.Size()
	if offset > 0 && ts < e.lastTs {
		e.regressions++
		e.log.Warn("timestamp older than previous line, range reads may misplace it",
			"timestamp", ts, "previous", e.lastTs)
	}

	added, err := e.index.MaybeCheckpoint(ts, offset)
	if err != nil {
		return errors.Wrap(err, "update index")
	}

	if _, err := e.data.Append(l); err != nil {
		return err
	}
	e.lastTs = ts

	if added {
		e.resetCursor(e.startByte)
	}
	return nil
}

// lastLine returns the reconstructed timestamp and a copy of the payload
// of the newest line.
func (e *engine) lastLine() (int64, []byte, error) {
	size := e.data.Size()
	if size == 0 {
		return 0, nil, errors.ErrNoData
	}

	off := size - uint64(e.codec.Size())
	l, err := e.data.ReadLine(off)
	if err != nil {
		return 0, nil, err
	}

	anchor, ok := e.index.AtOffset(off)
	if !ok {
		anchor = e.index.First()
	}

	payload := make([]byte, e.codec.PayloadWidth())
	copy(payload, line.Payload(l))
	return line.Reconstruct(anchor.Timestamp, line.Timestamp(l)), payload, nil
}

// stop resolves the stop bound against the current file length.
func (e *engine) stop() uint64 {
	return min(e.stopByte, e.data.Size())
}

func (e *engine) close() error {
	syncErr := errors.Join(e.data.Sync(), e.index.Sync())
	return errors.Join(syncErr, e.data.Close(), e.index.Close())
}
