package storage

import (
	"io"

	"github.com/xtxerr/linestore/config"
	"github.com/xtxerr/linestore/internal/errors"
	"github.com/xtxerr/linestore/internal/storage/line"
	"github.com/xtxerr/linestore/internal/storage/types"
)

// region is a byte range of the data file whose lines all belong to the
// checkpoint window of anchor.
type region struct {
	from, to uint64
	anchor   int64

	// bounded is set when a checkpoint newer than the target exists, so
	// no later append can land inside the region.
	bounded bool
}

// searchRegion brackets target using the index. When no checkpoint lies
// at or below target the search falls back to the start of the file,
// anchored by the oldest checkpoint.
func (e *engine) searchRegion(target int64) (region, error) {
	eof := e.data.Size()

	b, err := e.index.Bounds(target, eof)
	switch {
	case err == nil:
		return region{from: b.From, to: b.To, anchor: b.Lower.Timestamp, bounded: b.HasUpper}, nil

	case errors.Is(err, errors.ErrNoDataBeforeRequestedTime):
		first := e.index.First()
		r := region{from: 0, to: eof, anchor: first.Timestamp}
		if next, ok := e.index.After(first.Timestamp); ok {
			r.to = min(next.Offset, eof)
			r.bounded = true
		}
		e.fallbacks++
		e.log.Debug("no checkpoint before requested time, searching from start of file",
			"target", target, "first_checkpoint", first.Timestamp)
		return r, nil

	default:
		return region{}, err
	}
}

// compareLimit maps target onto the 16-bit compressed timestamps of a
// region anchored at anchor. A line's timestamp exceeds target exactly
// when its compressed value exceeds the returned limit.
func compareLimit(anchor, target int64) int {
	switch tw, aw := types.Window(target), types.Window(anchor); {
	case tw > aw:
		return 1 << types.WindowBits
	case tw < aw:
		return -1
	default:
		return int(line.Compress(target))
	}
}

// scanResult is the outcome of a linear scan for the first line whose
// timestamp exceeds a target.
type scanResult struct {
	found bool
	after uint64 // offset of that line, or region end if not found
	run   uint64 // offset of the first line of the run of equal timestamps preceding it
}

// scan walks the region line by line, comparing compressed timestamps.
func (e *engine) scan(r region, target int64) (scanResult, error) {
	res := scanResult{after: r.to, run: r.from}
	if r.from >= r.to {
		return res, nil
	}

	lineSize := e.codec.Size()
	limit := compareLimit(r.anchor, target)

	chunk := e.batchLines
	if chunk <= 0 {
		chunk = config.DefaultReadBatchLines
	}
	buf := make([]byte, min(r.to-r.from, uint64(chunk*lineSize)))

	prev := -1
	pos := r.from
	for pos < r.to {
		n, err := e.data.ReadBounded(buf, pos, r.to)
		if err == io.EOF {
			break
		}
		if err != nil {
			return res, err
		}

		for off := 0; off < n; off += lineSize {
			at := pos + uint64(off)
			low := int(line.Timestamp(buf[off:]))

			if low > limit {
				res.found = true
				res.after = at
				if at == r.from {
					res.run = at
				}
				return res, nil
			}

			if low != prev {
				res.run = at
				prev = low
			}
		}
		pos += uint64(n)
	}

	return res, nil
}

// setReadStart moves the read start to the line at or just before target.
// The first line whose timestamp exceeds target marks the boundary; the
// start is the line before it, stepping back over lines sharing its
// timestamp, or the region start if the boundary is the first line.
// If no line in the region exceeds target, reading starts at the region
// end.
func (e *engine) setReadStart(target int64) error {
	target = max(target, 0)

	r, err := e.searchRegion(target)
	if err != nil {
		return err
	}

	res, err := e.scan(r, target)
	if err != nil {
		return err
	}

	if res.found {
		e.startByte = res.run
	} else {
		e.startByte = r.to
	}
	e.resetCursor(e.startByte)

	e.log.Debug("read start set", "target", target, "start_byte", e.startByte,
		"search_from", r.from, "search_to", r.to)
	return nil
}

// setReadStop moves the exclusive read stop to the first line whose
// timestamp exceeds target. If no such line exists yet the stop stays
// open: it follows later appends until one exceeds target.
func (e *engine) setReadStop(target int64) error {
	target = max(target, 0)

	r, err := e.searchRegion(target)
	if err != nil {
		return err
	}

	res, err := e.scan(r, target)
	if err != nil {
		return err
	}

	e.stopByte = res.after
	e.stopTarget = target
	e.stopOpen = !res.found && !r.bounded
	e.log.Debug("read stop set", "target", target, "stop_byte", e.stopByte, "open", e.stopOpen)
	return nil
}

// refreshStop re-resolves an open stop over lines appended since it was
// last resolved.
func (e *engine) refreshStop() error {
	if !e.stopOpen || e.data.Size() <= e.stopByte {
		return nil
	}
	return e.setReadStop(e.stopTarget)
}

// clearReadStop makes reads run to the end of the file.
func (e *engine) clearReadStop() {
	e.stopByte = unboundedStop
	e.stopOpen = false
}
