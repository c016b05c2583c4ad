package storage

import (
	"github.com/xtxerr/linestore/config"
	"github.com/xtxerr/linestore/internal/storage/line"
	"github.com/xtxerr/linestore/internal/storage/types"
)

// resetCursor positions the decoder cursor on the checkpoint anchoring
// the line at pos.
func (e *engine) resetCursor(pos uint64) {
	cp, ok := e.index.AtOffset(pos)
	if !ok {
		cp = e.index.First()
	}
	e.current = cp
	e.next = e.checkpointAfter(cp)
}

func (e *engine) checkpointAfter(cp types.Checkpoint) types.Checkpoint {
	if next, ok := e.index.After(cp.Timestamp); ok {
		return next
	}
	return types.Unbounded
}

// timestampAt reconstructs the full timestamp of the line starting at pos.
// Positions must be visited in increasing order between cursor resets.
func (e *engine) timestampAt(pos uint64, low uint16) int64 {
	if pos < e.current.Offset {
		e.resetCursor(pos)
	}
	for pos >= e.next.Offset {
		e.current = e.next
		e.next = e.checkpointAfter(e.current)
	}
	return line.Reconstruct(e.current.Timestamp, low)
}

// readBatch decodes up to n lines from the read start and advances it.
// It returns io.EOF once the read window is exhausted.
func (e *engine) readBatch(n int) (*types.Batch, error) {
	if n <= 0 {
		n = e.batchLines
	}
	if n <= 0 {
		n = config.DefaultReadBatchLines
	}
	n = min(n, config.MaxReadBatchLines)

	if err := e.refreshStop(); err != nil {
		return nil, err
	}

	lineSize := e.codec.Size()
	need := n * lineSize
	if cap(e.readBuf) < need {
		e.readBuf = make([]byte, need)
	}
	buf := e.readBuf[:need]

	got, err := e.data.ReadBounded(buf, e.startByte, e.stopByte)
	if err != nil {
		return nil, err
	}

	batch := types.NewBatch(e.codec.PayloadWidth(), got/lineSize)
	for off := 0; off < got; off += lineSize {
		l := buf[off : off+lineSize]
		ts := e.timestampAt(e.startByte+uint64(off), line.Timestamp(l))
		batch.Add(ts, line.Payload(l))
	}
	e.startByte += uint64(got)

	return batch, nil
}

// read copies whole raw lines from the read window into p.
func (e *engine) read(p []byte) (int, error) {
	if err := e.refreshStop(); err != nil {
		return 0, err
	}
	n, err := e.data.ReadBounded(p, e.startByte, e.stopByte)
	if err != nil {
		return 0, err
	}
	e.startByte += uint64(n)
	return n, nil
}
