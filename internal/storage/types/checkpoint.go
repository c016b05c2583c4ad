package types

import (
	"fmt"
	"math"
	"time"
)

// WindowBits is the number of timestamp bits covered by a single
// checkpoint. Lines only carry these low bits.
const WindowBits = 16

// Checkpoint anchors full timestamps: the line at Offset in the data file
// was the first one written in the window of Timestamp.
type Checkpoint struct {
	Timestamp int64  // Unix seconds
	Offset    uint64 // Byte offset into the data file
}

// Unbounded is the sentinel checkpoint used when no further checkpoint
// exists. No byte position ever reaches its offset.
var Unbounded = Checkpoint{Offset: math.MaxUint64}

// Window returns the checkpoint window of ts: floor(ts / 65536).
func Window(ts int64) int64 {
	return ts >> WindowBits
}

// Window returns the checkpoint window this checkpoint belongs to.
func (c Checkpoint) Window() int64 {
	return Window(c.Timestamp)
}

// IsUnbounded reports whether c is the Unbounded sentinel.
func (c Checkpoint) IsUnbounded() bool {
	return c.Offset == math.MaxUint64
}

// Time returns the checkpoint timestamp as a time.Time.
func (c Checkpoint) Time() time.Time {
	return time.Unix(c.Timestamp, 0).UTC()
}

func (c Checkpoint) String() string {
	if c.IsUnbounded() {
		return "checkpoint(unbounded)"
	}
	return fmt.Sprintf("checkpoint(ts=%d, offset=%d)", c.Timestamp, c.Offset)
}
