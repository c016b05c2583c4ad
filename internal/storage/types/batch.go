package types

import "time"

// Batch holds lines decoded by the sequential decoder. Timestamps[i]
// belongs to the payload at Payloads[i*Width : (i+1)*Width].
type Batch struct {
	Timestamps []int64 // Unix seconds, reconstructed
	Payloads   []byte  // Concatenated payloads
	Width      int     // Payload width in bytes
}

// NewBatch creates a batch with room for the given number of lines.
func NewBatch(width, capacity int) *Batch {
	return &Batch{
		Timestamps: make([]int64, 0, capacity),
		Payloads:   make([]byte, 0, capacity*width),
		Width:      width,
	}
}

// Add appends a line to the batch. The payload is copied.
func (b *Batch) Add(ts int64, payload []byte) {
	b.Timestamps = append(b.Timestamps, ts)
	b.Payloads = append(b.Payloads, payload...)
}

// Len returns the number of lines in the batch.
func (b *Batch) Len() int {
	return len(b.Timestamps)
}

// Payload returns the payload of line i.
func (b *Batch) Payload(i int) []byte {
	return b.Payloads[i*b.Width : (i+1)*b.Width]
}

// Time returns the timestamp of line i as a time.Time.
func (b *Batch) Time(i int) time.Time {
	return time.Unix(b.Timestamps[i], 0).UTC()
}

// Clear resets the batch for reuse.
func (b *Batch) Clear() {
	b.Timestamps = b.Timestamps[:0]
	b.Payloads = b.Payloads[:0]
}
