package types

import "time"

// ReadingSize is the payload width of an encoded Reading:
// 8 bytes value + 1 byte valid flag + 4 bytes poll duration.
const ReadingSize = 13

// Reading is a single measurement taken by the sampler.
// This is the payload of series with the "reading" payload kind.
type Reading struct {
	Value  float64 // Gauge value, or counter value converted to float64
	Valid  bool    // False if the poll failed
	PollMs uint32  // Time taken for the poll in milliseconds
}

// Point is a decoded reading together with its line timestamp.
type Point struct {
	Timestamp int64 // Unix seconds
	Reading
}

// Time returns the timestamp as a time.Time.
func (p *Point) Time() time.Time {
	return time.Unix(p.Timestamp, 0).UTC()
}
