// Package combine downsamples decoded readings into fixed time buckets.
//
// Each bucket keeps running count/sum/min/max and, optionally, a DDSketch
// for percentiles. Buckets from different passes over the same time range
// can be merged.
package combine

import (
	"math"
	"time"

	"github.com/DataDog/sketches-go/ddsketch"
	"github.com/xtxerr/linestore/internal/constants"
	"github.com/xtxerr/linestore/internal/storage/types"
)

// DefaultAccuracy is the relative accuracy of percentile sketches.
const DefaultAccuracy = 0.01

// Bucket maintains running statistics for a single time bucket.
// A Bucket is not safe for concurrent use.
type Bucket struct {
	// Time bucket, Unix seconds
	start int64
	end   int64

	count   int64
	sum     float64
	min     float64
	max     float64
	firstTs int64
	lastTs  int64

	// nil if percentiles are disabled
	sketch   *ddsketch.DDSketch
	accuracy float64
}

// NewBucket creates an empty bucket covering [start, end). accuracy <= 0
// disables percentiles.
func NewBucket(start, end int64, accuracy float64) *Bucket {
	b := &Bucket{accuracy: accuracy}
	b.Reset(start, end)
	return b
}

// Add adds a value observed at ts (Unix seconds).
func (b *Bucket) Add(value float64, ts int64) {
	b.count++
	b.sum += value

	if value < b.min {
		b.min = value
	}
	if value > b.max {
		b.max = value
	}

	if b.count == 1 || ts < b.firstTs {
		b.firstTs = ts
	}
	if ts > b.lastTs {
		b.lastTs = ts
	}

	if b.sketch != nil {
		b.sketch.Add(value)
	}
}

// AddPoint adds a reading. Invalid readings are ignored.
func (b *Bucket) AddPoint(p types.Point) {
	if !p.Valid {
		return
	}
	b.Add(p.Value, p.Timestamp)
}

// Count returns the number of values added.
func (b *Bucket) Count() int64 {
	return b.count
}

// IsEmpty returns true if no values have been added.
func (b *Bucket) IsEmpty() bool {
	return b.count == 0
}

// Start returns the bucket start in Unix seconds.
func (b *Bucket) Start() int64 {
	return b.start
}

// Contains reports whether ts falls inside the bucket.
func (b *Bucket) Contains(ts int64) bool {
	return ts >= b.start && ts < b.end
}

// Result returns the bucket statistics.
func (b *Bucket) Result() types.Aggregate {
	r := types.Aggregate{
		BucketStart: b.start,
		BucketEnd:   b.end,
		Count:       b.count,
		Sum:         b.sum,
		FirstTs:     b.firstTs,
		LastTs:      b.lastTs,
	}

	if b.count > 0 {
		r.Avg = b.sum / float64(b.count)
		r.Min = b.min
		r.Max = b.max
	}

	if b.sketch != nil && b.count > 0 {
		if q, err := b.sketch.GetValuesAtQuantiles(constants.Percentiles); err == nil {
			r.SetPercentiles(q[0], q[1], q[2], q[3])
		}
	}

	return r
}

// Reset empties the bucket and moves it to [start, end).
func (b *Bucket) Reset(start, end int64) {
	b.start = start
	b.end = end
	b.count = 0
	b.sum = 0
	b.min = math.MaxFloat64
	b.max = -math.MaxFloat64
	b.firstTs = 0
	b.lastTs = 0

	b.sketch = nil
	if b.accuracy > 0 {
		// DDSketch has no Clear; start a fresh one.
		if sketch, err := ddsketch.NewDefaultDDSketch(b.accuracy); err == nil {
			b.sketch = sketch
		}
	}
}

// Merge folds other into b. Both must cover the same time range.
func (b *Bucket) Merge(other *Bucket) error {
	if other == nil || other.count == 0 {
		return nil
	}

	if b.count == 0 || other.firstTs < b.firstTs {
		b.firstTs = other.firstTs
	}
	if other.lastTs > b.lastTs {
		b.lastTs = other.lastTs
	}

	b.count += other.count
	b.sum += other.sum
	b.min = min(b.min, other.min)
	b.max = max(b.max, other.max)

	if b.sketch != nil && other.sketch != nil {
		return b.sketch.MergeWith(other.sketch)
	}
	return nil
}

// Duration returns the bucket width.
func (b *Bucket) Duration() time.Duration {
	return time.Duration(b.end-b.start) * time.Second
}
