package combine

import (
	"fmt"
	"sort"
	"time"

	"github.com/xtxerr/linestore/internal/errors"
	"github.com/xtxerr/linestore/internal/storage"
	"github.com/xtxerr/linestore/internal/storage/decode"
	"github.com/xtxerr/linestore/internal/storage/types"
)

// Downsampler assigns points to fixed-size buckets.
// It is not safe for concurrent use.
type Downsampler struct {
	bucketSize int64 // seconds
	accuracy   float64

	buckets   map[int64]*Bucket
	completed []types.Aggregate

	stats DownsamplerStats
}

// DownsamplerStats holds downsampler statistics.
type DownsamplerStats struct {
	ActiveBuckets    int64
	PointsProcessed  int64
	PointsSkipped    int64
	BucketsCompleted int64
}

// NewDownsampler creates a downsampler with the given bucket width.
// accuracy <= 0 disables percentiles.
func NewDownsampler(bucketSize time.Duration, accuracy float64) (*Downsampler, error) {
	if bucketSize < time.Second {
		return nil, errors.NewValidation("bucket", fmt.Sprintf("bucket size %s is below 1s", bucketSize))
	}

	return &Downsampler{
		bucketSize: int64(bucketSize / time.Second),
		accuracy:   accuracy,
		buckets:    make(map[int64]*Bucket),
	}, nil
}

// Process adds a point to its bucket. Points in a newer bucket complete
// every older bucket, so in-order input keeps a single bucket active.
func (d *Downsampler) Process(p types.Point) {
	if !p.Valid {
		d.stats.PointsSkipped++
		return
	}

	start, end := d.bucketOf(p.Timestamp)

	b, ok := d.buckets[start]
	if !ok {
		d.completeBefore(start)
		b = NewBucket(start, end, d.accuracy)
		d.buckets[start] = b
	}

	b.AddPoint(p)
	d.stats.PointsProcessed++
}

// ProcessBatch processes multiple points.
func (d *Downsampler) ProcessBatch(points []types.Point) {
	for i := range points {
		d.Process(points[i])
	}
}

// FlushCompleted returns and clears the completed buckets.
func (d *Downsampler) FlushCompleted() []types.Aggregate {
	out := d.completed
	d.completed = nil
	return out
}

// FlushAll completes every active bucket and returns all completed
// buckets ordered by start time.
func (d *Downsampler) FlushAll() []types.Aggregate {
	d.completeBefore(1<<63 - 1)

	out := d.completed
	d.completed = nil
	sort.Slice(out, func(i, j int) bool {
		return out[i].BucketStart < out[j].BucketStart
	})
	return out
}

// Stats returns current statistics.
func (d *Downsampler) Stats() DownsamplerStats {
	s := d.stats
	s.ActiveBuckets = int64(len(d.buckets))
	return s
}

func (d *Downsampler) completeBefore(start int64) {
	keys := make([]int64, 0, len(d.buckets))
	for k := range d.buckets {
		if k < start {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	for _, k := range keys {
		if b := d.buckets[k]; !b.IsEmpty() {
			d.completed = append(d.completed, b.Result())
			d.stats.BucketsCompleted++
		}
		delete(d.buckets, k)
	}
}

func (d *Downsampler) bucketOf(ts int64) (start, end int64) {
	start = ts - ts%d.bucketSize
	return start, start + d.bucketSize
}

// Series downsamples the readings of s stamped within [start, end]. s
// must hold one reading per line. A zero end reads to the end of s.
func Series(s *storage.Series, start, end time.Time, bucketSize time.Duration, accuracy float64) ([]types.Aggregate, error) {
	d, err := NewDownsampler(bucketSize, accuracy)
	if err != nil {
		return nil, err
	}

	if s.PayloadWidth() != types.ReadingSize {
		return nil, errors.NewDecode("reading",
			fmt.Sprintf("series %s has payload width %d, expected %d", s.Name(), s.PayloadWidth(), types.ReadingSize))
	}

	err = s.Range(start, end, func(b *types.Batch) error {
		points, err := decode.Points(b)
		if err != nil {
			return err
		}
		d.ProcessBatch(points)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return d.FlushAll(), nil
}
