package parquet

import (
	"github.com/xtxerr/linestore/internal/storage/types"
)

// ReadingRow represents a reading in Parquet format.
type ReadingRow struct {
	Timestamp int64   `parquet:"timestamp"`
	Value     float64 `parquet:"value"`
	Valid     bool    `parquet:"valid"`
	PollMs    int64   `parquet:"poll_ms"`
}

// RawRow represents an opaque payload in Parquet format.
type RawRow struct {
	Timestamp int64  `parquet:"timestamp"`
	Payload   []byte `parquet:"payload"`
}

// AggregateRow represents an aggregate in Parquet format.
type AggregateRow struct {
	BucketStart int64   `parquet:"bucket_start"`
	BucketEnd   int64   `parquet:"bucket_end"`
	Count       int64   `parquet:"count"`
	Sum         float64 `parquet:"sum"`
	Min         float64 `parquet:"min"`
	Max         float64 `parquet:"max"`
	Avg         float64 `parquet:"avg"`
	P50         float64 `parquet:"p50,optional"`
	P90         float64 `parquet:"p90,optional"`
	P95         float64 `parquet:"p95,optional"`
	P99         float64 `parquet:"p99,optional"`
	FirstTs     int64   `parquet:"first_ts"`
	LastTs      int64   `parquet:"last_ts"`
}

// PointToRow converts a Point to a ReadingRow.
func PointToRow(p *types.Point) ReadingRow {
	return ReadingRow{
		Timestamp: p.Timestamp,
		Value:     p.Value,
		Valid:     p.Valid,
		PollMs:    int64(p.PollMs),
	}
}

// RowToPoint converts a ReadingRow to a Point.
func RowToPoint(r *ReadingRow) types.Point {
	return types.Point{
		Timestamp: r.Timestamp,
		Reading: types.Reading{
			Value:  r.Value,
			Valid:  r.Valid,
			PollMs: uint32(r.PollMs),
		},
	}
}

// AggregateToRow converts an Aggregate to an AggregateRow.
func AggregateToRow(a *types.Aggregate) AggregateRow {
	row := AggregateRow{
		BucketStart: a.BucketStart,
		BucketEnd:   a.BucketEnd,
		Count:       a.Count,
		Sum:         a.Sum,
		Min:         a.Min,
		Max:         a.Max,
		Avg:         a.Avg,
		FirstTs:     a.FirstTs,
		LastTs:      a.LastTs,
	}

	if a.P50 != nil {
		row.P50 = *a.P50
	}
	if a.P90 != nil {
		row.P90 = *a.P90
	}
	if a.P95 != nil {
		row.P95 = *a.P95
	}
	if a.P99 != nil {
		row.P99 = *a.P99
	}

	return row
}

// RowToAggregate converts an AggregateRow to an Aggregate.
func RowToAggregate(r *AggregateRow) types.Aggregate {
	a := types.Aggregate{
		BucketStart: r.BucketStart,
		BucketEnd:   r.BucketEnd,
		Count:       r.Count,
		Sum:         r.Sum,
		Min:         r.Min,
		Max:         r.Max,
		Avg:         r.Avg,
		FirstTs:     r.FirstTs,
		LastTs:      r.LastTs,
	}

	// Set percentiles if present
	if r.P50 != 0 || r.P90 != 0 || r.P95 != 0 || r.P99 != 0 {
		a.SetPercentiles(r.P50, r.P90, r.P95, r.P99)
	}

	return a
}
