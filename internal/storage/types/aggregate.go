package types

import "time"

// Aggregate represents downsampled statistics for a time bucket.
// This is the output of the combiners and of the DuckDB query service.
type Aggregate struct {
	// Time bucket
	BucketStart int64 // Unix seconds (inclusive)
	BucketEnd   int64 // Unix seconds (exclusive)

	// Basic statistics (always present)
	Count int64   // Number of valid readings in this bucket
	Sum   float64 // Sum of all values
	Min   float64 // Minimum value
	Max   float64 // Maximum value
	Avg   float64 // Average value (Sum / Count)

	// Percentiles (optional, nil if not enabled)
	P50 *float64
	P90 *float64
	P95 *float64
	P99 *float64

	// Timestamps of actual readings
	FirstTs int64
	LastTs  int64
}

// BucketStartTime returns the bucket start as a time.Time.
func (a *Aggregate) BucketStartTime() time.Time {
	return time.Unix(a.BucketStart, 0).UTC()
}

// Duration returns the bucket duration.
func (a *Aggregate) Duration() time.Duration {
	return time.Duration(a.BucketEnd-a.BucketStart) * time.Second
}

// IsEmpty returns true if nothing was aggregated.
func (a *Aggregate) IsEmpty() bool {
	return a.Count == 0
}

// HasPercentiles returns true if percentile data is available.
func (a *Aggregate) HasPercentiles() bool {
	return a.P50 != nil
}

// SetPercentiles sets all percentile values.
func (a *Aggregate) SetPercentiles(p50, p90, p95, p99 float64) {
	a.P50 = &p50
	a.P90 = &p90
	a.P95 = &p95
	a.P99 = &p99
}
