// Package parquet exports series to Parquet files and reads them back.
//
// The package provides:
//   - Generic Writer/Reader over row types
//   - ReadingRow for sampler readings, RawRow for opaque payloads and
//     AggregateRow for downsampled buckets
//   - Export of a time range of a series
//   - Support for multiple compression algorithms (snappy, zstd, lz4, gzip)
package parquet
