// Package types defines the core data types used throughout the storage engine.
//
// Key types:
//   - Checkpoint: A (full timestamp, data offset) pair recorded in the index
//   - Batch: Lines decoded by the sequential decoder
//   - Reading: The payload written by the SNMP sampler
//   - Aggregate: Downsampled statistics for a time bucket
package types
