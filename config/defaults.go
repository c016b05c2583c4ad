// Package config provides configuration defaults and utilities
// for the linestore engine and its tools.
//
// This package defines all configurable constants with documented defaults.
// Users can override most of these values via config.yaml.
package config

import "time"

// =============================================================================
// On-disk Format
// =============================================================================

const (
	// TimestampSize is the width of the compressed per-line timestamp.
	// Only the low 16 bits of the Unix time (seconds) are stored per line.
	TimestampSize = 2

	// CheckpointSize is the width of one index record:
	// 8 bytes full timestamp + 8 bytes data file offset.
	CheckpointSize = 16

	// CheckpointWindowBits is the number of low timestamp bits that a
	// checkpoint anchors. One checkpoint is recorded per 2^16 seconds
	// (about 18.2 hours) at most.
	CheckpointWindowBits = 16

	// DataSuffix is appended to a series name to form the data file path.
	DataSuffix = ".data"

	// IndexSuffix is appended to a series name to form the index file path.
	IndexSuffix = ".h"
)

// =============================================================================
// Read Defaults
// =============================================================================

const (
	// DefaultReadBatchLines is the number of lines decoded per batch by
	// the sequential decoder.
	// Override via config: read_batch_lines
	DefaultReadBatchLines = 8000

	// MaxReadBatchLines bounds a single batch to keep memory predictable.
	MaxReadBatchLines = 1 << 20
)

// =============================================================================
// Sampler Defaults
// =============================================================================

const (
	// DefaultSNMPPort is the standard SNMP agent port.
	DefaultSNMPPort = 161

	// DefaultSNMPCommunity is used when a series has no community set.
	DefaultSNMPCommunity = "public"

	// DefaultSNMPTimeoutMs is the timeout of a single SNMP GET.
	// Override via config: sampler.timeout_ms
	DefaultSNMPTimeoutMs = 5000

	// DefaultSNMPRetries is the number of retries for a failed GET.
	// Override via config: sampler.retries
	DefaultSNMPRetries = 2

	// DefaultSampleInterval is the poll interval of a series without
	// an explicit interval.
	DefaultSampleInterval = 10 * time.Second

	// MinSampleInterval is the smallest accepted poll interval. Lines carry
	// whole seconds, so faster sampling would produce duplicate timestamps.
	MinSampleInterval = time.Second

	// ShutdownDrainTimeout bounds how long linestored waits for in-flight
	// polls before closing series.
	ShutdownDrainTimeout = 10 * time.Second
)

// =============================================================================
// Export / Query Defaults
// =============================================================================

const (
	// DefaultExportCompression is the Parquet codec used by exports.
	// Override via config: export.compression
	DefaultExportCompression = "zstd"

	// DefaultQueryMemoryLimit is the DuckDB memory limit.
	// Override via config: query.memory_limit
	DefaultQueryMemoryLimit = "1GB"

	// DefaultMaxFrameSize limits a single wire frame to prevent OOM
	// when reading a dump produced elsewhere.
	DefaultMaxFrameSize = 64 * 1024 * 1024
)
