// Package constants provides centralized domain-specific constants
// shared by the linestore packages and tools.
package constants

import "slices"

// =============================================================================
// Export Compression
// =============================================================================

const (
	CompressionZstd   = "zstd"
	CompressionSnappy = "snappy"
	CompressionLZ4    = "lz4"
	CompressionGzip   = "gzip"
	CompressionNone   = "none"
)

// ValidCompressions contains all accepted Parquet codec names
var ValidCompressions = []string{
	CompressionZstd, CompressionSnappy, CompressionLZ4, CompressionGzip, CompressionNone,
}

// IsValidCompression checks if a codec name is valid. An empty name
// selects the default codec and is accepted.
func IsValidCompression(name string) bool {
	return name == "" || slices.Contains(ValidCompressions, name)
}

// =============================================================================
// Dump Formats - Output of `linestore dump`
// =============================================================================

const (
	// FormatText prints one decoded line per row
	FormatText = "text"

	// FormatWire writes length-delimited protobuf frames
	FormatWire = "wire"

	// FormatRaw copies the on-disk lines unchanged
	FormatRaw = "raw"
)

// ValidDumpFormats contains all valid dump formats
var ValidDumpFormats = []string{FormatText, FormatWire, FormatRaw}

// IsValidDumpFormat checks if a dump format is valid
func IsValidDumpFormat(format string) bool {
	return slices.Contains(ValidDumpFormats, format)
}

// FormatIsBinary reports whether a dump format must not be written to a
// terminal.
func FormatIsBinary(format string) bool {
	return format == FormatWire || format == FormatRaw
}

// =============================================================================
// Time Formats
// =============================================================================

const (
	// TimeLayout is used for timestamps printed by the CLI
	TimeLayout = "2006-01-02T15:04:05Z07:00"
)

// =============================================================================
// Percentiles reported by downsampling
// =============================================================================

// Percentiles lists the quantiles computed by combine and query, in order.
var Percentiles = []float64{0.50, 0.90, 0.95, 0.99}
