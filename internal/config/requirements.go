package config

import (
	"fmt"
	"strings"
	"time"

	defaults "github.com/xtxerr/linestore/config"
)

// Requirements represents the estimated disk growth of the configured
// sampled series.
type Requirements struct {
	SampledSeries int

	// Throughput
	LinesPerDay int64
	BytesPerDay int64

	// Index growth is bounded by one record per checkpoint window.
	IndexBytesPerDay int64

	// Query cache
	QueryMemoryBytes int64
}

// Constants for calculations
const (
	secondsPerDay = 86400

	// Checkpoint windows per day, rounded up.
	windowsPerDay = (secondsPerDay + 1<<defaults.CheckpointWindowBits - 1) >> defaults.CheckpointWindowBits
)

// CalculateRequirements estimates disk growth from the sampled series.
// Unsampled series are written by other tools and are not counted.
func (c *Config) CalculateRequirements() Requirements {
	r := Requirements{
		QueryMemoryBytes: parseMemoryLimit(c.Query.MemoryLimit),
	}

	for i := range c.Series {
		s := &c.Series[i]
		if !s.Sampled() || s.Interval <= 0 {
			continue
		}

		width, err := s.PayloadWidth()
		if err != nil {
			continue
		}

		lines := int64(secondsPerDay / (s.Interval / time.Second))
		r.SampledSeries++
		r.LinesPerDay += lines
		r.BytesPerDay += lines * int64(defaults.TimestampSize+width)
		r.IndexBytesPerDay += windowsPerDay * defaults.CheckpointSize
	}

	return r
}

// FormatRequirements returns a human-readable summary of requirements.
func (r *Requirements) FormatRequirements() string {
	return fmt.Sprintf(`Resource Requirements
=====================

Series:
  Sampled:           %d

Throughput:
  Lines/day:         %s
  Data/day:          %s
  Index/day:         %s
  Data/year:         %s

Memory:
  Query Cache:       %s
`,
		r.SampledSeries,
		formatNumber(r.LinesPerDay),
		formatBytes(r.BytesPerDay),
		formatBytes(r.IndexBytesPerDay),
		formatBytes((r.BytesPerDay+r.IndexBytesPerDay)*365),
		formatBytes(r.QueryMemoryBytes),
	)
}

// parseMemoryLimit parses a memory limit string like "2GB" into bytes.
// It returns 0 if s is not a size.
func parseMemoryLimit(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}

	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 {
		return 0
	}

	var value int64
	fmt.Sscanf(s[:i], "%d", &value)

	switch strings.ToUpper(strings.TrimSpace(s[i:])) {
	case "B", "":
		return value
	case "KB", "K":
		return value * 1024
	case "MB", "M":
		return value * 1024 * 1024
	case "GB", "G":
		return value * 1024 * 1024 * 1024
	case "TB", "T":
		return value * 1024 * 1024 * 1024 * 1024
	default:
		return 0
	}
}

// formatBytes formats bytes as a human-readable string.
func formatBytes(b int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
		TB = 1024 * GB
	)

	switch {
	case b >= TB:
		return fmt.Sprintf("%.2f TB", float64(b)/float64(TB))
	case b >= GB:
		return fmt.Sprintf("%.2f GB", float64(b)/float64(GB))
	case b >= MB:
		return fmt.Sprintf("%.2f MB", float64(b)/float64(MB))
	case b >= KB:
		return fmt.Sprintf("%.2f KB", float64(b)/float64(KB))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

// formatNumber formats a number with a K/M/B suffix.
func formatNumber(n int64) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	}
	if n < 1000000000 {
		return fmt.Sprintf("%.1fM", float64(n)/1000000)
	}
	return fmt.Sprintf("%.1fB", float64(n)/1000000000)
}
