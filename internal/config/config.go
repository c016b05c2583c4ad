// Package config loads the YAML configuration shared by linestored and
// the linestore CLI.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	defaults "github.com/xtxerr/linestore/config"
	"github.com/xtxerr/linestore/internal/storage/types"
	"gopkg.in/yaml.v3"
)

// Payload kinds accepted by SeriesConfig.Payload.
const (
	PayloadReading = "reading"
	PayloadRaw     = "raw"
)

// Config represents the complete configuration.
type Config struct {
	// DataDir is the directory holding every series' files.
	DataDir string `yaml:"data_dir"`

	// ReadBatchLines is the number of lines decoded per batch.
	ReadBatchLines int `yaml:"read_batch_lines"`

	// Logging configures the slog handler.
	Logging LoggingConfig `yaml:"logging"`

	// Export configures Parquet exports.
	Export ExportConfig `yaml:"export"`

	// Query configures the DuckDB query service.
	Query QueryConfig `yaml:"query"`

	// Sampler configures SNMP polling.
	Sampler SamplerConfig `yaml:"sampler"`

	// Series lists the series to open.
	Series []SeriesConfig `yaml:"series"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// JSON switches to the JSON handler.
	JSON bool `yaml:"json"`
}

// ExportConfig configures Parquet exports.
type ExportConfig struct {
	// Compression is the codec: zstd, snappy, lz4, gzip, none.
	Compression string `yaml:"compression"`
}

// QueryConfig configures the query service.
type QueryConfig struct {
	// MemoryLimit is the DuckDB memory limit.
	MemoryLimit string `yaml:"memory_limit"`

	// Timeout is the query timeout.
	Timeout time.Duration `yaml:"timeout"`

	// PercentileAccuracy is the relative accuracy of in-process
	// percentile sketches (0.01 = 1% error).
	PercentileAccuracy float64 `yaml:"percentile_accuracy"`
}

// SamplerConfig configures SNMP polling.
type SamplerConfig struct {
	// TimeoutMs is the timeout of a single GET.
	TimeoutMs int `yaml:"timeout_ms"`

	// Retries is the number of retries of a failed GET.
	Retries int `yaml:"retries"`
}

// SeriesConfig describes one series.
type SeriesConfig struct {
	// Name is the series file name prefix under DataDir.
	Name string `yaml:"name"`

	// Payload is "reading" or "raw:<width>".
	Payload string `yaml:"payload"`

	// Interval is the poll interval of sampled series.
	Interval time.Duration `yaml:"interval"`

	// SNMP makes the series sampled by linestored. Optional.
	SNMP *SNMPConfig `yaml:"snmp"`
}

// SNMPConfig identifies the value a sampled series polls.
type SNMPConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	OID  string `yaml:"oid"`

	// v2c
	Community string `yaml:"community"`

	// v3, selected by a non-empty SecurityName
	SecurityName  string `yaml:"security_name"`
	SecurityLevel string `yaml:"security_level"`
	AuthProtocol  string `yaml:"auth_protocol"`
	AuthPassword  string `yaml:"auth_password"`
	PrivProtocol  string `yaml:"priv_protocol"`
	PrivPassword  string `yaml:"priv_password"`
	ContextName   string `yaml:"context_name"`
}

// IsV3 reports whether the series polls with SNMPv3.
func (c *SNMPConfig) IsV3() bool {
	return c.SecurityName != ""
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	config.applySeriesDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DataDir:        "/var/lib/linestore",
		ReadBatchLines: defaults.DefaultReadBatchLines,
		Logging: LoggingConfig{
			Level: "info",
		},
		Export: ExportConfig{
			Compression: defaults.DefaultExportCompression,
		},
		Query: QueryConfig{
			MemoryLimit:        defaults.DefaultQueryMemoryLimit,
			Timeout:            30 * time.Second,
			PercentileAccuracy: 0.01,
		},
		Sampler: SamplerConfig{
			TimeoutMs: defaults.DefaultSNMPTimeoutMs,
			Retries:   defaults.DefaultSNMPRetries,
		},
	}
}

func (c *Config) applySeriesDefaults() {
	for i := range c.Series {
		s := &c.Series[i]
		if s.Interval == 0 {
			s.Interval = defaults.DefaultSampleInterval
		}
		if s.SNMP != nil {
			if s.SNMP.Port == 0 {
				s.SNMP.Port = defaults.DefaultSNMPPort
			}
			if s.SNMP.Community == "" && !s.SNMP.IsV3() {
				s.SNMP.Community = defaults.DefaultSNMPCommunity
			}
		}
	}
}

// SeriesPath returns the path prefix of a series under DataDir.
func (c *Config) SeriesPath(name string) string {
	return filepath.Join(c.DataDir, name)
}

// FindSeries returns the series configuration with the given name.
func (c *Config) FindSeries(name string) (*SeriesConfig, bool) {
	for i := range c.Series {
		if c.Series[i].Name == name {
			return &c.Series[i], true
		}
	}
	return nil, false
}

// SNMPTimeout returns the sampler timeout as a duration.
func (c *SamplerConfig) SNMPTimeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// PayloadWidth returns the payload width in bytes implied by Payload.
func (s *SeriesConfig) PayloadWidth() (int, error) {
	kind, arg, _ := strings.Cut(s.Payload, ":")
	switch kind {
	case PayloadReading:
		if arg != "" {
			return 0, fmt.Errorf("payload %q takes no width", s.Payload)
		}
		return types.ReadingSize, nil

	case PayloadRaw:
		width, err := strconv.Atoi(arg)
		if err != nil || width <= 0 {
			return 0, fmt.Errorf("payload %q: width must be a positive integer", s.Payload)
		}
		return width, nil

	default:
		return 0, fmt.Errorf("payload %q must be %q or %q", s.Payload, PayloadReading, PayloadRaw+":<width>")
	}
}

// IsReading reports whether the series holds sampler readings.
func (s *SeriesConfig) IsReading() bool {
	return s.Payload == PayloadReading
}

// Sampled reports whether linestored polls this series.
func (s *SeriesConfig) Sampled() bool {
	return s.SNMP != nil
}
