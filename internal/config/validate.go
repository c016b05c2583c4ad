package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	defaults "github.com/xtxerr/linestore/config"
	"github.com/xtxerr/linestore/internal/constants"
	lserrors "github.com/xtxerr/linestore/internal/errors"
	"github.com/xtxerr/linestore/internal/logging"
	"github.com/xtxerr/linestore/internal/validation"
)

// Validate checks the configuration for errors. Every problem is
// reported, joined into one error wrapping ErrInvalidConfig.
func (c *Config) Validate() error {
	var errs []error

	if c.DataDir == "" {
		errs = append(errs, errors.New("data_dir is required"))
	}

	if c.ReadBatchLines <= 0 || c.ReadBatchLines > defaults.MaxReadBatchLines {
		errs = append(errs, fmt.Errorf("read_batch_lines must be between 1 and %d", defaults.MaxReadBatchLines))
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging: %w", err))
	}

	if err := c.Export.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("export: %w", err))
	}

	if err := c.Query.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("query: %w", err))
	}

	if err := c.Sampler.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("sampler: %w", err))
	}

	seen := make(map[string]bool)
	for i := range c.Series {
		s := &c.Series[i]
		if err := s.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("series[%d]: %w", i, err))
		}
		if seen[s.Name] {
			errs = append(errs, fmt.Errorf("series[%d]: duplicate name %q", i, s.Name))
		}
		seen[s.Name] = true
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", lserrors.ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// Validate checks the export configuration.
func (c *ExportConfig) Validate() error {
	if !constants.IsValidCompression(c.Compression) {
		return fmt.Errorf("compression must be one of: %s", strings.Join(constants.ValidCompressions, ", "))
	}
	return nil
}

// Validate checks the query configuration.
func (c *QueryConfig) Validate() error {
	var errs []error

	if c.Timeout <= 0 {
		errs = append(errs, errors.New("timeout must be positive"))
	}

	if c.PercentileAccuracy < 0 || c.PercentileAccuracy >= 1 {
		errs = append(errs, errors.New("percentile_accuracy must be between 0 and 1"))
	}

	if c.MemoryLimit != "" && parseMemoryLimit(c.MemoryLimit) <= 0 {
		errs = append(errs, fmt.Errorf("memory_limit %q is not a size", c.MemoryLimit))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the sampler configuration.
func (c *SamplerConfig) Validate() error {
	var errs []error

	if c.TimeoutMs <= 0 {
		errs = append(errs, errors.New("timeout_ms must be positive"))
	}

	if c.Retries < 0 {
		errs = append(errs, errors.New("retries must be non-negative"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks one series entry.
func (s *SeriesConfig) Validate() error {
	var errs []error

	if s.Name == "" {
		errs = append(errs, errors.New("name is required"))
	} else if err := validation.ValidateSeriesName(s.Name); err != nil {
		errs = append(errs, fmt.Errorf("name %q: %w", s.Name, err))
	}

	if _, err := s.PayloadWidth(); err != nil {
		errs = append(errs, err)
	}

	if s.SNMP != nil {
		if !s.IsReading() {
			errs = append(errs, errors.New("snmp requires payload \"reading\""))
		}
		if s.Interval < defaults.MinSampleInterval {
			errs = append(errs, fmt.Errorf("interval must be at least %s", defaults.MinSampleInterval))
		}
		if err := validation.ValidateHost(s.SNMP.Host); err != nil {
			errs = append(errs, fmt.Errorf("snmp.host: %w", err))
		}
		if err := validation.ValidateOID(s.SNMP.OID); err != nil {
			errs = append(errs, fmt.Errorf("snmp.oid: %w", err))
		}
		if s.SNMP.Port <= 0 || s.SNMP.Port > 65535 {
			errs = append(errs, errors.New("snmp.port must be between 1 and 65535"))
		}
		errs = append(errs, validateSNMPSecurity(s.SNMP)...)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

var (
	validSecurityLevels = []string{"noAuthNoPriv", "authNoPriv", "authPriv"}
	validAuthProtocols  = []string{"", "MD5", "SHA", "SHA224", "SHA256", "SHA384", "SHA512"}
	validPrivProtocols  = []string{"", "DES", "AES", "AES192", "AES256"}
)

func validateSNMPSecurity(c *SNMPConfig) []error {
	if !c.IsV3() {
		if c.Community == "" {
			return []error{errors.New("snmp.community is required for v2c")}
		}
		return nil
	}

	var errs []error
	if !slices.Contains(validSecurityLevels, c.SecurityLevel) {
		errs = append(errs, fmt.Errorf("snmp.security_level must be one of %v", validSecurityLevels))
	}
	if !slices.Contains(validAuthProtocols, c.AuthProtocol) {
		errs = append(errs, fmt.Errorf("snmp.auth_protocol %q is not supported", c.AuthProtocol))
	}
	if !slices.Contains(validPrivProtocols, c.PrivProtocol) {
		errs = append(errs, fmt.Errorf("snmp.priv_protocol %q is not supported", c.PrivProtocol))
	}
	if c.SecurityLevel != "noAuthNoPriv" && c.AuthPassword == "" {
		errs = append(errs, errors.New("snmp.auth_password is required with authentication"))
	}
	if c.SecurityLevel == "authPriv" && c.PrivPassword == "" {
		errs = append(errs, errors.New("snmp.priv_password is required with privacy"))
	}
	return errs
}

// EnsureDirectories creates the data directory.
func (c *Config) EnsureDirectories() error {
	if err := os.MkdirAll(c.DataDir, 0755); err != nil {
		return fmt.Errorf("create directory %s: %w", c.DataDir, err)
	}
	return nil
}
