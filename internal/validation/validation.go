// Package validation provides centralized input validation for linestore.
//
// Series names become file names under the data directory, so they are
// held to stricter rules than free text.
package validation

import (
	"fmt"
	"net"
	"regexp"
	"strings"
	"unicode"
)

// =============================================================================
// Name Validation
// =============================================================================

// NameRules defines the validation rules for names.
type NameRules struct {
	MinLength    int
	MaxLength    int
	AllowDots    bool
	AllowHyphens bool
	AllowUnders  bool
}

// seriesNameRules returns the rules for series names. The length limit
// leaves room for the file suffixes within a 255 byte file name.
func seriesNameRules() NameRules {
	return NameRules{
		MinLength:    1,
		MaxLength:    250,
		AllowDots:    true,
		AllowHyphens: true,
		AllowUnders:  true,
	}
}

// ValidateName validates a name according to the given rules.
func ValidateName(name string, rules NameRules) error {
	if len(name) < rules.MinLength {
		return fmt.Errorf("name too short: minimum %d characters required", rules.MinLength)
	}
	if len(name) > rules.MaxLength {
		return fmt.Errorf("name too long: maximum %d characters allowed", rules.MaxLength)
	}

	if name == "." || name == ".." {
		return fmt.Errorf("name cannot be '.' or '..'")
	}

	if strings.HasPrefix(name, ".") {
		return fmt.Errorf("name cannot start with '.'")
	}

	for i, r := range name {
		if r < 32 || r == 127 {
			return fmt.Errorf("name cannot contain control characters at position %d", i)
		}
		if r == '/' || r == '\\' {
			return fmt.Errorf("name cannot contain path separators at position %d", i)
		}
		if !isAllowedNameChar(r, rules) {
			return fmt.Errorf("invalid character '%c' at position %d", r, i)
		}
	}

	return nil
}

func isAllowedNameChar(r rune, rules NameRules) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	switch r {
	case '.':
		return rules.AllowDots
	case '-':
		return rules.AllowHyphens
	case '_':
		return rules.AllowUnders
	}
	return false
}

// ValidateSeriesName validates a series name with seriesNameRules.
func ValidateSeriesName(name string) error {
	return ValidateName(name, seriesNameRules())
}

// =============================================================================
// SNMP Source Validation
// =============================================================================

// oidPattern matches numeric OIDs with at least two arcs, with or without
// a leading dot.
var oidPattern = regexp.MustCompile(`^\.?[0-9]+(\.[0-9]+)+$`)

// ValidateOID checks that oid is a numeric object identifier. Symbolic MIB
// names are not resolved.
func ValidateOID(oid string) error {
	if oid == "" {
		return fmt.Errorf("OID cannot be empty")
	}
	if !oidPattern.MatchString(oid) {
		return fmt.Errorf("OID %q must be numeric, like 1.3.6.1.2.1.1.3.0", oid)
	}
	return nil
}

// ValidateHost checks that host is an IP address or a plausible DNS name.
// It does not resolve the name.
func ValidateHost(host string) error {
	if host == "" {
		return fmt.Errorf("host cannot be empty")
	}
	if net.ParseIP(host) != nil {
		return nil
	}
	if strings.Contains(host, "://") {
		return fmt.Errorf("host %q must not include a scheme", host)
	}
	if len(host) > 253 {
		return fmt.Errorf("host too long: maximum 253 characters allowed")
	}

	for _, label := range strings.Split(strings.TrimSuffix(host, "."), ".") {
		if label == "" || len(label) > 63 {
			return fmt.Errorf("host %q has an invalid label", host)
		}
		if strings.HasPrefix(label, "-") || strings.HasSuffix(label, "-") {
			return fmt.Errorf("host %q label %q cannot start or end with '-'", host, label)
		}
		for _, r := range label {
			if !(r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_')) {
				return fmt.Errorf("invalid character '%c' in host %q", r, host)
			}
		}
	}
	return nil
}
