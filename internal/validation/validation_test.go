package validation

import (
	"strings"
	"testing"
)

func TestValidateName(t *testing.T) {
	rules := NameRules{MinLength: 1, MaxLength: 255, AllowHyphens: true, AllowUnders: true}

	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple", "router1", false},
		{"with hyphen", "my-router", false},
		{"with underscore", "my_router", false},
		{"numbers", "123", false},
		{"mixed", "router-1_test", false},
		{"empty", "", true},
		{"dot", ".", true},
		{"dotdot", "..", true},
		{"hidden", ".hidden", true},
		{"slash", "a/b", true},
		{"backslash", "a\\b", true},
		{"control char", "a\x00b", true},
		{"with dot", "my.router", true},
		{"space", "my router", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input, rules)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateSeriesName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"interface counter", "core1-ifInOctets", false},
		{"dotted", "core1.eth0.rx", false},
		{"parent", "../etc", true},
		{"too long", strings.Repeat("a", 251), true},
		{"max length", strings.Repeat("a", 250), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSeriesName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSeriesName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateOID(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"1.3.6.1.2.1.1.3.0", false},
		{".1.3.6.1.2.1.31.1.1.1.6.1", false},
		{"1.3", false},
		{"", true},
		{"1", true},
		{"1..3", true},
		{"1.3.", true},
		{"IF-MIB::ifInOctets.1", true},
	}

	for _, tt := range tests {
		err := ValidateOID(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateOID(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
		}
	}
}

func TestValidateHost(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"10.0.0.1", false},
		{"fe80::1", false},
		{"core1.example.net", false},
		{"core1", false},
		{"core1.example.net.", false},
		{"", true},
		{"udp://10.0.0.1", true},
		{"-core1", true},
		{"core 1", true},
		{"a..b", true},
	}

	for _, tt := range tests {
		err := ValidateHost(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateHost(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
		}
	}
}
