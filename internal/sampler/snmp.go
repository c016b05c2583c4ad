package sampler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"
	"github.com/xtxerr/linestore/internal/config"
	"github.com/xtxerr/linestore/internal/errors"
)

// ErrNoSuchObject is returned when the agent has no value for the OID.
var ErrNoSuchObject = errors.New("OID not found")

// SNMPGetter reads one OID with SNMP GET.
type SNMPGetter struct {
	cfg     config.SNMPConfig
	timeout time.Duration
	retries int
}

// NewSNMPGetter creates a getter for cfg. timeout and retries apply to
// every GET.
func NewSNMPGetter(cfg *config.SNMPConfig, timeout time.Duration, retries int) (*SNMPGetter, error) {
	if cfg == nil {
		return nil, errors.NewMissingField("snmp")
	}
	if cfg.Host == "" {
		return nil, errors.NewMissingField("snmp.host")
	}
	if cfg.OID == "" {
		return nil, errors.NewMissingField("snmp.oid")
	}
	if !cfg.IsV3() && cfg.Community == "" {
		return nil, errors.NewValidation("snmp.community", "v2c requires a community string")
	}

	return &SNMPGetter{
		cfg:     *cfg,
		timeout: timeout,
		retries: retries,
	}, nil
}

// Target returns host:port/oid for logging.
func (g *SNMPGetter) Target() string {
	return fmt.Sprintf("%s:%d/%s", g.cfg.Host, g.port(), g.cfg.OID)
}

// Get implements Getter.
func (g *SNMPGetter) Get(ctx context.Context) (float64, error) {
	snmp := g.client(ctx)

	if err := snmp.Connect(); err != nil {
		return 0, fmt.Errorf("connect: %w", err)
	}
	defer snmp.Conn.Close()

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	pdu, err := snmp.Get([]string{g.cfg.OID})
	if err != nil {
		return 0, fmt.Errorf("get: %w", err)
	}
	if len(pdu.Variables) == 0 {
		return 0, errors.New("no variables returned")
	}

	return valueOf(pdu.Variables[0])
}

func (g *SNMPGetter) port() uint16 {
	if g.cfg.Port == 0 {
		return 161
	}
	return uint16(g.cfg.Port)
}

func (g *SNMPGetter) client(ctx context.Context) *gosnmp.GoSNMP {
	snmp := &gosnmp.GoSNMP{
		Target:  g.cfg.Host,
		Port:    g.port(),
		Timeout: g.timeout,
		Retries: g.retries,
		Context: ctx,
	}

	if g.cfg.IsV3() {
		snmp.Version = gosnmp.Version3
		snmp.SecurityModel = gosnmp.UserSecurityModel
		snmp.MsgFlags = msgFlags(g.cfg.SecurityLevel)
		snmp.SecurityParameters = &gosnmp.UsmSecurityParameters{
			UserName:                 g.cfg.SecurityName,
			AuthenticationProtocol:   authProtocol(g.cfg.AuthProtocol),
			AuthenticationPassphrase: g.cfg.AuthPassword,
			PrivacyProtocol:          privProtocol(g.cfg.PrivProtocol),
			PrivacyPassphrase:        g.cfg.PrivPassword,
		}
		snmp.ContextName = g.cfg.ContextName
	} else {
		snmp.Version = gosnmp.Version2c
		snmp.Community = g.cfg.Community
	}

	return snmp
}

// valueOf converts a GET result to the float64 stored in a reading.
// Counters are stored as their raw value; rates are left to readers.
func valueOf(v gosnmp.SnmpPDU) (float64, error) {
	switch v.Type {
	case gosnmp.Counter32, gosnmp.Counter64, gosnmp.Gauge32, gosnmp.Uinteger32:
		return float64(gosnmp.ToBigInt(v.Value).Uint64()), nil

	case gosnmp.Integer:
		if i, ok := v.Value.(int); ok {
			return float64(i), nil
		}

	case gosnmp.TimeTicks:
		if t, ok := v.Value.(uint32); ok {
			return float64(t), nil
		}

	case gosnmp.OpaqueFloat:
		if f, ok := v.Value.(float32); ok {
			return float64(f), nil
		}

	case gosnmp.OpaqueDouble:
		if f, ok := v.Value.(float64); ok {
			return f, nil
		}

	case gosnmp.OctetString:
		if b, ok := v.Value.([]byte); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(string(b)), 64)
			if err != nil {
				return 0, errors.NewDecode("snmp value", fmt.Sprintf("octet string %q is not numeric", b))
			}
			return f, nil
		}

	case gosnmp.NoSuchObject, gosnmp.NoSuchInstance, gosnmp.EndOfMibView:
		return 0, ErrNoSuchObject

	default:
		return 0, errors.NewDecode("snmp value", fmt.Sprintf("unsupported type %v", v.Type))
	}

	return 0, errors.NewDecode("snmp value", fmt.Sprintf("unexpected %T for type %v", v.Value, v.Type))
}

func msgFlags(level string) gosnmp.SnmpV3MsgFlags {
	switch level {
	case "authNoPriv":
		return gosnmp.AuthNoPriv
	case "authPriv":
		return gosnmp.AuthPriv
	default:
		return gosnmp.NoAuthNoPriv
	}
}

func authProtocol(protocol string) gosnmp.SnmpV3AuthProtocol {
	switch protocol {
	case "MD5":
		return gosnmp.MD5
	case "SHA":
		return gosnmp.SHA
	case "SHA224":
		return gosnmp.SHA224
	case "SHA256":
		return gosnmp.SHA256
	case "SHA384":
		return gosnmp.SHA384
	case "SHA512":
		return gosnmp.SHA512
	default:
		return gosnmp.NoAuth
	}
}

func privProtocol(protocol string) gosnmp.SnmpV3PrivProtocol {
	switch protocol {
	case "DES":
		return gosnmp.DES
	case "AES":
		return gosnmp.AES
	case "AES192":
		return gosnmp.AES192
	case "AES256":
		return gosnmp.AES256
	default:
		return gosnmp.NoPriv
	}
}

// isTimeout reports whether err is an SNMP or context timeout.
func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return strings.Contains(err.Error(), "request timeout")
}
