package sampler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gosnmp/gosnmp"
	"github.com/xtxerr/linestore/internal/config"
	"github.com/xtxerr/linestore/internal/errors"
	"github.com/xtxerr/linestore/internal/storage"
	"github.com/xtxerr/linestore/internal/storage/decode"
	"github.com/xtxerr/linestore/internal/storage/types"
	testutil "github.com/xtxerr/linestore/internal/testing"
)

type fakeGetter struct {
	calls atomic.Int64
	value float64
	err   error
	panic bool
}

func (g *fakeGetter) Get(ctx context.Context) (float64, error) {
	g.calls.Add(1)
	if g.panic {
		panic("boom")
	}
	return g.value, g.err
}

type memSeries struct {
	mu       sync.Mutex
	times    []time.Time
	payloads [][]byte
	err      error
}

func (m *memSeries) Append(t time.Time, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.times = append(m.times, t)
	m.payloads = append(m.payloads, append([]byte(nil), payload...))
	return nil
}

func (m *memSeries) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.payloads)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestSampler_Poll(t *testing.T) {
	now := time.Unix(1703936000, 0)
	series := &memSeries{}
	s := New("cpu", &fakeGetter{value: 42.5}, series, time.Second)
	s.Now = fixedClock(now)

	r, err := s.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if !r.Valid || r.Value != 42.5 {
		t.Errorf("unexpected reading %+v", r)
	}

	if series.len() != 1 {
		t.Fatalf("expected 1 line, got %d", series.len())
	}
	if !series.times[0].Equal(now) {
		t.Errorf("expected timestamp %v, got %v", now, series.times[0])
	}

	got, err := decode.Readings{}.Decode(series.payloads[0])
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got) != 1 || got[0].Value != 42.5 || !got[0].Valid {
		t.Errorf("unexpected stored reading %+v", got)
	}

	if st := s.Stats(); st.Polls != 1 || st.Failures != 0 {
		t.Errorf("unexpected stats %+v", st)
	}
}

func TestSampler_PollFailureStoresInvalidReading(t *testing.T) {
	series := &memSeries{}
	s := New("cpu", &fakeGetter{err: errors.New("request timeout")}, series, time.Second)

	r, err := s.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if r.Valid {
		t.Error("failed poll must produce an invalid reading")
	}
	if series.len() != 1 {
		t.Fatalf("expected 1 line, got %d", series.len())
	}

	st := s.Stats()
	if st.Failures != 1 || st.Timeouts != 1 {
		t.Errorf("unexpected stats %+v", st)
	}
	if st.LastError != "request timeout" {
		t.Errorf("expected last error, got %q", st.LastError)
	}
}

func TestSampler_PollRecoversPanic(t *testing.T) {
	series := &memSeries{}
	s := New("cpu", &fakeGetter{panic: true}, series, time.Second)

	r, err := s.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if r.Valid {
		t.Error("panicking poll must produce an invalid reading")
	}
	if series.len() != 1 {
		t.Errorf("expected 1 line, got %d", series.len())
	}
}

func TestSampler_AppendError(t *testing.T) {
	series := &memSeries{err: errors.ErrClosed}
	s := New("cpu", &fakeGetter{value: 1}, series, time.Second)

	if _, err := s.Poll(context.Background()); !errors.Is(err, errors.ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if st := s.Stats(); st.AppendErrors != 1 {
		t.Errorf("expected 1 append error, got %d", st.AppendErrors)
	}
}

func TestSampler_WritesToSeries(t *testing.T) {
	now := time.Unix(1703936000, 0)
	series, err := storage.Open(t.TempDir()+"/cpu", types.ReadingSize, storage.Options{Now: fixedClock(now)})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer series.Close()

	s := New("cpu", &fakeGetter{value: 7}, series, time.Second)
	for i := 0; i < 3; i++ {
		s.Now = fixedClock(now.Add(time.Duration(i) * 10 * time.Second))
		if _, err := s.Poll(context.Background()); err != nil {
			t.Fatalf("Poll: %v", err)
		}
	}

	ts, vals, err := storage.LastLine(series, decode.Readings{})
	if err != nil {
		t.Fatalf("LastLine: %v", err)
	}
	if ts.Unix() != 1703936020 {
		t.Errorf("expected last timestamp 1703936020, got %d", ts.Unix())
	}
	if len(vals) != 1 || vals[0].Value != 7 {
		t.Errorf("unexpected last reading %+v", vals)
	}
}

func TestSampler_RunCancelledDoesNotPoll(t *testing.T) {
	series := &memSeries{}
	getter := &fakeGetter{value: 1}
	s := New("cpu", getter, series, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := testutil.WithTimeout(time.Second, func() error {
		s.Run(ctx)
		return nil
	}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if n := getter.calls.Load(); n != 0 {
		t.Errorf("expected no polls, got %d", n)
	}
	if series.len() != 0 {
		t.Errorf("expected no readings, got %d", series.len())
	}
}

func TestSampler_RunStopsOnCancel(t *testing.T) {
	series := &memSeries{}
	getter := &fakeGetter{value: 1}
	s := New("cpu", getter, series, 5*time.Millisecond)

	gt := testutil.NewGoroutineTest(t)
	gt.GoWithContext(func(ctx context.Context) error {
		s.Run(ctx)
		return nil
	})

	if err := testutil.Eventually(2*time.Second, time.Millisecond, func() bool {
		return series.len() >= 2
	}); err != nil {
		t.Fatalf("expected polls: %v", err)
	}

	gt.Cancel()
	gt.Wait()

	// No poll may start once Run has returned.
	polls := getter.calls.Load()
	if int64(series.len()) != polls {
		t.Errorf("expected one reading per poll, got %d readings for %d polls", series.len(), polls)
	}
	if st := s.Stats(); st.Failures != 0 {
		t.Errorf("expected no failed polls, got %d", st.Failures)
	}
}

func TestGroup_RunAndStop(t *testing.T) {
	g := NewGroup()
	series := &memSeries{}
	getter := &fakeGetter{value: 1}
	g.Add(New("cpu", getter, series, 10*time.Millisecond))

	g.Start(context.Background())

	err := testutil.Eventually(2*time.Second, 5*time.Millisecond, func() bool {
		return series.len() >= 3
	})
	stopErr := testutil.WithTimeout(2*time.Second, func() error {
		g.Stop(time.Second)
		return nil
	})
	if err != nil {
		t.Fatalf("expected at least 3 polls: %v", err)
	}
	if stopErr != nil {
		t.Fatalf("Stop: %v", stopErr)
	}

	after := getter.calls.Load()
	time.Sleep(30 * time.Millisecond)
	if getter.calls.Load() != after {
		t.Error("sampler kept polling after Stop")
	}

	if st := g.Stats()["cpu"]; st.Polls < 3 {
		t.Errorf("expected at least 3 polls, got %d", st.Polls)
	}
}

func TestNewSNMPGetter_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  *config.SNMPConfig
	}{
		{"nil", nil},
		{"no host", &config.SNMPConfig{OID: "1.3", Community: "public"}},
		{"no oid", &config.SNMPConfig{Host: "h", Community: "public"}},
		{"v2c without community", &config.SNMPConfig{Host: "h", OID: "1.3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewSNMPGetter(tt.cfg, time.Second, 1); err == nil {
				t.Error("expected error")
			}
		})
	}

	g, err := NewSNMPGetter(&config.SNMPConfig{Host: "10.0.0.1", OID: "1.3.6.1", SecurityName: "ops"}, time.Second, 1)
	if err != nil {
		t.Fatalf("v3 getter: %v", err)
	}
	if g.Target() != "10.0.0.1:161/1.3.6.1" {
		t.Errorf("unexpected target %q", g.Target())
	}
}

func TestSNMPGetter_Client(t *testing.T) {
	g, err := NewSNMPGetter(&config.SNMPConfig{
		Host: "h", Port: 1161, OID: "1.3",
		SecurityName: "ops", SecurityLevel: "authPriv",
		AuthProtocol: "SHA256", AuthPassword: "a", PrivProtocol: "AES", PrivPassword: "p",
	}, 2*time.Second, 3)
	if err != nil {
		t.Fatalf("NewSNMPGetter: %v", err)
	}

	c := g.client(context.Background())
	if c.Version != gosnmp.Version3 || c.MsgFlags != gosnmp.AuthPriv {
		t.Errorf("expected v3 authPriv, got version %v flags %v", c.Version, c.MsgFlags)
	}
	if c.Port != 1161 || c.Retries != 3 || c.Timeout != 2*time.Second {
		t.Errorf("unexpected client settings port=%d retries=%d timeout=%v", c.Port, c.Retries, c.Timeout)
	}
	usm, ok := c.SecurityParameters.(*gosnmp.UsmSecurityParameters)
	if !ok {
		t.Fatalf("expected USM parameters, got %T", c.SecurityParameters)
	}
	if usm.AuthenticationProtocol != gosnmp.SHA256 || usm.PrivacyProtocol != gosnmp.AES {
		t.Errorf("unexpected protocols %v/%v", usm.AuthenticationProtocol, usm.PrivacyProtocol)
	}
}

func TestValueOf(t *testing.T) {
	tests := []struct {
		name string
		pdu  gosnmp.SnmpPDU
		want float64
	}{
		{"counter32", gosnmp.SnmpPDU{Type: gosnmp.Counter32, Value: uint(1000)}, 1000},
		{"counter64", gosnmp.SnmpPDU{Type: gosnmp.Counter64, Value: uint64(1) << 40}, 1 << 40},
		{"gauge32", gosnmp.SnmpPDU{Type: gosnmp.Gauge32, Value: uint(55)}, 55},
		{"integer", gosnmp.SnmpPDU{Type: gosnmp.Integer, Value: -3}, -3},
		{"timeticks", gosnmp.SnmpPDU{Type: gosnmp.TimeTicks, Value: uint32(360000)}, 360000},
		{"octet string", gosnmp.SnmpPDU{Type: gosnmp.OctetString, Value: []byte(" 12.5 ")}, 12.5},
		{"opaque double", gosnmp.SnmpPDU{Type: gosnmp.OpaqueDouble, Value: 0.25}, 0.25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := valueOf(tt.pdu)
			if err != nil {
				t.Fatalf("valueOf: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestValueOf_Errors(t *testing.T) {
	if _, err := valueOf(gosnmp.SnmpPDU{Type: gosnmp.NoSuchInstance}); !errors.Is(err, ErrNoSuchObject) {
		t.Errorf("expected ErrNoSuchObject, got %v", err)
	}
	if _, err := valueOf(gosnmp.SnmpPDU{Type: gosnmp.OctetString, Value: []byte("up")}); !errors.Is(err, errors.ErrDecode) {
		t.Errorf("expected ErrDecode, got %v", err)
	}
	if _, err := valueOf(gosnmp.SnmpPDU{Type: gosnmp.IPAddress, Value: "10.0.0.1"}); !errors.Is(err, errors.ErrDecode) {
		t.Errorf("expected ErrDecode, got %v", err)
	}
	if _, err := valueOf(gosnmp.SnmpPDU{Type: gosnmp.Integer, Value: "x"}); !errors.Is(err, errors.ErrDecode) {
		t.Errorf("expected ErrDecode, got %v", err)
	}
}

func TestIsTimeout(t *testing.T) {
	if !isTimeout(context.DeadlineExceeded) {
		t.Error("deadline exceeded is a timeout")
	}
	if !isTimeout(errors.Wrap(errors.New("request timeout (after 2 retries)"), "get")) {
		t.Error("gosnmp request timeout is a timeout")
	}
	if isTimeout(nil) || isTimeout(errors.New("connection refused")) {
		t.Error("unexpected timeout")
	}
}
