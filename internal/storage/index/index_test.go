package index

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/xtxerr/linestore/internal/errors"
	"github.com/xtxerr/linestore/internal/storage/types"
)

// base is the first second of a checkpoint window.
const base = int64(26000) << 16

func fixedNow(ts int64) Options {
	return Options{Now: func() time.Time { return time.Unix(ts, 0) }}
}

func openIndex(t *testing.T, path string, now int64) *Index {
	t.Helper()
	x, err := Open(path, fixedNow(now))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { x.Close() })
	return x
}

func TestOpen_Bootstrap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.h")
	x := openIndex(t, path, base+100)

	if x.Len() != 1 {
		t.Fatalf("expected 1 bootstrap checkpoint, got %d", x.Len())
	}
	if got := x.First(); got.Timestamp != base+100 || got.Offset != 0 {
		t.Errorf("unexpected bootstrap checkpoint %v", got)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Size() != RecordSize {
		t.Errorf("expected bootstrap to be persisted (%d bytes), got %d", RecordSize, info.Size())
	}
}

func TestMaybeCheckpoint_OncePerWindow(t *testing.T) {
	x := openIndex(t, filepath.Join(t.TempDir(), "s.h"), base)

	// Same window as the bootstrap checkpoint.
	for i := int64(0); i < 10; i++ {
		added, err := x.MaybeCheckpoint(base+i*5, uint64(i*10))
		if err != nil {
			t.Fatalf("MaybeCheckpoint: %v", err)
		}
		if added {
			t.Errorf("line %d: unexpected checkpoint inside bootstrap window", i)
		}
	}

	// Cross into the next window.
	added, err := x.MaybeCheckpoint(base+65536+3, 100)
	if err != nil {
		t.Fatalf("MaybeCheckpoint: %v", err)
	}
	if !added {
		t.Fatal("expected checkpoint on window crossing")
	}

	// Idempotent within the new window.
	for i := uint64(1); i < 5; i++ {
		added, _ := x.MaybeCheckpoint(base+65536+3+int64(i), 100+i*10)
		if added {
			t.Errorf("unexpected second checkpoint in window")
		}
	}

	if x.Len() != 2 {
		t.Errorf("expected 2 checkpoints, got %d", x.Len())
	}
}

func TestMaybeCheckpoint_ReanchorsUnusedCheckpoint(t *testing.T) {
	x := openIndex(t, filepath.Join(t.TempDir(), "s.h"), base+5*65536)

	// First line is three windows older than the bootstrap time.
	added, err := x.MaybeCheckpoint(base+2*65536+7, 0)
	if err != nil {
		t.Fatalf("MaybeCheckpoint: %v", err)
	}
	if !added {
		t.Fatal("expected bootstrap checkpoint to be re-anchored")
	}
	if x.Len() != 1 {
		t.Fatalf("expected 1 checkpoint, got %d", x.Len())
	}
	if x.First().Timestamp != base+2*65536+7 {
		t.Errorf("expected anchor %d, got %d", base+2*65536+7, x.First().Timestamp)
	}

	// Once a line exists, older windows no longer move the anchor.
	added, _ = x.MaybeCheckpoint(base, 10)
	if added {
		t.Error("unexpected checkpoint for regressing timestamp")
	}
}

func TestOpen_Reload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.h")

	x, err := Open(path, fixedNow(base))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for w := int64(1); w <= 3; w++ {
		if _, err := x.MaybeCheckpoint(base+w*65536, uint64(w*1000)); err != nil {
			t.Fatalf("MaybeCheckpoint: %v", err)
		}
	}
	want := x.Checkpoints()
	x.Close()

	y := openIndex(t, path, 0)
	got := y.Checkpoints()

	if len(got) != len(want) {
		t.Fatalf("expected %d checkpoints after reload, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("checkpoint %d: expected %v, got %v", i, want[i], got[i])
		}
	}

	// The reloaded index remembers the last window.
	if added, _ := y.MaybeCheckpoint(base+3*65536+10, 5000); added {
		t.Error("unexpected checkpoint in already recorded window")
	}
}

func TestOpen_SupersededRecordOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.h")

	// bootstrap (base+9999, 0) followed by a re-anchor at the same offset
	var data []byte
	data = appendRecord(data, base+9999, 0)
	data = appendRecord(data, base+10, 0)
	data = appendRecord(data, base+65536, 60)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	x := openIndex(t, path, 0)
	got := x.Checkpoints()

	want := []types.Checkpoint{{Timestamp: base + 10, Offset: 0}, {Timestamp: base + 65536, Offset: 60}}
	if len(got) != len(want) {
		t.Fatalf("expected %d checkpoints, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("checkpoint %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}

func TestOpen_TruncatesPartialRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.h")

	data := appendRecord(nil, base, 0)
	data = append(data, 1, 2, 3, 4, 5)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	x := openIndex(t, path, 0)
	if x.Len() != 1 {
		t.Errorf("expected 1 checkpoint, got %d", x.Len())
	}

	info, _ := os.Stat(path)
	if info.Size()%RecordSize != 0 {
		t.Errorf("index length %d not aligned", info.Size())
	}
}

func TestBounds(t *testing.T) {
	x := openIndex(t, filepath.Join(t.TempDir(), "s.h"), base)
	// checkpoints: base@0, base+65536@1000, base+2*65536@2000
	x.MaybeCheckpoint(base+65536, 1000)
	x.MaybeCheckpoint(base+2*65536, 2000)

	const eof = 2500

	tests := []struct {
		name     string
		target   int64
		from, to uint64
	}{
		{"at first checkpoint", base, 0, 1000},
		{"inside first window", base + 500, 0, 1000},
		{"at second checkpoint", base + 65536, 1000, 2000},
		{"inside second window", base + 65536 + 1, 1000, 2000},
		{"last window", base + 2*65536 + 99, 2000, eof},
		{"far future", base + 100*65536, 2000, eof},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := x.Bounds(tt.target, eof)
			if err != nil {
				t.Fatalf("Bounds: %v", err)
			}
			if b.From != tt.from || b.To != tt.to {
				t.Errorf("expected (%d, %d), got (%d, %d)", tt.from, tt.to, b.From, b.To)
			}
		})
	}
}

func TestBounds_NoLowerCheckpoint(t *testing.T) {
	x := openIndex(t, filepath.Join(t.TempDir(), "s.h"), base)

	b, err := x.Bounds(base-1, 500)
	if !errors.Is(err, errors.ErrNoDataBeforeRequestedTime) {
		t.Fatalf("expected ErrNoDataBeforeRequestedTime, got %v", err)
	}
	if b.From != 0 || b.HasLower {
		t.Errorf("expected fallback to byte 0, got %+v", b)
	}
	if !b.HasUpper || b.Upper.Timestamp != base {
		t.Errorf("expected upper bound at bootstrap checkpoint, got %+v", b)
	}
}

func TestAtOffset(t *testing.T) {
	x := openIndex(t, filepath.Join(t.TempDir(), "s.h"), base)
	x.MaybeCheckpoint(base+65536, 1000)

	tests := []struct {
		pos  uint64
		want int64
	}{
		{0, base},
		{990, base},
		{1000, base + 65536},
		{5000, base + 65536},
	}

	for _, tt := range tests {
		cp, ok := x.AtOffset(tt.pos)
		if !ok || cp.Timestamp != tt.want {
			t.Errorf("AtOffset(%d): expected %d, got %v (ok=%v)", tt.pos, tt.want, cp, ok)
		}
	}

	if _, ok := x.After(base + 65536); ok {
		t.Error("expected no checkpoint after the last one")
	}
	if cp, ok := x.After(base); !ok || cp.Offset != 1000 {
		t.Errorf("expected next checkpoint at offset 1000, got %v", cp)
	}
}

func TestCheckpointMonotonicity(t *testing.T) {
	x := openIndex(t, filepath.Join(t.TempDir(), "s.h"), base)

	const lineSize = 10
	ts := base
	for i := uint64(0); i < 80000; i++ {
		if _, err := x.MaybeCheckpoint(ts, i*lineSize); err != nil {
			t.Fatalf("MaybeCheckpoint: %v", err)
		}
		ts += 5
	}

	cps := x.Checkpoints()
	if len(cps) < 2 {
		t.Fatalf("expected more than the bootstrap checkpoint, got %d", len(cps))
	}

	seen := make(map[int64]bool)
	for i, cp := range cps {
		if seen[cp.Window()] {
			t.Errorf("window %d recorded twice", cp.Window())
		}
		seen[cp.Window()] = true
		if i == 0 {
			continue
		}
		if cp.Timestamp <= cps[i-1].Timestamp || cp.Offset <= cps[i-1].Offset {
			t.Errorf("checkpoint %d not strictly increasing: %v after %v", i, cp, cps[i-1])
		}
	}
}

func appendRecord(b []byte, ts int64, off uint64) []byte {
	b = binary.LittleEndian.AppendUint64(b, uint64(ts))
	return binary.LittleEndian.AppendUint64(b, off)
}
