package recfile

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xtxerr/linestore/internal/logging"
)

func TestOpenAligned_Creates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "series.data")

	f, size, err := OpenAligned(path, 10)
	if err != nil {
		t.Fatalf("OpenAligned: %v", err)
	}
	defer f.Close()

	if size != 0 {
		t.Errorf("expected size 0, got %d", size)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("file not created: %v", err)
	}
}

func TestOpenAligned_Truncates(t *testing.T) {
	tests := []struct {
		name       string
		length     int
		recordSize int
		want       int64
	}{
		{"aligned", 32, 16, 32},
		{"partial record", 37, 16, 32},
		{"only partial", 5, 16, 0},
		{"line size 10", 95, 10, 90},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "f")
			if err := os.WriteFile(path, make([]byte, tt.length), 0644); err != nil {
				t.Fatalf("write: %v", err)
			}

			f, size, err := OpenAligned(path, tt.recordSize)
			if err != nil {
				t.Fatalf("OpenAligned: %v", err)
			}
			f.Close()

			if size != tt.want {
				t.Errorf("expected size %d, got %d", tt.want, size)
			}

			info, err := os.Stat(path)
			if err != nil {
				t.Fatalf("stat: %v", err)
			}
			if info.Size() != tt.want {
				t.Errorf("expected file length %d, got %d", tt.want, info.Size())
			}
			if info.Size()%int64(tt.recordSize) != 0 {
				t.Errorf("file length %d not aligned to %d", info.Size(), tt.recordSize)
			}
		})
	}
}

func TestOpenAligned_InvalidRecordSize(t *testing.T) {
	if _, _, err := OpenAligned(filepath.Join(t.TempDir(), "f"), 0); err == nil {
		t.Error("expected error for record size 0")
	}
}

func TestOpenAligned_LogsTruncation(t *testing.T) {
	prev := logging.Logger
	t.Cleanup(func() {
		if prev != nil {
			logging.InitWithHandler(prev.Handler())
		}
	})

	var buf bytes.Buffer
	logging.InitWithHandler(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))

	path := filepath.Join(t.TempDir(), "f")
	if err := os.WriteFile(path, make([]byte, 21), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	f, _, err := OpenAligned(path, 10)
	if err != nil {
		t.Fatalf("OpenAligned: %v", err)
	}
	f.Close()

	out := buf.String()
	if !strings.Contains(out, "level=WARN") || !strings.Contains(out, "truncated_bytes=1") {
		t.Errorf("expected truncation warning, got %q", out)
	}
	if !strings.Contains(out, "component=recfile") {
		t.Errorf("expected recfile component, got %q", out)
	}

	// An aligned file opens silently.
	buf.Reset()
	if f, _, err = OpenAligned(path, 10); err != nil {
		t.Fatalf("OpenAligned: %v", err)
	}
	f.Close()
	if buf.Len() != 0 {
		t.Errorf("expected no log output, got %q", buf.String())
	}
}
