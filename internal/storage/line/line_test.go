package line

import (
	"bytes"
	"testing"

	"github.com/xtxerr/linestore/internal/errors"
)

func TestCodec_Encode(t *testing.T) {
	c, err := NewCodec(4)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}

	if c.Size() != 6 {
		t.Errorf("expected line size 6, got %d", c.Size())
	}

	ts := int64(0x12345678)
	l, err := c.Encode(nil, ts, []byte{1, 2, 3, 4})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	want := []byte{0x78, 0x56, 1, 2, 3, 4}
	if !bytes.Equal(l, want) {
		t.Errorf("expected %v, got %v", want, l)
	}

	if Timestamp(l) != 0x5678 {
		t.Errorf("expected compressed 0x5678, got %#x", Timestamp(l))
	}
	if !bytes.Equal(Payload(l), []byte{1, 2, 3, 4}) {
		t.Errorf("unexpected payload %v", Payload(l))
	}
}

func TestCodec_SizeMismatch(t *testing.T) {
	c, _ := NewCodec(8)

	for _, n := range []int{0, 7, 9} {
		_, err := c.Encode(nil, 1, make([]byte, n))
		if !errors.Is(err, errors.ErrSizeMismatch) {
			t.Errorf("payload %d: expected ErrSizeMismatch, got %v", n, err)
		}
	}
}

func TestNewCodec_InvalidWidth(t *testing.T) {
	for _, w := range []int{0, -1} {
		if _, err := NewCodec(w); !errors.Is(err, errors.ErrInvalidLineSize) {
			t.Errorf("width %d: expected ErrInvalidLineSize, got %v", w, err)
		}
	}
}

func TestCompress_ClampsNegative(t *testing.T) {
	if Compress(-5) != 0 {
		t.Errorf("expected 0 for negative timestamp, got %d", Compress(-5))
	}
	if Compress(65536+7) != 7 {
		t.Errorf("expected 7, got %d", Compress(65536+7))
	}
}

func TestReconstruct(t *testing.T) {
	tests := []struct {
		name   string
		anchor int64
		ts     int64
	}{
		{"window start", 1700000000 &^ 0xFFFF, 1700000000},
		{"same second", 1700000000, 1700000000},
		{"anchor later in window", 1700000000, (1700000000 &^ 0xFFFF) + 3},
		{"first window", 10, 65535},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Reconstruct(tt.anchor, Compress(tt.ts))
			if got != tt.ts {
				t.Errorf("expected %d, got %d", tt.ts, got)
			}
		})
	}
}
