package wire

import (
	"bytes"
	"io"
	"testing"

	"github.com/xtxerr/linestore/internal/errors"
	"github.com/xtxerr/linestore/internal/storage/types"
	"google.golang.org/protobuf/encoding/protowire"
)

func testBatch() *types.Batch {
	b := types.NewBatch(3, 4)
	b.Add(1703936000, []byte{1, 2, 3})
	b.Add(1703936010, []byte{4, 5, 6})
	b.Add(1703936010, []byte{7, 8, 9})
	return b
}

func TestWriterReader(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	if err := w.WriteBatch("cpu", testBatch()); err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}
	if err := w.WriteBatch("mem", types.NewBatch(3, 0)); err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}

	r := NewReader(&buf)

	f, err := r.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if f.Series != "cpu" {
		t.Errorf("expected series cpu, got %q", f.Series)
	}
	if f.Batch == nil || f.Batch.Len() != 3 {
		t.Fatalf("expected 3 lines, got %+v", f.Batch)
	}
	if f.Batch.Width != 3 {
		t.Errorf("expected width 3, got %d", f.Batch.Width)
	}
	if f.Batch.Timestamps[2] != 1703936010 {
		t.Errorf("expected timestamp 1703936010, got %d", f.Batch.Timestamps[2])
	}
	if !bytes.Equal(f.Batch.Payload(1), []byte{4, 5, 6}) {
		t.Errorf("expected payload [4 5 6], got %v", f.Batch.Payload(1))
	}

	f, err = r.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if f.Series != "mem" || f.Batch == nil || f.Batch.Len() != 0 {
		t.Errorf("expected empty mem frame, got %+v", f)
	}

	if _, err := r.Read(); err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestUnmarshal_SkipsUnknownFields(t *testing.T) {
	msg := Marshal(nil, &Frame{Series: "cpu", Batch: testBatch()})
	msg = protowire.AppendTag(msg, 99, protowire.VarintType)
	msg = protowire.AppendVarint(msg, 7)

	f, err := Unmarshal(msg)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if f.Batch.Len() != 3 {
		t.Errorf("expected 3 lines, got %d", f.Batch.Len())
	}
}

func TestUnmarshal_UnpackedTimestamps(t *testing.T) {
	var msg []byte
	msg = protowire.AppendTag(msg, fieldPayloadWidth, protowire.VarintType)
	msg = protowire.AppendVarint(msg, 1)
	for _, ts := range []uint64{10, 20} {
		msg = protowire.AppendTag(msg, fieldTimestamps, protowire.VarintType)
		msg = protowire.AppendVarint(msg, ts)
	}
	msg = protowire.AppendTag(msg, fieldPayloads, protowire.BytesType)
	msg = protowire.AppendBytes(msg, []byte{0xA, 0xB})

	f, err := Unmarshal(msg)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if f.Batch.Len() != 2 || f.Batch.Timestamps[1] != 20 {
		t.Errorf("unexpected batch %+v", f.Batch)
	}
}

func TestUnmarshal_PayloadMismatch(t *testing.T) {
	b := testBatch()
	b.Payloads = b.Payloads[:7]

	_, err := Unmarshal(Marshal(nil, &Frame{Batch: b}))
	if !errors.Is(err, errors.ErrDecode) {
		t.Errorf("expected ErrDecode, got %v", err)
	}
}

func TestUnmarshal_PayloadWidthOutOfRange(t *testing.T) {
	tests := []struct {
		name     string
		width    uint64
		payloads []byte
	}{
		{"overflowing width", 1 << 63, nil},
		{"width above frame limit", 1 << 40, nil},
		{"zero width with lines", 0, nil},
		{"zero width with payloads", 0, []byte{1, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var msg []byte
			msg = protowire.AppendTag(msg, fieldPayloadWidth, protowire.VarintType)
			msg = protowire.AppendVarint(msg, tt.width)
			msg = protowire.AppendTag(msg, fieldTimestamps, protowire.BytesType)
			msg = protowire.AppendBytes(msg, protowire.AppendVarint(protowire.AppendVarint(nil, 1), 2))
			if tt.payloads != nil {
				msg = protowire.AppendTag(msg, fieldPayloads, protowire.BytesType)
				msg = protowire.AppendBytes(msg, tt.payloads)
			}

			f, err := Unmarshal(msg)
			if !errors.Is(err, errors.ErrDecode) {
				t.Fatalf("expected ErrDecode, got frame %+v, err %v", f, err)
			}
		})
	}
}

func TestUnmarshal_EmptyBatchKeepsWidth(t *testing.T) {
	f, err := Unmarshal(Marshal(nil, &Frame{Series: "cpu", Batch: types.NewBatch(13, 0)}))
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if f.Batch == nil || f.Batch.Len() != 0 || f.Batch.Width != 13 {
		t.Errorf("expected empty batch of width 13, got %+v", f.Batch)
	}
}

func TestUnmarshal_Truncated(t *testing.T) {
	msg := Marshal(nil, &Frame{Series: "cpu", Batch: testBatch()})

	_, err := Unmarshal(msg[:len(msg)-2])
	if !errors.Is(err, errors.ErrDecode) {
		t.Errorf("expected ErrDecode, got %v", err)
	}
}

func TestReader_FrameTooLarge(t *testing.T) {
	r := NewReader(bytes.NewReader(protowire.AppendVarint(nil, 1<<40)))

	if _, err := r.Read(); !errors.Is(err, errors.ErrDecode) {
		t.Errorf("expected ErrDecode, got %v", err)
	}
}

func TestReader_TruncatedFrame(t *testing.T) {
	var buf bytes.Buffer
	if err := NewWriter(&buf).WriteBatch("cpu", testBatch()); err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}
	data := buf.Bytes()[:buf.Len()-1]

	_, err := NewReader(bytes.NewReader(data)).Read()
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("expected io.ErrUnexpectedEOF, got %v", err)
	}
}
