// Package wire provides protobuf framing for decoded line batches.
//
// Each frame is a varint length followed by a Frame message encoded in the
// protobuf wire format, the same layout protodelim produces. Dumps written
// by `linestore dump -format wire` can be consumed by any protobuf runtime
// using the message below:
//
//	message Frame {
//	  string series = 1;
//	  uint32 payload_width = 2;
//	  repeated int64 timestamps = 3 [packed = true];
//	  bytes payloads = 4;
//	}
package wire

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/xtxerr/linestore/config"
	"github.com/xtxerr/linestore/internal/errors"
	"github.com/xtxerr/linestore/internal/storage/types"
	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the Frame message.
const (
	fieldSeries       protowire.Number = 1
	fieldPayloadWidth protowire.Number = 2
	fieldTimestamps   protowire.Number = 3
	fieldPayloads     protowire.Number = 4
)

// Frame is one batch of lines of a series.
type Frame struct {
	Series string
	Batch  *types.Batch
}

// Marshal appends the protobuf encoding of f to dst.
func Marshal(dst []byte, f *Frame) []byte {
	if f.Series != "" {
		dst = protowire.AppendTag(dst, fieldSeries, protowire.BytesType)
		dst = protowire.AppendString(dst, f.Series)
	}

	b := f.Batch
	if b == nil {
		return dst
	}

	dst = protowire.AppendTag(dst, fieldPayloadWidth, protowire.VarintType)
	dst = protowire.AppendVarint(dst, uint64(b.Width))

	if len(b.Timestamps) > 0 {
		var packed []byte
		for _, ts := range b.Timestamps {
			packed = protowire.AppendVarint(packed, uint64(ts))
		}
		dst = protowire.AppendTag(dst, fieldTimestamps, protowire.BytesType)
		dst = protowire.AppendBytes(dst, packed)
	}

	if len(b.Payloads) > 0 {
		dst = protowire.AppendTag(dst, fieldPayloads, protowire.BytesType)
		dst = protowire.AppendBytes(dst, b.Payloads)
	}
	return dst
}

// Unmarshal decodes a Frame message. Unknown fields are skipped.
func Unmarshal(b []byte) (*Frame, error) {
	f := &Frame{}
	var (
		width      uint64
		timestamps []int64
		payloads   []byte
	)

	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, decodeError("tag", protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldSeries && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return nil, decodeError("series", protowire.ParseError(n))
			}
			f.Series = v
			b = b[n:]

		case num == fieldPayloadWidth && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, decodeError("payload_width", protowire.ParseError(n))
			}
			width = v
			b = b[n:]

		case num == fieldTimestamps && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, decodeError("timestamps", protowire.ParseError(n))
			}
			for len(v) > 0 {
				ts, m := protowire.ConsumeVarint(v)
				if m < 0 {
					return nil, decodeError("timestamps", protowire.ParseError(m))
				}
				timestamps = append(timestamps, int64(ts))
				v = v[m:]
			}
			b = b[n:]

		case num == fieldTimestamps && typ == protowire.VarintType:
			// Unpacked encoding of a repeated scalar.
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, decodeError("timestamps", protowire.ParseError(n))
			}
			timestamps = append(timestamps, int64(v))
			b = b[n:]

		case num == fieldPayloads && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, decodeError("payloads", protowire.ParseError(n))
			}
			payloads = append([]byte(nil), v...)
			b = b[n:]

		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, decodeError("unknown field", protowire.ParseError(n))
			}
			b = b[n:]
		}
	}

	if len(timestamps) == 0 && len(payloads) == 0 && width == 0 {
		return f, nil
	}
	if width == 0 || width > config.DefaultMaxFrameSize {
		return nil, errors.NewDecode("wire frame", fmt.Sprintf(
			"payload width %d out of range [1, %d]", width, config.DefaultMaxFrameSize))
	}
	n := uint64(len(payloads))
	if n%width != 0 || n/width != uint64(len(timestamps)) {
		return nil, errors.NewDecode("wire frame", fmt.Sprintf(
			"%d payload bytes for %d lines of width %d", len(payloads), len(timestamps), width))
	}

	f.Batch = &types.Batch{
		Timestamps: timestamps,
		Payloads:   payloads,
		Width:      int(width),
	}
	return f, nil
}

func decodeError(field string, err error) error {
	return errors.NewDecode("wire frame", fmt.Sprintf("%s: %v", field, err))
}

// Reader reads length-delimited frames from an io.Reader.
// It is safe for concurrent use.
type Reader struct {
	r       *bufio.Reader
	maxSize uint64
	buf     []byte
	mu      sync.Mutex
}

// NewReader creates a Reader wrapping the given io.Reader.
func NewReader(r io.Reader) *Reader {
	return &Reader{
		r:       bufio.NewReader(r),
		maxSize: config.DefaultMaxFrameSize,
	}
}

// Read reads and decodes the next frame. It returns io.EOF at a clean end
// of stream and an error if a frame exceeds DefaultMaxFrameSize.
func (r *Reader) Read() (*Frame, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	size, err := binary.ReadUvarint(r.r)
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, fmt.Errorf("read frame length: %w", err)
	}
	if size > r.maxSize {
		return nil, errors.NewDecode("wire frame",
			fmt.Sprintf("frame of %d bytes exceeds limit of %d", size, r.maxSize))
	}

	if uint64(cap(r.buf)) < size {
		r.buf = make([]byte, size)
	}
	buf := r.buf[:size]
	if _, err := io.ReadFull(r.r, buf); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("read frame: %w", err)
	}

	return Unmarshal(buf)
}

// Writer writes length-delimited frames to an io.Writer.
// It is safe for concurrent use.
type Writer struct {
	w   io.Writer
	buf []byte
	mu  sync.Mutex
}

// NewWriter creates a Writer wrapping the given io.Writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write encodes f and writes it with a length prefix.
func (w *Writer) Write(f *Frame) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	msg := Marshal(nil, f)
	w.buf = protowire.AppendVarint(w.buf[:0], uint64(len(msg)))
	w.buf = append(w.buf, msg...)

	if _, err := w.w.Write(w.buf); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// WriteBatch writes b as a frame of series.
func (w *Writer) WriteBatch(series string, b *types.Batch) error {
	return w.Write(&Frame{Series: series, Batch: b})
}
