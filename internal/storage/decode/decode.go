// Package decode turns opaque line payloads into typed values.
//
// The storage engine never interprets payloads. Callers pick a Decoder
// matching what they wrote: Raw for pass-through bytes, Numeric for
// fixed-size little-endian numbers, Readings for sampler payloads.
package decode

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/xtxerr/linestore/internal/errors"
	"github.com/xtxerr/linestore/internal/storage/types"
)

// Decoder converts the raw payload of one line into values of type T.
type Decoder[T any] interface {
	Decode(raw []byte) ([]T, error)
}

// Number is the set of fixed-size numeric types Numeric can decode.
type Number interface {
	int8 | int16 | int32 | int64 | uint8 | uint16 | uint32 | uint64 | float32 | float64
}

// Raw returns payload bytes unchanged (copied).
type Raw struct{}

// Decode implements Decoder.
func (Raw) Decode(raw []byte) ([]byte, error) {
	out := make([]byte, len(raw))
	copy(out, raw)
	return out, nil
}

// Numeric decodes a payload as consecutive little-endian values of T.
type Numeric[T Number] struct{}

// Decode implements Decoder.
func (Numeric[T]) Decode(raw []byte) ([]T, error) {
	var zero T
	size := binary.Size(zero)
	if len(raw)%size != 0 {
		return nil, errors.NewDecode(fmt.Sprintf("%T", zero),
			fmt.Sprintf("payload of %d bytes is not a multiple of %d", len(raw), size))
	}

	out := make([]T, len(raw)/size)
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, out); err != nil {
		return nil, errors.NewDecode(fmt.Sprintf("%T", zero), err.Error())
	}
	return out, nil
}

// Readings decodes payloads holding one or more encoded types.Reading.
type Readings struct{}

// Decode implements Decoder.
func (Readings) Decode(raw []byte) ([]types.Reading, error) {
	if len(raw)%types.ReadingSize != 0 {
		return nil, errors.NewDecode("reading",
			fmt.Sprintf("payload of %d bytes is not a multiple of %d", len(raw), types.ReadingSize))
	}

	out := make([]types.Reading, 0, len(raw)/types.ReadingSize)
	for off := 0; off < len(raw); off += types.ReadingSize {
		r, err := decodeReading(raw[off : off+types.ReadingSize])
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// Reading encoding format (binary, little-endian):
// - Value (8 bytes, float64)
// - Valid (1 byte, bool)
// - PollMs (4 bytes)

// EncodeReading appends the payload encoding of r to dst.
func EncodeReading(dst []byte, r types.Reading) []byte {
	dst = binary.LittleEndian.AppendUint64(dst, math.Float64bits(r.Value))
	if r.Valid {
		dst = append(dst, 1)
	} else {
		dst = append(dst, 0)
	}
	return binary.LittleEndian.AppendUint32(dst, r.PollMs)
}

func decodeReading(b []byte) (types.Reading, error) {
	var r types.Reading
	r.Value = math.Float64frombits(binary.LittleEndian.Uint64(b[0:8]))
	switch b[8] {
	case 0:
	case 1:
		r.Valid = true
	default:
		return r, errors.NewDecode("reading", fmt.Sprintf("invalid valid flag %d", b[8]))
	}
	r.PollMs = binary.LittleEndian.Uint32(b[9:13])
	return r, nil
}

// All decodes every payload of a batch and concatenates the results.
func All[T any](d Decoder[T], b *types.Batch) ([]T, error) {
	var out []T
	for i := 0; i < b.Len(); i++ {
		vals, err := d.Decode(b.Payload(i))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i, err)
		}
		out = append(out, vals...)
	}
	return out, nil
}

// Points decodes a batch of reading payloads into timestamped points.
// Each payload must hold exactly one reading.
func Points(b *types.Batch) ([]types.Point, error) {
	if b.Width != types.ReadingSize {
		return nil, errors.NewDecode("reading",
			fmt.Sprintf("payload width %d, expected %d", b.Width, types.ReadingSize))
	}

	points := make([]types.Point, b.Len())
	for i := range points {
		r, err := decodeReading(b.Payload(i))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i, err)
		}
		points[i] = types.Point{Timestamp: b.Timestamps[i], Reading: r}
	}
	return points, nil
}
