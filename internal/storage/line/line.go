// Package line encodes and decodes the fixed-size records of a data file.
//
// Line format (little-endian):
//   - Timestamp (2 bytes): low 16 bits of the Unix time in seconds
//   - Payload (width bytes): opaque, copied verbatim
//
// Lines carry no framing; the payload width is fixed for the lifetime of
// a series.
package line

import (
	"encoding/binary"

	"github.com/xtxerr/linestore/config"
	"github.com/xtxerr/linestore/internal/errors"
	"github.com/xtxerr/linestore/internal/storage/types"
)

// TimestampSize is the width of the compressed timestamp.
const TimestampSize = config.TimestampSize

const lowMask = 1<<types.WindowBits - 1

// Codec encodes lines of one series.
type Codec struct {
	width int
}

// NewCodec creates a codec for payloads of the given width.
func NewCodec(payloadWidth int) (Codec, error) {
	if payloadWidth <= 0 {
		return Codec{}, errors.Wrapf(errors.ErrInvalidLineSize, "payload width %d", payloadWidth)
	}
	return Codec{width: payloadWidth}, nil
}

// PayloadWidth returns the payload width in bytes.
func (c Codec) PayloadWidth() int {
	return c.width
}

// Size returns the full line size in bytes.
func (c Codec) Size() int {
	return TimestampSize + c.width
}

// Encode appends the line for (ts, payload) to dst.
func (c Codec) Encode(dst []byte, ts int64, payload []byte) ([]byte, error) {
	if len(payload) != c.width {
		return dst, errors.NewSizeMismatch(c.width, len(payload))
	}
	dst = binary.LittleEndian.AppendUint16(dst, Compress(ts))
	return append(dst, payload...), nil
}

// Compress returns the stored form of ts. Pre-epoch timestamps are
// clamped to 0 since the format has no sign bit.
func Compress(ts int64) uint16 {
	if ts < 0 {
		return 0
	}
	return uint16(ts & lowMask)
}

// Timestamp returns the compressed timestamp of a line.
func Timestamp(l []byte) uint16 {
	return binary.LittleEndian.Uint16(l)
}

// Payload strips the compressed timestamp from a line.
func Payload(l []byte) []byte {
	return l[TimestampSize:]
}

// Reconstruct combines the upper bits of an anchoring checkpoint
// timestamp with the low 16 bits stored in a line.
func Reconstruct(anchor int64, low uint16) int64 {
	return (anchor &^ lowMask) | int64(low)
}
