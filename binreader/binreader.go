// Package binreader implements endian-aware, bounds-checked primitive reads
// over an in-memory byte slice.
//
// A Reader is cheap to construct and is never shared across goroutines
// during a single parse; each parse thread builds its own.
package binreader

import (
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/quay/unityasset/uaerr"
)

// DefaultMaxStringLen is the default cap used by ReadUTF8NulTerminated.
const DefaultMaxStringLen = 1 << 20 // 1 MiB

// Reader is a cursor over a byte slice supporting the primitive reads
// needed by the rest of the unityasset packages.
type Reader struct {
	buf []byte
	pos int
}

// New wraps buf in a Reader positioned at offset 0.
func New(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Pos reports the current read offset.
func (r *Reader) Pos() int { return r.pos }

// Len reports the total length of the underlying buffer.
func (r *Reader) Len() int { return len(r.buf) }

// Remaining reports the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.buf) - r.pos }

// Seek repositions the cursor to an absolute offset.
func (r *Reader) Seek(off int) error {
	if off < 0 || off > len(r.buf) {
		return uaerr.New("binreader.Seek", uaerr.OutOfBounds, fmt.Sprintf("offset %d out of [0,%d]", off, len(r.buf)), nil)
	}
	r.pos = off
	return nil
}

func (r *Reader) take(n int) ([]byte, error) {
	if n < 0 {
		return nil, uaerr.New("binreader", uaerr.InvalidArgument, fmt.Sprintf("negative length %d", n), nil)
	}
	if r.pos+n > len(r.buf) {
		return nil, uaerr.New("binreader", uaerr.OutOfBounds,
			fmt.Sprintf("need %d bytes at offset %d, have %d", n, r.pos, len(r.buf)-r.pos), nil)
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// ReadBytes returns the next n bytes and advances the cursor.
func (r *Reader) ReadBytes(n int) ([]byte, error) { return r.take(n) }

// PeekBytes returns the next n bytes without advancing the cursor.
func (r *Reader) PeekBytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, uaerr.New("binreader.PeekBytes", uaerr.InvalidArgument, fmt.Sprintf("negative length %d", n), nil)
	}
	if r.pos+n > len(r.buf) {
		return nil, uaerr.New("binreader.PeekBytes", uaerr.OutOfBounds,
			fmt.Sprintf("need %d bytes at offset %d, have %d", n, r.pos, len(r.buf)-r.pos), nil)
	}
	return r.buf[r.pos : r.pos+n], nil
}

// U8 reads an unsigned byte.
func (r *Reader) U8() (uint8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// I8 reads a signed byte.
func (r *Reader) I8() (int8, error) {
	v, err := r.U8()
	return int8(v), err
}

// U16 reads an unsigned 16-bit value in the given byte order.
func (r *Reader) U16(order binary.ByteOrder) (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return order.Uint16(b), nil
}

// I16 reads a signed 16-bit value.
func (r *Reader) I16(order binary.ByteOrder) (int16, error) {
	v, err := r.U16(order)
	return int16(v), err
}

// U32 reads an unsigned 32-bit value.
func (r *Reader) U32(order binary.ByteOrder) (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return order.Uint32(b), nil
}

// I32 reads a signed 32-bit value.
func (r *Reader) I32(order binary.ByteOrder) (int32, error) {
	v, err := r.U32(order)
	return int32(v), err
}

// U64 reads an unsigned 64-bit value.
func (r *Reader) U64(order binary.ByteOrder) (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return order.Uint64(b), nil
}

// I64 reads a signed 64-bit value.
func (r *Reader) I64(order binary.ByteOrder) (int64, error) {
	v, err := r.U64(order)
	return int64(v), err
}

// F32 reads an IEEE-754 single precision float.
func (r *Reader) F32(order binary.ByteOrder) (float32, error) {
	v, err := r.U32(order)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

// F64 reads an IEEE-754 double precision float.
func (r *Reader) F64(order binary.ByteOrder) (float64, error) {
	v, err := r.U64(order)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

// CalculatePadding returns the number of bytes needed to advance offset to
// the next multiple of alignment. alignment must be a power of two.
func CalculatePadding(offset, alignment int64) (int64, error) {
	if alignment <= 0 || alignment&(alignment-1) != 0 {
		return 0, uaerr.New("binreader.CalculatePadding", uaerr.InvalidArgument,
			fmt.Sprintf("alignment %d is not a power of two", alignment), nil)
	}
	return (alignment - offset%alignment) % alignment, nil
}

// Align advances the cursor so that Pos()%n == 0. n must be a power of
// two. When validatePadding is true, every skipped byte must be zero or
// Align fails with AlignmentValidationError.
func (r *Reader) Align(n int, validatePadding bool) error {
	pad, err := CalculatePadding(int64(r.pos), int64(n))
	if err != nil {
		return err
	}
	if pad == 0 {
		return nil
	}
	skipped, err := r.take(int(pad))
	if err != nil {
		return err
	}
	if validatePadding {
		for _, b := range skipped {
			if b != 0 {
				return uaerr.New("binreader.Align", uaerr.AlignmentValidationError,
					fmt.Sprintf("non-zero padding byte at offset %d", r.pos-len(skipped)), nil)
			}
		}
	}
	return nil
}

// ReadUTF8NulTerminated scans for a NUL terminator, decodes the
// intervening bytes as UTF-8, and advances past the terminator.
func (r *Reader) ReadUTF8NulTerminated(maxLen int) (string, error) {
	if maxLen <= 0 {
		maxLen = DefaultMaxStringLen
	}
	start := r.pos
	limit := start + maxLen
	if limit > len(r.buf) {
		limit = len(r.buf)
	}
	i := start
	for ; i < limit; i++ {
		if r.buf[i] == 0 {
			break
		}
	}
	switch {
	case i == limit && limit-start >= maxLen:
		return "", uaerr.New("binreader.ReadUTF8NulTerminated", uaerr.StringTooLong,
			fmt.Sprintf("no terminator within %d bytes starting at %d", maxLen, start), nil)
	case i == len(r.buf):
		return "", uaerr.New("binreader.ReadUTF8NulTerminated", uaerr.OutOfBounds,
			fmt.Sprintf("stream ended before terminator starting at %d", start), nil)
	}
	raw := r.buf[start:i]
	if !utf8.Valid(raw) {
		return "", uaerr.New("binreader.ReadUTF8NulTerminated", uaerr.Utf8DecodingError,
			fmt.Sprintf("invalid UTF-8 starting at %d", start), nil)
	}
	r.pos = i + 1
	return string(raw), nil
}

// ReadLengthPrefixedString reads a u32 length (in order) followed by that
// many bytes. Callers align afterward when the format requires it.
func (r *Reader) ReadLengthPrefixedString(order binary.ByteOrder) (string, error) {
	n, err := r.U32(order)
	if err != nil {
		return "", err
	}
	b, err := r.take(int(n))
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", uaerr.New("binreader.ReadLengthPrefixedString", uaerr.Utf8DecodingError,
			fmt.Sprintf("invalid UTF-8 at offset %d", r.pos-len(b)), nil)
	}
	return string(b), nil
}
