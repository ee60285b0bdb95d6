// Package packedbits reconstructs integer and float arrays from Unity's
// tightly packed bit-vector encoding: a shared range, start, and bit
// width describing every element.
package packedbits

import (
	"encoding/binary"
	"fmt"

	"github.com/quay/unityasset/binreader"
	"github.com/quay/unityasset/uaerr"
)

// PackedBitVector holds the decoded header fields and raw packed data of
// one PackedBitVector field.
type PackedBitVector struct {
	NumItems uint32
	Range    float32
	Start    float32
	Data     []byte
	BitSize  uint8
	bitSizeSet bool
}

// New builds a PackedBitVector from already-decoded fields, for callers
// (such as package mesh) that obtain these values via a generic type-tree
// decode rather than reading the wire format directly with Read.
func New(numItems uint32, rng, start float32, data []byte, bitSize uint8) *PackedBitVector {
	return &PackedBitVector{
		NumItems:   numItems,
		Range:      rng,
		Start:      start,
		Data:       data,
		BitSize:    bitSize,
		bitSizeSet: bitSize != 0,
	}
}

// Unset reports whether this vector carries no bit_size, in which case
// UnpackFloats degrades to returning count copies of Start.
func (p *PackedBitVector) Unset() bool { return !p.bitSizeSet }

// Read parses a PackedBitVector at the reader's current position:
// num_items, range, start, a data length (nominally u32, read as i32
// because at least one known writer emits it as a signed field), the data
// itself, 4-byte alignment, then bit_size and 3-byte alignment.
func Read(r *binreader.Reader, order binary.ByteOrder) (*PackedBitVector, error) {
	const op = "packedbits.Read"
	numItems, err := r.U32(order)
	if err != nil {
		return nil, err
	}
	rng, err := r.F32(order)
	if err != nil {
		return nil, err
	}
	start, err := r.F32(order)
	if err != nil {
		return nil, err
	}
	// The data length is written as a signed i32 by at least one known
	// writer even though readers treat it as u32; a negative value here
	// is always malformed, never a legitimate huge unsigned length.
	rawLen, err := r.I32(order)
	if err != nil {
		return nil, err
	}
	if rawLen < 0 {
		return nil, uaerr.New(op, uaerr.InvalidArgument, fmt.Sprintf("negative data length %d", rawLen), nil)
	}
	data, err := r.ReadBytes(int(rawLen))
	if err != nil {
		return nil, err
	}
	if err := r.Align(4, false); err != nil {
		return nil, err
	}
	bitSize, err := r.U8()
	if err != nil {
		return nil, err
	}
	if err := r.Align(4, false); err != nil {
		return nil, err
	}

	out := make([]byte, len(data))
	copy(out, data)
	return &PackedBitVector{
		NumItems:   numItems,
		Range:      rng,
		Start:      start,
		Data:       out,
		BitSize:    bitSize,
		bitSizeSet: bitSize != 0,
	}, nil
}

// UnpackInts reads count values of BitSize bits each, LSB-first across
// bytes, starting at the startIndex-th element.
func (p *PackedBitVector) UnpackInts(startIndex, count int) ([]uint32, error) {
	const op = "packedbits.UnpackInts"
	if !p.bitSizeSet {
		return nil, uaerr.New(op, uaerr.BitSizeUnset, "", nil)
	}
	if count == 0 {
		return []uint32{}, nil
	}
	out := make([]uint32, count)
	bitSize := int(p.BitSize)
	for i := 0; i < count; i++ {
		bitPos := (startIndex + i) * bitSize
		var v uint32
		for b := 0; b < bitSize; b++ {
			pos := bitPos + b
			byteIdx := pos / 8
			if byteIdx >= len(p.Data) {
				return nil, uaerr.New(op, uaerr.OutOfBounds,
					fmt.Sprintf("bit %d requires byte %d, have %d", pos, byteIdx, len(p.Data)), nil)
			}
			bit := (p.Data[byteIdx] >> uint(pos%8)) & 1
			v |= uint32(bit) << uint(b)
		}
		out[i] = v
	}
	return out, nil
}

// UnpackFloats reconstructs count floats starting at startIndex. When
// BitSize is unset, every reconstructed value equals Start.
func (p *PackedBitVector) UnpackFloats(startIndex, count int) ([]float32, error) {
	if count == 0 {
		return []float32{}, nil
	}
	if !p.bitSizeSet {
		out := make([]float32, count)
		for i := range out {
			out[i] = p.Start
		}
		return out, nil
	}
	ints, err := p.UnpackInts(startIndex, count)
	if err != nil {
		return nil, err
	}
	maxVal := float32((uint64(1) << p.BitSize) - 1)
	scale := p.Range / maxVal
	out := make([]float32, count)
	for i, v := range ints {
		out[i] = float32(v)*scale + p.Start
	}
	return out, nil
}
