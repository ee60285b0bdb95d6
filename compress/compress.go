// Package compress implements the block-level decompression used by
// UnityFS containers: uncompressed passthrough, LZ4/LZ4HC block format,
// and Unity's LZMA variant (a 5-byte properties header with no end-size
// marker).
//
// Decompress is safe for concurrent use on independent inputs; each
// call constructs its own decoder state rather than sharing one.
package compress

import (
	"bytes"
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz/lzma"

	"github.com/quay/unityasset/uaerr"
)

// MaxInputSize is the cap on any single compressed block; inputs larger
// than this are rejected before any decompression is attempted.
const MaxInputSize = 512 << 20 // 512 MiB

// Method identifies a UnityFS block compression id (the low 6 bits of the
// blocks-info flags field, or a per-block compression tag).
type Method uint8

const (
	None  Method = 0
	LZMA  Method = 1
	LZ4   Method = 2
	LZ4HC Method = 3
)

// Decompress expands input into a buffer of exactly expectedSize bytes
// using the given method. expectedSize must be non-negative.
func Decompress(input []byte, expectedSize int64, method Method) ([]byte, error) {
	const op = "compress.Decompress"
	if expectedSize < 0 {
		return nil, uaerr.New(op, uaerr.InvalidArgument, fmt.Sprintf("negative expected size %d", expectedSize), nil)
	}
	if len(input) > MaxInputSize {
		return nil, uaerr.New(op, uaerr.CompressionInputTooLarge,
			fmt.Sprintf("input %d bytes exceeds cap of %d", len(input), MaxInputSize), nil)
	}

	switch method {
	case None:
		if int64(len(input)) != expectedSize {
			return nil, uaerr.New(op, uaerr.DecompressionSizeMismatch,
				fmt.Sprintf("uncompressed input is %d bytes, expected %d", len(input), expectedSize), nil)
		}
		out := make([]byte, len(input))
		copy(out, input)
		return out, nil
	case LZMA:
		return decompressLZMA(input, expectedSize)
	case LZ4, LZ4HC:
		return decompressLZ4(input, expectedSize)
	default:
		return nil, uaerr.New(op, uaerr.UnsupportedCompression, fmt.Sprintf("compression id %d", method), nil)
	}
}

// decompressLZ4 expands a single LZ4 (or LZ4HC, same block encoding) block.
func decompressLZ4(input []byte, expectedSize int64) ([]byte, error) {
	const op = "compress.decompressLZ4"
	out := make([]byte, expectedSize)
	n, err := lz4.UncompressBlock(input, out)
	if err != nil {
		return nil, uaerr.New(op, uaerr.Lz4DecodeError, "", err)
	}
	if int64(n) != expectedSize {
		return nil, uaerr.New(op, uaerr.DecompressionSizeMismatch,
			fmt.Sprintf("decoded %d bytes, expected %d", n, expectedSize), nil)
	}
	return out, nil
}

// decompressLZMA expands Unity's LZMA variant: a 5-byte properties header
// (one packed lc/lp/pb byte, then a 4-byte little-endian dictionary size)
// followed by the raw compressed stream with no trailing end-size marker.
func decompressLZMA(input []byte, expectedSize int64) ([]byte, error) {
	const op = "compress.decompressLZMA"
	if len(input) < 5 {
		return nil, uaerr.New(op, uaerr.LzmaTooShort, fmt.Sprintf("input is %d bytes, need at least 5", len(input)), nil)
	}
	props, err := lzmaProperties(input[0])
	if err != nil {
		return nil, uaerr.New(op, uaerr.LzmaInvalidProperties, "", err)
	}
	dictSize := uint32(input[1]) | uint32(input[2])<<8 | uint32(input[3])<<16 | uint32(input[4])<<24

	cfg := lzma.ReaderConfig{
		Properties: &props,
		DictCap:    int(dictSize),
	}
	rd, err := cfg.NewReader(bytes.NewReader(input[5:]))
	if err != nil {
		return nil, uaerr.New(op, uaerr.LzmaInvalidProperties, "", err)
	}
	out := make([]byte, expectedSize)
	n, err := io.ReadFull(rd, out)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, uaerr.New(op, uaerr.LzmaSizeMismatch, "", err)
	}
	if int64(n) != expectedSize {
		return nil, uaerr.New(op, uaerr.LzmaSizeMismatch,
			fmt.Sprintf("decoded %d bytes, expected %d", n, expectedSize), nil)
	}
	return out, nil
}

// lzmaProperties decodes the packed lc/lp/pb byte used in both the legacy
// .lzma container and Unity's variant.
func lzmaProperties(b byte) (lzma.Properties, error) {
	v := int(b)
	lc := v % 9
	v /= 9
	lp := v % 5
	v /= 5
	pb := v % 5
	if lc+lp > 4 {
		return lzma.Properties{}, fmt.Errorf("compress: invalid lzma properties byte %#x (lc=%d lp=%d)", b, lc, lp)
	}
	return lzma.Properties{LC: lc, LP: lp, PB: pb}, nil
}
