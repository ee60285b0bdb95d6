package compress

import (
	"bytes"
	"testing"

	"github.com/pierrec/lz4/v4"

	"github.com/quay/unityasset/uaerr"
)

func TestDecompressUncompressed(t *testing.T) {
	in := []byte("hello, unity")
	out, err := Decompress(in, int64(len(in)), None)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out, in) {
		t.Fatalf("out = %q, want %q", out, in)
	}
}

func TestDecompressUncompressedSizeMismatch(t *testing.T) {
	in := []byte("hello")
	_, err := Decompress(in, 4, None)
	e, ok := uaerr.As(err)
	if !ok || e.Kind != uaerr.DecompressionSizeMismatch {
		t.Fatalf("err = %v, want DecompressionSizeMismatch", err)
	}
}

func TestDecompressUnsupportedMethod(t *testing.T) {
	_, err := Decompress([]byte{0}, 1, Method(9))
	e, ok := uaerr.As(err)
	if !ok || e.Kind != uaerr.UnsupportedCompression {
		t.Fatalf("err = %v, want UnsupportedCompression", err)
	}
}

func TestDecompressInputTooLarge(t *testing.T) {
	_, err := Decompress(make([]byte, MaxInputSize+1), 1, None)
	e, ok := uaerr.As(err)
	if !ok || e.Kind != uaerr.CompressionInputTooLarge {
		t.Fatalf("err = %v, want CompressionInputTooLarge", err)
	}
}

func TestDecompressLZ4Roundtrip(t *testing.T) {
	src := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog. "), 32)
	dst := make([]byte, lz4.CompressBlockBound(len(src)))
	var c lz4.Compressor
	n, err := c.CompressBlock(src, dst)
	if err != nil {
		t.Fatal(err)
	}
	if n == 0 {
		t.Skip("input incompressible under this compressor configuration")
	}
	out, err := Decompress(dst[:n], int64(len(src)), LZ4)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out, src) {
		t.Fatalf("roundtrip mismatch: got %d bytes, want %d", len(out), len(src))
	}
}

func TestDecompressLZMATooShort(t *testing.T) {
	_, err := Decompress([]byte{1, 2, 3}, 10, LZMA)
	e, ok := uaerr.As(err)
	if !ok || e.Kind != uaerr.LzmaTooShort {
		t.Fatalf("err = %v, want LzmaTooShort", err)
	}
}

func TestDecompressNegativeExpectedSize(t *testing.T) {
	_, err := Decompress([]byte{0}, -1, None)
	e, ok := uaerr.As(err)
	if !ok || e.Kind != uaerr.InvalidArgument {
		t.Fatalf("err = %v, want InvalidArgument", err)
	}
}
