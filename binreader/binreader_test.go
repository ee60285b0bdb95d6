package binreader

import (
	"encoding/binary"
	"testing"

	"github.com/quay/unityasset/uaerr"
)

func TestCalculatePadding(t *testing.T) {
	for _, n := range []int64{1, 2, 4, 8, 16, 32, 64} {
		for off := int64(0); off < 40; off++ {
			pad, err := CalculatePadding(off, n)
			if err != nil {
				t.Fatalf("CalculatePadding(%d,%d): %v", off, n, err)
			}
			if (off+pad)%n != 0 {
				t.Fatalf("CalculatePadding(%d,%d)=%d does not align", off, n, pad)
			}
		}
	}
	for _, n := range []int64{0, 3, 5, 6, 7, 9} {
		if _, err := CalculatePadding(0, n); err == nil {
			t.Fatalf("expected error for non-power-of-two alignment %d", n)
		}
	}
}

func TestAlign(t *testing.T) {
	buf := []byte{0x01, 0x00, 0x00, 0x00, 0x02}
	r := New(buf)
	if _, err := r.U8(); err != nil {
		t.Fatal(err)
	}
	if err := r.Align(4, true); err != nil {
		t.Fatal(err)
	}
	if r.Pos() != 4 {
		t.Fatalf("pos = %d, want 4", r.Pos())
	}
	v, err := r.U8()
	if err != nil {
		t.Fatal(err)
	}
	if v != 0x02 {
		t.Fatalf("v = %#x, want 0x02", v)
	}
}

func TestAlignValidatePaddingRejectsNonZero(t *testing.T) {
	buf := []byte{0x01, 0x00, 0xFF, 0x00, 0x02}
	r := New(buf)
	if _, err := r.U8(); err != nil {
		t.Fatal(err)
	}
	err := r.Align(4, true)
	e, ok := uaerr.As(err)
	if !ok || e.Kind != uaerr.AlignmentValidationError {
		t.Fatalf("err = %v, want AlignmentValidationError", err)
	}
}

func TestAlignNoValidation(t *testing.T) {
	buf := []byte{0x01, 0x00, 0xFF, 0x00, 0x02}
	r := New(buf)
	if _, err := r.U8(); err != nil {
		t.Fatal(err)
	}
	if err := r.Align(4, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestReadUTF8NulTerminated(t *testing.T) {
	buf := []byte{0x41, 0x00, 0x42, 0x00}
	r := New(buf)
	s, err := r.ReadUTF8NulTerminated(0)
	if err != nil {
		t.Fatal(err)
	}
	if s != "A" {
		t.Fatalf("s = %q, want %q", s, "A")
	}
	if r.Pos() != 2 {
		t.Fatalf("pos = %d, want 2", r.Pos())
	}
}

func TestReadUTF8NulTerminatedMissingTerminator(t *testing.T) {
	buf := []byte{0x48, 0x69}
	r := New(buf)
	_, err := r.ReadUTF8NulTerminated(0)
	e, ok := uaerr.As(err)
	if !ok || e.Kind != uaerr.OutOfBounds {
		t.Fatalf("err = %v, want OutOfBounds", err)
	}
}

func TestReadUTF8NulTerminatedTooLong(t *testing.T) {
	buf := make([]byte, 10)
	for i := range buf {
		buf[i] = 'x'
	}
	r := New(buf)
	_, err := r.ReadUTF8NulTerminated(4)
	e, ok := uaerr.As(err)
	if !ok || e.Kind != uaerr.StringTooLong {
		t.Fatalf("err = %v, want StringTooLong", err)
	}
}

func TestReadLengthPrefixedString(t *testing.T) {
	buf := []byte{5, 0, 0, 0, 'h', 'e', 'l', 'l', 'o'}
	r := New(buf)
	s, err := r.ReadLengthPrefixedString(binary.LittleEndian)
	if err != nil {
		t.Fatal(err)
	}
	if s != "hello" {
		t.Fatalf("s = %q, want %q", s, "hello")
	}
}

func TestPrimitiveReadsOutOfBounds(t *testing.T) {
	r := New([]byte{0x01})
	if _, err := r.U32(binary.LittleEndian); err == nil {
		t.Fatal("expected OutOfBounds error")
	}
}

func TestPrimitiveRoundtrip(t *testing.T) {
	buf := []byte{0xFF, 0xFF, 0xFF, 0xFF}
	r := New(buf)
	v, err := r.I32(binary.LittleEndian)
	if err != nil {
		t.Fatal(err)
	}
	if v != -1 {
		t.Fatalf("v = %d, want -1", v)
	}
}
