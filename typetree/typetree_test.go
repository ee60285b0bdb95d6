package typetree

import (
	"encoding/binary"
	"testing"

	"github.com/quay/unityasset/binreader"
	"github.com/quay/unityasset/serialize"
)

// structTree describes:
//
//	struct Base (root)
//	  int m_X        (SInt32)
//	  char m_Flag    (UInt8, aligned after per 0x4000)
func structTree() serialize.TypeTree {
	return serialize.TypeTree{
		{TypeName: "Base", FieldName: "Base", Level: 0},
		{TypeName: "int", FieldName: "m_X", Level: 1},
		{TypeName: "UInt8", FieldName: "m_Flag", Level: 1, MetaFlags: 0x4000},
	}
}

func TestDecodeStructWithAlignment(t *testing.T) {
	// m_X = 7 (4 bytes), m_Flag = 1 (1 byte) + 3 padding bytes.
	buf := []byte{7, 0, 0, 0, 1, 0, 0, 0}
	r := binreader.New(buf)

	v, err := Decode(r, structTree(), binary.LittleEndian)
	if err != nil {
		t.Fatal(err)
	}
	if v.Kind != KindStruct {
		t.Fatalf("kind = %v, want KindStruct", v.Kind)
	}
	x, ok := v.Field("m_X")
	if !ok || x.Prim.(int32) != 7 {
		t.Fatalf("m_X = %v, ok=%v", x.Prim, ok)
	}
	flag, ok := v.Field("m_Flag")
	if !ok || flag.Prim.(uint8) != 1 {
		t.Fatalf("m_Flag = %v, ok=%v", flag.Prim, ok)
	}
	if r.Pos()%4 != 0 {
		t.Fatalf("position %d not 4-byte aligned after aligned node", r.Pos())
	}
	if r.Pos() != 8 {
		t.Fatalf("pos = %d, want 8", r.Pos())
	}
}

// arrayTree describes an Array<int> field: size (SInt32) + data (int).
func arrayTree() serialize.TypeTree {
	return serialize.TypeTree{
		{TypeName: "vector", FieldName: "m_Values", Level: 0},
		{TypeName: "Array", FieldName: "Array", Level: 1},
		{TypeName: "int", FieldName: "size", Level: 2},
		{TypeName: "int", FieldName: "data", Level: 2},
	}
}

func TestDecodeArray(t *testing.T) {
	buf := []byte{
		3, 0, 0, 0, // size = 3
		1, 0, 0, 0,
		2, 0, 0, 0,
		3, 0, 0, 0,
	}
	r := binreader.New(buf)
	v, err := Decode(r, arrayTree(), binary.LittleEndian)
	if err != nil {
		t.Fatal(err)
	}
	if v.Kind != KindArray {
		t.Fatalf("kind = %v, want KindArray", v.Kind)
	}
	if len(v.Array) != 3 {
		t.Fatalf("len = %d, want 3", len(v.Array))
	}
	for i, want := range []int32{1, 2, 3} {
		if got := v.Array[i].Prim.(int32); got != want {
			t.Fatalf("array[%d] = %d, want %d", i, got, want)
		}
	}
}
