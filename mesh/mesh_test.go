package mesh

import (
	"encoding/binary"
	"testing"

	"github.com/quay/unityasset/typetree"
)

func prim(typeName, fieldName string, v any) typetree.Value {
	return typetree.Value{Kind: typetree.KindPrimitive, TypeName: typeName, FieldName: fieldName, Prim: v}
}

func structVal(typeName, fieldName string, fields ...typetree.Value) typetree.Value {
	return typetree.Value{Kind: typetree.KindStruct, TypeName: typeName, FieldName: fieldName, Fields: fields}
}

func arrayVal(fieldName string, elems ...typetree.Value) typetree.Value {
	return typetree.Value{Kind: typetree.KindArray, FieldName: fieldName, Array: elems}
}

func byteArray(fieldName string, bs ...byte) typetree.Value {
	elems := make([]typetree.Value, len(bs))
	for i, b := range bs {
		elems[i] = prim("UInt8", "data", b)
	}
	return arrayVal(fieldName, elems...)
}

func TestGetTrianglesModes(t *testing.T) {
	indices := []uint32{0, 1, 2, 3, 4, 5, 6, 7}

	tris := GetTriangles(indices, SubMesh{FirstByte: 0, IndexCount: 6, Topology: Triangles}, false)
	if len(tris) != 2 {
		t.Fatalf("triangles count = %d, want 2", len(tris))
	}
	if tris[0] != [3]uint32{0, 1, 2} || tris[1] != [3]uint32{3, 4, 5} {
		t.Fatalf("unexpected triangles: %v", tris)
	}

	strip := []uint32{0, 1, 2, 3, 2}
	sTris := GetTriangles(strip, SubMesh{FirstByte: 0, IndexCount: 5, Topology: TriangleStrip}, false)
	// windows: (0,1,2) even->  (0,1,2); (1,2,3) odd -> (2,1,3); (2,3,2) degenerate skipped
	want := [][3]uint32{{0, 1, 2}, {2, 1, 3}}
	if len(sTris) != len(want) {
		t.Fatalf("strip triangles = %v, want %v", sTris, want)
	}
	for i := range want {
		if sTris[i] != want[i] {
			t.Fatalf("strip[%d] = %v, want %v", i, sTris[i], want[i])
		}
	}

	quad := []uint32{0, 1, 2, 3}
	qTris := GetTriangles(quad, SubMesh{FirstByte: 0, IndexCount: 4, Topology: Quads}, false)
	if len(qTris) != 2 || qTris[0] != [3]uint32{0, 1, 2} || qTris[1] != [3]uint32{0, 2, 3} {
		t.Fatalf("quad triangles = %v", qTris)
	}

	lines := GetTriangles([]uint32{0, 1}, SubMesh{FirstByte: 0, IndexCount: 2, Topology: Lines}, false)
	if lines != nil {
		t.Fatalf("lines should not expand, got %v", lines)
	}
}

func TestUnpackIndices16And32Bit(t *testing.T) {
	raw16 := []byte{0x01, 0x00, 0x02, 0x00}
	idx, err := unpackIndices(raw16, true, binary.LittleEndian)
	if err != nil {
		t.Fatal(err)
	}
	if len(idx) != 2 || idx[0] != 1 || idx[1] != 2 {
		t.Fatalf("idx = %v", idx)
	}

	raw32 := []byte{0x05, 0x00, 0x00, 0x00, 0x06, 0x00, 0x00, 0x00}
	idx32, err := unpackIndices(raw32, false, binary.LittleEndian)
	if err != nil {
		t.Fatal(err)
	}
	if len(idx32) != 2 || idx32[0] != 5 || idx32[1] != 6 {
		t.Fatalf("idx32 = %v", idx32)
	}
}

func TestDecodeMissingVertexDataFails(t *testing.T) {
	v := structVal("Mesh", "base", prim("string", "m_Name", "Cube"))
	_, _, err := Decode(v, "2021.3.0f1", binary.LittleEndian)
	if err == nil {
		t.Fatal("expected MeshMissingVertexData error")
	}
}

func TestDecodeChannelsAndVertexData(t *testing.T) {
	channels := arrayVal("m_Channels",
		structVal("ChannelInfo", "data", prim("UInt8", "stream", uint8(0)), prim("UInt8", "offset", uint8(0)), prim("UInt8", "format", uint8(0)), prim("UInt8", "dimension", uint8(3))),
	)
	vertexData := structVal("VertexData", "m_VertexData",
		prim("UInt32", "m_VertexCount", uint32(2)),
		channels,
		byteArray("_typelessdata", 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0),
	)
	idxFormat := prim("int", "m_IndexFormat", int32(0))
	idxBuf := byteArray("m_IndexBuffer", 0, 0, 1, 0, 2, 0)

	v := structVal("Mesh", "base",
		prim("string", "m_Name", "Plane"),
		idxFormat,
		idxBuf,
		vertexData,
	)

	dm, warnings, err := Decode(v, "2021.3.0f1", binary.LittleEndian)
	if err != nil {
		t.Fatal(err)
	}
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	if dm.Name != "Plane" {
		t.Fatalf("name = %q", dm.Name)
	}
	if !dm.Use16BitIndices {
		t.Fatal("expected 16-bit indices")
	}
	if len(dm.Indices) != 3 || dm.Indices[0] != 0 || dm.Indices[1] != 1 || dm.Indices[2] != 2 {
		t.Fatalf("indices = %v", dm.Indices)
	}
	if len(dm.Channels) != 1 || dm.Channels[0].Dimension != 3 {
		t.Fatalf("channels = %v", dm.Channels)
	}
	if len(dm.VertexData) != 24 {
		t.Fatalf("vertex data len = %d", len(dm.VertexData))
	}
}

func TestFormatSize(t *testing.T) {
	if FormatSize(0) != 4 {
		t.Fatalf("Float32 size = %d, want 4", FormatSize(0))
	}
	if FormatSize(6) != 1 {
		t.Fatalf("UInt8 size = %d, want 1", FormatSize(6))
	}
	if FormatSize(255) != 0 {
		t.Fatalf("unknown format should size 0, got %d", FormatSize(255))
	}
}
