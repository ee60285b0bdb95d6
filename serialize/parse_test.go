package serialize

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/quay/zlog"

	"github.com/quay/unityasset/uaerr"
)

// headerSize is the byte length of a version-15 header: four big-endian
// u32 fields plus the version>=9 endianness byte and 3 reserved bytes.
const headerSize = 4*4 + 4

// buildV15 constructs a minimal, hand-rolled SerializedFile (version 15,
// little-endian metadata, type trees disabled) with a single object of
// class 1, plus empty script/external ref tables and a data section
// large enough to back the one object.
func buildV15(t *testing.T) (file []byte, dataOffset int64, objByteSize uint32) {
	t.Helper()
	var meta bytes.Buffer
	le := binary.LittleEndian

	writeCStr := func(s string) {
		meta.WriteString(s)
		meta.WriteByte(0)
	}
	align4 := func() {
		for (headerSize+meta.Len())%4 != 0 {
			meta.WriteByte(0)
		}
	}

	writeCStr("2021.3.0f1")                  // unity_version (v>=7)
	binary.Write(&meta, le, int32(19))       // target_platform (v>=8)
	meta.WriteByte(0)                        // enable_type_tree = false (v>=13)

	// type table: one type, class_id=1, old_type_hash (v>=13)
	binary.Write(&meta, le, uint32(1))
	binary.Write(&meta, le, int32(1)) // class_id
	meta.Write(make([]byte, 16))      // old_type_hash

	objByteSize = 8

	// object table: one object
	binary.Write(&meta, le, uint32(1))
	align4()
	binary.Write(&meta, le, int64(1))          // path_id (v>=14)
	binary.Write(&meta, le, uint32(0))         // byte_start (v<22 u32 form, data_offset-relative; object sits right at data_offset)
	binary.Write(&meta, le, uint32(objByteSize)) // byte_size
	binary.Write(&meta, le, int32(0))          // type_id
	binary.Write(&meta, le, int32(1))          // class_id (v<16)
	binary.Write(&meta, le, uint16(0))         // is_destroyed (11<=v<=16)

	// script refs (v>=11): count 0
	binary.Write(&meta, le, uint32(0))

	// external refs: count 0
	binary.Write(&meta, le, uint32(0))

	// user_information (v>=5)
	writeCStr("")

	var hdr bytes.Buffer
	binary.Write(&hdr, binary.BigEndian, uint32(meta.Len())) // metadata_size
	dataLen := int64(16)
	binary.Write(&hdr, binary.BigEndian, uint32(headerSize)+uint32(meta.Len())+uint32(dataLen)) // file_size
	binary.Write(&hdr, binary.BigEndian, uint32(15))                                            // version
	binary.Write(&hdr, binary.BigEndian, uint32(headerSize)+uint32(meta.Len()))                 // data_offset
	hdr.WriteByte(0)                                                                             // endianness: little
	hdr.Write(make([]byte, 3))                                                                   // reserved

	full := append(hdr.Bytes(), meta.Bytes()...)
	full = append(full, make([]byte, dataLen)...)
	return full, int64(len(hdr.Bytes()) + meta.Len()), objByteSize
}

// header64Size is the byte length of a version>=22 header: the same
// leading 32-bit block plus the endianness byte and reserved bytes, plus
// the 64-bit metadata_size/file_size/data_offset/unknown block that
// supersedes the 32-bit header values.
const header64Size = 4*4 + 4 + 8*4

// buildV22 constructs a minimal version-22 SerializedFile exercising the
// 64-bit header and the i64 object-table forms (path_id and byte_start).
// Unlike the v<22 u32 byte_start, the i64 form is already an absolute
// file offset and needs no data_offset adjustment.
func buildV22(t *testing.T) (file []byte, dataOffset int64, objByteSize uint32) {
	t.Helper()
	var meta bytes.Buffer
	le := binary.LittleEndian

	writeCStr := func(s string) {
		meta.WriteString(s)
		meta.WriteByte(0)
	}
	align4 := func() {
		for (header64Size+meta.Len())%4 != 0 {
			meta.WriteByte(0)
		}
	}

	writeCStr("2021.3.0f1")            // unity_version (v>=7)
	binary.Write(&meta, le, int32(19)) // target_platform (v>=8)
	meta.WriteByte(0)                  // enable_type_tree = false (v>=13)

	// type table: one type, class_id=1, is_stripped (v>=16),
	// script_type_index (v>=17), old_type_hash (v>=13)
	binary.Write(&meta, le, uint32(1))
	binary.Write(&meta, le, int32(1)) // class_id
	meta.WriteByte(0)                 // is_stripped
	binary.Write(&meta, le, int16(0)) // script_type_index
	meta.Write(make([]byte, 16))      // old_type_hash

	objByteSize = 8

	// object table: one object
	binary.Write(&meta, le, uint32(1))
	align4()
	binary.Write(&meta, le, int64(1)) // path_id (v>=14, i64)
	byteStartOffset := meta.Len()
	binary.Write(&meta, le, int64(0))            // byte_start placeholder, patched below
	binary.Write(&meta, le, uint32(objByteSize)) // byte_size
	binary.Write(&meta, le, int32(0))            // type_id
	// class_id omitted: v>=16
	// is_destroyed omitted: v>16
	binary.Write(&meta, le, int16(0)) // script_type_index (v>=17)

	// script refs (v>=11): count 0
	binary.Write(&meta, le, uint32(0))
	// external refs: count 0
	binary.Write(&meta, le, uint32(0))
	// ref types (v>=20): count 0
	binary.Write(&meta, le, uint32(0))
	// user_information (v>=5)
	writeCStr("")

	metaBytes := meta.Bytes()
	absByteStart := int64(header64Size) + int64(len(metaBytes))
	le.PutUint64(metaBytes[byteStartOffset:], uint64(absByteStart))

	var hdr bytes.Buffer
	be := binary.BigEndian
	binary.Write(&hdr, be, uint32(0))  // metadata_size (32-bit, unused at v>=22)
	binary.Write(&hdr, be, uint32(0))  // file_size (32-bit, unused at v>=22)
	binary.Write(&hdr, be, uint32(22)) // version
	binary.Write(&hdr, be, uint32(0))  // data_offset (32-bit, unused at v>=22)
	hdr.WriteByte(0)                   // endianness: little
	hdr.Write(make([]byte, 3))         // reserved

	dataLen := int64(16)
	binary.Write(&hdr, be, uint64(len(metaBytes)))                        // metadata_size (64-bit)
	binary.Write(&hdr, be, uint64(header64Size)+uint64(len(metaBytes))+uint64(dataLen)) // file_size (64-bit)
	binary.Write(&hdr, be, uint64(absByteStart))                          // data_offset (64-bit)
	binary.Write(&hdr, be, uint64(0))                                     // unknown

	full := append(hdr.Bytes(), metaBytes...)
	full = append(full, make([]byte, dataLen)...)
	return full, absByteStart, objByteSize
}

func TestParseV22RoundTrip(t *testing.T) {
	ctx := zlog.Test(context.Background(), t)
	raw, dataOffset, objByteSize := buildV22(t)

	sf, warnings, err := Parse(ctx, "t.assets", raw)
	if err != nil {
		t.Fatalf("Parse: %v, warnings=%v", err, warnings)
	}
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	if sf.Version != 22 {
		t.Fatalf("version = %d, want 22", sf.Version)
	}
	if len(sf.Objects) != 1 {
		t.Fatalf("objects = %d, want 1", len(sf.Objects))
	}
	obj, ok := sf.ByPathID(1)
	if !ok {
		t.Fatal("object with path_id=1 not found")
	}
	if obj.ByteStart != dataOffset {
		t.Fatalf("byte_start = %d, want %d (i64 form applies no data_offset adjustment)", obj.ByteStart, dataOffset)
	}
	slice, err := sf.SliceFor(obj)
	if err != nil {
		t.Fatal(err)
	}
	if uint32(len(slice)) != objByteSize {
		t.Fatalf("slice length = %d, want %d", len(slice), objByteSize)
	}
}

func TestParseRejectsUnsupportedVersion(t *testing.T) {
	ctx := zlog.Test(context.Background(), t)
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, uint32(0))  // metadata_size
	binary.Write(&buf, binary.BigEndian, uint32(0))  // file_size
	binary.Write(&buf, binary.BigEndian, uint32(99)) // version: out of range
	binary.Write(&buf, binary.BigEndian, uint32(0))  // data_offset
	buf.Write(make([]byte, 4))                       // endianness + reserved (v>=9)
	buf.Write(make([]byte, 8*4))                     // 64-bit header block (v>=22)

	_, _, err := Parse(ctx, "t", buf.Bytes())
	if !errors.Is(err, uaerr.UnsupportedSerializedFileVersion) {
		t.Fatalf("err = %v, want UnsupportedSerializedFileVersion", err)
	}
}

func TestParseTruncatedHeader(t *testing.T) {
	ctx := zlog.Test(context.Background(), t)
	_, _, err := Parse(ctx, "t", []byte{1, 2, 3})
	if err == nil {
		t.Fatal("expected error for truncated header")
	}
}

func TestParseV15RoundTrip(t *testing.T) {
	ctx := zlog.Test(context.Background(), t)
	raw, _, objByteSize := buildV15(t)

	sf, warnings, err := Parse(ctx, "t.assets", raw)
	if err != nil {
		t.Fatalf("Parse: %v, warnings=%v", err, warnings)
	}
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	if sf.Version != 15 {
		t.Fatalf("version = %d, want 15", sf.Version)
	}
	if sf.UnityVersion != "2021.3.0f1" {
		t.Fatalf("unity version = %q", sf.UnityVersion)
	}
	if len(sf.Objects) != 1 {
		t.Fatalf("objects = %d, want 1", len(sf.Objects))
	}
	obj, ok := sf.ByPathID(1)
	if !ok {
		t.Fatal("object with path_id=1 not found")
	}
	if obj.ClassID != 1 {
		t.Fatalf("class id = %d, want 1", obj.ClassID)
	}
	slice, err := sf.SliceFor(obj)
	if err != nil {
		t.Fatal(err)
	}
	if uint32(len(slice)) != objByteSize {
		t.Fatalf("slice length = %d, want %d", len(slice), objByteSize)
	}

	found := false
	for o := range sf.ObjectsByClass(1) {
		if o.PathID == 1 {
			found = true
		}
	}
	if !found {
		t.Fatal("ObjectsByClass(1) did not yield the object")
	}
}
