package serialize

import (
	"context"
	"encoding/binary"
	"fmt"
	"iter"
	"runtime/trace"

	"github.com/quay/zlog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/quay/unityasset/binreader"
	"github.com/quay/unityasset/serialize/internal/strtab"
	"github.com/quay/unityasset/uaerr"
)

// classesWithScriptID mirrors Unity's MonoBehaviour (114) and MonoScript
// (115) classes, the only ones that carry a 16-byte script identifier in
// the type table.
var classesWithScriptID = map[int32]bool{114: true, 115: true}

// MinVersion and MaxVersion bound the SerializedFile header versions this
// reader understands.
const (
	MinVersion = 1
	MaxVersion = 22
)

// Parse reads a complete SerializedFile (header, metadata, and data
// section) from raw. sourceName is used only for diagnostics.
func Parse(ctx context.Context, sourceName string, raw []byte) (*SerializedFile, []uaerr.Warning, error) {
	ctx = zlog.ContextWithValues(ctx, "component", "serialize.Parse", "source", sourceName)
	ctx, task := trace.NewTask(ctx, "SerializedFile.Parse")
	defer task.End()

	ctx, span := otel.Tracer("github.com/quay/unityasset/serialize").Start(ctx, "Parse",
		oteltrace.WithAttributes(attribute.String("source", sourceName)))
	defer span.End()

	const op = "serialize.Parse"
	p := &parser{r: binreader.New(raw), sf: &SerializedFile{SourceName: sourceName}}

	if err := p.header(); err != nil {
		return nil, nil, err
	}
	if p.sf.Version < MinVersion || p.sf.Version > MaxVersion {
		return nil, nil, uaerr.New(op, uaerr.UnsupportedSerializedFileVersion,
			fmt.Sprintf("version %d outside [%d,%d]", p.sf.Version, MinVersion, MaxVersion), nil)
	}

	order := binary.ByteOrder(binary.LittleEndian)
	if p.sf.BigEndian {
		order = binary.BigEndian
	}
	p.order = order

	if err := p.metadata(ctx); err != nil {
		return nil, nil, err
	}

	if int(p.dataOffset) > len(raw) {
		return nil, nil, uaerr.New(op, uaerr.ObjectOutOfRange,
			fmt.Sprintf("data_offset %d exceeds file length %d", p.dataOffset, len(raw)), nil)
	}
	// ByteStart is an absolute file offset (the i64 form for version>=22
	// is already absolute; the u32 "small" form is data_offset-relative
	// and was reconstructed to absolute in objectTable), so object bytes
	// are sliced out of the whole file, not just the data section.
	p.sf.data = raw

	p.sf.byIndex = make(map[int64]int, len(p.sf.Objects))
	p.sf.byClass = make(map[int32][]int, len(p.sf.Types))
	for i := range p.sf.Objects {
		obj := &p.sf.Objects[i]
		obj.ClassID = p.sf.classIDFor(obj)
		if obj.ByteStart < 0 || obj.ByteStart+int64(obj.ByteSize) > int64(len(p.sf.data)) {
			p.warnings = append(p.warnings, uaerr.NewWarning(uaerr.ObjectOutOfRange,
				fmt.Sprintf("object path_id=%d start=%d size=%d exceeds file length %d",
					obj.PathID, obj.ByteStart, obj.ByteSize, len(p.sf.data))))
			continue
		}
		p.sf.byIndex[obj.PathID] = i
		p.sf.byClass[obj.ClassID] = append(p.sf.byClass[obj.ClassID], i)
	}

	return p.sf, p.warnings, nil
}

type parser struct {
	r          *binreader.Reader
	sf         *SerializedFile
	order      binary.ByteOrder
	dataOffset int64
	warnings   []uaerr.Warning
}

func (p *parser) header() error {
	r := p.r
	var err error
	var dataOffset uint32
	var version uint32

	if _, err = r.U32(binary.BigEndian); err != nil { // metadata_size, unused after parse
		return err
	}
	if _, err = r.U32(binary.BigEndian); err != nil { // file_size, unused after parse
		return err
	}
	if version, err = r.U32(binary.BigEndian); err != nil {
		return err
	}
	if dataOffset, err = r.U32(binary.BigEndian); err != nil {
		return err
	}
	p.sf.Version = version

	if version >= 9 {
		endian, err := r.U8()
		if err != nil {
			return err
		}
		if _, err := r.ReadBytes(3); err != nil { // reserved
			return err
		}
		p.sf.BigEndian = endian != 0
	} else {
		p.sf.BigEndian = true
	}

	if version >= 22 {
		if _, err = r.U64(binary.BigEndian); err != nil { // metadata_size
			return err
		}
		if _, err = r.U64(binary.BigEndian); err != nil { // file_size
			return err
		}
		var dataOffset64 uint64
		if dataOffset64, err = r.U64(binary.BigEndian); err != nil {
			return err
		}
		if _, err = r.U64(binary.BigEndian); err != nil { // unknown
			return err
		}
		p.dataOffset = int64(dataOffset64)
	} else {
		p.dataOffset = int64(dataOffset)
	}
	return nil
}

func (p *parser) metadata(ctx context.Context) error {
	r := p.r
	order := p.order
	v := p.sf.Version

	if v >= 7 {
		s, err := r.ReadUTF8NulTerminated(0)
		if err != nil {
			return err
		}
		p.sf.UnityVersion = s
	}
	if v >= 8 {
		tp, err := r.I32(order)
		if err != nil {
			return err
		}
		p.sf.TargetPlatform = tp
	}
	enableTypeTree := true
	if v >= 13 {
		b, err := r.U8()
		if err != nil {
			return err
		}
		enableTypeTree = b != 0
	}

	if err := p.typeTable(enableTypeTree); err != nil {
		return err
	}
	if err := p.objectTable(); err != nil {
		return err
	}
	if v >= 11 {
		if err := p.scriptRefs(); err != nil {
			return err
		}
	}
	if err := p.externalRefs(); err != nil {
		return err
	}
	if v >= 20 {
		if err := p.refTypes(enableTypeTree); err != nil {
			return err
		}
	}
	if v >= 5 {
		s, err := r.ReadUTF8NulTerminated(0)
		if err != nil {
			return err
		}
		p.sf.UserInformation = s
	}
	zlog.Debug(ctx).
		Uint32("version", v).
		Int("types", len(p.sf.Types)).
		Int("objects", len(p.sf.Objects)).
		Msg("parsed serializedfile metadata")
	return nil
}

func (p *parser) typeTable(enableTypeTree bool) error {
	r := p.r
	order := p.order
	count, err := r.U32(order)
	if err != nil {
		return err
	}
	types := make([]SerializedType, count)
	for i := range types {
		t, err := p.readOneType(enableTypeTree)
		if err != nil {
			return err
		}
		types[i] = t
	}
	p.sf.Types = types
	return nil
}

func (p *parser) readOneType(enableTypeTree bool) (SerializedType, error) {
	r := p.r
	order := p.order
	v := p.sf.Version
	var t SerializedType

	classID, err := r.I32(order)
	if err != nil {
		return t, err
	}
	t.ClassID = classID

	if v >= 16 {
		b, err := r.U8()
		if err != nil {
			return t, err
		}
		t.IsStripped = b != 0
	}
	if v >= 17 {
		idx, err := r.I16(order)
		if err != nil {
			return t, err
		}
		t.ScriptTypeIndex = idx
	}
	if classesWithScriptID[classID] {
		b, err := r.ReadBytes(16)
		if err != nil {
			return t, err
		}
		copy(t.ScriptID[:], b)
		t.HasScriptID = true
	}
	if v >= 13 {
		b, err := r.ReadBytes(16)
		if err != nil {
			return t, err
		}
		copy(t.OldTypeHash[:], b)
		t.HasOldTypeHash = true
	}
	if enableTypeTree {
		tree, err := p.readTypeTree()
		if err != nil {
			return t, err
		}
		t.Tree = tree
	}
	return t, nil
}

// readTypeTree dispatches between the legacy recursive form (version < 12)
// and the modern blob form (version >= 12).
func (p *parser) readTypeTree() (TypeTree, error) {
	if p.sf.Version < 12 {
		var tree TypeTree
		if err := p.readLegacyNode(&tree, 0); err != nil {
			return nil, err
		}
		return tree, nil
	}
	return p.readBlobTypeTree()
}

func (p *parser) readLegacyNode(tree *TypeTree, level uint8) error {
	r := p.r
	order := p.order

	typeName, err := r.ReadUTF8NulTerminated(0)
	if err != nil {
		return err
	}
	fieldName, err := r.ReadUTF8NulTerminated(0)
	if err != nil {
		return err
	}
	byteSize, err := r.I32(order)
	if err != nil {
		return err
	}
	_, err = r.I32(order) // variable count / index field, unused downstream
	if err != nil {
		return err
	}
	isArray, err := r.I32(order)
	if err != nil {
		return err
	}
	version, err := r.I32(order)
	if err != nil {
		return err
	}
	metaFlags, err := r.U32(order)
	if err != nil {
		return err
	}
	childCount, err := r.I32(order)
	if err != nil {
		return err
	}

	n := TypeTreeNode{
		TypeName:  typeName,
		FieldName: fieldName,
		ByteSize:  byteSize,
		TypeFlags: isArray,
		Version:   int16(version),
		MetaFlags: metaFlags,
		Level:     level,
		Index:     int32(len(*tree)),
	}
	*tree = append(*tree, n)

	for i := int32(0); i < childCount; i++ {
		if err := p.readLegacyNode(tree, level+1); err != nil {
			return err
		}
	}
	return nil
}

func (p *parser) readBlobTypeTree() (TypeTree, error) {
	r := p.r
	order := p.order

	nodeCount, err := r.U32(order)
	if err != nil {
		return nil, err
	}
	strBufSize, err := r.U32(order)
	if err != nil {
		return nil, err
	}

	type rawNode struct {
		version    int16
		level      uint8
		isArray    bool
		typeOffset uint32
		nameOffset uint32
		byteSize   int32
		index      int32
		metaFlags  uint32
		refHash    [16]byte
		hasRefHash bool
	}
	raws := make([]rawNode, nodeCount)
	for i := range raws {
		ver, err := r.I16(order)
		if err != nil {
			return nil, err
		}
		level, err := r.U8()
		if err != nil {
			return nil, err
		}
		isArrByte, err := r.U8()
		if err != nil {
			return nil, err
		}
		typeOff, err := r.U32(order)
		if err != nil {
			return nil, err
		}
		nameOff, err := r.U32(order)
		if err != nil {
			return nil, err
		}
		byteSize, err := r.I32(order)
		if err != nil {
			return nil, err
		}
		index, err := r.I32(order)
		if err != nil {
			return nil, err
		}
		metaFlags, err := r.U32(order)
		if err != nil {
			return nil, err
		}
		raws[i] = rawNode{
			version: ver, level: level, isArray: isArrByte != 0,
			typeOffset: typeOff, nameOffset: nameOff,
			byteSize: byteSize, index: index, metaFlags: metaFlags,
		}
		if ver >= 19 {
			b, err := r.ReadBytes(8)
			if err != nil {
				return nil, err
			}
			copy(raws[i].refHash[:], b)
			raws[i].hasRefHash = true
		}
	}

	strBuf, err := r.ReadBytes(int(strBufSize))
	if err != nil {
		return nil, err
	}
	resolve := func(off uint32) string {
		if off&strtab.HighBit != 0 {
			if s, ok := strtab.Lookup(off &^ strtab.HighBit); ok {
				return s
			}
			return ""
		}
		end := off
		for end < uint32(len(strBuf)) && strBuf[end] != 0 {
			end++
		}
		if int(off) > len(strBuf) {
			return ""
		}
		return string(strBuf[off:end])
	}

	tree := make(TypeTree, nodeCount)
	for i, rn := range raws {
		tree[i] = TypeTreeNode{
			TypeName:    resolve(rn.typeOffset),
			FieldName:   resolve(rn.nameOffset),
			ByteSize:    rn.byteSize,
			Index:       rn.index,
			Version:     rn.version,
			MetaFlags:   rn.metaFlags,
			Level:       rn.level,
			RefTypeHash: rn.refHash,
			HasTypeHash: rn.hasRefHash,
		}
		if rn.isArray {
			tree[i].TypeFlags = 1
		}
	}
	return tree, nil
}

func (p *parser) objectTable() error {
	r := p.r
	order := p.order
	v := p.sf.Version

	count, err := r.U32(order)
	if err != nil {
		return err
	}
	objs := make([]Object, count)
	for i := range objs {
		if err := r.Align(4, false); err != nil {
			return err
		}
		var o Object
		if v >= 14 {
			pid, err := r.I64(order)
			if err != nil {
				return err
			}
			o.PathID = pid
		} else {
			pid, err := r.I32(order)
			if err != nil {
				return err
			}
			o.PathID = int64(pid)
		}

		if v >= 22 {
			s, err := r.I64(order)
			if err != nil {
				return err
			}
			o.ByteStart = s
		} else {
			s, err := r.U32(order)
			if err != nil {
				return err
			}
			o.ByteStart = int64(s) + p.dataOffset
		}

		byteSize, err := r.U32(order)
		if err != nil {
			return err
		}
		o.ByteSize = byteSize

		typeID, err := r.I32(order)
		if err != nil {
			return err
		}
		o.TypeID = typeID

		if v < 16 {
			classID, err := r.I32(order)
			if err != nil {
				return err
			}
			o.ClassID = classID
		}
		if v >= 11 && v <= 16 {
			isDestroyed, err := r.U16(order)
			if err != nil {
				return err
			}
			o.IsDestroyed = isDestroyed
		}
		if v >= 17 {
			sti, err := r.I16(order)
			if err != nil {
				return err
			}
			o.ScriptTypeIndex = sti
		}
		objs[i] = o
	}
	p.sf.Objects = objs
	return nil
}

func (p *parser) scriptRefs() error {
	r := p.r
	order := p.order
	v := p.sf.Version

	count, err := r.U32(order)
	if err != nil {
		return err
	}
	refs := make([]ScriptRef, count)
	for i := range refs {
		if err := r.Align(4, false); err != nil {
			return err
		}
		fid, err := r.I32(order)
		if err != nil {
			return err
		}
		var pid int64
		if v >= 14 {
			pid, err = r.I64(order)
		} else {
			var p32 int32
			p32, err = r.I32(order)
			pid = int64(p32)
		}
		if err != nil {
			return err
		}
		refs[i] = ScriptRef{FileID: fid, PathID: pid}
	}
	p.sf.ScriptRefs = refs
	return nil
}

func (p *parser) externalRefs() error {
	r := p.r
	order := p.order
	v := p.sf.Version

	count, err := r.U32(order)
	if err != nil {
		return err
	}
	refs := make([]ExternalRef, count)
	for i := range refs {
		var e ExternalRef
		if v >= 6 {
			s, err := r.ReadUTF8NulTerminated(0)
			if err != nil {
				return err
			}
			e.AssetPath = s
		}
		if v >= 5 {
			b, err := r.ReadBytes(16)
			if err != nil {
				return err
			}
			copy(e.GUID[:], b)
			typ, err := r.I32(order)
			if err != nil {
				return err
			}
			e.Type = typ
		}
		s, err := r.ReadUTF8NulTerminated(0)
		if err != nil {
			return err
		}
		e.PathName = s
		refs[i] = e
	}
	p.sf.ExternalRefs = refs
	return nil
}

// refTypes consumes the ref-type table (version >= 20): identical shape
// to a type-table entry plus three trailing strings identifying the
// referenced class.
func (p *parser) refTypes(enableTypeTree bool) error {
	r := p.r
	order := p.order

	count, err := r.U32(order)
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		if _, err := p.readOneType(enableTypeTree); err != nil {
			return err
		}
		for j := 0; j < 3; j++ {
			if _, err := r.ReadUTF8NulTerminated(0); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReadPPtr reads a PPtr using this file's version-dependent path_id width,
// then aligns the reader to 4 bytes.
func (sf *SerializedFile) ReadPPtr(r *binreader.Reader, order binary.ByteOrder) (PPtr, error) {
	fid, err := r.I32(order)
	if err != nil {
		return PPtr{}, err
	}
	var pid int64
	if sf.Version >= 14 {
		pid, err = r.I64(order)
	} else {
		var p32 int32
		p32, err = r.I32(order)
		pid = int64(p32)
	}
	if err != nil {
		return PPtr{}, err
	}
	if err := r.Align(4, false); err != nil {
		return PPtr{}, err
	}
	return PPtr{FileID: fid, PathID: pid}, nil
}

// SliceFor returns the byte range for obj, sliced from the start of the
// whole SerializedFile (obj.ByteStart is an absolute file offset).
func (sf *SerializedFile) SliceFor(obj Object) ([]byte, error) {
	if obj.ByteStart < 0 || obj.ByteStart+int64(obj.ByteSize) > int64(len(sf.data)) {
		return nil, uaerr.New("serialize.SliceFor", uaerr.ObjectOutOfRange,
			fmt.Sprintf("path_id=%d start=%d size=%d", obj.PathID, obj.ByteStart, obj.ByteSize), nil)
	}
	return sf.data[obj.ByteStart : obj.ByteStart+int64(obj.ByteSize)], nil
}

// ByPathID looks up an object by its PathID within this file.
func (sf *SerializedFile) ByPathID(id int64) (Object, bool) {
	i, ok := sf.byIndex[id]
	if !ok {
		return Object{}, false
	}
	return sf.Objects[i], true
}

// ObjectsByClass yields every object of the given ClassID, in directory
// order, restartable across calls.
func (sf *SerializedFile) ObjectsByClass(classID int32) iter.Seq[Object] {
	idx := sf.byClass[classID]
	return func(yield func(Object) bool) {
		for _, i := range idx {
			if !yield(sf.Objects[i]) {
				return
			}
		}
	}
}

// ByteOrder reports the byte order metadata and object bytes are encoded
// in for this file.
func (sf *SerializedFile) ByteOrder() binary.ByteOrder {
	if sf.BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}
