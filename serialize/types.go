// Package serialize parses the SerializedFile binary format: the object
// directory, embedded type trees, and script/external references that
// make up a single logical Unity object graph.
package serialize

// PPtr is Unity's cross-file pointer, a (file_id, path_id) pair. file_id
// 0 means the target lives in the same SerializedFile; any other value
// indexes ExternalRefs (1-based).
type PPtr struct {
	FileID int32
	PathID int64
}

// Object describes one entry in a SerializedFile's object directory. Once
// produced by Parse, an Object is immutable for the lifetime of its
// SerializedFile.
type Object struct {
	PathID          int64
	ByteStart       int64
	ByteSize        uint32
	TypeID          int32
	ClassID         int32
	IsDestroyed     uint16
	ScriptTypeIndex int16
}

// TypeTreeNode is one entry in an ordered type tree. Level encodes tree
// depth; siblings are consecutive entries at equal level following a
// parent at level-1.
type TypeTreeNode struct {
	TypeName     string
	FieldName    string
	ByteSize     int32
	Index        int32
	TypeFlags    int32
	Version      int16
	MetaFlags    uint32
	Level        uint8
	RefTypeHash  [16]byte
	HasTypeHash  bool
}

// AlignAfter reports whether this node's value must be followed by
// 4-byte alignment, per the 0x4000 meta-flag bit.
func (n TypeTreeNode) AlignAfter() bool { return n.MetaFlags&0x4000 != 0 }

// TypeTree is an ordered sequence of nodes describing how to interpret an
// object's bytes as a nested value.
type TypeTree []TypeTreeNode

// SerializedType is one entry in a SerializedFile's type table.
type SerializedType struct {
	ClassID         int32
	IsStripped      bool
	ScriptTypeIndex int16
	ScriptID        [16]byte
	HasScriptID     bool
	OldTypeHash     [16]byte
	HasOldTypeHash  bool
	Tree            TypeTree
}

// ScriptRef is a reference to a MonoScript object, present for
// version >= 11.
type ScriptRef struct {
	FileID int32
	PathID int64
}

// ExternalRef names another SerializedFile referenced by PPtrs with a
// non-zero file_id.
type ExternalRef struct {
	AssetPath string
	GUID      [16]byte
	Type      int32
	PathName  string
}

// SerializedFile is the parsed representation of one SerializedFile: its
// header, type trees, object directory, and cross-file references.
//
// A SerializedFile holds its object byte slices by reference into the
// decompressed data buffer owned by its parent container; it does not
// copy object payloads.
type SerializedFile struct {
	SourceName      string
	Version         uint32
	UnityVersion    string
	TargetPlatform  int32
	BigEndian       bool
	Types           []SerializedType
	Objects         []Object
	ScriptRefs      []ScriptRef
	ExternalRefs    []ExternalRef
	UserInformation string

	data      []byte
	byIndex   map[int64]int
	byClass   map[int32][]int
}

// classIDFor resolves an Object's effective ClassID: a non-zero ClassID
// stored per object (version < 16) is used as is; otherwise the ClassID
// is looked up through the type table by TypeID (version >= 16).
func (sf *SerializedFile) classIDFor(obj *Object) int32 {
	if obj.ClassID != 0 {
		return obj.ClassID
	}
	if int(obj.TypeID) >= 0 && int(obj.TypeID) < len(sf.Types) {
		return sf.Types[obj.TypeID].ClassID
	}
	return 0
}
