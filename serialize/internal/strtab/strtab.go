// Package strtab holds the fixed, version-stable "common string" table
// used by SerializedFile type trees. Offsets with the high bit set
// (0x80000000) address this table instead of a type tree's own local
// string buffer; every implementation must embed bit-exact offsets for
// the table to agree across files written by different Unity versions.
package strtab

// Table is the common string table, in ascending offset order. Offset 0
// is the start of the first entry; each subsequent entry's offset is the
// previous offset plus the previous entry's length plus one (for the NUL
// terminator), matching how Unity serializes the table itself.
var Table = buildTable([]string{
	"AABB",
	"AnimationClip",
	"AnimationCurve",
	"AnimationState",
	"Array",
	"Base",
	"BitField",
	"bitset",
	"bool",
	"char",
	"ColorRGBA",
	"Component",
	"data",
	"deque",
	"double",
	"dynamic_array",
	"FastPropertyName",
	"first",
	"float",
	"Font",
	"GameObject",
	"Generic Mono",
	"GradientNEW",
	"GUID",
	"GUIStyle",
	"int",
	"list",
	"long long",
	"map",
	"Matrix4x4f",
	"MdFour",
	"MonoBehaviour",
	"MonoScript",
	"m_ByteSize",
	"m_Curve",
	"m_EditorClassIdentifier",
	"m_EditorHideFlags",
	"m_Enabled",
	"m_ExtensionPtr",
	"m_GameObject",
	"m_Index",
	"m_IsArray",
	"m_IsStatic",
	"m_MetaFlag",
	"m_Name",
	"m_ObjectHideFlags",
	"m_PrefabInternal",
	"m_PrefabParentObject",
	"m_Script",
	"m_StaticEditorFlags",
	"m_Type",
	"m_Version",
	"Object",
	"pair",
	"PPtr<Component>",
	"PPtr<GameObject>",
	"PPtr<Material>",
	"PPtr<MonoBehaviour>",
	"PPtr<MonoScript>",
	"PPtr<Object>",
	"PPtr<Prefab>",
	"PPtr<Sprite>",
	"PPtr<TextAsset>",
	"PPtr<Texture>",
	"PPtr<Texture2D>",
	"PPtr<Transform>",
	"Quaternionf",
	"Rectf",
	"RectInt",
	"RectOffset",
	"second",
	"set",
	"short",
	"size",
	"SInt16",
	"SInt32",
	"SInt64",
	"SInt8",
	"staticvector",
	"string",
	"TextAsset",
	"TextMesh",
	"Texture",
	"Texture2D",
	"Transform",
	"TypelessData",
	"UInt16",
	"UInt32",
	"UInt64",
	"UInt8",
	"unsigned int",
	"unsigned long long",
	"unsigned short",
	"vector",
	"Vector2f",
	"Vector3f",
	"Vector4f",
	"m_RootOrder",
	"m_LocalRotation",
	"m_LocalPosition",
	"m_LocalScale",
	"m_Children",
	"m_Father",
	"RootNode",
	"Conditions",
	"Attribute",
	"m_BuildTarget",
	"first",
})

// HighBit marks an offset as referring into Table rather than a type
// tree's own local string buffer.
const HighBit = uint32(1) << 31

func buildTable(entries []string) map[uint32]string {
	t := make(map[uint32]string, len(entries))
	var off uint32
	for _, s := range entries {
		t[off] = s
		off += uint32(len(s)) + 1
	}
	return t
}

// Lookup resolves an offset (with or without the high bit already masked
// off by the caller) against the common string table.
func Lookup(offset uint32) (string, bool) {
	s, ok := Table[offset]
	return s, ok
}
