package unityasset

import "github.com/quay/unityasset/serialize"

// ObjectKey identifies an object uniquely within an [AssetContext]: the
// SerializedFile it belongs to plus its PathID.
type ObjectKey struct {
	File   string
	PathID int64
}

// ObjectRef is the result of resolving a [serialize.PPtr]: the
// SerializedFile and Object it points at. An ObjectRef is only valid
// for the lifetime of the AssetContext that produced it; nothing in
// this package holds a raw back-pointer into another file.
type ObjectRef struct {
	File   *serialize.SerializedFile
	Object serialize.Object
}

// GameObject is the semantic decoding of a Unity GameObject: its name
// and the PPtrs to its attached components (Transform, MeshFilter,
// MeshRenderer, ...).
type GameObject struct {
	Name       string
	Components []serialize.PPtr
}

// Transform is the semantic decoding of a Unity Transform: local SRT
// plus the PPtrs that thread the scene-graph hierarchy together.
//
// Reconstructing the actual hierarchy (walking Father/Children) is left
// to the consuming rendering stage; this package exposes the pointers
// and lets [AssetContext.Resolve] do the lookup.
type Transform struct {
	LocalPosition [3]float32
	LocalRotation [4]float32
	LocalScale    [3]float32
	GameObject    serialize.PPtr
	Father        serialize.PPtr
	Children      []serialize.PPtr
}
