// Package unityasset deserializes Unity asset containers: UnityFS
// bundles, raw SerializedFiles, and .unitypackage tar archives. It
// aggregates the results of the binreader, compress, container,
// serialize, typetree, packedbits, and mesh packages into an
// [AssetContext] — a write-once-then-read-many collection of containers,
// serialized files, and decoded objects, with cross-file PPtr resolution.
//
// The output is meant to be consumed by a separate rendering/export
// stage; this package does not itself produce glTF, textures, or any
// other renderer-facing artifact.
package unityasset
