package unityasset

// Well-known Unity ClassIDs referenced by this package's semantic
// decoders. The numbering is part of Unity's serialized object
// taxonomy and is stable across Editor versions.
const (
	ClassGameObject          int32 = 1
	ClassTransform           int32 = 4
	ClassMaterial            int32 = 21
	ClassMeshRenderer        int32 = 23
	ClassTexture2D           int32 = 28
	ClassMeshFilter          int32 = 33
	ClassMesh                int32 = 43
	ClassShader              int32 = 48
	ClassAnimationClip       int32 = 74
	ClassAnimator            int32 = 95
	ClassMonoBehaviour       int32 = 114
	ClassMonoScript          int32 = 115
	ClassSkinnedMeshRenderer int32 = 137
	ClassAssetBundle         int32 = 142
)
