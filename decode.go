package unityasset

import (
	"encoding/binary"
	"fmt"

	"github.com/quay/unityasset/binreader"
	"github.com/quay/unityasset/mesh"
	"github.com/quay/unityasset/serialize"
	"github.com/quay/unityasset/typetree"
	"github.com/quay/unityasset/uaerr"
)

// decodeSemanticObjects runs the strong decoders (mesh) and the generic
// TypeDecoder-backed semantic decoders (GameObject, Transform) over
// every object in sf whose class this package models. Unmodeled
// classes are left untouched; callers reach their bytes via
// [serialize.SerializedFile.SliceFor] and the type tree directly.
func (ac *AssetContext) decodeSemanticObjects(sf *serialize.SerializedFile) {
	order := sf.ByteOrder()

	for _, classID := range []int32{ClassMesh, ClassGameObject, ClassTransform} {
		for obj := range sf.ObjectsByClass(classID) {
			v, err := ac.decodeValue(sf, obj, order)
			if err != nil {
				ac.AddWarning(uaerr.NewWarning(kindOf(err),
					fmt.Sprintf("%s: path_id=%d class_id=%d: %v", sf.SourceName, obj.PathID, obj.ClassID, err)))
				continue
			}

			key := ObjectKey{File: sf.SourceName, PathID: obj.PathID}
			switch classID {
			case ClassMesh:
				dm, warnings, err := mesh.Decode(v, sf.UnityVersion, order)
				ac.AddWarnings(warnings)
				if err != nil {
					ac.AddWarning(uaerr.NewWarning(kindOf(err),
						fmt.Sprintf("%s: mesh path_id=%d: %v", sf.SourceName, obj.PathID, err)))
					continue
				}
				ac.addMesh(key, dm)
			case ClassGameObject:
				ac.addGameObject(key, decodeGameObject(v))
			case ClassTransform:
				ac.addTransform(key, decodeTransform(v))
			}
		}
	}
}

// decodeValue slices obj's bytes out of sf and runs the generic
// TypeDecoder over them using obj's type tree. Objects whose
// SerializedType carries no tree (enable_type_tree was false) cannot be
// decoded generically and are reported as such.
func (ac *AssetContext) decodeValue(sf *serialize.SerializedFile, obj serialize.Object, order binary.ByteOrder) (typetree.Value, error) {
	types := sf.Types
	if obj.TypeID < 0 || int(obj.TypeID) >= len(types) || len(types[obj.TypeID].Tree) == 0 {
		return typetree.Value{}, uaerr.New("unityasset.decodeValue", uaerr.NoTypeTree,
			"no embedded type tree for object", nil)
	}
	tree := types[obj.TypeID].Tree
	data, err := sf.SliceFor(obj)
	if err != nil {
		return typetree.Value{}, err
	}
	return typetree.Decode(binreader.New(data), tree, order)
}

func kindOf(err error) uaerr.ErrorKind {
	if e, ok := uaerr.As(err); ok {
		return e.Kind
	}
	return uaerr.ContainerMalformed
}

func decodeGameObject(v typetree.Value) *GameObject {
	g := &GameObject{Name: fieldString(v, "m_Name")}
	if comps, ok := v.Field("m_Component"); ok {
		for _, entry := range comps.Array {
			// Unity wraps each entry as {first: SInt32, second: PPtr<Component>}.
			if second, ok := entry.Field("second"); ok {
				g.Components = append(g.Components, pptrFromValue(second))
			}
		}
	}
	return g
}

func decodeTransform(v typetree.Value) *Transform {
	t := &Transform{}
	if pos, ok := v.Field("m_LocalPosition"); ok {
		t.LocalPosition = vec3(pos)
	}
	if rot, ok := v.Field("m_LocalRotation"); ok {
		t.LocalRotation = quat(rot)
	}
	if scale, ok := v.Field("m_LocalScale"); ok {
		t.LocalScale = vec3(scale)
	}
	if go_, ok := v.Field("m_GameObject"); ok {
		t.GameObject = pptrFromValue(go_)
	}
	if father, ok := v.Field("m_Father"); ok {
		t.Father = pptrFromValue(father)
	}
	if children, ok := v.Field("m_Children"); ok {
		for _, c := range children.Array {
			t.Children = append(t.Children, pptrFromValue(c))
		}
	}
	return t
}

func pptrFromValue(v typetree.Value) serialize.PPtr {
	var p serialize.PPtr
	if fid, ok := v.Field("m_FileID"); ok {
		p.FileID = toInt32(fid.Prim)
	}
	if pid, ok := v.Field("m_PathID"); ok {
		p.PathID = toInt64(pid.Prim)
	}
	return p
}

func vec3(v typetree.Value) [3]float32 {
	return [3]float32{
		toFloat32(fieldPrim(v, "x")),
		toFloat32(fieldPrim(v, "y")),
		toFloat32(fieldPrim(v, "z")),
	}
}

func quat(v typetree.Value) [4]float32 {
	return [4]float32{
		toFloat32(fieldPrim(v, "x")),
		toFloat32(fieldPrim(v, "y")),
		toFloat32(fieldPrim(v, "z")),
		toFloat32(fieldPrim(v, "w")),
	}
}

func fieldString(v typetree.Value, name string) string {
	f, ok := v.Field(name)
	if !ok {
		return ""
	}
	return f.Str
}

func fieldPrim(v typetree.Value, name string) any {
	f, ok := v.Field(name)
	if !ok {
		return nil
	}
	return f.Prim
}

func toInt32(p any) int32 {
	switch x := p.(type) {
	case int32:
		return x
	case uint32:
		return int32(x)
	default:
		return 0
	}
}

func toInt64(p any) int64 {
	switch x := p.(type) {
	case int64:
		return x
	case uint64:
		return int64(x)
	case int32:
		return int64(x)
	default:
		return 0
	}
}

func toFloat32(p any) float32 {
	f, _ := p.(float32)
	return f
}
