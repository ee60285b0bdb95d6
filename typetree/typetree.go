// Package typetree interprets a [serialize.TypeTree] against a byte slice
// to produce a dynamic, self-describing value tree. It is the fallback
// decoder used when no strong, format-specific decoder (such as
// package mesh) matches an object's class.
package typetree

import (
	"encoding/binary"
	"fmt"

	"github.com/quay/unityasset/binreader"
	"github.com/quay/unityasset/serialize"
	"github.com/quay/unityasset/uaerr"
)

// Kind tags the dynamic shape of a decoded Value.
type Kind int

const (
	KindPrimitive Kind = iota
	KindString
	KindArray
	KindStruct
)

// Value is a tagged union produced by Decode. Field order in Fields
// matches declaration order in the type tree, preserved for downstream
// lookup by name.
type Value struct {
	Kind      Kind
	TypeName  string
	FieldName string
	Prim      any // valid when Kind == KindPrimitive
	Str       string
	Array     []Value
	Fields    []Value // valid when Kind == KindStruct; each entry's FieldName is set
}

// Field looks up an immediate struct field by name. Returns the zero
// Value and false if absent or v is not a struct.
func (v Value) Field(name string) (Value, bool) {
	for _, f := range v.Fields {
		if f.FieldName == name {
			return f, true
		}
	}
	return Value{}, false
}

// Decode interprets tree against r starting at the current position,
// using order for multi-byte fields.
func Decode(r *binreader.Reader, tree serialize.TypeTree, order binary.ByteOrder) (Value, error) {
	if len(tree) == 0 {
		return Value{}, uaerr.New("typetree.Decode", uaerr.InvalidArgument, "empty type tree", nil)
	}
	d := &decoder{r: r, tree: tree, order: order}
	v, _, err := d.node(0)
	return v, err
}

type decoder struct {
	r     *binreader.Reader
	tree  serialize.TypeTree
	order binary.ByteOrder
}

// node decodes the node at index i and returns the value plus the index
// of the next sibling (i.e. one past this node's subtree).
func (d *decoder) node(i int) (Value, int, error) {
	n := d.tree[i]
	children := d.childIndices(i)

	var v Value
	var err error
	switch {
	case n.TypeName == "string":
		v, err = d.string(i, children)
	case isArrayNode(d.tree, i, children):
		v, err = d.array(i, children)
	case len(children) == 0:
		v, err = d.primitive(n)
	default:
		v, err = d.structValue(i, children)
	}
	if err != nil {
		return Value{}, 0, err
	}
	v.TypeName = n.TypeName
	v.FieldName = n.FieldName

	if n.AlignAfter() {
		if err := d.r.Align(4, false); err != nil {
			return Value{}, 0, err
		}
	}

	next := i + 1
	if len(children) > 0 {
		next = d.subtreeEnd(children[len(children)-1])
	}
	return v, next, nil
}

// childIndices returns the immediate children of node i: consecutive
// entries at level+1 that follow i, up to (but not including) the next
// entry at level <= tree[i].Level.
func (d *decoder) childIndices(i int) []int {
	level := d.tree[i].Level
	var out []int
	for j := i + 1; j < len(d.tree); j++ {
		if d.tree[j].Level <= level {
			break
		}
		if d.tree[j].Level == level+1 {
			out = append(out, j)
		}
	}
	return out
}

// subtreeEnd returns the index one past the full subtree rooted at i.
func (d *decoder) subtreeEnd(i int) int {
	level := d.tree[i].Level
	j := i + 1
	for j < len(d.tree) && d.tree[j].Level > level {
		j++
	}
	return j
}

// isArrayNode recognizes the "size: SInt32, data: <elem>" child pair
// Unity uses to mark a dynamic array, either directly on this node or
// via a single "Array" child (the pre-5 vector<T> encoding).
func isArrayNode(tree serialize.TypeTree, i int, children []int) bool {
	if hasSizeData(tree, children) {
		return true
	}
	if len(children) == 1 && tree[children[0]].TypeName == "Array" {
		return true
	}
	return false
}

func hasSizeData(tree serialize.TypeTree, children []int) bool {
	if len(children) != 2 {
		return false
	}
	return tree[children[0]].FieldName == "size" && tree[children[1]].FieldName == "data"
}

func (d *decoder) primitive(n serialize.TypeTreeNode) (Value, error) {
	p, err := readPrimitive(d.r, n.TypeName, d.order)
	if err != nil {
		return Value{}, err
	}
	return Value{Kind: KindPrimitive, Prim: p}, nil
}

// string reads "string"'s length-prefixed-Array<char> encoding directly;
// its size/data children describe the same bytes and are not re-read.
func (d *decoder) string(i int, children []int) (Value, error) {
	s, err := d.r.ReadLengthPrefixedString(d.order)
	if err != nil {
		return Value{}, err
	}
	return Value{Kind: KindString, Str: s}, nil
}

func (d *decoder) array(i int, children []int) (Value, error) {
	n := d.tree[i]
	var elemIdx int
	if len(children) == 1 && d.tree[children[0]].TypeName == "Array" {
		// pre-5 vector<T>: one level of indirection before size/data.
		grand := d.childIndices(children[0])
		if !hasSizeData(d.tree, grand) {
			return Value{}, uaerr.New("typetree.array", uaerr.InvalidArgument,
				fmt.Sprintf("malformed array node %q", n.FieldName), nil)
		}
		elemIdx = grand[1]
	} else {
		elemIdx = children[1]
	}

	size, err := d.r.I32(d.order)
	if err != nil {
		return Value{}, err
	}
	if size < 0 {
		return Value{}, uaerr.New("typetree.array", uaerr.InvalidArgument,
			fmt.Sprintf("negative array size %d", size), nil)
	}
	out := make([]Value, 0, size)
	for k := int32(0); k < size; k++ {
		ev, _, err := d.node(elemIdx)
		if err != nil {
			return Value{}, err
		}
		out = append(out, ev)
	}
	return Value{Kind: KindArray, Array: out}, nil
}

func (d *decoder) structValue(i int, children []int) (Value, error) {
	fields := make([]Value, 0, len(children))
	remaining := d.tree[i].ByteSize
	startPos := d.r.Pos()
	for _, c := range children {
		fv, _, err := d.node(c)
		if err != nil {
			return Value{}, err
		}
		fields = append(fields, fv)
	}
	// When the parent declares a nonzero cumulative byte size and we
	// under-consumed (a field type this decoder doesn't model), skip
	// ahead so sibling decoding stays in sync.
	if remaining > 0 {
		consumed := d.r.Pos() - startPos
		if want := int(remaining); want > consumed {
			if _, err := d.r.ReadBytes(want - consumed); err != nil {
				return Value{}, err
			}
		}
	}
	return Value{Kind: KindStruct, Fields: fields}, nil
}

func readPrimitive(r *binreader.Reader, typeName string, order binary.ByteOrder) (any, error) {
	switch typeName {
	case "bool", "char", "UInt8", "SInt8":
		v, err := r.U8()
		if err != nil {
			return nil, err
		}
		if typeName == "bool" {
			return v != 0, nil
		}
		if typeName == "SInt8" {
			return int8(v), nil
		}
		return v, nil
	case "SInt16", "short":
		return r.I16(order)
	case "UInt16", "unsigned short":
		return r.U16(order)
	case "SInt32", "int":
		return r.I32(order)
	case "UInt32", "unsigned int":
		return r.U32(order)
	case "SInt64", "long long":
		return r.I64(order)
	case "UInt64", "unsigned long long", "FileSize":
		return r.U64(order)
	case "float":
		return r.F32(order)
	case "double":
		return r.F64(order)
	default:
		return nil, uaerr.New("typetree.readPrimitive", uaerr.InvalidArgument,
			fmt.Sprintf("unrecognized primitive type %q", typeName), nil)
	}
}
