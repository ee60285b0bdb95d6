// Package mesh decodes Unity Mesh objects: channel/stream vertex layouts,
// index buffer unpacking, submesh topology expansion, and reconstruction of
// compressed vertex streams via package packedbits.
//
// Decode operates on the generic [typetree.Value] produced for a Mesh
// object rather than re-reading raw bytes, since the exact field order of
// a serialized Mesh varies by Unity version in ways the embedded type tree
// already resolves; the work specific to this package is the semantic
// reconstruction layered on top: channel strides, packed-float expansion,
// and topology expansion.
package mesh

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/quay/unityasset/packedbits"
	"github.com/quay/unityasset/typetree"
	"github.com/quay/unityasset/uaerr"
)

// Topology names a submesh's primitive assembly mode.
type Topology int32

const (
	Triangles Topology = iota
	TriangleStrip
	Quads
	Lines
	LineStrip
	Points
)

// ChannelInfo describes one vertex attribute channel (Unity >= 5 layout).
type ChannelInfo struct {
	Stream    uint8
	Offset    uint8
	Format    uint8
	Dimension uint8
}

// StreamInfo describes one vertex stream (pre-Unity-4 layout).
type StreamInfo struct {
	ChannelMask uint32
	Offset      uint32
	Stride      uint32
	DividerOp   uint8
	Frequency   uint16
}

// AABB is an axis-aligned bounding box, center plus extent.
type AABB struct {
	Center [3]float32
	Extent [3]float32
}

// SubMesh is a contiguous index range rendered as one primitive group.
type SubMesh struct {
	FirstByte   uint32
	IndexCount  uint32
	Topology    Topology
	BaseVertex  uint32
	FirstVertex uint32
	VertexCount uint32
	LocalAABB   *AABB
}

// CompressedMesh holds the reconstructed arrays from a mesh's
// compressed_mesh block, already unpacked via packedbits.
type CompressedMesh struct {
	Vertices     [][3]float32
	UV           [][2]float32
	Normals      [][3]float32
	Tangents     [][4]float32 // xyz + handedness sign in [3]
	Triangles    []uint32
	Colors       []float32
	Weights      []float32
	BoneIndices  []int32
}

// DecodedMesh is the fully reconstructed mesh: either VertexData+Channels
// or Compressed is populated, per the format's invariant.
type DecodedMesh struct {
	Name            string
	SubMeshes       []SubMesh
	VertexCount     uint32
	Use16BitIndices bool
	Indices         []uint32
	Channels        []ChannelInfo
	Streams         []StreamInfo
	VertexData      []byte
	Compressed      *CompressedMesh
	BindPoses       [][16]float32
	BoneNameHashes  []uint32
}

// formatSizes maps Unity's VertexFormat enum (Unity >= 2017.2) to its
// per-component byte size.
var formatSizes = map[uint8]int{
	0: 4, // Float32
	1: 2, // Float16
	2: 1, // UNorm8
	3: 1, // SNorm8
	4: 2, // UNorm16
	5: 2, // SNorm16
	6: 1, // UInt8
	7: 1, // SInt8
	8: 2, // UInt16
	9: 2, // SInt16
	10: 4, // UInt32
	11: 4, // SInt32
}

// FormatSize returns the byte size of one component of the given
// VertexFormat. Unknown formats return 0, which callers treat as a
// stride of 0 for the owning channel (skip-with-warning, per Decode).
func FormatSize(format uint8) int {
	return formatSizes[format]
}

// Decode reconstructs a DecodedMesh from a Mesh object already decoded
// generically via typetree.Decode.
func Decode(v typetree.Value, unityVersion string, order binary.ByteOrder) (*DecodedMesh, []uaerr.Warning, error) {
	const op = "mesh.Decode"
	var warnings []uaerr.Warning

	m := &DecodedMesh{Name: fieldString(v, "m_Name")}

	if subMeshes, ok := v.Field("m_SubMeshes"); ok {
		for _, sv := range subMeshes.Array {
			m.SubMeshes = append(m.SubMeshes, decodeSubMesh(sv))
		}
	}

	m.Use16BitIndices = decideIndexWidth(v, unityVersion)

	vc, _ := fieldValue(v, "m_VertexData")
	if vc.Kind == typetree.KindStruct {
		if vcCount, ok := vc.Field("m_VertexCount"); ok {
			m.VertexCount = toUint32(vcCount.Prim)
		}
		if channels, ok := vc.Field("m_Channels"); ok {
			for _, cv := range channels.Array {
				ch := ChannelInfo{
					Stream:    uint8(toUint32(fieldPrim(cv, "stream"))),
					Offset:    uint8(toUint32(fieldPrim(cv, "offset"))),
					Format:    uint8(toUint32(fieldPrim(cv, "format"))),
					Dimension: uint8(toUint32(fieldPrim(cv, "dimension"))),
				}
				m.Channels = append(m.Channels, ch)
			}
		}
		if streams, ok := vc.Field("m_Streams"); ok {
			for _, sv := range streams.Array {
				m.Streams = append(m.Streams, decodeStreamInfo(sv))
			}
		}
		for _, name := range []string{"_typelessdata", "m_DataSize"} {
			if data, ok := vc.Field(name); ok {
				m.VertexData = bytesFromValue(data)
				break
			}
		}
	}

	// Unity < 4: streams are explicit and channels are derived from
	// each stream's channel_mask bit set, assigning cumulative offsets.
	if len(m.Channels) == 0 && len(m.Streams) > 0 {
		m.Channels = channelsFromLegacyStreams(m.Streams)
	}

	if idxBuf, ok := v.Field("m_IndexBuffer"); ok {
		raw := bytesFromValue(idxBuf)
		indices, err := unpackIndices(raw, m.Use16BitIndices, order)
		if err != nil {
			return nil, warnings, uaerr.New(op, uaerr.InvalidArgument, "index buffer", err)
		}
		m.Indices = indices
	}

	if cmv, ok := v.Field("m_CompressedMesh"); ok && cmv.Kind == typetree.KindStruct {
		cm, warns, err := decodeCompressedMesh(cmv)
		if err != nil {
			return nil, warnings, err
		}
		warnings = append(warnings, warns...)
		m.Compressed = cm
	}

	if bp, ok := v.Field("m_BindPose"); ok {
		for _, row := range bp.Array {
			m.BindPoses = append(m.BindPoses, matrixFromValue(row))
		}
	}
	if bnh, ok := v.Field("m_BoneNameHashes"); ok {
		for _, e := range bnh.Array {
			m.BoneNameHashes = append(m.BoneNameHashes, toUint32(e.Prim))
		}
	}

	if m.VertexData == nil && m.Compressed == nil {
		return nil, warnings, uaerr.New(op, uaerr.MeshMissingVertexData, "neither vertex_data nor compressed_mesh present", nil)
	}

	for i, ch := range m.Channels {
		if int(ch.Stream) >= len(streamStrides(m)) {
			continue
		}
		if streamStrides(m)[ch.Stream] == 0 {
			warnings = append(warnings, uaerr.NewWarning(uaerr.InvalidArgument,
				fmt.Sprintf("channel %d references zero-stride stream %d, skipped", i, ch.Stream)))
			m.Channels[i].Dimension = 0
		}
	}

	return m, warnings, nil
}

func decodeSubMesh(v typetree.Value) SubMesh {
	sm := SubMesh{
		FirstByte:   toUint32(fieldPrim(v, "firstByte")),
		IndexCount:  toUint32(fieldPrim(v, "indexCount")),
		Topology:    Topology(toInt32(fieldPrim(v, "topology"))),
		BaseVertex:  toUint32(fieldPrim(v, "baseVertex")),
		FirstVertex: toUint32(fieldPrim(v, "firstVertex")),
		VertexCount: toUint32(fieldPrim(v, "vertexCount")),
	}
	if aabb, ok := v.Field("localAABB"); ok {
		box := &AABB{}
		if c, ok := aabb.Field("m_Center"); ok {
			box.Center = vec3FromValue(c)
		}
		if e, ok := aabb.Field("m_Extent"); ok {
			box.Extent = vec3FromValue(e)
		}
		sm.LocalAABB = box
	}
	return sm
}

func decodeStreamInfo(v typetree.Value) StreamInfo {
	return StreamInfo{
		ChannelMask: toUint32(fieldPrim(v, "channelMask")),
		Offset:      toUint32(fieldPrim(v, "offset")),
		Stride:      toUint32(fieldPrim(v, "stride")),
		DividerOp:   uint8(toUint32(fieldPrim(v, "dividerOp"))),
		Frequency:   uint16(toUint32(fieldPrim(v, "frequency"))),
	}
}

// channelsFromLegacyStreams derives ChannelInfo entries from pre-Unity-4
// explicit StreamInfo.channel_mask bit sets, assigning per-channel offsets
// by cumulative size within the owning stream.
func channelsFromLegacyStreams(streams []StreamInfo) []ChannelInfo {
	var out []ChannelInfo
	for streamIdx, s := range streams {
		var offset uint8
		for bit := uint8(0); bit < 32; bit++ {
			if s.ChannelMask&(1<<bit) == 0 {
				continue
			}
			dim := uint8(legacyChannelDimension(bit))
			format := uint8(0) // legacy streams default to Float32 components
			out = append(out, ChannelInfo{
				Stream:    uint8(streamIdx),
				Offset:    offset,
				Format:    format,
				Dimension: dim,
			})
			offset += uint8(FormatSize(format)) * dim
		}
	}
	return out
}

// legacyChannelDimension gives the conventional component count for each
// of the fixed pre-Unity-4 channel slots (position, normal, color, uv0,
// uv1, tangent).
func legacyChannelDimension(bit uint8) int {
	switch bit {
	case 0, 1: // kShaderChannelVertex, kShaderChannelNormal
		return 3
	case 2: // kShaderChannelColor
		return 4
	case 3, 4: // kShaderChannelTexCoord0/1
		return 2
	case 5: // kShaderChannelTangent
		return 4
	default:
		return 1
	}
}

func streamStrides(m *DecodedMesh) []int {
	if len(m.Streams) > 0 {
		out := make([]int, len(m.Streams))
		for i, s := range m.Streams {
			out[i] = int(s.Stride)
		}
		return out
	}
	maxStream := -1
	for _, ch := range m.Channels {
		if ch.Dimension == 0 {
			continue
		}
		if int(ch.Stream) > maxStream {
			maxStream = int(ch.Stream)
		}
	}
	if maxStream < 0 {
		return nil
	}
	out := make([]int, maxStream+1)
	for _, ch := range m.Channels {
		if ch.Dimension == 0 {
			continue
		}
		out[ch.Stream] += FormatSize(ch.Format) * int(ch.Dimension)
	}
	return out
}

// decideIndexWidth implements the index_format/use_16bit_indices
// detection rule: Unity >= 2017.4 carries an explicit index_format field
// (0 => 16-bit, 1 => 32-bit); earlier versions carry a use_16bit_indices
// bool directly.
func decideIndexWidth(v typetree.Value, unityVersion string) bool {
	if fmtVal, ok := v.Field("m_IndexFormat"); ok {
		return toInt32(fmtVal.Prim) == 0
	}
	if use16, ok := v.Field("m_Use16BitIndices"); ok {
		switch p := use16.Prim.(type) {
		case bool:
			return p
		default:
			return toUint32(p) != 0
		}
	}
	return versionAtLeast(unityVersion, 3, 5) // legacy default: 16-bit until explicit opt-out existed
}

func unpackIndices(raw []byte, use16Bit bool, order binary.ByteOrder) ([]uint32, error) {
	width := 4
	if use16Bit {
		width = 2
	}
	if len(raw)%width != 0 {
		return nil, fmt.Errorf("mesh: index buffer length %d not a multiple of %d", len(raw), width)
	}
	n := len(raw) / width
	out := make([]uint32, n)
	for i := 0; i < n; i++ {
		if use16Bit {
			out[i] = uint32(order.Uint16(raw[i*2:]))
		} else {
			out[i] = order.Uint32(raw[i*4:])
		}
	}
	return out, nil
}

// GetTriangles expands sm's index range against indices into a flat list
// of triangles (each a [3]uint32), per the submesh's topology.
func GetTriangles(indices []uint32, sm SubMesh, use16Bit bool) [][3]uint32 {
	width := 4
	if use16Bit {
		width = 2
	}
	first := int(sm.FirstByte) / width
	count := int(sm.IndexCount)
	if first+count > len(indices) {
		count = len(indices) - first
	}
	if count < 0 {
		count = 0
	}
	window := indices[first : first+count]

	var out [][3]uint32
	switch sm.Topology {
	case Triangles:
		for i := 0; i+3 <= len(window); i += 3 {
			out = append(out, [3]uint32{window[i], window[i+1], window[i+2]})
		}
	case TriangleStrip:
		for i := 0; i+2 < len(window); i++ {
			a, b, c := window[i], window[i+1], window[i+2]
			if a == b || b == c || a == c {
				continue
			}
			if i%2 == 0 {
				out = append(out, [3]uint32{a, b, c})
			} else {
				out = append(out, [3]uint32{b, a, c})
			}
		}
	case Quads:
		for i := 0; i+3 < len(window); i += 4 {
			a, b, c, d := window[i], window[i+1], window[i+2], window[i+3]
			out = append(out, [3]uint32{a, b, c}, [3]uint32{a, c, d})
		}
	default:
		// Lines, LineStrip, Points are not expanded into triangles.
	}
	return out
}

func decodeCompressedMesh(v typetree.Value) (*CompressedMesh, []uaerr.Warning, error) {
	const op = "mesh.decodeCompressedMesh"
	var warnings []uaerr.Warning
	cm := &CompressedMesh{}

	vertPBV, err := pbvField(v, "m_Vertices")
	if err != nil {
		return nil, nil, uaerr.New(op, uaerr.InvalidArgument, "m_Vertices", err)
	}
	if vertPBV != nil {
		floats, err := vertPBV.UnpackFloats(0, int(vertPBV.NumItems))
		if err != nil {
			return nil, nil, uaerr.New(op, uaerr.InvalidArgument, "unpack vertices", err)
		}
		cm.Vertices = group3(floats)
	}

	uvPBV, err := pbvField(v, "m_UV")
	if err != nil {
		return nil, nil, uaerr.New(op, uaerr.InvalidArgument, "m_UV", err)
	}
	if uvPBV != nil {
		floats, err := uvPBV.UnpackFloats(0, int(uvPBV.NumItems))
		if err != nil {
			return nil, nil, uaerr.New(op, uaerr.InvalidArgument, "unpack uv", err)
		}
		cm.UV = group2(floats)
	}

	normPBV, err := pbvField(v, "m_Normals")
	if err != nil {
		return nil, nil, uaerr.New(op, uaerr.InvalidArgument, "m_Normals", err)
	}
	if normPBV != nil {
		signsPBV, _ := pbvField(v, "m_NormalSigns")
		normals, err := unpackSignExpandedXYZ(normPBV, signsPBV)
		if err != nil {
			return nil, nil, uaerr.New(op, uaerr.InvalidArgument, "unpack normals", err)
		}
		cm.Normals = normals
	}

	tanPBV, err := pbvField(v, "m_Tangents")
	if err != nil {
		return nil, nil, uaerr.New(op, uaerr.InvalidArgument, "m_Tangents", err)
	}
	if tanPBV != nil {
		signsPBV, _ := pbvField(v, "m_TangentSigns")
		xyz, err := unpackSignExpandedXYZ(tanPBV, signsPBV)
		if err != nil {
			return nil, nil, uaerr.New(op, uaerr.InvalidArgument, "unpack tangents", err)
		}
		handedness, _ := pbvField(v, "m_TangentSigns")
		var hSign []float32
		if handedness != nil {
			hSign, _ = handedness.UnpackFloats(0, len(xyz))
		}
		cm.Tangents = make([][4]float32, len(xyz))
		for i, n := range xyz {
			w := float32(1)
			if i < len(hSign) && hSign[i] < 0 {
				w = -1
			}
			cm.Tangents[i] = [4]float32{n[0], n[1], n[2], w}
		}
	}

	triPBV, err := pbvField(v, "m_Triangles")
	if err != nil {
		return nil, nil, uaerr.New(op, uaerr.InvalidArgument, "m_Triangles", err)
	}
	if triPBV != nil {
		ints, err := triPBV.UnpackInts(0, int(triPBV.NumItems))
		if err != nil {
			return nil, nil, uaerr.New(op, uaerr.InvalidArgument, "unpack triangles", err)
		}
		cm.Triangles = ints
	}

	if colorPBV, err := pbvField(v, "m_FloatColors"); err == nil && colorPBV != nil {
		cm.Colors, err = colorPBV.UnpackFloats(0, int(colorPBV.NumItems))
		if err != nil {
			return nil, nil, uaerr.New(op, uaerr.InvalidArgument, "unpack colors", err)
		}
	}
	if weightPBV, err := pbvField(v, "m_Weights"); err == nil && weightPBV != nil {
		cm.Weights, err = weightPBV.UnpackFloats(0, int(weightPBV.NumItems))
		if err != nil {
			return nil, nil, uaerr.New(op, uaerr.InvalidArgument, "unpack weights", err)
		}
	}
	if boneIdxPBV, err := pbvField(v, "m_BoneIndices"); err == nil && boneIdxPBV != nil {
		ints, err := boneIdxPBV.UnpackInts(0, int(boneIdxPBV.NumItems))
		if err != nil {
			return nil, nil, uaerr.New(op, uaerr.InvalidArgument, "unpack bone indices", err)
		}
		cm.BoneIndices = make([]int32, len(ints))
		for i, u := range ints {
			cm.BoneIndices[i] = int32(u)
		}
	}

	return cm, warnings, nil
}

// unpackSignExpandedXYZ reconstructs 3-component unit vectors from two
// packed components (x, y) plus a separately packed sign bit vector: z is
// derived as sqrt(max(0, 1 - x^2 - y^2)), negated when the sign bit is set.
func unpackSignExpandedXYZ(xy *packedbits.PackedBitVector, signs *packedbits.PackedBitVector) ([][3]float32, error) {
	n := int(xy.NumItems) / 2
	floats, err := xy.UnpackFloats(0, n*2)
	if err != nil {
		return nil, err
	}
	var signBits []uint32
	if signs != nil {
		signBits, err = signs.UnpackInts(0, n)
		if err != nil {
			return nil, err
		}
	}
	out := make([][3]float32, n)
	for i := 0; i < n; i++ {
		x, y := floats[i*2], floats[i*2+1]
		zsq := 1 - x*x - y*y
		if zsq < 0 {
			zsq = 0
		}
		z := float32(math.Sqrt(float64(zsq)))
		if i < len(signBits) && signBits[i] != 0 {
			z = -z
		}
		out[i] = [3]float32{x, y, z}
	}
	return out, nil
}

func group3(floats []float32) [][3]float32 {
	out := make([][3]float32, len(floats)/3)
	for i := range out {
		out[i] = [3]float32{floats[i*3], floats[i*3+1], floats[i*3+2]}
	}
	return out
}

func group2(floats []float32) [][2]float32 {
	out := make([][2]float32, len(floats)/2)
	for i := range out {
		out[i] = [2]float32{floats[i*2], floats[i*2+1]}
	}
	return out
}

func pbvField(v typetree.Value, name string) (*packedbits.PackedBitVector, error) {
	fv, ok := v.Field(name)
	if !ok || fv.Kind != typetree.KindStruct {
		return nil, nil
	}
	numItems := toUint32(fieldPrim(fv, "m_NumItems"))
	if numItems == 0 {
		return nil, nil
	}
	rng := toFloat32(fieldPrim(fv, "m_Range"))
	start := toFloat32(fieldPrim(fv, "m_Start"))
	bitSize := uint8(toUint32(fieldPrim(fv, "m_BitSize")))
	dataField, _ := fv.Field("m_Data")
	data := bytesFromValue(dataField)
	return packedbits.New(numItems, rng, start, data, bitSize), nil
}

func vec3FromValue(v typetree.Value) [3]float32 {
	return [3]float32{
		toFloat32(fieldPrim(v, "x")),
		toFloat32(fieldPrim(v, "y")),
		toFloat32(fieldPrim(v, "z")),
	}
}

func matrixFromValue(v typetree.Value) [16]float32 {
	var out [16]float32
	if v.Kind == typetree.KindArray {
		for i, e := range v.Array {
			if i >= 16 {
				break
			}
			out[i] = toFloat32(e.Prim)
		}
	}
	return out
}

func bytesFromValue(v typetree.Value) []byte {
	if v.Kind != typetree.KindArray {
		return nil
	}
	out := make([]byte, len(v.Array))
	for i, e := range v.Array {
		out[i] = byte(toUint32(e.Prim))
	}
	return out
}

func fieldValue(v typetree.Value, name string) (typetree.Value, bool) { return v.Field(name) }

func fieldPrim(v typetree.Value, name string) any {
	fv, ok := v.Field(name)
	if !ok {
		return nil
	}
	return fv.Prim
}

func fieldString(v typetree.Value, name string) string {
	fv, ok := v.Field(name)
	if !ok {
		return ""
	}
	return fv.Str
}

func toUint32(a any) uint32 {
	switch n := a.(type) {
	case uint32:
		return n
	case int32:
		return uint32(n)
	case uint16:
		return uint32(n)
	case int16:
		return uint32(n)
	case uint8:
		return uint32(n)
	case int8:
		return uint32(n)
	case uint64:
		return uint32(n)
	case int64:
		return uint32(n)
	case bool:
		if n {
			return 1
		}
		return 0
	default:
		return 0
	}
}

func toInt32(a any) int32 { return int32(toUint32(a)) }

func toFloat32(a any) float32 {
	switch n := a.(type) {
	case float32:
		return n
	case float64:
		return float32(n)
	default:
		return 0
	}
}

// versionAtLeast reports whether unityVersion (e.g. "2017.4.1f1") is at
// least major.minor, comparing only the leading dot-separated numeric
// components and ignoring any trailing release-tag suffix.
func versionAtLeast(unityVersion string, major, minor int) bool {
	parts := strings.SplitN(unityVersion, ".", 3)
	if len(parts) < 2 {
		return false
	}
	gotMajor, err1 := strconv.Atoi(parts[0])
	gotMinor, err2 := strconv.Atoi(onlyDigits(parts[1]))
	if err1 != nil || err2 != nil {
		return false
	}
	if gotMajor != major {
		return gotMajor > major
	}
	return gotMinor >= minor
}

func onlyDigits(s string) string {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	return s[:i]
}
