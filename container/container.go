// Package container parses the outer envelope formats a Unity asset
// payload may arrive in: a UnityFS bundle, a legacy UnityWeb/UnityRaw
// bundle, a raw SerializedFile, or a POSIX ustar ".unitypackage" archive.
//
// It decompresses UnityFS blocks and exposes the result as a set of
// named, logically contiguous Entries; it does not itself interpret
// SerializedFile contents (see package serialize).
package container

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"runtime/trace"
	"strings"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/quay/zlog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/quay/unityasset/binreader"
	"github.com/quay/unityasset/compress"
	"github.com/quay/unityasset/uaerr"
)

// Kind identifies the detected container format.
type Kind int

const (
	KindUnknown Kind = iota
	KindUnityFS
	KindSerializedFile
	KindUnityPackageTar
	KindUnityWeb
	KindUnityRaw
)

func (k Kind) String() string {
	switch k {
	case KindUnityFS:
		return "UnityFS"
	case KindSerializedFile:
		return "SerializedFile"
	case KindUnityPackageTar:
		return "UnityPackageTar"
	case KindUnityWeb:
		return "UnityWeb"
	case KindUnityRaw:
		return "UnityRaw"
	default:
		return "Unknown"
	}
}

// Entry is a named byte region within a Container.
type Entry struct {
	Name string
	Data []byte
}

// Container is the parsed envelope: a set of named entries plus whatever
// version metadata the envelope carried.
type Container struct {
	Kind          Kind
	SourceName    string
	Entries       []Entry
	UnityVersion  string
	UnityRevision string
}

var (
	magicUnityFS  = []byte("UnityFS\x00")
	magicUnityWeb = []byte("UnityWeb")
	magicUnityRaw = []byte("UnityRaw")
	magicGzip     = []byte{0x1f, 0x8b}
	magicZstd     = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// Parse detects the envelope format from data's leading bytes and parses
// it. sourceName is used only for diagnostics and in returned warnings.
func Parse(ctx context.Context, sourceName string, data []byte) (*Container, []uaerr.Warning, error) {
	ctx = zlog.ContextWithValues(ctx, "component", "container.Parse", "source", sourceName)
	ctx, task := trace.NewTask(ctx, "container.Parse")
	defer task.End()

	ctx, span := otel.Tracer("github.com/quay/unityasset/container").Start(ctx, "Parse",
		oteltrace.WithAttributes(attribute.String("source", sourceName)))
	defer span.End()

	switch {
	case bytes.HasPrefix(data, magicUnityFS):
		return parseUnityFS(ctx, sourceName, data)
	case bytes.HasPrefix(data, magicUnityWeb):
		return parseLegacy(sourceName, data, KindUnityWeb)
	case bytes.HasPrefix(data, magicUnityRaw):
		return parseLegacy(sourceName, data, KindUnityRaw)
	case looksLikeTar(data):
		return parseUnityPackage(ctx, sourceName, data)
	case bytes.HasPrefix(data, magicGzip):
		gz, err := gunzip(data)
		if err != nil {
			return nil, nil, uaerr.New("container.Parse", uaerr.ContainerMalformed, "gzip envelope", err)
		}
		return Parse(ctx, sourceName, gz)
	case bytes.HasPrefix(data, magicZstd):
		// Some asset pipelines ship .unitypackage as a zstd-compressed
		// ustar stream rather than gzip; accepted opportunistically even
		// though UnityFS block compression itself never uses zstd.
		un, err := unzstd(data)
		if err != nil {
			return nil, nil, uaerr.New("container.Parse", uaerr.ContainerMalformed, "zstd envelope", err)
		}
		return Parse(ctx, sourceName, un)
	default:
		return &Container{Kind: KindSerializedFile, SourceName: sourceName, Entries: []Entry{{Name: sourceName, Data: data}}}, nil, nil
	}
}

func gunzip(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

func unzstd(data []byte) ([]byte, error) {
	zr, err := zstd.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

// looksLikeTar checks for a POSIX ustar magic at the conventional offset
// within the first 512-byte block.
func looksLikeTar(data []byte) bool {
	const ustarOffset = 257
	if len(data) < ustarOffset+5 {
		return false
	}
	return bytes.Equal(data[ustarOffset:ustarOffset+5], []byte("ustar"))
}

func parseLegacy(sourceName string, data []byte, kind Kind) (*Container, []uaerr.Warning, error) {
	return &Container{
		Kind:       kind,
		SourceName: sourceName,
		Entries:    []Entry{{Name: sourceName, Data: data}},
	}, nil, nil
}

// unityFSHeader is the big-endian fixed portion of a UnityFS header.
type unityFSHeader struct {
	version                    uint32
	unityVersion               string
	unityRevision              string
	fileSize                   int64
	compressedBlocksInfoSize   uint32
	uncompressedBlocksInfoSize uint32
	flags                      uint32
}

const (
	flagCompressionMask    = 0x3F
	flagBlocksInfoAtEnd    = 0x40
	flagBlocksInfoCombined = 0x80
)

func parseUnityFS(ctx context.Context, sourceName string, data []byte) (*Container, []uaerr.Warning, error) {
	const op = "container.parseUnityFS"
	r := binreader.New(data)

	if _, err := r.ReadBytes(len(magicUnityFS)); err != nil {
		return nil, nil, uaerr.New(op, uaerr.ContainerMalformed, "truncated signature", err)
	}
	var h unityFSHeader
	var err error
	if h.version, err = r.U32(binary.BigEndian); err != nil {
		return nil, nil, uaerr.New(op, uaerr.ContainerMalformed, "header", err)
	}
	if h.unityVersion, err = r.ReadUTF8NulTerminated(0); err != nil {
		return nil, nil, uaerr.New(op, uaerr.ContainerMalformed, "unity_version", err)
	}
	if h.unityRevision, err = r.ReadUTF8NulTerminated(0); err != nil {
		return nil, nil, uaerr.New(op, uaerr.ContainerMalformed, "unity_revision", err)
	}
	if h.fileSize, err = r.I64(binary.BigEndian); err != nil {
		return nil, nil, uaerr.New(op, uaerr.ContainerMalformed, "file_size", err)
	}
	if h.compressedBlocksInfoSize, err = r.U32(binary.BigEndian); err != nil {
		return nil, nil, uaerr.New(op, uaerr.ContainerMalformed, "compressed_blocks_info_size", err)
	}
	if h.uncompressedBlocksInfoSize, err = r.U32(binary.BigEndian); err != nil {
		return nil, nil, uaerr.New(op, uaerr.ContainerMalformed, "uncompressed_blocks_info_size", err)
	}
	if h.flags, err = r.U32(binary.BigEndian); err != nil {
		return nil, nil, uaerr.New(op, uaerr.ContainerMalformed, "flags", err)
	}

	if h.version >= 7 {
		if err := r.Align(16, false); err != nil {
			return nil, nil, uaerr.New(op, uaerr.ContainerMalformed, "post-header alignment", err)
		}
	}

	var blocksInfoRaw []byte
	if h.flags&flagBlocksInfoCombined != 0 {
		blocksInfoRaw, err = r.ReadBytes(int(h.compressedBlocksInfoSize))
		if err != nil {
			return nil, nil, uaerr.New(op, uaerr.ContainerMalformed, "blocks-info (combined)", err)
		}
	} else if h.flags&flagBlocksInfoAtEnd != 0 {
		if int(h.compressedBlocksInfoSize) > len(data) {
			return nil, nil, uaerr.New(op, uaerr.ContainerMalformed, "blocks-info (tail) exceeds file length", nil)
		}
		blocksInfoRaw = data[len(data)-int(h.compressedBlocksInfoSize):]
	} else {
		blocksInfoRaw, err = r.ReadBytes(int(h.compressedBlocksInfoSize))
		if err != nil {
			return nil, nil, uaerr.New(op, uaerr.ContainerMalformed, "blocks-info", err)
		}
	}

	blocksInfo, err := compress.Decompress(blocksInfoRaw, int64(h.uncompressedBlocksInfoSize), compress.Method(h.flags&flagCompressionMask))
	if err != nil {
		return nil, nil, uaerr.New(op, uaerr.ContainerMalformed, "blocks-info decompression", err)
	}

	bi := binreader.New(blocksInfo)
	if _, err := bi.ReadBytes(16); err != nil { // content hash
		return nil, nil, uaerr.New(op, uaerr.ContainerMalformed, "blocks-info content hash", err)
	}
	blockCount, err := bi.U32(binary.BigEndian)
	if err != nil {
		return nil, nil, uaerr.New(op, uaerr.ContainerMalformed, "block count", err)
	}
	type blockDesc struct {
		uncompressedSize uint32
		compressedSize   uint32
		flags            uint16
	}
	blocks := make([]blockDesc, blockCount)
	for i := range blocks {
		u, err := bi.U32(binary.BigEndian)
		if err != nil {
			return nil, nil, uaerr.New(op, uaerr.ContainerMalformed, "block uncompressed size", err)
		}
		c, err := bi.U32(binary.BigEndian)
		if err != nil {
			return nil, nil, uaerr.New(op, uaerr.ContainerMalformed, "block compressed size", err)
		}
		fl, err := bi.U16(binary.BigEndian)
		if err != nil {
			return nil, nil, uaerr.New(op, uaerr.ContainerMalformed, "block flags", err)
		}
		blocks[i] = blockDesc{u, c, fl}
	}

	nodeCount, err := bi.U32(binary.BigEndian)
	if err != nil {
		return nil, nil, uaerr.New(op, uaerr.ContainerMalformed, "node count", err)
	}
	type nodeDesc struct {
		offset int64
		size   int64
		flags  uint32
		path   string
	}
	nodes := make([]nodeDesc, nodeCount)
	for i := range nodes {
		off, err := bi.I64(binary.BigEndian)
		if err != nil {
			return nil, nil, uaerr.New(op, uaerr.ContainerMalformed, "node offset", err)
		}
		size, err := bi.I64(binary.BigEndian)
		if err != nil {
			return nil, nil, uaerr.New(op, uaerr.ContainerMalformed, "node size", err)
		}
		fl, err := bi.U32(binary.BigEndian)
		if err != nil {
			return nil, nil, uaerr.New(op, uaerr.ContainerMalformed, "node flags", err)
		}
		path, err := bi.ReadUTF8NulTerminated(0)
		if err != nil {
			return nil, nil, uaerr.New(op, uaerr.ContainerMalformed, "node path", err)
		}
		nodes[i] = nodeDesc{off, size, fl, path}
	}

	// Blocks must decompress strictly sequentially: node offsets address
	// the logical concatenation of all blocks' plaintext.
	var logical bytes.Buffer
	cur := data[r.Pos():]
	for i, b := range blocks {
		if int(b.compressedSize) > len(cur) {
			return nil, nil, uaerr.New(op, uaerr.ContainerMalformed,
				fmt.Sprintf("block %d compressed size exceeds remaining input", i), nil)
		}
		chunk, err := compress.Decompress(cur[:b.compressedSize], int64(b.uncompressedSize), compress.Method(b.flags&flagCompressionMask))
		if err != nil {
			return nil, nil, uaerr.New(op, uaerr.ContainerMalformed, fmt.Sprintf("block %d", i), err)
		}
		logical.Write(chunk)
		cur = cur[b.compressedSize:]
	}
	logicalBytes := logical.Bytes()

	var warnings []uaerr.Warning
	entries := make([]Entry, 0, len(nodes))
	for _, n := range nodes {
		if n.offset < 0 || n.offset+n.size > int64(len(logicalBytes)) {
			warnings = append(warnings, uaerr.NewWarning(uaerr.ContainerMalformed,
				fmt.Sprintf("node %q offset/size out of range of decompressed stream", n.path)))
			continue
		}
		entries = append(entries, Entry{Name: n.path, Data: logicalBytes[n.offset : n.offset+n.size]})
	}

	return &Container{
		Kind:          KindUnityFS,
		SourceName:    sourceName,
		Entries:       entries,
		UnityVersion:  h.unityVersion,
		UnityRevision: h.unityRevision,
	}, warnings, nil
}

// parseUnityPackage parses a (possibly gzip-wrapped, handled by the
// caller) ".unitypackage" POSIX ustar stream: a flat sequence of 512-byte
// block records, assets grouped by GUID directory as "<guid>/asset",
// "<guid>/asset.meta", and "<guid>/pathname".
func parseUnityPackage(ctx context.Context, sourceName string, data []byte) (*Container, []uaerr.Warning, error) {
	const op = "container.parseUnityPackage"
	tr := tar.NewReader(bytes.NewReader(data))

	type asset struct {
		data     []byte
		pathname string
	}
	byGUID := make(map[string]*asset)
	var order []string
	var warnings []uaerr.Warning

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, uaerr.New(op, uaerr.ContainerMalformed, "ustar stream", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		parts := strings.SplitN(strings.TrimPrefix(hdr.Name, "./"), "/", 2)
		if len(parts) != 2 {
			continue
		}
		guid, rest := parts[0], parts[1]
		if _, err := uuid.Parse(guid); err != nil {
			warnings = append(warnings, uaerr.NewWarning(uaerr.ContainerMalformed,
				fmt.Sprintf("entry %q: not a GUID directory", hdr.Name)))
			continue
		}
		a, ok := byGUID[guid]
		if !ok {
			a = &asset{}
			byGUID[guid] = a
			order = append(order, guid)
		}
		switch rest {
		case "asset":
			buf, err := io.ReadAll(tr)
			if err != nil {
				return nil, nil, uaerr.New(op, uaerr.ContainerMalformed, "reading asset payload", err)
			}
			a.data = buf
		case "pathname":
			buf, err := io.ReadAll(tr)
			if err != nil {
				return nil, nil, uaerr.New(op, uaerr.ContainerMalformed, "reading pathname", err)
			}
			a.pathname = strings.TrimRight(string(buf), "\n\x00")
		case "asset.meta":
			// metadata, not a decodable asset payload; skipped.
		}
	}

	entries := make([]Entry, 0, len(order))
	for _, guid := range order {
		a := byGUID[guid]
		if a.data == nil {
			continue
		}
		name := a.pathname
		if name == "" {
			name = guid
		}
		entries = append(entries, Entry{Name: name, Data: a.data})
	}

	zlog.Debug(ctx).Int("assets", len(entries)).Msg("parsed unitypackage")
	return &Container{Kind: KindUnityPackageTar, SourceName: sourceName, Entries: entries}, warnings, nil
}
