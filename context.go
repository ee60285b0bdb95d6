package unityasset

import (
	"strings"
	"sync"

	"github.com/quay/unityasset/container"
	"github.com/quay/unityasset/mesh"
	"github.com/quay/unityasset/serialize"
	"github.com/quay/unityasset/uaerr"
)

// AssetContext is the write-once aggregator populated during a parse:
// it collects containers, serialized files, and decoded semantic
// objects, and resolves cross-file PPtr references between them.
//
// Mutation (the Add* methods) is confined to the parse phase and
// serialized by mu; once a parse completes, readers may inspect the
// context concurrently without locking, though the exported read
// methods still take the lock so an AssetContext remains safe to use
// even while a parse is still running on another goroutine (as with
// [ParseBatch]).
type AssetContext struct {
	mu sync.RWMutex

	containers      []*container.Container
	serializedFiles map[string]*serialize.SerializedFile
	sfOrder         []string

	gameObjects map[ObjectKey]*GameObject
	transforms  map[ObjectKey]*Transform
	meshes      map[ObjectKey]*mesh.DecodedMesh

	warnings []uaerr.Warning
}

// NewAssetContext returns an empty AssetContext ready to accumulate the
// results of one parse.
func NewAssetContext() *AssetContext {
	return &AssetContext{
		serializedFiles: make(map[string]*serialize.SerializedFile),
		gameObjects:     make(map[ObjectKey]*GameObject),
		transforms:      make(map[ObjectKey]*Transform),
		meshes:          make(map[ObjectKey]*mesh.DecodedMesh),
	}
}

// AddContainer records a parsed container.
func (ac *AssetContext) AddContainer(c *container.Container) {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	ac.containers = append(ac.containers, c)
}

// AddSerializedFile records a parsed SerializedFile, keyed by its
// SourceName (the entry/container name it was parsed from).
func (ac *AssetContext) AddSerializedFile(sf *serialize.SerializedFile) {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	if _, exists := ac.serializedFiles[sf.SourceName]; !exists {
		ac.sfOrder = append(ac.sfOrder, sf.SourceName)
	}
	ac.serializedFiles[sf.SourceName] = sf
}

// AddWarning records a recoverable condition without aborting the parse.
func (ac *AssetContext) AddWarning(w uaerr.Warning) {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	ac.warnings = append(ac.warnings, w)
	warningsTotal.WithLabelValues(w.Code).Inc()
}

// AddWarnings records every entry in ws.
func (ac *AssetContext) AddWarnings(ws []uaerr.Warning) {
	for _, w := range ws {
		ac.AddWarning(w)
	}
}

// addGameObject and addTransform are unexported: they're populated only
// by this package's own semantic decode pass (see decode.go), never by
// an external caller, so there's no exported Add* counterpart.
func (ac *AssetContext) addGameObject(k ObjectKey, g *GameObject) {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	ac.gameObjects[k] = g
}

func (ac *AssetContext) addTransform(k ObjectKey, t *Transform) {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	ac.transforms[k] = t
}

func (ac *AssetContext) addMesh(k ObjectKey, m *mesh.DecodedMesh) {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	ac.meshes[k] = m
}

// SerializedFile returns the SerializedFile previously added under
// name, if any.
func (ac *AssetContext) SerializedFile(name string) (*serialize.SerializedFile, bool) {
	ac.mu.RLock()
	defer ac.mu.RUnlock()
	sf, ok := ac.serializedFiles[name]
	return sf, ok
}

// SerializedFiles returns every parsed SerializedFile, in the order
// they were added.
func (ac *AssetContext) SerializedFiles() []*serialize.SerializedFile {
	ac.mu.RLock()
	defer ac.mu.RUnlock()
	out := make([]*serialize.SerializedFile, 0, len(ac.sfOrder))
	for _, name := range ac.sfOrder {
		out = append(out, ac.serializedFiles[name])
	}
	return out
}

// Containers returns every parsed container, in add order.
func (ac *AssetContext) Containers() []*container.Container {
	ac.mu.RLock()
	defer ac.mu.RUnlock()
	out := make([]*container.Container, len(ac.containers))
	copy(out, ac.containers)
	return out
}

// Warnings returns every recorded warning, in add order.
func (ac *AssetContext) Warnings() []uaerr.Warning {
	ac.mu.RLock()
	defer ac.mu.RUnlock()
	out := make([]uaerr.Warning, len(ac.warnings))
	copy(out, ac.warnings)
	return out
}

// Mesh returns the decoded mesh for the object at key, if one was
// decoded.
func (ac *AssetContext) Mesh(key ObjectKey) (*mesh.DecodedMesh, bool) {
	ac.mu.RLock()
	defer ac.mu.RUnlock()
	m, ok := ac.meshes[key]
	return m, ok
}

// GameObject returns the decoded GameObject at key, if one was decoded.
func (ac *AssetContext) GameObject(key ObjectKey) (*GameObject, bool) {
	ac.mu.RLock()
	defer ac.mu.RUnlock()
	g, ok := ac.gameObjects[key]
	return g, ok
}

// Transform returns the decoded Transform at key, if one was decoded.
func (ac *AssetContext) Transform(key ObjectKey) (*Transform, bool) {
	ac.mu.RLock()
	defer ac.mu.RUnlock()
	t, ok := ac.transforms[key]
	return t, ok
}

// Resolve looks up the Object a PPtr names: file_id 0 is a same-file
// lookup by PathID; any other value indexes current.ExternalRefs
// (1-based) and is matched to a known SerializedFile by path name.
func (ac *AssetContext) Resolve(pptr serialize.PPtr, current *serialize.SerializedFile) (ObjectRef, bool) {
	if pptr.FileID == 0 {
		obj, ok := current.ByPathID(pptr.PathID)
		if !ok {
			return ObjectRef{}, false
		}
		return ObjectRef{File: current, Object: obj}, true
	}

	idx := int(pptr.FileID) - 1
	if idx < 0 || idx >= len(current.ExternalRefs) {
		return ObjectRef{}, false
	}
	ref := current.ExternalRefs[idx]

	ac.mu.RLock()
	target := ac.matchExternal(ref)
	ac.mu.RUnlock()
	if target == nil {
		return ObjectRef{}, false
	}
	obj, ok := target.ByPathID(pptr.PathID)
	if !ok {
		return ObjectRef{}, false
	}
	return ObjectRef{File: target, Object: obj}, true
}

// matchExternal finds the SerializedFile whose SourceName best matches
// an ExternalRef's PathName/AssetPath. Unity external references carry
// a full editor-relative path, while SourceName is usually just the
// container entry's base name, so matching falls back to a suffix
// comparison. Caller holds ac.mu.
func (ac *AssetContext) matchExternal(ref serialize.ExternalRef) *serialize.SerializedFile {
	for _, name := range []string{ref.PathName, ref.AssetPath} {
		if name == "" {
			continue
		}
		if sf, ok := ac.serializedFiles[name]; ok {
			return sf
		}
	}
	for _, name := range ac.sfOrder {
		if ref.PathName != "" && strings.HasSuffix(ref.PathName, name) {
			return ac.serializedFiles[name]
		}
		if ref.AssetPath != "" && strings.HasSuffix(ref.AssetPath, name) {
			return ac.serializedFiles[name]
		}
	}
	return nil
}
