package unityasset

// Summary is a read-only rollup over an AssetContext: counts of
// containers, serialized files, objects by class, and warnings by
// code. It exists primarily so cmd/unityasset-inspect can print a
// one-screen report without reaching into AssetContext internals.
type Summary struct {
	Containers      int
	SerializedFiles int
	ObjectsByClass  map[int32]int
	WarningsByCode  map[string]int
}

// Summary computes a rollup of ac's current contents.
func (ac *AssetContext) Summary() Summary {
	ac.mu.RLock()
	defer ac.mu.RUnlock()

	s := Summary{
		Containers:      len(ac.containers),
		SerializedFiles: len(ac.sfOrder),
		ObjectsByClass:  make(map[int32]int),
		WarningsByCode:  make(map[string]int),
	}
	for _, name := range ac.sfOrder {
		sf := ac.serializedFiles[name]
		for _, obj := range sf.Objects {
			s.ObjectsByClass[obj.ClassID]++
		}
	}
	for _, w := range ac.warnings {
		s.WarningsByCode[w.Code]++
	}
	return s
}
