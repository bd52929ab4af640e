package download

import "strings"

// Mapping pairs the remote (client-visible) prefix with the local
// (orchestrator-visible) prefix for the same underlying storage.
type Mapping struct {
	Remote string
	Local  string
}

// PathMapper translates filesystem paths between the orchestrator's view
// and the download client's view, which may differ when the client runs
// in its own container or on a different host mount.
type PathMapper struct {
	mappings     []Mapping
	canonicalRemoteRoot string
	canonicalLocalRoot  string
}

// NewPathMapper builds a mapper from an ordered list of mappings, checked
// longest-prefix-first regardless of input order. canonicalRemoteRoot and
// canonicalLocalRoot are an optional fallback pair used when ToLocal sees a
// remote path no configured mapping covers.
func NewPathMapper(mappings []Mapping, canonicalRemoteRoot, canonicalLocalRoot string) *PathMapper {
	sorted := make([]Mapping, len(mappings))
	copy(sorted, mappings)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && len(sorted[j].Local) > len(sorted[j-1].Local); j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	return &PathMapper{mappings: sorted, canonicalRemoteRoot: canonicalRemoteRoot, canonicalLocalRoot: canonicalLocalRoot}
}

// ToRemote converts a path from the orchestrator's view to the client's
// view, using the longest matching local prefix. Returns the input
// unchanged if no mapping applies.
func (m *PathMapper) ToRemote(localPath string) string {
	for _, mp := range m.mappings {
		if mp.Local != "" && strings.HasPrefix(localPath, mp.Local) {
			return mp.Remote + strings.TrimPrefix(localPath, mp.Local)
		}
	}
	return localPath
}

// ToLocal converts a path from the client's view to the orchestrator's
// view, using the longest matching remote prefix. If nothing matches but a
// canonical root pair is configured, it rewrites under that root instead
// of returning the unmapped remote path verbatim.
func (m *PathMapper) ToLocal(remotePath string) string {
	longestIdx := -1
	for i, mp := range m.mappings {
		if mp.Remote != "" && strings.HasPrefix(remotePath, mp.Remote) {
			if longestIdx == -1 || len(mp.Remote) > len(m.mappings[longestIdx].Remote) {
				longestIdx = i
			}
		}
	}
	if longestIdx >= 0 {
		mp := m.mappings[longestIdx]
		return mp.Local + strings.TrimPrefix(remotePath, mp.Remote)
	}
	if m.canonicalRemoteRoot != "" && strings.HasPrefix(remotePath, m.canonicalRemoteRoot) {
		return m.canonicalLocalRoot + strings.TrimPrefix(remotePath, m.canonicalRemoteRoot)
	}
	return remotePath
}
