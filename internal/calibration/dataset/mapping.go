package dataset

import "sort"

// Mapping associates world object ids with image object ids. A world id
// maps to at most one image id.
type Mapping map[string]string

// Keys returns the world ids in ascending order. Every traversal of a
// mapping goes through Keys so derived state is deterministic.
func (m Mapping) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns an independent copy of m. Cloning nil yields an empty
// mapping.
func (m Mapping) Clone() Mapping {
	out := make(Mapping, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// HasImage reports whether any world id maps to imageID.
func (m Mapping) HasImage(imageID string) bool {
	for _, v := range m {
		if v == imageID {
			return true
		}
	}
	return false
}

// MergeMappings returns explicit overlaid with extension: when a world id
// appears in both, the extension's image id wins.
func MergeMappings(explicit, extension Mapping) Mapping {
	merged := explicit.Clone()
	for k, v := range extension {
		merged[k] = v
	}
	return merged
}
