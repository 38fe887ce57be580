// Package merge applies incremental delta trees onto canonical topic state.
//
// The upstream feed sends only changed leaves per frame. Consumers fold
// every delta over an initial snapshot in arrival order, so later deltas
// win on conflicting leaves and the operation is deliberately not
// commutative.
package merge

import (
	"sort"
	"strconv"
)

// DeletedKey marks entries to remove from a collection before the rest
// of a patch is applied.
const DeletedKey = "_deleted"

// Merge applies delta onto base and returns the mutated base. Callers
// must treat the return value as the new canonical state; an empty delta
// is a no-op and keys present only in base are never dropped.
func Merge(base, delta map[string]any) map[string]any {
	if base == nil {
		base = make(map[string]any, len(delta))
	}
	for key, dv := range delta {
		bv, ok := base[key]
		if !ok {
			base[key] = dv
			continue
		}
		base[key] = mergeValue(bv, dv)
	}
	return base
}

// mergeValue dispatches on the concrete shape pair of one base/delta node.
func mergeValue(base, delta any) any {
	dm, ok := delta.(map[string]any)
	if !ok {
		// Scalar replace. Also covers wholesale sequence replacement
		// when the delta carries a full list instead of an index patch.
		return delta
	}

	switch bv := base.(type) {
	case map[string]any:
		return Merge(bv, dm)
	case []any:
		if isIndexPatch(dm) {
			return applyIndexPatch(bv, dm)
		}
		return delta
	default:
		return delta
	}
}

// isIndexPatch reports whether m addresses list positions: every key is a
// non-negative integer string, apart from the reserved deletion key.
func isIndexPatch(m map[string]any) bool {
	if len(m) == 0 {
		return false
	}
	for key := range m {
		if key == DeletedKey {
			continue
		}
		n, err := strconv.Atoi(key)
		if err != nil || n < 0 {
			return false
		}
	}
	return true
}

// applyIndexPatch merges an index-addressed patch into a list: the list
// becomes an index-keyed map, entries named under DeletedKey are removed,
// the remainder is merged recursively, and the survivors are linearized
// again preserving index order.
func applyIndexPatch(list []any, patch map[string]any) []any {
	entries := make(map[int]any, len(list))
	for i, v := range list {
		entries[i] = v
	}

	if raw, ok := patch[DeletedKey]; ok {
		for _, idx := range deletedIndices(raw) {
			delete(entries, idx)
		}
	}

	for key, dv := range patch {
		if key == DeletedKey {
			continue
		}
		idx, _ := strconv.Atoi(key)
		if cur, ok := entries[idx]; ok {
			entries[idx] = mergeValue(cur, dv)
		} else {
			entries[idx] = dv
		}
	}

	indices := make([]int, 0, len(entries))
	for idx := range entries {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	out := make([]any, 0, len(indices))
	for _, idx := range indices {
		out = append(out, entries[idx])
	}
	return out
}

// deletedIndices normalizes a DeletedKey value to integer indices. The
// feed encodes them as a list of strings; numbers are tolerated.
func deletedIndices(raw any) []int {
	items, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([]int, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case string:
			if n, err := strconv.Atoi(v); err == nil {
				out = append(out, n)
			}
		case float64:
			out = append(out, int(v))
		}
	}
	return out
}
