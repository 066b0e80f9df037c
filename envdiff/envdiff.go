// Package envdiff implements the pure diff/apply pair used to
// delta-compress a job's environment against a baseline.
package envdiff

// Diff is a (removed-keys, added-or-changed-entries) pair that transforms
// a base environment into a specific environment. removed and the keys of
// changed are always disjoint.
type Diff struct {
	Removed [][]byte
	Changed map[string][]byte
}

// Compute compares base and modified and returns the diff that would
// reconstruct modified from base via Apply.
//
//	removed = keys(base) \ keys(modified)
//	changed = { k -> modified[k] | k in keys(modified), k not in base or base[k] != modified[k] }
func Compute(base, modified map[string][]byte) Diff {
	removed := make([][]byte, 0)

	for k := range base {
		if _, ok := modified[k]; !ok {
			removed = append(removed, []byte(k))
		}
	}

	changed := make(map[string][]byte, len(modified))

	for k, v := range modified {
		baseV, ok := base[k]
		if !ok || !bytesEqual(baseV, v) {
			changed[k] = v
		}
	}

	return Diff{Removed: removed, Changed: changed}
}

// Apply reconstructs a modified environment from base and a Diff.
//
// A removed key absent from base is tolerated silently rather than treated
// as an error: this keeps the decoder forward-compatible with files written
// by a future encoder that diffs differently, at the cost of masking a
// genuinely corrupt removed-key list. See DESIGN.md for the alternative
// (CorruptRecord) that was considered and rejected.
func Apply(base map[string][]byte, diff Diff) map[string][]byte {
	result := make(map[string][]byte, len(base)+len(diff.Changed))
	for k, v := range base {
		result[k] = v
	}

	for _, k := range diff.Removed {
		delete(result, string(k))
	}

	for k, v := range diff.Changed {
		result[k] = v
	}

	return result
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}
