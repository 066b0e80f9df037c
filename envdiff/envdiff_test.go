package envdiff_test

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/llnl/cram/envdiff"
)

func mapEqual(t *testing.T, want, got map[string][]byte) {
	t.Helper()

	require.Equal(t, len(want), len(got))

	for k, v := range want {
		gv, ok := got[k]
		require.True(t, ok, "missing key %q", k)
		require.Equal(t, v, gv)
	}
}

func TestCompute_EmptyBase(t *testing.T) {
	t.Parallel()

	modified := map[string][]byte{"FOO": []byte("bar"), "BAZ": []byte("quux")}

	diff := envdiff.Compute(map[string][]byte{}, modified)
	require.Empty(t, diff.Removed)
	mapEqual(t, modified, diff.Changed)
}

func TestCompute_RemovedAndChanged(t *testing.T) {
	t.Parallel()

	base := map[string][]byte{
		"PATH":    []byte("/usr/bin"),
		"HOME":    []byte("/home/x"),
		"UNCHANGED": []byte("same"),
	}
	modified := map[string][]byte{
		"HOME":      []byte("/home/y"), // changed
		"UNCHANGED": []byte("same"),    // unchanged
		"NEW":       []byte("added"),   // added
		// PATH removed
	}

	diff := envdiff.Compute(base, modified)

	removedKeys := make([]string, 0, len(diff.Removed))
	for _, k := range diff.Removed {
		removedKeys = append(removedKeys, string(k))
	}

	sort.Strings(removedKeys)
	require.Equal(t, []string{"PATH"}, removedKeys)

	mapEqual(t, map[string][]byte{
		"HOME": []byte("/home/y"),
		"NEW":  []byte("added"),
	}, diff.Changed)

	// removed and changed are disjoint
	for _, k := range diff.Removed {
		_, ok := diff.Changed[string(k)]
		require.False(t, ok)
	}
}

func TestApply_Identity(t *testing.T) {
	t.Parallel()

	bases := []map[string][]byte{
		{},
		{"A": []byte("1")},
		{"A": []byte("1"), "B": []byte("2"), "C": []byte("3")},
	}

	modifieds := []map[string][]byte{
		{},
		{"A": []byte("1")},
		{"A": []byte("2"), "D": []byte("4")},
		{"B": []byte("2"), "C": []byte("3")},
	}

	for _, base := range bases {
		for _, modified := range modifieds {
			diff := envdiff.Compute(base, modified)
			got := envdiff.Apply(base, diff)
			mapEqual(t, modified, got)
		}
	}
}

func TestApply_ToleratesRemovingAbsentKey(t *testing.T) {
	t.Parallel()

	base := map[string][]byte{"A": []byte("1")}
	diff := envdiff.Diff{Removed: [][]byte{[]byte("NOT_PRESENT")}, Changed: map[string][]byte{}}

	got := envdiff.Apply(base, diff)
	mapEqual(t, base, got)
}
