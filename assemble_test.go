package flexijoin

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeySetDenseIntFastPath(t *testing.T) {
	ks := newKeySet([]any{0, 1, 2})
	assert.False(t, ks.contains(1))
	ks.add(1)
	assert.True(t, ks.contains(1))
	assert.False(t, ks.contains(0))
}

func TestKeySetMapFallbackForArbitraryKeys(t *testing.T) {
	ks := newKeySet([]any{"a", "b"})
	assert.False(t, ks.contains("a"))
	ks.add("a")
	assert.True(t, ks.contains("a"))
}

func TestReduceMultiForModeFirstLast(t *testing.T) {
	pl := plan{cond: ByKey("K")}
	cands := []any{2, 0, 1}
	assert.Equal(t, []any{0}, reduceMultiForMode(pl, nil, nil, cands, MultiFirst))
	assert.Equal(t, []any{2}, reduceMultiForMode(pl, nil, nil, cands, MultiLast))
}

func TestReduceMultiForModeAllPassesThrough(t *testing.T) {
	pl := plan{cond: ByKey("K")}
	cands := []any{2, 0, 1}
	assert.Equal(t, cands, reduceMultiForMode(pl, nil, nil, cands, MultiAll))
}

func TestReduceMultiForModeEmptyInput(t *testing.T) {
	pl := plan{cond: ByKey("K")}
	assert.Empty(t, reduceMultiForMode(pl, nil, nil, nil, MultiClosest))
}

func TestByValSortsKeysAndValsInLockstep(t *testing.T) {
	keys := []any{0, 1, 2}
	vals := []any{30, 10, 20}
	b := byVal{keys: keys, vals: vals}
	assertSortStable(t, b)
	assert.Equal(t, []any{1, 2, 0}, keys)
	assert.Equal(t, []any{10, 20, 30}, vals)
}

func assertSortStable(t *testing.T, b byVal) {
	t.Helper()
	// simple insertion sort mirroring sort.Sort's contract, to exercise
	// Len/Less/Swap directly without importing sort into the test.
	n := b.Len()
	for i := 1; i < n; i++ {
		for j := i; j > 0 && b.Less(j, j-1); j-- {
			b.Swap(j, j-1)
		}
	}
}
