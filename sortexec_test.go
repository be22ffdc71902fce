package flexijoin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSortIndexOrdersByValue(t *testing.T) {
	r := NewSliceSide([]timed{{T: 9}, {T: 1}, {T: 5}})
	si := buildSortIndex(r, FieldOf("T"))
	assert.Equal(t, []any{1, 5, 9}, si.vals)
	assert.Equal(t, []any{1, 2, 0}, si.keys)
}

func TestBuildSortChainIndexPreservesOrder(t *testing.T) {
	r := NewSliceSide([]timed{{T: 1}, {T: 5}, {T: 9}})
	si := buildSortChainIndex(r, FieldOf("T"))
	assert.Equal(t, []any{0, 1, 2}, si.keys)
}

func TestSortIndexCandidateRangeByKey(t *testing.T) {
	r := NewSliceSide([]named{{Name: "A"}, {Name: "A"}, {Name: "B"}})
	si := buildSortIndex(r, FieldOf("Name"))
	lo, hi, err := si.candidateRange(ByKey("Name"), named{Name: "A"})
	require.NoError(t, err)
	assert.Equal(t, 2, hi-lo)
}

func TestSortIndexCandidateRangeOrderedOps(t *testing.T) {
	r := NewSliceSide([]timed{{T: 1}, {T: 4}, {T: 6}, {T: 9}})
	si := buildSortIndex(r, FieldOf("T"))

	cond := ByPred("T", OpLT, "T")
	lo, hi, err := si.candidateRange(cond, timed{T: 5})
	require.NoError(t, err)
	assert.Equal(t, []any{2, 3}, si.keys[lo:hi])

	cond2 := ByPred("T", OpGT, "T")
	lo, hi, err = si.candidateRange(cond2, timed{T: 5})
	require.NoError(t, err)
	assert.Equal(t, []any{0, 1}, si.keys[lo:hi])
}

func TestSortClosestOrderedDirection(t *testing.T) {
	keys := []any{0, 1, 2}
	c := &ByPredCondition{Op: OpLT}
	assert.Equal(t, []any{0}, sortClosest(c, keys, nil, nil))

	c2 := &ByPredCondition{Op: OpGT}
	assert.Equal(t, []any{2}, sortClosest(c2, keys, nil, nil))
}

func TestSortClosestEmptyInput(t *testing.T) {
	c := &ByPredCondition{Op: OpLT}
	assert.Empty(t, sortClosest(c, nil, nil, nil))
}
