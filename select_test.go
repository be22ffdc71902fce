package flexijoin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectAtomicPlanAutoPrefersHash(t *testing.T) {
	pl, err := selectPlan(ByKey("K"), DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, ModeHash, pl.mode)
	assert.False(t, pl.isAnchored())
}

func TestSelectAtomicPlanFallsBackToSort(t *testing.T) {
	pl, err := selectPlan(ByPred("T", OpLT, "T"), DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, ModeSort, pl.mode)
}

func TestSelectAtomicPlanNestedLoopOnlyViaPin(t *testing.T) {
	_, err := selectPlan(ByPred("T", OpSubset, "T"), DefaultOptions())
	require.Error(t, err)

	pinned := ModeNestedLoop
	opts := DefaultOptions()
	opts.Mode = &pinned
	pl, err := selectPlan(ByPred("T", OpSubset, "T"), opts)
	require.NoError(t, err)
	assert.Equal(t, ModeNestedLoop, pl.mode)
}

func TestSelectAtomicPlanRejectsUnsupportedPin(t *testing.T) {
	pinned := ModeTree
	opts := DefaultOptions()
	opts.Mode = &pinned
	_, err := selectPlan(ByKey("K"), opts)
	require.Error(t, err)
	var cfgErr *ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestSelectCompositePlanPicksHashAnchor(t *testing.T) {
	comp := And(ByKey("K"), ByPred("T", OpLT, "T"))
	pl, err := selectPlan(comp, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, ModeHash, pl.mode)
	require.True(t, pl.isAnchored())
	_, isKey := pl.anchor.(*ByKeyCondition)
	assert.True(t, isKey)
	assert.Len(t, pl.filters, 1)
}

func TestSelectCompositePlanFallsBackToNestedLoop(t *testing.T) {
	comp := And(NotSame(), ByExpr("left.x == right.x"))
	pl, err := selectPlan(comp, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, ModeNestedLoop, pl.mode)
	assert.False(t, pl.isAnchored())
}

func TestSelectCompositePlanSortChainWhenAssumeSorted(t *testing.T) {
	comp := And(ByPred("T", OpLT, "T"), NotSame())
	opts := DefaultOptions()
	opts.AssumeSorted = true
	pinned := ModeSortChain
	opts.Mode = &pinned
	pl, err := selectPlan(comp, opts)
	require.NoError(t, err)
	assert.Equal(t, ModeSortChain, pl.mode)
	require.True(t, pl.isAnchored())
}
