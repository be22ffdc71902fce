package flexijoin

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpSwap(t *testing.T) {
	cases := map[Op]Op{
		OpLT: OpGT, OpLE: OpGE, OpGE: OpLE, OpGT: OpLT,
		OpContains: OpIn, OpIn: OpContains,
		OpSubset: OpSuperset, OpProperSubset: OpProperSuperset,
		OpSuperset: OpSubset, OpProperSuperset: OpProperSubset,
		OpEQ: OpEQ, OpNotDisjoint: OpNotDisjoint,
	}
	for op, want := range cases {
		assert.Equal(t, want, op.swap(), "swap of %s", op)
	}
}

func TestOpOrdered(t *testing.T) {
	assert.True(t, OpLT.ordered())
	assert.True(t, OpContains.ordered())
	assert.False(t, OpSubset.ordered())
	assert.False(t, OpNotDisjoint.ordered())
}

func TestIntervalContains(t *testing.T) {
	iv := Closed(1, 10)
	assert.True(t, intervalContains(iv, 1))
	assert.True(t, intervalContains(iv, 10))
	assert.True(t, intervalContains(iv, 5))
	assert.False(t, intervalContains(iv, 11))

	open := Open(1, 10)
	assert.False(t, intervalContains(open, 1))
	assert.False(t, intervalContains(open, 10))
	assert.True(t, intervalContains(open, 5))
}

func TestIntervalOverlaps(t *testing.T) {
	a := Closed(1, 5)
	b := Closed(5, 10)
	assert.True(t, intervalOverlaps(a, b))

	c := Open(1, 5)
	d := Open(5, 10)
	assert.False(t, intervalOverlaps(c, d))

	e := Closed(10, 20)
	assert.False(t, intervalOverlaps(a, e))
}

func TestIntervalSubset(t *testing.T) {
	inner := Closed(2, 4)
	outer := Closed(1, 5)
	assert.True(t, intervalSubset(inner, outer, false))
	assert.True(t, intervalSubset(inner, outer, true))
	assert.True(t, intervalSubset(outer, outer, false))
	assert.False(t, intervalSubset(outer, outer, true))
	assert.False(t, intervalSubset(outer, inner, false))
}

type kv struct {
	K int
	V string
}

func TestByKeyMatch(t *testing.T) {
	c := ByKey("K")
	ok, err := c.isMatch(matchCtx{recL: kv{K: 1}, recR: kv{K: 1}})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.isMatch(matchCtx{recL: kv{K: 1}, recR: kv{K: 2}})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestByKeyTwoAccessors(t *testing.T) {
	type left struct{ LID int }
	type right struct{ RID int }
	c := ByKey("LID", "RID")
	ok, err := c.isMatch(matchCtx{recL: left{LID: 9}, recR: right{RID: 9}})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestByKeySwap(t *testing.T) {
	c := ByKey("A", "B")
	s := c.swapSelf().(*ByKeyCondition)
	assert.Equal(t, 5, s.FL(map[string]any{"B": 5}))
	assert.Equal(t, 7, s.FR(map[string]any{"A": 7}))
}

func TestByPredOrderedOps(t *testing.T) {
	c := ByPred("V", OpLT, "V")
	ok, err := c.isMatch(matchCtx{recL: map[string]any{"V": 1}, recR: map[string]any{"V": 2}})
	require.NoError(t, err)
	assert.True(t, ok)

	c2 := ByPred("V", OpGE, "V")
	ok, err = c2.isMatch(matchCtx{recL: map[string]any{"V": 2}, recR: map[string]any{"V": 2}})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestByPredContainsAndIn(t *testing.T) {
	contains := ByPred("Range", OpContains, "Point")
	ok, err := contains.isMatch(matchCtx{
		recL: map[string]any{"Range": Closed(0, 10)},
		recR: map[string]any{"Point": 5},
	})
	require.NoError(t, err)
	assert.True(t, ok)

	swapped := contains.swapSelf().(*ByPredCondition)
	assert.Equal(t, OpIn, swapped.Op)
	ok, err = swapped.isMatch(matchCtx{
		recL: map[string]any{"Point": 5},
		recR: map[string]any{"Range": Closed(0, 10)},
	})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestByPredSetRelationOps(t *testing.T) {
	inner := map[string]any{"Span": Closed(2, 4)}
	outer := map[string]any{"Span": Closed(1, 5)}

	subset := ByPred("Span", OpSubset, "Span")
	ok, err := subset.isMatch(matchCtx{recL: inner, recR: outer})
	require.NoError(t, err)
	assert.True(t, ok)

	notDisjoint := ByPred("Span", OpNotDisjoint, "Span")
	ok, err = notDisjoint.isMatch(matchCtx{recL: inner, recR: outer})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestByPredNotIntervalError(t *testing.T) {
	c := ByPred("V", OpContains, "V")
	_, err := c.isMatch(matchCtx{recL: map[string]any{"V": 1}, recR: map[string]any{"V": 2}})
	require.Error(t, err)
	var execErr *ExecutorError
	assert.ErrorAs(t, err, &execErr)
}

func euclid(a, b any) float64 {
	ax, ay := a.([2]float64)[0], a.([2]float64)[1]
	bx, by := b.([2]float64)[0], b.([2]float64)[1]
	return math.Hypot(ax-bx, ay-by)
}

func TestByDistanceMatch(t *testing.T) {
	f := func(r any) any { return r.([2]float64) }
	c := ByDistance(f, euclid, 5, false)
	ok, err := c.isMatch(matchCtx{recL: [2]float64{0, 0}, recR: [2]float64{3, 4}})
	require.NoError(t, err)
	assert.True(t, ok)

	strict := ByDistance(f, euclid, 5, true)
	ok, err = strict.isMatch(matchCtx{recL: [2]float64{0, 0}, recR: [2]float64{3, 4}})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNotSame(t *testing.T) {
	c := NotSame()
	ok, _ := c.isMatch(matchCtx{keyL: 1, keyR: 2})
	assert.True(t, ok)
	ok, _ = c.isMatch(matchCtx{keyL: 1, keyR: 1})
	assert.False(t, ok)
}

func TestCompositeFlattensAndMatches(t *testing.T) {
	var c Condition = And(ByKey("K"), And(NotSame()))
	comp, ok := c.(*CompositeCondition)
	require.True(t, ok)
	assert.Len(t, comp.Children, 2)

	ok2, err := c.isMatch(matchCtx{keyL: 1, keyR: 2, recL: kv{K: 1}, recR: kv{K: 1}})
	require.NoError(t, err)
	assert.True(t, ok2)

	ok3, err := c.isMatch(matchCtx{keyL: 1, keyR: 1, recL: kv{K: 1}, recR: kv{K: 1}})
	require.NoError(t, err)
	assert.False(t, ok3)
}

func TestCompositeSupportedModesRequiresAllChildren(t *testing.T) {
	c := And(ByKey("K"), ByDistance(func(any) any { return 0.0 }, func(a, b any) float64 { return 0 }, 1, false))
	assert.Contains(t, c.supportedModes(), ModeNestedLoop)
}
