package flexijoin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type named struct {
	Name string
	T    int
}

func TestJoinS1EquiJoin(t *testing.T) {
	l := NewSliceSide([]named{{Name: "A"}, {Name: "B"}, {Name: "D"}, {Name: "E"}})
	r := NewSliceSide([]named{{Name: "A", T: 2}, {Name: "A", T: 3}, {Name: "B", T: 2}})

	idx, err := JoinIndices(l, r, ByKey("Name"), Inner())
	require.NoError(t, err)
	assert.ElementsMatch(t, []Pair{{L: 0, R: 0}, {L: 0, R: 1}, {L: 1, R: 2}}, idx.Flat)
}

func TestJoinS2LeftOuterKeepsMisses(t *testing.T) {
	l := NewSliceSide([]named{{Name: "A"}, {Name: "B"}, {Name: "D"}, {Name: "E"}})
	r := NewSliceSide([]named{{Name: "A", T: 2}, {Name: "A", T: 3}, {Name: "B", T: 2}})

	idx, err := JoinIndices(l, r, ByKey("Name"), LeftOuter())
	require.NoError(t, err)
	assert.ElementsMatch(t, []Pair{
		{L: 0, R: 0}, {L: 0, R: 1}, {L: 1, R: 2}, {L: 2, R: Null}, {L: 3, R: Null},
	}, idx.Flat)
}

type timed struct{ T int }

func TestJoinS3AsofClosest(t *testing.T) {
	l := NewSliceSide([]timed{{T: 5}})
	r := NewSliceSide([]timed{{T: 1}, {T: 4}, {T: 6}, {T: 9}})

	opts := Inner()
	opts.L.Multi = MultiClosest
	idx, err := JoinIndices(l, r, ByPred("T", OpLT, "T"), opts)
	require.NoError(t, err)
	assert.Equal(t, []Pair{{L: 0, R: 2}}, idx.Flat)
}

type span struct{ A, B int }
type point struct{ T int }

func TestJoinS4IntervalContains(t *testing.T) {
	l := NewSliceSide([]span{{A: 0, B: 3}})
	r := NewSliceSide([]point{{T: -1}, {T: 0}, {T: 2}, {T: 3}, {T: 4}})

	cond := ByPred(func(rec any) any {
		s := rec.(span)
		return Closed(s.A, s.B)
	}, OpContains, "T")

	idx, err := JoinIndices(l, r, cond, Inner())
	require.NoError(t, err)
	assert.Equal(t, []Pair{{L: 0, R: 1}, {L: 0, R: 2}, {L: 0, R: 3}}, idx.Flat)
}

func TestJoinS5DistanceSelfJoin(t *testing.T) {
	data := NewSliceSide([]int{0, 1, 5})
	abs := func(rec any) any { return float64(rec.(int)) }
	metric := func(a, b any) float64 {
		d := a.(float64) - b.(float64)
		if d < 0 {
			d = -d
		}
		return d
	}
	cond := And(ByDistance(abs, metric, 1, false), NotSame())

	idx, err := JoinIndices(data, data, cond, Inner())
	require.NoError(t, err)
	assert.ElementsMatch(t, []Pair{{L: 0, R: 1}, {L: 1, R: 0}}, idx.Flat)
}

func TestJoinS6CardinalityViolation(t *testing.T) {
	l := NewSliceSide([]int{1, 2, 3})
	r := NewSliceSide([]int{1, 1, 2, 2, 3, 3})
	identity := func(rec any) any { return rec }

	opts := Inner()
	opts.L.Cardinality = CardExact(1)
	_, err := JoinIndices(l, r, ByKey(identity), opts)
	require.Error(t, err)

	var cardErr *CardinalityError
	require.ErrorAs(t, err, &cardErr)
	assert.Equal(t, "L", cardErr.Side)
	assert.Equal(t, 0, cardErr.Index)
	assert.Equal(t, 2, cardErr.Observed)
}

// TestJoinCardinalityIgnoresKeptNonMatches guards against counting a kept
// (key, Null) non-match pair as a real match: a truly-unmatched element must
// observe zero matches, not one, even when NonMatches is Keep.
func TestJoinCardinalityIgnoresKeptNonMatches(t *testing.T) {
	l := NewSliceSide([]int{1, 2})
	r := NewSliceSide([]int{1})
	identity := func(rec any) any { return rec }

	opts := LeftOuter()
	opts.L.Cardinality = CardAtLeastOne()
	_, err := JoinIndices(l, r, ByKey(identity), opts)
	require.Error(t, err, "unmatched left element 2 must not be masked by its kept null pair")

	var cardErr *CardinalityError
	require.ErrorAs(t, err, &cardErr)
	assert.Equal(t, "L", cardErr.Side)
	assert.Equal(t, 1, cardErr.Index)
	assert.Equal(t, 0, cardErr.Observed)

	exactOpts := LeftOuter()
	exactOpts.L.Cardinality = CardExact(1)
	_, err = JoinIndices(l, r, ByKey(identity), exactOpts)
	require.Error(t, err, "element 2's kept null pair must not silently satisfy CardExact(1)")
	require.ErrorAs(t, err, &cardErr)
	assert.Equal(t, 1, cardErr.Index)
	assert.Equal(t, 0, cardErr.Observed)
}

func TestJoinGroupByL(t *testing.T) {
	l := NewSliceSide([]named{{Name: "A"}, {Name: "B"}})
	r := NewSliceSide([]named{{Name: "A", T: 1}, {Name: "A", T: 2}, {Name: "B", T: 1}})

	opts := Inner()
	opts.GroupBy = GroupByL
	idx, err := JoinIndices(l, r, ByKey("Name"), opts)
	require.NoError(t, err)
	require.Len(t, idx.Groups, 2)
	assert.ElementsMatch(t, []any{0, 1}, idx.Groups[0].Others)
	assert.ElementsMatch(t, []any{2}, idx.Groups[1].Others)
}

func TestJoinGroupByRSwapsBack(t *testing.T) {
	l := NewSliceSide([]named{{Name: "A"}, {Name: "B"}})
	r := NewSliceSide([]named{{Name: "A", T: 1}, {Name: "A", T: 2}, {Name: "B", T: 1}})

	opts := Inner()
	opts.GroupBy = GroupByR
	idx, err := JoinIndices(l, r, ByKey("Name"), opts)
	require.NoError(t, err)
	require.Len(t, idx.Groups, 3)
	for _, g := range idx.Groups {
		if g.Key == 0 || g.Key == 1 {
			assert.Equal(t, []any{0}, g.Others)
		} else {
			assert.Equal(t, []any{1}, g.Others)
		}
	}
}

func TestJoinRecordsAndMaterialize(t *testing.T) {
	l := NewSliceSide([]named{{Name: "A"}})
	r := NewSliceSide([]named{{Name: "A", T: 9}})

	res, err := Join(l, r, ByKey("Name"), Inner())
	require.NoError(t, err)
	require.Len(t, res.Flat, 1)
	lRec, rRec := res.Row(res.Flat[0])
	assert.Equal(t, named{Name: "A"}, lRec)
	assert.Equal(t, named{Name: "A", T: 9}, rRec)

	m := Materialize(res)
	require.Len(t, m.Flat, 1)
	assert.Equal(t, named{Name: "A", T: 9}, m.Flat[0].R)
}

func TestJoinOptionsValidationRejectsContradiction(t *testing.T) {
	opts := Inner()
	opts.L.Multi = MultiFirst
	opts.R.NonMatches = Keep
	l := NewSliceSide([]int{1})
	r := NewSliceSide([]int{1})
	_, err := JoinIndices(l, r, ByKey(func(v any) any { return v }), opts)
	require.Error(t, err)
	var cfgErr *ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestJoinParallelMatchesSequential(t *testing.T) {
	l := NewSliceSide([]named{{Name: "A"}, {Name: "B"}, {Name: "D"}, {Name: "E"}})
	r := NewSliceSide([]named{{Name: "A", T: 2}, {Name: "A", T: 3}, {Name: "B", T: 2}})

	seq, err := JoinIndices(l, r, ByKey("Name"), Inner())
	require.NoError(t, err)

	opts := Inner()
	opts.Parallel = true
	par, err := JoinIndices(l, r, ByKey("Name"), opts)
	require.NoError(t, err)

	assert.ElementsMatch(t, seq.Flat, par.Flat)
}
