package flexijoin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCardinalityChecks(t *testing.T) {
	assert.True(t, CardAny().check(0))
	assert.True(t, CardAny().check(100))

	assert.False(t, CardAtLeastOne().check(0))
	assert.True(t, CardAtLeastOne().check(1))

	assert.True(t, CardExact(3).check(3))
	assert.False(t, CardExact(3).check(2))

	assert.True(t, CardRange(2, 4).check(2))
	assert.True(t, CardRange(2, 4).check(4))
	assert.False(t, CardRange(2, 4).check(5))
}

func TestCardinalityString(t *testing.T) {
	assert.Equal(t, "*", CardAny().String())
	assert.Equal(t, "+", CardAtLeastOne().String())
	assert.Equal(t, "exactly 3", CardExact(3).String())
	assert.Equal(t, "[1,2]", CardRange(1, 2).String())
}

func TestOptionsAliases(t *testing.T) {
	in := Inner()
	assert.Equal(t, Drop, in.L.NonMatches)
	assert.Equal(t, Drop, in.R.NonMatches)

	lo := LeftOuter()
	assert.Equal(t, Keep, lo.L.NonMatches)
	assert.Equal(t, Drop, lo.R.NonMatches)

	ro := RightOuter()
	assert.Equal(t, Drop, ro.L.NonMatches)
	assert.Equal(t, Keep, ro.R.NonMatches)

	fo := FullOuter()
	assert.Equal(t, Keep, fo.L.NonMatches)
	assert.Equal(t, Keep, fo.R.NonMatches)
}

func TestOptionsValidateInvariant(t *testing.T) {
	o := DefaultOptions()
	o.L.Multi = MultiFirst
	o.R.NonMatches = Keep
	require.Error(t, o.validate())

	o2 := DefaultOptions()
	o2.R.Multi = MultiClosest
	o2.L.NonMatches = Keep
	require.Error(t, o2.validate())

	o3 := DefaultOptions()
	require.NoError(t, o3.validate())
}

func TestOptionsSwapped(t *testing.T) {
	o := DefaultOptions()
	o.L.NonMatches = Keep
	o.GroupBy = GroupByL
	s := o.swapped()
	assert.Equal(t, Keep, s.R.NonMatches)
	assert.Equal(t, Drop, s.L.NonMatches)
	assert.Equal(t, GroupByR, s.GroupBy)
}
