package flexijoin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestByExprMatchesOverMaps(t *testing.T) {
	c := ByExpr(`left.name == right.name && right.t > 1`)
	ok, err := c.isMatch(matchCtx{
		recL: map[string]any{"name": "A"},
		recR: map[string]any{"name": "A", "t": 2},
	})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.isMatch(matchCtx{
		recL: map[string]any{"name": "A"},
		recR: map[string]any{"name": "A", "t": 1},
	})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestByExprMatchesOverStructs(t *testing.T) {
	c := ByExpr(`left.Name == right.Name`)
	ok, err := c.isMatch(matchCtx{recL: named{Name: "A"}, recR: named{Name: "A", T: 9}})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestByExprPanicsOnBadExpression(t *testing.T) {
	assert.Panics(t, func() { ByExpr("not a valid $$$ expr (") })
	assert.Panics(t, func() { ByExpr("") })
}

func TestByExprOnlySupportsNestedLoop(t *testing.T) {
	c := ByExpr(`true`)
	assert.Equal(t, []Mode{ModeNestedLoop}, c.supportedModes())
	assert.Same(t, Condition(c), c.swapSelf())
}

func TestRecordToMapWrapsScalars(t *testing.T) {
	m := recordToMap(42)
	assert.Equal(t, map[string]any{"value": 42}, m)
	assert.Equal(t, map[string]any{}, recordToMap(nil))
}
