package flexijoin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type widget struct {
	ID   int    `json:"widget_id"`
	Name string
}

func TestFieldOfMap(t *testing.T) {
	f := FieldOf("name")
	assert.Equal(t, "bolt", f(map[string]any{"name": "bolt"}))
	assert.Nil(t, f(map[string]any{"other": 1}))
}

func TestFieldOfStruct(t *testing.T) {
	f := FieldOf("Name")
	assert.Equal(t, "bolt", f(widget{ID: 1, Name: "bolt"}))
}

func TestFieldOfStructPointer(t *testing.T) {
	f := FieldOf("Name")
	w := &widget{ID: 1, Name: "bolt"}
	assert.Equal(t, "bolt", f(w))
	assert.Nil(t, f((*widget)(nil)))
}

func TestFieldOfJSONTag(t *testing.T) {
	f := FieldOf("widget_id")
	assert.Equal(t, 7, f(widget{ID: 7}))
}

func TestFieldOfNilRecord(t *testing.T) {
	f := FieldOf("anything")
	assert.Nil(t, f(nil))
}

func TestToAccessorVariants(t *testing.T) {
	require.NotNil(t, toAccessor("Name"))
	require.NotNil(t, toAccessor(Accessor(FieldOf("Name"))))
	require.NotNil(t, toAccessor(func(any) any { return 1 }))
	assert.Nil(t, toAccessor(nil))
}

func TestToAccessorPanicsOnInvalid(t *testing.T) {
	assert.Panics(t, func() { toAccessor(42) })
}
