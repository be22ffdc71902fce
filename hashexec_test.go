package flexijoin

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildHashIndexGroupedAll(t *testing.T) {
	r := NewSliceSide([]named{{Name: "A"}, {Name: "A"}, {Name: "B"}})
	hi := buildHashIndex(r, FieldOf("Name"), MultiAll, false)
	assert.ElementsMatch(t, []any{0, 1}, hi.candidates("A"))
	assert.Equal(t, []any{2}, hi.candidates("B"))
	assert.Nil(t, hi.candidates("C"))
}

func TestBuildHashIndexSingleFirstAndLast(t *testing.T) {
	r := NewSliceSide([]named{{Name: "A"}, {Name: "A"}, {Name: "B"}})

	first := buildHashIndex(r, FieldOf("Name"), MultiFirst, false)
	assert.Equal(t, []any{0}, first.candidates("A"))

	last := buildHashIndex(r, FieldOf("Name"), MultiLast, false)
	assert.Equal(t, []any{1}, last.candidates("A"))
}

func TestHashIndexBloomRejectsAbsentKey(t *testing.T) {
	r := NewSliceSide([]named{{Name: "A"}, {Name: "B"}})
	hi := buildHashIndex(r, FieldOf("Name"), MultiAll, true)
	assert.NotNil(t, hi.bloom)
	assert.ElementsMatch(t, []any{0}, hi.candidates("A"))
	assert.Nil(t, hi.candidates("Z"))
}

func TestHashIndexRequiresExactTypeMatch(t *testing.T) {
	r := NewSliceSide([]int{1, 2, 3})
	identity := func(rec any) any { return rec }
	hi := buildHashIndex(r, identity, MultiAll, false)
	// int(1) must match int(1), not float64(1).0
	assert.Equal(t, []any{0}, hi.candidates(1))
	assert.Nil(t, hi.candidates(1.0))
}
