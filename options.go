package flexijoin

import "fmt"

// NonMatch is the per-side policy for whether an unmatched element still
// appears in the output (paired with a null counterpart).
type NonMatch int

const (
	// Drop omits unmatched elements of this side.
	Drop NonMatch = iota
	// Keep emits unmatched elements of this side paired with Null.
	Keep
)

// Multi is the per-side policy reducing multiple matches for a single
// element down to the ones kept in the output.
type Multi int

const (
	// MultiAll keeps every match.
	MultiAll Multi = iota
	// MultiFirst keeps only the match with the smallest opposite-side index.
	MultiFirst
	// MultiLast keeps only the match with the largest opposite-side index.
	MultiLast
	// MultiClosest keeps only the match minimizing distance (ByDistance) or
	// the nearest ordered value (ByPred under Sort); ties broken by smallest index.
	MultiClosest
)

// GroupBy selects flat output or grouping by one side.
type GroupBy int

const (
	// GroupByNone produces a flat sequence of (i_L, i_R) pairs.
	GroupByNone GroupBy = iota
	// GroupByL groups matches under each left element.
	GroupByL
	// GroupByR groups matches under each right element.
	GroupByR
)

// Cardinality asserts a bound on the number of matches a single element of
// a side may participate in.
type Cardinality struct {
	kind CardinalityKind
	n    int
	a, b int
}

type CardinalityKind int

const (
	cardAny CardinalityKind = iota
	cardAtLeastOne
	cardExact
	cardRange
)

// CardAny accepts zero or more matches.
func CardAny() Cardinality { return Cardinality{kind: cardAny} }

// CardAtLeastOne requires at least one match ('+').
func CardAtLeastOne() Cardinality { return Cardinality{kind: cardAtLeastOne} }

// CardExact requires exactly n matches.
func CardExact(n int) Cardinality { return Cardinality{kind: cardExact, n: n} }

// CardRange requires between a and b matches, inclusive.
func CardRange(a, b int) Cardinality { return Cardinality{kind: cardRange, a: a, b: b} }

func (c Cardinality) check(observed int) bool {
	switch c.kind {
	case cardAny:
		return true
	case cardAtLeastOne:
		return observed >= 1
	case cardExact:
		return observed == c.n
	case cardRange:
		return observed >= c.a && observed <= c.b
	default:
		return true
	}
}

func (c Cardinality) String() string {
	switch c.kind {
	case cardAny:
		return "*"
	case cardAtLeastOne:
		return "+"
	case cardExact:
		return fmt.Sprintf("exactly %d", c.n)
	case cardRange:
		return fmt.Sprintf("[%d,%d]", c.a, c.b)
	default:
		return "?"
	}
}

// SideOptions is the per-side slice of Options.
type SideOptions struct {
	NonMatches  NonMatch
	Multi       Multi
	Cardinality Cardinality
}

// Options is the result-shape configuration for a join call.
type Options struct {
	L, R SideOptions

	// GroupBy selects flat vs. grouped output.
	GroupBy GroupBy

	// Mode pins an execution strategy. Nil lets the engine pick.
	Mode *Mode

	// AssumeSorted asserts the right side is already ordered ascending by the
	// condition's right accessor. It makes automatic selection prefer
	// ModeSortChain over ModeSort, and is the assertion a pinned
	// ModeSortChain relies on.
	AssumeSorted bool

	// Parallel enables the optional left-probe parallelization of spec.md
	// §5; results are always collected back in ascending i_L order.
	Parallel bool

	// HashBloomPrefilter enables the Bloom-filter fast-reject optimization
	// of SPEC_FULL.md's hash executor section. Never changes the emitted
	// pair set.
	HashBloomPrefilter bool
}

// DefaultOptions returns Options with the spec's defaults: drop/all/none/'*'.
func DefaultOptions() Options {
	return Options{
		L: SideOptions{NonMatches: Drop, Multi: MultiAll, Cardinality: CardAny()},
		R: SideOptions{NonMatches: Drop, Multi: MultiAll, Cardinality: CardAny()},
	}
}

// Inner is the (drop, drop) non-match alias.
func Inner() Options { return applyNonMatchAlias(DefaultOptions(), Drop, Drop) }

// LeftOuter is the (keep, drop) non-match alias.
func LeftOuter() Options { return applyNonMatchAlias(DefaultOptions(), Keep, Drop) }

// RightOuter is the (drop, keep) non-match alias.
func RightOuter() Options { return applyNonMatchAlias(DefaultOptions(), Drop, Keep) }

// FullOuter is the (keep, keep) non-match alias.
func FullOuter() Options { return applyNonMatchAlias(DefaultOptions(), Keep, Keep) }

func applyNonMatchAlias(o Options, l, r NonMatch) Options {
	o.L.NonMatches = l
	o.R.NonMatches = r
	return o
}

// validate enforces invariant 3 of spec.md §3: multi != all on one side
// forbids nonmatches = keep on the *other* side.
func (o Options) validate() error {
	if o.L.Multi != MultiAll && o.R.NonMatches == Keep {
		return &ConfigError{Code: BadOptions, Message: "L.multi != all combined with R.nonmatches = keep is rejected"}
	}
	if o.R.Multi != MultiAll && o.L.NonMatches == Keep {
		return &ConfigError{Code: BadOptions, Message: "R.multi != all combined with L.nonmatches = keep is rejected"}
	}
	return nil
}

// swapped returns Options with L and R exchanged, used when the engine
// executes with sides swapped for GroupByR.
func (o Options) swapped() Options {
	o2 := o
	o2.L, o2.R = o.R, o.L
	if o.GroupBy == GroupByL {
		o2.GroupBy = GroupByR
	} else if o.GroupBy == GroupByR {
		o2.GroupBy = GroupByL
	}
	return o2
}
