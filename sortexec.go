package flexijoin

import (
	"math"
	"sort"
)

// sortIndex is C6/C6's prepared right-side permutation: keys sorted
// ascending by the condition's right accessor, with aligned values so range
// queries never re-invoke the accessor.
type sortIndex struct {
	keys []any
	vals []any
}

func buildSortIndex(r Side, fR Accessor) *sortIndex {
	keys := r.Keys()
	vals := make([]any, len(keys))
	for i, k := range keys {
		vals[i] = fR(r.Get(k))
	}
	order := make([]int, len(keys))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return compareValues(vals[order[i]], vals[order[j]]) < 0
	})
	sortedKeys := make([]any, len(keys))
	sortedVals := make([]any, len(keys))
	for i, oi := range order {
		sortedKeys[i] = keys[oi]
		sortedVals[i] = vals[oi]
	}
	return &sortIndex{keys: sortedKeys, vals: sortedVals}
}

// buildSortChainIndex skips the sort: the caller asserted R is already
// ordered by fR.
func buildSortChainIndex(r Side, fR Accessor) *sortIndex {
	keys := r.Keys()
	vals := make([]any, len(keys))
	for i, k := range keys {
		vals[i] = fR(r.Get(k))
	}
	return &sortIndex{keys: keys, vals: vals}
}

// lowerBound returns the first index with vals[idx] >= x.
func (si *sortIndex) lowerBound(x any) int {
	return sort.Search(len(si.vals), func(i int) bool { return compareValues(si.vals[i], x) >= 0 })
}

// upperBound returns the first index with vals[idx] > x.
func (si *sortIndex) upperBound(x any) int {
	return sort.Search(len(si.vals), func(i int) bool { return compareValues(si.vals[i], x) > 0 })
}

func (si *sortIndex) bound(closed bool, x any, lowSide bool) int {
	if lowSide {
		if closed {
			return si.lowerBound(x)
		}
		return si.upperBound(x)
	}
	if closed {
		return si.upperBound(x)
	}
	return si.lowerBound(x)
}

// candidateRange implements step 2 of C6: map a condition and a left
// element onto the [lo, hi) slice of the sorted permutation satisfying it.
func (si *sortIndex) candidateRange(cond Condition, lRec any) (lo, hi int, err error) {
	switch c := cond.(type) {
	case *ByKeyCondition:
		kL := c.FL(lRec)
		return si.lowerBound(kL), si.upperBound(kL), nil
	case *ByPredCondition:
		kL := c.FL(lRec)
		switch c.Op {
		case OpLT:
			return si.upperBound(kL), len(si.vals), nil
		case OpLE:
			return si.lowerBound(kL), len(si.vals), nil
		case OpGT:
			return 0, si.lowerBound(kL), nil
		case OpGE:
			return 0, si.upperBound(kL), nil
		case OpEQ:
			return si.lowerBound(kL), si.upperBound(kL), nil
		case OpContains:
			iv, ok := kL.(Interval)
			if !ok {
				return 0, 0, &ExecutorError{Side: "L", Err: errNotInterval}
			}
			return si.bound(iv.MinClosed(), iv.Min(), true), si.bound(iv.MaxClosed(), iv.Max(), false), nil
		default:
			return 0, 0, &ExecutorError{Side: "L", Err: errUnknownOp}
		}
	default:
		return 0, 0, &ExecutorError{Err: errUnknownOp}
	}
}

// sortClosest implements step 3 of C6: reduce an already-ascending slice of
// candidate keys to the single closest one for the given condition.
func sortClosest(cond Condition, keys, vals []any, lRec any) []any {
	if len(keys) == 0 {
		return keys
	}
	var op Op = OpEQ
	if c, ok := cond.(*ByPredCondition); ok {
		op = c.Op
	}
	switch op {
	case OpLT, OpLE:
		return keys[:1]
	case OpGT, OpGE:
		i := len(keys) - 1
		for vals != nil && i > 0 && compareValues(vals[i-1], vals[i]) == 0 {
			i--
		}
		return keys[i : i+1]
	case OpContains:
		c, ok := cond.(*ByPredCondition)
		if !ok {
			return keys[:1]
		}
		iv, ok := c.FL(lRec).(Interval)
		if !ok {
			return keys[:1]
		}
		var target float64
		var tok bool
		// for ∋ the left value is the interval itself, not a scalar: use the
		// interval's midpoint as the reference point when both bounds are numeric.
		if lo, lok := toFloat(iv.Min()); lok {
			if hi, hok := toFloat(iv.Max()); hok {
				target, tok = (lo+hi)/2, true
			}
		}
		best, bestDiff := 0, math.Inf(1)
		for i, v := range vals {
			f, ok := toFloat(v)
			if !ok || !tok {
				continue
			}
			d := math.Abs(target - f)
			if d < bestDiff || (d == bestDiff && compareValues(keys[i], keys[best]) < 0) {
				bestDiff, best = d, i
			}
		}
		return keys[best : best+1]
	default:
		return keys[:1]
	}
}
