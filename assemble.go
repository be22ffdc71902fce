package flexijoin

import "sort"

// effectiveCondition returns the condition the executor actually built an
// index over: the anchor child for an anchored composite plan, or the
// plan's own condition otherwise.
func (pl plan) effectiveCondition() Condition {
	if pl.anchor != nil {
		return pl.anchor
	}
	return pl.cond
}

func rightAccessor(cond Condition) (Accessor, bool) {
	switch c := cond.(type) {
	case *ByKeyCondition:
		return c.FR, true
	case *ByPredCondition:
		return c.FR, true
	default:
		return nil, false
	}
}

// buildBaseCandidateFunc prepares whatever per-run index the plan's mode
// needs and returns a closure producing, for one left record, the
// candidate right keys satisfying the anchor/atomic condition alone (before
// any composite post-filter or multi reduction).
func buildBaseCandidateFunc(r Side, pl plan, opts Options) (func(lKey, lRec any) ([]any, error), error) {
	switch pl.mode {
	case ModeNestedLoop:
		cond := pl.cond
		return func(lKey, lRec any) ([]any, error) {
			var out []any
			for _, rKey := range r.Keys() {
				rRec := r.Get(rKey)
				ok, err := cond.isMatch(matchCtx{keyL: lKey, keyR: rKey, recL: lRec, recR: rRec})
				if err != nil {
					return nil, err
				}
				if ok {
					out = append(out, rKey)
				}
			}
			return out, nil
		}, nil

	case ModeSort, ModeSortChain:
		anchorCond := pl.effectiveCondition()
		fR, ok := rightAccessor(anchorCond)
		if !ok {
			return nil, &ConfigError{Code: UnsupportedMode, Message: "sort executor requires a ByKey or ordered ByPred anchor"}
		}
		var si *sortIndex
		if pl.mode == ModeSort {
			si = buildSortIndex(r, fR)
		} else {
			si = buildSortChainIndex(r, fR)
		}
		return func(lKey, lRec any) ([]any, error) {
			lo, hi, err := si.candidateRange(anchorCond, lRec)
			if err != nil {
				return nil, err
			}
			return si.keys[lo:hi], nil
		}, nil

	case ModeHash:
		anchorCond := pl.effectiveCondition()
		keyCond, ok := anchorCond.(*ByKeyCondition)
		if !ok {
			return nil, &ConfigError{Code: UnsupportedMode, Message: "hash executor requires a ByKey anchor"}
		}
		multi := opts.L.Multi
		if pl.isAnchored() {
			// A composite post-filter may discard the single stored match,
			// so first/last can only be decided after filtering: build the
			// full grouped index regardless of the requested multi policy.
			multi = MultiAll
		}
		hi := buildHashIndex(r, keyCond.FR, multi, opts.HashBloomPrefilter)
		return func(lKey, lRec any) ([]any, error) {
			return hi.candidates(keyCond.FL(lRec)), nil
		}, nil

	case ModeTree:
		anchorCond := pl.effectiveCondition()
		distCond, ok := anchorCond.(*ByDistanceCondition)
		if !ok {
			return nil, &ConfigError{Code: UnsupportedMode, Message: "tree executor requires a ByDistance anchor"}
		}
		tree := buildVPTree(r, distCond.F, distCond.M)
		fastNearest := !pl.isAnchored() && opts.L.Multi == MultiClosest
		return func(lKey, lRec any) ([]any, error) {
			if fastNearest {
				return tree.nearestFor(distCond, lRec), nil
			}
			return tree.candidatesFor(distCond, r, lRec), nil
		}, nil

	default:
		return nil, &ConfigError{Code: UnsupportedMode, Message: "unknown mode"}
	}
}

func filterCandidates(filters []Condition, lKey, lRec any, r Side, cands []any) ([]any, error) {
	if len(filters) == 0 {
		return cands, nil
	}
	out := make([]any, 0, len(cands))
	for _, rKey := range cands {
		ctx := matchCtx{keyL: lKey, keyR: rKey, recL: lRec, recR: r.Get(rKey)}
		matched := true
		for _, f := range filters {
			ok, err := f.isMatch(ctx)
			if err != nil {
				return nil, err
			}
			if !ok {
				matched = false
				break
			}
		}
		if matched {
			out = append(out, rKey)
		}
	}
	return out, nil
}

// byVal sorts a (keys, vals) pair in lockstep by vals, putting a candidate
// slice (which some modes produce in index order) into ascending value order
// before the closest reduction.
type byVal struct{ keys, vals []any }

func (b byVal) Len() int      { return len(b.keys) }
func (b byVal) Swap(i, j int) { b.keys[i], b.keys[j] = b.keys[j], b.keys[i]; b.vals[i], b.vals[j] = b.vals[j], b.vals[i] }
func (b byVal) Less(i, j int) bool { return compareValues(b.vals[i], b.vals[j]) < 0 }

func sortByKeyAsc(cands []any) []any {
	out := append([]any(nil), cands...)
	sort.Slice(out, func(i, j int) bool { return compareValues(out[i], out[j]) < 0 })
	return out
}

// reduceMultiForMode implements §4.9's multi reduction, resolving the "closest
// under a composite's post-filtered anchor" Open Question as SPEC_FULL.md
// directs: pick the closest among survivors, or none if no survivor remains.
func reduceMultiForMode(pl plan, r Side, lRec any, cands []any, multi Multi) []any {
	if multi == MultiAll || len(cands) == 0 {
		return cands
	}
	if multi == MultiFirst {
		sorted := sortByKeyAsc(cands)
		return sorted[:1]
	}
	if multi == MultiLast {
		sorted := sortByKeyAsc(cands)
		return sorted[len(sorted)-1:]
	}

	// MultiClosest
	switch c := pl.effectiveCondition().(type) {
	case *ByDistanceCondition:
		return []any{closestByDistance(c, r, lRec, cands)}
	case *ByPredCondition:
		if c.Op.ordered() {
			sorted := append([]any(nil), cands...)
			vals := make([]any, len(sorted))
			for i, k := range sorted {
				vals[i] = c.FR(r.Get(k))
			}
			sort.Stable(byVal{keys: sorted, vals: vals})
			return sortClosest(c, sorted, vals, lRec)
		}
	}
	// No natural ordering (ByKey, set-relation predicates): the smallest
	// index is the deterministic choice, matching the first/last tie-break rule.
	return sortByKeyAsc(cands)[:1]
}

func closestByDistance(c *ByDistanceCondition, r Side, lRec any, cands []any) any {
	q := c.F(lRec)
	bestKey := cands[0]
	bestDist := c.M(q, c.F(r.Get(cands[0])))
	for _, k := range cands[1:] {
		d := c.M(q, c.F(r.Get(k)))
		if d < bestDist || (d == bestDist && compareValues(k, bestKey) < 0) {
			bestDist, bestKey = d, k
		}
	}
	return bestKey
}

// buildCandidateFunc composes the base per-mode executor with composite
// post-filtering and multi reduction into the single per-left-element
// probe the assembler sweeps with.
func buildCandidateFunc(r Side, pl plan, opts Options) (func(lKey, lRec any) ([]any, error), error) {
	base, err := buildBaseCandidateFunc(r, pl, opts)
	if err != nil {
		return nil, err
	}
	multi := opts.L.Multi
	return func(lKey, lRec any) ([]any, error) {
		raw, err := base(lKey, lRec)
		if err != nil {
			return nil, err
		}
		filtered := raw
		if pl.isAnchored() {
			filtered, err = filterCandidates(pl.filters, lKey, lRec, r, raw)
			if err != nil {
				return nil, err
			}
		}
		return reduceMultiForMode(pl, r, lRec, filtered, multi), nil
	}, nil
}

// keySet is a generalization of the bit set spec.md §4.9 describes for
// tracking which right-side indices were matched at least once: a plain
// bit array when R's keys are the dense int range a SliceSide produces,
// falling back to a map for arbitrary (e.g. MapSide) key types.
type keySet struct {
	bits []bool
	set  map[any]struct{}
}

func newKeySet(keys []any) *keySet {
	dense := true
	for i, k := range keys {
		if iv, ok := k.(int); !ok || iv != i {
			dense = false
			break
		}
	}
	if dense {
		return &keySet{bits: make([]bool, len(keys))}
	}
	return &keySet{set: make(map[any]struct{}, len(keys))}
}

func (s *keySet) add(k any) {
	if s.bits != nil {
		s.bits[k.(int)] = true
		return
	}
	s.set[k] = struct{}{}
}

func (s *keySet) contains(k any) bool {
	if s.bits != nil {
		return s.bits[k.(int)]
	}
	_, ok := s.set[k]
	return ok
}
