package flexijoin

import (
	"log/slog"
	"runtime"
	"sync"

	"github.com/google/uuid"
)

// nullKey is the distinguished "no-such-index" sentinel spec.md §3
// describes: it marks the absent side of a kept non-match pair.
type nullKey struct{}

// Null is the sentinel value standing in for an absent index on one side of
// a kept non-match pair. Compare with flexijoin.IsNull, not ==, since Null
// itself is comparable but callers should not need to know its underlying type.
var Null any = nullKey{}

// IsNull reports whether a key returned in a Pair or Group is the Null sentinel.
func IsNull(key any) bool {
	_, ok := key.(nullKey)
	return ok
}

// Pair is one (i_L, i_R) match in flat output. Exactly one of L, R is Null
// for a kept non-match.
type Pair struct {
	L, R any
}

// Group is one grouped-output entry: Key is the grouping side's index,
// Others is the ordered sequence of matches on the opposite side (possibly
// empty, when that left/right element's non-matches are kept).
type Group struct {
	Key    any
	Others []any
}

// IndexResult is the (i_L, i_R)-only shape spec.md §6 calls join_indices.
type IndexResult struct {
	GroupBy GroupBy
	Flat    []Pair
	Groups  []Group
}

// Result is the record-view shape spec.md §6 calls join: an IndexResult
// plus the sides needed to resolve an index back to the actual record.
type Result struct {
	IndexResult
	L, R Side
}

// Row returns the left and right records for a flat pair, or nil where the
// corresponding index is Null.
func (res *Result) Row(p Pair) (l, r any) {
	if !IsNull(p.L) {
		l = res.L.Get(p.L)
	}
	if !IsNull(p.R) {
		r = res.R.Get(p.R)
	}
	return l, r
}

// MaterializedPair is one owned (not view) row of a materialized flat result.
type MaterializedPair struct {
	L, R any
}

// MaterializedGroup is one owned row of a materialized grouped result.
type MaterializedGroup struct {
	Key    any
	Others []any
}

// Materialized is the owned-copy counterpart of Result, produced by Materialize.
type Materialized struct {
	GroupBy GroupBy
	Flat    []MaterializedPair
	Groups  []MaterializedGroup
}

// Materialize copies a view-typed Result into owned arrays: every
// index is resolved to its record (or kept as Null) and the result no
// longer depends on L/R staying unmutated.
func Materialize(res *Result) *Materialized {
	out := &Materialized{GroupBy: res.GroupBy}
	if res.GroupBy == GroupByNone {
		out.Flat = make([]MaterializedPair, len(res.Flat))
		for i, p := range res.Flat {
			l, r := res.Row(p)
			out.Flat[i] = MaterializedPair{L: l, R: r}
		}
		return out
	}
	out.Groups = make([]MaterializedGroup, len(res.Groups))
	for i, g := range res.Groups {
		var keyRec any
		if res.GroupBy == GroupByL {
			keyRec = res.L.Get(g.Key)
		} else {
			keyRec = res.R.Get(g.Key)
		}
		others := make([]any, len(g.Others))
		for j, o := range g.Others {
			if IsNull(o) {
				continue
			}
			if res.GroupBy == GroupByL {
				others[j] = res.R.Get(o)
			} else {
				others[j] = res.L.Get(o)
			}
		}
		out.Groups[i] = MaterializedGroup{Key: keyRec, Others: others}
	}
	return out
}

// Join runs the join and returns a view-typed Result over l and r.
func Join(l, r Side, cond Condition, opts Options) (*Result, error) {
	idx, err := JoinIndices(l, r, cond, opts)
	if err != nil {
		return nil, err
	}
	return &Result{IndexResult: *idx, L: l, R: r}, nil
}

// JoinIndices runs the join and returns only the matched index pairs/groups.
func JoinIndices(l, r Side, cond Condition, opts Options) (*IndexResult, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	callID := uuid.NewString()

	if opts.GroupBy == GroupByR {
		swapped, err := JoinIndices(r, l, cond.swapSelf(), opts.swapped())
		if err != nil {
			return nil, err
		}
		return swapIndexResult(swapped), nil
	}

	pl, err := selectPlan(cond, opts)
	if err != nil {
		return nil, err
	}
	slog.Debug("flexijoin: plan selected", "call", callID, "mode", pl.mode.String(), "anchored", pl.isAnchored())

	probe, err := buildCandidateFunc(r, pl, opts)
	if err != nil {
		return nil, err
	}

	lKeys := l.Keys()
	rKeys := r.Keys()
	lMatches := make([][]any, len(lKeys))

	if opts.Parallel {
		if err := probeParallel(l, lKeys, probe, lMatches); err != nil {
			return nil, err
		}
	} else {
		for i, lKey := range lKeys {
			matches, err := probe(lKey, l.Get(lKey))
			if err != nil {
				return nil, err
			}
			lMatches[i] = matches
		}
	}

	matchedR := newKeySet(rKeys)
	idx := &IndexResult{GroupBy: opts.GroupBy}

	switch opts.GroupBy {
	case GroupByNone:
		for i, lKey := range lKeys {
			matches := lMatches[i]
			if len(matches) == 0 {
				if opts.L.NonMatches == Keep {
					idx.Flat = append(idx.Flat, Pair{L: lKey, R: Null})
				}
				continue
			}
			for _, rKey := range matches {
				matchedR.add(rKey)
				idx.Flat = append(idx.Flat, Pair{L: lKey, R: rKey})
			}
		}
		if opts.R.NonMatches == Keep {
			for _, rKey := range rKeys {
				if !matchedR.contains(rKey) {
					idx.Flat = append(idx.Flat, Pair{L: Null, R: rKey})
				}
			}
		}

	case GroupByL:
		for i, lKey := range lKeys {
			matches := lMatches[i]
			for _, rKey := range matches {
				matchedR.add(rKey)
			}
			if len(matches) == 0 && opts.L.NonMatches != Keep {
				continue
			}
			idx.Groups = append(idx.Groups, Group{Key: lKey, Others: matches})
		}
	}

	if err := checkCardinality(idx, opts, lKeys, rKeys); err != nil {
		slog.Warn("flexijoin: cardinality violation", "call", callID, "error", err.Error())
		return nil, err
	}

	return idx, nil
}

func probeParallel(l Side, lKeys []any, probe func(any, any) ([]any, error), out [][]any) error {
	workers := runtime.GOMAXPROCS(0)
	if workers > len(lKeys) {
		workers = len(lKeys)
	}
	if workers < 1 {
		workers = 1
	}

	type job struct {
		idx  int
		key  any
		rec  any
	}
	jobs := make(chan job)
	errs := make(chan error, workers)
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				matches, err := probe(j.key, j.rec)
				if err != nil {
					select {
					case errs <- err:
					default:
					}
					continue
				}
				out[j.idx] = matches
			}
		}()
	}

	for i, k := range lKeys {
		jobs <- job{idx: i, key: k, rec: l.Get(k)}
	}
	close(jobs)
	wg.Wait()
	close(errs)

	if err, ok := <-errs; ok {
		return err
	}
	return nil
}

// swapIndexResult undoes the L/R exchange JoinIndices performs for GroupByR: it
// swaps every pair back and relabels groups, per invariant 2 of spec.md §3.
func swapIndexResult(idx *IndexResult) *IndexResult {
	out := &IndexResult{GroupBy: GroupByR}
	for _, p := range idx.Flat {
		out.Flat = append(out.Flat, Pair{L: p.R, R: p.L})
	}
	for _, g := range idx.Groups {
		out.Groups = append(out.Groups, g)
	}
	return out
}

func checkCardinality(idx *IndexResult, opts Options, lKeys, rKeys []any) error {
	lCounts := make(map[any]int, len(lKeys))
	rCounts := make(map[any]int, len(rKeys))
	for _, k := range lKeys {
		lCounts[k] = 0
	}
	for _, k := range rKeys {
		rCounts[k] = 0
	}

	record := func(p Pair) {
		if IsNull(p.L) || IsNull(p.R) {
			return // a kept non-match pair has zero matches on either side, not one
		}
		lCounts[p.L]++
		rCounts[p.R]++
	}

	switch idx.GroupBy {
	case GroupByNone:
		for _, p := range idx.Flat {
			record(p)
		}
	case GroupByL:
		for _, g := range idx.Groups {
			lCounts[g.Key] = len(g.Others)
			for _, o := range g.Others {
				rCounts[o]++
			}
		}
	}

	for _, k := range lKeys {
		if !opts.L.Cardinality.check(lCounts[k]) {
			return &CardinalityError{Side: "L", Index: k, Observed: lCounts[k], Expected: opts.L.Cardinality}
		}
	}
	for _, k := range rKeys {
		if !opts.R.Cardinality.check(rCounts[k]) {
			return &CardinalityError{Side: "R", Index: k, Observed: rCounts[k], Expected: opts.R.Cardinality}
		}
	}
	return nil
}
