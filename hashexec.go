package flexijoin

import "fmt"

// hashIndex is C7's prepared right-side lookup structure. For multi = all
// (or closest, which needs every candidate before it can pick one) it is an
// inverse-CSR group layout: starts[id]..starts[id+1] in rperm holds every
// right key sharing one accessor value. For multi = first/last it collapses
// straight to one key per value, since only one will ever be kept.
type hashIndex struct {
	grouped bool

	starts  []int
	rperm   []any
	groupID map[any]int

	single map[any]any

	bloom *bloomFilter
}

func buildHashIndex(r Side, fR Accessor, multi Multi, useBloom bool) *hashIndex {
	if multi == MultiFirst || multi == MultiLast {
		return buildHashIndexSingle(r, fR, multi, useBloom)
	}
	return buildHashIndexGrouped(r, fR, useBloom)
}

func buildHashIndexGrouped(r Side, fR Accessor, useBloom bool) *hashIndex {
	keys := r.Keys()
	order := make([]any, 0)
	groups := make(map[any][]any)
	for _, k := range keys {
		v := fR(r.Get(k))
		if _, ok := groups[v]; !ok {
			order = append(order, v)
		}
		groups[v] = append(groups[v], k)
	}

	starts := make([]int, len(order)+1)
	rperm := make([]any, 0, len(keys))
	groupID := make(map[any]int, len(order))
	for i, v := range order {
		groupID[v] = i
		starts[i] = len(rperm)
		rperm = append(rperm, groups[v]...)
	}
	starts[len(order)] = len(rperm)

	hi := &hashIndex{grouped: true, starts: starts, rperm: rperm, groupID: groupID}
	if useBloom {
		hi.bloom = buildBloomOverKeys(order)
	}
	return hi
}

func buildHashIndexSingle(r Side, fR Accessor, multi Multi, useBloom bool) *hashIndex {
	single := make(map[any]any)
	order := make([]any, 0)
	for _, k := range r.Keys() {
		v := fR(r.Get(k))
		if _, exists := single[v]; !exists {
			order = append(order, v)
			single[v] = k
			continue
		}
		if multi == MultiLast {
			single[v] = k
		}
	}
	hi := &hashIndex{grouped: false, single: single}
	if useBloom {
		hi.bloom = buildBloomOverKeys(order)
	}
	return hi
}

func buildBloomOverKeys(values []any) *bloomFilter {
	bf := newBloomFilter(uint(len(values)), 0.01)
	for _, v := range values {
		bf.add(fmt.Sprintf("%v", v))
	}
	return bf
}

// candidates returns the view of right keys sharing accessor value kL, or
// nil if definitely or actually absent. kL must be directly comparable
// (Go's native ==) to the right-side accessor results, which is the
// standard constraint of any hash-based join: sort and nested-loop accept
// cross-numeric-type equality via compareValues, hash does not.
func (hi *hashIndex) candidates(kL any) []any {
	if hi.bloom != nil && !hi.bloom.test(fmt.Sprintf("%v", kL)) {
		return nil
	}
	if hi.grouped {
		id, ok := hi.groupID[kL]
		if !ok {
			return nil
		}
		return hi.rperm[hi.starts[id]:hi.starts[id+1]]
	}
	if rk, ok := hi.single[kL]; ok {
		return []any{rk}
	}
	return nil
}
