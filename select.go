package flexijoin

// plan is the output of mode selection (C4): the chosen Mode, and, for a
// composite condition executed in anchor+filter style, which child is the
// anchor and which remain as a post-filter.
type plan struct {
	mode      Mode
	cond      Condition
	anchor    Condition
	anchorIdx int
	filters   []Condition
}

func (p plan) isAnchored() bool { return p.anchor != nil }

// selectPlan implements C4: pick the best supported mode for cond, honoring
// a user pin in opts.Mode, or return a ConfigError if the pin is unsupported.
func selectPlan(cond Condition, opts Options) (plan, error) {
	if comp, ok := cond.(*CompositeCondition); ok {
		return selectCompositePlan(comp, opts)
	}
	return selectAtomicPlan(cond, opts)
}

func selectAtomicPlan(cond Condition, opts Options) (plan, error) {
	supported := cond.supportedModes()

	if opts.Mode != nil {
		if !hasMode(supported, *opts.Mode) {
			return plan{}, &ConfigError{Code: UnsupportedMode, Message: "pinned mode " + opts.Mode.String() + " is not supported by this condition"}
		}
		return plan{mode: *opts.Mode, cond: cond}, nil
	}

	m, ok := pickAuto(supported, opts.AssumeSorted)
	if !ok {
		return plan{}, &ConfigError{Code: UnsupportedMode, Message: "no indexed mode available for this condition; pin NestedLoop explicitly"}
	}
	return plan{mode: m, cond: cond}, nil
}

func selectCompositePlan(comp *CompositeCondition, opts Options) (plan, error) {
	if opts.Mode != nil && *opts.Mode == ModeNestedLoop {
		return plan{mode: ModeNestedLoop, cond: comp}, nil
	}

	if opts.Mode != nil {
		idx, ok := findAnchor(comp, []Mode{*opts.Mode})
		if !ok {
			return plan{}, &ConfigError{Code: UnsupportedMode, Message: "pinned mode " + opts.Mode.String() + " has no eligible anchor child in this composite"}
		}
		return anchoredPlan(comp, *opts.Mode, idx), nil
	}

	order := autoOrder(opts.AssumeSorted)
	for _, m := range order {
		if idx, ok := findAnchor(comp, []Mode{m}); ok {
			return anchoredPlan(comp, m, idx), nil
		}
	}
	// No child supports an indexed mode: fall back to nested loop.
	return plan{mode: ModeNestedLoop, cond: comp}, nil
}

func anchoredPlan(comp *CompositeCondition, mode Mode, anchorIdx int) plan {
	filters := make([]Condition, 0, len(comp.Children)-1)
	for i, ch := range comp.Children {
		if i == anchorIdx {
			continue
		}
		filters = append(filters, ch)
	}
	return plan{mode: mode, cond: comp, anchor: comp.Children[anchorIdx], anchorIdx: anchorIdx, filters: filters}
}

// findAnchor returns the index of the first child of comp supporting any of
// modes, scanning children in declaration order.
func findAnchor(comp *CompositeCondition, modes []Mode) (int, bool) {
	for idx, ch := range comp.Children {
		if _, isComposite := ch.(*CompositeCondition); isComposite {
			continue // flattened away by And(); defensive only
		}
		supported := ch.supportedModes()
		for _, m := range modes {
			if hasMode(supported, m) {
				return idx, true
			}
		}
	}
	return 0, false
}

func autoOrder(assumeSorted bool) []Mode {
	if assumeSorted {
		return []Mode{ModeHash, ModeTree, ModeSortChain, ModeSort}
	}
	return []Mode{ModeHash, ModeTree, ModeSort}
}

// pickAuto is autoOrder scanned against one condition's supported modes.
func pickAuto(supported []Mode, assumeSorted bool) (Mode, bool) {
	for _, m := range autoOrder(assumeSorted) {
		if hasMode(supported, m) {
			return m, true
		}
	}
	return 0, false
}
