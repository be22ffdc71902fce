// Package flexijoin implements a generalized relational join engine that
// pairs elements of two in-memory collections according to an extensible
// family of join conditions (key equality, ordered predicates, interval
// relations, and nearest-neighbor distance), producing flat or grouped
// result sets.
//
// The engine normalizes a declarative [Condition] into a canonical
// two-sided form, selects an execution [Mode] (nested loop, sort, hash, or
// a metric tree) from a static capability table, executes the chosen
// strategy to obtain candidate index pairs, and shapes the output
// according to an [Options] value (non-match policy, match multiplicity,
// grouping, and cardinality assertions).
package flexijoin
