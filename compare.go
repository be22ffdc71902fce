package flexijoin

import (
	"cmp"
	"fmt"
	"time"
)

// Comparer lets a record's projected coordinate specify its own ordering
// against another value, the same escape hatch the teacher B-tree exposes
// for keys it does not natively understand.
type Comparer interface {
	Compare(other any) int
}

// compareValues orders two accessor results, handling the common built-in
// numeric and string types plus time.Time and Comparer directly, and
// falling back to a string comparison so two values of otherwise unordered
// dynamic types still produce a total (if arbitrary) order rather than a
// panic.
func compareValues(x, y any) int {
	switch a := x.(type) {
	case string:
		b, ok := y.(string)
		if !ok {
			return cmp.Compare(fmt.Sprintf("%v", x), fmt.Sprintf("%v", y))
		}
		return cmp.Compare(a, b)
	case time.Time:
		b, ok := y.(time.Time)
		if !ok {
			return cmp.Compare(fmt.Sprintf("%v", x), fmt.Sprintf("%v", y))
		}
		return a.Compare(b)
	case Comparer:
		return a.Compare(y)
	}
	// Numeric types compare by magnitude even when x and y arrived as
	// different concrete types (e.g. an int key against a float64 one):
	// two accessors over heterogeneous L/R record shapes routinely produce
	// this mismatch and a same-type-only comparison would silently misorder.
	if xf, xok := toFloat(x); xok {
		if yf, yok := toFloat(y); yok {
			return cmp.Compare(xf, yf)
		}
	}
	return cmp.Compare(fmt.Sprintf("%v", x), fmt.Sprintf("%v", y))
}

func equalValues(x, y any) bool {
	return compareValues(x, y) == 0
}

// toFloat converts int, int32, int64, float32 and float64 values to float64;
// any other type, strings included, reports false. compareValues uses it for
// mixed numeric comparison and the "closest" reductions use it for an actual
// magnitude rather than just an order.
func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case float32:
		return float64(t), true
	case float64:
		return t, true
	default:
		return 0, false
	}
}
