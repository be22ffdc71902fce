package flexijoin

import (
	"fmt"
	"reflect"

	"github.com/google/cel-go/cel"
)

// ByExprCondition matches when a compiled CEL boolean expression evaluates
// true against the left and right record, each exposed as a map[string]any
// named "left" and "right". It exists for predicates too irregular to
// express as a single ByPred operator without giving up conjunctive
// composition with the rest of the condition tree (see SPEC_FULL.md §1).
type ByExprCondition struct {
	Expression string
	program    cel.Program
}

// ByExpr compiles expr once and returns a condition evaluating it per pair.
// It panics on a compile error, matching the other condition constructors'
// fail-fast style (configuration mistakes surface synchronously, before any
// data is scanned, per spec.md §7).
func ByExpr(expr string) *ByExprCondition {
	c, err := newExprCondition(expr)
	if err != nil {
		panic(err)
	}
	return c
}

func newExprCondition(expr string) (*ByExprCondition, error) {
	if expr == "" {
		return nil, fmt.Errorf("flexijoin: ByExpr expression must not be empty")
	}
	env, err := cel.NewEnv(
		cel.Variable("left", cel.MapType(cel.StringType, cel.AnyType)),
		cel.Variable("right", cel.MapType(cel.StringType, cel.AnyType)),
	)
	if err != nil {
		return nil, fmt.Errorf("flexijoin: creating CEL environment: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("flexijoin: compiling expression %q: %w", expr, issues.Err())
	}
	prog, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("flexijoin: building CEL program for %q: %w", expr, err)
	}
	return &ByExprCondition{Expression: expr, program: prog}, nil
}

func (c *ByExprCondition) swapSelf() Condition    { return c }
func (c *ByExprCondition) supportedModes() []Mode { return []Mode{ModeNestedLoop} }

func (c *ByExprCondition) isMatch(ctx matchCtx) (bool, error) {
	out, _, err := c.program.Eval(map[string]any{
		"left":  recordToMap(ctx.recL),
		"right": recordToMap(ctx.recR),
	})
	if err != nil {
		return false, &ExecutorError{Side: "L", Index: ctx.keyL, Err: err}
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, &ExecutorError{Side: "L", Index: ctx.keyL, Err: fmt.Errorf("ByExpr %q did not evaluate to a bool", c.Expression)}
	}
	return b, nil
}

// recordToMap exposes a record to CEL as a map[string]any: passed through
// directly for map[string]any records, reflected field-by-field for
// structs, and wrapped under "value" for anything else.
func recordToMap(record any) map[string]any {
	if record == nil {
		return map[string]any{}
	}
	if m, ok := record.(map[string]any); ok {
		return m
	}

	v := reflect.ValueOf(record)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return map[string]any{}
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return map[string]any{"value": record}
	}
	out := make(map[string]any, v.NumField())
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		out[f.Name] = v.Field(i).Interface()
	}
	return out
}
