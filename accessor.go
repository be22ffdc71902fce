package flexijoin

import (
	"reflect"
	"strings"
)

// Accessor is a pure unary function projecting a value out of a record:
// a join key, a sort/predicate coordinate, an interval, or a distance
// coordinate. Conditions carry one Accessor per side (ByDistance shares a
// single Accessor across both).
type Accessor func(record any) any

// FieldOf builds an Accessor that looks up a named field on a record. It
// supports map[string]any records directly and falls back to reflection for
// structs, returning the first exported field, in declaration order, whose
// name or `json` tag equals name. This is the sugar the normalizer expands a
// bare field-name string into wherever a constructor accepts one.
func FieldOf(name string) Accessor {
	return func(record any) any {
		return lookupField(record, name)
	}
}

func lookupField(record any, name string) any {
	if record == nil {
		return nil
	}
	if m, ok := record.(map[string]any); ok {
		if v, ok := m[name]; ok {
			return v
		}
		return nil
	}

	v := reflect.ValueOf(record)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil
	}
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		if f.Name == name {
			return v.Field(i).Interface()
		}
		if tag := f.Tag.Get("json"); tag != "" {
			if tagName, _, _ := strings.Cut(tag, ","); tagName == name {
				return v.Field(i).Interface()
			}
		}
	}
	return nil
}

// toAccessor normalizes a constructor argument that is either an Accessor, a
// bare field-name string, or nil into an Accessor. nil is returned as a nil
// Accessor.
func toAccessor(v any) Accessor {
	switch t := v.(type) {
	case nil:
		return nil
	case Accessor:
		return t
	case func(any) any:
		return Accessor(t)
	case string:
		return FieldOf(t)
	default:
		panic("flexijoin: accessor must be an Accessor, a func(any) any, or a field-name string")
	}
}
