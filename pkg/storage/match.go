package storage

import (
	"cmp"
	"reflect"
	"strings"
)

// Match reports whether a normalized document satisfies every condition.
// Condition values must be normalized with NormalizeValue.
func Match(doc Document, conds ...Condition) bool {
	for _, c := range conds {
		if !matchOne(doc, c) {
			return false
		}
	}
	return true
}

func matchOne(doc Document, c Condition) bool {
	for _, candidate := range Resolve(map[string]any(doc), strings.Split(c.Key, ".")) {
		if compare(candidate, c.Op, c.Value) {
			return true
		}
	}
	return false
}

// Resolve collects the values found at the dotted path parts within v.
// Arrays are traversed element-wise, and an array found at the end of the
// path contributes both itself and each of its elements.
func Resolve(v any, parts []string) []any {
	if len(parts) == 0 {
		if arr, ok := v.([]any); ok {
			return append([]any{v}, arr...)
		}
		return []any{v}
	}
	switch t := v.(type) {
	case map[string]any:
		next, ok := t[parts[0]]
		if !ok {
			return nil
		}
		return Resolve(next, parts[1:])
	case Document:
		return Resolve(map[string]any(t), parts)
	case []any:
		var out []any
		for _, elem := range t {
			out = append(out, Resolve(elem, parts)...)
		}
		return out
	default:
		return nil
	}
}

func compare(a any, op Op, b any) bool {
	switch op {
	case OpEq:
		return reflect.DeepEqual(a, b)
	case OpLt, OpGt:
		var order int
		switch x := a.(type) {
		case float64:
			y, ok := b.(float64)
			if !ok {
				return false
			}
			order = cmp.Compare(x, y)
		case string:
			y, ok := b.(string)
			if !ok {
				return false
			}
			order = strings.Compare(x, y)
		default:
			return false
		}
		if op == OpLt {
			return order < 0
		}
		return order > 0
	}
	return false
}
