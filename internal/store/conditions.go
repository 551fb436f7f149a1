package store

import (
	"encoding/json"
	"reflect"
)

// normalize pushes a value through its JSON form so condition values and
// stored document values compare on equal footing (numbers become float64,
// uuids and times become strings, slices become []any).
func normalize(v any) any {
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}

// matches evaluates a single condition against a document. Used by the
// in-memory store; the Postgres store compiles conditions to SQL instead.
func matches(doc map[string]any, c Condition) bool {
	field, ok := doc[c.Field]
	if !ok {
		return false
	}
	field = normalize(field)
	value := normalize(c.Value)

	switch c.Operator {
	case OpEqual:
		return reflect.DeepEqual(field, value)
	case OpNotEqual:
		return !reflect.DeepEqual(field, value)
	case OpLess:
		cmp, ok := compare(field, value)
		return ok && cmp < 0
	case OpLessOrEqual:
		cmp, ok := compare(field, value)
		return ok && cmp <= 0
	case OpGreater:
		cmp, ok := compare(field, value)
		return ok && cmp > 0
	case OpGreaterOrEqual:
		cmp, ok := compare(field, value)
		return ok && cmp >= 0
	case OpArrayContains:
		arr, ok := field.([]any)
		if !ok {
			return false
		}
		return containsValue(arr, value)
	case OpArrayContainsAny:
		arr, ok := field.([]any)
		if !ok {
			return false
		}
		wants, ok := value.([]any)
		if !ok {
			return false
		}
		for _, w := range wants {
			if containsValue(arr, w) {
				return true
			}
		}
		return false
	case OpIn:
		wants, ok := value.([]any)
		if !ok {
			return false
		}
		return containsValue(wants, field)
	case OpNotIn:
		wants, ok := value.([]any)
		if !ok {
			return false
		}
		return !containsValue(wants, field)
	default:
		return false
	}
}

func containsValue(arr []any, v any) bool {
	for _, e := range arr {
		if reflect.DeepEqual(e, v) {
			return true
		}
	}
	return false
}

// compare orders two normalized JSON values of the same kind. RFC 3339
// timestamps order correctly as strings.
func compare(a, b any) (int, bool) {
	switch av := a.(type) {
	case float64:
		bv, ok := b.(float64)
		if !ok {
			return 0, false
		}
		switch {
		case av < bv:
			return -1, true
		case av > bv:
			return 1, true
		default:
			return 0, true
		}
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		switch {
		case av < bv:
			return -1, true
		case av > bv:
			return 1, true
		default:
			return 0, true
		}
	default:
		return 0, false
	}
}
