package database

import (
	"encoding/json"
	"fmt"
)

// normalize converts an arbitrary Go value into the JSON shapes kept in the
// tree. Nil leaves and empty objects disappear, like they do in a hosted
// realtime database.
func normalize(value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal value: %w", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal value: %w", err)
	}
	return prune(out), nil
}

func prune(value any) any {
	switch v := value.(type) {
	case map[string]any:
		for k, child := range v {
			if c := prune(child); c == nil {
				delete(v, k)
			} else {
				v[k] = c
			}
		}
		if len(v) == 0 {
			return nil
		}
		return v
	case []any:
		for i := range v {
			v[i] = prune(v[i])
		}
		return v
	default:
		return v
	}
}

func deepCopy(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, child := range v {
			out[k] = deepCopy(child)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i := range v {
			out[i] = deepCopy(v[i])
		}
		return out
	default:
		return v
	}
}

func getNode(node any, segs []string) any {
	for _, s := range segs {
		m, ok := node.(map[string]any)
		if !ok {
			return nil
		}
		node = m[s]
	}
	return node
}

// setNode places value at segs below node and returns the new node. A nil
// value deletes, and parents left empty are removed.
func setNode(node any, segs []string, value any) any {
	if len(segs) == 0 {
		return value
	}
	m, ok := node.(map[string]any)
	if !ok {
		if value == nil {
			return node
		}
		m = map[string]any{}
	}
	child := setNode(m[segs[0]], segs[1:], value)
	if child == nil {
		delete(m, segs[0])
	} else {
		m[segs[0]] = child
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

// mergeNode applies a multi-path update relative to base. Field keys may be
// nested paths; nil values delete.
func mergeNode(node any, base []string, fields map[string]any) (any, error) {
	type op struct {
		segs  []string
		value any
	}
	ops := make([]op, 0, len(fields))
	for key, value := range fields {
		rel, err := SplitPath(key)
		if err != nil {
			return node, err
		}
		if len(rel) == 0 {
			return node, fmt.Errorf("%w: empty merge key", ErrInvalidPath)
		}
		v, err := normalize(value)
		if err != nil {
			return node, err
		}
		segs := append(append([]string{}, base...), rel...)
		ops = append(ops, op{segs: segs, value: v})
	}
	for _, o := range ops {
		node = setNode(node, o.segs, o.value)
	}
	return node, nil
}
