package assets

import (
	"strconv"
	"strings"
)

// AssetProperties is the tree-shaped property bag of a discovered resource.
// Values are scalars, nested bags or lists of either, exactly as they come
// out of a JSON/YAML decoded scanner payload.
type AssetProperties map[string]any

// Value resolves a dot-separated path inside the property bag.
//
// Path segments descend into nested bags. A numeric segment indexes into a
// list; a non-numeric segment applied to a list maps the lookup over every
// element and returns the collected matches as a []any, which lets callers
// apply "any element satisfies" semantics.
func (p AssetProperties) Value(path string) (any, bool) {
	if p == nil || path == "" {
		return nil, false
	}

	var current any = map[string]any(p)

	for _, segment := range strings.Split(path, ".") {
		next, ok := descend(current, segment)
		if !ok {
			return nil, false
		}
		current = next
	}

	return current, true
}

// Has reports whether the path resolves to any value.
func (p AssetProperties) Has(path string) bool {
	_, ok := p.Value(path)
	return ok
}

func descend(current any, segment string) (any, bool) {
	switch v := current.(type) {
	case map[string]any:
		value, ok := v[segment]
		return value, ok
	case AssetProperties:
		value, ok := v[segment]
		return value, ok
	case []any:
		if idx, err := strconv.Atoi(segment); err == nil {
			if idx < 0 || idx >= len(v) {
				return nil, false
			}
			return v[idx], true
		}
		return descendList(v, segment)
	default:
		return nil, false
	}
}

// descendList maps a key lookup over all list elements. The path exists if
// at least one element resolves it.
func descendList(list []any, segment string) (any, bool) {
	var matches []any
	for _, element := range list {
		if value, ok := descend(element, segment); ok {
			matches = append(matches, value)
		}
	}
	if len(matches) == 0 {
		return nil, false
	}
	return matches, true
}

// Copy returns a shallow copy of the top level of the bag. Nested values are
// shared; assets are replaced wholesale on every scan, never merged, so the
// shared subtrees are effectively immutable.
func (p AssetProperties) Copy() AssetProperties {
	if p == nil {
		return nil
	}
	out := make(AssetProperties, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
