package expression

import "strings"

// Scope is the flat variable map consulted by template and condition lookups.
// Values are plain Go types; conversion to Value happens at resolution time.
type Scope = map[string]interface{}

// ResolvePath walks a dotted path through the scope. The first segment is
// looked up at the top level; subsequent segments descend through map-typed
// intermediates. A missing key or a non-map intermediate resolves to null,
// never an error.
func ResolvePath(scope Scope, path []string) Value {
	if len(path) == 0 {
		return Null
	}
	current, ok := scope[path[0]]
	if !ok {
		return Null
	}
	for _, segment := range path[1:] {
		m, ok := asStringMap(current)
		if !ok {
			return Null
		}
		current, ok = m[segment]
		if !ok {
			return Null
		}
	}
	return FromGo(current)
}

// ResolveDotted resolves an "a.b.c" style reference against the scope.
func ResolveDotted(scope Scope, ref string) Value {
	return ResolvePath(scope, strings.Split(ref, "."))
}

func asStringMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(m))
		for k, val := range m {
			if ks, ok := k.(string); ok {
				out[ks] = val
			}
		}
		return out, true
	case MapValue:
		return m.GoValue().(map[string]interface{}), true
	}
	return nil, false
}
