package galaxy

import (
	"slices"
	"strings"
)

// UIPrefix marks form elements that exist only to structure the Galaxy UI
// (conditionals, selectors). Their values are folded into the parent when a
// job configuration is cleaned.
const UIPrefix = "__q2galaxy__GUI"

// LiteralPrefix marks option values that select a UI branch rather than
// carry a parameter value.
const LiteralPrefix = "__q2galaxy__::literal::"

// UIVar names a structural UI element, e.g. UIVar("conditional", "metric").
// Empty parts are omitted.
func UIVar(tag, name string) string {
	parts := []string{UIPrefix}
	if tag != "" {
		parts = append(parts, tag)
	}
	if name != "" {
		parts = append(parts, name)
	}
	return strings.Join(parts, "__") + "__"
}

// UILiteral builds a branch-selector option value.
func UILiteral(value string) string {
	return LiteralPrefix + value
}

// IsUIVar reports whether key names a structural UI element.
func IsUIVar(key string) bool {
	return strings.HasPrefix(key, UIPrefix)
}

// CleanInputs flattens the job configuration Galaxy writes for a tool run.
// Structural UI keys holding mappings are merged into the enclosing level,
// list entries holding mappings are replaced by their cleaned values, a list
// of a single null becomes null and strings are unescaped. Structural UI
// keys holding scalars (branch selectors) are dropped.
func CleanInputs(inputs map[string]any) map[string]any {
	cleaned := make(map[string]any, len(inputs))
	for key, value := range inputs {
		if list, ok := value.([]any); ok {
			var items []any
			for _, elem := range list {
				if m, ok := elem.(map[string]any); ok {
					items = append(items, sortedValues(CleanInputs(m))...)
					continue
				}
				items = append(items, elem)
			}
			if len(items) == 1 && items[0] == nil {
				cleaned[key] = nil
			} else {
				if items == nil {
					items = []any{}
				}
				cleaned[key] = items
			}
			continue
		}
		if IsUIVar(key) {
			if m, ok := value.(map[string]any); ok {
				for k, v := range CleanInputs(m) {
					cleaned[k] = v
				}
			}
			continue
		}
		if s, ok := value.(string); ok {
			cleaned[key] = Unesc(s)
			continue
		}
		cleaned[key] = value
	}
	return cleaned
}

// sortedValues returns the values of a cleaned repeat element. Repeat
// elements hold exactly one parameter, so ordering only matters for
// malformed input; keys are sorted to keep the result deterministic.
func sortedValues(m map[string]any) []any {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	out := make([]any, 0, len(keys))
	for _, k := range keys {
		out = append(out, m[k])
	}
	return out
}
