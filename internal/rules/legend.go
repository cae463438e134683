package rules

import "strconv"

// Legend maps the integer field codes used in Step.OutputFields (as
// stored in chain_rules.json) back to human-readable entity field
// names, per spec.md §6's legend.json external interface. A Legend with
// no entries (nil map) is valid: Resolve then just falls back to the
// stringified code.
type Legend struct {
	codes map[string]string
}

// NewLegend wraps a raw code->name map loaded from legend.json. A nil
// map is accepted and behaves as an empty legend.
func NewLegend(raw map[string]string) *Legend {
	if raw == nil {
		raw = make(map[string]string)
	}
	return &Legend{codes: raw}
}

// Resolve returns the field name for code, falling back to the
// stringified integer when the legend has no entry for it.
func (l *Legend) Resolve(code int) string {
	if l != nil {
		if name, ok := l.codes[strconv.Itoa(code)]; ok {
			return name
		}
	}
	return strconv.Itoa(code)
}

// ResolveFields maps a whole Step.OutputFields slice to field names.
func (l *Legend) ResolveFields(codes []int) []string {
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		out = append(out, l.Resolve(c))
	}
	return out
}
