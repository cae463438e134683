package chain

import (
	"fmt"
	"strings"
)

// entityKey returns the canonical processed-set key: lower("type:value").
func entityKey(typ, value string) string {
	return strings.ToLower(typ + ":" + value)
}

// makeDedupKey builds the seen_entities key for value. For dict-shaped
// values it joins the named dedupFields (lowercased, trimmed, pipe
// separated); for scalars it's lower(value.strip()). Idempotent: a
// string already run through makeDedupKey produces the same key again,
// since lower(trim(x)) is a fixed point of itself.
func makeDedupKey(value interface{}, dedupFields []string) string {
	switch v := value.(type) {
	case string:
		return strings.ToLower(strings.TrimSpace(v))
	case map[string]interface{}:
		if len(dedupFields) == 0 {
			return scalarDedupKey(v)
		}
		parts := make([]string, 0, len(dedupFields))
		for _, f := range dedupFields {
			if raw, ok := v[f]; ok {
				parts = append(parts, strings.ToLower(strings.TrimSpace(fmt.Sprint(raw))))
			}
		}
		return strings.Join(parts, "|")
	default:
		return strings.ToLower(strings.TrimSpace(fmt.Sprint(v)))
	}
}

// scalarDedupKey is the fallback for a dict value with no declared
// dedup fields: stringify the whole map deterministically enough to
// dedupe exact repeats (field order from a single source's response
// shape is stable run to run).
func scalarDedupKey(v map[string]interface{}) string {
	return strings.ToLower(strings.TrimSpace(fmt.Sprint(v)))
}

// extractedValue is one candidate entity harvested from a rule result's
// data fields by extractEntitiesFromData.
type extractedValue struct {
	Value string
	Type  string
}

// entityFieldPatterns maps an output entity type to the substrings a
// data-field name is checked against (case-insensitive "contains"),
// per spec.md §4.8 step 4's declarative extraction patterns.
var entityFieldPatterns = map[string][]string{
	"email":       {"email", "e-mail", "mail"},
	"phone":       {"phone", "mobile", "telephone", "cell"},
	"username":    {"username", "user", "login", "handle"},
	"domain":      {"domain", "website", "url"},
	"person_name": {"name", "full_name", "person_name"},
}

// entityFieldOrder fixes iteration order over entityFieldPatterns so
// extraction is deterministic across runs (Go map iteration is not).
var entityFieldOrder = []string{"email", "phone", "username", "domain", "person_name"}

// extractEntitiesFromData walks data's fields and harvests values whose
// key matches a known pattern and whose value is a string (or list
// member) of length >= 3, per spec.md §4.8 step 4.
func extractEntitiesFromData(data map[string]interface{}) []extractedValue {
	var out []extractedValue
	for _, typ := range entityFieldOrder {
		for _, pattern := range entityFieldPatterns[typ] {
			for key, value := range data {
				if !strings.Contains(strings.ToLower(key), pattern) {
					continue
				}
				switch v := value.(type) {
				case string:
					if len(v) >= 3 {
						out = append(out, extractedValue{Value: v, Type: typ})
					}
				case []string:
					for _, s := range v {
						if len(s) >= 3 {
							out = append(out, extractedValue{Value: s, Type: typ})
						}
					}
				case []interface{}:
					for _, item := range v {
						if s, ok := item.(string); ok && len(s) >= 3 {
							out = append(out, extractedValue{Value: s, Type: typ})
						}
					}
				}
			}
		}
	}
	return out
}
