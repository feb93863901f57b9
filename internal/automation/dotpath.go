package automation

import (
	"fmt"
	"strconv"
	"strings"
)

// dotPathLookup resolves a dotted path (e.g. "agent.id") against a nested
// map[string]any payload, stringifying the leaf value. Returns ok=false
// when any segment is missing (spec §4.9 step 5: "missing → empty string").
func dotPathLookup(payload map[string]any, path string) (string, bool) {
	if path == "" {
		return "", false
	}
	segments := strings.Split(path, ".")
	var current any = payload
	for _, seg := range segments {
		m, ok := current.(map[string]any)
		if !ok {
			return "", false
		}
		v, ok := m[seg]
		if !ok {
			return "", false
		}
		current = v
	}
	return stringify(current), true
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
