package automation

import (
	"path/filepath"
	"regexp"
	"strings"
)

// matchesEvent reports whether eventName satisfies one of rule.Events,
// treating a "prefix:*" entry as a wildcard over everything starting with
// "prefix:" (spec §4.9 step 1).
func matchesEvent(events []string, eventName string) bool {
	for _, pattern := range events {
		if pattern == eventName {
			return true
		}
		if prefix, ok := strings.CutSuffix(pattern, "*"); ok && strings.HasPrefix(eventName, prefix) {
			return true
		}
	}
	return false
}

// hasRequiredFields reports whether every dot-path in fields resolves
// against payload (spec §4.9 step 1).
func hasRequiredFields(payload map[string]any, fields []string) bool {
	for _, f := range fields {
		if _, ok := dotPathLookup(payload, f); !ok {
			return false
		}
	}
	return true
}

// matchesFilters evaluates each filters entry against payload[field]:
// a pattern with the "regex:" prefix is compiled as a regular expression
// (an invalid one never matches); otherwise a pattern containing "*" is
// matched as a glob; anything else is compared for string equality
// (spec §4.9 step 1).
func matchesFilters(payload map[string]any, filters map[string]string) bool {
	for field, pattern := range filters {
		value, _ := dotPathLookup(payload, field)
		if !matchesOne(value, pattern) {
			return false
		}
	}
	return true
}

func matchesOne(value, pattern string) bool {
	if regexSrc, ok := strings.CutPrefix(pattern, "regex:"); ok {
		re, err := regexp.Compile(regexSrc)
		if err != nil {
			return false
		}
		return re.MatchString(value)
	}
	if strings.Contains(pattern, "*") {
		matched, err := filepath.Match(pattern, value)
		return err == nil && matched
	}
	return value == pattern
}
