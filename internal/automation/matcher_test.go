package automation

import "testing"

func TestMatchesEventExactAndWildcard(t *testing.T) {
	if !matchesEvent([]string{"agent:registered"}, "agent:registered") {
		t.Fatal("expected exact match")
	}
	if !matchesEvent([]string{"workspace:*"}, "workspace:file-changed") {
		t.Fatal("expected wildcard match")
	}
	if matchesEvent([]string{"workspace:*"}, "agent:registered") {
		t.Fatal("expected no match across namespaces")
	}
}

func TestHasRequiredFields(t *testing.T) {
	payload := map[string]any{"agent": map[string]any{"id": "a1"}}
	if !hasRequiredFields(payload, []string{"agent.id"}) {
		t.Fatal("expected agent.id to resolve")
	}
	if hasRequiredFields(payload, []string{"agent.missing"}) {
		t.Fatal("expected agent.missing to fail")
	}
}

func TestMatchesFiltersRegexGlobAndEquality(t *testing.T) {
	payload := map[string]any{
		"path":  "src/main.go",
		"state": "running",
		"count": 3,
	}
	if !matchesFilters(payload, map[string]string{"path": "regex:\\.go$"}) {
		t.Fatal("expected regex filter to match")
	}
	if !matchesFilters(payload, map[string]string{"path": "src/*.go"}) {
		t.Fatal("expected glob filter to match")
	}
	if !matchesFilters(payload, map[string]string{"state": "running"}) {
		t.Fatal("expected equality filter to match")
	}
	if matchesFilters(payload, map[string]string{"state": "stopped"}) {
		t.Fatal("expected equality filter to reject")
	}
	if !matchesFilters(payload, map[string]string{"count": "3"}) {
		t.Fatal("expected numeric stringification to match")
	}
}
