package skills

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/persistence"
)

func TestLoadSeedsBuiltinsWhenCatalogEmpty(t *testing.T) {
	dir := t.TempDir()
	store := persistence.NewStore(filepath.Join(dir, "skills.json"))
	s := New(WithStore(store))

	require.NoError(t, s.Load(context.Background()))

	all := s.GetAll()
	ids := make([]string, 0, len(all))
	for _, def := range all {
		ids = append(ids, def.ID)
	}
	assert.Contains(t, ids, "ask-multiple")
	assert.Contains(t, ids, "code-review")
	assert.Len(t, all, 9)
}

func TestLoadDoesNotReseedExistingCatalog(t *testing.T) {
	dir := t.TempDir()
	store := persistence.NewStore(filepath.Join(dir, "skills.json"))
	ctx := context.Background()

	seeded := New(WithStore(store))
	_, err := seeded.Register(ctx, Definition{ID: "custom", Name: "Custom", PromptTemplate: "{x}", Strategy: StrategySingle})
	require.NoError(t, err)

	reloaded := New(WithStore(persistence.NewStore(filepath.Join(dir, "skills.json"))))
	require.NoError(t, reloaded.Load(ctx))

	all := reloaded.GetAll()
	require.Len(t, all, 1)
	assert.Equal(t, "custom", all[0].ID)
}

func TestResolvePromptLiteralSubstitutionLeavesUnresolvedPlaceholders(t *testing.T) {
	def := Definition{PromptTemplate: "Hello {name}, your code is {code}"}
	out := ResolvePrompt(def, map[string]string{"name": "Ann"})
	assert.Equal(t, "Hello Ann, your code is {code}", out)
}

func TestSearchMatchesNameDescriptionOrID(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, err := s.Register(ctx, Definition{ID: "code-review", Name: "Code Review", Description: "reviews diffs", Strategy: StrategySingle, PromptTemplate: "{diff}"})
	require.NoError(t, err)
	_, err = s.Register(ctx, Definition{ID: "fast-answer", Name: "Fast Answer", Description: "races agents", Strategy: StrategyRace, PromptTemplate: "{q}"})
	require.NoError(t, err)

	found := s.Search([]string{"diff"})
	require.Len(t, found, 1)
	assert.Equal(t, "code-review", found[0].ID)
}

func TestListFiltersByCategory(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, _ = s.Register(ctx, Definition{ID: "a", Strategy: StrategySingle, PromptTemplate: "{x}", Categories: []string{"code"}})
	_, _ = s.Register(ctx, Definition{ID: "b", Strategy: StrategySingle, PromptTemplate: "{x}", Categories: []string{"general"}})

	codeOnly := s.List("code")
	require.Len(t, codeOnly, 1)
	assert.Equal(t, "a", codeOnly[0].ID)
}

func TestRemoveUnknownIDReturnsErrNotFound(t *testing.T) {
	s := New()
	err := s.Remove(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
