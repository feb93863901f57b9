package skills

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/bus"
	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/persistence"
	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/telemetry"
)

// ErrNotFound is returned when an operation references an unknown skill id.
var ErrNotFound = fmt.Errorf("skills: not found")

// Store is the Skill Store catalog. The zero value is not usable; use New.
type Store struct {
	mu     sync.Mutex
	skills map[string]*Definition

	store *persistence.Store
	bus   *bus.Bus
	tel   telemetry.Bundle
}

// Option configures a Store.
type Option func(*Store)

// WithStore attaches the persistence Store backing skills/skills.json (and,
// when the Store was built with persistence.WithSideChannel, the dual-write
// to mgr:skills:all).
func WithStore(store *persistence.Store) Option {
	return func(s *Store) { s.store = store }
}

// WithBus attaches the event bus skill:registered/skill:removed are emitted on.
func WithBus(b *bus.Bus) Option {
	return func(s *Store) { s.bus = b }
}

// WithTelemetry attaches a logging/metrics/tracing bundle.
func WithTelemetry(tel telemetry.Bundle) Option {
	return func(s *Store) { s.tel = tel }
}

// New constructs an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		skills: make(map[string]*Definition),
		tel:    telemetry.NewNoop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load populates the catalog from disk, seeding BuiltinSkills if the catalog
// is empty at first boot (spec §4.5).
func (s *Store) Load(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	data, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("skills: load: %w", err)
	}
	var defs []Definition
	if err := json.Unmarshal(data, &defs); err != nil {
		return fmt.Errorf("skills: unmarshal skills.json: %w", err)
	}

	s.mu.Lock()
	if len(defs) == 0 {
		defs = BuiltinSkills()
	}
	for i := range defs {
		d := defs[i]
		s.skills[d.ID] = &d
	}
	s.mu.Unlock()

	if len(s.GetAll()) > 0 {
		return s.persist(ctx)
	}
	return nil
}

// Register inserts or overwrites skill.
func (s *Store) Register(ctx context.Context, def Definition) (*Definition, error) {
	s.mu.Lock()
	s.skills[def.ID] = &def
	s.mu.Unlock()

	if err := s.persist(ctx); err != nil {
		return &def, err
	}
	s.emit(ctx, bus.EventSkillRegistered, map[string]any{"id": def.ID, "strategy": string(def.Strategy)})
	return &def, nil
}

// Remove deletes id from the catalog.
func (s *Store) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	_, ok := s.skills[id]
	if ok {
		delete(s.skills, id)
	}
	s.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	if err := s.persist(ctx); err != nil {
		return err
	}
	s.emit(ctx, bus.EventSkillRemoved, map[string]any{"id": id})
	return nil
}

// Get returns a copy of the skill with id.
func (s *Store) Get(id string) (*Definition, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	def, ok := s.skills[id]
	if !ok {
		return nil, false
	}
	cp := *def
	return &cp, true
}

// List returns every skill, optionally filtered to category, sorted by id.
func (s *Store) List(category string) []*Definition {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Definition, 0, len(s.skills))
	for _, def := range s.skills {
		if category != "" && !def.HasCategory(category) {
			continue
		}
		cp := *def
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetAll is List("").
func (s *Store) GetAll() []*Definition { return s.List("") }

// Search returns skills whose name, description, or id contains any of
// keywords (case-insensitive substring match).
func (s *Store) Search(keywords []string) []*Definition {
	all := s.GetAll()
	if len(keywords) == 0 {
		return all
	}
	lowered := make([]string, len(keywords))
	for i, k := range keywords {
		lowered[i] = strings.ToLower(k)
	}
	out := make([]*Definition, 0, len(all))
	for _, def := range all {
		haystack := strings.ToLower(def.ID + " " + def.Name + " " + def.Description)
		for _, k := range lowered {
			if strings.Contains(haystack, k) {
				out = append(out, def)
				break
			}
		}
	}
	return out
}

// ResolvePrompt substitutes literal {name} placeholders in skill's
// promptTemplate with values from params. Substitution is literal, without
// escaping; unresolved placeholders remain in the string (spec §4.5).
func ResolvePrompt(def Definition, params map[string]string) string {
	out := def.PromptTemplate
	for name, value := range params {
		out = strings.ReplaceAll(out, "{"+name+"}", value)
	}
	return out
}

func (s *Store) persist(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	defs := s.GetAll()
	data, err := json.Marshal(defs)
	if err != nil {
		return fmt.Errorf("skills: marshal: %w", err)
	}
	return s.store.Save(ctx, data)
}

func (s *Store) emit(ctx context.Context, name string, payload map[string]any) {
	if s.bus == nil {
		return
	}
	s.bus.Emit(ctx, name, payload)
}
