// Package alias owns the in-memory identifier -> label mapping and keeps it
// persisted through an external key-value backend.
package alias

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pbaille/localrename/internal/domain"
)

var (
	// ErrInvalidAlias is returned when an id or label is blank
	ErrInvalidAlias = errors.New("invalid alias")

	// ErrNotFound is returned when removing an id that has no alias
	ErrNotFound = errors.New("alias not found")
)

var validate = validator.New()

// Persistence is the external key-value capability the mapping lives in
type Persistence interface {
	Load(pluginKey, storageKey string) (domain.AliasMap, error)
	Save(pluginKey, storageKey string, m domain.AliasMap) error
}

// Journal is implemented by backends that keep an add/remove history
type Journal interface {
	RecordEvent(ev domain.AliasEvent) error
}

// Store is the AliasStore. It is not safe for concurrent use; callers keep
// it on the event loop.
type Store struct {
	persist    Persistence
	pluginKey  string
	storageKey string
	aliases    domain.AliasMap
	logger     *slog.Logger
}

// NewStore creates an empty store bound to the given keys
func NewStore(p Persistence, pluginKey, storageKey string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		persist:    p,
		pluginKey:  pluginKey,
		storageKey: storageKey,
		aliases:    domain.AliasMap{},
		logger:     logger,
	}
}

// Load replaces the in-memory mapping with the persisted one. A failing or
// empty backend leaves the store empty; the error is returned for logging
// only.
func (s *Store) Load() error {
	m, err := s.persist.Load(s.pluginKey, s.storageKey)
	if err != nil {
		s.aliases = domain.AliasMap{}
		return fmt.Errorf("load aliases: %w", err)
	}
	s.aliases = domain.AliasMap{}
	for id, label := range m {
		if id != "" && label != "" {
			s.aliases[id] = label
		}
	}
	return nil
}

// Get returns the label for id
func (s *Store) Get(id string) (string, bool) {
	label, ok := s.aliases[id]
	return label, ok
}

// Len returns the number of aliases
func (s *Store) Len() int {
	return len(s.aliases)
}

// Snapshot returns a copy of the mapping
func (s *Store) Snapshot() domain.AliasMap {
	return s.aliases.Clone()
}

// Entries returns the aliases sorted by id
func (s *Store) Entries() []domain.AliasEntry {
	return s.aliases.Entries()
}

// Add sets the label for id and persists the mapping. Both values are
// trimmed and must be non-empty. The in-memory mapping keeps the change even
// when saving fails.
func (s *Store) Add(id, label string) (domain.AliasEntry, error) {
	entry := domain.AliasEntry{ID: strings.TrimSpace(id), Label: strings.TrimSpace(label)}
	if err := validate.Struct(entry); err != nil {
		return entry, fmt.Errorf("%w: %v", ErrInvalidAlias, err)
	}

	s.aliases[entry.ID] = entry.Label
	if err := s.save(); err != nil {
		return entry, err
	}
	s.journal(domain.AliasEvent{ItemID: entry.ID, Label: entry.Label, Action: domain.ActionAdd})
	return entry, nil
}

// Remove deletes the alias for id and persists the mapping
func (s *Store) Remove(id string) error {
	id = strings.TrimSpace(id)
	if _, ok := s.aliases[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	delete(s.aliases, id)
	if err := s.save(); err != nil {
		return err
	}
	s.journal(domain.AliasEvent{ItemID: id, Action: domain.ActionRemove})
	return nil
}

func (s *Store) save() error {
	if err := s.persist.Save(s.pluginKey, s.storageKey, s.aliases.Clone()); err != nil {
		return fmt.Errorf("save aliases: %w", err)
	}
	return nil
}

func (s *Store) journal(ev domain.AliasEvent) {
	j, ok := s.persist.(Journal)
	if !ok {
		return
	}
	ev.PluginKey = s.pluginKey
	if err := j.RecordEvent(ev); err != nil {
		s.logger.Warn("alias journal write failed", "id", ev.ItemID, "error", err)
	}
}
