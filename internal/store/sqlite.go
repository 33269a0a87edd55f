package store

import (
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pbaille/localrename/internal/domain"
)

//go:embed schema.sql
var schema string

// Store handles database operations
type Store struct {
	db *sql.DB
}

// New creates a new Store with the given database path
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Initialize schema
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Load returns the mapping saved under (pluginKey, storageKey).
// A missing row yields a nil map and no error.
func (s *Store) Load(pluginKey, storageKey string) (domain.AliasMap, error) {
	var value string
	err := s.db.QueryRow(
		"SELECT value FROM plugin_data WHERE plugin_key = ? AND storage_key = ?",
		pluginKey, storageKey,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load plugin data: %w", err)
	}

	var m domain.AliasMap
	if err := json.Unmarshal([]byte(value), &m); err != nil {
		return nil, fmt.Errorf("decode plugin data: %w", err)
	}
	return m, nil
}

// Save replaces the mapping stored under (pluginKey, storageKey)
func (s *Store) Save(pluginKey, storageKey string, m domain.AliasMap) error {
	if m == nil {
		m = domain.AliasMap{}
	}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode plugin data: %w", err)
	}

	_, err = s.db.Exec(
		"INSERT OR REPLACE INTO plugin_data (plugin_key, storage_key, value, updated_at) VALUES (?, ?, ?, ?)",
		pluginKey, storageKey, string(data), time.Now(),
	)
	if err != nil {
		return fmt.Errorf("save plugin data: %w", err)
	}
	return nil
}

// RecordEvent appends an add/remove event to the alias journal
func (s *Store) RecordEvent(ev domain.AliasEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}

	_, err := s.db.Exec(
		"INSERT INTO alias_events (id, plugin_key, item_id, label, action, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		ev.ID, ev.PluginKey, ev.ItemID, ev.Label, ev.Action, ev.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert alias event: %w", err)
	}
	return nil
}

// ListEvents returns the most recent journal events for a plugin, newest first
func (s *Store) ListEvents(pluginKey string, limit int) ([]domain.AliasEvent, error) {
	rows, err := s.db.Query(
		"SELECT id, plugin_key, item_id, label, action, created_at FROM alias_events WHERE plugin_key = ? ORDER BY created_at DESC LIMIT ?",
		pluginKey, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list alias events: %w", err)
	}
	defer rows.Close()

	var events []domain.AliasEvent
	for rows.Next() {
		var e domain.AliasEvent
		if err := rows.Scan(&e.ID, &e.PluginKey, &e.ItemID, &e.Label, &e.Action, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan alias event: %w", err)
		}
		events = append(events, e)
	}

	return events, rows.Err()
}
