package domain

import (
	"sort"
	"time"
)

// AliasMap maps a stable item identifier to the user's custom label
type AliasMap map[string]string

// Clone returns an independent copy of the map
func (m AliasMap) Clone() AliasMap {
	out := make(AliasMap, len(m))
	for id, label := range m {
		out[id] = label
	}
	return out
}

// Entries returns the map as entries sorted by identifier
func (m AliasMap) Entries() []AliasEntry {
	entries := make([]AliasEntry, 0, len(m))
	for id, label := range m {
		entries = append(entries, AliasEntry{ID: id, Label: label})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ID < entries[j].ID
	})
	return entries
}

// AliasEntry is a single identifier -> label override
type AliasEntry struct {
	ID    string `json:"id" validate:"required"`
	Label string `json:"label" validate:"required"`
}

// Alias event actions
const (
	ActionAdd    = "add"
	ActionRemove = "remove"
)

// AliasEvent records one add or remove made through the settings surface
type AliasEvent struct {
	ID        string    `json:"id"`
	PluginKey string    `json:"plugin_key"`
	ItemID    string    `json:"item_id"`
	Label     string    `json:"label,omitempty"`
	Action    string    `json:"action"`
	CreatedAt time.Time `json:"created_at"`
}
