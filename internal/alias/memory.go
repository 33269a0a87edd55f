package alias

import (
	"sync"

	"github.com/pbaille/localrename/internal/domain"
)

// MemoryPersistence keeps saved mappings in process memory. It is used when
// no database is configured and in tests.
type MemoryPersistence struct {
	mu    sync.Mutex
	data  map[string]domain.AliasMap
	saves int

	// LoadErr and SaveErr, when set, are returned by Load and Save
	LoadErr error
	SaveErr error
}

// NewMemoryPersistence returns an empty backend
func NewMemoryPersistence() *MemoryPersistence {
	return &MemoryPersistence{data: make(map[string]domain.AliasMap)}
}

func memKey(pluginKey, storageKey string) string {
	return pluginKey + "\x00" + storageKey
}

// Load returns a copy of the saved mapping, or nil if none was saved
func (p *MemoryPersistence) Load(pluginKey, storageKey string) (domain.AliasMap, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.LoadErr != nil {
		return nil, p.LoadErr
	}
	m, ok := p.data[memKey(pluginKey, storageKey)]
	if !ok {
		return nil, nil
	}
	return m.Clone(), nil
}

// Save stores a copy of m
func (p *MemoryPersistence) Save(pluginKey, storageKey string, m domain.AliasMap) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.SaveErr != nil {
		return p.SaveErr
	}
	p.data[memKey(pluginKey, storageKey)] = m.Clone()
	p.saves++
	return nil
}

// Saves returns how many successful saves happened
func (p *MemoryPersistence) Saves() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.saves
}
