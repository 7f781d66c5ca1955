package schema

import (
	"fmt"
	"sync"
)

// MemoryProvider is an in-memory Provider, populated by a deployment's
// bootstrap code (or by tests) and read thereafter. Safe for concurrent
// reads; writes (Set*) are expected to complete before the provider is
// shared across goroutines, but are still guarded for safety.
type MemoryProvider struct {
	mu        sync.RWMutex
	fields    map[string]FieldInfo
	treeDefs  map[string]TreeDefinition
}

// NewMemoryProvider returns an empty provider ready for population.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		fields:   make(map[string]FieldInfo),
		treeDefs: make(map[string]TreeDefinition),
	}
}

func fieldKey(table, field string) string {
	return table + "." + field
}

func treeKey(table string, disciplineID int64) string {
	return fmt.Sprintf("%s#%d", table, disciplineID)
}

// SetField registers the metadata for table.field.
func (p *MemoryProvider) SetField(table, field string, info FieldInfo) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fields[fieldKey(table, field)] = info
}

// SetTreeDefinition registers the rank configuration for table within the
// given discipline.
func (p *MemoryProvider) SetTreeDefinition(table string, disciplineID int64, def TreeDefinition) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.treeDefs[treeKey(table, disciplineID)] = def
}

// FieldInfo implements Provider.
func (p *MemoryProvider) FieldInfo(table, field string) (FieldInfo, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	info, ok := p.fields[fieldKey(table, field)]
	return info, ok
}

// TreeDefinition implements Provider.
func (p *MemoryProvider) TreeDefinition(table string, disciplineID int64) (TreeDefinition, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	def, ok := p.treeDefs[treeKey(table, disciplineID)]
	return def, ok
}
