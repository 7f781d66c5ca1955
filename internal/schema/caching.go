package schema

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"bulkupload/internal/logging"
)

// CachingProvider wraps a slower backing Provider (typically one backed by
// the live database catalog) with bounded LRU caches for field and tree
// definition lookups, so repeated per-row, per-field lookups during a large
// upload don't re-hit the backing provider for every row.
type CachingProvider struct {
	inner     Provider
	fields    *lru.Cache[string, FieldInfo]
	treeDefs  *lru.Cache[string, TreeDefinition]
}

// NewCachingProvider wraps inner with LRU caches of the given size (applied
// to both the field-info and tree-definition caches).
func NewCachingProvider(inner Provider, size int) (*CachingProvider, error) {
	fields, err := lru.New[string, FieldInfo](size)
	if err != nil {
		return nil, err
	}
	treeDefs, err := lru.New[string, TreeDefinition](size)
	if err != nil {
		return nil, err
	}
	return &CachingProvider{inner: inner, fields: fields, treeDefs: treeDefs}, nil
}

// FieldInfo implements Provider, consulting the cache before the backing provider.
func (c *CachingProvider) FieldInfo(table, field string) (FieldInfo, bool) {
	key := fieldKey(table, field)
	if info, ok := c.fields.Get(key); ok {
		return info, true
	}
	info, ok := c.inner.FieldInfo(table, field)
	if ok {
		c.fields.Add(key, info)
		logging.Logf(logging.Debug, "schema: cached field info for %s", key)
	}
	return info, ok
}

// TreeDefinition implements Provider, consulting the cache before the backing provider.
func (c *CachingProvider) TreeDefinition(table string, disciplineID int64) (TreeDefinition, bool) {
	key := treeKey(table, disciplineID)
	if def, ok := c.treeDefs.Get(key); ok {
		return def, true
	}
	def, ok := c.inner.TreeDefinition(table, disciplineID)
	if ok {
		c.treeDefs.Add(key, def)
		logging.Logf(logging.Debug, "schema: cached tree definition for %s", key)
	}
	return def, ok
}
