// Package cache provides caching for rendered marker output and query results.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/allegro/bigcache/v3"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Config contains cache configuration.
type Config struct {
	CollectionCacheSizeMB int
	CollectionTTL         time.Duration
	QueryCacheSize        int
}

// Manager manages the marker collection and query caches.
//
// Keys embed a map generation number, so entries written before a dataset
// mutation are never read again and simply age out.
type Manager struct {
	collectionCache *bigcache.BigCache
	queryCache      *lru.Cache[string, []byte]
}

// NewManager creates a new cache manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.CollectionTTL <= 0 {
		cfg.CollectionTTL = 10 * time.Minute
	}
	if cfg.QueryCacheSize <= 0 {
		cfg.QueryCacheSize = 1000
	}

	collectionCacheConfig := bigcache.Config{
		Shards:             64,
		LifeWindow:         cfg.CollectionTTL,
		CleanWindow:        cfg.CollectionTTL / 2,
		MaxEntriesInWindow: 10000,
		MaxEntrySize:       64 * 1024,
		HardMaxCacheSize:   cfg.CollectionCacheSizeMB,
		Verbose:            false,
	}

	collectionCache, err := bigcache.New(context.Background(), collectionCacheConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection cache: %w", err)
	}

	queryCache, err := lru.New[string, []byte](cfg.QueryCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create query cache: %w", err)
	}

	return &Manager{
		collectionCache: collectionCache,
		queryCache:      queryCache,
	}, nil
}

// GetCollection retrieves a serialised marker collection or badge.
func (m *Manager) GetCollection(key string) ([]byte, bool) {
	data, err := m.collectionCache.Get(key)
	if err != nil {
		return nil, false
	}
	return data, true
}

// SetCollection stores a serialised marker collection or badge.
func (m *Manager) SetCollection(key string, data []byte) error {
	return m.collectionCache.Set(key, data)
}

// GetQuery retrieves a query result from cache.
func (m *Manager) GetQuery(key string) ([]byte, bool) {
	return m.queryCache.Get(key)
}

// SetQuery stores a query result in cache.
func (m *Manager) SetQuery(key string, data []byte) {
	m.queryCache.Add(key, data)
}

// CollectionKey generates a cache key for a map's marker collection.
func CollectionKey(mapID string, generation uint64) string {
	return fmt.Sprintf("markers:%s:%d", mapID, generation)
}

// BadgeKey generates a cache key for a marker badge.
func BadgeKey(mapID string, generation uint64, term string, zoom int) string {
	return fmt.Sprintf("badge:%s:%d:%d:%s", mapID, generation, zoom, hashTerm(term))
}

// QueryKey generates a cache key for a term query at a zoom level.
func QueryKey(kind, mapID string, generation uint64, term string, zoom int) string {
	return fmt.Sprintf("%s:%s:%d:%d:%s", kind, mapID, generation, zoom, hashTerm(term))
}

// Terms are free text from the URL; hash them to keep keys bounded.
func hashTerm(term string) string {
	h := sha256.Sum256([]byte(term))
	return hex.EncodeToString(h[:])[:16]
}

// Stats returns cache statistics.
func (m *Manager) Stats() map[string]interface{} {
	return map[string]interface{}{
		"collection_cache_len": m.collectionCache.Len(),
		"collection_cache_cap": m.collectionCache.Capacity(),
		"query_cache_len":      m.queryCache.Len(),
	}
}

// Close closes the cache manager.
func (m *Manager) Close() error {
	return m.collectionCache.Close()
}
