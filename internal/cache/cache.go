/*
Copyright (C) 2026 Slateboard Authors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package cache implements the size-bounded local media store. Remote media
// bytes are kept under content-addressable filenames with strict LRU
// eviction and a JSON index persisted across restarts.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"

	"github.com/slateboard/slateboard/internal/events"
	"github.com/slateboard/slateboard/internal/telemetry"
)

// entry is one cached media file. Entries never leave the package; callers
// get copies or paths, never references into the table.
type entry struct {
	URL         string `json:"url"`
	LocalPath   string `json:"localPath"`
	Size        int64  `json:"size"`
	LastAccess  int64  `json:"lastAccess"` // epoch milliseconds
	ContentHash string `json:"contentHash"`

	// seq breaks LRU ties deterministically by insertion order.
	seq int64
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	ItemCount int   `json:"item_count"`
	TotalSize int64 `json:"total_size"`
	MaxSize   int64 `json:"max_size"`
}

// Cache is the media cache. One mutex guards the entry table, totals and
// counters; index file writes happen outside the lock.
type Cache struct {
	dir     string
	bus     *events.Bus
	metrics *telemetry.Metrics
	logger  zerolog.Logger
	client  *http.Client

	mu        sync.Mutex
	entries   map[string]*entry
	maxSize   int64
	totalSize int64
	hits      int64
	misses    int64
	seq       int64

	now       func() int64
	writeFile func(path string, data []byte, perm os.FileMode) error
}

// New opens (or creates) the cache directory, loads the persisted index and
// drops entries whose backing file vanished. The index is a cache of a
// cache; the filesystem always wins.
func New(dir string, maxSize int64, bus *events.Bus, metrics *telemetry.Metrics, logger zerolog.Logger) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	c := &Cache{
		dir:     dir,
		bus:     bus,
		metrics: metrics,
		logger:  logger.With().Str("component", "cache").Logger(),
		client:  &http.Client{Timeout: 2 * time.Minute},
		entries: make(map[string]*entry),
		maxSize: maxSize,
		now:     func() int64 { return time.Now().UnixMilli() },
		writeFile: func(path string, data []byte, perm os.FileMode) error {
			return renameio.WriteFile(path, data, perm)
		},
	}
	c.loadIndex()
	c.metrics.SetCacheSize(c.totalSize)
	return c, nil
}

// Close flushes the index to disk.
func (c *Cache) Close() error {
	c.saveIndex()
	return nil
}

// GetCachedPath returns a local path for url if a live entry exists. A hit
// bumps the access time; a stale entry (file deleted externally) is dropped
// and counted as a miss. No network I/O happens here.
func (c *Cache) GetCachedPath(url string) (string, bool) {
	key := cacheKey(url)

	c.mu.Lock()
	ent, ok := c.entries[key]
	if ok {
		if fileExists(ent.LocalPath) {
			ent.LastAccess = c.now()
			c.hits++
			path := ent.LocalPath
			c.mu.Unlock()
			c.metrics.IncCacheHit()
			c.bus.Publish(events.EventCacheUpdated, events.Payload{"url": url})
			return path, true
		}
		c.removeEntryLocked(key)
	}
	c.misses++
	c.mu.Unlock()

	c.metrics.IncCacheMiss()
	return "", false
}

// IsCached reports whether url has a live entry. Pure existence check: no
// counters, no access-time update.
func (c *Cache) IsCached(url string) bool {
	key := cacheKey(url)
	c.mu.Lock()
	defer c.mu.Unlock()
	ent, ok := c.entries[key]
	return ok && fileExists(ent.LocalPath)
}

// CacheFile stores data under a key derived from url. Writing identical
// content twice only refreshes the access time. Older entries are evicted
// strictly by LRU until the new item fits; the size cap is a soft target, so
// an item larger than the whole budget still lands after the cache empties.
// A disk write failure leaves the cache unchanged; a cache is best-effort.
func (c *Cache) CacheFile(url string, data []byte) {
	key := cacheKey(url)
	hash := contentHash(data)

	c.mu.Lock()
	if existing, ok := c.entries[key]; ok {
		if existing.ContentHash == hash && fileExists(existing.LocalPath) {
			existing.LastAccess = c.now()
			c.mu.Unlock()
			c.logger.Debug().Str("url", url).Msg("content unchanged, access refreshed")
			c.bus.Publish(events.EventCacheUpdated, events.Payload{"url": url})
			return
		}
	}

	// The write replaces the file atomically before the table is touched, so
	// a failed write keeps the previous entry and its content intact.
	localPath := filepath.Join(c.dir, key)
	if err := c.writeFile(localPath, data, 0o644); err != nil {
		c.mu.Unlock()
		c.logger.Error().Err(err).Str("path", localPath).Msg("cache write failed")
		return
	}

	if old, ok := c.entries[key]; ok && old.LocalPath != localPath {
		if err := os.Remove(old.LocalPath); err != nil && !os.IsNotExist(err) {
			c.logger.Warn().Err(err).Str("path", old.LocalPath).Msg("failed to remove stale cache file")
		}
	}
	c.removeEntryLocked(key)
	dataSize := int64(len(data))
	for c.totalSize+dataSize > c.maxSize && len(c.entries) > 0 {
		c.evictLRULocked()
	}

	c.seq++
	c.entries[key] = &entry{
		URL:         url,
		LocalPath:   localPath,
		Size:        dataSize,
		LastAccess:  c.now(),
		ContentHash: hash,
		seq:         c.seq,
	}
	c.totalSize += dataSize
	total := c.totalSize
	c.mu.Unlock()

	c.metrics.SetCacheSize(total)
	c.logger.Debug().Str("url", url).Int64("bytes", dataSize).Msg("stored media")
	c.bus.Publish(events.EventCacheUpdated, events.Payload{"url": url})
	c.saveIndex()
}

// Clear deletes every backing file and resets all counters.
func (c *Cache) Clear() {
	c.mu.Lock()
	for _, ent := range c.entries {
		if err := os.Remove(ent.LocalPath); err != nil && !os.IsNotExist(err) {
			c.logger.Warn().Err(err).Str("path", ent.LocalPath).Msg("failed to remove cache file")
		}
	}
	c.entries = make(map[string]*entry)
	c.totalSize = 0
	c.hits = 0
	c.misses = 0
	c.mu.Unlock()

	c.metrics.SetCacheSize(0)
	c.logger.Info().Msg("cache cleared")
	c.bus.Publish(events.EventCacheUpdated, events.Payload{})
	c.saveIndex()
}

// SetMaxSize updates the budget and evicts immediately if now over it.
func (c *Cache) SetMaxSize(maxSize int64) {
	c.mu.Lock()
	c.maxSize = maxSize
	for c.totalSize > c.maxSize && len(c.entries) > 0 {
		c.evictLRULocked()
	}
	total := c.totalSize
	c.mu.Unlock()

	c.metrics.SetCacheSize(total)
	c.saveIndex()
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		ItemCount: len(c.entries),
		TotalSize: c.totalSize,
		MaxSize:   c.maxSize,
	}
}

// evictLRULocked removes the entry with the smallest access time; equal
// timestamps fall back to insertion order. Caller holds the mutex.
func (c *Cache) evictLRULocked() {
	var oldestKey string
	var oldest *entry
	for key, ent := range c.entries {
		if oldest == nil || ent.LastAccess < oldest.LastAccess ||
			(ent.LastAccess == oldest.LastAccess && ent.seq < oldest.seq) {
			oldest = ent
			oldestKey = key
		}
	}
	if oldest == nil {
		return
	}
	if err := os.Remove(oldest.LocalPath); err != nil && !os.IsNotExist(err) {
		c.logger.Warn().Err(err).Str("path", oldest.LocalPath).Msg("failed to remove evicted file")
	}
	c.removeEntryLocked(oldestKey)
	c.metrics.IncCacheEviction()
	c.logger.Debug().Str("url", oldest.URL).Int64("bytes", oldest.Size).Msg("evicted LRU item")
}

func (c *Cache) removeEntryLocked(key string) {
	if ent, ok := c.entries[key]; ok {
		c.totalSize -= ent.Size
		delete(c.entries, key)
	}
}

func cacheKey(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}

func contentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
