/*
Copyright (C) 2026 Slateboard Authors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package cache

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
)

const indexFile = "index.json"

type indexDocument struct {
	Entries []entry `json:"entries"`
	MaxSize int64   `json:"maxSize"`
}

// loadIndex restores the entry table from the index file. Entries whose
// backing file no longer exists are dropped silently. Called from New before
// the cache is shared, so no locking.
func (c *Cache) loadIndex() {
	data, err := os.ReadFile(filepath.Join(c.dir, indexFile))
	if err != nil {
		c.logger.Debug().Msg("no cache index, starting fresh")
		return
	}

	var doc indexDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		c.logger.Warn().Err(err).Msg("invalid cache index, starting fresh")
		return
	}

	for _, ent := range doc.Entries {
		if !fileExists(ent.LocalPath) {
			continue
		}
		e := ent
		c.seq++
		e.seq = c.seq
		c.entries[cacheKey(e.URL)] = &e
		c.totalSize += e.Size
	}
	c.logger.Info().Int("entries", len(c.entries)).Int64("bytes", c.totalSize).Msg("cache index loaded")
}

// saveIndex snapshots the entry table under the lock and writes it
// atomically outside the lock. Correctness of the table does not depend on
// the write landing; the index is advisory.
func (c *Cache) saveIndex() {
	c.mu.Lock()
	doc := indexDocument{
		Entries: make([]entry, 0, len(c.entries)),
		MaxSize: c.maxSize,
	}
	for _, ent := range c.entries {
		doc.Entries = append(doc.Entries, *ent)
	}
	c.mu.Unlock()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to encode cache index")
		return
	}
	if err := renameio.WriteFile(filepath.Join(c.dir, indexFile), data, 0o644); err != nil {
		c.logger.Error().Err(err).Msg("failed to save cache index")
	}
}
