/*
Copyright (C) 2026 Slateboard Authors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package cache

import (
	"fmt"
	"io"
	"net/http"

	"github.com/slateboard/slateboard/internal/events"
)

// PrefetchURL downloads url into the cache asynchronously. Already-cached
// URLs signal success immediately. Completion is reported on the event bus
// as prefetch_complete regardless of outcome; playback never blocks on it.
func (c *Cache) PrefetchURL(url string) {
	if c.IsCached(url) {
		c.logger.Debug().Str("url", url).Msg("already cached, skipping prefetch")
		c.completePrefetch(url, true)
		return
	}

	go func() {
		data, err := c.fetch(url)
		if err != nil {
			c.logger.Warn().Err(err).Str("url", url).Msg("prefetch failed")
			c.completePrefetch(url, false)
			return
		}
		c.CacheFile(url, data)
		c.logger.Debug().Str("url", url).Int("bytes", len(data)).Msg("prefetch complete")
		c.completePrefetch(url, true)
	}()
}

func (c *Cache) fetch(url string) ([]byte, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Slateboard Kiosk Cache")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, url)
	}
	return io.ReadAll(resp.Body)
}

func (c *Cache) completePrefetch(url string, success bool) {
	c.metrics.IncPrefetch(success)
	c.bus.Publish(events.EventPrefetchComplete, events.Payload{
		"url":     url,
		"success": success,
	})
}
