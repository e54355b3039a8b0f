/*
Copyright (C) 2026 Slateboard Authors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package telemetry exposes the kiosk's Prometheus metrics.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the kiosk player.
type Metrics struct {
	registry *prometheus.Registry

	cacheHitsTotal       prometheus.Counter
	cacheMissesTotal     prometheus.Counter
	cacheEvictionsTotal  prometheus.Counter
	cacheSizeBytes       prometheus.Gauge
	prefetchTotal        *prometheus.CounterVec
	reconnectAttempts    prometheus.Counter
	connected            prometheus.Gauge
	pingMilliseconds     prometheus.Gauge
	itemsPlayedTotal     *prometheus.CounterVec
	networkErrorsTotal   prometheus.Counter
	playlistReloadsTotal prometheus.Counter
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
}

// New creates and registers the kiosk metrics.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		cacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "slateboard_cache_hits_total",
			Help: "Media cache lookups that returned a local path",
		}),
		cacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "slateboard_cache_misses_total",
			Help: "Media cache lookups that missed",
		}),
		cacheEvictionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "slateboard_cache_evictions_total",
			Help: "Entries evicted from the media cache",
		}),
		cacheSizeBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "slateboard_cache_size_bytes",
			Help: "Current total size of cached media",
		}),
		prefetchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "slateboard_prefetch_total",
			Help: "Prefetch completions by outcome",
		}, []string{"outcome"}),
		reconnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "slateboard_reconnect_attempts_total",
			Help: "Reconnection attempts against the content server",
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "slateboard_connected",
			Help: "1 while the content server is reachable",
		}),
		pingMilliseconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "slateboard_ping_milliseconds",
			Help: "Last measured round-trip time to the content server",
		}),
		itemsPlayedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "slateboard_items_played_total",
			Help: "Playlist items displayed, by media type",
		}, []string{"type"}),
		networkErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "slateboard_network_errors_total",
			Help: "Fetch or parse failures against the content server",
		}),
		playlistReloadsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "slateboard_playlist_reloads_total",
			Help: "Playlist replacements accepted from the server",
		}),
	}

	registry.MustRegister(
		m.cacheHitsTotal,
		m.cacheMissesTotal,
		m.cacheEvictionsTotal,
		m.cacheSizeBytes,
		m.prefetchTotal,
		m.reconnectAttempts,
		m.connected,
		m.pingMilliseconds,
		m.itemsPlayedTotal,
		m.networkErrorsTotal,
		m.playlistReloadsTotal,
	)
	m.httpRequestsTotal, m.httpRequestDuration = newHTTPMetrics(registry)
	return m
}

// IncCacheHit increments the cache hit counter.
func (m *Metrics) IncCacheHit() { m.cacheHitsTotal.Inc() }

// IncCacheMiss increments the cache miss counter.
func (m *Metrics) IncCacheMiss() { m.cacheMissesTotal.Inc() }

// IncCacheEviction increments the eviction counter.
func (m *Metrics) IncCacheEviction() { m.cacheEvictionsTotal.Inc() }

// SetCacheSize records the current cache size.
func (m *Metrics) SetCacheSize(bytes int64) { m.cacheSizeBytes.Set(float64(bytes)) }

// IncPrefetch records a prefetch completion.
func (m *Metrics) IncPrefetch(success bool) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	m.prefetchTotal.WithLabelValues(outcome).Inc()
}

// IncReconnectAttempt increments the reconnect counter.
func (m *Metrics) IncReconnectAttempt() { m.reconnectAttempts.Inc() }

// SetConnected records server reachability.
func (m *Metrics) SetConnected(up bool) {
	if up {
		m.connected.Set(1)
	} else {
		m.connected.Set(0)
	}
}

// SetPing records the last round-trip time.
func (m *Metrics) SetPing(ms int64) { m.pingMilliseconds.Set(float64(ms)) }

// IncItemPlayed records a displayed playlist item.
func (m *Metrics) IncItemPlayed(mediaType string) {
	m.itemsPlayedTotal.WithLabelValues(mediaType).Inc()
}

// IncNetworkError increments the network error counter.
func (m *Metrics) IncNetworkError() { m.networkErrorsTotal.Inc() }

// IncPlaylistReload increments the playlist replacement counter.
func (m *Metrics) IncPlaylistReload() { m.playlistReloadsTotal.Inc() }

// Handler returns an http.Handler that serves the metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
