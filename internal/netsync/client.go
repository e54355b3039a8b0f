/*
Copyright (C) 2026 Slateboard Authors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package netsync maintains the kiosk's connection to the content server:
// discovery on the local network, schedule/playlist polling, health pings
// and reconnection with exponential backoff.
package netsync

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/slateboard/slateboard/internal/clock"
	"github.com/slateboard/slateboard/internal/events"
	"github.com/slateboard/slateboard/internal/model"
	"github.com/slateboard/slateboard/internal/telemetry"
)

// State is the connection state machine.
type State string

const (
	StateDisconnected State = "disconnected"
	StateDiscovering  State = "discovering"
	StateConnected    State = "connected"
)

const (
	// DefaultPort is the content server port probed during discovery.
	DefaultPort = 3232

	schedulePath = "/api/schedule"
	playlistPath = "/api/media/playlist"
)

// Config tunes the sync client.
type Config struct {
	// ServerAddress, when set, skips discovery ("host:port" or full URL).
	ServerAddress string
	// SubnetPrefix, when set, restricts discovery to that /24 ("10.1.1").
	SubnetPrefix     string
	DiscoveryEnabled bool
	ProbeTimeout     time.Duration
	PollInterval     time.Duration
	PingInterval     time.Duration

	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func (c *Config) fillDefaults() {
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 300 * time.Millisecond
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Minute
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 60 * time.Second
	}
}

// Client polls the content server and publishes what it learns on the event
// bus. All state transitions run on the Run goroutine; accessors take the
// mutex so the status server can read a consistent snapshot.
type Client struct {
	cfg        Config
	bus        *events.Bus
	clk        *clock.Clock
	metrics    *telemetry.Metrics
	logger     zerolog.Logger
	httpClient *http.Client
	instanceID string

	backoff   *backoff.ExponentialBackOff
	reconnect *time.Timer

	mu                sync.Mutex
	state             State
	serverURL         string
	hostname          string
	lastPingMs        int64
	pinged            bool
	reconnectAttempts int
}

// New creates a sync client. The server address from cfg, when present, is
// normalized to a URL immediately; discovery fills it in otherwise.
func New(cfg Config, bus *events.Bus, clk *clock.Clock, metrics *telemetry.Metrics, logger zerolog.Logger) *Client {
	cfg.fillDefaults()
	c := &Client{
		cfg:        cfg,
		bus:        bus,
		clk:        clk,
		metrics:    metrics,
		logger:     logger.With().Str("component", "netsync").Logger(),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		instanceID: uuid.NewString(),
		state:      StateDisconnected,
		serverURL:  fmt.Sprintf("http://localhost:%d", DefaultPort),
	}
	c.backoff = &backoff.ExponentialBackOff{
		InitialInterval:     cfg.InitialBackoff,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         cfg.MaxBackoff,
	}
	c.backoff.Reset()
	if cfg.ServerAddress != "" {
		c.serverURL = normalizeServerURL(cfg.ServerAddress)
	}
	return c
}

// Run drives the client until context cancellation: optional discovery, an
// immediate fetch of both documents, then the polling/ping/reconnect loop.
func (c *Client) Run(ctx context.Context) error {
	if c.cfg.ServerAddress == "" && c.cfg.DiscoveryEnabled {
		c.runDiscovery(ctx)
	}

	c.fetchSchedule(ctx)
	c.fetchPlaylist(ctx)

	pollTicker := time.NewTicker(c.cfg.PollInterval)
	defer pollTicker.Stop()
	pingTicker := time.NewTicker(c.cfg.PingInterval)
	defer pingTicker.Stop()

	c.logger.Info().Str("server", c.ServerURL()).Msg("sync client started")

	for {
		select {
		case <-ctx.Done():
			c.stopReconnectTimer()
			c.logger.Info().Msg("sync client stopped")
			return ctx.Err()
		case <-pollTicker.C:
			if c.State() == StateConnected {
				c.fetchSchedule(ctx)
				c.fetchPlaylist(ctx)
			}
		case <-pingTicker.C:
			if c.State() == StateConnected {
				c.measurePing(ctx)
			}
		case <-c.reconnectFired():
			c.reconnect = nil
			c.attemptReconnection(ctx)
		}
	}
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connected reports whether the last fetch succeeded.
func (c *Client) Connected() bool {
	return c.State() == StateConnected
}

// ServerURL returns the current server base URL.
func (c *Client) ServerURL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverURL
}

// Hostname returns the server-reported hostname, when known.
func (c *Client) Hostname() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hostname
}

// LastPing returns the last measured round-trip time in milliseconds, or -1
// before the first successful ping. A fast LAN round trip legitimately
// measures 0 ms, so "never pinged" is tracked separately.
func (c *Client) LastPing() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.pinged {
		return -1
	}
	return c.lastPingMs
}

// fetchSchedule pulls /api/schedule. Network and parse failures both fall
// back to the built-in default schedule so a disconnected kiosk still shows
// a sensible timeline.
func (c *Client) fetchSchedule(ctx context.Context) {
	body, err := c.get(ctx, schedulePath)
	if err != nil {
		c.scheduleFallback(fmt.Sprintf("failed to fetch schedule: %v", err))
		return
	}

	sched, hostname, err := model.ParseSchedule(body)
	if err != nil {
		c.scheduleFallback("failed to parse schedule JSON")
		return
	}

	c.mu.Lock()
	c.hostname = hostname
	c.mu.Unlock()

	c.bus.Publish(events.EventScheduleReceived, events.Payload{"schedule": sched})
	c.markConnected()
}

func (c *Client) scheduleFallback(msg string) {
	c.logger.Warn().Msg(msg)
	c.metrics.IncNetworkError()
	c.bus.Publish(events.EventNetworkError, events.Payload{"message": msg})
	c.bus.Publish(events.EventScheduleReceived, events.Payload{"schedule": model.DefaultSchedule()})
	c.markDisconnected()
}

// fetchPlaylist pulls /api/media/playlist. A bad document is reported as an
// error and the engine keeps playing the last good playlist.
func (c *Client) fetchPlaylist(ctx context.Context) {
	body, err := c.get(ctx, playlistPath)
	if err != nil {
		c.playlistFailure(fmt.Sprintf("failed to fetch playlist: %v", err))
		return
	}

	playlist, err := model.ParsePlaylist(body, c.ServerURL())
	if err != nil {
		c.playlistFailure(fmt.Sprintf("invalid playlist document: %v", err))
		return
	}

	c.metrics.IncPlaylistReload()
	c.bus.Publish(events.EventPlaylistReceived, events.Payload{"playlist": playlist})
	c.markConnected()
}

func (c *Client) playlistFailure(msg string) {
	c.logger.Warn().Msg(msg)
	c.metrics.IncNetworkError()
	c.bus.Publish(events.EventNetworkError, events.Payload{"message": msg})
	c.markDisconnected()
}

// measurePing issues a HEAD request and records the round trip. The server
// Date header doubles as the time-sync source; sub-2s drift is ignored
// because the header only carries whole seconds.
func (c *Client) measurePing(ctx context.Context) {
	url := c.ServerURL() + schedulePath
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return
	}
	c.setHeaders(req)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug().Err(err).Msg("ping failed")
		c.markDisconnected()
		return
	}
	rtt := time.Since(start)
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	ms := rtt.Milliseconds()
	c.mu.Lock()
	c.lastPingMs = ms
	c.pinged = true
	c.mu.Unlock()

	c.metrics.SetPing(ms)
	c.bus.Publish(events.EventPingUpdated, events.Payload{"ms": ms})

	if dateHeader := resp.Header.Get("Date"); dateHeader != "" {
		if serverTime, err := http.ParseTime(dateHeader); err == nil {
			offset := serverTime.Add(rtt / 2).Sub(time.Now())
			if offset > 2*time.Second || offset < -2*time.Second {
				c.clk.SetOffset(offset)
				c.logger.Info().Dur("offset", offset).Msg("clock offset updated from server")
			}
		}
	}
}

// attemptReconnection retries the schedule fetch. Success flows through
// markConnected which resets the backoff; failure rearms the timer with the
// next, longer delay.
func (c *Client) attemptReconnection(ctx context.Context) {
	c.mu.Lock()
	c.reconnectAttempts++
	attempts := c.reconnectAttempts
	c.mu.Unlock()

	c.metrics.IncReconnectAttempt()
	c.logger.Info().Int("attempt", attempts).Str("server", c.ServerURL()).Msg("attempting reconnection")

	c.fetchSchedule(ctx)
	if c.State() == StateConnected {
		c.fetchPlaylist(ctx)
	}
}

func (c *Client) markConnected() {
	c.mu.Lock()
	wasConnected := c.state == StateConnected
	c.state = StateConnected
	c.reconnectAttempts = 0
	serverURL := c.serverURL
	hostname := c.hostname
	c.mu.Unlock()

	if wasConnected {
		return
	}

	c.backoff.Reset()
	c.stopReconnectTimer()
	c.metrics.SetConnected(true)
	c.logger.Info().Str("server", serverURL).Str("hostname", hostname).Msg("connected to content server")
	c.bus.Publish(events.EventConnectionStatusChanged, events.Payload{
		"connected":  true,
		"server_url": serverURL,
		"hostname":   hostname,
	})
}

func (c *Client) markDisconnected() {
	c.mu.Lock()
	wasConnected := c.state == StateConnected
	c.state = StateDisconnected
	c.mu.Unlock()

	if wasConnected {
		c.metrics.SetConnected(false)
		c.bus.Publish(events.EventConnectionStatusChanged, events.Payload{"connected": false})
	}
	c.armReconnectTimer()
}

// armReconnectTimer starts the reconnection timer with the next backoff
// delay if it is not already running.
func (c *Client) armReconnectTimer() {
	if c.reconnect != nil {
		return
	}
	delay := c.backoff.NextBackOff()
	c.logger.Debug().Dur("delay", delay).Msg("scheduling reconnection attempt")
	c.reconnect = time.NewTimer(delay)
}

func (c *Client) stopReconnectTimer() {
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
}

// reconnectFired returns the pending reconnect channel, or nil (blocks
// forever in select) when no attempt is scheduled.
func (c *Client) reconnectFired() <-chan time.Time {
	if c.reconnect == nil {
		return nil
	}
	return c.reconnect.C
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	url := c.ServerURL() + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", "Slateboard Kiosk/"+c.instanceID)
	req.Header.Set("Content-Type", "application/json")
}

func normalizeServerURL(address string) string {
	if strings.HasPrefix(address, "http://") || strings.HasPrefix(address, "https://") {
		return strings.TrimSuffix(address, "/")
	}
	return "http://" + strings.TrimSuffix(address, "/")
}
