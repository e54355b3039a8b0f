/*
Copyright (C) 2026 Slateboard Authors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package kiosk wires the subsystems together: sync client, media cache,
// playback engine, special events and the status server, bridged over the
// event bus.
package kiosk

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/slateboard/slateboard/internal/cache"
	"github.com/slateboard/slateboard/internal/clock"
	"github.com/slateboard/slateboard/internal/config"
	"github.com/slateboard/slateboard/internal/events"
	"github.com/slateboard/slateboard/internal/model"
	"github.com/slateboard/slateboard/internal/netsync"
	"github.com/slateboard/slateboard/internal/playback"
	"github.com/slateboard/slateboard/internal/specialevents"
	"github.com/slateboard/slateboard/internal/status"
	"github.com/slateboard/slateboard/internal/telemetry"
)

// Kiosk owns the component graph and the bus bridge between the sync side
// and the playback side.
type Kiosk struct {
	cfg    config.Config
	logger zerolog.Logger

	bus      *events.Bus
	clk      *clock.Clock
	metrics  *telemetry.Metrics
	store    *cache.Cache
	syncCli  *netsync.Client
	engine   *playback.Engine
	specials *specialevents.Manager
	statusSv *status.Server

	mu            sync.Mutex
	schedule      model.Schedule
	regular       *model.Playlist
	specialActive bool

	bgWG sync.WaitGroup
}

// New builds the full component graph. The surface decides how content is
// actually displayed; headless deployments pass a LogSurface.
func New(cfg config.Config, surface playback.Surface, logger zerolog.Logger) (*Kiosk, error) {
	bus := events.NewBus()
	clk := clock.New()
	metrics := telemetry.New()

	if cfg.SimulatedTime != "" {
		simulated, err := parseSimulatedTime(cfg.SimulatedTime)
		if err != nil {
			return nil, fmt.Errorf("invalid simulated time %q: %w", cfg.SimulatedTime, err)
		}
		clk.SetSimulatedTime(simulated)
		logger.Warn().Time("simulated", simulated).Msg("clock pinned to simulated time")
	}

	store, err := cache.New(cfg.CacheDir, cfg.CacheMaxBytes, bus, metrics, logger)
	if err != nil {
		return nil, fmt.Errorf("init media cache: %w", err)
	}

	syncCli := netsync.New(netsync.Config{
		ServerAddress:    cfg.ServerAddress,
		SubnetPrefix:     cfg.SubnetPrefix,
		DiscoveryEnabled: cfg.DiscoveryEnabled,
		ProbeTimeout:     cfg.ProbeTimeout,
		PollInterval:     cfg.PollInterval,
		PingInterval:     cfg.PingInterval,
	}, bus, clk, metrics, logger)

	engine := playback.NewEngine(playback.Config{
		FadeDuration:       cfg.FadeDuration,
		TransitionsEnabled: cfg.TransitionsEnabled,
		ImageDuration:      cfg.ImageDuration,
		CaptureInterval:    cfg.CaptureInterval,
	}, surface, playback.DisplayGrabber{}, store, bus, metrics, logger)

	specials, err := specialevents.NewManager(cfg.SpecialEventsDir, bus, clk, logger)
	if err != nil {
		return nil, fmt.Errorf("init special events: %w", err)
	}

	k := &Kiosk{
		cfg:      cfg,
		logger:   logger.With().Str("component", "kiosk").Logger(),
		bus:      bus,
		clk:      clk,
		metrics:  metrics,
		store:    store,
		syncCli:  syncCli,
		engine:   engine,
		specials: specials,
		schedule: model.DefaultSchedule(),
	}
	k.statusSv = status.New(cfg.StatusBind, syncCli, engine, store, clk, metrics, k.Schedule, logger)
	return k, nil
}

// Schedule returns the currently active schedule snapshot.
func (k *Kiosk) Schedule() model.Schedule {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.schedule
}

// Run starts every component and blocks until the context is cancelled.
func (k *Kiosk) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// The bridge subscribes before any component starts publishing; the bus
	// has no replay, so a playlist arriving ahead of the subscription would
	// be lost until the next poll.
	subs := k.subscribeBridge()
	k.bgWG.Add(1)
	go func() {
		defer k.bgWG.Done()
		k.runBusBridge(ctx, subs)
	}()

	k.startComponent(ctx, "sync client", k.syncCli.Run)
	k.startComponent(ctx, "playback engine", k.engine.Run)
	k.startComponent(ctx, "special events", k.specials.Run)
	k.startComponent(ctx, "status server", k.statusSv.Run)

	k.logger.Info().Msg("kiosk running")
	<-ctx.Done()

	k.bgWG.Wait()
	k.engine.Stop()
	if err := k.store.Close(); err != nil {
		k.logger.Warn().Err(err).Msg("cache close failed")
	}
	k.logger.Info().Msg("kiosk stopped")
	return ctx.Err()
}

func (k *Kiosk) startComponent(ctx context.Context, name string, run func(context.Context) error) {
	k.bgWG.Add(1)
	go func() {
		defer k.bgWG.Done()
		if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			k.logger.Error().Err(err).Str("component", name).Msg("component exited")
		}
	}()
}

// bridgeSubs holds the bus subscriptions the bridge dispatches on.
type bridgeSubs struct {
	schedule     events.Subscriber
	playlist     events.Subscriber
	specialStart events.Subscriber
	specialEnd   events.Subscriber
	finished     events.Subscriber
}

func (k *Kiosk) subscribeBridge() bridgeSubs {
	return bridgeSubs{
		schedule:     k.bus.Subscribe(events.EventScheduleReceived),
		playlist:     k.bus.Subscribe(events.EventPlaylistReceived),
		specialStart: k.bus.Subscribe(events.EventSpecialStarted),
		specialEnd:   k.bus.Subscribe(events.EventSpecialEnded),
		finished:     k.bus.Subscribe(events.EventPlaylistFinished),
	}
}

// runBusBridge applies sync and special-event updates to the playback side.
// New regular playlists are parked while a special event plays and applied
// when it ends.
func (k *Kiosk) runBusBridge(ctx context.Context, subs bridgeSubs) {
	defer func() {
		k.bus.Unsubscribe(events.EventScheduleReceived, subs.schedule)
		k.bus.Unsubscribe(events.EventPlaylistReceived, subs.playlist)
		k.bus.Unsubscribe(events.EventSpecialStarted, subs.specialStart)
		k.bus.Unsubscribe(events.EventSpecialEnded, subs.specialEnd)
		k.bus.Unsubscribe(events.EventPlaylistFinished, subs.finished)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case payload := <-subs.schedule:
			if sched, ok := payload["schedule"].(model.Schedule); ok {
				k.mu.Lock()
				k.schedule = sched
				k.mu.Unlock()
			}
		case payload := <-subs.playlist:
			playlist, ok := payload["playlist"].(*model.Playlist)
			if !ok {
				continue
			}
			k.mu.Lock()
			k.regular = playlist
			active := k.specialActive
			k.mu.Unlock()
			if active {
				k.logger.Info().Msg("playlist update parked behind active special event")
				continue
			}
			k.engine.SetPlaylist(playlist)
		case payload := <-subs.specialStart:
			playlist, ok := payload["playlist"].(*model.Playlist)
			if !ok {
				continue
			}
			k.mu.Lock()
			k.specialActive = true
			k.mu.Unlock()
			k.logger.Info().Str("title", playlist.Title).Msg("special event takeover")
			k.engine.SetPlaylist(playlist)
		case <-subs.specialEnd:
			k.restoreRegular()
		case <-subs.finished:
			k.restoreRegular()
		}
	}
}

// restoreRegular swaps the regular playlist back in after a special event.
func (k *Kiosk) restoreRegular() {
	k.mu.Lock()
	if !k.specialActive {
		k.mu.Unlock()
		return
	}
	k.specialActive = false
	regular := k.regular
	k.mu.Unlock()

	if regular == nil {
		k.logger.Info().Msg("special event ended with no regular playlist to restore")
		k.engine.Stop()
		return
	}
	k.logger.Info().Msg("restoring regular playlist")
	regular.Reset()
	k.engine.SetPlaylist(regular)
}

func parseSimulatedTime(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02 15:04", value, time.Local)
}
