/*
Copyright (C) 2026 Slateboard Authors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playback

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/slateboard/slateboard/internal/cache"
	"github.com/slateboard/slateboard/internal/events"
	"github.com/slateboard/slateboard/internal/model"
	"github.com/slateboard/slateboard/internal/telemetry"
)

// EngineState names what the engine is currently doing.
type EngineState string

const (
	StateIdle          EngineState = "idle"
	StatePlayingVideo  EngineState = "playing_video"
	StatePlayingImage  EngineState = "playing_image"
	StatePlayingScreen EngineState = "playing_screen"
	StateFadingOut     EngineState = "fading_out"
	StateFadingIn      EngineState = "fading_in"
)

const fadeSteps = 10

// Config tunes the playback engine.
type Config struct {
	FadeDuration       time.Duration
	TransitionsEnabled bool
	ImageDuration      time.Duration
	CaptureInterval    time.Duration
}

func (c *Config) fillDefaults() {
	if c.FadeDuration <= 0 {
		c.FadeDuration = 300 * time.Millisecond
	}
	if c.ImageDuration <= 0 {
		c.ImageDuration = 5 * time.Second
	}
	if c.CaptureInterval <= 0 {
		c.CaptureInterval = 100 * time.Millisecond
	}
}

// Engine sequences playlist items onto a Surface. Every transition bumps a
// generation counter; timer and capture callbacks carry the generation they
// were armed with and become no-ops once it is stale, so a manual skip can
// never race an expiring image timer.
type Engine struct {
	cfg     Config
	surface Surface
	grabber FrameGrabber
	store   *cache.Cache
	bus     *events.Bus
	metrics *telemetry.Metrics
	logger  zerolog.Logger

	mu               sync.Mutex
	playlist         *model.Playlist
	state            EngineState
	gen              uint64
	lastType         model.MediaType
	videoSource      string
	imageTimer       *time.Timer
	finishedSignaled bool
}

// NewEngine creates an idle engine. Grabber may be nil when the playlist
// will never contain screen items.
func NewEngine(cfg Config, surface Surface, grabber FrameGrabber, store *cache.Cache, bus *events.Bus, metrics *telemetry.Metrics, logger zerolog.Logger) *Engine {
	cfg.fillDefaults()
	return &Engine{
		cfg:     cfg,
		surface: surface,
		grabber: grabber,
		store:   store,
		bus:     bus,
		metrics: metrics,
		logger:  logger.With().Str("component", "playback").Logger(),
		state:   StateIdle,
	}
}

// Run consumes surface feedback until the context is cancelled. Video
// completion and decode errors both advance the cursor.
func (e *Engine) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			e.Stop()
			return ctx.Err()
		case ev := <-e.surface.Events():
			switch ev.Kind {
			case SurfaceVideoFinished:
				e.mu.Lock()
				// A completion for anything but the video on screen is a
				// leftover from a skipped item and is dropped.
				if e.state == StatePlayingVideo && ev.Source == e.videoSource {
					e.advanceLocked()
				}
				e.mu.Unlock()
			case SurfaceError:
				e.logger.Warn().Err(ev.Err).Msg("surface reported playback error, skipping item")
				e.mu.Lock()
				e.advanceLocked()
				e.mu.Unlock()
			}
		}
	}
}

// State returns the current engine state.
func (e *Engine) State() EngineState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Current returns the item under the cursor and its index, or ok=false when
// idle with no playlist.
func (e *Engine) Current() (model.MediaItem, int, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.playlist.HasItems() {
		return model.MediaItem{}, 0, false
	}
	return e.playlist.CurrentItem(), e.playlist.CurrentIndex, true
}

// SetPlaylist replaces the active playlist and starts playing it from its
// cursor position.
func (e *Engine) SetPlaylist(p *model.Playlist) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.playlist = p
	e.finishedSignaled = false
	if !p.HasItems() {
		e.stopLocked()
		return
	}
	e.playLocked()
}

// Play starts (or restarts) the item under the cursor.
func (e *Engine) Play() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.playlist.HasItems() {
		return
	}
	e.playLocked()
}

// Next skips to the next item.
func (e *Engine) Next() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.advanceLocked()
}

// Stop halts playback and blanks the surface.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked()
}

func (e *Engine) stopLocked() {
	e.gen++
	e.cancelTimersLocked()
	e.state = StateIdle
	e.lastType = ""
	e.videoSource = ""
	e.surface.SetOpacity(1)
	e.surface.Clear()
}

// advanceLocked moves on to the next item. When a fade is eligible the
// outgoing item fades out first and the cursor moves only in the completion
// callback, so Current keeps reporting what is actually on screen. A skip
// landing mid-transition cuts instantly; the abandoned fade dies on its
// stale generation.
func (e *Engine) advanceLocked() {
	if !e.playlist.HasItems() {
		return
	}
	midFade := e.state == StateFadingOut || e.state == StateFadingIn
	if !midFade && e.fadeEligible(e.lastType, e.playlist.PeekNext().Type) {
		e.gen++
		gen := e.gen
		e.cancelTimersLocked()
		e.state = StateFadingOut
		e.fadeStep(gen, 1, -1.0/fadeSteps, func() {
			e.stepCursorLocked(true)
		})
		return
	}
	e.stepCursorLocked(false)
}

// stepCursorLocked advances the cursor and shows the new current item. A
// finishing special playlist signals playlist_finished exactly once and goes
// idle; the supervisor restores the regular playlist in response.
func (e *Engine) stepCursorLocked(fadeIn bool) {
	if finished := e.playlist.Advance(); finished {
		if !e.finishedSignaled {
			e.finishedSignaled = true
			e.logger.Info().Str("title", e.playlist.Title).Msg("special playlist finished")
			e.bus.Publish(events.EventPlaylistFinished, events.Payload{"title": e.playlist.Title})
		}
		e.stopLocked()
		return
	}
	e.showCurrentLocked(fadeIn)
}

// playLocked shows the item under the cursor without a transition.
func (e *Engine) playLocked() {
	e.showCurrentLocked(false)
}

// showCurrentLocked shows the item under the cursor: skip unplayable types,
// queue the prefetch for the upcoming item, then hand the surface the
// content, ramping opacity back up when arriving from a fade-out.
func (e *Engine) showCurrentLocked(fadeIn bool) {
	e.gen++
	gen := e.gen
	e.cancelTimersLocked()

	item, ok := e.skipUnknownLocked()
	if !ok {
		e.logger.Warn().Msg("playlist holds no playable items")
		e.state = StateIdle
		e.surface.SetOpacity(1)
		return
	}

	e.prefetchNextLocked()
	e.lastType = item.Type

	if fadeIn && item.Type != model.MediaVideo {
		e.surface.SetOpacity(0)
		e.displayLocked(item, gen)
		if gen != e.gen {
			return
		}
		e.state = StateFadingIn
		e.fadeStep(gen, 0, 1.0/fadeSteps, func() {
			e.surface.SetOpacity(1)
			e.setPlayingStateLocked(item.Type)
		})
		return
	}

	e.surface.SetOpacity(1)
	e.displayLocked(item, gen)
	if gen != e.gen {
		return
	}
	e.setPlayingStateLocked(item.Type)
}

// skipUnknownLocked advances past items with unrecognized types, at most one
// full pass through the playlist.
func (e *Engine) skipUnknownLocked() (model.MediaItem, bool) {
	for attempts := 0; attempts < len(e.playlist.Items); attempts++ {
		item := e.playlist.CurrentItem()
		switch item.Type {
		case model.MediaVideo, model.MediaImage, model.MediaScreen:
			return item, true
		}
		e.logger.Warn().Str("type", string(item.Type)).Str("url", item.URL).Msg("skipping item with unknown media type")
		if finished := e.playlist.Advance(); finished {
			return model.MediaItem{}, false
		}
	}
	return model.MediaItem{}, false
}

func (e *Engine) prefetchNextLocked() {
	next := e.playlist.PeekNext()
	if next.IsRemote() && !e.store.IsCached(next.URL) {
		e.store.PrefetchURL(next.URL)
	}
}

// fadeEligible: fades only bridge two non-video items. Videos hard-cut so
// their first frames are never shown dimmed.
func (e *Engine) fadeEligible(prev, next model.MediaType) bool {
	if !e.cfg.TransitionsEnabled || prev == "" {
		return false
	}
	return prev != model.MediaVideo && next != model.MediaVideo
}

// fadeStep walks opacity toward 0 or 1 in fixed increments and calls done
// at the boundary. Each step re-checks the generation so an interrupted
// fade dies quietly.
func (e *Engine) fadeStep(gen uint64, level, delta float64, done func()) {
	interval := e.cfg.FadeDuration / fadeSteps
	next := level + delta
	if next < 0 {
		next = 0
	}
	if next > 1 {
		next = 1
	}
	time.AfterFunc(interval, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if gen != e.gen {
			return
		}
		e.surface.SetOpacity(next)
		if next <= 0 || next >= 1 {
			done()
			return
		}
		e.fadeStep(gen, next, delta, done)
	})
}

func (e *Engine) setPlayingStateLocked(t model.MediaType) {
	switch t {
	case model.MediaVideo:
		e.state = StatePlayingVideo
	case model.MediaImage:
		e.state = StatePlayingImage
	case model.MediaScreen:
		e.state = StatePlayingScreen
	}
}

// displayLocked hands one item to the surface and arms its advance path:
// videos report back via surface events, images and screen mirrors run on a
// duration timer.
func (e *Engine) displayLocked(item model.MediaItem, gen uint64) {
	e.metrics.IncItemPlayed(string(item.Type))
	e.bus.Publish(events.EventMediaChanged, events.Payload{
		"type":  string(item.Type),
		"url":   item.URL,
		"index": e.playlist.CurrentIndex,
	})

	switch item.Type {
	case model.MediaVideo:
		source := e.resolveSource(item)
		if err := e.surface.ShowVideo(source, item.Muted); err != nil {
			e.logger.Warn().Err(err).Str("source", source).Msg("video failed to start, skipping")
			e.advanceLocked()
			return
		}
		e.videoSource = source
		e.logger.Info().Str("source", source).Bool("muted", item.Muted).Msg("playing video")

	case model.MediaImage:
		source := e.resolveSource(item)
		if err := e.surface.ShowImage(source); err != nil {
			e.logger.Warn().Err(err).Str("source", source).Msg("image failed to display, skipping")
			e.advanceLocked()
			return
		}
		d := e.itemDuration(item)
		e.imageTimer = time.AfterFunc(d, func() { e.timerAdvance(gen) })
		e.logger.Info().Str("source", source).Dur("duration", d).Msg("showing image")

	case model.MediaScreen:
		d := e.itemDuration(item)
		e.imageTimer = time.AfterFunc(d, func() { e.timerAdvance(gen) })
		go e.captureLoop(gen)
		e.logger.Info().Dur("duration", d).Msg("mirroring screen")
	}
}

// resolveSource maps a remote URL to its cached file when available. A miss
// streams the URL directly while the prefetch fills the cache for next time.
func (e *Engine) resolveSource(item model.MediaItem) string {
	if !item.IsRemote() {
		return item.URL
	}
	if path, ok := e.store.GetCachedPath(item.URL); ok {
		return path
	}
	e.store.PrefetchURL(item.URL)
	return item.URL
}

func (e *Engine) itemDuration(item model.MediaItem) time.Duration {
	if item.Duration > 0 {
		return time.Duration(item.Duration) * time.Millisecond
	}
	return e.cfg.ImageDuration
}

func (e *Engine) timerAdvance(gen uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.gen {
		return
	}
	e.advanceLocked()
}

// captureLoop feeds grabbed frames to the surface until its generation goes
// stale. Grabs run outside the lock; only the staleness check takes it.
func (e *Engine) captureLoop(gen uint64) {
	if e.grabber == nil {
		return
	}
	ticker := time.NewTicker(e.cfg.CaptureInterval)
	defer ticker.Stop()
	for range ticker.C {
		e.mu.Lock()
		stale := gen != e.gen
		e.mu.Unlock()
		if stale {
			return
		}
		frame, err := e.grabber.Grab()
		if err != nil {
			frame = placeholderFrame("screen capture unavailable")
		}
		_ = e.surface.ShowFrame(frame)
	}
}

func (e *Engine) cancelTimersLocked() {
	if e.imageTimer != nil {
		e.imageTimer.Stop()
		e.imageTimer = nil
	}
}
