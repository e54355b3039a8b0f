/*
Copyright (C) 2026 Slateboard Authors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package playback drives the display: playlist cursor, fades between
// items, image timers and live screen mirroring.
package playback

import (
	"image"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// SurfaceEventKind classifies feedback from the display surface.
type SurfaceEventKind int

const (
	// SurfaceVideoFinished signals that the current video reached its end.
	SurfaceVideoFinished SurfaceEventKind = iota
	// SurfaceError signals a decode or display failure for the current item.
	SurfaceError
)

// SurfaceEvent is delivered on Surface.Events while an item is showing.
// Source names the ShowVideo source the event belongs to, so the engine can
// drop completions that outlived a skip.
type SurfaceEvent struct {
	Kind   SurfaceEventKind
	Source string
	Err    error
}

// Surface is the output device the engine renders to. Implementations own
// the actual decoding and drawing; the engine only sequences what to show.
type Surface interface {
	// ShowVideo starts playback of a video file or stream URL. The surface
	// reports completion or failure on Events.
	ShowVideo(source string, muted bool) error
	// ShowImage displays a still image file.
	ShowImage(path string) error
	// ShowFrame displays a raw frame, used for screen mirroring.
	ShowFrame(frame image.Image) error
	// SetOpacity sets the display opacity in [0,1] for fade transitions.
	SetOpacity(level float64)
	// Clear blanks the display.
	Clear()
	// Events delivers asynchronous surface feedback.
	Events() <-chan SurfaceEvent
	Close() error
}

// LogSurface is a headless Surface that logs what it would display. Videos
// report completion after a nominal duration since nothing decodes them.
type LogSurface struct {
	logger        zerolog.Logger
	events        chan SurfaceEvent
	VideoDuration time.Duration

	mu    sync.Mutex
	timer *time.Timer
}

// NewLogSurface creates a headless surface for servers and tests.
func NewLogSurface(logger zerolog.Logger) *LogSurface {
	return &LogSurface{
		logger:        logger.With().Str("component", "surface").Logger(),
		events:        make(chan SurfaceEvent, 8),
		VideoDuration: 10 * time.Second,
	}
}

func (s *LogSurface) ShowVideo(source string, muted bool) error {
	s.logger.Info().Str("source", source).Bool("muted", muted).Msg("video")
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimerLocked()
	s.timer = time.AfterFunc(s.VideoDuration, func() {
		select {
		case s.events <- SurfaceEvent{Kind: SurfaceVideoFinished, Source: source}:
		default:
		}
	})
	return nil
}

func (s *LogSurface) ShowImage(path string) error {
	s.logger.Info().Str("path", path).Msg("image")
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimerLocked()
	return nil
}

// stopTimerLocked drops the pending completion so a superseded video can
// never report in place of its successor.
func (s *LogSurface) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *LogSurface) ShowFrame(frame image.Image) error {
	return nil
}

func (s *LogSurface) SetOpacity(level float64) {}

func (s *LogSurface) Clear() {
	s.mu.Lock()
	s.stopTimerLocked()
	s.mu.Unlock()
	s.logger.Debug().Msg("display cleared")
}

func (s *LogSurface) Events() <-chan SurfaceEvent {
	return s.events
}

func (s *LogSurface) Close() error {
	s.mu.Lock()
	s.stopTimerLocked()
	s.mu.Unlock()
	return nil
}
