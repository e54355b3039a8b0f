/*
Copyright (C) 2026 Slateboard Authors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package specialevents schedules date-triggered playlist takeovers, such
// as ceremony or announcement loops, from a directory of JSON definitions.
package specialevents

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/slateboard/slateboard/internal/clock"
	"github.com/slateboard/slateboard/internal/events"
	"github.com/slateboard/slateboard/internal/model"
)

// EventDate selects the days an event fires on. A zero field is a wildcard,
// so {Month: 4, Day: 23} fires every April 23rd regardless of year.
type EventDate struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Day   int `json:"day"`
}

// Matches reports whether the date selects the given day.
func (d EventDate) Matches(t time.Time) bool {
	if d.Year != 0 && d.Year != t.Year() {
		return false
	}
	if d.Month != 0 && time.Month(d.Month) != t.Month() {
		return false
	}
	if d.Day != 0 && d.Day != t.Day() {
		return false
	}
	return true
}

// Event is one special-event definition loaded from a JSON file.
type Event struct {
	Title       string            `json:"title"`
	Date        EventDate         `json:"date"`
	TriggerTime string            `json:"trigger_time"` // HH:MM
	Duration    int               `json:"duration"`     // seconds; 0 runs the playlist once
	Muted       bool              `json:"muted"`
	Media       []model.MediaItem `json:"media"`

	trigger model.ClockTime
	source  string
}

// Manager loads event definitions, watches the directory for edits and
// fires special_started / special_ended on the bus at trigger time.
type Manager struct {
	dir    string
	bus    *events.Bus
	clk    *clock.Clock
	logger zerolog.Logger

	mu     sync.Mutex
	events []Event
	fired  map[string]bool // "source|YYYY-MM-DD" for events already run today
}

// NewManager creates a manager over dir. The directory is created if
// missing so operators can drop files in later.
func NewManager(dir string, bus *events.Bus, clk *clock.Clock, logger zerolog.Logger) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create special events dir: %w", err)
	}
	m := &Manager{
		dir:    dir,
		bus:    bus,
		clk:    clk,
		logger: logger.With().Str("component", "specialevents").Logger(),
		fired:  map[string]bool{},
	}
	m.reload()
	return m, nil
}

// Run checks triggers every scheduler tick and reloads definitions when the
// directory changes, until the context is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(m.dir); err != nil {
		return fmt.Errorf("watch %s: %w", m.dir, err)
	}

	ticker := time.NewTicker(20 * time.Second)
	defer ticker.Stop()

	m.logger.Info().Str("dir", m.dir).Int("events", m.Count()).Msg("special events manager started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.checkTriggers()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				m.logger.Debug().Str("file", ev.Name).Msg("event definitions changed, reloading")
				m.reload()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			m.logger.Warn().Err(err).Msg("watcher error")
		}
	}
}

// Count returns the number of loaded definitions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

// reload re-reads every *.json definition in the directory. Broken files
// are logged and skipped; the rest still load.
func (m *Manager) reload() {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		m.logger.Warn().Err(err).Msg("cannot read special events dir")
		return
	}

	var loaded []Event
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(m.dir, entry.Name())
		ev, err := loadEvent(path)
		if err != nil {
			m.logger.Warn().Err(err).Str("file", entry.Name()).Msg("skipping invalid event definition")
			continue
		}
		loaded = append(loaded, ev)
	}

	m.mu.Lock()
	m.events = loaded
	m.mu.Unlock()
	m.logger.Info().Int("events", len(loaded)).Msg("special event definitions loaded")
}

func loadEvent(path string) (Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Event{}, err
	}
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	trigger, err := model.ParseClockTime(ev.TriggerTime)
	if err != nil {
		return Event{}, fmt.Errorf("trigger_time in %s: %w", filepath.Base(path), err)
	}
	if len(ev.Media) == 0 {
		return Event{}, fmt.Errorf("%s declares no media", filepath.Base(path))
	}
	ev.trigger = trigger
	ev.source = path
	return ev, nil
}

// checkTriggers fires any event whose date and trigger minute match the
// current (possibly simulated) time. Each definition fires at most once per
// day.
func (m *Manager) checkTriggers() {
	now := m.clk.Now()
	dayKey := now.Format("2006-01-02")

	m.mu.Lock()
	var due []Event
	for _, ev := range m.events {
		if !ev.Date.Matches(now) {
			continue
		}
		if ev.trigger.Hour != now.Hour() || ev.trigger.Minute != now.Minute() {
			continue
		}
		key := ev.source + "|" + dayKey
		if m.fired[key] {
			continue
		}
		m.fired[key] = true
		due = append(due, ev)
	}
	m.mu.Unlock()

	for _, ev := range due {
		m.fire(ev)
	}
}

// fire publishes the takeover playlist and, for duration-bound events, arms
// the end timer. Events without a duration end through playlist_finished
// instead.
func (m *Manager) fire(ev Event) {
	m.logger.Info().Str("title", ev.Title).Str("trigger", ev.TriggerTime).Msg("special event triggered")

	items := make([]model.MediaItem, len(ev.Media))
	copy(items, ev.Media)
	if ev.Muted {
		for i := range items {
			items[i].Muted = true
		}
	}

	playlist := &model.Playlist{
		Items:   items,
		Special: true,
		Title:   ev.Title,
	}
	m.bus.Publish(events.EventSpecialStarted, events.Payload{
		"title":    ev.Title,
		"playlist": playlist,
	})

	if ev.Duration > 0 {
		title := ev.Title
		time.AfterFunc(time.Duration(ev.Duration)*time.Second, func() {
			m.logger.Info().Str("title", title).Msg("special event duration elapsed")
			m.bus.Publish(events.EventSpecialEnded, events.Payload{"title": title})
		})
	}
}
