/*
Copyright (C) 2026 Slateboard Authors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package model holds the wire-level and in-memory data types shared by the
// sync client, the media cache, and the playback engine.
package model

import "strings"

// MediaType identifies what a playlist item displays.
type MediaType string

const (
	MediaVideo  MediaType = "video"
	MediaImage  MediaType = "image"
	MediaScreen MediaType = "screen"
)

// MediaItem is one playable unit of a playlist. Items are immutable values
// once parsed.
type MediaItem struct {
	Type     MediaType `json:"type"`
	URL      string    `json:"url"`
	Duration int       `json:"duration"` // milliseconds; images only, -1 for videos/screen
	Muted    bool      `json:"muted"`    // videos only

	// CustomTime is set for items of special event playlists (HH:MM).
	CustomTime string `json:"custom_time,omitempty"`
}

// IsRemote reports whether the item URL points at a network resource.
func (m MediaItem) IsRemote() bool {
	return strings.HasPrefix(m.URL, "http://") || strings.HasPrefix(m.URL, "https://")
}

// Playlist is an ordered sequence of media items with a playback cursor.
// A special playlist runs once and signals completion instead of wrapping.
type Playlist struct {
	Items        []MediaItem
	CurrentIndex int
	Special      bool
	SpecialDate  string
	Title        string
}

// HasItems reports whether the playlist is playable.
func (p *Playlist) HasItems() bool {
	return p != nil && len(p.Items) > 0
}

// CurrentItem returns the item under the cursor. Callers must check
// HasItems first; the cursor is always valid for a non-empty playlist.
func (p *Playlist) CurrentItem() MediaItem {
	if !p.HasItems() {
		return MediaItem{}
	}
	return p.Items[p.CurrentIndex]
}

// NextIndex returns the index the cursor would move to on Advance.
func (p *Playlist) NextIndex() int {
	if !p.HasItems() {
		return 0
	}
	return (p.CurrentIndex + 1) % len(p.Items)
}

// PeekNext returns the item one past the cursor, wrapping.
func (p *Playlist) PeekNext() MediaItem {
	if !p.HasItems() {
		return MediaItem{}
	}
	return p.Items[p.NextIndex()]
}

// Advance moves the cursor to the next item. Normal playlists wrap modulo
// length. A special playlist stays on its last item and reports finished
// instead of wrapping.
func (p *Playlist) Advance() (finished bool) {
	if !p.HasItems() {
		return false
	}
	if p.Special && p.CurrentIndex == len(p.Items)-1 {
		return true
	}
	p.CurrentIndex = (p.CurrentIndex + 1) % len(p.Items)
	return false
}

// Reset rewinds the cursor to the first item.
func (p *Playlist) Reset() {
	p.CurrentIndex = 0
}
