/*
Copyright (C) 2026 Slateboard Authors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// scheduleDocument mirrors the /api/schedule wire format.
type scheduleDocument struct {
	SchoolStart    string          `json:"school_start"`
	SchoolEnd      string          `json:"school_end"`
	Blocks         []blockDocument `json:"blocks"`
	ServerHostname string          `json:"server_hostname"`
	ServerIP       string          `json:"server_ip"`
}

type blockDocument struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Name      string `json:"name"`
	Type      string `json:"type"`
}

// playlistDocument mirrors the /api/media/playlist wire format.
type playlistDocument struct {
	AutoRegenerate bool           `json:"auto_regenerate"`
	Items          []itemDocument `json:"items"`
}

type itemDocument struct {
	Type       string `json:"type"`
	URL        string `json:"url"`
	Duration   int    `json:"duration"`
	Muted      bool   `json:"muted"`
	CustomTime string `json:"custom_time"`
}

// ParseSchedule decodes a schedule document. Malformed JSON is an error;
// within a well-formed document every field degrades independently: invalid
// school day boundaries fall back to the defaults, blocks missing a required
// field are dropped, and zero surviving blocks substitutes the complete
// built-in schedule.
func ParseSchedule(data []byte) (Schedule, string, error) {
	var doc scheduleDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return Schedule{}, "", fmt.Errorf("decode schedule document: %w", err)
	}

	sched := Schedule{}

	start, err := ParseClockTime(doc.SchoolStart)
	if err != nil {
		start = DefaultSchoolStart
	}
	end, err := ParseClockTime(doc.SchoolEnd)
	if err != nil {
		end = DefaultSchoolEnd
	}
	sched.SchoolStart = start
	sched.SchoolEnd = end

	for _, b := range doc.Blocks {
		blockStart, err := ParseClockTime(b.StartTime)
		if err != nil {
			continue
		}
		blockEnd, err := ParseClockTime(b.EndTime)
		if err != nil {
			continue
		}
		if b.Name == "" || b.Type == "" {
			continue
		}
		sched.Blocks = append(sched.Blocks, ScheduleBlock{
			Start: blockStart,
			End:   blockEnd,
			Name:  b.Name,
			Type:  BlockType(b.Type),
		})
	}

	if len(sched.Blocks) == 0 {
		sched.Blocks = DefaultSchedule().Blocks
	}

	return sched, doc.ServerHostname, nil
}

// ParsePlaylist decodes a playlist document. Items missing a type or URL are
// dropped; a document yielding zero valid items is an error, never an empty
// playlist. Server-relative URLs (leading "/") are rewritten to absolute
// against serverURL at parse time and are not rewritten again if the server
// address later changes.
func ParsePlaylist(data []byte, serverURL string) (*Playlist, error) {
	var doc playlistDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode playlist document: %w", err)
	}

	playlist := &Playlist{}
	for _, it := range doc.Items {
		if it.Type == "" || it.URL == "" {
			continue
		}
		url := it.URL
		if strings.HasPrefix(url, "/") {
			url = strings.TrimSuffix(serverURL, "/") + url
		}
		playlist.Items = append(playlist.Items, MediaItem{
			Type:       MediaType(it.Type),
			URL:        url,
			Duration:   it.Duration,
			Muted:      it.Muted,
			CustomTime: it.CustomTime,
		})
	}

	if !playlist.HasItems() {
		return nil, fmt.Errorf("playlist document contains no valid items")
	}
	return playlist, nil
}

// LooksLikeSchedule reports whether raw JSON carries the schedule fields the
// discovery probe keys on. Used to tell a signage server apart from whatever
// else answers on the probe port.
func LooksLikeSchedule(data []byte) bool {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return false
	}
	_, hasStart := probe["school_start"]
	_, hasBlocks := probe["blocks"]
	return hasStart || hasBlocks
}
