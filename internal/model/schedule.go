/*
Copyright (C) 2026 Slateboard Authors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package model

import (
	"fmt"
	"time"
)

// ClockTime is a wall-clock time of day (no date component).
type ClockTime struct {
	Hour   int
	Minute int
}

// ParseClockTime parses "HH:MM". The zero value is not a valid result; a
// parse failure is reported through the error.
func ParseClockTime(s string) (ClockTime, error) {
	var c ClockTime
	if _, err := fmt.Sscanf(s, "%d:%d", &c.Hour, &c.Minute); err != nil {
		return ClockTime{}, fmt.Errorf("parse clock time %q: %w", s, err)
	}
	if c.Hour < 0 || c.Hour > 23 || c.Minute < 0 || c.Minute > 59 {
		return ClockTime{}, fmt.Errorf("clock time %q out of range", s)
	}
	return c, nil
}

// MustClock is a test/default-table helper; it panics on malformed input.
func MustClock(s string) ClockTime {
	c, err := ParseClockTime(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Minutes returns the minutes since midnight.
func (c ClockTime) Minutes() int {
	return c.Hour*60 + c.Minute
}

// Before reports whether c is earlier in the day than other.
func (c ClockTime) Before(other ClockTime) bool {
	return c.Minutes() < other.Minutes()
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// BlockType categorizes a schedule block.
type BlockType string

const (
	BlockLesson BlockType = "lesson"
	BlockBreak  BlockType = "break"
	BlockLunch  BlockType = "lunch"
)

// ScheduleBlock is one labelled period of the school day.
type ScheduleBlock struct {
	Start ClockTime
	End   ClockTime
	Name  string
	Type  BlockType
}

// Schedule is the ordered, non-overlapping set of blocks covering the school
// day, as received from the server or substituted from defaults.
type Schedule struct {
	SchoolStart ClockTime
	SchoolEnd   ClockTime
	Blocks      []ScheduleBlock
}

// ActivityAt returns the block active at the given wall-clock time, or nil
// when the time falls outside every block (before school, after school).
func (s *Schedule) ActivityAt(t time.Time) *ScheduleBlock {
	minutes := t.Hour()*60 + t.Minute()
	for i := range s.Blocks {
		b := &s.Blocks[i]
		if minutes >= b.Start.Minutes() && minutes < b.End.Minutes() {
			return b
		}
	}
	return nil
}

// Default school day boundaries used when the server omits or mangles them.
var (
	DefaultSchoolStart = ClockTime{Hour: 8, Minute: 50}
	DefaultSchoolEnd   = ClockTime{Hour: 15, Minute: 55}
)

// DefaultSchedule returns the built-in school day used when the server is
// unreachable or sends no valid blocks.
func DefaultSchedule() Schedule {
	return Schedule{
		SchoolStart: DefaultSchoolStart,
		SchoolEnd:   DefaultSchoolEnd,
		Blocks: []ScheduleBlock{
			{MustClock("08:50"), MustClock("09:30"), "Ders 1", BlockLesson},
			{MustClock("09:30"), MustClock("09:40"), "Teneffüs", BlockBreak},
			{MustClock("09:40"), MustClock("10:20"), "Ders 2", BlockLesson},
			{MustClock("10:20"), MustClock("10:30"), "Teneffüs", BlockBreak},
			{MustClock("10:30"), MustClock("11:10"), "Ders 3", BlockLesson},
			{MustClock("11:10"), MustClock("11:20"), "Teneffüs", BlockBreak},
			{MustClock("11:20"), MustClock("12:00"), "Ders 4", BlockLesson},
			{MustClock("12:00"), MustClock("12:45"), "Öğle Arası", BlockLunch},
			{MustClock("12:45"), MustClock("13:25"), "Ders 5", BlockLesson},
			{MustClock("13:25"), MustClock("13:35"), "Teneffüs", BlockBreak},
			{MustClock("13:35"), MustClock("14:15"), "Ders 6", BlockLesson},
			{MustClock("14:15"), MustClock("14:25"), "Teneffüs", BlockBreak},
			{MustClock("14:25"), MustClock("15:05"), "Ders 7", BlockLesson},
			{MustClock("15:05"), MustClock("15:15"), "Teneffüs", BlockBreak},
			{MustClock("15:15"), MustClock("15:55"), "Ders 8", BlockLesson},
		},
	}
}
