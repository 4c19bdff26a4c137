/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TimeOfDay is a wall-clock minute of the day, serialized as "HH:MM".
type TimeOfDay int

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(raw string) (TimeOfDay, error) {
	parts := strings.SplitN(strings.TrimSpace(raw), ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("%w: time %q must be HH:MM", ErrConfig, raw)
	}
	var hours, minutes int
	if _, err := fmt.Sscanf(parts[0]+" "+parts[1], "%d %d", &hours, &minutes); err != nil {
		return 0, fmt.Errorf("%w: time %q must be HH:MM", ErrConfig, raw)
	}
	if hours < 0 || hours > 23 || minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("%w: time %q out of range", ErrConfig, raw)
	}
	return TimeOfDay(hours*60 + minutes), nil
}

// TimeOfDayFrom truncates a wall-clock time to its minute of the day.
func TimeOfDayFrom(t time.Time) TimeOfDay {
	return TimeOfDay(t.Hour()*60 + t.Minute())
}

// Hour returns the hour component.
func (t TimeOfDay) Hour() int { return int(t) / 60 }

// Minute returns the minute component.
func (t TimeOfDay) Minute() int { return int(t) % 60 }

// Before reports strict ordering within the same day.
func (t TimeOfDay) Before(other TimeOfDay) bool {
	return t < other
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// MarshalJSON serializes as "HH:MM".
func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON parses "HH:MM".
func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseTimeOfDay(raw)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

var weekdayNames = map[string]time.Weekday{
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
	"sun": time.Sunday,
}

// weekdayOrder keeps encoded day lists stable (mon first, matching the
// persisted store format).
var weekdayOrder = []time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday,
	time.Friday, time.Saturday, time.Sunday,
}

// WeekdaySet is a set of weekdays, serialized as ["mon","tue",...].
// An empty set means "every day".
type WeekdaySet map[time.Weekday]bool

// ParseWeekdays builds a set from lowercase three-letter day names.
func ParseWeekdays(names []string) (WeekdaySet, error) {
	set := make(WeekdaySet, len(names))
	for _, name := range names {
		day, ok := weekdayNames[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return nil, fmt.Errorf("%w: unknown weekday %q", ErrConfig, name)
		}
		set[day] = true
	}
	return set, nil
}

// Contains reports membership; empty sets match every day.
func (s WeekdaySet) Contains(day time.Weekday) bool {
	if len(s) == 0 {
		return true
	}
	return s[day]
}

// Names returns the canonical encoded day list.
func (s WeekdaySet) Names() []string {
	names := make([]string, 0, len(s))
	for _, day := range weekdayOrder {
		if s[day] {
			names = append(names, strings.ToLower(day.String()[:3]))
		}
	}
	return names
}

// MarshalJSON serializes the canonical day list.
func (s WeekdaySet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Names())
}

// UnmarshalJSON parses a day-name list.
func (s *WeekdaySet) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	parsed, err := ParseWeekdays(names)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
