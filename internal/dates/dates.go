// Package dates implements the date presets and keyword matching used
// by the task filter tool.
package dates

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Preset names a relative date window for filtering tasks by due date.
type Preset string

const (
	PresetToday     Preset = "today"
	PresetTomorrow  Preset = "tomorrow"
	PresetThisWeek  Preset = "this_week"
	PresetNext7Days Preset = "next_7_days"
	PresetOverdue   Preset = "overdue"
	PresetNoDate    Preset = "no_date"
	PresetAll       Preset = "all"
)

// Presets lists every valid preset name, for tool schemas and errors.
func Presets() []Preset {
	return []Preset{
		PresetToday, PresetTomorrow, PresetThisWeek,
		PresetNext7Days, PresetOverdue, PresetNoDate, PresetAll,
	}
}

// Valid reports whether p names a known preset.
func (p Preset) Valid() bool {
	for _, known := range Presets() {
		if p == known {
			return true
		}
	}

	return false
}

// dateLayouts are the timestamp formats the provider emits, most
// specific first.
var dateLayouts = []string{
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02T15:04:05-0700",
	time.RFC3339,
	"2006-01-02",
}

// Parse parses a provider date string.
func Parse(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized date format: %q", s)
}

// Range returns the half-open window [start, end) for a preset,
// evaluated relative to now in now's location. bounded is false for
// presets that are not plain windows (overdue, no_date, all).
func Range(preset Preset, now time.Time) (start, end time.Time, bounded bool) {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	switch preset {
	case PresetToday:
		return midnight, midnight.AddDate(0, 0, 1), true
	case PresetTomorrow:
		return midnight.AddDate(0, 0, 1), midnight.AddDate(0, 0, 2), true
	case PresetThisWeek:
		// Week starts Monday.
		offset := (int(now.Weekday()) + 6) % 7
		weekStart := midnight.AddDate(0, 0, -offset)

		return weekStart, weekStart.AddDate(0, 0, 7), true
	case PresetNext7Days:
		return midnight, midnight.AddDate(0, 0, 7), true
	default:
		return time.Time{}, time.Time{}, false
	}
}

// Matches reports whether a task due date (provider string form, empty
// when unset) falls under the preset. Unparseable dates never match a
// windowed preset.
func Matches(dueDate string, preset Preset, now time.Time) bool {
	switch preset {
	case PresetAll:
		return true
	case PresetNoDate:
		return dueDate == ""
	case PresetOverdue:
		if dueDate == "" {
			return false
		}

		due, err := Parse(dueDate)
		if err != nil {
			return false
		}

		return due.Before(now)
	default:
		if dueDate == "" {
			return false
		}

		due, err := Parse(dueDate)
		if err != nil {
			return false
		}

		start, end, bounded := Range(preset, now)
		if !bounded {
			return false
		}

		due = due.In(now.Location())

		return !due.Before(start) && due.Before(end)
	}
}

// NormalizeKeyword canonicalizes text for case-insensitive matching.
// NFC first: the provider stores titles as typed, and composed vs
// decomposed accents must compare equal.
func NormalizeKeyword(s string) string {
	return strings.ToLower(norm.NFC.String(s))
}

// ContainsKeyword reports whether keyword occurs in any of the given
// fields after normalization. An empty keyword matches everything.
func ContainsKeyword(keyword string, fields ...string) bool {
	if keyword == "" {
		return true
	}

	needle := NormalizeKeyword(keyword)

	for _, field := range fields {
		if strings.Contains(NormalizeKeyword(field), needle) {
			return true
		}
	}

	return false
}
