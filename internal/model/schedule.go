package model

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Schedule is a weekly recurrence: a set of weekdays plus a time of day.
// Weekdays use time.Weekday numbering, which matches the wire format
// (0 = Sunday).
type Schedule struct {
	Days   []time.Weekday `json:"days"`
	Hour   int            `json:"hour"`
	Minute int            `json:"minute"`
}

// Validate checks the schedule invariants.
func (s Schedule) Validate() error {
	if len(s.Days) == 0 {
		return fmt.Errorf("schedule needs at least one weekday")
	}
	for _, d := range s.Days {
		if d < time.Sunday || d > time.Saturday {
			return fmt.Errorf("weekday %d out of range 0-6", int(d))
		}
	}
	if s.Hour < 0 || s.Hour > 23 {
		return fmt.Errorf("hour %d out of range 0-23", s.Hour)
	}
	if s.Minute < 0 || s.Minute > 59 {
		return fmt.Errorf("minute %d out of range 0-59", s.Minute)
	}
	return nil
}

// Normalize returns a copy with Days sorted and de-duplicated.
func (s Schedule) Normalize() Schedule {
	days := slices.Clone(s.Days)
	slices.Sort(days)
	s.Days = slices.Compact(days)
	return s
}

// Encode serializes the schedule into the opaque string stored by the
// service.
func (s Schedule) Encode() (string, error) {
	if err := s.Validate(); err != nil {
		return "", err
	}
	data, err := json.Marshal(s.Normalize())
	if err != nil {
		return "", fmt.Errorf("marshal schedule: %w", err)
	}
	return string(data), nil
}

// ParseSchedule decodes a schedule string produced by Encode or by the
// service and validates it.
func ParseSchedule(raw string) (Schedule, error) {
	var s Schedule
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return Schedule{}, fmt.Errorf("decode schedule: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Schedule{}, fmt.Errorf("invalid schedule %q: %w", raw, err)
	}
	return s.Normalize(), nil
}

// Clock renders the time of day as zero-padded HH:MM.
func (s Schedule) Clock() string {
	return fmt.Sprintf("%02d:%02d", s.Hour, s.Minute)
}

// WeekdayList renders the days as a comma separated list of short names.
func (s Schedule) WeekdayList() string {
	names := make([]string, 0, len(s.Days))
	for _, d := range s.Normalize().Days {
		names = append(names, d.String()[:3])
	}
	return strings.Join(names, ", ")
}

// ParseClock parses an HH:MM time of day.
func ParseClock(raw string) (hour, minute int, err error) {
	h, m, ok := strings.Cut(strings.TrimSpace(raw), ":")
	if !ok {
		return 0, 0, fmt.Errorf("time %q must be HH:MM", raw)
	}
	hour, err = strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", raw)
	}
	minute, err = strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", raw)
	}
	return hour, minute, nil
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday,
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
}

// ParseWeekdays parses a comma or space separated list of weekdays given
// either as numbers (0 = Sunday) or as names ("mon", "Tuesday").
func ParseWeekdays(raw string) ([]time.Weekday, error) {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' '
	})
	if len(fields) == 0 {
		return nil, fmt.Errorf("at least one weekday is required")
	}

	var days []time.Weekday
	for _, f := range fields {
		f = strings.ToLower(f)
		if n, err := strconv.Atoi(f); err == nil {
			if n < 0 || n > 6 {
				return nil, fmt.Errorf("weekday %d out of range 0-6", n)
			}
			days = append(days, time.Weekday(n))
			continue
		}
		if len(f) < 3 {
			return nil, fmt.Errorf("unknown weekday %q", f)
		}
		d, ok := weekdayNames[f[:3]]
		if !ok {
			return nil, fmt.Errorf("unknown weekday %q", f)
		}
		days = append(days, d)
	}

	slices.Sort(days)
	return slices.Compact(days), nil
}
