package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/andybalholm/cascadia"
)

// Draft fields, in the order they are validated.
const (
	FieldURL      = "url"
	FieldSelector = "selector"
	FieldTime     = "time"
	FieldWeekdays = "weekdays"
)

// ValidationError reports a missing or malformed field of a local form.
// It is produced before any network call is attempted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s is required", e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// TaskDraft is the add-task form as filled in by the user.
type TaskDraft struct {
	URL          string
	Selector     string
	Time         string // HH:MM
	Days         []time.Weekday
	CustomPrompt string
}

// Validate checks that url, selector, time and at least one weekday are
// present and well formed.
func (d TaskDraft) Validate() error {
	if strings.TrimSpace(d.URL) == "" {
		return &ValidationError{Field: FieldURL}
	}
	if strings.TrimSpace(d.Selector) == "" {
		return &ValidationError{Field: FieldSelector}
	}
	if strings.TrimSpace(d.Time) == "" {
		return &ValidationError{Field: FieldTime}
	}
	if len(d.Days) == 0 {
		return &ValidationError{Field: FieldWeekdays}
	}

	if _, err := cascadia.ParseGroup(d.Selector); err != nil {
		return &ValidationError{Field: FieldSelector, Reason: err.Error()}
	}
	if _, _, err := ParseClock(d.Time); err != nil {
		return &ValidationError{Field: FieldTime, Reason: err.Error()}
	}
	if err := (Schedule{Days: d.Days}).Validate(); err != nil {
		return &ValidationError{Field: FieldWeekdays, Reason: err.Error()}
	}
	return nil
}

// Schedule converts a validated draft into its schedule.
func (d TaskDraft) Schedule() (Schedule, error) {
	if err := d.Validate(); err != nil {
		return Schedule{}, err
	}
	hour, minute, _ := ParseClock(d.Time)
	return Schedule{Days: d.Days, Hour: hour, Minute: minute}.Normalize(), nil
}
