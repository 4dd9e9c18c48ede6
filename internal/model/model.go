// Package model defines the domain types used across the application.
package model

import (
	"strings"
	"time"
)

// FailureMarker is the header the scrape service writes into the summary of
// a run that failed.
const FailureMarker = "爬取失败详情"

// ScrapeTask is a recurring scrape configuration owned by the remote service.
type ScrapeTask struct {
	ID           int64
	URL          string
	Selector     string
	Schedule     Schedule
	Active       bool
	CustomPrompt string
}

// SelectorCaptureResult is the outcome of one successful capture session.
type SelectorCaptureResult struct {
	Selector string `json:"selector"`
	Preview  string `json:"preview"`
}

// ScrapeResult is a single entry of a task's result history.
type ScrapeResult struct {
	Timestamp time.Time
	Summary   string
	IsNew     bool
}

// IsFailure reports whether the result records a failed scrape run.
func (r ScrapeResult) IsFailure() bool {
	return strings.Contains(r.Summary, FailureMarker)
}
