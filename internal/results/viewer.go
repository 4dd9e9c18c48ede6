// Package results shows the scrape history of a task and marks it read when
// the view is dismissed.
package results

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"scrape_bot/internal/model"
)

// EmptyMessage is rendered for a task without results.
const EmptyMessage = "No updates yet"

// Service is the part of the task service the viewer uses.
type Service interface {
	ListResults(ctx context.Context, taskID int64) ([]model.ScrapeResult, error)
	MarkRead(ctx context.Context, taskID int64) error
}

// Entry is one rendered result.
type Entry struct {
	Timestamp time.Time
	Summary   string
	Failed    bool
	New       bool
}

// Viewer opens result modals.
type Viewer struct {
	api Service
	log *slog.Logger
}

// NewViewer creates a Viewer.
func NewViewer(api Service, log *slog.Logger) *Viewer {
	return &Viewer{api: api, log: log}
}

// Open fetches the history of a task. Entries keep the service's order.
func (v *Viewer) Open(ctx context.Context, taskID int64) (*Modal, error) {
	list, err := v.api.ListResults(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("load results of task %d: %w", taskID, err)
	}

	entries := make([]Entry, 0, len(list))
	for _, r := range list {
		entries = append(entries, Entry{
			Timestamp: r.Timestamp,
			Summary:   r.Summary,
			Failed:    r.IsFailure(),
			New:       r.IsNew,
		})
	}
	v.log.Debug("results opened", "task_id", taskID, "count", len(entries))

	return &Modal{TaskID: taskID, Entries: entries, api: v.api, log: v.log}, nil
}

// Modal is an open result view.
type Modal struct {
	TaskID  int64
	Entries []Entry

	api  Service
	log  *slog.Logger
	once sync.Once
}

// Empty reports whether the task has no results.
func (m *Modal) Empty() bool {
	return len(m.Entries) == 0
}

// Unread returns the number of entries not seen before.
func (m *Modal) Unread() int {
	n := 0
	for _, e := range m.Entries {
		if e.New {
			n++
		}
	}
	return n
}

// Close marks the task's results read and dismisses the modal. Only the
// first call has an effect. A failed mark-read is logged, never returned:
// the modal closes regardless.
func (m *Modal) Close(ctx context.Context) {
	m.once.Do(func() {
		if err := m.api.MarkRead(ctx, m.TaskID); err != nil {
			m.log.Error("mark results read", "task_id", m.TaskID, "error", err)
			return
		}
		m.log.Debug("results marked read", "task_id", m.TaskID)
	})
}
