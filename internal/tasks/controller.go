// Package tasks keeps the rendered task list in step with the remote service.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"sync"

	"scrape_bot/internal/model"
)

// maxDisplayURL is the longest hostname+path shown in a row.
const maxDisplayURL = 40

var (
	// ErrConfirmationRequired is returned by Remove when the user has not
	// confirmed the deletion yet.
	ErrConfirmationRequired = errors.New("deletion needs confirmation")

	// ErrBusy is returned when a request for the same task, or another add,
	// is still in flight.
	ErrBusy = errors.New("another request for this task is still in progress")
)

// RefreshError reports that a mutation went through but reloading the list
// afterwards failed. The rows still show the list from before the mutation.
type RefreshError struct {
	Err error
}

func (e *RefreshError) Error() string { return e.Err.Error() }

func (e *RefreshError) Unwrap() error { return e.Err }

// Service is the part of the task service the controller uses.
type Service interface {
	AddTask(ctx context.Context, draft model.TaskDraft) (int64, error)
	ListTasks(ctx context.Context) ([]model.ScrapeTask, error)
	ToggleTask(ctx context.Context, id int64, active bool) error
	DeleteTask(ctx context.Context, id int64) error
}

// Row is one rendered task.
type Row struct {
	ID          int64
	DisplayURL  string
	URL         string
	Weekdays    string
	Time        string
	Active      bool
	Status      string
	ToggleLabel string
	NextActive  bool
}

// NewRow renders a task.
func NewRow(t model.ScrapeTask) Row {
	r := Row{
		ID:          t.ID,
		DisplayURL:  TruncateURL(t.URL),
		URL:         t.URL,
		Weekdays:    t.Schedule.WeekdayList(),
		Time:        t.Schedule.Clock(),
		Active:      t.Active,
		Status:      "stopped",
		ToggleLabel: "Start",
		NextActive:  true,
	}
	if t.Active {
		r.Status = "active"
		r.ToggleLabel = "Stop"
		r.NextActive = false
	}
	return r
}

// TruncateURL renders rawURL as hostname+path, cut to 40 characters with a
// trailing ellipsis. A URL without a host is returned unchanged.
func TruncateURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	display := []rune(u.Hostname() + u.EscapedPath())
	if len(display) <= maxDisplayURL {
		return string(display)
	}
	return string(display[:maxDisplayURL-3]) + "..."
}

// Controller owns the task rows. Every mutation is followed by a full
// reload; rows are never patched locally.
type Controller struct {
	api Service
	log *slog.Logger

	mu       sync.Mutex
	rows     []Row
	inFlight map[int64]bool
	adding   bool
}

// NewController creates a Controller with an empty list.
func NewController(api Service, log *slog.Logger) *Controller {
	return &Controller{
		api:      api,
		log:      log,
		inFlight: make(map[int64]bool),
	}
}

// Rows returns the rows of the last successful refresh.
func (c *Controller) Rows() []Row {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.rows)
}

// Refresh replaces the rows with the service's current task list. On error
// the previous rows are kept.
func (c *Controller) Refresh(ctx context.Context) ([]Row, error) {
	list, err := c.api.ListTasks(ctx)
	if err != nil {
		return c.Rows(), fmt.Errorf("refresh tasks: %w", err)
	}

	rows := make([]Row, 0, len(list))
	for _, t := range list {
		rows = append(rows, NewRow(t))
	}

	c.mu.Lock()
	c.rows = rows
	c.mu.Unlock()

	c.log.Debug("task list refreshed", "count", len(rows))
	return slices.Clone(rows), nil
}

// Add creates a task from draft. Invalid drafts never reach the service.
// The service may not report an ID, in which case it is 0. A *RefreshError
// means the task was created.
func (c *Controller) Add(ctx context.Context, draft model.TaskDraft) (int64, error) {
	if err := draft.Validate(); err != nil {
		return 0, err
	}

	c.mu.Lock()
	if c.adding {
		c.mu.Unlock()
		return 0, ErrBusy
	}
	c.adding = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.adding = false
		c.mu.Unlock()
	}()

	id, err := c.api.AddTask(ctx, draft)
	if err != nil {
		return 0, fmt.Errorf("add task: %w", err)
	}
	c.log.Info("task added", "task_id", id, "url", draft.URL)

	if _, err := c.Refresh(ctx); err != nil {
		return id, &RefreshError{Err: err}
	}
	return id, nil
}

// Toggle sets the active flag of a task. The rows only change through the
// refresh that follows a successful call.
func (c *Controller) Toggle(ctx context.Context, id int64, active bool) error {
	release, err := c.acquire(id)
	if err != nil {
		return err
	}
	defer release()

	if err := c.api.ToggleTask(ctx, id, active); err != nil {
		return fmt.Errorf("toggle task %d: %w", id, err)
	}
	c.log.Info("task toggled", "task_id", id, "active", active)

	if _, err := c.Refresh(ctx); err != nil {
		return &RefreshError{Err: err}
	}
	return nil
}

// Remove deletes a task once the user has confirmed it.
func (c *Controller) Remove(ctx context.Context, id int64, confirmed bool) error {
	if !confirmed {
		return ErrConfirmationRequired
	}

	release, err := c.acquire(id)
	if err != nil {
		return err
	}
	defer release()

	if err := c.api.DeleteTask(ctx, id); err != nil {
		return fmt.Errorf("delete task %d: %w", id, err)
	}
	c.log.Info("task deleted", "task_id", id)

	if _, err := c.Refresh(ctx); err != nil {
		return &RefreshError{Err: err}
	}
	return nil
}

func (c *Controller) acquire(id int64) (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight[id] {
		return nil, ErrBusy
	}
	c.inFlight[id] = true
	return func() {
		c.mu.Lock()
		delete(c.inFlight, id)
		c.mu.Unlock()
	}, nil
}
