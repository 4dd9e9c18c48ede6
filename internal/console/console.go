// Package console turns user commands into calls on the capture session, the
// task controller and the results viewer. Front ends only talk to a Console.
package console

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"scrape_bot/internal/capture"
	"scrape_bot/internal/model"
	"scrape_bot/internal/results"
	"scrape_bot/internal/taskapi"
	"scrape_bot/internal/tasks"
)

// Command is a user action.
type Command interface {
	command()
}

// StartCapture begins a selector capture for URL, replacing any running one.
type StartCapture struct{ URL string }

// CancelCapture stops the running capture.
type CancelCapture struct{}

// AddTask submits a draft. A successful add resets the form.
type AddTask struct{ Draft model.TaskDraft }

// ToggleTask sets the active flag of a task.
type ToggleTask struct {
	ID     int64
	Active bool
}

// DeleteTask removes a task. Without Confirmed nothing is sent.
type DeleteTask struct {
	ID        int64
	Confirmed bool
}

// ViewResults opens the result history of a task.
type ViewResults struct{ ID int64 }

// CloseResults dismisses the open result history.
type CloseResults struct{}

// RefreshTasks reloads the task list.
type RefreshTasks struct{}

func (StartCapture) command()  {}
func (CancelCapture) command() {}
func (AddTask) command()       {}
func (ToggleTask) command()    {}
func (DeleteTask) command()    {}
func (ViewResults) command()   {}
func (CloseResults) command()  {}
func (RefreshTasks) command()  {}

// Outcome is the state a front end renders after a command.
type Outcome struct {
	Rows              []tasks.Row
	Modal             *results.Modal
	Capture           capture.Snapshot
	// Added is set when AddTask created the task, even if the list could
	// not be reloaded afterwards. AddedID is 0 when the service did not
	// report one.
	Added             bool
	AddedID           int64
	NeedsConfirmation bool
}

// Form holds the add-task inputs other than the selector, which only the
// capture session provides.
type Form struct {
	URL    string
	Time   string
	Days   []time.Weekday
	Prompt string
}

// Console is the per-user state of the application.
type Console struct {
	session *capture.Session
	tasks   *tasks.Controller
	viewer  *results.Viewer
	log     *slog.Logger

	mu    sync.Mutex
	form  Form
	modal *results.Modal
}

// New creates a Console on top of api.
func New(api taskapi.Service, log *slog.Logger) *Console {
	return &Console{
		session: capture.New(api, log),
		tasks:   tasks.NewController(api, log),
		viewer:  results.NewViewer(api, log),
		log:     log,
	}
}

// Session exposes the capture session for configuration and listeners.
func (c *Console) Session() *capture.Session {
	return c.session
}

// Form returns a copy of the add-task form.
func (c *Console) Form() Form {
	c.mu.Lock()
	defer c.mu.Unlock()
	f := c.form
	f.Days = slices.Clone(f.Days)
	return f
}

// SetTime sets the form's HH:MM time.
func (c *Console) SetTime(raw string) error {
	raw = strings.TrimSpace(raw)
	if _, _, err := model.ParseClock(raw); err != nil {
		return &model.ValidationError{Field: model.FieldTime, Reason: err.Error()}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.form.Time = raw
	return nil
}

// SetDays sets the form's weekdays from a list such as "1,3,5" or "mon wed".
func (c *Console) SetDays(raw string) error {
	days, err := model.ParseWeekdays(raw)
	if err != nil {
		return &model.ValidationError{Field: model.FieldWeekdays, Reason: err.Error()}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.form.Days = model.Schedule{Days: days}.Normalize().Days
	return nil
}

// SetPrompt sets the form's optional custom prompt.
func (c *Console) SetPrompt(prompt string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.form.Prompt = strings.TrimSpace(prompt)
}

// OpenResults returns the open results modal, if any.
func (c *Console) OpenResults() *results.Modal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.modal
}

// Draft builds a task draft from the form and the captured selector.
func (c *Console) Draft() model.TaskDraft {
	f := c.Form()
	d := model.TaskDraft{
		URL:          f.URL,
		Time:         f.Time,
		Days:         f.Days,
		CustomPrompt: f.Prompt,
	}
	if res, ok := c.session.Result(); ok {
		d.Selector = res.Selector
	}
	return d
}

// Dispatch runs cmd. Errors are meant to be shown to the user; the returned
// Outcome is valid even when err is not nil.
func (c *Console) Dispatch(ctx context.Context, cmd Command) (Outcome, error) {
	var (
		out Outcome
		err error
	)

	switch cmd := cmd.(type) {
	case StartCapture:
		c.mu.Lock()
		c.form.URL = strings.TrimSpace(cmd.URL)
		c.mu.Unlock()
		err = c.session.Start(ctx, cmd.URL)
	case CancelCapture:
		c.session.Cancel()
	case AddTask:
		out.AddedID, err = c.tasks.Add(ctx, cmd.Draft)
		var rerr *tasks.RefreshError
		if err == nil || errors.As(err, &rerr) {
			out.Added = true
			c.resetForm()
		}
	case ToggleTask:
		err = c.tasks.Toggle(ctx, cmd.ID, cmd.Active)
	case DeleteTask:
		err = c.tasks.Remove(ctx, cmd.ID, cmd.Confirmed)
		if errors.Is(err, tasks.ErrConfirmationRequired) {
			out.NeedsConfirmation = true
			err = nil
		}
	case ViewResults:
		c.closeModal(ctx)
		var m *results.Modal
		m, err = c.viewer.Open(ctx, cmd.ID)
		if err == nil {
			c.mu.Lock()
			c.modal = m
			c.mu.Unlock()
		}
	case CloseResults:
		c.closeModal(ctx)
	case RefreshTasks:
		_, err = c.tasks.Refresh(ctx)
	default:
		err = fmt.Errorf("unknown command %T", cmd)
	}

	out.Rows = c.tasks.Rows()
	out.Capture = c.session.Snapshot()
	c.mu.Lock()
	out.Modal = c.modal
	c.mu.Unlock()
	return out, err
}

// Close stops the capture session and dismisses any open results.
func (c *Console) Close(ctx context.Context) {
	c.session.Cancel()
	c.closeModal(ctx)
}

func (c *Console) resetForm() {
	c.mu.Lock()
	c.form = Form{}
	c.mu.Unlock()
	c.session.Cancel()
}

func (c *Console) closeModal(ctx context.Context) {
	c.mu.Lock()
	m := c.modal
	c.modal = nil
	c.mu.Unlock()
	if m != nil {
		m.Close(ctx)
	}
}
