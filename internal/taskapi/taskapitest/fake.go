// Package taskapitest provides an in-memory taskapi.Service for tests.
package taskapitest

import (
	"context"
	"slices"
	"sync"

	"scrape_bot/internal/model"
	"scrape_bot/internal/taskapi"
)

// Operation names used by Fake.Fail and Fake.Calls.
const (
	OpPreview     = "PreviewSelector"
	OpGetSelector = "GetSelector"
	OpAdd         = "AddTask"
	OpList        = "ListTasks"
	OpToggle      = "ToggleTask"
	OpDelete      = "DeleteTask"
	OpResults     = "ListResults"
	OpMarkRead    = "MarkRead"
)

// Fake is a taskapi.Service backed by memory. The zero value is not usable;
// call New.
type Fake struct {
	mu       sync.Mutex
	tasks    []model.ScrapeTask
	results  map[int64][]model.ScrapeResult
	nextID   int64
	capture  *model.SelectorCaptureResult
	failures map[string]error
	calls    []string
	gate     chan struct{}
	entered  chan string
	hideIDs  bool
}

var _ taskapi.Service = (*Fake)(nil)

// New creates an empty Fake. Task IDs start at 1.
func New() *Fake {
	return &Fake{
		results:  make(map[int64][]model.ScrapeResult),
		failures: make(map[string]error),
		nextID:   1,
	}
}

// HideTaskIDs makes AddTask answer without an ID, as services that only
// report a status do.
func (f *Fake) HideTaskIDs() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hideIDs = true
}

// SetTasks replaces the stored tasks.
func (f *Fake) SetTasks(tasks ...model.ScrapeTask) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks = slices.Clone(tasks)
	for _, t := range tasks {
		if t.ID >= f.nextID {
			f.nextID = t.ID + 1
		}
	}
}

// Tasks returns a copy of the stored tasks.
func (f *Fake) Tasks() []model.ScrapeTask {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.tasks)
}

// SetResults replaces the result history of a task.
func (f *Fake) SetResults(taskID int64, results ...model.ScrapeResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[taskID] = slices.Clone(results)
}

// Results returns the stored result history of a task.
func (f *Fake) Results(taskID int64) []model.ScrapeResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.results[taskID])
}

// SetCapture sets what GetSelector returns. nil means nothing selected yet.
func (f *Fake) SetCapture(res *model.SelectorCaptureResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.capture = res
}

// Fail makes every later call of op return err. A nil err clears it.
func (f *Fake) Fail(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.failures, op)
		return
	}
	f.failures[op] = err
}

// Hold makes mutating calls block until the returned release func is
// called. Each blocked call reports its operation on entered first.
func (f *Fake) Hold() (entered <-chan string, release func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = make(chan struct{})
	f.entered = make(chan string, 16)
	gate := f.gate
	var once sync.Once
	return f.entered, func() { once.Do(func() { close(gate) }) }
}

// Calls returns the operations invoked so far, in order.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

// CallCount returns how many times op was invoked.
func (f *Fake) CallCount(op string) int {
	n := 0
	for _, c := range f.Calls() {
		if c == op {
			n++
		}
	}
	return n
}

func (f *Fake) begin(op string) error {
	f.mu.Lock()
	f.calls = append(f.calls, op)
	err := f.failures[op]
	f.mu.Unlock()
	return err
}

func (f *Fake) wait(ctx context.Context, op string) error {
	f.mu.Lock()
	gate, entered := f.gate, f.entered
	f.mu.Unlock()
	if gate == nil {
		return nil
	}
	entered <- op
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *Fake) PreviewSelector(_ context.Context, _ string) error {
	return f.begin(OpPreview)
}

func (f *Fake) GetSelector(_ context.Context) (*model.SelectorCaptureResult, error) {
	if err := f.begin(OpGetSelector); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.capture == nil {
		return nil, nil
	}
	res := *f.capture
	return &res, nil
}

func (f *Fake) AddTask(ctx context.Context, draft model.TaskDraft) (int64, error) {
	if err := f.begin(OpAdd); err != nil {
		return 0, err
	}
	sched, err := draft.Schedule()
	if err != nil {
		return 0, err
	}
	if err := f.wait(ctx, OpAdd); err != nil {
		return 0, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.tasks = append(f.tasks, model.ScrapeTask{
		ID:           id,
		URL:          draft.URL,
		Selector:     draft.Selector,
		Schedule:     sched,
		Active:       true,
		CustomPrompt: draft.CustomPrompt,
	})
	if f.hideIDs {
		return 0, nil
	}
	return id, nil
}

func (f *Fake) ListTasks(_ context.Context) ([]model.ScrapeTask, error) {
	if err := f.begin(OpList); err != nil {
		return nil, err
	}
	return f.Tasks(), nil
}

func (f *Fake) ToggleTask(ctx context.Context, id int64, active bool) error {
	if err := f.begin(OpToggle); err != nil {
		return err
	}
	if err := f.wait(ctx, OpToggle); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.tasks {
		if f.tasks[i].ID == id {
			f.tasks[i].Active = active
			return nil
		}
	}
	return &taskapi.ServiceError{Op: "toggle task", StatusCode: 404, Message: "Task not found"}
}

func (f *Fake) DeleteTask(ctx context.Context, id int64) error {
	if err := f.begin(OpDelete); err != nil {
		return err
	}
	if err := f.wait(ctx, OpDelete); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.tasks {
		if f.tasks[i].ID == id {
			f.tasks = slices.Delete(f.tasks, i, i+1)
			delete(f.results, id)
			return nil
		}
	}
	return &taskapi.ServiceError{Op: "delete task", StatusCode: 404, Message: "Task not found"}
}

func (f *Fake) ListResults(_ context.Context, taskID int64) ([]model.ScrapeResult, error) {
	if err := f.begin(OpResults); err != nil {
		return nil, err
	}
	return f.Results(taskID), nil
}

func (f *Fake) MarkRead(_ context.Context, taskID int64) error {
	if err := f.begin(OpMarkRead); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.results[taskID] {
		f.results[taskID][i].IsNew = false
	}
	return nil
}
