// Package capture runs the selector capture handshake: the service opens a
// page for an operator, and the session polls the service's mailbox until a
// selector shows up or the deadline passes.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"scrape_bot/internal/model"
)

// Default protocol timings.
const (
	DefaultPollInterval = 1 * time.Second
	DefaultTimeout      = 60 * time.Second
)

// ErrTimedOut is reported when a session reaches its deadline without a
// captured selector.
var ErrTimedOut = errors.New("selector capture timed out")

// State is a position in the capture state machine.
type State int

// Capture states.
const (
	Idle State = iota
	Requesting
	Polling
	Captured
	TimedOut
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Requesting:
		return "requesting"
	case Polling:
		return "polling"
	case Captured:
		return "captured"
	case TimedOut:
		return "timed out"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether the state ends a session.
func (s State) Terminal() bool {
	return s == Captured || s == TimedOut || s == Failed
}

// Poller is the part of the task service the session talks to.
type Poller interface {
	PreviewSelector(ctx context.Context, url string) error
	GetSelector(ctx context.Context) (*model.SelectorCaptureResult, error)
}

// Snapshot is a consistent view of a session.
type Snapshot struct {
	State  State
	URL    string
	Result *model.SelectorCaptureResult
	Err    error
}

// Display renders the selector as shown to the user.
func (s Snapshot) Display() string {
	switch s.State {
	case Requesting, Polling:
		return "Selecting..."
	case Captured:
		var b strings.Builder
		fmt.Fprintf(&b, "Selector: %s", s.Result.Selector)
		if s.Result.Preview != "" {
			fmt.Fprintf(&b, "\nPreview: %s", s.Result.Preview)
		}
		return b.String()
	default:
		return "Not selected"
	}
}

// Session owns at most one capture at a time, along with its poll ticker
// and deadline. Starting a new capture cancels the previous one.
type Session struct {
	api      Poller
	log      *slog.Logger
	interval time.Duration
	timeout  time.Duration

	mu       sync.Mutex
	gen      uint64
	state    State
	url      string
	result   *model.SelectorCaptureResult
	err      error
	cancel   context.CancelFunc
	done     chan struct{}
	ended    chan struct{}
	listener func(Snapshot)
}

// New creates an idle Session.
func New(api Poller, log *slog.Logger) *Session {
	return &Session{
		api:      api,
		log:      log,
		interval: DefaultPollInterval,
		timeout:  DefaultTimeout,
	}
}

// SetPollInterval overrides the default 1-second poll interval.
func (s *Session) SetPollInterval(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interval = d
}

// SetTimeout overrides the default 60-second capture deadline.
func (s *Session) SetTimeout(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeout = d
}

// SetListener registers fn to receive every state transition. fn runs
// outside the session lock and must not block for long.
func (s *Session) SetListener(fn func(Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listener = fn
}

// Snapshot returns the current state of the session.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Display renders the currently displayed selector.
func (s *Session) Display() string {
	return s.Snapshot().Display()
}

// Result returns the captured selector, if any.
func (s *Session) Result() (model.SelectorCaptureResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Captured || s.result == nil {
		return model.SelectorCaptureResult{}, false
	}
	return *s.result, true
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{State: s.state, URL: s.url, Err: s.err}
	if s.result != nil {
		r := *s.result
		snap.Result = &r
	}
	return snap
}

// Start begins a new capture for url. Any capture in progress is cancelled
// first and its result discarded. Start returns once the service has
// accepted the request; the outcome arrives later through the listener,
// Snapshot or Wait. A rejected request moves the session to Failed and is
// returned.
func (s *Session) Start(ctx context.Context, url string) error {
	url = strings.TrimSpace(url)
	if url == "" {
		return &model.ValidationError{Field: model.FieldURL}
	}

	s.mu.Lock()
	prevCancel, prevDone := s.cancel, s.done
	s.gen++
	gen := s.gen
	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	done := make(chan struct{})
	s.endLocked()
	s.cancel, s.done, s.ended = cancel, done, make(chan struct{})
	s.state, s.url, s.result, s.err = Requesting, url, nil, nil
	interval := s.interval
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if prevCancel != nil {
		prevCancel()
	}
	if prevDone != nil {
		<-prevDone
	}
	s.notify(snap)

	// The deadline fires on its own, even while a request is in flight.
	context.AfterFunc(runCtx, func() {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			s.finish(gen, TimedOut, nil, ErrTimedOut)
		}
	})

	s.log.Info("selector capture requested", "url", url)
	if err := s.api.PreviewSelector(runCtx, url); err != nil {
		s.finish(gen, Failed, nil, err)
		close(done)
		return fmt.Errorf("start selector capture: %w", err)
	}

	s.mu.Lock()
	if s.gen != gen || s.state != Requesting {
		// Superseded or timed out while the request was in flight.
		s.mu.Unlock()
		close(done)
		return nil
	}
	s.state = Polling
	snap = s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)

	go s.poll(runCtx, gen, interval, done)
	return nil
}

// Cancel stops the current capture, if any, and returns the session to
// Idle. The displayed selector reverts to "not selected".
func (s *Session) Cancel() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	active := !s.state.Terminal() && s.state != Idle
	s.gen++
	s.endLocked()
	s.cancel, s.done = nil, nil
	s.state, s.result, s.err = Idle, nil, nil
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	if active {
		s.log.Info("selector capture cancelled", "url", snap.URL)
		s.notify(snap)
	}
}

// Wait blocks until the current capture leaves Requesting and Polling, or
// ctx is done.
func (s *Session) Wait(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	ended := s.ended
	s.mu.Unlock()

	if ended != nil {
		select {
		case <-ended:
		case <-ctx.Done():
			return s.Snapshot(), ctx.Err()
		}
	}
	return s.Snapshot(), nil
}

// endLocked releases the waiters of the current capture.
func (s *Session) endLocked() {
	if s.ended != nil {
		close(s.ended)
		s.ended = nil
	}
}

func (s *Session) poll(ctx context.Context, gen uint64, interval time.Duration, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			res, err := s.api.GetSelector(ctx)
			if ctx.Err() != nil {
				if res != nil {
					s.log.Debug("discarding late capture result", "selector", res.Selector)
				}
				return
			}
			if err != nil {
				if ctx.Err() == nil {
					s.log.Warn("poll selector", "error", err)
				}
				continue
			}
			if res == nil {
				s.log.Debug("selector not captured yet")
				continue
			}
			s.finish(gen, Captured, res, nil)
			return
		}
	}
}

// finish moves the session of generation gen into a terminal state. The
// transition, and the cancellation of the ticker and deadline, only happen
// while the session is still that generation and still in flight, so a
// result is applied at most once.
func (s *Session) finish(gen uint64, state State, res *model.SelectorCaptureResult, err error) {
	s.mu.Lock()
	if s.gen != gen || s.state.Terminal() || s.state == Idle {
		s.mu.Unlock()
		if res != nil {
			s.log.Debug("discarding stale capture result", "selector", res.Selector)
		}
		return
	}
	s.state, s.result, s.err = state, res, err
	s.endLocked()
	if s.cancel != nil {
		s.cancel()
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	switch state {
	case Captured:
		s.log.Info("selector captured", "url", snap.URL, "selector", res.Selector)
	case TimedOut:
		s.log.Info("selector capture timed out", "url", snap.URL)
	case Failed:
		s.log.Error("selector capture failed", "url", snap.URL, "error", err)
	}
	s.notify(snap)
}

func (s *Session) notify(snap Snapshot) {
	s.mu.Lock()
	fn := s.listener
	s.mu.Unlock()
	if fn != nil {
		fn(snap)
	}
}
