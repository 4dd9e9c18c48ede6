// Package scheduler periodically looks for unread scrape results and pushes
// them to the chats that use the bot.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"scrape_bot/internal/bot"
	"scrape_bot/internal/model"
)

// DefaultTick is how often results are checked.
const DefaultTick = 1 * time.Minute

// Sender is the interface for sending Telegram messages.
type Sender interface {
	SendMessage(chatID int64, text string)
}

// Audience lists the chats that should receive notifications.
type Audience interface {
	ChatIDs() []int64
}

// Service is the part of the task service the scheduler reads.
type Service interface {
	ListTasks(ctx context.Context) ([]model.ScrapeTask, error)
	ListResults(ctx context.Context, taskID int64) ([]model.ScrapeResult, error)
}

// Scheduler announces every unread result once. It never marks results
// read; that happens when a user opens them.
type Scheduler struct {
	api      Service
	sender   Sender
	audience Audience
	log      *slog.Logger
	tick     time.Duration
	limiter  *rate.Limiter

	primed    bool
	// announced holds, per task, the UnixNano timestamps of results
	// already sent.
	announced map[int64]map[int64]bool
}

// New creates a Scheduler.
func New(api Service, sender Sender, audience Audience, log *slog.Logger) *Scheduler {
	return &Scheduler{
		api:      api,
		sender:   sender,
		audience: audience,
		log:      log,
		tick:     DefaultTick,
		// ~20 messages/sec max for Telegram
		limiter:   rate.NewLimiter(rate.Every(50*time.Millisecond), 1),
		announced: make(map[int64]map[int64]bool),
	}
}

// SetTickInterval overrides the default 1-minute check interval.
func (s *Scheduler) SetTickInterval(d time.Duration) {
	s.tick = d
}

// Run starts the scheduler loop, blocking until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.checkAll(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkAll(ctx)
		}
	}
}

// checkAll is not safe for concurrent use; Run calls it from one goroutine.
// The first pass only records what is already unread so a restart does not
// replay old results. Priming repeats until a pass reads every task.
func (s *Scheduler) checkAll(ctx context.Context) {
	tasks, err := s.api.ListTasks(ctx)
	if err != nil {
		s.log.Error("list tasks", "error", err)
		return
	}

	current := make(map[int64]bool, len(tasks))
	complete := true
	for _, task := range tasks {
		if ctx.Err() != nil {
			return
		}
		current[task.ID] = true
		if !s.processTask(ctx, task) {
			complete = false
		}
	}

	for id := range s.announced {
		if !current[id] {
			delete(s.announced, id)
		}
	}
	if complete && ctx.Err() == nil {
		s.primed = true
	}
}

// processTask reports whether the task's results could be read.
func (s *Scheduler) processTask(ctx context.Context, task model.ScrapeTask) bool {
	s.log.Debug("checking results", "task_id", task.ID)

	results, err := s.api.ListResults(ctx, task.ID)
	if err != nil {
		s.log.Error("list results", "task_id", task.ID, "error", err)
		return false
	}

	prev := s.announced[task.ID]
	seen := make(map[int64]bool)
	var fresh []model.ScrapeResult
	for _, r := range results {
		if !r.IsNew {
			continue
		}
		key := r.Timestamp.UnixNano()
		seen[key] = true
		if !prev[key] {
			fresh = append(fresh, r)
		}
	}
	// Results that were read drop out here, which keeps the set small.
	s.announced[task.ID] = seen

	if !s.primed || len(fresh) == 0 {
		return true
	}

	chats := s.audience.ChatIDs()
	sent := 0
	// Results come newest first; announce them in the order they happened.
	for i := len(fresh) - 1; i >= 0; i-- {
		msg := bot.FormatNotification(task, fresh[i])
		for _, chatID := range chats {
			if err := s.limiter.Wait(ctx); err != nil {
				return true
			}
			s.sender.SendMessage(chatID, msg)
			sent++
		}
	}

	if sent > 0 {
		s.log.Info("sent notifications", "task_id", task.ID, "results", len(fresh), "count", sent)
	}
	return true
}
