package scheduler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"scrape_bot/internal/model"
	"scrape_bot/internal/taskapi"
	"scrape_bot/internal/taskapi/taskapitest"
)

type sentMessage struct {
	ChatID int64
	Text   string
}

type mockSender struct {
	mu       sync.Mutex
	messages []sentMessage
}

func (m *mockSender) SendMessage(chatID int64, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, sentMessage{ChatID: chatID, Text: text})
}

func (m *mockSender) getMessages() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]sentMessage, len(m.messages))
	copy(cp, m.messages)
	return cp
}

type chats []int64

func (c chats) ChatIDs() []int64 { return c }

var base = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func result(hours int, summary string, isNew bool) model.ScrapeResult {
	return model.ScrapeResult{Timestamp: base.Add(time.Duration(hours) * time.Hour), Summary: summary, IsNew: isNew}
}

func newTestScheduler(svc *taskapitest.Fake, sender Sender, audience Audience) *Scheduler {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(svc, sender, audience, log)
}

func seedTask(svc *taskapitest.Fake, ids ...int64) {
	var tasks []model.ScrapeTask
	for _, id := range ids {
		tasks = append(tasks, model.ScrapeTask{ID: id, URL: "https://example.com/news", Selector: "h2", Active: true})
	}
	svc.SetTasks(tasks...)
}

func TestSchedulerFirstPassOnlyPrimes(t *testing.T) {
	ctx := context.Background()
	svc := taskapitest.New()
	seedTask(svc, 1)
	svc.SetResults(1, result(1, "old news", true))

	sender := &mockSender{}
	sched := newTestScheduler(svc, sender, chats{100})
	sched.checkAll(ctx)

	if diff := cmp.Diff(0, len(sender.getMessages())); diff != "" {
		t.Errorf("expected no messages on first pass (-want +got):\n%s", diff)
	}
}

func TestSchedulerAnnouncesNewResults(t *testing.T) {
	ctx := context.Background()
	svc := taskapitest.New()
	seedTask(svc, 1)
	svc.SetResults(1, result(1, "old news", true))

	sender := &mockSender{}
	sched := newTestScheduler(svc, sender, chats{100, 200})
	sched.checkAll(ctx)

	svc.SetResults(1,
		result(3, "third", true),
		result(2, "second", true),
		result(1, "old news", true),
	)
	sched.checkAll(ctx)

	msgs := sender.getMessages()
	if diff := cmp.Diff(4, len(msgs)); diff != "" {
		t.Fatalf("message count mismatch (-want +got):\n%s", diff)
	}

	var gotChats []int64
	for _, m := range msgs {
		gotChats = append(gotChats, m.ChatID)
	}
	if diff := cmp.Diff([]int64{100, 200, 100, 200}, gotChats); diff != "" {
		t.Errorf("chat order mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(msgs[0].Text, "second") {
		t.Errorf("expected oldest fresh result first, got %q", msgs[0].Text)
	}
	if !strings.Contains(msgs[2].Text, "third") {
		t.Errorf("expected newest fresh result last, got %q", msgs[2].Text)
	}
	for _, m := range msgs {
		if strings.Contains(m.Text, "old news") {
			t.Errorf("primed result announced: %q", m.Text)
		}
	}
}

func TestSchedulerAnnouncesOnce(t *testing.T) {
	ctx := context.Background()
	svc := taskapitest.New()
	seedTask(svc, 1)

	sender := &mockSender{}
	sched := newTestScheduler(svc, sender, chats{100})
	sched.checkAll(ctx)

	svc.SetResults(1, result(1, "fresh", true))
	sched.checkAll(ctx)
	sched.checkAll(ctx)

	if diff := cmp.Diff(1, len(sender.getMessages())); diff != "" {
		t.Errorf("expected a single announcement (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(0, svc.CallCount(taskapitest.OpMarkRead)); diff != "" {
		t.Errorf("scheduler must not mark results read (-want +got):\n%s", diff)
	}
}

func TestSchedulerSkipsReadResults(t *testing.T) {
	ctx := context.Background()
	svc := taskapitest.New()
	seedTask(svc, 1)

	sender := &mockSender{}
	sched := newTestScheduler(svc, sender, chats{100})
	sched.checkAll(ctx)

	svc.SetResults(1, result(2, "unread", true), result(1, "already read", false))
	sched.checkAll(ctx)

	msgs := sender.getMessages()
	if diff := cmp.Diff(1, len(msgs)); diff != "" {
		t.Fatalf("message count mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(msgs[0].Text, "unread") {
		t.Errorf("unexpected message: %q", msgs[0].Text)
	}
}

func TestSchedulerForgetsDeletedTasks(t *testing.T) {
	ctx := context.Background()
	svc := taskapitest.New()
	seedTask(svc, 1, 2)
	svc.SetResults(2, result(1, "pending", true))

	sched := newTestScheduler(svc, &mockSender{}, chats{100})
	sched.checkAll(ctx)
	if _, ok := sched.announced[2]; !ok {
		t.Fatal("expected task 2 to be tracked")
	}

	seedTask(svc, 1)
	sched.checkAll(ctx)
	if _, ok := sched.announced[2]; ok {
		t.Error("expected deleted task to be forgotten")
	}
}

func TestSchedulerNoAudience(t *testing.T) {
	ctx := context.Background()
	svc := taskapitest.New()
	seedTask(svc, 1)

	sender := &mockSender{}
	sched := newTestScheduler(svc, sender, chats{})
	sched.checkAll(ctx)
	svc.SetResults(1, result(1, "fresh", true))
	sched.checkAll(ctx)

	if diff := cmp.Diff(0, len(sender.getMessages())); diff != "" {
		t.Errorf("expected no messages (-want +got):\n%s", diff)
	}
}

func TestSchedulerLogsServiceErrors(t *testing.T) {
	ctx := context.Background()
	svc := taskapitest.New()
	svc.Fail(taskapitest.OpList, &taskapi.NetworkError{Op: "list tasks", Err: errors.New("connection refused")})

	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	sched := New(svc, &mockSender{}, chats{100}, log)
	sched.checkAll(ctx)

	if !strings.Contains(buf.String(), "list tasks") {
		t.Errorf("expected error to be logged, got %q", buf.String())
	}
	if sched.primed {
		t.Error("a failed pass must not count as primed")
	}
}

func TestSchedulerPrimingRetriesAfterResultsFailure(t *testing.T) {
	ctx := context.Background()
	svc := taskapitest.New()
	seedTask(svc, 1)
	svc.SetResults(1, result(1, "backlog", true))
	svc.Fail(taskapitest.OpResults, &taskapi.NetworkError{Op: "list results", Err: errors.New("connection reset")})

	sender := &mockSender{}
	sched := newTestScheduler(svc, sender, chats{100})
	sched.checkAll(ctx)
	if sched.primed {
		t.Fatal("a pass that could not read results must not count as primed")
	}

	svc.Fail(taskapitest.OpResults, nil)
	sched.checkAll(ctx)
	if diff := cmp.Diff(0, len(sender.getMessages())); diff != "" {
		t.Fatalf("backlog announced after recovery (-want +got):\n%s", diff)
	}
	if !sched.primed {
		t.Fatal("expected the recovered pass to prime")
	}

	svc.SetResults(1, result(2, "fresh", true), result(1, "backlog", true))
	sched.checkAll(ctx)

	msgs := sender.getMessages()
	if diff := cmp.Diff(1, len(msgs)); diff != "" {
		t.Fatalf("message count mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(msgs[0].Text, "fresh") {
		t.Errorf("unexpected message: %q", msgs[0].Text)
	}
}

func TestSchedulerRunStopsOnCancel(t *testing.T) {
	svc := taskapitest.New()
	sched := newTestScheduler(svc, &mockSender{}, chats{100})
	sched.SetTickInterval(5 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if svc.CallCount(taskapitest.OpList) < 2 {
		t.Errorf("expected repeated checks, got %d", svc.CallCount(taskapitest.OpList))
	}
}
