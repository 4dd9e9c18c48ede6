package results

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"scrape_bot/internal/model"
	"scrape_bot/internal/taskapi"
	"scrape_bot/internal/taskapi/taskapitest"
)

func TestOpenKeepsServiceOrder(t *testing.T) {
	api := taskapitest.New()
	t1 := time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC)
	t2 := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	api.SetResults(4,
		model.ScrapeResult{Timestamp: t1, Summary: "price dropped to $9", IsNew: true},
		model.ScrapeResult{Timestamp: t2, Summary: model.FailureMarker + ": timeout", IsNew: false},
	)

	v := NewViewer(api, slog.New(slog.NewTextHandler(io.Discard, nil)))
	m, err := v.Open(context.Background(), 4)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	want := []Entry{
		{Timestamp: t1, Summary: "price dropped to $9", Failed: false, New: true},
		{Timestamp: t2, Summary: model.FailureMarker + ": timeout", Failed: true, New: false},
	}
	if diff := cmp.Diff(want, m.Entries); diff != "" {
		t.Errorf("entries mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(1, m.Unread()); diff != "" {
		t.Errorf("unread mismatch (-want +got):\n%s", diff)
	}
	if m.Empty() {
		t.Error("expected non-empty modal")
	}
}

func TestOpenEmptyHistory(t *testing.T) {
	api := taskapitest.New()
	v := NewViewer(api, slog.New(slog.NewTextHandler(io.Discard, nil)))

	m, err := v.Open(context.Background(), 9)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !m.Empty() {
		t.Errorf("expected empty modal, got %d entries", len(m.Entries))
	}
}

func TestOpenFailure(t *testing.T) {
	api := taskapitest.New()
	api.Fail(taskapitest.OpResults, &taskapi.ServiceError{Op: "list results", StatusCode: 500, Message: "db locked"})
	v := NewViewer(api, slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err := v.Open(context.Background(), 1)
	var serr *taskapi.ServiceError
	if !errors.As(err, &serr) {
		t.Fatalf("expected ServiceError, got %v", err)
	}
}

func TestCloseMarksReadOnce(t *testing.T) {
	api := taskapitest.New()
	api.SetResults(2, model.ScrapeResult{Summary: "new", IsNew: true})
	v := NewViewer(api, slog.New(slog.NewTextHandler(io.Discard, nil)))

	m, err := v.Open(context.Background(), 2)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	m.Close(context.Background())
	m.Close(context.Background())

	if diff := cmp.Diff(1, api.CallCount(taskapitest.OpMarkRead)); diff != "" {
		t.Errorf("mark read calls mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(false, api.Results(2)[0].IsNew); diff != "" {
		t.Errorf("is_new mismatch (-want +got):\n%s", diff)
	}
}

func TestCloseLogsMarkReadFailure(t *testing.T) {
	api := taskapitest.New()
	api.Fail(taskapitest.OpMarkRead, &taskapi.NetworkError{Op: "mark read", Err: errors.New("connection reset")})

	var buf bytes.Buffer
	v := NewViewer(api, slog.New(slog.NewTextHandler(&buf, nil)))

	m, err := v.Open(context.Background(), 3)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	m.Close(context.Background())

	logs := buf.String()
	if !strings.Contains(logs, "mark results read") || !strings.Contains(logs, "connection reset") {
		t.Errorf("expected mark-read failure in log, got:\n%s", logs)
	}
	if !strings.Contains(logs, "task_id=3") {
		t.Errorf("expected task_id in log, got:\n%s", logs)
	}
}
