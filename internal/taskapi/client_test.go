package taskapi

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/h2non/gock"

	"scrape_bot/internal/model"
)

const testBaseURL = "http://scraper.test"

func newTestClient(t *testing.T) *Client {
	t.Helper()
	hc := &http.Client{}
	gock.InterceptClient(hc)
	t.Cleanup(func() {
		if !gock.IsDone() {
			t.Errorf("pending mocks: %d", len(gock.Pending()))
		}
		gock.Off()
	})
	return New(testBaseURL, WithHTTPClient(hc), WithTimeout(2*time.Second))
}

func TestPreviewSelector(t *testing.T) {
	tests := []struct {
		name     string
		setup    func()
		wantErr  bool
		wantType any
	}{
		{
			name: "accepted",
			setup: func() {
				gock.New(testBaseURL).
					Get("/preview_selector").
					MatchParam("url", "https://example.com/page").
					Reply(200).
					JSON(map[string]string{"status": "success"})
			},
		},
		{
			name: "rejected with message",
			setup: func() {
				gock.New(testBaseURL).
					Get("/preview_selector").
					Reply(500).
					JSON(map[string]string{"detail": "browser unavailable"})
			},
			wantErr:  true,
			wantType: &ServiceError{},
		},
		{
			name: "network failure",
			setup: func() {
				gock.New(testBaseURL).
					Get("/preview_selector").
					ReplyError(errors.New("connection refused"))
			},
			wantErr:  true,
			wantType: &NetworkError{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t)
			tt.setup()

			err := c.PreviewSelector(context.Background(), "https://example.com/page")
			if !tt.wantErr {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			assertErrorType(t, err, tt.wantType)
		})
	}
}

func TestGetSelector(t *testing.T) {
	tests := []struct {
		name     string
		body     any
		status   int
		want     *model.SelectorCaptureResult
		wantType any
	}{
		{
			name:   "waiting",
			body:   map[string]string{"status": "waiting"},
			status: 200,
		},
		{
			name:   "success without data",
			body:   map[string]any{"status": "success", "data": nil},
			status: 200,
		},
		{
			name: "success",
			body: map[string]any{
				"status": "success",
				"data":   map[string]string{"selector": "#price", "preview": "42 EUR"},
			},
			status: 200,
			want:   &model.SelectorCaptureResult{Selector: "#price", Preview: "42 EUR"},
		},
		{
			name:     "service error",
			body:     map[string]string{"status": "error", "message": "file locked"},
			status:   200,
			wantType: &ServiceError{},
		},
		{
			name:     "malformed data",
			body:     map[string]any{"status": "success", "data": "not an object"},
			status:   200,
			wantType: &DecodeError{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t)
			gock.New(testBaseURL).Get("/get_selector").Reply(tt.status).JSON(tt.body)

			got, err := c.GetSelector(context.Background())
			if tt.wantType != nil {
				assertErrorType(t, err, tt.wantType)
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("result mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestAddTask(t *testing.T) {
	draft := model.TaskDraft{
		URL:          "https://example.com/news",
		Selector:     "#headline",
		Time:         "09:30",
		Days:         []time.Weekday{time.Friday, time.Monday, time.Wednesday},
		CustomPrompt: "summarize",
	}

	t.Run("success", func(t *testing.T) {
		c := newTestClient(t)
		gock.New(testBaseURL).
			Post("/add_scrape_task").
			MatchType("json").
			JSON(map[string]any{
				"url":           "https://example.com/news",
				"selector":      "#headline",
				"schedule":      map[string]any{"days": []int{1, 3, 5}, "hour": 9, "minute": 30},
				"custom_prompt": "summarize",
			}).
			Reply(200).
			JSON(map[string]any{"status": "success", "task_id": 7})

		id, err := c.AddTask(context.Background(), draft)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if diff := cmp.Diff(int64(7), id); diff != "" {
			t.Errorf("task id (-want +got):\n%s", diff)
		}
	})

	t.Run("service reports error", func(t *testing.T) {
		c := newTestClient(t)
		gock.New(testBaseURL).
			Post("/add_scrape_task").
			Reply(200).
			JSON(map[string]string{"status": "error", "message": "database is locked"})

		_, err := c.AddTask(context.Background(), draft)
		var serr *ServiceError
		if !errors.As(err, &serr) {
			t.Fatalf("expected ServiceError, got %v", err)
		}
		if diff := cmp.Diff("database is locked", serr.Message); diff != "" {
			t.Errorf("message (-want +got):\n%s", diff)
		}
	})

	t.Run("invalid draft never reaches network", func(t *testing.T) {
		c := newTestClient(t)
		bad := draft
		bad.Days = nil

		_, err := c.AddTask(context.Background(), bad)
		var verr *model.ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
	})
}

func TestListTasks(t *testing.T) {
	t.Run("decodes schedule strings", func(t *testing.T) {
		c := newTestClient(t)
		gock.New(testBaseURL).
			Get("/tasks").
			Reply(200).
			BodyString(`[
				{"id":1,"url":"https://a.example.com","selector":"#a","schedule":"{\"days\": [1, 3, 5], \"hour\": 9, \"minute\": 30}","active":true},
				{"id":2,"url":"https://b.example.com","selector":".b","schedule":{"days":[0],"hour":23,"minute":5},"active":false}
			]`)

		got, err := c.ListTasks(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := []model.ScrapeTask{
			{
				ID: 1, URL: "https://a.example.com", Selector: "#a", Active: true,
				Schedule: model.Schedule{Days: []time.Weekday{1, 3, 5}, Hour: 9, Minute: 30},
			},
			{
				ID: 2, URL: "https://b.example.com", Selector: ".b", Active: false,
				Schedule: model.Schedule{Days: []time.Weekday{0}, Hour: 23, Minute: 5},
			},
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("tasks mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("bad schedule is a decode error", func(t *testing.T) {
		c := newTestClient(t)
		gock.New(testBaseURL).
			Get("/tasks").
			Reply(200).
			BodyString(`[{"id":1,"url":"u","selector":"s","schedule":"{\"days\":[],\"hour\":1,\"minute\":0}","active":true}]`)

		_, err := c.ListTasks(context.Background())
		assertErrorType(t, err, &DecodeError{})
	})

	t.Run("not an array", func(t *testing.T) {
		c := newTestClient(t)
		gock.New(testBaseURL).Get("/tasks").Reply(200).JSON(map[string]string{"oops": "x"})

		_, err := c.ListTasks(context.Background())
		assertErrorType(t, err, &DecodeError{})
	})
}

func TestToggleTask(t *testing.T) {
	t.Run("sends active flag", func(t *testing.T) {
		c := newTestClient(t)
		gock.New(testBaseURL).
			Put("/task/3/toggle").
			MatchType("json").
			JSON(map[string]bool{"active": false}).
			Reply(200).
			JSON(map[string]any{"status": "success", "active": false})

		if err := c.ToggleTask(context.Background(), 3, false); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("unknown task", func(t *testing.T) {
		c := newTestClient(t)
		gock.New(testBaseURL).
			Put("/task/99/toggle").
			Reply(200).
			JSON(map[string]string{"status": "error", "message": "task not found"})

		err := c.ToggleTask(context.Background(), 99, true)
		assertErrorType(t, err, &ServiceError{})
	})
}

func TestRequestTraceLogsResolvedURL(t *testing.T) {
	hc := &http.Client{}
	gock.InterceptClient(hc)
	defer gock.Off()

	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	c := New(testBaseURL, WithHTTPClient(hc), WithTimeout(2*time.Second), WithLogger(log))

	gock.New(testBaseURL).
		Put("/task/7/toggle").
		Reply(200).
		JSON(map[string]any{"status": "success", "active": true})

	if err := c.ToggleTask(context.Background(), 7, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := buf.String()
	if diff := cmp.Diff(2, strings.Count(out, "/task/7/toggle")); diff != "" {
		t.Errorf("trace lines with resolved URL (-want +got):\n%s\n%s", diff, out)
	}
	if strings.Contains(out, "{id}") {
		t.Errorf("trace logged the URL template:\n%s", out)
	}
	if !strings.Contains(out, "method=PUT") {
		t.Errorf("trace is missing the method:\n%s", out)
	}
}

func TestDeleteTask(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		c := newTestClient(t)
		gock.New(testBaseURL).Delete("/task/4").Reply(200).JSON(map[string]string{"status": "success"})

		if err := c.DeleteTask(context.Background(), 4); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("http error", func(t *testing.T) {
		c := newTestClient(t)
		gock.New(testBaseURL).Delete("/task/4").Reply(404).JSON(map[string]string{"detail": "Not Found"})

		err := c.DeleteTask(context.Background(), 4)
		var serr *ServiceError
		if !errors.As(err, &serr) {
			t.Fatalf("expected ServiceError, got %v", err)
		}
		if diff := cmp.Diff(404, serr.StatusCode); diff != "" {
			t.Errorf("status (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff("Not Found", serr.Message); diff != "" {
			t.Errorf("message (-want +got):\n%s", diff)
		}
	})
}

func TestListResults(t *testing.T) {
	t.Run("keeps service order and parses timestamps", func(t *testing.T) {
		c := newTestClient(t)
		gock.New(testBaseURL).
			Get("/api/tasks/5/results").
			Reply(200).
			BodyString(`[
				{"summary":"new price","timestamp":"2024-03-02 10:00:00","is_new":true},
				{"summary":null,"timestamp":"2024-03-01T09:00:00Z","is_new":false}
			]`)

		got, err := c.ListResults(context.Background(), 5)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := []model.ScrapeResult{
			{Timestamp: time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC), Summary: "new price", IsNew: true},
			{Timestamp: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC), Summary: "", IsNew: false},
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("results mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("bad timestamp", func(t *testing.T) {
		c := newTestClient(t)
		gock.New(testBaseURL).
			Get("/api/tasks/5/results").
			Reply(200).
			BodyString(`[{"summary":"x","timestamp":"yesterday","is_new":true}]`)

		_, err := c.ListResults(context.Background(), 5)
		assertErrorType(t, err, &DecodeError{})
	})
}

func TestMarkRead(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		c := newTestClient(t)
		gock.New(testBaseURL).Put("/api/tasks/5/mark_read").Reply(200).JSON(map[string]string{"status": "success"})

		if err := c.MarkRead(context.Background(), 5); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("network error", func(t *testing.T) {
		c := newTestClient(t)
		gock.New(testBaseURL).Put("/api/tasks/5/mark_read").ReplyError(errors.New("reset by peer"))

		err := c.MarkRead(context.Background(), 5)
		assertErrorType(t, err, &NetworkError{})
	})
}

func TestRateLimitHonoursContext(t *testing.T) {
	hc := &http.Client{}
	gock.InterceptClient(hc)
	t.Cleanup(gock.Off)
	gock.New(testBaseURL).Get("/tasks").Reply(200).BodyString(`[]`)

	c := New(testBaseURL, WithHTTPClient(hc), WithRateLimit(0.001))

	// The first request consumes the only token.
	if _, err := c.ListTasks(context.Background()); err != nil {
		t.Fatalf("first request: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.ListTasks(ctx)
	assertErrorType(t, err, &NetworkError{})
}

func assertErrorType(t *testing.T, err error, want any) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	switch want.(type) {
	case *NetworkError:
		var e *NetworkError
		if !errors.As(err, &e) {
			t.Errorf("expected NetworkError, got %T: %v", err, err)
		}
	case *ServiceError:
		var e *ServiceError
		if !errors.As(err, &e) {
			t.Errorf("expected ServiceError, got %T: %v", err, err)
		}
	case *DecodeError:
		var e *DecodeError
		if !errors.As(err, &e) {
			t.Errorf("expected DecodeError, got %T: %v", err, err)
		}
	default:
		t.Fatalf("unsupported error type %T", want)
	}
}
