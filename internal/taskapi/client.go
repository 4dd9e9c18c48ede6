package taskapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"scrape_bot/internal/model"
)

const userAgent = "ScrapeBot/1.0"

const (
	statusSuccess = "success"
	statusError   = "error"
)

// Option configures a Client.
type Option func(*options)

type options struct {
	httpClient *http.Client
	timeout    time.Duration
	rps        float64
	log        *slog.Logger
}

// WithHTTPClient makes the client send requests through hc.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithRateLimit caps outgoing requests to rps per second. Zero disables it.
func WithRateLimit(rps float64) Option {
	return func(o *options) { o.rps = rps }
}

// WithLogger sets the logger used for request tracing.
func WithLogger(log *slog.Logger) Option {
	return func(o *options) { o.log = log }
}

// Client talks to the scrape-task service over HTTP. It never retries: a
// failed call is returned to the caller as is.
type Client struct {
	http *resty.Client
	log  *slog.Logger
}

var _ Service = (*Client)(nil)

// New creates a Client for the service at baseURL.
func New(baseURL string, opts ...Option) *Client {
	o := options{timeout: 30 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	var hc *resty.Client
	if o.httpClient != nil {
		hc = resty.NewWithClient(o.httpClient)
	} else {
		hc = resty.New()
	}
	hc.SetBaseURL(baseURL)
	hc.SetTimeout(o.timeout)
	hc.SetHeader("User-Agent", userAgent)
	hc.SetHeader("Accept", "application/json")

	c := &Client{http: hc, log: o.log}

	if o.rps > 0 {
		limiter := rate.NewLimiter(rate.Limit(o.rps), 1)
		hc.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return limiter.Wait(req.Context())
		})
	}
	hc.SetPreRequestHook(c.traceRequest)
	hc.OnAfterResponse(c.traceResponse)

	return c
}

// traceRequest sees the request as sent, with path params filled in.
func (c *Client) traceRequest(_ *resty.Client, req *http.Request) error {
	c.log.Debug("start request", "method", req.Method, "url", req.URL.String())
	return nil
}

func (c *Client) traceResponse(_ *resty.Client, res *resty.Response) error {
	url := res.Request.URL
	if raw := res.Request.RawRequest; raw != nil {
		url = raw.URL.String()
	}
	c.log.Debug("request done",
		"method", res.Request.Method,
		"url", url,
		"status", res.StatusCode(),
		"duration", res.Time(),
	)
	return nil
}

// envelope is the status wrapper most endpoints answer with.
type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Detail  json.RawMessage `json:"detail"`
	TaskID  int64           `json:"task_id"`
	Data    json.RawMessage `json:"data"`
}

func (e envelope) message() string {
	if e.Message != "" {
		return e.Message
	}
	var detail string
	if len(e.Detail) > 0 && json.Unmarshal(e.Detail, &detail) == nil {
		return detail
	}
	return ""
}

// checkStatus maps a non-2xx response to a ServiceError.
func checkStatus(op string, res *resty.Response) error {
	if res.IsSuccess() {
		return nil
	}
	var env envelope
	_ = json.Unmarshal(res.Body(), &env)
	msg := env.message()
	if msg == "" {
		msg = fmt.Sprintf("unexpected status %d", res.StatusCode())
	}
	return &ServiceError{Op: op, StatusCode: res.StatusCode(), Message: msg}
}

// parseEnvelope parses a status wrapper. An empty body yields a zero
// envelope.
func parseEnvelope(op string, res *resty.Response) (envelope, error) {
	var env envelope
	body := bytes.TrimSpace(res.Body())
	if len(body) == 0 {
		return env, nil
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return env, &DecodeError{Op: op, Err: err}
	}
	return env, nil
}

// decodeEnvelope parses a status wrapper and turns any status other than
// success into a ServiceError. A missing status counts as success.
func decodeEnvelope(op string, res *resty.Response) (envelope, error) {
	env, err := parseEnvelope(op, res)
	if err != nil {
		return env, err
	}
	if env.Status != "" && env.Status != statusSuccess {
		msg := env.message()
		if msg == "" {
			msg = fmt.Sprintf("service reported status %q", env.Status)
		}
		return env, &ServiceError{Op: op, StatusCode: res.StatusCode(), Message: msg}
	}
	return env, nil
}

func (c *Client) do(op string, req *resty.Request, method, path string) (*resty.Response, error) {
	res, err := req.Execute(method, path)
	if err != nil {
		return nil, &NetworkError{Op: op, Err: err}
	}
	if err := checkStatus(op, res); err != nil {
		return nil, err
	}
	return res, nil
}

// PreviewSelector asks the service to open url for interactive selection.
func (c *Client) PreviewSelector(ctx context.Context, url string) error {
	const op = "preview selector"
	res, err := c.do(op, c.http.R().SetContext(ctx).SetQueryParam("url", url), resty.MethodGet, "/preview_selector")
	if err != nil {
		return err
	}
	_, err = decodeEnvelope(op, res)
	return err
}

// GetSelector polls the capture mailbox. It returns nil without error while
// no selection has been made yet.
func (c *Client) GetSelector(ctx context.Context) (*model.SelectorCaptureResult, error) {
	const op = "get selector"
	res, err := c.do(op, c.http.R().SetContext(ctx), resty.MethodGet, "/get_selector")
	if err != nil {
		return nil, err
	}
	env, err := parseEnvelope(op, res)
	if err != nil {
		return nil, err
	}
	if env.Status == statusError {
		return nil, &ServiceError{Op: op, StatusCode: res.StatusCode(), Message: env.message()}
	}
	// Any other status ("waiting") means nothing has been selected yet.
	if env.Status != statusSuccess || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, nil
	}

	var out model.SelectorCaptureResult
	if err := json.Unmarshal(env.Data, &out); err != nil {
		return nil, &DecodeError{Op: op, Err: err}
	}
	if out.Selector == "" {
		return nil, &DecodeError{Op: op, Err: fmt.Errorf("empty selector in capture result")}
	}
	return &out, nil
}

type addTaskRequest struct {
	URL          string         `json:"url"`
	Selector     string         `json:"selector"`
	Schedule     model.Schedule `json:"schedule"`
	CustomPrompt string         `json:"custom_prompt"`
}

// AddTask creates a task from a validated draft and returns its ID.
func (c *Client) AddTask(ctx context.Context, draft model.TaskDraft) (int64, error) {
	const op = "add task"
	sched, err := draft.Schedule()
	if err != nil {
		return 0, err
	}
	body := addTaskRequest{
		URL:          draft.URL,
		Selector:     draft.Selector,
		Schedule:     sched,
		CustomPrompt: draft.CustomPrompt,
	}
	res, err := c.do(op, c.http.R().SetContext(ctx).SetBody(body), resty.MethodPost, "/add_scrape_task")
	if err != nil {
		return 0, err
	}
	env, err := decodeEnvelope(op, res)
	if err != nil {
		return 0, err
	}
	return env.TaskID, nil
}

type taskWire struct {
	ID           int64           `json:"id"`
	URL          string          `json:"url"`
	Selector     string          `json:"selector"`
	Schedule     json.RawMessage `json:"schedule"`
	Active       bool            `json:"active"`
	CustomPrompt string          `json:"custom_prompt"`
}

// parseScheduleField accepts the JSON encoded string the service stores, or
// a plain schedule object.
func parseScheduleField(raw json.RawMessage) (model.Schedule, error) {
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err == nil {
		return model.ParseSchedule(encoded)
	}
	return model.ParseSchedule(string(raw))
}

// ListTasks returns every task in service order.
func (c *Client) ListTasks(ctx context.Context) ([]model.ScrapeTask, error) {
	const op = "list tasks"
	res, err := c.do(op, c.http.R().SetContext(ctx), resty.MethodGet, "/tasks")
	if err != nil {
		return nil, err
	}

	var wire []taskWire
	if err := json.Unmarshal(res.Body(), &wire); err != nil {
		return nil, &DecodeError{Op: op, Err: err}
	}

	tasks := make([]model.ScrapeTask, 0, len(wire))
	for _, w := range wire {
		sched, err := parseScheduleField(w.Schedule)
		if err != nil {
			return nil, &DecodeError{Op: op, Err: fmt.Errorf("task %d: %w", w.ID, err)}
		}
		tasks = append(tasks, model.ScrapeTask{
			ID:           w.ID,
			URL:          w.URL,
			Selector:     w.Selector,
			Schedule:     sched,
			Active:       w.Active,
			CustomPrompt: w.CustomPrompt,
		})
	}
	return tasks, nil
}

// ToggleTask sets the active flag of a task.
func (c *Client) ToggleTask(ctx context.Context, id int64, active bool) error {
	const op = "toggle task"
	req := c.http.R().
		SetContext(ctx).
		SetPathParam("id", strconv.FormatInt(id, 10)).
		SetBody(map[string]bool{"active": active})
	res, err := c.do(op, req, resty.MethodPut, "/task/{id}/toggle")
	if err != nil {
		return err
	}
	_, err = decodeEnvelope(op, res)
	return err
}

// DeleteTask removes a task and its results.
func (c *Client) DeleteTask(ctx context.Context, id int64) error {
	const op = "delete task"
	req := c.http.R().SetContext(ctx).SetPathParam("id", strconv.FormatInt(id, 10))
	res, err := c.do(op, req, resty.MethodDelete, "/task/{id}")
	if err != nil {
		return err
	}
	_, err = decodeEnvelope(op, res)
	return err
}

type resultWire struct {
	Timestamp string  `json:"timestamp"`
	Summary   *string `json:"summary"`
	IsNew     bool    `json:"is_new"`
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
}

func parseTimestamp(raw string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}

// ListResults returns the result history of a task in service order.
func (c *Client) ListResults(ctx context.Context, taskID int64) ([]model.ScrapeResult, error) {
	const op = "list results"
	req := c.http.R().SetContext(ctx).SetPathParam("id", strconv.FormatInt(taskID, 10))
	res, err := c.do(op, req, resty.MethodGet, "/api/tasks/{id}/results")
	if err != nil {
		return nil, err
	}

	var wire []resultWire
	if err := json.Unmarshal(res.Body(), &wire); err != nil {
		return nil, &DecodeError{Op: op, Err: err}
	}

	results := make([]model.ScrapeResult, 0, len(wire))
	for _, w := range wire {
		ts, err := parseTimestamp(w.Timestamp)
		if err != nil {
			return nil, &DecodeError{Op: op, Err: err}
		}
		r := model.ScrapeResult{Timestamp: ts, IsNew: w.IsNew}
		if w.Summary != nil {
			r.Summary = *w.Summary
		}
		results = append(results, r)
	}
	return results, nil
}

// MarkRead marks every result of a task as read.
func (c *Client) MarkRead(ctx context.Context, taskID int64) error {
	const op = "mark read"
	req := c.http.R().SetContext(ctx).SetPathParam("id", strconv.FormatInt(taskID, 10))
	res, err := c.do(op, req, resty.MethodPut, "/api/tasks/{id}/mark_read")
	if err != nil {
		return err
	}
	_, err = decodeEnvelope(op, res)
	return err
}
