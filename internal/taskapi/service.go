// Package taskapi is the client of the remote scrape-task service, the only
// source of truth for tasks, schedules and results.
package taskapi

import (
	"context"

	"scrape_bot/internal/model"
)

// Service is the interface for every operation of the remote task service.
type Service interface {
	PreviewSelector(ctx context.Context, url string) error
	GetSelector(ctx context.Context) (*model.SelectorCaptureResult, error)

	AddTask(ctx context.Context, draft model.TaskDraft) (int64, error)
	ListTasks(ctx context.Context) ([]model.ScrapeTask, error)
	ToggleTask(ctx context.Context, id int64, active bool) error
	DeleteTask(ctx context.Context, id int64) error

	ListResults(ctx context.Context, taskID int64) ([]model.ScrapeResult, error)
	MarkRead(ctx context.Context, taskID int64) error
}
