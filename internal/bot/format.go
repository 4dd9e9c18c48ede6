package bot

import (
	"errors"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"scrape_bot/internal/capture"
	"scrape_bot/internal/console"
	"scrape_bot/internal/model"
	"scrape_bot/internal/results"
	"scrape_bot/internal/taskapi"
	"scrape_bot/internal/tasks"
)

// Telegram rejects messages longer than 4096 characters.
const maxMessageLen = 4000

// FormatError turns an error into the message shown to the user.
func FormatError(err error) string {
	var (
		verr *model.ValidationError
		nerr *taskapi.NetworkError
		serr *taskapi.ServiceError
		derr *taskapi.DecodeError
	)
	switch {
	case errors.As(err, &verr):
		if verr.Reason == "" {
			return fmt.Sprintf("Missing %s. Use /form to see what is left to fill in.", fieldLabel(verr.Field))
		}
		return fmt.Sprintf("Invalid %s: %s", fieldLabel(verr.Field), verr.Reason)
	case errors.Is(err, tasks.ErrBusy):
		return "Still working on the previous request for this task. Try again in a moment."
	case errors.Is(err, capture.ErrTimedOut):
		return "Selector capture timed out."
	case errors.As(err, &nerr):
		return fmt.Sprintf("Could not reach the task service: %v", nerr.Err)
	case errors.As(err, &serr):
		return fmt.Sprintf("Task service error: %s", serr.Message)
	case errors.As(err, &derr):
		return "Unexpected response from the task service."
	default:
		return fmt.Sprintf("Error: %v", err)
	}
}

func fieldLabel(field string) string {
	switch field {
	case model.FieldURL:
		return "URL (use /capture <url>)"
	case model.FieldSelector:
		return "selector (use /capture <url>)"
	case model.FieldTime:
		return "time (use /time HH:MM)"
	case model.FieldWeekdays:
		return "weekdays (use /days)"
	default:
		return field
	}
}

// FormatCaptured formats a successful capture.
func FormatCaptured(s capture.Snapshot) string {
	return "Selector captured!\n" + s.Display()
}

// FormatForm shows the task being prepared.
func FormatForm(f console.Form, s capture.Snapshot) string {
	var b strings.Builder
	b.WriteString("New task:\n")
	fmt.Fprintf(&b, "URL: %s\n", orUnset(f.URL))
	fmt.Fprintf(&b, "%s\n", s.Display())
	fmt.Fprintf(&b, "Time: %s\n", orUnset(f.Time))
	fmt.Fprintf(&b, "Days: %s\n", orUnset(formatDays(f.Days)))
	if f.Prompt != "" {
		fmt.Fprintf(&b, "Prompt: %s\n", f.Prompt)
	}
	return b.String()
}

func formatDays(days []time.Weekday) string {
	return model.Schedule{Days: days}.WeekdayList()
}

func orUnset(s string) string {
	if s == "" {
		return "not set"
	}
	return s
}

// FormatTaskList formats the task rows for display.
func FormatTaskList(rows []tasks.Row) string {
	if len(rows) == 0 {
		return "You have no tasks yet. Use /capture <url> to start one."
	}
	var b strings.Builder
	b.WriteString("Your tasks:\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "\n#%d %s [%s]\n", r.ID, r.DisplayURL, r.Status)
		fmt.Fprintf(&b, "   %s at %s\n", r.Weekdays, r.Time)
	}
	return truncateMessage(b.String())
}

func taskKeyboard(rows []tasks.Row) (tgbotapi.InlineKeyboardMarkup, bool) {
	if len(rows) == 0 {
		return tgbotapi.InlineKeyboardMarkup{}, false
	}
	kb := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, r := range rows {
		toggle := actionPause
		if r.NextActive {
			toggle = actionResume
		}
		kb = append(kb, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("#%d Results", r.ID), fmt.Sprintf("%s:%d", actionResults, r.ID)),
			tgbotapi.NewInlineKeyboardButtonData(r.ToggleLabel, fmt.Sprintf("%s:%d", toggle, r.ID)),
			tgbotapi.NewInlineKeyboardButtonData("Delete", fmt.Sprintf("%s:%d", actionDeleteConfirm, r.ID)),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(kb...), true
}

// FormatResults formats the result history of a task.
func FormatResults(m *results.Modal) string {
	if m.Empty() {
		return fmt.Sprintf("Results for task #%d:\n\n%s", m.TaskID, results.EmptyMessage)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Results for task #%d (%d new):\n", m.TaskID, m.Unread())
	for _, e := range m.Entries {
		var tags []string
		if e.New {
			tags = append(tags, "new")
		}
		if e.Failed {
			tags = append(tags, "failed")
		}
		fmt.Fprintf(&b, "\n%s", e.Timestamp.Format("2006-01-02 15:04"))
		if len(tags) > 0 {
			fmt.Fprintf(&b, " [%s]", strings.Join(tags, ", "))
		}
		fmt.Fprintf(&b, "\n%s\n", e.Summary)
	}
	return truncateMessage(b.String())
}

// FormatNotification formats a push message for a fresh result of a task.
func FormatNotification(task model.ScrapeTask, r model.ScrapeResult) string {
	header := "New result"
	if r.IsFailure() {
		header = "Scrape failed"
	}
	msg := fmt.Sprintf("%s for task #%d (%s)\n%s\n\n%s\n\nUse /results %d to mark it read.",
		header, task.ID, tasks.TruncateURL(task.URL),
		r.Timestamp.Format("2006-01-02 15:04"), r.Summary, task.ID)
	return truncateMessage(msg)
}

func truncateMessage(s string) string {
	r := []rune(s)
	if len(r) <= maxMessageLen {
		return s
	}
	return string(r[:maxMessageLen-3]) + "..."
}
