package bot

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"scrape_bot/internal/capture"
	"scrape_bot/internal/console"
)

func (b *Bot) handleStart(chatID int64) {
	// Registers the chat for result notifications.
	b.console(chatID)
	b.reply(chatID, `Welcome to Scrape Bot!

Watch a part of any web page and get a summary whenever it changes.

Quick start:
1. /capture <url> — open the page and click the element to watch
2. /time 09:30 and /days mon,wed,fri — pick the schedule
3. /add — create the task

You will get a message here whenever a task has a new result.
Use /help for the full command reference.`)
}

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, `New task:
/capture <url> — capture a selector on the page
/cancel — stop the running capture
/selector — show the captured selector
/time <HH:MM> — set the run time
/days <days> — set weekdays (1,3,5 or mon,wed,fri; 0 = Sunday)
/prompt <text> — optional custom summary prompt
/form — show the task being prepared
/add — create the task

Tasks:
/list — show all tasks
/results <id> — show the results of a task
/pause <id> — stop a task
/resume <id> — start a task
/remove <id> — delete a task`)
}

func (b *Bot) handleCapture(ctx context.Context, chatID int64, args string) {
	c := b.console(chatID)
	url := args
	if url == "" {
		url = c.Form().URL
	}
	if url == "" {
		b.reply(chatID, "Usage: /capture <url>")
		return
	}

	b.reply(chatID, fmt.Sprintf("Opening %s for selection.\nClick the element to watch in the opened page. Waiting up to %s.",
		url, b.captureTimeout()))
	if _, err := c.Dispatch(ctx, console.StartCapture{URL: url}); err != nil {
		b.replyError(chatID, err)
	}
}

func (b *Bot) handleCancel(ctx context.Context, chatID int64) {
	if _, err := b.console(chatID).Dispatch(ctx, console.CancelCapture{}); err != nil {
		b.replyError(chatID, err)
		return
	}
	b.reply(chatID, "Selector capture cancelled.")
}

func (b *Bot) handleSelector(chatID int64) {
	b.reply(chatID, b.console(chatID).Session().Display())
}

func (b *Bot) handleTime(chatID int64, args string) {
	if args == "" {
		b.reply(chatID, "Usage: /time <HH:MM>")
		return
	}
	c := b.console(chatID)
	if err := c.SetTime(args); err != nil {
		b.replyError(chatID, err)
		return
	}
	b.reply(chatID, fmt.Sprintf("Time set to %s.", c.Form().Time))
}

func (b *Bot) handleDays(chatID int64, args string) {
	if args == "" {
		b.reply(chatID, "Usage: /days <days>, e.g. /days 1,3,5 or /days mon,wed,fri")
		return
	}
	c := b.console(chatID)
	if err := c.SetDays(args); err != nil {
		b.replyError(chatID, err)
		return
	}
	b.reply(chatID, fmt.Sprintf("Days set to %s.", formatDays(c.Form().Days)))
}

func (b *Bot) handlePrompt(chatID int64, args string) {
	b.console(chatID).SetPrompt(args)
	if args == "" {
		b.reply(chatID, "Custom prompt cleared.")
		return
	}
	b.reply(chatID, "Custom prompt set.")
}

func (b *Bot) handleForm(chatID int64) {
	c := b.console(chatID)
	b.reply(chatID, FormatForm(c.Form(), c.Session().Snapshot()))
}

func (b *Bot) handleAdd(ctx context.Context, chatID int64) {
	c := b.console(chatID)
	out, err := c.Dispatch(ctx, console.AddTask{Draft: c.Draft()})
	if !out.Added {
		b.replyError(chatID, err)
		return
	}
	if out.AddedID != 0 {
		b.reply(chatID, fmt.Sprintf("Task #%d added.", out.AddedID))
	} else {
		b.reply(chatID, "Task added.")
	}
	if err != nil {
		b.replyError(chatID, err)
		return
	}
	b.sendTaskList(chatID, out)
}

func (b *Bot) handleList(ctx context.Context, chatID int64) {
	out, err := b.console(chatID).Dispatch(ctx, console.RefreshTasks{})
	if err != nil {
		b.replyError(chatID, err)
		return
	}
	b.sendTaskList(chatID, out)
}

func (b *Bot) sendTaskList(chatID int64, out console.Outcome) {
	msg := tgbotapi.NewMessage(chatID, FormatTaskList(out.Rows))
	if kb, ok := taskKeyboard(out.Rows); ok {
		msg.ReplyMarkup = kb
	}
	b.send(msg)
}

func (b *Bot) handleResults(ctx context.Context, chatID int64, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /results <id>")
		return
	}

	out, err := b.console(chatID).Dispatch(ctx, console.ViewResults{ID: id})
	if err != nil {
		b.replyError(chatID, err)
		return
	}

	msg := tgbotapi.NewMessage(chatID, FormatResults(out.Modal))
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Close", fmt.Sprintf("%s:%d", actionClose, id)),
		),
	)
	b.send(msg)
}

func (b *Bot) handleToggle(ctx context.Context, chatID int64, args string, active bool) {
	usage := "Usage: /pause <id>"
	if active {
		usage = "Usage: /resume <id>"
	}
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, usage)
		return
	}

	out, err := b.console(chatID).Dispatch(ctx, console.ToggleTask{ID: id, Active: active})
	if err != nil {
		b.replyError(chatID, err)
		return
	}

	state := "stopped"
	if active {
		state = "started"
	}
	b.reply(chatID, fmt.Sprintf("Task #%d %s.", id, state))
	b.sendTaskList(chatID, out)
}

func (b *Bot) handleRemove(ctx context.Context, chatID int64, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /remove <id>")
		return
	}

	out, err := b.console(chatID).Dispatch(ctx, console.DeleteTask{ID: id})
	if err != nil {
		b.replyError(chatID, err)
		return
	}
	if out.NeedsConfirmation {
		b.askDeleteConfirmation(chatID, id)
	}
}

func (b *Bot) askDeleteConfirmation(chatID, id int64) {
	msg := tgbotapi.NewMessage(chatID, fmt.Sprintf("Delete task #%d and all its results? This cannot be undone.", id))
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Yes, delete", fmt.Sprintf("%s:%d", actionDelete, id)),
			tgbotapi.NewInlineKeyboardButtonData("Cancel", actionNoop+":0"),
		),
	)
	b.send(msg)
}

func (b *Bot) confirmDelete(ctx context.Context, chatID, id int64) {
	out, err := b.console(chatID).Dispatch(ctx, console.DeleteTask{ID: id, Confirmed: true})
	if err != nil {
		b.replyError(chatID, err)
		return
	}
	b.reply(chatID, fmt.Sprintf("Task #%d deleted.", id))
	b.sendTaskList(chatID, out)
}

func (b *Bot) captureTimeout() string {
	if b.cfg.CaptureTimeout > 0 {
		return b.cfg.CaptureTimeout.String()
	}
	return capture.DefaultTimeout.String()
}
