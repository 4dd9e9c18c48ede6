package bot

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"scrape_bot/internal/console"
)

// Inline button actions, sent as "action:id".
const (
	actionResults       = "results"
	actionPause         = "pause"
	actionResume        = "resume"
	actionDeleteConfirm = "delete_confirm"
	actionDelete        = "delete"
	actionClose         = "close"
	actionNoop          = "noop"
)

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil {
		return
	}
	chatID := cb.Message.Chat.ID

	callback := tgbotapi.NewCallback(cb.ID, "")
	if _, err := b.api.Request(callback); err != nil {
		b.log.Error("send callback ack", "error", err)
	}

	action, id, err := ParseCallbackData(cb.Data)
	if err != nil {
		b.log.Debug("ignore callback", "data", cb.Data, "error", err)
		return
	}

	b.log.Info("callback",
		"action", action,
		"id", id,
		"chat_id", chatID,
		"user_id", cb.From.ID,
		"username", cb.From.UserName,
	)

	switch action {
	case actionResults:
		b.handleResults(ctx, chatID, formatID(id))
	case actionPause:
		b.handleToggle(ctx, chatID, formatID(id), false)
	case actionResume:
		b.handleToggle(ctx, chatID, formatID(id), true)
	case actionDeleteConfirm:
		b.askDeleteConfirmation(chatID, id)
	case actionDelete:
		b.confirmDelete(ctx, chatID, id)
	case actionClose:
		b.closeResults(ctx, chatID, id, cb.Message.MessageID)
	}
}

// closeResults dismisses a results message. Results shown in the chat's
// open modal are marked read first.
func (b *Bot) closeResults(ctx context.Context, chatID, taskID int64, messageID int) {
	c := b.console(chatID)
	if m := c.OpenResults(); m != nil && m.TaskID == taskID {
		if _, err := c.Dispatch(ctx, console.CloseResults{}); err != nil {
			b.log.Error("close results", "task_id", taskID, "error", err)
		}
	}

	del := tgbotapi.NewDeleteMessage(chatID, messageID)
	if _, err := b.api.Request(del); err != nil {
		b.log.Error("delete results message", "chat_id", chatID, "error", err)
	}
}
