package bot

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"scrape_bot/internal/capture"
	"scrape_bot/internal/config"
	"scrape_bot/internal/console"
	"scrape_bot/internal/taskapi"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Bot is the Telegram front end. Every chat gets its own console, so
// captures and open results never leak between users.
type Bot struct {
	api telegramAPI
	svc taskapi.Service
	cfg *config.Config
	log *slog.Logger

	mu       sync.Mutex
	consoles map[int64]*console.Console
}

// New creates a Bot with the given Telegram token, task service, and config.
func New(token string, svc taskapi.Service, cfg *config.Config, log *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	return newBot(api, svc, cfg, log), nil
}

func newBot(api telegramAPI, svc taskapi.Service, cfg *config.Config, log *slog.Logger) *Bot {
	return &Bot{
		api:      api,
		svc:      svc,
		cfg:      cfg,
		log:      log,
		consoles: make(map[int64]*console.Console),
	}
}

// Run starts the bot's long-polling loop, blocking until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.closeConsoles()
			return
		case update := <-updates:
			if update.CallbackQuery != nil {
				b.handleCallback(ctx, update.CallbackQuery)
				continue
			}
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			b.handleCommand(ctx, update.Message)
		}
	}
}

// SendMessage sends a text message to the given chat.
func (b *Bot) SendMessage(chatID int64, text string) {
	b.send(tgbotapi.NewMessage(chatID, text))
}

func (b *Bot) send(msg tgbotapi.MessageConfig) {
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "chat_id", msg.ChatID, "error", err)
	}
}

func (b *Bot) reply(chatID int64, text string) {
	b.SendMessage(chatID, text)
}

func (b *Bot) replyError(chatID int64, err error) {
	b.reply(chatID, FormatError(err))
}

// console returns the console of a chat, creating it on first use.
func (b *Bot) console(chatID int64) *console.Console {
	b.mu.Lock()
	defer b.mu.Unlock()

	if c, ok := b.consoles[chatID]; ok {
		return c
	}

	c := console.New(b.svc, b.log.With("chat_id", chatID))
	if b.cfg.CapturePollInterval > 0 {
		c.Session().SetPollInterval(b.cfg.CapturePollInterval)
	}
	if b.cfg.CaptureTimeout > 0 {
		c.Session().SetTimeout(b.cfg.CaptureTimeout)
	}
	c.Session().SetListener(func(s capture.Snapshot) {
		b.notifyCapture(chatID, s)
	})
	b.consoles[chatID] = c
	return c
}

// notifyCapture posts the asynchronous outcome of a capture. Synchronous
// transitions are answered by the command handlers themselves.
func (b *Bot) notifyCapture(chatID int64, s capture.Snapshot) {
	switch s.State {
	case capture.Captured:
		b.reply(chatID, FormatCaptured(s))
	case capture.TimedOut:
		b.reply(chatID, "Selector capture timed out.\nSelector: not selected\nUse /capture to try again.")
	}
}

// ChatIDs lists the chats that have talked to the bot since it started.
func (b *Bot) ChatIDs() []int64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	ids := make([]int64, 0, len(b.consoles))
	for id := range b.consoles {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (b *Bot) closeConsoles() {
	b.mu.Lock()
	consoles := make([]*console.Console, 0, len(b.consoles))
	for _, c := range b.consoles {
		consoles = append(consoles, c)
	}
	b.mu.Unlock()

	// Pending mark-read calls still go out after shutdown starts.
	ctx := context.Background()
	for _, c := range consoles {
		c.Close(ctx)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	chatID := msg.Chat.ID

	b.log.Debug("command", "cmd", cmd, "args", args, "chat_id", chatID)

	switch cmd {
	case "start":
		b.handleStart(chatID)
	case "help":
		b.handleHelp(chatID)
	case "capture":
		b.handleCapture(ctx, chatID, args)
	case "cancel":
		b.handleCancel(ctx, chatID)
	case "selector":
		b.handleSelector(chatID)
	case "time":
		b.handleTime(chatID, args)
	case "days":
		b.handleDays(chatID, args)
	case "prompt":
		b.handlePrompt(chatID, args)
	case "form":
		b.handleForm(chatID)
	case "add":
		b.handleAdd(ctx, chatID)
	case "list":
		b.handleList(ctx, chatID)
	case "results":
		b.handleResults(ctx, chatID, args)
	case "pause":
		b.handleToggle(ctx, chatID, args, false)
	case "resume":
		b.handleToggle(ctx, chatID, args, true)
	case "remove":
		b.handleRemove(ctx, chatID, args)
	default:
		b.reply(chatID, "Unknown command. Use /help for a list of commands.")
	}
}
