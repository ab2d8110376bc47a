// Package telegram wraps the Telegram Bot API client for RoomPipe.
//
// It converts incoming updates into typed events, hands them to the
// booking engine, and delivers the engine's replies.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/BTreeMap/RoomPipe/internal/clock"
	"github.com/BTreeMap/RoomPipe/internal/models"
)

// DefaultPollTimeout is the long-poll timeout in seconds for GetUpdates.
const DefaultPollTimeout = 30

// Handler processes conversation events and produces replies. Handlers
// never return errors; failures surface as user-facing reply text.
type Handler interface {
	HandleCommand(ctx context.Context, ev models.CommandEvent) models.Reply
	HandleCallback(ctx context.Context, ev models.CallbackEvent) models.Reply
	HandleText(ctx context.Context, ev models.TextEvent) models.Reply
}

// botAPI is the subset of the Telegram client the bot uses, extracted
// so tests can substitute a fake.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(cfg tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Opts holds configuration options for the Telegram bot.
type Opts struct {
	Token       string
	PollTimeout int
	API         botAPI
	Clock       clock.Clock
}

// Option defines a configuration option for the Telegram bot.
type Option func(*Opts)

// WithToken sets the bot token used to authenticate with Telegram.
func WithToken(token string) Option {
	return func(o *Opts) {
		o.Token = token
	}
}

// WithPollTimeout sets the long-poll timeout in seconds.
func WithPollTimeout(seconds int) Option {
	return func(o *Opts) {
		o.PollTimeout = seconds
	}
}

// WithAPI injects a Telegram client, bypassing token authentication.
func WithAPI(api botAPI) Option {
	return func(o *Opts) {
		o.API = api
	}
}

// WithClock injects the time source used to stamp events.
func WithClock(clk clock.Clock) Option {
	return func(o *Opts) {
		o.Clock = clk
	}
}

// Bot receives Telegram updates and dispatches them to a Handler.
type Bot struct {
	api         botAPI
	handler     Handler
	clk         clock.Clock
	pollTimeout int
	wg          sync.WaitGroup
}

// NewBot creates a Telegram bot, applying any provided options.
func NewBot(handler Handler, opts ...Option) (*Bot, error) {
	if handler == nil {
		return nil, errors.New("telegram handler is required")
	}
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("Telegram.NewBot options set", "token_set", cfg.Token != "", "api_injected", cfg.API != nil)

	api := cfg.API
	if api == nil {
		if cfg.Token == "" {
			slog.Error("Telegram bot token not set")
			return nil, errors.New("telegram bot token not set")
		}
		client, err := tgbotapi.NewBotAPI(cfg.Token)
		if err != nil {
			slog.Error("Failed to authenticate with Telegram", "error", err)
			return nil, fmt.Errorf("failed to authenticate with Telegram: %w", err)
		}
		slog.Info("Telegram bot authenticated", "username", client.Self.UserName)
		api = client
	}

	clk := cfg.Clock
	if clk == nil {
		clk = clock.NewSystem()
	}
	pollTimeout := cfg.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = DefaultPollTimeout
	}

	return &Bot{api: api, handler: handler, clk: clk, pollTimeout: pollTimeout}, nil
}

// Start begins long-polling for updates. It blocks until the update
// channel closes or ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	updateCfg := tgbotapi.NewUpdate(0)
	updateCfg.Timeout = b.pollTimeout
	updates := b.api.GetUpdatesChan(updateCfg)
	slog.Info("Telegram bot polling for updates", "timeout_seconds", b.pollTimeout)

	for {
		select {
		case <-ctx.Done():
			slog.Debug("Telegram.Start context cancelled")
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				slog.Debug("Telegram update channel closed")
				return nil
			}
			b.wg.Add(1)
			go func(u tgbotapi.Update) {
				defer b.wg.Done()
				b.handleUpdate(ctx, u)
			}(update)
		}
	}
}

// Stop halts update polling and waits for in-flight updates to finish.
func (b *Bot) Stop() {
	b.api.StopReceivingUpdates()
	b.wg.Wait()
	slog.Info("Telegram bot stopped")
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		b.handleCallbackQuery(ctx, update.CallbackQuery)
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.Chat == nil {
		return
	}
	var reply models.Reply
	if msg.IsCommand() {
		ev := models.CommandEvent{
			ChatID:  msg.Chat.ID,
			Command: msg.Command(),
			Time:    b.clk.Now(),
		}
		if msg.From != nil {
			ev.DisplayName = msg.From.FirstName
			ev.ContactID = strconv.FormatInt(msg.From.ID, 10)
		}
		slog.Debug("Telegram command received", "chat_id", ev.ChatID, "command", ev.Command)
		reply = b.handler.HandleCommand(ctx, ev)
	} else {
		ev := models.TextEvent{
			ChatID: msg.Chat.ID,
			Body:   msg.Text,
			Time:   b.clk.Now(),
		}
		reply = b.handler.HandleText(ctx, ev)
	}
	b.deliver(reply)
}

func (b *Bot) handleCallbackQuery(ctx context.Context, q *tgbotapi.CallbackQuery) {
	// Answering the query is mandatory or the client keeps its spinner.
	if q.Message == nil || q.Message.Chat == nil {
		b.answerCallback(q.ID, "")
		return
	}
	ev, err := models.DecodeCallback(q.Data)
	if err != nil {
		slog.Warn("Telegram callback payload rejected", "error", err, "chat_id", q.Message.Chat.ID)
		b.answerCallback(q.ID, "")
		return
	}
	ev.ChatID = q.Message.Chat.ID
	ev.MessageID = q.Message.MessageID
	ev.CallbackID = q.ID
	ev.Time = b.clk.Now()

	reply := b.handler.HandleCallback(ctx, ev)
	b.answerCallback(q.ID, reply.Notice)
	b.deliver(reply)
}

func (b *Bot) answerCallback(callbackID, notice string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(callbackID, notice)); err != nil {
		slog.Warn("Failed to answer Telegram callback", "error", err, "callback_id", callbackID)
	}
}

// deliver sends or edits a Telegram message according to the reply kind.
func (b *Bot) deliver(reply models.Reply) {
	switch reply.Kind {
	case models.ReplyNone:
		return
	case models.ReplySend:
		msg := tgbotapi.NewMessage(reply.ChatID, reply.Body)
		msg.ParseMode = tgbotapi.ModeMarkdown
		if len(reply.Keyboard) > 0 {
			msg.ReplyMarkup = buildKeyboard(reply.Keyboard)
		}
		if _, err := b.api.Send(msg); err != nil {
			slog.Error("Failed to send Telegram message", "error", err, "chat_id", reply.ChatID)
		}
	case models.ReplyEdit:
		edit := tgbotapi.NewEditMessageTextAndMarkup(reply.ChatID, reply.MessageID, reply.Body, buildKeyboard(reply.Keyboard))
		edit.ParseMode = tgbotapi.ModeMarkdown
		if _, err := b.api.Send(edit); err != nil {
			slog.Error("Failed to edit Telegram message", "error", err, "chat_id", reply.ChatID, "message_id", reply.MessageID)
		}
	}
}

func buildKeyboard(rows [][]models.Button) tgbotapi.InlineKeyboardMarkup {
	keyboard := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, btn := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(btn.Label, btn.Data))
		}
		keyboard = append(keyboard, buttons)
	}
	return tgbotapi.NewInlineKeyboardMarkup(keyboard...)
}
