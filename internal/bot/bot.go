// Package bot is the Telegram transport of the assistant.
package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xaenox/assistant-bot/internal/access"
	"github.com/xaenox/assistant-bot/internal/admin"
	"github.com/xaenox/assistant-bot/internal/conversation"
	"github.com/xaenox/assistant-bot/internal/maintenance"
	"github.com/xaenox/assistant-bot/internal/memory"
	"github.com/xaenox/assistant-bot/internal/models"
	"github.com/xaenox/assistant-bot/internal/reminder"
	"github.com/xaenox/assistant-bot/internal/storage"
)

const reminderPrefix = "⏰ Reminder: "

// Sender is the part of the Telegram API the bot sends through.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

type Deps struct {
	Store        storage.Storage
	Guard        *access.Guard
	Conversation *conversation.Service
	Reminders    *reminder.Service
	Memory       *memory.Engine
	Models       *maintenance.Selector
	Admin        *admin.Service
	BotName      string
	Location     *time.Location
}

type Bot struct {
	api    *tgbotapi.BotAPI
	sender Sender
	deps   Deps
	files  *resty.Client
	logger *zap.Logger

	// users whose next text is a search query
	searchMode sync.Map
}

func New(token string, debug bool, deps Deps, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	api.Debug = debug

	b := newBot(api, deps, logger)
	b.api = api
	logger.Info("Authorized on Telegram", zap.String("username", api.Self.UserName))
	return b, nil
}

func newBot(sender Sender, deps Deps, logger *zap.Logger) *Bot {
	if deps.Location == nil {
		deps.Location = time.Local
	}
	return &Bot{
		sender: sender,
		deps:   deps,
		files:  resty.New().SetTimeout(time.Minute),
		logger: logger,
	}
}

// Start polls for updates until ctx is done. Each update is handled in its
// own goroutine.
func (b *Bot) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			go b.handleUpdate(ctx, update)
		}
	}
}

// request carries per-update state through the handlers.
type request struct {
	ctx    context.Context
	log    *zap.Logger
	userID int64
	chatID int64
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	log := b.logger.With(zap.String("request_id", uuid.New().String()))
	defer func() {
		if p := recover(); p != nil {
			log.Error("Update handler panicked", zap.Any("panic", p))
		}
	}()

	switch {
	case update.CallbackQuery != nil:
		q := update.CallbackQuery
		if q.From == nil || q.Message == nil {
			return
		}
		r := request{ctx: ctx, log: log.With(zap.Int64("user_id", q.From.ID)), userID: q.From.ID, chatID: q.Message.Chat.ID}
		b.handleCallback(r, q)
	case update.Message != nil:
		m := update.Message
		if m.From == nil {
			return
		}
		r := request{ctx: ctx, log: log.With(zap.Int64("user_id", m.From.ID)), userID: m.From.ID, chatID: m.Chat.ID}
		b.handleMessage(r, m)
	}
}

func (b *Bot) handleMessage(r request, message *tgbotapi.Message) {
	// Handle commands
	if message.IsCommand() {
		b.handleCommand(r, message)
		return
	}

	if err := b.deps.Guard.Check(r.userID); err != nil {
		b.reject(r, err)
		return
	}

	if message.Voice != nil || message.Audio != nil {
		b.handleVoice(r, message)
		return
	}

	content := message.Text
	if message.Caption != "" {
		content = message.Caption
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return
	}

	if _, ok := b.searchMode.LoadAndDelete(r.userID); ok {
		b.runSearch(r, content)
		return
	}
	b.handleText(r, content)
}

func (b *Bot) handleText(r request, text string) {
	b.typing(r.chatID, tgbotapi.ChatTyping)

	reply, err := b.deps.Conversation.HandleText(r.ctx, r.userID, text)
	if err != nil {
		b.fail(r, "Text turn failed", err)
		return
	}
	if reply.Reminder != nil {
		b.sendMessage(r.chatID, formatReminderSet(*reply.Reminder, b.deps.Location))
		return
	}
	b.sendReply(r.chatID, reply.Text, afterReplyMenu())
}

// reject answers authorization failures. Banned users get no answer.
func (b *Bot) reject(r request, err error) {
	r.log.Debug("Rejected update", zap.Error(err))
	if b.deps.Guard.IsBanned(r.userID) {
		return
	}
	b.sendMessage(r.chatID, userMessage(err))
}

// fail logs err and tells the user what went wrong.
func (b *Bot) fail(r request, msg string, err error, fields ...zap.Field) {
	r.log.Error(msg, append(fields, zap.Error(err))...)
	b.sendErrorMessage(r.chatID, userMessage(err))
}

// SendReminder delivers a fired reminder with done and snooze buttons.
func (b *Bot) SendReminder(ctx context.Context, rem models.Reminder) error {
	msg := tgbotapi.NewMessage(rem.UserID, reminderPrefix+rem.Text)
	msg.ReplyMarkup = reminderKeyboard(rem.ID)
	_, err := b.sender.Send(msg)
	return err
}

func (b *Bot) SendText(ctx context.Context, userID int64, text string) error {
	for _, part := range splitMessage(text, maxMessageLen) {
		if _, err := b.sender.Send(tgbotapi.NewMessage(userID, part)); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bot) sendMessage(chatID int64, text string) {
	if err := b.SendText(context.Background(), chatID, text); err != nil {
		b.logger.Error("Failed to send message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

// sendReply sends a long reply in chunks with the keyboard on the last one.
func (b *Bot) sendReply(chatID int64, text string, markup tgbotapi.InlineKeyboardMarkup) {
	parts := splitMessage(text, maxMessageLen)
	for i, part := range parts {
		msg := tgbotapi.NewMessage(chatID, part)
		if i == len(parts)-1 {
			msg.ReplyMarkup = markup
		}
		if _, err := b.sender.Send(msg); err != nil {
			b.logger.Error("Failed to send reply",
				zap.Error(err),
				zap.Int64("chat_id", chatID))
			return
		}
	}
}

func (b *Bot) sendMarkdown(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	if _, err := b.sender.Send(msg); err != nil {
		b.logger.Error("Failed to send formatted message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

func (b *Bot) sendErrorMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.sender.Send(msg); err != nil {
		b.logger.Error("Failed to send error message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

func (b *Bot) sendFile(chatID int64, c tgbotapi.Chattable) {
	if _, err := b.sender.Send(c); err != nil {
		b.logger.Error("Failed to send file",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

func (b *Bot) typing(chatID int64, action string) {
	if _, err := b.sender.Request(tgbotapi.NewChatAction(chatID, action)); err != nil {
		b.logger.Debug("Failed to send chat action", zap.Error(err), zap.Int64("chat_id", chatID))
	}
}
