package bot

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

func (b *Bot) handleCallback(r request, q *tgbotapi.CallbackQuery) {
	if err := b.deps.Guard.Check(r.userID); err != nil {
		b.answer(r, q, "")
		b.reject(r, err)
		return
	}

	data := q.Data
	switch {
	case data == cbShowNotes:
		b.answer(r, q, "")
		b.handleNotes(r)
	case data == cbShowReminders:
		b.answer(r, q, "")
		b.handleReminders(r)
	case data == cbShowMemory:
		b.answer(r, q, "")
		b.handleMemory(r)
	case data == cbShowStatus:
		b.answer(r, q, "")
		b.handleStatus(r)
	case data == cbSearchMode:
		b.searchMode.Store(r.userID, struct{}{})
		b.answer(r, q, "")
		b.sendMessage(r.chatID, "🔍 What should I search for?")
	case data == cbSpeakLast:
		b.answer(r, q, "🔊")
		b.handleSpeakLast(r)
	case data == cbSaveAsNote:
		n, err := b.deps.Conversation.SaveLastReply(r.ctx, r.userID)
		if err != nil {
			b.answer(r, q, userMessage(err))
			r.log.Warn("Failed to save reply as note", zap.Error(err))
			return
		}
		b.answer(r, q, fmt.Sprintf("💾 Saved as note #%d", n.ID))
	case strings.HasPrefix(data, cbDonePrefix):
		b.handleDone(r, q)
	case strings.HasPrefix(data, cbSnoozePrefix):
		b.handleSnooze(r, q)
	default:
		b.answer(r, q, "")
		r.log.Warn("Unknown callback", zap.String("data", data))
	}
}

func (b *Bot) answer(r request, q *tgbotapi.CallbackQuery, text string) {
	if _, err := b.sender.Request(tgbotapi.NewCallback(q.ID, text)); err != nil {
		r.log.Debug("Failed to answer callback", zap.Error(err))
	}
}

func (b *Bot) handleStatus(r request) {
	st, err := b.deps.Store.UserStats(r.ctx, r.userID)
	if err != nil {
		b.fail(r, "Failed to load status", err)
		return
	}
	b.sendMessage(r.chatID, formatStatus(st, b.deps.Models.Active()))
}

func (b *Bot) handleSpeakLast(r request) {
	b.typing(r.chatID, tgbotapi.ChatRecordVoice)
	audio, err := b.deps.Conversation.Speak(r.ctx, r.userID)
	if err != nil {
		b.fail(r, "Failed to speak last reply", err)
		return
	}
	b.sendFile(r.chatID, tgbotapi.NewVoice(r.chatID, tgbotapi.FileBytes{Name: "reply.ogg", Bytes: audio}))
}

// handleDone acknowledges a fired reminder. It is already deleted, so only
// the message changes.
func (b *Bot) handleDone(r request, q *tgbotapi.CallbackQuery) {
	if _, ok := parseDone(q.Data); !ok {
		b.answer(r, q, "")
		return
	}
	b.answer(r, q, "✅ Done")
	b.closeReminderMessage(r, q, "✅ Done")
}

func (b *Bot) handleSnooze(r request, q *tgbotapi.CallbackQuery) {
	id, minutes, ok := parseSnooze(q.Data)
	if !ok {
		b.answer(r, q, "")
		return
	}

	text := strings.TrimPrefix(q.Message.Text, reminderPrefix)
	if text == q.Message.Text {
		text = ""
	}
	rem, err := b.deps.Reminders.Snooze(r.ctx, r.userID, id, minutes, text)
	if err != nil {
		b.answer(r, q, userMessage(err))
		r.log.Error("Failed to snooze reminder", zap.Error(err), zap.Int64("reminder_id", id))
		return
	}
	b.answer(r, q, fmt.Sprintf("💤 Snoozed for %d minutes", minutes))
	b.closeReminderMessage(r, q, fmt.Sprintf("💤 Snoozed until %s", rem.RemindAt.In(b.deps.Location).Format("15:04")))
}

func (b *Bot) closeReminderMessage(r request, q *tgbotapi.CallbackQuery, status string) {
	edit := tgbotapi.NewEditMessageText(r.chatID, q.Message.MessageID, q.Message.Text+"\n\n"+status)
	if _, err := b.sender.Send(edit); err != nil {
		r.log.Debug("Failed to edit reminder message", zap.Error(err))
	}
}
