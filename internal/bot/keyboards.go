package bot

import (
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/xaenox/assistant-bot/internal/reminder"
)

// Callback data understood by handleCallback.
const (
	cbShowNotes     = "show_notes"
	cbShowReminders = "show_reminders"
	cbShowMemory    = "show_memory"
	cbShowStatus    = "show_status"
	cbSearchMode    = "search_mode"
	cbSpeakLast     = "tts_last"
	cbSaveAsNote    = "save_as_note"
	cbDonePrefix    = "done_reminder_"
	cbSnoozePrefix  = "snooze_"
)

func mainMenu() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📝 Notes", cbShowNotes),
			tgbotapi.NewInlineKeyboardButtonData("⏰ Reminders", cbShowReminders),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🧠 Memory", cbShowMemory),
			tgbotapi.NewInlineKeyboardButtonData("📊 Status", cbShowStatus),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔍 Search", cbSearchMode),
		),
	)
}

func afterReplyMenu() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔊 Speak", cbSpeakLast),
			tgbotapi.NewInlineKeyboardButtonData("💾 Save as note", cbSaveAsNote),
		),
	)
}

func reminderKeyboard(id int64) tgbotapi.InlineKeyboardMarkup {
	row := []tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardButtonData("✅ Done", fmt.Sprintf("%s%d", cbDonePrefix, id)),
	}
	for _, m := range reminder.SnoozeOffsets {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(
			fmt.Sprintf("💤 %dm", m),
			fmt.Sprintf("%s%d_%d", cbSnoozePrefix, id, m)))
	}
	return tgbotapi.NewInlineKeyboardMarkup(row)
}

// parseSnooze decodes "snooze_{id}_{minutes}".
func parseSnooze(data string) (int64, int, bool) {
	rest, ok := strings.CutPrefix(data, cbSnoozePrefix)
	if !ok {
		return 0, 0, false
	}
	idPart, minPart, ok := strings.Cut(rest, "_")
	if !ok {
		return 0, 0, false
	}
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	minutes, err := strconv.Atoi(minPart)
	if err != nil || minutes <= 0 {
		return 0, 0, false
	}
	return id, minutes, true
}

func parseDone(data string) (int64, bool) {
	rest, ok := strings.CutPrefix(data, cbDonePrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	return id, err == nil
}
