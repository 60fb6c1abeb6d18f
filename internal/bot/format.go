package bot

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xaenox/assistant-bot/internal/admin"
	"github.com/xaenox/assistant-bot/internal/apperr"
	"github.com/xaenox/assistant-bot/internal/conversation"
	"github.com/xaenox/assistant-bot/internal/models"
)

const (
	maxMessageLen = 4000
	timeLayout    = "02/01/2006 15:04"
)

const (
	textPrivate     = "🔒 This is a private bot."
	textFailure     = "❌ Something went wrong. Please try again."
	textUnavailable = "This feature is not configured."
	textTimeParse   = "❓ I couldn't understand the time. Try something like 30m, 2h, 1d or 18:30."
)

// userMessage maps an error to the text shown to the user.
func userMessage(err error) string {
	if rl, ok := apperr.AsRateLimit(err); ok {
		return fmt.Sprintf("⏳ Too many %s requests: the limit is %d per %s. Try again later.",
			rl.Category, rl.Limit, humanWindow(rl.Window))
	}
	switch {
	case errors.Is(err, apperr.ErrUnauthorized):
		return textPrivate
	case errors.Is(err, apperr.ErrBanned):
		return "🚫 You are blocked."
	case errors.Is(err, apperr.ErrTimeParse):
		return textTimeParse
	case errors.Is(err, apperr.ErrReminderInPast):
		return "⌛ That time has already passed."
	case errors.Is(err, apperr.ErrNotFound):
		return "Nothing found."
	case errors.Is(err, apperr.ErrCannotBanAdmin):
		return "Admins cannot be banned."
	case errors.Is(err, admin.ErrConfirmationRequired):
		return "⚠️ This deletes everything. Send /wipeall " + admin.ConfirmToken + " to proceed."
	case errors.Is(err, conversation.ErrUnavailable):
		return textUnavailable
	default:
		return textFailure
	}
}

func humanWindow(d time.Duration) string {
	switch d {
	case time.Minute:
		return "minute"
	case time.Hour:
		return "hour"
	case 24 * time.Hour:
		return "day"
	default:
		return d.String()
	}
}

// escapeMarkdown escapes the characters reserved by MarkdownV2.
func escapeMarkdown(text string) string {
	specialChars := []string{"\\", "_", "*", "[", "]", "(", ")", "~", "`", ">", "#", "+", "-", "=", "|", "{", "}", ".", "!"}
	escaped := text
	for _, char := range specialChars {
		escaped = strings.ReplaceAll(escaped, char, "\\"+char)
	}
	return escaped
}

// splitMessage cuts text into chunks Telegram accepts, preferring line
// breaks.
func splitMessage(text string, limit int) []string {
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}

	var parts []string
	for len(runes) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		parts = append(parts, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}

func formatReminderSet(r models.Reminder, loc *time.Location) string {
	return fmt.Sprintf("✅ Reminder set:\n%s\n⏰ %s", r.Text, r.RemindAt.In(loc).Format(timeLayout))
}

func formatReminders(list []models.Reminder, loc *time.Location) string {
	if len(list) == 0 {
		return "You have no reminders."
	}
	var b strings.Builder
	b.WriteString("*Your reminders:*\n")
	for _, r := range list {
		fmt.Fprintf(&b, "`%d` %s – %s\n",
			r.ID,
			escapeMarkdown(r.RemindAt.In(loc).Format(timeLayout)),
			escapeMarkdown(r.Text))
	}
	return b.String()
}

func formatNotes(header string, list []models.Note) string {
	if len(list) == 0 {
		return "No notes."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "*%s*\n\n", escapeMarkdown(header))
	for _, n := range list {
		fmt.Fprintf(&b, "`%d` *%s*\n", n.ID, escapeMarkdown(n.Title))
		if n.Content != "" && n.Content != n.Title {
			fmt.Fprintf(&b, "_%s_\n", escapeMarkdown(n.Content))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// exportMarkdown renders a user's notes and reminders as a document.
func exportMarkdown(notes []models.Note, reminders []models.Reminder, loc *time.Location, now time.Time) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "# Export %s\n\n", now.In(loc).Format(timeLayout))

	b.WriteString("## Notes\n\n")
	if len(notes) == 0 {
		b.WriteString("_none_\n")
	}
	for _, n := range notes {
		fmt.Fprintf(&b, "### %s\n%s\n\n_%s_\n\n", n.Title, n.Content, n.CreatedAt.In(loc).Format(timeLayout))
	}

	b.WriteString("\n## Reminders\n\n")
	if len(reminders) == 0 {
		b.WriteString("_none_\n")
	}
	for _, r := range reminders {
		fmt.Fprintf(&b, "- %s – %s\n", r.RemindAt.In(loc).Format(timeLayout), r.Text)
	}
	return []byte(b.String())
}

func formatStats(st models.Stats, model string) string {
	return fmt.Sprintf("📊 Stats\nUsers: %d\nHistory entries: %d\nReminders: %d\nNotes: %d\nModel: %s",
		st.Users, st.HistoryEntries, st.Reminders, st.Notes, model)
}

func formatStatus(st models.UserStats, model string) string {
	return fmt.Sprintf("📊 Your status\nMessages in memory: %d\nReminders: %d\nNotes: %d\nModel: %s",
		st.HistoryEntries, st.Reminders, st.Notes, model)
}

// parseNote splits "title | content". Without a separator the title is the
// start of the text.
func parseNote(args string) (string, string) {
	if title, content, ok := strings.Cut(args, "|"); ok {
		title, content = strings.TrimSpace(title), strings.TrimSpace(content)
		if title == "" {
			title = shorten(content, 40)
		}
		return title, content
	}
	args = strings.TrimSpace(args)
	return shorten(args, 40), args
}

func shorten(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
