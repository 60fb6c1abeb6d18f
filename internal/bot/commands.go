package bot

import (
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/xaenox/assistant-bot/internal/apperr"
	"github.com/xaenox/assistant-bot/internal/memory"
	"github.com/xaenox/assistant-bot/internal/models"
	"github.com/xaenox/assistant-bot/internal/providers"
)

const notesShown = 10

func (b *Bot) handleCommand(r request, message *tgbotapi.Message) {
	cmd := message.Command()
	args := strings.TrimSpace(message.CommandArguments())
	r.log.Debug("Command received", zap.String("command", cmd))

	// open to everybody
	switch cmd {
	case "myid":
		b.sendMessage(r.chatID, fmt.Sprintf("Your id: %d", r.userID))
		return
	case "start", "menu":
		if err := b.deps.Guard.Check(r.userID); err != nil {
			b.reject(r, err)
			return
		}
		b.handleStart(r)
		return
	}

	if err := b.deps.Guard.Check(r.userID); err != nil {
		b.reject(r, err)
		return
	}
	if b.handleAdminCommand(r, cmd, args) {
		return
	}

	switch cmd {
	case "help":
		b.handleHelp(r)
	case "remind":
		b.handleRemind(r, args)
	case "reminders":
		b.handleReminders(r)
	case "delremind":
		b.handleDeleteReminder(r, args)
	case "note":
		b.handleNote(r, args)
	case "notes":
		b.handleNotes(r)
	case "delnote":
		b.handleDeleteNote(r, args)
	case "find":
		b.handleFind(r, args)
	case "export":
		b.handleExport(r)
	case "memory":
		b.handleMemory(r)
	case "clearmemory":
		b.handleClearMemory(r)
	case "clear":
		b.handleClearHistory(r)
	case "model":
		b.handleModel(r)
	case "search":
		if args == "" {
			b.sendMessage(r.chatID, "Usage: /search <query>")
			return
		}
		b.runSearch(r, args)
	case "image":
		b.handleImage(r, args, providers.QualityFast)
	case "imagehd":
		b.handleImage(r, args, providers.QualityHigh)
	default:
		b.sendMessage(r.chatID, "Unknown command. Use /help to see available commands.")
	}
}

func (b *Bot) handleStart(r request) {
	msg := tgbotapi.NewMessage(r.chatID, fmt.Sprintf(`Hi! I'm %s, your personal assistant. 🤖
Talk to me, send a voice message, or pick something below.
Use /help to see all available commands.`, b.deps.BotName))
	msg.ReplyMarkup = mainMenu()
	if _, err := b.sender.Send(msg); err != nil {
		r.log.Error("Failed to send menu", zap.Error(err))
	}
}

func (b *Bot) handleHelp(r request) {
	help := `Available commands:
/menu - Show the main menu
/remind <when> <text> - Set a reminder (30m, 2h, 1d, 18:30)
/reminders - List your reminders
/delremind <id> - Delete a reminder
/note <title> | <content> - Save a note
/notes - Show your latest notes
/delnote <id> - Delete a note
/find <text> - Search your notes
/export - Download your notes and reminders
/memory - What I remember about you
/clearmemory - Forget everything I know about you
/clear - Clear the conversation history
/search <query> - Search the web
/image <prompt> - Generate an image
/imagehd <prompt> - Generate a high quality image
/model - Show the active model
/myid - Show your Telegram id

You can also just write "remind me in 2h to ..." or send a voice message.`
	if b.deps.Guard.IsAdmin(r.userID) {
		help += "\n\nAdmins: /admin"
	}
	b.sendMessage(r.chatID, help)
}

func (b *Bot) handleRemind(r request, args string) {
	if args == "" {
		b.sendMessage(r.chatID, "Usage: /remind 30m call mom")
		return
	}
	rem, err := b.deps.Reminders.CreateFromText(r.ctx, r.userID, args)
	if err != nil {
		b.fail(r, "Failed to create reminder", err)
		return
	}
	b.sendMessage(r.chatID, formatReminderSet(rem, b.deps.Location))
}

func (b *Bot) handleReminders(r request) {
	list, err := b.deps.Reminders.List(r.ctx, r.userID)
	if err != nil {
		b.fail(r, "Failed to list reminders", err)
		return
	}
	if len(list) == 0 {
		b.sendMessage(r.chatID, formatReminders(nil, b.deps.Location))
		return
	}
	b.sendMarkdown(r.chatID, formatReminders(list, b.deps.Location))
}

func (b *Bot) handleDeleteReminder(r request, args string) {
	id, err := strconv.ParseInt(args, 10, 64)
	if err != nil {
		b.sendMessage(r.chatID, "Usage: /delremind <id>")
		return
	}
	ok, err := b.deps.Reminders.Delete(r.ctx, id, r.userID)
	if err != nil {
		b.fail(r, "Failed to delete reminder", err)
		return
	}
	if !ok {
		b.sendMessage(r.chatID, fmt.Sprintf("Reminder %d not found.", id))
		return
	}
	b.sendMessage(r.chatID, "🗑 Reminder deleted.")
}

func (b *Bot) handleNote(r request, args string) {
	if args == "" {
		b.sendMessage(r.chatID, "Usage: /note title | content")
		return
	}
	title, content := parseNote(args)
	n := models.Note{
		UserID:    r.userID,
		Title:     title,
		Content:   content,
		CreatedAt: b.deps.Reminders.Now(),
	}
	if err := b.deps.Store.CreateNote(r.ctx, &n); err != nil {
		b.fail(r, "Failed to save note", err)
		return
	}
	b.sendMessage(r.chatID, fmt.Sprintf("📝 Note saved (#%d).", n.ID))
}

func (b *Bot) handleNotes(r request) {
	list, err := b.deps.Store.ListNotes(r.ctx, r.userID, notesShown)
	if err != nil {
		b.fail(r, "Failed to list notes", err)
		return
	}
	b.sendNotes(r, "Your notes:", list)
}

func (b *Bot) sendNotes(r request, header string, list []models.Note) {
	if len(list) == 0 {
		b.sendMessage(r.chatID, "No notes.")
		return
	}
	b.sendMarkdown(r.chatID, formatNotes(header, list))
}

func (b *Bot) handleDeleteNote(r request, args string) {
	id, err := strconv.ParseInt(args, 10, 64)
	if err != nil {
		b.sendMessage(r.chatID, "Usage: /delnote <id>")
		return
	}
	ok, err := b.deps.Store.DeleteNote(r.ctx, id, r.userID)
	if err != nil {
		b.fail(r, "Failed to delete note", err)
		return
	}
	if !ok {
		b.sendMessage(r.chatID, fmt.Sprintf("Note %d not found.", id))
		return
	}
	b.sendMessage(r.chatID, "🗑 Note deleted.")
}

func (b *Bot) handleFind(r request, args string) {
	if args == "" {
		b.sendMessage(r.chatID, "Usage: /find <text>")
		return
	}
	list, err := b.deps.Store.SearchNotes(r.ctx, r.userID, args)
	if err != nil {
		b.fail(r, "Failed to search notes", err)
		return
	}
	b.sendNotes(r, "Found:", list)
}

func (b *Bot) handleExport(r request) {
	notes, err := b.deps.Store.ListNotes(r.ctx, r.userID, 0)
	if err != nil {
		b.fail(r, "Failed to export notes", err)
		return
	}
	reminders, err := b.deps.Reminders.List(r.ctx, r.userID)
	if err != nil {
		b.fail(r, "Failed to export reminders", err)
		return
	}

	b.typing(r.chatID, tgbotapi.ChatUploadDocument)
	doc := tgbotapi.NewDocument(r.chatID, tgbotapi.FileBytes{
		Name:  "export.md",
		Bytes: exportMarkdown(notes, reminders, b.deps.Location, b.deps.Reminders.Now()),
	})
	doc.Caption = "📦 Your notes and reminders"
	b.sendFile(r.chatID, doc)
}

func (b *Bot) handleMemory(r request) {
	facts, err := b.deps.Memory.Facts(r.ctx, r.userID)
	if err != nil {
		b.fail(r, "Failed to load facts", err)
		return
	}
	b.sendMessage(r.chatID, "🧠 What I remember about you:\n"+memory.FormatFacts(facts))
}

func (b *Bot) handleClearMemory(r request) {
	if err := b.deps.Memory.Forget(r.ctx, r.userID); err != nil {
		b.fail(r, "Failed to clear facts", err)
		return
	}
	b.sendMessage(r.chatID, "🧹 I forgot everything I knew about you.")
}

func (b *Bot) handleClearHistory(r request) {
	if err := b.deps.Conversation.ClearHistory(r.ctx, r.userID); err != nil {
		b.fail(r, "Failed to clear history", err)
		return
	}
	b.sendMessage(r.chatID, "🧹 Conversation history cleared.")
}

// handleModel shows the candidates. Admins also trigger a fresh health check.
func (b *Bot) handleModel(r request) {
	if b.deps.Guard.IsAdmin(r.userID) {
		b.typing(r.chatID, tgbotapi.ChatTyping)
		if _, _, err := b.deps.Models.Check(r.ctx); err != nil {
			r.log.Warn("Model check failed", zap.Error(err))
		}
	}

	active := b.deps.Models.Active()
	var sb strings.Builder
	sb.WriteString("🤖 Models:\n")
	for _, m := range b.deps.Models.Candidates() {
		mark := "▫️"
		if m == active {
			mark = "✅"
		}
		fmt.Fprintf(&sb, "%s %s\n", mark, m)
	}
	b.sendMessage(r.chatID, sb.String())
}

func (b *Bot) runSearch(r request, query string) {
	b.typing(r.chatID, tgbotapi.ChatTyping)
	summary, err := b.deps.Conversation.Search(r.ctx, r.userID, query)
	if err != nil {
		b.fail(r, "Search failed", err)
		return
	}
	b.sendMessage(r.chatID, "🔍 "+summary)
}

func (b *Bot) handleImage(r request, prompt string, quality providers.Quality) {
	if prompt == "" {
		b.sendMessage(r.chatID, "Usage: /image <prompt>")
		return
	}
	b.typing(r.chatID, tgbotapi.ChatUploadPhoto)

	img, err := b.deps.Conversation.Image(r.ctx, r.userID, prompt, quality)
	if err != nil {
		b.fail(r, "Image generation failed", err)
		return
	}
	photo := tgbotapi.NewPhoto(r.chatID, tgbotapi.FileBytes{Name: "image.png", Bytes: img})
	photo.Caption = shorten(prompt, 200)
	b.sendFile(r.chatID, photo)
}

// parseUserID reads a numeric id argument.
func parseUserID(args string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(args), 10, 64)
	if err != nil {
		return 0, apperr.ErrNotFound
	}
	return id, nil
}
