package bot

import (
	"context"
	"fmt"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const maxVoiceBytes = 20 << 20

func (b *Bot) handleVoice(r request, message *tgbotapi.Message) {
	fileID, name := "", "voice.ogg"
	switch {
	case message.Voice != nil:
		fileID = message.Voice.FileID
	case message.Audio != nil:
		fileID = message.Audio.FileID
		if message.Audio.FileName != "" {
			name = message.Audio.FileName
		}
	}

	b.typing(r.chatID, tgbotapi.ChatTyping)
	audio, err := b.download(r.ctx, fileID)
	if err != nil {
		b.fail(r, "Failed to download voice message", err)
		return
	}

	out, err := b.deps.Conversation.HandleVoice(r.ctx, r.userID, audio, name)
	if out.Transcript != "" {
		b.sendMessage(r.chatID, "🎤 "+out.Transcript)
	}
	if err != nil {
		b.fail(r, "Voice turn failed", err)
		return
	}
	if out.Reminder != nil {
		b.sendMessage(r.chatID, formatReminderSet(*out.Reminder, b.deps.Location))
		return
	}

	b.sendReply(r.chatID, out.Text, afterReplyMenu())
	if len(out.Audio) > 0 {
		b.typing(r.chatID, tgbotapi.ChatUploadVoice)
		b.sendFile(r.chatID, tgbotapi.NewVoice(r.chatID, tgbotapi.FileBytes{Name: "reply.ogg", Bytes: out.Audio}))
	}
}

// download fetches a Telegram file through its direct URL.
func (b *Bot) download(ctx context.Context, fileID string) ([]byte, error) {
	url, err := b.sender.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve file: %w", err)
	}

	resp, err := b.files.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to download file: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("file download status %d", resp.StatusCode())
	}
	if len(resp.Body()) > maxVoiceBytes {
		return nil, fmt.Errorf("file too large: %d bytes", len(resp.Body()))
	}
	b.logger.Debug("Voice downloaded", zap.Int("bytes", len(resp.Body())))
	return resp.Body(), nil
}
