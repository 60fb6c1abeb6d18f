package bot

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// handleAdminCommand runs cmd when it is an admin command and reports
// whether it was one.
func (b *Bot) handleAdminCommand(r request, cmd, args string) bool {
	switch cmd {
	case "admin", "stats", "ban", "unban", "broadcast", "wipeall":
	default:
		return false
	}
	if !b.deps.Guard.IsAdmin(r.userID) {
		b.sendMessage(r.chatID, "⛔ Admins only.")
		return true
	}

	switch cmd {
	case "admin":
		b.sendMessage(r.chatID, `Admin commands:
/stats - Usage statistics
/ban <id> - Block a user
/unban <id> - Unblock a user
/broadcast <text> - Message every user
/wipeall CONFIRM - Back up and delete all data`)
	case "stats":
		st, err := b.deps.Admin.Stats(r.ctx)
		if err != nil {
			b.fail(r, "Failed to load stats", err)
			return true
		}
		b.sendMessage(r.chatID, formatStats(st, b.deps.Models.Active()))
	case "ban", "unban":
		id, err := parseUserID(args)
		if err != nil {
			b.sendMessage(r.chatID, fmt.Sprintf("Usage: /%s <user id>", cmd))
			return true
		}
		if cmd == "ban" {
			err = b.deps.Admin.Ban(r.ctx, id)
		} else {
			err = b.deps.Admin.Unban(r.ctx, id)
		}
		if err != nil {
			b.fail(r, "Failed to update ban", err, zap.Int64("target_id", id))
			return true
		}
		b.sendMessage(r.chatID, fmt.Sprintf("✅ User %d %sned.", id, cmd))
	case "broadcast":
		if args == "" {
			b.sendMessage(r.chatID, "Usage: /broadcast <text>")
			return true
		}
		res, err := b.deps.Admin.Broadcast(r.ctx, func(ctx context.Context, id int64, text string) error {
			return b.SendText(ctx, id, "📢 "+text)
		}, args)
		if err != nil {
			b.fail(r, "Broadcast failed", err)
			return true
		}
		b.sendMessage(r.chatID, fmt.Sprintf("📢 Broadcast done. Sent: %d, failed: %d.", res.Sent, res.Failed))
	case "wipeall":
		path, err := b.deps.Admin.Wipe(r.ctx, args)
		if err != nil {
			b.fail(r, "Wipe failed", err)
			return true
		}
		b.sendMessage(r.chatID, "🧨 All data deleted. Backup: "+path)
	}
	return true
}
