package bot

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/xaenox/modmail-bot/internal/identity"
	"github.com/xaenox/modmail-bot/internal/moderation"
	"github.com/xaenox/modmail-bot/internal/notices"
	"github.com/xaenox/modmail-bot/internal/platform"
	"github.com/xaenox/modmail-bot/internal/ticket"
)

// handleCommand runs a prefixed staff command. Non-staff authors, unknown
// commands and malformed arguments are ignored without a reply.
func (b *Bot) handleCommand(ctx context.Context, msg platform.Message) {
	if !b.staff.IsStaff(ctx, msg.Author.ID) {
		return
	}

	args := strings.Fields(strings.TrimPrefix(msg.Content, b.cfg.Prefix))
	if len(args) == 0 {
		return
	}
	name := strings.ToLower(args[0])
	args = args[1:]

	b.log(ctx).Info("Staff command",
		zap.String("command", name),
		zap.String("staff_id", msg.Author.ID),
		zap.String("channel_id", msg.ChannelID))

	switch name {
	case "cmds", "commands":
		b.reply(ctx, msg, notices.Help(b.cfg.Prefix))
	case "warn":
		b.handleWarn(ctx, msg, args)
	case "warnlist":
		b.handleWarnList(ctx, msg, args)
	case "clearwarns":
		b.handleClearWarns(ctx, msg, args)
	case "removewarn":
		b.handleRemoveWarn(ctx, msg, args)
	case "dm":
		b.handleDM(ctx, msg, args)
	case "blacklist":
		b.handleBlacklist(ctx, msg, args)
	case "unblacklist":
		b.handleUnblacklist(ctx, msg, args)
	case "close":
		b.handleClose(ctx, msg, args)
	case "reopen":
		b.handleReopen(ctx, msg)
	}
}

// target parses the leading user reference and returns the remaining text.
func target(args []string) (string, string, bool) {
	if len(args) == 0 {
		return "", "", false
	}
	userID, ok := identity.ParseUserRef(args[0])
	return userID, strings.TrimSpace(strings.Join(args[1:], " ")), ok
}

func (b *Bot) handleWarn(ctx context.Context, msg platform.Message, args []string) {
	userID, reason, ok := target(args)
	if !ok || reason == "" {
		return
	}

	res, err := b.ledger.Warn(ctx, userID, reason, msg.Author.ID)
	if err != nil {
		b.log(ctx).Error("Failed to warn user", zap.Error(err), zap.String("user_id", userID))
		return
	}

	if err := b.platform.SendDirectMessage(ctx, userID, notices.WarnDM(reason)); err != nil {
		b.log(ctx).Debug("Could not DM warned user", zap.Error(err), zap.String("user_id", userID))
	}
	b.replyText(ctx, msg, notices.Warned(userID, res.Total))

	if !res.AutoBlacklisted {
		return
	}
	threshold := b.ledger.Threshold()
	b.send(ctx, msg.ChannelID, notices.AutoBlacklisted(userID, threshold))
	if b.cfg.ModLogChannelID != "" && b.cfg.ModLogChannelID != msg.ChannelID {
		b.send(ctx, b.cfg.ModLogChannelID, notices.AutoBlacklisted(userID, threshold))
	}
	if threadID, ok := b.tickets.ActiveThread(ctx, userID); ok {
		b.send(ctx, threadID, notices.AutoBlacklistedThreadNote(threshold))
	}
}

func (b *Bot) handleWarnList(ctx context.Context, msg platform.Message, args []string) {
	userID, _, ok := target(args)
	if !ok {
		return
	}
	warns, err := b.ledger.Warnings(ctx, userID)
	if err != nil {
		b.log(ctx).Error("Failed to list warnings", zap.Error(err), zap.String("user_id", userID))
		return
	}
	if len(warns) == 0 {
		b.replyText(ctx, msg, notices.NoWarnings(userID))
		return
	}
	b.reply(ctx, msg, notices.WarningList(userID, warns))
}

func (b *Bot) handleClearWarns(ctx context.Context, msg platform.Message, args []string) {
	userID, _, ok := target(args)
	if !ok {
		return
	}
	n, err := b.ledger.Clear(ctx, userID)
	if err != nil {
		b.log(ctx).Error("Failed to clear warnings", zap.Error(err), zap.String("user_id", userID))
		return
	}
	b.replyText(ctx, msg, notices.WarningsCleared(userID, n))
}

func (b *Bot) handleRemoveWarn(ctx context.Context, msg platform.Message, args []string) {
	if len(args) < 2 {
		return
	}
	userID, ok := identity.ParseUserRef(args[0])
	if !ok {
		return
	}
	index, err := strconv.Atoi(args[1])
	if err != nil {
		b.replyText(ctx, msg, notices.CaseNotInteger())
		return
	}

	remaining, err := b.ledger.RemoveAt(ctx, userID, index)
	if errors.Is(err, moderation.ErrIndexOutOfRange) {
		b.replyText(ctx, msg, notices.InvalidCase(b.cfg.Prefix))
		return
	}
	if err != nil {
		b.log(ctx).Error("Failed to remove warning", zap.Error(err), zap.String("user_id", userID))
		return
	}
	b.replyText(ctx, msg, notices.WarningRemoved(userID, index, remaining))
}

func (b *Bot) handleDM(ctx context.Context, msg platform.Message, args []string) {
	userID, text, ok := target(args)
	if !ok || text == "" {
		return
	}
	if err := b.platform.SendDirectMessage(ctx, userID, platform.Text(text)); err != nil {
		b.log(ctx).Info("Staff DM not delivered", zap.Error(err), zap.String("user_id", userID))
		b.replyText(ctx, msg, notices.DMFailed(userID))
		return
	}
	if err := b.platform.React(ctx, msg.ChannelID, msg.ID, notices.SuccessReaction); err != nil {
		b.log(ctx).Debug("Failed to react", zap.Error(err), zap.String("message_id", msg.ID))
	}
	b.replyText(ctx, msg, notices.DMSent(userID))
}

func (b *Bot) handleBlacklist(ctx context.Context, msg platform.Message, args []string) {
	userID, reason, ok := target(args)
	if !ok {
		return
	}
	if reason == "" {
		reason = "manual"
	}
	if _, err := b.ledger.Blacklist(ctx, userID, msg.Author.ID, reason); err != nil {
		b.log(ctx).Error("Failed to blacklist user", zap.Error(err), zap.String("user_id", userID))
		return
	}
	b.replyText(ctx, msg, notices.UserBlacklisted(userID))
	if threadID, ok := b.tickets.ActiveThread(ctx, userID); ok {
		b.send(ctx, threadID, notices.BlacklistedThreadNote())
	}
}

func (b *Bot) handleUnblacklist(ctx context.Context, msg platform.Message, args []string) {
	userID, _, ok := target(args)
	if !ok {
		return
	}
	removed, err := b.ledger.Unblacklist(ctx, userID)
	if err != nil {
		b.log(ctx).Error("Failed to unblacklist user", zap.Error(err), zap.String("user_id", userID))
		return
	}
	if removed {
		b.replyText(ctx, msg, notices.UserUnblacklisted(userID))
	}
}

func (b *Bot) handleClose(ctx context.Context, msg platform.Message, args []string) {
	reason := strings.TrimSpace(strings.Join(args, " "))
	_, err := b.tickets.Close(ctx, msg.ChannelID, reason, msg.Author)
	switch {
	case err == nil, errors.Is(err, ticket.ErrNotTicketThread):
	case errors.Is(err, ticket.ErrAlreadyClosed):
		b.reply(ctx, msg, notices.AlreadyClosed())
	default:
		b.log(ctx).Error("Failed to close ticket", zap.Error(err), zap.String("thread_id", msg.ChannelID))
	}
}

func (b *Bot) handleReopen(ctx context.Context, msg platform.Message) {
	_, err := b.tickets.Reopen(ctx, msg.ChannelID, msg.Author)
	switch {
	case err == nil:
		b.reply(ctx, msg, notices.Reopened())
	case errors.Is(err, ticket.ErrNotTicketThread):
	case errors.Is(err, ticket.ErrAlreadyOpen):
		b.reply(ctx, msg, notices.AlreadyOpen())
	default:
		b.log(ctx).Error("Failed to reopen ticket", zap.Error(err), zap.String("thread_id", msg.ChannelID))
	}
}
