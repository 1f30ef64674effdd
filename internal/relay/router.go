// Package relay decides what happens to every non-command message: relay it
// into a ticket, back to a user, or turn it into a prompt or a rejection.
package relay

import (
	"context"

	"go.uber.org/zap"

	"github.com/xaenox/modmail-bot/internal/cooldown"
	"github.com/xaenox/modmail-bot/internal/notices"
	"github.com/xaenox/modmail-bot/internal/platform"
)

type Decision int

const (
	Ignored Decision = iota
	RejectedBlacklisted
	Throttled
	Relayed
	Prompted
	DeliveryFailed
)

func (d Decision) String() string {
	switch d {
	case Ignored:
		return "ignored"
	case RejectedBlacklisted:
		return "rejected_blacklisted"
	case Throttled:
		return "throttled"
	case Relayed:
		return "relayed"
	case Prompted:
		return "prompted"
	case DeliveryFailed:
		return "delivery_failed"
	default:
		return "unknown"
	}
}

type Tickets interface {
	ActiveThread(ctx context.Context, userID string) (string, bool)
	LiveOwner(ctx context.Context, threadID string) (string, bool)
	Forget(userID, threadID string)
}

type Blacklist interface {
	IsBlacklisted(ctx context.Context, userID string) (bool, error)
}

type StaffChecker interface {
	IsStaff(ctx context.Context, userID string) bool
}

// Prompter asks a user whether they want to open a ticket.
type Prompter interface {
	Present(ctx context.Context, userID, channelID string) error
}

type Router struct {
	messenger platform.Messenger
	tickets   Tickets
	blacklist Blacklist
	staff     StaffChecker
	prompter  Prompter
	limiter   cooldown.Limiter
	// appeals controls whether the blacklist notice carries the appeal button.
	appeals bool
	logger  *zap.Logger
}

type Deps struct {
	Messenger platform.Messenger
	Tickets   Tickets
	Blacklist Blacklist
	Staff     StaffChecker
	Prompter  Prompter
	Limiter   cooldown.Limiter
	Appeals   bool
}

func NewRouter(deps Deps, logger *zap.Logger) *Router {
	limiter := deps.Limiter
	if limiter == nil {
		limiter = cooldown.NewMemoryLimiter(cooldown.DefaultWindow, nil)
	}
	return &Router{
		messenger: deps.Messenger,
		tickets:   deps.Tickets,
		blacklist: deps.Blacklist,
		staff:     deps.Staff,
		prompter:  deps.Prompter,
		limiter:   limiter,
		appeals:   deps.Appeals,
		logger:    logger,
	}
}

// HandleUserMessage routes a direct message from an end user.
func (r *Router) HandleUserMessage(ctx context.Context, msg platform.Message) Decision {
	if msg.Author.Bot || msg.Empty() {
		return Ignored
	}
	userID := msg.Author.ID

	if r.isBlacklisted(ctx, userID) {
		if err := r.messenger.Send(ctx, msg.ChannelID, notices.Blacklisted(userID, r.appeals)); err != nil {
			r.logger.Warn("Failed to send blacklist notice", zap.Error(err), zap.String("user_id", userID))
		}
		return RejectedBlacklisted
	}

	// Every routed message starts a cooldown window, including the one that
	// triggered the confirmation prompt.
	allowed := r.allow(ctx, userID)

	if threadID, ok := r.tickets.ActiveThread(ctx, userID); ok {
		if !allowed {
			return Throttled
		}
		err := r.messenger.Send(ctx, threadID, notices.UserRelay(msg))
		if err == nil {
			r.react(ctx, msg)
			return Relayed
		}
		r.logger.Warn("Relay into ticket thread failed, dropping binding",
			zap.Error(err),
			zap.String("user_id", userID),
			zap.String("thread_id", threadID))
		r.tickets.Forget(userID, threadID)
	}

	if err := r.prompter.Present(ctx, userID, msg.ChannelID); err != nil {
		r.logger.Warn("Failed to present ticket prompt", zap.Error(err), zap.String("user_id", userID))
	}
	return Prompted
}

// HandleStaffMessage forwards a staff reply posted in an open ticket thread.
func (r *Router) HandleStaffMessage(ctx context.Context, msg platform.Message) Decision {
	if msg.Author.Bot || msg.Empty() {
		return Ignored
	}

	userID, ok := r.tickets.LiveOwner(ctx, msg.ChannelID)
	if !ok {
		return Ignored
	}
	if !r.staff.IsStaff(ctx, msg.Author.ID) {
		return Ignored
	}

	err := r.messenger.SendDirectMessage(ctx, userID, notices.StaffRelay(msg))
	if err != nil {
		r.logger.Info("Staff reply not delivered",
			zap.Error(err),
			zap.String("user_id", userID),
			zap.String("thread_id", msg.ChannelID))
		if err := r.messenger.Send(ctx, msg.ChannelID, notices.DeliveryFailed(userID)); err != nil {
			r.logger.Warn("Failed to post delivery failure", zap.Error(err), zap.String("thread_id", msg.ChannelID))
		}
		return DeliveryFailed
	}
	r.react(ctx, msg)
	return Relayed
}

func (r *Router) isBlacklisted(ctx context.Context, userID string) bool {
	blacklisted, err := r.blacklist.IsBlacklisted(ctx, userID)
	if err != nil {
		r.logger.Error("Blacklist lookup failed, rejecting message",
			zap.Error(err),
			zap.String("user_id", userID))
		return true
	}
	return blacklisted
}

func (r *Router) allow(ctx context.Context, userID string) bool {
	ok, err := r.limiter.Allow(ctx, userID)
	if err != nil {
		r.logger.Warn("Cooldown check failed, allowing message", zap.Error(err), zap.String("user_id", userID))
		return true
	}
	return ok
}

func (r *Router) react(ctx context.Context, msg platform.Message) {
	if err := r.messenger.React(ctx, msg.ChannelID, msg.ID, notices.SuccessReaction); err != nil {
		r.logger.Debug("Failed to react", zap.Error(err), zap.String("message_id", msg.ID))
	}
}
