// Package gate asks a user to confirm before a ticket is opened for them.
package gate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xaenox/modmail-bot/internal/models"
	"github.com/xaenox/modmail-bot/internal/notices"
	"github.com/xaenox/modmail-bot/internal/platform"
	"github.com/xaenox/modmail-bot/internal/ticket"
)

var ErrUnknownChoice = errors.New("not a confirmation choice")

type Opener interface {
	Open(ctx context.Context, user platform.User) (*models.Ticket, error)
}

type Blacklist interface {
	IsBlacklisted(ctx context.Context, userID string) (bool, error)
}

type Gate struct {
	messenger platform.Messenger
	tickets   Opener
	blacklist Blacklist
	appeals   bool
	logger    *zap.Logger
}

func New(messenger platform.Messenger, tickets Opener, blacklist Blacklist, appeals bool, logger *zap.Logger) *Gate {
	return &Gate{
		messenger: messenger,
		tickets:   tickets,
		blacklist: blacklist,
		appeals:   appeals,
		logger:    logger,
	}
}

// Present sends the Yes/No prompt. Prompts carry no server state, so any
// number of them may be outstanding for the same user.
func (g *Gate) Present(ctx context.Context, userID, channelID string) error {
	if err := g.messenger.Send(ctx, channelID, notices.Confirm(userID)); err != nil {
		return fmt.Errorf("send confirmation prompt: %w", err)
	}
	return nil
}

// ParseChoiceID decodes a prompt button id into the answer and the user the
// prompt was shown to.
func ParseChoiceID(id string) (yes bool, userID string, ok bool) {
	switch {
	case strings.HasPrefix(id, notices.ChoiceYesPrefix):
		userID = strings.TrimPrefix(id, notices.ChoiceYesPrefix)
		yes = true
	case strings.HasPrefix(id, notices.ChoiceNoPrefix):
		userID = strings.TrimPrefix(id, notices.ChoiceNoPrefix)
	default:
		return false, "", false
	}
	return yes, userID, userID != ""
}

// Resolve handles a click on a confirmation prompt.
func (g *Gate) Resolve(ctx context.Context, in platform.Interaction) error {
	yes, userID, ok := ParseChoiceID(in.ID)
	if !ok {
		return ErrUnknownChoice
	}
	if in.User.ID != userID {
		return in.Responder.Reply(ctx, notices.NotYourPrompt(), true)
	}

	// The user may have been blacklisted while the prompt was outstanding.
	blacklisted, err := g.blacklist.IsBlacklisted(ctx, userID)
	if err != nil {
		g.logger.Error("Blacklist lookup failed, rejecting confirmation", zap.Error(err), zap.String("user_id", userID))
		blacklisted = true
	}
	if blacklisted {
		return in.Responder.Update(ctx, notices.Blacklisted(userID, g.appeals))
	}

	if !yes {
		return in.Responder.Update(ctx, notices.Declined())
	}

	tk, err := g.tickets.Open(ctx, in.User)
	switch {
	case errors.Is(err, ticket.ErrConfiguration):
		g.logger.Error("Ticket parent channel missing", zap.Error(err))
		return in.Responder.Update(ctx, notices.ConfigurationError())
	case err != nil:
		g.logger.Error("Failed to open ticket", zap.Error(err), zap.String("user_id", userID))
		return in.Responder.Update(ctx, notices.TicketCreateFailed())
	}

	if err := in.Responder.Update(ctx, notices.TicketOpened()); err != nil {
		g.logger.Warn("Failed to update confirmation prompt", zap.Error(err), zap.String("user_id", userID))
	}
	if err := g.messenger.Send(ctx, tk.ThreadID, notices.TicketConfirmed(userID)); err != nil {
		g.logger.Warn("Failed to post confirmation into thread", zap.Error(err), zap.String("thread_id", tk.ThreadID))
	}
	return nil
}
