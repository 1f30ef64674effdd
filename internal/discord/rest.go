package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/bwmarrin/discordgo"

	"github.com/xaenox/modmail-bot/internal/platform"
)

// Forum posts auto-archive after a week of inactivity.
const autoArchiveMinutes = 10080

func isNotFound(err error) bool {
	var rest *discordgo.RESTError
	return errors.As(err, &rest) && rest.Response != nil && rest.Response.StatusCode == http.StatusNotFound
}

func (c *Client) SendDirectMessage(ctx context.Context, userID string, msg platform.Outgoing) error {
	ch, err := c.session.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("%w: open DM channel: %v", platform.ErrDeliveryFailed, err)
	}
	if _, err := c.session.ChannelMessageSendComplex(ch.ID, messageSend(ch.ID, msg), discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("%w: %v", platform.ErrDeliveryFailed, err)
	}
	return nil
}

func (c *Client) Send(ctx context.Context, channelID string, msg platform.Outgoing) error {
	if _, err := c.session.ChannelMessageSendComplex(channelID, messageSend(channelID, msg), discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to send message to %s: %w", channelID, err)
	}
	return nil
}

func (c *Client) React(ctx context.Context, channelID, messageID, emoji string) error {
	return c.session.MessageReactionAdd(channelID, messageID, emoji, discordgo.WithContext(ctx))
}

func (c *Client) channel(ctx context.Context, id string) (*discordgo.Channel, error) {
	if ch, err := c.session.State.Channel(id); err == nil {
		return ch, nil
	}
	return c.session.Channel(id, discordgo.WithContext(ctx))
}

func (c *Client) CreateThread(ctx context.Context, parentID, title, content string) (*platform.Thread, error) {
	parent, err := c.channel(ctx, parentID)
	if err != nil || parent.Type != discordgo.ChannelTypeGuildForum {
		return nil, platform.ErrParentNotFound
	}

	ch, err := c.session.ForumThreadStart(parentID, title, autoArchiveMinutes, content, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to start forum thread: %w", err)
	}
	return toThread(ch), nil
}

func (c *Client) FetchThread(ctx context.Context, threadID string) (*platform.Thread, error) {
	ch, err := c.session.Channel(threadID, discordgo.WithContext(ctx))
	if isNotFound(err) {
		return nil, platform.ErrThreadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch thread %s: %w", threadID, err)
	}
	return toThread(ch), nil
}

func (c *Client) ListActiveThreads(ctx context.Context, parentID string) ([]*platform.Thread, error) {
	list, err := c.session.GuildThreadsActive(c.cfg.GuildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to list active threads: %w", err)
	}
	var threads []*platform.Thread
	for _, ch := range list.Threads {
		if ch.ParentID == parentID {
			threads = append(threads, toThread(ch))
		}
	}
	return threads, nil
}

func (c *Client) SetThreadArchived(ctx context.Context, threadID string, archived bool, reason string) error {
	return c.editThread(ctx, threadID, &discordgo.ChannelEdit{Archived: &archived}, reason)
}

func (c *Client) SetThreadLocked(ctx context.Context, threadID string, locked bool, reason string) error {
	return c.editThread(ctx, threadID, &discordgo.ChannelEdit{Locked: &locked}, reason)
}

func (c *Client) editThread(ctx context.Context, threadID string, edit *discordgo.ChannelEdit, reason string) error {
	opts := []discordgo.RequestOption{discordgo.WithContext(ctx)}
	if reason != "" {
		opts = append(opts, discordgo.WithAuditLogReason(reason))
	}
	if _, err := c.session.ChannelEdit(threadID, edit, opts...); err != nil {
		if isNotFound(err) {
			return platform.ErrThreadNotFound
		}
		return fmt.Errorf("failed to edit thread %s: %w", threadID, err)
	}
	return nil
}

func (c *Client) guild(ctx context.Context) (*discordgo.Guild, error) {
	if g, err := c.session.State.Guild(c.cfg.GuildID); err == nil && len(g.Roles) > 0 {
		return g, nil
	}
	return c.session.Guild(c.cfg.GuildID, discordgo.WithContext(ctx))
}

// MemberPermissions computes guild-level permissions from the member's roles.
// Channel overwrites are not applied.
func (c *Client) MemberPermissions(ctx context.Context, userID string) (platform.Permissions, error) {
	member, err := c.session.GuildMember(c.cfg.GuildID, userID, discordgo.WithContext(ctx))
	if isNotFound(err) {
		return 0, platform.ErrUnknownUser
	}
	if err != nil {
		return 0, fmt.Errorf("failed to fetch member %s: %w", userID, err)
	}

	g, err := c.guild(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch guild: %w", err)
	}
	return memberPermissions(g, member), nil
}

func memberPermissions(g *discordgo.Guild, member *discordgo.Member) platform.Permissions {
	if member.User != nil && member.User.ID == g.OwnerID {
		return platform.PermManageThreads | platform.PermModerateMembers |
			platform.PermManageMessages | platform.PermAdministrator
	}

	held := make(map[string]bool, len(member.Roles)+1)
	held[g.ID] = true // @everyone shares the guild id
	for _, id := range member.Roles {
		held[id] = true
	}

	var bits int64
	for _, role := range g.Roles {
		if held[role.ID] {
			bits |= role.Permissions
		}
	}
	return permissions(bits)
}

func (c *Client) User(ctx context.Context, userID string) (*platform.User, error) {
	u, err := c.session.User(userID, discordgo.WithContext(ctx))
	if isNotFound(err) {
		return nil, platform.ErrUnknownUser
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user %s: %w", userID, err)
	}
	user := toUser(u)
	return &user, nil
}
