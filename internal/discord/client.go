// Package discord connects the bot to the Discord gateway and REST API.
package discord

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/codeGROOVE-dev/retry"
	"go.uber.org/zap"

	"github.com/xaenox/modmail-bot/internal/platform"
)

const eventBuffer = 64

type Config struct {
	Token   string
	GuildID string
	// Prefix marks staff commands. Guild messages without it are only
	// forwarded when they were posted in a thread under TicketParents.
	Prefix        string
	TicketParents []string
	Status        string
}

// Client implements platform.Platform on top of a discordgo session and
// turns gateway events into platform events.
type Client struct {
	session *discordgo.Session
	cfg     Config
	parents map[string]bool
	logger  *zap.Logger

	events    chan platform.Event
	done      chan struct{}
	closeOnce sync.Once
}

func New(cfg Config, logger *zap.Logger) (*Client, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	c := &Client{
		session: session,
		cfg:     cfg,
		parents: make(map[string]bool, len(cfg.TicketParents)),
		logger:  logger,
		events:  make(chan platform.Event, eventBuffer),
		done:    make(chan struct{}),
	}
	for _, id := range cfg.TicketParents {
		c.parents[id] = true
	}

	session.AddHandler(c.onReady)
	session.AddHandler(c.onMessageCreate)
	session.AddHandler(c.onInteractionCreate)
	return c, nil
}

// Open connects to the gateway, retrying transient failures.
func (c *Client) Open(ctx context.Context) error {
	err := retry.Do(
		c.session.Open,
		retry.Attempts(3),
		retry.Delay(2*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Warn("Gateway connection failed, retrying",
				zap.Uint("attempt", n+1), zap.Error(err))
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}
	return nil
}

func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return c.session.Close()
}

// Events delivers inbound messages and interactions. The channel is never
// closed; stop consuming when the surrounding context ends.
func (c *Client) Events() <-chan platform.Event {
	return c.events
}

func (c *Client) emit(ev platform.Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func (c *Client) onReady(s *discordgo.Session, r *discordgo.Ready) {
	c.logger.Info("Connected to Discord",
		zap.String("user", r.User.Username),
		zap.Int("guilds", len(r.Guilds)))

	status := c.cfg.Status
	if status == "" {
		status = "DMs"
	}
	if err := s.UpdateWatchStatus(0, status); err != nil {
		c.logger.Warn("Failed to set presence", zap.Error(err))
	}
}

func (c *Client) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	if m.GuildID != "" {
		if m.GuildID != c.cfg.GuildID {
			return
		}
		if !strings.HasPrefix(m.Content, c.cfg.Prefix) && !c.maybeTicketChannel(s, m.ChannelID) {
			return
		}
	}

	msg := toMessage(m.Message)
	c.emit(platform.Event{Message: &msg})
}

// maybeTicketChannel drops chatter in channels the state cache already knows
// are not ticket threads. Unknown channels pass; the core checks them again.
func (c *Client) maybeTicketChannel(s *discordgo.Session, channelID string) bool {
	ch, err := s.State.Channel(channelID)
	if err != nil {
		return true
	}
	return isThread(ch.Type) && c.parents[ch.ParentID]
}

func (c *Client) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	in, ok := toInteraction(i.Interaction)
	if !ok {
		return
	}
	if in.GuildID != "" && in.GuildID != c.cfg.GuildID {
		return
	}
	in.Responder = &responder{session: s, interaction: i.Interaction}
	c.emit(platform.Event{Interaction: &in})
}
