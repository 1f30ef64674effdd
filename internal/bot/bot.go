package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xaenox/modmail-bot/internal/appeal"
	"github.com/xaenox/modmail-bot/internal/cooldown"
	"github.com/xaenox/modmail-bot/internal/directory"
	"github.com/xaenox/modmail-bot/internal/gate"
	"github.com/xaenox/modmail-bot/internal/identity"
	"github.com/xaenox/modmail-bot/internal/moderation"
	"github.com/xaenox/modmail-bot/internal/notices"
	"github.com/xaenox/modmail-bot/internal/platform"
	"github.com/xaenox/modmail-bot/internal/relay"
	"github.com/xaenox/modmail-bot/internal/storage"
	"github.com/xaenox/modmail-bot/internal/ticket"
)

const (
	DefaultPrefix         = "mm!"
	DefaultRequestTimeout = 10 * time.Second
)

type Config struct {
	Prefix          string
	ForumChannelID  string
	AppealChannelID string
	// ModLogChannelID receives auto-blacklist notices in addition to the
	// channel the warning was issued in.
	ModLogChannelID    string
	LookupBeforeCreate bool
	WarnThreshold      int
	RequestTimeout     time.Duration
}

type Bot struct {
	platform platform.Platform
	storage  storage.Storage
	dir      *directory.Directory
	staff    *identity.Resolver
	ledger   *moderation.Ledger
	tickets  *ticket.Manager
	router   *relay.Router
	gate     *gate.Gate
	appeals  *appeal.Workflow
	cfg      Config
	logger   *zap.Logger

	wg sync.WaitGroup
}

func New(p platform.Platform, store storage.Storage, limiter cooldown.Limiter, cfg Config, logger *zap.Logger) (*Bot, error) {
	if cfg.ForumChannelID == "" {
		return nil, fmt.Errorf("failed to create bot: %w", ticket.ErrConfiguration)
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if cfg.AppealChannelID == "" {
		cfg.AppealChannelID = cfg.ForumChannelID
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if limiter == nil {
		limiter = cooldown.NewMemoryLimiter(cooldown.DefaultWindow, nil)
	}

	dir := directory.New()
	staff := identity.NewResolver(p, logger.Named("identity"))
	ledger := moderation.NewLedger(store, logger.Named("moderation"), moderation.WithThreshold(cfg.WarnThreshold))
	tickets := ticket.NewManager(p, dir, ticket.Config{
		ParentID:           cfg.ForumChannelID,
		LookupBeforeCreate: cfg.LookupBeforeCreate,
	}, logger.Named("ticket"))
	confirm := gate.New(p, tickets, ledger, true, logger.Named("gate"))
	appeals := appeal.NewWorkflow(p, store, ledger, staff, appeal.Config{ParentID: cfg.AppealChannelID}, logger.Named("appeal"))
	router := relay.NewRouter(relay.Deps{
		Messenger: p,
		Tickets:   tickets,
		Blacklist: ledger,
		Staff:     staff,
		Prompter:  confirm,
		Limiter:   limiter,
		Appeals:   true,
	}, logger.Named("relay"))

	return &Bot{
		platform: p,
		storage:  store,
		dir:      dir,
		staff:    staff,
		ledger:   ledger,
		tickets:  tickets,
		router:   router,
		gate:     confirm,
		appeals:  appeals,
		cfg:      cfg,
		logger:   logger,
	}, nil
}

// Recover rebuilds the ticket directory from the threads still open on the
// platform. It never fails; an unreachable platform leaves the directory empty.
func (b *Bot) Recover(ctx context.Context) int {
	n := b.dir.Rebuild(ctx, b.platform, b.cfg.ForumChannelID, ticket.DefaultLabel, b.logger)
	b.logger.Info("Ticket directory rebuilt", zap.Int("tickets", n))
	return n
}

// Start recovers routing state and handles events until ctx is cancelled or
// events is closed. Each event runs in its own goroutine; Start returns once
// the in-flight handlers are done.
func (b *Bot) Start(ctx context.Context, events <-chan platform.Event) error {
	b.Recover(ctx)
	defer b.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				b.HandleEvent(ctx, ev)
			}()
		}
	}
}

type eventIDKey struct{}

// HandleEvent gives the event a correlation id and a bounded context.
func (b *Bot) HandleEvent(ctx context.Context, ev platform.Event) {
	ctx = context.WithValue(ctx, eventIDKey{}, uuid.New().String())
	ctx, cancel := context.WithTimeout(ctx, b.cfg.RequestTimeout)
	defer cancel()

	switch {
	case ev.Message != nil:
		b.HandleMessage(ctx, *ev.Message)
	case ev.Interaction != nil:
		b.HandleInteraction(ctx, *ev.Interaction)
	}
}

func (b *Bot) log(ctx context.Context) *zap.Logger {
	if id, ok := ctx.Value(eventIDKey{}).(string); ok {
		return b.logger.With(zap.String("event_id", id))
	}
	return b.logger
}

func (b *Bot) HandleMessage(ctx context.Context, msg platform.Message) {
	if msg.Author.Bot {
		return
	}

	if msg.IsDirect() {
		decision := b.router.HandleUserMessage(ctx, msg)
		b.log(ctx).Debug("Direct message handled",
			zap.String("user_id", msg.Author.ID),
			zap.Stringer("decision", decision))
		return
	}

	if strings.HasPrefix(msg.Content, b.cfg.Prefix) {
		b.handleCommand(ctx, msg)
		return
	}

	if decision := b.router.HandleStaffMessage(ctx, msg); decision != relay.Ignored {
		b.log(ctx).Debug("Staff message handled",
			zap.String("thread_id", msg.ChannelID),
			zap.String("staff_id", msg.Author.ID),
			zap.Stringer("decision", decision))
	}
}

func (b *Bot) HandleInteraction(ctx context.Context, in platform.Interaction) {
	var err error
	switch {
	case strings.HasPrefix(in.ID, notices.ChoiceYesPrefix), strings.HasPrefix(in.ID, notices.ChoiceNoPrefix):
		err = b.gate.Resolve(ctx, in)
	case strings.HasPrefix(in.ID, notices.ChoiceAppealPrefix):
		err = b.appeals.Begin(ctx, in)
	case strings.HasPrefix(in.ID, notices.FormAppealPrefix):
		err = b.appeals.Submit(ctx, in)
	case strings.HasPrefix(in.ID, notices.ChoiceAppealAcceptPrefix), strings.HasPrefix(in.ID, notices.ChoiceAppealDenyPrefix):
		err = b.appeals.Decide(ctx, in)
	default:
		return
	}

	if err != nil && !errors.Is(err, gate.ErrUnknownChoice) && !errors.Is(err, appeal.ErrUnknownChoice) {
		b.log(ctx).Warn("Failed to answer interaction",
			zap.Error(err),
			zap.String("custom_id", in.ID),
			zap.String("user_id", in.User.ID))
	}
}

type Stats struct {
	OpenTickets int `json:"open_tickets"`
	Blacklisted int `json:"blacklisted"`
}

func (b *Bot) Stats(ctx context.Context) (Stats, error) {
	blacklisted, err := b.storage.CountBlacklisted(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("count blacklist: %w", err)
	}
	return Stats{OpenTickets: b.dir.Len(), Blacklisted: blacklisted}, nil
}

// Ready reports whether the state store is reachable.
func (b *Bot) Ready(ctx context.Context) error {
	return b.storage.Ping(ctx)
}

func (b *Bot) reply(ctx context.Context, to platform.Message, msg platform.Outgoing) {
	msg.ReplyTo = to.ID
	b.send(ctx, to.ChannelID, msg)
}

func (b *Bot) replyText(ctx context.Context, to platform.Message, text string) {
	b.reply(ctx, to, platform.Text(text))
}

func (b *Bot) send(ctx context.Context, channelID string, msg platform.Outgoing) {
	if err := b.platform.Send(ctx, channelID, msg); err != nil {
		b.log(ctx).Error("Failed to send message",
			zap.Error(err),
			zap.String("channel_id", channelID))
	}
}
