// Package ticket opens, closes and reopens ticket threads and keeps the
// directory in line with what the platform reports.
package ticket

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xaenox/modmail-bot/internal/directory"
	"github.com/xaenox/modmail-bot/internal/keylock"
	"github.com/xaenox/modmail-bot/internal/models"
	"github.com/xaenox/modmail-bot/internal/notices"
	"github.com/xaenox/modmail-bot/internal/platform"
)

// DefaultLabel prefixes every ticket thread title.
const DefaultLabel = "ModMail"

var (
	ErrAlreadyClosed   = errors.New("ticket already closed")
	ErrAlreadyOpen     = errors.New("ticket already open")
	ErrConfiguration   = errors.New("ticket parent channel misconfigured")
	ErrNotTicketThread = errors.New("not a ticket thread")
)

// Platform is the part of the messaging platform the manager drives.
type Platform interface {
	platform.Messenger
	platform.Threads
}

type Config struct {
	// ParentID is the forum channel ticket threads live under.
	ParentID string
	Label    string
	// LookupBeforeCreate searches the platform's active threads for one
	// already carrying the user's id before creating a new thread.
	LookupBeforeCreate bool
}

type Manager struct {
	platform Platform
	dir      *directory.Directory
	locks    *keylock.Map
	cfg      Config
	logger   *zap.Logger
}

func NewManager(p Platform, dir *directory.Directory, cfg Config, logger *zap.Logger) *Manager {
	if cfg.Label == "" {
		cfg.Label = DefaultLabel
	}
	return &Manager{
		platform: p,
		dir:      dir,
		locks:    keylock.New(),
		cfg:      cfg,
		logger:   logger,
	}
}

func (m *Manager) Config() Config {
	return m.cfg
}

// StatusOf folds the platform's archived/locked flags and the local closed
// marker into a single ticket status.
func StatusOf(th *platform.Thread, closedMarked bool) models.TicketStatus {
	if th.Inactive() || closedMarked {
		return models.TicketClosed
	}
	return models.TicketOpen
}

func (m *Manager) IsTicketThread(th *platform.Thread) bool {
	return th != nil && th.IsThread && th.ParentID == m.cfg.ParentID
}

func (m *Manager) status(th *platform.Thread) models.TicketStatus {
	return StatusOf(th, m.dir.IsClosed(th.ID))
}

// ActiveThread returns the user's live ticket thread. Stale bindings (thread
// gone, moved, archived, locked or closed locally) are evicted on the way.
func (m *Manager) ActiveThread(ctx context.Context, userID string) (string, bool) {
	threadID, ok := m.dir.LookupByUser(userID)
	if !ok {
		return "", false
	}

	th, err := m.platform.FetchThread(ctx, threadID)
	if err != nil || !m.IsTicketThread(th) {
		m.logger.Debug("Evicting unreachable ticket thread",
			zap.Error(err),
			zap.String("user_id", userID),
			zap.String("thread_id", threadID))
		m.dir.Evict(userID, threadID)
		return "", false
	}
	if m.status(th) == models.TicketClosed {
		m.logger.Debug("Evicting closed ticket thread",
			zap.String("user_id", userID),
			zap.String("thread_id", threadID))
		m.dir.Evict(userID, threadID)
		return "", false
	}
	return threadID, true
}

// Open returns the user's live ticket, creating a thread when there is none.
func (m *Manager) Open(ctx context.Context, user platform.User) (*models.Ticket, error) {
	unlock := m.locks.Lock(keylock.User(user.ID))
	defer unlock()

	if threadID, ok := m.ActiveThread(ctx, user.ID); ok {
		return &models.Ticket{UserID: user.ID, ThreadID: threadID, Status: models.TicketOpen}, nil
	}

	if m.cfg.LookupBeforeCreate {
		if threadID, ok := m.findExisting(ctx, user.ID); ok {
			m.dir.Bind(user.ID, threadID)
			m.logger.Info("Reusing existing ticket thread",
				zap.String("user_id", user.ID),
				zap.String("thread_id", threadID))
			return &models.Ticket{UserID: user.ID, ThreadID: threadID, Status: models.TicketOpen}, nil
		}
	}

	title := directory.FormatTitle(m.cfg.Label, user.Tag(), user.ID)
	th, err := m.platform.CreateThread(ctx, m.cfg.ParentID, title, notices.ThreadOpening(user))
	if err != nil {
		if errors.Is(err, platform.ErrParentNotFound) {
			return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
		}
		return nil, fmt.Errorf("create ticket thread: %w", err)
	}

	m.dir.Bind(user.ID, th.ID)
	m.dir.ClearClosed(th.ID)

	m.logger.Info("Ticket opened",
		zap.String("user_id", user.ID),
		zap.String("thread_id", th.ID))
	return &models.Ticket{UserID: user.ID, ThreadID: th.ID, Status: models.TicketOpen}, nil
}

func (m *Manager) findExisting(ctx context.Context, userID string) (string, bool) {
	threads, err := m.platform.ListActiveThreads(ctx, m.cfg.ParentID)
	if err != nil {
		m.logger.Warn("Failed to list active threads",
			zap.Error(err),
			zap.String("user_id", userID))
		return "", false
	}
	for _, th := range threads {
		if m.status(th) == models.TicketClosed {
			continue
		}
		if label, owner, ok := directory.ParseTitle(th.Name); ok && label == m.cfg.Label && owner == userID {
			return th.ID, true
		}
	}
	return "", false
}

// ResolveOwner finds the user a ticket thread belongs to: the directory
// first, the thread title otherwise. A title match on an open thread is
// bound so later lookups hit the directory.
func (m *Manager) ResolveOwner(th *platform.Thread) (string, bool) {
	if userID, ok := m.dir.LookupByThread(th.ID); ok {
		return userID, true
	}
	label, userID, ok := directory.ParseTitle(th.Name)
	if !ok || label != m.cfg.Label {
		return "", false
	}
	if m.status(th) == models.TicketOpen {
		m.dir.Bind(userID, th.ID)
	}
	return userID, true
}

// fetchTicketThread loads authoritative thread state; the directory can lag
// behind administrative actions taken directly on the platform.
func (m *Manager) fetchTicketThread(ctx context.Context, threadID string) (*platform.Thread, error) {
	th, err := m.platform.FetchThread(ctx, threadID)
	if errors.Is(err, platform.ErrThreadNotFound) {
		return nil, ErrNotTicketThread
	}
	if err != nil {
		return nil, fmt.Errorf("fetch thread: %w", err)
	}
	if !m.IsTicketThread(th) {
		return nil, ErrNotTicketThread
	}
	return th, nil
}

func (m *Manager) Close(ctx context.Context, threadID, reason string, closedBy platform.User) (*models.Ticket, error) {
	unlock := m.locks.Lock(keylock.Thread(threadID))
	defer unlock()

	th, err := m.fetchTicketThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if m.status(th) == models.TicketClosed {
		return nil, ErrAlreadyClosed
	}

	if reason == "" {
		reason = notices.NoReason
	}

	userID, hasOwner := m.ResolveOwner(th)
	if hasOwner {
		if err := m.platform.SendDirectMessage(ctx, userID, notices.TicketClosedDM(reason)); err != nil {
			m.logger.Debug("Could not notify user about closed ticket",
				zap.Error(err),
				zap.String("user_id", userID))
		}
	}

	m.dir.MarkClosed(threadID)
	m.dir.UnbindThread(threadID)

	if err := m.platform.Send(ctx, threadID, notices.ClosingThread(reason)); err != nil {
		m.logger.Warn("Failed to post closing notice", zap.Error(err), zap.String("thread_id", threadID))
	}

	audit := fmt.Sprintf("Closed by %s: %s", closedBy.Tag(), reason)
	if err := m.platform.SetThreadLocked(ctx, threadID, true, audit); err != nil {
		m.logger.Warn("Failed to lock thread", zap.Error(err), zap.String("thread_id", threadID))
	}
	if err := m.platform.SetThreadArchived(ctx, threadID, true, audit); err != nil {
		m.logger.Warn("Failed to archive thread", zap.Error(err), zap.String("thread_id", threadID))
	}

	m.logger.Info("Ticket closed",
		zap.String("thread_id", threadID),
		zap.String("user_id", userID),
		zap.String("closed_by", closedBy.ID),
		zap.String("reason", reason))
	return &models.Ticket{UserID: userID, ThreadID: threadID, Status: models.TicketClosed}, nil
}

func (m *Manager) Reopen(ctx context.Context, threadID string, reopenedBy platform.User) (*models.Ticket, error) {
	unlock := m.locks.Lock(keylock.Thread(threadID))
	defer unlock()

	th, err := m.fetchTicketThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if m.status(th) == models.TicketOpen {
		return nil, ErrAlreadyOpen
	}

	m.dir.ClearClosed(threadID)

	audit := "Reopened by " + reopenedBy.Tag()
	if err := m.platform.SetThreadArchived(ctx, threadID, false, audit); err != nil {
		m.logger.Warn("Failed to unarchive thread", zap.Error(err), zap.String("thread_id", threadID))
	}
	if err := m.platform.SetThreadLocked(ctx, threadID, false, audit); err != nil {
		m.logger.Warn("Failed to unlock thread", zap.Error(err), zap.String("thread_id", threadID))
	}

	userID, ok := m.dir.LookupByThread(threadID)
	if !ok {
		if label, owner, parsed := directory.ParseTitle(th.Name); parsed && label == m.cfg.Label {
			userID, ok = owner, true
		}
	}
	if ok {
		m.dir.Bind(userID, threadID)
	}

	m.logger.Info("Ticket reopened",
		zap.String("thread_id", threadID),
		zap.String("user_id", userID),
		zap.String("reopened_by", reopenedBy.ID))
	return &models.Ticket{UserID: userID, ThreadID: threadID, Status: models.TicketOpen}, nil
}

// LiveOwner returns the owner of threadID when it is an open ticket thread.
// State is fetched fresh so staff replies never reach a closed ticket.
func (m *Manager) LiveOwner(ctx context.Context, threadID string) (string, bool) {
	th, err := m.fetchTicketThread(ctx, threadID)
	if err != nil {
		if !errors.Is(err, ErrNotTicketThread) {
			m.logger.Debug("Thread lookup failed", zap.Error(err), zap.String("thread_id", threadID))
		}
		return "", false
	}
	if m.status(th) == models.TicketClosed {
		return "", false
	}
	return m.ResolveOwner(th)
}

// Forget drops the binding between userID and threadID after the thread
// turned out to be unusable.
func (m *Manager) Forget(userID, threadID string) {
	m.dir.Evict(userID, threadID)
}
