// Package moderation tracks warnings and blacklist membership.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xaenox/modmail-bot/internal/keylock"
	"github.com/xaenox/modmail-bot/internal/models"
	"github.com/xaenox/modmail-bot/internal/storage"
)

// DefaultThreshold is the warning count that triggers an automatic blacklist.
const DefaultThreshold = 3

var ErrIndexOutOfRange = errors.New("warning case number out of range")

// Store is the persistence the ledger needs.
type Store interface {
	storage.WarningStorage
	storage.BlacklistStorage
}

type WarnResult struct {
	Total int
	// AutoBlacklisted is true only for the warning that crossed the threshold
	// while the user was not yet blacklisted.
	AutoBlacklisted bool
}

type Ledger struct {
	store     Store
	locks     *keylock.Map
	threshold int
	now       func() time.Time
	logger    *zap.Logger
}

type Option func(*Ledger)

func WithThreshold(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.threshold = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func NewLedger(store Store, logger *zap.Logger, opts ...Option) *Ledger {
	l := &Ledger{
		store:     store,
		locks:     keylock.New(),
		threshold: DefaultThreshold,
		now:       time.Now,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) Threshold() int {
	return l.threshold
}

func (l *Ledger) Warn(ctx context.Context, userID, reason, issuerID string) (WarnResult, error) {
	unlock := l.locks.Lock(keylock.User(userID))
	defer unlock()

	total, err := l.store.AddWarning(ctx, userID, models.Warning{
		Reason:   reason,
		IssuedAt: l.now(),
		IssuedBy: issuerID,
	})
	if err != nil {
		return WarnResult{}, fmt.Errorf("add warning: %w", err)
	}

	result := WarnResult{Total: total}
	if total < l.threshold {
		return result, nil
	}

	added, err := l.store.AddToBlacklist(ctx, models.BlacklistEntry{
		UserID:  userID,
		AddedBy: issuerID,
		Reason:  fmt.Sprintf("reached %d warnings", total),
		AddedAt: l.now(),
	})
	if err != nil {
		return result, fmt.Errorf("auto blacklist: %w", err)
	}
	if added {
		result.AutoBlacklisted = true
		l.logger.Info("User auto-blacklisted",
			zap.String("user_id", userID),
			zap.Int("warnings", total))
	}
	return result, nil
}

func (l *Ledger) Warnings(ctx context.Context, userID string) ([]models.Warning, error) {
	return l.store.ListWarnings(ctx, userID)
}

func (l *Ledger) Clear(ctx context.Context, userID string) (int, error) {
	unlock := l.locks.Lock(keylock.User(userID))
	defer unlock()

	return l.store.ClearWarnings(ctx, userID)
}

// RemoveAt deletes the warning with the given 1-based case number and
// returns how many remain.
func (l *Ledger) RemoveAt(ctx context.Context, userID string, index int) (int, error) {
	unlock := l.locks.Lock(keylock.User(userID))
	defer unlock()

	remaining, err := l.store.RemoveWarning(ctx, userID, index)
	if errors.Is(err, storage.ErrWarningNotFound) {
		return remaining, ErrIndexOutOfRange
	}
	return remaining, err
}

func (l *Ledger) Blacklist(ctx context.Context, userID, by, reason string) (bool, error) {
	unlock := l.locks.Lock(keylock.User(userID))
	defer unlock()

	return l.store.AddToBlacklist(ctx, models.BlacklistEntry{
		UserID:  userID,
		AddedBy: by,
		Reason:  reason,
		AddedAt: l.now(),
	})
}

func (l *Ledger) Unblacklist(ctx context.Context, userID string) (bool, error) {
	unlock := l.locks.Lock(keylock.User(userID))
	defer unlock()

	return l.store.RemoveFromBlacklist(ctx, userID)
}

func (l *Ledger) IsBlacklisted(ctx context.Context, userID string) (bool, error) {
	return l.store.IsBlacklisted(ctx, userID)
}
