package storage

import (
	"context"
	"errors"
	"time"

	"github.com/xaenox/modmail-bot/internal/models"
)

var (
	ErrWarningNotFound = errors.New("warning not found")
	ErrAppealNotFound  = errors.New("appeal not found")
	ErrAppealPending   = errors.New("appeal already pending")
)

// Storage is the moderation state store shared by the ledger and the appeal workflow.
type Storage interface {
	WarningStorage
	BlacklistStorage
	AppealStorage

	Ping(ctx context.Context) error
	Close() error
}

type WarningStorage interface {
	// AddWarning appends w and returns the user's new warning count.
	AddWarning(ctx context.Context, userID string, w models.Warning) (int, error)
	ListWarnings(ctx context.Context, userID string) ([]models.Warning, error)
	// ClearWarnings removes every warning and returns how many there were.
	ClearWarnings(ctx context.Context, userID string) (int, error)
	// RemoveWarning deletes the warning at the 1-based position and returns
	// the remaining count, or ErrWarningNotFound.
	RemoveWarning(ctx context.Context, userID string, position int) (int, error)
}

type BlacklistStorage interface {
	// AddToBlacklist reports false when the user was already blacklisted.
	AddToBlacklist(ctx context.Context, entry models.BlacklistEntry) (bool, error)
	RemoveFromBlacklist(ctx context.Context, userID string) (bool, error)
	IsBlacklisted(ctx context.Context, userID string) (bool, error)
	CountBlacklisted(ctx context.Context) (int, error)
}

type AppealStorage interface {
	// CreateAppeal stores a pending appeal or fails with ErrAppealPending.
	CreateAppeal(ctx context.Context, appeal *models.Appeal) error
	PendingAppeal(ctx context.Context, userID string) (*models.Appeal, error)
	AppealByThread(ctx context.Context, threadID string) (*models.Appeal, error)
	// ResolveAppeal moves a pending appeal to status. It fails with
	// ErrAppealNotFound when no pending appeal has that id.
	ResolveAppeal(ctx context.Context, appealID string, status models.AppealStatus, resolvedBy string, at time.Time) (*models.Appeal, error)
}
