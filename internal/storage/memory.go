package storage

import (
	"context"
	"sync"
	"time"

	"github.com/xaenox/modmail-bot/internal/models"
)

type MemoryStorage struct {
	mu        sync.RWMutex
	warnings  map[string][]models.Warning
	blacklist map[string]models.BlacklistEntry
	appeals   map[string]*models.Appeal
	// pending maps a user to the id of their pending appeal.
	pending map[string]string
	threads map[string]string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		warnings:  make(map[string][]models.Warning),
		blacklist: make(map[string]models.BlacklistEntry),
		appeals:   make(map[string]*models.Appeal),
		pending:   make(map[string]string),
		threads:   make(map[string]string),
	}
}

// Warning methods
func (s *MemoryStorage) AddWarning(ctx context.Context, userID string, w models.Warning) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.warnings[userID] = append(s.warnings[userID], w)
	return len(s.warnings[userID]), nil
}

func (s *MemoryStorage) ListWarnings(ctx context.Context, userID string) ([]models.Warning, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	warns := s.warnings[userID]
	out := make([]models.Warning, len(warns))
	copy(out, warns)
	return out, nil
}

func (s *MemoryStorage) ClearWarnings(ctx context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	had := len(s.warnings[userID])
	delete(s.warnings, userID)
	return had, nil
}

func (s *MemoryStorage) RemoveWarning(ctx context.Context, userID string, position int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	warns := s.warnings[userID]
	if position < 1 || position > len(warns) {
		return len(warns), ErrWarningNotFound
	}

	remaining := make([]models.Warning, 0, len(warns)-1)
	remaining = append(remaining, warns[:position-1]...)
	remaining = append(remaining, warns[position:]...)
	if len(remaining) == 0 {
		delete(s.warnings, userID)
		return 0, nil
	}
	s.warnings[userID] = remaining
	return len(remaining), nil
}

// Blacklist methods
func (s *MemoryStorage) AddToBlacklist(ctx context.Context, entry models.BlacklistEntry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.blacklist[entry.UserID]; exists {
		return false, nil
	}
	if entry.AddedAt.IsZero() {
		entry.AddedAt = time.Now()
	}
	s.blacklist[entry.UserID] = entry
	return true, nil
}

func (s *MemoryStorage) RemoveFromBlacklist(ctx context.Context, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.blacklist[userID]; !exists {
		return false, nil
	}
	delete(s.blacklist, userID)
	return true, nil
}

func (s *MemoryStorage) IsBlacklisted(ctx context.Context, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.blacklist[userID]
	return exists, nil
}

func (s *MemoryStorage) CountBlacklisted(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.blacklist), nil
}

// Appeal methods
func (s *MemoryStorage) CreateAppeal(ctx context.Context, appeal *models.Appeal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.pending[appeal.UserID]; exists {
		return ErrAppealPending
	}

	stored := *appeal
	stored.Status = models.AppealPending
	stored.Answers = append([]models.AppealAnswer(nil), appeal.Answers...)
	s.appeals[stored.ID] = &stored
	s.pending[stored.UserID] = stored.ID
	if stored.ThreadID != "" {
		s.threads[stored.ThreadID] = stored.ID
	}
	appeal.Status = models.AppealPending
	return nil
}

func (s *MemoryStorage) PendingAppeal(ctx context.Context, userID string) (*models.Appeal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.pending[userID]
	if !exists {
		return nil, ErrAppealNotFound
	}
	out := *s.appeals[id]
	return &out, nil
}

func (s *MemoryStorage) AppealByThread(ctx context.Context, threadID string) (*models.Appeal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.threads[threadID]
	if !exists {
		return nil, ErrAppealNotFound
	}
	out := *s.appeals[id]
	return &out, nil
}

func (s *MemoryStorage) ResolveAppeal(ctx context.Context, appealID string, status models.AppealStatus, resolvedBy string, at time.Time) (*models.Appeal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	appeal, exists := s.appeals[appealID]
	if !exists || appeal.Status != models.AppealPending {
		return nil, ErrAppealNotFound
	}
	appeal.Status = status
	appeal.ResolvedBy = resolvedBy
	appeal.ResolvedAt = at
	delete(s.pending, appeal.UserID)

	out := *appeal
	return &out, nil
}

func (s *MemoryStorage) Ping(ctx context.Context) error {
	return nil
}

func (s *MemoryStorage) Close() error {
	// Nothing to close for in-memory storage
	return nil
}
