// Package appeal lets blacklisted users ask for the blacklist to be lifted
// and lets staff accept or deny that request.
package appeal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xaenox/modmail-bot/internal/directory"
	"github.com/xaenox/modmail-bot/internal/keylock"
	"github.com/xaenox/modmail-bot/internal/models"
	"github.com/xaenox/modmail-bot/internal/notices"
	"github.com/xaenox/modmail-bot/internal/platform"
	"github.com/xaenox/modmail-bot/internal/storage"
)

// DefaultLabel prefixes every appeal thread title.
const DefaultLabel = "Appeal"

var (
	ErrAppealPending    = errors.New("appeal already pending")
	ErrNotBlacklisted   = errors.New("user is not blacklisted")
	ErrAppealNotValid   = errors.New("appeal no longer valid")
	ErrIncompleteAppeal = errors.New("appeal form incomplete")
	ErrUnknownChoice    = errors.New("not an appeal interaction")
)

// Questions is the appeal form. Every answer is required.
var Questions = []platform.FormField{
	{ID: "why_blacklisted", Label: "Why do you think you were blacklisted?", Multiline: true, MaxLength: 1000},
	{ID: "why_lift", Label: "Why should the blacklist be lifted?", Multiline: true, MaxLength: 1000},
	{ID: "anything_else", Label: "Anything else staff should know?", Multiline: true, MaxLength: 1000},
}

type Platform interface {
	platform.Messenger
	platform.Threads
}

type Moderation interface {
	IsBlacklisted(ctx context.Context, userID string) (bool, error)
	Unblacklist(ctx context.Context, userID string) (bool, error)
}

type StaffChecker interface {
	IsStaff(ctx context.Context, userID string) bool
}

type Config struct {
	// ParentID is the forum channel appeal threads are created under.
	ParentID string
	Label    string
}

type Workflow struct {
	platform   Platform
	store      storage.AppealStorage
	moderation Moderation
	staff      StaffChecker
	locks      *keylock.Map
	cfg        Config
	now        func() time.Time
	logger     *zap.Logger
}

type Option func(*Workflow)

func WithClock(now func() time.Time) Option {
	return func(w *Workflow) { w.now = now }
}

func NewWorkflow(p Platform, store storage.AppealStorage, mod Moderation, staff StaffChecker, cfg Config, logger *zap.Logger, opts ...Option) *Workflow {
	if cfg.Label == "" {
		cfg.Label = DefaultLabel
	}
	w := &Workflow{
		platform:   p,
		store:      store,
		moderation: mod,
		staff:      staff,
		locks:      keylock.New(),
		cfg:        cfg,
		now:        time.Now,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Begin answers the Appeal button on the blacklist notice with the form.
func (w *Workflow) Begin(ctx context.Context, in platform.Interaction) error {
	userID := strings.TrimPrefix(in.ID, notices.ChoiceAppealPrefix)
	if userID == in.ID || userID == "" {
		return ErrUnknownChoice
	}
	if in.User.ID != userID {
		return in.Responder.Reply(ctx, notices.NotYourPrompt(), true)
	}

	if err := w.eligible(ctx, userID); err != nil {
		return in.Responder.Reply(ctx, submitNotice(err), true)
	}

	return in.Responder.ShowForm(ctx, platform.Form{
		ID:     notices.FormAppealPrefix + userID,
		Title:  "Blacklist appeal",
		Fields: Questions,
	})
}

// Submit handles a filled-in appeal form.
func (w *Workflow) Submit(ctx context.Context, in platform.Interaction) error {
	if !strings.HasPrefix(in.ID, notices.FormAppealPrefix) {
		return ErrUnknownChoice
	}

	_, err := w.Create(ctx, in.User, in.Values)
	if err != nil && !isUserError(err) {
		w.logger.Error("Failed to submit appeal", zap.Error(err), zap.String("user_id", in.User.ID))
	}
	return in.Responder.Reply(ctx, submitNotice(err), err != nil)
}

// Create records a pending appeal for user and opens its review thread.
func (w *Workflow) Create(ctx context.Context, user platform.User, values map[string]string) (*models.Appeal, error) {
	unlock := w.locks.Lock(keylock.User(user.ID))
	defer unlock()

	if err := w.eligible(ctx, user.ID); err != nil {
		return nil, err
	}

	answers := make([]models.AppealAnswer, 0, len(Questions))
	for _, q := range Questions {
		answer := strings.TrimSpace(values[q.ID])
		if answer == "" {
			return nil, ErrIncompleteAppeal
		}
		answers = append(answers, models.AppealAnswer{Question: q.Label, Answer: answer})
	}

	title := directory.FormatTitle(w.cfg.Label, user.Tag(), user.ID)
	th, err := w.platform.CreateThread(ctx, w.cfg.ParentID, title, notices.AppealThreadOpening(user))
	if err != nil {
		return nil, fmt.Errorf("create appeal thread: %w", err)
	}

	appeal := &models.Appeal{
		ID:          uuid.NewString(),
		UserID:      user.ID,
		ThreadID:    th.ID,
		Answers:     answers,
		SubmittedAt: w.now(),
	}
	if err := w.store.CreateAppeal(ctx, appeal); err != nil {
		if errors.Is(err, storage.ErrAppealPending) {
			return nil, ErrAppealPending
		}
		return nil, fmt.Errorf("store appeal: %w", err)
	}

	if err := w.platform.Send(ctx, th.ID, notices.AppealSummary(appeal)); err != nil {
		w.logger.Warn("Failed to post appeal summary", zap.Error(err), zap.String("thread_id", th.ID))
	}

	w.logger.Info("Appeal submitted",
		zap.String("appeal_id", appeal.ID),
		zap.String("user_id", user.ID),
		zap.String("thread_id", th.ID))
	return appeal, nil
}

func (w *Workflow) eligible(ctx context.Context, userID string) error {
	blacklisted, err := w.moderation.IsBlacklisted(ctx, userID)
	if err != nil {
		return fmt.Errorf("check blacklist: %w", err)
	}
	if !blacklisted {
		return ErrNotBlacklisted
	}

	_, err = w.store.PendingAppeal(ctx, userID)
	switch {
	case err == nil:
		return ErrAppealPending
	case errors.Is(err, storage.ErrAppealNotFound):
		return nil
	default:
		return fmt.Errorf("check pending appeal: %w", err)
	}
}

// ParseDecisionID decodes an Accept/Deny button id into the decision and the
// appeal thread it belongs to.
func ParseDecisionID(id string) (accept bool, threadID string, ok bool) {
	switch {
	case strings.HasPrefix(id, notices.ChoiceAppealAcceptPrefix):
		threadID = strings.TrimPrefix(id, notices.ChoiceAppealAcceptPrefix)
		accept = true
	case strings.HasPrefix(id, notices.ChoiceAppealDenyPrefix):
		threadID = strings.TrimPrefix(id, notices.ChoiceAppealDenyPrefix)
	default:
		return false, "", false
	}
	return accept, threadID, threadID != ""
}

// Decide handles a staff click on Accept or Deny.
func (w *Workflow) Decide(ctx context.Context, in platform.Interaction) error {
	accept, threadID, ok := ParseDecisionID(in.ID)
	if !ok {
		return ErrUnknownChoice
	}
	if !w.staff.IsStaff(ctx, in.User.ID) {
		return in.Responder.Reply(ctx, notices.AppealStaffOnly(), true)
	}

	appeal, err := w.Resolve(ctx, threadID, accept, in.User.ID)
	if errors.Is(err, ErrAppealNotValid) {
		return in.Responder.Reply(ctx, notices.AppealNoLongerValid(), true)
	}
	if err != nil {
		w.logger.Error("Failed to resolve appeal", zap.Error(err), zap.String("thread_id", threadID))
		return in.Responder.Reply(ctx, notices.AppealDecisionFailed(), true)
	}
	return in.Responder.Update(ctx, notices.AppealDecided(appeal))
}

// Resolve moves the pending appeal of threadID to accepted or denied. An
// accepted appeal lifts the blacklist.
func (w *Workflow) Resolve(ctx context.Context, threadID string, accept bool, staffID string) (*models.Appeal, error) {
	unlock := w.locks.Lock(keylock.Thread(threadID))
	defer unlock()

	appeal, err := w.store.AppealByThread(ctx, threadID)
	if errors.Is(err, storage.ErrAppealNotFound) {
		return nil, ErrAppealNotValid
	}
	if err != nil {
		return nil, fmt.Errorf("load appeal: %w", err)
	}
	if appeal.Status != models.AppealPending {
		return nil, ErrAppealNotValid
	}

	status := models.AppealDenied
	if accept {
		status = models.AppealAccepted
		if _, err := w.moderation.Unblacklist(ctx, appeal.UserID); err != nil {
			return nil, fmt.Errorf("lift blacklist: %w", err)
		}
	}

	resolved, err := w.store.ResolveAppeal(ctx, appeal.ID, status, staffID, w.now())
	if errors.Is(err, storage.ErrAppealNotFound) {
		return nil, ErrAppealNotValid
	}
	if err != nil {
		return nil, fmt.Errorf("resolve appeal: %w", err)
	}

	dm := notices.AppealDeniedDM()
	if accept {
		dm = notices.AppealAcceptedDM()
	}
	if err := w.platform.SendDirectMessage(ctx, resolved.UserID, dm); err != nil {
		w.logger.Info("Could not notify user about appeal decision",
			zap.Error(err),
			zap.String("user_id", resolved.UserID))
	}

	w.logger.Info("Appeal resolved",
		zap.String("appeal_id", resolved.ID),
		zap.String("user_id", resolved.UserID),
		zap.String("status", string(resolved.Status)),
		zap.String("resolved_by", staffID))
	return resolved, nil
}

func isUserError(err error) bool {
	return errors.Is(err, ErrNotBlacklisted) ||
		errors.Is(err, ErrAppealPending) ||
		errors.Is(err, ErrIncompleteAppeal)
}

func submitNotice(err error) platform.Outgoing {
	switch {
	case err == nil:
		return notices.AppealSubmitted()
	case errors.Is(err, ErrNotBlacklisted):
		return notices.NotBlacklisted()
	case errors.Is(err, ErrAppealPending):
		return notices.AppealAlreadyPending()
	case errors.Is(err, ErrIncompleteAppeal):
		return notices.AppealIncomplete()
	default:
		return notices.AppealSubmitFailed()
	}
}
