package directory

import (
	"context"
	"fmt"
	"regexp"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/xaenox/modmail-bot/internal/platform"
)

// The trailing bracketed id is the only link between a thread and its owner
// that survives a restart.
var titlePattern = regexp.MustCompile(`^(.+?): (.*) \[(\d{17,20})\]$`)

// MaxTitleLength is the longest thread name the platform accepts, in runes.
const MaxTitleLength = 100

// FormatTitle builds "<label>: <displayName> [<userId>]". Long display names
// are cut so the id suffix always fits.
func FormatTitle(label, displayName, userID string) string {
	fixed := utf8.RuneCountInString(label) + utf8.RuneCountInString(userID) + len(": ") + len(" []")
	if room := MaxTitleLength - fixed; utf8.RuneCountInString(displayName) > room {
		if room < 0 {
			room = 0
		}
		displayName = string([]rune(displayName)[:room])
	}
	return fmt.Sprintf("%s: %s [%s]", label, displayName, userID)
}

// ParseTitle extracts the label and owning user id from a thread title.
func ParseTitle(title string) (label, userID string, ok bool) {
	m := titlePattern.FindStringSubmatch(title)
	if m == nil {
		return "", "", false
	}
	return m[1], m[3], true
}

// ThreadLister is the slice of the platform Rebuild needs.
type ThreadLister interface {
	ListActiveThreads(ctx context.Context, parentID string) ([]*platform.Thread, error)
}

// Rebuild binds every live thread under parentID whose title carries label and
// a user id. It never fails: a listing error leaves the directory as it was.
func (d *Directory) Rebuild(ctx context.Context, lister ThreadLister, parentID, label string, logger *zap.Logger) int {
	threads, err := lister.ListActiveThreads(ctx, parentID)
	if err != nil {
		logger.Warn("Failed to list active threads, starting with an empty directory",
			zap.Error(err),
			zap.String("parent_id", parentID))
		return 0
	}

	bound := 0
	for _, th := range threads {
		if th.Inactive() {
			continue
		}
		got, userID, ok := ParseTitle(th.Name)
		if !ok || got != label {
			logger.Debug("Skipping thread with unrecognized title",
				zap.String("thread_id", th.ID),
				zap.String("title", th.Name))
			continue
		}
		d.ClearClosed(th.ID)
		d.Bind(userID, th.ID)
		bound++
	}

	logger.Info("Rebuilt ticket directory",
		zap.Int("threads_scanned", len(threads)),
		zap.Int("tickets_bound", bound))
	return bound
}
