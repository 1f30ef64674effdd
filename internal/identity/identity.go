// Package identity decides who counts as staff and parses user references
// typed into staff commands.
package identity

import (
	"context"
	"regexp"

	"go.uber.org/zap"

	"github.com/xaenox/modmail-bot/internal/platform"
)

// StaffPermissions is the capability set that makes a guild member staff.
const StaffPermissions = platform.PermManageThreads |
	platform.PermModerateMembers |
	platform.PermManageMessages |
	platform.PermAdministrator

var userRef = regexp.MustCompile(`^<@!?(\d{17,20})>$|^(\d{17,20})$`)

type Resolver struct {
	members platform.Members
	logger  *zap.Logger
}

func NewResolver(members platform.Members, logger *zap.Logger) *Resolver {
	return &Resolver{members: members, logger: logger}
}

// IsStaff reports whether userID holds any staff capability. Lookup failures
// count as non-staff.
func (r *Resolver) IsStaff(ctx context.Context, userID string) bool {
	perms, err := r.members.MemberPermissions(ctx, userID)
	if err != nil {
		r.logger.Debug("Permission lookup failed, treating as non-staff",
			zap.Error(err),
			zap.String("user_id", userID))
		return false
	}
	return perms.Has(StaffPermissions)
}

// ParseUserRef accepts a mention (<@id> or <@!id>) or a bare snowflake.
func ParseUserRef(token string) (string, bool) {
	m := userRef.FindStringSubmatch(token)
	if m == nil {
		return "", false
	}
	if m[1] != "" {
		return m[1], true
	}
	return m[2], true
}
