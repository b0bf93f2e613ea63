package auth

import (
	"context"
	"strings"

	"kkn/internal/apperror"
	"kkn/internal/roster"
)

// Authorizer is the single place that decides whether a principal is
// privileged. Every component asks it instead of comparing emails itself.
type Authorizer struct {
	admins  map[string]struct{}
	rosters roster.Source
}

// NewAuthorizer builds an authorizer from the configured admin allowlist.
func NewAuthorizer(adminEmails []string, rosters roster.Source) *Authorizer {
	admins := make(map[string]struct{}, len(adminEmails))
	for _, e := range adminEmails {
		if e = normalizeEmail(e); e != "" {
			admins[e] = struct{}{}
		}
	}
	return &Authorizer{admins: admins, rosters: rosters}
}

// IsAdmin reports whether p holds the admin role or is on the allowlist.
func (a *Authorizer) IsAdmin(p Principal) bool {
	if p.Role == RoleAdmin {
		return true
	}
	_, ok := a.admins[normalizeEmail(p.Email)]
	return ok
}

// IsAdminOrSupervisorOf reports whether p may review the team's attendance.
// Unknown teams surface as NotFound.
func (a *Authorizer) IsAdminOrSupervisorOf(ctx context.Context, p Principal, teamID string) (bool, error) {
	if a.IsAdmin(p) {
		return true, nil
	}
	ros, err := a.rosters.GetTeamRoster(ctx, teamID)
	if err != nil {
		return false, err
	}
	return ros.SupervisorID != "" && ros.SupervisorID == p.UserID, nil
}

// RequireAdmin fails with a PermissionError unless p is an admin.
func (a *Authorizer) RequireAdmin(p Principal) error {
	if !a.IsAdmin(p) {
		return apperror.Permission("admin privileges required")
	}
	return nil
}

// RequireReviewer fails with a PermissionError unless p supervises teamID or is an admin.
func (a *Authorizer) RequireReviewer(ctx context.Context, p Principal, teamID string) error {
	ok, err := a.IsAdminOrSupervisorOf(ctx, p, teamID)
	if err != nil {
		return err
	}
	if !ok {
		return apperror.Permission("user %s is not a supervisor of team %s", p.UserID, teamID)
	}
	return nil
}

// RequireViewer allows reviewers and the team's own students.
func (a *Authorizer) RequireViewer(ctx context.Context, p Principal, teamID string) error {
	if a.IsAdmin(p) {
		return nil
	}
	ros, err := a.rosters.GetTeamRoster(ctx, teamID)
	if err != nil {
		return err
	}
	if ros.SupervisorID == p.UserID || ros.Has(p.UserID) {
		return nil
	}
	return apperror.Permission("user %s cannot view team %s", p.UserID, teamID)
}

// HidesPendingDetails reports whether p looks at the team only through the
// admin view, where the days of weeks still pending review stay hidden. The
// team's supervisor and its students see their own data.
func (a *Authorizer) HidesPendingDetails(ctx context.Context, p Principal, teamID string) (bool, error) {
	if !a.IsAdmin(p) {
		return false, nil
	}
	ros, err := a.rosters.GetTeamRoster(ctx, teamID)
	if err != nil {
		return false, err
	}
	return ros.SupervisorID != p.UserID && !ros.Has(p.UserID), nil
}

func normalizeEmail(e string) string {
	return strings.ToLower(strings.TrimSpace(e))
}
