// Package auth holds the role and ownership guards of the workflow engine.
package auth

import (
	"fmt"

	"teamdesk/internal/apperr"
	"teamdesk/internal/domain"
)

// ForbiddenError reports that the actor may not perform Action.
type ForbiddenError struct {
	Action string
	Reason string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("not allowed to %s: %s", e.Action, e.Reason)
}

func (e ForbiddenError) Unwrap() error { return apperr.ErrAuthorization }

func forbid(action, reason string) error {
	return ForbiddenError{Action: action, Reason: reason}
}

// RequireAdmin allows approved admins only. An admin role on a pending
// profile grants nothing until the profile is approved.
func RequireAdmin(actor domain.MemberProfile, action string) error {
	if !actor.IsAdmin() {
		return forbid(action, "admin role required")
	}
	if !actor.IsApproved {
		return forbid(action, "membership is pending approval")
	}
	return nil
}

func RequireApproved(actor domain.MemberProfile, action string) error {
	if !actor.IsApproved {
		return forbid(action, "membership is pending approval")
	}
	return nil
}

// RequireSelfOrAdmin allows the member themself or any approved admin.
func RequireSelfOrAdmin(actor domain.MemberProfile, targetID, action string) error {
	if actor.ID == targetID || (actor.IsAdmin() && actor.IsApproved) {
		return nil
	}
	return forbid(action, "only the member or an admin may do this")
}

func RequireAssignee(actor domain.MemberProfile, t domain.Task, action string) error {
	if t.AssignedTo != actor.ID {
		return forbid(action, "only the assignee may do this")
	}
	return nil
}

func RequireCreator(actor domain.MemberProfile, t domain.Task, action string) error {
	if t.AssignedBy != actor.ID {
		return forbid(action, "only the task creator may do this")
	}
	return nil
}
