package engine

import (
	"context"
	"errors"
	"strings"

	"teamdesk/internal/apperr"
	"teamdesk/internal/audit"
	"teamdesk/internal/domain"
	"teamdesk/internal/engine/auth"
	"teamdesk/internal/repo"
	"teamdesk/internal/session"
	"teamdesk/internal/validation"
)

type RegisterResult struct {
	Identity domain.Identity      `json:"identity"`
	Profile  domain.MemberProfile `json:"profile"`
	// VerificationSent is false when the verification mail could not be
	// delivered; the member can ask for it again later.
	VerificationSent bool  `json:"verification_sent"`
	DeliveryErr      error `json:"-"`
}

// Register creates the identity and a pending profile, sends the
// verification mail and signs the new identity out again.
func (e Engine) Register(ctx context.Context, sess *session.Container, in session.SignupInput) (RegisterResult, error) {
	identity, profile, err := sess.Signup(ctx, in)
	if err != nil {
		return RegisterResult{}, err
	}
	res := RegisterResult{Identity: identity, Profile: profile, VerificationSent: true}
	if err := sess.SendVerificationEmail(ctx, identity); err != nil {
		e.Logger.Warnw("verification mail not sent", "identity_id", identity.ID, "error", err)
		res.VerificationSent = false
		res.DeliveryErr = err
	}
	if err := sess.Logout(ctx); err != nil {
		e.Logger.Warnw("sign out after register failed", "identity_id", identity.ID, "error", err)
	}
	e.record(ctx, profile, domain.ActionRegister, audit.Details{
		"memberName":  profile.Name,
		"memberEmail": profile.Email,
		"email":       profile.Email,
	})
	return res, nil
}

// Approve grants access to a pending member. Approving an approved member
// changes nothing and writes no record.
func (e Engine) Approve(ctx context.Context, actorID, targetID string) (domain.MemberProfile, error) {
	const op = "approve member"
	actor, err := e.actor(ctx, actorID, op)
	if err != nil {
		return domain.MemberProfile{}, err
	}
	if err := auth.RequireAdmin(actor, op); err != nil {
		return domain.MemberProfile{}, err
	}
	target, err := e.Repo.GetMember(ctx, targetID)
	if err != nil {
		return domain.MemberProfile{}, err
	}
	if target.IsApproved {
		return target, nil
	}
	approved := true
	if err := e.Repo.UpdateMember(ctx, targetID, repo.MemberUpdate{IsApproved: &approved}); err != nil {
		return domain.MemberProfile{}, err
	}
	target.IsApproved = true
	e.record(ctx, actor, domain.ActionApprove, audit.Details{
		"memberName":  target.Name,
		"memberEmail": target.Email,
	})
	return target, nil
}

// Reject removes a pending member's profile and sign-in identity. The
// identity goes first so a failed profile delete can be retried without
// leaving a profile-less identity that sign-in would repair.
func (e Engine) Reject(ctx context.Context, actorID, targetID string) error {
	const op = "reject member"
	actor, err := e.actor(ctx, actorID, op)
	if err != nil {
		return err
	}
	if err := auth.RequireAdmin(actor, op); err != nil {
		return err
	}
	target, err := e.Repo.GetMember(ctx, targetID)
	if err != nil {
		return err
	}
	if target.IsApproved {
		return apperr.Validation(op, "member is already approved; delete the member instead")
	}
	if err := e.removeIdentity(ctx, targetID); err != nil {
		return err
	}
	if err := e.Repo.DeleteMember(ctx, targetID); err != nil {
		return err
	}
	e.record(ctx, actor, domain.ActionReject, audit.Details{
		"memberName":  target.Name,
		"memberEmail": target.Email,
	})
	return nil
}

// ChangeRole sets the member's role. Setting the current role is a no-op.
func (e Engine) ChangeRole(ctx context.Context, actorID, targetID string, role domain.Role) (domain.MemberProfile, error) {
	const op = "change role"
	if !role.Valid() {
		return domain.MemberProfile{}, apperr.Validation(op, "role must be dev-team or admin")
	}
	actor, err := e.actor(ctx, actorID, op)
	if err != nil {
		return domain.MemberProfile{}, err
	}
	if err := auth.RequireAdmin(actor, op); err != nil {
		return domain.MemberProfile{}, err
	}
	target, err := e.Repo.GetMember(ctx, targetID)
	if err != nil {
		return domain.MemberProfile{}, err
	}
	if target.Role == role {
		return target, nil
	}
	if err := e.Repo.UpdateMember(ctx, targetID, repo.MemberUpdate{Role: &role}); err != nil {
		return domain.MemberProfile{}, err
	}
	old := target.Role
	target.Role = role
	e.record(ctx, actor, domain.ActionRoleChange, audit.Details{
		"memberName": target.Name,
		"oldRole":    string(old),
		"newRole":    string(role),
	})
	return target, nil
}

// ProfileEdit lists profile fields to change; nil fields stay as they are.
type ProfileEdit struct {
	Name        *string      `json:"name,omitempty" validate:"omitempty,notblank,max=100"`
	DOB         *string      `json:"dob,omitempty" validate:"omitempty,isodate"`
	Gender      *string      `json:"gender,omitempty" validate:"omitempty,oneof=male female other prefer-not-to-say"`
	Designation *string      `json:"designation,omitempty" validate:"omitempty,max=100"`
	Role        *domain.Role `json:"role,omitempty" validate:"omitempty,role"`
}

// EditProfile merges edit into the member's profile. Members edit their own
// profile; changing a role takes an admin.
func (e Engine) EditProfile(ctx context.Context, actorID, targetID string, edit ProfileEdit) (domain.MemberProfile, error) {
	const op = "edit member"
	if err := validation.Check(op, edit); err != nil {
		return domain.MemberProfile{}, err
	}
	actor, err := e.actor(ctx, actorID, op)
	if err != nil {
		return domain.MemberProfile{}, err
	}
	if err := auth.RequireSelfOrAdmin(actor, targetID, op); err != nil {
		return domain.MemberProfile{}, err
	}
	target, err := e.Repo.GetMember(ctx, targetID)
	if err != nil {
		return domain.MemberProfile{}, err
	}

	var (
		upd     repo.MemberUpdate
		changes []string
	)
	setString := func(field string, in *string, cur string, dst **string) {
		if in == nil {
			return
		}
		v := strings.TrimSpace(*in)
		if v == cur {
			return
		}
		*dst = &v
		changes = append(changes, field)
	}
	setString("name", edit.Name, target.Name, &upd.Name)
	setString("dob", edit.DOB, target.DOB, &upd.DOB)
	setString("gender", edit.Gender, target.Gender, &upd.Gender)
	setString("designation", edit.Designation, target.Designation, &upd.Designation)
	if edit.Role != nil && *edit.Role != target.Role {
		if err := auth.RequireAdmin(actor, "change role"); err != nil {
			return domain.MemberProfile{}, err
		}
		upd.Role = edit.Role
		changes = append(changes, "role")
	}
	if len(changes) == 0 {
		return target, nil
	}
	if err := e.Repo.UpdateMember(ctx, targetID, upd); err != nil {
		return domain.MemberProfile{}, err
	}
	updated, err := e.Repo.GetMember(ctx, targetID)
	if err != nil {
		return domain.MemberProfile{}, err
	}
	e.record(ctx, actor, domain.ActionMemberEdit, audit.Details{
		"memberName":  updated.Name,
		"memberEmail": updated.Email,
		"changes":     changes,
	})
	return updated, nil
}

// DeleteMember removes any member's profile and sign-in identity.
func (e Engine) DeleteMember(ctx context.Context, actorID, targetID string) error {
	const op = "delete member"
	actor, err := e.actor(ctx, actorID, op)
	if err != nil {
		return err
	}
	if err := auth.RequireAdmin(actor, op); err != nil {
		return err
	}
	target, err := e.Repo.GetMember(ctx, targetID)
	if err != nil {
		return err
	}
	if err := e.removeIdentity(ctx, targetID); err != nil {
		return err
	}
	if err := e.Repo.DeleteMember(ctx, targetID); err != nil {
		return err
	}
	e.record(ctx, actor, domain.ActionMemberDelete, audit.Details{
		"memberName":  target.Name,
		"memberEmail": target.Email,
	})
	return nil
}

func (e Engine) removeIdentity(ctx context.Context, id string) error {
	if e.Identities == nil {
		return nil
	}
	if err := e.Identities.Remove(ctx, id); err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return err
	}
	return nil
}

// MemberFilter narrows the member directory. Empty or "all" values match
// everything; Search matches name, email or designation ignoring case.
type MemberFilter struct {
	Search string
	Role   string
	Status string
}

func (e Engine) ListMembers(ctx context.Context, actorID string, f MemberFilter) ([]domain.MemberProfile, error) {
	const op = "list members"
	actor, err := e.actor(ctx, actorID, op)
	if err != nil {
		return nil, err
	}
	if err := auth.RequireApproved(actor, op); err != nil {
		return nil, err
	}
	var approved *bool
	switch strings.ToLower(strings.TrimSpace(f.Status)) {
	case "", "all":
	case "approved":
		v := true
		approved = &v
	case "pending":
		v := false
		approved = &v
	default:
		return nil, apperr.Validation(op, "status must be all, approved or pending")
	}
	role := strings.TrimSpace(f.Role)
	if role != "" && role != "all" && !domain.Role(role).Valid() {
		return nil, apperr.Validation(op, "role must be all, dev-team or admin")
	}
	members, err := e.Repo.ListMembers(ctx, approved)
	if err != nil {
		return nil, err
	}
	search := strings.ToLower(strings.TrimSpace(f.Search))
	out := members[:0]
	for _, m := range members {
		if role != "" && role != "all" && string(m.Role) != role {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(m.Name), search) &&
			!strings.Contains(strings.ToLower(m.Email), search) &&
			!strings.Contains(strings.ToLower(m.Designation), search) {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (e Engine) MemberStats(ctx context.Context) (domain.MemberStats, error) {
	members, err := e.Repo.ListMembers(ctx, nil)
	if err != nil {
		return domain.MemberStats{}, err
	}
	var s domain.MemberStats
	for _, m := range members {
		s.Total++
		if m.IsApproved {
			s.Approved++
		} else {
			s.Pending++
		}
		if m.IsAdmin() {
			s.Admins++
		}
	}
	return s, nil
}

// Bootstrap promotes the member with email to an approved admin. It is the
// operator's way to seed the first administrator.
func (e Engine) Bootstrap(ctx context.Context, email string) (domain.MemberProfile, error) {
	const op = "bootstrap admin"
	members, err := e.Repo.ListMembers(ctx, nil)
	if err != nil {
		return domain.MemberProfile{}, err
	}
	idx := -1
	for i, m := range members {
		if strings.EqualFold(m.Email, strings.TrimSpace(email)) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return domain.MemberProfile{}, apperr.NotFound(op, "no member with email "+email)
	}
	target := members[idx]
	system := domain.MemberProfile{ID: SystemActor, Name: "teamdesk"}
	if !target.IsApproved {
		approved := true
		if err := e.Repo.UpdateMember(ctx, target.ID, repo.MemberUpdate{IsApproved: &approved}); err != nil {
			return domain.MemberProfile{}, err
		}
		target.IsApproved = true
		e.record(ctx, system, domain.ActionApprove, audit.Details{"memberName": target.Name, "memberEmail": target.Email})
	}
	if target.Role != domain.RoleAdmin {
		role := domain.RoleAdmin
		if err := e.Repo.UpdateMember(ctx, target.ID, repo.MemberUpdate{Role: &role}); err != nil {
			return domain.MemberProfile{}, err
		}
		e.record(ctx, system, domain.ActionRoleChange, audit.Details{
			"memberName": target.Name, "oldRole": string(target.Role), "newRole": string(role),
		})
		target.Role = role
	}
	return target, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, apperr.ErrNotFound)
}
