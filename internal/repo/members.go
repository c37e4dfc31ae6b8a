package repo

import (
	"context"

	"teamdesk/internal/docstore"
	"teamdesk/internal/domain"
)

// MemberUpdate lists profile fields to change; nil fields are left alone.
type MemberUpdate struct {
	Name        *string
	Email       *string
	DOB         *string
	Gender      *string
	Designation *string
	Role        *domain.Role
	IsApproved  *bool
}

func (u MemberUpdate) doc() docstore.Doc {
	d := docstore.Doc{}
	if u.Name != nil {
		d["name"] = *u.Name
	}
	if u.Email != nil {
		d["email"] = *u.Email
	}
	if u.DOB != nil {
		d["dob"] = *u.DOB
	}
	if u.Gender != nil {
		d["gender"] = *u.Gender
	}
	if u.Designation != nil {
		d["designation"] = *u.Designation
	}
	if u.Role != nil {
		d["role"] = string(*u.Role)
	}
	if u.IsApproved != nil {
		d["is_approved"] = *u.IsApproved
	}
	return d
}

func (r Repo) GetMember(ctx context.Context, id string) (domain.MemberProfile, error) {
	var p domain.MemberProfile
	err := r.get(ctx, docstore.Users, id, "member", &p)
	return p, err
}

// InsertMember stores a profile keyed by its identity id.
func (r Repo) InsertMember(ctx context.Context, p domain.MemberProfile) error {
	return r.insert(ctx, docstore.Users, "member", p)
}

func (r Repo) UpdateMember(ctx context.Context, id string, u MemberUpdate) error {
	return r.update(ctx, docstore.Users, id, "member", u.doc())
}

func (r Repo) DeleteMember(ctx context.Context, id string) error {
	return r.delete(ctx, docstore.Users, id, "member")
}

// ListMembers returns profiles by name. approved filters on approval when non-nil.
func (r Repo) ListMembers(ctx context.Context, approved *bool) ([]domain.MemberProfile, error) {
	q := docstore.Query{}.Ordered("name", false)
	if approved != nil {
		q = q.WhereEquals("is_approved", *approved)
	}
	return list[domain.MemberProfile](ctx, r, docstore.Users, "members", q)
}
