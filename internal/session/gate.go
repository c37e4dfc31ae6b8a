package session

import (
	"context"
	"errors"

	"teamdesk/internal/apperr"
	"teamdesk/internal/domain"
	"teamdesk/internal/repo"
)

// Access is the outcome of the access gate for workflow-protected views.
type Access string

const (
	AccessLoading         Access = "loading"
	AccessSignedOut       Access = "signed_out"
	AccessProfileMissing  Access = "profile_missing"
	AccessPendingApproval Access = "pending_approval"
	AccessGranted         Access = "granted"
)

// Check re-reads the profile of identityID and decides access. It never
// trusts a cached profile, so an approval made a moment ago is seen.
func Check(ctx context.Context, r repo.Repo, identityID string) (Access, domain.MemberProfile, error) {
	if identityID == "" {
		return AccessSignedOut, domain.MemberProfile{}, nil
	}
	p, err := r.GetMember(ctx, identityID)
	if errors.Is(err, apperr.ErrNotFound) {
		return AccessProfileMissing, domain.MemberProfile{}, nil
	}
	if err != nil {
		return "", domain.MemberProfile{}, err
	}
	if !p.IsApproved {
		return AccessPendingApproval, p, nil
	}
	return AccessGranted, p, nil
}

// Gate refreshes the container's profile and reports access for the
// signed-in identity.
func (c *Container) Gate(ctx context.Context) (Access, error) {
	st := c.State()
	if st.Identity == nil {
		if st.Loading {
			return AccessLoading, nil
		}
		return AccessSignedOut, nil
	}
	st, err := c.Refresh(ctx)
	if err != nil {
		return "", err
	}
	switch {
	case st.Identity == nil:
		return AccessSignedOut, nil
	case st.Profile == nil:
		return AccessProfileMissing, nil
	case !st.Profile.IsApproved:
		return AccessPendingApproval, nil
	default:
		return AccessGranted, nil
	}
}
