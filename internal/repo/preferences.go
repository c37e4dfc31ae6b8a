package repo

import (
	"context"
	"errors"

	"teamdesk/internal/apperr"
	"teamdesk/internal/docstore"
	"teamdesk/internal/domain"
)

func (r Repo) GetPreference(ctx context.Context, memberID string) (domain.Preference, error) {
	var p domain.Preference
	err := r.get(ctx, docstore.Preferences, memberID, "preference", &p)
	return p, err
}

// PutPreference creates or replaces the preference document of p.ID.
func (r Repo) PutPreference(ctx context.Context, p domain.Preference) error {
	patch := docstore.Doc{"theme": string(p.Theme), "updated_at": p.UpdatedAt}
	err := r.Store.Update(ctx, docstore.Preferences, p.ID, patch)
	if err == nil {
		return nil
	}
	if !errors.Is(err, docstore.ErrNotFound) {
		return apperr.Persistence("put preference", err)
	}
	doc, err := docstore.Encode(p)
	if err != nil {
		return apperr.Persistence("put preference", err)
	}
	_, err = r.Store.Create(ctx, docstore.Preferences, doc)
	if errors.Is(err, docstore.ErrExists) {
		err = r.Store.Update(ctx, docstore.Preferences, p.ID, patch)
	}
	if err != nil {
		return apperr.Persistence("put preference", err)
	}
	return nil
}
