// Package theme stores each member's colour theme preference.
package theme

import (
	"context"
	"errors"
	"time"

	"teamdesk/internal/apperr"
	"teamdesk/internal/domain"
	"teamdesk/internal/repo"
)

const Default = domain.ThemeSystem

type Store struct {
	Repo repo.Repo
	Now  func() time.Time
}

func (s Store) now() string {
	if s.Now != nil {
		return domain.FormatTime(s.Now())
	}
	return domain.FormatTime(time.Now())
}

// Get returns the member's theme, or Default when none was saved.
func (s Store) Get(ctx context.Context, memberID string) (domain.ThemeMode, error) {
	p, err := s.Repo.GetPreference(ctx, memberID)
	if errors.Is(err, apperr.ErrNotFound) {
		return Default, nil
	}
	if err != nil {
		return "", err
	}
	if !p.Theme.Valid() {
		return Default, nil
	}
	return p.Theme, nil
}

func (s Store) Set(ctx context.Context, memberID string, mode domain.ThemeMode) (domain.ThemeMode, error) {
	if !mode.Valid() {
		return "", apperr.Validation("set theme", "theme must be light, dark or system")
	}
	if memberID == "" {
		return "", apperr.New(apperr.KindUnauthenticated, "set theme", "")
	}
	err := s.Repo.PutPreference(ctx, domain.Preference{ID: memberID, Theme: mode, UpdatedAt: s.now()})
	if err != nil {
		return "", err
	}
	return mode, nil
}

// Toggle switches dark to light and anything else to dark.
func (s Store) Toggle(ctx context.Context, memberID string) (domain.ThemeMode, error) {
	cur, err := s.Get(ctx, memberID)
	if err != nil {
		return "", err
	}
	next := domain.ThemeDark
	if cur == domain.ThemeDark {
		next = domain.ThemeLight
	}
	return s.Set(ctx, memberID, next)
}

// Resolve maps system to the platform preference.
func Resolve(mode domain.ThemeMode, systemDark bool) domain.ThemeMode {
	if mode != domain.ThemeSystem {
		return mode
	}
	if systemDark {
		return domain.ThemeDark
	}
	return domain.ThemeLight
}
