package theme

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teamdesk/internal/apperr"
	"teamdesk/internal/docstore/memstore"
	"teamdesk/internal/domain"
	"teamdesk/internal/repo"
)

func newStore(t *testing.T) Store {
	t.Helper()
	ms, err := memstore.New()
	require.NoError(t, err)
	return Store{Repo: repo.Repo{Store: ms}, Now: func() time.Time { return time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC) }}
}

func TestDefaultIsSystem(t *testing.T) {
	mode, err := newStore(t).Get(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, domain.ThemeSystem, mode)
}

func TestToggle(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	mode, err := s.Toggle(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, domain.ThemeDark, mode)

	mode, err = s.Toggle(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, domain.ThemeLight, mode)

	mode, err = s.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, domain.ThemeLight, mode)

	other, err := s.Get(ctx, "m2")
	require.NoError(t, err)
	assert.Equal(t, domain.ThemeSystem, other, "preferences are per member")
}

func TestSetRejectsUnknownMode(t *testing.T) {
	_, err := newStore(t).Set(context.Background(), "m1", domain.ThemeMode("sepia"))
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestResolve(t *testing.T) {
	assert.Equal(t, domain.ThemeDark, Resolve(domain.ThemeSystem, true))
	assert.Equal(t, domain.ThemeLight, Resolve(domain.ThemeSystem, false))
	assert.Equal(t, domain.ThemeLight, Resolve(domain.ThemeLight, true))
}
