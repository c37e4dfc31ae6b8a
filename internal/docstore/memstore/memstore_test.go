package memstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teamdesk/internal/docstore"
	"teamdesk/internal/docstore/storetest"
)

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) docstore.Store {
		s, err := New()
		require.NoError(t, err)
		return s
	})
}

func TestReturnedDocsAreCopies(t *testing.T) {
	ctx := context.Background()
	s, err := New()
	require.NoError(t, err)
	id, err := s.Create(ctx, docstore.Users, docstore.Doc{"name": "Ana"})
	require.NoError(t, err)

	doc, err := s.Get(ctx, docstore.Users, id)
	require.NoError(t, err)
	doc["name"] = "mutated"

	again, err := s.Get(ctx, docstore.Users, id)
	require.NoError(t, err)
	assert.Equal(t, "Ana", again["name"])
}
