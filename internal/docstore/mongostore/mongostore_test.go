package mongostore

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"teamdesk/internal/docstore"
	"teamdesk/internal/docstore/storetest"
)

func TestStoreContract(t *testing.T) {
	uri := os.Getenv("TEAMDESK_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("TEAMDESK_TEST_MONGO_URI not set")
	}
	n := 0
	storetest.Run(t, func(t *testing.T) docstore.Store {
		n++
		ctx := context.Background()
		s, err := Dial(ctx, Config{
			URI:      uri,
			Database: fmt.Sprintf("teamdesk_test_%d_%d", time.Now().UnixNano(), n),
		})
		require.NoError(t, err)
		t.Cleanup(func() {
			_ = s.Drop(ctx)
			_ = s.Close()
		})
		return s
	})
}
