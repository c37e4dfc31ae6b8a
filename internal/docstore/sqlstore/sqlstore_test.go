package sqlstore

import (
	"testing"

	"teamdesk/internal/db"
	"teamdesk/internal/docstore"
	"teamdesk/internal/docstore/storetest"
	"teamdesk/internal/migrate"
)

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) docstore.Store {
		conn, err := db.Open(db.Config{Workspace: t.TempDir()})
		if err != nil {
			t.Fatalf("open db: %v", err)
		}
		t.Cleanup(func() { _ = conn.Close() })
		if err := migrate.Migrate(conn); err != nil {
			t.Fatalf("migrate: %v", err)
		}
		return New(conn)
	})
}
