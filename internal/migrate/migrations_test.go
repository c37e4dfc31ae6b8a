package migrate

import (
	"context"
	"testing"

	"teamdesk/internal/db"
)

func TestMigrateIsIdempotent(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()
	ctx := context.Background()

	v, err := Version(ctx, conn)
	if err != nil || v != 0 {
		t.Fatalf("fresh version = %d, %v", v, err)
	}
	if err := Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := Migrate(conn); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	migrations, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	v, err = Version(ctx, conn)
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if want := migrations[len(migrations)-1].Version; v != want {
		t.Fatalf("version = %d, want %d", v, want)
	}
	for _, table := range []string{"documents", "identities", "verification_tokens"} {
		var name string
		if err := conn.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name); err != nil {
			t.Fatalf("table %s missing: %v", table, err)
		}
	}
}
