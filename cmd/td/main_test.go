package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/joho/godotenv"

	"teamdesk/internal/app"
	"teamdesk/internal/apperr"
	"teamdesk/internal/config"
	"teamdesk/internal/engine/auth"
	"teamdesk/internal/server"
)

func TestSetEnvValueKeepsOtherKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("OTHER=1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := setEnvValue(path, tokenEnv, "abc"); err != nil {
		t.Fatalf("set: %v", err)
	}
	env, err := godotenv.Read(path)
	if err != nil {
		t.Fatal(err)
	}
	if env["OTHER"] != "1" || env[tokenEnv] != "abc" {
		t.Fatalf("unexpected env: %v", env)
	}
	if err := setEnvValue(path, tokenEnv, ""); err != nil {
		t.Fatalf("clear: %v", err)
	}
	env, _ = godotenv.Read(path)
	if _, ok := env[tokenEnv]; ok || env["OTHER"] != "1" {
		t.Fatalf("token not removed: %v", env)
	}
}

func TestSetEnvValueCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := setEnvValue(path, tokenEnv, "xyz"); err != nil {
		t.Fatalf("set: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil || !strings.Contains(string(data), "xyz") {
		t.Fatalf("file not written: %q %v", data, err)
	}
}

func TestUserError(t *testing.T) {
	err := userError(apperr.New(apperr.KindInvalidCredentials, "sign in", ""))
	if err.Error() != "Invalid email or password." {
		t.Fatalf("message = %q", err.Error())
	}
	if !errors.Is(err, apperr.ErrInvalidCredentials) {
		t.Fatalf("kind lost")
	}

	forbidden := userError(auth.ForbiddenError{Action: "approve member", Reason: "admin role required"})
	var fe auth.ForbiddenError
	if !errors.As(forbidden, &fe) || !strings.Contains(forbidden.Error(), "admin role required") {
		t.Fatalf("forbidden error = %v", forbidden)
	}

	plain := errors.New("boom")
	if userError(plain) != plain {
		t.Fatalf("internal errors pass through unchanged")
	}
}

func TestRevokedTokenIsRefusedAcrossOpens(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	a, err := app.Open(ctx, config.Default(), app.Options{Workspace: dir})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	token, _, err := server.SignToken(server.AuthConfig{Secret: a.Secret}, "id-1", "dev@uni.edu")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if id, err := actorFromToken(ctx, a, token); err != nil || id != "id-1" {
		t.Fatalf("fresh token: %q %v", id, err)
	}
	if err := revokeToken(ctx, a, token); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if err := revokeToken(ctx, a, "not-a-jwt"); err != nil {
		t.Fatalf("revoke garbage: %v", err)
	}
	a.Close()

	a, err = app.Open(ctx, config.Default(), app.Options{Workspace: dir})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer a.Close()
	if _, err := actorFromToken(ctx, a, token); err == nil || !strings.Contains(err.Error(), "logged out") {
		t.Fatalf("revoked token accepted: %v", err)
	}
	if _, err := actorFromToken(ctx, a, " "); err == nil {
		t.Fatalf("empty token accepted")
	}
}
