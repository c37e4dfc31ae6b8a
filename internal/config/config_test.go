package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Store.Driver != DriverSQLite {
		t.Fatalf("expected sqlite driver, got %q", cfg.Store.Driver)
	}
	if cfg.Auth.TokenTTL != 24*time.Hour || cfg.Auth.Lockout != 15*time.Minute {
		t.Fatalf("unexpected durations: %v %v", cfg.Auth.TokenTTL, cfg.Auth.Lockout)
	}
	if cfg.Audit.ListLimit != 100 {
		t.Fatalf("expected list limit 100, got %d", cfg.Audit.ListLimit)
	}
}

func TestFromYAMLMergesDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte("auth:\n  max_failed_logins: 3\n  bootstrap_admins: [Root@Uni.edu]\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Auth.MaxFailedLogins != 3 {
		t.Fatalf("expected override, got %d", cfg.Auth.MaxFailedLogins)
	}
	if cfg.Auth.PasswordMinLength != 6 {
		t.Fatalf("expected default password length, got %d", cfg.Auth.PasswordMinLength)
	}
	if !cfg.IsBootstrapAdmin("root@uni.edu") {
		t.Fatalf("expected case-insensitive bootstrap admin match")
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"store:\n  driver: redis\n":                              "config.store.driver",
		"store:\n  driver: mongo\n":                              "config.store.mongo.uri",
		"auth:\n  password_min_length: 4\n":                      "password_min_length",
		"audit:\n  list_limit: 0\n":                              "list_limit",
		"audit:\n  webhooks:\n    - enabled: true\n":            "webhooks[0].url",
		"audit:\n  nats:\n    url: nats://x\n    subject: \"\"\n": "nats.subject",
	}
	for doc, want := range cases {
		_, err := FromYAML([]byte(doc))
		if err == nil || !strings.Contains(err.Error(), want) {
			t.Fatalf("yaml %q: expected error containing %q, got %v", doc, want, err)
		}
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	if err != nil || cfg != nil {
		t.Fatalf("expected nil config for missing file, got %v %v", cfg, err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatalf("expected error for missing config")
	}
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(GenerateDefault()), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Audit.NATS.Subject != "teamdesk.activity" {
		t.Fatalf("unexpected subject %q", cfg.Audit.NATS.Subject)
	}
}
