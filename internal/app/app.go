// Package app wires the configured store, identity provider, audit writer
// and workflow engine of a workspace together.
package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"teamdesk/internal/audit"
	"teamdesk/internal/config"
	"teamdesk/internal/credential"
	"teamdesk/internal/db"
	"teamdesk/internal/docstore"
	"teamdesk/internal/docstore/memstore"
	"teamdesk/internal/docstore/mongostore"
	"teamdesk/internal/docstore/sqlstore"
	"teamdesk/internal/engine"
	"teamdesk/internal/logging"
	"teamdesk/internal/mailer"
	"teamdesk/internal/metrics"
	"teamdesk/internal/migrate"
	"teamdesk/internal/repo"
	"teamdesk/internal/session"
	"teamdesk/internal/theme"
)

const secretFile = "secret"

type Options struct {
	Workspace string
	// Mailer overrides the logging mailer.
	Mailer           mailer.Mailer
	Metrics          *metrics.Metrics
	Now              func() time.Time
	StrictTaskStatus bool
}

type App struct {
	Config  *config.Config
	DB      *sql.DB
	Store   docstore.Store
	Repo    repo.Repo
	Creds   *credential.Service
	Audit   *audit.Writer
	Engine  engine.Engine
	Themes  theme.Store
	Metrics *metrics.Metrics
	Logger  logging.Logger
	// Secret signs session and verification tokens.
	Secret []byte

	closers []func()
}

// Open builds an App for cfg in opts.Workspace. The SQLite database is
// always opened because it holds identities; documents go to the
// configured driver.
func Open(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.New()
	}
	log := logging.New("app")

	conn, err := db.Open(db.Config{Workspace: opts.Workspace})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a := &App{Config: cfg, DB: conn, Metrics: m, Logger: log}
	a.closers = append(a.closers, func() { _ = conn.Close() })
	if err := migrate.MigrateContext(ctx, conn); err != nil {
		a.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	store, err := openStore(ctx, cfg, conn)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, func() { _ = store.Close() })
	a.Store = docstore.Observe(store, m.ObserveStore)
	a.Repo = repo.Repo{Store: a.Store}

	secret, err := resolveSecret(opts.Workspace, cfg.Auth.JWTSecret)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Secret = secret

	mail := opts.Mailer
	if mail == nil {
		mail = mailer.Log{Logger: logging.New("mailer")}
	}
	a.Creds = &credential.Service{
		DB:     conn,
		Mailer: mail,
		Hasher: credential.BcryptHasher{},
		Config: credential.Config{
			Secret:            secret,
			VerificationTTL:   cfg.Auth.VerificationTTL,
			PasswordMinLength: cfg.Auth.PasswordMinLength,
			MaxFailedLogins:   cfg.Auth.MaxFailedLogins,
			Lockout:           cfg.Auth.Lockout,
			VerifyURL:         cfg.Mail.VerifyURL,
			From:              cfg.Mail.From,
		},
		Now:    now,
		Logger: logging.New("credential"),
	}

	a.Audit = &audit.Writer{
		Repo:      a.Repo,
		Now:       now,
		Logger:    logging.New("audit"),
		Metrics:   m,
		ListLimit: cfg.Audit.ListLimit,
	}
	if url := strings.TrimSpace(cfg.Audit.NATS.URL); url != "" {
		sink, closeFn, err := audit.DialNATS(url, cfg.Audit.NATS.Subject)
		if err != nil {
			// Fan-out is best effort; the activity log itself still works.
			log.Warnw("nats sink disabled", "url", url, "error", err)
		} else {
			a.Audit.Sinks = append(a.Audit.Sinks, sink)
			a.closers = append(a.closers, closeFn)
		}
	}

	a.Engine = engine.New(a.Repo, a.Audit, m)
	a.Engine.Identities = a.Creds
	a.Engine.Now = now
	a.Engine.Logger = logging.New("engine")
	a.Engine.Options.StrictTaskStatus = opts.StrictTaskStatus
	a.Themes = theme.Store{Repo: a.Repo, Now: now}
	return a, nil
}

func openStore(ctx context.Context, cfg *config.Config, conn *sql.DB) (docstore.Store, error) {
	switch cfg.Store.Driver {
	case config.DriverMemory:
		return memstore.New()
	case config.DriverMongo:
		return mongostore.Dial(ctx, mongostore.Config{URI: cfg.Store.Mongo.URI, Database: cfg.Store.Mongo.Database})
	case config.DriverSQLite, "":
		return sqlstore.New(conn), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// resolveSecret returns the configured secret, or a random one kept in the
// workspace so tokens survive restarts.
func resolveSecret(workspace, configured string) ([]byte, error) {
	if configured != "" {
		return []byte(configured), nil
	}
	dir, err := db.EnsureWorkspace(workspace)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(dir, secretFile)
	data, err := os.ReadFile(path)
	if err == nil && len(strings.TrimSpace(string(data))) > 0 {
		return []byte(strings.TrimSpace(string(data))), nil
	}
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	secret := hex.EncodeToString(buf)
	if err := os.WriteFile(path, []byte(secret+"\n"), 0o600); err != nil {
		return nil, err
	}
	return []byte(secret), nil
}

// NewSession returns a session container with its own identity client.
func (a *App) NewSession() (*session.Container, *credential.Client) {
	client := a.Creds.NewClient()
	c := session.New(session.Options{
		Provider:         client,
		Repo:             a.Repo,
		Audit:            a.Audit,
		Logger:           logging.New("session"),
		Metrics:          a.Metrics,
		Now:              a.Engine.Now,
		IsBootstrapAdmin: a.Config.IsBootstrapAdmin,
	})
	return c, client
}

// Dispatcher returns the webhook dispatcher for the configured hooks.
func (a *App) Dispatcher() *audit.Dispatcher {
	return audit.NewDispatcher(a.Repo, a.Config.Audit.Webhooks, logging.New("webhooks"), a.Metrics)
}

// Close releases everything Open acquired, newest first.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
