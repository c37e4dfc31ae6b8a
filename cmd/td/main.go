package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"teamdesk/internal/app"
	"teamdesk/internal/config"
	"teamdesk/internal/db"
	"teamdesk/internal/logging"
	"teamdesk/internal/server"
	"teamdesk/internal/session"
)

const tokenEnv = "TEAMDESK_TOKEN"

var rootCmd = &cobra.Command{
	Use:   "td",
	Short: "teamdesk CLI",
	Long: `teamdesk runs a small team workspace: members sign up, verify their email and wait
for an admin to approve them. Approved members assign tasks to each other, keep a list
of the team's subdomains and see every change in the activity log.
- Workspace: the .teamdesk directory next to teamdesk.yml; holds the database and secret.
- Session: 'td auth login' stores a token in the workspace .env; other commands act as that member.
- Bootstrap: emails listed in auth.bootstrap_admins become approved admins on signup.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		if lvl := viper.GetString("log-level"); lvl != "" {
			return logging.SetLevel(lvl)
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	// Values already in the environment win over the workspace .env.
	_ = godotenv.Load(envPath(viper.GetString("workspace")))
	viper.SetEnvPrefix("TEAMDESK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("token", "", "session token (defaults to the one saved by td auth login)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn or error")
	rootCmd.PersistentFlags().Bool("strict-task-status", false, "only allow forward task status moves")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("token", rootCmd.PersistentFlags().Lookup("token"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("strict-task-status", rootCmd.PersistentFlags().Lookup("strict-task-status"))
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(authCmd())
	rootCmd.AddCommand(memberCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(subdomainCmd())
	rootCmd.AddCommand(activityCmd())
	rootCmd.AddCommand(dashboardCmd())
	rootCmd.AddCommand(themeCmd())
	rootCmd.AddCommand(serveCmd())
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Manage teamdesk.yml",
	}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default teamdesk.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOrDefault(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret != "" {
				cfg.Auth.JWTSecret = "********"
			}
			return printJSON(cfg)
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate teamdesk.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.Load(viper.GetString("workspace")); err != nil {
				return err
			}
			fmt.Println("Config OK")
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				handler, err := server.New(server.Config{App: a, BasePath: basePath})
				if err != nil {
					return err
				}
				if d := a.Dispatcher(); d.Enabled() {
					go d.Run(ctx)
				}
				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				fmt.Printf("Serving teamdesk API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs, metrics at /metrics)\n", addr, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	workspace := viper.GetString("workspace")
	cfg, err := config.LoadOrDefault(workspace)
	if err != nil {
		return err
	}
	if viper.GetString("log-level") == "" && cfg.Log.Level != "" {
		if err := logging.SetLevel(cfg.Log.Level); err != nil {
			return err
		}
	}
	if err := logging.SetFormat(cfg.Log.Format); err != nil {
		return err
	}
	a, err := app.Open(ctx, cfg, app.Options{
		Workspace:        workspace,
		StrictTaskStatus: viper.GetBool("strict-task-status"),
	})
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

// withActor runs fn as the member whose session token is configured.
func withActor(ctx context.Context, fn func(context.Context, *app.App, string) error) error {
	return withApp(ctx, func(ctx context.Context, a *app.App) error {
		actorID, err := actorFromToken(ctx, a, viper.GetString("token"))
		if err != nil {
			return err
		}
		return fn(ctx, a, actorID)
	})
}

// actorFromToken resolves a session token to its identity id, refusing
// tokens that were logged out.
func actorFromToken(ctx context.Context, a *app.App, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errors.New("not signed in; run td auth login")
	}
	p, err := server.ParseToken(token, server.AuthConfig{Secret: a.Secret, Now: a.Engine.Now})
	if err != nil {
		return "", fmt.Errorf("session token rejected (%v); run td auth login", err)
	}
	revoked, err := a.Creds.SessionRevoked(ctx, p.TokenID)
	if err != nil {
		return "", err
	}
	if revoked {
		return "", errors.New("session token was logged out; run td auth login")
	}
	return p.IdentityID, nil
}

// revokeToken records token as logged out in the workspace database, which
// the API server consults too. Tokens that no longer parse grant nothing
// and are skipped.
func revokeToken(ctx context.Context, a *app.App, token string) error {
	p, err := server.ParseToken(strings.TrimSpace(token), server.AuthConfig{Secret: a.Secret, Now: a.Engine.Now})
	if err != nil {
		return nil
	}
	return a.Creds.RevokeSession(ctx, p.TokenID, p.IdentityID, p.ExpiresAt)
}

// withGrantedActor is withActor for commands that need an approved member,
// mirroring the access gate of the HTTP API.
func withGrantedActor(ctx context.Context, fn func(context.Context, *app.App, string) error) error {
	return withActor(ctx, func(ctx context.Context, a *app.App, actorID string) error {
		if err := requireGranted(ctx, a, actorID); err != nil {
			return err
		}
		return fn(ctx, a, actorID)
	})
}

// requireGranted applies the access gate for commands the engine does not guard.
func requireGranted(ctx context.Context, a *app.App, actorID string) error {
	access, _, err := session.Check(ctx, a.Repo, actorID)
	if err != nil {
		return userError(err)
	}
	switch access {
	case session.AccessGranted:
		return nil
	case session.AccessPendingApproval:
		return errors.New("your account is waiting for admin approval")
	default:
		return errors.New("no member profile exists for this account")
	}
}

func envPath(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, ".env")
}

// setEnvValue sets key in the workspace .env; an empty value removes it.
func setEnvValue(path, key, value string) error {
	env, err := godotenv.Read(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	if env == nil {
		env = map[string]string{}
	}
	if value == "" {
		delete(env, key)
	} else {
		env[key] = value
	}
	return godotenv.Write(env, path)
}

func printJSONOrTable(v any, header table.Row, rows []table.Row) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(header)
	tw.AppendRows(rows)
	tw.Render()
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func optionalString(cmd *cobra.Command, flag, value string) *string {
	if !cmd.Flags().Changed(flag) {
		return nil
	}
	return &value
}
