package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"teamdesk/internal/app"
	"teamdesk/internal/apperr"
	"teamdesk/internal/server"
	"teamdesk/internal/session"
)

func authCmd() *cobra.Command {
	a := &cobra.Command{
		Use:   "auth",
		Short: "Sign up, verify and sign in",
	}
	a.AddCommand(authSignupCmd())
	a.AddCommand(authVerifyCmd())
	a.AddCommand(authResendCmd())
	a.AddCommand(authLoginCmd())
	a.AddCommand(authLogoutCmd())
	a.AddCommand(authWhoamiCmd())
	return a
}

func authSignupCmd() *cobra.Command {
	var in session.SignupInput
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account with a pending member profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				sess, _ := a.NewSession()
				defer sess.Close()
				res, err := a.Engine.Register(ctx, sess, in)
				if err != nil {
					return userError(err)
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("Registered %s (%s)\n", res.Profile.Email, res.Profile.ID)
				if !res.VerificationSent {
					fmt.Println("The verification email could not be sent; run td auth resend after signing in.")
				} else {
					fmt.Println("Check your inbox for the verification link.")
				}
				if !res.Profile.IsApproved {
					fmt.Println("An admin must approve your account before you can use the workspace.")
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&in.Email, "email", "", "email address")
	cmd.Flags().StringVar(&in.Password, "password", "", "password")
	cmd.Flags().StringVar(&in.Name, "name", "", "full name")
	cmd.Flags().StringVar(&in.DOB, "dob", "", "date of birth (YYYY-MM-DD)")
	cmd.Flags().StringVar(&in.Gender, "gender", "", "male, female, other or prefer-not-to-say")
	cmd.Flags().StringVar(&in.Designation, "designation", "", "job title")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func authVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <token>",
		Short: "Confirm an email address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				identity, err := a.Creds.Verify(ctx, args[0])
				if err != nil {
					return userError(err)
				}
				fmt.Printf("Verified %s\n", identity.Email)
				return nil
			})
		},
	}
}

func authResendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resend",
		Short: "Send the verification email again",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.App, actorID string) error {
				identity, err := a.Creds.Lookup(ctx, actorID)
				if err != nil {
					return userError(err)
				}
				if identity.Verified {
					fmt.Println("Email already verified")
					return nil
				}
				if err := a.Creds.IssueVerification(ctx, identity); err != nil {
					return userError(err)
				}
				fmt.Printf("Verification email sent to %s\n", identity.Email)
				return nil
			})
		},
	}
}

func authLoginCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and save the session in the workspace .env",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				sess, _ := a.NewSession()
				defer sess.Close()
				st, err := sess.SignIn(ctx, email, password)
				if err != nil {
					return userError(err)
				}
				if st.Identity == nil {
					return errors.New("sign in did not establish a session")
				}
				token, exp, err := server.SignToken(server.AuthConfig{
					Secret:   a.Secret,
					TokenTTL: a.Config.Auth.TokenTTL,
					Now:      a.Engine.Now,
				}, st.Identity.ID, st.Identity.Email)
				if err != nil {
					return err
				}
				if err := setEnvValue(envPath(viper.GetString("workspace")), tokenEnv, token); err != nil {
					return err
				}
				fmt.Printf("Signed in as %s until %s\n", st.Identity.Email, exp.Format("2006-01-02 15:04"))
				switch {
				case st.Profile == nil:
					fmt.Println("No member profile exists for this account.")
				case !st.Profile.IsApproved:
					fmt.Println("Your account is waiting for admin approval.")
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&password, "password", "", "password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func authLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke and forget the saved session",
		Long:  "Logout records the session token as revoked in the workspace database, so neither the CLI nor an API server on this workspace accepts it again, and removes it from .env.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if token := strings.TrimSpace(viper.GetString("token")); token != "" {
				err := withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
					return revokeToken(ctx, a, token)
				})
				if err != nil {
					return err
				}
			}
			if err := setEnvValue(envPath(viper.GetString("workspace")), tokenEnv, ""); err != nil {
				return err
			}
			fmt.Println("Signed out")
			return nil
		},
	}
}

func authWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in member and access state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.App, actorID string) error {
				access, profile, err := session.Check(ctx, a.Repo, actorID)
				if err != nil {
					return userError(err)
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"identity_id": actorID, "access": access, "profile": profile})
				}
				fmt.Printf("Identity: %s\nAccess:   %s\n", actorID, access)
				if access != session.AccessProfileMissing {
					fmt.Printf("Name:     %s <%s>\nRole:     %s\n", profile.Name, profile.Email, profile.Role)
				}
				return nil
			})
		},
	}
}

// userError replaces err's text with the message shown to members.
func userError(err error) error {
	if err == nil || apperr.KindOf(err) == apperr.KindInternal {
		return err
	}
	return displayError{msg: apperr.UserMessage(err), err: err}
}

type displayError struct {
	msg string
	err error
}

func (e displayError) Error() string { return e.msg }
func (e displayError) Unwrap() error { return e.err }
