package main

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"teamdesk/internal/app"
	"teamdesk/internal/domain"
	"teamdesk/internal/engine"
)

func memberCmd() *cobra.Command {
	m := &cobra.Command{
		Use:     "member",
		Aliases: []string{"members"},
		Short:   "Review and manage members",
	}
	m.AddCommand(memberListCmd())
	m.AddCommand(memberStatsCmd())
	m.AddCommand(memberApproveCmd())
	m.AddCommand(memberRejectCmd())
	m.AddCommand(memberRoleCmd())
	m.AddCommand(memberEditCmd())
	m.AddCommand(memberDeleteCmd())
	m.AddCommand(memberBootstrapCmd())
	return m
}

func memberListCmd() *cobra.Command {
	var f engine.MemberFilter
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List members",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.App, actorID string) error {
				items, err := a.Engine.ListMembers(ctx, actorID, f)
				if err != nil {
					return userError(err)
				}
				return printMembers(items)
			})
		},
	}
	cmd.Flags().StringVar(&f.Search, "search", "", "match name, email or designation")
	cmd.Flags().StringVar(&f.Role, "role", "all", "all, admin or dev-team")
	cmd.Flags().StringVar(&f.Status, "status", "all", "all, approved or pending")
	return cmd
}

func printMembers(items []domain.MemberProfile) error {
	rows := make([]table.Row, 0, len(items))
	for _, m := range items {
		status := "pending"
		if m.IsApproved {
			status = "approved"
		}
		rows = append(rows, table.Row{m.ID, m.Name, m.Email, m.Role, status, m.Designation})
	}
	return printJSONOrTable(items, table.Row{"ID", "Name", "Email", "Role", "Status", "Designation"}, rows)
}

func memberStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Member counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withGrantedActor(cmd.Context(), func(ctx context.Context, a *app.App, actorID string) error {
				s, err := a.Engine.MemberStats(ctx)
				if err != nil {
					return userError(err)
				}
				return printJSONOrTable(s,
					table.Row{"Total", "Approved", "Pending", "Admins"},
					[]table.Row{{s.Total, s.Approved, s.Pending, s.Admins}})
			})
		},
	}
}

func memberApproveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "approve <member-id>",
		Short: "Approve a pending member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withGrantedActor(cmd.Context(), func(ctx context.Context, a *app.App, actorID string) error {
				p, err := a.Engine.Approve(ctx, actorID, args[0])
				if err != nil {
					return userError(err)
				}
				fmt.Printf("Approved %s <%s>\n", p.Name, p.Email)
				return nil
			})
		},
	}
}

func memberRejectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reject <member-id>",
		Short: "Reject a pending member and remove their profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withGrantedActor(cmd.Context(), func(ctx context.Context, a *app.App, actorID string) error {
				if err := a.Engine.Reject(ctx, actorID, args[0]); err != nil {
					return userError(err)
				}
				fmt.Printf("Rejected %s\n", args[0])
				return nil
			})
		},
	}
}

func memberRoleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "role <member-id> <admin|dev-team>",
		Short: "Change a member's role",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withGrantedActor(cmd.Context(), func(ctx context.Context, a *app.App, actorID string) error {
				p, err := a.Engine.ChangeRole(ctx, actorID, args[0], domain.Role(args[1]))
				if err != nil {
					return userError(err)
				}
				fmt.Printf("%s is now %s\n", p.Name, p.Role)
				return nil
			})
		},
	}
}

func memberEditCmd() *cobra.Command {
	var name, dob, gender, designation, role string
	cmd := &cobra.Command{
		Use:   "edit <member-id>",
		Short: "Edit a member profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			edit := engine.ProfileEdit{
				Name:        optionalString(cmd, "name", name),
				DOB:         optionalString(cmd, "dob", dob),
				Gender:      optionalString(cmd, "gender", gender),
				Designation: optionalString(cmd, "designation", designation),
			}
			if cmd.Flags().Changed("role") {
				r := domain.Role(role)
				edit.Role = &r
			}
			return withActor(cmd.Context(), func(ctx context.Context, a *app.App, actorID string) error {
				p, err := a.Engine.EditProfile(ctx, actorID, args[0], edit)
				if err != nil {
					return userError(err)
				}
				if viper.GetBool("json") {
					return printJSON(p)
				}
				fmt.Printf("Updated %s\n", p.Name)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "full name")
	cmd.Flags().StringVar(&dob, "dob", "", "date of birth (YYYY-MM-DD)")
	cmd.Flags().StringVar(&gender, "gender", "", "male, female, other or prefer-not-to-say")
	cmd.Flags().StringVar(&designation, "designation", "", "job title")
	cmd.Flags().StringVar(&role, "role", "", "admin or dev-team (admins only)")
	return cmd
}

func memberDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <member-id>",
		Short: "Delete a member profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withGrantedActor(cmd.Context(), func(ctx context.Context, a *app.App, actorID string) error {
				if err := a.Engine.DeleteMember(ctx, actorID, args[0]); err != nil {
					return userError(err)
				}
				fmt.Printf("Deleted %s\n", args[0])
				return nil
			})
		},
	}
}

func memberBootstrapCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bootstrap <email>",
		Short: "Approve and promote an existing member to admin without signing in",
		Long:  "Bootstrap is for workspace operators: it needs access to the workspace files, not an admin session.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				p, err := a.Engine.Bootstrap(ctx, args[0])
				if err != nil {
					return userError(err)
				}
				fmt.Printf("%s <%s> is an approved admin\n", p.Name, p.Email)
				return nil
			})
		},
	}
}
