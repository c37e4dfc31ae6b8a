package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"teamdesk/internal/app"
	"teamdesk/internal/audit"
	"teamdesk/internal/domain"
	"teamdesk/internal/engine"
	"teamdesk/internal/theme"
)

func taskCmd() *cobra.Command {
	task := &cobra.Command{
		Use:     "task",
		Aliases: []string{"tasks"},
		Short:   "Assign and track tasks",
	}
	task.AddCommand(taskListCmd())
	task.AddCommand(taskCreateCmd())
	task.AddCommand(taskStatusCmd())
	task.AddCommand(taskEditCmd())
	task.AddCommand(taskDeleteCmd())
	return task
}

func taskListCmd() *cobra.Command {
	var f engine.TaskFilter
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.App, actorID string) error {
				items, err := a.Engine.ListTasks(ctx, actorID, f)
				if err != nil {
					return userError(err)
				}
				rows := make([]table.Row, 0, len(items))
				for _, t := range items {
					due := ""
					if t.DueDate != nil {
						due = *t.DueDate
					}
					rows = append(rows, table.Row{t.ID, t.Title, t.Status, t.Priority, t.AssignedToName, t.AssignedByName, due})
				}
				return printJSONOrTable(items, table.Row{"ID", "Title", "Status", "Priority", "Assignee", "Assigned by", "Due"}, rows)
			})
		},
	}
	cmd.Flags().StringVar(&f.Status, "status", "all", "all, pending, in-progress or completed")
	cmd.Flags().StringVar(&f.Assignee, "assignee", "all", "member id, mine or all")
	return cmd
}

func taskCreateCmd() *cobra.Command {
	var opts engine.TaskCreateOptions
	var priority string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Assign a new task",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Priority = domain.Priority(priority)
			return withActor(cmd.Context(), func(ctx context.Context, a *app.App, actorID string) error {
				t, err := a.Engine.CreateTask(ctx, actorID, opts)
				if err != nil {
					return userError(err)
				}
				if viper.GetBool("json") {
					return printJSON(t)
				}
				fmt.Printf("Created task %s for %s\n", t.ID, t.AssignedToName)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.Title, "title", "", "task title")
	cmd.Flags().StringVar(&opts.Description, "description", "", "task description")
	cmd.Flags().StringVar(&opts.AssigneeID, "assignee", "", "member id of the assignee")
	cmd.Flags().StringVar(&priority, "priority", "", "low, medium or high (default medium)")
	cmd.Flags().StringVar(&opts.DueDate, "due", "", "due date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("assignee")
	return cmd
}

func taskStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <task-id> <in-progress|completed>",
		Short: "Move one of your tasks to a new status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.App, actorID string) error {
				t, err := a.Engine.ChangeTaskStatus(ctx, actorID, args[0], domain.TaskStatus(args[1]))
				if err != nil {
					return userError(err)
				}
				fmt.Printf("%s is %s\n", t.Title, t.Status)
				return nil
			})
		},
	}
}

func taskEditCmd() *cobra.Command {
	var title, description, priority, due string
	cmd := &cobra.Command{
		Use:   "edit <task-id>",
		Short: "Edit a task you created",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			edit := engine.TaskEdit{
				Title:       optionalString(cmd, "title", title),
				Description: optionalString(cmd, "description", description),
				DueDate:     optionalString(cmd, "due", due),
			}
			if cmd.Flags().Changed("priority") {
				p := domain.Priority(priority)
				edit.Priority = &p
			}
			return withActor(cmd.Context(), func(ctx context.Context, a *app.App, actorID string) error {
				t, err := a.Engine.EditTask(ctx, actorID, args[0], edit)
				if err != nil {
					return userError(err)
				}
				if viper.GetBool("json") {
					return printJSON(t)
				}
				fmt.Printf("Updated %s\n", t.Title)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "task title")
	cmd.Flags().StringVar(&description, "description", "", "task description")
	cmd.Flags().StringVar(&priority, "priority", "", "low, medium or high")
	cmd.Flags().StringVar(&due, "due", "", "due date (YYYY-MM-DD); empty clears it")
	return cmd
}

func taskDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <task-id>",
		Short: "Delete a task you created",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.App, actorID string) error {
				if err := a.Engine.DeleteTask(ctx, actorID, args[0]); err != nil {
					return userError(err)
				}
				fmt.Printf("Deleted %s\n", args[0])
				return nil
			})
		},
	}
}

func subdomainCmd() *cobra.Command {
	s := &cobra.Command{
		Use:     "subdomain",
		Aliases: []string{"subdomains"},
		Short:   "Keep track of the team's subdomains",
	}
	s.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List subdomains",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.App, actorID string) error {
				items, err := a.Engine.ListSubDomains(ctx, actorID)
				if err != nil {
					return userError(err)
				}
				rows := make([]table.Row, 0, len(items))
				for _, sd := range items {
					rows = append(rows, table.Row{sd.ID, sd.Name, sd.URL, sd.Type, sd.Status})
				}
				return printJSONOrTable(items, table.Row{"ID", "Name", "URL", "Type", "Status"}, rows)
			})
		},
	})
	s.AddCommand(subdomainAddCmd())
	s.AddCommand(&cobra.Command{
		Use:   "delete <subdomain-id>",
		Short: "Delete a subdomain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.App, actorID string) error {
				if err := a.Engine.DeleteSubDomain(ctx, actorID, args[0]); err != nil {
					return userError(err)
				}
				fmt.Printf("Deleted %s\n", args[0])
				return nil
			})
		},
	})
	return s
}

func subdomainAddCmd() *cobra.Command {
	var name, rawURL, kind, status string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a subdomain",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.App, actorID string) error {
				sd, err := a.Engine.AddSubDomain(ctx, actorID, engine.SubDomainOptions{
					Name:   name,
					URL:    rawURL,
					Type:   domain.SubDomainType(kind),
					Status: domain.SubDomainStatus(status),
				})
				if err != nil {
					return userError(err)
				}
				fmt.Printf("Added %s (%s)\n", sd.Name, sd.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&rawURL, "url", "", "address, e.g. https://portal.example.edu")
	cmd.Flags().StringVar(&kind, "type", "", "Frontend, Backend, API or Other (default Frontend)")
	cmd.Flags().StringVar(&status, "status", "", "Live, Maintenance or Down (default Live)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("url")
	return cmd
}

func activityCmd() *cobra.Command {
	var action string
	var limit int
	cmd := &cobra.Command{
		Use:   "activity",
		Short: "Show recent activity, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.App, actorID string) error {
				items, err := a.Engine.Activities(ctx, actorID, domain.Action(strings.TrimSpace(action)), limit)
				if err != nil {
					return userError(err)
				}
				now := a.Engine.Now()
				rows := make([]table.Row, 0, len(items))
				for _, rec := range items {
					rows = append(rows, table.Row{audit.RelativeTime(rec.Timestamp, now), rec.ActorName, audit.Label(rec.Action), audit.Summary(rec)})
				}
				return printJSONOrTable(items, table.Row{"When", "Who", "What", "Details"}, rows)
			})
		},
	}
	cmd.Flags().StringVar(&action, "action", "", "only show one action, e.g. task_status")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "number of records (default from config)")
	return cmd
}

func dashboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Workspace summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.App, actorID string) error {
				d, err := a.Engine.Dashboard(ctx, actorID)
				if err != nil {
					return userError(err)
				}
				if viper.GetBool("json") {
					return printJSON(d)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendRows([]table.Row{
					{"Members", d.Members.Total},
					{"Pending approval", d.Members.Pending},
					{"Admins", d.Members.Admins},
					{"Subdomains", d.SubDomains},
					{"Open tasks", d.OpenTasks},
					{"My open tasks", d.MyOpenTasks},
				})
				tw.Render()
				now := a.Engine.Now()
				for _, rec := range d.RecentActivity {
					fmt.Printf("  %-16s %s\n", audit.RelativeTime(rec.Timestamp, now), audit.Summary(rec))
				}
				return nil
			})
		},
	}
}

func themeCmd() *cobra.Command {
	var systemDark bool
	t := &cobra.Command{
		Use:   "theme",
		Short: "Show or change your colour theme",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.App, actorID string) error {
				mode, err := a.Themes.Get(ctx, actorID)
				if err != nil {
					return userError(err)
				}
				fmt.Printf("%s (renders %s)\n", mode, theme.Resolve(mode, systemDark))
				return nil
			})
		},
	}
	t.Flags().BoolVar(&systemDark, "system-dark", false, "treat the platform preference as dark")
	t.AddCommand(&cobra.Command{
		Use:   "set <light|dark|system>",
		Short: "Save a theme",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.App, actorID string) error {
				mode, err := a.Themes.Set(ctx, actorID, domain.ThemeMode(args[0]))
				if err != nil {
					return userError(err)
				}
				fmt.Printf("Theme set to %s\n", mode)
				return nil
			})
		},
	})
	t.AddCommand(&cobra.Command{
		Use:   "toggle",
		Short: "Switch between dark and light",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.App, actorID string) error {
				mode, err := a.Themes.Toggle(ctx, actorID)
				if err != nil {
					return userError(err)
				}
				fmt.Printf("Theme set to %s\n", mode)
				return nil
			})
		},
	})
	return t
}
