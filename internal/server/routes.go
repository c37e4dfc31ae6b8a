package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"teamdesk/internal/app"
	"teamdesk/internal/apperr"
	"teamdesk/internal/audit"
	"teamdesk/internal/domain"
	"teamdesk/internal/engine"
	"teamdesk/internal/session"
)

func registerAuth(api huma.API, a *app.App, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID:   "signup",
		Method:        http.MethodPost,
		Path:          "/auth/signup",
		Summary:       "Create an account and a pending member profile",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body SignupRequest `json:"body"`
	}) (*struct {
		Body SignupResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		sess, _ := a.NewSession()
		defer sess.Close()
		res, err := a.Engine.Register(ctx, sess, input.Body.input())
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SignupResponse `json:"body"`
		}{Body: SignupResponse{
			Identity:         res.Identity,
			Profile:          res.Profile,
			VerificationSent: res.VerificationSent,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/auth/login",
		Summary:     "Sign in and obtain a session token",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusTooManyRequests,
		},
	}, func(ctx context.Context, input *struct {
		Body LoginRequest `json:"body"`
	}) (*struct {
		Body LoginResponse `json:"body"`
	}, error) {
		email := strings.TrimSpace(input.Body.Email)
		if email == "" || input.Body.Password == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "email and password are required", nil)
		}
		sess, _ := a.NewSession()
		defer sess.Close()
		st, err := sess.SignIn(ctx, email, input.Body.Password)
		if err != nil {
			return nil, handleError(err)
		}
		if st.Identity == nil {
			return nil, handleError(apperr.New(apperr.KindAuthProvider, "sign in", ""))
		}
		token, exp, err := SignToken(authCfg, st.Identity.ID, st.Identity.Email)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		resp := LoginResponse{
			Token:     token,
			ExpiresAt: exp,
			Identity:  *st.Identity,
			Access:    string(session.AccessProfileMissing),
		}
		if st.Profile != nil {
			resp.Profile = *st.Profile
			resp.Access = string(session.AccessPendingApproval)
			if st.Profile.IsApproved {
				resp.Access = string(session.AccessGranted)
			}
		}
		return &struct {
			Body LoginResponse `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "verify-email",
		Method:      http.MethodPost,
		Path:        "/auth/verify",
		Summary:     "Confirm an email address with a verification token",
		Errors: []int{
			http.StatusBadRequest,
		},
	}, func(ctx context.Context, input *struct {
		Body VerifyRequest `json:"body"`
	}) (*struct {
		Body domain.Identity `json:"body"`
	}, error) {
		if strings.TrimSpace(input.Body.Token) == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "token is required", nil)
		}
		identity, err := a.Creds.Verify(ctx, strings.TrimSpace(input.Body.Token))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Identity `json:"body"`
		}{Body: identity}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "resend-verification",
		Method:        http.MethodPost,
		Path:          "/auth/resend-verification",
		Summary:       "Send the verification mail again",
		DefaultStatus: http.StatusNoContent,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusBadGateway,
		},
	}, func(ctx context.Context, _ *struct{}) (*struct{}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		identity, err := a.Creds.Lookup(ctx, principal.IdentityID)
		if err != nil {
			return nil, handleError(err)
		}
		if identity.Verified {
			return nil, handleError(apperr.Validation("resend verification", "email address is already verified"))
		}
		if err := a.Creds.IssueVerification(ctx, identity); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "logout",
		Method:        http.MethodPost,
		Path:          "/auth/logout",
		Summary:       "Revoke the current session token",
		DefaultStatus: http.StatusNoContent,
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, _ *struct{}) (*struct{}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := authCfg.Revoker.RevokeSession(ctx, principal.TokenID, principal.IdentityID, principal.ExpiresAt); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerMe(api huma.API, a *app.App) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current member and access state",
		Errors: []int{
			http.StatusUnauthorized,
		},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body MeResponse `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		access, profile, err := session.Check(ctx, a.Repo, principal.IdentityID)
		if err != nil {
			return nil, handleError(err)
		}
		resp := MeResponse{IdentityID: principal.IdentityID, Access: string(access)}
		if access != session.AccessProfileMissing {
			resp.Profile = &profile
		}
		return &struct {
			Body MeResponse `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-theme",
		Method:      http.MethodGet,
		Path:        "/me/theme",
		Summary:     "Current theme preference",
		Errors: []int{
			http.StatusUnauthorized,
		},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body ThemeResponse `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		mode, err := a.Themes.Get(ctx, principal.IdentityID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ThemeResponse `json:"body"`
		}{Body: ThemeResponse{Theme: mode}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-theme",
		Method:      http.MethodPut,
		Path:        "/me/theme",
		Summary:     "Set or toggle the theme preference",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
		},
	}, func(ctx context.Context, input *struct {
		Body ThemeRequest `json:"body"`
	}) (*struct {
		Body ThemeResponse `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		var mode domain.ThemeMode
		var err error
		if input.Body.Toggle {
			mode, err = a.Themes.Toggle(ctx, principal.IdentityID)
		} else {
			mode, err = a.Themes.Set(ctx, principal.IdentityID, input.Body.Theme)
		}
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ThemeResponse `json:"body"`
		}{Body: ThemeResponse{Theme: mode}}, nil
	})
}

type memberPath struct {
	MemberID string `path:"member_id"`
}

func registerMembers(api huma.API, a *app.App) {
	e := a.Engine
	huma.Register(api, huma.Operation{
		OperationID: "list-members",
		Method:      http.MethodGet,
		Path:        "/members",
		Summary:     "List members",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
		},
	}, func(ctx context.Context, input *struct {
		Search string `query:"search"`
		Role   string `query:"role" enum:"all,admin,dev-team" default:"all"`
		Status string `query:"status" enum:"all,approved,pending" default:"all"`
	}) (*struct {
		Body MemberListResponse `json:"body"`
	}, error) {
		actorID, authErr := requireAccess(ctx, e.Repo)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListMembers(ctx, actorID, engine.MemberFilter{
			Search: input.Search,
			Role:   input.Role,
			Status: input.Status,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MemberListResponse `json:"body"`
		}{Body: MemberListResponse{Items: nonNilSlice(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "member-stats",
		Method:      http.MethodGet,
		Path:        "/members/stats",
		Summary:     "Member counts",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusForbidden,
		},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body domain.MemberStats `json:"body"`
	}, error) {
		if _, authErr := requireAccess(ctx, e.Repo); authErr != nil {
			return nil, authErr
		}
		stats, err := e.MemberStats(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.MemberStats `json:"body"`
		}{Body: stats}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "approve-member",
		Method:      http.MethodPost,
		Path:        "/members/{member_id}/approve",
		Summary:     "Approve a pending member",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *memberPath) (*struct {
		Body domain.MemberProfile `json:"body"`
	}, error) {
		actorID, authErr := requireAccess(ctx, e.Repo)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.Approve(ctx, actorID, input.MemberID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.MemberProfile `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "reject-member",
		Method:        http.MethodPost,
		Path:          "/members/{member_id}/reject",
		Summary:       "Reject a pending member",
		DefaultStatus: http.StatusNoContent,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *memberPath) (*struct{}, error) {
		actorID, authErr := requireAccess(ctx, e.Repo)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.Reject(ctx, actorID, input.MemberID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "change-member-role",
		Method:      http.MethodPut,
		Path:        "/members/{member_id}/role",
		Summary:     "Change a member's role",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		MemberID string      `path:"member_id"`
		Body     RoleRequest `json:"body"`
	}) (*struct {
		Body domain.MemberProfile `json:"body"`
	}, error) {
		actorID, authErr := requireAccess(ctx, e.Repo)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.ChangeRole(ctx, actorID, input.MemberID, input.Body.Role)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.MemberProfile `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "edit-member",
		Method:      http.MethodPatch,
		Path:        "/members/{member_id}",
		Summary:     "Edit a member profile",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		MemberID string             `path:"member_id"`
		Body     engine.ProfileEdit `json:"body"`
	}) (*struct {
		Body domain.MemberProfile `json:"body"`
	}, error) {
		// Pending members may still edit their own profile.
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.EditProfile(ctx, principal.IdentityID, input.MemberID, input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.MemberProfile `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-member",
		Method:        http.MethodDelete,
		Path:          "/members/{member_id}",
		Summary:       "Delete a member profile",
		DefaultStatus: http.StatusNoContent,
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *memberPath) (*struct{}, error) {
		actorID, authErr := requireAccess(ctx, e.Repo)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteMember(ctx, actorID, input.MemberID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

type taskPath struct {
	TaskID string `path:"task_id"`
}

func registerTasks(api huma.API, a *app.App) {
	e := a.Engine
	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List tasks",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
		},
	}, func(ctx context.Context, input *struct {
		Status   string `query:"status" enum:"all,pending,in-progress,completed" default:"all"`
		Assignee string `query:"assignee" doc:"member id, mine or all" default:"all"`
	}) (*struct {
		Body TaskListResponse `json:"body"`
	}, error) {
		actorID, authErr := requireAccess(ctx, e.Repo)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListTasks(ctx, actorID, engine.TaskFilter{Status: input.Status, Assignee: input.Assignee})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskListResponse `json:"body"`
		}{Body: TaskListResponse{Items: nonNilSlice(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/tasks",
		Summary:       "Assign a task to a member",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateTaskRequest `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		actorID, authErr := requireAccess(ctx, e.Repo)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.CreateTask(ctx, actorID, input.Body.options())
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "edit-task",
		Method:      http.MethodPatch,
		Path:        "/tasks/{task_id}",
		Summary:     "Edit a task",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		TaskID string          `path:"task_id"`
		Body   engine.TaskEdit `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		actorID, authErr := requireAccess(ctx, e.Repo)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.EditTask(ctx, actorID, input.TaskID, input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "change-task-status",
		Method:      http.MethodPut,
		Path:        "/tasks/{task_id}/status",
		Summary:     "Change a task's status",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		TaskID string            `path:"task_id"`
		Body   TaskStatusRequest `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		actorID, authErr := requireAccess(ctx, e.Repo)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.ChangeTaskStatus(ctx, actorID, input.TaskID, input.Body.Status)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-task",
		Method:        http.MethodDelete,
		Path:          "/tasks/{task_id}",
		Summary:       "Delete a task",
		DefaultStatus: http.StatusNoContent,
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *taskPath) (*struct{}, error) {
		actorID, authErr := requireAccess(ctx, e.Repo)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteTask(ctx, actorID, input.TaskID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerSubDomains(api huma.API, a *app.App) {
	e := a.Engine
	huma.Register(api, huma.Operation{
		OperationID: "list-subdomains",
		Method:      http.MethodGet,
		Path:        "/subdomains",
		Summary:     "List subdomains",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusForbidden,
		},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body SubDomainListResponse `json:"body"`
	}, error) {
		actorID, authErr := requireAccess(ctx, e.Repo)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListSubDomains(ctx, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SubDomainListResponse `json:"body"`
		}{Body: SubDomainListResponse{Items: nonNilSlice(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-subdomain",
		Method:        http.MethodPost,
		Path:          "/subdomains",
		Summary:       "Register a subdomain",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateSubDomainRequest `json:"body"`
	}) (*struct {
		Body domain.SubDomain `json:"body"`
	}, error) {
		actorID, authErr := requireAccess(ctx, e.Repo)
		if authErr != nil {
			return nil, authErr
		}
		s, err := e.AddSubDomain(ctx, actorID, engine.SubDomainOptions{
			Name:   input.Body.Name,
			URL:    input.Body.URL,
			Type:   input.Body.Type,
			Status: input.Body.Status,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.SubDomain `json:"body"`
		}{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-subdomain",
		Method:        http.MethodDelete,
		Path:          "/subdomains/{subdomain_id}",
		Summary:       "Delete a subdomain",
		DefaultStatus: http.StatusNoContent,
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		SubDomainID string `path:"subdomain_id"`
	}) (*struct{}, error) {
		actorID, authErr := requireAccess(ctx, e.Repo)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteSubDomain(ctx, actorID, input.SubDomainID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerActivities(api huma.API, a *app.App) {
	e := a.Engine
	huma.Register(api, huma.Operation{
		OperationID: "list-activities",
		Method:      http.MethodGet,
		Path:        "/activities",
		Summary:     "Recent activity, newest first",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
		},
	}, func(ctx context.Context, input *struct {
		Action string `query:"action"`
		Limit  int    `query:"limit" minimum:"0" maximum:"500"`
	}) (*struct {
		Body ActivityListResponse `json:"body"`
	}, error) {
		actorID, authErr := requireAccess(ctx, e.Repo)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.Activities(ctx, actorID, domain.Action(strings.TrimSpace(input.Action)), input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ActivityListResponse `json:"body"`
		}{Body: ActivityListResponse{Items: mapActivities(items, e.Now())}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "dashboard",
		Method:      http.MethodGet,
		Path:        "/dashboard",
		Summary:     "Workspace summary",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusForbidden,
		},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body domain.Dashboard `json:"body"`
	}, error) {
		actorID, authErr := requireAccess(ctx, e.Repo)
		if authErr != nil {
			return nil, authErr
		}
		d, err := e.Dashboard(ctx, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		d.RecentActivity = nonNilSlice(d.RecentActivity)
		return &struct {
			Body domain.Dashboard `json:"body"`
		}{Body: d}, nil
	})
}

func mapActivities(items []domain.ActivityRecord, now time.Time) []ActivityResponse {
	out := make([]ActivityResponse, 0, len(items))
	for _, rec := range items {
		out = append(out, ActivityResponse{
			ActivityRecord: rec,
			Label:          audit.Label(rec.Action),
			Relative:       audit.RelativeTime(rec.Timestamp, now),
			Summary:        audit.Summary(rec),
		})
	}
	return out
}
