package teamdesksdk

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"teamdesk/internal/app"
	"teamdesk/internal/config"
	"teamdesk/internal/mailer"
	"teamdesk/internal/server"
)

func newClient(t *testing.T) (*Client, *mailer.Recorder) {
	t.Helper()
	cfg := config.Default()
	cfg.Auth.BootstrapAdmins = []string{"root@uni.edu"}
	rec := &mailer.Recorder{}
	a, err := app.Open(context.Background(), cfg, app.Options{Workspace: t.TempDir(), Mailer: rec})
	if err != nil {
		t.Fatalf("open app: %v", err)
	}
	t.Cleanup(a.Close)
	handler, err := server.New(server.Config{App: a})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return New(ts.URL), rec
}

func TestClientWorkflow(t *testing.T) {
	ctx := context.Background()
	c, rec := newClient(t)

	if _, err := c.Signup(ctx, Signup{Email: "root@uni.edu", Password: "secret1", Name: "Root"}); err != nil {
		t.Fatalf("signup: %v", err)
	}
	msg, ok := rec.Last("root@uni.edu")
	if !ok {
		t.Fatalf("no verification mail")
	}
	if _, err := c.Verify(ctx, msg.Token); err != nil {
		t.Fatalf("verify: %v", err)
	}
	sess, err := c.Login(ctx, "root@uni.edu", "secret1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if sess.Access != "granted" || c.BearerToken == "" {
		t.Fatalf("unexpected session: %+v", sess)
	}

	me, err := c.Me(ctx)
	if err != nil || me.Profile == nil || me.Profile.Role != "admin" {
		t.Fatalf("me: %+v %v", me, err)
	}

	task, err := c.CreateTask(ctx, NewTask{Title: "Self review", AssignedTo: me.IdentityID})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if task.Priority != "medium" {
		t.Fatalf("default priority = %s", task.Priority)
	}
	if task, err = c.SetTaskStatus(ctx, task.ID, "completed"); err != nil || task.Status != "completed" {
		t.Fatalf("status: %+v %v", task, err)
	}

	mode, err := c.SetTheme(ctx, "")
	if err != nil || mode != "dark" {
		t.Fatalf("toggle theme: %s %v", mode, err)
	}

	acts, err := c.Activities(ctx, "task_status", 0)
	if err != nil || len(acts) != 1 {
		t.Fatalf("activities: %+v %v", acts, err)
	}

	if err := c.Logout(ctx); err != nil {
		t.Fatalf("logout: %v", err)
	}
	_, err = c.Me(ctx)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %v", err)
	}
}

func TestAPIErrorCarriesCode(t *testing.T) {
	c, _ := newClient(t)
	_, err := c.Login(context.Background(), "nobody@uni.edu", "secret1")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Code != "invalid_credentials" {
		t.Fatalf("code = %q", apiErr.Code)
	}
}
