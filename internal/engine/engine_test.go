package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"teamdesk/internal/apperr"
	"teamdesk/internal/audit"
	"teamdesk/internal/credential"
	"teamdesk/internal/db"
	"teamdesk/internal/docstore/sqlstore"
	"teamdesk/internal/domain"
	"teamdesk/internal/engine"
	"teamdesk/internal/engine/auth"
	"teamdesk/internal/mailer"
	"teamdesk/internal/metrics"
	"teamdesk/internal/migrate"
	"teamdesk/internal/repo"
	"teamdesk/internal/session"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
	Creds  *credential.Service
	Mail   *mailer.Recorder
}

type tickingClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	clock := &tickingClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := sqlstore.New(conn)
	store.Now = clock.Now
	r := repo.Repo{Store: store}
	w := &audit.Writer{Repo: r, Now: clock.Now}
	eng := engine.New(r, w, metrics.New())
	eng.Now = clock.Now
	rec := &mailer.Recorder{}
	creds := &credential.Service{
		DB:     conn,
		Mailer: rec,
		Hasher: credential.BcryptHasher{Cost: bcrypt.MinCost},
		Config: credential.Config{
			Secret:            []byte("engine-secret"),
			VerificationTTL:   time.Hour,
			PasswordMinLength: 6,
			MaxFailedLogins:   5,
			Lockout:           time.Minute,
			VerifyURL:         "http://localhost/v0/auth/verify",
		},
		Now: clock.Now,
	}
	eng.Identities = creds
	return testEnv{Engine: eng, Ctx: context.Background(), Creds: creds, Mail: rec}
}

func (env testEnv) member(t *testing.T, id, name string, role domain.Role, approved bool) domain.MemberProfile {
	t.Helper()
	p := domain.MemberProfile{
		ID:         id,
		Name:       name,
		Email:      id + "@uni.edu",
		Role:       role,
		IsApproved: approved,
		CreatedAt:  domain.FormatTime(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
	}
	if err := env.Engine.Repo.InsertMember(env.Ctx, p); err != nil {
		t.Fatalf("insert member %s: %v", id, err)
	}
	return p
}

func (env testEnv) activityCount(t *testing.T, action domain.Action) int {
	t.Helper()
	recs, err := env.Engine.Repo.ListActivities(env.Ctx, action, 1000)
	if err != nil {
		t.Fatalf("list activities: %v", err)
	}
	return len(recs)
}

func (env testEnv) session(t *testing.T) *session.Container {
	t.Helper()
	c := session.New(session.Options{
		Provider: env.Creds.NewClient(),
		Repo:     env.Engine.Repo,
		Audit:    env.Engine.Audit,
	})
	t.Cleanup(c.Close)
	return c
}

func TestRegisterApproveScenario(t *testing.T) {
	env := newTestEnv(t)
	admin := env.member(t, "admin", "Ada", domain.RoleAdmin, true)
	sess := env.session(t)

	res, err := env.Engine.Register(env.Ctx, sess, session.SignupInput{Email: "a@x.com", Password: "secret1", Name: "A"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if !res.VerificationSent {
		t.Fatalf("expected verification mail, got %v", res.DeliveryErr)
	}
	if _, ok := env.Mail.Last("a@x.com"); !ok {
		t.Fatalf("no verification mail recorded")
	}
	if sess.State().Identity != nil {
		t.Fatalf("new member should be signed out after register")
	}
	p, err := env.Engine.Repo.GetMember(env.Ctx, res.Identity.ID)
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if p.IsApproved || p.Role != domain.RoleDevTeam {
		t.Fatalf("unexpected profile after register: %+v", p)
	}
	if n := env.activityCount(t, domain.ActionRegister); n != 1 {
		t.Fatalf("register records = %d", n)
	}

	p, err = env.Engine.Approve(env.Ctx, admin.ID, p.ID)
	if err != nil || !p.IsApproved {
		t.Fatalf("approve: %v", err)
	}
	if n := env.activityCount(t, domain.ActionApprove); n != 1 {
		t.Fatalf("approve records = %d", n)
	}

	other := env.member(t, "bo", "Bo", domain.RoleDevTeam, true)
	_, err = env.Engine.ChangeRole(env.Ctx, other.ID, p.ID, domain.RoleAdmin)
	if !errors.Is(err, apperr.ErrAuthorization) {
		t.Fatalf("expected authorization error, got %v", err)
	}
	got, _ := env.Engine.Repo.GetMember(env.Ctx, p.ID)
	if got.Role != domain.RoleDevTeam {
		t.Fatalf("role changed by non-admin: %s", got.Role)
	}
}

func TestRegisterDeliveryFailureIsNotFatal(t *testing.T) {
	env := newTestEnv(t)
	env.Mail.SetFail(errors.New("smtp down"))
	res, err := env.Engine.Register(env.Ctx, env.session(t), session.SignupInput{Email: "a@x.com", Password: "secret1", Name: "A"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if res.VerificationSent || !errors.Is(res.DeliveryErr, apperr.ErrDelivery) {
		t.Fatalf("expected delivery error, got %+v", res)
	}
}

func TestApproveRequiresAdmin(t *testing.T) {
	env := newTestEnv(t)
	dev := env.member(t, "dev", "Dev", domain.RoleDevTeam, true)
	pending := env.member(t, "new", "New", domain.RoleDevTeam, false)

	_, err := env.Engine.Approve(env.Ctx, dev.ID, pending.ID)
	var forbidden auth.ForbiddenError
	if !errors.As(err, &forbidden) {
		t.Fatalf("expected ForbiddenError, got %v", err)
	}
	got, _ := env.Engine.Repo.GetMember(env.Ctx, pending.ID)
	if got.IsApproved {
		t.Fatalf("non-admin approval took effect")
	}
	if n := env.activityCount(t, ""); n != 0 {
		t.Fatalf("unexpected records: %d", n)
	}

	_, err = env.Engine.Approve(env.Ctx, "ghost", pending.ID)
	if !errors.Is(err, apperr.ErrAuthorization) {
		t.Fatalf("actor without profile: %v", err)
	}
}

func TestApproveIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	admin := env.member(t, "admin", "Ada", domain.RoleAdmin, true)
	pending := env.member(t, "new", "New", domain.RoleDevTeam, false)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.Engine.Approve(env.Ctx, admin.ID, pending.ID)
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			t.Fatalf("concurrent approve: %v", err)
		}
	}
	got, _ := env.Engine.Repo.GetMember(env.Ctx, pending.ID)
	if !got.IsApproved {
		t.Fatalf("member not approved")
	}
	// Logging is best effort: either approve may or may not see the other's write.
	if n := env.activityCount(t, domain.ActionApprove); n < 1 || n > 2 {
		t.Fatalf("approve records = %d", n)
	}

	before := env.activityCount(t, "")
	if _, err := env.Engine.Approve(env.Ctx, admin.ID, pending.ID); err != nil {
		t.Fatalf("re-approve: %v", err)
	}
	if after := env.activityCount(t, ""); after != before {
		t.Fatalf("re-approve wrote a record")
	}
}

func TestRejectDeletesProfile(t *testing.T) {
	env := newTestEnv(t)
	admin := env.member(t, "admin", "Ada", domain.RoleAdmin, true)
	pending := env.member(t, "new", "New", domain.RoleDevTeam, false)
	approved := env.member(t, "old", "Old", domain.RoleDevTeam, true)

	if err := env.Engine.Reject(env.Ctx, admin.ID, pending.ID); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if _, err := env.Engine.Repo.GetMember(env.Ctx, pending.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("profile still present: %v", err)
	}
	if err := env.Engine.Reject(env.Ctx, admin.ID, pending.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("second reject: %v", err)
	}
	if err := env.Engine.Reject(env.Ctx, admin.ID, approved.ID); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("reject approved member: %v", err)
	}
	if n := env.activityCount(t, domain.ActionReject); n != 1 {
		t.Fatalf("reject records = %d", n)
	}
}

func TestRejectedAndDeletedMembersStayOut(t *testing.T) {
	env := newTestEnv(t)
	admin := env.member(t, "admin", "Ada", domain.RoleAdmin, true)

	signedUp := func(email string) string {
		t.Helper()
		res, err := env.Engine.Register(env.Ctx, env.session(t), session.SignupInput{Email: email, Password: "secret1", Name: "X"})
		if err != nil {
			t.Fatalf("register %s: %v", email, err)
		}
		if err := env.Creds.MarkVerified(env.Ctx, res.Identity.ID); err != nil {
			t.Fatalf("verify %s: %v", email, err)
		}
		return res.Identity.ID
	}
	rejected := signedUp("rejected@x.com")
	deleted := signedUp("deleted@x.com")
	if _, err := env.Engine.Approve(env.Ctx, admin.ID, deleted); err != nil {
		t.Fatalf("approve: %v", err)
	}

	if err := env.Engine.Reject(env.Ctx, admin.ID, rejected); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if err := env.Engine.DeleteMember(env.Ctx, admin.ID, deleted); err != nil {
		t.Fatalf("delete: %v", err)
	}

	for _, tc := range []struct{ email, id string }{{"rejected@x.com", rejected}, {"deleted@x.com", deleted}} {
		sess := env.session(t)
		if _, err := sess.SignIn(env.Ctx, tc.email, "secret1"); !errors.Is(err, apperr.ErrInvalidCredentials) {
			t.Fatalf("sign in after removal of %s: %v", tc.email, err)
		}
		if _, err := env.Engine.Repo.GetMember(env.Ctx, tc.id); !errors.Is(err, apperr.ErrNotFound) {
			t.Fatalf("profile of %s came back: %v", tc.email, err)
		}
		access, _, err := session.Check(env.Ctx, env.Engine.Repo, tc.id)
		if err != nil || access != session.AccessProfileMissing {
			t.Fatalf("gate for %s: %v %v", tc.email, access, err)
		}
	}
	members, err := env.Engine.ListMembers(env.Ctx, admin.ID, engine.MemberFilter{Status: "pending"})
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(members) != 0 {
		t.Fatalf("pending queue not empty: %+v", members)
	}
}

func TestChangeRoleSameRoleWritesNothing(t *testing.T) {
	env := newTestEnv(t)
	admin := env.member(t, "admin", "Ada", domain.RoleAdmin, true)
	dev := env.member(t, "dev", "Dev", domain.RoleDevTeam, true)

	before := env.activityCount(t, "")
	if _, err := env.Engine.ChangeRole(env.Ctx, admin.ID, dev.ID, domain.RoleDevTeam); err != nil {
		t.Fatalf("same role: %v", err)
	}
	if after := env.activityCount(t, ""); after != before {
		t.Fatalf("same-role change wrote a record")
	}

	p, err := env.Engine.ChangeRole(env.Ctx, admin.ID, dev.ID, domain.RoleAdmin)
	if err != nil || p.Role != domain.RoleAdmin {
		t.Fatalf("promote: %v", err)
	}
	recs, _ := env.Engine.Repo.ListActivities(env.Ctx, domain.ActionRoleChange, 10)
	if len(recs) != 1 || recs[0].Details["oldRole"] != "dev-team" || recs[0].Details["newRole"] != "admin" {
		t.Fatalf("unexpected role_change records: %+v", recs)
	}

	if _, err := env.Engine.ChangeRole(env.Ctx, admin.ID, dev.ID, domain.Role("owner")); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("invalid role: %v", err)
	}
}

func TestPendingAdminCannotActAsAdmin(t *testing.T) {
	env := newTestEnv(t)
	admin := env.member(t, "admin", "Ada", domain.RoleAdmin, true)
	pending := env.member(t, "new", "New", domain.RoleDevTeam, false)
	other := env.member(t, "other", "Other", domain.RoleDevTeam, false)

	if _, err := env.Engine.ChangeRole(env.Ctx, admin.ID, pending.ID, domain.RoleAdmin); err != nil {
		t.Fatalf("promote pending: %v", err)
	}
	var forbidden auth.ForbiddenError
	if _, err := env.Engine.Approve(env.Ctx, pending.ID, pending.ID); !errors.As(err, &forbidden) {
		t.Fatalf("self-approve by pending admin: %v", err)
	}
	if _, err := env.Engine.Approve(env.Ctx, pending.ID, other.ID); !errors.Is(err, apperr.ErrAuthorization) {
		t.Fatalf("approve by pending admin: %v", err)
	}
	if err := env.Engine.Reject(env.Ctx, pending.ID, other.ID); !errors.Is(err, apperr.ErrAuthorization) {
		t.Fatalf("reject by pending admin: %v", err)
	}
	if _, err := env.Engine.ChangeRole(env.Ctx, pending.ID, other.ID, domain.RoleAdmin); !errors.Is(err, apperr.ErrAuthorization) {
		t.Fatalf("role change by pending admin: %v", err)
	}
	if err := env.Engine.DeleteMember(env.Ctx, pending.ID, other.ID); !errors.Is(err, apperr.ErrAuthorization) {
		t.Fatalf("delete by pending admin: %v", err)
	}
	got, _ := env.Engine.Repo.GetMember(env.Ctx, pending.ID)
	if got.IsApproved {
		t.Fatalf("pending admin approved themself")
	}
	if n := env.activityCount(t, domain.ActionApprove); n != 0 {
		t.Fatalf("approve records = %d", n)
	}

	if _, err := env.Engine.Approve(env.Ctx, admin.ID, pending.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := env.Engine.Approve(env.Ctx, pending.ID, other.ID); err != nil {
		t.Fatalf("approve by approved admin: %v", err)
	}
}

// Concurrent role changes race: the last write wins and each call that saw
// a different role writes its own record.
func TestConcurrentChangeRoleLastWriteWins(t *testing.T) {
	env := newTestEnv(t)
	a := env.member(t, "a", "Ada", domain.RoleAdmin, true)
	b := env.member(t, "b", "Bea", domain.RoleAdmin, true)
	dev := env.member(t, "dev", "Dev", domain.RoleDevTeam, true)

	roles := []domain.Role{domain.RoleAdmin, domain.RoleDevTeam}
	actors := []string{a.ID, b.ID}
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.Engine.ChangeRole(env.Ctx, actors[i], dev.ID, roles[i])
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			t.Fatalf("concurrent role change: %v", err)
		}
	}
	got, err := env.Engine.Repo.GetMember(env.Ctx, dev.ID)
	if err != nil {
		t.Fatalf("get member: %v", err)
	}
	if got.Role != domain.RoleAdmin && got.Role != domain.RoleDevTeam {
		t.Fatalf("final role = %q", got.Role)
	}
	if n := env.activityCount(t, domain.ActionRoleChange); n < 1 || n > 2 {
		t.Fatalf("role_change records = %d", n)
	}
}

func TestEditProfile(t *testing.T) {
	env := newTestEnv(t)
	admin := env.member(t, "admin", "Ada", domain.RoleAdmin, true)
	dev := env.member(t, "dev", "Dev", domain.RoleDevTeam, true)
	other := env.member(t, "other", "Other", domain.RoleDevTeam, true)

	name := "Devon"
	p, err := env.Engine.EditProfile(env.Ctx, dev.ID, dev.ID, engine.ProfileEdit{Name: &name})
	if err != nil || p.Name != "Devon" {
		t.Fatalf("self edit: %v", err)
	}
	if _, err := env.Engine.EditProfile(env.Ctx, other.ID, dev.ID, engine.ProfileEdit{Name: &name}); !errors.Is(err, apperr.ErrAuthorization) {
		t.Fatalf("edit by other member: %v", err)
	}
	role := domain.RoleAdmin
	if _, err := env.Engine.EditProfile(env.Ctx, dev.ID, dev.ID, engine.ProfileEdit{Role: &role}); !errors.Is(err, apperr.ErrAuthorization) {
		t.Fatalf("self promotion: %v", err)
	}
	if p, err = env.Engine.EditProfile(env.Ctx, admin.ID, dev.ID, engine.ProfileEdit{Role: &role}); err != nil || p.Role != domain.RoleAdmin {
		t.Fatalf("admin role edit: %v", err)
	}
	bad := "1st May"
	if _, err := env.Engine.EditProfile(env.Ctx, dev.ID, dev.ID, engine.ProfileEdit{DOB: &bad}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("bad dob: %v", err)
	}
	if n := env.activityCount(t, domain.ActionMemberEdit); n != 2 {
		t.Fatalf("member_edit records = %d", n)
	}
}

func TestDeleteMember(t *testing.T) {
	env := newTestEnv(t)
	admin := env.member(t, "admin", "Ada", domain.RoleAdmin, true)
	dev := env.member(t, "dev", "Dev", domain.RoleDevTeam, true)

	if err := env.Engine.DeleteMember(env.Ctx, dev.ID, admin.ID); !errors.Is(err, apperr.ErrAuthorization) {
		t.Fatalf("delete by dev: %v", err)
	}
	if err := env.Engine.DeleteMember(env.Ctx, admin.ID, dev.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := env.Engine.DeleteMember(env.Ctx, admin.ID, dev.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("repeat delete: %v", err)
	}
}

func TestListMembersFilters(t *testing.T) {
	env := newTestEnv(t)
	admin := env.member(t, "admin", "Ada Admin", domain.RoleAdmin, true)
	env.member(t, "bo", "Bo", domain.RoleDevTeam, true)
	env.member(t, "cy", "Cy", domain.RoleDevTeam, false)

	all, err := env.Engine.ListMembers(env.Ctx, admin.ID, engine.MemberFilter{})
	if err != nil || len(all) != 3 {
		t.Fatalf("all members: %d, %v", len(all), err)
	}
	pendingDevs, _ := env.Engine.ListMembers(env.Ctx, admin.ID, engine.MemberFilter{Role: "dev-team", Status: "pending"})
	if len(pendingDevs) != 1 || pendingDevs[0].ID != "cy" {
		t.Fatalf("pending devs: %+v", pendingDevs)
	}
	found, _ := env.Engine.ListMembers(env.Ctx, admin.ID, engine.MemberFilter{Search: "BO@UNI"})
	if len(found) != 1 || found[0].ID != "bo" {
		t.Fatalf("search: %+v", found)
	}
	if _, err := env.Engine.ListMembers(env.Ctx, admin.ID, engine.MemberFilter{Status: "banned"}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("bad status filter: %v", err)
	}
	if _, err := env.Engine.ListMembers(env.Ctx, "cy", engine.MemberFilter{}); !errors.Is(err, apperr.ErrAuthorization) {
		t.Fatalf("pending member listing: %v", err)
	}

	stats, err := env.Engine.MemberStats(env.Ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats != (domain.MemberStats{Total: 3, Approved: 2, Pending: 1, Admins: 1}) {
		t.Fatalf("stats: %+v", stats)
	}
}

func TestBootstrap(t *testing.T) {
	env := newTestEnv(t)
	env.member(t, "first", "First", domain.RoleDevTeam, false)
	p, err := env.Engine.Bootstrap(env.Ctx, "FIRST@uni.edu")
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if !p.IsApproved || p.Role != domain.RoleAdmin {
		t.Fatalf("not promoted: %+v", p)
	}
	if _, err := env.Engine.Bootstrap(env.Ctx, "nobody@uni.edu"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("unknown email: %v", err)
	}
}

func TestTaskScenario(t *testing.T) {
	env := newTestEnv(t)
	lead := env.member(t, "lead", "Lead", domain.RoleAdmin, true)
	p := env.member(t, "p", "Pat", domain.RoleDevTeam, true)
	other := env.member(t, "q", "Quinn", domain.RoleDevTeam, true)

	task, err := env.Engine.CreateTask(env.Ctx, lead.ID, engine.TaskCreateOptions{Title: "Fix bug", AssigneeID: p.ID})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if task.Status != domain.TaskPending || task.AssignedTo != p.ID || task.Priority != domain.PriorityMedium {
		t.Fatalf("unexpected task: %+v", task)
	}
	if task.AssignedToName != "Pat" || task.AssignedByName != "Lead" {
		t.Fatalf("names not copied: %+v", task)
	}

	task, err = env.Engine.ChangeTaskStatus(env.Ctx, p.ID, task.ID, domain.TaskCompleted)
	if err != nil || task.Status != domain.TaskCompleted {
		t.Fatalf("pending -> completed: %v", err)
	}
	if _, err := env.Engine.ChangeTaskStatus(env.Ctx, other.ID, task.ID, domain.TaskInProgress); !errors.Is(err, apperr.ErrAuthorization) {
		t.Fatalf("status change by non-assignee: %v", err)
	}
	if _, err := env.Engine.ChangeTaskStatus(env.Ctx, lead.ID, task.ID, domain.TaskInProgress); !errors.Is(err, apperr.ErrAuthorization) {
		t.Fatalf("status change by creator: %v", err)
	}
	got, _ := env.Engine.Repo.GetTask(env.Ctx, task.ID)
	if got.Status != domain.TaskCompleted {
		t.Fatalf("status changed by non-assignee: %s", got.Status)
	}
	recs, _ := env.Engine.Repo.ListActivities(env.Ctx, domain.ActionTaskStatus, 10)
	if len(recs) != 1 || recs[0].Details["from"] != "pending" || recs[0].Details["to"] != "completed" {
		t.Fatalf("task_status records: %+v", recs)
	}
}

func TestCreateTaskValidation(t *testing.T) {
	env := newTestEnv(t)
	lead := env.member(t, "lead", "Lead", domain.RoleAdmin, true)
	pending := env.member(t, "new", "New", domain.RoleDevTeam, false)

	cases := []engine.TaskCreateOptions{
		{Title: "", AssigneeID: lead.ID},
		{Title: "x", AssigneeID: ""},
		{Title: "x", AssigneeID: "ghost"},
		{Title: "x", AssigneeID: pending.ID},
		{Title: "x", AssigneeID: lead.ID, Priority: "urgent"},
		{Title: "x", AssigneeID: lead.ID, DueDate: "tomorrow"},
	}
	for _, c := range cases {
		if _, err := env.Engine.CreateTask(env.Ctx, lead.ID, c); !errors.Is(err, apperr.ErrValidation) {
			t.Fatalf("%+v: expected validation error, got %v", c, err)
		}
	}
	if _, err := env.Engine.CreateTask(env.Ctx, pending.ID, engine.TaskCreateOptions{Title: "x", AssigneeID: lead.ID}); !errors.Is(err, apperr.ErrAuthorization) {
		t.Fatalf("pending creator: %v", err)
	}
}

func TestTaskStatusTransitions(t *testing.T) {
	env := newTestEnv(t)
	lead := env.member(t, "lead", "Lead", domain.RoleAdmin, true)
	dev := env.member(t, "dev", "Dev", domain.RoleDevTeam, true)
	task, err := env.Engine.CreateTask(env.Ctx, lead.ID, engine.TaskCreateOptions{Title: "Do work", AssigneeID: dev.ID})
	if err != nil {
		t.Fatal(err)
	}
	// default tracker follows the observed portal: completed may reopen to in-progress
	if task, err = env.Engine.ChangeTaskStatus(env.Ctx, dev.ID, task.ID, domain.TaskInProgress); err != nil {
		t.Fatalf("to in-progress: %v", err)
	}
	if task, err = env.Engine.ChangeTaskStatus(env.Ctx, dev.ID, task.ID, domain.TaskCompleted); err != nil {
		t.Fatalf("to completed: %v", err)
	}
	if _, err = env.Engine.ChangeTaskStatus(env.Ctx, dev.ID, task.ID, domain.TaskInProgress); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if _, err = env.Engine.ChangeTaskStatus(env.Ctx, dev.ID, task.ID, domain.TaskPending); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("back to pending: %v", err)
	}
	if _, err = env.Engine.ChangeTaskStatus(env.Ctx, dev.ID, task.ID, domain.TaskStatus("blocked")); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("unknown status: %v", err)
	}

	strict := env.Engine
	strict.Options.StrictTaskStatus = true
	task, err = strict.ChangeTaskStatus(env.Ctx, dev.ID, task.ID, domain.TaskCompleted)
	if err != nil {
		t.Fatalf("strict in-progress -> completed: %v", err)
	}
	if _, err = strict.ChangeTaskStatus(env.Ctx, dev.ID, task.ID, domain.TaskInProgress); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("strict reopen: %v", err)
	}
}

func TestEditAndDeleteTaskByCreatorOnly(t *testing.T) {
	env := newTestEnv(t)
	lead := env.member(t, "lead", "Lead", domain.RoleAdmin, true)
	dev := env.member(t, "dev", "Dev", domain.RoleDevTeam, true)
	task, err := env.Engine.CreateTask(env.Ctx, lead.ID, engine.TaskCreateOptions{Title: "Draft", AssigneeID: dev.ID, DueDate: "2024-02-01"})
	if err != nil {
		t.Fatal(err)
	}

	title := "Final"
	if _, err := env.Engine.EditTask(env.Ctx, dev.ID, task.ID, engine.TaskEdit{Title: &title}); !errors.Is(err, apperr.ErrAuthorization) {
		t.Fatalf("edit by assignee: %v", err)
	}
	high := domain.PriorityHigh
	noDue := ""
	task, err = env.Engine.EditTask(env.Ctx, lead.ID, task.ID, engine.TaskEdit{Title: &title, Priority: &high, DueDate: &noDue})
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if task.Title != "Final" || task.Priority != domain.PriorityHigh || task.DueDate != nil {
		t.Fatalf("edit not applied: %+v", task)
	}
	if err := env.Engine.DeleteTask(env.Ctx, dev.ID, task.ID); !errors.Is(err, apperr.ErrAuthorization) {
		t.Fatalf("delete by assignee: %v", err)
	}
	if err := env.Engine.DeleteTask(env.Ctx, lead.ID, task.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := env.Engine.Repo.GetTask(env.Ctx, task.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("task still present: %v", err)
	}
}

func TestListTasksFilters(t *testing.T) {
	env := newTestEnv(t)
	lead := env.member(t, "lead", "Lead", domain.RoleAdmin, true)
	dev := env.member(t, "dev", "Dev", domain.RoleDevTeam, true)
	for _, who := range []string{lead.ID, dev.ID, dev.ID} {
		if _, err := env.Engine.CreateTask(env.Ctx, lead.ID, engine.TaskCreateOptions{Title: "t-" + who, AssigneeID: who}); err != nil {
			t.Fatal(err)
		}
	}
	mine, _ := env.Engine.ListTasks(env.Ctx, dev.ID, engine.TaskFilter{Assignee: "mine"})
	if len(mine) != 2 {
		t.Fatalf("mine = %d", len(mine))
	}
	if _, err := env.Engine.ChangeTaskStatus(env.Ctx, dev.ID, mine[0].ID, domain.TaskInProgress); err != nil {
		t.Fatal(err)
	}
	both, _ := env.Engine.ListTasks(env.Ctx, lead.ID, engine.TaskFilter{Status: "in-progress", Assignee: dev.ID})
	if len(both) != 1 || both[0].ID != mine[0].ID {
		t.Fatalf("combined filter: %+v", both)
	}
	all, _ := env.Engine.ListTasks(env.Ctx, lead.ID, engine.TaskFilter{Status: "all", Assignee: "all"})
	if len(all) != 3 {
		t.Fatalf("all = %d", len(all))
	}
	if all[0].CreatedAt < all[2].CreatedAt {
		t.Fatalf("tasks not newest first")
	}
}

func TestSubDomainsAndDashboard(t *testing.T) {
	env := newTestEnv(t)
	admin := env.member(t, "admin", "Ada", domain.RoleAdmin, true)
	env.member(t, "new", "New", domain.RoleDevTeam, false)

	s, err := env.Engine.AddSubDomain(env.Ctx, admin.ID, engine.SubDomainOptions{Name: "Portal", URL: "https://portal.uni.edu", Type: domain.SubDomainAPI})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if s.Status != domain.SubDomainLive {
		t.Fatalf("default status: %s", s.Status)
	}
	if _, err := env.Engine.AddSubDomain(env.Ctx, admin.ID, engine.SubDomainOptions{Name: "Bad", URL: "not a url"}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("bad url: %v", err)
	}
	if _, err := env.Engine.AddSubDomain(env.Ctx, "new", engine.SubDomainOptions{Name: "X", URL: "https://x.uni.edu"}); !errors.Is(err, apperr.ErrAuthorization) {
		t.Fatalf("pending member add: %v", err)
	}
	if _, err := env.Engine.CreateTask(env.Ctx, admin.ID, engine.TaskCreateOptions{Title: "Ship", AssigneeID: admin.ID}); err != nil {
		t.Fatal(err)
	}

	d, err := env.Engine.Dashboard(env.Ctx, admin.ID)
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if d.Members.Total != 2 || d.SubDomains != 1 || d.OpenTasks != 1 || d.MyOpenTasks != 1 {
		t.Fatalf("dashboard: %+v", d)
	}
	if len(d.RecentActivity) != 2 || d.RecentActivity[0].Action != domain.ActionTaskCreate {
		t.Fatalf("recent activity: %+v", d.RecentActivity)
	}

	if err := env.Engine.DeleteSubDomain(env.Ctx, admin.ID, s.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := env.Engine.DeleteSubDomain(env.Ctx, admin.ID, s.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("repeat delete: %v", err)
	}
	recs, err := env.Engine.Activities(env.Ctx, admin.ID, domain.ActionSubDomainDelete, 0)
	if err != nil || len(recs) != 1 {
		t.Fatalf("subdomain_delete records: %d, %v", len(recs), err)
	}
}
