package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"teamdesk/internal/apperr"
	"teamdesk/internal/audit"
	"teamdesk/internal/credential"
	"teamdesk/internal/db"
	"teamdesk/internal/docstore"
	"teamdesk/internal/docstore/memstore"
	"teamdesk/internal/domain"
	"teamdesk/internal/mailer"
	"teamdesk/internal/migrate"
	"teamdesk/internal/repo"
)

var frozen = time.Date(2025, 4, 2, 8, 30, 0, 0, time.UTC)

type testEnv struct {
	svc    *credential.Service
	client *credential.Client
	repo   repo.Repo
	audit  *audit.Writer
	mail   *mailer.Recorder
	c      *Container
}

func newTestEnv(t *testing.T, wrap func(docstore.Store) docstore.Store) *testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, migrate.Migrate(conn))

	var store docstore.Store
	store, err = memstore.New()
	require.NoError(t, err)
	if wrap != nil {
		store = wrap(store)
	}
	r := repo.Repo{Store: store}
	rec := &mailer.Recorder{}
	svc := &credential.Service{
		DB:     conn,
		Mailer: rec,
		Hasher: credential.BcryptHasher{Cost: bcrypt.MinCost},
		Config: credential.Config{
			Secret:            []byte("session-secret"),
			VerificationTTL:   time.Hour,
			PasswordMinLength: 6,
			MaxFailedLogins:   5,
			Lockout:           time.Minute,
			VerifyURL:         "http://localhost/v0/auth/verify",
		},
		Now: func() time.Time { return frozen },
	}
	w := &audit.Writer{Repo: r, Now: func() time.Time { return frozen }}
	client := svc.NewClient()
	c := New(Options{
		Provider: client,
		Repo:     r,
		Audit:    w,
		Now:      func() time.Time { return frozen },
		IsBootstrapAdmin: func(email string) bool {
			return strings.EqualFold(email, "root@uni.edu")
		},
	})
	t.Cleanup(c.Close)
	return &testEnv{svc: svc, client: client, repo: r, audit: w, mail: rec, c: c}
}

// verified registers an identity with a pending profile and marks it verified.
func (e *testEnv) verified(t *testing.T, email, name string) domain.Identity {
	t.Helper()
	ctx := context.Background()
	id, _, err := e.c.Signup(ctx, SignupInput{Email: email, Password: "secret1", Name: name})
	require.NoError(t, err)
	require.NoError(t, e.c.Logout(ctx))
	require.NoError(t, e.svc.MarkVerified(ctx, id.ID))
	return id
}

type recorder struct {
	mu     sync.Mutex
	states []State
}

func (r *recorder) add(s State) {
	r.mu.Lock()
	r.states = append(r.states, s)
	r.mu.Unlock()
}

func (r *recorder) all() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

func TestInitialStateResolvesToSignedOut(t *testing.T) {
	env := newTestEnv(t, nil)
	st := env.c.State()
	assert.Nil(t, st.Identity)
	assert.Nil(t, st.Profile)
	assert.False(t, st.Loading)
	assert.Equal(t, domain.StageUnregistered, st.Stage())
}

func TestSignupCreatesPendingProfile(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	id, p, err := env.c.Signup(ctx, SignupInput{
		Email: "a@x.com", Password: "secret1", Name: " A ", DOB: "2001-02-03", Designation: "Student",
	})
	require.NoError(t, err)
	assert.Equal(t, id.ID, p.ID)
	assert.Equal(t, "A", p.Name)
	assert.Equal(t, domain.RoleDevTeam, p.Role)
	assert.False(t, p.IsApproved)

	stored, err := env.repo.GetMember(ctx, id.ID)
	require.NoError(t, err)
	assert.Equal(t, "2001-02-03", stored.DOB)

	st := env.c.State()
	require.NotNil(t, st.Profile)
	assert.Equal(t, domain.StagePendingVerification, st.Stage())

	_, _, err = env.c.Signup(ctx, SignupInput{Email: "A@x.com", Password: "secret1", Name: "Other"})
	assert.ErrorIs(t, err, apperr.ErrCredentialConflict)
}

func TestSignupValidation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	_, _, err := env.c.Signup(ctx, SignupInput{Email: "a@x.com", Password: "secret1", Name: "A", DOB: "02/03/2001"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, _, err = env.c.Signup(ctx, SignupInput{Email: "a@x.com", Password: "secret1", Name: "   "})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, _, err = env.c.Signup(ctx, SignupInput{Email: "a@x.com", Password: "123", Name: "A"})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = env.svc.LookupEmail(ctx, "a@x.com")
	assert.ErrorIs(t, err, apperr.ErrNotFound, "no identity is created for invalid input")
}

func TestSignupBootstrapAdmin(t *testing.T) {
	env := newTestEnv(t, nil)
	_, p, err := env.c.Signup(context.Background(), SignupInput{Email: "root@uni.edu", Password: "secret1", Name: "Root"})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, p.Role)
	assert.True(t, p.IsApproved)
}

type failingUsers struct {
	docstore.Store
}

func (f failingUsers) Create(ctx context.Context, collection string, doc docstore.Doc) (string, error) {
	if collection == docstore.Users {
		return "", errors.New("users collection unavailable")
	}
	return f.Store.Create(ctx, collection, doc)
}

func TestSignupCompensatesFailedProfileWrite(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, func(s docstore.Store) docstore.Store { return failingUsers{s} })

	_, _, err := env.c.Signup(ctx, SignupInput{Email: "a@x.com", Password: "secret1", Name: "A"})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrPersistence)

	_, err = env.svc.LookupEmail(ctx, "a@x.com")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Nil(t, env.c.State().Identity)
}

func TestSignInRejectsUnverified(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	_, _, err := env.c.Signup(ctx, SignupInput{Email: "a@x.com", Password: "secret1", Name: "A"})
	require.NoError(t, err)
	require.NoError(t, env.c.Logout(ctx))

	_, err = env.c.SignIn(ctx, "a@x.com", "secret1")
	assert.ErrorIs(t, err, apperr.ErrEmailNotVerified)
	assert.Equal(t, "Please verify your email address before logging in.", apperr.UserMessage(err))
	assert.Nil(t, env.c.State().Identity)
	assert.Nil(t, env.client.Current())
}

func TestSignInLoadsProfileAndRecordsLogin(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	id := env.verified(t, "a@x.com", "A")

	st, err := env.c.SignIn(ctx, "a@x.com", "secret1")
	require.NoError(t, err)
	require.NotNil(t, st.Profile)
	assert.Equal(t, id.ID, st.Profile.ID)
	assert.False(t, st.Loading)
	assert.Equal(t, domain.StagePendingApproval, st.Stage())

	recs, err := env.audit.Recent(ctx, domain.ActionLogin, 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "A", recs[0].ActorName)
	assert.Equal(t, "a@x.com", recs[0].Details["email"])

	_, err = env.c.SignIn(ctx, "a@x.com", "wrong-pass")
	assert.ErrorIs(t, err, apperr.ErrInvalidCredentials)
}

func TestSignInRecreatesMissingProfile(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	id, err := env.svc.Register(ctx, "orphan@x.com", "secret1", "Orphan")
	require.NoError(t, err)
	require.NoError(t, env.svc.MarkVerified(ctx, id.ID))

	st, err := env.c.SignIn(ctx, "orphan@x.com", "secret1")
	require.NoError(t, err)
	require.NotNil(t, st.Profile)
	assert.Equal(t, "Orphan", st.Profile.Name)
	assert.Equal(t, domain.RoleDevTeam, st.Profile.Role)
	assert.False(t, st.Profile.IsApproved)
}

func TestSignInRepairNeverPromotes(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	id, err := env.svc.Register(ctx, "root@uni.edu", "secret1", "Root")
	require.NoError(t, err)
	require.NoError(t, env.svc.MarkVerified(ctx, id.ID))

	st, err := env.c.SignIn(ctx, "root@uni.edu", "secret1")
	require.NoError(t, err)
	require.NotNil(t, st.Profile)
	assert.Equal(t, domain.RoleDevTeam, st.Profile.Role)
	assert.False(t, st.Profile.IsApproved)
	assert.Equal(t, domain.StagePendingApproval, st.Stage())
}

func TestRemovedMemberStaysOut(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	id := env.verified(t, "gone@x.com", "Gone")

	// Reject and delete remove the identity and then the profile.
	require.NoError(t, env.svc.Remove(ctx, id.ID))
	require.NoError(t, env.repo.DeleteMember(ctx, id.ID))

	st, err := env.c.SignIn(ctx, "gone@x.com", "secret1")
	assert.True(t, errors.Is(err, apperr.ErrInvalidCredentials), "got %v", err)
	assert.Nil(t, st.Identity)
	_, err = env.repo.GetMember(ctx, id.ID)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	access, _, err := Check(ctx, env.repo, id.ID)
	require.NoError(t, err)
	assert.Equal(t, AccessProfileMissing, access)
}

func TestSubscribeSequence(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	id := env.verified(t, "a@x.com", "A")

	rec := &recorder{}
	unsubscribe := env.c.Subscribe(rec.add)
	_, err := env.c.SignIn(ctx, "a@x.com", "secret1")
	require.NoError(t, err)
	require.NoError(t, env.c.Logout(ctx))
	unsubscribe()
	_, err = env.c.SignIn(ctx, "a@x.com", "secret1")
	require.NoError(t, err)

	got := rec.all()
	require.Len(t, got, 4)
	assert.Nil(t, got[0].Identity)

	require.NotNil(t, got[1].Identity)
	assert.Equal(t, id.ID, got[1].Identity.ID)
	assert.Nil(t, got[1].Profile)
	assert.True(t, got[1].Loading)

	require.NotNil(t, got[2].Profile)
	assert.Equal(t, id.ID, got[2].Profile.ID)
	assert.False(t, got[2].Loading)

	assert.Nil(t, got[3].Identity)
	assert.Nil(t, got[3].Profile)
}

// blockingUsers holds profile lookups for one id until released.
type blockingUsers struct {
	docstore.Store
	id      string
	release chan struct{}
	started chan struct{}
	once    sync.Once
}

func (b *blockingUsers) Get(ctx context.Context, collection, id string) (docstore.Doc, error) {
	if collection == docstore.Users && id == b.id {
		b.once.Do(func() { close(b.started) })
		<-b.release
	}
	return b.Store.Get(ctx, collection, id)
}

func TestStaleProfileLookupIsDiscarded(t *testing.T) {
	ctx := context.Background()
	blocker := &blockingUsers{release: make(chan struct{}), started: make(chan struct{})}
	env := newTestEnv(t, func(s docstore.Store) docstore.Store {
		blocker.Store = s
		return blocker
	})
	id := env.verified(t, "a@x.com", "A")
	blocker.id = id.ID

	rec := &recorder{}
	defer env.c.Subscribe(rec.add)()

	_, err := env.client.SignIn(ctx, "a@x.com", "secret1")
	require.NoError(t, err)
	<-blocker.started
	require.NoError(t, env.client.SignOut(ctx))
	close(blocker.release)
	require.NoError(t, env.c.Wait(ctx))

	st := env.c.State()
	assert.Nil(t, st.Identity)
	assert.Nil(t, st.Profile)
	for _, s := range rec.all() {
		assert.Nil(t, s.Profile, "a superseded lookup must never be applied")
	}
}

func TestGate(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	access, err := env.c.Gate(ctx)
	require.NoError(t, err)
	assert.Equal(t, AccessSignedOut, access)

	id := env.verified(t, "a@x.com", "A")
	_, err = env.c.SignIn(ctx, "a@x.com", "secret1")
	require.NoError(t, err)

	access, err = env.c.Gate(ctx)
	require.NoError(t, err)
	assert.Equal(t, AccessPendingApproval, access)

	approved := true
	require.NoError(t, env.repo.UpdateMember(ctx, id.ID, repo.MemberUpdate{IsApproved: &approved}))
	access, err = env.c.Gate(ctx)
	require.NoError(t, err)
	assert.Equal(t, AccessGranted, access, "approval is seen without signing in again")
	assert.Equal(t, domain.StageApproved, env.c.State().Stage())

	require.NoError(t, env.repo.DeleteMember(ctx, id.ID))
	access, err = env.c.Gate(ctx)
	require.NoError(t, err)
	assert.Equal(t, AccessProfileMissing, access)
}

func TestCheck(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	access, _, err := Check(ctx, env.repo, "")
	require.NoError(t, err)
	assert.Equal(t, AccessSignedOut, access)

	access, _, err = Check(ctx, env.repo, "ghost")
	require.NoError(t, err)
	assert.Equal(t, AccessProfileMissing, access)

	id := env.verified(t, "a@x.com", "A")
	access, p, err := Check(ctx, env.repo, id.ID)
	require.NoError(t, err)
	assert.Equal(t, AccessPendingApproval, access)
	assert.Equal(t, "A", p.Name)
}

func TestSendVerificationEmail(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	id, _, err := env.c.Signup(ctx, SignupInput{Email: "a@x.com", Password: "secret1", Name: "A"})
	require.NoError(t, err)
	require.NoError(t, env.c.SendVerificationEmail(ctx, id))
	msg, ok := env.mail.Last("a@x.com")
	require.True(t, ok)
	assert.NotEmpty(t, msg.Token)

	env.mail.SetFail(errors.New("smtp down"))
	err = env.c.SendVerificationEmail(ctx, id)
	assert.ErrorIs(t, err, apperr.ErrDelivery)
}
