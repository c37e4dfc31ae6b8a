// Package session holds who is signed in and their member profile, and
// notifies subscribers whenever either changes.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"teamdesk/internal/apperr"
	"teamdesk/internal/audit"
	"teamdesk/internal/credential"
	"teamdesk/internal/domain"
	"teamdesk/internal/logging"
	"teamdesk/internal/metrics"
	"teamdesk/internal/repo"
	"teamdesk/internal/validation"
)

type State struct {
	Identity *domain.Identity      `json:"identity"`
	Profile  *domain.MemberProfile `json:"profile"`
	Loading  bool                  `json:"loading"`
}

func (s State) Stage() domain.Stage {
	return domain.StageOf(s.Identity, s.Profile)
}

func (s State) clone() State {
	out := State{Loading: s.Loading}
	if s.Identity != nil {
		id := *s.Identity
		out.Identity = &id
	}
	if s.Profile != nil {
		p := *s.Profile
		out.Profile = &p
	}
	return out
}

type Options struct {
	Provider credential.Provider
	Repo     repo.Repo
	Audit    *audit.Writer
	Logger   logging.Logger
	Metrics  *metrics.Metrics
	Now      func() time.Time
	// IsBootstrapAdmin marks e-mails whose profiles start approved with the admin role.
	IsBootstrapAdmin func(email string) bool
}

// Container is the session state for one signed-in client. Listeners run
// in order on the goroutine that caused the change and must not call back
// into the Container synchronously.
type Container struct {
	opts Options

	notify sync.Mutex

	mu          sync.Mutex
	state       State
	gen         uint64
	listeners   map[int]func(State)
	nextID      int
	inflight    int
	idle        chan struct{}
	unsubscribe func()
}

// New creates a container and subscribes it to the provider. The state is
// Loading until the provider reports the first identity.
func New(opts Options) *Container {
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	idle := make(chan struct{})
	close(idle)
	c := &Container{
		opts:      opts,
		state:     State{Loading: true},
		listeners: map[int]func(State){},
		idle:      idle,
	}
	c.unsubscribe = opts.Provider.OnIdentityChange(c.onIdentityChange)
	return c
}

// Close detaches the container from its provider.
func (c *Container) Close() {
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
}

func (c *Container) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// Subscribe calls fn with the current state and after every change.
func (c *Container) Subscribe(fn func(State)) (unsubscribe func()) {
	c.notify.Lock()
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	snap := c.state.clone()
	c.mu.Unlock()
	fn(snap)
	c.notify.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.listeners, id)
			c.mu.Unlock()
		})
	}
}

// update applies fn under the lock and, when it reports a change, hands the
// new state to every listener in subscription order.
func (c *Container) update(fn func(s *State) bool) {
	c.notify.Lock()
	defer c.notify.Unlock()
	c.mu.Lock()
	changed := fn(&c.state)
	snap := c.state.clone()
	var fns []func(State)
	if changed {
		for i := 0; i < c.nextID; i++ {
			if l, ok := c.listeners[i]; ok {
				fns = append(fns, l)
			}
		}
	}
	c.mu.Unlock()
	for _, l := range fns {
		l(snap)
	}
}

func (c *Container) onIdentityChange(identity *domain.Identity) {
	var gen uint64
	c.update(func(s *State) bool {
		c.gen++
		gen = c.gen
		s.Identity = identity
		s.Profile = nil
		s.Loading = identity != nil
		return true
	})
	if identity == nil {
		return
	}
	c.begin()
	go func() {
		defer c.end()
		c.resolveProfile(context.Background(), gen, identity.ID)
	}()
}

// resolveProfile looks up the profile for identityID and applies it only if
// no newer identity change happened meanwhile.
func (c *Container) resolveProfile(ctx context.Context, gen uint64, identityID string) {
	p, err := c.opts.Repo.GetMember(ctx, identityID)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		c.opts.Logger.Warnw("profile lookup failed", "identity_id", identityID, "error", err)
	}
	c.update(func(s *State) bool {
		if c.gen != gen || s.Identity == nil || s.Identity.ID != identityID {
			c.opts.Logger.Debugw("discarding stale profile lookup", "identity_id", identityID)
			return false
		}
		s.Loading = false
		if err != nil {
			s.Profile = nil
		} else {
			s.Profile = &p
		}
		return true
	})
}

func (c *Container) begin() {
	c.mu.Lock()
	if c.inflight == 0 {
		c.idle = make(chan struct{})
	}
	c.inflight++
	c.mu.Unlock()
}

func (c *Container) end() {
	c.mu.Lock()
	c.inflight--
	if c.inflight == 0 {
		close(c.idle)
	}
	c.mu.Unlock()
}

// Wait blocks until no profile lookup is outstanding.
func (c *Container) Wait(ctx context.Context) error {
	for {
		c.mu.Lock()
		if c.inflight == 0 {
			c.mu.Unlock()
			return nil
		}
		ch := c.idle
		c.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Refresh re-reads the profile of the signed-in identity from the store.
func (c *Container) Refresh(ctx context.Context) (State, error) {
	c.mu.Lock()
	gen := c.gen
	var identityID string
	if c.state.Identity != nil {
		identityID = c.state.Identity.ID
	}
	c.mu.Unlock()
	if identityID == "" {
		return c.State(), nil
	}
	p, err := c.opts.Repo.GetMember(ctx, identityID)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return c.State(), err
	}
	c.update(func(s *State) bool {
		if c.gen != gen || s.Identity == nil || s.Identity.ID != identityID {
			return false
		}
		s.Loading = false
		if err != nil {
			s.Profile = nil
		} else {
			s.Profile = &p
		}
		return true
	})
	return c.State(), nil
}

// SignIn authenticates, refuses unverified identities and records a login.
// A verified identity without a profile gets a default one.
func (c *Container) SignIn(ctx context.Context, email, password string) (State, error) {
	identity, err := c.opts.Provider.SignIn(ctx, email, password)
	if err != nil {
		c.opts.Metrics.ObserveLogin(apperr.KindOf(err).String())
		return c.State(), err
	}
	if !identity.Verified {
		if err := c.opts.Provider.SignOut(ctx); err != nil {
			c.opts.Logger.Warnw("sign out of unverified identity failed", "identity_id", identity.ID, "error", err)
		}
		c.opts.Metrics.ObserveLogin(apperr.KindEmailNotVerified.String())
		return c.State(), apperr.New(apperr.KindEmailNotVerified, "sign in", "")
	}
	if err := c.Wait(ctx); err != nil {
		return c.State(), err
	}
	st := c.State()
	if st.Identity != nil && st.Identity.ID == identity.ID && st.Profile == nil {
		if err := c.repairProfile(ctx, identity); err != nil {
			return st, err
		}
		if st, err = c.Refresh(ctx); err != nil {
			return st, err
		}
	}
	c.opts.Metrics.ObserveLogin("ok")
	name := identity.DisplayName
	if st.Profile != nil {
		name = st.Profile.Name
	}
	if c.opts.Audit != nil {
		c.opts.Audit.Record(ctx, identity.ID, name, domain.ActionLogin, audit.Details{"email": identity.Email})
	}
	return st, nil
}

// repairProfile writes a default pending profile for an identity whose
// signup profile write was lost. It never promotes: bootstrap admins come
// back as pending members like everyone else.
func (c *Container) repairProfile(ctx context.Context, identity domain.Identity) error {
	name := identity.DisplayName
	if name == "" {
		name = strings.SplitN(identity.Email, "@", 2)[0]
	}
	p := c.newProfile(identity, SignupInput{Name: name})
	p.Role = domain.RoleDevTeam
	p.IsApproved = false
	err := c.opts.Repo.InsertMember(ctx, p)
	if err != nil {
		if _, gerr := c.opts.Repo.GetMember(ctx, identity.ID); gerr == nil {
			return nil
		}
		return err
	}
	c.opts.Logger.Infow("recreated missing member profile", "identity_id", identity.ID)
	return nil
}

func (c *Container) Logout(ctx context.Context) error {
	if err := c.opts.Provider.SignOut(ctx); err != nil {
		return apperr.Wrap(apperr.KindAuthProvider, "logout", err)
	}
	return nil
}

type SignupInput struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required"`
	Name        string `json:"name" validate:"notblank,max=100"`
	DOB         string `json:"dob" validate:"omitempty,isodate"`
	Gender      string `json:"gender" validate:"omitempty,oneof=male female other prefer-not-to-say"`
	Designation string `json:"designation" validate:"max=100"`
}

func (c *Container) newProfile(identity domain.Identity, in SignupInput) domain.MemberProfile {
	p := domain.MemberProfile{
		ID:          identity.ID,
		Name:        strings.TrimSpace(in.Name),
		Email:       identity.Email,
		DOB:         in.DOB,
		Gender:      in.Gender,
		Designation: strings.TrimSpace(in.Designation),
		Role:        domain.RoleDevTeam,
		IsApproved:  false,
		CreatedAt:   domain.FormatTime(c.opts.Now()),
	}
	if c.opts.IsBootstrapAdmin != nil && c.opts.IsBootstrapAdmin(identity.Email) {
		p.Role = domain.RoleAdmin
		p.IsApproved = true
	}
	return p
}

// Signup creates an identity and its pending member profile. When the
// profile cannot be written the identity is deleted again.
func (c *Container) Signup(ctx context.Context, in SignupInput) (domain.Identity, domain.MemberProfile, error) {
	const op = "signup"
	if err := validation.Check(op, in); err != nil {
		return domain.Identity{}, domain.MemberProfile{}, err
	}
	identity, err := c.opts.Provider.SignUp(ctx, in.Email, in.Password, strings.TrimSpace(in.Name))
	if err != nil {
		return domain.Identity{}, domain.MemberProfile{}, err
	}
	profile := c.newProfile(identity, in)
	if err := c.opts.Repo.InsertMember(ctx, profile); err != nil {
		if derr := c.opts.Provider.DeleteIdentity(ctx, identity.ID); derr != nil {
			c.opts.Logger.Errorw("orphaned identity after failed profile write", "identity_id", identity.ID, "error", derr)
		}
		return identity, domain.MemberProfile{}, apperr.Persistence(op, err)
	}
	// The lookup fired by the sign-up may have run before the write.
	if err := c.Wait(ctx); err == nil {
		_, _ = c.Refresh(ctx)
	}
	return identity, profile, nil
}

func (c *Container) SendVerificationEmail(ctx context.Context, identity domain.Identity) error {
	return c.opts.Provider.SendVerification(ctx, identity)
}
