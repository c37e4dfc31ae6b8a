package credential

import (
	"context"
	"sync"

	"teamdesk/internal/apperr"
	"teamdesk/internal/domain"
)

// Provider is the identity capability a session builds on. Implementations
// hold at most one signed-in identity and notify listeners on every change.
type Provider interface {
	SignIn(ctx context.Context, email, password string) (domain.Identity, error)
	SignUp(ctx context.Context, email, password, displayName string) (domain.Identity, error)
	SignOut(ctx context.Context) error
	SendVerification(ctx context.Context, identity domain.Identity) error
	DeleteIdentity(ctx context.Context, id string) error
	Current() *domain.Identity
	// OnIdentityChange calls fn with the current identity right away and
	// again after each change, in order. The returned func unsubscribes.
	OnIdentityChange(fn func(*domain.Identity)) (unsubscribe func())
}

// Client is a per-session Provider backed by a Service.
type Client struct {
	svc *Service

	// notify serializes state changes with their notifications so that
	// listeners observe changes in the order they happened.
	notify sync.Mutex

	mu        sync.RWMutex
	current   *domain.Identity
	listeners map[int]func(*domain.Identity)
	nextID    int
}

func (s *Service) NewClient() *Client {
	return &Client{svc: s, listeners: map[int]func(*domain.Identity){}}
}

func (c *Client) Current() *domain.Identity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current == nil {
		return nil
	}
	cp := *c.current
	return &cp
}

func (c *Client) OnIdentityChange(fn func(*domain.Identity)) func() {
	c.notify.Lock()
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()
	fn(c.Current())
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

// set must be called with c.notify held.
func (c *Client) set(identity *domain.Identity) {
	c.mu.Lock()
	c.current = identity
	fns := make([]func(*domain.Identity), 0, len(c.listeners))
	for i := 0; i < c.nextID; i++ {
		if fn, ok := c.listeners[i]; ok {
			fns = append(fns, fn)
		}
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn(c.Current())
	}
}

func (c *Client) SignIn(ctx context.Context, email, password string) (domain.Identity, error) {
	identity, err := c.svc.Authenticate(ctx, email, password)
	if err != nil {
		return domain.Identity{}, err
	}
	c.notify.Lock()
	defer c.notify.Unlock()
	c.set(&identity)
	return identity, nil
}

// SignUp registers a new identity and signs it in.
func (c *Client) SignUp(ctx context.Context, email, password, displayName string) (domain.Identity, error) {
	identity, err := c.svc.Register(ctx, email, password, displayName)
	if err != nil {
		return domain.Identity{}, err
	}
	c.notify.Lock()
	defer c.notify.Unlock()
	c.set(&identity)
	return identity, nil
}

func (c *Client) SignOut(_ context.Context) error {
	c.notify.Lock()
	defer c.notify.Unlock()
	if c.Current() == nil {
		return nil
	}
	c.set(nil)
	return nil
}

func (c *Client) SendVerification(ctx context.Context, identity domain.Identity) error {
	if identity.ID == "" {
		return apperr.New(apperr.KindUnauthenticated, "send verification", "no identity")
	}
	return c.svc.IssueVerification(ctx, identity)
}

// DeleteIdentity removes the identity and signs it out if it is current.
func (c *Client) DeleteIdentity(ctx context.Context, id string) error {
	if err := c.svc.Remove(ctx, id); err != nil {
		return err
	}
	c.notify.Lock()
	defer c.notify.Unlock()
	if cur := c.Current(); cur != nil && cur.ID == id {
		c.set(nil)
	}
	return nil
}

// Reload refreshes the current identity from the service, picking up a
// verification that happened elsewhere.
func (c *Client) Reload(ctx context.Context) (*domain.Identity, error) {
	cur := c.Current()
	if cur == nil {
		return nil, nil
	}
	fresh, err := c.svc.Lookup(ctx, cur.ID)
	if err != nil {
		return nil, err
	}
	c.notify.Lock()
	defer c.notify.Unlock()
	if now := c.Current(); now != nil && now.ID == fresh.ID && *now != fresh {
		c.set(&fresh)
	}
	return &fresh, nil
}
