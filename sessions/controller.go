package sessions

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jrsteele09/flavory-client/apiclient"
	"github.com/jrsteele09/flavory-client/credentials"
	apperrors "github.com/jrsteele09/flavory-client/internal/errors"
	"github.com/jrsteele09/flavory-client/users"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
)

// IdentityProvider is the part of identity.Provider the controller drives
type IdentityProvider interface {
	Login(ctx context.Context) (*credentials.Credential, error)
	Logout(ctx context.Context) error
	Refresh(ctx context.Context, refreshToken string) (*credentials.Credential, error)
	IsTokenValid(expiresAt time.Time) bool
}

// Profiles loads and updates the signed in user's profile
type Profiles interface {
	GetCurrentUser(ctx context.Context) (*users.User, error)
	UpdateUser(ctx context.Context, id int64, req users.UpdateUserRequest) (*users.User, error)
}

// Cache is the query cache dropped whenever the session changes hands
type Cache interface {
	Clear()
}

type noCache struct{}

func (noCache) Clear() {}

const (
	flightLogin   = "login"
	flightLogout  = "logout"
	flightRefresh = "refresh"
)

// Controller owns the session state machine. Concurrent calls of the same
// transition share one run and its outcome; different transitions wait for
// the one in flight to settle.
type Controller struct {
	provider    IdentityProvider
	profiles    Profiles
	store       credentials.Store
	cache       Cache
	flights     singleflight.Group
	transitions *semaphore.Weighted

	mu      sync.RWMutex
	phase   Phase
	user    *users.User
	message string

	log     zerolog.Logger
	nowFunc func() time.Time
}

type Option func(*Controller)

// WithCache sets the query cache cleared on login and logout
func WithCache(cache Cache) Option {
	return func(c *Controller) {
		c.cache = cache
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Controller) {
		c.log = logger
	}
}

func WithNowFunc(now func() time.Time) Option {
	return func(c *Controller) {
		c.nowFunc = now
	}
}

func NewController(provider IdentityProvider, profiles Profiles, store credentials.Store, opts ...Option) *Controller {
	c := &Controller{
		provider:    provider,
		profiles:    profiles,
		store:       store,
		cache:       noCache{},
		transitions: semaphore.NewWeighted(1),
		phase:       SignedOut,
		log:         log.Logger,
		nowFunc:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Login signs the user in and loads their profile. A cancelled login leaves
// the session signed out with no error recorded; any other failure leaves it
// Failed with a displayable message. The error is returned either way.
func (c *Controller) Login(ctx context.Context) error {
	return c.coalesce(ctx, flightLogin, c.login)
}

// Logout ends the session. It waits for a pending transition, cannot be
// cancelled and never fails: remote errors are logged and local state is
// always cleared.
func (c *Controller) Logout(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	_ = c.coalesce(ctx, flightLogout, func(ctx context.Context) error {
		c.logout(ctx)
		return nil
	})
}

// RefreshToken renews the credential with its refresh token. A failed
// refresh logs the session out before the error is returned.
func (c *Controller) RefreshToken(ctx context.Context) error {
	return c.coalesce(ctx, flightRefresh, c.refresh)
}

// EnsureFresh refreshes the credential when it is inside the expiry buffer
func (c *Controller) EnsureFresh(ctx context.Context) error {
	credential := c.store.Get()
	if credential == nil {
		return fmt.Errorf("[sessions EnsureFresh] %w: not signed in", apperrors.ErrUnauthorized)
	}
	if credential.ExpiresAt.IsZero() || c.provider.IsTokenValid(credential.ExpiresAt) {
		return nil
	}
	c.log.Debug().Time("expires_at", credential.ExpiresAt).Msg("Credential close to expiry, refreshing")
	return c.RefreshToken(ctx)
}

// UpdateProfile saves the signed in user's profile and replaces the session
// copy with the server's answer
func (c *Controller) UpdateProfile(ctx context.Context, req users.UpdateUserRequest) (*users.User, error) {
	c.mu.RLock()
	phase, user := c.phase, c.user
	c.mu.RUnlock()
	if phase != SignedIn || user == nil {
		return nil, fmt.Errorf("[sessions UpdateProfile] %w: not signed in", apperrors.ErrUnauthorized)
	}

	updated, err := c.profiles.UpdateUser(ctx, user.ID, req)
	if err != nil {
		return nil, fmt.Errorf("[sessions UpdateProfile] %w", err)
	}

	c.mu.Lock()
	if c.phase == SignedIn && c.user != nil && c.user.ID == updated.ID {
		c.user = updated
	}
	c.mu.Unlock()
	return copyUser(updated), nil
}

// HandleUnauthorized is called by the HTTP client after a 401 cleared the
// credential. The session drops to signed out unless a newer credential has
// already replaced the rejected one.
func (c *Controller) HandleUnauthorized() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store.Get() != nil {
		return
	}
	c.cache.Clear()
	if c.phase == SignedIn {
		c.phase = SignedOut
		c.user = nil
		c.log.Info().Msg("Session rejected by the API, signed out")
	}
}

// State returns a snapshot of the session. A signed in session whose
// credential is gone or expired reads as signed out.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()

	switch c.phase {
	case SignedIn:
		credential := c.store.Get()
		if credential == nil || credential.Expired(c.nowFunc()) || c.user == nil {
			return State{Phase: SignedOut}
		}
		return State{Phase: SignedIn, User: copyUser(c.user), Credential: credential}
	case Failed:
		return State{Phase: Failed, Message: c.message}
	default:
		return State{Phase: c.phase}
	}
}

func (c *Controller) IsAuthenticated() bool {
	return c.State().IsAuthenticated()
}

// User returns the signed in user or nil
func (c *Controller) User() *users.User {
	return c.State().User
}

// coalesce runs fn once per key at a time. Callers that join a run in flight
// share its outcome, including the first caller's cancellation.
func (c *Controller) coalesce(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	results := c.flights.DoChan(key, func() (any, error) {
		if err := c.transitions.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer c.transitions.Release(1)
		return nil, fn(ctx)
	})

	select {
	case res := <-results:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) login(ctx context.Context) error {
	c.setState(Authenticating, nil, "")

	credential, err := c.provider.Login(ctx)
	if err != nil {
		return c.loginFailed(err)
	}
	if credential == nil || credential.Expired(c.nowFunc()) {
		return c.loginFailed(fmt.Errorf("%w: the identity provider returned an expired credential", apperrors.ErrAuthFailure))
	}

	c.cache.Clear()
	user, err := c.profiles.GetCurrentUser(ctx)
	if err != nil {
		return c.loginFailed(err)
	}

	// A 401 or the clock may have ended the credential while the profile loaded
	c.mu.Lock()
	if current := c.store.Get(); current == nil || current.Expired(c.nowFunc()) {
		c.mu.Unlock()
		return c.loginFailed(fmt.Errorf("%w: the credential expired during sign in", apperrors.ErrAuthFailure))
	}
	c.phase, c.user, c.message = SignedIn, user, ""
	c.mu.Unlock()
	c.log.Info().Int64("user_id", user.ID).Str("role", string(user.Role)).Msg("Signed in")
	return nil
}

func (c *Controller) loginFailed(err error) error {
	c.store.Clear()
	c.cache.Clear()

	if errors.Is(err, apperrors.ErrLoginCancelled) || errors.Is(err, context.Canceled) {
		c.setState(SignedOut, nil, "")
		c.log.Info().Msg("Login cancelled")
		return fmt.Errorf("[sessions Login] %w", err)
	}

	c.setState(Failed, nil, apiclient.ErrorMessage(err))
	c.log.Warn().Err(err).Msg("Login failed")
	return fmt.Errorf("[sessions Login] %w", err)
}

func (c *Controller) logout(ctx context.Context) {
	if err := c.provider.Logout(ctx); err != nil {
		c.log.Warn().Err(err).Msg("Remote logout failed, local session cleared")
	}
	c.store.Clear()
	c.cache.Clear()
	c.setState(SignedOut, nil, "")
}

func (c *Controller) refresh(ctx context.Context) error {
	credential := c.store.Get()
	if !credential.HasRefreshToken() {
		return fmt.Errorf("[sessions RefreshToken] %w", apperrors.ErrNoRefreshToken)
	}

	if _, err := c.provider.Refresh(ctx, credential.RefreshToken); err != nil {
		c.log.Warn().Err(err).Msg("Token refresh failed, signing out")
		c.logout(context.WithoutCancel(ctx))
		return fmt.Errorf("[sessions RefreshToken] %w", err)
	}

	// The session may have been rejected by the API while the refresh ran
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != SignedIn {
		c.store.Clear()
		c.cache.Clear()
		c.log.Info().Msg("Session ended during refresh, dropping the new credential")
		return fmt.Errorf("[sessions RefreshToken] %w: session ended during refresh", apperrors.ErrUnauthorized)
	}
	return nil
}

func (c *Controller) setState(phase Phase, user *users.User, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.phase = phase
	c.user = user
	c.message = message
}

func copyUser(u *users.User) *users.User {
	if u == nil {
		return nil
	}
	cp := *u
	cp.Addresses = append([]users.Address(nil), u.Addresses...)
	return &cp
}
