package identityfake

import (
	"context"
	"sync"
	"time"

	"github.com/jrsteele09/flavory-client/credentials"
)

// Provider is a scriptable identity provider. Like the real one it writes
// successful logins and refreshes to Store and clears Store on logout.
type Provider struct {
	Store credentials.Store

	LoginFunc   func(ctx context.Context) (*credentials.Credential, error)
	RefreshFunc func(ctx context.Context, refreshToken string) (*credentials.Credential, error)
	LogoutFunc  func(ctx context.Context) error

	Buffer  time.Duration
	NowFunc func() time.Time

	mu           sync.Mutex
	loginCalls   int
	refreshCalls int
	logoutCalls  int
}

func New(store credentials.Store) *Provider {
	return &Provider{
		Store:   store,
		NowFunc: time.Now,
	}
}

func (p *Provider) Login(ctx context.Context) (*credentials.Credential, error) {
	p.mu.Lock()
	p.loginCalls++
	p.mu.Unlock()

	login := p.LoginFunc
	if login == nil {
		login = func(context.Context) (*credentials.Credential, error) {
			return Credential("access-token", p.now().Add(time.Hour)), nil
		}
	}
	credential, err := login(ctx)
	if err != nil {
		return nil, err
	}
	p.Store.Set(credential)
	return credential, nil
}

func (p *Provider) Refresh(ctx context.Context, refreshToken string) (*credentials.Credential, error) {
	p.mu.Lock()
	p.refreshCalls++
	p.mu.Unlock()

	refresh := p.RefreshFunc
	if refresh == nil {
		refresh = func(context.Context, string) (*credentials.Credential, error) {
			return Credential("refreshed-token", p.now().Add(time.Hour)), nil
		}
	}
	credential, err := refresh(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	p.Store.Set(credential)
	return credential, nil
}

func (p *Provider) Logout(ctx context.Context) error {
	p.mu.Lock()
	p.logoutCalls++
	p.mu.Unlock()

	defer p.Store.Clear()
	if p.LogoutFunc != nil {
		return p.LogoutFunc(ctx)
	}
	return nil
}

func (p *Provider) IsTokenValid(expiresAt time.Time) bool {
	return p.now().Add(p.Buffer).Before(expiresAt)
}

func (p *Provider) LoginCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loginCalls
}

func (p *Provider) RefreshCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refreshCalls
}

func (p *Provider) LogoutCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.logoutCalls
}

func (p *Provider) now() time.Time {
	if p.NowFunc == nil {
		return time.Now()
	}
	return p.NowFunc()
}

// Credential builds a refreshable bearer credential
func Credential(accessToken string, expiresAt time.Time) *credentials.Credential {
	return &credentials.Credential{
		AccessToken:  accessToken,
		IDToken:      "id-" + accessToken,
		RefreshToken: "refresh-" + accessToken,
		TokenType:    "Bearer",
		ExpiresAt:    expiresAt,
	}
}
