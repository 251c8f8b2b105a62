package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

type IdentityConfig interface {
	GetIssuerURL() string
	GetClientID() string
	GetClientSecret() string
	GetAudience() string
	GetRedirectURL() string
	GetScopes() []string
	GetTokenExpiryBuffer() time.Duration
}

type Identity struct {
	Domain       string        `env:"AUTH0_DOMAIN,notEmpty"`
	ClientID     string        `env:"AUTH0_CLIENT_ID,notEmpty"`
	ClientSecret string        `env:"AUTH0_CLIENT_SECRET"`
	Audience     string        `env:"AUTH0_AUDIENCE"`
	RedirectURL  string        `env:"AUTH0_REDIRECT_URL"  envDefault:"http://127.0.0.1:8765/callback"`
	Scopes       []string      `env:"AUTH0_SCOPES"        envDefault:"openid,profile,email,offline_access" envSeparator:","`
	ExpiryBuffer time.Duration `env:"TOKEN_EXPIRY_BUFFER" envDefault:"5m"`
}

var _ IdentityConfig = Identity{}

// GetIssuerURL accepts either a bare domain ("flavory.eu.auth0.com") or a full
// URL and always returns an https issuer with a trailing slash, which is the
// form Auth0 puts in the "iss" claim.
func (i Identity) GetIssuerURL() string {
	domain := strings.TrimSpace(i.Domain)
	if !strings.Contains(domain, "://") {
		domain = "https://" + domain
	}
	return strings.TrimRight(domain, "/") + "/"
}

func (i Identity) GetClientID() string {
	return i.ClientID
}

func (i Identity) GetClientSecret() string {
	return i.ClientSecret
}

func (i Identity) GetAudience() string {
	return i.Audience
}

func (i Identity) GetRedirectURL() string {
	return i.RedirectURL
}

func (i Identity) GetScopes() []string {
	scopes := make([]string, 0, len(i.Scopes))
	for _, s := range i.Scopes {
		if s = strings.TrimSpace(s); s != "" {
			scopes = append(scopes, s)
		}
	}
	if len(scopes) == 0 {
		return []string{"openid", "profile", "email", "offline_access"}
	}
	return scopes
}

func (i Identity) GetTokenExpiryBuffer() time.Duration {
	if i.ExpiryBuffer < 0 {
		return 0
	}
	return i.ExpiryBuffer
}

func (i Identity) validate() error {
	u, err := url.Parse(i.RedirectURL)
	if err != nil || u.Host == "" {
		return fmt.Errorf("invalid AUTH0_REDIRECT_URL %q", i.RedirectURL)
	}
	if _, err := url.Parse(i.GetIssuerURL()); err != nil {
		return fmt.Errorf("invalid AUTH0_DOMAIN %q: %w", i.Domain, err)
	}
	return nil
}
