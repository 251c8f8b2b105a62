package identity

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jrsteele09/flavory-client/credentials"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// DefaultExpiryBuffer is how long before expiry a token stops being treated as
// valid, so a request never leaves with a token that expires mid-flight.
const DefaultExpiryBuffer = 5 * time.Minute

// Config describes the OAuth2/OIDC client registration.
type Config struct {
	IssuerURL    string // e.g. "https://flavory.eu.auth0.com/"
	ClientID     string
	ClientSecret string // Empty for public (native) clients
	Audience     string // API identifier requested as the access token audience
	RedirectURL  string
	Scopes       []string
	ExpiryBuffer time.Duration

	// Endpoints. Empty values are filled by Discover, or derived from
	// IssuerURL using the Auth0 layout.
	AuthURL       string
	TokenURL      string
	RevocationURL string
	EndSessionURL string
}

// Provider adapts an external identity provider to normalized credentials and
// keeps the credential store in step with login, refresh and logout.
type Provider struct {
	config     Config
	oauth      *oauth2.Config
	oidc       *oidc.Provider
	verifier   *oidc.IDTokenVerifier
	store      credentials.Store
	authorizer Authorizer
	httpClient *http.Client
	log        zerolog.Logger
	nowFunc    func() time.Time
}

type Option func(*Provider)

// WithHTTPClient sets the client used for token, revocation and discovery calls
func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = client
	}
}

// WithNowFunc overrides the clock, used by tests
func WithNowFunc(now func() time.Time) Option {
	return func(p *Provider) {
		p.nowFunc = now
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(p *Provider) {
		p.log = logger
	}
}

// WithVerifier sets the ID token verifier. Without one (and without
// discovery) ID tokens are stored unverified.
func WithVerifier(verifier *oidc.IDTokenVerifier) Option {
	return func(p *Provider) {
		p.verifier = verifier
	}
}

// New creates a provider from explicit configuration without contacting the
// issuer.
func New(cfg Config, store credentials.Store, authorizer Authorizer, opts ...Option) *Provider {
	p := newProvider(cfg, store, authorizer, opts)
	p.init()
	return p
}

// Discover creates a provider from the issuer's OIDC discovery document. The
// discovered endpoints are used unless cfg sets them explicitly, and ID tokens
// are verified against the issuer's published keys.
func Discover(ctx context.Context, cfg Config, store credentials.Store, authorizer Authorizer, opts ...Option) (*Provider, error) {
	p := newProvider(cfg, store, authorizer, opts)

	discovered, err := oidc.NewProvider(p.clientContext(ctx), cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("[identity Discover] failed to create OIDC provider: %w", err)
	}

	var metadata struct {
		RevocationURL string `json:"revocation_endpoint"`
		EndSessionURL string `json:"end_session_endpoint"`
	}
	if err := discovered.Claims(&metadata); err != nil {
		return nil, fmt.Errorf("[identity Discover] failed to read provider metadata: %w", err)
	}

	endpoint := discovered.Endpoint()
	p.config.AuthURL = firstNonEmpty(cfg.AuthURL, endpoint.AuthURL)
	p.config.TokenURL = firstNonEmpty(cfg.TokenURL, endpoint.TokenURL)
	p.config.RevocationURL = firstNonEmpty(cfg.RevocationURL, metadata.RevocationURL)
	p.config.EndSessionURL = firstNonEmpty(cfg.EndSessionURL, metadata.EndSessionURL)

	p.oidc = discovered
	if p.verifier == nil {
		p.verifier = discovered.Verifier(&oidc.Config{
			ClientID: cfg.ClientID,
			Now:      p.nowFunc,
		})
	}
	p.init()
	return p, nil
}

func newProvider(cfg Config, store credentials.Store, authorizer Authorizer, opts []Option) *Provider {
	p := &Provider{
		config:     cfg,
		store:      store,
		authorizer: authorizer,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        log.Logger,
		nowFunc:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) init() {
	if p.config.ExpiryBuffer <= 0 {
		p.config.ExpiryBuffer = DefaultExpiryBuffer
	}
	if len(p.config.Scopes) == 0 {
		p.config.Scopes = []string{oidc.ScopeOpenID, "profile", "email", oidc.ScopeOfflineAccess}
	}

	base := strings.TrimRight(p.config.IssuerURL, "/")
	p.config.AuthURL = firstNonEmpty(p.config.AuthURL, base+"/authorize")
	p.config.TokenURL = firstNonEmpty(p.config.TokenURL, base+"/oauth/token")
	p.config.RevocationURL = firstNonEmpty(p.config.RevocationURL, base+"/oauth/revoke")
	p.config.EndSessionURL = firstNonEmpty(p.config.EndSessionURL, base+"/v2/logout")

	p.oauth = &oauth2.Config{
		ClientID:     p.config.ClientID,
		ClientSecret: p.config.ClientSecret,
		RedirectURL:  p.config.RedirectURL,
		Scopes:       p.config.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   p.config.AuthURL,
			TokenURL:  p.config.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// IsTokenValid reports whether a token expiring at expiresAt is still usable
// once the safety buffer is taken into account: now + buffer < expiresAt.
func (p *Provider) IsTokenValid(expiresAt time.Time) bool {
	return p.nowFunc().Add(p.config.ExpiryBuffer).Before(expiresAt)
}

// ExpiryBuffer returns the safety margin used by IsTokenValid
func (p *Provider) ExpiryBuffer() time.Duration {
	return p.config.ExpiryBuffer
}

// clientContext makes the oauth2 and oidc libraries use the provider's client
func (p *Provider) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
