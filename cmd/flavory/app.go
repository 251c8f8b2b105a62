package main

import (
	"context"

	"github.com/jrsteele09/flavory-client/apiclient"
	"github.com/jrsteele09/flavory-client/credentials"
	"github.com/jrsteele09/flavory-client/identity"
	"github.com/jrsteele09/flavory-client/internal/config"
	apperrors "github.com/jrsteele09/flavory-client/internal/errors"
	"github.com/jrsteele09/flavory-client/querycache"
	"github.com/jrsteele09/flavory-client/sessions"
	"github.com/jrsteele09/flavory-client/users"
	"github.com/rs/zerolog/log"
)

// app wires one of each component for the process
type app struct {
	store    credentials.Store
	cache    *querycache.Cache
	provider *identity.Provider
	api      *apiclient.Client
	users    *users.Client
	session  *sessions.Controller
}

func newApp(ctx context.Context, c config.Config) (*app, error) {
	store := credentials.NewMemoryStore()
	cache := querycache.New()

	authorizer, err := identity.NewLoopbackAuthorizer(c.GetRedirectURL())
	if err != nil {
		return nil, apperrors.Wrapf(err, "[newApp] invalid redirect URL %q", c.GetRedirectURL())
	}

	identityConfig := identity.Config{
		IssuerURL:    c.GetIssuerURL(),
		ClientID:     c.GetClientID(),
		ClientSecret: c.GetClientSecret(),
		Audience:     c.GetAudience(),
		RedirectURL:  c.GetRedirectURL(),
		Scopes:       c.GetScopes(),
		ExpiryBuffer: c.GetTokenExpiryBuffer(),
	}
	provider, err := identity.Discover(ctx, identityConfig, store, authorizer)
	if err != nil {
		log.Warn().Err(err).Msg("OIDC discovery failed, using default endpoints without ID token verification")
		provider = identity.New(identityConfig, store, authorizer)
	}

	a := &app{
		store:    store,
		cache:    cache,
		provider: provider,
	}
	a.api = apiclient.New(c.GetAPIBaseURL(),
		apiclient.WithCredentialStore(store),
		apiclient.WithAudience(c.GetAudience()),
		apiclient.WithTimeout(c.GetRequestTimeout()),
		apiclient.WithRetry(c.GetReadRetries(), apiclient.DefaultRetryInterval),
		apiclient.WithDevLogging(c.IsDev()),
		apiclient.WithUnauthorizedHandler(a.handleUnauthorized),
	)
	a.users = users.NewClient(a.api, cache)
	a.session = sessions.NewController(provider, a.users, store, sessions.WithCache(cache))
	return a, nil
}

func (a *app) handleUnauthorized() {
	a.session.HandleUnauthorized()
}
