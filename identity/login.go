package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/flavory-client/credentials"
	apperrors "github.com/jrsteele09/flavory-client/internal/errors"
	"golang.org/x/oauth2"
)

// Login runs the authorization code flow with PKCE and stores the resulting
// credential. A user abort or context cancellation returns ErrLoginCancelled,
// every other failure ErrAuthFailure. The store is left untouched on failure.
func (p *Provider) Login(ctx context.Context) (*credentials.Credential, error) {
	flow, err := newAuthFlow(p.nowFunc())
	if err != nil {
		return nil, fmt.Errorf("[identity Login] %w: %w", apperrors.ErrAuthFailure, err)
	}

	authURL := p.oauth.AuthCodeURL(flow.State, p.authCodeOptions(flow)...)

	p.log.Debug().Str("state", flow.State).Msg("Starting authorization")
	callback, err := p.authorizer.Authorize(ctx, authURL)
	if err != nil {
		if errors.Is(err, apperrors.ErrLoginCancelled) || ctx.Err() != nil {
			return nil, fmt.Errorf("[identity Login] %w: %w", apperrors.ErrLoginCancelled, err)
		}
		return nil, fmt.Errorf("[identity Login] %w: %w", apperrors.ErrAuthFailure, err)
	}
	if err := callback.validate(flow.State); err != nil {
		return nil, fmt.Errorf("[identity Login] %w", err)
	}

	token, err := p.oauth.Exchange(p.clientContext(ctx), callback.Code, oauth2.VerifierOption(flow.CodeVerifier))
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("[identity Login] %w: %w", apperrors.ErrLoginCancelled, ctx.Err())
		}
		return nil, fmt.Errorf("[identity Login] %w: code exchange: %w", apperrors.ErrAuthFailure, err)
	}

	credential, err := p.credentialFromToken(ctx, token, flow.Nonce)
	if err != nil {
		return nil, fmt.Errorf("[identity Login] %w: %w", apperrors.ErrAuthFailure, err)
	}

	p.store.Set(credential)
	p.log.Info().Time("expires_at", credential.ExpiresAt).Msg("Login completed")
	return credential, nil
}

func (p *Provider) authCodeOptions(flow *authFlow) []oauth2.AuthCodeOption {
	opts := []oauth2.AuthCodeOption{
		oauth2.S256ChallengeOption(flow.CodeVerifier),
		oidc.Nonce(flow.Nonce),
	}
	if p.config.Audience != "" {
		opts = append(opts, oauth2.SetAuthURLParam("audience", p.config.Audience))
	}
	return opts
}

// credentialFromToken normalizes a token response. When nonce is set the ID
// token must carry it.
func (p *Provider) credentialFromToken(ctx context.Context, token *oauth2.Token, nonce string) (*credentials.Credential, error) {
	if token.AccessToken == "" {
		return nil, errors.New("token response has no access token")
	}

	credential := &credentials.Credential{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.Type(),
		ExpiresAt:    token.Expiry,
	}
	if scope, ok := token.Extra("scope").(string); ok {
		credential.Scope = scope
	}

	if rawIDToken, ok := token.Extra("id_token").(string); ok && rawIDToken != "" {
		if err := p.verifyIDToken(ctx, rawIDToken, nonce); err != nil {
			return nil, err
		}
		credential.IDToken = rawIDToken
	}

	if credential.ExpiresAt.IsZero() {
		credential.ExpiresAt = accessTokenExpiry(credential.AccessToken)
	}
	return credential, nil
}

func (p *Provider) verifyIDToken(ctx context.Context, rawIDToken, nonce string) error {
	if p.verifier == nil {
		p.log.Debug().Msg("No ID token verifier configured, storing ID token unverified")
		return nil
	}

	idToken, err := p.verifier.Verify(p.clientContext(ctx), rawIDToken)
	if err != nil {
		return fmt.Errorf("invalid ID token: %w", err)
	}
	if nonce != "" && idToken.Nonce != nonce {
		return errors.New("ID token nonce mismatch")
	}
	return nil
}

// accessTokenExpiry reads the exp claim of a JWT access token. Opaque tokens
// yield the zero time.
func accessTokenExpiry(raw string) time.Time {
	token, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		return time.Time{}
	}
	exp, err := token.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}
