package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/jrsteele09/flavory-client/credentials"
	apperrors "github.com/jrsteele09/flavory-client/internal/errors"
	"golang.org/x/oauth2"
)

// Refresh exchanges refreshToken for a new credential and stores it. Every
// failure is reported as ErrRefreshFailure and is not worth retrying.
func (p *Provider) Refresh(ctx context.Context, refreshToken string) (*credentials.Credential, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("[identity Refresh] %w: %w", apperrors.ErrRefreshFailure, apperrors.ErrNoRefreshToken)
	}

	source := p.oauth.TokenSource(p.clientContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			p.log.Warn().
				Str("error_code", retrieveErr.ErrorCode).
				Int("status", retrieveErr.Response.StatusCode).
				Msg("Refresh token rejected")
		}
		return nil, fmt.Errorf("[identity Refresh] %w: %w", apperrors.ErrRefreshFailure, err)
	}

	credential, err := p.credentialFromToken(ctx, token, "")
	if err != nil {
		return nil, fmt.Errorf("[identity Refresh] %w: %w", apperrors.ErrRefreshFailure, err)
	}
	if credential.RefreshToken == "" {
		credential.RefreshToken = refreshToken
	}

	p.store.Set(credential)
	p.log.Debug().Time("expires_at", credential.ExpiresAt).Msg("Token refreshed")
	return credential, nil
}
