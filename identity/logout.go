package identity

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	apperrors "github.com/jrsteele09/flavory-client/internal/errors"
)

// Logout ends the session at the provider and clears the local credential.
// The store is cleared even when the remote calls fail; those failures are
// returned as ErrLogoutRemote.
func (p *Provider) Logout(ctx context.Context) error {
	credential := p.store.Get()
	defer p.store.Clear()

	var errs []error
	if credential.HasRefreshToken() && p.config.RevocationURL != "" {
		if err := p.revoke(ctx, credential.RefreshToken); err != nil {
			errs = append(errs, err)
		}
	}

	if p.config.EndSessionURL != "" && p.authorizer != nil {
		idToken := ""
		if credential != nil {
			idToken = credential.IDToken
		}
		logoutURL, err := p.endSessionURL(idToken)
		if err == nil {
			err = p.authorizer.EndSession(ctx, logoutURL)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("end session: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("[identity Logout] %w: %w", apperrors.ErrLogoutRemote, apperrors.Join(errs...))
	}
	p.log.Info().Msg("Logged out")
	return nil
}

func (p *Provider) revoke(ctx context.Context, refreshToken string) error {
	form := url.Values{
		"token":           {refreshToken},
		"token_type_hint": {"refresh_token"},
		"client_id":       {p.config.ClientID},
	}
	if p.config.ClientSecret != "" {
		form.Set("client_secret", p.config.ClientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.RevocationURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("revoke: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("revoke: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
		return fmt.Errorf("revoke: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

func (p *Provider) endSessionURL(idToken string) (string, error) {
	u, err := url.Parse(p.config.EndSessionURL)
	if err != nil {
		return "", fmt.Errorf("invalid end session URL: %w", err)
	}
	q := u.Query()
	q.Set("client_id", p.config.ClientID)
	if idToken != "" {
		q.Set("id_token_hint", idToken)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
