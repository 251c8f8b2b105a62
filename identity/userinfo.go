package identity

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	apperrors "github.com/jrsteele09/flavory-client/internal/errors"
	"golang.org/x/oauth2"
)

// UserInfo fetches the provider's view of the user behind accessToken. It
// needs a provider created with Discover.
func (p *Provider) UserInfo(ctx context.Context, accessToken string) (*oidc.UserInfo, error) {
	if p.oidc == nil {
		return nil, fmt.Errorf("[identity UserInfo] %w: provider was not discovered", apperrors.ErrUnsupported)
	}

	source := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
	info, err := p.oidc.UserInfo(p.clientContext(ctx), source)
	if err != nil {
		return nil, fmt.Errorf("[identity UserInfo] failed to get user info: %w", err)
	}
	return info, nil
}
