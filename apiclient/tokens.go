package apiclient

import (
	"context"
	"time"

	"github.com/jrsteele09/flavory-client/credentials"
)

// TokenSource yields the access token for the next request. An empty token
// means the request goes out unauthenticated.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

type TokenSourceFunc func(ctx context.Context) (string, error)

func (f TokenSourceFunc) AccessToken(ctx context.Context) (string, error) {
	return f(ctx)
}

// StoreTokens reads the token from store at request time. It never yields an
// expired credential and never refreshes.
func StoreTokens(store credentials.Store, now func() time.Time) TokenSource {
	if now == nil {
		now = time.Now
	}
	return TokenSourceFunc(func(context.Context) (string, error) {
		credential := store.Get()
		if credential == nil || credential.AccessToken == "" || credential.Expired(now()) {
			return "", nil
		}
		return credential.AccessToken, nil
	})
}
