package identity_test

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"testing"

	"github.com/jrsteele09/flavory-client/identity"
	apperrors "github.com/jrsteele09/flavory-client/internal/errors"
	"github.com/stretchr/testify/require"
)

func freeRedirectURL(t *testing.T) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())
	return fmt.Sprintf("http://%s/callback", addr)
}

func TestLoopbackAuthorizer_Authorize(t *testing.T) {
	t.Run("returns the browser callback", func(t *testing.T) {
		redirectURL := freeRedirectURL(t)
		var opened string
		authz, err := identity.NewLoopbackAuthorizer(redirectURL, identity.WithBrowserOpener(func(u string) error {
			opened = u
			resp, err := http.Get(redirectURL + "?code=abc&state=xyz")
			if err != nil {
				return err
			}
			return resp.Body.Close()
		}))
		require.NoError(t, err)

		callback, err := authz.Authorize(context.Background(), "https://flavory.test/authorize?state=xyz")
		require.NoError(t, err)
		require.Equal(t, "https://flavory.test/authorize?state=xyz", opened)
		require.Equal(t, &identity.Callback{Code: "abc", State: "xyz"}, callback)

		// The port is released once the flow ends
		u, err := url.Parse(redirectURL)
		require.NoError(t, err)
		listener, err := net.Listen("tcp", u.Host)
		require.NoError(t, err)
		require.NoError(t, listener.Close())
	})

	t.Run("provider error", func(t *testing.T) {
		redirectURL := freeRedirectURL(t)
		authz, err := identity.NewLoopbackAuthorizer(redirectURL, identity.WithBrowserOpener(func(string) error {
			resp, err := http.Get(redirectURL + "?error=access_denied&error_description=cancelled&state=xyz")
			if err != nil {
				return err
			}
			return resp.Body.Close()
		}))
		require.NoError(t, err)

		callback, err := authz.Authorize(context.Background(), "https://flavory.test/authorize")
		require.NoError(t, err)
		require.Equal(t, "access_denied", callback.Error)
		require.Equal(t, "cancelled", callback.ErrorDescription)
	})

	t.Run("context cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		authz, err := identity.NewLoopbackAuthorizer(freeRedirectURL(t), identity.WithBrowserOpener(func(string) error {
			cancel()
			return nil
		}))
		require.NoError(t, err)

		_, err = authz.Authorize(ctx, "https://flavory.test/authorize")
		require.ErrorIs(t, err, apperrors.ErrLoginCancelled)
	})

	t.Run("browser failure does not abort the flow", func(t *testing.T) {
		redirectURL := freeRedirectURL(t)
		authz, err := identity.NewLoopbackAuthorizer(redirectURL, identity.WithBrowserOpener(func(string) error {
			resp, err := http.Get(redirectURL + "?code=abc&state=xyz")
			if err == nil {
				_ = resp.Body.Close()
			}
			return fmt.Errorf("no browser")
		}))
		require.NoError(t, err)

		callback, err := authz.Authorize(context.Background(), "https://flavory.test/authorize")
		require.NoError(t, err)
		require.Equal(t, "abc", callback.Code)
	})
}

func TestLoopbackAuthorizer_EndSession(t *testing.T) {
	var opened string
	authz, err := identity.NewLoopbackAuthorizer("http://127.0.0.1:8765/callback", identity.WithBrowserOpener(func(u string) error {
		opened = u
		return nil
	}))
	require.NoError(t, err)

	require.NoError(t, authz.EndSession(context.Background(), "https://flavory.test/v2/logout?client_id=x"))
	require.Equal(t, "https://flavory.test/v2/logout?client_id=x", opened)
}

func TestNewLoopbackAuthorizer_InvalidRedirect(t *testing.T) {
	_, err := identity.NewLoopbackAuthorizer("/callback")
	require.Error(t, err)
	require.Contains(t, err.Error(), "has no host")
}
