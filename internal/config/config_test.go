package config_test

import (
	"testing"
	"time"

	"github.com/jrsteele09/flavory-client/internal/config"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("API_URL", "https://api.flavory.test/api/")
	t.Setenv("AUTH0_DOMAIN", "flavory.eu.auth0.com")
	t.Setenv("AUTH0_CLIENT_ID", "client-123")
}

func TestFromEnvDefaults(t *testing.T) {
	setRequiredEnv(t)

	c, err := config.FromEnv()
	require.NoError(t, err)

	require.Equal(t, "https://api.flavory.test/api", c.GetAPIBaseURL())
	require.Equal(t, "https://flavory.eu.auth0.com/", c.GetIssuerURL())
	require.Equal(t, "client-123", c.GetClientID())
	require.Equal(t, 15*time.Second, c.GetRequestTimeout())
	require.Equal(t, 1, c.GetReadRetries())
	require.Equal(t, 5*time.Minute, c.GetTokenExpiryBuffer())
	require.Equal(t, []string{"openid", "profile", "email", "offline_access"}, c.GetScopes())
	require.Equal(t, "http://127.0.0.1:8765/callback", c.GetRedirectURL())
	require.True(t, c.IsDev())
}

func TestFromEnvOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("AUTH0_DOMAIN", "https://login.flavory.test")
	t.Setenv("AUTH0_AUDIENCE", "https://api.flavory.test")
	t.Setenv("AUTH0_SCOPES", "openid, email ,")
	t.Setenv("HTTP_TIMEOUT", "3s")
	t.Setenv("HTTP_READ_RETRIES", "3")
	t.Setenv("ENV", "prod")

	c, err := config.FromEnv()
	require.NoError(t, err)

	require.Equal(t, "https://login.flavory.test/", c.GetIssuerURL())
	require.Equal(t, "https://api.flavory.test", c.GetAudience())
	require.Equal(t, []string{"openid", "email"}, c.GetScopes())
	require.Equal(t, 3*time.Second, c.GetRequestTimeout())
	require.Equal(t, 3, c.GetReadRetries())
	require.Equal(t, "PROD", c.GetEnv())
	require.False(t, c.IsDev())
}

func TestFromEnvMissingRequired(t *testing.T) {
	tests := []struct {
		name    string
		missing string
	}{
		{name: "api url", missing: "API_URL"},
		{name: "auth0 domain", missing: "AUTH0_DOMAIN"},
		{name: "auth0 client id", missing: "AUTH0_CLIENT_ID"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(tt.missing, "")

			_, err := config.FromEnv()
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.missing)
		})
	}
}

func TestFromEnvInvalidRedirect(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("AUTH0_REDIRECT_URL", "not a url")

	_, err := config.FromEnv()
	require.Error(t, err)
}
