package credentials

import "time"

// Credential is the normalized token set returned by the identity provider.
// It is only ever held in process memory.
type Credential struct {
	AccessToken  string    // Bearer token attached to API calls
	IDToken      string    // OIDC ID token, used as a logout hint
	RefreshToken string    // Present when offline_access was granted
	TokenType    string    // Usually "Bearer"
	Scope        string    // Space separated granted scopes
	ExpiresAt    time.Time // Zero when the provider did not report an expiry
}

// Expired reports whether the access token is past its expiry at now.
// A credential without a known expiry never expires by itself.
func (c *Credential) Expired(now time.Time) bool {
	if c == nil {
		return true
	}
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// HasRefreshToken reports whether the credential can be refreshed silently.
func (c *Credential) HasRefreshToken() bool {
	return c != nil && c.RefreshToken != ""
}

// Store holds the current credential. Implementations do not validate what
// they are given; expiry checks are the caller's job.
type Store interface {
	// Set replaces the current credential, nil clears it
	Set(credential *Credential)

	// Get returns a copy of the current credential or nil
	Get() *Credential

	// Clear drops the current credential
	Clear()

	// CompareAndClear drops the current credential only if its access token
	// matches accessToken, and reports whether it did
	CompareAndClear(accessToken string) bool
}
