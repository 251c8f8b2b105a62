package identity

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	apperrors "github.com/jrsteele09/flavory-client/internal/errors"
	"golang.org/x/oauth2"
)

// Authorizer runs the interactive part of the authorization code flow: it
// sends the user to authURL and returns the parameters of the redirect back.
type Authorizer interface {
	Authorize(ctx context.Context, authURL string) (*Callback, error)

	// EndSession sends the user to the provider's logout URL so the
	// provider-side session is closed as well
	EndSession(ctx context.Context, logoutURL string) error
}

// Callback holds the authorization response parameters
type Callback struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// providerCancelled is returned by providers when the user aborts the flow
const providerCancelled = "access_denied"

func (c *Callback) validate(expectedState string) error {
	switch {
	case c == nil:
		return fmt.Errorf("%w: empty authorization response", apperrors.ErrAuthFailure)
	case c.Error == providerCancelled:
		return apperrors.ErrLoginCancelled
	case c.Error != "":
		return fmt.Errorf("%w: %s - %s", apperrors.ErrAuthFailure, c.Error, c.ErrorDescription)
	case c.State != expectedState:
		return fmt.Errorf("%w: state mismatch", apperrors.ErrAuthFailure)
	case c.Code == "":
		return fmt.Errorf("%w: missing authorization code", apperrors.ErrAuthFailure)
	}
	return nil
}

// authFlow is the client-side state of one authorization attempt
type authFlow struct {
	State        string
	CodeVerifier string
	Nonce        string
	CreatedAt    time.Time
}

func newAuthFlow(now time.Time) (*authFlow, error) {
	state, err := randomString(32)
	if err != nil {
		return nil, err
	}
	nonce, err := randomString(32)
	if err != nil {
		return nil, err
	}
	return &authFlow{
		State:        state,
		CodeVerifier: oauth2.GenerateVerifier(),
		Nonce:        nonce,
		CreatedAt:    now,
	}, nil
}

// randomString creates a random base64url string
func randomString(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
