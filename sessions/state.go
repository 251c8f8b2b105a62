package sessions

import (
	"github.com/jrsteele09/flavory-client/credentials"
	"github.com/jrsteele09/flavory-client/users"
)

// Phase is where the session is in its lifecycle
type Phase int

const (
	SignedOut Phase = iota
	Authenticating
	SignedIn
	Failed // Signed out after a failed login, Message says why
)

func (p Phase) String() string {
	switch p {
	case SignedOut:
		return "signed out"
	case Authenticating:
		return "authenticating"
	case SignedIn:
		return "signed in"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// State is a snapshot of the session. User and Credential are only set when
// Phase is SignedIn, Message only when Phase is Failed.
type State struct {
	Phase      Phase
	User       *users.User
	Credential *credentials.Credential
	Message    string
}

func (s State) IsAuthenticated() bool {
	return s.Phase == SignedIn
}
