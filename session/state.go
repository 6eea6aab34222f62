package session

import "github.com/jrsteele09/go-school-session/users"

// State is where a session is in its lifecycle
type State int

const (
	Unauthenticated State = iota
	Authenticating
	Authenticated
	// RefreshingInBackground is an authenticated session whose access token
	// is being renewed. Requests keep flowing and join the renewal on 401.
	RefreshingInBackground
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	case RefreshingInBackground:
		return "refreshing"
	default:
		return "unknown"
	}
}

// IsAuthenticated reports whether requests can be made in this state
func (s State) IsAuthenticated() bool {
	return s == Authenticated || s == RefreshingInBackground
}

// Snapshot is the state together with the user it belongs to. User is nil
// unless the session is authenticated.
type Snapshot struct {
	State State
	User  *users.Profile
}
