package session

import "time"

// Status describes where the identity-provider client is in its lifecycle.
type Status string

const (
	StatusLoading         Status = "loading"
	StatusAuthenticated   Status = "authenticated"
	StatusUnauthenticated Status = "unauthenticated"
)

// Role represents a platform role claim carried by the session
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleInstructor Role = "instructor"
	RoleStudent    Role = "student"
)

// RefreshError marks an unrecoverable refresh-token failure reported by the
// identity provider. An empty value means no error.
type RefreshError string

const (
	RefreshErrorExpired RefreshError = "refresh_token_expired"
	RefreshErrorRevoked RefreshError = "refresh_token_revoked"
)

// Identity holds the user claims from the identity provider.
// ProviderImage is only set for social logins and doubles as the signal that
// the login came from a provider that cannot issue backend tokens itself.
type Identity struct {
	Email         string
	DisplayName   string
	AvatarURL     string
	ProviderImage string
}

// Session is a read-only snapshot of the identity-provider state. The
// provider owns it exclusively; callers request new snapshots rather than
// mutating one in place.
type Session struct {
	Status         Status
	Identity       Identity
	AccessToken    string
	RefreshToken   string
	Roles          []Role
	EmailConfirmed bool
	ConfirmedAt    *time.Time
	RefreshError   RefreshError
}

// Authenticated reports whether the snapshot represents a signed-in user.
func (s *Session) Authenticated() bool {
	return s != nil && s.Status == StatusAuthenticated
}

// HasRole reports whether the session carries the given role claim.
func (s *Session) HasRole(role Role) bool {
	if s == nil {
		return false
	}
	for _, r := range s.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasAnyRole reports whether any of the session's roles appears in the given set.
func (s *Session) HasAnyRole(roles []Role) bool {
	for _, r := range roles {
		if s.HasRole(r) {
			return true
		}
	}
	return false
}
