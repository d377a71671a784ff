package session

import "context"

// Provider is the client's view of the external identity service. The OIDC
// handshake itself lives behind this interface; the rest of the module only
// consumes session snapshots.
type Provider interface {
	// Current returns the latest session snapshot without touching the network.
	Current(ctx context.Context) (*Session, error)

	// Refresh asks the identity service for a new session, performing the
	// refresh-token exchange internally. A snapshot with RefreshError set
	// means the exchange failed unrecoverably and a full re-login is needed.
	Refresh(ctx context.Context) (*Session, error)

	// EstablishFromTokens turns tokens delivered in an OAuth redirect payload
	// into an authenticated session.
	EstablishFromTokens(ctx context.Context, accessToken, refreshToken string) (*Session, error)

	// SignOut discards the current session.
	SignOut(ctx context.Context) error
}
