package tokenstore

import "time"

// TokenPair is the backend-issued credential pair. It is distinct from any
// identity-provider token and outlives the in-memory session, so a page
// reload can authenticate requests before the session rehydrates.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	IssuedAt     time.Time `json:"issued_at"`
}

// Store holds at most one current TokenPair. Writes replace the whole value
// atomically; a reader never observes a half-written pair. Implementations
// must be synchronous from the caller's perspective and must not fail:
// persistence problems are logged internally and reads fall back to absent.
type Store interface {
	// Get returns the current pair, or ok=false when none is stored.
	Get() (pair TokenPair, ok bool)

	// Set replaces the current pair.
	Set(pair TokenPair)

	// Clear removes the current pair. Called on sign-out and on an
	// unrecoverable refresh failure.
	Clear()
}
