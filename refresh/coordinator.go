// Package refresh coordinates backend token refresh so that concurrent
// callers discovering a missing or rejected token share a single refresh
// request and its outcome.
package refresh

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/nxank4/go-llct-client/internal/errors"
	"github.com/nxank4/go-llct-client/session"
	"github.com/nxank4/go-llct-client/tokenstore"
)

// expirySkew is subtracted from the token's exp claim so a token about to
// expire mid-request is refreshed up front instead of round-tripping a 401.
const expirySkew = 30 * time.Second

const refreshKey = "refresh"

// Coordinator is the process-wide single-flight refresh slot. N concurrent
// callers never trigger more than one refresh request; all of them receive
// the same resolved token or the same error.
type Coordinator struct {
	provider session.Provider
	store    tokenstore.Store
	group    singleflight.Group
	nowTime  func() time.Time
}

// CoordinatorOption defines a function type to modify the Coordinator instance.
type CoordinatorOption func(*Coordinator)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) CoordinatorOption {
	return func(c *Coordinator) {
		c.nowTime = nowFunc
	}
}

// NewCoordinator initializes a Coordinator with its required dependencies.
func NewCoordinator(provider session.Provider, store tokenstore.Store, options ...CoordinatorOption) (*Coordinator, error) {
	if provider == nil {
		return nil, errors.Wrapf(errors.ErrCredentialMissing, "[NewCoordinator] session provider is required")
	}
	if store == nil {
		return nil, errors.Wrapf(errors.ErrCredentialMissing, "[NewCoordinator] token store is required")
	}

	coordinator := &Coordinator{
		provider: provider,
		store:    store,
		nowTime:  time.Now,
	}
	for _, opt := range options {
		opt(coordinator)
	}
	return coordinator, nil
}

// EnsureFreshToken returns a usable access token, refreshing only when the
// store is empty or the stored token has expired by the local clock.
func (c *Coordinator) EnsureFreshToken(ctx context.Context) (string, error) {
	if pair, ok := c.store.Get(); ok && !c.expired(pair.AccessToken) {
		return pair.AccessToken, nil
	}
	return c.refresh(ctx)
}

// ForceRefresh bypasses the stored pair entirely. Callers use it after the
// server rejected the current token with a 401. Concurrent forcers still
// share one refresh request.
func (c *Coordinator) ForceRefresh(ctx context.Context) (string, error) {
	return c.refresh(ctx)
}

func (c *Coordinator) refresh(ctx context.Context) (string, error) {
	// The group guarantees at most one outstanding provider.Refresh at any
	// instant; late arrivals attach to the in-flight call. The slot clears
	// unconditionally when Do returns, success or failure.
	v, err, shared := c.group.Do(refreshKey, func() (interface{}, error) {
		sess, err := c.provider.Refresh(ctx)
		if err != nil {
			return nil, errors.Wrapf(err, "[EnsureFreshToken] session refresh")
		}

		if sess.RefreshError != "" {
			// Terminal: the refresh token itself was rejected. Clear the
			// stored pair and require a full re-login; no automatic retry.
			log.Warn().Str("refresh_error", string(sess.RefreshError)).Msg("session refresh reported unrecoverable error")
			c.store.Clear()
			return nil, errors.ErrSessionExpired
		}

		if sess.AccessToken == "" {
			return nil, errors.Wrapf(errors.ErrCredentialMissing, "[EnsureFreshToken] refreshed session carries no backend token")
		}

		c.store.Set(tokenstore.TokenPair{
			AccessToken:  sess.AccessToken,
			RefreshToken: sess.RefreshToken,
			IssuedAt:     c.nowTime(),
		})
		log.Debug().Msg("backend token refreshed")
		return sess.AccessToken, nil
	})
	if err != nil {
		return "", err
	}
	if shared {
		log.Debug().Msg("joined in-flight token refresh")
	}
	return v.(string), nil
}

// expired reports whether the token's exp claim has passed. Tokens that are
// not parseable JWTs (opaque tokens) or carry no exp claim are treated as
// live; the server remains the authority and a 401 will force a refresh.
func (c *Coordinator) expired(token string) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !c.nowTime().Before(exp.Time.Add(-expirySkew))
}
