// Package bridge reconciles identity-provider login events with backend
// token issuance. Social logins authenticate the user but cannot mint
// backend-compatible tokens, so the first qualifying session snapshot after
// a login triggers exactly one exchange against the backend.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/nxank4/go-llct-client/internal/errors"
	"github.com/nxank4/go-llct-client/internal/utils"
	"github.com/nxank4/go-llct-client/session"
	"github.com/nxank4/go-llct-client/tokenstore"
)

// exchange is the shared outcome of one bridging attempt. Late arrivals wait
// on done instead of issuing a second request; a state flag alone would leave
// a window between "flag set" and "result available".
type exchange struct {
	done chan struct{}
	err  error
}

// Bridge performs the one-shot backend token exchange for bridged logins.
type Bridge struct {
	apiBaseURL string
	provider   string
	store      tokenstore.Store
	httpClient *http.Client
	nowTime    func() time.Time

	lock       sync.Mutex
	lastStatus session.Status
	eventID    string
	inflight   *exchange
	completed  bool
	subs       []chan struct{}
}

// BridgeOption defines a function type to modify the Bridge instance.
type BridgeOption func(*Bridge)

// WithHTTPClient overrides the HTTP client used for the exchange call.
func WithHTTPClient(hc *http.Client) BridgeOption {
	return func(b *Bridge) {
		b.httpClient = hc
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) BridgeOption {
	return func(b *Bridge) {
		b.nowTime = nowFunc
	}
}

// NewBridge initializes a Bridge for the given backend API and social
// provider name (the final segment of the exchange endpoint).
func NewBridge(apiBaseURL, provider string, store tokenstore.Store, options ...BridgeOption) (*Bridge, error) {
	if apiBaseURL == "" {
		return nil, errors.Wrapf(errors.ErrUpstreamRejected, "[NewBridge] API base URL is required")
	}
	if provider == "" {
		return nil, errors.Wrapf(errors.ErrUpstreamRejected, "[NewBridge] provider name is required")
	}
	if store == nil {
		return nil, errors.Wrapf(errors.ErrCredentialMissing, "[NewBridge] token store is required")
	}

	bridge := &Bridge{
		apiBaseURL: apiBaseURL,
		provider:   provider,
		store:      store,
		httpClient: &http.Client{},
		nowTime:    time.Now,
		lastStatus: session.StatusLoading,
	}
	for _, opt := range options {
		opt(bridge)
	}
	return bridge, nil
}

// Subscribe returns a channel that receives a signal whenever the bridge
// stores a new token pair, so dependent views can re-read session state.
func (b *Bridge) Subscribe() <-chan struct{} {
	b.lock.Lock()
	defer b.lock.Unlock()
	ch := make(chan struct{}, 1)
	b.subs = append(b.subs, ch)
	return ch
}

// Reconcile inspects a session snapshot and performs the backend exchange
// when the login needs bridging. It is safe to call on every snapshot; the
// exchange happens at most once per login event, and a failed exchange
// re-arms so a later call may retry.
func (b *Bridge) Reconcile(ctx context.Context, sess *session.Session) error {
	b.lock.Lock()

	if !sess.Authenticated() {
		// Status moved away from authenticated: the login event is over.
		// A nil snapshot reads as signed out.
		b.lastStatus = session.StatusUnauthenticated
		if sess != nil {
			b.lastStatus = sess.Status
		}
		b.eventID = ""
		b.completed = false
		b.inflight = nil
		b.lock.Unlock()
		return nil
	}

	if b.lastStatus != session.StatusAuthenticated {
		// A fresh login event. Re-arm the exactly-once guard.
		b.lastStatus = session.StatusAuthenticated
		b.eventID = uuid.New().String()
		b.completed = false
		b.inflight = nil
	}

	if !b.needsBridging(sess) {
		b.lock.Unlock()
		// A provider-native backend token rides along on the session; keep
		// the store in step with it.
		if sess.AccessToken != "" {
			if current, ok := b.store.Get(); !ok || current.AccessToken != sess.AccessToken {
				b.store.Set(tokenstore.TokenPair{
					AccessToken:  sess.AccessToken,
					RefreshToken: sess.RefreshToken,
					IssuedAt:     b.nowTime(),
				})
				b.notify()
			}
		}
		return nil
	}

	if b.completed {
		b.lock.Unlock()
		return nil
	}

	if b.inflight != nil {
		// Another caller is already exchanging for this login event; share
		// its outcome.
		call := b.inflight
		b.lock.Unlock()
		select {
		case <-call.done:
			return call.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	call := &exchange{done: make(chan struct{})}
	b.inflight = call
	eventID := b.eventID
	b.lock.Unlock()

	err := b.performExchange(ctx, sess)

	b.lock.Lock()
	if b.eventID == eventID {
		b.inflight = nil
		// On failure the guard resets so revisiting the page can retry.
		b.completed = err == nil
	}
	b.lock.Unlock()

	call.err = err
	close(call.done)
	return err
}

// needsBridging applies the heuristic for provider logins that cannot issue
// backend tokens: a provider image is present and no backend token exists on
// the session or in the store.
func (b *Bridge) needsBridging(sess *session.Session) bool {
	if sess.Identity.ProviderImage == "" || sess.Identity.Email == "" {
		return false
	}
	if sess.AccessToken != "" {
		return false
	}
	_, ok := b.store.Get()
	return !ok
}

func (b *Bridge) performExchange(ctx context.Context, sess *session.Session) error {
	body := struct {
		Email    string  `json:"email"`
		FullName *string `json:"full_name,omitempty"`
	}{Email: sess.Identity.Email}
	if sess.Identity.DisplayName != "" {
		body.FullName = utils.Ptr(sess.Identity.DisplayName)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return errors.Wrapf(err, "[Reconcile] encoding exchange request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.apiBaseURL+"/api/v1/auth/oauth/"+b.provider, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrapf(err, "[Reconcile] building exchange request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		log.Warn().Err(err).Str("provider", b.provider).Msg("backend token exchange failed")
		return errors.Wrapf(err, "[Reconcile] token exchange")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Warn().Int("status", resp.StatusCode).Str("provider", b.provider).Msg("backend token exchange rejected")
		return errors.Wrapf(errors.ErrUpstreamRejected, "[Reconcile] token exchange returned %d", resp.StatusCode)
	}

	var tokens struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokens); err != nil {
		return errors.Wrapf(err, "[Reconcile] decoding exchange response")
	}
	if tokens.AccessToken == "" {
		return errors.Wrapf(errors.ErrProtocolMalformed, "[Reconcile] exchange response missing access token")
	}

	b.store.Set(tokenstore.TokenPair{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		IssuedAt:     b.nowTime(),
	})
	log.Info().Str("provider", b.provider).Msg("backend token pair established for bridged login")
	b.notify()
	return nil
}

// notify broadcasts a session-changed signal without blocking on slow
// subscribers.
func (b *Bridge) notify() {
	b.lock.Lock()
	subs := make([]chan struct{}, len(b.subs))
	copy(subs, b.subs)
	b.lock.Unlock()

	for _, ch := range subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
