// Package oidcprovider implements session.Provider on top of the identity
// service's OIDC surface. The protocol handshake itself is delegated to
// go-oidc and golang.org/x/oauth2; this package only maps their results into
// session snapshots.
package oidcprovider

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/nxank4/go-llct-client/internal/errors"
	"github.com/nxank4/go-llct-client/session"
)

var _ session.Provider = (*Provider)(nil)

// Provider talks to an OIDC-compliant identity service.
type Provider struct {
	oidcProvider *oidc.Provider
	oauthConfig  *oauth2.Config
	httpClient   *http.Client

	lock         sync.RWMutex
	current      *session.Session
	refreshToken string
}

// ProviderOption defines a function type to modify the Provider instance.
type ProviderOption func(*Provider)

// WithHTTPClient overrides the HTTP client for provider calls.
func WithHTTPClient(hc *http.Client) ProviderOption {
	return func(p *Provider) {
		p.httpClient = hc
	}
}

// New discovers the identity service at issuerURL and prepares the OAuth2
// configuration used for refresh-token exchanges.
func New(ctx context.Context, issuerURL, clientID string, options ...ProviderOption) (*Provider, error) {
	if issuerURL == "" {
		return nil, errors.Wrapf(errors.ErrUpstreamRejected, "[oidcprovider.New] issuer URL is required")
	}
	if clientID == "" {
		return nil, errors.Wrapf(errors.ErrUpstreamRejected, "[oidcprovider.New] client ID is required")
	}

	provider := &Provider{httpClient: &http.Client{}}
	for _, opt := range options {
		opt(provider)
	}

	ctx = oidc.ClientContext(ctx, provider.httpClient)
	oidcProvider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, errors.Wrapf(err, "[oidcprovider.New] OIDC discovery for %s", issuerURL)
	}

	provider.oidcProvider = oidcProvider
	provider.oauthConfig = &oauth2.Config{
		ClientID: clientID,
		Endpoint: oidcProvider.Endpoint(),
		Scopes:   []string{oidc.ScopeOpenID, "profile", "email"},
	}
	return provider, nil
}

// Current returns the latest snapshot. Before any login it reports an
// unauthenticated session.
func (p *Provider) Current(_ context.Context) (*session.Session, error) {
	p.lock.RLock()
	defer p.lock.RUnlock()
	if p.current == nil {
		return &session.Session{Status: session.StatusUnauthenticated}, nil
	}
	snapshot := *p.current
	return &snapshot, nil
}

// Refresh performs the refresh-token exchange and republishes the session.
// An invalid_grant answer from the identity service is unrecoverable and is
// reported via the snapshot's RefreshError rather than an error return, so
// callers can distinguish it from transient failures.
func (p *Provider) Refresh(ctx context.Context) (*session.Session, error) {
	p.lock.RLock()
	refreshToken := p.refreshToken
	p.lock.RUnlock()

	if refreshToken == "" {
		return nil, errors.Wrapf(errors.ErrCredentialMissing, "[Refresh] no refresh token held")
	}

	ctx = oidc.ClientContext(ctx, p.httpClient)
	token, err := p.oauthConfig.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.ErrorCode == "invalid_grant" {
			log.Warn().Msg("refresh token rejected by identity service")
			expired := &session.Session{
				Status:       session.StatusUnauthenticated,
				RefreshError: session.RefreshErrorRevoked,
			}
			p.publish(expired, "")
			return expired, nil
		}
		return nil, errors.Wrapf(err, "[Refresh] token exchange")
	}

	sess, err := p.sessionFromToken(ctx, token)
	if err != nil {
		return nil, err
	}
	p.publish(sess, token.RefreshToken)
	return sess, nil
}

// EstablishFromTokens turns redirect-delivered tokens into a session by
// validating them against the userinfo endpoint.
func (p *Provider) EstablishFromTokens(ctx context.Context, accessToken, refreshToken string) (*session.Session, error) {
	if accessToken == "" {
		return nil, errors.Wrapf(errors.ErrProtocolMalformed, "[EstablishFromTokens] access token is required")
	}

	ctx = oidc.ClientContext(ctx, p.httpClient)
	token := &oauth2.Token{AccessToken: accessToken, RefreshToken: refreshToken, TokenType: "Bearer"}
	sess, err := p.sessionFromToken(ctx, token)
	if err != nil {
		return nil, err
	}
	p.publish(sess, refreshToken)
	return sess, nil
}

// SignOut discards the session and its refresh token.
func (p *Provider) SignOut(_ context.Context) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.current = nil
	p.refreshToken = ""
	return nil
}

func (p *Provider) publish(sess *session.Session, refreshToken string) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.current = sess
	p.refreshToken = refreshToken
}

// userClaims is the subset of userinfo claims the client consumes. The
// picture claim is only set for social logins, which is exactly the signal
// the session bridge keys on.
type userClaims struct {
	Email            string   `json:"email"`
	EmailVerified    bool     `json:"email_verified"`
	Name             string   `json:"name"`
	Picture          string   `json:"picture"`
	AvatarURL        string   `json:"avatar_url"`
	Roles            []string `json:"roles"`
	EmailConfirmedAt string   `json:"email_confirmed_at"`
}

func (p *Provider) sessionFromToken(ctx context.Context, token *oauth2.Token) (*session.Session, error) {
	userInfo, err := p.oidcProvider.UserInfo(ctx, oauth2.StaticTokenSource(token))
	if err != nil {
		return nil, errors.Wrapf(err, "[sessionFromToken] fetching userinfo")
	}

	var claims userClaims
	if err := userInfo.Claims(&claims); err != nil {
		return nil, errors.Wrapf(err, "[sessionFromToken] decoding userinfo claims")
	}

	avatarURL := claims.AvatarURL
	if avatarURL == "" {
		avatarURL = claims.Picture
	}

	roles := make([]session.Role, 0, len(claims.Roles))
	for _, r := range claims.Roles {
		roles = append(roles, session.Role(r))
	}

	var confirmedAt *time.Time
	if claims.EmailConfirmedAt != "" {
		if ts, err := time.Parse(time.RFC3339, claims.EmailConfirmedAt); err == nil {
			confirmedAt = &ts
		}
	}

	return &session.Session{
		Status: session.StatusAuthenticated,
		Identity: session.Identity{
			Email:         claims.Email,
			DisplayName:   claims.Name,
			AvatarURL:     avatarURL,
			ProviderImage: claims.Picture,
		},
		AccessToken:    token.AccessToken,
		RefreshToken:   token.RefreshToken,
		Roles:          roles,
		EmailConfirmed: claims.EmailVerified,
		ConfirmedAt:    confirmedAt,
	}, nil
}
