// Package callback handles the one-shot page-load routine on the OAuth
// redirect page: parse the provider's payload, establish a session, and
// report success or a user-displayable failure.
package callback

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nxank4/go-llct-client/internal/errors"
	"github.com/nxank4/go-llct-client/session"
)

// State is the handler's position in its {Loading, Success, Error} machine.
type State string

const (
	StateLoading State = "loading"
	StateSuccess State = "success"
	StateError   State = "error"
)

// Result is the outcome of handling one callback page load.
type Result struct {
	State   State
	Message string
	// CleanURL is the callback URL with the fragment stripped, so a reload
	// or back-navigation cannot re-process (or leak) the tokens.
	CleanURL string
	// RedirectTo and RedirectAfter describe the post-success navigation.
	// The delay is a UX affordance, not a protocol requirement.
	RedirectTo    string
	RedirectAfter time.Duration
}

const defaultRedirectDelay = 3 * time.Second

// Handler processes OAuth redirect payloads.
type Handler struct {
	provider      session.Provider
	redirectTo    string
	redirectDelay time.Duration
}

// HandlerOption defines a function type to modify the Handler instance.
type HandlerOption func(*Handler)

// WithRedirect overrides the post-success destination and delay.
func WithRedirect(path string, after time.Duration) HandlerOption {
	return func(h *Handler) {
		h.redirectTo = path
		h.redirectDelay = after
	}
}

// NewHandler initializes a Handler around the identity-provider client.
func NewHandler(provider session.Provider, options ...HandlerOption) (*Handler, error) {
	if provider == nil {
		return nil, errors.Wrapf(errors.ErrCredentialMissing, "[NewHandler] session provider is required")
	}
	handler := &Handler{
		provider:      provider,
		redirectTo:    "/login",
		redirectDelay: defaultRedirectDelay,
	}
	for _, opt := range options {
		opt(handler)
	}
	return handler, nil
}

// Handle runs the callback routine for the page's URL. It never panics: any
// unexpected failure during parsing or exchange surfaces as an Error result
// with the underlying message when one is available.
func (h *Handler) Handle(ctx context.Context, rawURL string) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("callback handling panicked")
			result = Result{State: StateError, Message: panicMessage(r)}
		}
	}()

	u, err := url.Parse(rawURL)
	if err != nil {
		return Result{State: StateError, Message: "the sign-in link is not valid, please return to the login page"}
	}

	payload := parsePayload(u)

	if payload.Error != "" {
		message := payload.ErrorDesc
		if message == "" {
			message = payload.Error
		}
		log.Warn().Str("error", payload.Error).Msg("identity provider reported callback error")
		return Result{State: StateError, Message: message}
	}

	if payload.AccessToken == "" {
		return Result{State: StateError, Message: "the sign-in link is missing its credentials, please sign in or register again"}
	}

	sess, err := h.provider.EstablishFromTokens(ctx, payload.AccessToken, payload.RefreshToken)
	if err != nil {
		log.Warn().Err(err).Msg("establishing session from callback tokens failed")
		return Result{State: StateError, Message: fmt.Sprintf("could not complete sign-in: %v", err)}
	}

	if sess.Identity.Email == "" {
		return Result{State: StateError, Message: "this account has no email address, please register again"}
	}
	if sess.ConfirmedAt == nil {
		return Result{State: StateError, Message: "this email address has not been confirmed yet, please check your inbox"}
	}

	return Result{
		State:         StateSuccess,
		CleanURL:      stripFragment(u),
		RedirectTo:    h.redirectTo,
		RedirectAfter: h.redirectDelay,
	}
}

// stripFragment rebuilds the visible URL without the fragment.
func stripFragment(u *url.URL) string {
	clean := *u
	clean.Fragment = ""
	clean.RawFragment = ""
	return clean.String()
}

func panicMessage(r interface{}) string {
	if err, ok := r.(error); ok {
		return fmt.Sprintf("unexpected sign-in failure: %v", err)
	}
	if s, ok := r.(string); ok && s != "" {
		return fmt.Sprintf("unexpected sign-in failure: %s", s)
	}
	return "unexpected sign-in failure, please try again"
}
