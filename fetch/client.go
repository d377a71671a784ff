// Package fetch wraps raw HTTP calls to the backend API with bearer-token
// injection, a single 401-triggered refresh-and-retry, and (for endpoints
// that opt in) bounded backoff against rate limiting.
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/nxank4/go-llct-client/internal/errors"
)

// TokenSource supplies current backend access tokens. *refresh.Coordinator
// satisfies it; tests substitute a fake.
type TokenSource interface {
	EnsureFreshToken(ctx context.Context) (string, error)
	ForceRefresh(ctx context.Context) (string, error)
}

// Client issues authenticated requests against the backend API.
type Client struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
	sleep      func(ctx context.Context, d time.Duration) error
}

// ClientOption defines a function type to modify the Client instance.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithSleep overrides the backoff sleep function (primarily for testing).
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) ClientOption {
	return func(c *Client) {
		c.sleep = sleep
	}
}

// NewClient initializes a Client for the given API base URL.
func NewClient(baseURL string, tokens TokenSource, options ...ClientOption) (*Client, error) {
	if baseURL == "" {
		return nil, errors.Wrapf(errors.ErrUpstreamRejected, "[NewClient] base URL is required")
	}
	if tokens == nil {
		return nil, errors.Wrapf(errors.ErrCredentialMissing, "[NewClient] token source is required")
	}

	client := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		tokens:     tokens,
		httpClient: &http.Client{},
		sleep:      sleepContext,
	}
	for _, opt := range options {
		opt(client)
	}
	return client, nil
}

// NewRequest builds a request against the API base URL. Bodies built from a
// bytes.Reader/bytes.Buffer/strings.Reader are replayable on retry.
func (c *Client) NewRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, errors.Wrapf(err, "[NewRequest] %s %s", method, path)
	}
	return req, nil
}

// Do issues an authenticated request. A missing token is a local error; an
// empty Authorization header is never sent. On 401 the current token is
// treated as rejected: one forced refresh and exactly one retry with the new
// token, after which a second 401 is returned to the caller as-is.
//
// The request's Content-Type is never touched, so multipart and other
// binary payloads keep their caller-set boundary headers.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	token, err := c.tokens.EnsureFreshToken(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "[Do] obtaining token")
	}

	requestID := uuid.New().String()
	req.Header.Set("X-Request-ID", requestID)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "[Do] %s %s", req.Method, req.URL.Path)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	drainAndClose(resp)

	// Credential problem: refresh once and retry once. A second 401 is the
	// caller's to see, not ours to hide.
	log.Debug().Str("request_id", requestID).Str("path", req.URL.Path).Msg("401 received, refreshing token and retrying once")
	token, err = c.tokens.ForceRefresh(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "[Do] refreshing rejected token")
	}

	retryReq, err := cloneRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	retryReq.Header.Set("Authorization", "Bearer "+token)

	resp, err = c.httpClient.Do(retryReq)
	if err != nil {
		return nil, errors.Wrapf(err, "[Do] retry %s %s", req.Method, req.URL.Path)
	}
	return resp, nil
}

// GetJSON issues an authenticated GET and decodes a 2xx JSON body into out.
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	req, err := c.NewRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	return decodeJSON(resp, out)
}

// PostJSON issues an authenticated POST with a JSON body and decodes a 2xx
// JSON response into out (out may be nil).
func (c *Client) PostJSON(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return errors.Wrapf(err, "[PostJSON] encoding body")
	}
	req, err := c.NewRequest(ctx, http.MethodPost, path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	return decodeJSON(resp, out)
}

// Upload issues an authenticated POST with a caller-prepared body. Pass the
// multipart writer's FormDataContentType as contentType; it is forwarded
// untouched so boundary parameters survive.
func (c *Client) Upload(ctx context.Context, path string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := c.NewRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return c.Do(ctx, req)
}

// Stream issues an authenticated GET and hands the caller the raw body. The
// body's lifetime is bound to ctx: cancelling the context (e.g. navigating
// away from a chat stream) aborts the underlying read and releases the
// connection.
func (c *Client) Stream(ctx context.Context, path string) (io.ReadCloser, error) {
	req, err := c.NewRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		status := resp.StatusCode
		drainAndClose(resp)
		return nil, errors.Wrapf(errors.ErrUpstreamRejected, "[Stream] %s returned %d", path, status)
	}
	return resp.Body, nil
}

func decodeJSON(resp *http.Response, out any) error {
	defer drainAndClose(resp)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.Wrapf(errors.ErrUpstreamRejected, "[decodeJSON] server returned %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "[decodeJSON] decoding response")
	}
	return nil
}

// cloneRequest rebuilds a request for the single auth retry. Requests whose
// body cannot be replayed (no GetBody) can only be retried when bodyless.
func cloneRequest(ctx context.Context, req *http.Request) (*http.Request, error) {
	clone := req.Clone(ctx)
	if req.Body == nil || req.GetBody == nil {
		if req.Body != nil {
			return nil, errors.Wrapf(errors.ErrUpstreamRejected, "[Do] request body is not replayable for retry")
		}
		return clone, nil
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, errors.Wrapf(err, "[Do] replaying request body")
	}
	clone.Body = body
	return clone, nil
}

func drainAndClose(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
