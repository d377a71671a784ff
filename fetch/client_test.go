package fetch_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nxank4/go-llct-client/fetch"
	apperrors "github.com/nxank4/go-llct-client/internal/errors"
)

// fakeTokenSource hands out a scripted series of tokens and counts refreshes.
type fakeTokenSource struct {
	lock sync.Mutex

	token        string
	refreshed    string
	err          error
	EnsureCalls  int
	RefreshCalls int
}

func (s *fakeTokenSource) EnsureFreshToken(_ context.Context) (string, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.EnsureCalls++
	if s.err != nil {
		return "", s.err
	}
	return s.token, nil
}

func (s *fakeTokenSource) ForceRefresh(_ context.Context) (string, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.RefreshCalls++
	if s.err != nil {
		return "", s.err
	}
	s.token = s.refreshed
	return s.token, nil
}

func newTestClient(t *testing.T, serverURL string, tokens fetch.TokenSource) *fetch.Client {
	t.Helper()
	client, err := fetch.NewClient(serverURL, tokens)
	require.NoError(t, err)
	return client
}

func TestDoInjectsBearerToken(t *testing.T) {
	var gotAuth, gotRequestID string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotRequestID = r.Header.Get("X-Request-ID")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, &fakeTokenSource{token: "tok-1"})
	req, err := client.NewRequest(context.Background(), http.MethodGet, "/courses", nil)
	require.NoError(t, err)

	resp, err := client.Do(context.Background(), req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "Bearer tok-1", gotAuth)
	require.NotEmpty(t, gotRequestID)
}

func TestDoRefreshesAndRetriesOnceOn401(t *testing.T) {
	var requests int
	var authHeaders []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		authHeaders = append(authHeaders, r.Header.Get("Authorization"))
		if requests == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	tokens := &fakeTokenSource{token: "stale-token", refreshed: "fresh-token"}
	client := newTestClient(t, server.URL, tokens)
	req, err := client.NewRequest(context.Background(), http.MethodGet, "/courses", nil)
	require.NoError(t, err)

	resp, err := client.Do(context.Background(), req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 2, requests)
	require.Equal(t, 1, tokens.RefreshCalls)
	require.Equal(t, []string{"Bearer stale-token", "Bearer fresh-token"}, authHeaders)
}

func TestDoReturnsSecond401WithoutFurtherRetries(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	tokens := &fakeTokenSource{token: "tok-1", refreshed: "tok-2"}
	client := newTestClient(t, server.URL, tokens)
	req, err := client.NewRequest(context.Background(), http.MethodGet, "/courses", nil)
	require.NoError(t, err)

	resp, err := client.Do(context.Background(), req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusUnauthorized, resp.StatusCode, "second 401 is reported, not swallowed")
	require.Equal(t, 2, requests)
	require.Equal(t, 1, tokens.RefreshCalls)
}

func TestDoWithoutTokenIsLocalError(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
	}))
	defer server.Close()

	tokens := &fakeTokenSource{err: apperrors.ErrCredentialMissing}
	client := newTestClient(t, server.URL, tokens)
	req, err := client.NewRequest(context.Background(), http.MethodGet, "/courses", nil)
	require.NoError(t, err)

	_, err = client.Do(context.Background(), req)
	require.ErrorIs(t, err, apperrors.ErrCredentialMissing)
	require.Equal(t, 0, requests, "no request may be sent with an empty bearer header")
}

func TestUploadPreservesContentType(t *testing.T) {
	const contentType = "multipart/form-data; boundary=test-boundary-42"
	var gotContentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, &fakeTokenSource{token: "tok-1"})
	resp, err := client.Upload(context.Background(), "/assignments/upload", nil, contentType)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, contentType, gotContentType)
}

func TestGetJSONDecodesResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"title":"Intro to Go"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, &fakeTokenSource{token: "tok-1"})

	var course struct {
		Title string `json:"title"`
	}
	err := client.GetJSON(context.Background(), "/courses/1", &course)
	require.NoError(t, err)
	require.Equal(t, "Intro to Go", course.Title)
}

func TestGetJSONSurfacesUpstreamRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, &fakeTokenSource{token: "tok-1"})
	err := client.GetJSON(context.Background(), "/courses/1", nil)
	require.ErrorIs(t, err, apperrors.ErrUpstreamRejected)
}

func TestStreamCancelsWithContext(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-release
	}))
	defer server.Close()
	defer close(release)

	client := newTestClient(t, server.URL, &fakeTokenSource{token: "tok-1"})

	ctx, cancel := context.WithCancel(context.Background())
	body, err := client.Stream(ctx, "/chat/stream")
	require.NoError(t, err)
	defer body.Close()

	cancel()
	buf := make([]byte, 16)
	_, err = body.Read(buf)
	require.Error(t, err, "cancelling the context must abort the stream read")
}

func TestNewClientRequiresDependencies(t *testing.T) {
	_, err := fetch.NewClient("", &fakeTokenSource{})
	require.Error(t, err)

	_, err = fetch.NewClient("http://localhost", nil)
	require.Error(t, err)
	require.True(t, errors.Is(err, apperrors.ErrCredentialMissing))
}
