package refresh_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	apperrors "github.com/nxank4/go-llct-client/internal/errors"
	"github.com/nxank4/go-llct-client/refresh"
	"github.com/nxank4/go-llct-client/session"
	"github.com/nxank4/go-llct-client/session/providerfake"
	"github.com/nxank4/go-llct-client/tokenstore"
	"github.com/nxank4/go-llct-client/tokenstore/storefake"
)

const (
	refreshedToken = "refreshed-access-token"
	storedToken    = "stored-opaque-token"
)

type testFixture struct {
	provider    *providerfake.FakeProvider
	store       *storefake.FakeStore
	coordinator *refresh.Coordinator
}

func setupTestFixture(t *testing.T, options ...refresh.CoordinatorOption) *testFixture {
	t.Helper()

	provider := providerfake.NewFakeProvider()
	store := storefake.NewFakeStore()
	coordinator, err := refresh.NewCoordinator(provider, store, options...)
	require.NoError(t, err)

	return &testFixture{provider: provider, store: store, coordinator: coordinator}
}

func authenticatedSession(token string) *session.Session {
	return &session.Session{
		Status:       session.StatusAuthenticated,
		AccessToken:  token,
		RefreshToken: "rotated-refresh-token",
	}
}

func TestNewCoordinatorRequiresDependencies(t *testing.T) {
	_, err := refresh.NewCoordinator(nil, storefake.NewFakeStore())
	require.Error(t, err)

	_, err = refresh.NewCoordinator(providerfake.NewFakeProvider(), nil)
	require.Error(t, err)
}

func TestEnsureFreshTokenReturnsStoredToken(t *testing.T) {
	f := setupTestFixture(t)
	f.store.Set(tokenstore.TokenPair{AccessToken: storedToken, IssuedAt: time.Now()})

	token, err := f.coordinator.EnsureFreshToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, storedToken, token)
	require.Equal(t, 0, f.provider.RefreshCalls)
}

func TestEnsureFreshTokenRefreshesWhenStoreEmpty(t *testing.T) {
	f := setupTestFixture(t)
	f.provider.RefreshResult = authenticatedSession(refreshedToken)

	token, err := f.coordinator.EnsureFreshToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, refreshedToken, token)
	require.Equal(t, 1, f.provider.RefreshCalls)

	pair, ok := f.store.Get()
	require.True(t, ok)
	require.Equal(t, refreshedToken, pair.AccessToken)
	require.Equal(t, "rotated-refresh-token", pair.RefreshToken)
}

func TestEnsureFreshTokenSingleFlight(t *testing.T) {
	f := setupTestFixture(t)
	f.provider.RefreshResult = authenticatedSession(refreshedToken)
	f.provider.RefreshDelay = 200 * time.Millisecond

	const callers = 25
	var wg sync.WaitGroup
	start := make(chan struct{})
	tokens := make([]string, callers)
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			tokens[i], errs[i] = f.coordinator.EnsureFreshToken(context.Background())
		}(i)
	}
	close(start)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, refreshedToken, tokens[i])
	}
	require.Equal(t, 1, f.provider.RefreshCalls, "concurrent callers must share one refresh request")
}

func TestEnsureFreshTokenRefreshesExpiredJWT(t *testing.T) {
	f := setupTestFixture(t)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	expiredToken, err := expired.SignedString([]byte("test-signing-key"))
	require.NoError(t, err)

	f.store.Set(tokenstore.TokenPair{AccessToken: expiredToken, IssuedAt: time.Now().Add(-2 * time.Hour)})
	f.provider.RefreshResult = authenticatedSession(refreshedToken)

	token, err := f.coordinator.EnsureFreshToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, refreshedToken, token)
	require.Equal(t, 1, f.provider.RefreshCalls)
}

func TestEnsureFreshTokenKeepsLiveJWT(t *testing.T) {
	f := setupTestFixture(t)

	live := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	liveToken, err := live.SignedString([]byte("test-signing-key"))
	require.NoError(t, err)

	f.store.Set(tokenstore.TokenPair{AccessToken: liveToken, IssuedAt: time.Now()})

	token, err := f.coordinator.EnsureFreshToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, liveToken, token)
	require.Equal(t, 0, f.provider.RefreshCalls)
}

func TestForceRefreshBypassesStoredToken(t *testing.T) {
	f := setupTestFixture(t)
	f.store.Set(tokenstore.TokenPair{AccessToken: storedToken, IssuedAt: time.Now()})
	f.provider.RefreshResult = authenticatedSession(refreshedToken)

	token, err := f.coordinator.ForceRefresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, refreshedToken, token)
	require.Equal(t, 1, f.provider.RefreshCalls)
}

func TestRefreshErrorIsTerminal(t *testing.T) {
	f := setupTestFixture(t)
	f.store.Set(tokenstore.TokenPair{AccessToken: storedToken, IssuedAt: time.Now()})
	f.provider.RefreshResult = &session.Session{
		Status:       session.StatusUnauthenticated,
		RefreshError: session.RefreshErrorExpired,
	}

	_, err := f.coordinator.ForceRefresh(context.Background())
	require.ErrorIs(t, err, apperrors.ErrSessionExpired)

	_, ok := f.store.Get()
	require.False(t, ok, "store must be cleared on unrecoverable refresh failure")
}

func TestRefreshWithoutBackendTokenFails(t *testing.T) {
	f := setupTestFixture(t)
	f.provider.RefreshResult = &session.Session{Status: session.StatusAuthenticated}

	_, err := f.coordinator.EnsureFreshToken(context.Background())
	require.ErrorIs(t, err, apperrors.ErrCredentialMissing)
}

func TestRefreshErrorSharedByAllWaiters(t *testing.T) {
	f := setupTestFixture(t)
	f.provider.RefreshResult = &session.Session{
		Status:       session.StatusUnauthenticated,
		RefreshError: session.RefreshErrorRevoked,
	}
	f.provider.RefreshDelay = 100 * time.Millisecond

	const callers = 10
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.coordinator.EnsureFreshToken(context.Background())
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.ErrorIs(t, errs[i], apperrors.ErrSessionExpired)
	}
	require.Equal(t, 1, f.provider.RefreshCalls)
}
