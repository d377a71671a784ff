package providerfake

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nxank4/go-llct-client/session"
)

var _ session.Provider = (*FakeProvider)(nil)

// FakeProvider is a scripted in-memory session.Provider for tests.
type FakeProvider struct {
	lock sync.Mutex

	current *session.Session

	// RefreshResult is returned by Refresh when RefreshFunc is nil.
	RefreshResult *session.Session
	RefreshErr    error
	// RefreshDelay makes Refresh block, widening race windows in concurrency tests.
	RefreshDelay time.Duration
	RefreshFunc  func(ctx context.Context) (*session.Session, error)

	EstablishResult *session.Session
	EstablishErr    error

	RefreshCalls   int
	EstablishCalls int
	SignOutCalls   int

	// Last tokens passed to EstablishFromTokens.
	LastAccessToken  string
	LastRefreshToken string
}

func NewFakeProvider() *FakeProvider {
	return &FakeProvider{}
}

// SetCurrent replaces the snapshot returned by Current.
func (p *FakeProvider) SetCurrent(s *session.Session) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.current = s
}

func (p *FakeProvider) Current(_ context.Context) (*session.Session, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.current == nil {
		return &session.Session{Status: session.StatusUnauthenticated}, nil
	}
	return p.current, nil
}

func (p *FakeProvider) Refresh(ctx context.Context) (*session.Session, error) {
	p.lock.Lock()
	p.RefreshCalls++
	delay := p.RefreshDelay
	fn := p.RefreshFunc
	result, err := p.RefreshResult, p.RefreshErr
	p.lock.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fn != nil {
		return fn(ctx)
	}
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, errors.New("no refresh result configured")
	}
	p.lock.Lock()
	p.current = result
	p.lock.Unlock()
	return result, nil
}

func (p *FakeProvider) EstablishFromTokens(_ context.Context, accessToken, refreshToken string) (*session.Session, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.EstablishCalls++
	p.LastAccessToken = accessToken
	p.LastRefreshToken = refreshToken
	if p.EstablishErr != nil {
		return nil, p.EstablishErr
	}
	if p.EstablishResult == nil {
		return nil, errors.New("no establish result configured")
	}
	p.current = p.EstablishResult
	return p.EstablishResult, nil
}

func (p *FakeProvider) SignOut(_ context.Context) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.SignOutCalls++
	p.current = nil
	return nil
}
