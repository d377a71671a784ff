package storefake

import (
	"sync"

	"github.com/nxank4/go-llct-client/tokenstore"
)

var _ tokenstore.Store = (*FakeStore)(nil)

type FakeStore struct {
	lock sync.RWMutex
	pair *tokenstore.TokenPair

	SetCalls   int
	ClearCalls int
}

func NewFakeStore() *FakeStore {
	return &FakeStore{}
}

func (s *FakeStore) Get() (tokenstore.TokenPair, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	if s.pair == nil {
		return tokenstore.TokenPair{}, false
	}
	return *s.pair, true
}

func (s *FakeStore) Set(pair tokenstore.TokenPair) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.SetCalls++
	s.pair = &pair
}

func (s *FakeStore) Clear() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.ClearCalls++
	s.pair = nil
}
