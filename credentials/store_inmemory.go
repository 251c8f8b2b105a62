package credentials

import "sync"

// MemoryStore is a concurrency safe in-memory Store
type MemoryStore struct {
	mu         sync.RWMutex
	credential *Credential
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty credential store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Set stores a copy of credential so later changes by the caller are not seen
func (s *MemoryStore) Set(credential *Credential) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if credential == nil {
		s.credential = nil
		return
	}
	c := *credential
	s.credential = &c
}

// Get returns a copy of the stored credential, nil when empty
func (s *MemoryStore) Get() *Credential {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.credential == nil {
		return nil
	}
	c := *s.credential
	return &c
}

func (s *MemoryStore) Clear() {
	s.Set(nil)
}

func (s *MemoryStore) CompareAndClear(accessToken string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.credential == nil || s.credential.AccessToken != accessToken {
		return false
	}
	s.credential = nil
	return true
}
