package keyring

import (
	"context"
	"sync"

	"ticketeer/pkg/platform/sentinel"
)

// MemoryStore keeps credentials and keys in memory for tests and the setup
// wizard's dry-run mode.
type MemoryStore struct {
	mu    sync.RWMutex
	creds map[string]*Credential
	keys  *Keys
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{creds: make(map[string]*Credential)}
}

func (s *MemoryStore) CreateCredential(_ context.Context, cred *Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.creds {
		if existing.Username == cred.Username {
			return sentinel.ErrConflict
		}
	}
	c := *cred
	s.creds[cred.ID] = &c
	return nil
}

func (s *MemoryStore) FindCredentialByUsername(_ context.Context, username string) (*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, cred := range s.creds {
		if cred.Username == username {
			c := *cred
			return &c, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *MemoryStore) FindCredential(_ context.Context, id string) (*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if cred, ok := s.creds[id]; ok {
		c := *cred
		return &c, nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *MemoryStore) UpdateCredentialKeys(_ context.Context, id, verifier string, wrappedDataKey []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cred, ok := s.creds[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	cred.PasswordVerifier = verifier
	cred.WrappedDataKey = append([]byte(nil), wrappedDataKey...)
	return nil
}

func (s *MemoryStore) FindKeys(_ context.Context) (*Keys, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.keys == nil {
		return nil, sentinel.ErrNotFound
	}
	k := *s.keys
	return &k, nil
}

func (s *MemoryStore) SaveSetup(_ context.Context, keys *Keys, cred *Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.creds {
		if existing.Username == cred.Username {
			return sentinel.ErrConflict
		}
	}
	k := *keys
	c := *cred
	s.keys = &k
	s.creds[cred.ID] = &c
	return nil
}
