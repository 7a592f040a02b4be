package lock

import (
	"context"
	"sync"
	"time"

	"github.com/esinanturan/Acontext/internal/errors"
)

// MemoryService is an in-process Service for tests and single-node runs.
// Expiry is evaluated lazily on access, so no background sweeper runs.
type MemoryService struct {
	mu    sync.Mutex
	holds map[string]memoryHold

	// now is replaceable in tests to exercise TTL expiry.
	now func() time.Time
}

type memoryHold struct {
	token   string
	expires time.Time
}

// NewMemoryService creates an empty MemoryService.
func NewMemoryService() *MemoryService {
	return &MemoryService{
		holds: make(map[string]memoryHold),
		now:   time.Now,
	}
}

// current returns the live hold for key, dropping it if expired.
func (s *MemoryService) current(key string) (memoryHold, bool) {
	hold, ok := s.holds[key]
	if !ok {
		return memoryHold{}, false
	}
	if s.now().After(hold.expires) {
		delete(s.holds, key)
		return memoryHold{}, false
	}
	return hold, true
}

// Acquire attempts to take the lease for key.
func (s *MemoryService) Acquire(_ context.Context, key string, ttl time.Duration) (Lease, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, held := s.current(key); held {
		return Lease{}, errors.ErrLockDenied
	}

	token := NewToken()
	s.holds[key] = memoryHold{token: token, expires: s.now().Add(ttl)}
	return Lease{Key: key, Token: token, TTL: ttl}, nil
}

// Renew extends a held lease by its TTL.
func (s *MemoryService) Renew(_ context.Context, lease Lease) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	hold, held := s.current(lease.Key)
	if !held || hold.token != lease.Token {
		return errors.ErrLeaseExpired
	}
	s.holds[lease.Key] = memoryHold{token: lease.Token, expires: s.now().Add(lease.TTL)}
	return nil
}

// Release gives the lease up if it is still held by this token.
func (s *MemoryService) Release(_ context.Context, lease Lease) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	hold, held := s.current(lease.Key)
	if held && hold.token == lease.Token {
		delete(s.holds, lease.Key)
	}
	return nil
}

// Holder returns the token currently holding key, or "" when unheld.
func (s *MemoryService) Holder(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hold, held := s.current(key)
	if !held {
		return "", nil
	}
	return hold.token, nil
}
