package skillstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/esinanturan/Acontext/internal/errors"
	"github.com/esinanturan/Acontext/internal/lock"
)

// MemoryStore is an in-process Store for tests and the standalone runner.
// Token validation goes through the same lock service the writers use, so
// the expiry race behaves the same as the Redis store.
type MemoryStore struct {
	locks lock.Service

	mu     sync.RWMutex
	skills map[uuid.UUID]Skill
}

func NewMemoryStore(locks lock.Service) *MemoryStore {
	return &MemoryStore{
		locks:  locks,
		skills: make(map[uuid.UUID]Skill),
	}
}

func (s *MemoryStore) Read(_ context.Context, id uuid.UUID) (Skill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	skill, ok := s.skills[id]
	if !ok {
		return Skill{}, errors.ErrSkillNotFound
	}
	return skill, nil
}

func (s *MemoryStore) Write(ctx context.Context, id uuid.UUID, content string, lease lock.Lease) error {
	// The mutex spans the token check and the write, mirroring the Redis
	// backend's atomic compare-and-set: a competing writer cannot land
	// between a successful validation and the commit.
	s.mu.Lock()
	defer s.mu.Unlock()
	holder, err := s.locks.Holder(ctx, lease.Key)
	if err != nil {
		return err
	}
	if holder != lease.Token {
		return errors.ErrLeaseExpired
	}
	s.skills[id] = Skill{ID: id, Content: content, UpdatedAt: time.Now()}
	return nil
}

// Put seeds a skill without lease validation. Test helper.
func (s *MemoryStore) Put(skill Skill) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skills[skill.ID] = skill
}
