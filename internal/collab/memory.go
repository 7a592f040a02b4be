package collab

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/esinanturan/Acontext/internal/errors"
)

// MemoryStore is an in-process Store used by tests and by the standalone
// runner when no collaborator endpoint is configured.
type MemoryStore struct {
	mu           sync.RWMutex
	tasks        map[uuid.UUID]Task
	transcripts  map[uuid.UUID][]Message
	destinations map[uuid.UUID]*uuid.UUID
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks:        make(map[uuid.UUID]Task),
		transcripts:  make(map[uuid.UUID][]Message),
		destinations: make(map[uuid.UUID]*uuid.UUID),
	}
}

// PutTask registers or replaces a task snapshot.
func (s *MemoryStore) PutTask(t Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.ID] = t
}

// PutTranscript registers the transcript for a task.
func (s *MemoryStore) PutTranscript(taskID uuid.UUID, msgs []Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcripts[taskID] = msgs
}

// SetDestination configures the learning destination for a session. A nil
// skill ID disables learning for that session.
func (s *MemoryStore) SetDestination(sessionID uuid.UUID, skillID *uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.destinations[sessionID] = skillID
}

func (s *MemoryStore) FetchTask(_ context.Context, id uuid.UUID) (Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return Task{}, errors.ErrTaskNotFound
	}
	return t, nil
}

func (s *MemoryStore) FetchTranscript(_ context.Context, taskID uuid.UUID) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.transcripts[taskID]
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *MemoryStore) LearningDestination(_ context.Context, sessionID uuid.UUID) (*uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	dest, ok := s.destinations[sessionID]
	if !ok {
		return nil, nil
	}
	if dest == nil {
		return nil, nil
	}
	id := *dest
	return &id, nil
}
