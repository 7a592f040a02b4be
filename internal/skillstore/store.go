// Package skillstore persists skill documents. Writes are serialized by the
// lock service: every write carries the caller's lease, and the store
// commits only while that lease still holds the skill's key. The store
// itself performs no merging; last valid write wins.
package skillstore

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/esinanturan/Acontext/internal/lock"
)

// Skill is one stored skill document.
type Skill struct {
	ID        uuid.UUID `json:"id"`
	Content   string    `json:"content"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store reads and writes skill documents.
type Store interface {
	// Read loads a skill. Returns errors.ErrSkillNotFound for unknown IDs;
	// callers creating a skill treat that as empty content.
	Read(ctx context.Context, id uuid.UUID) (Skill, error)

	// Write commits content under the given lease. Returns
	// errors.ErrLeaseExpired when the lease no longer holds the skill's
	// key, in which case nothing is written.
	Write(ctx context.Context, id uuid.UUID, content string, lease lock.Lease) error
}
