// Package lock provides short-lived, renewable exclusive leases keyed by
// skill identifier. A lease is the pipeline's only serialization mechanism
// for skill writes: the skill store performs no conflict detection of its
// own, so every writer must hold the lease for the target identifier.
//
// Leases are not reentrant. Each carries an opaque token that the skill
// store compares on commit, which closes the race where a worker stalls
// past its TTL and another worker acquires the same key.
package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Lease is a time-bounded exclusive claim on a key.
type Lease struct {
	// Key is the resource identifier the lease covers.
	Key string
	// Token uniquely identifies this grant; a fresh acquisition of the same
	// key yields a different token.
	Token string
	// TTL is the lease duration as granted.
	TTL time.Duration
}

// NewToken returns a fresh opaque lease token.
func NewToken() string {
	return uuid.NewString()
}

// Service grants and manages leases.
type Service interface {
	// Acquire attempts to take the lease for key. Returns ErrLockDenied
	// (see the errors package) when another holder exists.
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)

	// Renew extends a held lease by its TTL. Returns ErrLeaseExpired when
	// the lease is no longer held (expired or taken by another worker).
	Renew(ctx context.Context, lease Lease) error

	// Release gives the lease up. Releasing an expired or superseded lease
	// is not an error; the hold is simply gone.
	Release(ctx context.Context, lease Lease) error

	// Holder returns the token currently holding key, or "" when unheld.
	// The skill store uses this for its compare-on-commit check.
	Holder(ctx context.Context, key string) (string, error)
}
