package port

import (
	"context"
	"time"

	"github.com/taskbridge/provider-verification/internal/core/domain"
)

// StepLockStore is the authoritative, time-boxed exclusive lock per
// (provider, step). The server-side store is the arbiter for acquisition; a
// local lock is provisional until confirmed here.
type StepLockStore interface {
	// Acquire claims the lock for the session. Returns false without error when
	// another session holds a non-expired lock.
	Acquire(ctx context.Context, providerID string, step domain.StepNumber, sessionID string, ttl time.Duration) (bool, error)
	// Release drops the lock when held by the session. Releasing a lock held by
	// another session is a no-op.
	Release(ctx context.Context, providerID string, step domain.StepNumber, sessionID string) error
	// Get returns the current lock record, or nil when the step is unlocked.
	Get(ctx context.Context, providerID string, step domain.StepNumber) (*domain.StepLock, error)
}
