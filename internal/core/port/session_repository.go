package port

import (
	"context"
	"time"

	"github.com/taskbridge/provider-verification/internal/core/domain"
)

// SessionRepository deals with verification session storage.
type SessionRepository interface {
	Create(ctx context.Context, session domain.VerificationSession) error
	Get(ctx context.Context, sessionID string) (*domain.VerificationSession, error)
	FindActiveByFingerprint(ctx context.Context, providerID, fingerprint string) (*domain.VerificationSession, error)
	Touch(ctx context.Context, sessionID string, at time.Time) error
	End(ctx context.Context, sessionID, reason string) error
	ExpireStale(ctx context.Context, before time.Time) (int, error)
}
