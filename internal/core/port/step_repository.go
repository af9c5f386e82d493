package port

import (
	"context"
	"time"

	"github.com/taskbridge/provider-verification/internal/core/domain"
)

// StepRepository persists per-step progress rows keyed by provider and step.
type StepRepository interface {
	Get(ctx context.Context, providerID string, step domain.StepNumber) (*domain.StepProgress, error)
	ListByProvider(ctx context.Context, providerID string) ([]domain.StepProgress, error)
	Upsert(ctx context.Context, progress domain.StepProgress) error
	SetLock(ctx context.Context, providerID string, step domain.StepNumber, lock *domain.StepLock) error
	ClearExpiredLocks(ctx context.Context, before time.Time) (int, error)
}
