package port

import (
	"context"

	"github.com/taskbridge/provider-verification/internal/core/domain"
)

// OnboardingRepository persists the per-provider aggregate onboarding record.
type OnboardingRepository interface {
	Get(ctx context.Context, providerID string) (*domain.OnboardingProgress, error)
	Upsert(ctx context.Context, progress domain.OnboardingProgress) error
	SetStripeValidation(ctx context.Context, providerID, status string, validationErrors []string) error
}
