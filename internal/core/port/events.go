package port

import (
	"context"

	"github.com/taskbridge/provider-verification/internal/core/domain"
)

// EventPublisher pushes onboarding lifecycle events to the message bus.
type EventPublisher interface {
	PublishSessionStarted(ctx context.Context, event domain.SessionStartedEvent) error
	PublishSessionEnded(ctx context.Context, event domain.SessionEndedEvent) error
	PublishStepCompleted(ctx context.Context, event domain.StepCompletedEvent) error
	PublishStepLockContended(ctx context.Context, event domain.StepLockContendedEvent) error
	PublishOnboardingSubmitted(ctx context.Context, event domain.OnboardingSubmittedEvent) error
}
