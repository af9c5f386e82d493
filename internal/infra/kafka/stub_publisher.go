package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/taskbridge/provider-verification/internal/core/domain"
	"github.com/taskbridge/provider-verification/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. Useful for development environments.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType, providerID string, at time.Time, payload any) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("Stub event published",
		zap.String("event_type", eventType),
		zap.String("provider_id", providerID),
		zap.Time("timestamp", at.UTC()),
		zap.Any("payload", payload),
	)
}

// PublishSessionStarted logs onboarding.session.started events.
func (p *StubPublisher) PublishSessionStarted(_ context.Context, event domain.SessionStartedEvent) error {
	payload := map[string]any{
		"session_id":         event.SessionID,
		"device_fingerprint": event.DeviceFingerprint,
		"started_at":         event.StartedAt,
		"expires_at":         event.ExpiresAt,
	}
	p.logEvent("onboarding.session.started", event.ProviderID, event.StartedAt, payload)
	return nil
}

// PublishSessionEnded logs onboarding.session.ended events.
func (p *StubPublisher) PublishSessionEnded(_ context.Context, event domain.SessionEndedEvent) error {
	payload := map[string]any{
		"session_id": event.SessionID,
		"ended_at":   event.EndedAt,
		"reason":     event.Reason,
	}
	p.logEvent("onboarding.session.ended", event.ProviderID, event.EndedAt, payload)
	return nil
}

// PublishStepCompleted logs onboarding.step.completed events.
func (p *StubPublisher) PublishStepCompleted(_ context.Context, event domain.StepCompletedEvent) error {
	payload := map[string]any{
		"session_id":       event.SessionID,
		"step_number":      int(event.StepNumber),
		"step_name":        event.StepName,
		"completed_at":     event.CompletedAt,
		"via_submission":   event.ViaSubmission,
		"progress_percent": event.ProgressPercent,
	}
	p.logEvent("onboarding.step.completed", event.ProviderID, event.CompletedAt, payload)
	return nil
}

// PublishStepLockContended logs onboarding.step.lock_contended events.
func (p *StubPublisher) PublishStepLockContended(_ context.Context, event domain.StepLockContendedEvent) error {
	payload := map[string]any{
		"step_number":     int(event.StepNumber),
		"requested_by":    event.RequestedBy,
		"held_by":         event.HeldBy,
		"lock_expires_at": event.LockExpiresAt,
		"contended_at":    event.ContendedAt,
	}
	p.logEvent("onboarding.step.lock_contended", event.ProviderID, event.ContendedAt, payload)
	return nil
}

// PublishOnboardingSubmitted logs onboarding.submitted events.
func (p *StubPublisher) PublishOnboardingSubmitted(_ context.Context, event domain.OnboardingSubmittedEvent) error {
	payload := map[string]any{
		"session_id":           event.SessionID,
		"submitted_at":         event.SubmittedAt,
		"steps_completed_late": event.StepsCompletedLate,
		"verification_status":  string(event.VerificationStatus),
	}
	p.logEvent("onboarding.submitted", event.ProviderID, event.SubmittedAt, payload)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
