package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taskbridge/provider-verification/internal/core/domain"
	"github.com/taskbridge/provider-verification/internal/core/port"
)

var (
	// ErrAlreadySubmitted indicates the onboarding record was already finalized.
	ErrAlreadySubmitted = errors.New("onboarding already submitted")
	// ErrSubmissionIncomplete indicates a step could not be finalized.
	ErrSubmissionIncomplete = errors.New("onboarding submission incomplete")
)

// SubmissionService finalizes the wizard: it retroactively completes steps a
// navigation bug may have skipped, confirms every step remotely, and moves
// the verification status forward to submitted.
type SubmissionService struct {
	flow   *FlowState
	sync   *SyncService
	events port.EventPublisher
	logger *zap.Logger
}

// NewSubmissionService constructs the submission workflow.
func NewSubmissionService(flow *FlowState, sync *SyncService, events port.EventPublisher, logger *zap.Logger) *SubmissionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubmissionService{flow: flow, sync: sync, events: events, logger: logger}
}

// Submit finalizes onboarding. Steps not yet completed are completed
// retroactively with via-submission metadata before the status transition;
// the resolver must report the sentinel done step afterwards.
func (s *SubmissionService) Submit(ctx context.Context) (*domain.OnboardingProgress, error) {
	if s.flow.ProviderID() == "" {
		return nil, ErrProviderRequired
	}

	status := s.flow.VerificationStatus()
	if !status.CanTransitionTo(domain.VerificationSubmitted) {
		if status == domain.VerificationSubmitted {
			return nil, ErrAlreadySubmitted
		}
		return nil, fmt.Errorf("%w: cannot submit from status %q", ErrSubmissionIncomplete, status)
	}

	snapshot := s.flow.StepsSnapshot()
	var completedLate []domain.StepNumber
	for n := domain.StepIdentityDocument; n <= domain.StepTerms; n++ {
		if progress, ok := snapshot[n]; ok && progress.Status == domain.StepCompleted {
			continue
		}
		if _, err := s.flow.CompleteStepViaSubmission(n); err != nil {
			return nil, fmt.Errorf("retroactively complete step %d: %w", n, err)
		}
		completedLate = append(completedLate, n)
	}

	if len(completedLate) > 0 {
		s.logger.Info("retroactively completed skipped steps on submission",
			zap.String("provider_id", s.flow.ProviderID()),
			zap.Any("steps", completedLate),
		)
	}

	if first := FirstIncompleteStep(s.flow.StepsSnapshot()); first != domain.DoneStep {
		return nil, fmt.Errorf("%w: step %d still incomplete", ErrSubmissionIncomplete, first)
	}

	for n := domain.StepIdentityDocument; n <= domain.StepTerms; n++ {
		result := s.sync.PushStepCompletion(ctx, n)
		if result.Outcome == PushFailed {
			s.logger.Warn("step confirmation pending after submission push",
				zap.Int("step", int(n)),
				zap.Error(result.Err),
			)
		}
	}

	s.flow.SetVerificationStatus(domain.VerificationSubmitted)
	s.flow.SetCurrentStep(domain.DoneStep)

	submittedAt := s.flow.now()
	if err := s.sync.PushOnboardingUpdate(ctx, OnboardingPatch{SubmittedAt: &submittedAt}); err != nil {
		// The status transition stands locally; the record stays pending sync.
		s.logger.Warn("push submitted onboarding update failed", zap.Error(err))
	}

	if s.events != nil {
		event := domain.OnboardingSubmittedEvent{
			EventID:            uuid.NewString(),
			ProviderID:         s.flow.ProviderID(),
			SessionID:          s.flow.SessionID(),
			SubmittedAt:        submittedAt,
			StepsCompletedLate: completedLate,
			VerificationStatus: domain.VerificationSubmitted,
		}
		if err := s.events.PublishOnboardingSubmitted(ctx, event); err != nil {
			s.logger.Warn("publish onboarding submitted failed", zap.Error(err))
		}
	}

	aggregate := s.flow.AggregateProgress()
	aggregate.SubmittedAt = &submittedAt
	return &aggregate, nil
}
