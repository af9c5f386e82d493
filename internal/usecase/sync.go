package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taskbridge/provider-verification/internal/core/domain"
	"github.com/taskbridge/provider-verification/internal/core/port"
	"github.com/taskbridge/provider-verification/internal/repository"
)

// PushOutcome distinguishes the result of confirming a local write remotely.
type PushOutcome string

const (
	// PushConfirmed means the server accepted and now reflects the write.
	PushConfirmed PushOutcome = "confirmed"
	// PushConflict means the write was withheld because it would regress
	// observed server state; the caller decides how to resolve.
	PushConflict PushOutcome = "conflict"
	// PushFailed means the remote call failed; local state is preserved and
	// the step is flagged as pending sync.
	PushFailed PushOutcome = "failed"
)

// PushResult reports the outcome of a remote confirmation.
type PushResult struct {
	Outcome PushOutcome
	Record  *domain.StepProgress
	Err     error
}

// OnboardingPatch carries optional aggregate fields merged into the remote
// onboarding record alongside the locally derived state.
type OnboardingPatch struct {
	StartedAt   *time.Time
	SubmittedAt *time.Time
}

// SyncService reconciles the local flow state with the remote record. Local
// writes are applied optimistically first; this layer confirms them remotely
// and guarantees the store eventually reflects the server's last-confirmed
// state for any step once a poll or push response is observed.
type SyncService struct {
	flow       *FlowState
	onboarding port.OnboardingRepository
	steps      port.StepRepository
	events     port.EventPublisher
	logger     *zap.Logger
	now        func() time.Time

	mu          sync.Mutex
	serverSteps map[domain.StepNumber]domain.StepStatus
	pending     map[domain.StepNumber]string
}

// NewSyncService constructs the sync layer for one provider's flow.
func NewSyncService(flow *FlowState, onboarding port.OnboardingRepository, steps port.StepRepository, events port.EventPublisher, logger *zap.Logger) *SyncService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncService{
		flow:        flow,
		onboarding:  onboarding,
		steps:       steps,
		events:      events,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
		serverSteps: make(map[domain.StepNumber]domain.StepStatus),
		pending:     make(map[domain.StepNumber]string),
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (s *SyncService) WithClock(clock func() time.Time) *SyncService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// SyncFromServer polls the remote onboarding record and step rows and merges
// them into the local store. Read-only remotely, safe to poll. Server state
// wins for every step it reports, even over unconfirmed local changes.
func (s *SyncService) SyncFromServer(ctx context.Context) (*domain.OnboardingProgress, []domain.StepProgress, error) {
	providerID := s.flow.ProviderID()
	if providerID == "" {
		return nil, nil, ErrProviderRequired
	}

	progress, err := s.onboarding.Get(ctx, providerID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, nil, fmt.Errorf("fetch onboarding progress: %w", err)
	}

	stepRows, err := s.steps.ListByProvider(ctx, providerID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, nil, fmt.Errorf("fetch step progress: %w", err)
	}

	s.mu.Lock()
	for _, row := range stepRows {
		s.serverSteps[row.StepNumber] = row.Status
	}
	s.mu.Unlock()

	for _, row := range stepRows {
		s.flow.ApplyServerStep(row)
		s.clearPendingIfSettled(row.StepNumber)
	}

	if progress != nil {
		s.flow.SetVerificationStatus(progress.VerificationStatus)
		if progress.CurrentStep > 0 && s.flow.CurrentStep() == 0 {
			s.flow.SetCurrentStep(progress.CurrentStep)
		}
	}

	return progress, stepRows, nil
}

// PushStepCompletion confirms a local step transition remotely. On failure
// the local state is NOT rolled back: the write stays flagged as pending so
// the user's progress never appears to vanish.
func (s *SyncService) PushStepCompletion(ctx context.Context, step domain.StepNumber) PushResult {
	local := s.flow.StepProgressFor(step)
	if local == nil {
		return PushResult{Outcome: PushFailed, Err: fmt.Errorf("step %d has no local progress", step)}
	}

	if s.wouldRegressServer(step, local.Status) {
		return PushResult{Outcome: PushConflict, Record: local}
	}

	if err := s.steps.Upsert(ctx, *local); err != nil {
		s.markPending(step, err)
		s.logger.Warn("push step completion failed, keeping local state",
			zap.String("provider_id", s.flow.ProviderID()),
			zap.Int("step", int(step)),
			zap.Error(err),
		)
		return PushResult{Outcome: PushFailed, Record: local, Err: err}
	}

	s.mu.Lock()
	s.serverSteps[step] = local.Status
	delete(s.pending, step)
	s.mu.Unlock()

	if local.IsCompleted() {
		s.publishStepCompleted(ctx, local)
	}

	return PushResult{Outcome: PushConfirmed, Record: local}
}

// PushOnboardingUpdate mirrors the locally derived aggregate (current step,
// completed set, status, session) to the remote record, merging the optional
// patch fields. The progress percentage is recomputed from the completed set
// on read, never persisted independently.
func (s *SyncService) PushOnboardingUpdate(ctx context.Context, patch OnboardingPatch) error {
	providerID := s.flow.ProviderID()
	if providerID == "" {
		return ErrProviderRequired
	}

	aggregate := s.flow.AggregateProgress()

	existing, err := s.onboarding.Get(ctx, providerID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("fetch onboarding progress: %w", err)
	}
	if existing != nil {
		aggregate.StartedAt = existing.StartedAt
		aggregate.SubmittedAt = existing.SubmittedAt
		aggregate.CompletedAt = existing.CompletedAt
		aggregate.ApprovedAt = existing.ApprovedAt
		aggregate.RejectedAt = existing.RejectedAt
		aggregate.StripeValidationStatus = existing.StripeValidationStatus
		aggregate.StripeValidationErrors = existing.StripeValidationErrors
		aggregate.NotificationPreferences = existing.NotificationPreferences
	}
	if patch.StartedAt != nil {
		aggregate.StartedAt = patch.StartedAt
	}
	if patch.SubmittedAt != nil {
		aggregate.SubmittedAt = patch.SubmittedAt
	}
	if aggregate.StartedAt == nil {
		startedAt := s.now()
		aggregate.StartedAt = &startedAt
	}

	if err := s.onboarding.Upsert(ctx, aggregate); err != nil {
		return fmt.Errorf("push onboarding update: %w", err)
	}
	return nil
}

// RecordStripeValidation stores the payment-account validation outcome
// reported by the billing integration on the remote record. The flow only
// ever surfaces it read-only. A provider with no remote record yet gets one
// created first.
func (s *SyncService) RecordStripeValidation(ctx context.Context, status string, validationErrors []string) error {
	providerID := s.flow.ProviderID()
	if providerID == "" {
		return ErrProviderRequired
	}

	err := s.onboarding.SetStripeValidation(ctx, providerID, status, validationErrors)
	if errors.Is(err, repository.ErrNotFound) {
		if err := s.PushOnboardingUpdate(ctx, OnboardingPatch{}); err != nil {
			return err
		}
		err = s.onboarding.SetStripeValidation(ctx, providerID, status, validationErrors)
	}
	if err != nil {
		return fmt.Errorf("record stripe validation: %w", err)
	}
	return nil
}

// HasStepConflict reports whether the local and last-known-server status for
// the step diverge. The engine never auto-resolves; the caller decides.
func (s *SyncService) HasStepConflict(step domain.StepNumber) bool {
	local := s.flow.StepProgressFor(step)
	if local == nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	server, ok := s.serverSteps[step]
	return ok && server != local.Status
}

// PendingSyncError returns the last sync failure recorded for the step, if any.
func (s *SyncService) PendingSyncError(step domain.StepNumber) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.pending[step]
	return msg, ok
}

func (s *SyncService) wouldRegressServer(step domain.StepNumber, local domain.StepStatus) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	server, ok := s.serverSteps[step]
	return ok && server == domain.StepCompleted && local != domain.StepCompleted
}

func (s *SyncService) markPending(step domain.StepNumber, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[step] = err.Error()
}

func (s *SyncService) clearPendingIfSettled(step domain.StepNumber) {
	local := s.flow.StepProgressFor(step)
	if local == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if server, ok := s.serverSteps[step]; ok && server == local.Status {
		delete(s.pending, step)
	}
}

func (s *SyncService) publishStepCompleted(ctx context.Context, progress *domain.StepProgress) {
	if s.events == nil {
		return
	}

	def, _ := domain.StepByNumber(progress.StepNumber)
	completedAt := s.now()
	if progress.CompletedAt != nil {
		completedAt = *progress.CompletedAt
	}

	event := domain.StepCompletedEvent{
		EventID:         uuid.NewString(),
		ProviderID:      s.flow.ProviderID(),
		SessionID:       s.flow.SessionID(),
		StepNumber:      progress.StepNumber,
		StepName:        def.Name,
		CompletedAt:     completedAt,
		ViaSubmission:   progress.CompletedViaSubmission,
		ProgressPercent: s.flow.AggregateProgress().ProgressPercentage(),
	}
	if err := s.events.PublishStepCompleted(ctx, event); err != nil {
		s.logger.Warn("publish step completed failed", zap.Error(err))
	}
}
