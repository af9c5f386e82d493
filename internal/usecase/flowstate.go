package usecase

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taskbridge/provider-verification/internal/core/domain"
	"github.com/taskbridge/provider-verification/internal/infra/logger"
)

var (
	// ErrProviderRequired indicates a flow operation ran without a provider ID.
	// This is a programming error, not a runtime condition.
	ErrProviderRequired = errors.New("provider id is required")
	// ErrUnknownStep indicates a step number outside the wizard table.
	ErrUnknownStep = errors.New("unknown step number")
	// ErrNoActiveSession indicates an operation that needs a session ran before
	// InitializeSession.
	ErrNoActiveSession = errors.New("no active verification session")
)

const (
	defaultSessionTTL = 24 * time.Hour
	defaultLockTTL    = 30 * time.Minute
)

// StepPatch is a partial update merged into an existing StepProgress. Nil
// fields leave the current value untouched.
type StepPatch struct {
	Status           *domain.StepStatus
	Data             domain.StepData
	ValidationErrors []string
	StartedAt        *time.Time
	RetryCount       *int
	MaxRetries       *int
}

// FlowStateOptions configures a FlowState instance.
type FlowStateOptions struct {
	ProviderID     string
	SessionTTL     time.Duration
	LockTTL        time.Duration
	MaxStepRetries int
	Logger         *zap.Logger
}

// FlowState is the in-process state store for one provider's onboarding flow.
// It exclusively owns the in-memory representation during an active session;
// the sync layer reconciles it with the remote record. Every operation is
// synchronous and, apart from lock acquisition, cannot fail at runtime.
type FlowState struct {
	mu             sync.Mutex
	logger         *zap.Logger
	now            func() time.Time
	sessionTTL     time.Duration
	lockTTL        time.Duration
	maxStepRetries int

	providerID  string
	status      domain.VerificationStatus
	currentStep domain.StepNumber
	session     *domain.VerificationSession
	steps       map[domain.StepNumber]*domain.StepProgress
}

// NewFlowState constructs an empty flow state store.
func NewFlowState(opts FlowStateOptions) *FlowState {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	sessionTTL := opts.SessionTTL
	if sessionTTL <= 0 {
		sessionTTL = defaultSessionTTL
	}
	lockTTL := opts.LockTTL
	if lockTTL <= 0 {
		lockTTL = defaultLockTTL
	}
	maxStepRetries := opts.MaxStepRetries
	if maxStepRetries <= 0 {
		maxStepRetries = domain.DefaultMaxStepRetries
	}
	return &FlowState{
		logger:         log,
		now:            func() time.Time { return time.Now().UTC() },
		sessionTTL:     sessionTTL,
		lockTTL:        lockTTL,
		maxStepRetries: maxStepRetries,
		providerID:     opts.ProviderID,
		status:         domain.VerificationNotStarted,
		steps:          make(map[domain.StepNumber]*domain.StepProgress),
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (f *FlowState) WithClock(clock func() time.Time) *FlowState {
	if clock != nil {
		f.now = clock
	}
	return f
}

// SetProviderID records the provider owning this flow.
func (f *FlowState) SetProviderID(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.providerID = id
}

// ProviderID returns the provider owning this flow.
func (f *FlowState) ProviderID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.providerID
}

// SetVerificationStatus updates the aggregate verification status.
func (f *FlowState) SetVerificationStatus(status domain.VerificationStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = status
}

// VerificationStatus returns the aggregate verification status.
func (f *FlowState) VerificationStatus() domain.VerificationStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

// CurrentStep returns the step pointer, zero when unset.
func (f *FlowState) CurrentStep() domain.StepNumber {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.currentStep
}

// SetCurrentStep moves the step pointer. Navigation legality is the
// resolver's concern; the store applies what it is told.
func (f *FlowState) SetCurrentStep(step domain.StepNumber) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.currentStep = step
}

// InitializeSession creates or restores the verification session. It is
// idempotent: calling it again with the same session ID, the same device
// fingerprint, or no identity at all yields the existing logical session
// rather than a second one.
func (f *FlowState) InitializeSession(sessionID, deviceFingerprint string) *domain.VerificationSession {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()
	if f.session != nil && f.session.IsActive(now) {
		switch {
		case sessionID != "" && f.session.ID == sessionID:
			return f.cloneSessionLocked()
		case sessionID == "" && deviceFingerprint == "":
			return f.cloneSessionLocked()
		case f.session.MatchesFingerprint(deviceFingerprint):
			return f.cloneSessionLocked()
		}
	}

	id := sessionID
	if id == "" {
		id = uuid.NewString()
	}
	session := &domain.VerificationSession{
		ID:             id,
		ProviderID:     f.providerID,
		CreatedAt:      now,
		ExpiresAt:      now.Add(f.sessionTTL),
		LastActivityAt: now,
	}
	if deviceFingerprint != "" {
		fp := deviceFingerprint
		session.DeviceFingerprint = &fp
	}
	f.session = session

	f.logger.Info("verification session initialized",
		zap.String("provider_id", f.providerID),
		zap.String("session_id", id),
		zap.String("device_fingerprint", logger.MaskString(deviceFingerprint)),
	)

	return f.cloneSessionLocked()
}

// RestoreSession adopts a session hydrated from the remote store.
func (f *FlowState) RestoreSession(session domain.VerificationSession) {
	f.mu.Lock()
	defer f.mu.Unlock()
	restored := session
	f.session = &restored
}

// Session returns a copy of the active session, or nil.
func (f *FlowState) Session() *domain.VerificationSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cloneSessionLocked()
}

// SessionID returns the active session identifier, empty when none.
func (f *FlowState) SessionID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.session == nil {
		return ""
	}
	return f.session.ID
}

// EndSession terminates the active session and returns its final state.
func (f *FlowState) EndSession(reason string) *domain.VerificationSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.session == nil {
		return nil
	}
	f.session.End(f.now(), reason)
	ended := f.cloneSessionLocked()
	f.session = nil
	return ended
}

// UpdateSessionActivity refreshes the session heartbeat timestamp.
func (f *FlowState) UpdateSessionActivity() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.session == nil {
		return
	}
	f.session.Touch(f.now())
}

// UpdateStepProgress merges the patch into the step's progress record,
// creating the record when absent. Fields not present in the patch are never
// reset.
func (f *FlowState) UpdateStepProgress(step domain.StepNumber, patch StepPatch) (*domain.StepProgress, error) {
	if !step.Valid() {
		return nil, ErrUnknownStep
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	progress := f.stepLocked(step)
	if patch.Status != nil {
		progress.Status = *patch.Status
	}
	if patch.Data != nil {
		progress.Data = patch.Data
	}
	if patch.ValidationErrors != nil {
		progress.ValidationErrors = append([]string(nil), patch.ValidationErrors...)
	}
	if patch.StartedAt != nil {
		startedAt := *patch.StartedAt
		progress.StartedAt = &startedAt
	}
	if patch.RetryCount != nil {
		progress.RetryCount = *patch.RetryCount
	}
	if patch.MaxRetries != nil {
		progress.MaxRetries = *patch.MaxRetries
	}
	if progress.Status == domain.StepInProgress && progress.StartedAt == nil {
		startedAt := f.now()
		progress.StartedAt = &startedAt
	}

	return progress.Clone(), nil
}

// CompleteStep marks the step completed now, merging data when supplied.
// Local-only: mirroring the transition to the remote store is the sync
// layer's job.
func (f *FlowState) CompleteStep(step domain.StepNumber, data domain.StepData) (*domain.StepProgress, error) {
	if !step.Valid() {
		return nil, ErrUnknownStep
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	progress := f.stepLocked(step)
	progress.Complete(f.now(), data)
	if f.status == domain.VerificationNotStarted {
		f.status = domain.VerificationInProgress
	}
	return progress.Clone(), nil
}

// CompleteStepViaSubmission retroactively completes a step skipped by a
// navigation bug, tagging it so downstream review can tell it apart from a
// user-completed step.
func (f *FlowState) CompleteStepViaSubmission(step domain.StepNumber) (*domain.StepProgress, error) {
	if !step.Valid() {
		return nil, ErrUnknownStep
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	progress := f.stepLocked(step)
	progress.Complete(f.now(), nil)
	progress.CompletedViaSubmission = true
	return progress.Clone(), nil
}

// MarkStepFailed records a failed validation attempt for the step.
func (f *FlowState) MarkStepFailed(step domain.StepNumber, validationErrors []string) (*domain.StepProgress, error) {
	if !step.Valid() {
		return nil, ErrUnknownStep
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	progress := f.stepLocked(step)
	if !progress.MarkFailed(f.now(), validationErrors) {
		f.logger.Warn("step retry budget exhausted",
			zap.String("provider_id", f.providerID),
			zap.Int("step", int(step)),
			zap.Int("retry_count", progress.RetryCount),
		)
	}
	return progress.Clone(), nil
}

// AcquireStepLock is the local half of lock acquisition. It fails when the
// step is already locked by a different, non-expired session. The lock is
// provisional until the lock manager confirms it against the server store.
func (f *FlowState) AcquireStepLock(step domain.StepNumber) bool {
	if !step.Valid() {
		return false
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.session == nil {
		return false
	}

	now := f.now()
	progress := f.stepLocked(step)
	if progress.Lock != nil && !progress.Lock.Expired(now) && progress.Lock.LockedBySession != f.session.ID {
		return false
	}

	progress.Lock = &domain.StepLock{
		LockedBySession: f.session.ID,
		LockedAt:        now,
		LockExpiresAt:   now.Add(f.lockTTL),
	}
	return true
}

// ReleaseStepLock drops the local lock. It always succeeds so the user is
// never stuck locked out of a step by their own session.
func (f *FlowState) ReleaseStepLock(step domain.StepNumber) bool {
	if !step.Valid() {
		return false
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if progress, ok := f.steps[step]; ok {
		progress.Lock = nil
	}
	return true
}

// StepLockState classifies the locally known lock on the step for the active
// session.
func (f *FlowState) StepLockState(step domain.StepNumber) domain.LockState {
	f.mu.Lock()
	defer f.mu.Unlock()

	sessionID := ""
	if f.session != nil {
		sessionID = f.session.ID
	}
	progress, ok := f.steps[step]
	if !ok {
		return domain.LockUnlocked
	}
	return domain.LockStateFor(progress.Lock, sessionID, f.now())
}

// ObserveStepLock records a lock state observed from the authoritative store.
func (f *FlowState) ObserveStepLock(step domain.StepNumber, lock *domain.StepLock) {
	if !step.Valid() {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	progress := f.stepLocked(step)
	if lock == nil {
		progress.Lock = nil
		return
	}
	observed := *lock
	progress.Lock = &observed
}

// ValidateAndResetState scans all step records and demotes to not_started any
// step marked completed whose data cannot satisfy the step's contract. It
// never promotes a step. Returns the demoted step numbers in ascending order.
func (f *FlowState) ValidateAndResetState() []domain.StepNumber {
	f.mu.Lock()
	defer f.mu.Unlock()

	var demoted []domain.StepNumber
	for n := domain.StepIdentityDocument; n <= domain.StepTerms; n++ {
		progress, ok := f.steps[n]
		if !ok {
			continue
		}
		if progress.StructurallyValid() {
			continue
		}
		progress.ResetToNotStarted()
		demoted = append(demoted, n)
	}

	if len(demoted) > 0 {
		f.logger.Warn("demoted structurally invalid steps",
			zap.String("provider_id", f.providerID),
			zap.Any("steps", demoted),
		)
	}
	return demoted
}

// ApplyServerStep overwrites the local record for a step with the state
// observed remotely. Once server state is observed it wins, even over an
// unconfirmed local change.
func (f *FlowState) ApplyServerStep(progress domain.StepProgress) {
	if !progress.StepNumber.Valid() {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	applied := progress
	f.steps[progress.StepNumber] = (&applied).Clone()
}

// StepsSnapshot returns a value copy of every known step record, suitable for
// the navigation resolver.
func (f *FlowState) StepsSnapshot() map[domain.StepNumber]domain.StepProgress {
	f.mu.Lock()
	defer f.mu.Unlock()

	snapshot := make(map[domain.StepNumber]domain.StepProgress, len(f.steps))
	for n, progress := range f.steps {
		snapshot[n] = *progress.Clone()
	}
	return snapshot
}

// StepProgressFor returns a copy of the step's record, or nil when untouched.
func (f *FlowState) StepProgressFor(step domain.StepNumber) *domain.StepProgress {
	f.mu.Lock()
	defer f.mu.Unlock()

	progress, ok := f.steps[step]
	if !ok {
		return nil
	}
	return progress.Clone()
}

// AggregateProgress builds the aggregate onboarding record from the current
// local state. The progress percentage is derived, never stored.
func (f *FlowState) AggregateProgress() domain.OnboardingProgress {
	f.mu.Lock()
	defer f.mu.Unlock()

	aggregate := domain.OnboardingProgress{
		ProviderID:         f.providerID,
		CurrentStep:        f.currentStep,
		VerificationStatus: f.status,
		UpdatedAt:          f.now(),
	}
	for n := domain.StepIdentityDocument; n <= domain.StepTerms; n++ {
		if progress, ok := f.steps[n]; ok && progress.IsCompleted() {
			aggregate.MarkStepCompleted(n)
		}
	}
	if f.session != nil {
		id := f.session.ID
		aggregate.CurrentSessionID = &id
	}
	return aggregate
}

func (f *FlowState) stepLocked(step domain.StepNumber) *domain.StepProgress {
	progress, ok := f.steps[step]
	if !ok {
		progress = domain.NewStepProgress(f.providerID, step)
		progress.MaxRetries = f.maxStepRetries
		f.steps[step] = progress
	}
	return progress
}

func (f *FlowState) cloneSessionLocked() *domain.VerificationSession {
	if f.session == nil {
		return nil
	}
	clone := *f.session
	if f.session.DeviceFingerprint != nil {
		fp := *f.session.DeviceFingerprint
		clone.DeviceFingerprint = &fp
	}
	return &clone
}
