package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/taskbridge/provider-verification/internal/core/domain"
	"github.com/taskbridge/provider-verification/internal/repository"
)

var testEpoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// testClock is an adjustable deterministic time source.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: testEpoch}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

//

type fakeOnboardingRepo struct {
	mu      sync.Mutex
	records map[string]domain.OnboardingProgress
	failPut bool
}

func newFakeOnboardingRepo() *fakeOnboardingRepo {
	return &fakeOnboardingRepo{records: make(map[string]domain.OnboardingProgress)}
}

func (r *fakeOnboardingRepo) Get(_ context.Context, providerID string) (*domain.OnboardingProgress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[providerID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return record.Clone(), nil
}

func (r *fakeOnboardingRepo) Upsert(_ context.Context, progress domain.OnboardingProgress) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failPut {
		return errors.New("onboarding upsert unavailable")
	}
	r.records[progress.ProviderID] = *progress.Clone()
	return nil
}

func (r *fakeOnboardingRepo) SetStripeValidation(_ context.Context, providerID, status string, validationErrors []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[providerID]
	if !ok {
		return repository.ErrNotFound
	}
	record.StripeValidationStatus = status
	record.StripeValidationErrors = validationErrors
	r.records[providerID] = record
	return nil
}

//

type stepKey struct {
	provider string
	step     domain.StepNumber
}

type fakeStepRepo struct {
	mu         sync.Mutex
	rows       map[stepKey]domain.StepProgress
	lists      int
	failUpsert bool
}

func newFakeStepRepo() *fakeStepRepo {
	return &fakeStepRepo{rows: make(map[stepKey]domain.StepProgress)}
}

func (r *fakeStepRepo) Get(_ context.Context, providerID string, step domain.StepNumber) (*domain.StepProgress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[stepKey{providerID, step}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return row.Clone(), nil
}

func (r *fakeStepRepo) ListByProvider(_ context.Context, providerID string) ([]domain.StepProgress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lists++
	var rows []domain.StepProgress
	for n := domain.StepIdentityDocument; n <= domain.StepTerms; n++ {
		if row, ok := r.rows[stepKey{providerID, n}]; ok {
			rows = append(rows, *row.Clone())
		}
	}
	return rows, nil
}

func (r *fakeStepRepo) Upsert(_ context.Context, progress domain.StepProgress) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failUpsert {
		return errors.New("step upsert unavailable")
	}
	r.rows[stepKey{progress.ProviderID, progress.StepNumber}] = *progress.Clone()
	return nil
}

func (r *fakeStepRepo) listCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lists
}

func (r *fakeStepRepo) SetLock(_ context.Context, providerID string, step domain.StepNumber, lock *domain.StepLock) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[stepKey{providerID, step}]
	if !ok {
		return repository.ErrNotFound
	}
	row.Lock = lock
	r.rows[stepKey{providerID, step}] = row
	return nil
}

func (r *fakeStepRepo) ClearExpiredLocks(_ context.Context, before time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cleared := 0
	for key, row := range r.rows {
		if row.Lock != nil && row.Lock.LockExpiresAt.Before(before) {
			row.Lock = nil
			r.rows[key] = row
			cleared++
		}
	}
	return cleared, nil
}

//

type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]domain.VerificationSession
	touches  int
	failAll  bool
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: make(map[string]domain.VerificationSession)}
}

func (r *fakeSessionRepo) Create(_ context.Context, session domain.VerificationSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAll {
		return errors.New("session store unavailable")
	}
	r.sessions[session.ID] = session
	return nil
}

func (r *fakeSessionRepo) Get(_ context.Context, sessionID string) (*domain.VerificationSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[sessionID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &session, nil
}

func (r *fakeSessionRepo) FindActiveByFingerprint(_ context.Context, providerID, fingerprint string) (*domain.VerificationSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, session := range r.sessions {
		if session.ProviderID == providerID && session.EndedAt == nil && session.MatchesFingerprint(fingerprint) {
			found := session
			return &found, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeSessionRepo) Touch(_ context.Context, sessionID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAll {
		return errors.New("session store unavailable")
	}
	session, ok := r.sessions[sessionID]
	if !ok {
		return repository.ErrNotFound
	}
	session.LastActivityAt = at
	r.sessions[sessionID] = session
	r.touches++
	return nil
}

func (r *fakeSessionRepo) End(_ context.Context, sessionID, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[sessionID]
	if !ok {
		return repository.ErrNotFound
	}
	now := time.Now().UTC()
	session.EndedAt = &now
	session.EndReason = &reason
	r.sessions[sessionID] = session
	return nil
}

func (r *fakeSessionRepo) ExpireStale(_ context.Context, before time.Time) (int, error) {
	return 0, nil
}

func (r *fakeSessionRepo) touchCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.touches
}

//

type lockStoreKey struct {
	provider string
	step     domain.StepNumber
}

// fakeLockStore mimics the authoritative server lock store.
type fakeLockStore struct {
	mu      sync.Mutex
	locks   map[lockStoreKey]domain.StepLock
	now     func() time.Time
	failOps bool
}

func newFakeLockStore(now func() time.Time) *fakeLockStore {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &fakeLockStore{locks: make(map[lockStoreKey]domain.StepLock), now: now}
}

func (s *fakeLockStore) Acquire(_ context.Context, providerID string, step domain.StepNumber, sessionID string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOps {
		return false, errors.New("lock store unavailable")
	}
	key := lockStoreKey{providerID, step}
	now := s.now()
	if existing, ok := s.locks[key]; ok && !existing.Expired(now) && existing.LockedBySession != sessionID {
		return false, nil
	}
	s.locks[key] = domain.StepLock{
		LockedBySession: sessionID,
		LockedAt:        now,
		LockExpiresAt:   now.Add(ttl),
	}
	return true, nil
}

func (s *fakeLockStore) Release(_ context.Context, providerID string, step domain.StepNumber, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOps {
		return errors.New("lock store unavailable")
	}
	key := lockStoreKey{providerID, step}
	if existing, ok := s.locks[key]; ok && existing.LockedBySession == sessionID {
		delete(s.locks, key)
	}
	return nil
}

func (s *fakeLockStore) Get(_ context.Context, providerID string, step domain.StepNumber) (*domain.StepLock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOps {
		return nil, errors.New("lock store unavailable")
	}
	lock, ok := s.locks[lockStoreKey{providerID, step}]
	if !ok {
		return nil, nil
	}
	return &lock, nil
}

//

// fakeEvents records published events by type.
type fakeEvents struct {
	mu             sync.Mutex
	sessionStarted []domain.SessionStartedEvent
	sessionEnded   []domain.SessionEndedEvent
	stepCompleted  []domain.StepCompletedEvent
	lockContended  []domain.StepLockContendedEvent
	submitted      []domain.OnboardingSubmittedEvent
}

func (e *fakeEvents) PublishSessionStarted(_ context.Context, event domain.SessionStartedEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sessionStarted = append(e.sessionStarted, event)
	return nil
}

func (e *fakeEvents) PublishSessionEnded(_ context.Context, event domain.SessionEndedEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sessionEnded = append(e.sessionEnded, event)
	return nil
}

func (e *fakeEvents) PublishStepCompleted(_ context.Context, event domain.StepCompletedEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stepCompleted = append(e.stepCompleted, event)
	return nil
}

func (e *fakeEvents) PublishStepLockContended(_ context.Context, event domain.StepLockContendedEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lockContended = append(e.lockContended, event)
	return nil
}

func (e *fakeEvents) PublishOnboardingSubmitted(_ context.Context, event domain.OnboardingSubmittedEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.submitted = append(e.submitted, event)
	return nil
}

//

func newTestFlow(providerID string, clock *testClock) *FlowState {
	flow := NewFlowState(FlowStateOptions{ProviderID: providerID})
	if clock != nil {
		flow.WithClock(clock.Now)
	}
	return flow
}

func validDataFor(step domain.StepNumber) domain.StepData {
	switch step {
	case domain.StepIdentityDocument:
		return domain.IdentityDocumentData{DocumentType: "passport", DocumentPath: "p1/identity/doc.pdf"}
	case domain.StepSelfie:
		return domain.SelfieData{ImagePath: "p1/selfie/face.jpg"}
	case domain.StepBusinessInfo:
		return domain.BusinessInfoData{BusinessName: "Acme Cleaning", Address: "1 Main St", Phone: "+15550100"}
	case domain.StepCategorySelection:
		return domain.CategorySelectionData{CategoryIDs: []string{"cleaning"}}
	case domain.StepServices:
		return domain.ServicesData{Services: []domain.ServiceOffering{{Name: "Deep clean", PriceCents: 12000, DurationMinutes: 120}}}
	case domain.StepPortfolio:
		return domain.PortfolioData{}
	case domain.StepBio:
		return domain.BioData{Headline: "Spotless every time", About: "A decade of experience."}
	case domain.StepTerms:
		return domain.TermsData{Accepted: true, Version: "2025-01"}
	default:
		return nil
	}
}

func completeSteps(flow *FlowState, steps ...domain.StepNumber) {
	for _, step := range steps {
		if _, err := flow.CompleteStep(step, validDataFor(step)); err != nil {
			panic(err)
		}
	}
}
