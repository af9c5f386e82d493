package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taskbridge/provider-verification/internal/core/domain"
	"github.com/taskbridge/provider-verification/internal/core/port"
	"github.com/taskbridge/provider-verification/internal/repository"
)

// Lock contention reasons surfaced to the UI layer. Contention is a normal
// outcome, not an error.
const (
	ReasonLockedByOther  = "locked by another session"
	ReasonLockNotGranted = "lock not granted by server"
	ReasonNoSession      = "no active session"
)

// LockManager coordinates the two halves of step locking: the provisional
// local lock in the flow state and the authoritative server-side lock store.
type LockManager struct {
	flow   *FlowState
	locks  port.StepLockStore
	steps  port.StepRepository
	events port.EventPublisher
	logger *zap.Logger
	ttl    time.Duration
	now    func() time.Time
}

// NewLockManager constructs a lock manager with the supplied TTL for server
// lock acquisitions.
func NewLockManager(flow *FlowState, locks port.StepLockStore, ttl time.Duration, logger *zap.Logger) *LockManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &LockManager{
		flow:   flow,
		locks:  locks,
		logger: logger,
		ttl:    ttl,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithEvents attaches an event publisher for lock contention notifications.
func (m *LockManager) WithEvents(events port.EventPublisher) *LockManager {
	m.events = events
	return m
}

// WithStepMirror mirrors granted and released locks into the persisted step
// rows, keeping the lock columns other readers see current.
func (m *LockManager) WithStepMirror(steps port.StepRepository) *LockManager {
	m.steps = steps
	return m
}

// WithClock overrides the internal clock for deterministic tests.
func (m *LockManager) WithClock(clock func() time.Time) *LockManager {
	if clock != nil {
		m.now = clock
	}
	return m
}

// Acquire claims the step lock for the active session: local first, then the
// server store, which is authoritative. When the server call fails or the
// server refuses the claim, the provisional local lock is rolled back and
// acquisition is reported as failed with a human-readable reason.
func (m *LockManager) Acquire(ctx context.Context, step domain.StepNumber) (bool, string) {
	sessionID := m.flow.SessionID()
	if sessionID == "" {
		return false, ReasonNoSession
	}

	if !m.flow.AcquireStepLock(step) {
		return false, ReasonLockedByOther
	}

	granted, err := m.locks.Acquire(ctx, m.flow.ProviderID(), step, sessionID, m.ttl)
	if err != nil {
		m.flow.ReleaseStepLock(step)
		m.logger.Warn("server lock acquisition failed",
			zap.String("provider_id", m.flow.ProviderID()),
			zap.Int("step", int(step)),
			zap.Error(err),
		)
		return false, ReasonLockNotGranted
	}
	if !granted {
		m.flow.ReleaseStepLock(step)
		m.publishContention(ctx, step, sessionID)
		return false, ReasonLockedByOther
	}

	now := m.now()
	m.mirrorLock(ctx, step, &domain.StepLock{
		LockedBySession: sessionID,
		LockedAt:        now,
		LockExpiresAt:   now.Add(m.ttl),
	})

	return true, ""
}

// Release drops the step lock: server first, then local. A remote release
// failure never blocks the local release; the user must never be stuck
// locked out of a step they logically finished.
func (m *LockManager) Release(ctx context.Context, step domain.StepNumber) {
	sessionID := m.flow.SessionID()
	if sessionID != "" {
		if err := m.locks.Release(ctx, m.flow.ProviderID(), step, sessionID); err != nil {
			m.logger.Warn("server lock release failed, releasing locally anyway",
				zap.String("provider_id", m.flow.ProviderID()),
				zap.Int("step", int(step)),
				zap.Error(err),
			)
		}
	}
	m.flow.ReleaseStepLock(step)
	m.mirrorLock(ctx, step, nil)
}

// Status polls the authoritative lock store and classifies the lock from the
// active session's point of view. A lock past its expiry is treated as
// acquirable regardless of the stale record.
func (m *LockManager) Status(ctx context.Context, step domain.StepNumber) (domain.LockState, error) {
	lock, err := m.locks.Get(ctx, m.flow.ProviderID(), step)
	if err != nil {
		return domain.LockUnlocked, err
	}
	m.flow.ObserveStepLock(step, lock)
	state := domain.LockStateFor(lock, m.flow.SessionID(), m.now())
	if state == domain.LockStateExpired {
		state = domain.LockUnlocked
	}
	return state, nil
}

// mirrorLock writes the lock columns on the step row. A missing row is fine:
// the lock can precede the first progress write for the step.
func (m *LockManager) mirrorLock(ctx context.Context, step domain.StepNumber, lock *domain.StepLock) {
	if m.steps == nil {
		return
	}
	err := m.steps.SetLock(ctx, m.flow.ProviderID(), step, lock)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		m.logger.Warn("mirror step lock failed",
			zap.String("provider_id", m.flow.ProviderID()),
			zap.Int("step", int(step)),
			zap.Error(err),
		)
	}
}

func (m *LockManager) publishContention(ctx context.Context, step domain.StepNumber, requestedBy string) {
	if m.events == nil {
		return
	}

	heldBy := ""
	var expiresAt time.Time
	if lock, err := m.locks.Get(ctx, m.flow.ProviderID(), step); err == nil && lock != nil {
		heldBy = lock.LockedBySession
		expiresAt = lock.LockExpiresAt
	}

	event := domain.StepLockContendedEvent{
		EventID:       uuid.NewString(),
		ProviderID:    m.flow.ProviderID(),
		StepNumber:    step,
		RequestedBy:   requestedBy,
		HeldBy:        heldBy,
		LockExpiresAt: expiresAt,
		ContendedAt:   m.now(),
	}
	if err := m.events.PublishStepLockContended(ctx, event); err != nil {
		m.logger.Warn("publish lock contention failed", zap.Error(err))
	}
}
