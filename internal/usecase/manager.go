package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taskbridge/provider-verification/internal/core/domain"
	"github.com/taskbridge/provider-verification/internal/core/port"
	"github.com/taskbridge/provider-verification/internal/repository"
)

// ProviderFlow bundles the per-provider engine: the state store plus the
// collaborators operating on it.
type ProviderFlow struct {
	State      *FlowState
	Sync       *SyncService
	Locks      *LockManager
	Heartbeat  *Heartbeat
	Submission *SubmissionService
}

// FlowManagerOptions configures the flow manager.
type FlowManagerOptions struct {
	Onboarding        port.OnboardingRepository
	Steps             port.StepRepository
	Sessions          port.SessionRepository
	LockStore         port.StepLockStore
	Events            port.EventPublisher
	SessionTTL        time.Duration
	LockTTL           time.Duration
	HeartbeatInterval time.Duration
	MaxStepRetries    int
	Logger            *zap.Logger
}

// FlowManager owns one ProviderFlow per provider, hydrating it from the
// remote store and running the boot-time consistency pass on first access.
// It is the application's root composition for the flow engine: nothing here
// is a package-level singleton, so tests instantiate isolated managers.
type FlowManager struct {
	opts   FlowManagerOptions
	logger *zap.Logger

	mu    sync.Mutex
	flows map[string]*flowEntry
}

// flowEntry pairs a flow with its hydration latch, so concurrent first
// accesses all wait for the one hydration pass.
type flowEntry struct {
	flow    *ProviderFlow
	hydrate sync.Once
}

// NewFlowManager constructs a flow manager.
func NewFlowManager(opts FlowManagerOptions) *FlowManager {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &FlowManager{
		opts:   opts,
		logger: log,
		flows:  make(map[string]*flowEntry),
	}
}

// Get returns the provider's flow, hydrating it on first access: sync from
// the server, then the initializer's self-healing pass.
func (m *FlowManager) Get(ctx context.Context, providerID string) (*ProviderFlow, error) {
	providerID = strings.TrimSpace(providerID)
	if providerID == "" {
		return nil, ErrProviderRequired
	}

	m.mu.Lock()
	entry, ok := m.flows[providerID]
	if !ok {
		entry = &flowEntry{flow: m.buildFlow(providerID)}
		m.flows[providerID] = entry
	}
	m.mu.Unlock()

	entry.hydrate.Do(func() {
		if _, _, err := entry.flow.Sync.SyncFromServer(ctx); err != nil {
			m.logger.Warn("initial sync failed, starting from empty local state",
				zap.String("provider_id", providerID),
				zap.Error(err),
			)
		}
		NewInitializer(entry.flow.State, m.logger).Run()
	})

	return entry.flow, nil
}

// StartSession creates or restores a verification session for the provider
// and starts its heartbeat. Idempotent per device fingerprint.
func (m *FlowManager) StartSession(ctx context.Context, providerID, deviceFingerprint string) (*domain.VerificationSession, error) {
	flow, err := m.Get(ctx, providerID)
	if err != nil {
		return nil, err
	}

	if existing := flow.State.Session(); existing == nil && deviceFingerprint != "" && m.opts.Sessions != nil {
		remote, err := m.opts.Sessions.FindActiveByFingerprint(ctx, providerID, deviceFingerprint)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		if remote != nil {
			flow.State.RestoreSession(*remote)
		}
	}

	before := flow.State.SessionID()
	session := flow.State.InitializeSession("", deviceFingerprint)
	created := session.ID != before

	if created && m.opts.Sessions != nil {
		if err := m.opts.Sessions.Create(ctx, *session); err != nil {
			m.logger.Warn("persist session failed", zap.String("session_id", session.ID), zap.Error(err))
		}
	}

	if created && m.opts.Events != nil {
		event := domain.SessionStartedEvent{
			EventID:           uuid.NewString(),
			SessionID:         session.ID,
			ProviderID:        providerID,
			DeviceFingerprint: session.DeviceFingerprint,
			StartedAt:         session.CreatedAt,
			ExpiresAt:         session.ExpiresAt,
		}
		if err := m.opts.Events.PublishSessionStarted(ctx, event); err != nil {
			m.logger.Warn("publish session started failed", zap.Error(err))
		}
	}

	flow.Heartbeat.Start(context.WithoutCancel(ctx))

	if err := flow.Sync.PushOnboardingUpdate(ctx, OnboardingPatch{}); err != nil {
		m.logger.Warn("push onboarding record after session start failed", zap.Error(err))
	}

	return session, nil
}

// EndSession terminates the provider's session, stops its heartbeat, and
// reports the end to the remote store.
func (m *FlowManager) EndSession(ctx context.Context, providerID, reason string) error {
	flow, err := m.Get(ctx, providerID)
	if err != nil {
		return err
	}

	flow.Heartbeat.Stop()

	session := flow.State.EndSession(reason)
	if session == nil {
		return ErrNoActiveSession
	}

	if m.opts.Sessions != nil {
		if err := m.opts.Sessions.End(ctx, session.ID, reason); err != nil {
			m.logger.Warn("end session remotely failed", zap.String("session_id", session.ID), zap.Error(err))
		}
	}

	if m.opts.Events != nil {
		event := domain.SessionEndedEvent{
			EventID:    uuid.NewString(),
			SessionID:  session.ID,
			ProviderID: providerID,
			EndedAt:    *session.EndedAt,
			Reason:     reason,
		}
		if err := m.opts.Events.PublishSessionEnded(ctx, event); err != nil {
			m.logger.Warn("publish session ended failed", zap.Error(err))
		}
	}

	return nil
}

// Shutdown stops every flow's heartbeat. Called on application shutdown.
func (m *FlowManager) Shutdown() {
	m.mu.Lock()
	flows := make([]*ProviderFlow, 0, len(m.flows))
	for _, entry := range m.flows {
		flows = append(flows, entry.flow)
	}
	m.mu.Unlock()

	for _, flow := range flows {
		flow.Heartbeat.Stop()
	}
}

func (m *FlowManager) buildFlow(providerID string) *ProviderFlow {
	state := NewFlowState(FlowStateOptions{
		ProviderID:     providerID,
		SessionTTL:     m.opts.SessionTTL,
		LockTTL:        m.opts.LockTTL,
		MaxStepRetries: m.opts.MaxStepRetries,
		Logger:         m.logger,
	})
	syncService := NewSyncService(state, m.opts.Onboarding, m.opts.Steps, m.opts.Events, m.logger)
	locks := NewLockManager(state, m.opts.LockStore, m.opts.LockTTL, m.logger).
		WithEvents(m.opts.Events).
		WithStepMirror(m.opts.Steps)
	heartbeat := NewHeartbeat(state, m.opts.Sessions, m.opts.HeartbeatInterval, m.logger)
	submission := NewSubmissionService(state, syncService, m.opts.Events, m.logger)

	return &ProviderFlow{
		State:      state,
		Sync:       syncService,
		Locks:      locks,
		Heartbeat:  heartbeat,
		Submission: submission,
	}
}
