package usecase

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/taskbridge/provider-verification/internal/core/port"
)

const defaultHeartbeatInterval = 30 * time.Second

// Heartbeat refreshes session activity on a fixed interval while the session
// is active. It is a cancellable scheduled task tied explicitly to the
// session's lifetime: stopping it is deterministic and the ticker never leaks
// across session boundaries.
type Heartbeat struct {
	flow     *FlowState
	sessions port.SessionRepository
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHeartbeat constructs a heartbeat runner for the flow's session.
func NewHeartbeat(flow *FlowState, sessions port.SessionRepository, interval time.Duration, logger *zap.Logger) *Heartbeat {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = defaultHeartbeatInterval
	}
	return &Heartbeat{
		flow:     flow,
		sessions: sessions,
		interval: interval,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Start launches the heartbeat loop. Calling Start on a running heartbeat is
// a no-op. The loop stops when Stop is called or the context is cancelled.
func (h *Heartbeat) Start(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cancel != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	h.done = make(chan struct{})

	go h.run(runCtx, h.done)
}

// Stop cancels the heartbeat and waits for the loop to exit.
func (h *Heartbeat) Stop() {
	h.mu.Lock()
	cancel := h.cancel
	done := h.done
	h.cancel = nil
	h.done = nil
	h.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (h *Heartbeat) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.beat(ctx)
		}
	}
}

func (h *Heartbeat) beat(ctx context.Context) {
	session := h.flow.Session()
	if session == nil || !session.IsActive(h.now()) {
		return
	}

	h.flow.UpdateSessionActivity()

	if h.sessions == nil {
		return
	}
	if err := h.sessions.Touch(ctx, session.ID, h.now()); err != nil {
		h.logger.Warn("session heartbeat sync failed",
			zap.String("session_id", session.ID),
			zap.Error(err),
		)
	}
}
