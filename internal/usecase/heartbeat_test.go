package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/taskbridge/provider-verification/internal/core/domain"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestHeartbeatTouchesActiveSession(t *testing.T) {
	flow := newTestFlow("p1", nil)
	session := flow.InitializeSession("sess-1", "")
	sessions := newFakeSessionRepo()
	if err := sessions.Create(context.Background(), *session); err != nil {
		t.Fatalf("seed session: %v", err)
	}

	hb := NewHeartbeat(flow, sessions, 5*time.Millisecond, nil)
	hb.Start(context.Background())
	defer hb.Stop()

	waitFor(t, time.Second, func() bool { return sessions.touchCount() >= 2 })
}

func TestHeartbeatStopIsDeterministic(t *testing.T) {
	flow := newTestFlow("p1", nil)
	flow.InitializeSession("sess-1", "")
	hb := NewHeartbeat(flow, newFakeSessionRepo(), 5*time.Millisecond, nil)

	hb.Start(context.Background())
	hb.Stop()

	// Stop must be idempotent and must not hang on a stopped heartbeat.
	hb.Stop()
}

func TestHeartbeatStartTwiceIsNoOp(t *testing.T) {
	flow := newTestFlow("p1", nil)
	flow.InitializeSession("sess-1", "")
	hb := NewHeartbeat(flow, newFakeSessionRepo(), 5*time.Millisecond, nil)

	hb.Start(context.Background())
	hb.Start(context.Background())
	hb.Stop()
}

func TestHeartbeatSurvivesRepositoryFailures(t *testing.T) {
	flow := newTestFlow("p1", nil)
	flow.InitializeSession("sess-1", "")
	sessions := newFakeSessionRepo()
	sessions.failAll = true

	hb := NewHeartbeat(flow, sessions, 5*time.Millisecond, nil)
	hb.Start(context.Background())
	defer hb.Stop()

	// Sync failures are logged, not fatal: the local activity timestamp still
	// moves forward.
	waitFor(t, time.Second, func() bool {
		session := flow.Session()
		return session != nil && session.LastActivityAt.After(session.CreatedAt)
	})
}

func TestHeartbeatSkipsInactiveSession(t *testing.T) {
	flow := newTestFlow("p1", nil)
	expired := time.Now().UTC().Add(-time.Hour)
	flow.RestoreSession(domain.VerificationSession{
		ID:         "sess-stale",
		ProviderID: "p1",
		CreatedAt:  expired.Add(-time.Hour),
		ExpiresAt:  expired,
	})
	sessions := newFakeSessionRepo()

	hb := NewHeartbeat(flow, sessions, 5*time.Millisecond, nil)
	hb.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	hb.Stop()

	if got := sessions.touchCount(); got != 0 {
		t.Fatalf("touches = %d, expired session must not be refreshed", got)
	}
}
