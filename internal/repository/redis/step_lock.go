package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/taskbridge/provider-verification/internal/core/domain"
	"github.com/taskbridge/provider-verification/internal/core/port"
)

const stepLockKeyPrefix = "onboarding:step-lock:"

// StepLockStore is the authoritative step lock arbiter backed by Redis.
// Acquire and Release run as owner-checked Lua scripts setting the lock TTL,
// so the store itself expires abandoned locks without a sweeper.
type StepLockStore struct {
	client *goredis.Client
	now    func() time.Time
}

// NewStepLockStore constructs the lock store.
func NewStepLockStore(client *goredis.Client) *StepLockStore {
	return &StepLockStore{
		client: client,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source. Intended for tests.
func (s *StepLockStore) WithClock(now func() time.Time) *StepLockStore {
	if now != nil {
		s.now = now
	}
	return s
}

type lockRecord struct {
	SessionID string    `json:"session_id"`
	LockedAt  time.Time `json:"locked_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// acquireScript claims or refreshes the lock in one atomic step. A missing
// record, or one the calling session already owns, is overwritten with the
// fresh payload and TTL; a live record owned by anyone else is refused.
var acquireScript = goredis.NewScript(`
local raw = redis.call("GET", KEYS[1])
if raw then
	if cjson.decode(raw).session_id ~= ARGV[1] then
		return 0
	end
end
redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
return 1
`)

// releaseScript deletes the record only while the caller still owns it, so a
// stale release can never drop a lock a newer session holds.
var releaseScript = goredis.NewScript(`
local raw = redis.call("GET", KEYS[1])
if not raw then
	return 0
end
if cjson.decode(raw).session_id ~= ARGV[1] then
	return 0
end
return redis.call("DEL", KEYS[1])
`)

// Acquire claims the step lock for the session. Returns false without error
// when another session holds a live lock. Re-acquiring a lock the session
// already holds refreshes its TTL.
func (s *StepLockStore) Acquire(ctx context.Context, providerID string, step domain.StepNumber, sessionID string, ttl time.Duration) (bool, error) {
	key := stepLockKey(providerID, step)
	now := s.now()
	payload, err := json.Marshal(lockRecord{
		SessionID: sessionID,
		LockedAt:  now,
		ExpiresAt: now.Add(ttl),
	})
	if err != nil {
		return false, fmt.Errorf("marshal step lock: %w", err)
	}

	granted, err := acquireScript.Run(ctx, s.client, []string{key}, sessionID, payload, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("acquire step lock: %w", err)
	}
	return granted == 1, nil
}

// Release drops the lock when held by the session. Releasing a lock held by
// another session, or no lock at all, is a no-op.
func (s *StepLockStore) Release(ctx context.Context, providerID string, step domain.StepNumber, sessionID string) error {
	key := stepLockKey(providerID, step)
	if err := releaseScript.Run(ctx, s.client, []string{key}, sessionID).Err(); err != nil {
		return fmt.Errorf("release step lock: %w", err)
	}
	return nil
}

// Get returns the current lock record, or nil when the step is unlocked.
func (s *StepLockStore) Get(ctx context.Context, providerID string, step domain.StepNumber) (*domain.StepLock, error) {
	holder, err := s.getRecord(ctx, stepLockKey(providerID, step))
	if err != nil {
		return nil, err
	}
	if holder == nil {
		return nil, nil
	}
	return &domain.StepLock{
		LockedBySession: holder.SessionID,
		LockedAt:        holder.LockedAt,
		LockExpiresAt:   holder.ExpiresAt,
	}, nil
}

func (s *StepLockStore) getRecord(ctx context.Context, key string) (*lockRecord, error) {
	raw, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get step lock: %w", err)
	}
	var record lockRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("unmarshal step lock: %w", err)
	}
	return &record, nil
}

func stepLockKey(providerID string, step domain.StepNumber) string {
	return fmt.Sprintf("%s%s:%d", stepLockKeyPrefix, providerID, step)
}

var _ port.StepLockStore = (*StepLockStore)(nil)
