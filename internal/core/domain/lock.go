package domain

import "time"

// LockState classifies a step lock from the point of view of one session.
type LockState string

const (
	LockUnlocked     LockState = "unlocked"
	LockHeldBySelf   LockState = "locked_by_self"
	LockHeldByOther  LockState = "locked_by_other"
	LockStateExpired LockState = "expired"
)

// LockStateFor resolves the lock state for the given session at the supplied
// moment. A stale lock record is treated as acquirable by anyone.
func LockStateFor(lock *StepLock, sessionID string, at time.Time) LockState {
	if lock == nil || lock.LockedBySession == "" {
		return LockUnlocked
	}
	if lock.Expired(at) {
		return LockStateExpired
	}
	if lock.LockedBySession == sessionID {
		return LockHeldBySelf
	}
	return LockHeldByOther
}
