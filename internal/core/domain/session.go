package domain

import "time"

// VerificationSession represents one logical client connection (device or app
// instance) participating in onboarding.
type VerificationSession struct {
	ID                string
	ProviderID        string
	DeviceFingerprint *string
	CreatedAt         time.Time
	ExpiresAt         time.Time
	LastActivityAt    time.Time
	EndedAt           *time.Time
	EndReason         *string
}

// IsActive reports whether the session is still usable (not ended and not
// expired at the supplied moment).
func (s VerificationSession) IsActive(at time.Time) bool {
	if s.EndedAt != nil {
		return false
	}
	return s.ExpiresAt.After(at)
}

// Touch refreshes the heartbeat timestamp.
func (s *VerificationSession) Touch(at time.Time) {
	s.LastActivityAt = at
}

// End marks the session terminated. Returns true when the session changed state.
func (s *VerificationSession) End(at time.Time, reason string) bool {
	if s.EndedAt != nil {
		return false
	}
	endedAt := at
	s.EndedAt = &endedAt
	s.EndReason = &reason
	return true
}

// MatchesFingerprint reports whether the session was started from the device
// identified by the supplied fingerprint.
func (s VerificationSession) MatchesFingerprint(fingerprint string) bool {
	if fingerprint == "" || s.DeviceFingerprint == nil {
		return false
	}
	return *s.DeviceFingerprint == fingerprint
}
