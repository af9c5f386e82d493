package domain

import "time"

// SessionStartedEvent represents the payload for onboarding.session.started messages.
type SessionStartedEvent struct {
	EventID           string
	SessionID         string
	ProviderID        string
	DeviceFingerprint *string
	StartedAt         time.Time
	ExpiresAt         time.Time
	Metadata          map[string]any
}

// SessionEndedEvent represents the payload for onboarding.session.ended messages.
type SessionEndedEvent struct {
	EventID    string
	SessionID  string
	ProviderID string
	EndedAt    time.Time
	Reason     string
	Metadata   map[string]any
}

// StepCompletedEvent represents the payload for onboarding.step.completed messages.
type StepCompletedEvent struct {
	EventID         string
	ProviderID      string
	SessionID       string
	StepNumber      StepNumber
	StepName        string
	CompletedAt     time.Time
	ViaSubmission   bool
	ProgressPercent float64
	Metadata        map[string]any
}

// StepLockContendedEvent represents the payload for onboarding.step.lock_contended messages.
type StepLockContendedEvent struct {
	EventID       string
	ProviderID    string
	StepNumber    StepNumber
	RequestedBy   string
	HeldBy        string
	LockExpiresAt time.Time
	ContendedAt   time.Time
	Metadata      map[string]any
}

// OnboardingSubmittedEvent represents the payload for onboarding.submitted messages.
type OnboardingSubmittedEvent struct {
	EventID            string
	ProviderID         string
	SessionID          string
	SubmittedAt        time.Time
	StepsCompletedLate []StepNumber
	VerificationStatus VerificationStatus
	Metadata           map[string]any
}
