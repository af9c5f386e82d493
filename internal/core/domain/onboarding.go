package domain

import (
	"sort"
	"time"
)

// VerificationStatus is the aggregate state of a provider's onboarding record.
type VerificationStatus string

const (
	VerificationNotStarted VerificationStatus = "not_started"
	VerificationInProgress VerificationStatus = "in_progress"
	VerificationSubmitted  VerificationStatus = "submitted"
	VerificationInReview   VerificationStatus = "in_review"
	VerificationApproved   VerificationStatus = "approved"
	VerificationRejected   VerificationStatus = "rejected"
)

var verificationRank = map[VerificationStatus]int{
	VerificationNotStarted: 0,
	VerificationInProgress: 1,
	VerificationSubmitted:  2,
	VerificationInReview:   3,
	VerificationApproved:   4,
	VerificationRejected:   4,
}

// CanTransitionTo enforces the forward-only verification lifecycle. Moving a
// record backward (for example in_review back to in_progress) is only done by
// admin rejection tooling outside this service.
func (s VerificationStatus) CanTransitionTo(next VerificationStatus) bool {
	from, ok := verificationRank[s]
	if !ok {
		return false
	}
	to, ok := verificationRank[next]
	if !ok {
		return false
	}
	return to > from
}

// OnboardingProgress is the per-provider aggregate onboarding record.
type OnboardingProgress struct {
	ProviderID              string
	CurrentStep             StepNumber
	CompletedSteps          []StepNumber
	VerificationStatus      VerificationStatus
	CurrentSessionID        *string
	StartedAt               *time.Time
	SubmittedAt             *time.Time
	CompletedAt             *time.Time
	ApprovedAt              *time.Time
	RejectedAt              *time.Time
	StripeValidationStatus  string
	StripeValidationErrors  []string
	NotificationPreferences map[string]bool
	UpdatedAt               time.Time
}

// ProgressPercentage is always derived from the completed-step set; it is
// never stored as an independent value that can drift.
func (p OnboardingProgress) ProgressPercentage() float64 {
	if TotalSteps == 0 {
		return 0
	}
	return float64(len(p.CompletedSteps)) / float64(TotalSteps) * 100
}

// HasCompleted reports whether the step is in the completed set.
func (p OnboardingProgress) HasCompleted(step StepNumber) bool {
	for _, s := range p.CompletedSteps {
		if s == step {
			return true
		}
	}
	return false
}

// MarkStepCompleted adds the step to the completed set, keeping it sorted and
// free of duplicates.
func (p *OnboardingProgress) MarkStepCompleted(step StepNumber) {
	if !step.Valid() || p.HasCompleted(step) {
		return
	}
	p.CompletedSteps = append(p.CompletedSteps, step)
	sort.Slice(p.CompletedSteps, func(i, j int) bool {
		return p.CompletedSteps[i] < p.CompletedSteps[j]
	})
}

// Clone returns a deep copy safe to share outside the owning store.
func (p *OnboardingProgress) Clone() *OnboardingProgress {
	if p == nil {
		return nil
	}
	clone := *p
	if p.CompletedSteps != nil {
		clone.CompletedSteps = append([]StepNumber(nil), p.CompletedSteps...)
	}
	if p.StripeValidationErrors != nil {
		clone.StripeValidationErrors = append([]string(nil), p.StripeValidationErrors...)
	}
	if p.NotificationPreferences != nil {
		clone.NotificationPreferences = make(map[string]bool, len(p.NotificationPreferences))
		for k, v := range p.NotificationPreferences {
			clone.NotificationPreferences[k] = v
		}
	}
	if p.CurrentSessionID != nil {
		id := *p.CurrentSessionID
		clone.CurrentSessionID = &id
	}
	clone.StartedAt = copyTime(p.StartedAt)
	clone.SubmittedAt = copyTime(p.SubmittedAt)
	clone.CompletedAt = copyTime(p.CompletedAt)
	clone.ApprovedAt = copyTime(p.ApprovedAt)
	clone.RejectedAt = copyTime(p.RejectedAt)
	return &clone
}
