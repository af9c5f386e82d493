package domain

import "time"

// StepNumber identifies one stage of the provider verification wizard.
type StepNumber int

// The eight onboarding steps, in completion order.
const (
	StepIdentityDocument StepNumber = iota + 1
	StepSelfie
	StepBusinessInfo
	StepCategorySelection
	StepServices
	StepPortfolio
	StepBio
	StepTerms
)

// TotalSteps is the number of real wizard steps.
const TotalSteps = 8

// DoneStep is the sentinel step one past the last real step, signalling that
// the whole flow is complete.
const DoneStep = StepNumber(TotalSteps + 1)

// Valid reports whether the step number refers to a real wizard step.
func (n StepNumber) Valid() bool {
	return n >= StepIdentityDocument && n <= StepTerms
}

// StepStatus tracks the lifecycle of a single step.
type StepStatus string

const (
	StepNotStarted StepStatus = "not_started"
	StepInProgress StepStatus = "in_progress"
	StepCompleted  StepStatus = "completed"
	StepFailed     StepStatus = "failed"
)

// StepDefinition is static metadata for one wizard step.
type StepDefinition struct {
	Number         StepNumber
	Name           string
	RequiredFields []string
}

var stepTable = [TotalSteps]StepDefinition{
	{Number: StepIdentityDocument, Name: "identity_document", RequiredFields: []string{"document_type", "document_path"}},
	{Number: StepSelfie, Name: "selfie", RequiredFields: []string{"image_path"}},
	{Number: StepBusinessInfo, Name: "business_info", RequiredFields: []string{"business_name", "address", "phone"}},
	{Number: StepCategorySelection, Name: "category_selection", RequiredFields: []string{"category_ids"}},
	{Number: StepServices, Name: "services", RequiredFields: []string{"services"}},
	{Number: StepPortfolio, Name: "portfolio", RequiredFields: nil},
	{Number: StepBio, Name: "bio", RequiredFields: []string{"headline", "about"}},
	{Number: StepTerms, Name: "terms", RequiredFields: []string{"accepted", "version"}},
}

// Steps returns the ordered step definition table.
func Steps() []StepDefinition {
	defs := make([]StepDefinition, TotalSteps)
	copy(defs, stepTable[:])
	return defs
}

// StepByNumber looks up the definition for a step number.
func StepByNumber(n StepNumber) (StepDefinition, bool) {
	if !n.Valid() {
		return StepDefinition{}, false
	}
	return stepTable[n-1], true
}

// StepLock is a time-boxed exclusive claim by one session on one step.
type StepLock struct {
	LockedBySession string
	LockedAt        time.Time
	LockExpiresAt   time.Time
}

// Expired reports whether the lock has passed its expiry at the supplied moment.
func (l StepLock) Expired(at time.Time) bool {
	return !l.LockExpiresAt.After(at)
}

// HeldBy reports whether the lock is currently held by the given session.
func (l StepLock) HeldBy(sessionID string, at time.Time) bool {
	return l.LockedBySession == sessionID && !l.Expired(at)
}

// StepProgress is the persisted state of one provider's wizard step.
type StepProgress struct {
	ProviderID             string
	StepNumber             StepNumber
	Status                 StepStatus
	Data                   StepData
	ValidationErrors       []string
	Lock                   *StepLock
	StartedAt              *time.Time
	CompletedAt            *time.Time
	FailedAt               *time.Time
	RetryCount             int
	MaxRetries             int
	CompletedViaSubmission bool
}

// NewStepProgress returns a not-started progress record for the step.
func NewStepProgress(providerID string, step StepNumber) *StepProgress {
	return &StepProgress{
		ProviderID: providerID,
		StepNumber: step,
		Status:     StepNotStarted,
		MaxRetries: DefaultMaxStepRetries,
	}
}

// DefaultMaxStepRetries bounds how often a failed step may be retried before
// the UI layer surfaces a terminal error.
const DefaultMaxStepRetries = 3

// IsCompleted reports whether the step has been completed.
func (p *StepProgress) IsCompleted() bool {
	return p.Status == StepCompleted
}

// Complete marks the step completed at the given moment, keeping existing data
// when none is supplied.
func (p *StepProgress) Complete(at time.Time, data StepData) {
	if data != nil {
		p.Data = data
	}
	p.Status = StepCompleted
	completedAt := at
	p.CompletedAt = &completedAt
	if p.StartedAt == nil {
		startedAt := at
		p.StartedAt = &startedAt
	}
	p.ValidationErrors = nil
	p.FailedAt = nil
}

// MarkFailed records a failed attempt with the supplied validation errors and
// bumps the retry counter. Returns false once the retry budget is exhausted.
func (p *StepProgress) MarkFailed(at time.Time, validationErrors []string) bool {
	p.Status = StepFailed
	failedAt := at
	p.FailedAt = &failedAt
	p.ValidationErrors = validationErrors
	p.RetryCount++
	return p.CanRetry()
}

// CanRetry reports whether the step may still be retried after a failure.
func (p *StepProgress) CanRetry() bool {
	maxRetries := p.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxStepRetries
	}
	return p.RetryCount < maxRetries
}

// StructurallyValid reports whether a completed step carries data that
// satisfies its own contract. Used by the consistency checker to demote
// impossible completions.
func (p *StepProgress) StructurallyValid() bool {
	if p.Status != StepCompleted {
		return true
	}
	if p.CompletedViaSubmission {
		return true
	}
	if p.Data == nil {
		return false
	}
	return len(p.Data.Validate()) == 0
}

// ResetToNotStarted demotes the step, clearing completion metadata. Data is
// kept so the user does not lose what they typed.
func (p *StepProgress) ResetToNotStarted() {
	p.Status = StepNotStarted
	p.CompletedAt = nil
	p.FailedAt = nil
	p.ValidationErrors = nil
	p.CompletedViaSubmission = false
}

// Clone returns a deep copy safe to hand to callers outside the store's lock.
func (p *StepProgress) Clone() *StepProgress {
	if p == nil {
		return nil
	}
	clone := *p
	if p.Lock != nil {
		lock := *p.Lock
		clone.Lock = &lock
	}
	if p.ValidationErrors != nil {
		clone.ValidationErrors = append([]string(nil), p.ValidationErrors...)
	}
	clone.StartedAt = copyTime(p.StartedAt)
	clone.CompletedAt = copyTime(p.CompletedAt)
	clone.FailedAt = copyTime(p.FailedAt)
	return &clone
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
