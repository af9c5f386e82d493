package handlers

import (
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/taskbridge/provider-verification/internal/core/domain"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	traceID, _ := c.Get("trace_id")
	traceIDStr, _ := traceID.(string)

	return ErrorResponse{
		Error:   errorMsg,
		TraceID: traceIDStr,
	}
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// HealthResponse reports liveness state.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
}

// ReadinessResponse reports per-dependency readiness.
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// SessionStartRequest begins or restores a verification session for a device.
type SessionStartRequest struct {
	DeviceFingerprint string `json:"device_fingerprint"`
}

// SessionEndRequest terminates the current session.
type SessionEndRequest struct {
	Reason string `json:"reason"`
}

// SessionPayload describes a verification session in API responses.
type SessionPayload struct {
	ID                string     `json:"id"`
	ProviderID        string     `json:"provider_id"`
	DeviceFingerprint *string    `json:"device_fingerprint,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	ExpiresAt         time.Time  `json:"expires_at"`
	LastActivityAt    time.Time  `json:"last_activity_at"`
	EndedAt           *time.Time `json:"ended_at,omitempty"`
	EndReason         *string    `json:"end_reason,omitempty"`
}

func newSessionPayload(session domain.VerificationSession) SessionPayload {
	return SessionPayload{
		ID:                session.ID,
		ProviderID:        session.ProviderID,
		DeviceFingerprint: session.DeviceFingerprint,
		CreatedAt:         session.CreatedAt,
		ExpiresAt:         session.ExpiresAt,
		LastActivityAt:    session.LastActivityAt,
		EndedAt:           session.EndedAt,
		EndReason:         session.EndReason,
	}
}

// StepPayload describes per-step progress in API responses.
type StepPayload struct {
	StepNumber       int             `json:"step_number"`
	Name             string          `json:"name"`
	Status           string          `json:"status"`
	Data             json.RawMessage `json:"data,omitempty"`
	ValidationErrors []string        `json:"validation_errors,omitempty"`
	LockState        string          `json:"lock_state,omitempty"`
	StartedAt        *time.Time      `json:"started_at,omitempty"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
	FailedAt         *time.Time      `json:"failed_at,omitempty"`
	RetryCount       int             `json:"retry_count"`
	ViaSubmission    bool            `json:"via_submission,omitempty"`
	CanNavigate      bool            `json:"can_navigate"`
}

func newStepPayload(progress domain.StepProgress, lockState domain.LockState, canNavigate bool) StepPayload {
	payload := StepPayload{
		StepNumber:       int(progress.StepNumber),
		Status:           string(progress.Status),
		ValidationErrors: progress.ValidationErrors,
		LockState:        string(lockState),
		StartedAt:        progress.StartedAt,
		CompletedAt:      progress.CompletedAt,
		FailedAt:         progress.FailedAt,
		RetryCount:       progress.RetryCount,
		ViaSubmission:    progress.CompletedViaSubmission,
		CanNavigate:      canNavigate,
	}
	if def, ok := domain.StepByNumber(progress.StepNumber); ok {
		payload.Name = def.Name
	}
	if raw, err := domain.EncodeStepData(progress.Data); err == nil && len(raw) > 0 {
		payload.Data = raw
	}
	return payload
}

// ProgressResponse is the aggregate onboarding view.
type ProgressResponse struct {
	ProviderID         string        `json:"provider_id"`
	CurrentStep        int           `json:"current_step"`
	CompletedSteps     []int         `json:"completed_steps"`
	ProgressPercent    float64       `json:"progress_percent"`
	VerificationStatus string        `json:"verification_status"`
	SessionID          string        `json:"session_id,omitempty"`
	SubmittedAt        *time.Time    `json:"submitted_at,omitempty"`
	Steps              []StepPayload `json:"steps,omitempty"`
}

func newProgressResponse(progress domain.OnboardingProgress, sessionID string) ProgressResponse {
	completed := make([]int, 0, len(progress.CompletedSteps))
	for _, step := range progress.CompletedSteps {
		completed = append(completed, int(step))
	}
	return ProgressResponse{
		ProviderID:         progress.ProviderID,
		CurrentStep:        int(progress.CurrentStep),
		CompletedSteps:     completed,
		ProgressPercent:    progress.ProgressPercentage(),
		VerificationStatus: string(progress.VerificationStatus),
		SessionID:          sessionID,
		SubmittedAt:        progress.SubmittedAt,
	}
}

// StepUpdateRequest carries a partial update of a step's draft data.
type StepUpdateRequest struct {
	Data             json.RawMessage `json:"data"`
	ValidationErrors []string        `json:"validation_errors"`
}

// StepCompleteRequest carries the final payload for completing a step.
type StepCompleteRequest struct {
	Data json.RawMessage `json:"data" binding:"required"`
}

// StepFailRequest records a failed verification attempt for a step.
type StepFailRequest struct {
	ValidationErrors []string `json:"validation_errors" binding:"required"`
}

// LockResponse reports a lock operation's outcome.
type LockResponse struct {
	Acquired  bool   `json:"acquired"`
	LockState string `json:"lock_state,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// StripeValidationRequest carries the payment account validation outcome
// reported by the billing integration.
type StripeValidationRequest struct {
	Status string   `json:"status" binding:"required"`
	Errors []string `json:"errors"`
}

// SubmitResponse returns the finalized aggregate after submission.
type SubmitResponse struct {
	Progress ProgressResponse `json:"progress"`
	Message  string           `json:"message"`
}

// UploadResponse describes a stored document object.
type UploadResponse struct {
	Key       string `json:"key"`
	SignedURL string `json:"signed_url,omitempty"`
}

// RemoveRequest lists stored document keys to delete.
type RemoveRequest struct {
	Keys []string `json:"keys" binding:"required"`
}
