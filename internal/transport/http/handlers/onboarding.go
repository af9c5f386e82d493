package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/taskbridge/provider-verification/internal/core/domain"
	"github.com/taskbridge/provider-verification/internal/transport/http/middleware"
	"github.com/taskbridge/provider-verification/internal/usecase"
)

// OnboardingHandler exposes the aggregate onboarding endpoints: progress,
// server sync and final submission.
type OnboardingHandler struct {
	flows *usecase.FlowManager
}

// NewOnboardingHandler constructs an onboarding handler.
func NewOnboardingHandler(flows *usecase.FlowManager) *OnboardingHandler {
	return &OnboardingHandler{flows: flows}
}

// RegisterRoutes binds onboarding routes to the provided router group.
func (h *OnboardingHandler) RegisterRoutes(r *gin.RouterGroup) {
	if r == nil {
		return
	}

	r.GET("/progress", h.GetProgress)
	r.POST("/sync", h.Sync)
	r.POST("/submit", h.Submit)
	r.PUT("/stripe-validation", h.SetStripeValidation)
}

func (h *OnboardingHandler) flowForRequest(c *gin.Context) (*usecase.ProviderFlow, bool) {
	providerID, ok := middleware.GetAuthenticatedProviderID(c)
	if !ok || providerID == "" {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return nil, false
	}

	flow, err := h.flows.Get(c.Request.Context(), providerID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to load flow"))
		return nil, false
	}
	return flow, true
}

// GetProgress godoc
// @Summary Get onboarding progress
// @Description Returns the aggregate onboarding record with per-step details. Progress percentage is derived from completed steps.
// @Tags Onboarding
// @Security Bearer
// @Produce json
// @Success 200 {object} ProgressResponse
// @Failure 401 {object} ErrorResponse
// @Router /api/v1/onboarding/progress [get]
func (h *OnboardingHandler) GetProgress(c *gin.Context) {
	flow, ok := h.flowForRequest(c)
	if !ok {
		return
	}

	response := newProgressResponse(flow.State.AggregateProgress(), flow.State.SessionID())

	snapshot := flow.State.StepsSnapshot()
	response.Steps = make([]StepPayload, 0, domain.TotalSteps)
	for n := domain.StepIdentityDocument; n <= domain.StepTerms; n++ {
		progress, exists := snapshot[n]
		if !exists {
			progress = *domain.NewStepProgress(flow.State.ProviderID(), n)
		}
		response.Steps = append(response.Steps, newStepPayload(
			progress,
			flow.State.StepLockState(n),
			usecase.CanNavigate(n, snapshot),
		))
	}

	c.JSON(http.StatusOK, response)
}

// Sync godoc
// @Summary Reconcile local state with the server record
// @Description Pulls the server's onboarding and step records and merges them into the flow; the server wins once its state is observed.
// @Tags Onboarding
// @Security Bearer
// @Produce json
// @Success 200 {object} ProgressResponse
// @Failure 401 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /api/v1/onboarding/sync [post]
func (h *OnboardingHandler) Sync(c *gin.Context) {
	flow, ok := h.flowForRequest(c)
	if !ok {
		return
	}

	if _, _, err := flow.Sync.SyncFromServer(c.Request.Context()); err != nil {
		c.JSON(http.StatusBadGateway, NewErrorResponse(c, "failed to sync with server"))
		return
	}

	c.JSON(http.StatusOK, newProgressResponse(flow.State.AggregateProgress(), flow.State.SessionID()))
}

// Submit godoc
// @Summary Submit the completed onboarding
// @Description Finalizes the wizard. Steps skipped by the UI are completed retroactively before the verification status moves to submitted.
// @Tags Onboarding
// @Security Bearer
// @Produce json
// @Success 200 {object} SubmitResponse
// @Failure 401 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /api/v1/onboarding/submit [post]
func (h *OnboardingHandler) Submit(c *gin.Context) {
	flow, ok := h.flowForRequest(c)
	if !ok {
		return
	}

	progress, err := flow.Submission.Submit(c.Request.Context())
	if err != nil {
		cases := []ErrorCase{
			{Err: usecase.ErrAlreadySubmitted, Status: http.StatusConflict, Message: "onboarding already submitted"},
			{Err: usecase.ErrSubmissionIncomplete, Status: http.StatusUnprocessableEntity, Message: "onboarding is not ready for submission"},
		}
		RespondWithMappedError(c, err, cases, http.StatusInternalServerError, "failed to submit onboarding")
		return
	}

	c.JSON(http.StatusOK, SubmitResponse{
		Progress: newProgressResponse(*progress, flow.State.SessionID()),
		Message:  "onboarding submitted for review",
	})
}

// SetStripeValidation godoc
// @Summary Record the payment account validation outcome
// @Description Stores the validation status reported by the billing integration. The onboarding flow surfaces it read-only.
// @Tags Onboarding
// @Security Bearer
// @Accept json
// @Produce json
// @Param request body StripeValidationRequest true "Validation outcome"
// @Success 200 {object} MessageResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Router /api/v1/onboarding/stripe-validation [put]
func (h *OnboardingHandler) SetStripeValidation(c *gin.Context) {
	flow, ok := h.flowForRequest(c)
	if !ok {
		return
	}

	var req StripeValidationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "status is required"))
		return
	}

	if err := flow.Sync.RecordStripeValidation(c.Request.Context(), req.Status, req.Errors); err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to record validation status"))
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "validation status recorded"})
}
