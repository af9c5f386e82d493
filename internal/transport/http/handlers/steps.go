package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/taskbridge/provider-verification/internal/core/domain"
	"github.com/taskbridge/provider-verification/internal/transport/http/middleware"
	"github.com/taskbridge/provider-verification/internal/usecase"
)

// StepHandler exposes per-step progress endpoints: listing, draft updates,
// completion and failure recording.
type StepHandler struct {
	flows *usecase.FlowManager
}

// NewStepHandler constructs a step handler.
func NewStepHandler(flows *usecase.FlowManager) *StepHandler {
	return &StepHandler{flows: flows}
}

// RegisterRoutes binds step routes to the provided router group.
func (h *StepHandler) RegisterRoutes(r *gin.RouterGroup) {
	if r == nil {
		return
	}

	r.GET("", h.ListSteps)
	r.PATCH("/:step", h.UpdateStep)
	r.POST("/:step/complete", h.CompleteStep)
	r.POST("/:step/fail", h.FailStep)
}

func (h *StepHandler) flowForRequest(c *gin.Context) (*usecase.ProviderFlow, bool) {
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

func stepParam(c *gin.Context) (domain.StepNumber, bool) {
	raw := c.Param("step")
	n, err := strconv.Atoi(raw)
	if err != nil || !domain.StepNumber(n).Valid() {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid step number"))
		return 0, false
	}
	return domain.StepNumber(n), true
}

// ListSteps godoc
// @Summary List step progress
// @Description Returns every wizard step with its status, lock state and whether the session may navigate to it.
// @Tags Steps
// @Security Bearer
// @Produce json
// @Success 200 {array} StepPayload
// @Failure 401 {object} ErrorResponse
// @Router /api/v1/onboarding/steps [get]
func (h *StepHandler) ListSteps(c *gin.Context) {
	flow, ok := h.flowForRequest(c)
	if !ok {
		return
	}

	snapshot := flow.State.StepsSnapshot()
	payloads := make([]StepPayload, 0, domain.TotalSteps)
	for n := domain.StepIdentityDocument; n <= domain.StepTerms; n++ {
		progress, exists := snapshot[n]
		if !exists {
			progress = *domain.NewStepProgress(flow.State.ProviderID(), n)
		}
		payloads = append(payloads, newStepPayload(
			progress,
			flow.State.StepLockState(n),
			usecase.CanNavigate(n, snapshot),
		))
	}

	c.JSON(http.StatusOK, payloads)
}

// UpdateStep godoc
// @Summary Update step draft data
// @Description Merges a partial update into the step's local progress. Drafts are confirmed remotely on completion.
// @Tags Steps
// @Security Bearer
// @Accept json
// @Produce json
// @Param step path int true "Step number (1-8)"
// @Param request body StepUpdateRequest true "Partial step update"
// @Success 200 {object} StepPayload
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Router /api/v1/onboarding/steps/{step} [patch]
func (h *StepHandler) UpdateStep(c *gin.Context) {
	flow, ok := h.flowForRequest(c)
	if !ok {
		return
	}
	step, ok := stepParam(c)
	if !ok {
		return
	}

	var req StepUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid request body"))
		return
	}

	patch := usecase.StepPatch{ValidationErrors: req.ValidationErrors}
	if len(req.Data) > 0 {
		data, err := domain.DecodeStepData(step, req.Data)
		if err != nil {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "malformed step data"))
			return
		}
		patch.Data = data
	}

	progress, err := flow.State.UpdateStepProgress(step, patch)
	if err != nil {
		cases := []ErrorCase{{Err: usecase.ErrUnknownStep, Status: http.StatusBadRequest, Message: "unknown step"}}
		RespondWithMappedError(c, err, cases, http.StatusInternalServerError, "failed to update step")
		return
	}

	c.JSON(http.StatusOK, newStepPayload(*progress, flow.State.StepLockState(step), true))
}

// CompleteStep godoc
// @Summary Complete a step
// @Description Validates the payload, completes the step locally, then confirms the completion with the server. A server failure leaves the completion local and pending sync.
// @Tags Steps
// @Security Bearer
// @Accept json
// @Produce json
// @Param step path int true "Step number (1-8)"
// @Param request body StepCompleteRequest true "Final step data"
// @Success 200 {object} StepPayload
// @Success 202 {object} StepPayload
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /api/v1/onboarding/steps/{step}/complete [post]
func (h *StepHandler) CompleteStep(c *gin.Context) {
	flow, ok := h.flowForRequest(c)
	if !ok {
		return
	}
	step, ok := stepParam(c)
	if !ok {
		return
	}

	var req StepCompleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "data is required"))
		return
	}

	data, err := domain.DecodeStepData(step, req.Data)
	if err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "malformed step data"))
		return
	}
	if data == nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "data is required"))
		return
	}
	if problems := data.Validate(); len(problems) > 0 {
		if _, markErr := flow.State.MarkStepFailed(step, problems); markErr != nil {
			c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to record validation failure"))
			return
		}
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":             "step data failed validation",
			"validation_errors": problems,
		})
		return
	}

	progress, err := flow.State.CompleteStep(step, data)
	if err != nil {
		cases := []ErrorCase{{Err: usecase.ErrUnknownStep, Status: http.StatusBadRequest, Message: "unknown step"}}
		RespondWithMappedError(c, err, cases, http.StatusInternalServerError, "failed to complete step")
		return
	}

	result := flow.Sync.PushStepCompletion(c.Request.Context(), step)
	switch result.Outcome {
	case usecase.PushConflict:
		c.JSON(http.StatusConflict, NewErrorResponse(c, "step conflicts with server state; refresh and retry"))
		return
	case usecase.PushFailed:
		// Local completion stands; the record is pending sync.
		c.JSON(http.StatusAccepted, newStepPayload(*progress, flow.State.StepLockState(step), true))
		return
	}

	c.JSON(http.StatusOK, newStepPayload(*progress, flow.State.StepLockState(step), true))
}

// FailStep godoc
// @Summary Record a failed verification attempt
// @Tags Steps
// @Security Bearer
// @Accept json
// @Produce json
// @Param step path int true "Step number (1-8)"
// @Param request body StepFailRequest true "Validation errors"
// @Success 200 {object} StepPayload
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/onboarding/steps/{step}/fail [post]
func (h *StepHandler) FailStep(c *gin.Context) {
	flow, ok := h.flowForRequest(c)
	if !ok {
		return
	}
	step, ok := stepParam(c)
	if !ok {
		return
	}

	var req StepFailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "validation_errors is required"))
		return
	}

	progress, err := flow.State.MarkStepFailed(step, req.ValidationErrors)
	if err != nil {
		cases := []ErrorCase{{Err: usecase.ErrUnknownStep, Status: http.StatusBadRequest, Message: "unknown step"}}
		RespondWithMappedError(c, err, cases, http.StatusInternalServerError, "failed to record step failure")
		return
	}

	c.JSON(http.StatusOK, newStepPayload(*progress, flow.State.StepLockState(step), true))
}
