package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/taskbridge/provider-verification/internal/transport/http/middleware"
	"github.com/taskbridge/provider-verification/internal/usecase"
)

// LockHandler exposes step lock acquisition, release and status endpoints.
// Contention is reported as a normal 200 response with acquired=false, not an
// error: multiple devices racing for a step is expected behavior.
type LockHandler struct {
	flows *usecase.FlowManager
}

// NewLockHandler constructs a lock handler.
func NewLockHandler(flows *usecase.FlowManager) *LockHandler {
	return &LockHandler{flows: flows}
}

// RegisterRoutes binds lock routes to the provided router group.
func (h *LockHandler) RegisterRoutes(r *gin.RouterGroup) {
	if r == nil {
		return
	}

	r.POST("/:step/lock", h.Acquire)
	r.DELETE("/:step/lock", h.Release)
	r.GET("/:step/lock", h.Status)
}

func (h *LockHandler) flowForRequest(c *gin.Context) (*usecase.ProviderFlow, bool) {
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

// Acquire godoc
// @Summary Acquire a step lock
// @Description Claims the step for the active session. The server-side store is authoritative; a refused claim is a normal outcome.
// @Tags Locks
// @Security Bearer
// @Produce json
// @Param step path int true "Step number (1-8)"
// @Success 200 {object} LockResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Router /api/v1/onboarding/steps/{step}/lock [post]
func (h *LockHandler) Acquire(c *gin.Context) {
	flow, ok := h.flowForRequest(c)
	if !ok {
		return
	}
	step, ok := stepParam(c)
	if !ok {
		return
	}

	acquired, reason := flow.Locks.Acquire(c.Request.Context(), step)
	c.JSON(http.StatusOK, LockResponse{
		Acquired:  acquired,
		LockState: string(flow.State.StepLockState(step)),
		Reason:    reason,
	})
}

// Release godoc
// @Summary Release a step lock
// @Description Drops the session's lock on the step. Releasing always succeeds locally even when the server is unreachable.
// @Tags Locks
// @Security Bearer
// @Produce json
// @Param step path int true "Step number (1-8)"
// @Success 200 {object} MessageResponse
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/onboarding/steps/{step}/lock [delete]
func (h *LockHandler) Release(c *gin.Context) {
	flow, ok := h.flowForRequest(c)
	if !ok {
		return
	}
	step, ok := stepParam(c)
	if !ok {
		return
	}

	flow.Locks.Release(c.Request.Context(), step)
	c.JSON(http.StatusOK, MessageResponse{Message: "lock released"})
}

// Status godoc
// @Summary Get step lock state
// @Description Polls the authoritative lock store and classifies the lock relative to the active session.
// @Tags Locks
// @Security Bearer
// @Produce json
// @Param step path int true "Step number (1-8)"
// @Success 200 {object} LockResponse
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/onboarding/steps/{step}/lock [get]
func (h *LockHandler) Status(c *gin.Context) {
	flow, ok := h.flowForRequest(c)
	if !ok {
		return
	}
	step, ok := stepParam(c)
	if !ok {
		return
	}

	state, err := flow.Locks.Status(c.Request.Context(), step)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to read lock state"))
		return
	}

	c.JSON(http.StatusOK, LockResponse{LockState: string(state)})
}
