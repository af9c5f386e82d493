package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/taskbridge/provider-verification/internal/transport/http/middleware"
	"github.com/taskbridge/provider-verification/internal/usecase"
)

// SessionHandler exposes verification session lifecycle endpoints.
type SessionHandler struct {
	flows *usecase.FlowManager
}

// NewSessionHandler constructs a session handler.
func NewSessionHandler(flows *usecase.FlowManager) *SessionHandler {
	return &SessionHandler{flows: flows}
}

// RegisterRoutes binds session routes to the provided router group.
func (h *SessionHandler) RegisterRoutes(r *gin.RouterGroup) {
	if r == nil {
		return
	}

	r.POST("", h.StartSession)
	r.DELETE("", h.EndSession)
	r.GET("", h.CurrentSession)
}

// StartSession godoc
// @Summary Start or restore a verification session
// @Description Creates a session for the provider, or restores the active session for the same device fingerprint.
// @Tags Sessions
// @Security Bearer
// @Accept json
// @Produce json
// @Param request body SessionStartRequest true "Session start request"
// @Success 200 {object} SessionPayload
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/onboarding/session [post]
func (h *SessionHandler) StartSession(c *gin.Context) {
	providerID, ok := middleware.GetAuthenticatedProviderID(c)
	if !ok || providerID == "" {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	// An empty body is acceptable; the fingerprint is optional.
	var req SessionStartRequest
	_ = c.ShouldBindJSON(&req)

	session, err := h.flows.StartSession(c.Request.Context(), providerID, req.DeviceFingerprint)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to start session"))
		return
	}

	c.JSON(http.StatusOK, newSessionPayload(*session))
}

// EndSession godoc
// @Summary End the active verification session
// @Description Terminates the provider's session and stops its heartbeat.
// @Tags Sessions
// @Security Bearer
// @Accept json
// @Produce json
// @Param request body SessionEndRequest false "Session end request"
// @Success 200 {object} MessageResponse
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/onboarding/session [delete]
func (h *SessionHandler) EndSession(c *gin.Context) {
	providerID, ok := middleware.GetAuthenticatedProviderID(c)
	if !ok || providerID == "" {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req SessionEndRequest
	_ = c.ShouldBindJSON(&req)
	if req.Reason == "" {
		req.Reason = "user_logout"
	}

	if err := h.flows.EndSession(c.Request.Context(), providerID, req.Reason); err != nil {
		cases := []ErrorCase{{Err: usecase.ErrNoActiveSession, Status: http.StatusNotFound, Message: "no active session"}}
		RespondWithMappedError(c, err, cases, http.StatusInternalServerError, "failed to end session")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "session ended"})
}

// CurrentSession godoc
// @Summary Get the active verification session
// @Tags Sessions
// @Security Bearer
// @Produce json
// @Success 200 {object} SessionPayload
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/onboarding/session [get]
func (h *SessionHandler) CurrentSession(c *gin.Context) {
	providerID, ok := middleware.GetAuthenticatedProviderID(c)
	if !ok || providerID == "" {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	flow, err := h.flows.Get(c.Request.Context(), providerID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to load flow"))
		return
	}

	session := flow.State.Session()
	if session == nil {
		c.JSON(http.StatusNotFound, NewErrorResponse(c, "no active session"))
		return
	}

	c.JSON(http.StatusOK, newSessionPayload(*session))
}
