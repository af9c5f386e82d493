package handlers

import (
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/taskbridge/provider-verification/internal/core/port"
	"github.com/taskbridge/provider-verification/internal/transport/http/middleware"
)

// UploadHandler stores verification documents (identity documents, selfies,
// portfolio images) in object storage and returns keys the step payloads
// reference.
type UploadHandler struct {
	storage      port.ObjectStorage
	signedURLTTL time.Duration
}

// NewUploadHandler constructs an upload handler.
func NewUploadHandler(storage port.ObjectStorage, signedURLTTL time.Duration) *UploadHandler {
	return &UploadHandler{storage: storage, signedURLTTL: signedURLTTL}
}

// RegisterRoutes binds upload routes to the provided router group.
func (h *UploadHandler) RegisterRoutes(r *gin.RouterGroup) {
	if r == nil {
		return
	}

	r.POST("", h.Upload)
	r.GET("/:key/url", h.SignedURL)
	r.DELETE("", h.Remove)
}

// Upload godoc
// @Summary Upload a verification document
// @Description Stores the file in object storage under a key scoped to the provider and category.
// @Tags Uploads
// @Security Bearer
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Document file"
// @Param category formData string false "Document category (identity, selfie, portfolio)"
// @Success 201 {object} UploadResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Router /api/v1/onboarding/documents [post]
func (h *UploadHandler) Upload(c *gin.Context) {
	if h.storage == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "document storage unavailable"))
		return
	}

	providerID, ok := middleware.GetAuthenticatedProviderID(c)
	if !ok || providerID == "" {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "file is required"))
		return
	}

	category := c.PostForm("category")
	if category == "" {
		category = "document"
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "failed to read file"))
		return
	}
	defer file.Close()

	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	key := fmt.Sprintf("%s/%s/%s%s", providerID, category, uuid.NewString(), path.Ext(fileHeader.Filename))
	storedKey, err := h.storage.Upload(c.Request.Context(), key, file, fileHeader.Size, contentType)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to store document"))
		return
	}

	signed, err := h.storage.SignedURL(c.Request.Context(), storedKey, h.signedURLTTL)
	if err != nil {
		// The object is stored; the URL can be fetched later.
		c.JSON(http.StatusCreated, UploadResponse{Key: storedKey})
		return
	}

	c.JSON(http.StatusCreated, UploadResponse{Key: storedKey, SignedURL: signed})
}

// SignedURL godoc
// @Summary Get a time-limited download URL for a stored document
// @Tags Uploads
// @Security Bearer
// @Produce json
// @Param key path string true "Object key"
// @Success 200 {object} UploadResponse
// @Failure 401 {object} ErrorResponse
// @Router /api/v1/onboarding/documents/{key}/url [get]
func (h *UploadHandler) SignedURL(c *gin.Context) {
	if h.storage == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "document storage unavailable"))
		return
	}

	providerID, ok := middleware.GetAuthenticatedProviderID(c)
	if !ok || providerID == "" {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	key := c.Param("key")
	if key == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "key is required"))
		return
	}

	signed, err := h.storage.SignedURL(c.Request.Context(), key, h.signedURLTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to sign url"))
		return
	}

	c.JSON(http.StatusOK, UploadResponse{Key: key, SignedURL: signed})
}

// Remove godoc
// @Summary Delete stored verification documents
// @Description Removes the listed object keys. Keys outside the caller's namespace are rejected.
// @Tags Uploads
// @Security Bearer
// @Accept json
// @Produce json
// @Param request body RemoveRequest true "Object keys to delete"
// @Success 200 {object} MessageResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /api/v1/onboarding/documents [delete]
func (h *UploadHandler) Remove(c *gin.Context) {
	if h.storage == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "document storage unavailable"))
		return
	}

	providerID, ok := middleware.GetAuthenticatedProviderID(c)
	if !ok || providerID == "" {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req RemoveRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Keys) == 0 {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "keys are required"))
		return
	}

	prefix := providerID + "/"
	for _, key := range req.Keys {
		if !strings.HasPrefix(key, prefix) {
			c.JSON(http.StatusForbidden, NewErrorResponse(c, "key outside caller namespace"))
			return
		}
	}

	if err := h.storage.Remove(c.Request.Context(), req.Keys); err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to remove documents"))
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "documents removed"})
}
