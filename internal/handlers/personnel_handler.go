package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"emergency-response/internal/dispatch"
	"emergency-response/internal/models"
)

// PersonnelHandler handles HTTP requests for the responder directory.
type PersonnelHandler struct {
	svc    *dispatch.Service
	logger *zap.Logger
}

// NewPersonnelHandler creates a new personnel handler.
func NewPersonnelHandler(svc *dispatch.Service, logger *zap.Logger) *PersonnelHandler {
	return &PersonnelHandler{
		svc:    svc,
		logger: logger.Named("personnel_handler"),
	}
}

// RegisterPersonnel adds a responder to the directory.
func (h *PersonnelHandler) RegisterPersonnel(c *gin.Context) {
	var req models.CreatePersonnelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload", "details": err.Error()})
		return
	}

	rec, err := h.svc.RegisterPersonnel(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, dispatch.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("Failed to register personnel", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service temporarily unavailable"})
		return
	}

	c.JSON(http.StatusCreated, rec)
}

// ListPersonnel lists the responder directory.
func (h *PersonnelHandler) ListPersonnel(c *gin.Context) {
	recs, err := h.svc.ListPersonnel(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list personnel", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service temporarily unavailable"})
		return
	}

	c.JSON(http.StatusOK, recs)
}
