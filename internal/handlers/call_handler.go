package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"emergency-response/internal/auth"
	"emergency-response/internal/dispatch"
	"emergency-response/internal/models"
)

// CallHandler handles HTTP requests for emergency calls.
type CallHandler struct {
	svc    *dispatch.Service
	logger *zap.Logger
}

// NewCallHandler creates a new call handler.
func NewCallHandler(svc *dispatch.Service, logger *zap.Logger) *CallHandler {
	return &CallHandler{
		svc:    svc,
		logger: logger.Named("call_handler"),
	}
}

// CreateCall creates a new emergency call. An authenticated citizen becomes
// the owning user; without a token the call is anonymous and must carry a
// name or phone.
func (h *CallHandler) CreateCall(c *gin.Context) {
	var req models.CreateCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload", "details": err.Error()})
		return
	}

	userID := userIDFromContext(c)

	call, err := h.svc.CreateCall(c.Request.Context(), &req, userID)
	if err != nil {
		h.writeError(c, err, "Failed to create call")
		return
	}

	c.JSON(http.StatusCreated, call)
}

// ListCalls lists calls, optionally filtered by service or owning user.
func (h *CallHandler) ListCalls(c *gin.Context) {
	ctx := c.Request.Context()

	if service := c.Query("service"); service != "" {
		calls, err := h.svc.ListCallsByService(ctx, models.Service(service))
		if err != nil {
			h.writeError(c, err, "Failed to list calls by service")
			return
		}
		c.JSON(http.StatusOK, calls)
		return
	}

	if userIDStr := c.Query("user_id"); userIDStr != "" {
		userID, err := uuid.Parse(userIDStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
			return
		}
		calls, err := h.svc.ListCallsByUser(ctx, userID)
		if err != nil {
			h.writeError(c, err, "Failed to list calls by user")
			return
		}
		c.JSON(http.StatusOK, calls)
		return
	}

	calls, err := h.svc.ListCalls(ctx)
	if err != nil {
		h.writeError(c, err, "Failed to list calls")
		return
	}
	c.JSON(http.StatusOK, calls)
}

// GetCall retrieves one call by id.
func (h *CallHandler) GetCall(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid call id"})
		return
	}

	call, err := h.svc.GetCall(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err, "Failed to get call")
		return
	}

	c.JSON(http.StatusOK, call)
}

// UpdateUserStatus applies a caller-side status change. Authenticated owners
// are identified by their token; anonymous callers authenticate with the
// phone number from the request body.
func (h *CallHandler) UpdateUserStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid call id"})
		return
	}

	var req models.UpdateUserStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload", "details": err.Error()})
		return
	}

	requester := dispatch.Requester{
		UserID: userIDFromContext(c),
		Phone:  req.Phone,
	}

	call, err := h.svc.SetUserStatus(c.Request.Context(), id, req.Status, requester)
	if err != nil {
		h.writeError(c, err, "Failed to update caller status")
		return
	}

	c.JSON(http.StatusOK, call)
}

// UpdatePersonnelStatus applies a responder-side status change. The personnel
// id comes from the authenticated session; the affiliation check runs against
// the directory record.
func (h *CallHandler) UpdatePersonnelStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid call id"})
		return
	}

	personnelID, err := uuid.Parse(c.GetString(auth.ContextPersonnelID))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "personnel identity required"})
		return
	}

	var req models.UpdatePersonnelStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload", "details": err.Error()})
		return
	}

	call, err := h.svc.SetPersonnelStatus(c.Request.Context(), id, req.Status, personnelID)
	if err != nil {
		h.writeError(c, err, "Failed to update responder status")
		return
	}

	c.JSON(http.StatusOK, call)
}

// writeError maps the dispatch error taxonomy to HTTP responses.
func (h *CallHandler) writeError(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, dispatch.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, dispatch.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, dispatch.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, dispatch.ErrUnavailable):
		h.logger.Error(msg, zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service temporarily unavailable"})
	default:
		h.logger.Error(msg, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
	}
}

// userIDFromContext returns the authenticated user's id, or nil when the
// request carries no citizen token.
func userIDFromContext(c *gin.Context) *uuid.UUID {
	idStr := c.GetString(auth.ContextUserID)
	if idStr == "" {
		return nil
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil
	}
	return &id
}
