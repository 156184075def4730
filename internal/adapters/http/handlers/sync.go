package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jsamuelsen/quote-manager/internal/adapters/http/dto"
	"github.com/jsamuelsen/quote-manager/internal/app"
	"github.com/jsamuelsen/quote-manager/internal/ports"
)

// SyncService is the part of the quote service the sync endpoints drive.
type SyncService interface {
	Sync(ctx context.Context) (app.ReconcileResult, error)
	CurrentNotification() (ports.Notification, bool)
}

// SyncStatusProvider reports the outcome of the most recent pass.
type SyncStatusProvider interface {
	Status() app.SyncStatus
}

// SyncHandler handles manual sync and notification endpoints.
type SyncHandler struct {
	service SyncService
	status  SyncStatusProvider
}

// NewSyncHandler creates a new sync handler. status may be nil when
// periodic sync is disabled.
func NewSyncHandler(service SyncService, status SyncStatusProvider) *SyncHandler {
	return &SyncHandler{
		service: service,
		status:  status,
	}
}

// SyncResponse is the body of POST /api/v1/sync.
type SyncResponse struct {
	Added    int    `json:"added"`
	Updated  int    `json:"updated"`
	Rejected int    `json:"rejected"`
	Message  string `json:"message,omitempty"`
}

// NotificationResponse is the body of GET /api/v1/notifications/current.
type NotificationResponse struct {
	Message   string    `json:"message"`
	ShownAt   time.Time `json:"shownAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// TriggerSync handles POST /api/v1/sync.
// A request arriving while a pass runs joins it instead of starting another.
//
// @Summary Run a sync pass now
// @Tags sync
// @Produce json
// @Success 200 {object} SyncResponse
// @Failure 503 {object} dto.ErrorResponse
// @Router /api/v1/sync [post]
func (h *SyncHandler) TriggerSync(c *gin.Context) {
	result, err := h.service.Sync(c.Request.Context())
	if err != nil {
		dto.HandleError(c, err)
		return
	}

	resp := SyncResponse{
		Added:    result.AddedCount,
		Updated:  result.UpdatedCount,
		Rejected: result.Rejected,
	}

	if result.Added || result.Updated {
		resp.Message = app.SyncMessage(result)
	}

	c.JSON(http.StatusOK, resp)
}

// GetSyncStatus handles GET /api/v1/sync/status.
func (h *SyncHandler) GetSyncStatus(c *gin.Context) {
	if h.status == nil {
		dto.HandleErrorCode(c, dto.ErrorCodeUnavailable, "remote sync is disabled")
		return
	}

	c.JSON(http.StatusOK, h.status.Status())
}

// GetCurrentNotification handles GET /api/v1/notifications/current.
// Answers 204 when no banner is visible.
func (h *SyncHandler) GetCurrentNotification(c *gin.Context) {
	n, ok := h.service.CurrentNotification()
	if !ok {
		c.Status(http.StatusNoContent)
		return
	}

	c.JSON(http.StatusOK, NotificationResponse{
		Message:   n.Message,
		ShownAt:   n.ShownAt,
		ExpiresAt: n.ExpiresAt,
	})
}

// RegisterSyncRoutes registers sync and notification routes on the given router group.
func (h *SyncHandler) RegisterSyncRoutes(rg *gin.RouterGroup) {
	rg.POST("/sync", h.TriggerSync)
	rg.GET("/sync/status", h.GetSyncStatus)
	rg.GET("/notifications/current", h.GetCurrentNotification)
}
