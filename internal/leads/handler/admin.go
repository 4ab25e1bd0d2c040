package handler

import (
	"net/http"
	"time"

	"leadengine/internal/leads/dedup"
	"leadengine/internal/leads/serial"
	"leadengine/internal/leads/transport"
	"leadengine/platform/httpkit"
	"leadengine/platform/logger"
	"leadengine/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AdminHandler exposes the maintenance operations: bulk duplicate
// reconciliation and serial number management. All routes sit behind the
// admin role.
type AdminHandler struct {
	dedup     *dedup.Job
	allocator *serial.Allocator
	val       *validator.Validator
	log       *logger.Logger
}

func NewAdminHandler(dedupJob *dedup.Job, allocator *serial.Allocator, val *validator.Validator, log *logger.Logger) *AdminHandler {
	return &AdminHandler{dedup: dedupJob, allocator: allocator, val: val, log: log}
}

func (h *AdminHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/dedup", h.RunDedup)
	rg.GET("/serials/status", h.SerialStatus)
	rg.POST("/serials/backfill", h.BackfillSerials)
	rg.POST("/serials/renumber", h.RenumberSerials)
}

// RunDedup runs one full duplicate reconciliation pass synchronously and
// returns its report. Admins trigger this after large imports.
func (h *AdminHandler) RunDedup(c *gin.Context) {
	actorID := httpkit.GetIdentity(c).UserID()

	report, err := h.dedup.Run(c.Request.Context(), &actorID)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, report)
}

// SerialStatus reports the highest serial in use and whether the one-time
// backfill has completed. Operators check this before driving a backfill.
func (h *AdminHandler) SerialStatus(c *gin.Context) {
	mark, err := h.allocator.HighWaterMark(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	done, err := h.allocator.BackfillDone(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, gin.H{"highWaterMark": mark, "backfillCompleted": done})
}

// BackfillSerials numbers one batch of legacy leads and returns the resume
// cursor. The operation conflicts once the backfill has completed.
func (h *AdminHandler) BackfillSerials(c *gin.Context) {
	var req transport.BackfillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	cursor := time.Time{}
	if req.Cursor != nil {
		cursor = *req.Cursor
	}
	cursorID := uuid.Nil
	if req.CursorID != nil {
		cursorID = *req.CursorID
	}

	actorID := httpkit.GetIdentity(c).UserID()

	result, err := h.allocator.AllocateBatch(c.Request.Context(), req.BatchSize, cursor, cursorID, &actorID)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, result)
}

// RenumberSerials rewrites every serial from 1 in creation order.
func (h *AdminHandler) RenumberSerials(c *gin.Context) {
	actorID := httpkit.GetIdentity(c).UserID()

	renumbered, err := h.allocator.Renumber(c.Request.Context(), &actorID)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, gin.H{"renumbered": renumbered})
}
