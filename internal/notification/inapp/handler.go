package inapp

import (
	"net/http"
	"strconv"

	"leadengine/platform/httpkit"
	"leadengine/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Handler exposes a user's in-app notification feed.
type Handler struct {
	repo *Repository
	log  *logger.Logger
}

func NewHandler(repo *Repository, log *logger.Logger) *Handler {
	return &Handler{repo: repo, log: log}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/notifications", h.List)
	rg.GET("/notifications/unread-count", h.UnreadCount)
	rg.PATCH("/notifications/:id/read", h.MarkRead)
	rg.PATCH("/notifications/read-all", h.MarkAllRead)
}

func (h *Handler) List(c *gin.Context) {
	userID := httpkit.GetIdentity(c).UserID()

	limit := parseIntQuery(c, "limit", 20, 100)
	offset := parseIntQuery(c, "offset", 0, 1<<30)

	items, total, err := h.repo.List(c.Request.Context(), userID, limit, offset)
	if err != nil {
		h.log.DatabaseError("list notifications", err)
		httpkit.Error(c, http.StatusInternalServerError, "failed to load notifications", nil)
		return
	}

	httpkit.OK(c, gin.H{"items": items, "total": total})
}

func (h *Handler) UnreadCount(c *gin.Context) {
	userID := httpkit.GetIdentity(c).UserID()

	count, err := h.repo.CountUnread(c.Request.Context(), userID)
	if err != nil {
		h.log.DatabaseError("count unread notifications", err)
		httpkit.Error(c, http.StatusInternalServerError, "failed to count notifications", nil)
		return
	}

	httpkit.OK(c, gin.H{"unread": count})
}

func (h *Handler) MarkRead(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid notification id", nil)
		return
	}

	userID := httpkit.GetIdentity(c).UserID()

	if err := h.repo.MarkRead(c.Request.Context(), id, userID); httpkit.HandleError(c, err) {
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) MarkAllRead(c *gin.Context) {
	userID := httpkit.GetIdentity(c).UserID()

	if err := h.repo.MarkAllRead(c.Request.Context(), userID); err != nil {
		h.log.DatabaseError("mark all notifications read", err)
		httpkit.Error(c, http.StatusInternalServerError, "failed to update notifications", nil)
		return
	}

	c.Status(http.StatusNoContent)
}

func parseIntQuery(c *gin.Context, key string, fallback, max int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	if value > max {
		return max
	}
	return value
}
