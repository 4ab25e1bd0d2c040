// Package handler exposes the lead engine over HTTP.
package handler

import (
	"errors"
	"net/http"
	"strings"

	"leadengine/internal/imports"
	"leadengine/internal/leads/domain"
	"leadengine/internal/leads/repository"
	"leadengine/internal/leads/service"
	"leadengine/internal/leads/transport"
	"leadengine/platform/httpkit"
	"leadengine/platform/logger"
	"leadengine/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

// LeadHandler handles ingestion and read endpoints for leads.
type LeadHandler struct {
	svc      *service.Service
	repo     *repository.Repository
	importer *imports.Service
	val      *validator.Validator
	log      *logger.Logger
}

func NewLeadHandler(svc *service.Service, repo *repository.Repository, importer *imports.Service, val *validator.Validator, log *logger.Logger) *LeadHandler {
	return &LeadHandler{svc: svc, repo: repo, importer: importer, val: val, log: log}
}

// RegisterPublicRoutes adds the ingestion endpoint reachable by external
// channels (website forms, webhook adapters). Rate limiting is applied at
// the group level in cmd/api.
func (h *LeadHandler) RegisterPublicRoutes(rg *gin.RouterGroup) {
	rg.POST("/leads", h.CreateLead)
}

// RegisterRoutes adds the authenticated lead endpoints.
func (h *LeadHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/leads/bulk", h.BulkImport)
	rg.GET("/leads/:id", h.GetLead)
	rg.GET("/leads/:id/comments", h.ListComments)
	rg.POST("/leads/:id/comments", h.AddComment)
}

// CreateLead ingests one lead, merging into an existing record when the
// identity already exists.
func (h *LeadHandler) CreateLead(c *gin.Context) {
	var req transport.CreateLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	result, err := h.svc.CreateOrMerge(c.Request.Context(), req.ToLeadData())
	if httpkit.HandleError(c, err) {
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	httpkit.JSON(c, status, result)
}

// BulkImport ingests a CSV upload or a JSON batch. Multipart requests carry
// the CSV in the "file" field; everything else is decoded as JSON.
func (h *LeadHandler) BulkImport(c *gin.Context) {
	records, assignee, ok := h.readBulkRequest(c)
	if !ok {
		return
	}

	report, err := h.svc.BulkCreateOrMerge(c.Request.Context(), records, assignee)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, report)
}

func (h *LeadHandler) readBulkRequest(c *gin.Context) ([]domain.LeadData, *uuid.UUID, bool) {
	contentType := c.GetHeader("Content-Type")

	if strings.HasPrefix(contentType, "multipart/form-data") {
		fileHeader, err := c.FormFile("file")
		if err != nil {
			httpkit.Error(c, http.StatusBadRequest, "missing file field", nil)
			return nil, nil, false
		}

		file, err := fileHeader.Open()
		if err != nil {
			httpkit.Error(c, http.StatusBadRequest, "unreadable upload", nil)
			return nil, nil, false
		}
		defer func() { _ = file.Close() }()

		records, err := h.importer.ParseAndArchive(c.Request.Context(), fileHeader.Filename, file)
		if httpkit.HandleError(c, err) {
			return nil, nil, false
		}

		var assignee *uuid.UUID
		if raw := c.PostForm("assignedTo"); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				httpkit.Error(c, http.StatusBadRequest, "invalid assignedTo", nil)
				return nil, nil, false
			}
			assignee = &id
		}

		return records, assignee, true
	}

	var req transport.BulkCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return nil, nil, false
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return nil, nil, false
	}

	records := make([]domain.LeadData, len(req.Leads))
	for i, lead := range req.Leads {
		records[i] = lead.ToLeadData()
	}
	return records, req.AssignedTo, true
}

// GetLead returns one lead by ID.
func (h *LeadHandler) GetLead(c *gin.Context) {
	leadID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	lead, err := h.repo.GetByID(c.Request.Context(), leadID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			httpkit.Error(c, http.StatusNotFound, "lead not found", nil)
			return
		}
		h.log.DatabaseError("get lead", err)
		httpkit.Error(c, http.StatusInternalServerError, "failed to load lead", nil)
		return
	}

	httpkit.OK(c, transport.ToLeadResponse(lead))
}

// ListComments returns a lead's comment trail, oldest first.
func (h *LeadHandler) ListComments(c *gin.Context) {
	leadID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	comments, err := h.repo.ListComments(c.Request.Context(), leadID)
	if err != nil {
		h.log.DatabaseError("list comments", err)
		httpkit.Error(c, http.StatusInternalServerError, "failed to load comments", nil)
		return
	}

	httpkit.OK(c, transport.ToCommentResponses(comments))
}

// AddComment posts a manual comment on a lead, attributed to the caller.
func (h *LeadHandler) AddComment(c *gin.Context) {
	leadID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	var req transport.AddCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	identity := httpkit.GetIdentity(c)
	authorID := identity.UserID()

	if err := h.repo.AddComment(c.Request.Context(), leadID, &authorID, req.Body); err != nil {
		h.log.DatabaseError("add comment", err)
		httpkit.Error(c, http.StatusInternalServerError, "failed to add comment", nil)
		return
	}

	// A posted comment counts as activity, so the inactivity clock restarts.
	if err := h.repo.TouchActivity(c.Request.Context(), leadID); err != nil {
		h.log.SideEffectError("touch lead activity", err)
	}

	c.Status(http.StatusCreated)
}
