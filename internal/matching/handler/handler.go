// Package handler exposes the matching engine over HTTP: the artisan
// console, requester decisions and the admin surface.
package handler

import (
	"context"
	"net/http"

	"lead_distribution_backend/internal/matching/configstore"
	"lead_distribution_backend/internal/matching/funnel"
	"lead_distribution_backend/internal/matching/lifecycle"
	"lead_distribution_backend/platform/apperr"
	"lead_distribution_backend/platform/httpkit"
	"lead_distribution_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgJobsUnavailable  = "background jobs are not configured"
)

// Jobs enqueues background work. Dispatch and sweeps never run on the
// request path.
type Jobs interface {
	EnqueueDispatch(ctx context.Context, leadID uuid.UUID) error
	EnqueueSweep(ctx context.Context) error
}

// Handler handles HTTP requests for the matching engine.
type Handler struct {
	lifecycle *lifecycle.Service
	funnel    *funnel.Service
	configs   *configstore.Store
	jobs      Jobs
	val       *validator.Validator
}

// New creates a matching handler. jobs may be nil, in which case the
// admin enqueue endpoints answer 503.
func New(lc *lifecycle.Service, fn *funnel.Service, configs *configstore.Store, jobs Jobs, val *validator.Validator) *Handler {
	return &Handler{lifecycle: lc, funnel: fn, configs: configs, jobs: jobs, val: val}
}

// RegisterArtisanRoutes mounts the artisan console. Writes go through limit.
func (h *Handler) RegisterArtisanRoutes(rg *gin.RouterGroup, limit gin.HandlerFunc) {
	rg.GET("/assignments", h.ListAssignments)
	rg.POST("/assignments/:id/view", limit, h.View)
	rg.POST("/assignments/:id/quote", limit, h.SubmitQuote)
	rg.POST("/assignments/:id/decline", limit, h.Decline)
}

// RegisterRequesterRoutes mounts the requester decisions.
func (h *Handler) RegisterRequesterRoutes(rg *gin.RouterGroup, limit gin.HandlerFunc) {
	rg.POST("/quotes/:id/accept", limit, h.AcceptQuote)
	rg.POST("/quotes/:id/refuse", limit, h.RefuseQuote)
	rg.POST("/leads/:id/complete", limit, h.CompleteLead)
}

// RegisterAdminRoutes mounts reporting, tuning and job triggers.
func (h *Handler) RegisterAdminRoutes(rg *gin.RouterGroup) {
	rg.GET("/funnel", h.Funnel)
	rg.GET("/algorithm-config", h.GetAlgorithmConfig)
	rg.PATCH("/algorithm-config", h.UpdateAlgorithmConfig)
	rg.POST("/leads/:id/dispatch", h.EnqueueDispatch)
	rg.POST("/sweeps", h.EnqueueSweep)
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.HandleError(c, apperr.BadRequest(msgInvalidRequest))
		return uuid.Nil, false
	}
	return id, true
}

// bindJSON decodes and validates a request body. An empty body is allowed
// when emptyOK is set and leaves req at its zero value.
func (h *Handler) bindJSON(c *gin.Context, req interface{}, emptyOK bool) bool {
	if !(emptyOK && c.Request.ContentLength == 0) {
		if err := c.ShouldBindJSON(req); err != nil {
			httpkit.HandleError(c, apperr.BadRequest(msgInvalidRequest))
			return false
		}
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.FieldErrors(err))
		return false
	}
	return true
}
