package handler

import (
	"net/http"
	"strings"

	"lead_distribution_backend/internal/matching/domain"
	"lead_distribution_backend/internal/matching/lifecycle"
	"lead_distribution_backend/internal/matching/transport"
	"lead_distribution_backend/platform/httpkit"
	"lead_distribution_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

var listableStatuses = map[domain.AssignmentStatus]bool{
	domain.AssignmentPending:  true,
	domain.AssignmentViewed:   true,
	domain.AssignmentQuoted:   true,
	domain.AssignmentAccepted: true,
	domain.AssignmentDeclined: true,
	domain.AssignmentExpired:  true,
	domain.AssignmentClosed:   true,
}

// ListAssignments handles GET /api/v1/artisan/assignments
func (h *Handler) ListAssignments(c *gin.Context) {
	providerID, ok := httpkit.MustGetProviderID(c)
	if !ok {
		return
	}

	var query transport.ListAssignmentsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(query); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.FieldErrors(err))
		return
	}

	filter := domain.AssignmentListFilter{Limit: query.Limit}
	for _, raw := range strings.Split(query.Status, ",") {
		raw = strings.TrimSpace(strings.ToLower(raw))
		if raw == "" {
			continue
		}
		status := domain.AssignmentStatus(raw)
		if !listableStatuses[status] {
			httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, map[string]string{"status": raw})
			return
		}
		filter.Statuses = append(filter.Statuses, status)
	}

	items, err := h.lifecycle.ListAssignments(c.Request.Context(), providerID, filter)
	if httpkit.HandleError(c, err) {
		return
	}

	resp := transport.ListAssignmentsResponse{Items: make([]transport.AssignmentResponse, 0, len(items))}
	for _, item := range items {
		resp.Items = append(resp.Items, transport.ToProviderAssignmentResponse(item))
	}
	httpkit.OK(c, resp)
}

// View handles POST /api/v1/artisan/assignments/:id/view
func (h *Handler) View(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	actor, ok := providerActor(c)
	if !ok {
		return
	}

	result, err := h.lifecycle.View(c.Request.Context(), actor, id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToActionResponse(result.Assignment, result.Quote, result.NoOp))
}

// SubmitQuote handles POST /api/v1/artisan/assignments/:id/quote
func (h *Handler) SubmitQuote(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req transport.SubmitQuoteRequest
	if !h.bindJSON(c, &req, false) {
		return
	}

	actor, ok := providerActor(c)
	if !ok {
		return
	}

	result, err := h.lifecycle.SubmitQuote(c.Request.Context(), actor, id, lifecycle.QuoteInput{
		AmountCents: req.AmountCents,
		Description: req.Description,
		ValidDays:   req.ValidDays,
	})
	if httpkit.HandleError(c, err) {
		return
	}

	resp := transport.ToActionResponse(result.Assignment, result.Quote, result.NoOp)
	if result.NoOp {
		httpkit.OK(c, resp)
		return
	}
	httpkit.Created(c, resp)
}

// Decline handles POST /api/v1/artisan/assignments/:id/decline
func (h *Handler) Decline(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req transport.DeclineRequest
	if !h.bindJSON(c, &req, true) {
		return
	}

	actor, ok := providerActor(c)
	if !ok {
		return
	}

	result, err := h.lifecycle.Decline(c.Request.Context(), actor, id, req.Reason)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToActionResponse(result.Assignment, result.Quote, result.NoOp))
}

func providerActor(c *gin.Context) (lifecycle.ProviderActor, bool) {
	providerID, ok := httpkit.MustGetProviderID(c)
	if !ok {
		return lifecycle.ProviderActor{}, false
	}
	return lifecycle.ProviderActor{
		UserID:     httpkit.MustGetIdentity(c).UserID(),
		ProviderID: providerID,
	}, true
}
