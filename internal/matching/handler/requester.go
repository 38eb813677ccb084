package handler

import (
	"lead_distribution_backend/internal/matching/lifecycle"
	"lead_distribution_backend/internal/matching/transport"
	"lead_distribution_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
)

// AcceptQuote handles POST /api/v1/requests/quotes/:id/accept
func (h *Handler) AcceptQuote(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	result, err := h.lifecycle.AcceptQuote(c.Request.Context(), identity.UserID(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, toDecision(result))
}

// RefuseQuote handles POST /api/v1/requests/quotes/:id/refuse
func (h *Handler) RefuseQuote(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	result, err := h.lifecycle.RefuseQuote(c.Request.Context(), identity.UserID(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, toDecision(result))
}

// CompleteLead handles POST /api/v1/requests/leads/:id/complete
func (h *Handler) CompleteLead(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	result, err := h.lifecycle.CompleteLead(c.Request.Context(), identity.UserID(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.LeadStatusResponse{
		LeadID: result.Lead.ID,
		Status: string(result.Lead.Status),
		NoOp:   result.NoOp,
	})
}

func toDecision(result lifecycle.QuoteResult) transport.QuoteDecisionResponse {
	return transport.QuoteDecisionResponse{
		Quote:             transport.ToQuoteResponse(result.Quote),
		ClosedAssignments: result.ClosedAssignments,
		RefusedQuotes:     result.RefusedQuotes,
		NoOp:              result.NoOp,
	}
}
