package handler

import (
	"net/http"
	"strings"
	"time"

	"lead_distribution_backend/internal/matching/domain"
	"lead_distribution_backend/internal/matching/transport"
	"lead_distribution_backend/platform/httpkit"
	"lead_distribution_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Funnel handles GET /api/v1/admin/funnel
func (h *Handler) Funnel(c *gin.Context) {
	var query transport.FunnelQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(query); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.FieldErrors(err))
		return
	}

	filter, details := funnelFilter(query)
	if details != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, details)
		return
	}

	report, err := h.funnel.Report(c.Request.Context(), filter)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, report)
}

// funnelFilter converts the query into a store filter. The returned map
// names each field that failed to parse.
func funnelFilter(query transport.FunnelQuery) (domain.FunnelFilter, map[string]string) {
	filter := domain.FunnelFilter{Specialty: strings.TrimSpace(query.Specialty)}
	details := map[string]string{}
	if query.From != "" {
		from, err := time.Parse(time.RFC3339, query.From)
		if err != nil {
			details["from"] = "datetime"
		} else {
			filter.From = &from
		}
	}
	if query.To != "" {
		to, err := time.Parse(time.RFC3339, query.To)
		if err != nil {
			details["to"] = "datetime"
		} else {
			filter.To = &to
		}
	}
	if query.ProviderID != "" {
		providerID, err := uuid.Parse(query.ProviderID)
		if err != nil {
			details["providerId"] = "uuid"
		} else {
			filter.ProviderID = &providerID
		}
	}
	if filter.From != nil && filter.To != nil && !filter.To.After(*filter.From) {
		details["to"] = "gtfield=from"
	}
	if len(details) > 0 {
		return domain.FunnelFilter{}, details
	}
	return filter, nil
}

// GetAlgorithmConfig handles GET /api/v1/admin/algorithm-config
func (h *Handler) GetAlgorithmConfig(c *gin.Context) {
	httpkit.OK(c, h.configs.Current())
}

// UpdateAlgorithmConfig handles PATCH /api/v1/admin/algorithm-config
func (h *Handler) UpdateAlgorithmConfig(c *gin.Context) {
	var req transport.UpdateAlgorithmConfigRequest
	if !h.bindJSON(c, &req, false) {
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	cfg, err := h.configs.Update(c.Request.Context(), req.AlgorithmConfigPatch, req.ExpectedVersion, identity.UserID())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, cfg)
}

// EnqueueDispatch handles POST /api/v1/admin/leads/:id/dispatch
func (h *Handler) EnqueueDispatch(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if h.jobs == nil {
		httpkit.Error(c, http.StatusServiceUnavailable, msgJobsUnavailable, nil)
		return
	}
	if httpkit.HandleError(c, h.jobs.EnqueueDispatch(c.Request.Context(), id)) {
		return
	}
	httpkit.Accepted(c, transport.JobAcceptedResponse{Job: "dispatch", LeadID: &id})
}

// EnqueueSweep handles POST /api/v1/admin/sweeps
func (h *Handler) EnqueueSweep(c *gin.Context) {
	if h.jobs == nil {
		httpkit.Error(c, http.StatusServiceUnavailable, msgJobsUnavailable, nil)
		return
	}
	if httpkit.HandleError(c, h.jobs.EnqueueSweep(c.Request.Context())) {
		return
	}
	httpkit.Accepted(c, transport.JobAcceptedResponse{Job: "sweep"})
}
