package endpoints

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"lead-routing-backend/internal/dto"
	leadsvc "lead-routing-backend/internal/service/lead"
	"lead-routing-backend/internal/service/routing"
)

type LeadEndpoints interface {
	Leads(http.ResponseWriter, *http.Request) error
	Lead(http.ResponseWriter, *http.Request) error
}

type leadEndpoints struct {
	leads      *leadsvc.Service
	routing    *routing.Service
	leadPrefix string
}

func NewLeadEndpoints(leads *leadsvc.Service, routingService *routing.Service, prefix string) LeadEndpoints {
	base := strings.TrimRight(prefix, "/")
	return &leadEndpoints{
		leads:      leads,
		routing:    routingService,
		leadPrefix: base + "/leads/",
	}
}

func (h *leadEndpoints) Leads(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet:  h.handleListLeads,
		http.MethodPost: h.handleCreateLead,
	})
}

func (h *leadEndpoints) Lead(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet:   h.handleGetLead,
		http.MethodPatch: h.handleUpdateLead,
	})
}

// handleCreateLead registers a lead from the agent UI. Manual entry goes
// through the same resolver as webhook traffic so an existing lead with the
// same phone is reused, and the lead is queued for routing immediately.
func (h *leadEndpoints) handleCreateLead(w http.ResponseWriter, r *http.Request) error {
	var req dto.CreateLeadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return &HTTPError{
			StatusCode: http.StatusBadRequest,
			Message:    "Invalid request payload",
			ErrorLog:   fmt.Errorf("decode create lead request: %w", err),
		}
	}

	result, err := h.leads.Create(r.Context(), leadsvc.CreateLeadParams{
		Name:     strings.TrimSpace(req.Name),
		Phone:    req.Phone,
		Pipeline: strings.TrimSpace(req.Pipeline),
		Tags:     req.Tags,
	})
	if err != nil {
		return h.leadError(err)
	}

	if _, err := h.routing.Enqueue(r.Context(), routing.EnqueueParams{
		LeadID:   result.Lead.LeadID,
		Pipeline: result.Lead.Pipeline,
	}); err != nil {
		return h.routingError(err)
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}

	return WriteJSON(w, status, dto.FromLead(result.Lead))
}

func (h *leadEndpoints) handleListLeads(w http.ResponseWriter, r *http.Request) error {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return &HTTPError{
				StatusCode: http.StatusBadRequest,
				Message:    "Invalid limit parameter",
				ErrorLog:   fmt.Errorf("parse lead list limit %q", raw),
			}
		}
		limit = parsed
	}

	leads, err := h.leads.List(r.Context(), limit)
	if err != nil {
		return h.leadError(err)
	}

	resp := dto.ListLeadsResponse{Leads: make([]dto.Lead, 0, len(leads))}
	for _, item := range leads {
		resp.Leads = append(resp.Leads, dto.FromLead(item))
	}

	return WriteJSON(w, http.StatusOK, resp)
}

func (h *leadEndpoints) handleGetLead(w http.ResponseWriter, r *http.Request) error {
	leadID, err := h.extractLeadID(r.URL.Path)
	if err != nil {
		return err
	}

	item, err := h.leads.Get(r.Context(), leadID)
	if err != nil {
		return h.leadError(err)
	}

	return WriteJSON(w, http.StatusOK, dto.FromLead(item))
}

func (h *leadEndpoints) handleUpdateLead(w http.ResponseWriter, r *http.Request) error {
	leadID, err := h.extractLeadID(r.URL.Path)
	if err != nil {
		return err
	}

	var req dto.UpdateLeadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return &HTTPError{
			StatusCode: http.StatusBadRequest,
			Message:    "Invalid request payload",
			ErrorLog:   fmt.Errorf("decode update lead request: %w", err),
		}
	}

	item, err := h.leads.Update(r.Context(), leadID, leadsvc.UpdateLeadParams{
		Name:     req.Name,
		Pipeline: req.Pipeline,
		Tags:     req.Tags,
	})
	if err != nil {
		return h.leadError(err)
	}

	return WriteJSON(w, http.StatusOK, dto.FromLead(item))
}

func (h *leadEndpoints) extractLeadID(path string) (string, error) {
	leadID := strings.Trim(strings.TrimPrefix(path, h.leadPrefix), "/")
	if leadID == "" || strings.Contains(leadID, "/") {
		return "", &HTTPError{
			StatusCode: http.StatusNotFound,
			Message:    "Lead not found",
			ErrorLog:   fmt.Errorf("invalid lead path: %s", path),
		}
	}
	return leadID, nil
}

func (h *leadEndpoints) leadError(err error) error {
	if err == nil {
		return nil
	}

	svcErr, ok := err.(*leadsvc.Error)
	if !ok {
		return &HTTPError{
			StatusCode: http.StatusInternalServerError,
			Message:    "Internal server error",
			ErrorLog:   fmt.Errorf("lead service: %w", err),
		}
	}

	return serviceHTTPError(string(svcErr.Code), svcErr.Message, svcErr.Err)
}

func (h *leadEndpoints) routingError(err error) error {
	if err == nil {
		return nil
	}

	svcErr, ok := err.(*routing.Error)
	if !ok {
		return &HTTPError{
			StatusCode: http.StatusInternalServerError,
			Message:    "Internal server error",
			ErrorLog:   fmt.Errorf("routing service: %w", err),
		}
	}

	return serviceHTTPError(string(svcErr.Code), svcErr.Message, svcErr.Err)
}
