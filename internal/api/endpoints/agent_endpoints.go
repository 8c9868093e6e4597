package endpoints

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"lead-routing-backend/internal/dto"
	internaljwt "lead-routing-backend/internal/jwt"
	agentsvc "lead-routing-backend/internal/service/agent"
)

type AgentEndpoints interface {
	Agents(http.ResponseWriter, *http.Request) error
	Agent(http.ResponseWriter, *http.Request) error
	SignIn(http.ResponseWriter, *http.Request) error
	Refresh(http.ResponseWriter, *http.Request) error
}

type agentEndpoints struct {
	service     *agentsvc.Service
	agentPrefix string
}

func NewAgentEndpoints(service *agentsvc.Service, prefix string) AgentEndpoints {
	base := strings.TrimRight(prefix, "/")
	return &agentEndpoints{
		service:     service,
		agentPrefix: base + "/agents/",
	}
}

func (h *agentEndpoints) Agents(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet:  h.handleListAgents,
		http.MethodPost: h.handleCreateAgent,
	})
}

func (h *agentEndpoints) Agent(w http.ResponseWriter, r *http.Request) error {
	agentID, action, err := h.extractAgentPath(r.URL.Path)
	if err != nil {
		return err
	}

	switch action {
	case "":
		return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
			http.MethodGet: func(w http.ResponseWriter, r *http.Request) error {
				return h.handleGetAgent(w, r, agentID)
			},
		})
	case "active":
		return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
			http.MethodPatch: func(w http.ResponseWriter, r *http.Request) error {
				return h.handleSetActive(w, r, agentID)
			},
		})
	case "capacity":
		return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
			http.MethodPatch: func(w http.ResponseWriter, r *http.Request) error {
				return h.handleSetCapacity(w, r, agentID)
			},
		})
	default:
		return &HTTPError{
			StatusCode: http.StatusNotFound,
			Message:    "Not found",
			ErrorLog:   fmt.Errorf("unknown agent action: %s", action),
		}
	}
}

func (h *agentEndpoints) SignIn(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodPost: h.handleSignIn,
	})
}

func (h *agentEndpoints) Refresh(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodPost: h.handleRefresh,
	})
}

func (h *agentEndpoints) handleRefresh(w http.ResponseWriter, r *http.Request) error {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return &HTTPError{
			StatusCode: http.StatusBadRequest,
			Message:    "Invalid request payload",
			ErrorLog:   fmt.Errorf("decode refresh request: %w", err),
		}
	}

	accessToken, err := internaljwt.RefreshToken(req.RefreshToken, internaljwt.RoleAgent)
	if err != nil {
		return &HTTPError{
			StatusCode: http.StatusUnauthorized,
			Message:    "Invalid refresh token",
			ErrorLog:   fmt.Errorf("refresh token: %w", err),
		}
	}

	return WriteJSON(w, http.StatusOK, map[string]string{"accessToken": accessToken})
}

func (h *agentEndpoints) handleCreateAgent(w http.ResponseWriter, r *http.Request) error {
	var req dto.CreateAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return &HTTPError{
			StatusCode: http.StatusBadRequest,
			Message:    "Invalid request payload",
			ErrorLog:   fmt.Errorf("decode create agent request: %w", err),
		}
	}

	item, err := h.service.Create(r.Context(), agentsvc.CreateAgentParams{
		Name:               strings.TrimSpace(req.Name),
		Email:              req.Email,
		Password:           req.Password,
		PipelineType:       strings.TrimSpace(req.PipelineType),
		MaxConcurrentChats: req.MaxConcurrentChats,
	})
	if err != nil {
		return h.serviceError(err)
	}

	return WriteJSON(w, http.StatusCreated, dto.FromAgent(item))
}

func (h *agentEndpoints) handleSignIn(w http.ResponseWriter, r *http.Request) error {
	var req dto.SignInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return &HTTPError{
			StatusCode: http.StatusBadRequest,
			Message:    "Invalid request payload",
			ErrorLog:   fmt.Errorf("decode sign in request: %w", err),
		}
	}

	result, err := h.service.SignIn(r.Context(), agentsvc.SignInParams{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return h.serviceError(err)
	}

	resp := dto.SignInResponse{
		AccessToken:  result.Tokens.AccessToken,
		RefreshToken: result.Tokens.RefreshToken,
		Agent:        dto.FromAgent(result.Agent),
	}

	return WriteJSON(w, http.StatusOK, resp)
}

func (h *agentEndpoints) handleListAgents(w http.ResponseWriter, r *http.Request) error {
	agents, err := h.service.List(r.Context())
	if err != nil {
		return h.serviceError(err)
	}

	resp := dto.ListAgentsResponse{Agents: make([]dto.Agent, 0, len(agents))}
	for _, item := range agents {
		resp.Agents = append(resp.Agents, dto.FromAgent(item))
	}

	return WriteJSON(w, http.StatusOK, resp)
}

func (h *agentEndpoints) handleGetAgent(w http.ResponseWriter, r *http.Request, agentID string) error {
	item, err := h.service.Get(r.Context(), agentID)
	if err != nil {
		return h.serviceError(err)
	}

	return WriteJSON(w, http.StatusOK, dto.FromAgent(item))
}

func (h *agentEndpoints) handleSetActive(w http.ResponseWriter, r *http.Request, agentID string) error {
	var req struct {
		Active bool `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return &HTTPError{
			StatusCode: http.StatusBadRequest,
			Message:    "Invalid request payload",
			ErrorLog:   fmt.Errorf("decode set active request: %w", err),
		}
	}

	item, err := h.service.SetActive(r.Context(), agentID, req.Active)
	if err != nil {
		return h.serviceError(err)
	}

	return WriteJSON(w, http.StatusOK, dto.FromAgent(item))
}

func (h *agentEndpoints) handleSetCapacity(w http.ResponseWriter, r *http.Request, agentID string) error {
	var req struct {
		MaxConcurrentChats int `json:"maxConcurrentChats"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return &HTTPError{
			StatusCode: http.StatusBadRequest,
			Message:    "Invalid request payload",
			ErrorLog:   fmt.Errorf("decode set capacity request: %w", err),
		}
	}

	item, err := h.service.SetMaxConcurrentChats(r.Context(), agentID, req.MaxConcurrentChats)
	if err != nil {
		return h.serviceError(err)
	}

	return WriteJSON(w, http.StatusOK, dto.FromAgent(item))
}

func (h *agentEndpoints) extractAgentPath(path string) (agentID, action string, err error) {
	rest := strings.Trim(strings.TrimPrefix(path, h.agentPrefix), "/")
	if rest == "" {
		return "", "", &HTTPError{
			StatusCode: http.StatusNotFound,
			Message:    "Agent not found",
			ErrorLog:   fmt.Errorf("agent id missing in path: %s", path),
		}
	}

	parts := strings.SplitN(rest, "/", 2)
	agentID = parts[0]
	if len(parts) == 2 {
		action = parts[1]
	}
	return agentID, action, nil
}

func (h *agentEndpoints) serviceError(err error) error {
	if err == nil {
		return nil
	}

	svcErr, ok := err.(*agentsvc.Error)
	if !ok {
		return &HTTPError{
			StatusCode: http.StatusInternalServerError,
			Message:    "Internal server error",
			ErrorLog:   fmt.Errorf("agent service: %w", err),
		}
	}

	return serviceHTTPError(string(svcErr.Code), svcErr.Message, svcErr.Err)
}
