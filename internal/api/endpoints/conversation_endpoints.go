package endpoints

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"lead-routing-backend/internal/api/middleware"
	"lead-routing-backend/internal/dto"
	leadsvc "lead-routing-backend/internal/service/lead"
	messagesvc "lead-routing-backend/internal/service/message"
	"lead-routing-backend/internal/service/routing"
)

type ConversationEndpoints interface {
	Conversations(http.ResponseWriter, *http.Request) error
	Conversation(http.ResponseWriter, *http.Request) error
	Queue(http.ResponseWriter, *http.Request) error
}

type conversationEndpoints struct {
	routing            *routing.Service
	messages           *messagesvc.Service
	leads              *leadsvc.Service
	conversationPrefix string
}

func NewConversationEndpoints(routingService *routing.Service, messages *messagesvc.Service, leads *leadsvc.Service, prefix string) ConversationEndpoints {
	base := strings.TrimRight(prefix, "/")
	return &conversationEndpoints{
		routing:            routingService,
		messages:           messages,
		leads:              leads,
		conversationPrefix: base + "/conversations/",
	}
}

func (h *conversationEndpoints) Conversations(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet: h.handleListConversations,
	})
}

// Conversation dispatches the per-conversation subroutes: messages, close
// and transfer.
func (h *conversationEndpoints) Conversation(w http.ResponseWriter, r *http.Request) error {
	conversationID, action, err := h.extractConversationPath(r.URL.Path)
	if err != nil {
		return err
	}

	switch action {
	case "messages":
		return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
			http.MethodGet: func(w http.ResponseWriter, r *http.Request) error {
				return h.handleListMessages(w, r, conversationID)
			},
			http.MethodPost: func(w http.ResponseWriter, r *http.Request) error {
				return h.handleSendMessage(w, r, conversationID)
			},
		})
	case "close":
		return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
			http.MethodPost: func(w http.ResponseWriter, r *http.Request) error {
				return h.handleClose(w, r, conversationID)
			},
		})
	case "transfer":
		return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
			http.MethodPost: func(w http.ResponseWriter, r *http.Request) error {
				return h.handleTransfer(w, r, conversationID)
			},
		})
	case "":
		return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
			http.MethodGet: func(w http.ResponseWriter, r *http.Request) error {
				return h.handleGetConversation(w, r, conversationID)
			},
		})
	default:
		return &HTTPError{
			StatusCode: http.StatusNotFound,
			Message:    "Not found",
			ErrorLog:   fmt.Errorf("unknown conversation action: %s", action),
		}
	}
}

func (h *conversationEndpoints) Queue(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet: h.handleListQueue,
	})
}

func (h *conversationEndpoints) handleListConversations(w http.ResponseWriter, r *http.Request) error {
	agentID := middleware.AgentID(r)
	if agentID == "" {
		return &HTTPError{
			StatusCode: http.StatusUnauthorized,
			Message:    "Unauthorized",
			ErrorLog:   fmt.Errorf("conversation list without agent identity"),
		}
	}

	limit, err := parseLimit(r, 50)
	if err != nil {
		return err
	}

	conversations, svcErr := h.routing.ListConversations(r.Context(), agentID, limit)
	if svcErr != nil {
		return h.routingError(svcErr)
	}

	resp := dto.ListConversationsResponse{Conversations: make([]dto.Conversation, 0, len(conversations))}
	for _, conv := range conversations {
		resp.Conversations = append(resp.Conversations, dto.FromConversation(conv))
	}

	return WriteJSON(w, http.StatusOK, resp)
}

func (h *conversationEndpoints) handleGetConversation(w http.ResponseWriter, r *http.Request, conversationID string) error {
	conv, err := h.routing.GetConversation(r.Context(), conversationID)
	if err != nil {
		return h.routingError(err)
	}

	lead, err := h.leads.Get(r.Context(), conv.LeadID)
	if err != nil {
		return WriteJSON(w, http.StatusOK, dto.FromConversation(conv))
	}

	return WriteJSON(w, http.StatusOK, dto.FromConversationWithLead(conv, lead))
}

func (h *conversationEndpoints) handleListMessages(w http.ResponseWriter, r *http.Request, conversationID string) error {
	limit, err := parseLimit(r, 100)
	if err != nil {
		return err
	}

	messages, svcErr := h.messages.ListByConversation(r.Context(), conversationID, limit)
	if svcErr != nil {
		return h.messageError(svcErr)
	}

	resp := dto.ListMessagesResponse{Messages: make([]dto.Message, 0, len(messages))}
	for _, msg := range messages {
		resp.Messages = append(resp.Messages, dto.FromMessage(msg))
	}

	return WriteJSON(w, http.StatusOK, resp)
}

func (h *conversationEndpoints) handleSendMessage(w http.ResponseWriter, r *http.Request, conversationID string) error {
	var req dto.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return &HTTPError{
			StatusCode: http.StatusBadRequest,
			Message:    "Invalid request payload",
			ErrorLog:   fmt.Errorf("decode send message request: %w", err),
		}
	}

	conv, err := h.routing.GetConversation(r.Context(), conversationID)
	if err != nil {
		return h.routingError(err)
	}

	lead, err := h.leads.Get(r.Context(), conv.LeadID)
	if err != nil {
		return h.leadError(err)
	}

	msg, err := h.messages.Send(r.Context(), conv, lead.Phone, req.Body)
	if err != nil {
		return h.messageError(err)
	}

	sentAt, parseErr := time.Parse(time.RFC3339, msg.CreatedAt)
	if parseErr != nil {
		sentAt = time.Now()
	}
	if _, err := h.routing.RecordMessageActivity(r.Context(), conversationID, sentAt); err != nil {
		return h.routingError(err)
	}

	return WriteJSON(w, http.StatusCreated, dto.FromMessage(msg))
}

func (h *conversationEndpoints) handleClose(w http.ResponseWriter, r *http.Request, conversationID string) error {
	var req dto.CloseConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return &HTTPError{
			StatusCode: http.StatusBadRequest,
			Message:    "Invalid request payload",
			ErrorLog:   fmt.Errorf("decode close conversation request: %w", err),
		}
	}

	conv, err := h.routing.CloseConversation(r.Context(), conversationID, strings.TrimSpace(req.Reason))
	if err != nil {
		return h.routingError(err)
	}

	return WriteJSON(w, http.StatusOK, dto.FromConversation(conv))
}

func (h *conversationEndpoints) handleTransfer(w http.ResponseWriter, r *http.Request, conversationID string) error {
	var req dto.TransferConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return &HTTPError{
			StatusCode: http.StatusBadRequest,
			Message:    "Invalid request payload",
			ErrorLog:   fmt.Errorf("decode transfer conversation request: %w", err),
		}
	}

	conv, err := h.routing.TransferConversation(r.Context(), conversationID, strings.TrimSpace(req.NewAgentID))
	if err != nil {
		return h.routingError(err)
	}

	return WriteJSON(w, http.StatusOK, dto.FromConversation(conv))
}

func (h *conversationEndpoints) handleListQueue(w http.ResponseWriter, r *http.Request) error {
	pipeline := strings.TrimSpace(r.URL.Query().Get("pipeline"))
	if pipeline == "" {
		return &HTTPError{
			StatusCode: http.StatusBadRequest,
			Message:    "Missing pipeline parameter",
			ErrorLog:   fmt.Errorf("queue list without pipeline"),
		}
	}

	entries, err := h.routing.ListQueue(r.Context(), pipeline)
	if err != nil {
		return h.routingError(err)
	}

	resp := dto.ListQueueResponse{Entries: make([]dto.QueueEntry, 0, len(entries))}
	for _, entry := range entries {
		resp.Entries = append(resp.Entries, dto.FromQueueEntry(entry))
	}

	return WriteJSON(w, http.StatusOK, resp)
}

func (h *conversationEndpoints) extractConversationPath(path string) (conversationID, action string, err error) {
	rest := strings.Trim(strings.TrimPrefix(path, h.conversationPrefix), "/")
	if rest == "" {
		return "", "", &HTTPError{
			StatusCode: http.StatusNotFound,
			Message:    "Conversation not found",
			ErrorLog:   fmt.Errorf("conversation id missing in path: %s", path),
		}
	}

	parts := strings.SplitN(rest, "/", 2)
	conversationID = parts[0]
	if len(parts) == 2 {
		action = parts[1]
	}
	return conversationID, action, nil
}

func parseLimit(r *http.Request, fallback int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback, nil
	}

	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return 0, &HTTPError{
			StatusCode: http.StatusBadRequest,
			Message:    "Invalid limit parameter",
			ErrorLog:   fmt.Errorf("parse limit %q", raw),
		}
	}
	return parsed, nil
}

func (h *conversationEndpoints) routingError(err error) error {
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

func (h *conversationEndpoints) messageError(err error) error {
	if err == nil {
		return nil
	}

	svcErr, ok := err.(*messagesvc.Error)
	if !ok {
		return &HTTPError{
			StatusCode: http.StatusInternalServerError,
			Message:    "Internal server error",
			ErrorLog:   fmt.Errorf("message service: %w", err),
		}
	}

	return serviceHTTPError(string(svcErr.Code), svcErr.Message, svcErr.Err)
}

func (h *conversationEndpoints) leadError(err error) error {
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
