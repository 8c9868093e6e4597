package endpoints

import (
	"fmt"
	"net/http"
	"strings"

	"lead-routing-backend/internal/events"
	internaljwt "lead-routing-backend/internal/jwt"
	"lead-routing-backend/internal/websocket"

	"github.com/google/uuid"
)

type WebsocketEndpoints interface {
	EventsWebsocket(http.ResponseWriter, *http.Request) error
	AgentWebsocket(http.ResponseWriter, *http.Request) error
	ConversationWebsocket(http.ResponseWriter, *http.Request) error
}

type websocketEndpoints struct {
	handler            *websocket.Handler
	conversationPrefix string
}

func NewWebsocketEndpoints(handler *websocket.Handler, prefix string) WebsocketEndpoints {
	base := strings.TrimRight(prefix, "/")
	return &websocketEndpoints{
		handler:            handler,
		conversationPrefix: base + "/ws/conversations/",
	}
}

// EventsWebsocket joins the global broadcast room. Every lead, queue and
// conversation event lands here, so dashboards need only this socket.
func (h *websocketEndpoints) EventsWebsocket(w http.ResponseWriter, r *http.Request) error {
	agentID, err := h.identityFromRequest(r)
	if err != nil {
		return err
	}

	h.handler.JoinRoom(w, r, events.BroadcastRoom, agentID)
	return nil
}

// AgentWebsocket joins the caller's own agent room. Joining flips the
// agent online and triggers queue draining; disconnecting flips it back.
func (h *websocketEndpoints) AgentWebsocket(w http.ResponseWriter, r *http.Request) error {
	agentID, err := h.identityFromRequest(r)
	if err != nil {
		return err
	}

	h.handler.JoinRoom(w, r, events.AgentRoom(agentID), agentID)
	return nil
}

func (h *websocketEndpoints) ConversationWebsocket(w http.ResponseWriter, r *http.Request) error {
	conversationID := strings.Trim(strings.TrimPrefix(r.URL.Path, h.conversationPrefix), "/")
	if conversationID == "" {
		return &HTTPError{
			StatusCode: http.StatusNotFound,
			Message:    "Conversation not found",
			ErrorLog:   fmt.Errorf("websocket conversation id missing"),
		}
	}

	agentID, err := h.identityFromRequest(r)
	if err != nil {
		return err
	}

	h.handler.JoinRoom(w, r, events.ConversationRoom(conversationID), agentID)
	return nil
}

// identityFromRequest validates the JWT passed as a query parameter.
// Browsers cannot set an Authorization header on a websocket upgrade, so
// the token rides on the URL.
func (h *websocketEndpoints) identityFromRequest(r *http.Request) (string, error) {
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		return "", &HTTPError{
			StatusCode: http.StatusUnauthorized,
			Message:    "Missing token",
			ErrorLog:   fmt.Errorf("websocket missing token"),
		}
	}

	claims, err := internaljwt.ParseToken(token, internaljwt.RoleAgent)
	if err != nil {
		return "", &HTTPError{
			StatusCode: http.StatusUnauthorized,
			Message:    "Unauthorized",
			ErrorLog:   fmt.Errorf("websocket token invalid: %w", err),
		}
	}

	agentID, ok := claims["id"].(string)
	if !ok || agentID == "" {
		return "", &HTTPError{
			StatusCode: http.StatusUnauthorized,
			Message:    "Unauthorized",
			ErrorLog:   fmt.Errorf("websocket token missing agent id"),
		}
	}

	// A stable connection id keeps two tabs of the same agent from
	// evicting each other in the room client map.
	return agentID + ":" + uuid.NewString(), nil
}
