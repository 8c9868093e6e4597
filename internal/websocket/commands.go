package websocket

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"time"

	"lead-routing-backend/internal/dto"
	"lead-routing-backend/internal/events"
	"lead-routing-backend/internal/service/lead"
	"lead-routing-backend/internal/service/message"
	"lead-routing-backend/internal/service/routing"
)

const (
	EventConversationsList = "conversations:list"
	EventMessageSend       = "message:send"
)

type listConversationsData struct {
	AgentID string `json:"agentId"`
	Limit   int    `json:"limit"`
}

type sendMessageData struct {
	ConversationID string `json:"conversationId"`
	Body           string `json:"body"`
}

// Commands executes typed events from connected agent UIs and replies
// into the sender's room.
type Commands struct {
	routing  *routing.Service
	messages *message.Service
	leads    *lead.Service
	notifier interface {
		NotifyRoom(roomID string, payload []byte)
	}
	now func() time.Time
}

func NewCommands(routingService *routing.Service, messages *message.Service, leads *lead.Service, notifier *Handler) *Commands {
	return &Commands{
		routing:  routingService,
		messages: messages,
		leads:    leads,
		notifier: notifier,
		now:      time.Now,
	}
}

func (c *Commands) Handle(ctx context.Context, clientID, roomID string, event InboundEvent) {
	switch event.Event {
	case EventConversationsList:
		c.listConversations(ctx, roomID, event.Data)
	case EventMessageSend:
		c.sendMessage(ctx, roomID, event.Data)
	default:
		log.Printf("Unknown event %q from client %s", event.Event, clientID)
	}
}

func (c *Commands) listConversations(ctx context.Context, roomID string, data json.RawMessage) {
	var req listConversationsData
	if len(data) > 0 {
		if err := json.Unmarshal(data, &req); err != nil {
			c.replyError(roomID, "invalid conversations:list payload")
			return
		}
	}

	conversations, err := c.routing.ListConversations(ctx, req.AgentID, req.Limit)
	if err != nil {
		c.replyError(roomID, err.Error())
		return
	}

	out := make([]dto.Conversation, 0, len(conversations))
	for _, conv := range conversations {
		out = append(out, dto.FromConversation(conv))
	}
	c.reply(roomID, EventConversationsList, dto.ListConversationsResponse{Conversations: out})
}

func (c *Commands) sendMessage(ctx context.Context, roomID string, data json.RawMessage) {
	var req sendMessageData
	if err := json.Unmarshal(data, &req); err != nil {
		c.replyError(roomID, "invalid message:send payload")
		return
	}

	conv, err := c.routing.GetConversation(ctx, req.ConversationID)
	if err != nil {
		c.replyError(roomID, err.Error())
		return
	}

	leadItem, err := c.leads.Get(ctx, conv.LeadID)
	if err != nil {
		c.replyError(roomID, err.Error())
		return
	}

	msg, err := c.messages.Send(ctx, conv, leadItem.Phone, req.Body)
	if err != nil {
		c.replyError(roomID, err.Error())
		return
	}

	if _, err := c.routing.RecordMessageActivity(ctx, conv.ConversationID, c.now()); err != nil {
		log.Printf("failed to record activity for conversation %s: %v", conv.ConversationID, err)
	}

	c.reply(roomID, EventMessageSend, dto.FromMessage(msg))
}

func (c *Commands) reply(roomID, event string, data interface{}) {
	payload, err := json.Marshal(events.Envelope{
		Event:         event,
		Data:          data,
		BroadcastedAt: c.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		log.Printf("failed to marshal %s reply: %v", event, err)
		return
	}
	c.notifier.NotifyRoom(roomID, payload)
}

func (c *Commands) replyError(roomID, message string) {
	c.reply(roomID, "error", map[string]string{"message": message})
}

// AgentPresence flips agent availability as their personal room
// connects and disconnects.
type AgentPresence struct {
	routing *routing.Service
}

func NewAgentPresence(routingService *routing.Service) *AgentPresence {
	return &AgentPresence{routing: routingService}
}

func (p *AgentPresence) ClientJoined(roomID, clientID string) {
	agentID, ok := agentRoomID(roomID)
	if !ok {
		return
	}
	if err := p.routing.AgentConnected(context.Background(), agentID); err != nil {
		log.Printf("failed to mark agent %s online: %v", agentID, err)
	}
}

func (p *AgentPresence) ClientLeft(roomID, clientID string) {
	agentID, ok := agentRoomID(roomID)
	if !ok {
		return
	}
	if err := p.routing.AgentDisconnected(context.Background(), agentID); err != nil {
		log.Printf("failed to mark agent %s offline: %v", agentID, err)
	}
}

func agentRoomID(roomID string) (string, bool) {
	const prefix = "agent:"
	if !strings.HasPrefix(roomID, prefix) {
		return "", false
	}
	return strings.TrimPrefix(roomID, prefix), true
}
