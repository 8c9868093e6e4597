// Package events defines the real-time contract: named domain events
// carrying full entity payloads, fanned out to every connected
// subscriber. Events are fire-and-forget; a reconnecting client
// re-fetches state instead of relying on replay.
package events

import "fmt"

const (
	LeadNew              = "lead:new"
	LeadUpdated          = "lead:updated"
	ConversationNew      = "conversation:new"
	ConversationUpdated  = "conversation:updated"
	ConversationAssigned = "conversation:assigned"
	QueueUpdate          = "queue:update"
)

// BroadcastRoom receives every broadcast event. Supervisor dashboards
// and agent UIs subscribe here.
const BroadcastRoom = "events"

// AgentRoom is the per-agent room used for agent-scoped delivery
// (assignment notifications) and for inbound agent commands.
func AgentRoom(agentID string) string {
	return fmt.Sprintf("agent:%s", agentID)
}

// ConversationRoom carries the message feed of a single conversation.
func ConversationRoom(conversationID string) string {
	return fmt.Sprintf("conversation:%s", conversationID)
}

// ConversationMessage is the message event name; the conversation id is
// part of the name rather than a server-side filter.
func ConversationMessage(conversationID string) string {
	return fmt.Sprintf("conversation:%s:message", conversationID)
}

// Envelope is the wire shape of every outbound event.
type Envelope struct {
	Event         string      `json:"event"`
	Data          interface{} `json:"data"`
	BroadcastedAt string      `json:"broadcastedAt"`
}
