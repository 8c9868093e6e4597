package dto

import "lead-routing-backend/internal/model"

type Conversation struct {
	ConversationID  string `json:"conversationId"`
	LeadID          string `json:"leadId"`
	Pipeline        string `json:"pipeline"`
	Status          string `json:"status"`
	AssignedAgentID string `json:"assignedAgentId,omitempty"`
	ClosedReason    string `json:"closedReason,omitempty"`
	CreatedAt       string `json:"createdAt"`
	UpdatedAt       string `json:"updatedAt"`
	LastMessageAt   string `json:"lastMessageAt"`

	// Lead preview fields are denormalized onto the conversation payload
	// so list views render without a second fetch.
	LeadName  string `json:"leadName,omitempty"`
	LeadPhone string `json:"leadPhone,omitempty"`
}

type Message struct {
	MessageID         string `json:"messageId"`
	ProviderMessageID string `json:"providerMessageId,omitempty"`
	ConversationID    string `json:"conversationId,omitempty"`
	LeadID            string `json:"leadId"`
	Phone             string `json:"phone"`
	Direction         string `json:"direction"`
	Type              string `json:"type"`
	Body              string `json:"body"`
	Status            string `json:"status"`
	CreatedAt         string `json:"createdAt"`
}

type QueueEntry struct {
	EntryID        string `json:"entryId"`
	LeadID         string `json:"leadId"`
	ConversationID string `json:"conversationId"`
	Pipeline       string `json:"pipeline"`
	Status         string `json:"status"`
	Priority       int    `json:"priority"`
	CreatedAt      string `json:"createdAt"`
	AssignedAt     string `json:"assignedAt,omitempty"`
}

type CloseConversationRequest struct {
	Reason string `json:"reason"`
}

type TransferConversationRequest struct {
	NewAgentID string `json:"newAgentId"`
}

type SendMessageRequest struct {
	Body string `json:"body"`
}

type ListConversationsResponse struct {
	Conversations []Conversation `json:"conversations"`
}

type ListMessagesResponse struct {
	Messages []Message `json:"messages"`
}

type ListQueueResponse struct {
	Entries []QueueEntry `json:"entries"`
}

func FromConversation(item model.ConversationItem) Conversation {
	return Conversation{
		ConversationID:  item.ConversationID,
		LeadID:          item.LeadID,
		Pipeline:        item.Pipeline,
		Status:          string(item.Status),
		AssignedAgentID: item.AssignedAgentID,
		ClosedReason:    item.ClosedReason,
		CreatedAt:       item.CreatedAt,
		UpdatedAt:       item.UpdatedAt,
		LastMessageAt:   item.LastMessageAt,
	}
}

func FromConversationWithLead(item model.ConversationItem, lead model.LeadItem) Conversation {
	out := FromConversation(item)
	out.LeadName = lead.Name
	out.LeadPhone = lead.Phone
	return out
}

func FromMessage(item model.MessageItem) Message {
	return Message{
		MessageID:         item.MessageID,
		ProviderMessageID: item.ProviderMessageID,
		ConversationID:    item.ConversationID,
		LeadID:            item.LeadID,
		Phone:             item.Phone,
		Direction:         string(item.Direction),
		Type:              item.Type,
		Body:              item.Body,
		Status:            string(item.Status),
		CreatedAt:         item.CreatedAt,
	}
}

func FromQueueEntry(item model.QueueEntryItem) QueueEntry {
	return QueueEntry{
		EntryID:        item.EntryID,
		LeadID:         item.LeadID,
		ConversationID: item.ConversationID,
		Pipeline:       item.Pipeline,
		Status:         string(item.Status),
		Priority:       item.Priority,
		CreatedAt:      item.CreatedAt,
		AssignedAt:     item.AssignedAt,
	}
}
