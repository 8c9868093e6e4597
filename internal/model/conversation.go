package model

type ConversationStatus string

const (
	ConversationStatusQueued ConversationStatus = "queued"
	ConversationStatusActive ConversationStatus = "active"
	ConversationStatusClosed ConversationStatus = "closed"
)

// CloseReasonPayment triggers the post-sales pipeline handoff on close.
const CloseReasonPayment = "payment"

type QueueEntryStatus string

const (
	QueueEntryStatusWaiting  QueueEntryStatus = "waiting"
	QueueEntryStatusAssigned QueueEntryStatus = "assigned"
)

type MessageDirection string

const (
	MessageDirectionIn  MessageDirection = "in"
	MessageDirectionOut MessageDirection = "out"
)

type MessageStatus string

const (
	MessageStatusPending   MessageStatus = "pending"
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusRead      MessageStatus = "read"
	MessageStatusFailed    MessageStatus = "failed"
)

type ConversationItem struct {
	ConversationID  string             `dynamodbav:"conversationId"`
	LeadID          string             `dynamodbav:"leadId"`
	Pipeline        string             `dynamodbav:"pipeline"`
	Status          ConversationStatus `dynamodbav:"status"`
	AssignedAgentID string             `dynamodbav:"assignedAgentId,omitempty"`
	ClosedReason    string             `dynamodbav:"closedReason,omitempty"`
	CreatedAt       string             `dynamodbav:"createdAt"`
	UpdatedAt       string             `dynamodbav:"updatedAt"`
	LastMessageAt   string             `dynamodbav:"lastMessageAt"`
}

// OpenConversationItem marks the lead's single open conversation. It
// is written with a conditional put keyed on leadId, so concurrent
// routers across processes cannot open two conversations for one lead.
type OpenConversationItem struct {
	LeadID         string `dynamodbav:"leadId"`
	ConversationID string `dynamodbav:"conversationId"`
	CreatedAt      string `dynamodbav:"createdAt"`
}

type QueueEntryItem struct {
	EntryID        string           `dynamodbav:"entryId"`
	LeadID         string           `dynamodbav:"leadId"`
	ConversationID string           `dynamodbav:"conversationId"`
	Pipeline       string           `dynamodbav:"pipeline"`
	Status         QueueEntryStatus `dynamodbav:"status"`
	Priority       int              `dynamodbav:"priority"`
	CreatedAt      string           `dynamodbav:"createdAt"`
	AssignedAt     string           `dynamodbav:"assignedAt,omitempty"`
}

// MessageItem is append-only: only Status (and ProviderMessageID for
// outbound messages once the gateway acks) are ever mutated after insert.
// Inbound messages use the provider message id as the table key, which is
// what makes the webhook-retry upsert idempotent.
type MessageItem struct {
	MessageID         string           `dynamodbav:"messageId"`
	ProviderMessageID string           `dynamodbav:"providerMessageId,omitempty"`
	ConversationID    string           `dynamodbav:"conversationId,omitempty"`
	LeadID            string           `dynamodbav:"leadId"`
	Phone             string           `dynamodbav:"phone"`
	Direction         MessageDirection `dynamodbav:"direction"`
	Type              string           `dynamodbav:"type"`
	Body              string           `dynamodbav:"body"`
	Status            MessageStatus    `dynamodbav:"status"`
	CreatedAt         string           `dynamodbav:"createdAt"`
}
