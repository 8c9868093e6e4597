package message

import (
	"context"
	"errors"
	"strings"
	"time"

	"lead-routing-backend/internal/database"
	"lead-routing-backend/internal/model"

	"github.com/google/uuid"
)

type ErrorCode string

const (
	ErrorCodeValidation ErrorCode = "validation_error"
	ErrorCodeNotFound   ErrorCode = "not_found"
	ErrorCodeGateway    ErrorCode = "gateway_error"
	ErrorCodeInternal   ErrorCode = "internal_error"
)

type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code ErrorCode, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Gateway delivers outbound messages to the chat provider and returns
// the provider-assigned message id.
type Gateway interface {
	SendText(ctx context.Context, to, body string) (string, error)
}

// Events receives a notification for every newly stored message.
// Replays of already stored messages stay silent.
type Events interface {
	MessageReceived(msg model.MessageItem)
}

type InboundParams struct {
	ProviderMessageID string
	ConversationID    string
	LeadID            string
	Phone             string
	Type              string
	Body              string
	SentAt            time.Time
}

type InboundResult struct {
	Message model.MessageItem
	Created bool
}

type Service struct {
	repo    Repository
	gateway Gateway
	events  Events
	now     func() time.Time
}

func New(db *database.Database, gateway Gateway, events Events) *Service {
	return NewWithRepository(NewDynamoRepository(db), gateway, events, time.Now)
}

func NewWithRepository(repo Repository, gateway Gateway, events Events, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:    repo,
		gateway: gateway,
		events:  events,
		now:     now,
	}
}

// RecordInbound stores an inbound message keyed by its provider id, so a
// webhook replay of the same id writes nothing and emits nothing.
func (s *Service) RecordInbound(ctx context.Context, params InboundParams) (InboundResult, error) {
	providerID := strings.TrimSpace(params.ProviderMessageID)
	if providerID == "" {
		return InboundResult{}, newError(ErrorCodeValidation, "provider message id is required", nil)
	}
	if params.ConversationID == "" {
		return InboundResult{}, newError(ErrorCodeValidation, "conversationId is required", nil)
	}

	sentAt := params.SentAt
	if sentAt.IsZero() {
		sentAt = s.now()
	}

	msgType := params.Type
	if msgType == "" {
		msgType = "text"
	}

	item := model.MessageItem{
		MessageID:         providerID,
		ProviderMessageID: providerID,
		ConversationID:    params.ConversationID,
		LeadID:            params.LeadID,
		Phone:             params.Phone,
		Direction:         model.MessageDirectionIn,
		Type:              msgType,
		Body:              params.Body,
		Status:            model.MessageStatusDelivered,
		CreatedAt:         sentAt.UTC().Format(time.RFC3339),
	}

	if err := s.repo.CreateIfAbsent(ctx, item); err != nil {
		if errors.Is(err, ErrDuplicate) {
			existing, getErr := s.repo.GetMessage(ctx, providerID)
			if getErr != nil {
				return InboundResult{}, newError(ErrorCodeInternal, "failed to load duplicate message", getErr)
			}
			return InboundResult{Message: existing}, nil
		}
		return InboundResult{}, newError(ErrorCodeInternal, "failed to store message", err)
	}

	if s.events != nil {
		s.events.MessageReceived(item)
	}

	return InboundResult{Message: item, Created: true}, nil
}

// Send stores an outbound message, hands it to the gateway and records
// the outcome. The stored row survives gateway failure with status
// "failed" so the attempt stays visible in the conversation history.
func (s *Service) Send(ctx context.Context, conv model.ConversationItem, phoneNumber, body string) (model.MessageItem, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return model.MessageItem{}, newError(ErrorCodeValidation, "message body is required", nil)
	}
	if phoneNumber == "" {
		return model.MessageItem{}, newError(ErrorCodeValidation, "destination phone is required", nil)
	}

	nowStr := s.now().UTC().Format(time.RFC3339)
	item := model.MessageItem{
		MessageID:      uuid.NewString(),
		ConversationID: conv.ConversationID,
		LeadID:         conv.LeadID,
		Phone:          phoneNumber,
		Direction:      model.MessageDirectionOut,
		Type:           "text",
		Body:           body,
		Status:         model.MessageStatusPending,
		CreatedAt:      nowStr,
	}

	if err := s.repo.Create(ctx, item); err != nil {
		return model.MessageItem{}, newError(ErrorCodeInternal, "failed to store message", err)
	}

	providerID, err := s.gateway.SendText(ctx, phoneNumber, body)
	if err != nil {
		item.Status = model.MessageStatusFailed
		if setErr := s.repo.SetStatus(ctx, item.MessageID, model.MessageStatusFailed); setErr != nil {
			return item, newError(ErrorCodeInternal, "failed to record send failure", setErr)
		}
		return item, newError(ErrorCodeGateway, "provider rejected the message", err)
	}

	item.ProviderMessageID = providerID
	item.Status = model.MessageStatusSent
	if err := s.repo.SetSendResult(ctx, item.MessageID, providerID, model.MessageStatusSent); err != nil {
		return item, newError(ErrorCodeInternal, "failed to record send result", err)
	}

	if s.events != nil {
		s.events.MessageReceived(item)
	}

	return item, nil
}

// ApplyStatusUpdate applies a provider delivery receipt. Receipts for
// unknown provider ids or unknown status values are dropped.
func (s *Service) ApplyStatusUpdate(ctx context.Context, providerMessageID, status string) (model.MessageItem, error) {
	mapped, ok := mapProviderStatus(status)
	if !ok {
		return model.MessageItem{}, newError(ErrorCodeValidation, "unknown message status", nil)
	}

	msg, err := s.repo.GetByProviderID(ctx, providerMessageID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.MessageItem{}, newError(ErrorCodeNotFound, "message not found", err)
		}
		return model.MessageItem{}, newError(ErrorCodeInternal, "failed to load message", err)
	}

	if err := s.repo.SetStatus(ctx, msg.MessageID, mapped); err != nil {
		return model.MessageItem{}, newError(ErrorCodeInternal, "failed to update message status", err)
	}

	msg.Status = mapped
	return msg, nil
}

func (s *Service) ListByConversation(ctx context.Context, conversationID string, limit int) ([]model.MessageItem, error) {
	if conversationID == "" {
		return nil, newError(ErrorCodeValidation, "conversationId is required", nil)
	}
	messages, err := s.repo.ListByConversation(ctx, conversationID, limit)
	if err != nil {
		return nil, newError(ErrorCodeInternal, "failed to list messages", err)
	}
	return messages, nil
}

func mapProviderStatus(status string) (model.MessageStatus, bool) {
	switch status {
	case "sent":
		return model.MessageStatusSent, true
	case "delivered":
		return model.MessageStatusDelivered, true
	case "read":
		return model.MessageStatusRead, true
	case "failed":
		return model.MessageStatusFailed, true
	default:
		return "", false
	}
}
