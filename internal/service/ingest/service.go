package ingest

import (
	"context"
	"log"
	"time"

	"lead-routing-backend/internal/model"
	"lead-routing-backend/internal/provider/whatsapp"
	"lead-routing-backend/internal/service/lead"
	"lead-routing-backend/internal/service/message"
	"lead-routing-backend/internal/service/routing"
)

// Events receives lead lifecycle notifications produced while ingesting.
type Events interface {
	LeadNew(lead model.LeadItem)
	LeadUpdated(lead model.LeadItem)
}

// Service runs the webhook pipeline: parse the provider payload,
// resolve the lead, make sure an open conversation exists, store the
// message and fan the results out. The provider retries deliveries, so
// every step tolerates replays.
type Service struct {
	leads    *lead.Service
	routing  *routing.Service
	messages *message.Service
	events   Events
	now      func() time.Time
}

func New(leads *lead.Service, routingService *routing.Service, messages *message.Service, events Events) *Service {
	return &Service{
		leads:    leads,
		routing:  routingService,
		messages: messages,
		events:   events,
		now:      time.Now,
	}
}

// Ingest processes one webhook delivery. It never returns an error:
// the provider only needs an ack, and a failed delivery is retried with
// the same payload, so failures are logged and swallowed.
func (s *Service) Ingest(ctx context.Context, raw []byte) {
	inbound, status, err := whatsapp.ParseWebhook(raw)
	if err != nil {
		droppedPayloads.Inc()
		log.Printf("ignoring unparseable webhook payload: %v", err)
		return
	}

	if status != nil {
		s.applyStatus(ctx, status)
		return
	}

	s.processInbound(ctx, inbound)
}

func (s *Service) applyStatus(ctx context.Context, status *whatsapp.StatusUpdate) {
	if _, err := s.messages.ApplyStatusUpdate(ctx, status.ProviderMessageID, status.Status); err != nil {
		log.Printf("dropping status receipt for %s: %v", status.ProviderMessageID, err)
	}
}

func (s *Service) processInbound(ctx context.Context, inbound *whatsapp.InboundMessage) {
	resolved, err := s.leads.ResolveOrCreate(ctx, lead.ResolveParams{
		Phone:    inbound.From,
		NameHint: inbound.ProfileName,
	})
	if err != nil {
		droppedPayloads.Inc()
		log.Printf("failed to resolve lead for %s: %v", inbound.From, err)
		return
	}
	if resolved.Created && s.events != nil {
		s.events.LeadNew(resolved.Lead)
	}

	enqueued, err := s.routing.Enqueue(ctx, routing.EnqueueParams{LeadID: resolved.Lead.LeadID})
	if err != nil {
		droppedPayloads.Inc()
		log.Printf("failed to enqueue conversation for lead %s: %v", resolved.Lead.LeadID, err)
		return
	}
	conv := enqueued.Conversation

	sentAt := inbound.SentAt
	if sentAt.IsZero() {
		sentAt = s.now()
	}

	stored, err := s.messages.RecordInbound(ctx, message.InboundParams{
		ProviderMessageID: inbound.ProviderMessageID,
		ConversationID:    conv.ConversationID,
		LeadID:            resolved.Lead.LeadID,
		Phone:             resolved.Lead.Phone,
		Type:              inbound.Type,
		Body:              inbound.Body,
		SentAt:            sentAt,
	})
	if err != nil {
		droppedPayloads.Inc()
		log.Printf("failed to store message %s: %v", inbound.ProviderMessageID, err)
		return
	}
	if !stored.Created {
		// Replay of an already processed delivery. Everything below
		// already happened the first time.
		duplicateDeliveries.Inc()
		return
	}
	ingestedMessages.Inc()

	if _, err := s.routing.RecordMessageActivity(ctx, conv.ConversationID, sentAt); err != nil {
		log.Printf("failed to update conversation %s activity: %v", conv.ConversationID, err)
	}

	updatedLead, err := s.leads.RecordActivity(ctx, resolved.Lead.LeadID, inbound.Body, sentAt)
	if err != nil {
		log.Printf("failed to update lead %s activity: %v", resolved.Lead.LeadID, err)
		return
	}
	if s.events != nil {
		s.events.LeadUpdated(updatedLead)
	}
}
