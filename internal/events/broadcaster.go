package events

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"lead-routing-backend/internal/dto"
	"lead-routing-backend/internal/model"

	"github.com/go-redis/redis/v8"
)

// Publisher delivers an event payload to a named room channel. Every
// process hosting websocket connections subscribes to the rooms it
// created, so one publish per room reaches each client exactly once.
type Publisher interface {
	Publish(ctx context.Context, roomID string, payload []byte) error
}

type redisPublisher struct {
	client *redis.Client
}

func (p redisPublisher) Publish(ctx context.Context, roomID string, payload []byte) error {
	return p.client.Publish(ctx, roomID, string(payload)).Err()
}

// Broadcaster publishes typed domain events. It derives nothing from
// persistence; callers hand it the already-updated entities.
type Broadcaster struct {
	pub    Publisher
	mirror *AMQPPublisher
	now    func() time.Time
}

func NewBroadcaster(redisClient *redis.Client) *Broadcaster {
	var pub Publisher
	if redisClient != nil {
		pub = redisPublisher{client: redisClient}
	}
	return NewBroadcasterWithPublisher(pub, time.Now)
}

func NewBroadcasterWithPublisher(pub Publisher, now func() time.Time) *Broadcaster {
	if now == nil {
		now = time.Now
	}
	return &Broadcaster{
		pub: pub,
		now: now,
	}
}

// WithMirror attaches an AMQP publisher that receives a copy of every
// event for out-of-process consumers.
func (b *Broadcaster) WithMirror(mirror *AMQPPublisher) *Broadcaster {
	b.mirror = mirror
	return b
}

func (b *Broadcaster) LeadNew(lead model.LeadItem) {
	b.publish(LeadNew, dto.FromLead(lead), BroadcastRoom)
}

func (b *Broadcaster) LeadUpdated(lead model.LeadItem) {
	b.publish(LeadUpdated, dto.FromLead(lead), BroadcastRoom)
}

func (b *Broadcaster) ConversationNew(conv model.ConversationItem, lead model.LeadItem) {
	b.publish(ConversationNew, dto.FromConversationWithLead(conv, lead), BroadcastRoom)
}

func (b *Broadcaster) ConversationUpdated(conv model.ConversationItem, lead model.LeadItem) {
	b.publish(ConversationUpdated, dto.FromConversationWithLead(conv, lead), BroadcastRoom)
}

// ConversationAssigned goes only to the newly bound agent's room.
func (b *Broadcaster) ConversationAssigned(conv model.ConversationItem, lead model.LeadItem) {
	if conv.AssignedAgentID == "" {
		return
	}
	b.publish(ConversationAssigned, dto.FromConversationWithLead(conv, lead), AgentRoom(conv.AssignedAgentID))
}

func (b *Broadcaster) QueueUpdate(entry model.QueueEntryItem) {
	b.publish(QueueUpdate, dto.FromQueueEntry(entry), BroadcastRoom)
}

func (b *Broadcaster) MessageReceived(msg model.MessageItem) {
	event := ConversationMessage(msg.ConversationID)
	b.publish(event, dto.FromMessage(msg), BroadcastRoom, ConversationRoom(msg.ConversationID))
}

// publish never fails the caller: a routing decision must not be undone
// because a subscriber transport hiccuped.
func (b *Broadcaster) publish(event string, data interface{}, roomIDs ...string) {
	envelope := Envelope{
		Event:         event,
		Data:          data,
		BroadcastedAt: b.now().UTC().Format(time.RFC3339),
	}

	payload, err := json.Marshal(envelope)
	if err != nil {
		log.Printf("events: marshal %s: %v", event, err)
		return
	}

	for _, roomID := range roomIDs {
		if b.pub != nil {
			if err := b.pub.Publish(context.Background(), roomID, payload); err != nil {
				log.Printf("events: publish %s to %s: %v", event, roomID, err)
			}
		}
	}

	if b.mirror != nil {
		if err := b.mirror.Publish(context.Background(), event, payload); err != nil {
			log.Printf("events: amqp mirror %s: %v", event, err)
		}
	}
}
