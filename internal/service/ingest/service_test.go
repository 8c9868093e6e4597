package ingest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"lead-routing-backend/internal/model"
	"lead-routing-backend/internal/service/lead"
	"lead-routing-backend/internal/service/message"
	"lead-routing-backend/internal/service/routing"
)

// store backs all three repositories so the pipeline runs end to end
// against one in-memory state.
type store struct {
	mu            sync.Mutex
	leads         map[string]model.LeadItem
	conversations map[string]model.ConversationItem
	claims        map[string]string
	entries       map[string]model.QueueEntryItem
	agents        map[string]model.AgentItem
	messages      map[string]model.MessageItem
}

func newStore() *store {
	return &store{
		leads:         make(map[string]model.LeadItem),
		conversations: make(map[string]model.ConversationItem),
		claims:        make(map[string]string),
		entries:       make(map[string]model.QueueEntryItem),
		agents:        make(map[string]model.AgentItem),
		messages:      make(map[string]model.MessageItem),
	}
}

type leadRepo struct{ s *store }

func (r *leadRepo) GetLead(ctx context.Context, leadID string) (model.LeadItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l, ok := r.s.leads[leadID]
	if !ok {
		return model.LeadItem{}, lead.ErrNotFound
	}
	return l, nil
}

func (r *leadRepo) FindByPhoneSuffix(ctx context.Context, suffix string) ([]model.LeadItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.LeadItem
	for _, l := range r.s.leads {
		if l.PhoneSuffix == suffix {
			out = append(out, l)
		}
	}
	return out, nil
}

func (r *leadRepo) CreateLead(ctx context.Context, l model.LeadItem) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.leads[l.LeadID] = l
	return nil
}

func (r *leadRepo) PutLead(ctx context.Context, l model.LeadItem) error {
	return r.CreateLead(ctx, l)
}

func (r *leadRepo) SetLastMessage(ctx context.Context, leadID, preview, lastMessageAt, updatedAt string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l, ok := r.s.leads[leadID]
	if !ok {
		return lead.ErrNotFound
	}
	l.LastMessagePreview = preview
	l.LastMessageAt = lastMessageAt
	l.UpdatedAt = updatedAt
	r.s.leads[leadID] = l
	return nil
}

func (r *leadRepo) ListLeads(ctx context.Context, limit int) ([]model.LeadItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]model.LeadItem, 0, len(r.s.leads))
	for _, l := range r.s.leads {
		out = append(out, l)
	}
	return out, nil
}

type routingRepo struct{ s *store }

func (r *routingRepo) GetConversation(ctx context.Context, id string) (model.ConversationItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.conversations[id]
	if !ok {
		return model.ConversationItem{}, routing.ErrNotFound
	}
	return c, nil
}

func (r *routingRepo) GetOpenConversationByLead(ctx context.Context, leadID string) (model.ConversationItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.conversations {
		if c.LeadID == leadID && c.Status != model.ConversationStatusClosed {
			return c, nil
		}
	}
	return model.ConversationItem{}, routing.ErrNotFound
}

func (r *routingRepo) CreateConversation(ctx context.Context, c model.ConversationItem) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.conversations[c.ConversationID] = c
	return nil
}

func (r *routingRepo) ActivateConversation(ctx context.Context, id, agentID, at string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.conversations[id]
	if !ok || c.Status == model.ConversationStatusClosed {
		return routing.ErrConflict
	}
	c.Status = model.ConversationStatusActive
	c.AssignedAgentID = agentID
	c.UpdatedAt = at
	r.s.conversations[id] = c
	return nil
}

func (r *routingRepo) CloseConversation(ctx context.Context, id, reason, at string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.conversations[id]
	if !ok || c.Status == model.ConversationStatusClosed {
		return routing.ErrConflict
	}
	c.Status = model.ConversationStatusClosed
	c.ClosedReason = reason
	c.UpdatedAt = at
	r.s.conversations[id] = c
	return nil
}

func (r *routingRepo) SetConversationAgent(ctx context.Context, id, agentID, at string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := r.s.conversations[id]
	c.AssignedAgentID = agentID
	c.UpdatedAt = at
	r.s.conversations[id] = c
	return nil
}

func (r *routingRepo) TouchConversation(ctx context.Context, id, lastMessageAt string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.conversations[id]
	if !ok {
		return routing.ErrNotFound
	}
	c.LastMessageAt = lastMessageAt
	c.UpdatedAt = lastMessageAt
	r.s.conversations[id] = c
	return nil
}

func (r *routingRepo) ListConversations(ctx context.Context, limit int) ([]model.ConversationItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]model.ConversationItem, 0, len(r.s.conversations))
	for _, c := range r.s.conversations {
		out = append(out, c)
	}
	return out, nil
}

func (r *routingRepo) ListConversationsByAgent(ctx context.Context, agentID string, limit int) ([]model.ConversationItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.ConversationItem
	for _, c := range r.s.conversations {
		if c.AssignedAgentID == agentID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *routingRepo) ClaimOpenConversation(ctx context.Context, claim model.OpenConversationItem) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.claims[claim.LeadID]; ok {
		return routing.ErrConflict
	}
	r.s.claims[claim.LeadID] = claim.ConversationID
	return nil
}

func (r *routingRepo) ReleaseOpenConversation(ctx context.Context, leadID, conversationID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.claims[leadID] != conversationID {
		return routing.ErrConflict
	}
	delete(r.s.claims, leadID)
	return nil
}

func (r *routingRepo) GetQueueEntry(ctx context.Context, entryID string) (model.QueueEntryItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.entries[entryID]
	if !ok {
		return model.QueueEntryItem{}, routing.ErrNotFound
	}
	return e, nil
}

func (r *routingRepo) CreateQueueEntry(ctx context.Context, entry model.QueueEntryItem) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.entries[entry.EntryID] = entry
	return nil
}

func (r *routingRepo) ListWaitingEntries(ctx context.Context, pipeline string) ([]model.QueueEntryItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.QueueEntryItem
	for _, e := range r.s.entries {
		if e.Pipeline == pipeline && e.Status == model.QueueEntryStatusWaiting {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *routingRepo) ClaimQueueEntry(ctx context.Context, entryID, assignedAt string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.entries[entryID]
	if !ok || e.Status != model.QueueEntryStatusWaiting {
		return routing.ErrConflict
	}
	e.Status = model.QueueEntryStatusAssigned
	e.AssignedAt = assignedAt
	r.s.entries[entryID] = e
	return nil
}

func (r *routingRepo) GetAgent(ctx context.Context, agentID string) (model.AgentItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.agents[agentID]
	if !ok {
		return model.AgentItem{}, routing.ErrNotFound
	}
	return a, nil
}

func (r *routingRepo) ListEligibleAgents(ctx context.Context, pipeline string) ([]model.AgentItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.AgentItem
	for _, a := range r.s.agents {
		if a.PipelineType == pipeline && a.IsOnline && a.IsActive && a.CurrentChatCount < a.MaxConcurrentChats {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *routingRepo) IncrementAgentChats(ctx context.Context, agentID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.agents[agentID]
	if !ok || !a.IsOnline || !a.IsActive || a.CurrentChatCount >= a.MaxConcurrentChats {
		return routing.ErrConflict
	}
	a.CurrentChatCount++
	r.s.agents[agentID] = a
	return nil
}

func (r *routingRepo) DecrementAgentChats(ctx context.Context, agentID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.agents[agentID]
	if !ok || a.CurrentChatCount <= 0 {
		return routing.ErrConflict
	}
	a.CurrentChatCount--
	r.s.agents[agentID] = a
	return nil
}

func (r *routingRepo) SetAgentOnline(ctx context.Context, agentID string, online bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.agents[agentID]
	if !ok {
		return routing.ErrNotFound
	}
	a.IsOnline = online
	r.s.agents[agentID] = a
	return nil
}

func (r *routingRepo) GetLead(ctx context.Context, leadID string) (model.LeadItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l, ok := r.s.leads[leadID]
	if !ok {
		return model.LeadItem{}, routing.ErrNotFound
	}
	return l, nil
}

func (r *routingRepo) SetLeadPipeline(ctx context.Context, leadID, pipeline, updatedAt string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l, ok := r.s.leads[leadID]
	if !ok {
		return routing.ErrNotFound
	}
	l.Pipeline = pipeline
	l.UpdatedAt = updatedAt
	r.s.leads[leadID] = l
	return nil
}

type messageRepo struct{ s *store }

func (r *messageRepo) CreateIfAbsent(ctx context.Context, msg model.MessageItem) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.messages[msg.MessageID]; ok {
		return message.ErrDuplicate
	}
	r.s.messages[msg.MessageID] = msg
	return nil
}

func (r *messageRepo) Create(ctx context.Context, msg model.MessageItem) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.messages[msg.MessageID] = msg
	return nil
}

func (r *messageRepo) GetMessage(ctx context.Context, messageID string) (model.MessageItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	msg, ok := r.s.messages[messageID]
	if !ok {
		return model.MessageItem{}, message.ErrNotFound
	}
	return msg, nil
}

func (r *messageRepo) GetByProviderID(ctx context.Context, providerMessageID string) (model.MessageItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, msg := range r.s.messages {
		if msg.ProviderMessageID == providerMessageID {
			return msg, nil
		}
	}
	return model.MessageItem{}, message.ErrNotFound
}

func (r *messageRepo) SetStatus(ctx context.Context, messageID string, status model.MessageStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	msg, ok := r.s.messages[messageID]
	if !ok {
		return message.ErrNotFound
	}
	msg.Status = status
	r.s.messages[messageID] = msg
	return nil
}

func (r *messageRepo) SetSendResult(ctx context.Context, messageID, providerMessageID string, status model.MessageStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	msg, ok := r.s.messages[messageID]
	if !ok {
		return message.ErrNotFound
	}
	msg.ProviderMessageID = providerMessageID
	msg.Status = status
	r.s.messages[messageID] = msg
	return nil
}

func (r *messageRepo) ListByConversation(ctx context.Context, conversationID string, limit int) ([]model.MessageItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.MessageItem
	for _, msg := range r.s.messages {
		if msg.ConversationID == conversationID {
			out = append(out, msg)
		}
	}
	return out, nil
}

type leadEvents struct {
	mu      sync.Mutex
	created int
	updated int
}

func (e *leadEvents) LeadNew(model.LeadItem) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.created++
}

func (e *leadEvents) LeadUpdated(model.LeadItem) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.updated++
}

func newPipeline(s *store) (*Service, *leadEvents) {
	now := func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	leads := lead.NewWithRepository(&leadRepo{s: s}, "sales", now)
	router := routing.NewWithRepository(&routingRepo{s: s}, nil, "post-sales", now)
	messages := message.NewWithRepository(&messageRepo{s: s}, nil, nil, now)
	events := &leadEvents{}
	return New(leads, router, messages, events), events
}

func webhookMessage(wamid, from, name, body string) []byte {
	return []byte(fmt.Sprintf(`{
		"entry": [{"changes": [{"value": {
			"contacts": [{"profile": {"name": %q}, "wa_id": %q}],
			"messages": [{"id": %q, "from": %q, "type": "text", "timestamp": "1714564800", "text": {"body": %q}}]
		}}]}]
	}`, name, from, wamid, from, body))
}

func TestIngestCreatesLeadConversationAndMessage(t *testing.T) {
	s := newStore()
	pipeline, events := newPipeline(s)

	pipeline.Ingest(context.Background(), webhookMessage("wamid.1", "5511999990000", "Maria", "hi there"))

	if len(s.leads) != 1 {
		t.Fatalf("expected one lead, got %d", len(s.leads))
	}
	if len(s.conversations) != 1 {
		t.Fatalf("expected one conversation, got %d", len(s.conversations))
	}
	if len(s.messages) != 1 {
		t.Fatalf("expected one message, got %d", len(s.messages))
	}
	for _, msg := range s.messages {
		if msg.MessageID != "wamid.1" || msg.Direction != model.MessageDirectionIn {
			t.Fatalf("unexpected stored message: %+v", msg)
		}
	}
	for _, l := range s.leads {
		if l.Name != "Maria" || l.LastMessagePreview != "hi there" {
			t.Fatalf("unexpected lead state: %+v", l)
		}
	}
	if events.created != 1 || events.updated != 1 {
		t.Fatalf("expected 1 created and 1 updated lead event, got %d/%d", events.created, events.updated)
	}
}

func TestIngestReplayedDeliveryStoresOneMessage(t *testing.T) {
	s := newStore()
	pipeline, events := newPipeline(s)

	payload := webhookMessage("wamid.dup", "5511999990000", "Maria", "hello")
	for i := 0; i < 3; i++ {
		pipeline.Ingest(context.Background(), payload)
	}

	if len(s.messages) != 1 {
		t.Fatalf("expected one stored message after replays, got %d", len(s.messages))
	}
	if len(s.conversations) != 1 {
		t.Fatalf("expected one conversation after replays, got %d", len(s.conversations))
	}
	if events.updated != 1 {
		t.Fatalf("expected one lead update, got %d", events.updated)
	}
}

func TestIngestSecondMessageReusesOpenConversation(t *testing.T) {
	s := newStore()
	pipeline, _ := newPipeline(s)

	pipeline.Ingest(context.Background(), webhookMessage("wamid.1", "5511999990000", "Maria", "first"))
	pipeline.Ingest(context.Background(), webhookMessage("wamid.2", "11999990000", "Maria", "second"))

	if len(s.leads) != 1 {
		t.Fatalf("expected the shorter number to match the same lead, got %d leads", len(s.leads))
	}
	if len(s.conversations) != 1 {
		t.Fatalf("expected one open conversation, got %d", len(s.conversations))
	}
	if len(s.messages) != 2 {
		t.Fatalf("expected two messages, got %d", len(s.messages))
	}
}

func TestIngestStatusReceipt(t *testing.T) {
	s := newStore()
	pipeline, _ := newPipeline(s)

	s.messages["msg-1"] = model.MessageItem{
		MessageID:         "msg-1",
		ProviderMessageID: "wamid.out",
		ConversationID:    "conv-1",
		Direction:         model.MessageDirectionOut,
		Status:            model.MessageStatusSent,
	}

	payload := []byte(`{
		"entry": [{"changes": [{"value": {
			"statuses": [{"id": "wamid.out", "status": "read"}]
		}}]}]
	}`)
	pipeline.Ingest(context.Background(), payload)

	if s.messages["msg-1"].Status != model.MessageStatusRead {
		t.Fatalf("expected read status, got %q", s.messages["msg-1"].Status)
	}
}

func TestIngestMalformedPayloadIsDropped(t *testing.T) {
	s := newStore()
	pipeline, _ := newPipeline(s)

	pipeline.Ingest(context.Background(), []byte(`{"object": "whatsapp_business_account"}`))
	pipeline.Ingest(context.Background(), []byte(`not json`))

	if len(s.leads) != 0 || len(s.messages) != 0 {
		t.Fatalf("expected nothing stored for unusable payloads")
	}
}
