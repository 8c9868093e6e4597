package routing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"lead-routing-backend/internal/model"
)

type memoryRepository struct {
	mu            sync.Mutex
	leads         map[string]model.LeadItem
	conversations map[string]model.ConversationItem
	claims        map[string]string
	entries       map[string]model.QueueEntryItem
	agents        map[string]model.AgentItem
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{
		leads:         make(map[string]model.LeadItem),
		conversations: make(map[string]model.ConversationItem),
		claims:        make(map[string]string),
		entries:       make(map[string]model.QueueEntryItem),
		agents:        make(map[string]model.AgentItem),
	}
}

func (m *memoryRepository) GetConversation(ctx context.Context, conversationID string) (model.ConversationItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.conversations[conversationID]
	if !ok {
		return model.ConversationItem{}, ErrNotFound
	}
	return conv, nil
}

func (m *memoryRepository) GetOpenConversationByLead(ctx context.Context, leadID string) (model.ConversationItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, conv := range m.conversations {
		if conv.LeadID == leadID && conv.Status != model.ConversationStatusClosed {
			return conv, nil
		}
	}
	return model.ConversationItem{}, ErrNotFound
}

func (m *memoryRepository) CreateConversation(ctx context.Context, conv model.ConversationItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.conversations[conv.ConversationID]; ok {
		return ErrConflict
	}
	m.conversations[conv.ConversationID] = conv
	return nil
}

func (m *memoryRepository) ClaimOpenConversation(ctx context.Context, claim model.OpenConversationItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.claims[claim.LeadID]; ok {
		return ErrConflict
	}
	m.claims[claim.LeadID] = claim.ConversationID
	return nil
}

func (m *memoryRepository) ReleaseOpenConversation(ctx context.Context, leadID, conversationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.claims[leadID] != conversationID {
		return ErrConflict
	}
	delete(m.claims, leadID)
	return nil
}

func (m *memoryRepository) ActivateConversation(ctx context.Context, conversationID, agentID, at string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.conversations[conversationID]
	if !ok || conv.Status == model.ConversationStatusClosed {
		return ErrConflict
	}
	conv.Status = model.ConversationStatusActive
	conv.AssignedAgentID = agentID
	conv.UpdatedAt = at
	m.conversations[conversationID] = conv
	return nil
}

func (m *memoryRepository) CloseConversation(ctx context.Context, conversationID, reason, at string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.conversations[conversationID]
	if !ok || conv.Status == model.ConversationStatusClosed {
		return ErrConflict
	}
	conv.Status = model.ConversationStatusClosed
	conv.ClosedReason = reason
	conv.UpdatedAt = at
	m.conversations[conversationID] = conv
	return nil
}

func (m *memoryRepository) SetConversationAgent(ctx context.Context, conversationID, agentID, at string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.conversations[conversationID]
	if !ok {
		return ErrNotFound
	}
	conv.AssignedAgentID = agentID
	conv.UpdatedAt = at
	m.conversations[conversationID] = conv
	return nil
}

func (m *memoryRepository) TouchConversation(ctx context.Context, conversationID, lastMessageAt string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.conversations[conversationID]
	if !ok {
		return ErrNotFound
	}
	conv.LastMessageAt = lastMessageAt
	conv.UpdatedAt = lastMessageAt
	m.conversations[conversationID] = conv
	return nil
}

func (m *memoryRepository) ListConversations(ctx context.Context, limit int) ([]model.ConversationItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.ConversationItem, 0, len(m.conversations))
	for _, conv := range m.conversations {
		out = append(out, conv)
	}
	return out, nil
}

func (m *memoryRepository) ListConversationsByAgent(ctx context.Context, agentID string, limit int) ([]model.ConversationItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.ConversationItem
	for _, conv := range m.conversations {
		if conv.AssignedAgentID == agentID {
			out = append(out, conv)
		}
	}
	return out, nil
}

func (m *memoryRepository) CreateQueueEntry(ctx context.Context, entry model.QueueEntryItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[entry.EntryID]; ok {
		return ErrConflict
	}
	m.entries[entry.EntryID] = entry
	return nil
}

func (m *memoryRepository) GetQueueEntry(ctx context.Context, entryID string) (model.QueueEntryItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[entryID]
	if !ok {
		return model.QueueEntryItem{}, ErrNotFound
	}
	return entry, nil
}

func (m *memoryRepository) ListWaitingEntries(ctx context.Context, pipeline string) ([]model.QueueEntryItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.QueueEntryItem
	for _, entry := range m.entries {
		if entry.Pipeline == pipeline && entry.Status == model.QueueEntryStatusWaiting {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (m *memoryRepository) ClaimQueueEntry(ctx context.Context, entryID, assignedAt string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[entryID]
	if !ok || entry.Status != model.QueueEntryStatusWaiting {
		return ErrConflict
	}
	entry.Status = model.QueueEntryStatusAssigned
	entry.AssignedAt = assignedAt
	m.entries[entryID] = entry
	return nil
}

func (m *memoryRepository) GetAgent(ctx context.Context, agentID string) (model.AgentItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	agent, ok := m.agents[agentID]
	if !ok {
		return model.AgentItem{}, ErrNotFound
	}
	return agent, nil
}

func (m *memoryRepository) ListEligibleAgents(ctx context.Context, pipeline string) ([]model.AgentItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.AgentItem
	for _, agent := range m.agents {
		if agent.PipelineType == pipeline && agent.IsOnline && agent.IsActive && agent.CurrentChatCount < agent.MaxConcurrentChats {
			out = append(out, agent)
		}
	}
	return out, nil
}

func (m *memoryRepository) IncrementAgentChats(ctx context.Context, agentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	agent, ok := m.agents[agentID]
	if !ok || !agent.IsOnline || !agent.IsActive || agent.CurrentChatCount >= agent.MaxConcurrentChats {
		return ErrConflict
	}
	agent.CurrentChatCount++
	m.agents[agentID] = agent
	return nil
}

func (m *memoryRepository) DecrementAgentChats(ctx context.Context, agentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	agent, ok := m.agents[agentID]
	if !ok || agent.CurrentChatCount <= 0 {
		return ErrConflict
	}
	agent.CurrentChatCount--
	m.agents[agentID] = agent
	return nil
}

func (m *memoryRepository) SetAgentOnline(ctx context.Context, agentID string, online bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	agent, ok := m.agents[agentID]
	if !ok {
		return ErrNotFound
	}
	agent.IsOnline = online
	m.agents[agentID] = agent
	return nil
}

func (m *memoryRepository) GetLead(ctx context.Context, leadID string) (model.LeadItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lead, ok := m.leads[leadID]
	if !ok {
		return model.LeadItem{}, ErrNotFound
	}
	return lead, nil
}

func (m *memoryRepository) SetLeadPipeline(ctx context.Context, leadID, pipeline, updatedAt string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	lead, ok := m.leads[leadID]
	if !ok {
		return ErrNotFound
	}
	lead.Pipeline = pipeline
	lead.UpdatedAt = updatedAt
	m.leads[leadID] = lead
	return nil
}

func (m *memoryRepository) addLead(id, pipeline string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leads[id] = model.LeadItem{
		LeadID:   id,
		Name:     "Lead " + id,
		Phone:    "55119999" + id,
		Pipeline: pipeline,
	}
}

func (m *memoryRepository) addAgent(id, pipeline string, online bool, current, max int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.agents[id] = model.AgentItem{
		AgentID:            id,
		Name:               "Agent " + id,
		PipelineType:       pipeline,
		IsOnline:           online,
		IsActive:           true,
		CurrentChatCount:   current,
		MaxConcurrentChats: max,
	}
}

func (m *memoryRepository) agentCount(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.agents[id].CurrentChatCount
}

type recordingEvents struct {
	mu       sync.Mutex
	assigned []model.ConversationItem
	updated  []model.ConversationItem
	leads    []model.LeadItem
}

func (r *recordingEvents) ConversationNew(conv model.ConversationItem, lead model.LeadItem) {}

func (r *recordingEvents) ConversationUpdated(conv model.ConversationItem, lead model.LeadItem) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updated = append(r.updated, conv)
}

func (r *recordingEvents) ConversationAssigned(conv model.ConversationItem, lead model.LeadItem) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assigned = append(r.assigned, conv)
}

func (r *recordingEvents) QueueUpdate(entry model.QueueEntryItem) {}

func (r *recordingEvents) LeadUpdated(lead model.LeadItem) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leads = append(r.leads, lead)
}

func (r *recordingEvents) assignedIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.assigned))
	for _, conv := range r.assigned {
		out = append(out, conv.ConversationID)
	}
	return out
}

func newTestService(repo Repository, events Events) *Service {
	var (
		mu   sync.Mutex
		tick int
	)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	now := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return NewWithRepository(repo, events, "post-sales", now)
}

func TestEnqueueWithoutAgentsStaysQueued(t *testing.T) {
	repo := newMemoryRepository()
	repo.addLead("lead-1", "sales")
	service := newTestService(repo, &recordingEvents{})

	result, err := service.Enqueue(context.Background(), EnqueueParams{LeadID: "lead-1"})
	if err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}
	if result.Existing {
		t.Fatalf("expected a new conversation")
	}
	if result.Conversation.Status != model.ConversationStatusQueued {
		t.Fatalf("expected queued status, got %q", result.Conversation.Status)
	}

	entries, err := service.ListQueue(context.Background(), "sales")
	if err != nil {
		t.Fatalf("ListQueue returned error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one waiting entry, got %d", len(entries))
	}
}

// rendezvousRepository holds the first two callers that saw no open
// conversation until both have looked, reproducing two binaries racing
// the same lead against a shared table.
type rendezvousRepository struct {
	Repository
	checks  int32
	barrier *sync.WaitGroup
}

func (r *rendezvousRepository) GetOpenConversationByLead(ctx context.Context, leadID string) (model.ConversationItem, error) {
	conv, err := r.Repository.GetOpenConversationByLead(ctx, leadID)
	if errors.Is(err, ErrNotFound) && atomic.AddInt32(&r.checks, 1) <= 2 {
		r.barrier.Done()
		r.barrier.Wait()
	}
	return conv, err
}

func TestEnqueueSingleOpenConversationAcrossRouters(t *testing.T) {
	repo := newMemoryRepository()
	repo.addLead("lead-1", "sales")

	var barrier sync.WaitGroup
	barrier.Add(2)
	shared := &rendezvousRepository{Repository: repo, barrier: &barrier}

	// Two Service instances model two binaries: neither sees the
	// other's locks, only the shared repository.
	routerA := newTestService(shared, &recordingEvents{})
	routerB := newTestService(shared, &recordingEvents{})

	type outcome struct {
		result EnqueueResult
		err    error
	}
	outcomes := make(chan outcome, 2)
	for _, router := range []*Service{routerA, routerB} {
		go func(s *Service) {
			result, err := s.Enqueue(context.Background(), EnqueueParams{LeadID: "lead-1"})
			outcomes <- outcome{result: result, err: err}
		}(router)
	}

	var results []EnqueueResult
	for i := 0; i < 2; i++ {
		o := <-outcomes
		if o.err != nil {
			t.Fatalf("Enqueue returned error: %v", o.err)
		}
		results = append(results, o.result)
	}

	if results[0].Conversation.ConversationID != results[1].Conversation.ConversationID {
		t.Fatalf("routers opened different conversations: %q vs %q",
			results[0].Conversation.ConversationID, results[1].Conversation.ConversationID)
	}
	existing := 0
	for _, result := range results {
		if result.Existing {
			existing++
		}
	}
	if existing != 1 {
		t.Fatalf("expected exactly one router to join the existing conversation, got %d", existing)
	}

	repo.mu.Lock()
	open := 0
	for _, conv := range repo.conversations {
		if conv.LeadID == "lead-1" && conv.Status != model.ConversationStatusClosed {
			open++
		}
	}
	repo.mu.Unlock()
	if open != 1 {
		t.Fatalf("expected one open conversation for lead-1, got %d", open)
	}

	entries, err := routerA.ListQueue(context.Background(), "sales")
	if err != nil {
		t.Fatalf("ListQueue returned error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected a single waiting entry, got %d", len(entries))
	}
}

func TestCloseFreesLeadForNewConversation(t *testing.T) {
	repo := newMemoryRepository()
	repo.addLead("lead-1", "sales")
	service := newTestService(repo, &recordingEvents{})

	first, err := service.Enqueue(context.Background(), EnqueueParams{LeadID: "lead-1"})
	if err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}
	if _, err := service.CloseConversation(context.Background(), first.Conversation.ConversationID, "resolved"); err != nil {
		t.Fatalf("CloseConversation returned error: %v", err)
	}

	second, err := service.Enqueue(context.Background(), EnqueueParams{LeadID: "lead-1"})
	if err != nil {
		t.Fatalf("Enqueue after close returned error: %v", err)
	}
	if second.Existing {
		t.Fatalf("expected a fresh conversation after close")
	}
	if second.Conversation.ConversationID == first.Conversation.ConversationID {
		t.Fatalf("expected a new conversation id")
	}
}

func TestEnqueueReturnsExistingOpenConversation(t *testing.T) {
	repo := newMemoryRepository()
	repo.addLead("lead-1", "sales")
	service := newTestService(repo, &recordingEvents{})

	first, err := service.Enqueue(context.Background(), EnqueueParams{LeadID: "lead-1"})
	if err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}

	second, err := service.Enqueue(context.Background(), EnqueueParams{LeadID: "lead-1"})
	if err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}
	if !second.Existing {
		t.Fatalf("expected Existing for the second enqueue")
	}
	if second.Conversation.ConversationID != first.Conversation.ConversationID {
		t.Fatalf("expected the same conversation back")
	}

	entries, _ := service.ListQueue(context.Background(), "sales")
	if len(entries) != 1 {
		t.Fatalf("expected a single waiting entry, got %d", len(entries))
	}
}

func TestEnqueueAssignsLeastLoadedAgent(t *testing.T) {
	repo := newMemoryRepository()
	repo.addLead("lead-1", "sales")
	repo.addAgent("agent-busy", "sales", true, 3, 5)
	repo.addAgent("agent-idle", "sales", true, 0, 5)
	service := newTestService(repo, &recordingEvents{})

	result, err := service.Enqueue(context.Background(), EnqueueParams{LeadID: "lead-1"})
	if err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}
	if result.Conversation.Status != model.ConversationStatusActive {
		t.Fatalf("expected active conversation, got %q", result.Conversation.Status)
	}
	if result.Conversation.AssignedAgentID != "agent-idle" {
		t.Fatalf("expected least loaded agent, got %q", result.Conversation.AssignedAgentID)
	}
	if result.Entry == nil || result.Entry.Status != model.QueueEntryStatusAssigned {
		t.Fatalf("expected the returned entry to reflect the assignment, got %+v", result.Entry)
	}
	if result.Entry.AssignedAt == "" {
		t.Fatalf("expected assignedAt on the returned entry")
	}
	if repo.agentCount("agent-idle") != 1 {
		t.Fatalf("expected agent-idle count 1, got %d", repo.agentCount("agent-idle"))
	}
	if repo.agentCount("agent-busy") != 3 {
		t.Fatalf("expected agent-busy count unchanged, got %d", repo.agentCount("agent-busy"))
	}
}

func TestAssignmentOrderPriorityThenFIFO(t *testing.T) {
	repo := newMemoryRepository()
	service := newTestService(repo, &recordingEvents{})

	// A and C at default priority, B urgent, arrival order A B C.
	convByLead := make(map[string]string)
	for _, c := range []struct {
		lead     string
		priority int
	}{
		{"lead-A", 0},
		{"lead-B", 5},
		{"lead-C", 0},
	} {
		repo.addLead(c.lead, "sales")
		result, err := service.Enqueue(context.Background(), EnqueueParams{LeadID: c.lead, Priority: c.priority})
		if err != nil {
			t.Fatalf("Enqueue %s returned error: %v", c.lead, err)
		}
		convByLead[c.lead] = result.Conversation.ConversationID
	}

	repo.addAgent("agent-1", "sales", true, 0, 10)

	var order []string
	for i := 0; i < 3; i++ {
		assigned, err := service.TryAssignNext(context.Background(), "sales")
		if err != nil {
			t.Fatalf("TryAssignNext returned error: %v", err)
		}
		if !assigned {
			t.Fatalf("expected assignment %d to succeed", i)
		}
		conversations, _ := service.ListConversations(context.Background(), "agent-1", 0)
		seen := make(map[string]bool, len(order))
		for _, id := range order {
			seen[id] = true
		}
		for _, conv := range conversations {
			if !seen[conv.ConversationID] {
				order = append(order, conv.ConversationID)
			}
		}
	}

	want := []string{convByLead["lead-B"], convByLead["lead-A"], convByLead["lead-C"]}
	if len(order) != 3 {
		t.Fatalf("expected 3 assignments, got %d", len(order))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("assignment %d: expected %s, got %s", i, want[i], order[i])
		}
	}
}

func TestAgentCapacityNeverExceeded(t *testing.T) {
	repo := newMemoryRepository()
	repo.addAgent("agent-1", "sales", true, 0, 3)
	service := newTestService(repo, &recordingEvents{})

	const leads = 10
	var wg sync.WaitGroup
	wg.Add(leads)
	for i := 0; i < leads; i++ {
		leadID := fmt.Sprintf("lead-%d", i)
		repo.addLead(leadID, "sales")
		go func(id string) {
			defer wg.Done()
			if _, err := service.Enqueue(context.Background(), EnqueueParams{LeadID: id}); err != nil {
				t.Errorf("Enqueue %s returned error: %v", id, err)
			}
		}(leadID)
	}
	wg.Wait()

	if count := repo.agentCount("agent-1"); count != 3 {
		t.Fatalf("expected agent at capacity 3, got %d", count)
	}

	entries, err := service.ListQueue(context.Background(), "sales")
	if err != nil {
		t.Fatalf("ListQueue returned error: %v", err)
	}
	if len(entries) != leads-3 {
		t.Fatalf("expected %d waiting entries, got %d", leads-3, len(entries))
	}
}

func TestCloseReleasesCapacityAndAssignsNext(t *testing.T) {
	repo := newMemoryRepository()
	repo.addLead("lead-1", "sales")
	repo.addLead("lead-2", "sales")
	repo.addAgent("agent-1", "sales", true, 0, 1)
	service := newTestService(repo, &recordingEvents{})

	first, err := service.Enqueue(context.Background(), EnqueueParams{LeadID: "lead-1"})
	if err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}
	if first.Conversation.Status != model.ConversationStatusActive {
		t.Fatalf("expected first conversation active")
	}

	second, err := service.Enqueue(context.Background(), EnqueueParams{LeadID: "lead-2"})
	if err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}
	if second.Conversation.Status != model.ConversationStatusQueued {
		t.Fatalf("expected second conversation to wait")
	}

	closed, err := service.CloseConversation(context.Background(), first.Conversation.ConversationID, "resolved")
	if err != nil {
		t.Fatalf("CloseConversation returned error: %v", err)
	}
	if closed.Status != model.ConversationStatusClosed || closed.ClosedReason != "resolved" {
		t.Fatalf("unexpected closed conversation: %+v", closed)
	}

	promoted, err := service.GetConversation(context.Background(), second.Conversation.ConversationID)
	if err != nil {
		t.Fatalf("GetConversation returned error: %v", err)
	}
	if promoted.Status != model.ConversationStatusActive || promoted.AssignedAgentID != "agent-1" {
		t.Fatalf("expected the waiting conversation to take the freed slot, got %+v", promoted)
	}
	if repo.agentCount("agent-1") != 1 {
		t.Fatalf("expected agent count 1 after close and reassign, got %d", repo.agentCount("agent-1"))
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	repo := newMemoryRepository()
	repo.addLead("lead-1", "sales")
	repo.addAgent("agent-1", "sales", true, 0, 2)
	service := newTestService(repo, &recordingEvents{})

	result, err := service.Enqueue(context.Background(), EnqueueParams{LeadID: "lead-1"})
	if err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}

	if _, err := service.CloseConversation(context.Background(), result.Conversation.ConversationID, "resolved"); err != nil {
		t.Fatalf("first close returned error: %v", err)
	}
	if _, err := service.CloseConversation(context.Background(), result.Conversation.ConversationID, "resolved"); err != nil {
		t.Fatalf("second close returned error: %v", err)
	}
	if count := repo.agentCount("agent-1"); count != 0 {
		t.Fatalf("expected capacity released exactly once, got count %d", count)
	}
}

func TestClosePaymentMovesLeadToPostSales(t *testing.T) {
	repo := newMemoryRepository()
	repo.addLead("lead-1", "sales")
	repo.addAgent("agent-1", "sales", true, 0, 2)
	events := &recordingEvents{}
	service := newTestService(repo, events)

	result, err := service.Enqueue(context.Background(), EnqueueParams{LeadID: "lead-1"})
	if err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}

	if _, err := service.CloseConversation(context.Background(), result.Conversation.ConversationID, model.CloseReasonPayment); err != nil {
		t.Fatalf("CloseConversation returned error: %v", err)
	}

	lead, err := repo.GetLead(context.Background(), "lead-1")
	if err != nil {
		t.Fatalf("GetLead returned error: %v", err)
	}
	if lead.Pipeline != "post-sales" {
		t.Fatalf("expected lead in post-sales pipeline, got %q", lead.Pipeline)
	}

	events.mu.Lock()
	leadEvents := len(events.leads)
	events.mu.Unlock()
	if leadEvents != 1 {
		t.Fatalf("expected one lead update event, got %d", leadEvents)
	}
}

func TestTransferConversation(t *testing.T) {
	repo := newMemoryRepository()
	repo.addLead("lead-1", "sales")
	repo.addAgent("agent-1", "sales", true, 0, 2)
	repo.addAgent("agent-2", "sales", true, 2, 2)
	repo.addAgent("agent-3", "sales", true, 0, 2)
	service := newTestService(repo, &recordingEvents{})

	result, err := service.Enqueue(context.Background(), EnqueueParams{LeadID: "lead-1"})
	if err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}
	if result.Conversation.AssignedAgentID != "agent-1" && result.Conversation.AssignedAgentID != "agent-3" {
		t.Fatalf("unexpected initial assignment: %q", result.Conversation.AssignedAgentID)
	}
	origin := result.Conversation.AssignedAgentID

	// A full target must reject the transfer.
	_, err = service.TransferConversation(context.Background(), result.Conversation.ConversationID, "agent-2")
	var svcErr *Error
	if !errors.As(err, &svcErr) || svcErr.Code != ErrorCodeConflict {
		t.Fatalf("expected conflict for full agent, got %v", err)
	}

	target := "agent-3"
	if origin == "agent-3" {
		target = "agent-1"
	}
	conv, err := service.TransferConversation(context.Background(), result.Conversation.ConversationID, target)
	if err != nil {
		t.Fatalf("TransferConversation returned error: %v", err)
	}
	if conv.AssignedAgentID != target {
		t.Fatalf("expected conversation on %s, got %q", target, conv.AssignedAgentID)
	}
	if repo.agentCount(origin) != 0 {
		t.Fatalf("expected origin agent released, got %d", repo.agentCount(origin))
	}
	if repo.agentCount(target) != 1 {
		t.Fatalf("expected target agent holding one chat, got %d", repo.agentCount(target))
	}
}

func TestAgentConnectedDrainsQueue(t *testing.T) {
	repo := newMemoryRepository()
	repo.addAgent("agent-1", "sales", false, 0, 2)
	service := newTestService(repo, &recordingEvents{})

	for _, lead := range []string{"lead-1", "lead-2", "lead-3"} {
		repo.addLead(lead, "sales")
		if _, err := service.Enqueue(context.Background(), EnqueueParams{LeadID: lead}); err != nil {
			t.Fatalf("Enqueue %s returned error: %v", lead, err)
		}
	}

	if err := service.AgentConnected(context.Background(), "agent-1"); err != nil {
		t.Fatalf("AgentConnected returned error: %v", err)
	}

	if count := repo.agentCount("agent-1"); count != 2 {
		t.Fatalf("expected agent filled to capacity 2, got %d", count)
	}
	entries, _ := service.ListQueue(context.Background(), "sales")
	if len(entries) != 1 {
		t.Fatalf("expected one lead still waiting, got %d", len(entries))
	}
}

func TestAgentDisconnectedStopsAssignment(t *testing.T) {
	repo := newMemoryRepository()
	repo.addAgent("agent-1", "sales", true, 0, 5)
	service := newTestService(repo, &recordingEvents{})

	if err := service.AgentDisconnected(context.Background(), "agent-1"); err != nil {
		t.Fatalf("AgentDisconnected returned error: %v", err)
	}

	repo.addLead("lead-1", "sales")
	result, err := service.Enqueue(context.Background(), EnqueueParams{LeadID: "lead-1"})
	if err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}
	if result.Conversation.Status != model.ConversationStatusQueued {
		t.Fatalf("expected conversation to wait for an online agent, got %q", result.Conversation.Status)
	}
}
