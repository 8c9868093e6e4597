package routing

import (
	"context"
	"errors"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"lead-routing-backend/internal/database"
	"lead-routing-backend/internal/model"

	"github.com/google/uuid"
)

type ErrorCode string

const (
	ErrorCodeValidation ErrorCode = "validation_error"
	ErrorCodeNotFound   ErrorCode = "not_found"
	ErrorCodeConflict   ErrorCode = "conflict"
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

// Events receives routing state changes for fan-out to connected
// clients. Implementations must not block.
type Events interface {
	ConversationNew(conv model.ConversationItem, lead model.LeadItem)
	ConversationUpdated(conv model.ConversationItem, lead model.LeadItem)
	ConversationAssigned(conv model.ConversationItem, lead model.LeadItem)
	QueueUpdate(entry model.QueueEntryItem)
	LeadUpdated(lead model.LeadItem)
}

type EnqueueParams struct {
	LeadID   string
	Pipeline string
	Priority int
}

type EnqueueResult struct {
	Conversation model.ConversationItem
	Entry        *model.QueueEntryItem
	// Existing reports that the lead already had an open conversation,
	// so nothing new was queued.
	Existing bool
}

type Service struct {
	repo              Repository
	events            Events
	postSalesPipeline string
	now               func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(db *database.Database, events Events, postSalesPipeline string) *Service {
	return NewWithRepository(NewDynamoRepository(db), events, postSalesPipeline, time.Now)
}

func NewWithRepository(repo Repository, events Events, postSalesPipeline string, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:              repo,
		events:            events,
		postSalesPipeline: postSalesPipeline,
		now:               now,
		locks:             make(map[string]*sync.Mutex),
	}
}

// pipelineLock serializes the select-then-write section per pipeline.
// The conditional writes in the repository remain the cross-process
// guard; this lock just keeps a single router from racing itself.
func (s *Service) pipelineLock(pipeline string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[pipeline]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[pipeline] = lock
	}
	return lock
}

// Enqueue creates a queued conversation and a waiting queue entry for
// the lead, then kicks an assignment pass. A lead with an open
// conversation gets that conversation back instead of a second one.
func (s *Service) Enqueue(ctx context.Context, params EnqueueParams) (EnqueueResult, error) {
	leadID := strings.TrimSpace(params.LeadID)
	if leadID == "" {
		return EnqueueResult{}, newError(ErrorCodeValidation, "leadId is required", nil)
	}

	lead, err := s.repo.GetLead(ctx, leadID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return EnqueueResult{}, newError(ErrorCodeNotFound, "lead not found", err)
		}
		return EnqueueResult{}, newError(ErrorCodeInternal, "failed to load lead", err)
	}

	pipeline := strings.TrimSpace(params.Pipeline)
	if pipeline == "" {
		pipeline = lead.Pipeline
	}
	if pipeline == "" {
		return EnqueueResult{}, newError(ErrorCodeValidation, "pipeline is required", nil)
	}

	lock := s.pipelineLock(pipeline)
	lock.Lock()

	if existing, err := s.repo.GetOpenConversationByLead(ctx, leadID); err == nil {
		lock.Unlock()
		return EnqueueResult{Conversation: existing, Existing: true}, nil
	} else if !errors.Is(err, ErrNotFound) {
		lock.Unlock()
		return EnqueueResult{}, newError(ErrorCodeInternal, "failed to check open conversations", err)
	}

	now := s.now().UTC()
	nowStr := now.Format(time.RFC3339)

	conv := model.ConversationItem{
		ConversationID: uuid.NewString(),
		LeadID:         leadID,
		Pipeline:       pipeline,
		Status:         model.ConversationStatusQueued,
		CreatedAt:      nowStr,
		UpdatedAt:      nowStr,
		LastMessageAt:  nowStr,
	}

	// The claim is the cross-process guard. The check above only covers
	// this router; another binary sharing the table can pass its own
	// check at the same time, and exactly one of the two claims wins.
	if err := s.repo.ClaimOpenConversation(ctx, model.OpenConversationItem{
		LeadID:         leadID,
		ConversationID: conv.ConversationID,
		CreatedAt:      nowStr,
	}); err != nil {
		lock.Unlock()
		if errors.Is(err, ErrConflict) {
			return s.existingConversation(ctx, leadID)
		}
		return EnqueueResult{}, newError(ErrorCodeInternal, "failed to claim open conversation slot", err)
	}

	if err := s.repo.CreateConversation(ctx, conv); err != nil {
		s.releaseClaim(ctx, leadID, conv.ConversationID)
		lock.Unlock()
		return EnqueueResult{}, newError(ErrorCodeInternal, "failed to create conversation", err)
	}

	entry := model.QueueEntryItem{
		EntryID:        uuid.NewString(),
		LeadID:         leadID,
		ConversationID: conv.ConversationID,
		Pipeline:       pipeline,
		Status:         model.QueueEntryStatusWaiting,
		Priority:       params.Priority,
		CreatedAt:      nowStr,
	}
	if err := s.repo.CreateQueueEntry(ctx, entry); err != nil {
		lock.Unlock()
		return EnqueueResult{}, newError(ErrorCodeInternal, "failed to create queue entry", err)
	}

	recordEnqueue(pipeline)
	lock.Unlock()

	if s.events != nil {
		s.events.ConversationNew(conv, lead)
		s.events.QueueUpdate(entry)
	}

	assigned, err := s.TryAssignNext(ctx, pipeline)
	if err != nil {
		log.Printf("assignment pass after enqueue failed: %v", err)
	}
	if assigned {
		if updated, err := s.repo.GetConversation(ctx, conv.ConversationID); err == nil {
			conv = updated
		}
		if updatedEntry, err := s.repo.GetQueueEntry(ctx, entry.EntryID); err == nil {
			entry = updatedEntry
		}
	}

	return EnqueueResult{Conversation: conv, Entry: &entry}, nil
}

// existingConversation reads the conversation behind a lost claim. The
// winner may not have written the conversation yet, so a few short
// reads bridge the gap between its claim and its put.
func (s *Service) existingConversation(ctx context.Context, leadID string) (EnqueueResult, error) {
	var lastErr error
	for attempt := 0; attempt < 5; attempt++ {
		conv, err := s.repo.GetOpenConversationByLead(ctx, leadID)
		if err == nil {
			return EnqueueResult{Conversation: conv, Existing: true}, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return EnqueueResult{}, newError(ErrorCodeInternal, "failed to load open conversation", err)
		}
		lastErr = err
		time.Sleep(20 * time.Millisecond)
	}
	return EnqueueResult{}, newError(ErrorCodeConflict, "lead is being enqueued by another router", lastErr)
}

func (s *Service) releaseClaim(ctx context.Context, leadID, conversationID string) {
	if err := s.repo.ReleaseOpenConversation(ctx, leadID, conversationID); err != nil && !errors.Is(err, ErrConflict) {
		log.Printf("failed to release open conversation claim for lead %s: %v", leadID, err)
	}
}

// TryAssignNext pairs the highest-ranked waiting entry with the least
// loaded eligible agent. A lost conditional write releases whatever was
// reserved and the pass retries once against fresh state.
func (s *Service) TryAssignNext(ctx context.Context, pipeline string) (bool, error) {
	pipeline = strings.TrimSpace(pipeline)
	if pipeline == "" {
		return false, newError(ErrorCodeValidation, "pipeline is required", nil)
	}

	lock := s.pipelineLock(pipeline)
	lock.Lock()
	defer lock.Unlock()

	for attempt := 0; attempt < 2; attempt++ {
		assigned, retry, err := s.assignOnce(ctx, pipeline)
		if err != nil {
			return false, err
		}
		if assigned {
			return true, nil
		}
		if !retry {
			return false, nil
		}
		recordConflictRetry()
	}
	return false, nil
}

func (s *Service) assignOnce(ctx context.Context, pipeline string) (assigned, retry bool, err error) {
	entries, err := s.repo.ListWaitingEntries(ctx, pipeline)
	if err != nil {
		return false, false, newError(ErrorCodeInternal, "failed to list queue entries", err)
	}
	observeQueueDepth(pipeline, len(entries))
	if len(entries) == 0 {
		return false, false, nil
	}
	sortEntries(entries)

	agents, err := s.repo.ListEligibleAgents(ctx, pipeline)
	if err != nil {
		return false, false, newError(ErrorCodeInternal, "failed to list agents", err)
	}
	if len(agents) == 0 {
		return false, false, nil
	}
	sortAgents(agents)

	entry := entries[0]
	agent := agents[0]
	nowStr := s.now().UTC().Format(time.RFC3339)

	if err := s.repo.IncrementAgentChats(ctx, agent.AgentID); err != nil {
		if errors.Is(err, ErrConflict) {
			return false, true, nil
		}
		return false, false, newError(ErrorCodeInternal, "failed to reserve agent capacity", err)
	}

	if err := s.repo.ClaimQueueEntry(ctx, entry.EntryID, nowStr); err != nil {
		if decErr := s.repo.DecrementAgentChats(ctx, agent.AgentID); decErr != nil && !errors.Is(decErr, ErrConflict) {
			log.Printf("failed to release reserved capacity for agent %s: %v", agent.AgentID, decErr)
		}
		if errors.Is(err, ErrConflict) {
			return false, true, nil
		}
		return false, false, newError(ErrorCodeInternal, "failed to claim queue entry", err)
	}

	if err := s.repo.ActivateConversation(ctx, entry.ConversationID, agent.AgentID, nowStr); err != nil {
		if decErr := s.repo.DecrementAgentChats(ctx, agent.AgentID); decErr != nil && !errors.Is(decErr, ErrConflict) {
			log.Printf("failed to release reserved capacity for agent %s: %v", agent.AgentID, decErr)
		}
		if errors.Is(err, ErrConflict) {
			// Conversation closed while waiting. The entry stays claimed
			// so it never comes back; move on to the next one.
			return false, true, nil
		}
		return false, false, newError(ErrorCodeInternal, "failed to activate conversation", err)
	}

	recordAssignment(pipeline)
	observeQueueDepth(pipeline, len(entries)-1)

	if s.events != nil {
		entry.Status = model.QueueEntryStatusAssigned
		entry.AssignedAt = nowStr
		conv, convErr := s.repo.GetConversation(ctx, entry.ConversationID)
		lead, leadErr := s.repo.GetLead(ctx, entry.LeadID)
		if convErr == nil && leadErr == nil {
			s.events.ConversationUpdated(conv, lead)
			s.events.ConversationAssigned(conv, lead)
		}
		s.events.QueueUpdate(entry)
	}

	return true, false, nil
}

// CloseConversation closes in any state and releases the agent's slot.
// Closing an already closed conversation is a no-op. Reason "payment"
// also moves the lead to the post-sales pipeline.
func (s *Service) CloseConversation(ctx context.Context, conversationID, reason string) (model.ConversationItem, error) {
	conv, err := s.getConversation(ctx, conversationID)
	if err != nil {
		return model.ConversationItem{}, err
	}
	if conv.Status == model.ConversationStatusClosed {
		return conv, nil
	}

	nowStr := s.now().UTC().Format(time.RFC3339)
	if err := s.repo.CloseConversation(ctx, conversationID, reason, nowStr); err != nil {
		if errors.Is(err, ErrConflict) {
			// Someone else closed it first.
			return s.getConversation(ctx, conversationID)
		}
		return model.ConversationItem{}, newError(ErrorCodeInternal, "failed to close conversation", err)
	}

	s.releaseClaim(ctx, conv.LeadID, conversationID)

	if conv.AssignedAgentID != "" {
		if err := s.repo.DecrementAgentChats(ctx, conv.AssignedAgentID); err != nil && !errors.Is(err, ErrConflict) {
			log.Printf("failed to release capacity for agent %s: %v", conv.AssignedAgentID, err)
		}
	}

	conv.Status = model.ConversationStatusClosed
	conv.ClosedReason = reason
	conv.UpdatedAt = nowStr

	lead, leadErr := s.repo.GetLead(ctx, conv.LeadID)
	if leadErr != nil {
		log.Printf("failed to load lead %s while closing conversation: %v", conv.LeadID, leadErr)
	}

	if reason == model.CloseReasonPayment && s.postSalesPipeline != "" && leadErr == nil && lead.Pipeline != s.postSalesPipeline {
		if err := s.repo.SetLeadPipeline(ctx, lead.LeadID, s.postSalesPipeline, nowStr); err != nil {
			log.Printf("failed to move lead %s to post-sales: %v", lead.LeadID, err)
		} else {
			lead.Pipeline = s.postSalesPipeline
			lead.UpdatedAt = nowStr
			if s.events != nil {
				s.events.LeadUpdated(lead)
			}
		}
	}

	if s.events != nil {
		s.events.ConversationUpdated(conv, lead)
	}

	if _, err := s.TryAssignNext(ctx, conv.Pipeline); err != nil {
		log.Printf("assignment pass after close failed: %v", err)
	}

	return conv, nil
}

// TransferConversation rebinds an active conversation to another agent.
// The target's capacity is reserved before the old agent's slot is
// released, so a full target rejects the transfer.
func (s *Service) TransferConversation(ctx context.Context, conversationID, newAgentID string) (model.ConversationItem, error) {
	newAgentID = strings.TrimSpace(newAgentID)
	if newAgentID == "" {
		return model.ConversationItem{}, newError(ErrorCodeValidation, "newAgentId is required", nil)
	}

	conv, err := s.getConversation(ctx, conversationID)
	if err != nil {
		return model.ConversationItem{}, err
	}
	if conv.Status != model.ConversationStatusActive {
		return model.ConversationItem{}, newError(ErrorCodeConflict, "only active conversations can be transferred", nil)
	}
	if conv.AssignedAgentID == newAgentID {
		return conv, nil
	}

	agent, err := s.repo.GetAgent(ctx, newAgentID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.ConversationItem{}, newError(ErrorCodeNotFound, "agent not found", err)
		}
		return model.ConversationItem{}, newError(ErrorCodeInternal, "failed to load agent", err)
	}
	if !agent.IsActive {
		return model.ConversationItem{}, newError(ErrorCodeConflict, "agent is deactivated", nil)
	}

	if err := s.repo.IncrementAgentChats(ctx, newAgentID); err != nil {
		if errors.Is(err, ErrConflict) {
			return model.ConversationItem{}, newError(ErrorCodeConflict, "agent has no free capacity", err)
		}
		return model.ConversationItem{}, newError(ErrorCodeInternal, "failed to reserve agent capacity", err)
	}

	nowStr := s.now().UTC().Format(time.RFC3339)
	if err := s.repo.SetConversationAgent(ctx, conversationID, newAgentID, nowStr); err != nil {
		if decErr := s.repo.DecrementAgentChats(ctx, newAgentID); decErr != nil && !errors.Is(decErr, ErrConflict) {
			log.Printf("failed to release reserved capacity for agent %s: %v", newAgentID, decErr)
		}
		return model.ConversationItem{}, newError(ErrorCodeInternal, "failed to reassign conversation", err)
	}

	if old := conv.AssignedAgentID; old != "" {
		if err := s.repo.DecrementAgentChats(ctx, old); err != nil && !errors.Is(err, ErrConflict) {
			log.Printf("failed to release capacity for agent %s: %v", old, err)
		}
	}

	conv.AssignedAgentID = newAgentID
	conv.UpdatedAt = nowStr

	if s.events != nil {
		lead, leadErr := s.repo.GetLead(ctx, conv.LeadID)
		if leadErr == nil {
			s.events.ConversationUpdated(conv, lead)
			s.events.ConversationAssigned(conv, lead)
		}
	}

	return conv, nil
}

// AgentConnected marks the agent online and drains whatever their
// pipeline has waiting.
func (s *Service) AgentConnected(ctx context.Context, agentID string) error {
	agent, err := s.repo.GetAgent(ctx, agentID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return newError(ErrorCodeNotFound, "agent not found", err)
		}
		return newError(ErrorCodeInternal, "failed to load agent", err)
	}

	if err := s.repo.SetAgentOnline(ctx, agentID, true); err != nil {
		return newError(ErrorCodeInternal, "failed to mark agent online", err)
	}

	for {
		assigned, err := s.TryAssignNext(ctx, agent.PipelineType)
		if err != nil {
			log.Printf("assignment pass after agent %s connected failed: %v", agentID, err)
			break
		}
		if !assigned {
			break
		}
	}
	return nil
}

func (s *Service) AgentDisconnected(ctx context.Context, agentID string) error {
	if err := s.repo.SetAgentOnline(ctx, agentID, false); err != nil {
		return newError(ErrorCodeInternal, "failed to mark agent offline", err)
	}
	return nil
}

// RecordMessageActivity bumps the conversation's last-message time and
// broadcasts the updated conversation.
func (s *Service) RecordMessageActivity(ctx context.Context, conversationID string, at time.Time) (model.ConversationItem, error) {
	atStr := at.UTC().Format(time.RFC3339)
	if err := s.repo.TouchConversation(ctx, conversationID, atStr); err != nil {
		return model.ConversationItem{}, newError(ErrorCodeInternal, "failed to update conversation activity", err)
	}

	conv, err := s.getConversation(ctx, conversationID)
	if err != nil {
		return model.ConversationItem{}, err
	}

	if s.events != nil {
		if lead, leadErr := s.repo.GetLead(ctx, conv.LeadID); leadErr == nil {
			s.events.ConversationUpdated(conv, lead)
		}
	}
	return conv, nil
}

func (s *Service) GetConversation(ctx context.Context, conversationID string) (model.ConversationItem, error) {
	return s.getConversation(ctx, conversationID)
}

func (s *Service) OpenConversationForLead(ctx context.Context, leadID string) (model.ConversationItem, error) {
	conv, err := s.repo.GetOpenConversationByLead(ctx, leadID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.ConversationItem{}, newError(ErrorCodeNotFound, "no open conversation for lead", err)
		}
		return model.ConversationItem{}, newError(ErrorCodeInternal, "failed to load conversation", err)
	}
	return conv, nil
}

func (s *Service) ListQueue(ctx context.Context, pipeline string) ([]model.QueueEntryItem, error) {
	pipeline = strings.TrimSpace(pipeline)
	if pipeline == "" {
		return nil, newError(ErrorCodeValidation, "pipeline is required", nil)
	}
	entries, err := s.repo.ListWaitingEntries(ctx, pipeline)
	if err != nil {
		return nil, newError(ErrorCodeInternal, "failed to list queue entries", err)
	}
	sortEntries(entries)
	return entries, nil
}

func (s *Service) ListConversations(ctx context.Context, agentID string, limit int) ([]model.ConversationItem, error) {
	var (
		conversations []model.ConversationItem
		err           error
	)
	if agentID == "" {
		conversations, err = s.repo.ListConversations(ctx, limit)
	} else {
		conversations, err = s.repo.ListConversationsByAgent(ctx, agentID, limit)
	}
	if err != nil {
		return nil, newError(ErrorCodeInternal, "failed to list conversations", err)
	}

	sort.Slice(conversations, func(i, j int) bool {
		return conversations[i].LastMessageAt > conversations[j].LastMessageAt
	})
	return conversations, nil
}

func (s *Service) getConversation(ctx context.Context, conversationID string) (model.ConversationItem, error) {
	if strings.TrimSpace(conversationID) == "" {
		return model.ConversationItem{}, newError(ErrorCodeValidation, "conversationId is required", nil)
	}
	conv, err := s.repo.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.ConversationItem{}, newError(ErrorCodeNotFound, "conversation not found", err)
		}
		return model.ConversationItem{}, newError(ErrorCodeInternal, "failed to load conversation", err)
	}
	return conv, nil
}

// sortEntries orders the queue: highest priority first, then oldest.
func sortEntries(entries []model.QueueEntryItem) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Priority != entries[j].Priority {
			return entries[i].Priority > entries[j].Priority
		}
		if entries[i].CreatedAt != entries[j].CreatedAt {
			return entries[i].CreatedAt < entries[j].CreatedAt
		}
		return entries[i].EntryID < entries[j].EntryID
	})
}

// sortAgents orders candidates by load, ties broken by id so repeated
// passes pick deterministically.
func sortAgents(agents []model.AgentItem) {
	sort.Slice(agents, func(i, j int) bool {
		if agents[i].CurrentChatCount != agents[j].CurrentChatCount {
			return agents[i].CurrentChatCount < agents[j].CurrentChatCount
		}
		return agents[i].AgentID < agents[j].AgentID
	})
}
