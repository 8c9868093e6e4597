package routing

import (
	"context"
	"errors"

	"lead-routing-backend/internal/database"
	"lead-routing-backend/internal/model"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

var (
	ErrNotFound = errors.New("routing repository: not found")
	// ErrConflict reports a conditional write that lost its race. Callers
	// re-read and retry once instead of failing the operation outright.
	ErrConflict = errors.New("routing repository: conflict")
)

type Repository interface {
	GetConversation(ctx context.Context, conversationID string) (model.ConversationItem, error)
	// GetOpenConversationByLead returns the lead's queued or active
	// conversation, or ErrNotFound when every conversation is closed.
	GetOpenConversationByLead(ctx context.Context, leadID string) (model.ConversationItem, error)
	CreateConversation(ctx context.Context, conv model.ConversationItem) error
	// ClaimOpenConversation reserves the lead's open-conversation slot
	// with a conditional write keyed on leadId. ErrConflict when another
	// router, possibly in another process, already holds the slot.
	ClaimOpenConversation(ctx context.Context, claim model.OpenConversationItem) error
	// ReleaseOpenConversation frees the slot, but only while it still
	// points at the given conversation. A slot re-claimed for a newer
	// conversation is left alone.
	ReleaseOpenConversation(ctx context.Context, leadID, conversationID string) error
	// ActivateConversation flips a non-closed conversation to active and
	// binds the agent. ErrConflict when the conversation closed first.
	ActivateConversation(ctx context.Context, conversationID, agentID, at string) error
	// CloseConversation is guarded on status <> closed so capacity is
	// released exactly once. ErrConflict when already closed.
	CloseConversation(ctx context.Context, conversationID, reason, at string) error
	SetConversationAgent(ctx context.Context, conversationID, agentID, at string) error
	TouchConversation(ctx context.Context, conversationID, lastMessageAt string) error
	ListConversations(ctx context.Context, limit int) ([]model.ConversationItem, error)
	ListConversationsByAgent(ctx context.Context, agentID string, limit int) ([]model.ConversationItem, error)

	CreateQueueEntry(ctx context.Context, entry model.QueueEntryItem) error
	GetQueueEntry(ctx context.Context, entryID string) (model.QueueEntryItem, error)
	ListWaitingEntries(ctx context.Context, pipeline string) ([]model.QueueEntryItem, error)
	// ClaimQueueEntry marks a waiting entry as assigned. ErrConflict when
	// another router claimed it first.
	ClaimQueueEntry(ctx context.Context, entryID, assignedAt string) error

	GetAgent(ctx context.Context, agentID string) (model.AgentItem, error)
	ListEligibleAgents(ctx context.Context, pipeline string) ([]model.AgentItem, error)
	// IncrementAgentChats reserves one slot of the agent's capacity.
	// ErrConflict when the agent is full, offline or deactivated.
	IncrementAgentChats(ctx context.Context, agentID string) error
	// DecrementAgentChats releases one slot, never dropping below zero.
	DecrementAgentChats(ctx context.Context, agentID string) error
	SetAgentOnline(ctx context.Context, agentID string, online bool) error

	GetLead(ctx context.Context, leadID string) (model.LeadItem, error)
	SetLeadPipeline(ctx context.Context, leadID, pipeline, updatedAt string) error
}

type DynamoRepository struct {
	db *database.Database
}

func NewDynamoRepository(db *database.Database) Repository {
	return &DynamoRepository{db: db}
}

func (r *DynamoRepository) GetConversation(ctx context.Context, conversationID string) (model.ConversationItem, error) {
	var conv model.ConversationItem
	err := r.db.Client.GetItem(
		ctx,
		model.ConversationsTable,
		map[string]types.AttributeValue{
			"conversationId": &types.AttributeValueMemberS{Value: conversationID},
		},
		&conv,
	)
	if err != nil {
		if isNotFound(err) {
			return model.ConversationItem{}, ErrNotFound
		}
		return model.ConversationItem{}, err
	}
	return conv, nil
}

func (r *DynamoRepository) GetOpenConversationByLead(ctx context.Context, leadID string) (model.ConversationItem, error) {
	items, err := r.db.Client.QueryItemsWithFilter(
		ctx,
		model.ConversationsTable,
		aws.String("byLead"),
		"leadId = :leadId",
		aws.String("#status <> :closed"),
		map[string]types.AttributeValue{
			":leadId": &types.AttributeValueMemberS{Value: leadID},
			":closed": &types.AttributeValueMemberS{Value: string(model.ConversationStatusClosed)},
		},
		map[string]string{"#status": "status"},
	)
	if err != nil {
		return model.ConversationItem{}, err
	}
	if len(items) == 0 {
		return model.ConversationItem{}, ErrNotFound
	}

	var conv model.ConversationItem
	if err := attributevalue.UnmarshalMap(items[0], &conv); err != nil {
		return model.ConversationItem{}, err
	}
	return conv, nil
}

func (r *DynamoRepository) CreateConversation(ctx context.Context, conv model.ConversationItem) error {
	return r.db.Client.PutItemIfAbsent(ctx, model.ConversationsTable, "conversationId", conv)
}

func (r *DynamoRepository) ClaimOpenConversation(ctx context.Context, claim model.OpenConversationItem) error {
	return translate(r.db.Client.PutItemIfAbsent(ctx, model.OpenConversationsTable, "leadId", claim))
}

func (r *DynamoRepository) ReleaseOpenConversation(ctx context.Context, leadID, conversationID string) error {
	err := r.db.Client.DeleteItemConditional(
		ctx,
		model.OpenConversationsTable,
		map[string]types.AttributeValue{
			"leadId": &types.AttributeValueMemberS{Value: leadID},
		},
		"conversationId = :conv",
		map[string]types.AttributeValue{
			":conv": &types.AttributeValueMemberS{Value: conversationID},
		},
		nil,
	)
	return translate(err)
}

func (r *DynamoRepository) ActivateConversation(ctx context.Context, conversationID, agentID, at string) error {
	err := r.db.Client.UpdateItemConditional(
		ctx,
		model.ConversationsTable,
		map[string]types.AttributeValue{
			"conversationId": &types.AttributeValueMemberS{Value: conversationID},
		},
		"SET #status = :active, #agent = :agent, #updatedAt = :at",
		"#status <> :closed",
		map[string]types.AttributeValue{
			":active": &types.AttributeValueMemberS{Value: string(model.ConversationStatusActive)},
			":agent":  &types.AttributeValueMemberS{Value: agentID},
			":at":     &types.AttributeValueMemberS{Value: at},
			":closed": &types.AttributeValueMemberS{Value: string(model.ConversationStatusClosed)},
		},
		map[string]string{
			"#status":    "status",
			"#agent":     "assignedAgentId",
			"#updatedAt": "updatedAt",
		},
		nil,
	)
	return translate(err)
}

func (r *DynamoRepository) CloseConversation(ctx context.Context, conversationID, reason, at string) error {
	err := r.db.Client.UpdateItemConditional(
		ctx,
		model.ConversationsTable,
		map[string]types.AttributeValue{
			"conversationId": &types.AttributeValueMemberS{Value: conversationID},
		},
		"SET #status = :closed, #reason = :reason, #updatedAt = :at",
		"#status <> :closed",
		map[string]types.AttributeValue{
			":closed": &types.AttributeValueMemberS{Value: string(model.ConversationStatusClosed)},
			":reason": &types.AttributeValueMemberS{Value: reason},
			":at":     &types.AttributeValueMemberS{Value: at},
		},
		map[string]string{
			"#status":    "status",
			"#reason":    "closedReason",
			"#updatedAt": "updatedAt",
		},
		nil,
	)
	return translate(err)
}

func (r *DynamoRepository) SetConversationAgent(ctx context.Context, conversationID, agentID, at string) error {
	return r.db.Client.UpdateItem(
		ctx,
		model.ConversationsTable,
		map[string]types.AttributeValue{
			"conversationId": &types.AttributeValueMemberS{Value: conversationID},
		},
		"SET #agent = :agent, #updatedAt = :at",
		map[string]types.AttributeValue{
			":agent": &types.AttributeValueMemberS{Value: agentID},
			":at":    &types.AttributeValueMemberS{Value: at},
		},
		map[string]string{
			"#agent":     "assignedAgentId",
			"#updatedAt": "updatedAt",
		},
		nil,
	)
}

func (r *DynamoRepository) TouchConversation(ctx context.Context, conversationID, lastMessageAt string) error {
	return r.db.Client.UpdateItem(
		ctx,
		model.ConversationsTable,
		map[string]types.AttributeValue{
			"conversationId": &types.AttributeValueMemberS{Value: conversationID},
		},
		"SET #lastMessageAt = :at, #updatedAt = :at",
		map[string]types.AttributeValue{
			":at": &types.AttributeValueMemberS{Value: lastMessageAt},
		},
		map[string]string{
			"#lastMessageAt": "lastMessageAt",
			"#updatedAt":     "updatedAt",
		},
		nil,
	)
}

func (r *DynamoRepository) ListConversations(ctx context.Context, limit int) ([]model.ConversationItem, error) {
	items, err := r.db.Client.ScanItems(
		ctx,
		model.ConversationsTable,
		"attribute_exists(conversationId)",
		nil,
		nil,
	)
	if err != nil {
		return nil, err
	}
	return unmarshalConversations(items, limit)
}

func (r *DynamoRepository) ListConversationsByAgent(ctx context.Context, agentID string, limit int) ([]model.ConversationItem, error) {
	items, err := r.db.Client.QueryItems(
		ctx,
		model.ConversationsTable,
		aws.String("byAgent"),
		"assignedAgentId = :agentId",
		map[string]types.AttributeValue{
			":agentId": &types.AttributeValueMemberS{Value: agentID},
		},
		nil,
		nil,
	)
	if err != nil {
		return nil, err
	}
	return unmarshalConversations(items, limit)
}

func (r *DynamoRepository) CreateQueueEntry(ctx context.Context, entry model.QueueEntryItem) error {
	return r.db.Client.PutItemIfAbsent(ctx, model.QueueEntriesTable, "entryId", entry)
}

func (r *DynamoRepository) GetQueueEntry(ctx context.Context, entryID string) (model.QueueEntryItem, error) {
	var entry model.QueueEntryItem
	err := r.db.Client.GetItem(
		ctx,
		model.QueueEntriesTable,
		map[string]types.AttributeValue{
			"entryId": &types.AttributeValueMemberS{Value: entryID},
		},
		&entry,
	)
	if err != nil {
		if isNotFound(err) {
			return model.QueueEntryItem{}, ErrNotFound
		}
		return model.QueueEntryItem{}, err
	}
	return entry, nil
}

func (r *DynamoRepository) ListWaitingEntries(ctx context.Context, pipeline string) ([]model.QueueEntryItem, error) {
	items, err := r.db.Client.QueryItemsWithFilter(
		ctx,
		model.QueueEntriesTable,
		aws.String("byPipeline"),
		"pipeline = :pipeline",
		aws.String("#status = :waiting"),
		map[string]types.AttributeValue{
			":pipeline": &types.AttributeValueMemberS{Value: pipeline},
			":waiting":  &types.AttributeValueMemberS{Value: string(model.QueueEntryStatusWaiting)},
		},
		map[string]string{"#status": "status"},
	)
	if err != nil {
		return nil, err
	}

	entries := make([]model.QueueEntryItem, 0, len(items))
	for _, item := range items {
		var entry model.QueueEntryItem
		if err := attributevalue.UnmarshalMap(item, &entry); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (r *DynamoRepository) ClaimQueueEntry(ctx context.Context, entryID, assignedAt string) error {
	err := r.db.Client.UpdateItemConditional(
		ctx,
		model.QueueEntriesTable,
		map[string]types.AttributeValue{
			"entryId": &types.AttributeValueMemberS{Value: entryID},
		},
		"SET #status = :assigned, #assignedAt = :at",
		"#status = :waiting",
		map[string]types.AttributeValue{
			":assigned": &types.AttributeValueMemberS{Value: string(model.QueueEntryStatusAssigned)},
			":waiting":  &types.AttributeValueMemberS{Value: string(model.QueueEntryStatusWaiting)},
			":at":       &types.AttributeValueMemberS{Value: assignedAt},
		},
		map[string]string{
			"#status":     "status",
			"#assignedAt": "assignedAt",
		},
		nil,
	)
	return translate(err)
}

func (r *DynamoRepository) GetAgent(ctx context.Context, agentID string) (model.AgentItem, error) {
	var agent model.AgentItem
	err := r.db.Client.GetItem(
		ctx,
		model.AgentsTable,
		map[string]types.AttributeValue{
			"agentId": &types.AttributeValueMemberS{Value: agentID},
		},
		&agent,
	)
	if err != nil {
		if isNotFound(err) {
			return model.AgentItem{}, ErrNotFound
		}
		return model.AgentItem{}, err
	}
	return agent, nil
}

func (r *DynamoRepository) ListEligibleAgents(ctx context.Context, pipeline string) ([]model.AgentItem, error) {
	items, err := r.db.Client.ScanItems(
		ctx,
		model.AgentsTable,
		"pipelineType = :pipeline AND isOnline = :online AND isActive = :active AND currentChatCount < maxConcurrentChats",
		map[string]types.AttributeValue{
			":pipeline": &types.AttributeValueMemberS{Value: pipeline},
			":online":   &types.AttributeValueMemberBOOL{Value: true},
			":active":   &types.AttributeValueMemberBOOL{Value: true},
		},
		nil,
	)
	if err != nil {
		return nil, err
	}

	agents := make([]model.AgentItem, 0, len(items))
	for _, item := range items {
		var agent model.AgentItem
		if err := attributevalue.UnmarshalMap(item, &agent); err != nil {
			return nil, err
		}
		agents = append(agents, agent)
	}
	return agents, nil
}

func (r *DynamoRepository) IncrementAgentChats(ctx context.Context, agentID string) error {
	err := r.db.Client.UpdateItemConditional(
		ctx,
		model.AgentsTable,
		map[string]types.AttributeValue{
			"agentId": &types.AttributeValueMemberS{Value: agentID},
		},
		"SET currentChatCount = currentChatCount + :one",
		"currentChatCount < maxConcurrentChats AND isOnline = :online AND isActive = :active",
		map[string]types.AttributeValue{
			":one":    &types.AttributeValueMemberN{Value: "1"},
			":online": &types.AttributeValueMemberBOOL{Value: true},
			":active": &types.AttributeValueMemberBOOL{Value: true},
		},
		nil,
		nil,
	)
	return translate(err)
}

func (r *DynamoRepository) DecrementAgentChats(ctx context.Context, agentID string) error {
	err := r.db.Client.UpdateItemConditional(
		ctx,
		model.AgentsTable,
		map[string]types.AttributeValue{
			"agentId": &types.AttributeValueMemberS{Value: agentID},
		},
		"SET currentChatCount = currentChatCount - :one",
		"currentChatCount > :zero",
		map[string]types.AttributeValue{
			":one":  &types.AttributeValueMemberN{Value: "1"},
			":zero": &types.AttributeValueMemberN{Value: "0"},
		},
		nil,
		nil,
	)
	return translate(err)
}

func (r *DynamoRepository) SetAgentOnline(ctx context.Context, agentID string, online bool) error {
	return r.db.Client.UpdateItem(
		ctx,
		model.AgentsTable,
		map[string]types.AttributeValue{
			"agentId": &types.AttributeValueMemberS{Value: agentID},
		},
		"SET isOnline = :online",
		map[string]types.AttributeValue{
			":online": &types.AttributeValueMemberBOOL{Value: online},
		},
		nil,
		nil,
	)
}

func (r *DynamoRepository) GetLead(ctx context.Context, leadID string) (model.LeadItem, error) {
	var lead model.LeadItem
	err := r.db.Client.GetItem(
		ctx,
		model.LeadsTable,
		map[string]types.AttributeValue{
			"leadId": &types.AttributeValueMemberS{Value: leadID},
		},
		&lead,
	)
	if err != nil {
		if isNotFound(err) {
			return model.LeadItem{}, ErrNotFound
		}
		return model.LeadItem{}, err
	}
	return lead, nil
}

func (r *DynamoRepository) SetLeadPipeline(ctx context.Context, leadID, pipeline, updatedAt string) error {
	return r.db.Client.UpdateItem(
		ctx,
		model.LeadsTable,
		map[string]types.AttributeValue{
			"leadId": &types.AttributeValueMemberS{Value: leadID},
		},
		"SET #pipeline = :pipeline, #updatedAt = :at",
		map[string]types.AttributeValue{
			":pipeline": &types.AttributeValueMemberS{Value: pipeline},
			":at":       &types.AttributeValueMemberS{Value: updatedAt},
		},
		map[string]string{
			"#pipeline":  "pipeline",
			"#updatedAt": "updatedAt",
		},
		nil,
	)
}

func unmarshalConversations(items []map[string]types.AttributeValue, limit int) ([]model.ConversationItem, error) {
	conversations := make([]model.ConversationItem, 0, len(items))
	for _, item := range items {
		var conv model.ConversationItem
		if err := attributevalue.UnmarshalMap(item, &conv); err != nil {
			return nil, err
		}
		conversations = append(conversations, conv)
	}
	if limit > 0 && len(conversations) > limit {
		conversations = conversations[:limit]
	}
	return conversations, nil
}

func translate(err error) error {
	if database.IsConditionFailed(err) {
		return ErrConflict
	}
	return err
}

func isNotFound(err error) bool {
	return database.IsItemNotFound(err)
}
