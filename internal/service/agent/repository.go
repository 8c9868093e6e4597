package agent

import (
	"context"
	"errors"
	"sort"
	"strconv"

	"lead-routing-backend/internal/database"
	"lead-routing-backend/internal/model"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

var ErrNotFound = errors.New("agent repository: not found")

type Repository interface {
	GetAgent(ctx context.Context, agentID string) (model.AgentItem, error)
	GetAgentByEmail(ctx context.Context, email string) (model.AgentItem, error)
	CreateAgent(ctx context.Context, agent model.AgentItem) error
	ListAgents(ctx context.Context) ([]model.AgentItem, error)
	SetActive(ctx context.Context, agentID string, active bool) error
	SetMaxConcurrentChats(ctx context.Context, agentID string, max int) error
}

type DynamoRepository struct {
	db *database.Database
}

func NewDynamoRepository(db *database.Database) Repository {
	return &DynamoRepository{db: db}
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

func (r *DynamoRepository) GetAgentByEmail(ctx context.Context, email string) (model.AgentItem, error) {
	items, err := r.db.Client.ScanItems(
		ctx,
		model.AgentsTable,
		"email = :email",
		map[string]types.AttributeValue{
			":email": &types.AttributeValueMemberS{Value: email},
		},
		nil,
	)
	if err != nil {
		return model.AgentItem{}, err
	}
	if len(items) == 0 {
		return model.AgentItem{}, ErrNotFound
	}

	var agent model.AgentItem
	if err := attributevalue.UnmarshalMap(items[0], &agent); err != nil {
		return model.AgentItem{}, err
	}
	return agent, nil
}

func (r *DynamoRepository) CreateAgent(ctx context.Context, agent model.AgentItem) error {
	return r.db.Client.PutItemIfAbsent(ctx, model.AgentsTable, "agentId", agent)
}

func (r *DynamoRepository) ListAgents(ctx context.Context) ([]model.AgentItem, error) {
	items, err := r.db.Client.ScanItems(
		ctx,
		model.AgentsTable,
		"attribute_exists(agentId)",
		nil,
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

	sort.Slice(agents, func(i, j int) bool {
		return agents[i].Name < agents[j].Name
	})
	return agents, nil
}

func (r *DynamoRepository) SetActive(ctx context.Context, agentID string, active bool) error {
	return r.db.Client.UpdateItem(
		ctx,
		model.AgentsTable,
		map[string]types.AttributeValue{
			"agentId": &types.AttributeValueMemberS{Value: agentID},
		},
		"SET isActive = :active",
		map[string]types.AttributeValue{
			":active": &types.AttributeValueMemberBOOL{Value: active},
		},
		nil,
		nil,
	)
}

func (r *DynamoRepository) SetMaxConcurrentChats(ctx context.Context, agentID string, max int) error {
	return r.db.Client.UpdateItem(
		ctx,
		model.AgentsTable,
		map[string]types.AttributeValue{
			"agentId": &types.AttributeValueMemberS{Value: agentID},
		},
		"SET maxConcurrentChats = :max",
		map[string]types.AttributeValue{
			":max": &types.AttributeValueMemberN{Value: strconv.Itoa(max)},
		},
		nil,
		nil,
	)
}

func isNotFound(err error) bool {
	return database.IsItemNotFound(err)
}
