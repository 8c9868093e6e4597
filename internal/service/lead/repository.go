package lead

import (
	"context"
	"errors"
	"sort"
	"strings"

	"lead-routing-backend/internal/database"
	"lead-routing-backend/internal/model"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

var ErrNotFound = errors.New("lead repository: not found")

type Repository interface {
	GetLead(ctx context.Context, leadID string) (model.LeadItem, error)
	// FindByPhoneSuffix returns the leads whose stored phone ends with
	// the given suffix. The suffix index bounds the candidate fan-out;
	// callers run the real match over the result.
	FindByPhoneSuffix(ctx context.Context, suffix string) ([]model.LeadItem, error)
	CreateLead(ctx context.Context, lead model.LeadItem) error
	PutLead(ctx context.Context, lead model.LeadItem) error
	SetLastMessage(ctx context.Context, leadID, preview, lastMessageAt, updatedAt string) error
	ListLeads(ctx context.Context, limit int) ([]model.LeadItem, error)
}

type DynamoRepository struct {
	db *database.Database
}

func NewDynamoRepository(db *database.Database) Repository {
	return &DynamoRepository{db: db}
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

func (r *DynamoRepository) FindByPhoneSuffix(ctx context.Context, suffix string) ([]model.LeadItem, error) {
	items, err := r.db.Client.QueryItems(
		ctx,
		model.LeadsTable,
		aws.String("byPhoneSuffix"),
		"phoneSuffix = :suffix",
		map[string]types.AttributeValue{
			":suffix": &types.AttributeValueMemberS{Value: suffix},
		},
		nil,
		nil,
	)
	if err != nil && !isIndexNotFound(err) {
		return nil, err
	}

	if (err != nil && isIndexNotFound(err)) || items == nil {
		items, err = r.db.Client.ScanItems(
			ctx,
			model.LeadsTable,
			"phoneSuffix = :suffix",
			map[string]types.AttributeValue{
				":suffix": &types.AttributeValueMemberS{Value: suffix},
			},
			nil,
		)
		if err != nil {
			return nil, err
		}
	}

	leads := make([]model.LeadItem, 0, len(items))
	for _, item := range items {
		var lead model.LeadItem
		if err := attributevalue.UnmarshalMap(item, &lead); err != nil {
			return nil, err
		}
		leads = append(leads, lead)
	}
	return leads, nil
}

func (r *DynamoRepository) CreateLead(ctx context.Context, lead model.LeadItem) error {
	return r.db.Client.PutItemIfAbsent(ctx, model.LeadsTable, "leadId", lead)
}

func (r *DynamoRepository) PutLead(ctx context.Context, lead model.LeadItem) error {
	return r.db.Client.PutItem(ctx, model.LeadsTable, lead)
}

func (r *DynamoRepository) SetLastMessage(ctx context.Context, leadID, preview, lastMessageAt, updatedAt string) error {
	return r.db.Client.UpdateItem(
		ctx,
		model.LeadsTable,
		map[string]types.AttributeValue{
			"leadId": &types.AttributeValueMemberS{Value: leadID},
		},
		"SET #preview = :preview, #lastMessageAt = :lastMessageAt, #updatedAt = :updatedAt",
		map[string]types.AttributeValue{
			":preview":       &types.AttributeValueMemberS{Value: preview},
			":lastMessageAt": &types.AttributeValueMemberS{Value: lastMessageAt},
			":updatedAt":     &types.AttributeValueMemberS{Value: updatedAt},
		},
		map[string]string{
			"#preview":       "lastMessagePreview",
			"#lastMessageAt": "lastMessageAt",
			"#updatedAt":     "updatedAt",
		},
		nil,
	)
}

func (r *DynamoRepository) ListLeads(ctx context.Context, limit int) ([]model.LeadItem, error) {
	items, err := r.db.Client.ScanItems(
		ctx,
		model.LeadsTable,
		"attribute_exists(leadId)",
		nil,
		nil,
	)
	if err != nil {
		return nil, err
	}

	leads := make([]model.LeadItem, 0, len(items))
	for _, item := range items {
		var lead model.LeadItem
		if err := attributevalue.UnmarshalMap(item, &lead); err != nil {
			return nil, err
		}
		leads = append(leads, lead)
	}

	sort.Slice(leads, func(i, j int) bool {
		return leads[i].LastMessageAt > leads[j].LastMessageAt
	})

	if limit > 0 && len(leads) > limit {
		leads = leads[:limit]
	}

	return leads, nil
}

func isNotFound(err error) bool {
	return database.IsItemNotFound(err)
}

func isIndexNotFound(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "index") && strings.Contains(msg, "not") && strings.Contains(msg, "found")
}
