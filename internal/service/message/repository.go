package message

import (
	"context"
	"errors"
	"sort"

	"lead-routing-backend/internal/database"
	"lead-routing-backend/internal/model"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

var (
	ErrNotFound  = errors.New("message repository: not found")
	ErrDuplicate = errors.New("message repository: duplicate message")
)

type Repository interface {
	// CreateIfAbsent stores the message unless one with the same id
	// already exists. Returns ErrDuplicate on a replay.
	CreateIfAbsent(ctx context.Context, msg model.MessageItem) error
	Create(ctx context.Context, msg model.MessageItem) error
	GetMessage(ctx context.Context, messageID string) (model.MessageItem, error)
	GetByProviderID(ctx context.Context, providerMessageID string) (model.MessageItem, error)
	SetStatus(ctx context.Context, messageID string, status model.MessageStatus) error
	SetSendResult(ctx context.Context, messageID, providerMessageID string, status model.MessageStatus) error
	ListByConversation(ctx context.Context, conversationID string, limit int) ([]model.MessageItem, error)
}

type DynamoRepository struct {
	db *database.Database
}

func NewDynamoRepository(db *database.Database) Repository {
	return &DynamoRepository{db: db}
}

func (r *DynamoRepository) CreateIfAbsent(ctx context.Context, msg model.MessageItem) error {
	err := r.db.Client.PutItemIfAbsent(ctx, model.MessagesTable, "messageId", msg)
	if database.IsConditionFailed(err) {
		return ErrDuplicate
	}
	return err
}

func (r *DynamoRepository) Create(ctx context.Context, msg model.MessageItem) error {
	return r.db.Client.PutItem(ctx, model.MessagesTable, msg)
}

func (r *DynamoRepository) GetMessage(ctx context.Context, messageID string) (model.MessageItem, error) {
	var msg model.MessageItem
	err := r.db.Client.GetItem(
		ctx,
		model.MessagesTable,
		map[string]types.AttributeValue{
			"messageId": &types.AttributeValueMemberS{Value: messageID},
		},
		&msg,
	)
	if err != nil {
		if isNotFound(err) {
			return model.MessageItem{}, ErrNotFound
		}
		return model.MessageItem{}, err
	}
	return msg, nil
}

func (r *DynamoRepository) GetByProviderID(ctx context.Context, providerMessageID string) (model.MessageItem, error) {
	items, err := r.db.Client.QueryItems(
		ctx,
		model.MessagesTable,
		aws.String("byProviderMessageId"),
		"providerMessageId = :pid",
		map[string]types.AttributeValue{
			":pid": &types.AttributeValueMemberS{Value: providerMessageID},
		},
		nil,
		nil,
	)
	if err != nil {
		return model.MessageItem{}, err
	}
	if len(items) == 0 {
		return model.MessageItem{}, ErrNotFound
	}

	var msg model.MessageItem
	if err := attributevalue.UnmarshalMap(items[0], &msg); err != nil {
		return model.MessageItem{}, err
	}
	return msg, nil
}

func (r *DynamoRepository) SetStatus(ctx context.Context, messageID string, status model.MessageStatus) error {
	return r.db.Client.UpdateItem(
		ctx,
		model.MessagesTable,
		map[string]types.AttributeValue{
			"messageId": &types.AttributeValueMemberS{Value: messageID},
		},
		"SET #status = :status",
		map[string]types.AttributeValue{
			":status": &types.AttributeValueMemberS{Value: string(status)},
		},
		map[string]string{"#status": "status"},
		nil,
	)
}

func (r *DynamoRepository) SetSendResult(ctx context.Context, messageID, providerMessageID string, status model.MessageStatus) error {
	return r.db.Client.UpdateItem(
		ctx,
		model.MessagesTable,
		map[string]types.AttributeValue{
			"messageId": &types.AttributeValueMemberS{Value: messageID},
		},
		"SET #status = :status, #pid = :pid",
		map[string]types.AttributeValue{
			":status": &types.AttributeValueMemberS{Value: string(status)},
			":pid":    &types.AttributeValueMemberS{Value: providerMessageID},
		},
		map[string]string{
			"#status": "status",
			"#pid":    "providerMessageId",
		},
		nil,
	)
}

func (r *DynamoRepository) ListByConversation(ctx context.Context, conversationID string, limit int) ([]model.MessageItem, error) {
	items, err := r.db.Client.QueryAll(
		ctx,
		model.MessagesTable,
		aws.String("byConversation"),
		"conversationId = :conversationId",
		map[string]types.AttributeValue{
			":conversationId": &types.AttributeValueMemberS{Value: conversationID},
		},
	)
	if err != nil {
		return nil, err
	}

	messages := make([]model.MessageItem, 0, len(items))
	for _, item := range items {
		var msg model.MessageItem
		if err := attributevalue.UnmarshalMap(item, &msg); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}

	sort.Slice(messages, func(i, j int) bool {
		return messages[i].CreatedAt < messages[j].CreatedAt
	})

	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}

	return messages, nil
}

func isNotFound(err error) bool {
	return database.IsItemNotFound(err)
}
