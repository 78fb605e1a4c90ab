package adapters

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"

	"promo-video-api/application/ports/outbound"
	"promo-video-api/config"
	"promo-video-api/domain"
)

type dynamoVariantItem struct {
	ID           string `dynamodbav:"id"`
	JobID        string `dynamodbav:"job_id"`
	VariantIndex int    `dynamodbav:"variant_index"`
	Attempt      int    `dynamodbav:"attempt"`
	TaskKind     string `dynamodbav:"task_kind,omitempty"`
	TaskID       string `dynamodbav:"task_id,omitempty"`
	Status       string `dynamodbav:"status"`
	ResultRef    string `dynamodbav:"result_ref,omitempty"`
	ArchivedRef  string `dynamodbav:"archived_ref,omitempty"`
	ErrorMessage string `dynamodbav:"error_message,omitempty"`
	CreatedAt    int64  `dynamodbav:"created_at"`
	UpdatedAt    int64  `dynamodbav:"updated_at"`
	Version      int64  `dynamodbav:"version"`
}

type dynamoBatchStore struct {
	logger       outbound.LoggerPort
	dynamoSvc    *dynamodb.DynamoDB
	dynamoConfig *config.DynamoConfig
}

func NewDynamoBatchStore(logger outbound.LoggerPort, dynamoSvc *dynamodb.DynamoDB, dynamoConfig *config.DynamoConfig) outbound.BatchStorePort {
	return &dynamoBatchStore{
		logger:       logger,
		dynamoSvc:    dynamoSvc,
		dynamoConfig: dynamoConfig,
	}
}

func variantToItem(variant *domain.BatchVariant) *dynamoVariantItem {
	item := &dynamoVariantItem{
		ID:           variant.ID,
		JobID:        variant.JobID,
		VariantIndex: variant.Index,
		Attempt:      variant.Attempt,
		Status:       string(variant.Status),
		ResultRef:    variant.ResultRef,
		ArchivedRef:  variant.ArchivedRef,
		ErrorMessage: variant.ErrorMessage,
		CreatedAt:    variant.CreatedAt.UnixNano(),
		UpdatedAt:    variant.UpdatedAt.UnixNano(),
		Version:      variant.Version,
	}
	if variant.Handle != nil {
		item.TaskKind = string(variant.Handle.Kind)
		item.TaskID = variant.Handle.TaskID
	}
	return item
}

func variantFromItem(item *dynamoVariantItem) *domain.BatchVariant {
	variant := &domain.BatchVariant{
		ID:           item.ID,
		JobID:        item.JobID,
		Index:        item.VariantIndex,
		Attempt:      item.Attempt,
		Status:       domain.VariantStatus(item.Status),
		ResultRef:    item.ResultRef,
		ArchivedRef:  item.ArchivedRef,
		ErrorMessage: item.ErrorMessage,
		CreatedAt:    time.Unix(0, item.CreatedAt).UTC(),
		UpdatedAt:    time.Unix(0, item.UpdatedAt).UTC(),
		Version:      item.Version,
	}
	if item.TaskID != "" {
		variant.Handle = &domain.TaskHandle{
			Kind:   domain.ProviderKind(item.TaskKind),
			TaskID: item.TaskID,
		}
	}
	return variant
}

func (s *dynamoBatchStore) CreateVariant(ctx context.Context, variant *domain.BatchVariant) error {
	variant.Version = 1
	av, err := dynamodbattribute.MarshalMap(variantToItem(variant))
	if err != nil {
		s.logger.Error(err, "Failed to marshal variant item")
		return err
	}

	input := &dynamodb.PutItemInput{
		Item:                av,
		TableName:           aws.String(s.dynamoConfig.VariantsTableName),
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	}

	if _, err := s.dynamoSvc.PutItemWithContext(ctx, input); err != nil {
		return translateConditionalError(err)
	}
	return nil
}

func (s *dynamoBatchStore) GetVariant(ctx context.Context, id string) (*domain.BatchVariant, error) {
	out, err := s.dynamoSvc.GetItemWithContext(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.dynamoConfig.VariantsTableName),
		ConsistentRead: aws.Bool(true),
		Key: map[string]*dynamodb.AttributeValue{
			"id": {S: aws.String(id)},
		},
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, domain.ErrVariantNotFound
	}

	var item dynamoVariantItem
	if err := dynamodbattribute.UnmarshalMap(out.Item, &item); err != nil {
		return nil, err
	}
	return variantFromItem(&item), nil
}

func (s *dynamoBatchStore) UpdateVariant(ctx context.Context, variant *domain.BatchVariant) error {
	expected := variant.Version
	variant.Version = expected + 1
	av, err := dynamodbattribute.MarshalMap(variantToItem(variant))
	if err != nil {
		variant.Version = expected
		return err
	}

	input := &dynamodb.PutItemInput{
		Item:                av,
		TableName:           aws.String(s.dynamoConfig.VariantsTableName),
		ConditionExpression: aws.String("version = :expected"),
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":expected": {N: aws.String(formatInt(expected))},
		},
	}

	if _, err := s.dynamoSvc.PutItemWithContext(ctx, input); err != nil {
		variant.Version = expected
		return translateConditionalError(err)
	}
	return nil
}

func (s *dynamoBatchStore) ListVariantsByJob(ctx context.Context, jobID string) ([]*domain.BatchVariant, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.dynamoConfig.VariantsTableName),
		IndexName:              aws.String(s.dynamoConfig.JobIndexName),
		KeyConditionExpression: aws.String("job_id = :job_id"),
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":job_id": {S: aws.String(jobID)},
		},
	}

	variants := make([]*domain.BatchVariant, 0)
	err := s.dynamoSvc.QueryPagesWithContext(ctx, input, func(page *dynamodb.QueryOutput, lastPage bool) bool {
		for _, raw := range page.Items {
			var item dynamoVariantItem
			if err := dynamodbattribute.UnmarshalMap(raw, &item); err != nil {
				s.logger.Error(err, "Failed to unmarshal variant item")
				continue
			}
			variants = append(variants, variantFromItem(&item))
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return variants, nil
}
