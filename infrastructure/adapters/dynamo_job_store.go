package adapters

import (
	"context"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"

	"promo-video-api/application/ports/outbound"
	"promo-video-api/config"
	"promo-video-api/domain"
)

type dynamoJobItem struct {
	ID               string                                `dynamodbav:"id"`
	UserID           string                                `dynamodbav:"user_id"`
	Stage            string                                `dynamodbav:"stage"`
	FailedStep       string                                `dynamodbav:"failed_step,omitempty"`
	LinkURL          string                                `dynamodbav:"link_url,omitempty"`
	Description      string                                `dynamodbav:"description,omitempty"`
	Product          *domain.ProductInfo                   `dynamodbav:"product,omitempty"`
	Config           *domain.JobConfig                     `dynamodbav:"config,omitempty"`
	AttemptCounters  map[string]int                        `dynamodbav:"attempt_counters,omitempty"`
	Outputs          map[string][]dynamoVersionedOutput    `dynamodbav:"outputs,omitempty"`
	VariantCount     int                                   `dynamodbav:"variant_count,omitempty"`
	TaskKind         string                                `dynamodbav:"task_kind,omitempty"`
	TaskID           string                                `dynamodbav:"task_id,omitempty"`
	StageStartedAt   int64                                 `dynamodbav:"stage_started_at,omitempty"`
	CreditsCharged   int64                                 `dynamodbav:"credits_charged"`
	CreditsRefunded  int64                                 `dynamodbav:"credits_refunded"`
	PrimaryOutputRef string                                `dynamodbav:"primary_output_ref,omitempty"`
	ErrorMessage     string                                `dynamodbav:"error_message,omitempty"`
	CreatedAt        int64                                 `dynamodbav:"created_at"`
	CompletedAt      *int64                                `dynamodbav:"completed_at,omitempty"`
	Version          int64                                 `dynamodbav:"version"`
}

type dynamoVersionedOutput struct {
	Version   int    `dynamodbav:"version"`
	Ref       string `dynamodbav:"ref"`
	CreatedAt int64  `dynamodbav:"created_at"`
}

type dynamoJobStore struct {
	logger       outbound.LoggerPort
	dynamoSvc    *dynamodb.DynamoDB
	dynamoConfig *config.DynamoConfig
}

func NewDynamoJobStore(logger outbound.LoggerPort, dynamoSvc *dynamodb.DynamoDB, dynamoConfig *config.DynamoConfig) outbound.JobStorePort {
	return &dynamoJobStore{
		logger:       logger,
		dynamoSvc:    dynamoSvc,
		dynamoConfig: dynamoConfig,
	}
}

func jobToItem(job *domain.Job) *dynamoJobItem {
	item := &dynamoJobItem{
		ID:               job.ID,
		UserID:           job.UserID,
		Stage:            string(job.Stage),
		FailedStep:       string(job.FailedStep),
		LinkURL:          job.Input.LinkURL,
		Description:      job.Input.Description,
		Product:          job.Product,
		Config:           job.Config,
		VariantCount:     job.VariantCount,
		CreditsCharged:   job.CreditsCharged,
		CreditsRefunded:  job.CreditsRefunded,
		PrimaryOutputRef: job.PrimaryOutputRef,
		ErrorMessage:     job.ErrorMessage,
		CreatedAt:        job.CreatedAt.UnixNano(),
		Version:          job.Version,
	}
	if !job.StageStartedAt.IsZero() {
		item.StageStartedAt = job.StageStartedAt.UnixNano()
	}
	if job.CompletedAt != nil {
		completed := job.CompletedAt.UnixNano()
		item.CompletedAt = &completed
	}
	if job.CurrentTask != nil {
		item.TaskKind = string(job.CurrentTask.Kind)
		item.TaskID = job.CurrentTask.TaskID
	}
	if len(job.AttemptCounters) > 0 {
		item.AttemptCounters = make(map[string]int, len(job.AttemptCounters))
		for step, attempt := range job.AttemptCounters {
			item.AttemptCounters[string(step)] = attempt
		}
	}
	if len(job.Outputs) > 0 {
		item.Outputs = make(map[string][]dynamoVersionedOutput, len(job.Outputs))
		for step, outputs := range job.Outputs {
			converted := make([]dynamoVersionedOutput, len(outputs))
			for i, out := range outputs {
				converted[i] = dynamoVersionedOutput{
					Version:   out.Version,
					Ref:       out.Ref,
					CreatedAt: out.CreatedAt.UnixNano(),
				}
			}
			item.Outputs[string(step)] = converted
		}
	}
	return item
}

func jobFromItem(item *dynamoJobItem) *domain.Job {
	job := &domain.Job{
		ID:     item.ID,
		UserID: item.UserID,
		Stage:  domain.Stage(item.Stage),
		Input: domain.JobInput{
			LinkURL:     item.LinkURL,
			Description: item.Description,
		},
		FailedStep:       domain.Step(item.FailedStep),
		Product:          item.Product,
		Config:           item.Config,
		AttemptCounters:  make(map[domain.Step]int, len(item.AttemptCounters)),
		Outputs:          make(map[domain.Step][]domain.VersionedOutput, len(item.Outputs)),
		VariantCount:     item.VariantCount,
		CreditsCharged:   item.CreditsCharged,
		CreditsRefunded:  item.CreditsRefunded,
		PrimaryOutputRef: item.PrimaryOutputRef,
		ErrorMessage:     item.ErrorMessage,
		CreatedAt:        time.Unix(0, item.CreatedAt).UTC(),
		Version:          item.Version,
	}
	if item.StageStartedAt != 0 {
		job.StageStartedAt = time.Unix(0, item.StageStartedAt).UTC()
	}
	if item.CompletedAt != nil {
		completed := time.Unix(0, *item.CompletedAt).UTC()
		job.CompletedAt = &completed
	}
	if item.TaskID != "" {
		job.CurrentTask = &domain.TaskHandle{
			Kind:   domain.ProviderKind(item.TaskKind),
			TaskID: item.TaskID,
		}
	}
	for step, attempt := range item.AttemptCounters {
		job.AttemptCounters[domain.Step(step)] = attempt
	}
	for step, outputs := range item.Outputs {
		converted := make([]domain.VersionedOutput, len(outputs))
		for i, out := range outputs {
			converted[i] = domain.VersionedOutput{
				Version:   out.Version,
				Ref:       out.Ref,
				CreatedAt: time.Unix(0, out.CreatedAt).UTC(),
			}
		}
		job.Outputs[domain.Step(step)] = converted
	}
	return job
}

func (s *dynamoJobStore) Create(ctx context.Context, job *domain.Job) error {
	job.Version = 1
	av, err := dynamodbattribute.MarshalMap(jobToItem(job))
	if err != nil {
		s.logger.Error(err, "Failed to marshal job item")
		return err
	}

	input := &dynamodb.PutItemInput{
		Item:                av,
		TableName:           aws.String(s.dynamoConfig.JobsTableName),
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	}

	if _, err := s.dynamoSvc.PutItemWithContext(ctx, input); err != nil {
		s.logger.ErrorWithFields(err, "Failed to create job item", map[string]interface{}{
			"job_id": job.ID,
		})
		return translateConditionalError(err)
	}
	return nil
}

func (s *dynamoJobStore) Get(ctx context.Context, id string) (*domain.Job, error) {
	out, err := s.dynamoSvc.GetItemWithContext(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.dynamoConfig.JobsTableName),
		ConsistentRead: aws.Bool(true),
		Key: map[string]*dynamodb.AttributeValue{
			"id": {S: aws.String(id)},
		},
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, domain.ErrJobNotFound
	}

	var item dynamoJobItem
	if err := dynamodbattribute.UnmarshalMap(out.Item, &item); err != nil {
		return nil, err
	}
	return jobFromItem(&item), nil
}

func (s *dynamoJobStore) Update(ctx context.Context, job *domain.Job) error {
	expected := job.Version
	job.Version = expected + 1
	av, err := dynamodbattribute.MarshalMap(jobToItem(job))
	if err != nil {
		job.Version = expected
		return err
	}

	input := &dynamodb.PutItemInput{
		Item:                av,
		TableName:           aws.String(s.dynamoConfig.JobsTableName),
		ConditionExpression: aws.String("version = :expected"),
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":expected": {N: aws.String(formatInt(expected))},
		},
	}

	if _, err := s.dynamoSvc.PutItemWithContext(ctx, input); err != nil {
		job.Version = expected
		return translateConditionalError(err)
	}
	return nil
}

func (s *dynamoJobStore) ListProcessingByUser(ctx context.Context, userID string) ([]*domain.Job, error) {
	return s.queryByUser(ctx, userID, true, 0)
}

func (s *dynamoJobStore) ListByUser(ctx context.Context, userID string, limit int) ([]*domain.Job, error) {
	return s.queryByUser(ctx, userID, false, limit)
}

func (s *dynamoJobStore) queryByUser(ctx context.Context, userID string, processingOnly bool, limit int) ([]*domain.Job, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.dynamoConfig.JobsTableName),
		IndexName:              aws.String(s.dynamoConfig.UserIndexName),
		KeyConditionExpression: aws.String("user_id = :user_id"),
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":user_id": {S: aws.String(userID)},
		},
	}
	if processingOnly {
		input.FilterExpression = aws.String("stage IN (:s1, :s2, :s3)")
		input.ExpressionAttributeValues[":s1"] = &dynamodb.AttributeValue{S: aws.String(string(domain.StageGeneratingScript))}
		input.ExpressionAttributeValues[":s2"] = &dynamodb.AttributeValue{S: aws.String(string(domain.StageGeneratingReferenceImage))}
		input.ExpressionAttributeValues[":s3"] = &dynamodb.AttributeValue{S: aws.String(string(domain.StageGeneratingOutput))}
	}

	jobs := make([]*domain.Job, 0)
	err := s.dynamoSvc.QueryPagesWithContext(ctx, input, func(page *dynamodb.QueryOutput, lastPage bool) bool {
		for _, raw := range page.Items {
			var item dynamoJobItem
			if err := dynamodbattribute.UnmarshalMap(raw, &item); err != nil {
				s.logger.Error(err, "Failed to unmarshal job item")
				continue
			}
			jobs = append(jobs, jobFromItem(&item))
			if limit > 0 && len(jobs) >= limit {
				return false
			}
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

func formatInt(value int64) string {
	return strconv.FormatInt(value, 10)
}

func translateConditionalError(err error) error {
	if awsErr, ok := err.(awserr.Error); ok && awsErr.Code() == dynamodb.ErrCodeConditionalCheckFailedException {
		return domain.ErrConcurrencyConflict
	}
	return err
}
