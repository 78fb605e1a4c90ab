package adapters

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"

	"promo-video-api/application/ports/outbound"
	"promo-video-api/config"
	"promo-video-api/domain"
)

type dynamoLedgerItem struct {
	UserID        string `dynamodbav:"user_id"`
	SK            string `dynamodbav:"sk"`
	TransactionID string `dynamodbav:"transaction_id"`
	Amount        int64  `dynamodbav:"amount"`
	ReasonCode    string `dynamodbav:"reason_code"`
	ReasonRef     string `dynamodbav:"reason_ref"`
	BalanceBefore int64  `dynamodbav:"balance_before"`
	BalanceAfter  int64  `dynamodbav:"balance_after"`
	CreatedAt     int64  `dynamodbav:"created_at"`
}

// dynamoLedgerStore keys entries by (user_id, sk) where sk orders entries by
// creation time, so the newest entry's balance_after is the balance.
type dynamoLedgerStore struct {
	logger       outbound.LoggerPort
	dynamoSvc    *dynamodb.DynamoDB
	dynamoConfig *config.DynamoConfig
}

func NewDynamoLedgerStore(logger outbound.LoggerPort, dynamoSvc *dynamodb.DynamoDB, dynamoConfig *config.DynamoConfig) outbound.LedgerStorePort {
	return &dynamoLedgerStore{
		logger:       logger,
		dynamoSvc:    dynamoSvc,
		dynamoConfig: dynamoConfig,
	}
}

func ledgerSortKey(createdAt time.Time, id string) string {
	return fmt.Sprintf("%020d#%s", createdAt.UnixNano(), id)
}

func (s *dynamoLedgerStore) Append(ctx context.Context, tx *domain.CreditTransaction) error {
	item := dynamoLedgerItem{
		UserID:        tx.UserID,
		SK:            ledgerSortKey(tx.CreatedAt, tx.ID),
		TransactionID: tx.ID,
		Amount:        tx.Amount,
		ReasonCode:    tx.ReasonCode,
		ReasonRef:     tx.ReasonRef,
		BalanceBefore: tx.BalanceBefore,
		BalanceAfter:  tx.BalanceAfter,
		CreatedAt:     tx.CreatedAt.UnixNano(),
	}
	av, err := dynamodbattribute.MarshalMap(item)
	if err != nil {
		s.logger.Error(err, "Failed to marshal ledger item")
		return err
	}

	input := &dynamodb.PutItemInput{
		Item:                av,
		TableName:           aws.String(s.dynamoConfig.LedgerTableName),
		ConditionExpression: aws.String("attribute_not_exists(sk)"),
	}

	if _, err := s.dynamoSvc.PutItemWithContext(ctx, input); err != nil {
		s.logger.ErrorWithFields(err, "Failed to append ledger item", map[string]interface{}{
			"user_id": tx.UserID,
			"reason":  tx.ReasonRef,
		})
		return translateConditionalError(err)
	}
	return nil
}

func (s *dynamoLedgerStore) LatestBalance(ctx context.Context, userID string) (int64, error) {
	out, err := s.dynamoSvc.QueryWithContext(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.dynamoConfig.LedgerTableName),
		KeyConditionExpression: aws.String("user_id = :user_id"),
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":user_id": {S: aws.String(userID)},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int64(1),
		ConsistentRead:   aws.Bool(true),
	})
	if err != nil {
		return 0, err
	}
	if len(out.Items) == 0 {
		return 0, nil
	}

	var item dynamoLedgerItem
	if err := dynamodbattribute.UnmarshalMap(out.Items[0], &item); err != nil {
		return 0, err
	}
	return item.BalanceAfter, nil
}

func (s *dynamoLedgerStore) FindByReason(ctx context.Context, userID string, reasonRef string, charge bool) (*domain.CreditTransaction, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.dynamoConfig.LedgerTableName),
		KeyConditionExpression: aws.String("user_id = :user_id"),
		FilterExpression:       aws.String("reason_ref = :reason_ref"),
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":user_id":    {S: aws.String(userID)},
			":reason_ref": {S: aws.String(reasonRef)},
		},
		ConsistentRead: aws.Bool(true),
	}

	var found *dynamoLedgerItem
	err := s.dynamoSvc.QueryPagesWithContext(ctx, input, func(page *dynamodb.QueryOutput, lastPage bool) bool {
		for _, raw := range page.Items {
			var item dynamoLedgerItem
			if err := dynamodbattribute.UnmarshalMap(raw, &item); err != nil {
				s.logger.Error(err, "Failed to unmarshal ledger item")
				continue
			}
			if charge == (item.Amount < 0) {
				found = &item
				return false
			}
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, nil
	}
	return ledgerTransactionFromItem(found), nil
}

func (s *dynamoLedgerStore) ListByUser(ctx context.Context, userID string, limit int) ([]*domain.CreditTransaction, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.dynamoConfig.LedgerTableName),
		KeyConditionExpression: aws.String("user_id = :user_id"),
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":user_id": {S: aws.String(userID)},
		},
		ScanIndexForward: aws.Bool(false),
	}
	if limit > 0 {
		input.Limit = aws.Int64(int64(limit))
	}

	out, err := s.dynamoSvc.QueryWithContext(ctx, input)
	if err != nil {
		return nil, err
	}

	txs := make([]*domain.CreditTransaction, 0, len(out.Items))
	for _, raw := range out.Items {
		var item dynamoLedgerItem
		if err := dynamodbattribute.UnmarshalMap(raw, &item); err != nil {
			s.logger.Error(err, "Failed to unmarshal ledger item")
			continue
		}
		txs = append(txs, ledgerTransactionFromItem(&item))
	}
	return txs, nil
}

func ledgerTransactionFromItem(item *dynamoLedgerItem) *domain.CreditTransaction {
	return &domain.CreditTransaction{
		ID:            item.TransactionID,
		UserID:        item.UserID,
		Amount:        item.Amount,
		ReasonCode:    item.ReasonCode,
		ReasonRef:     item.ReasonRef,
		BalanceBefore: item.BalanceBefore,
		BalanceAfter:  item.BalanceAfter,
		CreatedAt:     time.Unix(0, item.CreatedAt).UTC(),
	}
}
