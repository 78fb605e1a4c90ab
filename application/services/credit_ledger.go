package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"promo-video-api/application/ports/inbound"
	"promo-video-api/application/ports/outbound"
	"promo-video-api/domain"
)

// creditLedger serializes all balance mutations per user. The balance check
// and the append happen under the user's lock so two concurrent charges can
// never both pass against a stale read.
type creditLedger struct {
	logger outbound.LoggerPort
	store  outbound.LedgerStorePort
	locks  sync.Map
}

func NewCreditLedger(logger outbound.LoggerPort, store outbound.LedgerStorePort) inbound.CreditLedgerPort {
	return &creditLedger{
		logger: logger,
		store:  store,
	}
}

func (l *creditLedger) lockFor(userID string) *sync.Mutex {
	lock, _ := l.locks.LoadOrStore(userID, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

func (l *creditLedger) Charge(ctx context.Context, userID string, amount int64, reasonCode string, ref domain.ChargeRef) (*domain.CreditTransaction, bool, error) {
	lock := l.lockFor(userID)
	lock.Lock()
	defer lock.Unlock()

	existing, err := l.store.FindByReason(ctx, userID, ref.String(), true)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	balance, err := l.store.LatestBalance(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	if balance < amount {
		l.logger.WarnWithFields("Charge rejected, balance too low", map[string]interface{}{
			"user_id": userID,
			"amount":  amount,
			"balance": balance,
			"reason":  ref.String(),
		})
		return nil, false, domain.ErrInsufficientBalance
	}

	tx := &domain.CreditTransaction{
		ID:            uuid.NewString(),
		UserID:        userID,
		Amount:        -amount,
		ReasonCode:    reasonCode,
		ReasonRef:     ref.String(),
		BalanceBefore: balance,
		BalanceAfter:  balance - amount,
		CreatedAt:     time.Now().UTC(),
	}
	if err := l.store.Append(ctx, tx); err != nil {
		return nil, false, err
	}

	l.logger.InfoWithFields("Charged credits", map[string]interface{}{
		"user_id": userID,
		"amount":  amount,
		"balance": tx.BalanceAfter,
		"reason":  ref.String(),
	})

	return tx, true, nil
}

func (l *creditLedger) Refund(ctx context.Context, userID string, amount int64, reasonCode string, ref domain.ChargeRef) (*domain.CreditTransaction, bool, error) {
	lock := l.lockFor(userID)
	lock.Lock()
	defer lock.Unlock()

	existing, err := l.store.FindByReason(ctx, userID, ref.String(), false)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	balance, err := l.store.LatestBalance(ctx, userID)
	if err != nil {
		return nil, false, err
	}

	tx := &domain.CreditTransaction{
		ID:            uuid.NewString(),
		UserID:        userID,
		Amount:        amount,
		ReasonCode:    reasonCode,
		ReasonRef:     ref.String(),
		BalanceBefore: balance,
		BalanceAfter:  balance + amount,
		CreatedAt:     time.Now().UTC(),
	}
	if err := l.store.Append(ctx, tx); err != nil {
		return nil, false, err
	}

	l.logger.InfoWithFields("Refunded credits", map[string]interface{}{
		"user_id": userID,
		"amount":  amount,
		"balance": tx.BalanceAfter,
		"reason":  ref.String(),
	})

	return tx, true, nil
}

func (l *creditLedger) RefundCharge(ctx context.Context, userID string, reasonCode string, ref domain.ChargeRef) (int64, error) {
	charge, err := l.store.FindByReason(ctx, userID, ref.String(), true)
	if err != nil {
		return 0, err
	}
	if charge == nil {
		return 0, nil
	}

	amount := -charge.Amount
	_, created, err := l.Refund(ctx, userID, amount, reasonCode, ref)
	if err != nil {
		return 0, err
	}
	if !created {
		return 0, nil
	}
	return amount, nil
}

func (l *creditLedger) Balance(ctx context.Context, userID string) (int64, error) {
	return l.store.LatestBalance(ctx, userID)
}

func (l *creditLedger) History(ctx context.Context, userID string, limit int) ([]*domain.CreditTransaction, error) {
	return l.store.ListByUser(ctx, userID, limit)
}
