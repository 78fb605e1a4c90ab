package inbound

import (
	"context"

	"promo-video-api/domain"
)

// CreditLedgerPort meters the prepaid balance. Charge and Refund are
// idempotent per charge ref: a repeated call returns the prior transaction
// with created=false instead of writing a duplicate.
type CreditLedgerPort interface {
	Charge(ctx context.Context, userID string, amount int64, reasonCode string, ref domain.ChargeRef) (tx *domain.CreditTransaction, created bool, err error)
	Refund(ctx context.Context, userID string, amount int64, reasonCode string, ref domain.ChargeRef) (tx *domain.CreditTransaction, created bool, err error)
	// RefundCharge refunds exactly what was charged for ref, if anything.
	// Returns the refunded amount, zero when no charge exists or the
	// refund was already issued.
	RefundCharge(ctx context.Context, userID string, reasonCode string, ref domain.ChargeRef) (int64, error)
	Balance(ctx context.Context, userID string) (int64, error)
	History(ctx context.Context, userID string, limit int) ([]*domain.CreditTransaction, error)
}
