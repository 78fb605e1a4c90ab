package outbound

import (
	"context"

	"promo-video-api/domain"
)

// LedgerStorePort is the append-only transaction log behind the credit
// ledger. Entries are never updated or deleted.
type LedgerStorePort interface {
	Append(ctx context.Context, tx *domain.CreditTransaction) error
	LatestBalance(ctx context.Context, userID string) (int64, error)
	// FindByReason returns the existing charge (charge=true) or refund
	// (charge=false) for a reason ref, or nil when none exists.
	FindByReason(ctx context.Context, userID string, reasonRef string, charge bool) (*domain.CreditTransaction, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*domain.CreditTransaction, error)
}
