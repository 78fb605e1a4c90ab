package outbound

import (
	"context"

	"promo-video-api/domain"
)

// JobStorePort persists jobs. Update performs a compare-and-swap on the
// job's Version field and returns domain.ErrConcurrencyConflict when the
// stored version no longer matches; on success the stored version is bumped.
type JobStorePort interface {
	Create(ctx context.Context, job *domain.Job) error
	Get(ctx context.Context, id string) (*domain.Job, error)
	Update(ctx context.Context, job *domain.Job) error
	ListProcessingByUser(ctx context.Context, userID string) ([]*domain.Job, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*domain.Job, error)
}

// BatchStorePort persists output-stage variants. UpdateVariant follows the
// same version CAS contract as JobStorePort.Update.
type BatchStorePort interface {
	CreateVariant(ctx context.Context, variant *domain.BatchVariant) error
	GetVariant(ctx context.Context, id string) (*domain.BatchVariant, error)
	UpdateVariant(ctx context.Context, variant *domain.BatchVariant) error
	ListVariantsByJob(ctx context.Context, jobID string) ([]*domain.BatchVariant, error)
}
