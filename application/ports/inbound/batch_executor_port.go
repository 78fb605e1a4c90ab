package inbound

import (
	"context"

	"promo-video-api/domain"
)

type StartBatchParams struct {
	JobID        string
	UserID       string
	VariantCount int
	// Retry re-runs the output stage without charging; the original
	// charges already cover regeneration.
	Retry bool
}

type BatchExecutorPort interface {
	StartBatch(ctx context.Context, params StartBatchParams) ([]*domain.BatchVariant, error)
}
