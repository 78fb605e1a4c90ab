package inbound

import (
	"context"

	"promo-video-api/domain"
)

type JobSnapshot struct {
	Job      *domain.Job
	Variants []*domain.BatchVariant
}

type SweepResult struct {
	Checked int
	Updated int
}

// StatusSweeperPort drives in-flight jobs forward. Both operations are
// idempotent pulls: each performs at most one provider query per handle and
// is safe to call on any schedule.
type StatusSweeperPort interface {
	RefreshJob(ctx context.Context, jobID string) (*JobSnapshot, error)
	RefreshAllProcessing(ctx context.Context, userID string) (SweepResult, error)
}
