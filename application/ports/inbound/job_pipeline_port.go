package inbound

import (
	"context"

	"promo-video-api/domain"
)

type CreateJobParams struct {
	UserID      string
	LinkURL     string
	Description string
}

type AdvanceStageParams struct {
	JobID  string
	UserID string
	Step   domain.Step
	Retry  bool
	// Config carries the configuration step's payload; ignored elsewhere.
	Config *domain.JobConfig
}

type StageOutput struct {
	Stage   domain.Stage
	Attempt int
	Output  *domain.VersionedOutput
	Handle  *domain.TaskHandle
}

type JobPipelinePort interface {
	CreateJob(ctx context.Context, params CreateJobParams) (*domain.Job, error)
	AdvanceStage(ctx context.Context, params AdvanceStageParams) (*StageOutput, error)
}
