package outbound

import (
	"context"

	"promo-video-api/domain"
)

type TaskState string

const (
	TaskPending   TaskState = "pending"
	TaskCompleted TaskState = "completed"
	TaskFailed    TaskState = "failed"
)

type TaskResult struct {
	State       TaskState
	ResultRef   string
	ErrorDetail string
}

type SubmitTaskParams struct {
	Prompt string
	Inputs map[string]string
}

// ProviderPort is the uniform submit/query surface over one external
// generation provider. Query is an idempotent observation: transient provider
// errors (timeouts, 5xx) come back as pending, never as a failure. The port
// does not retry; retry policy lives with the job state machine.
type ProviderPort interface {
	Kind() domain.ProviderKind
	Submit(ctx context.Context, params SubmitTaskParams) (domain.TaskHandle, error)
	Query(ctx context.Context, handle domain.TaskHandle) (TaskResult, error)
}

// ProviderRegistry resolves the provider that issued a handle, so polling
// code stays kind-polymorphic.
type ProviderRegistry interface {
	For(kind domain.ProviderKind) (ProviderPort, error)
}
