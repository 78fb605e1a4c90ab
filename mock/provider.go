package mock_backend

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"promo-video-api/application/ports/outbound"
	"promo-video-api/domain"
)

// Provider is a scripted generation backend. Submitted tasks start pending;
// tests drive them to completion or failure by task ID or by submission
// order.
type Provider struct {
	kind domain.ProviderKind

	mu        sync.Mutex
	submitted []outbound.SubmitTaskParams
	handles   []domain.TaskHandle
	results   map[string]outbound.TaskResult

	// SubmitErr, when set, fails the next Submit calls.
	SubmitErr error
	// QueryErr, when set, fails every Query call.
	QueryErr error
}

func NewProvider(kind domain.ProviderKind) *Provider {
	return &Provider{
		kind:    kind,
		results: make(map[string]outbound.TaskResult),
	}
}

func (p *Provider) Kind() domain.ProviderKind {
	return p.kind
}

func (p *Provider) Submit(_ context.Context, params outbound.SubmitTaskParams) (domain.TaskHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.SubmitErr != nil {
		return domain.TaskHandle{}, p.SubmitErr
	}
	handle := domain.TaskHandle{Kind: p.kind, TaskID: uuid.NewString()}
	p.submitted = append(p.submitted, params)
	p.handles = append(p.handles, handle)
	p.results[handle.TaskID] = outbound.TaskResult{State: outbound.TaskPending}
	return handle, nil
}

func (p *Provider) Query(_ context.Context, handle domain.TaskHandle) (outbound.TaskResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.QueryErr != nil {
		return outbound.TaskResult{}, p.QueryErr
	}
	result, ok := p.results[handle.TaskID]
	if !ok {
		return outbound.TaskResult{}, fmt.Errorf("unknown task %s", handle.TaskID)
	}
	return result, nil
}

// Complete marks a task finished with the given result ref.
func (p *Provider) Complete(taskID string, resultRef string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.results[taskID] = outbound.TaskResult{State: outbound.TaskCompleted, ResultRef: resultRef}
}

// Fail marks a task terminally failed.
func (p *Provider) Fail(taskID string, detail string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.results[taskID] = outbound.TaskResult{State: outbound.TaskFailed, ErrorDetail: detail}
}

// CompleteAll finishes every pending task, deriving result refs from the
// submission order.
func (p *Provider) CompleteAll(refPrefix string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, handle := range p.handles {
		if p.results[handle.TaskID].State == outbound.TaskPending {
			p.results[handle.TaskID] = outbound.TaskResult{
				State:     outbound.TaskCompleted,
				ResultRef: fmt.Sprintf("%s-%d", refPrefix, i),
			}
		}
	}
}

// Handles returns issued handles in submission order.
func (p *Provider) Handles() []domain.TaskHandle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.TaskHandle(nil), p.handles...)
}

// Submitted returns the params of every Submit call in order.
func (p *Provider) Submitted() []outbound.SubmitTaskParams {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]outbound.SubmitTaskParams(nil), p.submitted...)
}

type Registry struct {
	providers map[domain.ProviderKind]*Provider
}

// NewRegistry builds a registry with one scripted provider per kind.
func NewRegistry() *Registry {
	r := &Registry{providers: make(map[domain.ProviderKind]*Provider)}
	for _, kind := range []domain.ProviderKind{
		domain.ScriptProviderKind,
		domain.ImageGridProviderKind,
		domain.VideoProviderKind,
	} {
		r.providers[kind] = NewProvider(kind)
	}
	return r
}

func (r *Registry) For(kind domain.ProviderKind) (outbound.ProviderPort, error) {
	provider, ok := r.providers[kind]
	if !ok {
		return nil, fmt.Errorf("no provider registered for kind %s", kind)
	}
	return provider, nil
}

// Provider exposes the scripted provider for a kind so tests can drive it.
func (r *Registry) Provider(kind domain.ProviderKind) *Provider {
	return r.providers[kind]
}
