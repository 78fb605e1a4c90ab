package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"promo-video-api/application/ports/outbound"
	"promo-video-api/config"
	"promo-video-api/domain"
)

type submitTaskResponse struct {
	TaskID string `json:"task_id"`
}

type queryTaskResponse struct {
	Status    string `json:"status"`
	ResultURL string `json:"result_url"`
	Error     string `json:"error"`
}

// providerTask implements the submit/query plumbing shared by every
// generation provider: same task endpoints, same bearer auth, same
// pending-on-transient classification. The concrete adapters only differ in
// the submit payload they build.
type providerTask struct {
	ContentFetcher
	logger outbound.LoggerPort
	conf   *config.ProviderConfig
	kind   domain.ProviderKind
}

func (p *providerTask) Kind() domain.ProviderKind {
	return p.kind
}

func (p *providerTask) submit(ctx context.Context, payload interface{}) (domain.TaskHandle, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error(err, "Failed to marshal the submit request body")
		return domain.TaskHandle{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.conf.ApiUrl+"/tasks", bytes.NewBuffer(body))
	if err != nil {
		p.logger.Error(err, "Failed to create the submit HTTP request")
		return domain.TaskHandle{}, err
	}
	req.Header.Add("Authorization", "Bearer "+p.conf.ApiKey)
	req.Header.Add("Content-Type", "application/json")

	rawRes, err := p.FetchContent(req)
	if err != nil {
		return domain.TaskHandle{}, err
	}

	var res submitTaskResponse
	if err := json.Unmarshal(rawRes, &res); err != nil {
		p.logger.Error(err, "Failed to unmarshal the submit response")
		return domain.TaskHandle{}, err
	}
	if res.TaskID == "" {
		return domain.TaskHandle{}, fmt.Errorf("%s provider returned an empty task id", p.kind)
	}

	return domain.TaskHandle{Kind: p.kind, TaskID: res.TaskID}, nil
}

// Query is an idempotent observation. Transport failures and provider 5xx
// come back as pending: only a provider-reported terminal failure fails the
// task.
func (p *providerTask) Query(ctx context.Context, handle domain.TaskHandle) (outbound.TaskResult, error) {
	if handle.Kind != p.kind {
		return outbound.TaskResult{}, fmt.Errorf("handle for %s provider queried against %s provider", handle.Kind, p.kind)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.conf.ApiUrl+"/tasks/"+handle.TaskID, nil)
	if err != nil {
		return outbound.TaskResult{}, err
	}
	req.Header.Add("Authorization", "Bearer "+p.conf.ApiKey)

	rawRes, err := p.FetchContent(req)
	if err != nil {
		var statusErr *HttpStatusError
		if errors.As(err, &statusErr) && !statusErr.Transient() {
			return outbound.TaskResult{}, err
		}
		p.logger.DebugWithFields("Treating transient query failure as pending", map[string]interface{}{
			"provider": string(p.kind),
			"task_id":  handle.TaskID,
		})
		return outbound.TaskResult{State: outbound.TaskPending}, nil
	}

	var res queryTaskResponse
	if err := json.Unmarshal(rawRes, &res); err != nil {
		p.logger.Error(err, "Failed to unmarshal the query response")
		return outbound.TaskResult{State: outbound.TaskPending}, nil
	}

	switch res.Status {
	case "completed", "succeeded":
		return outbound.TaskResult{State: outbound.TaskCompleted, ResultRef: res.ResultURL}, nil
	case "failed", "error":
		detail := res.Error
		if detail == "" {
			detail = "provider reported failure without detail"
		}
		return outbound.TaskResult{State: outbound.TaskFailed, ErrorDetail: detail}, nil
	default:
		return outbound.TaskResult{State: outbound.TaskPending}, nil
	}
}
