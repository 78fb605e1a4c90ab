package adapters

import (
	"context"

	"promo-video-api/application/ports/outbound"
	"promo-video-api/config"
	"promo-video-api/domain"
)

type scriptTaskRequest struct {
	Model    string `json:"model,omitempty"`
	Prompt   string `json:"prompt"`
	Duration string `json:"duration,omitempty"`
	Persona  string `json:"persona,omitempty"`
}

type scriptProvider struct {
	providerTask
}

func NewScriptProvider(fetcher ContentFetcher, conf *config.ProviderConfig, logger outbound.LoggerPort) outbound.ProviderPort {
	return &scriptProvider{
		providerTask: providerTask{
			ContentFetcher: fetcher,
			logger:         logger,
			conf:           conf,
			kind:           domain.ScriptProviderKind,
		},
	}
}

func (s *scriptProvider) Submit(ctx context.Context, params outbound.SubmitTaskParams) (domain.TaskHandle, error) {
	return s.submit(ctx, scriptTaskRequest{
		Model:    s.conf.Model,
		Prompt:   params.Prompt,
		Duration: params.Inputs["duration"],
		Persona:  params.Inputs["persona"],
	})
}
