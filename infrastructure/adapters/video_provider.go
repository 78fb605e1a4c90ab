package adapters

import (
	"context"

	"promo-video-api/application/ports/outbound"
	"promo-video-api/config"
	"promo-video-api/domain"
)

type videoTaskRequest struct {
	Model        string `json:"model,omitempty"`
	Prompt       string `json:"prompt"`
	ScriptRef    string `json:"script_ref,omitempty"`
	ReferenceRef string `json:"reference_ref,omitempty"`
	AspectRatio  string `json:"aspect_ratio,omitempty"`
	Duration     string `json:"duration,omitempty"`
}

type videoProvider struct {
	providerTask
}

func NewVideoProvider(fetcher ContentFetcher, conf *config.ProviderConfig, logger outbound.LoggerPort) outbound.ProviderPort {
	return &videoProvider{
		providerTask: providerTask{
			ContentFetcher: fetcher,
			logger:         logger,
			conf:           conf,
			kind:           domain.VideoProviderKind,
		},
	}
}

func (v *videoProvider) Submit(ctx context.Context, params outbound.SubmitTaskParams) (domain.TaskHandle, error) {
	return v.submit(ctx, videoTaskRequest{
		Model:        v.conf.Model,
		Prompt:       params.Prompt,
		ScriptRef:    params.Inputs["script_ref"],
		ReferenceRef: params.Inputs["reference_ref"],
		AspectRatio:  params.Inputs["aspect_ratio"],
		Duration:     params.Inputs["duration"],
	})
}
