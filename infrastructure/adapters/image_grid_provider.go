package adapters

import (
	"context"

	"promo-video-api/application/ports/outbound"
	"promo-video-api/config"
	"promo-video-api/domain"
)

type imageGridTaskRequest struct {
	Model       string `json:"model,omitempty"`
	Prompt      string `json:"prompt"`
	AspectRatio string `json:"aspect_ratio,omitempty"`
	ScriptRef   string `json:"script_ref,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
}

type imageGridProvider struct {
	providerTask
}

func NewImageGridProvider(fetcher ContentFetcher, conf *config.ProviderConfig, logger outbound.LoggerPort) outbound.ProviderPort {
	return &imageGridProvider{
		providerTask: providerTask{
			ContentFetcher: fetcher,
			logger:         logger,
			conf:           conf,
			kind:           domain.ImageGridProviderKind,
		},
	}
}

func (g *imageGridProvider) Submit(ctx context.Context, params outbound.SubmitTaskParams) (domain.TaskHandle, error) {
	return g.submit(ctx, imageGridTaskRequest{
		Model:       g.conf.Model,
		Prompt:      params.Prompt,
		AspectRatio: params.Inputs["aspect_ratio"],
		ScriptRef:   params.Inputs["script_ref"],
		ImageURL:    params.Inputs["image_url"],
	})
}
