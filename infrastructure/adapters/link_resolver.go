package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"promo-video-api/application/ports/outbound"
	"promo-video-api/config"
	"promo-video-api/domain"
)

type resolveLinkRequest struct {
	URL string `json:"url"`
}

type resolveLinkResponse struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Features    []string `json:"features"`
	ImageURL    string   `json:"image_url"`
	Price       string   `json:"price"`
	Error       string   `json:"error"`
}

type linkResolver struct {
	ContentFetcher
	logger outbound.LoggerPort
	conf   *config.LinkResolverConfig
}

func NewLinkResolver(fetcher ContentFetcher, conf *config.LinkResolverConfig, logger outbound.LoggerPort) outbound.LinkResolverPort {
	return &linkResolver{
		ContentFetcher: fetcher,
		logger:         logger,
		conf:           conf,
	}
}

func (l *linkResolver) Resolve(ctx context.Context, rawURL string) (*domain.ProductInfo, error) {
	payload, err := json.Marshal(resolveLinkRequest{URL: rawURL})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.conf.ApiUrl+"/resolve", bytes.NewBuffer(payload))
	if err != nil {
		l.logger.Error(err, "Failed to create the resolve request")
		return nil, err
	}
	req.Header.Add("Content-Type", "application/json")
	if l.conf.Token != "" {
		req.Header.Add("Authorization", "Bearer "+l.conf.Token)
	}

	rawRes, err := l.FetchContent(req)
	if err != nil {
		var statusErr *HttpStatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusUnprocessableEntity {
			detail := statusErr.Body
			var body resolveLinkResponse
			if json.Unmarshal([]byte(statusErr.Body), &body) == nil && body.Error != "" {
				detail = body.Error
			}
			return nil, &outbound.LinkParseError{URL: rawURL, Detail: detail}
		}
		return nil, err
	}

	var res resolveLinkResponse
	if err := json.Unmarshal(rawRes, &res); err != nil {
		l.logger.Error(err, "Failed to unmarshal the resolve response")
		return nil, err
	}
	if res.Title == "" {
		return nil, &outbound.LinkParseError{URL: rawURL, Detail: "resolver returned no product title"}
	}

	return &domain.ProductInfo{
		Title:       res.Title,
		Description: res.Description,
		Features:    res.Features,
		ImageURL:    res.ImageURL,
		Price:       res.Price,
	}, nil
}
