package adapters

import (
	"fmt"

	"promo-video-api/application/ports/outbound"
	"promo-video-api/domain"
)

type providerRegistry struct {
	providers map[domain.ProviderKind]outbound.ProviderPort
}

func NewProviderRegistry(providers ...outbound.ProviderPort) outbound.ProviderRegistry {
	byKind := make(map[domain.ProviderKind]outbound.ProviderPort, len(providers))
	for _, provider := range providers {
		byKind[provider.Kind()] = provider
	}
	return &providerRegistry{providers: byKind}
}

func (r *providerRegistry) For(kind domain.ProviderKind) (outbound.ProviderPort, error) {
	provider, ok := r.providers[kind]
	if !ok {
		return nil, fmt.Errorf("no provider registered for kind %q", kind)
	}
	return provider, nil
}
