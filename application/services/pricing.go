package services

import (
	"promo-video-api/application/ports/outbound"
	"promo-video-api/config"
)

type schedulePricing struct {
	conf *config.PricingConfig
}

func NewSchedulePricing(conf *config.PricingConfig) outbound.PricingPort {
	return &schedulePricing{conf: conf}
}

func (p *schedulePricing) ScriptFee(attempt int) int64 {
	if attempt <= p.conf.FreeScriptAttempts {
		return 0
	}
	idx := attempt - p.conf.FreeScriptAttempts - 1
	fees := p.conf.ScriptRewriteFees
	if idx >= len(fees) {
		idx = len(fees) - 1
	}
	return fees[idx]
}

func (p *schedulePricing) ReferenceImageCost() int64 {
	return p.conf.ReferenceImageCost
}

func (p *schedulePricing) VideoVariantCost() int64 {
	return p.conf.VideoVariantCost
}
