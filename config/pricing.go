package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// PricingConfig is the injected fee schedule. It is business configuration
// loaded from a YAML file; the defaults only exist so local runs work
// without one.
type PricingConfig struct {
	FreeScriptAttempts int     `yaml:"free_script_attempts"`
	ScriptRewriteFees  []int64 `yaml:"script_rewrite_fees"`
	ReferenceImageCost int64   `yaml:"reference_image_cost"`
	VideoVariantCost   int64   `yaml:"video_variant_cost"`
}

func defaultPricingConfig() *PricingConfig {
	return &PricingConfig{
		FreeScriptAttempts: 3,
		ScriptRewriteFees:  []int64{10, 20, 40},
		ReferenceImageCost: 20,
		VideoVariantCost:   40,
	}
}

func GetPricingConfig() (*PricingConfig, error) {
	path := os.Getenv("PRICING_FILE")
	if path == "" {
		return defaultPricingConfig(), nil
	}

	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pricing file %s: %w", path, err)
	}

	conf := &PricingConfig{}
	if err := yaml.Unmarshal(payload, conf); err != nil {
		return nil, fmt.Errorf("failed to parse pricing file %s: %w", path, err)
	}

	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pricing file %s: %w", path, err)
	}

	return conf, nil
}

func (c *PricingConfig) Validate() error {
	if c.FreeScriptAttempts < 0 {
		return fmt.Errorf("free_script_attempts must not be negative")
	}
	if len(c.ScriptRewriteFees) == 0 {
		return fmt.Errorf("script_rewrite_fees must not be empty")
	}
	for i, fee := range c.ScriptRewriteFees {
		if fee < 0 {
			return fmt.Errorf("script_rewrite_fees[%d] must not be negative", i)
		}
		if i > 0 && fee < c.ScriptRewriteFees[i-1] {
			return fmt.Errorf("script_rewrite_fees must be non-decreasing, got %d after %d", fee, c.ScriptRewriteFees[i-1])
		}
	}
	if c.ReferenceImageCost < 0 || c.VideoVariantCost < 0 {
		return fmt.Errorf("costs must not be negative")
	}
	return nil
}
