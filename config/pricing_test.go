package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetPricingConfig_DefaultsWithoutFile(t *testing.T) {
	t.Setenv("PRICING_FILE", "")

	conf, err := GetPricingConfig()
	if err != nil {
		t.Fatal("failed to load defaults:", err)
	}
	if conf.FreeScriptAttempts != 3 {
		t.Fatal("unexpected default free attempts:", conf.FreeScriptAttempts)
	}
	if len(conf.ScriptRewriteFees) == 0 {
		t.Fatal("defaults must carry a fee schedule")
	}
	if err := conf.Validate(); err != nil {
		t.Fatal("defaults must validate:", err)
	}
}

func TestGetPricingConfig_LoadsYamlFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pricing.yaml")
	payload := []byte(`free_script_attempts: 1
script_rewrite_fees: [5, 15, 30]
reference_image_cost: 25
video_variant_cost: 50
`)
	if err := os.WriteFile(path, payload, 0644); err != nil {
		t.Fatal("failed to write pricing file:", err)
	}
	t.Setenv("PRICING_FILE", path)

	conf, err := GetPricingConfig()
	if err != nil {
		t.Fatal("failed to load pricing file:", err)
	}
	if conf.FreeScriptAttempts != 1 {
		t.Fatal("unexpected free attempts:", conf.FreeScriptAttempts)
	}
	if len(conf.ScriptRewriteFees) != 3 || conf.ScriptRewriteFees[2] != 30 {
		t.Fatal("unexpected fee schedule:", conf.ScriptRewriteFees)
	}
	if conf.ReferenceImageCost != 25 || conf.VideoVariantCost != 50 {
		t.Fatal("unexpected costs")
	}
}

func TestGetPricingConfig_RejectsDecreasingFees(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pricing.yaml")
	payload := []byte(`free_script_attempts: 1
script_rewrite_fees: [30, 10]
reference_image_cost: 25
video_variant_cost: 50
`)
	if err := os.WriteFile(path, payload, 0644); err != nil {
		t.Fatal("failed to write pricing file:", err)
	}
	t.Setenv("PRICING_FILE", path)

	if _, err := GetPricingConfig(); err == nil {
		t.Fatal("a decreasing fee schedule must be rejected")
	}
}

func TestPricingConfigValidate(t *testing.T) {
	bad := []*PricingConfig{
		{FreeScriptAttempts: -1, ScriptRewriteFees: []int64{10}},
		{ScriptRewriteFees: nil},
		{ScriptRewriteFees: []int64{-5}},
		{ScriptRewriteFees: []int64{10}, ReferenceImageCost: -1},
		{ScriptRewriteFees: []int64{10}, VideoVariantCost: -1},
	}
	for i, conf := range bad {
		if err := conf.Validate(); err == nil {
			t.Errorf("case %d: expected validation failure", i)
		}
	}

	good := &PricingConfig{
		FreeScriptAttempts: 0,
		ScriptRewriteFees:  []int64{10, 10, 20},
		ReferenceImageCost: 0,
		VideoVariantCost:   0,
	}
	if err := good.Validate(); err != nil {
		t.Fatal("expected valid config:", err)
	}
}
