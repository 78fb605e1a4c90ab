package services

import (
	"fmt"
	"strings"

	"promo-video-api/domain"
)

func buildScriptPrompt(job *domain.Job) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write a %d second %s marketing video script for %q.",
		job.Config.DurationSeconds, job.Config.Style, job.Product.Title)
	if job.Config.Persona != "" {
		fmt.Fprintf(&b, " Target persona: %s.", job.Config.Persona)
	}
	if job.Product.Description != "" {
		fmt.Fprintf(&b, " Product: %s.", job.Product.Description)
	}
	if len(job.Product.Features) > 0 {
		fmt.Fprintf(&b, " Highlight: %s.", strings.Join(job.Product.Features, ", "))
	}
	return b.String()
}

func buildReferenceImagePrompt(job *domain.Job) string {
	return fmt.Sprintf("Composite product reference grid for %q, %s style, aspect ratio %s.",
		job.Product.Title, job.Config.Style, job.Config.AspectRatio)
}

// buildVideoPrompt carries a per-variant modifier so sibling variants are
// never byte-identical requests.
func buildVideoPrompt(job *domain.Job, variantIndex int) string {
	return fmt.Sprintf("Render marketing video for %q, voice %s, aspect ratio %s. Variation %d: alternate pacing and shot order.",
		job.Product.Title, job.Config.Voice, job.Config.AspectRatio, variantIndex+1)
}
