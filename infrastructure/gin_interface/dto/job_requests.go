package dto

type CreateJobRequest struct {
	LinkURL     string `json:"link_url"`
	Description string `json:"description"`
}

type AdvanceStageRequest struct {
	Step   string            `json:"step" binding:"required"`
	Retry  bool              `json:"retry"`
	Config *JobConfigPayload `json:"config"`
}

type JobConfigPayload struct {
	DurationSeconds int    `json:"duration_seconds"`
	AspectRatio     string `json:"aspect_ratio"`
	Style           string `json:"style"`
	Persona         string `json:"persona"`
	Voice           string `json:"voice"`
}

type StartBatchRequest struct {
	VariantCount int  `json:"variant_count" binding:"required"`
	Retry        bool `json:"retry"`
}
