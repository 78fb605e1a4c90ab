package dto

import (
	"time"

	"promo-video-api/domain"
)

type JobResponse struct {
	ID               string                       `json:"id"`
	Stage            string                       `json:"stage"`
	FailedStep       string                       `json:"failed_step,omitempty"`
	LinkURL          string                       `json:"link_url,omitempty"`
	Description      string                       `json:"description,omitempty"`
	Product          *domain.ProductInfo          `json:"product,omitempty"`
	Config           *domain.JobConfig            `json:"config,omitempty"`
	Attempts         map[string]int               `json:"attempts,omitempty"`
	Outputs          map[string][]OutputResponse  `json:"outputs,omitempty"`
	VariantCount     int                          `json:"variant_count,omitempty"`
	CreditsCharged   int64                        `json:"credits_charged"`
	CreditsRefunded  int64                        `json:"credits_refunded"`
	PrimaryOutputRef string                       `json:"primary_output_ref,omitempty"`
	ErrorMessage     string                       `json:"error_message,omitempty"`
	CreatedAt        time.Time                    `json:"created_at"`
	CompletedAt      *time.Time                   `json:"completed_at,omitempty"`
}

type OutputResponse struct {
	Version   int       `json:"version"`
	Ref       string    `json:"ref"`
	CreatedAt time.Time `json:"created_at"`
}

type VariantResponse struct {
	ID           string `json:"id"`
	Index        int    `json:"index"`
	Attempt      int    `json:"attempt"`
	Status       string `json:"status"`
	ResultRef    string `json:"result_ref,omitempty"`
	ArchivedRef  string `json:"archived_ref,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

type JobDetailResponse struct {
	JobResponse
	Variants []VariantResponse `json:"variants,omitempty"`
}

type AdvanceStageResponse struct {
	JobID   string          `json:"job_id"`
	Stage   string          `json:"stage"`
	Attempt int             `json:"attempt,omitempty"`
	Output  *OutputResponse `json:"output,omitempty"`
	TaskID  string          `json:"task_id,omitempty"`
}

type StartBatchResponse struct {
	JobID    string            `json:"job_id"`
	Variants []VariantResponse `json:"variants"`
}

type SweepResponse struct {
	Checked int `json:"checked"`
	Updated int `json:"updated"`
}

func NewJobResponse(job *domain.Job) JobResponse {
	resp := JobResponse{
		ID:               job.ID,
		Stage:            string(job.Stage),
		FailedStep:       string(job.FailedStep),
		LinkURL:          job.Input.LinkURL,
		Description:      job.Input.Description,
		Product:          job.Product,
		Config:           job.Config,
		VariantCount:     job.VariantCount,
		CreditsCharged:   job.CreditsCharged,
		CreditsRefunded:  job.CreditsRefunded,
		PrimaryOutputRef: job.PrimaryOutputRef,
		ErrorMessage:     job.ErrorMessage,
		CreatedAt:        job.CreatedAt,
		CompletedAt:      job.CompletedAt,
	}
	if len(job.AttemptCounters) > 0 {
		resp.Attempts = make(map[string]int, len(job.AttemptCounters))
		for step, attempt := range job.AttemptCounters {
			resp.Attempts[string(step)] = attempt
		}
	}
	if len(job.Outputs) > 0 {
		resp.Outputs = make(map[string][]OutputResponse, len(job.Outputs))
		for step, outputs := range job.Outputs {
			converted := make([]OutputResponse, 0, len(outputs))
			for _, out := range outputs {
				converted = append(converted, OutputResponse{
					Version:   out.Version,
					Ref:       out.Ref,
					CreatedAt: out.CreatedAt,
				})
			}
			resp.Outputs[string(step)] = converted
		}
	}
	return resp
}

func NewVariantResponse(variant *domain.BatchVariant) VariantResponse {
	return VariantResponse{
		ID:           variant.ID,
		Index:        variant.Index,
		Attempt:      variant.Attempt,
		Status:       string(variant.Status),
		ResultRef:    variant.ResultRef,
		ArchivedRef:  variant.ArchivedRef,
		ErrorMessage: variant.ErrorMessage,
	}
}
