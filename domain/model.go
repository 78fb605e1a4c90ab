package domain

import (
	"fmt"
	"time"
)

type ProviderKind string

const (
	ScriptProviderKind    ProviderKind = "script"
	ImageGridProviderKind ProviderKind = "image_grid"
	VideoProviderKind     ProviderKind = "video"
)

// TaskHandle identifies one in-flight task at an external generation provider.
// A handle is only meaningful to the provider kind that issued it.
type TaskHandle struct {
	Kind   ProviderKind `json:"kind"`
	TaskID string       `json:"task_id"`
}

type JobInput struct {
	LinkURL     string `json:"link_url,omitempty"`
	Description string `json:"description,omitempty"`
}

type ProductInfo struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Features    []string `json:"features,omitempty"`
	ImageURL    string   `json:"image_url,omitempty"`
	Price       string   `json:"price,omitempty"`
}

type JobConfig struct {
	DurationSeconds int    `json:"duration_seconds"`
	AspectRatio     string `json:"aspect_ratio"`
	Style           string `json:"style"`
	Persona         string `json:"persona"`
	Voice           string `json:"voice"`
}

// VersionedOutput is one immutable stage result. Retries append new versions,
// they never overwrite old ones.
type VersionedOutput struct {
	Version   int       `json:"version"`
	Ref       string    `json:"ref"`
	CreatedAt time.Time `json:"created_at"`
}

type Job struct {
	ID               string
	UserID           string
	Stage            Stage
	FailedStep       Step
	Input            JobInput
	Product          *ProductInfo
	Config           *JobConfig
	AttemptCounters  map[Step]int
	Outputs          map[Step][]VersionedOutput
	VariantCount     int
	CurrentTask      *TaskHandle
	StageStartedAt   time.Time
	CreditsCharged   int64
	CreditsRefunded  int64
	PrimaryOutputRef string
	ErrorMessage     string
	CreatedAt        time.Time
	CompletedAt      *time.Time
	Version          int64
}

func NewJob(id string, userID string, input JobInput) *Job {
	return &Job{
		ID:              id,
		UserID:          userID,
		Stage:           StageCreated,
		Input:           input,
		AttemptCounters: make(map[Step]int),
		Outputs:         make(map[Step][]VersionedOutput),
		CreatedAt:       time.Now().UTC(),
	}
}

func (j *Job) Attempt(step Step) int {
	return j.AttemptCounters[step]
}

func (j *Job) LatestOutput(step Step) *VersionedOutput {
	outputs := j.Outputs[step]
	if len(outputs) == 0 {
		return nil
	}
	return &outputs[len(outputs)-1]
}

func (j *Job) AppendOutput(step Step, ref string) VersionedOutput {
	out := VersionedOutput{
		Version:   len(j.Outputs[step]) + 1,
		Ref:       ref,
		CreatedAt: time.Now().UTC(),
	}
	j.Outputs[step] = append(j.Outputs[step], out)
	return out
}

func (j *Job) Clone() *Job {
	clone := *j
	clone.AttemptCounters = make(map[Step]int, len(j.AttemptCounters))
	for step, attempt := range j.AttemptCounters {
		clone.AttemptCounters[step] = attempt
	}
	clone.Outputs = make(map[Step][]VersionedOutput, len(j.Outputs))
	for step, outputs := range j.Outputs {
		clone.Outputs[step] = append([]VersionedOutput(nil), outputs...)
	}
	if j.Product != nil {
		product := *j.Product
		clone.Product = &product
	}
	if j.Config != nil {
		conf := *j.Config
		clone.Config = &conf
	}
	if j.CurrentTask != nil {
		task := *j.CurrentTask
		clone.CurrentTask = &task
	}
	if j.CompletedAt != nil {
		completed := *j.CompletedAt
		clone.CompletedAt = &completed
	}
	return &clone
}

type VariantStatus string

const (
	VariantPending    VariantStatus = "pending"
	VariantGenerating VariantStatus = "generating"
	VariantCompleted  VariantStatus = "completed"
	VariantFailed     VariantStatus = "failed"
)

func (s VariantStatus) Terminal() bool {
	return s == VariantCompleted || s == VariantFailed
}

// BatchVariant is one independently generated candidate of a job's output
// stage. Variants of the same attempt only interact at aggregation time.
type BatchVariant struct {
	ID           string
	JobID        string
	Index        int
	Attempt      int
	Handle       *TaskHandle
	Status       VariantStatus
	ResultRef    string
	ArchivedRef  string
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Version      int64
}

func (v *BatchVariant) Clone() *BatchVariant {
	clone := *v
	if v.Handle != nil {
		handle := *v.Handle
		clone.Handle = &handle
	}
	return &clone
}

const (
	ReasonScriptGeneration = "script_generation"
	ReasonReferenceImage   = "reference_image"
	ReasonOutputVariant    = "output_variant"
	ReasonRefund           = "refund"
	ReasonTimeout          = "timeout"
)

// ChargeRef ties a ledger transaction to the logical step that caused it.
// Each distinct ref may carry at most one charge and at most one refund.
type ChargeRef struct {
	JobID   string
	Step    Step
	Attempt int
	Variant int
}

func NewChargeRef(jobID string, step Step, attempt int) ChargeRef {
	return ChargeRef{JobID: jobID, Step: step, Attempt: attempt, Variant: -1}
}

func NewVariantChargeRef(jobID string, attempt int, variant int) ChargeRef {
	return ChargeRef{JobID: jobID, Step: StepOutput, Attempt: attempt, Variant: variant}
}

func (r ChargeRef) String() string {
	if r.Variant < 0 {
		return fmt.Sprintf("%s:%s:%d", r.JobID, r.Step, r.Attempt)
	}
	return fmt.Sprintf("%s:%s:%d:v%d", r.JobID, r.Step, r.Attempt, r.Variant)
}

// CreditTransaction is an immutable ledger entry. Negative amounts are
// charges, positive amounts are refunds. Replaying a user's ordered entries
// must reduce to the current balance.
type CreditTransaction struct {
	ID            string
	UserID        string
	Amount        int64
	ReasonCode    string
	ReasonRef     string
	BalanceBefore int64
	BalanceAfter  int64
	CreatedAt     time.Time
}

func (t *CreditTransaction) IsCharge() bool {
	return t.Amount < 0
}
