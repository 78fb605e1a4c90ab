package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"promo-video-api/application/ports/inbound"
	"promo-video-api/application/ports/outbound"
	"promo-video-api/domain"
)

type jobPipeline struct {
	logger    outbound.LoggerPort
	jobs      outbound.JobStorePort
	ledger    inbound.CreditLedgerPort
	providers outbound.ProviderRegistry
	resolver  outbound.LinkResolverPort
	pricing   outbound.PricingPort
	batch     inbound.BatchExecutorPort
}

func NewJobPipeline(logger outbound.LoggerPort, jobs outbound.JobStorePort, ledger inbound.CreditLedgerPort,
	providers outbound.ProviderRegistry, resolver outbound.LinkResolverPort, pricing outbound.PricingPort,
	batch inbound.BatchExecutorPort) inbound.JobPipelinePort {
	return &jobPipeline{
		logger:    logger,
		jobs:      jobs,
		ledger:    ledger,
		providers: providers,
		resolver:  resolver,
		pricing:   pricing,
		batch:     batch,
	}
}

func (p *jobPipeline) CreateJob(ctx context.Context, params inbound.CreateJobParams) (*domain.Job, error) {
	if params.LinkURL == "" && strings.TrimSpace(params.Description) == "" {
		return nil, fmt.Errorf("either a product link or a description is required")
	}

	job := domain.NewJob(uuid.NewString(), params.UserID, domain.JobInput{
		LinkURL:     params.LinkURL,
		Description: strings.TrimSpace(params.Description),
	})

	if err := p.jobs.Create(ctx, job); err != nil {
		p.logger.Error(err, "Failed to persist new job")
		return nil, err
	}

	p.logger.InfoWithFields("Created job", map[string]interface{}{
		"job_id":  job.ID,
		"user_id": job.UserID,
	})

	return job, nil
}

func (p *jobPipeline) AdvanceStage(ctx context.Context, params inbound.AdvanceStageParams) (*inbound.StageOutput, error) {
	job, err := p.jobs.Get(ctx, params.JobID)
	if err != nil {
		return nil, err
	}
	if job.UserID != params.UserID {
		return nil, domain.ErrJobNotFound
	}

	switch params.Step {
	case domain.StepLinkResolution:
		return p.resolveLink(ctx, job)
	case domain.StepConfiguration:
		return p.configure(ctx, job, params.Config)
	case domain.StepScript, domain.StepReferenceImage:
		return p.dispatchGenerating(ctx, job, params.Step, params.Retry)
	case domain.StepOutput:
		count := job.VariantCount
		if count == 0 {
			count = 1
		}
		variants, err := p.batch.StartBatch(ctx, inbound.StartBatchParams{
			JobID:        job.ID,
			UserID:       job.UserID,
			VariantCount: count,
			Retry:        params.Retry,
		})
		if err != nil {
			return nil, err
		}
		out := &inbound.StageOutput{
			Stage:   domain.StageGeneratingOutput,
			Attempt: job.Attempt(domain.StepOutput) + 1,
		}
		if len(variants) > 0 {
			out.Handle = variants[0].Handle
		}
		return out, nil
	}

	return nil, fmt.Errorf("unknown stage %q", params.Step)
}

func (p *jobPipeline) resolveLink(ctx context.Context, job *domain.Job) (*inbound.StageOutput, error) {
	if job.Stage != domain.StageCreated {
		return nil, domain.ErrPreconditionNotMet
	}

	var product *domain.ProductInfo
	if job.Input.Description != "" {
		product = productFromDescription(job.Input.Description)
	} else {
		resolved, err := p.resolver.Resolve(ctx, job.Input.LinkURL)
		if err != nil {
			p.logger.ErrorWithFields(err, "Link resolution failed", map[string]interface{}{
				"job_id": job.ID,
				"url":    job.Input.LinkURL,
			})
			return nil, err
		}
		product = resolved
	}

	job.Product = product
	job.Stage = domain.StageLinkResolved
	if err := p.jobs.Update(ctx, job); err != nil {
		return nil, err
	}

	return &inbound.StageOutput{Stage: job.Stage}, nil
}

func productFromDescription(description string) *domain.ProductInfo {
	title := description
	if len(title) > 80 {
		title = title[:80]
	}
	return &domain.ProductInfo{
		Title:       title,
		Description: description,
	}
}

func (p *jobPipeline) configure(ctx context.Context, job *domain.Job, conf *domain.JobConfig) (*inbound.StageOutput, error) {
	if job.Stage != domain.StageLinkResolved && job.Stage != domain.StageConfigured {
		return nil, domain.ErrPreconditionNotMet
	}
	if conf == nil || conf.DurationSeconds <= 0 || conf.AspectRatio == "" {
		return nil, fmt.Errorf("configuration requires a positive duration and an aspect ratio")
	}

	job.Config = conf
	job.Stage = domain.StageConfigured
	if err := p.jobs.Update(ctx, job); err != nil {
		return nil, err
	}

	return &inbound.StageOutput{Stage: job.Stage}, nil
}

// dispatchGenerating drives the charged submit path for the script and
// reference-image steps: claim the generating state with a CAS, charge
// synchronously, then dispatch. A failed dispatch reverses the charge and
// rolls the stage back to where it was.
func (p *jobPipeline) dispatchGenerating(ctx context.Context, job *domain.Job, step domain.Step, retry bool) (*inbound.StageOutput, error) {
	if err := domain.CanStartStep(job, step, retry); err != nil {
		return nil, err
	}

	attempt := job.Attempt(step) + 1
	ref := domain.NewChargeRef(job.ID, step, attempt)

	var fee int64
	switch step {
	case domain.StepScript:
		fee = p.pricing.ScriptFee(attempt)
	case domain.StepReferenceImage:
		// the first charge covers later regenerations
		if attempt == 1 {
			fee = p.pricing.ReferenceImageCost()
		}
	}

	if fee > 0 {
		if _, _, err := p.ledger.Charge(ctx, job.UserID, fee, step.ReasonCode(), ref); err != nil {
			return nil, err
		}
	}

	job.Stage = step.GeneratingStage()
	job.AttemptCounters[step] = attempt
	job.StageStartedAt = time.Now().UTC()
	job.CurrentTask = nil
	job.FailedStep = ""
	job.ErrorMessage = ""
	job.CompletedAt = nil
	job.CreditsCharged += fee
	if err := p.jobs.Update(ctx, job); err != nil {
		// the charge, if any, stays with whoever won the race: the ref is
		// shared and the winner's dispatch is the charged attempt
		return nil, err
	}

	provider, err := p.providers.For(step.Provider())
	if err != nil {
		return nil, err
	}

	handle, err := provider.Submit(ctx, p.submitParams(job, step))
	if err != nil {
		p.logger.ErrorWithFields(err, "Provider submit failed, reversing charge", map[string]interface{}{
			"job_id":  job.ID,
			"stage":   string(step),
			"attempt": attempt,
		})
		refunded, refundErr := p.ledger.RefundCharge(ctx, job.UserID, domain.ReasonRefund, ref)
		if refundErr != nil {
			p.logger.Error(refundErr, "Failed to reverse charge after submit failure")
		}
		job.Stage = step.RevertStage(attempt)
		job.CurrentTask = nil
		job.CreditsRefunded += refunded
		if updateErr := p.jobs.Update(ctx, job); updateErr != nil {
			p.logger.Error(updateErr, "Failed to roll back stage after submit failure")
		}
		return nil, &domain.ProviderSubmitError{Kind: step.Provider(), Cause: err}
	}

	job.CurrentTask = &handle
	if err := p.jobs.Update(ctx, job); err != nil {
		if !errors.Is(err, domain.ErrConcurrencyConflict) {
			return nil, err
		}
		// a concurrent refresh touched the job between the claim and the
		// handle write; re-attach once if this attempt is still in flight,
		// otherwise the dispatched task would idle until the hard timeout
		fresh, getErr := p.jobs.Get(ctx, job.ID)
		if getErr != nil || fresh.Stage != step.GeneratingStage() || fresh.Attempt(step) != attempt {
			return nil, err
		}
		fresh.CurrentTask = &handle
		if retryErr := p.jobs.Update(ctx, fresh); retryErr != nil {
			return nil, err
		}
		job = fresh
	}

	p.logger.InfoWithFields("Dispatched generation task", map[string]interface{}{
		"job_id":  job.ID,
		"stage":   string(step),
		"attempt": attempt,
		"task_id": handle.TaskID,
	})

	return &inbound.StageOutput{
		Stage:   job.Stage,
		Attempt: attempt,
		Handle:  &handle,
	}, nil
}

func (p *jobPipeline) submitParams(job *domain.Job, step domain.Step) outbound.SubmitTaskParams {
	switch step {
	case domain.StepScript:
		return outbound.SubmitTaskParams{
			Prompt: buildScriptPrompt(job),
			Inputs: map[string]string{
				"duration": fmt.Sprintf("%d", job.Config.DurationSeconds),
				"persona":  job.Config.Persona,
			},
		}
	case domain.StepReferenceImage:
		inputs := map[string]string{
			"aspect_ratio": job.Config.AspectRatio,
		}
		if script := job.LatestOutput(domain.StepScript); script != nil {
			inputs["script_ref"] = script.Ref
		}
		if job.Product.ImageURL != "" {
			inputs["image_url"] = job.Product.ImageURL
		}
		return outbound.SubmitTaskParams{
			Prompt: buildReferenceImagePrompt(job),
			Inputs: inputs,
		}
	}
	return outbound.SubmitTaskParams{}
}
