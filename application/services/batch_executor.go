package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"promo-video-api/application/ports/inbound"
	"promo-video-api/application/ports/outbound"
	"promo-video-api/domain"
)

// batchExecutor fans one output request into N independently charged and
// independently polled provider tasks. Submission runs on the shared bounded
// pool; a submit failure settles only its own variant.
type batchExecutor struct {
	logger      outbound.LoggerPort
	jobs        outbound.JobStorePort
	variants    outbound.BatchStorePort
	ledger      inbound.CreditLedgerPort
	providers   outbound.ProviderRegistry
	pricing     outbound.PricingPort
	dispatcher  outbound.TaskDispatcher
	maxVariants int
}

func NewBatchExecutor(logger outbound.LoggerPort, jobs outbound.JobStorePort, variants outbound.BatchStorePort,
	ledger inbound.CreditLedgerPort, providers outbound.ProviderRegistry, pricing outbound.PricingPort,
	dispatcher outbound.TaskDispatcher, maxVariants int) inbound.BatchExecutorPort {
	return &batchExecutor{
		logger:      logger,
		jobs:        jobs,
		variants:    variants,
		ledger:      ledger,
		providers:   providers,
		pricing:     pricing,
		dispatcher:  dispatcher,
		maxVariants: maxVariants,
	}
}

func (b *batchExecutor) StartBatch(ctx context.Context, params inbound.StartBatchParams) ([]*domain.BatchVariant, error) {
	if params.VariantCount < 1 || params.VariantCount > b.maxVariants {
		return nil, fmt.Errorf("variant count must be between 1 and %d", b.maxVariants)
	}

	job, err := b.jobs.Get(ctx, params.JobID)
	if err != nil {
		return nil, err
	}
	if job.UserID != params.UserID {
		return nil, domain.ErrJobNotFound
	}
	if err := domain.CanStartStep(job, domain.StepOutput, params.Retry); err != nil {
		return nil, err
	}

	provider, err := b.providers.For(domain.VideoProviderKind)
	if err != nil {
		return nil, err
	}

	attempt := job.Attempt(domain.StepOutput) + 1

	// claim the generating state before anything is charged or dispatched;
	// losing this CAS means another caller owns the attempt
	job.Stage = domain.StageGeneratingOutput
	job.AttemptCounters[domain.StepOutput] = attempt
	job.StageStartedAt = time.Now().UTC()
	job.VariantCount = params.VariantCount
	job.CurrentTask = nil
	job.FailedStep = ""
	job.ErrorMessage = ""
	job.CompletedAt = nil
	if err := b.jobs.Update(ctx, job); err != nil {
		return nil, err
	}

	variants := make([]*domain.BatchVariant, params.VariantCount)
	for i := range variants {
		variant := &domain.BatchVariant{
			ID:        uuid.NewString(),
			JobID:     job.ID,
			Index:     i,
			Attempt:   attempt,
			Status:    domain.VariantPending,
			CreatedAt: time.Now().UTC(),
			UpdatedAt: time.Now().UTC(),
		}
		if err := b.variants.CreateVariant(ctx, variant); err != nil {
			return nil, err
		}
		variants[i] = variant
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var charged, refunded int64

	for _, variant := range variants {
		wg.Add(1)
		v := variant
		submitErr := b.dispatcher.Submit(func() {
			defer wg.Done()
			chargedAmt, refundedAmt := b.submitVariant(ctx, job, v, provider, params.Retry)
			mu.Lock()
			charged += chargedAmt
			refunded += refundedAmt
			mu.Unlock()
		})
		if submitErr != nil {
			wg.Done()
			b.failVariant(ctx, v, fmt.Sprintf("dispatch rejected: %v", submitErr))
		}
	}
	wg.Wait()

	if charged > 0 || refunded > 0 {
		job.CreditsCharged += charged
		job.CreditsRefunded += refunded
		if err := b.jobs.Update(ctx, job); err != nil {
			b.logger.Error(err, "Failed to record batch credit totals on job")
		}
	}

	b.logger.InfoWithFields("Batch submitted", map[string]interface{}{
		"job_id":   job.ID,
		"attempt":  attempt,
		"variants": len(variants),
	})

	return variants, nil
}

// submitVariant charges and dispatches one variant. Returns the amounts
// actually charged and refunded for the job's counters.
func (b *batchExecutor) submitVariant(ctx context.Context, job *domain.Job, variant *domain.BatchVariant,
	provider outbound.ProviderPort, retry bool) (int64, int64) {
	ref := domain.NewVariantChargeRef(job.ID, variant.Attempt, variant.Index)

	var fee int64
	if !retry {
		fee = b.pricing.VideoVariantCost()
	}

	var charged int64
	if fee > 0 {
		_, created, err := b.ledger.Charge(ctx, job.UserID, fee, domain.ReasonOutputVariant, ref)
		if err != nil {
			b.failVariant(ctx, variant, fmt.Sprintf("charge failed: %v", err))
			return 0, 0
		}
		if created {
			charged = fee
		}
	}

	handle, err := provider.Submit(ctx, outbound.SubmitTaskParams{
		Prompt: buildVideoPrompt(job, variant.Index),
		Inputs: b.variantInputs(job),
	})
	if err != nil {
		refunded, refundErr := b.ledger.RefundCharge(ctx, job.UserID, domain.ReasonRefund, ref)
		if refundErr != nil {
			b.logger.Error(refundErr, "Failed to reverse variant charge after submit failure")
		}
		b.failVariant(ctx, variant, fmt.Sprintf("provider submit failed: %v", err))
		return charged, refunded
	}

	variant.Handle = &handle
	variant.Status = domain.VariantGenerating
	variant.UpdatedAt = time.Now().UTC()
	if err := b.variants.UpdateVariant(ctx, variant); err != nil {
		b.logger.ErrorWithFields(err, "Failed to record variant handle", map[string]interface{}{
			"job_id":     job.ID,
			"variant_id": variant.ID,
		})
	}

	return charged, 0
}

func (b *batchExecutor) variantInputs(job *domain.Job) map[string]string {
	inputs := map[string]string{
		"aspect_ratio": job.Config.AspectRatio,
		"duration":     fmt.Sprintf("%d", job.Config.DurationSeconds),
	}
	if script := job.LatestOutput(domain.StepScript); script != nil {
		inputs["script_ref"] = script.Ref
	}
	if reference := job.LatestOutput(domain.StepReferenceImage); reference != nil {
		inputs["reference_ref"] = reference.Ref
	}
	return inputs
}

func (b *batchExecutor) failVariant(ctx context.Context, variant *domain.BatchVariant, message string) {
	variant.Status = domain.VariantFailed
	variant.ErrorMessage = message
	variant.UpdatedAt = time.Now().UTC()
	if err := b.variants.UpdateVariant(ctx, variant); err != nil {
		b.logger.ErrorWithFields(err, "Failed to mark variant failed", map[string]interface{}{
			"variant_id": variant.ID,
		})
	}
}
