package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"promo-video-api/application/ports/inbound"
	"promo-video-api/application/ports/outbound"
	"promo-video-api/domain"
)

// statusSweeper advances in-flight jobs by polling their provider handles.
// It never pushes: all progress happens inside a caller-issued refresh, and
// each refresh performs at most one query per handle. Lost CAS races are
// absorbed; the caller's next poll observes whatever the winner wrote.
type statusSweeper struct {
	logger          outbound.LoggerPort
	jobs            outbound.JobStorePort
	variants        outbound.BatchStorePort
	ledger          inbound.CreditLedgerPort
	providers       outbound.ProviderRegistry
	archiver        outbound.OutputArchiverPort
	timeouts        map[domain.Step]time.Duration
	pollConcurrency int
}

func NewStatusSweeper(logger outbound.LoggerPort, jobs outbound.JobStorePort, variants outbound.BatchStorePort,
	ledger inbound.CreditLedgerPort, providers outbound.ProviderRegistry, archiver outbound.OutputArchiverPort,
	timeouts map[domain.Step]time.Duration, pollConcurrency int) inbound.StatusSweeperPort {
	if pollConcurrency < 1 {
		pollConcurrency = 1
	}
	return &statusSweeper{
		logger:          logger,
		jobs:            jobs,
		variants:        variants,
		ledger:          ledger,
		providers:       providers,
		archiver:        archiver,
		timeouts:        timeouts,
		pollConcurrency: pollConcurrency,
	}
}

func (s *statusSweeper) RefreshJob(ctx context.Context, jobID string) (*inbound.JobSnapshot, error) {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if _, err := s.refresh(ctx, job); err != nil {
		return nil, err
	}

	variants, err := s.variants.ListVariantsByJob(ctx, job.ID)
	if err != nil {
		return nil, err
	}

	return &inbound.JobSnapshot{Job: job, Variants: variants}, nil
}

func (s *statusSweeper) RefreshAllProcessing(ctx context.Context, userID string) (inbound.SweepResult, error) {
	jobs, err := s.jobs.ListProcessingByUser(ctx, userID)
	if err != nil {
		return inbound.SweepResult{}, err
	}

	var mu sync.Mutex
	updated := 0

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.pollConcurrency)
	for _, job := range jobs {
		j := job
		group.Go(func() error {
			changed, refreshErr := s.refresh(groupCtx, j)
			if refreshErr != nil {
				s.logger.ErrorWithFields(refreshErr, "Refresh failed during sweep", map[string]interface{}{
					"job_id": j.ID,
				})
				return nil // one stuck job must not stop the sweep
			}
			if changed {
				mu.Lock()
				updated++
				mu.Unlock()
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return inbound.SweepResult{}, err
	}

	return inbound.SweepResult{Checked: len(jobs), Updated: updated}, nil
}

func (s *statusSweeper) refresh(ctx context.Context, job *domain.Job) (bool, error) {
	if !job.Stage.Generating() {
		return false, nil
	}

	step, ok := domain.GeneratingStep(job.Stage)
	if !ok {
		return false, nil
	}

	if step == domain.StepOutput {
		return s.refreshOutput(ctx, job)
	}
	return s.refreshSingle(ctx, job, step)
}

func (s *statusSweeper) timedOut(job *domain.Job, step domain.Step) bool {
	timeout, ok := s.timeouts[step]
	if !ok {
		return false
	}
	return time.Since(job.StageStartedAt) > timeout
}

func (s *statusSweeper) refreshSingle(ctx context.Context, job *domain.Job, step domain.Step) (bool, error) {
	if s.timedOut(job, step) {
		return s.failStep(ctx, job, step, domain.ReasonTimeout,
			fmt.Sprintf("%s generation timed out", step))
	}

	if job.CurrentTask == nil {
		return false, nil
	}

	provider, err := s.providers.For(job.CurrentTask.Kind)
	if err != nil {
		return false, err
	}

	result, err := provider.Query(ctx, *job.CurrentTask)
	if err != nil {
		s.logger.ErrorWithFields(err, "Provider query failed", map[string]interface{}{
			"job_id":  job.ID,
			"task_id": job.CurrentTask.TaskID,
		})
		return false, nil
	}

	switch result.State {
	case outbound.TaskCompleted:
		output := job.AppendOutput(step, result.ResultRef)
		job.Stage = step.ReadyStage()
		job.CurrentTask = nil
		if err := s.update(ctx, job); err != nil {
			return false, err
		}
		s.logger.InfoWithFields("Stage completed", map[string]interface{}{
			"job_id":  job.ID,
			"stage":   string(step),
			"version": output.Version,
		})
		return true, nil
	case outbound.TaskFailed:
		return s.failStep(ctx, job, step, domain.ReasonRefund,
			fmt.Sprintf("%s generation failed: %s", step, result.ErrorDetail))
	}

	return false, nil
}

// failStep force-transitions a single-task generating stage to failed and
// reverses the attempt's charge exactly once.
func (s *statusSweeper) failStep(ctx context.Context, job *domain.Job, step domain.Step, reasonCode string, message string) (bool, error) {
	ref := domain.NewChargeRef(job.ID, step, job.Attempt(step))
	refunded, err := s.ledger.RefundCharge(ctx, job.UserID, reasonCode, ref)
	if err != nil {
		return false, err
	}

	now := time.Now().UTC()
	job.Stage = domain.StageFailed
	job.FailedStep = step
	job.ErrorMessage = message
	job.CurrentTask = nil
	job.CompletedAt = &now
	job.CreditsRefunded += refunded
	if err := s.update(ctx, job); err != nil {
		return false, err
	}

	s.logger.WarnWithFields("Stage failed", map[string]interface{}{
		"job_id":   job.ID,
		"stage":    string(step),
		"reason":   reasonCode,
		"refunded": refunded,
	})
	return true, nil
}

func (s *statusSweeper) refreshOutput(ctx context.Context, job *domain.Job) (bool, error) {
	all, err := s.variants.ListVariantsByJob(ctx, job.ID)
	if err != nil {
		return false, err
	}

	attempt := job.Attempt(domain.StepOutput)
	current := make([]*domain.BatchVariant, 0, len(all))
	for _, variant := range all {
		if variant.Attempt == attempt {
			current = append(current, variant)
		}
	}
	if len(current) == 0 {
		return false, nil
	}

	expired := s.timedOut(job, domain.StepOutput)

	var mu sync.Mutex
	var refunded int64
	changed := false

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.pollConcurrency)
	for _, variant := range current {
		if variant.Status.Terminal() {
			continue
		}
		v := variant
		group.Go(func() error {
			amount, variantChanged := s.refreshVariant(groupCtx, job, v, expired)
			mu.Lock()
			refunded += amount
			changed = changed || variantChanged
			mu.Unlock()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return false, err
	}

	if refunded > 0 {
		job.CreditsRefunded += refunded
	}

	for _, variant := range current {
		if !variant.Status.Terminal() {
			if refunded > 0 {
				if err := s.update(ctx, job); err != nil {
					return changed, err
				}
			}
			return changed || refunded > 0, nil
		}
	}

	return s.aggregate(ctx, job, current)
}

// refreshVariant settles one variant, returning the amount refunded for it
// and whether anything changed.
func (s *statusSweeper) refreshVariant(ctx context.Context, job *domain.Job, variant *domain.BatchVariant, expired bool) (int64, bool) {
	ref := domain.NewVariantChargeRef(job.ID, variant.Attempt, variant.Index)

	if expired {
		amount, err := s.ledger.RefundCharge(ctx, job.UserID, domain.ReasonTimeout, ref)
		if err != nil {
			s.logger.Error(err, "Failed to refund timed out variant")
			return 0, false
		}
		variant.Status = domain.VariantFailed
		variant.ErrorMessage = "video generation timed out"
		variant.UpdatedAt = time.Now().UTC()
		s.updateVariant(ctx, variant)
		return amount, true
	}

	if variant.Handle == nil {
		return 0, false
	}

	provider, err := s.providers.For(variant.Handle.Kind)
	if err != nil {
		s.logger.Error(err, "No provider for variant handle")
		return 0, false
	}

	result, err := provider.Query(ctx, *variant.Handle)
	if err != nil {
		s.logger.ErrorWithFields(err, "Provider query failed", map[string]interface{}{
			"job_id":     job.ID,
			"variant_id": variant.ID,
		})
		return 0, false
	}

	switch result.State {
	case outbound.TaskCompleted:
		variant.Status = domain.VariantCompleted
		variant.ResultRef = result.ResultRef
		if s.archiver != nil {
			archived, archiveErr := s.archiver.Archive(ctx, job.ID, variant.Index, result.ResultRef)
			if archiveErr != nil {
				s.logger.ErrorWithFields(archiveErr, "Failed to archive variant output", map[string]interface{}{
					"variant_id": variant.ID,
				})
			} else {
				variant.ArchivedRef = archived
			}
		}
		variant.UpdatedAt = time.Now().UTC()
		s.updateVariant(ctx, variant)
		return 0, true
	case outbound.TaskFailed:
		amount, refundErr := s.ledger.RefundCharge(ctx, job.UserID, domain.ReasonRefund, ref)
		if refundErr != nil {
			s.logger.Error(refundErr, "Failed to refund failed variant")
		}
		variant.Status = domain.VariantFailed
		variant.ErrorMessage = fmt.Sprintf("video generation failed: %s", result.ErrorDetail)
		variant.UpdatedAt = time.Now().UTC()
		s.updateVariant(ctx, variant)
		return amount, true
	}

	return 0, false
}

// aggregate computes the job's terminal state once every variant of the
// current attempt has settled.
func (s *statusSweeper) aggregate(ctx context.Context, job *domain.Job, current []*domain.BatchVariant) (bool, error) {
	completed := 0
	failed := 0
	var firstFailure string
	for _, variant := range current {
		switch variant.Status {
		case domain.VariantCompleted:
			completed++
		case domain.VariantFailed:
			failed++
			if firstFailure == "" {
				firstFailure = variant.ErrorMessage
			}
		}
	}

	switch {
	case failed == 0:
		job.Stage = domain.StageSuccess
	case completed == 0:
		job.Stage = domain.StageFailed
		job.FailedStep = domain.StepOutput
		job.ErrorMessage = firstFailure
	default:
		job.Stage = domain.StagePartialSuccess
		job.ErrorMessage = fmt.Sprintf("%d of %d variants failed: %s", failed, len(current), firstFailure)
	}

	// variant 0's success mirrors onto the job's primary output for
	// single-result consumers; store listing order is not guaranteed
	var primary *domain.BatchVariant
	for _, variant := range current {
		if variant.Index == 0 {
			primary = variant
			break
		}
	}
	if primary != nil && primary.Status == domain.VariantCompleted {
		ref := primary.ResultRef
		if primary.ArchivedRef != "" {
			ref = primary.ArchivedRef
		}
		job.PrimaryOutputRef = ref
		job.AppendOutput(domain.StepOutput, ref)
	}

	now := time.Now().UTC()
	job.CompletedAt = &now
	if err := s.update(ctx, job); err != nil {
		return false, err
	}

	s.logger.InfoWithFields("Batch settled", map[string]interface{}{
		"job_id":    job.ID,
		"stage":     string(job.Stage),
		"completed": completed,
		"failed":    failed,
	})
	return true, nil
}

// update absorbs lost CAS races: the winner already persisted an equivalent
// or newer view and the caller's next poll will observe it.
func (s *statusSweeper) update(ctx context.Context, job *domain.Job) error {
	err := s.jobs.Update(ctx, job)
	if errors.Is(err, domain.ErrConcurrencyConflict) {
		s.logger.DebugWithFields("Refresh lost a concurrent update race", map[string]interface{}{
			"job_id": job.ID,
		})
		return nil
	}
	return err
}

func (s *statusSweeper) updateVariant(ctx context.Context, variant *domain.BatchVariant) {
	err := s.variants.UpdateVariant(ctx, variant)
	if err != nil && !errors.Is(err, domain.ErrConcurrencyConflict) {
		s.logger.ErrorWithFields(err, "Failed to persist variant", map[string]interface{}{
			"variant_id": variant.ID,
		})
	}
}
