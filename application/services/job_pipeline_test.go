package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"promo-video-api/application/ports/inbound"
	"promo-video-api/application/ports/outbound"
	"promo-video-api/domain"
	mock "promo-video-api/mock"
)

type pipelineFixture struct {
	jobs      *mock.MemoryJobStore
	variants  *mock.MemoryBatchStore
	ledgerTxs *mock.MemoryLedgerStore
	ledger    inbound.CreditLedgerPort
	providers *mock.Registry
	resolver  *mock.LinkResolver
	archiver  *mock.Archiver
	pricing   mock.StaticPricing
	pipeline  inbound.JobPipelinePort
	batch     inbound.BatchExecutorPort
	sweeper   inbound.StatusSweeperPort
}

func newPipelineFixture(t *testing.T, pricing mock.StaticPricing) *pipelineFixture {
	t.Helper()
	logger := testLogger()
	f := &pipelineFixture{
		jobs:      mock.NewMemoryJobStore(),
		variants:  mock.NewMemoryBatchStore(),
		ledgerTxs: mock.NewMemoryLedgerStore(),
		providers: mock.NewRegistry(),
		resolver:  mock.NewLinkResolver(),
		archiver:  mock.NewArchiver(),
		pricing:   pricing,
	}
	f.ledger = NewCreditLedger(logger, f.ledgerTxs)
	f.batch = NewBatchExecutor(logger, f.jobs, f.variants, f.ledger, f.providers, pricing,
		mock.SyncDispatcher{}, 5)
	f.pipeline = NewJobPipeline(logger, f.jobs, f.ledger, f.providers, f.resolver, pricing, f.batch)
	f.sweeper = NewStatusSweeper(logger, f.jobs, f.variants, f.ledger, f.providers, f.archiver,
		map[domain.Step]time.Duration{
			domain.StepScript:         5 * time.Minute,
			domain.StepReferenceImage: 10 * time.Minute,
			domain.StepOutput:         20 * time.Minute,
		}, 4)
	return f
}

func defaultTestPricing() mock.StaticPricing {
	return mock.StaticPricing{
		FreeScriptAttempts: 3,
		ScriptRewriteFee:   10,
		ReferenceImageFee:  20,
		VideoVariantFee:    40,
	}
}

func (f *pipelineFixture) advance(t *testing.T, jobID, userID string, step domain.Step) *inbound.StageOutput {
	t.Helper()
	out, err := f.pipeline.AdvanceStage(context.Background(), inbound.AdvanceStageParams{
		JobID:  jobID,
		UserID: userID,
		Step:   step,
	})
	if err != nil {
		t.Fatalf("advance %s failed: %v", step, err)
	}
	return out
}

func (f *pipelineFixture) completeLatestTask(t *testing.T, kind domain.ProviderKind, resultRef string) {
	t.Helper()
	provider := f.providers.Provider(kind)
	handles := provider.Handles()
	if len(handles) == 0 {
		t.Fatalf("no %s task was submitted", kind)
	}
	provider.Complete(handles[len(handles)-1].TaskID, resultRef)
}

func (f *pipelineFixture) refresh(t *testing.T, jobID string) *inbound.JobSnapshot {
	t.Helper()
	snapshot, err := f.sweeper.RefreshJob(context.Background(), jobID)
	if err != nil {
		t.Fatal("refresh failed:", err)
	}
	return snapshot
}

func TestJobPipeline_CreateJobRequiresInput(t *testing.T) {
	f := newPipelineFixture(t, defaultTestPricing())
	_, err := f.pipeline.CreateJob(context.Background(), inbound.CreateJobParams{UserID: "user-1"})
	if err == nil {
		t.Fatal("expected an error without link or description")
	}
}

func TestJobPipeline_FullRunFromDescription(t *testing.T) {
	f := newPipelineFixture(t, defaultTestPricing())
	ctx := context.Background()
	grantCredits(t, f.ledgerTxs, "user-1", 100)

	job, err := f.pipeline.CreateJob(ctx, inbound.CreateJobParams{
		UserID:      "user-1",
		Description: "A solar powered desk lamp with touch dimming",
	})
	if err != nil {
		t.Fatal("create failed:", err)
	}
	if job.Stage != domain.StageCreated {
		t.Fatal("expected created stage, got", job.Stage)
	}

	out := f.advance(t, job.ID, "user-1", domain.StepLinkResolution)
	if out.Stage != domain.StageLinkResolved {
		t.Fatal("expected link_resolved, got", out.Stage)
	}

	_, err = f.pipeline.AdvanceStage(ctx, inbound.AdvanceStageParams{
		JobID:  job.ID,
		UserID: "user-1",
		Step:   domain.StepConfiguration,
		Config: &domain.JobConfig{DurationSeconds: 30, AspectRatio: "9:16", Style: "energetic"},
	})
	if err != nil {
		t.Fatal("configure failed:", err)
	}

	out = f.advance(t, job.ID, "user-1", domain.StepScript)
	if out.Stage != domain.StageGeneratingScript || out.Attempt != 1 {
		t.Fatalf("expected generating_script attempt 1, got %s attempt %d", out.Stage, out.Attempt)
	}

	f.completeLatestTask(t, domain.ScriptProviderKind, "script-v1")
	snapshot := f.refresh(t, job.ID)
	if snapshot.Job.Stage != domain.StageScriptReady {
		t.Fatal("expected script_ready, got", snapshot.Job.Stage)
	}

	out = f.advance(t, job.ID, "user-1", domain.StepReferenceImage)
	if out.Stage != domain.StageGeneratingReferenceImage {
		t.Fatal("expected generating_reference_image, got", out.Stage)
	}

	f.completeLatestTask(t, domain.ImageGridProviderKind, "grid-v1")
	snapshot = f.refresh(t, job.ID)
	if snapshot.Job.Stage != domain.StageReferenceReady {
		t.Fatal("expected reference_ready, got", snapshot.Job.Stage)
	}

	out = f.advance(t, job.ID, "user-1", domain.StepOutput)
	if out.Stage != domain.StageGeneratingOutput {
		t.Fatal("expected generating_output, got", out.Stage)
	}

	f.providers.Provider(domain.VideoProviderKind).CompleteAll("video")
	snapshot = f.refresh(t, job.ID)
	if snapshot.Job.Stage != domain.StageSuccess {
		t.Fatal("expected success, got", snapshot.Job.Stage)
	}
	if snapshot.Job.PrimaryOutputRef == "" {
		t.Fatal("expected primary output ref to be set")
	}
	if len(snapshot.Variants) != 1 {
		t.Fatal("expected a single variant, got", len(snapshot.Variants))
	}

	// first script attempt free, reference image 20, one video variant 40
	balance, _ := f.ledger.Balance(ctx, "user-1")
	if balance != 40 {
		t.Fatal("expected balance 40, got", balance)
	}
}

func TestJobPipeline_SubmitFailureRefundsAndRollsBack(t *testing.T) {
	pricing := defaultTestPricing()
	pricing.FreeScriptAttempts = 0
	pricing.ScriptRewriteFee = 40
	f := newPipelineFixture(t, pricing)
	ctx := context.Background()
	grantCredits(t, f.ledgerTxs, "user-1", 100)

	job := seedConfiguredJob(t, f, "user-1")

	f.providers.Provider(domain.ScriptProviderKind).SubmitErr = errors.New("provider unavailable")

	_, err := f.pipeline.AdvanceStage(ctx, inbound.AdvanceStageParams{
		JobID:  job.ID,
		UserID: "user-1",
		Step:   domain.StepScript,
	})
	var submitErr *domain.ProviderSubmitError
	if !errors.As(err, &submitErr) {
		t.Fatal("expected ProviderSubmitError, got:", err)
	}

	balance, _ := f.ledger.Balance(ctx, "user-1")
	if balance != 100 {
		t.Fatal("expected balance restored to 100, got", balance)
	}
	txs := f.ledgerTxs.Transactions("user-1")
	if len(txs) != 3 {
		t.Fatal("expected grant, charge and refund, got", len(txs))
	}

	stored, err := f.jobs.Get(ctx, job.ID)
	if err != nil {
		t.Fatal("get failed:", err)
	}
	if stored.Stage != domain.StageConfigured {
		t.Fatal("expected stage rolled back to configured, got", stored.Stage)
	}
	if stored.CreditsCharged != 40 || stored.CreditsRefunded != 40 {
		t.Fatalf("expected charged 40 refunded 40, got %d and %d",
			stored.CreditsCharged, stored.CreditsRefunded)
	}
}

func TestJobPipeline_PreconditionFailureLeavesNoTransaction(t *testing.T) {
	f := newPipelineFixture(t, defaultTestPricing())
	ctx := context.Background()
	grantCredits(t, f.ledgerTxs, "user-1", 100)

	job, err := f.pipeline.CreateJob(ctx, inbound.CreateJobParams{
		UserID:      "user-1",
		Description: "desk lamp",
	})
	if err != nil {
		t.Fatal("create failed:", err)
	}

	_, err = f.pipeline.AdvanceStage(ctx, inbound.AdvanceStageParams{
		JobID:  job.ID,
		UserID: "user-1",
		Step:   domain.StepScript,
	})
	if !errors.Is(err, domain.ErrPreconditionNotMet) {
		t.Fatal("expected ErrPreconditionNotMet, got:", err)
	}

	if txs := f.ledgerTxs.Transactions("user-1"); len(txs) != 1 {
		t.Fatal("a rejected advance must not touch the ledger, got", len(txs))
	}
	stored, _ := f.jobs.Get(ctx, job.ID)
	if stored.Stage != domain.StageCreated {
		t.Fatal("expected stage unchanged, got", stored.Stage)
	}
}

func TestJobPipeline_InsufficientBalanceBlocksDispatch(t *testing.T) {
	pricing := defaultTestPricing()
	pricing.FreeScriptAttempts = 0
	pricing.ScriptRewriteFee = 40
	f := newPipelineFixture(t, pricing)
	ctx := context.Background()
	grantCredits(t, f.ledgerTxs, "user-1", 10)

	job := seedConfiguredJob(t, f, "user-1")

	_, err := f.pipeline.AdvanceStage(ctx, inbound.AdvanceStageParams{
		JobID:  job.ID,
		UserID: "user-1",
		Step:   domain.StepScript,
	})
	if !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatal("expected ErrInsufficientBalance, got:", err)
	}

	stored, _ := f.jobs.Get(ctx, job.ID)
	if stored.Stage != domain.StageConfigured {
		t.Fatal("expected stage unchanged, got", stored.Stage)
	}
	if submitted := f.providers.Provider(domain.ScriptProviderKind).Submitted(); len(submitted) != 0 {
		t.Fatal("nothing should reach the provider, got", len(submitted))
	}
}

func TestJobPipeline_OtherUsersJobIsHidden(t *testing.T) {
	f := newPipelineFixture(t, defaultTestPricing())
	job := seedConfiguredJob(t, f, "user-1")

	_, err := f.pipeline.AdvanceStage(context.Background(), inbound.AdvanceStageParams{
		JobID:  job.ID,
		UserID: "user-2",
		Step:   domain.StepScript,
	})
	if !errors.Is(err, domain.ErrJobNotFound) {
		t.Fatal("expected ErrJobNotFound for a foreign job, got:", err)
	}
}

func TestJobPipeline_ConcurrentAdvanceSingleWinner(t *testing.T) {
	pricing := defaultTestPricing()
	pricing.FreeScriptAttempts = 0
	pricing.ScriptRewriteFee = 10
	f := newPipelineFixture(t, pricing)
	ctx := context.Background()
	grantCredits(t, f.ledgerTxs, "user-1", 100)

	job := seedConfiguredJob(t, f, "user-1")

	// barrier: both callers read the same job version before either writes
	var barrier sync.WaitGroup
	barrier.Add(2)
	f.jobs.OnGet = func(*domain.Job) {
		barrier.Done()
		barrier.Wait()
	}

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.pipeline.AdvanceStage(ctx, inbound.AdvanceStageParams{
				JobID:  job.ID,
				UserID: "user-1",
				Step:   domain.StepScript,
			})
			results[i] = err
		}(i)
	}
	wg.Wait()
	f.jobs.OnGet = nil

	winners, conflicts := 0, 0
	for _, err := range results {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, domain.ErrConcurrencyConflict):
			conflicts++
		default:
			t.Fatal("unexpected error:", err)
		}
	}
	if winners != 1 || conflicts != 1 {
		t.Fatalf("expected one winner and one conflict, got %d and %d", winners, conflicts)
	}

	// the shared charge ref means both callers paid at most once
	charges := 0
	for _, tx := range f.ledgerTxs.Transactions("user-1") {
		if tx.IsCharge() {
			charges++
		}
	}
	if charges != 1 {
		t.Fatal("expected exactly one charge across both callers, got", charges)
	}
	if submitted := f.providers.Provider(domain.ScriptProviderKind).Submitted(); len(submitted) != 1 {
		t.Fatal("expected exactly one provider submission, got", len(submitted))
	}
}

// submitHook runs a callback just before delegating a submit, letting tests
// stage store writes between the dispatch and the handle persist.
type submitHook struct {
	outbound.ProviderPort
	before func()
}

func (p submitHook) Submit(ctx context.Context, params outbound.SubmitTaskParams) (domain.TaskHandle, error) {
	if p.before != nil {
		p.before()
	}
	return p.ProviderPort.Submit(ctx, params)
}

type hookedRegistry struct {
	base   outbound.ProviderRegistry
	kind   domain.ProviderKind
	before func()
}

func (r hookedRegistry) For(kind domain.ProviderKind) (outbound.ProviderPort, error) {
	provider, err := r.base.For(kind)
	if err == nil && kind == r.kind {
		return submitHook{ProviderPort: provider, before: r.before}, nil
	}
	return provider, err
}

func TestJobPipeline_HandleWriteSurvivesConcurrentTouch(t *testing.T) {
	f := newPipelineFixture(t, defaultTestPricing())
	ctx := context.Background()
	grantCredits(t, f.ledgerTxs, "user-1", 100)

	job := seedConfiguredJob(t, f, "user-1")

	// an unrelated write bumps the job version while the submit is in flight
	pipeline := NewJobPipeline(testLogger(), f.jobs, f.ledger, hookedRegistry{
		base: f.providers,
		kind: domain.ScriptProviderKind,
		before: func() {
			stored, err := f.jobs.Get(ctx, job.ID)
			if err != nil {
				t.Error("hook get failed:", err)
				return
			}
			if err := f.jobs.Update(ctx, stored); err != nil {
				t.Error("hook update failed:", err)
			}
		},
	}, f.resolver, f.pricing, f.batch)

	out, err := pipeline.AdvanceStage(ctx, inbound.AdvanceStageParams{
		JobID:  job.ID,
		UserID: "user-1",
		Step:   domain.StepScript,
	})
	if err != nil {
		t.Fatal("advance failed:", err)
	}

	stored, _ := f.jobs.Get(ctx, job.ID)
	if stored.CurrentTask == nil || stored.CurrentTask.TaskID != out.Handle.TaskID {
		t.Fatal("the dispatched handle must survive a version race on the handle write")
	}
}

func TestJobPipeline_HandleWriteYieldsToSettledJob(t *testing.T) {
	f := newPipelineFixture(t, defaultTestPricing())
	ctx := context.Background()
	grantCredits(t, f.ledgerTxs, "user-1", 100)

	job := seedConfiguredJob(t, f, "user-1")

	// the job settles under the dispatch, as a timeout sweep would do
	pipeline := NewJobPipeline(testLogger(), f.jobs, f.ledger, hookedRegistry{
		base: f.providers,
		kind: domain.ScriptProviderKind,
		before: func() {
			stored, err := f.jobs.Get(ctx, job.ID)
			if err != nil {
				t.Error("hook get failed:", err)
				return
			}
			stored.Stage = domain.StageFailed
			stored.FailedStep = domain.StepScript
			stored.CurrentTask = nil
			if err := f.jobs.Update(ctx, stored); err != nil {
				t.Error("hook update failed:", err)
			}
		},
	}, f.resolver, f.pricing, f.batch)

	_, err := pipeline.AdvanceStage(ctx, inbound.AdvanceStageParams{
		JobID:  job.ID,
		UserID: "user-1",
		Step:   domain.StepScript,
	})
	if !errors.Is(err, domain.ErrConcurrencyConflict) {
		t.Fatal("expected ErrConcurrencyConflict, got:", err)
	}

	stored, _ := f.jobs.Get(ctx, job.ID)
	if stored.Stage != domain.StageFailed || stored.CurrentTask != nil {
		t.Fatal("a settled job must not be overwritten by the losing dispatch")
	}
}

func seedConfiguredJob(t *testing.T, f *pipelineFixture, userID string) *domain.Job {
	t.Helper()
	ctx := context.Background()
	job, err := f.pipeline.CreateJob(ctx, inbound.CreateJobParams{
		UserID:      userID,
		Description: "A solar powered desk lamp",
	})
	if err != nil {
		t.Fatal("create failed:", err)
	}
	f.advance(t, job.ID, userID, domain.StepLinkResolution)
	_, err = f.pipeline.AdvanceStage(ctx, inbound.AdvanceStageParams{
		JobID:  job.ID,
		UserID: userID,
		Step:   domain.StepConfiguration,
		Config: &domain.JobConfig{DurationSeconds: 30, AspectRatio: "9:16"},
	})
	if err != nil {
		t.Fatal("configure failed:", err)
	}
	updated, err := f.jobs.Get(ctx, job.ID)
	if err != nil {
		t.Fatal("get failed:", err)
	}
	return updated
}
