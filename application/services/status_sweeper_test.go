package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"promo-video-api/application/ports/inbound"
	"promo-video-api/application/ports/outbound"
	"promo-video-api/domain"
)

// seedGeneratingScript stores a job mid script generation with its attempt
// charged, the shape the sweeper finds after a dispatch.
func seedGeneratingScript(t *testing.T, f *pipelineFixture, userID string, startedAt time.Time) *domain.Job {
	t.Helper()
	ctx := context.Background()

	job := seedConfiguredJob(t, f, userID)
	job.Stage = domain.StageGeneratingScript
	job.AttemptCounters[domain.StepScript] = 1
	job.StageStartedAt = startedAt

	provider := f.providers.Provider(domain.ScriptProviderKind)
	handle, err := provider.Submit(ctx, outbound.SubmitTaskParams{Prompt: "seed"})
	if err != nil {
		t.Fatal("seed submit failed:", err)
	}
	job.CurrentTask = &handle

	if _, _, err := f.ledger.Charge(ctx, userID, 10, domain.ReasonScriptGeneration,
		domain.NewChargeRef(job.ID, domain.StepScript, 1)); err != nil {
		t.Fatal("seed charge failed:", err)
	}
	job.CreditsCharged = 10

	if err := f.jobs.Update(ctx, job); err != nil {
		t.Fatal("seed update failed:", err)
	}
	return job
}

func TestStatusSweeper_TimeoutFailsAndRefundsOnce(t *testing.T) {
	f := newPipelineFixture(t, defaultTestPricing())
	ctx := context.Background()
	grantCredits(t, f.ledgerTxs, "user-1", 100)

	job := seedGeneratingScript(t, f, "user-1", time.Now().UTC().Add(-time.Hour))

	snapshot := f.refresh(t, job.ID)
	if snapshot.Job.Stage != domain.StageFailed {
		t.Fatal("expected failed after timeout, got", snapshot.Job.Stage)
	}
	if snapshot.Job.FailedStep != domain.StepScript {
		t.Fatal("expected failed step script, got", snapshot.Job.FailedStep)
	}
	if snapshot.Job.ErrorMessage == "" {
		t.Fatal("expected an error message on the timed out job")
	}

	balance, _ := f.ledger.Balance(ctx, "user-1")
	if balance != 100 {
		t.Fatal("expected the charge refunded, got balance", balance)
	}

	// a second refresh of the settled job must not refund again
	f.refresh(t, job.ID)
	refunds := 0
	for _, tx := range f.ledgerTxs.Transactions("user-1") {
		if !tx.IsCharge() && tx.ReasonCode == domain.ReasonTimeout {
			refunds++
		}
	}
	if refunds != 1 {
		t.Fatal("expected exactly one timeout refund, got", refunds)
	}
}

func TestStatusSweeper_TransientQueryErrorStaysPending(t *testing.T) {
	f := newPipelineFixture(t, defaultTestPricing())
	ctx := context.Background()
	grantCredits(t, f.ledgerTxs, "user-1", 100)

	job := seedGeneratingScript(t, f, "user-1", time.Now().UTC())

	f.providers.Provider(domain.ScriptProviderKind).QueryErr = errors.New("upstream 503")

	snapshot := f.refresh(t, job.ID)
	if snapshot.Job.Stage != domain.StageGeneratingScript {
		t.Fatal("a transient query error must not move the job, got", snapshot.Job.Stage)
	}

	balance, _ := f.ledger.Balance(ctx, "user-1")
	if balance != 90 {
		t.Fatal("a transient query error must not touch the ledger, got", balance)
	}
}

func TestStatusSweeper_TerminalProviderFailureRefunds(t *testing.T) {
	f := newPipelineFixture(t, defaultTestPricing())
	ctx := context.Background()
	grantCredits(t, f.ledgerTxs, "user-1", 100)

	job := seedGeneratingScript(t, f, "user-1", time.Now().UTC())
	f.providers.Provider(domain.ScriptProviderKind).Fail(job.CurrentTask.TaskID, "content policy")

	snapshot := f.refresh(t, job.ID)
	if snapshot.Job.Stage != domain.StageFailed {
		t.Fatal("expected failed, got", snapshot.Job.Stage)
	}
	if snapshot.Job.CreditsRefunded != 10 {
		t.Fatal("expected the attempt refunded, got", snapshot.Job.CreditsRefunded)
	}

	balance, _ := f.ledger.Balance(ctx, "user-1")
	if balance != 100 {
		t.Fatal("expected balance restored, got", balance)
	}
}

func TestStatusSweeper_OutputTimeoutRefundsEachVariant(t *testing.T) {
	f := newPipelineFixture(t, defaultTestPricing())
	ctx := context.Background()
	grantCredits(t, f.ledgerTxs, "user-1", 200)

	job := seedReadyJob(t, f, "user-1")
	if _, err := f.batch.StartBatch(ctx, inbound.StartBatchParams{
		JobID:        job.ID,
		UserID:       "user-1",
		VariantCount: 2,
	}); err != nil {
		t.Fatal("start batch failed:", err)
	}

	// push the stage start past the output timeout without settling any task
	stored, err := f.jobs.Get(ctx, job.ID)
	if err != nil {
		t.Fatal("get failed:", err)
	}
	stored.StageStartedAt = time.Now().UTC().Add(-time.Hour)
	if err := f.jobs.Update(ctx, stored); err != nil {
		t.Fatal("update failed:", err)
	}

	snapshot := f.refresh(t, job.ID)
	if snapshot.Job.Stage != domain.StageFailed {
		t.Fatal("expected failed after output timeout, got", snapshot.Job.Stage)
	}
	if snapshot.Job.FailedStep != domain.StepOutput {
		t.Fatal("expected failed step output, got", snapshot.Job.FailedStep)
	}
	for _, variant := range snapshot.Variants {
		if variant.Status != domain.VariantFailed {
			t.Fatalf("variant %d should be failed, got %s", variant.Index, variant.Status)
		}
		if variant.ErrorMessage == "" {
			t.Fatalf("variant %d has no error message", variant.Index)
		}
	}
	if snapshot.Job.CreditsRefunded != 80 {
		t.Fatal("expected both variant charges refunded, got", snapshot.Job.CreditsRefunded)
	}

	balance, _ := f.ledger.Balance(ctx, "user-1")
	if balance != 200 {
		t.Fatal("expected balance restored, got", balance)
	}

	// a second refresh of the settled job must not refund again
	f.refresh(t, job.ID)
	refunds := 0
	for _, tx := range f.ledgerTxs.Transactions("user-1") {
		if !tx.IsCharge() && tx.ReasonCode == domain.ReasonTimeout {
			refunds++
		}
	}
	if refunds != 2 {
		t.Fatal("expected exactly one timeout refund per variant, got", refunds)
	}
}

// reversedVariantListing returns variants in reverse store order, the way an
// unordered index scan may.
type reversedVariantListing struct {
	outbound.BatchStorePort
}

func (r reversedVariantListing) ListVariantsByJob(ctx context.Context, jobID string) ([]*domain.BatchVariant, error) {
	variants, err := r.BatchStorePort.ListVariantsByJob(ctx, jobID)
	for i, j := 0, len(variants)-1; i < j; i, j = i+1, j-1 {
		variants[i], variants[j] = variants[j], variants[i]
	}
	return variants, err
}

func TestStatusSweeper_PrimaryOutputIgnoresListingOrder(t *testing.T) {
	f := newPipelineFixture(t, defaultTestPricing())
	ctx := context.Background()
	grantCredits(t, f.ledgerTxs, "user-1", 200)

	job := seedReadyJob(t, f, "user-1")
	variants, err := f.batch.StartBatch(ctx, inbound.StartBatchParams{
		JobID:        job.ID,
		UserID:       "user-1",
		VariantCount: 2,
	})
	if err != nil {
		t.Fatal("start batch failed:", err)
	}

	video := f.providers.Provider(domain.VideoProviderKind)
	video.Complete(variants[0].Handle.TaskID, "video-0")
	video.Complete(variants[1].Handle.TaskID, "video-1")

	sweeper := NewStatusSweeper(testLogger(), f.jobs, reversedVariantListing{f.variants},
		f.ledger, f.providers, f.archiver, map[domain.Step]time.Duration{}, 4)
	snapshot, err := sweeper.RefreshJob(ctx, job.ID)
	if err != nil {
		t.Fatal("refresh failed:", err)
	}
	if snapshot.Job.Stage != domain.StageSuccess {
		t.Fatal("expected success, got", snapshot.Job.Stage)
	}
	if snapshot.Job.PrimaryOutputRef != "archive://"+job.ID+"/variant-0" {
		t.Fatal("primary output must come from variant 0, got", snapshot.Job.PrimaryOutputRef)
	}
}

func TestStatusSweeper_RefreshAllProcessingCounts(t *testing.T) {
	f := newPipelineFixture(t, defaultTestPricing())
	grantCredits(t, f.ledgerTxs, "user-1", 100)

	// one job completes, one stays pending
	done := seedGeneratingScript(t, f, "user-1", time.Now().UTC())
	f.providers.Provider(domain.ScriptProviderKind).Complete(done.CurrentTask.TaskID, "script-v1")
	pending := seedGeneratingScript(t, f, "user-1", time.Now().UTC())

	result, err := f.sweeper.RefreshAllProcessing(context.Background(), "user-1")
	if err != nil {
		t.Fatal("sweep failed:", err)
	}
	if result.Checked != 2 {
		t.Fatal("expected 2 jobs checked, got", result.Checked)
	}
	if result.Updated != 1 {
		t.Fatal("expected 1 job updated, got", result.Updated)
	}

	doneStored, _ := f.jobs.Get(context.Background(), done.ID)
	if doneStored.Stage != domain.StageScriptReady {
		t.Fatal("expected script_ready, got", doneStored.Stage)
	}
	if latest := doneStored.LatestOutput(domain.StepScript); latest == nil || latest.Ref != "script-v1" {
		t.Fatal("expected the script output recorded")
	}

	pendingStored, _ := f.jobs.Get(context.Background(), pending.ID)
	if pendingStored.Stage != domain.StageGeneratingScript {
		t.Fatal("expected the pending job unchanged, got", pendingStored.Stage)
	}
}

func TestStatusSweeper_RefreshIgnoresSettledJobs(t *testing.T) {
	f := newPipelineFixture(t, defaultTestPricing())
	job := seedConfiguredJob(t, f, "user-1")

	snapshot, err := f.sweeper.RefreshJob(context.Background(), job.ID)
	if err != nil {
		t.Fatal("refresh failed:", err)
	}
	if snapshot.Job.Stage != domain.StageConfigured {
		t.Fatal("refresh of a non-generating job must be a no-op, got", snapshot.Job.Stage)
	}
}
