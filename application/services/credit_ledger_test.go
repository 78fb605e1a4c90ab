package services

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"promo-video-api/application/ports/outbound"
	"promo-video-api/domain"
	"promo-video-api/infrastructure/adapters"
	mock "promo-video-api/mock"
)

func testLogger() outbound.LoggerPort {
	return adapters.NewZerologWrapperTo(io.Discard)
}

func grantCredits(t *testing.T, store *mock.MemoryLedgerStore, userID string, amount int64) {
	t.Helper()
	balance, err := store.LatestBalance(context.Background(), userID)
	if err != nil {
		t.Fatal("failed to read balance:", err)
	}
	err = store.Append(context.Background(), &domain.CreditTransaction{
		ID:            uuid.NewString(),
		UserID:        userID,
		Amount:        amount,
		ReasonCode:    "grant",
		ReasonRef:     "grant:" + uuid.NewString(),
		BalanceBefore: balance,
		BalanceAfter:  balance + amount,
		CreatedAt:     time.Now().UTC(),
	})
	if err != nil {
		t.Fatal("failed to grant credits:", err)
	}
}

func TestCreditLedger_ChargeIsIdempotentPerRef(t *testing.T) {
	store := mock.NewMemoryLedgerStore()
	ledger := NewCreditLedger(testLogger(), store)
	ctx := context.Background()

	grantCredits(t, store, "user-1", 100)
	ref := domain.NewChargeRef("job-1", domain.StepScript, 4)

	first, created, err := ledger.Charge(ctx, "user-1", 40, domain.ReasonScriptGeneration, ref)
	if err != nil {
		t.Fatal("first charge failed:", err)
	}
	if !created {
		t.Fatal("first charge should create a transaction")
	}

	second, created, err := ledger.Charge(ctx, "user-1", 40, domain.ReasonScriptGeneration, ref)
	if err != nil {
		t.Fatal("repeated charge failed:", err)
	}
	if created {
		t.Fatal("repeated charge must not create a second transaction")
	}
	if second.ID != first.ID {
		t.Fatal("repeated charge must return the original transaction")
	}

	balance, err := ledger.Balance(ctx, "user-1")
	if err != nil {
		t.Fatal("failed to read balance:", err)
	}
	if balance != 60 {
		t.Fatal("expected balance 60, got", balance)
	}
}

func TestCreditLedger_InsufficientBalance(t *testing.T) {
	store := mock.NewMemoryLedgerStore()
	ledger := NewCreditLedger(testLogger(), store)
	ctx := context.Background()

	grantCredits(t, store, "user-1", 30)

	_, _, err := ledger.Charge(ctx, "user-1", 40, domain.ReasonOutputVariant,
		domain.NewChargeRef("job-1", domain.StepOutput, 1))
	if !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatal("expected ErrInsufficientBalance, got:", err)
	}

	if txs := store.Transactions("user-1"); len(txs) != 1 {
		t.Fatal("a rejected charge must not append a transaction, got", len(txs))
	}
}

func TestCreditLedger_RefundChargeExactlyOnce(t *testing.T) {
	store := mock.NewMemoryLedgerStore()
	ledger := NewCreditLedger(testLogger(), store)
	ctx := context.Background()

	grantCredits(t, store, "user-1", 100)
	ref := domain.NewChargeRef("job-1", domain.StepReferenceImage, 1)

	if _, _, err := ledger.Charge(ctx, "user-1", 20, domain.ReasonReferenceImage, ref); err != nil {
		t.Fatal("charge failed:", err)
	}

	refunded, err := ledger.RefundCharge(ctx, "user-1", domain.ReasonRefund, ref)
	if err != nil {
		t.Fatal("refund failed:", err)
	}
	if refunded != 20 {
		t.Fatal("expected refund of 20, got", refunded)
	}

	refunded, err = ledger.RefundCharge(ctx, "user-1", domain.ReasonRefund, ref)
	if err != nil {
		t.Fatal("second refund call failed:", err)
	}
	if refunded != 0 {
		t.Fatal("second refund must be a no-op, got", refunded)
	}

	balance, _ := ledger.Balance(ctx, "user-1")
	if balance != 100 {
		t.Fatal("expected balance restored to 100, got", balance)
	}
	if txs := store.Transactions("user-1"); len(txs) != 3 {
		t.Fatal("expected grant, charge and one refund, got", len(txs))
	}
}

func TestCreditLedger_RefundChargeWithoutCharge(t *testing.T) {
	store := mock.NewMemoryLedgerStore()
	ledger := NewCreditLedger(testLogger(), store)

	refunded, err := ledger.RefundCharge(context.Background(), "user-1", domain.ReasonRefund,
		domain.NewChargeRef("job-1", domain.StepScript, 1))
	if err != nil {
		t.Fatal("refund without charge failed:", err)
	}
	if refunded != 0 {
		t.Fatal("refund without a charge must be zero, got", refunded)
	}
	if txs := store.Transactions("user-1"); len(txs) != 0 {
		t.Fatal("refund without a charge must not append, got", len(txs))
	}
}

func TestCreditLedger_ConcurrentChargesNeverOverspend(t *testing.T) {
	store := mock.NewMemoryLedgerStore()
	ledger := NewCreditLedger(testLogger(), store)
	ctx := context.Background()

	grantCredits(t, store, "user-1", 50)

	const attempts = 10
	var wg sync.WaitGroup
	results := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, err := ledger.Charge(ctx, "user-1", 10, domain.ReasonOutputVariant,
				domain.NewVariantChargeRef("job-1", 1, i))
			results[i] = err
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
		} else if !errors.Is(err, domain.ErrInsufficientBalance) {
			t.Fatal("unexpected charge error:", err)
		}
	}
	if succeeded != 5 {
		t.Fatal("expected exactly 5 charges to pass against balance 50, got", succeeded)
	}

	balance, _ := ledger.Balance(ctx, "user-1")
	if balance != 0 {
		t.Fatal("expected balance drained to 0, got", balance)
	}
}

func TestCreditLedger_HistoryReplaysToBalance(t *testing.T) {
	store := mock.NewMemoryLedgerStore()
	ledger := NewCreditLedger(testLogger(), store)
	ctx := context.Background()

	grantCredits(t, store, "user-1", 100)
	for attempt := 1; attempt <= 3; attempt++ {
		ref := domain.NewChargeRef("job-1", domain.StepScript, attempt)
		if _, _, err := ledger.Charge(ctx, "user-1", int64(attempt*10), domain.ReasonScriptGeneration, ref); err != nil {
			t.Fatal("charge failed:", err)
		}
	}
	if _, err := ledger.RefundCharge(ctx, "user-1", domain.ReasonRefund,
		domain.NewChargeRef("job-1", domain.StepScript, 2)); err != nil {
		t.Fatal("refund failed:", err)
	}

	history, err := ledger.History(ctx, "user-1", 0)
	if err != nil {
		t.Fatal("history failed:", err)
	}

	var replayed int64
	for _, tx := range history {
		replayed += tx.Amount
	}
	balance, _ := ledger.Balance(ctx, "user-1")
	if replayed != balance {
		t.Fatalf("replayed history %d does not match balance %d", replayed, balance)
	}
	if balance != 60 {
		t.Fatal("expected balance 60, got", balance)
	}
}
