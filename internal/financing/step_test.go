package financing

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/resolutinsurance/ipap-insurance-agent-sub001/internal/domain"
	"github.com/resolutinsurance/ipap-insurance-agent-sub001/internal/store"
)

type staticCalculator struct {
	calls int32
}

func (c *staticCalculator) CalculatePremiumFinancing(ctx context.Context, in domain.LoanInputs) (*domain.CalculationResult, error) {
	atomic.AddInt32(&c.calls, 1)
	return &domain.CalculationResult{
		LoanAmount:          in.PremiumAmount - in.InitialDeposit,
		RegularInstallment:  1466.67,
		NoOfInstallments:    in.Duration,
		TotalRepayment:      8800,
		TotalPaid:           10800,
		InterestRatePercent: 10,
		TotalInterestValue:  800,
		ActualProcessingFee: 300,
		StickerFee:          20,
	}, nil
}

func newStepFixture(t *testing.T) (*CalculationStep, *store.MemoryStore, store.FlowKey) {
	t.Helper()
	states := store.NewMemoryStore(time.Hour)
	key := store.FlowKey{AgentID: "agent-1", Variant: domain.VariantDirect}
	step := NewCalculationStep(&staticCalculator{}, states, key)
	t.Cleanup(step.Close)
	return step, states, key
}

func settle(t *testing.T, step *CalculationStep) StepView {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	view, err := step.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	return view
}

func TestCalculationStep_ConfirmPreservesSiblingSlices(t *testing.T) {
	step, states, key := newStepFixture(t)
	ctx := context.Background()

	states.Update(ctx, key, func(st *domain.PaymentVerificationState) error {
		st.VerificationID = "ver-9"
		st.GhanaCardResponse = &domain.VerificationResponse{Success: true, VerificationID: "ver-9"}
		st.EnsurePaymentData().AccountName = "Kofi"
		return nil
	})

	if err := step.Update(ctx, loanInputs(6)); err != nil {
		t.Fatalf("Update: %v", err)
	}
	view := settle(t, step)
	if view.State != StepCalculated || !view.ContinueEnabled {
		t.Fatalf("expected calculated step, got %+v", view)
	}

	loan, err := step.Confirm(ctx)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if !loan.Finalized() || *loan.NoOfInstallments != 6 || *loan.ActualProcessingFee != 300 {
		t.Fatalf("loan not finalized from calculation: %+v", loan)
	}
	if step.State() != StepConfirmed {
		t.Fatalf("expected confirmed state, got %s", step.State())
	}

	got, err := states.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.VerificationID != "ver-9" || got.PaymentData == nil || got.PaymentData.AccountName != "Kofi" {
		t.Fatalf("sibling slices lost on confirm: %+v", got)
	}
	if *got.LoanData.LoanAmount != 8000 || *got.LoanData.StickerFee != 20 {
		t.Fatalf("derived figures not copied verbatim: %+v", got.LoanData)
	}
}

func TestCalculationStep_ConfirmRefusedBeforeCalculation(t *testing.T) {
	step, _, _ := newStepFixture(t)
	if _, err := step.Confirm(context.Background()); !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
}

func TestCalculationStep_InvalidSelectionIsSavedButNotCalculated(t *testing.T) {
	step, states, key := newStepFixture(t)
	ctx := context.Background()

	in := loanInputs(6)
	in.InitialDeposit = in.PremiumAmount
	if err := step.Update(ctx, in); err == nil {
		t.Fatalf("expected validation error")
	}
	if step.ContinueEnabled() {
		t.Fatalf("continue must stay disabled for an invalid selection")
	}

	got, _ := states.Get(ctx, key)
	if got.LoanData == nil || got.LoanData.InitialDeposit != in.PremiumAmount {
		t.Fatalf("selection not persisted: %+v", got.LoanData)
	}
}

func TestCalculationStep_ChangingSelectionClearsFinalizedFigures(t *testing.T) {
	step, states, key := newStepFixture(t)
	ctx := context.Background()

	step.Update(ctx, loanInputs(6))
	settle(t, step)
	if _, err := step.Confirm(ctx); err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	if err := step.Update(ctx, loanInputs(12)); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, _ := states.Get(ctx, key)
	if got.LoanData.Finalized() {
		t.Fatalf("figures for duration 6 survived a change to duration 12: %+v", got.LoanData)
	}
	if got.LoanData.Duration != 12 {
		t.Fatalf("expected duration 12, got %d", got.LoanData.Duration)
	}

	view := settle(t, step)
	if view.State != StepCalculated {
		t.Fatalf("expected recalculated step, got %s", view.State)
	}
}

func TestCalculationStep_ContinueDisabledWhilePending(t *testing.T) {
	calc := newScriptedCalculator()
	states := store.NewMemoryStore(time.Hour)
	key := store.FlowKey{AgentID: "agent-1", Variant: domain.VariantDirect}
	step := NewCalculationStep(calc, states, key)
	defer step.Close()
	ctx := context.Background()

	if err := step.Update(ctx, loanInputs(6)); err != nil {
		t.Fatalf("Update: %v", err)
	}
	calc.next(t).reply <- calcReply{res: resultFor(6)}
	settle(t, step)
	if _, err := step.Confirm(ctx); err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	if err := step.Update(ctx, loanInputs(12)); err != nil {
		t.Fatalf("Update: %v", err)
	}
	twelve := calc.next(t)

	if step.ContinueEnabled() {
		t.Fatalf("expected continue disabled while the calculation is pending")
	}
	if view := step.View(); !view.IsPending || view.ContinueEnabled || view.State == StepConfirmed {
		t.Fatalf("expected pending view with continue disabled, got %+v", view)
	}
	if _, err := step.Confirm(ctx); !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady while pending, got %v", err)
	}

	twelve.reply <- calcReply{res: resultFor(12)}
	view := settle(t, step)
	if !view.ContinueEnabled || view.State != StepCalculated || view.Calculation.NoOfInstallments != 12 {
		t.Fatalf("expected continue re-enabled for duration 12, got %+v", view)
	}
}
