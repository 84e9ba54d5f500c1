package financing

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/resolutinsurance/ipap-insurance-agent-sub001/internal/domain"
	"github.com/resolutinsurance/ipap-insurance-agent-sub001/internal/store"
)

// ErrNotReady is returned by Confirm while the calculation is missing, pending or failed.
var ErrNotReady = errors.New("loan calculation is not ready")

// StepState is the lifecycle of the loan calculation step.
type StepState string

const (
	StepEditing    StepState = "editing"
	StepCalculated StepState = "calculated"
	StepConfirmed  StepState = "confirmed"
)

// StepView is what the loan calculation screen renders.
type StepView struct {
	State           StepState                 `json:"state"`
	Inputs          domain.LoanInputs         `json:"inputs"`
	Calculation     *domain.CalculationResult `json:"calculation,omitempty"`
	IsPending       bool                      `json:"isPending"`
	Error           string                    `json:"error,omitempty"`
	ContinueEnabled bool                      `json:"continueEnabled"`
}

// CalculationStep drives the loan calculation screen of one flow. It writes the
// selection into LoanData as it changes and finalizes the derived figures on
// confirm.
type CalculationStep struct {
	query  *Query
	states store.StateStore
	key    store.FlowKey

	mu           sync.Mutex
	confirmedKey string
}

func NewCalculationStep(calc Calculator, states store.StateStore, key store.FlowKey) *CalculationStep {
	return &CalculationStep{
		query:  NewQuery(calc),
		states: states,
		key:    key,
	}
}

// Update records a new selection. The selection is persisted even when invalid so
// the form survives a reload; the calculation only runs for a valid selection.
// ctx carries the upstream credentials and must not be cancelled with the caller.
func (s *CalculationStep) Update(ctx context.Context, inputs domain.LoanInputs) error {
	validationErr := inputs.Validate()

	_, err := s.states.Update(ctx, s.key, func(st *domain.PaymentVerificationState) error {
		loan := st.EnsureLoanData()
		if loan.Inputs().Key() != inputs.Key() {
			clearDerived(loan)
		}
		loan.ApplyInputs(inputs)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save loan selection: %w", err)
	}

	s.mu.Lock()
	if s.confirmedKey != inputs.Key() {
		s.confirmedKey = ""
	}
	s.mu.Unlock()

	s.query.Set(ctx, inputs, validationErr == nil)
	return validationErr
}

// Retry re-runs a failed calculation for the current selection.
func (s *CalculationStep) Retry(ctx context.Context) {
	s.query.Refetch(ctx)
}

// Wait blocks until the current calculation settles.
func (s *CalculationStep) Wait(ctx context.Context) (StepView, error) {
	if _, err := s.query.Wait(ctx); err != nil {
		return s.View(), err
	}
	return s.View(), nil
}

func (s *CalculationStep) State() StepState {
	return s.stateFor(s.query.Snapshot())
}

func (s *CalculationStep) stateFor(snap QueryState) StepState {
	s.mu.Lock()
	confirmed := s.confirmedKey != "" && s.confirmedKey == snap.Key
	s.mu.Unlock()
	switch {
	case confirmed:
		return StepConfirmed
	case ready(snap):
		return StepCalculated
	default:
		return StepEditing
	}
}

// ContinueEnabled reports whether the step may be confirmed.
func (s *CalculationStep) ContinueEnabled() bool {
	return ready(s.query.Snapshot())
}

func ready(snap QueryState) bool {
	return snap.Enabled && snap.Data != nil && !snap.IsPending && snap.Err == nil
}

func (s *CalculationStep) View() StepView {
	snap := s.query.Snapshot()
	view := StepView{
		State:           s.stateFor(snap),
		Inputs:          snap.Inputs,
		Calculation:     snap.Data,
		IsPending:       snap.IsPending,
		ContinueEnabled: ready(snap),
	}
	if snap.Err != nil {
		view.Error = snap.Err.Error()
	}
	return view
}

// Confirm copies the calculation into LoanData and returns once the write is
// committed. Only the loan slice changes.
func (s *CalculationStep) Confirm(ctx context.Context) (*domain.LoanData, error) {
	snap := s.query.Snapshot()
	if !ready(snap) {
		return nil, ErrNotReady
	}
	result := *snap.Data

	next, err := s.states.Update(ctx, s.key, func(st *domain.PaymentVerificationState) error {
		loan := st.EnsureLoanData()
		loan.ApplyInputs(snap.Inputs)
		loan.ApplyCalculation(result)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save loan calculation: %w", err)
	}

	s.mu.Lock()
	s.confirmedKey = snap.Key
	s.mu.Unlock()
	return next.LoanData, nil
}

// Close discards any pending calculation.
func (s *CalculationStep) Close() {
	s.query.Close()
}

func clearDerived(loan *domain.LoanData) {
	loan.NoOfInstallments = nil
	loan.LoanAmount = nil
	loan.TotalRepayment = nil
	loan.TotalPaid = nil
	loan.RegularInstallment = nil
	loan.ActualProcessingFee = nil
	loan.StickerFee = nil
	loan.InterestRatePercent = nil
	loan.TotalInterestValue = nil
}
