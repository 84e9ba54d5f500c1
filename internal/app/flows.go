package app

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/resolutinsurance/ipap-insurance-agent-sub001/internal/domain"
	"github.com/resolutinsurance/ipap-insurance-agent-sub001/internal/financing"
	"github.com/resolutinsurance/ipap-insurance-agent-sub001/internal/loanmath"
	"github.com/resolutinsurance/ipap-insurance-agent-sub001/internal/store"
	"github.com/resolutinsurance/ipap-insurance-agent-sub001/pkg/ipapclient"
	"github.com/resolutinsurance/ipap-insurance-agent-sub001/pkg/rabbitmq"
)

// StartFlowRequest seeds a fresh payment flow from a quote.
type StartFlowRequest struct {
	PremiumAmount float64             `json:"premiumAmount"`
	Type          string              `json:"type"`
	QuoteType     string              `json:"quoteType"`
	Payment       *domain.PaymentData `json:"paymentData,omitempty"`
}

// FeeQuote is the processing fee that applies to a premium.
type FeeQuote struct {
	PremiumAmount float64 `json:"premiumAmount"`
	Percentage    string  `json:"percentage"`
	Amount        float64 `json:"amount"`
}

type EstimateRequest struct {
	Inputs              domain.LoanInputs `json:"inputs"`
	InterestRatePercent float64           `json:"interestRatePercent"`
}

// FlowState returns the agent's persisted flow, empty when none exists.
func (s *Service) FlowState(ctx context.Context, agentID string, variant domain.FlowVariant) (domain.PaymentVerificationState, error) {
	key, err := flowKey(agentID, variant)
	if err != nil {
		return domain.PaymentVerificationState{}, err
	}
	state, err := s.states.Get(ctx, key)
	if errors.Is(err, store.ErrStateNotFound) {
		return domain.PaymentVerificationState{}, nil
	}
	return state, err
}

// StartFlow discards any previous flow of the variant and seeds a new one.
func (s *Service) StartFlow(ctx context.Context, agentID string, variant domain.FlowVariant, req StartFlowRequest) (domain.PaymentVerificationState, error) {
	key, err := flowKey(agentID, variant)
	if err != nil {
		return domain.PaymentVerificationState{}, err
	}
	if req.PremiumAmount < 0 {
		return domain.PaymentVerificationState{}, fmt.Errorf("%w: premium amount cannot be negative", ErrInvalidInput)
	}
	s.steps.Remove(key)

	return s.states.Update(ctx, key, func(st *domain.PaymentVerificationState) error {
		*st = domain.PaymentVerificationState{}
		loan := st.EnsureLoanData()
		loan.PremiumAmount = req.PremiumAmount
		loan.Type = req.Type
		loan.QuoteType = req.QuoteType
		if req.Payment != nil {
			payment := *req.Payment
			st.PaymentData = &payment
		}
		return nil
	})
}

// SavePaymentData records the payment the agent initiated for the flow.
func (s *Service) SavePaymentData(ctx context.Context, agentID string, variant domain.FlowVariant, payment domain.PaymentData) (domain.PaymentVerificationState, error) {
	key, err := flowKey(agentID, variant)
	if err != nil {
		return domain.PaymentVerificationState{}, err
	}
	if payment.PaymentID == "" && payment.ReferenceID == "" {
		return domain.PaymentVerificationState{}, fmt.Errorf("%w: a payment id or reference id is required", ErrInvalidInput)
	}
	return s.states.Update(ctx, key, func(st *domain.PaymentVerificationState) error {
		st.PaymentData = &payment
		return nil
	})
}

// ClearFlow drops the variant's persisted state and its calculation step.
func (s *Service) ClearFlow(ctx context.Context, agentID string, variant domain.FlowVariant) error {
	key, err := flowKey(agentID, variant)
	if err != nil {
		return err
	}
	s.steps.Remove(key)
	return s.states.Clear(ctx, key)
}

func (s *Service) ProcessingFees(ctx context.Context) ([]domain.ProcessingFee, error) {
	return s.upstream.ProcessingFees(ctx)
}

// ProcessingFee resolves the fee bracket for a premium against the backend table.
func (s *Service) ProcessingFee(ctx context.Context, premiumAmount float64) (FeeQuote, error) {
	if premiumAmount <= 0 {
		return FeeQuote{}, fmt.Errorf("%w: premium amount must be positive", ErrInvalidInput)
	}
	fees, err := s.upstream.ProcessingFees(ctx)
	if err != nil {
		return FeeQuote{}, err
	}
	pct := loanmath.ProcessingFeePercentage(premiumAmount, fees)
	return FeeQuote{
		PremiumAmount: premiumAmount,
		Percentage:    pct,
		Amount:        loanmath.ProcessingFeeAmount(premiumAmount, pct),
	}, nil
}

// Estimate previews a loan locally. The figures are indicative; the backend
// calculation is authoritative.
func (s *Service) Estimate(ctx context.Context, req EstimateRequest) (domain.LoanEstimate, error) {
	if err := req.Inputs.Validate(); err != nil {
		return domain.LoanEstimate{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	fees, err := s.upstream.ProcessingFees(ctx)
	if err != nil {
		return domain.LoanEstimate{}, err
	}
	return loanmath.Estimate(loanmath.EstimateInput{
		Inputs:              req.Inputs,
		InterestRatePercent: req.InterestRatePercent,
		ProcessingFees:      fees,
	}), nil
}

func (s *Service) step(key store.FlowKey) (*financing.CalculationStep, error) {
	return s.steps.GetOrCreate(key, key.AgentID, func() *financing.CalculationStep {
		return financing.NewCalculationStep(s.upstream, s.states, key)
	})
}

// UpdateLoan records a duration/frequency selection and waits for its
// calculation to settle or ctx to end, whichever comes first. Quote fields the
// request leaves empty are taken from the stored loan.
func (s *Service) UpdateLoan(ctx context.Context, agentID string, variant domain.FlowVariant, inputs domain.LoanInputs) (financing.StepView, error) {
	key, err := flowKey(agentID, variant)
	if err != nil {
		return financing.StepView{}, err
	}
	if state, err := s.states.Get(ctx, key); err == nil && state.LoanData != nil {
		if inputs.PremiumAmount == 0 {
			inputs.PremiumAmount = state.LoanData.PremiumAmount
		}
		if inputs.Type == "" {
			inputs.Type = state.LoanData.Type
		}
		if inputs.QuoteType == "" {
			inputs.QuoteType = state.LoanData.QuoteType
		}
	}

	step, err := s.step(key)
	if err != nil {
		return financing.StepView{}, err
	}
	validationErr := inputs.Validate()
	// The calculation outlives this request; it keeps the upstream token only.
	if err := step.Update(context.WithoutCancel(ctx), inputs); err != nil && validationErr == nil {
		return step.View(), err
	}
	if validationErr != nil {
		return step.View(), fmt.Errorf("%w: %v", ErrInvalidInput, validationErr)
	}

	// A wait cut short leaves the view pending; the client polls GET /loan.
	view, _ := step.Wait(ctx)
	return view, nil
}

// LoanView returns the calculation step as currently rendered.
func (s *Service) LoanView(ctx context.Context, agentID string, variant domain.FlowVariant) (financing.StepView, error) {
	key, err := flowKey(agentID, variant)
	if err != nil {
		return financing.StepView{}, err
	}
	step, err := s.step(key)
	if err != nil {
		return financing.StepView{}, err
	}
	return step.View(), nil
}

// RetryLoan re-runs a failed calculation.
func (s *Service) RetryLoan(ctx context.Context, agentID string, variant domain.FlowVariant) (financing.StepView, error) {
	key, err := flowKey(agentID, variant)
	if err != nil {
		return financing.StepView{}, err
	}
	step, err := s.steps.Get(key, agentID)
	if err != nil {
		return financing.StepView{}, err
	}
	step.Retry(context.WithoutCancel(ctx))
	view, _ := step.Wait(ctx)
	return view, nil
}

// ConfirmLoan persists the settled calculation and publishes it.
func (s *Service) ConfirmLoan(ctx context.Context, agentID string, variant domain.FlowVariant) (*domain.LoanData, error) {
	key, err := flowKey(agentID, variant)
	if err != nil {
		return nil, err
	}
	step, err := s.steps.Get(key, agentID)
	if errors.Is(err, ErrFlowNotFound) {
		return nil, financing.ErrNotReady
	}
	if err != nil {
		return nil, err
	}
	loan, err := step.Confirm(ctx)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, rabbitmq.RoutingLoanConfirmed, agentID, variant, loanConfirmedEvent(loan))
	return loan, nil
}

func loanConfirmedEvent(loan *domain.LoanData) rabbitmq.LoanConfirmed {
	event := rabbitmq.LoanConfirmed{
		PremiumAmount:    loan.PremiumAmount,
		InitialDeposit:   loan.InitialDeposit,
		Duration:         loan.Duration,
		PaymentFrequency: string(loan.PaymentFrequency),
	}
	if loan.LoanAmount != nil {
		event.LoanAmount = *loan.LoanAmount
	}
	if loan.NoOfInstallments != nil {
		event.NoOfInstallments = *loan.NoOfInstallments
	}
	if loan.RegularInstallment != nil {
		event.RegularInstallment = *loan.RegularInstallment
	}
	if loan.TotalRepayment != nil {
		event.TotalRepayment = *loan.TotalRepayment
	}
	return event
}

func (s *Service) schedulePreview(agentID string, variant domain.FlowVariant) (*financing.SchedulePreview, error) {
	key, err := flowKey(agentID, variant)
	if err != nil {
		return nil, err
	}
	return financing.NewSchedulePreview(s.upstream, s.upstream, s.states, key, s.opts.PortalBaseURL), nil
}

// Schedule loads the repayment schedule of the confirmed loan.
func (s *Service) Schedule(ctx context.Context, agentID string, variant domain.FlowVariant) (financing.ScheduleView, error) {
	preview, err := s.schedulePreview(agentID, variant)
	if err != nil {
		return financing.ScheduleView{}, err
	}
	return preview.Load(ctx)
}

// SchedulePDF renders the schedule with the parameters the preview uses.
func (s *Service) SchedulePDF(ctx context.Context, agentID string, variant domain.FlowVariant, cookie *ipapclient.PDFCookie) ([]byte, error) {
	preview, err := s.schedulePreview(agentID, variant)
	if err != nil {
		return nil, err
	}
	if _, err := preview.Load(ctx); err != nil {
		return nil, err
	}
	return preview.ExportPDF(ctx, cookie)
}

// RemoteSetup registers the confirmed loan upstream so the client can finish
// the flow from their own device.
func (s *Service) RemoteSetup(ctx context.Context, agent domain.Agent, variant domain.FlowVariant) (*domain.RemoteSetupResult, error) {
	key, err := flowKey(agent.ID, variant)
	if err != nil {
		return nil, err
	}
	state, err := s.states.Get(ctx, key)
	if errors.Is(err, store.ErrStateNotFound) {
		return nil, financing.ErrLoanNotFinalized
	}
	if err != nil {
		return nil, err
	}
	if !state.LoanData.Finalized() {
		return nil, financing.ErrLoanNotFinalized
	}

	loan := state.LoanData
	result, err := s.upstream.SetupPremiumFinancing(ctx, domain.RemoteSetupRequest{
		PremiumAmount:    loan.PremiumAmount,
		InitialDeposit:   loan.InitialDeposit,
		Duration:         loan.Duration,
		PaymentFrequency: loan.PaymentFrequency,
		QuoteType:        loan.QuoteType,
		UserID:           agent.ID,
		UserAgentID:      agent.UserAgentID,
		CompanyID:        agent.CompanyID,
		EntityID:         agent.EntityID,
		FromAgent:        true,
	})
	if err != nil {
		log.Printf("level=warn component=app msg=\"remote financing setup failed\" agent_id=%s err=%q", agent.ID, err.Error())
		return nil, err
	}
	return result, nil
}
