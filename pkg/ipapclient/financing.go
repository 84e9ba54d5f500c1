package ipapclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/resolutinsurance/ipap-insurance-agent-sub001/internal/domain"
)

// CalculateRequest is the payload of the premium-financing calculation endpoint.
type CalculateRequest struct {
	PremiumAmount    float64                 `json:"premiumAmount"`
	InitialDeposit   float64                 `json:"initialDeposit"`
	Duration         int                     `json:"duration"`
	PaymentFrequency domain.PaymentFrequency `json:"paymentFrequency"`
	Type             string                  `json:"type"`
	QuoteType        string                  `json:"quoteType"`
}

// ScheduleRequest is the payload of the direct repayment-schedule endpoint.
type ScheduleRequest struct {
	CalculateRequest
	LoanAmount         float64 `json:"loanAmount,omitempty"`
	RegularInstallment float64 `json:"regularInstallment,omitempty"`
	NoOfInstallments   int     `json:"noofInstallments,omitempty"`
	VerificationID     string  `json:"verificationId,omitempty"`
}

func newCalculateRequest(in domain.LoanInputs) CalculateRequest {
	return CalculateRequest{
		PremiumAmount:    in.PremiumAmount,
		InitialDeposit:   in.InitialDeposit,
		Duration:         in.Duration,
		PaymentFrequency: in.PaymentFrequency,
		Type:             in.Type,
		QuoteType:        in.QuoteType,
	}
}

// NewScheduleRequest builds the schedule payload from a finalized loan.
func NewScheduleRequest(loan *domain.LoanData, verificationID string) ScheduleRequest {
	req := ScheduleRequest{
		CalculateRequest: newCalculateRequest(loan.Inputs()),
		VerificationID:   verificationID,
	}
	if loan.LoanAmount != nil {
		req.LoanAmount = *loan.LoanAmount
	}
	if loan.RegularInstallment != nil {
		req.RegularInstallment = *loan.RegularInstallment
	}
	if loan.NoOfInstallments != nil {
		req.NoOfInstallments = *loan.NoOfInstallments
	}
	return req
}

// CalculatePremiumFinancing asks the backend for the loan figures of a selection.
func (c *Client) CalculatePremiumFinancing(ctx context.Context, in domain.LoanInputs) (*domain.CalculationResult, error) {
	var out domain.CalculationResult
	if err := c.doJSON(ctx, "calculate", http.MethodPost, pathCalculate, newCalculateRequest(in), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ProcessingFees fetches the processing-fee range table in backend order.
func (c *Client) ProcessingFees(ctx context.Context) ([]domain.ProcessingFee, error) {
	var out []domain.ProcessingFee
	if err := c.doJSON(ctx, "processing_fees", http.MethodGet, pathProcessingFees, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

type rawSchedule struct {
	InitialDeposit     flexFloat                `json:"initialDeposit"`
	LoanAmount         flexFloat                `json:"loanAmount"`
	TotalRepayment     flexFloat                `json:"totalRepayment"`
	PaymentFrequency   string                   `json:"paymentFrequency"`
	RegularInstallment flexFloat                `json:"regularInstallment"`
	Schedule           []map[string]interface{} `json:"schedule"`
}

// DirectRepaymentSchedule fetches the amortization schedule for a finalized loan.
func (c *Client) DirectRepaymentSchedule(ctx context.Context, req ScheduleRequest) (*domain.RepaymentSchedule, error) {
	var raw rawSchedule
	if err := c.doJSON(ctx, "repayment_schedule", http.MethodPost, pathDirectSchedule, req, &raw); err != nil {
		return nil, err
	}

	out := &domain.RepaymentSchedule{
		InitialDeposit:     float64(raw.InitialDeposit),
		LoanAmount:         float64(raw.LoanAmount),
		TotalRepayment:     float64(raw.TotalRepayment),
		PaymentFrequency:   domain.PaymentFrequency(strings.ToLower(raw.PaymentFrequency)),
		RegularInstallment: float64(raw.RegularInstallment),
		Schedule:           make([]domain.ScheduleRow, 0, len(raw.Schedule)),
	}
	for i, row := range raw.Schedule {
		out.Schedule = append(out.Schedule, normalizeScheduleRow(i, row))
	}
	return out, nil
}

// normalizeScheduleRow maps the backend's row keys, which differ between
// product types, onto ScheduleRow.
func normalizeScheduleRow(index int, row map[string]interface{}) domain.ScheduleRow {
	out := domain.ScheduleRow{InstallmentNumber: index + 1}
	if n, ok := firstNumber(row, "installmentNumber", "installment", "no"); ok {
		out.InstallmentNumber = int(n)
	}
	out.DueDate = firstString(row, "dueDate", "paymentDate", "date")
	if amount, ok := firstNumber(row, "amount", "installmentAmount", "payment"); ok {
		out.Amount = amount
	}
	if balance, ok := firstNumber(row, "balance", "remainingBalance", "outstandingBalance"); ok {
		out.Balance = balance
	}
	return out
}

func firstNumber(row map[string]interface{}, keys ...string) (float64, bool) {
	for _, key := range keys {
		switch v := row[key].(type) {
		case float64:
			return v, true
		case string:
			if f, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(v), ",", ""), 64); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}

func firstString(row map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if v, ok := row[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// flexFloat accepts numbers sent either as JSON numbers or numeric strings.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" || s == "" {
		*f = 0
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		str = strings.ReplaceAll(strings.TrimSpace(str), ",", "")
		if str == "" {
			*f = 0
			return nil
		}
		v, err := strconv.ParseFloat(str, 64)
		if err != nil {
			return fmt.Errorf("invalid numeric string %q: %w", str, err)
		}
		*f = flexFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

// SetupPremiumFinancing creates the financing record for the remote flow.
func (c *Client) SetupPremiumFinancing(ctx context.Context, req domain.RemoteSetupRequest) (*domain.RemoteSetupResult, error) {
	var out domain.RemoteSetupResult
	if err := c.doJSON(ctx, "financing_setup", http.MethodPost, pathFinancingSetup, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
