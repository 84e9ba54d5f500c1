/**
 * @description
 * This file defines the premium-financing ("Pay Small Small") models shared by the
 * loan math, the calculation query, the loan calculation step and the repayment
 * schedule preview.
 *
 * @notes
 * - Amounts are GHS values as returned by the IPAP backend. The backend owns every
 *   authoritative figure; the portal only copies them through.
 * - Optional derived fields on LoanData are pointers so an unset field is
 *   distinguishable from a zero value once persisted.
 */

package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// PaymentFrequency is the installment cadence chosen for a financed premium.
type PaymentFrequency string

const (
	FrequencyDaily   PaymentFrequency = "daily"
	FrequencyWeekly  PaymentFrequency = "weekly"
	FrequencyMonthly PaymentFrequency = "monthly"
)

var ErrInvalidFrequency = errors.New("payment frequency must be daily, weekly or monthly")

// ParsePaymentFrequency accepts the three frequencies case-insensitively.
func ParsePaymentFrequency(raw string) (PaymentFrequency, error) {
	switch PaymentFrequency(strings.ToLower(strings.TrimSpace(raw))) {
	case FrequencyDaily:
		return FrequencyDaily, nil
	case FrequencyWeekly:
		return FrequencyWeekly, nil
	case FrequencyMonthly:
		return FrequencyMonthly, nil
	}
	return "", ErrInvalidFrequency
}

// Valid reports whether f is one of the supported frequencies.
func (f PaymentFrequency) Valid() bool {
	_, err := ParsePaymentFrequency(string(f))
	return err == nil
}

// LoanInputs carries the user-adjustable selection that feeds the loan math
// and the backend calculation.
type LoanInputs struct {
	PremiumAmount    float64          `json:"premiumAmount"`
	InitialDeposit   float64          `json:"initialDeposit"`
	Duration         int              `json:"duration"` // months
	PaymentFrequency PaymentFrequency `json:"paymentFrequency"`
	Type             string           `json:"type"`
	QuoteType        string           `json:"quoteType"`
}

// Validate checks the selection before it is sent upstream.
func (in LoanInputs) Validate() error {
	if in.PremiumAmount <= 0 {
		return errors.New("premium amount must be greater than zero")
	}
	if in.InitialDeposit < 0 {
		return errors.New("initial deposit cannot be negative")
	}
	if in.InitialDeposit >= in.PremiumAmount {
		return errors.New("initial deposit must be less than the premium amount")
	}
	if in.Duration <= 0 {
		return errors.New("duration must be at least one month")
	}
	if !in.PaymentFrequency.Valid() {
		return ErrInvalidFrequency
	}
	return nil
}

// Key is the canonical cache key of the selection. Every input participates so
// a result for one parameter set is never served for another.
func (in LoanInputs) Key() string {
	return strings.Join([]string{
		strconv.FormatFloat(in.PremiumAmount, 'f', -1, 64),
		strconv.FormatFloat(in.InitialDeposit, 'f', -1, 64),
		strconv.Itoa(in.Duration),
		string(in.PaymentFrequency),
		in.Type,
		in.QuoteType,
	}, "|")
}

func (in LoanInputs) String() string {
	return fmt.Sprintf("premium=%.2f deposit=%.2f duration=%d frequency=%s quote_type=%s",
		in.PremiumAmount, in.InitialDeposit, in.Duration, in.PaymentFrequency, in.QuoteType)
}

// ProcessingFee is one row of the backend's processing-fee range table.
type ProcessingFee struct {
	LoanAmountRange string `json:"loanAmountRange"`
	FeePercentage   string `json:"feePercentage"`
}

// CalculationResult is the backend's premium-financing calculation response.
type CalculationResult struct {
	LoanAmount          float64         `json:"loanAmount"`
	RegularInstallment  float64         `json:"regularInstallment"`
	NoOfInstallments    int             `json:"noofInstallments"`
	TotalRepayment      float64         `json:"totalRepayment"`
	TotalPaid           float64         `json:"totalPaid"`
	InterestRatePercent float64         `json:"interestRatePercent"`
	TotalInterestValue  float64         `json:"totalInterestValue"`
	ActualProcessingFee float64         `json:"actualProcessingFee"`
	StickerFee          float64         `json:"stickerFee"`
	ProcessingFees      []ProcessingFee `json:"ProcessingFees"`
	PremiumAmount       float64         `json:"premiumAmount"`
	InitialDeposit      float64         `json:"initialDeposit"`
}

// LoanData is the loan slice of a payment flow. It is filled incrementally by
// the selection and finalized from a CalculationResult on confirm.
type LoanData struct {
	PremiumAmount       float64          `json:"premiumAmount,omitempty"`
	InitialDeposit      float64          `json:"initialDeposit"`
	Duration            int              `json:"duration"`
	PaymentFrequency    PaymentFrequency `json:"paymentFrequency"`
	Type                string           `json:"type,omitempty"`
	QuoteType           string           `json:"quoteType,omitempty"`
	NoOfInstallments    *int             `json:"noofInstallments,omitempty"`
	LoanAmount          *float64         `json:"loanAmount,omitempty"`
	TotalRepayment      *float64         `json:"totalRepayment,omitempty"`
	TotalPaid           *float64         `json:"totalPaid,omitempty"`
	RegularInstallment  *float64         `json:"regularInstallment,omitempty"`
	ActualProcessingFee *float64         `json:"actualProcessingFee,omitempty"`
	StickerFee          *float64         `json:"stickerFee,omitempty"`
	InterestRatePercent *float64         `json:"interestRatePercent,omitempty"`
	TotalInterestValue  *float64         `json:"totalInterestValue,omitempty"`
}

// Finalized reports whether every derived field has been populated.
func (l *LoanData) Finalized() bool {
	return l != nil &&
		l.NoOfInstallments != nil &&
		l.LoanAmount != nil &&
		l.TotalRepayment != nil &&
		l.RegularInstallment != nil &&
		l.ActualProcessingFee != nil
}

// Inputs recovers the selection a LoanData was built from.
func (l *LoanData) Inputs() LoanInputs {
	if l == nil {
		return LoanInputs{}
	}
	return LoanInputs{
		PremiumAmount:    l.PremiumAmount,
		InitialDeposit:   l.InitialDeposit,
		Duration:         l.Duration,
		PaymentFrequency: l.PaymentFrequency,
		Type:             l.Type,
		QuoteType:        l.QuoteType,
	}
}

// ApplyInputs writes the selection fields, leaving derived fields untouched.
func (l *LoanData) ApplyInputs(in LoanInputs) {
	l.PremiumAmount = in.PremiumAmount
	l.InitialDeposit = in.InitialDeposit
	l.Duration = in.Duration
	l.PaymentFrequency = in.PaymentFrequency
	l.Type = in.Type
	l.QuoteType = in.QuoteType
}

// ApplyCalculation copies the derived figures verbatim from a backend result.
func (l *LoanData) ApplyCalculation(res CalculationResult) {
	n := res.NoOfInstallments
	loanAmount := res.LoanAmount
	totalRepayment := res.TotalRepayment
	totalPaid := res.TotalPaid
	regular := res.RegularInstallment
	fee := res.ActualProcessingFee
	sticker := res.StickerFee
	rate := res.InterestRatePercent
	interest := res.TotalInterestValue

	l.NoOfInstallments = &n
	l.LoanAmount = &loanAmount
	l.TotalRepayment = &totalRepayment
	l.TotalPaid = &totalPaid
	l.RegularInstallment = &regular
	l.ActualProcessingFee = &fee
	l.StickerFee = &sticker
	l.InterestRatePercent = &rate
	l.TotalInterestValue = &interest
}

// LoanEstimate is the client-side preview built by the loan math helpers.
type LoanEstimate struct {
	LoanAmount              float64 `json:"loanAmount"`
	ProcessingFeePercentage string  `json:"processingFeePercentage"`
	ProcessingFee           float64 `json:"processingFee"`
	Interest                float64 `json:"interest"`
	TotalRepayment          float64 `json:"totalRepayment"`
	NoOfInstallments        int     `json:"noofInstallments"`
	RegularInstallment      float64 `json:"regularInstallment"`
}

// ScheduleRow is one installment of an amortization schedule.
type ScheduleRow struct {
	InstallmentNumber int     `json:"installmentNumber"`
	DueDate           string  `json:"dueDate"`
	Amount            float64 `json:"amount"`
	Balance           float64 `json:"balance"`
}

// RepaymentSchedule is the backend's direct repayment-schedule response.
type RepaymentSchedule struct {
	InitialDeposit     float64          `json:"initialDeposit"`
	LoanAmount         float64          `json:"loanAmount"`
	TotalRepayment     float64          `json:"totalRepayment"`
	PaymentFrequency   PaymentFrequency `json:"paymentFrequency"`
	RegularInstallment float64          `json:"regularInstallment"`
	Schedule           []ScheduleRow    `json:"schedule"`
}

// RemoteSetupRequest starts a premium-financing record for the remote flow,
// where the customer completes payment from a link.
type RemoteSetupRequest struct {
	PremiumAmount    float64          `json:"premiumAmount"`
	InitialDeposit   float64          `json:"initialDeposit"`
	Duration         int              `json:"duration"`
	PaymentFrequency PaymentFrequency `json:"paymentFrequency"`
	QuoteType        string           `json:"quoteType"`
	UserID           string           `json:"userID"`
	UserAgentID      string           `json:"userAgentID"`
	CompanyID        string           `json:"companyID"`
	EntityID         string           `json:"entityid"`
	FromAgent        bool             `json:"fromAgent"`
}

// RemoteSetupResult is the response of the premium-financing setup endpoint.
type RemoteSetupResult struct {
	EncryptedClientLink string `json:"encryptedClientLink,omitempty"`
}
