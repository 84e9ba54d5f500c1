package domain

import (
	"errors"
	"strings"
	"time"
)

// FlowVariant identifies one of the payment wizards. Each variant keeps its own
// PaymentVerificationState so the flows never read each other's data.
type FlowVariant string

const (
	VariantDirect   FlowVariant = "direct"
	VariantRemote   FlowVariant = "remote"
	VariantStandard FlowVariant = "standard"
)

var ErrInvalidVariant = errors.New("flow variant must be direct, remote or standard")

// AllVariants lists every flow variant.
var AllVariants = []FlowVariant{VariantDirect, VariantRemote, VariantStandard}

func ParseFlowVariant(raw string) (FlowVariant, error) {
	v := FlowVariant(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range AllVariants {
		if v == known {
			return v, nil
		}
	}
	return "", ErrInvalidVariant
}

// PaymentData is the payment slice of a payment flow.
type PaymentData struct {
	AccountName        string  `json:"accountName"`
	AccountNumber      string  `json:"accountNumber,omitempty"`
	Network            string  `json:"network,omitempty"`
	PaymentMethod      string  `json:"paymentMethod,omitempty"`
	Amount             float64 `json:"amount,omitempty"`
	PaymentID          string  `json:"paymentId,omitempty"`
	ReferenceID        string  `json:"referenceId,omitempty"`
	PremiumFinancingID string  `json:"premiumFinancingId,omitempty"`
	IsPremiumFinancing bool    `json:"isPremiumFinancing,omitempty"`
}

// VerificationResponse is the Ghana Card verification result.
type VerificationResponse struct {
	Success        bool   `json:"success"`
	VerificationID string `json:"verificationId,omitempty"`
	Forenames      string `json:"forenames,omitempty"`
	Surname        string `json:"surname,omitempty"`
	NationalID     string `json:"nationalId,omitempty"`
	DateOfBirth    string `json:"dateOfBirth,omitempty"`
	Gender         string `json:"gender,omitempty"`
	Message        string `json:"message,omitempty"`
}

// PaymentVerificationState is the session-scoped state shared across the steps
// of one payment flow. Steps contribute different slices and must merge rather
// than replace the whole value.
type PaymentVerificationState struct {
	LoanData          *LoanData             `json:"loanData"`
	PaymentData       *PaymentData          `json:"paymentData"`
	GhanaCardResponse *VerificationResponse `json:"ghanaCardResponse"`
	VerificationID    string                `json:"verificationId,omitempty"`
	UpdatedAt         time.Time             `json:"updatedAt"`
}

// EnsureLoanData returns the loan slice, creating it when absent.
func (s *PaymentVerificationState) EnsureLoanData() *LoanData {
	if s.LoanData == nil {
		s.LoanData = &LoanData{}
	}
	return s.LoanData
}

// EnsurePaymentData returns the payment slice, creating it when absent.
func (s *PaymentVerificationState) EnsurePaymentData() *PaymentData {
	if s.PaymentData == nil {
		s.PaymentData = &PaymentData{}
	}
	return s.PaymentData
}

// IdentityVerified reports whether a completed verification is on record, which
// lets a restored session skip the camera.
func (s *PaymentVerificationState) IdentityVerified() bool {
	return s != nil && s.VerificationID != "" && s.GhanaCardResponse != nil
}

// Clone returns a deep copy so callers can mutate without aliasing stored data.
func (s PaymentVerificationState) Clone() PaymentVerificationState {
	out := s
	if s.LoanData != nil {
		ld := *s.LoanData
		ld.NoOfInstallments = cloneInt(s.LoanData.NoOfInstallments)
		ld.LoanAmount = cloneFloat(s.LoanData.LoanAmount)
		ld.TotalRepayment = cloneFloat(s.LoanData.TotalRepayment)
		ld.TotalPaid = cloneFloat(s.LoanData.TotalPaid)
		ld.RegularInstallment = cloneFloat(s.LoanData.RegularInstallment)
		ld.ActualProcessingFee = cloneFloat(s.LoanData.ActualProcessingFee)
		ld.StickerFee = cloneFloat(s.LoanData.StickerFee)
		ld.InterestRatePercent = cloneFloat(s.LoanData.InterestRatePercent)
		ld.TotalInterestValue = cloneFloat(s.LoanData.TotalInterestValue)
		out.LoanData = &ld
	}
	if s.PaymentData != nil {
		pd := *s.PaymentData
		out.PaymentData = &pd
	}
	if s.GhanaCardResponse != nil {
		gr := *s.GhanaCardResponse
		out.GhanaCardResponse = &gr
	}
	return out
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
