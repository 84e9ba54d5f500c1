package loanmath

import (
	"github.com/shopspring/decimal"

	"github.com/resolutinsurance/ipap-insurance-agent-sub001/internal/domain"
)

const (
	daysPerMonth  = 30
	weeksPerMonth = 4
)

// EstimateInput is the data needed for a local loan preview.
type EstimateInput struct {
	Inputs              domain.LoanInputs
	InterestRatePercent float64
	ProcessingFees      []domain.ProcessingFee
}

// LoanAmount is the financed part of the premium. It never goes below zero.
func LoanAmount(premiumAmount, initialDeposit float64) float64 {
	amount := decimal.NewFromFloat(premiumAmount).Sub(decimal.NewFromFloat(initialDeposit))
	if amount.IsNegative() {
		return 0
	}
	return amount.Round(2).InexactFloat64()
}

// NumberOfInstallments converts a duration in months into installment count.
func NumberOfInstallments(durationMonths int, frequency domain.PaymentFrequency) int {
	if durationMonths <= 0 {
		return 0
	}
	switch frequency {
	case domain.FrequencyDaily:
		return durationMonths * daysPerMonth
	case domain.FrequencyWeekly:
		return durationMonths * weeksPerMonth
	case domain.FrequencyMonthly:
		return durationMonths
	}
	return 0
}

// Interest is the flat interest charged on loanAmount at ratePercent.
func Interest(loanAmount, ratePercent float64) float64 {
	return decimal.NewFromFloat(loanAmount).
		Mul(decimal.NewFromFloat(ratePercent)).
		Div(decimal.NewFromInt(100)).
		Round(2).
		InexactFloat64()
}

// RegularInstallment spreads total over n installments.
func RegularInstallment(total float64, installments int) float64 {
	if installments <= 0 {
		return 0
	}
	return decimal.NewFromFloat(total).
		Div(decimal.NewFromInt(int64(installments))).
		Round(2).
		InexactFloat64()
}

// Estimate builds a preview from the local formulas. The backend calculation
// stays authoritative; this only drives on-screen hints before it returns.
func Estimate(in EstimateInput) domain.LoanEstimate {
	loanAmount := LoanAmount(in.Inputs.PremiumAmount, in.Inputs.InitialDeposit)
	pct := ProcessingFeePercentage(in.Inputs.PremiumAmount, in.ProcessingFees)
	fee := ProcessingFeeAmount(in.Inputs.PremiumAmount, pct)
	interest := Interest(loanAmount, in.InterestRatePercent)
	total := decimal.NewFromFloat(loanAmount).Add(decimal.NewFromFloat(interest)).Round(2).InexactFloat64()
	n := NumberOfInstallments(in.Inputs.Duration, in.Inputs.PaymentFrequency)

	return domain.LoanEstimate{
		LoanAmount:              loanAmount,
		ProcessingFeePercentage: pct,
		ProcessingFee:           fee,
		Interest:                interest,
		TotalRepayment:          total,
		NoOfInstallments:        n,
		RegularInstallment:      RegularInstallment(total, n),
	}
}
