package loanmath

import (
	"testing"

	"github.com/resolutinsurance/ipap-insurance-agent-sub001/internal/domain"
)

func TestNumberOfInstallments(t *testing.T) {
	tests := []struct {
		months    int
		frequency domain.PaymentFrequency
		want      int
	}{
		{months: 6, frequency: domain.FrequencyMonthly, want: 6},
		{months: 6, frequency: domain.FrequencyWeekly, want: 24},
		{months: 6, frequency: domain.FrequencyDaily, want: 180},
		{months: 0, frequency: domain.FrequencyMonthly, want: 0},
		{months: 3, frequency: "yearly", want: 0},
	}

	for _, tt := range tests {
		if got := NumberOfInstallments(tt.months, tt.frequency); got != tt.want {
			t.Fatalf("NumberOfInstallments(%d, %s) = %d, want %d", tt.months, tt.frequency, got, tt.want)
		}
	}
}

func TestLoanAmountNeverNegative(t *testing.T) {
	if got := LoanAmount(10000, 2000); got != 8000 {
		t.Fatalf("expected 8000, got %v", got)
	}
	if got := LoanAmount(1000, 2000); got != 0 {
		t.Fatalf("expected 0 for deposit above premium, got %v", got)
	}
}

func TestEstimate(t *testing.T) {
	got := Estimate(EstimateInput{
		Inputs: domain.LoanInputs{
			PremiumAmount:    10000,
			InitialDeposit:   2000,
			Duration:         6,
			PaymentFrequency: domain.FrequencyMonthly,
		},
		InterestRatePercent: 10,
		ProcessingFees: []domain.ProcessingFee{
			{LoanAmountRange: "GHS 5000", FeePercentage: "1%"},
			{LoanAmountRange: "Above GHS 5000", FeePercentage: "3%"},
		},
	})

	if got.LoanAmount != 8000 {
		t.Fatalf("expected loan amount 8000, got %v", got.LoanAmount)
	}
	if got.ProcessingFeePercentage != "3%" || got.ProcessingFee != 300 {
		t.Fatalf("expected 3%% fee of 300, got %s / %v", got.ProcessingFeePercentage, got.ProcessingFee)
	}
	if got.Interest != 800 || got.TotalRepayment != 8800 {
		t.Fatalf("expected interest 800 and total 8800, got %v / %v", got.Interest, got.TotalRepayment)
	}
	if got.NoOfInstallments != 6 || got.RegularInstallment != 1466.67 {
		t.Fatalf("expected 6 installments of 1466.67, got %d of %v", got.NoOfInstallments, got.RegularInstallment)
	}
}
