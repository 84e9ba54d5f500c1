package loanmath

import (
	"math"
	"testing"

	"github.com/resolutinsurance/ipap-insurance-agent-sub001/internal/domain"
)

func TestProcessingFeePercentage(t *testing.T) {
	tiered := []domain.ProcessingFee{
		{LoanAmountRange: "GHS 1000", FeePercentage: "1%"},
		{LoanAmountRange: "Above GHS 1000", FeePercentage: "3%"},
	}
	legacy := []domain.ProcessingFee{
		{LoanAmountRange: "GHS 0 - GHS 500", FeePercentage: "1.5%"},
		{LoanAmountRange: "GHS 501 - GHS 5000", FeePercentage: "2.5%"},
	}
	overlapping := []domain.ProcessingFee{
		{LoanAmountRange: "GHS 10000", FeePercentage: "4%"},
		{LoanAmountRange: "GHS 1000", FeePercentage: "1%"},
	}

	tests := []struct {
		name    string
		premium float64
		fees    []domain.ProcessingFee
		want    string
	}{
		{name: "empty table uses default", premium: 500, fees: nil, want: "2%"},
		{name: "bare ceiling matches below", premium: 500, fees: tiered, want: "1%"},
		{name: "bare ceiling is inclusive", premium: 1000, fees: tiered, want: "1%"},
		{name: "above is exclusive", premium: 1500, fees: tiered, want: "3%"},
		{name: "legacy lower bound inclusive", premium: 0, fees: legacy, want: "1.5%"},
		{name: "legacy upper bound inclusive", premium: 5000, fees: legacy, want: "2.5%"},
		{name: "legacy gap falls back to default", premium: 500.5, fees: legacy, want: "2%"},
		{name: "legacy above all ranges falls back", premium: 9000, fees: legacy, want: "2%"},
		{name: "first match wins over narrower range", premium: 800, fees: overlapping, want: "4%"},
		{
			name:    "unparsable row never matches",
			premium: 10,
			fees: []domain.ProcessingFee{
				{LoanAmountRange: "GHS n/a", FeePercentage: "9%"},
				{LoanAmountRange: "GHS 100", FeePercentage: "1%"},
			},
			want: "1%",
		},
		{
			name:    "thousands separator reads as leading digits",
			premium: 2,
			fees: []domain.ProcessingFee{
				{LoanAmountRange: "GHS 1,000", FeePercentage: "5%"},
				{LoanAmountRange: "Above GHS 1", FeePercentage: "7%"},
			},
			want: "7%",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ProcessingFeePercentage(tt.premium, tt.fees)
			if got != tt.want {
				t.Fatalf("ProcessingFeePercentage(%v) = %q, want %q", tt.premium, got, tt.want)
			}
		})
	}
}

func TestProcessingFeeAmount(t *testing.T) {
	tests := []struct {
		premium    float64
		percentage string
		want       float64
	}{
		{premium: 10000, percentage: "2%", want: 200},
		{premium: 1234.56, percentage: "1.5%", want: 18.52},
		{premium: 500, percentage: "n/a", want: 0},
		{premium: 0, percentage: "3%", want: 0},
	}

	for _, tt := range tests {
		got := ProcessingFeeAmount(tt.premium, tt.percentage)
		if got != tt.want {
			t.Fatalf("ProcessingFeeAmount(%v, %q) = %v, want %v", tt.premium, tt.percentage, got, tt.want)
		}
	}
}

func TestParseLeadingFloat(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		nan  bool
	}{
		{in: "1000", want: 1000},
		{in: "  42.5abc", want: 42.5},
		{in: "1,000", want: 1},
		{in: "-3", want: -3},
		{in: ".5", want: 0.5},
		{in: "1e3", want: 1000},
		{in: "1e", want: 1},
		{in: "abc", nan: true},
		{in: "", nan: true},
		{in: ".", nan: true},
	}

	for _, tt := range tests {
		got := parseLeadingFloat(tt.in)
		if tt.nan {
			if !math.IsNaN(got) {
				t.Fatalf("parseLeadingFloat(%q) = %v, want NaN", tt.in, got)
			}
			continue
		}
		if got != tt.want {
			t.Fatalf("parseLeadingFloat(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
