/**
 * @description
 * Processing-fee resolution for premium financing. The backend publishes an
 * ordered range table; the first row whose range covers the premium wins.
 *
 * @notes
 * - Rows are consulted in table order and never sorted, so the backend must
 *   publish narrower ranges before wider ones when they overlap.
 * - Three range formats are understood: "Above GHS X", "GHS X - GHS Y" (legacy)
 *   and a bare "GHS X" covering [0, X].
 */

package loanmath

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/resolutinsurance/ipap-insurance-agent-sub001/internal/domain"
)

// DefaultProcessingFeePercentage applies when the table is empty or no row matches.
const DefaultProcessingFeePercentage = "2%"

const (
	abovePrefix    = "Above GHS "
	currencyPrefix = "GHS "
	rangeSeparator = " - "
)

// ProcessingFeePercentage returns the fee percentage string of the first table
// row whose range covers premiumAmount.
func ProcessingFeePercentage(premiumAmount float64, fees []domain.ProcessingFee) string {
	if len(fees) == 0 {
		return DefaultProcessingFeePercentage
	}

	for _, fee := range fees {
		if rangeMatches(fee.LoanAmountRange, premiumAmount) {
			return fee.FeePercentage
		}
	}

	return DefaultProcessingFeePercentage
}

func rangeMatches(loanAmountRange string, premium float64) bool {
	switch {
	case strings.Contains(loanAmountRange, abovePrefix):
		lower := parseLeadingFloat(strings.Replace(loanAmountRange, abovePrefix, "", 1))
		return premium > lower
	case strings.Contains(loanAmountRange, rangeSeparator):
		parts := strings.SplitN(loanAmountRange, rangeSeparator, 2)
		lower := parseLeadingFloat(strings.Replace(parts[0], currencyPrefix, "", 1))
		upper := parseLeadingFloat(strings.Replace(parts[1], currencyPrefix, "", 1))
		return premium >= lower && premium <= upper
	default:
		upper := parseLeadingFloat(strings.Replace(loanAmountRange, currencyPrefix, "", 1))
		return premium <= upper
	}
}

// ParsePercentage strips the percent sign and reads the numeric value. An
// unparsable percentage reads as zero.
func ParsePercentage(percentage string) float64 {
	v := parseLeadingFloat(strings.Replace(percentage, "%", "", 1))
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// ProcessingFeeAmount is premiumAmount * percentage / 100, rounded to pesewas.
func ProcessingFeeAmount(premiumAmount float64, percentage string) float64 {
	pct := ParsePercentage(percentage)
	return decimal.NewFromFloat(premiumAmount).
		Mul(decimal.NewFromFloat(pct)).
		Div(decimal.NewFromInt(100)).
		Round(2).
		InexactFloat64()
}
