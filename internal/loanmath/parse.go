package loanmath

import (
	"math"
	"strconv"
	"strings"
	"unicode"
)

// parseLeadingFloat reads the longest numeric prefix of s the way browsers
// parse fee strings: leading whitespace is skipped, trailing garbage ignored,
// and NaN is returned when no digits are found. "1,000" therefore reads as 1.
func parseLeadingFloat(s string) float64 {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	if s == "" {
		return math.NaN()
	}

	i := 0
	sign := 1.0
	if s[0] == '+' || s[0] == '-' {
		if s[0] == '-' {
			sign = -1
		}
		i++
	}
	if strings.HasPrefix(s[i:], "Infinity") {
		return math.Inf(int(sign))
	}

	start := i
	digits := 0
	for i < len(s) && isDigit(s[i]) {
		i++
		digits++
	}
	if i < len(s) && s[i] == '.' {
		i++
		for i < len(s) && isDigit(s[i]) {
			i++
			digits++
		}
	}
	if digits == 0 {
		return math.NaN()
	}
	end := i

	// Exponent only counts when at least one digit follows it.
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			j++
		}
		expDigits := 0
		for j < len(s) && isDigit(s[j]) {
			j++
			expDigits++
		}
		if expDigits > 0 {
			end = j
		}
	}

	v, err := strconv.ParseFloat(s[start:end], 64)
	if err != nil {
		// Out-of-range exponents come back as ±Inf with ErrRange, which matches
		// browser behaviour; anything else is not a number.
		if numErr, ok := err.(*strconv.NumError); ok && numErr.Err == strconv.ErrRange {
			return sign * v
		}
		return math.NaN()
	}
	return sign * v
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}
