// Package core provides the month-key and health-scoring domain plus money helpers.
//
// This file contains functions for parsing monetary amounts typed in
// Brazilian notation and rendering them back as Real strings.
package core

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a user-typed amount into a decimal with two places.
//
// It accepts pt-BR notation (1.234,56 or 12,5) as well as a plain dot decimal
// (12.50) and an optional "R$" prefix. The third decimal place is rounded
// half-up. Zero, negative and malformed values return ErrInvalidAmount.
//
// Examples:
//
//	ParseAmount("12,34")     -> 12.34, nil
//	ParseAmount("1.234,56")  -> 1234.56, nil
//	ParseAmount("R$ 99.90")  -> 99.9, nil
//	ParseAmount("12,345")    -> 12.35, nil (rounds up)
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "R$")
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return decimal.Zero, ErrInvalidAmount
	}

	if strings.Contains(s, ",") {
		// Comma is the decimal separator; dots group thousands.
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	}
	if strings.Count(s, ".") > 1 {
		return decimal.Zero, ErrInvalidAmount
	}
	for _, r := range s {
		if r != '.' && !unicode.IsDigit(r) {
			return decimal.Zero, ErrInvalidAmount
		}
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	d = d.Round(2)
	if !d.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// FormatBRL renders d as a Real amount, e.g. "R$ 1.234,56".
func FormatBRL(d decimal.Decimal) string {
	neg := d.IsNegative()
	fixed := d.Abs().StringFixed(2)
	intPart, frac, _ := strings.Cut(fixed, ".")

	var grouped strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			grouped.WriteByte('.')
		}
		grouped.WriteRune(r)
	}

	out := "R$ " + grouped.String() + "," + frac
	if neg {
		return "-" + out
	}
	return out
}
