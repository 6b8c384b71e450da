// Package core provides money parsing and handling utilities.
//
// Amounts are carried through the ledger as signed int64 minor units. This
// file converts between that representation and the decimal strings typed by
// operators or shown in reports.
package core

import (
	"math"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// DefaultCurrency is used when an account is created without one.
const DefaultCurrency = "USD"

var (
	maxMinor = decimal.NewFromInt(math.MaxInt64)
	minMinor = decimal.NewFromInt(math.MinInt64)
)

// SupportedCurrency reports whether code is an ISO currency known to go-money.
func SupportedCurrency(code string) bool {
	return money.GetCurrency(code) != nil
}

// fraction returns the number of minor-unit digits of code, 2 when unknown.
func fraction(code string) int32 {
	if cur := money.GetCurrency(code); cur != nil {
		return int32(cur.Fraction)
	}
	return 2
}

// ParseMinor converts a decimal string to signed minor units of currency.
//
// Both dot (12.34) and comma (12,34) separators are accepted. Digits beyond
// the currency's fraction are rounded half away from zero.
//
// Examples:
//
//	ParseMinor("12.34", "USD")  -> 1234, nil
//	ParseMinor("-12,345", "EUR") -> -1235, nil
//	ParseMinor("1500", "JPY")   -> 1500, nil
func ParseMinor(s, currency string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, ErrInvalidAmount
	}

	minor := d.Shift(fraction(currency)).Round(0)
	if minor.GreaterThan(maxMinor) || minor.LessThan(minMinor) {
		return 0, ErrInvalidAmount
	}
	return minor.IntPart(), nil
}

// FormatMinor renders minor units with the currency's symbol and grouping.
func FormatMinor(minor int64, currency string) string {
	if !SupportedCurrency(currency) {
		return decimal.New(minor, -fraction(currency)).StringFixed(fraction(currency)) + " " + currency
	}
	return money.New(minor, currency).Display()
}
