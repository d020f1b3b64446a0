package model

import "github.com/shopspring/decimal"

// Money is a decimal amount in major currency units.  decimal.Decimal
// marshals to a quoted JSON string, so clients never see float rounding.
type Money = decimal.Decimal

// FormatMoney renders m with exactly two decimals.
func FormatMoney(m Money) string { return m.StringFixed(2) }
