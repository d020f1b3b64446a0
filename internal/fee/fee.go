// Package fee splits a payment amount between the platform and the provider.
package fee

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// DefaultRate is the platform commission applied when none is configured.
var DefaultRate = decimal.RequireFromString("0.05")

var one = decimal.NewFromInt(1)

// Calculator holds the configured commission rate.  The zero value is not
// usable; build one with NewCalculator.
type Calculator struct {
	rate decimal.Decimal
}

// NewCalculator validates that rate lies in [0, 1].
func NewCalculator(rate decimal.Decimal) (Calculator, error) {
	if rate.IsNegative() || rate.GreaterThan(one) {
		return Calculator{}, fmt.Errorf("fee rate %s outside [0,1]", rate)
	}
	return Calculator{rate: rate}, nil
}

// Rate returns the configured commission rate.
func (c Calculator) Rate() decimal.Decimal { return c.rate }

// PercentageCharge is the rate expressed as a percentage, as the gateway
// expects it when creating subaccounts.
func (c Calculator) PercentageCharge() float64 {
	return c.rate.Mul(decimal.NewFromInt(100)).InexactFloat64()
}

// Split returns the platform fee (rounded half away from zero to two places)
// and the provider share.  The provider share is computed by subtraction so
// the two always add back up to amount exactly.
func (c Calculator) Split(amount decimal.Decimal) (platformFee, providerAmount decimal.Decimal) {
	platformFee = amount.Mul(c.rate).Round(2)
	providerAmount = amount.Sub(platformFee)
	return platformFee, providerAmount
}

// ToMinorUnits converts a major-unit amount (e.g. 100.50 GHS) into the
// integer minor units (10050 pesewas) the gateway works in.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// FromMinorUnits is the inverse of ToMinorUnits.
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}
