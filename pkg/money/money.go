// Package money converts between decimal currency and integer minor units and
// computes the platform fee split. All persisted amounts are minor units.
package money

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/tradepost-backend/pkg/errors"
)

// MinorDigits is the number of fraction digits carried by the supported currency.
const MinorDigits = 2

var (
	minorFactor = decimal.New(1, MinorDigits)
	maxMinor    = decimal.NewFromInt(math.MaxInt64)
)

// ToMinor converts a decimal amount such as 50.25 into minor units (5025).
// Amounts with sub-cent precision, a negative sign or more minor units than
// an int64 holds are rejected.
func ToMinor(amount decimal.Decimal) (int64, error) {
	if amount.IsNegative() {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "amount must not be negative")
	}
	scaled := amount.Mul(minorFactor)
	if !scaled.IsInteger() {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("amount %s has more than %d fraction digits", amount.String(), MinorDigits))
	}
	if scaled.GreaterThan(maxMinor) {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("amount %s is out of range", amount.String()))
	}
	return scaled.IntPart(), nil
}

// ParseMinor parses a decimal string such as "50.00" into minor units.
func ParseMinor(value string) (int64, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid amount")
	}
	return ToMinor(amount)
}

// FromMinor converts minor units back to a decimal amount.
func FromMinor(minor int64) decimal.Decimal {
	return decimal.New(minor, -MinorDigits)
}

// Format renders minor units with a fixed two-digit fraction, e.g. "50.00".
func Format(minor int64) string {
	return FromMinor(minor).StringFixed(MinorDigits)
}

// Rate is a platform fee rate in [0, 1).
type Rate struct {
	value decimal.Decimal
}

// ParseRate reads a fee rate such as "0.05".
func ParseRate(value string) (Rate, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return Rate{}, fmt.Errorf("invalid fee rate %q: %w", value, err)
	}
	if d.IsNegative() || d.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return Rate{}, fmt.Errorf("fee rate %s must be in [0, 1)", d.String())
	}
	return Rate{value: d}, nil
}

// Decimal exposes the rate for display.
func (r Rate) Decimal() decimal.Decimal {
	return r.value
}

func (r Rate) String() string {
	return r.value.String()
}

// Split is the division of a gross charge between platform and seller.
type Split struct {
	Gross       int64
	PlatformFee int64
	SellerNet   int64
}

// SplitFee computes the platform fee with round-half-up on the exact product
// and hands the remainder to the seller, so fee + seller always equals gross.
func SplitFee(gross int64, rate Rate) (Split, error) {
	if gross <= 0 {
		return Split{}, pkgerrors.New(pkgerrors.CodeValidation, "gross amount must be positive")
	}
	fee := decimal.NewFromInt(gross).Mul(rate.value).Round(0).IntPart()
	split := Split{
		Gross:       gross,
		PlatformFee: fee,
		SellerNet:   gross - fee,
	}
	if err := split.Validate(); err != nil {
		return Split{}, err
	}
	return split, nil
}

// Reconciles reports whether the parts add up to the gross with no negative part.
func (s Split) Reconciles() bool {
	return s.PlatformFee >= 0 && s.SellerNet >= 0 && s.PlatformFee+s.SellerNet == s.Gross
}

// Validate returns a FEE_MISMATCH error when the split does not reconcile.
func (s Split) Validate() error {
	if s.Reconciles() {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeFeeMismatch, "platform fee and seller amount do not sum to the gross").
		WithDetails(map[string]any{
			"gross":        s.Gross,
			"platform_fee": s.PlatformFee,
			"seller_net":   s.SellerNet,
		})
}
