package numbers

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// All reward math runs on raw integer amounts. Decimal conversion happens
// only here, at the presentation boundary.

// UiAmount renders a raw integer amount as a decimal string scaled by the
// token's decimals, e.g. UiAmount("1500000", 6) == "1.5".
func UiAmount(raw string, decimals int32) (string, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return "", fmt.Errorf("invalid raw amount '%s': %w", raw, err)
	}
	return d.Shift(-decimals).String(), nil
}

// RawAmount converts a human decimal amount back into raw integer units,
// truncating anything below the token's precision.
func RawAmount(uiAmount string, decimals int32) (string, error) {
	d, err := decimal.NewFromString(uiAmount)
	if err != nil {
		return "", fmt.Errorf("invalid amount '%s': %w", uiAmount, err)
	}
	return d.Shift(decimals).Truncate(0).String(), nil
}

// SumBalances adds a list of raw integer balances without precision loss.
func SumBalances(balances []string) (*big.Int, error) {
	total := big.NewInt(0)
	for _, b := range balances {
		value, ok := new(big.Int).SetString(b, 10)
		if !ok {
			return nil, fmt.Errorf("invalid balance '%s'", b)
		}
		total.Add(total, value)
	}
	return total, nil
}
