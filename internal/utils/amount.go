package utils

import (
	"fmt"
	"math"
	"math/big"

	"github.com/shopspring/decimal"
)

// Token precisions
const (
	SOLDecimals  int32 = 9
	USDCDecimals int32 = 6
)

var maxUint64 = decimal.NewFromBigInt(new(big.Int).SetUint64(math.MaxUint64), 0)

// ToBaseUnits converts a human amount into integer base units, truncating toward zero.
// Non-positive, NaN and out-of-range inputs return 0 so callers reject them with one check.
func ToBaseUnits(humanAmount float64, decimals int32) uint64 {
	if math.IsNaN(humanAmount) || math.IsInf(humanAmount, 0) || humanAmount <= 0 {
		return 0
	}
	units := decimal.NewFromFloat(humanAmount).Shift(decimals).Truncate(0)
	if units.GreaterThan(maxUint64) {
		return 0
	}
	return units.BigInt().Uint64()
}

// ParseBaseUnits is ToBaseUnits for textual input, keeping every digit the user typed
func ParseBaseUnits(humanAmount string, decimals int32) (uint64, error) {
	d, err := decimal.NewFromString(humanAmount)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", humanAmount, err)
	}
	units := d.Shift(decimals).Truncate(0)
	if !units.IsPositive() {
		return 0, fmt.Errorf("amount %q is below the smallest unit", humanAmount)
	}
	if units.GreaterThan(maxUint64) {
		return 0, fmt.Errorf("amount %q is too large", humanAmount)
	}
	return units.BigInt().Uint64(), nil
}

// ToHumanAmount renders base units with exactly `decimals` fractional digits
func ToHumanAmount(baseUnits uint64, decimals int32) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(baseUnits), -decimals).StringFixed(decimals)
}

// SOLToLamports converts SOL to lamports
func SOLToLamports(sol float64) uint64 {
	return ToBaseUnits(sol, SOLDecimals)
}

// USDCToBaseUnits converts USDC to base units
func USDCToBaseUnits(usdc float64) uint64 {
	return ToBaseUnits(usdc, USDCDecimals)
}

// FormatSOL lamports -> "0.000000000"
func FormatSOL(lamports uint64) string {
	return ToHumanAmount(lamports, SOLDecimals)
}

// FormatUSDC base units -> "0.000000"
func FormatUSDC(baseUnits uint64) string {
	return ToHumanAmount(baseUnits, USDCDecimals)
}
