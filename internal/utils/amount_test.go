package utils

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestToBaseUnitsTruncates(t *testing.T) {
	require.Equal(t, uint64(1_999_999_999), ToBaseUnits(1.9999999999, SOLDecimals))
	require.Equal(t, uint64(1_999_999), ToBaseUnits(1.9999999, USDCDecimals))
	require.Equal(t, uint64(290_000_000), SOLToLamports(0.29))
	require.Equal(t, uint64(1_000_000), USDCToBaseUnits(1))
}

func TestToBaseUnitsRejectsUnrepresentable(t *testing.T) {
	require.Zero(t, ToBaseUnits(0, SOLDecimals))
	require.Zero(t, ToBaseUnits(-1.5, SOLDecimals))
	require.Zero(t, ToBaseUnits(0.0000000001, SOLDecimals))
	require.Zero(t, ToBaseUnits(math.NaN(), SOLDecimals))
	require.Zero(t, ToBaseUnits(math.Inf(1), SOLDecimals))
	require.Zero(t, ToBaseUnits(1e30, SOLDecimals))
}

func TestRoundTripWithinPrecision(t *testing.T) {
	cases := []struct {
		amount   float64
		decimals int32
		want     string
	}{
		{1.5, SOLDecimals, "1.500000000"},
		{0.000000001, SOLDecimals, "0.000000001"},
		{123.456789, USDCDecimals, "123.456789"},
		{0.1234567, USDCDecimals, "0.123456"},
		{42, USDCDecimals, "42.000000"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, ToHumanAmount(ToBaseUnits(tc.amount, tc.decimals), tc.decimals), "amount %v", tc.amount)
	}
}

func TestFormatHelpers(t *testing.T) {
	require.Equal(t, "1.000000000", FormatSOL(1_000_000_000))
	require.Equal(t, "0.000001", FormatUSDC(1))
	require.Equal(t, "0.000000000", FormatSOL(0))
}

func TestParseBaseUnits(t *testing.T) {
	units, err := ParseBaseUnits("0.5", SOLDecimals)
	require.NoError(t, err)
	require.Equal(t, uint64(500_000_000), units)

	units, err = ParseBaseUnits("2.9999999", USDCDecimals)
	require.NoError(t, err)
	require.Equal(t, uint64(2_999_999), units)

	_, err = ParseBaseUnits("0.0000001", USDCDecimals)
	require.Error(t, err)

	_, err = ParseBaseUnits("-3", USDCDecimals)
	require.Error(t, err)

	_, err = ParseBaseUnits("ten", USDCDecimals)
	require.Error(t, err)
}
