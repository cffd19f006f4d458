package common

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestParseDollarsToCents(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"74.99", 7499},
		{"0", 0},
		{"0.01", 1},
		{"100", 10000},
		{"100.5", 10050},
		{"-3.25", -325},
	}
	for _, tc := range cases {
		got, err := ParseDollarsToCents(tc.in)
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.want, got, tc.in)
	}
}

func TestParseDollarsToCentsRejectsSubCent(t *testing.T) {
	_, err := ParseDollarsToCents("1.005")
	require.ErrorIs(t, err, ErrFractionalCents)

	_, err = ParseDollarsToCents("not-a-number")
	require.Error(t, err)
}

func TestDecimalRoundTrip(t *testing.T) {
	d := CentsToDecimal(7499)
	require.Equal(t, "74.99", d.StringFixed(2))

	cents, err := DecimalToCents(d)
	require.NoError(t, err)
	require.Equal(t, int64(7499), cents)

	cents, err = DecimalToCents(decimal.RequireFromString("19.90"))
	require.NoError(t, err)
	require.Equal(t, int64(1990), cents)
}

func TestFormatCents(t *testing.T) {
	require.Equal(t, "74.99", FormatCents(7499))
	require.Equal(t, "0.05", FormatCents(5))
	require.Equal(t, "120.00", FormatCents(12000))
}
