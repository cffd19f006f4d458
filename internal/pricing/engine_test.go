package pricing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveTier(t *testing.T) {
	e := Default()

	cases := []struct {
		name    string
		qty     int
		wantBps int32
		wantLbl string
	}{
		{"single unit no discount", 1, 0, ""},
		{"two units ten percent", 2, 1000, "10% OFF"},
		{"three units fifteen percent", 3, 1500, "15% OFF"},
		{"five units still fifteen", 5, 1500, "15% OFF"},
		{"large quantity capped at top tier", 250, 1500, "15% OFF"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tier, err := e.ResolveTier(tc.qty)
			require.NoError(t, err)
			require.Equal(t, tc.wantBps, tier.DiscountBps)
			require.Equal(t, tc.wantLbl, tier.Label)
		})
	}
}

func TestResolveTierInvalidQuantity(t *testing.T) {
	e := Default()
	for _, qty := range []int{0, -1, -100} {
		_, err := e.ResolveTier(qty)
		require.ErrorIs(t, err, ErrInvalidQuantity)
	}
}

func TestComputeQuoteTierBoundaries(t *testing.T) {
	e := Default()

	cases := []struct {
		name      string
		base      Money
		qty       int
		wantUnit  Money
		wantTotal Money
		wantSave  Money
		wantLabel string
	}{
		{"qty 1 full price", 10000, 1, 10000, 10000, 0, ""},
		{"qty 2 ten percent off", 10000, 2, 9000, 18000, 2000, "10% OFF"},
		{"qty 3 fifteen percent off", 10000, 3, 8500, 25500, 4500, "15% OFF"},
		{"qty 4 same rate as 3", 10000, 4, 8500, 34000, 6000, "15% OFF"},
		{"zero base price", 0, 3, 0, 0, 0, "15% OFF"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			q, err := e.ComputeQuote(tc.base, tc.qty)
			require.NoError(t, err)
			require.Equal(t, tc.wantUnit, q.UnitPrice)
			require.Equal(t, tc.wantTotal, q.TotalPrice)
			require.Equal(t, tc.wantSave, q.Savings)
			require.Equal(t, tc.wantLabel, q.TierLabel)
		})
	}
}

func TestComputeQuoteRoundsHalfUp(t *testing.T) {
	e := Default()

	// 10% off 1005 cents is 904.5, which rounds up to 905.
	q, err := e.ComputeQuote(1005, 2)
	require.NoError(t, err)
	require.Equal(t, Money(905), q.UnitPrice)
	require.Equal(t, Money(1810), q.TotalPrice)
	require.Equal(t, Money(200), q.Savings)

	// 15% off 33 cents is 28.05, which rounds down to 28.
	q, err = e.ComputeQuote(33, 3)
	require.NoError(t, err)
	require.Equal(t, Money(28), q.UnitPrice)
}

func TestComputeQuoteInvariants(t *testing.T) {
	e := Default()

	bases := []Money{0, 1, 99, 100, 1005, 9999, 10000, 123456}
	var prevUnit Money
	for _, base := range bases {
		prevUnit = -1
		for qty := 1; qty <= 8; qty++ {
			q, err := e.ComputeQuote(base, qty)
			require.NoError(t, err)
			require.GreaterOrEqual(t, q.Savings, Money(0))
			require.Equal(t, q.UnitPrice*Money(qty), q.TotalPrice)
			if prevUnit >= 0 {
				require.LessOrEqual(t, q.UnitPrice, prevUnit, "unit price must not increase with quantity (base=%d qty=%d)", base, qty)
			}
			prevUnit = q.UnitPrice
		}
	}
}

func TestComputeQuoteIdempotent(t *testing.T) {
	e := Default()
	a, err := e.ComputeQuote(7499, 3)
	require.NoError(t, err)
	b, err := e.ComputeQuote(7499, 3)
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestComputeQuoteRejectsBadInput(t *testing.T) {
	e := Default()

	_, err := e.ComputeQuote(-1, 1)
	require.ErrorIs(t, err, ErrNegativePrice)

	_, err = e.ComputeQuote(10000, 0)
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestNewEngineValidation(t *testing.T) {
	_, err := NewEngine([]Tier{{MinQty: 0, DiscountBps: 500}})
	require.Error(t, err)

	_, err = NewEngine([]Tier{{MinQty: 2, DiscountBps: 10000}})
	require.Error(t, err)

	_, err = NewEngine([]Tier{{MinQty: 2, DiscountBps: -1}})
	require.Error(t, err)

	// Unordered input is accepted and sorted internally.
	e, err := NewEngine([]Tier{
		{MinQty: 2, DiscountBps: 1000, Label: "10% OFF"},
		{MinQty: 3, DiscountBps: 1500, Label: "15% OFF"},
	})
	require.NoError(t, err)
	tier, err := e.ResolveTier(3)
	require.NoError(t, err)
	require.Equal(t, int32(1500), tier.DiscountBps)
}

func TestEmptyTierTable(t *testing.T) {
	e, err := NewEngine(nil)
	require.NoError(t, err)
	q, err := e.ComputeQuote(10000, 4)
	require.NoError(t, err)
	require.Equal(t, Money(10000), q.UnitPrice)
	require.Equal(t, Money(0), q.Savings)
	require.Empty(t, q.TierLabel)
}
