package generic_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/warp/loan-engine/generic"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func round2(d decimal.Decimal) decimal.Decimal { return generic.Round(d, 2, generic.RoundHalfUp) }

func TestRound_Modes(t *testing.T) {
	tests := []struct {
		mode generic.RoundingMode
		in   string
		want string
	}{
		{generic.RoundHalfUp, "0.125", "0.13"},
		{generic.RoundHalfUp, "-0.125", "-0.13"},
		{"", "0.125", "0.13"},
		{generic.RoundHalfEven, "0.125", "0.12"},
		{generic.RoundHalfEven, "0.135", "0.14"},
		{generic.RoundHalfDown, "0.125", "0.12"},
		{generic.RoundHalfDown, "0.126", "0.13"},
		{generic.RoundHalfDown, "-0.125", "-0.12"},
		{generic.RoundHalfDown, "-0.126", "-0.13"},
		{generic.RoundUp, "0.121", "0.13"},
		{generic.RoundUp, "-0.121", "-0.13"},
		{generic.RoundDown, "0.129", "0.12"},
		{generic.RoundDown, "-0.129", "-0.12"},
		{generic.RoundCeiling, "-0.129", "-0.12"},
		{generic.RoundCeiling, "0.121", "0.13"},
		{generic.RoundFloor, "-0.121", "-0.13"},
		{generic.RoundFloor, "0.129", "0.12"},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode)+" "+tt.in, func(t *testing.T) {
			got := generic.Round(dec(tt.in), 2, tt.mode)
			assert.True(t, dec(tt.want).Equal(got), "want %s, got %s", tt.want, got)
		})
	}
}

func TestRound_ZeroDigits(t *testing.T) {
	assert.True(t, dec("1235").Equal(generic.Round(dec("1234.5"), 0, generic.RoundHalfUp)))
	assert.True(t, dec("1234").Equal(generic.Round(dec("1234.5"), 0, generic.RoundHalfEven)))
}

func TestRoundingMode_Valid(t *testing.T) {
	assert.True(t, generic.RoundingMode("").Valid())
	assert.True(t, generic.RoundFloor.Valid())
	assert.False(t, generic.RoundingMode("nearest").Valid())
}

func TestPlugResidual(t *testing.T) {
	got := generic.PlugResidual(dec("1000"), dec("333.33"), dec("333.33"))
	assert.True(t, dec("333.34").Equal(got))
}

func TestSplitEvenly_LastShareAbsorbsResidue(t *testing.T) {
	shares := generic.SplitEvenly(dec("100"), 3, round2)

	assert.Len(t, shares, 3)
	assert.True(t, dec("33.33").Equal(shares[0]))
	assert.True(t, dec("33.33").Equal(shares[1]))
	assert.True(t, dec("33.34").Equal(shares[2]))
	assert.Nil(t, generic.SplitEvenly(dec("100"), 0, round2))
}

func TestSplitProportionally(t *testing.T) {
	// GIVEN: Weights 1:2:1
	// WHEN: Splitting -100
	// THEN: Shares follow the weights and sum exactly to the total
	shares := generic.SplitProportionally(dec("-100"), []decimal.Decimal{dec("10"), dec("20"), dec("10")}, round2)

	assert.True(t, dec("-25").Equal(shares[0]))
	assert.True(t, dec("-50").Equal(shares[1]))
	assert.True(t, dec("-25").Equal(shares[2]))
	assert.True(t, dec("-100").Equal(decimal.Sum(shares[0], shares[1:]...)))
}

func TestSplitProportionally_ZeroWeightsSplitEvenly(t *testing.T) {
	shares := generic.SplitProportionally(dec("10"), []decimal.Decimal{decimal.Zero, decimal.Zero}, round2)

	assert.True(t, dec("5").Equal(shares[0]))
	assert.True(t, dec("5").Equal(shares[1]))
}
