package engine

import "math/big"

// ratioBase is the fixed-point scale for fee and distribution ratios.
var ratioBase = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// feeOf is the single fee law: floor(amount * ratio / 1e18). Every claim
// path charges through it exactly once per gross amount.
func feeOf(amount, ratio *big.Int) *big.Int {
	if amount == nil || ratio == nil || amount.Sign() == 0 || ratio.Sign() == 0 {
		return new(big.Int)
	}
	out := new(big.Int).Mul(amount, ratio)
	return out.Div(out, ratioBase)
}

// mulDiv is floor(a * b / d), the proportional-fill primitive shared by the
// fixed-swap and dutch math.
func mulDiv(a, b, d *big.Int) *big.Int {
	out := new(big.Int).Mul(a, b)
	return out.Div(out, d)
}
