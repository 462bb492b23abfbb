package usecase

import "github.com/vitos/crypto_scale_out/internal/domain"

// TargetCalculator computes the 1:1 risk/reward scale-out target from the
// entry fill, the stop, and the venue's cost assumptions.
type TargetCalculator struct{}

func NewTargetCalculator() *TargetCalculator {
	return &TargetCalculator{}
}

// Target returns the rounded exit target price. A non-zero override bypasses
// the calculation entirely (fixed-target mode).
//
// The base 1:1 reward is 2*entry - stop: the stop distance reflected across
// the entry. The slippage term worsens the assumed stop fill, and the fee
// term widens the target so the round-trip taker fee is recovered, keeping
// the trade 1:1 net of costs.
func (c *TargetCalculator) Target(entryFill, stopPrice, feeRate, slippagePct float64, isShort bool, override float64) float64 {
	if override != 0 {
		return domain.RoundSig(override)
	}

	var target float64
	if isShort {
		target = 2*entryFill - stopPrice*(1+slippagePct) - 4*entryFill*feeRate/(1+feeRate)
	} else {
		target = 2*entryFill - stopPrice*(1-slippagePct) + 4*entryFill*feeRate/(1-feeRate)
	}
	return domain.RoundSig(target)
}
