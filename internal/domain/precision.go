package domain

import "math"

// sigDigits is the venue's quoting granularity: prices and amounts carry at
// most 5 significant digits regardless of magnitude.
const sigDigits = 5

// RoundSig rounds x to the venue's significant-digit precision. Every price
// and amount must pass through here before it is compared, stored, or sent;
// comparing a raw value against a rounded one is a bug.
func RoundSig(x float64) float64 {
	if x == 0 {
		return 0
	}
	d := math.Ceil(math.Log10(math.Abs(x)))
	scale := math.Pow(10, sigDigits-d)
	return math.Round(x*scale) / scale
}
