package domain

import "fmt"

// DefaultTakerFee is the venue's taker fee rate, charged on both the entry
// and the exit leg.
const DefaultTakerFee = 0.002

type ExitMode string

const (
	// ExitScaleOut is the default: half the position exits on a stop, the
	// other half on an OCO at a computed 1:1 risk/reward target.
	ExitScaleOut ExitMode = "SCALE_OUT"
	// ExitFixedTarget places one full-size OCO at a configured target price.
	ExitFixedTarget ExitMode = "FIXED_TARGET"
	// ExitSingleStop places one full-size protective stop and nothing else.
	ExitSingleStop ExitMode = "SINGLE_STOP"
)

// OrderIntent is the validated input for one trade lifecycle. It is built
// once at startup and never mutated afterwards.
type OrderIntent struct {
	Symbol         string
	Amount         float64 // unsigned magnitude
	EntryPrice     float64 // 0 means market entry
	StopPrice      float64
	StopLimitPrice float64 // optional limit leg for a stop-limit entry
	LimitEntry     bool
	Margin         bool // margin vs exchange (spot) wallet
	HiddenExits    bool
	CancelPrice    float64 // defaults to StopPrice
	ExitMode       ExitMode
	FixedTarget    float64 // only for ExitFixedTarget
	SlippagePct    float64
	FeeRate        float64
}

// IsShort derives direction from the price geometry. Direction is never
// configured: an entry below its stop can only be a short.
func (i *OrderIntent) IsShort() bool {
	return i.EntryPrice < i.StopPrice
}

// Normalize rounds every price to venue precision and applies defaults.
func (i *OrderIntent) Normalize() {
	if i.CancelPrice == 0 {
		i.CancelPrice = i.StopPrice
	}
	if i.FeeRate == 0 {
		i.FeeRate = DefaultTakerFee
	}
	if i.ExitMode == "" {
		i.ExitMode = ExitScaleOut
	}
	i.Amount = RoundSig(i.Amount)
	i.EntryPrice = RoundSig(i.EntryPrice)
	i.StopPrice = RoundSig(i.StopPrice)
	i.StopLimitPrice = RoundSig(i.StopLimitPrice)
	i.CancelPrice = RoundSig(i.CancelPrice)
	i.FixedTarget = RoundSig(i.FixedTarget)
}

// Validate checks the preconditions that must hold before any network
// activity. A failure here is fatal and needs no cleanup.
func (i *OrderIntent) Validate() error {
	if i.Symbol == "" {
		return fmt.Errorf("trading pair is required")
	}
	if i.Amount <= 0 {
		return fmt.Errorf("trade amount must be positive, got %f", i.Amount)
	}
	if i.StopPrice <= 0 {
		return fmt.Errorf("stop price must be positive, got %f", i.StopPrice)
	}
	if i.EntryPrice < 0 {
		return fmt.Errorf("entry price must not be negative, got %f", i.EntryPrice)
	}
	if i.IsShort() && !i.Margin {
		return fmt.Errorf("short entry (%f < stop %f) requires margin trading: spot cannot short", i.EntryPrice, i.StopPrice)
	}
	if i.ExitMode == ExitFixedTarget && i.FixedTarget <= 0 {
		return fmt.Errorf("fixed-target mode requires a positive target price")
	}
	if i.ExitMode != ExitFixedTarget && i.FixedTarget != 0 {
		return fmt.Errorf("target price is only valid in fixed-target mode")
	}
	if i.LimitEntry && i.EntryPrice == 0 {
		return fmt.Errorf("limit entry requires an entry price")
	}
	return nil
}
