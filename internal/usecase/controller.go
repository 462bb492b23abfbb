package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/vitos/crypto_scale_out/internal/domain"
	"go.uber.org/zap"
)

// tickLogInterval throttles the pending-entry status line. Every tick is
// still breach-checked; only the log line is coalesced.
const tickLogInterval = 5 * time.Minute

// ErrSessionClosed reports a venue-initiated connection close while the
// lifecycle still had unconfirmed orders in flight.
var ErrSessionClosed = errors.New("session closed by venue before the lifecycle completed")

type State int

const (
	StateInit State = iota
	StateEntryPending
	StateEntryCanceled
	StateExitSubmitting
	StateDone
	StateFatal
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateEntryPending:
		return "ENTRY_PENDING"
	case StateEntryCanceled:
		return "ENTRY_CANCELED"
	case StateExitSubmitting:
		return "EXIT_SUBMITTING"
	case StateDone:
		return "DONE"
	case StateFatal:
		return "FATAL"
	}
	return "UNKNOWN"
}

type EffectKind int

const (
	EffectSubmit EffectKind = iota + 1
	EffectCancel
	EffectUnsubscribe
	EffectShutdown
)

// Effect is an action the run loop executes against the session. Keeping
// effects out of Step makes every transition testable without a network.
type Effect struct {
	Kind    EffectKind
	Request *domain.OrderRequest
	Err     error // terminal error for EffectShutdown, nil on clean exit
}

// LifecycleController drives one entry order to a protected exit. It is the
// single owner of the lifecycle state; all three event streams (ticks, order
// acknowledgments, interrupts) funnel through Step on one goroutine.
type LifecycleController struct {
	intent  *domain.OrderIntent
	calc    *TargetCalculator
	log     *zap.Logger
	journal domain.TradeJournal
	runID   string

	state               State
	entry               *domain.OrderRequest
	stopLeg             *domain.OrderRequest
	ocoLeg              *domain.OrderRequest
	plan                *domain.ScaleOutPlan
	entryOrderActive    bool
	cancelRequested     bool
	effectiveEntryPrice float64 // set once at the fill transition
	exitAmount          float64 // fee-adjusted, sign-flipped
	awaitingOCO         bool
	exitsPending        int
	confirmed           map[int64]bool // exit legs already acked or closed
	lastStatusLog       time.Time
	cidSeq              int64
}

func NewLifecycleController(intent *domain.OrderIntent, journal domain.TradeJournal, runID string, log *zap.Logger) *LifecycleController {
	c := &LifecycleController{
		intent:  intent,
		calc:    NewTargetCalculator(),
		log:     log,
		journal: journal,
		runID:   runID,
		state:   StateInit,

		confirmed: make(map[int64]bool),
	}
	// The entry request exists before the connection opens.
	c.entry = c.buildEntry()
	return c
}

func (c *LifecycleController) State() State { return c.state }

// EntryRequest exposes the pre-built entry order for the run loop.
func (c *LifecycleController) EntryRequest() *domain.OrderRequest { return c.entry }

func (c *LifecycleController) nextCID() int64 {
	cid := time.Now().UnixMilli() + c.cidSeq
	c.cidSeq++
	return cid
}

func (c *LifecycleController) buildEntry() *domain.OrderRequest {
	i := c.intent

	amount := i.Amount
	if i.IsShort() {
		amount = -amount
	}

	kind := domain.KindStop
	aux := 0.0
	switch {
	case i.EntryPrice == 0:
		kind = domain.KindMarket
	case i.LimitEntry:
		kind = domain.KindLimit
	case i.StopLimitPrice != 0:
		kind = domain.KindStopLimit
		aux = i.StopLimitPrice
	}

	return &domain.OrderRequest{
		CID:      c.nextCID(),
		Symbol:   i.Symbol,
		Amount:   domain.RoundSig(amount),
		Price:    i.EntryPrice,
		AuxPrice: aux,
		Kind:     kind,
		Margin:   i.Margin,
		Status:   domain.StatusPending,
	}
}

// Step is the single event intake: one tagged event in, the next state and a
// list of effects out. It must only ever run on the controller goroutine.
func (c *LifecycleController) Step(ev domain.Event) []Effect {
	switch ev.Kind {
	case domain.EventPriceTick:
		return c.onTick(ev.Tick)
	case domain.EventOrderAck:
		return c.onAck(ev.CID)
	case domain.EventOrderClosed:
		return c.onClosed(ev)
	case domain.EventSubmitFailed:
		return c.onSubmitFailed(ev)
	case domain.EventCancelFailed:
		c.log.Warn("cancel request rejected by venue, order state uncertain, stopping",
			zap.Int64("cid", ev.CID), zap.Error(ev.Err))
		return c.terminate(StateEntryCanceled, nil)
	case domain.EventInterrupt:
		return c.onInterrupt()
	case domain.EventSessionError:
		return c.onSessionError(ev.Err)
	}
	c.log.Warn("dropping unknown event", zap.Stringer("kind", ev.Kind))
	return nil
}

func (c *LifecycleController) onTick(t domain.TickerSnapshot) []Effect {
	if c.state != StateInit && c.state != StateEntryPending {
		return nil
	}

	if time.Since(c.lastStatusLog) >= tickLogInterval {
		c.lastStatusLog = time.Now()
		c.log.Info("entry pending",
			zap.String("state", c.state.String()),
			zap.Float64("last", t.LastPrice),
			zap.Float64("bid", t.Bid),
			zap.Float64("ask", t.Ask),
			zap.Float64("cancelPrice", c.intent.CancelPrice))
	}

	// Monitor-only guard: never cancel an order that is no longer live, and
	// never issue a second cancel while one is in flight.
	if !c.entryOrderActive || c.cancelRequested {
		return nil
	}

	breach := false
	if c.intent.IsShort() {
		breach = c.intent.EntryPrice < c.intent.CancelPrice && t.Ask >= c.intent.CancelPrice
	} else {
		breach = c.intent.EntryPrice > c.intent.CancelPrice && t.Bid <= c.intent.CancelPrice
	}
	if !breach {
		return nil
	}

	c.cancelRequested = true
	c.log.Info("cancel price breached before fill, canceling entry",
		zap.Float64("bid", t.Bid),
		zap.Float64("ask", t.Ask),
		zap.Float64("cancelPrice", c.intent.CancelPrice),
		zap.Int64("cid", c.entry.CID))
	c.record(c.entry, "cancel", "breach")
	return []Effect{{Kind: EffectCancel, Request: c.entry}}
}

func (c *LifecycleController) onAck(cid int64) []Effect {
	switch {
	case c.entry != nil && cid == c.entry.CID && c.state == StateInit:
		c.state = StateEntryPending
		c.entryOrderActive = true
		c.entry.Status = domain.StatusActive
		c.log.Info("entry order live", zap.Int64("cid", cid), zap.String("type", string(c.entry.Kind)))
		c.record(c.entry, "ack", "")
		return nil

	case c.stopLeg != nil && cid == c.stopLeg.CID:
		return c.onExitConfirmed(c.stopLeg)

	case c.ocoLeg != nil && cid == c.ocoLeg.CID:
		return c.onExitConfirmed(c.ocoLeg)
	}

	c.log.Debug("acknowledgment for unknown order", zap.Int64("cid", cid))
	return nil
}

func (c *LifecycleController) onClosed(ev domain.Event) []Effect {
	if c.entry != nil && ev.CID == c.entry.CID {
		return c.onEntryClosed(ev)
	}

	// An exit leg can close immediately when the market is already through
	// its trigger; a close confirms the leg just as an ack does. A canceled
	// exit leg means the position lost (part of) its protection.
	var leg *domain.OrderRequest
	switch {
	case c.stopLeg != nil && ev.CID == c.stopLeg.CID:
		leg = c.stopLeg
	case c.ocoLeg != nil && ev.CID == c.ocoLeg.CID:
		leg = c.ocoLeg
	default:
		return nil
	}

	if ev.Status == domain.StatusCanceled {
		c.log.Error("POSITION AT RISK: protective order was canceled by the venue, intervene manually NOW",
			zap.Int64("cid", ev.CID),
			zap.Float64("amount", leg.Amount),
			zap.Float64("price", leg.Price))
		c.record(leg, "closed", "canceled by venue")
		return c.terminate(StateFatal, fmt.Errorf("protective order %d canceled by the venue, position unprotected", ev.CID))
	}
	leg.Status = ev.Status
	return c.onExitConfirmed(leg)
}

func (c *LifecycleController) onEntryClosed(ev domain.Event) []Effect {
	if c.state != StateInit && c.state != StateEntryPending {
		return nil
	}
	c.entryOrderActive = false
	c.entry.Status = ev.Status
	c.entry.AvgFillPrice = ev.AvgPrice
	c.record(c.entry, "closed", string(ev.Status))

	if ev.Status == domain.StatusCanceled {
		c.state = StateEntryCanceled
		c.log.Info("entry order canceled, no position to protect", zap.Int64("cid", ev.CID))
		return c.terminate(StateEntryCanceled, nil)
	}

	// Any non-canceled close is a fill, even if a cancel request is still in
	// flight: the fill wins and the position must be protected.
	if c.cancelRequested {
		c.log.Warn("entry filled while cancel was in flight, proceeding to exits", zap.Int64("cid", ev.CID))
	}
	c.effectiveEntryPrice = ev.AvgPrice
	if c.effectiveEntryPrice == 0 && c.entry.Kind != domain.KindMarket {
		// Limit and stop entries fill at a known configured price; only a
		// market entry leaves the true fill unknown when the venue omits
		// the average.
		c.effectiveEntryPrice = c.intent.EntryPrice
	}
	c.log.Info("entry filled",
		zap.Int64("cid", ev.CID),
		zap.Float64("avgPrice", ev.AvgPrice),
		zap.String("status", string(ev.Status)))

	// Realized size shrinks by the taker fee when trading from the exchange
	// wallet: the fee is charged in the traded asset.
	amt := c.intent.Amount
	if !c.intent.Margin {
		amt = amt * (1 - c.intent.FeeRate)
	}
	if c.intent.IsShort() {
		c.exitAmount = domain.RoundSig(amt) // buy back what was sold
	} else {
		c.exitAmount = domain.RoundSig(-amt)
	}

	c.state = StateExitSubmitting
	effects := []Effect{{Kind: EffectUnsubscribe}}
	return append(effects, c.submitExits()...)
}

func (c *LifecycleController) submitExits() []Effect {
	i := c.intent

	switch {
	case i.ExitMode == domain.ExitSingleStop,
		i.ExitMode == domain.ExitScaleOut && c.effectiveEntryPrice == 0:
		if i.ExitMode == domain.ExitScaleOut {
			c.log.Error("venue reported no average fill price: falling back to a FULL-SIZE stop. " +
				"Convert to a scale-out position manually if still wanted.")
		}
		c.stopLeg = &domain.OrderRequest{
			CID:        c.nextCID(),
			Symbol:     i.Symbol,
			Amount:     c.exitAmount,
			Price:      i.StopPrice,
			Kind:       domain.KindStop,
			Margin:     i.Margin,
			ReduceOnly: true,
			Hidden:     i.HiddenExits,
			Status:     domain.StatusPending,
		}
		c.exitsPending = 1
		c.log.Info("submitting full-size protective stop",
			zap.Int64("cid", c.stopLeg.CID),
			zap.Float64("amount", c.stopLeg.Amount),
			zap.Float64("stopPrice", i.StopPrice))
		c.record(c.stopLeg, "submit", "full stop")
		return []Effect{{Kind: EffectSubmit, Request: c.stopLeg}}

	case i.ExitMode == domain.ExitFixedTarget:
		target := c.calc.Target(c.effectiveEntryPrice, i.StopPrice, i.FeeRate, i.SlippagePct, i.IsShort(), i.FixedTarget)
		c.plan = &domain.ScaleOutPlan{
			StopAmount:   0,
			StopPrice:    i.StopPrice,
			TargetAmount: c.exitAmount,
			TargetPrice:  target,
		}
		c.ocoLeg = c.buildOCO(c.exitAmount, target)
		c.exitsPending = 1
		c.log.Info("submitting full-size OCO at fixed target",
			zap.Int64("cid", c.ocoLeg.CID),
			zap.Float64("amount", c.ocoLeg.Amount),
			zap.Float64("target", target),
			zap.Float64("stopPrice", i.StopPrice))
		c.record(c.ocoLeg, "submit", "fixed-target oco")
		return []Effect{{Kind: EffectSubmit, Request: c.ocoLeg}}

	default: // scale-out with a reported fill price
		half := domain.RoundSig(c.exitAmount / 2)
		rest := domain.RoundSig(c.exitAmount - half)
		target := c.calc.Target(c.effectiveEntryPrice, i.StopPrice, i.FeeRate, i.SlippagePct, i.IsShort(), 0)
		c.plan = &domain.ScaleOutPlan{
			StopAmount:   half,
			StopPrice:    i.StopPrice,
			TargetAmount: rest,
			TargetPrice:  target,
		}
		c.stopLeg = &domain.OrderRequest{
			CID:        c.nextCID(),
			Symbol:     i.Symbol,
			Amount:     half,
			Price:      i.StopPrice,
			Kind:       domain.KindStop,
			Margin:     i.Margin,
			ReduceOnly: true,
			Hidden:     i.HiddenExits,
			Status:     domain.StatusPending,
		}
		c.awaitingOCO = true
		c.exitsPending = 1
		c.log.Info("submitting scale-out stop leg",
			zap.Int64("cid", c.stopLeg.CID),
			zap.Float64("amount", half),
			zap.Float64("stopPrice", i.StopPrice),
			zap.Float64("plannedTarget", target))
		c.record(c.stopLeg, "submit", "scale-out stop")
		return []Effect{{Kind: EffectSubmit, Request: c.stopLeg}}
	}
}

func (c *LifecycleController) buildOCO(amount, target float64) *domain.OrderRequest {
	return &domain.OrderRequest{
		CID:        c.nextCID(),
		Symbol:     c.intent.Symbol,
		Amount:     amount,
		Price:      target,
		AuxPrice:   c.intent.StopPrice, // linked stop leg
		Kind:       domain.KindLimit,
		Margin:     c.intent.Margin,
		ReduceOnly: true,
		Hidden:     c.intent.HiddenExits,
		OCO:        true,
		Status:     domain.StatusPending,
	}
}

func (c *LifecycleController) onExitConfirmed(leg *domain.OrderRequest) []Effect {
	if c.state != StateExitSubmitting {
		return nil
	}
	// A leg acked and then reported closed confirms only once.
	if c.confirmed[leg.CID] {
		return nil
	}
	c.confirmed[leg.CID] = true
	if leg.Status == domain.StatusPending {
		leg.Status = domain.StatusActive
	}
	c.exitsPending--
	c.log.Info("exit order confirmed",
		zap.Int64("cid", leg.CID),
		zap.Float64("amount", leg.Amount),
		zap.Float64("price", leg.Price),
		zap.Bool("oco", leg.OCO))
	c.record(leg, "ack", "")

	if c.awaitingOCO && leg == c.stopLeg {
		// First leg is live; now place the OCO for the other half.
		c.awaitingOCO = false
		c.ocoLeg = c.buildOCO(c.plan.TargetAmount, c.plan.TargetPrice)
		c.exitsPending++
		c.log.Info("submitting scale-out OCO leg",
			zap.Int64("cid", c.ocoLeg.CID),
			zap.Float64("amount", c.ocoLeg.Amount),
			zap.Float64("target", c.plan.TargetPrice),
			zap.Float64("stopPrice", c.plan.StopPrice))
		c.record(c.ocoLeg, "submit", "scale-out oco")
		return []Effect{{Kind: EffectSubmit, Request: c.ocoLeg}}
	}

	if c.exitsPending == 0 {
		c.state = StateDone
		c.log.Info("position protected, lifecycle complete")
		return c.terminate(StateDone, nil)
	}
	return nil
}

func (c *LifecycleController) onSubmitFailed(ev domain.Event) []Effect {
	switch {
	case c.entry != nil && ev.CID == c.entry.CID:
		// No position exists yet; nothing to protect.
		c.log.Error("entry order submission rejected",
			zap.Int64("cid", ev.CID), zap.Error(ev.Err))
		c.record(c.entry, "reject", errString(ev.Err))
		return c.terminate(StateFatal, ev.Err)

	case c.ocoLeg != nil && ev.CID == c.ocoLeg.CID:
		// The stop leg is live but the OCO never made it: the position is
		// carrying an unintended full-size stop risk. This is the worst
		// handled failure and the wording must not look like a routine error.
		c.record(c.ocoLeg, "reject", errString(ev.Err))
		c.log.Error("CRITICAL: OCO LEG FAILED AFTER STOP WAS PLACED. " +
			"The position is only protected by a half-size stop. " +
			"PLACE THE REMAINING EXIT ORDER MANUALLY, IMMEDIATELY.")
		c.log.Error("oco rejection detail",
			zap.Int64("cid", ev.CID),
			zap.Float64("amount", c.ocoLeg.Amount),
			zap.Float64("target", c.ocoLeg.Price),
			zap.Error(ev.Err))
		return c.terminate(StateFatal, ev.Err)

	case c.stopLeg != nil && ev.CID == c.stopLeg.CID:
		c.record(c.stopLeg, "reject", errString(ev.Err))
		c.log.Error("CRITICAL: PROTECTIVE STOP SUBMISSION FAILED. "+
			"The open position has NO protection. "+
			"PLACE A STOP ORDER MANUALLY, IMMEDIATELY.",
			zap.Int64("cid", ev.CID), zap.Error(ev.Err))
		return c.terminate(StateFatal, ev.Err)
	}

	c.log.Error("submission failure for unknown order", zap.Int64("cid", ev.CID), zap.Error(ev.Err))
	return nil
}

func (c *LifecycleController) onInterrupt() []Effect {
	switch c.state {
	case StateInit:
		// Entry submitted but never acknowledged: nothing confirmed live to
		// cancel. Close the session and leave the rest to the venue.
		c.log.Warn("interrupt before entry acknowledgment, closing session")
		return c.terminate(StateEntryCanceled, nil)

	case StateEntryPending:
		if c.entryOrderActive && !c.cancelRequested {
			c.cancelRequested = true
			c.log.Info("interrupt received, canceling entry order", zap.Int64("cid", c.entry.CID))
			c.record(c.entry, "cancel", "interrupt")
			return []Effect{{Kind: EffectCancel, Request: c.entry}}
		}
		return nil

	case StateExitSubmitting:
		// Past the fill the exit sequence is not interruptible: it runs to
		// completion or fatal error. The entry is no longer cancelable.
		c.log.Warn("interrupt ignored: exit submission in progress, position must be protected first")
		return nil
	}
	return nil
}

func (c *LifecycleController) onSessionError(err error) []Effect {
	if c.state == StateExitSubmitting {
		c.log.Error("CRITICAL: CONNECTION LOST DURING EXIT SUBMISSION. "+
			"Protective orders are unconfirmed. CHECK THE POSITION MANUALLY, IMMEDIATELY.",
			zap.Error(err))
		return c.terminate(StateFatal, err)
	}
	c.log.Error("session failed", zap.String("state", c.state.String()), zap.Error(err))
	return c.terminate(StateFatal, err)
}

// terminate centralizes every terminal transition: one shutdown effect that
// closes the session and ends the process, no divergent cleanup paths.
func (c *LifecycleController) terminate(s State, err error) []Effect {
	if c.state != StateDone {
		c.state = s
	}
	return []Effect{{Kind: EffectShutdown, Err: err}}
}

func (c *LifecycleController) record(req *domain.OrderRequest, kind, note string) {
	if c.journal == nil {
		return
	}
	ev := &domain.OrderEvent{
		RunID:     c.runID,
		CID:       req.CID,
		Kind:      kind,
		Status:    string(req.Status),
		Price:     req.Price,
		Amount:    req.Amount,
		Note:      note,
		CreatedAt: time.Now(),
	}
	if err := c.journal.SaveOrderEvent(context.Background(), ev); err != nil {
		c.log.Warn("journal write failed", zap.Error(err))
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// Run wires the controller to a live session: connect, subscribe, submit the
// entry, then loop over session events and OS signals until a shutdown
// effect fires. Controller logic itself stays single-threaded.
func (c *LifecycleController) Run(ctx context.Context, session domain.ExchangeSession, interrupts <-chan os.Signal) error {
	if err := session.Connect(ctx); err != nil {
		return err
	}
	defer session.Close()

	if err := session.SubscribeTicker(c.intent.Symbol); err != nil {
		c.log.Error("ticker subscription failed", zap.Error(err))
		return err
	}

	c.log.Info("submitting entry order",
		zap.Int64("cid", c.entry.CID),
		zap.String("type", string(c.entry.Kind)),
		zap.Float64("amount", c.entry.Amount),
		zap.Float64("price", c.entry.Price))
	c.record(c.entry, "submit", "entry")
	if err := session.Submit(ctx, c.entry); err != nil {
		done, termErr := c.apply(ctx, session, c.Step(domain.Event{Kind: domain.EventSubmitFailed, CID: c.entry.CID, Err: err}))
		if done {
			return termErr
		}
	}

	for {
		select {
		case <-interrupts:
			if done, err := c.apply(ctx, session, c.Step(domain.Event{Kind: domain.EventInterrupt})); done {
				return err
			}
		case ev, ok := <-session.Events():
			if !ok {
				// A closed event channel mid-lifecycle is a disconnect like
				// any other, even when the websocket close was orderly.
				_, err := c.apply(ctx, session, c.Step(domain.Event{Kind: domain.EventSessionError, Err: ErrSessionClosed}))
				return err
			}
			if done, err := c.apply(ctx, session, c.Step(ev)); done {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// apply executes effects against the session. Submission and cancellation
// transport failures are fed straight back into Step so the state machine
// decides, not the loop.
func (c *LifecycleController) apply(ctx context.Context, session domain.ExchangeSession, effects []Effect) (bool, error) {
	for _, ef := range effects {
		switch ef.Kind {
		case EffectSubmit:
			if err := session.Submit(ctx, ef.Request); err != nil {
				return c.apply(ctx, session, c.Step(domain.Event{Kind: domain.EventSubmitFailed, CID: ef.Request.CID, Err: err}))
			}
		case EffectCancel:
			if err := session.Cancel(ctx, ef.Request); err != nil {
				return c.apply(ctx, session, c.Step(domain.Event{Kind: domain.EventCancelFailed, CID: ef.Request.CID, Err: err}))
			}
		case EffectUnsubscribe:
			if err := session.UnsubscribeTicker(c.intent.Symbol); err != nil {
				c.log.Warn("ticker unsubscribe failed", zap.Error(err))
			}
		case EffectShutdown:
			return true, ef.Err
		}
	}
	return false, nil
}
