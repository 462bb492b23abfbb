package domain

type EventKind int

const (
	EventPriceTick EventKind = iota + 1
	EventOrderAck
	EventOrderClosed
	EventSubmitFailed
	EventCancelFailed
	EventInterrupt
	EventSessionError
)

func (k EventKind) String() string {
	switch k {
	case EventPriceTick:
		return "PriceTick"
	case EventOrderAck:
		return "OrderAck"
	case EventOrderClosed:
		return "OrderClosed"
	case EventSubmitFailed:
		return "SubmitFailed"
	case EventCancelFailed:
		return "CancelFailed"
	case EventInterrupt:
		return "InterruptSignal"
	case EventSessionError:
		return "SessionError"
	}
	return "Unknown"
}

// Event is the tagged union the controller consumes. The session emits
// ticker and order events; the run loop injects interrupts.
type Event struct {
	Kind     EventKind
	Tick     TickerSnapshot
	CID      int64       // order correlation for ack/close/failure events
	Status   OrderStatus // for EventOrderClosed
	AvgPrice float64     // for EventOrderClosed; 0 when unreported
	Err      error
}
