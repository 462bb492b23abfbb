package domain

type OrderKind string

const (
	KindMarket    OrderKind = "MARKET"
	KindLimit     OrderKind = "LIMIT"
	KindStop      OrderKind = "STOP"
	KindStopLimit OrderKind = "STOP LIMIT"
)

type OrderStatus string

const (
	StatusPending         OrderStatus = "PENDING"
	StatusActive          OrderStatus = "ACTIVE"
	StatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	StatusExecuted        OrderStatus = "EXECUTED"
	StatusCanceled        OrderStatus = "CANCELED"
)

// OrderRequest is a venue-bound order specification. The controller builds
// one at each submission point; the session owns it once submitted, the
// controller keeps a read reference to correlate acknowledgments.
type OrderRequest struct {
	CID        int64 // client correlation id, unique per request
	Symbol     string
	Amount     float64 // signed: positive buys, negative sells
	Price      float64
	AuxPrice   float64 // stop-limit limit price, or the OCO stop leg price
	Kind       OrderKind
	Margin     bool
	ReduceOnly bool
	Hidden     bool
	OCO        bool

	Status       OrderStatus
	AvgFillPrice float64 // venue-reported; may stay 0 for market fills
}

// TickerSnapshot is one price-feed observation. It is consumed by the breach
// check and not retained.
type TickerSnapshot struct {
	LastPrice float64
	Bid       float64
	Ask       float64
}

// ScaleOutPlan is the derived exit split, computed once per lifecycle after
// the entry fill is confirmed.
type ScaleOutPlan struct {
	StopAmount   float64
	StopPrice    float64
	TargetAmount float64
	TargetPrice  float64
}
