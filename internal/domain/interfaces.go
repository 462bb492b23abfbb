package domain

import (
	"context"
	"time"
)

// ExchangeSession is the single authenticated venue connection. The
// controller owns it exclusively for the whole lifecycle: it subscribes to
// the price feed, submits and cancels orders, and consumes acknowledgment
// events from Events(). Submit and Cancel only put the request on the wire;
// the outcome arrives asynchronously as an Event.
type ExchangeSession interface {
	Connect(ctx context.Context) error
	SubscribeTicker(symbol string) error
	UnsubscribeTicker(symbol string) error
	Submit(ctx context.Context, req *OrderRequest) error
	Cancel(ctx context.Context, req *OrderRequest) error
	Events() <-chan Event
	Close() error
}

// TradeJournal records the run and its order events. Write-only and
// informational: nothing is ever read back, and journal failures must never
// affect the lifecycle.
type TradeJournal interface {
	SaveRun(ctx context.Context, run *Run) error
	SaveOrderEvent(ctx context.Context, ev *OrderEvent) error
}

// Run identifies one process lifetime in the journal.
type Run struct {
	ID         string
	Symbol     string
	Amount     float64
	EntryPrice float64
	StopPrice  float64
	ExitMode   string
	StartedAt  time.Time
}

// OrderEvent is one journaled order action or venue report.
type OrderEvent struct {
	RunID     string
	CID       int64
	Kind      string // submit, ack, cancel, closed, reject
	Status    string
	Price     float64
	Amount    float64
	Note      string
	CreatedAt time.Time
}
