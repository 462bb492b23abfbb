package exchange

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/crypto_scale_out/internal/domain"
	"go.uber.org/zap"
)

func newTestSession() *BitfinexSession {
	return NewBitfinexSession("key", "secret", "", zap.NewNop())
}

func drain(s *BitfinexSession) []domain.Event {
	var out []domain.Event
	for {
		select {
		case ev := <-s.events:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestHandleTickerFrame(t *testing.T) {
	s := newTestSession()
	s.handleMessage([]byte(`{"event":"subscribed","channel":"ticker","chanId":17,"symbol":"tBTCUSD"}`))

	s.handleMessage([]byte(`[17,[9500.1,31.5,9500.2,28.9,-100.5,-0.0105,9500.15,5000,9700,9400]]`))
	events := drain(s)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventPriceTick, events[0].Kind)
	assert.Equal(t, 9500.1, events[0].Tick.Bid)
	assert.Equal(t, 9500.2, events[0].Tick.Ask)
	assert.Equal(t, 9500.15, events[0].Tick.LastPrice)

	// Heartbeats and frames for other channels produce nothing.
	s.handleMessage([]byte(`[17,"hb"]`))
	s.handleMessage([]byte(`[99,[1,2,3,4,5,6,7,8,9,10]]`))
	assert.Empty(t, drain(s))
}

func TestHandleSubmitNotification(t *testing.T) {
	s := newTestSession()

	s.handleMessage([]byte(`[0,"n",[1568000000000,"on-req",null,null,[0,null,12345,"tBTCUSD",null,null,1,1,"STOP",null,null,null,null,null,null,null,9000,null,null,null],null,"SUCCESS","Submitting stop order"]]`))
	events := drain(s)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventOrderAck, events[0].Kind)
	assert.Equal(t, int64(12345), events[0].CID)

	s.handleMessage([]byte(`[0,"n",[1568000000000,"on-req",null,null,[0,null,12346,"tBTCUSD",null,null,1,1,"STOP",null,null,null,null,null,null,null,9000,null,null,null],null,"ERROR","Invalid order: not enough tradable balance"]]`))
	events = drain(s)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventSubmitFailed, events[0].Kind)
	assert.Equal(t, int64(12346), events[0].CID)
	assert.ErrorContains(t, events[0].Err, "not enough tradable balance")
}

func TestHandleCancelNotification(t *testing.T) {
	s := newTestSession()

	s.handleMessage([]byte(`[0,"n",[1568000000000,"oc-req",null,null,[0,null,12345,"tBTCUSD",null,null,1,1,"STOP",null,null,null,null,null,null,null,9000,null,null,null],null,"ERROR","Order not found"]]`))
	events := drain(s)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventCancelFailed, events[0].Kind)

	// A successful cancel request is confirmed later by the oc frame.
	s.handleMessage([]byte(`[0,"n",[1568000000000,"oc-req",null,null,[0,null,12345,"tBTCUSD",null,null,1,1,"STOP",null,null,null,null,null,null,null,9000,null,null,null],null,"SUCCESS","Submitted for cancellation"]]`))
	assert.Empty(t, drain(s))
}

func TestHandleOrderClose(t *testing.T) {
	s := newTestSession()

	s.handleMessage([]byte(`[0,"oc",[33950998275,null,12345,"tBTCUSD",1568000000000,1568000001000,0,1,"STOP",null,null,null,0,"EXECUTED @ 9999.5(1.0)",null,null,10000,9999.5,0,0,null,null,null,0,0,null]]`))
	events := drain(s)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventOrderClosed, events[0].Kind)
	assert.Equal(t, int64(12345), events[0].CID)
	assert.Equal(t, domain.StatusExecuted, events[0].Status)
	assert.Equal(t, 9999.5, events[0].AvgPrice)

	s.handleMessage([]byte(`[0,"oc",[33950998276,null,12346,"tBTCUSD",1568000000000,1568000001000,1,1,"STOP",null,null,null,0,"CANCELED was: ACTIVE",null,null,10000,0,0,0,null,null,null,0,0,null]]`))
	events = drain(s)
	require.Len(t, events, 1)
	assert.Equal(t, domain.StatusCanceled, events[0].Status)
	assert.Equal(t, 0.0, events[0].AvgPrice)
}

func TestMapOrderStatus(t *testing.T) {
	tests := []struct {
		in   string
		want domain.OrderStatus
	}{
		{"EXECUTED @ 9999.5(1.0)", domain.StatusExecuted},
		{"CANCELED", domain.StatusCanceled},
		{"CANCELED was: PARTIALLY FILLED @ 9999.5(0.5)", domain.StatusCanceled},
		{"PARTIALLY FILLED @ 9999.5(0.5)", domain.StatusPartiallyFilled},
		{"ACTIVE", domain.StatusActive},
	}
	for _, tt := range tests {
		if got := mapOrderStatus(tt.in); got != tt.want {
			t.Errorf("mapOrderStatus(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestOrderType(t *testing.T) {
	tests := []struct {
		name string
		req  domain.OrderRequest
		want string
	}{
		{"Margin stop", domain.OrderRequest{Kind: domain.KindStop, Margin: true}, "STOP"},
		{"Exchange stop", domain.OrderRequest{Kind: domain.KindStop}, "EXCHANGE STOP"},
		{"Margin market", domain.OrderRequest{Kind: domain.KindMarket, Margin: true}, "MARKET"},
		{"Margin stop limit", domain.OrderRequest{Kind: domain.KindStopLimit, Margin: true}, "STOP LIMIT"},
		{"OCO is a limit order", domain.OrderRequest{Kind: domain.KindLimit, OCO: true, Margin: true}, "LIMIT"},
		{"Exchange OCO", domain.OrderRequest{Kind: domain.KindLimit, OCO: true}, "EXCHANGE LIMIT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := orderType(&tt.req); got != tt.want {
				t.Errorf("orderType() = %q, want %q", got, tt.want)
			}
		})
	}
}
