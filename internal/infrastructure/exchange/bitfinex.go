package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vitos/crypto_scale_out/internal/domain"
	"go.uber.org/zap"
)

const (
	BitfinexWSURL = "wss://api.bitfinex.com/ws/2"

	authTimeout = 15 * time.Second
)

// Venue order flags, OR-ed into the submission payload.
const (
	flagHidden     = 64
	flagReduceOnly = 1024
	flagOCO        = 16384
)

// BitfinexSession owns the authenticated v2 websocket. Both market data and
// order traffic run over the one connection; everything the venue reports is
// decoded into domain events on a single channel.
type BitfinexSession struct {
	apiKey    string
	apiSecret string
	wsURL     string
	log       *zap.Logger

	mu     sync.Mutex // guards conn writes and subscription state
	conn   *websocket.Conn
	events chan domain.Event
	ready  chan error

	tickerChanID int
	tickerSymbol string
}

func NewBitfinexSession(apiKey, apiSecret, wsURL string, log *zap.Logger) *BitfinexSession {
	if wsURL == "" {
		wsURL = BitfinexWSURL
	}
	return &BitfinexSession{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		wsURL:     wsURL,
		log:       log,
		events:    make(chan domain.Event, 64),
		ready:     make(chan error, 1),
	}
}

func (s *BitfinexSession) Events() <-chan domain.Event { return s.events }

// Connect dials the venue, performs the authentication handshake, and blocks
// until the venue confirms the session is ready for order traffic.
func (s *BitfinexSession) Connect(ctx context.Context) error {
	c, _, err := websocket.DefaultDialer.DialContext(ctx, s.wsURL, nil)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", s.wsURL, err)
	}
	s.mu.Lock()
	s.conn = c
	s.mu.Unlock()

	go s.readLoop()

	nonce := strconv.FormatInt(time.Now().UnixMilli(), 10)
	payload := "AUTH" + nonce
	h := hmac.New(sha512.New384, []byte(s.apiSecret))
	h.Write([]byte(payload))

	authMsg := map[string]interface{}{
		"event":       "auth",
		"apiKey":      s.apiKey,
		"authSig":     hex.EncodeToString(h.Sum(nil)),
		"authNonce":   nonce,
		"authPayload": payload,
	}
	if err := s.writeJSON(authMsg); err != nil {
		return fmt.Errorf("failed to send auth: %w", err)
	}

	select {
	case err := <-s.ready:
		return err
	case <-time.After(authTimeout):
		return fmt.Errorf("authentication timed out after %s", authTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *BitfinexSession) SubscribeTicker(symbol string) error {
	s.mu.Lock()
	s.tickerSymbol = symbol
	s.mu.Unlock()
	return s.writeJSON(map[string]interface{}{
		"event":   "subscribe",
		"channel": "ticker",
		"symbol":  symbol,
	})
}

func (s *BitfinexSession) UnsubscribeTicker(symbol string) error {
	s.mu.Lock()
	chanID := s.tickerChanID
	s.mu.Unlock()
	if chanID == 0 {
		return nil
	}
	return s.writeJSON(map[string]interface{}{
		"event":  "unsubscribe",
		"chanId": chanID,
	})
}

// Submit puts a new-order input on the wire. The outcome arrives later as an
// OrderAck or SubmitFailed event; an error here is a transport failure only.
func (s *BitfinexSession) Submit(ctx context.Context, req *domain.OrderRequest) error {
	payload := map[string]interface{}{
		"cid":    req.CID,
		"type":   orderType(req),
		"symbol": req.Symbol,
		"amount": formatFloat(req.Amount),
	}
	if req.Price != 0 {
		payload["price"] = formatFloat(req.Price)
	}

	var flags int
	if req.Hidden {
		flags |= flagHidden
	}
	if req.ReduceOnly {
		flags |= flagReduceOnly
	}
	if req.OCO {
		flags |= flagOCO
		payload["price_oco_stop"] = formatFloat(req.AuxPrice)
	} else if req.Kind == domain.KindStopLimit && req.AuxPrice != 0 {
		payload["price_aux_limit"] = formatFloat(req.AuxPrice)
	}
	if flags != 0 {
		payload["flags"] = flags
	}

	return s.writeJSON([]interface{}{0, "on", nil, payload})
}

// Cancel requests cancellation by client id. The venue confirms through an
// order-closed frame with a CANCELED status, or rejects via a notification.
func (s *BitfinexSession) Cancel(ctx context.Context, req *domain.OrderRequest) error {
	// cid is only unique per day on the venue side; the cid date scopes it.
	cidDate := time.UnixMilli(req.CID).UTC().Format("2006-01-02")
	return s.writeJSON([]interface{}{0, "oc", nil, map[string]interface{}{
		"cid":      req.CID,
		"cid_date": cidDate,
	}})
}

func (s *BitfinexSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	_ = s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	err := s.conn.Close()
	s.conn = nil
	return err
}

func (s *BitfinexSession) writeJSON(v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return fmt.Errorf("session not connected")
	}
	return s.conn.WriteJSON(v)
}

func (s *BitfinexSession) readLoop() {
	for {
		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				close(s.events)
				return
			}
			s.log.Warn("websocket read failed", zap.Error(err))
			s.events <- domain.Event{Kind: domain.EventSessionError, Err: err}
			close(s.events)
			return
		}

		s.handleMessage(message)
	}
}

// handleMessage decodes one raw frame into zero or more domain events.
func (s *BitfinexSession) handleMessage(message []byte) {
	trimmed := strings.TrimSpace(string(message))
	if strings.HasPrefix(trimmed, "{") {
		s.handleEventMessage(message)
		return
	}

	var frame []interface{}
	if err := json.Unmarshal(message, &frame); err != nil {
		s.log.Warn("undecodable frame", zap.String("raw", trimmed))
		return
	}
	if len(frame) < 2 {
		return
	}

	chanID, ok := frame[0].(float64)
	if !ok {
		return
	}

	if chanID != 0 {
		s.handleChannelFrame(int(chanID), frame)
		return
	}

	msgType, _ := frame[1].(string)
	switch msgType {
	case "hb":
		// heartbeat
	case "n":
		s.handleNotification(frame)
	case "oc":
		s.handleOrderClose(frame)
	case "on", "ou":
		// Order snapshots/updates on channel 0. The explicit on-req
		// notification is the acknowledgment source; these are informational.
		s.log.Debug("order update frame", zap.String("raw", trimmed))
	}
}

func (s *BitfinexSession) handleEventMessage(message []byte) {
	var ev struct {
		Event   string `json:"event"`
		Status  string `json:"status"`
		ChanID  int    `json:"chanId"`
		Channel string `json:"channel"`
		Symbol  string `json:"symbol"`
		Msg     string `json:"msg"`
		Code    int    `json:"code"`
	}
	if err := json.Unmarshal(message, &ev); err != nil {
		return
	}

	switch ev.Event {
	case "auth":
		if ev.Status == "OK" {
			s.log.Info("authenticated")
			s.ready <- nil
		} else {
			s.ready <- fmt.Errorf("authentication refused: %s (code %d)", ev.Msg, ev.Code)
		}
	case "subscribed":
		if ev.Channel == "ticker" {
			s.mu.Lock()
			s.tickerChanID = ev.ChanID
			s.mu.Unlock()
			s.log.Info("ticker subscribed", zap.String("symbol", ev.Symbol), zap.Int("chanId", ev.ChanID))
		}
	case "unsubscribed":
		s.mu.Lock()
		if ev.ChanID == s.tickerChanID {
			s.tickerChanID = 0
		}
		s.mu.Unlock()
	case "error":
		s.log.Error("venue error event", zap.String("msg", ev.Msg), zap.Int("code", ev.Code))
	case "info":
		// version / platform status, nothing to act on
	}
}

func (s *BitfinexSession) handleChannelFrame(chanID int, frame []interface{}) {
	s.mu.Lock()
	tickerChan := s.tickerChanID
	s.mu.Unlock()
	if chanID != tickerChan {
		return
	}

	// [chanId, "hb"] heartbeats arrive on data channels too.
	if _, isHB := frame[1].(string); isHB {
		return
	}

	tick, ok := parseTicker(frame[1])
	if !ok {
		return
	}
	s.events <- domain.Event{Kind: domain.EventPriceTick, Tick: tick}
}

// parseTicker reads [BID, BID_SIZE, ASK, ASK_SIZE, _, _, LAST_PRICE, ...].
func parseTicker(v interface{}) (domain.TickerSnapshot, bool) {
	values, ok := v.([]interface{})
	if !ok || len(values) < 7 {
		return domain.TickerSnapshot{}, false
	}
	bid, ok1 := values[0].(float64)
	ask, ok2 := values[2].(float64)
	last, ok3 := values[6].(float64)
	if !ok1 || !ok2 || !ok3 {
		return domain.TickerSnapshot{}, false
	}
	return domain.TickerSnapshot{Bid: bid, Ask: ask, LastPrice: last}, true
}

// handleNotification processes [0,"n",[MTS,TYPE,MSG_ID,null,INFO,CODE,STATUS,TEXT]].
func (s *BitfinexSession) handleNotification(frame []interface{}) {
	body, ok := frame[2].([]interface{})
	if !ok || len(body) < 8 {
		return
	}
	nType, _ := body[1].(string)
	status, _ := body[6].(string)
	text, _ := body[7].(string)
	cid := orderCID(body[4])

	switch nType {
	case "on-req":
		if strings.EqualFold(status, "SUCCESS") {
			s.events <- domain.Event{Kind: domain.EventOrderAck, CID: cid}
		} else {
			s.events <- domain.Event{
				Kind: domain.EventSubmitFailed,
				CID:  cid,
				Err:  fmt.Errorf("order submission rejected: %s", text),
			}
		}
	case "oc-req":
		if !strings.EqualFold(status, "SUCCESS") {
			s.events <- domain.Event{
				Kind: domain.EventCancelFailed,
				CID:  cid,
				Err:  fmt.Errorf("cancel rejected: %s", text),
			}
		}
		// A successful cancel request is confirmed by the oc frame.
	}
}

// handleOrderClose processes [0,"oc",[orderArray]] terminal order reports.
func (s *BitfinexSession) handleOrderClose(frame []interface{}) {
	order, ok := frame[2].([]interface{})
	if !ok || len(order) < 18 {
		return
	}

	statusStr, _ := order[13].(string)
	avg, _ := order[17].(float64)

	s.events <- domain.Event{
		Kind:     domain.EventOrderClosed,
		CID:      orderCID(order),
		Status:   mapOrderStatus(statusStr),
		AvgPrice: avg,
	}
}

// orderCID extracts the client id from a venue order array (index 2).
func orderCID(v interface{}) int64 {
	order, ok := v.([]interface{})
	if !ok || len(order) < 3 {
		return 0
	}
	cid, ok := order[2].(float64)
	if !ok {
		return 0
	}
	return int64(cid)
}

// mapOrderStatus folds the venue's verbose status strings ("EXECUTED @ ...",
// "CANCELED was: ...") into lifecycle values. Any non-canceled terminal
// status counts as a fill.
func mapOrderStatus(s string) domain.OrderStatus {
	upper := strings.ToUpper(s)
	switch {
	case strings.HasPrefix(upper, "CANCELED"):
		return domain.StatusCanceled
	case strings.HasPrefix(upper, "PARTIALLY FILLED"):
		return domain.StatusPartiallyFilled
	case strings.HasPrefix(upper, "ACTIVE"):
		return domain.StatusActive
	default:
		return domain.StatusExecuted
	}
}

// orderType maps an order kind onto the venue type string. Non-margin orders
// trade from the exchange wallet and carry the EXCHANGE prefix.
func orderType(req *domain.OrderRequest) string {
	t := string(req.Kind)
	if req.OCO {
		t = string(domain.KindLimit)
	}
	if !req.Margin {
		t = "EXCHANGE " + t
	}
	return t
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
