// Package mt4ws is the public facade of an MT4 Web Terminal WebSocket
// client: the session handshake, the two-key AES-256-CBC wire framing, the
// binary record codec, and open-position/history reconciliation, wrapped
// behind a small connect/trade/event-stream API.
package mt4ws

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"

	"mt4ws/internal/orderbook"
	"mt4ws/internal/record"
	"mt4ws/internal/session"
)

const (
	eventBufferSize   = 256
	outboundQueueSize = 64
)

// Conn is the binary bidirectional message stream the client reads frames
// from and writes frames to. internal/transport.Conn satisfies this
// interface; so does any test double or alternative WebSocket binding a
// caller wants to supply instead.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Client is one MT4 Web Terminal connection: a session state machine
// driving a reader task and a writer task, with reconciled order-book state
// and a buffered event stream.
//
// Only the writer task ever calls Conn.WriteMessage, so no two frames can
// interleave on the wire. The session state machine and order book are
// confined to the reader task; Client's exported methods that need to touch
// them (EncodeCommand-driven sends) only ever enqueue onto the outbound
// channel the writer drains, never call the session machine directly from
// another goroutine.
type Client struct {
	conn   Conn
	sess   *session.Machine
	book   *orderbook.Book
	logger *slog.Logger

	events   chan Event
	outbound chan []byte

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	connected atomic.Bool
	closeOnce sync.Once

	sendMu sync.Mutex // serializes EncodeCommand calls against the reader's own encodes
}

// New builds a Client around an already-dialed Conn. token and password are
// the credentials gathered from the caller; sessionKey is the 32 raw bytes
// decoded from the bootstrap's hex session key (see internal/bootstrap).
func New(conn Conn, token, password string, sessionKey []byte, logger *slog.Logger) (*Client, error) {
	sess, err := session.New(token, password, sessionKey)
	if err != nil {
		return nil, fmt.Errorf("mt4ws: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		conn:     conn,
		sess:     sess,
		book:     orderbook.New(),
		logger:   logger.With("component", "mt4ws"),
		events:   make(chan Event, eventBufferSize),
		outbound: make(chan []byte, outboundQueueSize),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Connect sends the initial token frame and starts the reader and writer
// tasks. It returns once the frame is queued for send, not once the
// handshake completes — watch the event stream for Authenticated or
// AuthFailed.
func (c *Client) Connect(ctx context.Context) error {
	frame, err := c.sess.BuildConnectFrame()
	if err != nil {
		return fmt.Errorf("mt4ws: connect: %w", err)
	}

	c.wg.Add(2)
	go c.writeLoop()
	go c.readLoop()

	select {
	case c.outbound <- frame:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		return &ClientError{Kind: Disconnected}
	}

	c.connected.Store(true)
	return nil
}

// Disconnect signals both tasks to stop, closes the transport, and emits a
// final Disconnected event. It is safe to call more than once.
func (c *Client) Disconnect() {
	c.closeOnce.Do(func() {
		c.cancel()
		c.conn.Close()
		c.wg.Wait()
		c.connected.Store(false)
		c.emit(Event{Kind: EventDisconnected})
	})
}

// IsConnected reports whether the handshake has started and Disconnect
// hasn't been called yet. It does not reflect authentication state; check
// the event stream for that.
func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

// NextEvent blocks until an event is available or ctx is cancelled.
func (c *Client) NextEvent(ctx context.Context) (Event, error) {
	select {
	case ev, ok := <-c.events:
		if !ok {
			return Event{}, &ClientError{Kind: Disconnected}
		}
		return ev, nil
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

// OpenPositions returns a snapshot of the reconciled open positions.
func (c *Client) OpenPositions() []*record.Order { return c.book.OpenPositions() }

// History returns a snapshot of the reconciled closed-order history.
func (c *Client) History() []*record.Order { return c.book.History() }

// RequestAccountInfo returns the raw payload the server sent alongside
// command 3 during the handshake. The wire protocol defines no on-demand
// request for this data (see the "request_account_info()" entry in
// SPEC_FULL.md's Open Questions Resolved section); it's cached the instant
// the handshake receives it.
func (c *Client) RequestAccountInfo() ([]byte, error) {
	data, ok := c.sess.AccountInfo()
	if !ok {
		return nil, &ClientError{Kind: NotAvailable}
	}
	return data, nil
}

// RequestOrderHistory requests the server's full order history (command 5,
// empty payload means "all history").
func (c *Client) RequestOrderHistory(ctx context.Context) error {
	return c.sendEncoded(ctx, session.CommandHistory, nil)
}

// RequestOrderHistoryRange requests order history within [start, end]
// (command 5, 8-byte payload).
func (c *Client) RequestOrderHistoryRange(ctx context.Context, start, end int32) error {
	rng := record.HistoryRange{Start: start, End: end}
	return c.sendEncoded(ctx, session.CommandHistory, rng.Bytes())
}

// RequestCurrentPositions manually triggers command 4. The handshake
// already does this automatically once; this is for refreshing later.
func (c *Client) RequestCurrentPositions(ctx context.Context) error {
	return c.sendEncoded(ctx, session.CommandCurrentPositions, nil)
}

// Ping sends an empty command-51 frame; the matching Pong event arrives on
// the event stream.
func (c *Client) Ping(ctx context.Context) error {
	return c.sendEncoded(ctx, session.CommandPing, nil)
}

// Buy opens a market buy position. sl and tp of 0 mean "unset".
func (c *Client) Buy(ctx context.Context, symbol string, lots decimal.Decimal, sl, tp float64) (uint32, error) {
	return c.sendTrade(ctx, record.RequestInstant, record.CmdBuy, 0, symbol, lots, 0, sl, tp)
}

// Sell opens a market sell position.
func (c *Client) Sell(ctx context.Context, symbol string, lots decimal.Decimal, sl, tp float64) (uint32, error) {
	return c.sendTrade(ctx, record.RequestInstant, record.CmdSell, 0, symbol, lots, 0, sl, tp)
}

// BuyLimit places a pending buy-limit order.
func (c *Client) BuyLimit(ctx context.Context, symbol string, lots decimal.Decimal, price, sl, tp float64) (uint32, error) {
	return c.sendTrade(ctx, record.RequestPending, record.CmdBuyLimit, 0, symbol, lots, price, sl, tp)
}

// SellLimit places a pending sell-limit order.
func (c *Client) SellLimit(ctx context.Context, symbol string, lots decimal.Decimal, price, sl, tp float64) (uint32, error) {
	return c.sendTrade(ctx, record.RequestPending, record.CmdSellLimit, 0, symbol, lots, price, sl, tp)
}

// CloseOrder closes an open position. volume is the lot size to close,
// scaled to TradeRequest's lots*100 wire convention internally.
func (c *Client) CloseOrder(ctx context.Context, ticket uint32, symbol string, volume decimal.Decimal) (uint32, error) {
	return c.sendTrade(ctx, record.RequestCloseInstant, record.Cmd(0), ticket, symbol, volume, 0, 0, 0)
}

func (c *Client) sendTrade(ctx context.Context, typ record.RequestType, cmd record.Cmd, ticket uint32, symbol string, lots decimal.Decimal, price, sl, tp float64) (uint32, error) {
	requestID := c.sess.NextRequestID()
	req := record.NewTradeRequest(typ, requestID, ticket, symbol, cmd, lots, price, sl, tp, 0, "", 0)
	if err := c.sendEncoded(ctx, session.CommandTradeRequest, req.Bytes()); err != nil {
		return 0, err
	}
	return requestID, nil
}

func (c *Client) sendEncoded(ctx context.Context, command uint16, data []byte) error {
	c.sendMu.Lock()
	frame, err := c.sess.EncodeCommand(command, data)
	c.sendMu.Unlock()
	if err != nil {
		return fmt.Errorf("mt4ws: %w", err)
	}

	select {
	case c.outbound <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		return &ClientError{Kind: Disconnected}
	}
}

func (c *Client) writeLoop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case frame := <-c.outbound:
			if err := c.conn.WriteMessage(frame); err != nil {
				c.logger.Warn("write failed, tearing down connection", "error", err)
				c.emit(Event{Kind: EventError, Message: err.Error()})
				c.cancel()
				return
			}
		}
	}
}

func (c *Client) readLoop() {
	defer c.wg.Done()
	for {
		data, err := c.conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() == nil {
				c.logger.Info("connection closed", "error", err)
			}
			return
		}

		tr, err := c.sess.HandleInbound(data)
		if err != nil {
			c.logger.Warn("protocol error, tearing down connection", "error", err)
			c.emit(Event{Kind: EventError, Message: err.Error()})
			c.cancel()
			return
		}

		for _, out := range tr.Outbound {
			select {
			case c.outbound <- out:
			case <-c.ctx.Done():
				return
			}
		}

		for _, ev := range tr.Events {
			if ev.Kind == session.EventOrderUpdate && ev.Update != nil {
				c.book.Apply(ev.Update)
			}
			c.emit(translateEvent(ev))
		}
	}
}

// emit publishes an event with a drop-oldest overflow policy: losing a live
// update is preferable to stalling the reader task.
func (c *Client) emit(ev Event) {
	select {
	case c.events <- ev:
		return
	default:
	}

	select {
	case <-c.events:
		c.logger.Warn("event channel full, dropped oldest event")
	default:
	}

	select {
	case c.events <- ev:
	default:
	}
}

func translateEvent(ev session.Event) Event {
	switch ev.Kind {
	case session.EventAuthenticated:
		return Event{Kind: EventAuthenticated}
	case session.EventAuthFailed:
		return Event{Kind: EventAuthFailed, AuthFailedCode: ev.AuthFailedCode}
	case session.EventOrderUpdate:
		return Event{Kind: EventOrderUpdate, Update: ev.Update}
	case session.EventTradeResult:
		if ev.TradeSuccess {
			status := int32(0)
			if ev.TradeResponse != nil {
				status = ev.TradeResponse.Status
			}
			return Event{Kind: EventTradeSuccess, TradeRequestID: ev.TradeRequestID, TradeStatus: status}
		}
		return Event{Kind: EventTradeFailed, TradeRequestID: ev.TradeRequestID, TradeErrCode: ev.TradeErrCode, TradeMessage: ev.TradeErrMsg}
	case session.EventPong:
		return Event{Kind: EventPong}
	case session.EventRawMessage:
		return Event{Kind: EventRawMessage, RawCommand: ev.RawCommand, RawErrorCode: ev.RawErrorCode, RawData: ev.RawData}
	default:
		return Event{Kind: EventError, Message: fmt.Sprintf("unhandled internal event kind %d", ev.Kind)}
	}
}
