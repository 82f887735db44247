// Package session implements the MT4 Web Terminal login handshake and the
// per-state gating of which commands may be sent or are expected to arrive.
// It owns no I/O: HandleInbound and EncodeCommand are pure transformations
// over already-framed bytes, driven by the client facade's reader and
// writer tasks.
package session

import (
	"bytes"
	"fmt"
	"unicode/utf16"

	"mt4ws/internal/record"
	"mt4ws/internal/wire"
)

// State is one of the seven phases of a connection's lifetime. It is
// monotonic except for Closed, which absorbs from any state.
type State int

const (
	Idle State = iota
	Connecting
	AwaitingToken
	AwaitingPassword
	AwaitingAccountInfo
	Authenticated
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case AwaitingToken:
		return "awaiting_token"
	case AwaitingPassword:
		return "awaiting_password"
	case AwaitingAccountInfo:
		return "awaiting_account_info"
	case Authenticated:
		return "authenticated"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Wire command numbers the state machine recognizes.
const (
	cmdToken         uint16 = 0
	cmdPassword      uint16 = 1
	cmdAccountInfo   uint16 = 3
	cmdCurrentOrders uint16 = 4
	cmdHistory       uint16 = 5
	cmdOrderUpdate   uint16 = 10
	cmdTradeRequest  uint16 = 12
	cmdPing          uint16 = 51
)

// Exported aliases of the wire command numbers an authenticated caller is
// allowed to send via EncodeCommand. The root package builds outbound
// frames against these rather than the protocol's bare integers.
const (
	CommandCurrentPositions = cmdCurrentOrders
	CommandHistory          = cmdHistory
	CommandTradeRequest     = cmdTradeRequest
	CommandPing             = cmdPing
)

// tokenPayloadSize is the exact ASCII length of the token field.
const tokenPayloadSize = 64

// passwordPayloadSize is the exact size of the UTF-16LE-encoded password
// field.
const passwordPayloadSize = 64

// Error is returned for protocol-level desync: an unexpected command for
// the current state. CryptoError/wire.ProtocolError surface directly from
// codec calls and are not wrapped here.
type Error struct {
	State   State
	Command uint16
}

func (e *Error) Error() string {
	return fmt.Sprintf("session: unexpected command %d in state %s", e.Command, e.State)
}

// EventKind discriminates the variants of Event.
type EventKind int

const (
	EventAuthenticated EventKind = iota
	EventAuthFailed
	EventOrderUpdate
	EventTradeResult
	EventPong
	EventRawMessage
)

// Event is the session layer's account of what happened while processing
// one inbound frame. The client facade translates these into the public
// mt4ws.Event tagged union; Event itself stays internal so this package
// never has to import its own caller.
type Event struct {
	Kind EventKind

	AuthFailedCode byte

	Update *record.OrderUpdate

	TradeRequestID uint32
	TradeSuccess   bool
	TradeErrCode   byte
	// TradeErrMsg holds a server-supplied diagnostic string when a failed
	// trade's payload isn't a well-formed TradeResponse (the wire format
	// defines no dedicated error-message field, so a rejecting server that
	// sends free-form text here is read lossily rather than discarded).
	TradeErrMsg   string
	TradeResponse *record.TradeResponse

	RawCommand   uint16
	RawErrorCode byte
	RawData      []byte
}

// Transition is the result of feeding one inbound frame to the machine:
// zero or more events to publish, plus zero or more frames the machine
// wants sent as a side effect (the mandatory auto command-4 request).
type Transition struct {
	Events   []Event
	Outbound [][]byte
}

// Machine drives the login handshake and command gating for one connection.
// It is not safe for concurrent use; the reader task that owns the
// connection's single logical stream of protocol state must serialize all
// calls (HandleInbound always from the reader; EncodeCommand may be called
// from whichever task builds outbound requests, but must still be
// externally synchronized with HandleInbound if the caller reads m.State()
// to decide whether to send).
type Machine struct {
	state    State
	codec    *wire.Codec
	token    string
	password string

	nextRequestID uint32

	// accountInfo is the raw, unparsed command-3 payload the server sent
	// during the handshake. Its body format is out of scope for the core
	// (see handleAccountInfoPhase), but the bytes are kept opaque so
	// request_account_info() has something to return.
	accountInfo []byte
}

// New builds a Machine for one connection. token and password are the
// credentials gathered at connect time; sessionKey is the 32 raw bytes
// decoded from the bootstrap's hex session key.
func New(token, password string, sessionKey []byte) (*Machine, error) {
	codec, err := wire.NewCodec(sessionKey)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	return &Machine{
		state:         Idle,
		codec:         codec,
		token:         token,
		password:      password,
		nextRequestID: 1,
	}, nil
}

// State returns the machine's current phase.
func (m *Machine) State() State {
	return m.state
}

// AccountInfo returns the raw command-3 payload received during the
// handshake, and whether it has arrived yet.
func (m *Machine) AccountInfo() ([]byte, bool) {
	return m.accountInfo, m.accountInfo != nil
}

// NextRequestID returns a freshly minted, monotonically increasing request
// id for correlating an outbound trade request with its response.
func (m *Machine) NextRequestID() uint32 {
	id := m.nextRequestID
	m.nextRequestID++
	return id
}

// BuildConnectFrame encodes the command-0 token frame and transitions
// Idle -> AwaitingToken. It is an error to call this outside Idle.
func (m *Machine) BuildConnectFrame() ([]byte, error) {
	if m.state != Idle {
		return nil, fmt.Errorf("session: connect called in state %s, want %s", m.state, Idle)
	}
	frame, err := m.codec.Encode(cmdToken, tokenPayload(m.token))
	if err != nil {
		return nil, fmt.Errorf("session: encode token frame: %w", err)
	}
	m.state = AwaitingToken
	return frame, nil
}

// EncodeCommand encodes an application-initiated command (history request,
// current-positions request, trade request, ping), gating on the machine
// being Authenticated — the only phase in which the server accepts any of
// these.
func (m *Machine) EncodeCommand(command uint16, data []byte) ([]byte, error) {
	if m.state != Authenticated {
		return nil, fmt.Errorf("session: cannot send command %d in state %s, want %s", command, m.state, Authenticated)
	}
	frame, err := m.codec.Encode(command, data)
	if err != nil {
		return nil, fmt.Errorf("session: encode command %d: %w", command, err)
	}
	return frame, nil
}

// HandleInbound decodes one inbound frame, advances the state machine, and
// reports what happened. A returned error is always fatal to the session
// (CryptoError/ProtocolError territory); the caller should close the
// transport and emit Disconnected. A nil error with m.State() == Closed
// (following an AuthFailed event) means the machine itself decided to
// terminate the session and the caller should do the same teardown.
func (m *Machine) HandleInbound(raw []byte) (*Transition, error) {
	var command uint16
	var errCode byte
	var data []byte
	var err error

	if m.state == AwaitingToken {
		command, errCode, data, err = m.codec.DecodeWithCommand(raw, cmdToken)
	} else {
		command, errCode, data, err = m.codec.Decode(raw)
	}
	if err != nil {
		return nil, fmt.Errorf("session: decode frame in state %s: %w", m.state, err)
	}

	switch m.state {
	case AwaitingToken:
		return m.handleToken(command, errCode)
	case AwaitingPassword:
		return m.handlePassword(command, errCode)
	case AwaitingAccountInfo:
		return m.handleAccountInfoPhase(command, errCode, data)
	case Authenticated:
		return m.handleAuthenticated(command, errCode, data)
	default:
		return nil, fmt.Errorf("session: inbound frame while in terminal state %s", m.state)
	}
}

func (m *Machine) handleToken(command uint16, errCode byte) (*Transition, error) {
	if command != cmdToken {
		return nil, &Error{State: m.state, Command: command}
	}
	if errCode != 0 {
		m.state = Closed
		return &Transition{Events: []Event{{Kind: EventAuthFailed, AuthFailedCode: errCode}}}, nil
	}

	frame, err := m.codec.Encode(cmdPassword, passwordPayload(m.password))
	if err != nil {
		return nil, fmt.Errorf("session: encode password frame: %w", err)
	}
	m.state = AwaitingPassword
	return &Transition{Outbound: [][]byte{frame}}, nil
}

func (m *Machine) handlePassword(command uint16, errCode byte) (*Transition, error) {
	if command != cmdPassword {
		return nil, &Error{State: m.state, Command: command}
	}
	if errCode != 0 {
		m.state = Closed
		return &Transition{Events: []Event{{Kind: EventAuthFailed, AuthFailedCode: errCode}}}, nil
	}
	m.state = AwaitingAccountInfo
	return &Transition{Events: []Event{{Kind: EventAuthenticated}}}, nil
}

func (m *Machine) handleAccountInfoPhase(command uint16, errCode byte, data []byte) (*Transition, error) {
	if command != cmdAccountInfo {
		return nil, &Error{State: m.state, Command: command}
	}
	// Account-info body parsing is out of scope; its arrival is only a
	// trigger. errCode is unused beyond that; data is kept opaque.
	_ = errCode
	m.accountInfo = append([]byte(nil), data...)

	frame, err := m.codec.Encode(cmdCurrentOrders, nil)
	if err != nil {
		return nil, fmt.Errorf("session: encode auto current-orders request: %w", err)
	}
	m.state = Authenticated
	return &Transition{Outbound: [][]byte{frame}}, nil
}

func (m *Machine) handleAuthenticated(command uint16, errCode byte, data []byte) (*Transition, error) {
	switch command {
	case cmdCurrentOrders:
		return m.handleCurrentOrders(data)
	case cmdOrderUpdate:
		return m.handleOrderUpdatePush(data)
	case cmdHistory:
		return m.handleHistory(data)
	case cmdTradeRequest:
		return m.handleTradeResult(errCode, data)
	case cmdPing:
		return &Transition{Events: []Event{{Kind: EventPong}}}, nil
	default:
		return &Transition{Events: []Event{{
			Kind:         EventRawMessage,
			RawCommand:   command,
			RawErrorCode: errCode,
			RawData:      data,
		}}}, nil
	}
}

func (m *Machine) handleCurrentOrders(data []byte) (*Transition, error) {
	orders, err := record.ParseOrderList(data)
	if err != nil {
		return nil, fmt.Errorf("session: current-orders payload: %w", err)
	}
	events := make([]Event, 0, len(orders))
	for _, o := range orders {
		events = append(events, Event{
			Kind: EventOrderUpdate,
			Update: &record.OrderUpdate{
				NotifyType: record.NotifyNew,
				Order:      o,
			},
		})
	}
	return &Transition{Events: events}, nil
}

func (m *Machine) handleOrderUpdatePush(data []byte) (*Transition, error) {
	updates, err := record.ParseAllOrderUpdates(data)
	if err != nil {
		return nil, fmt.Errorf("session: order-update payload: %w", err)
	}
	events := make([]Event, 0, len(updates))
	for _, u := range updates {
		events = append(events, Event{Kind: EventOrderUpdate, Update: u})
	}
	return &Transition{Events: events}, nil
}

func (m *Machine) handleHistory(data []byte) (*Transition, error) {
	orders, err := record.ParseOrderList(data)
	if err != nil {
		return nil, fmt.Errorf("session: history payload: %w", err)
	}
	events := make([]Event, 0, len(orders))
	for _, o := range orders {
		notifyType := record.NotifyNew
		if o.CloseTime != 0 || o.ClosePrice != o.OpenPrice {
			notifyType = record.NotifyClosed
		}
		events = append(events, Event{
			Kind: EventOrderUpdate,
			Update: &record.OrderUpdate{
				NotifyType: notifyType,
				Order:      o,
			},
		})
	}
	return &Transition{Events: events}, nil
}

func (m *Machine) handleTradeResult(errCode byte, data []byte) (*Transition, error) {
	if errCode != 0 {
		requestID := uint32(0)
		message := ""
		if resp, err := record.ParseTradeResponse(data); err == nil {
			requestID = resp.RequestID
		} else {
			message = string(bytes.ToValidUTF8(data, []byte{0xEF, 0xBF, 0xBD}))
		}
		return &Transition{Events: []Event{{
			Kind:           EventTradeResult,
			TradeRequestID: requestID,
			TradeSuccess:   false,
			TradeErrCode:   errCode,
			TradeErrMsg:    message,
		}}}, nil
	}

	resp, err := record.ParseTradeResponse(data)
	if err != nil {
		return nil, fmt.Errorf("session: trade response payload: %w", err)
	}
	return &Transition{Events: []Event{{
		Kind:           EventTradeResult,
		TradeRequestID: resp.RequestID,
		TradeSuccess:   resp.Success(),
		TradeResponse:  resp,
	}}}, nil
}

// tokenPayload returns the token encoded as exactly 64 ASCII bytes,
// NUL-padded or truncated.
func tokenPayload(token string) []byte {
	b := make([]byte, tokenPayloadSize)
	n := len(token)
	if n > tokenPayloadSize {
		n = tokenPayloadSize
	}
	copy(b, token[:n])
	return b
}

// passwordPayload encodes password as UTF-16LE, zero-padded or truncated to
// exactly 64 bytes. Truncation happens on whole UTF-16 code units, never
// splitting one in half.
func passwordPayload(password string) []byte {
	b := make([]byte, passwordPayloadSize)
	units := utf16.Encode([]rune(password))
	i := 0
	for _, u := range units {
		if i+2 > passwordPayloadSize {
			break
		}
		b[i] = byte(u)
		b[i+1] = byte(u >> 8)
		i += 2
	}
	return b
}
