package record

import (
	"encoding/binary"
	"fmt"

	"github.com/shopspring/decimal"
)

// TradeRequestSize is the fixed wire size of a TradeRequest record.
const TradeRequestSize = 95

const (
	reqOffType       = 0
	reqOffCmd        = 1
	reqOffRequestID  = 7 // see RequestID doc comment
	reqOffTicket     = 3
	reqOffSymbol     = 11
	reqSymbolLen     = 12
	reqOffVolume     = 23
	reqOffPrice      = 27
	reqOffSL         = 35
	reqOffTP         = 43
	reqOffSlippage   = 51
	reqOffComment    = 55
	reqCommentLen    = 32
	reqOffExpiration = 87
)

// RequestType is the TradeRequest.Type field distinguishing market, pending,
// and close actions.
type RequestType uint8

const (
	RequestInstant      RequestType = 64 // market order
	RequestPending      RequestType = 67 // pending (limit/stop) order
	RequestCloseInstant RequestType = 68 // close an open position
)

// hundred is the TradeRequest volume scaling: lots*100. Order.Volume uses a
// different scaling (lots*10000) — see Order.LotVolume.
var hundred = decimal.NewFromInt(100)

// TradeRequest is the 95-byte outbound order command (open, close, modify,
// or delete) the client sends to request a trade action.
//
// RequestID occupies the 4-byte slot the wire layout leaves otherwise
// unlabeled at offset 7 (between ticket and symbol). The reference
// documentation marks it "reserved", but per the facade's own correlation
// requirement — a request_id chosen by the client must round-trip back in
// TradeResponse.RequestID — this is the one outbound field free for the
// client to stamp, and the server is expected to treat it opaquely.
type TradeRequest struct {
	Type       RequestType
	Cmd        Cmd
	Ticket     uint32
	RequestID  uint32
	Symbol     string
	Volume     uint32 // lots * 100
	Price      float64
	SL         float64
	TP         float64
	Slippage   uint32
	Comment    string
	Expiration uint32
}

// NewTradeRequest builds a TradeRequest from a lot size expressed as an exact
// decimal, rounding half-up to the nearest wire unit (lots*100) rather than
// truncating — a naive float64 multiplication of a value like 0.1 lots can
// land a hair under the intended integer and truncate down to the wrong
// volume.
func NewTradeRequest(typ RequestType, requestID, ticket uint32, symbol string, cmd Cmd, lots decimal.Decimal, price, sl, tp float64, slippage uint32, comment string, expiration uint32) *TradeRequest {
	volume := lots.Mul(hundred).Round(0)
	return &TradeRequest{
		Type:       typ,
		Cmd:        cmd,
		Ticket:     ticket,
		RequestID:  requestID,
		Symbol:     symbol,
		Volume:     uint32(volume.IntPart()),
		Price:      price,
		SL:         sl,
		TP:         tp,
		Slippage:   slippage,
		Comment:    comment,
		Expiration: expiration,
	}
}

// LotVolume returns the request's lot size as an exact decimal, reversing
// the lots*100 wire scaling.
func (r *TradeRequest) LotVolume() decimal.Decimal {
	return decimal.NewFromInt(int64(r.Volume)).Div(hundred)
}

// Bytes serializes the TradeRequest to its 95-byte wire form.
func (r *TradeRequest) Bytes() []byte {
	b := make([]byte, TradeRequestSize)
	b[reqOffType] = byte(r.Type)
	binary.LittleEndian.PutUint16(b[reqOffCmd:], uint16(int16(r.Cmd)))
	binary.LittleEndian.PutUint32(b[reqOffTicket:], r.Ticket)
	binary.LittleEndian.PutUint32(b[reqOffRequestID:], r.RequestID)
	putFixedASCII(b[reqOffSymbol:reqOffSymbol+reqSymbolLen], r.Symbol)
	binary.LittleEndian.PutUint32(b[reqOffVolume:], r.Volume)
	putFloat64(b[reqOffPrice:], r.Price)
	putFloat64(b[reqOffSL:], r.SL)
	putFloat64(b[reqOffTP:], r.TP)
	binary.LittleEndian.PutUint32(b[reqOffSlippage:], r.Slippage)
	putFixedUTF8(b[reqOffComment:reqOffComment+reqCommentLen], r.Comment)
	binary.LittleEndian.PutUint32(b[reqOffExpiration:], r.Expiration)
	// b[91:95] stays zeroed; truly reserved/unused on the client->server path.
	return b
}

// ParseTradeRequest decodes a 95-byte TradeRequest, used by tests and by any
// consumer that needs to inspect a request it didn't itself build.
func ParseTradeRequest(b []byte) (*TradeRequest, error) {
	if len(b) != TradeRequestSize {
		return nil, fmt.Errorf("record: TradeRequest requires %d bytes, got %d", TradeRequestSize, len(b))
	}
	return &TradeRequest{
		Type:       RequestType(b[reqOffType]),
		Cmd:        Cmd(int16(binary.LittleEndian.Uint16(b[reqOffCmd:]))),
		Ticket:     binary.LittleEndian.Uint32(b[reqOffTicket:]),
		RequestID:  binary.LittleEndian.Uint32(b[reqOffRequestID:]),
		Symbol:     nulTerminatedASCII(b[reqOffSymbol : reqOffSymbol+reqSymbolLen]),
		Volume:     binary.LittleEndian.Uint32(b[reqOffVolume:]),
		Price:      parseFloat64(b[reqOffPrice:]),
		SL:         parseFloat64(b[reqOffSL:]),
		TP:         parseFloat64(b[reqOffTP:]),
		Slippage:   binary.LittleEndian.Uint32(b[reqOffSlippage:]),
		Comment:    nulTerminatedUTF8(b[reqOffComment : reqOffComment+reqCommentLen]),
		Expiration: binary.LittleEndian.Uint32(b[reqOffExpiration:]),
	}, nil
}
