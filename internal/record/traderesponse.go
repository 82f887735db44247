package record

import (
	"encoding/binary"
	"fmt"
)

// TradeResponseHeaderSize is the fixed prefix ahead of the embedded Order
// list in a TradeResponse.
const TradeResponseHeaderSize = 24

const (
	respOffRequestID = 0
	respOffStatus    = 4
	respOffPrice1    = 8
	respOffPrice2    = 16
)

// TradeResponse is the server's reply to a TradeRequest: a result code plus
// whatever Order records the action produced (typically one — the opened,
// closed, or modified position — but the wire format allows any count).
type TradeResponse struct {
	RequestID uint32
	Status    int32
	Price1    float64
	Price2    float64
	Orders    []*Order
}

// ParseTradeResponse decodes a TradeResponse: a 24-byte header followed by
// floor((len(b)-24)/OrderSize) Order records.
func ParseTradeResponse(b []byte) (*TradeResponse, error) {
	if len(b) < TradeResponseHeaderSize {
		return nil, fmt.Errorf("record: TradeResponse requires at least %d bytes, got %d", TradeResponseHeaderSize, len(b))
	}
	orders, err := ParseOrderList(b[TradeResponseHeaderSize:])
	if err != nil {
		return nil, fmt.Errorf("record: TradeResponse orders: %w", err)
	}
	return &TradeResponse{
		RequestID: binary.LittleEndian.Uint32(b[respOffRequestID:]),
		Status:    int32(binary.LittleEndian.Uint32(b[respOffStatus:])),
		Price1:    parseFloat64(b[respOffPrice1:]),
		Price2:    parseFloat64(b[respOffPrice2:]),
		Orders:    orders,
	}, nil
}

// Bytes serializes the TradeResponse back to its wire form.
func (r *TradeResponse) Bytes() []byte {
	b := make([]byte, TradeResponseHeaderSize+len(r.Orders)*OrderSize)
	binary.LittleEndian.PutUint32(b[respOffRequestID:], r.RequestID)
	binary.LittleEndian.PutUint32(b[respOffStatus:], uint32(r.Status))
	putFloat64(b[respOffPrice1:], r.Price1)
	putFloat64(b[respOffPrice2:], r.Price2)
	for i, o := range r.Orders {
		copy(b[TradeResponseHeaderSize+i*OrderSize:], o.Bytes())
	}
	return b
}

// Success reports whether the server accepted the trade request.
func (r *TradeResponse) Success() bool {
	return r.Status == 0
}
