// Package record implements the fixed-offset binary records the MT4 Web
// Terminal protocol carries once a frame has been decrypted: orders, order
// updates, trade requests/responses, and the history time-range payload.
// Every parser here works on an already-plaintext byte slice — framing and
// decryption are internal/wire's job, not this package's.
package record

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// OrderSize is the fixed wire size of an Order record.
const OrderSize = 161

const (
	offTicket      = 0
	offSymbol      = 4
	symbolLen      = 12
	offDigits      = 16
	offCmd         = 20
	offVolume      = 24
	offOpenTime    = 28
	offState       = 32
	offOpenPrice   = 36
	offSL          = 44
	offTP          = 52
	offCloseTime   = 60
	offExpiration  = 64
	offCommission  = 69
	offSwap        = 85
	offProfit      = 93
	offComment     = 121
	commentLen     = 32
	offClosePrice  = 153
)

// Cmd is the order's trade direction/type (buy, sell, buy limit, ...).
type Cmd int32

const (
	CmdBuy Cmd = iota
	CmdSell
	CmdBuyLimit
	CmdSellLimit
	CmdBuyStop
	CmdSellStop
)

// Order is the 161-byte position/order record, parsed field-by-field at the
// fixed offsets spec.md §4.3 documents. Reserved byte ranges the spec leaves
// unlabeled are preserved verbatim in Reserved so round-tripping never loses
// bytes the server considers significant even though this client doesn't.
type Order struct {
	Ticket      uint32
	Symbol      string
	Digits      int32
	Cmd         Cmd
	Volume      uint32 // lots * 10000
	OpenTime    uint32 // unix seconds
	State       int32
	OpenPrice   float64
	SL          float64
	TP          float64
	CloseTime   uint32
	Expiration  uint32
	Commission  float64
	Swap        float64
	Profit      float64
	Comment     string
	ClosePrice  float64
	Reserved    [OrderSize]byte // full raw record, for opaque passthrough
}

// Volume returns the order's lot size as an exact decimal, reversing the
// wire's lots*10000 scaling.
func (o *Order) LotVolume() decimal.Decimal {
	return decimal.NewFromInt(int64(o.Volume)).Div(decimal.NewFromInt(10000))
}

// ParseOrder decodes a single 161-byte Order record.
func ParseOrder(b []byte) (*Order, error) {
	if len(b) != OrderSize {
		return nil, fmt.Errorf("record: Order requires %d bytes, got %d", OrderSize, len(b))
	}

	o := &Order{
		Ticket:     binary.LittleEndian.Uint32(b[offTicket:]),
		Symbol:     nulTerminatedASCII(b[offSymbol : offSymbol+symbolLen]),
		Digits:     int32(binary.LittleEndian.Uint32(b[offDigits:])),
		Cmd:        Cmd(int32(binary.LittleEndian.Uint32(b[offCmd:]))),
		Volume:     binary.LittleEndian.Uint32(b[offVolume:]),
		OpenTime:   binary.LittleEndian.Uint32(b[offOpenTime:]),
		State:      int32(binary.LittleEndian.Uint32(b[offState:])),
		OpenPrice:  parseFloat64(b[offOpenPrice:]),
		SL:         parseFloat64(b[offSL:]),
		TP:         parseFloat64(b[offTP:]),
		CloseTime:  binary.LittleEndian.Uint32(b[offCloseTime:]),
		Expiration: binary.LittleEndian.Uint32(b[offExpiration:]),
		Commission: parseFloat64(b[offCommission:]),
		Swap:       parseFloat64(b[offSwap:]),
		Profit:     parseFloat64(b[offProfit:]),
		Comment:    nulTerminatedUTF8(b[offComment : offComment+commentLen]),
		ClosePrice: parseFloat64(b[offClosePrice:]),
	}
	copy(o.Reserved[:], b)
	return o, nil
}

// Bytes serializes the Order back to its 161-byte wire form. Named fields
// take precedence over Reserved; any byte range Reserved covers that isn't
// one of the named fields (the gaps between them) is copied through
// verbatim, so a record parsed and re-serialized without modification is
// byte-identical to the input.
func (o *Order) Bytes() []byte {
	b := make([]byte, OrderSize)
	copy(b, o.Reserved[:])

	binary.LittleEndian.PutUint32(b[offTicket:], o.Ticket)
	putFixedASCII(b[offSymbol:offSymbol+symbolLen], o.Symbol)
	binary.LittleEndian.PutUint32(b[offDigits:], uint32(o.Digits))
	binary.LittleEndian.PutUint32(b[offCmd:], uint32(o.Cmd))
	binary.LittleEndian.PutUint32(b[offVolume:], o.Volume)
	binary.LittleEndian.PutUint32(b[offOpenTime:], o.OpenTime)
	binary.LittleEndian.PutUint32(b[offState:], uint32(o.State))
	putFloat64(b[offOpenPrice:], o.OpenPrice)
	putFloat64(b[offSL:], o.SL)
	putFloat64(b[offTP:], o.TP)
	binary.LittleEndian.PutUint32(b[offCloseTime:], o.CloseTime)
	binary.LittleEndian.PutUint32(b[offExpiration:], o.Expiration)
	putFloat64(b[offCommission:], o.Commission)
	putFloat64(b[offSwap:], o.Swap)
	putFloat64(b[offProfit:], o.Profit)
	putFixedUTF8(b[offComment:offComment+commentLen], o.Comment)
	putFloat64(b[offClosePrice:], o.ClosePrice)

	return b
}

// ParseOrderList decodes a flat concatenation of Order records (commands 4
// and 5's payload), taking floor(len(b)/OrderSize) complete records and
// silently discarding any trailing partial record — the server is not
// expected to split an Order across the payload boundary, but a defensive
// client does not panic if it does.
func ParseOrderList(b []byte) ([]*Order, error) {
	n := len(b) / OrderSize
	orders := make([]*Order, 0, n)
	for i := 0; i < n; i++ {
		start := i * OrderSize
		o, err := ParseOrder(b[start : start+OrderSize])
		if err != nil {
			return nil, fmt.Errorf("record: order list entry %d: %w", i, err)
		}
		orders = append(orders, o)
	}
	return orders, nil
}

func nulTerminatedASCII(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// nulTerminatedUTF8 trims trailing NUL padding and lossily decodes the
// remainder as UTF-8 — the comment field is the one Order field the protocol
// allows to carry non-ASCII text, and malformed bytes must not abort parsing.
func nulTerminatedUTF8(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(bytes.ToValidUTF8(b, []byte{0xEF, 0xBF, 0xBD}))
}

func parseFloat64(b []byte) float64 {
	bits := binary.LittleEndian.Uint64(b)
	return math.Float64frombits(bits)
}

func putFloat64(b []byte, v float64) {
	binary.LittleEndian.PutUint64(b, math.Float64bits(v))
}

// putFixedASCII writes s into b, truncating to len(b)-1 bytes and
// NUL-padding the remainder so the field is always NUL-terminated.
func putFixedASCII(b []byte, s string) {
	for i := range b {
		b[i] = 0
	}
	n := len(s)
	if n > len(b)-1 {
		n = len(b) - 1
	}
	copy(b, s[:n])
}

// putFixedUTF8 writes s into b truncated to at most len(b)-1 bytes, careful
// not to split a multi-byte UTF-8 rune at the truncation boundary.
func putFixedUTF8(b []byte, s string) {
	for i := range b {
		b[i] = 0
	}
	max := len(b) - 1
	if len(s) <= max {
		copy(b, s)
		return
	}
	trimmed := s[:max]
	for len(trimmed) > 0 {
		if r, size := utf8.DecodeLastRuneInString(trimmed); r != utf8.RuneError || size > 1 {
			break
		}
		trimmed = trimmed[:len(trimmed)-1]
	}
	copy(b, trimmed)
}
