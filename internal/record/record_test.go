package record

import (
	"bytes"
	"testing"

	"github.com/shopspring/decimal"
)

func sampleOrder(ticket uint32) *Order {
	return &Order{
		Ticket:     ticket,
		Symbol:     "EURUSD",
		Digits:     5,
		Cmd:        CmdBuy,
		Volume:     15000, // 1.5 lots
		OpenTime:   1700000000,
		State:      0,
		OpenPrice:  1.12345,
		SL:         1.12000,
		TP:         1.13000,
		CloseTime:  0,
		Expiration: 0,
		Commission: -1.5,
		Swap:       0.25,
		Profit:     42.5,
		Comment:    "opened via test",
		ClosePrice: 0,
	}
}

func TestOrderRoundTrip(t *testing.T) {
	t.Parallel()

	want := sampleOrder(123456)
	b := want.Bytes()
	if len(b) != OrderSize {
		t.Fatalf("Bytes() length = %d, want %d", len(b), OrderSize)
	}

	got, err := ParseOrder(b)
	if err != nil {
		t.Fatalf("ParseOrder: %v", err)
	}

	if got.Ticket != want.Ticket || got.Symbol != want.Symbol || got.Digits != want.Digits ||
		got.Cmd != want.Cmd || got.Volume != want.Volume || got.OpenTime != want.OpenTime ||
		got.State != want.State || got.OpenPrice != want.OpenPrice || got.SL != want.SL ||
		got.TP != want.TP || got.CloseTime != want.CloseTime || got.Expiration != want.Expiration ||
		got.Commission != want.Commission || got.Swap != want.Swap || got.Profit != want.Profit ||
		got.Comment != want.Comment || got.ClosePrice != want.ClosePrice {
		t.Errorf("round trip mismatch:\n got  %+v\n want %+v", got, want)
	}
}

func TestOrderLotVolume(t *testing.T) {
	t.Parallel()

	o := sampleOrder(1)
	want := decimal.NewFromFloat(1.5)
	if !o.LotVolume().Equal(want) {
		t.Errorf("LotVolume() = %s, want %s", o.LotVolume(), want)
	}
}

func TestParseOrderWrongLength(t *testing.T) {
	t.Parallel()

	for _, n := range []int{0, 160, 162} {
		if _, err := ParseOrder(make([]byte, n)); err == nil {
			t.Errorf("len %d: expected error", n)
		}
	}
}

func TestParseOrderListBoundaries(t *testing.T) {
	t.Parallel()

	tests := []struct {
		n    int
		want int
	}{
		{0, 0},
		{160, 0}, // below one full record
		{161, 1},
		{322, 2},
		{323, 2}, // trailing partial record discarded
	}

	for _, tt := range tests {
		orders, err := ParseOrderList(make([]byte, tt.n))
		if err != nil {
			t.Errorf("len %d: unexpected error %v", tt.n, err)
			continue
		}
		if len(orders) != tt.want {
			t.Errorf("len %d: got %d orders, want %d", tt.n, len(orders), tt.want)
		}
	}
}

func TestOrderCommentHandlesNonASCII(t *testing.T) {
	t.Parallel()

	o := sampleOrder(1)
	o.Comment = "café ☕"
	b := o.Bytes()
	got, err := ParseOrder(b)
	if err != nil {
		t.Fatalf("ParseOrder: %v", err)
	}
	if got.Comment != o.Comment {
		t.Errorf("Comment = %q, want %q", got.Comment, o.Comment)
	}
}

func sampleUpdate(notifyID uint32, notifyType NotifyType, ticket uint32) *OrderUpdate {
	return &OrderUpdate{
		NotifyID:   notifyID,
		NotifyType: notifyType,
		DF:         0.5,
		XH:         1.25,
		Order:      sampleOrder(ticket),
	}
}

func TestOrderUpdateRoundTrip(t *testing.T) {
	t.Parallel()

	want := sampleUpdate(7, NotifyNew, 555)
	b := want.Bytes()
	if len(b) != UpdateSize {
		t.Fatalf("Bytes() length = %d, want %d", len(b), UpdateSize)
	}

	got, err := ParseOrderUpdate(b)
	if err != nil {
		t.Fatalf("ParseOrderUpdate: %v", err)
	}
	if got.NotifyID != want.NotifyID || got.NotifyType != want.NotifyType ||
		got.DF != want.DF || got.XH != want.XH || got.Order.Ticket != want.Order.Ticket {
		t.Errorf("round trip mismatch:\n got  %+v\n want %+v", got, want)
	}
	if got.RelatedOrder != nil {
		t.Errorf("RelatedOrder = %+v, want nil (Close-By halves are never merged)", got.RelatedOrder)
	}
}

func TestParseAllOrderUpdatesBoundaries(t *testing.T) {
	t.Parallel()

	tests := []struct {
		n    int
		want int
	}{
		{0, 0},
		{1, 0},
		{184, 0},
		{185, 1},
		{186, 1},
		{369, 1},
		{370, 2}, // Close-By: exactly two independent envelopes
		{555, 3},
	}

	for _, tt := range tests {
		updates, err := ParseAllOrderUpdates(make([]byte, tt.n))
		if err != nil {
			t.Errorf("len %d: unexpected error %v", tt.n, err)
			continue
		}
		if len(updates) != tt.want {
			t.Errorf("len %d: got %d updates, want %d", tt.n, len(updates), tt.want)
		}
	}
}

func TestCloseByProducesTwoIndependentEnvelopes(t *testing.T) {
	t.Parallel()

	first := sampleUpdate(1, NotifyClosed, 100)
	second := sampleUpdate(2, NotifyClosed, 200)

	payload := append(append([]byte{}, first.Bytes()...), second.Bytes()...)
	if len(payload) != 370 {
		t.Fatalf("payload length = %d, want 370", len(payload))
	}

	updates, err := ParseAllOrderUpdates(payload)
	if err != nil {
		t.Fatalf("ParseAllOrderUpdates: %v", err)
	}
	if len(updates) != 2 {
		t.Fatalf("got %d updates, want 2", len(updates))
	}
	if updates[0].Order.Ticket != 100 || updates[1].Order.Ticket != 200 {
		t.Errorf("tickets = %d, %d, want 100, 200", updates[0].Order.Ticket, updates[1].Order.Ticket)
	}
	if updates[0].RelatedOrder != nil || updates[1].RelatedOrder != nil {
		t.Error("Close-By halves must not be merged into each other's RelatedOrder")
	}
}

func TestTradeRequestVolumeScalingDiffersFromOrder(t *testing.T) {
	t.Parallel()

	lots := decimal.NewFromFloat(0.1)
	req := NewTradeRequest(RequestInstant, 1, 0, "EURUSD", CmdBuy, lots, 1.1, 0, 0, 0, "", 0)
	if req.Volume != 10 {
		t.Errorf("TradeRequest.Volume = %d, want 10 (lots*100)", req.Volume)
	}

	order := sampleOrder(1)
	order.Volume = 1000 // 0.1 lots at Order's lots*10000 scaling
	if got := order.LotVolume(); !got.Equal(decimal.NewFromFloat(0.1)) {
		t.Errorf("Order.LotVolume() = %s, want 0.1", got)
	}
}

func TestTradeRequestRoundTrip(t *testing.T) {
	t.Parallel()

	lots := decimal.NewFromFloat(2.5)
	want := NewTradeRequest(RequestPending, 99, 555, "GBPUSD", CmdSellLimit, lots, 1.25, 1.30, 1.20, 5, "note", 1800000000)
	b := want.Bytes()
	if len(b) != TradeRequestSize {
		t.Fatalf("Bytes() length = %d, want %d", len(b), TradeRequestSize)
	}
	got, err := ParseTradeRequest(b)
	if err != nil {
		t.Fatalf("ParseTradeRequest: %v", err)
	}
	if got.Type != want.Type || got.RequestID != want.RequestID || got.Ticket != want.Ticket || got.Symbol != want.Symbol ||
		got.Cmd != want.Cmd || got.Volume != want.Volume || got.Price != want.Price ||
		got.SL != want.SL || got.TP != want.TP || got.Slippage != want.Slippage || got.Comment != want.Comment ||
		got.Expiration != want.Expiration {
		t.Errorf("round trip mismatch:\n got  %+v\n want %+v", got, want)
	}
}

func TestTradeResponseRoundTrip(t *testing.T) {
	t.Parallel()

	want := &TradeResponse{
		RequestID: 42,
		Status:    0,
		Price1:    1.2345,
		Price2:    0,
		Orders:    []*Order{sampleOrder(777)},
	}
	b := want.Bytes()
	got, err := ParseTradeResponse(b)
	if err != nil {
		t.Fatalf("ParseTradeResponse: %v", err)
	}
	if got.RequestID != want.RequestID || got.Status != want.Status || got.Price1 != want.Price1 {
		t.Errorf("header mismatch: got %+v, want %+v", got, want)
	}
	if len(got.Orders) != 1 || got.Orders[0].Ticket != 777 {
		t.Errorf("Orders = %+v, want one order with ticket 777", got.Orders)
	}
	if !got.Success() {
		t.Error("Success() = false, want true for Status 0")
	}
}

func TestTradeResponseFailureStatus(t *testing.T) {
	t.Parallel()

	resp := &TradeResponse{RequestID: 1, Status: 134}
	if resp.Success() {
		t.Error("Success() = true, want false for non-zero Status")
	}
}

func TestParseTradeResponseTooShort(t *testing.T) {
	t.Parallel()

	if _, err := ParseTradeResponse(make([]byte, 23)); err == nil {
		t.Error("expected error for payload shorter than the 24-byte header")
	}
}

func TestHistoryRangeRoundTrip(t *testing.T) {
	t.Parallel()

	want := HistoryRange{Start: 1700000000, End: 1700100000}
	b := want.Bytes()
	if len(b) != HistoryRangeSize {
		t.Fatalf("Bytes() length = %d, want %d", len(b), HistoryRangeSize)
	}
	got, err := ParseHistoryRange(b)
	if err != nil {
		t.Fatalf("ParseHistoryRange: %v", err)
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestParseHistoryRangeWrongLength(t *testing.T) {
	t.Parallel()

	for _, n := range []int{0, 7, 9} {
		if _, err := ParseHistoryRange(make([]byte, n)); err == nil {
			t.Errorf("len %d: expected error", n)
		}
	}
}

func TestOrderSymbolTruncation(t *testing.T) {
	t.Parallel()

	o := sampleOrder(1)
	o.Symbol = bytesRepeatString("X", 20) // longer than the 12-byte field
	b := o.Bytes()
	got, err := ParseOrder(b)
	if err != nil {
		t.Fatalf("ParseOrder: %v", err)
	}
	if len(got.Symbol) >= symbolLen {
		t.Errorf("Symbol %q not truncated to fit the NUL-terminated field", got.Symbol)
	}
}

func bytesRepeatString(s string, n int) string {
	return string(bytes.Repeat([]byte(s), n))
}
