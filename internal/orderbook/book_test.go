package orderbook

import (
	"testing"

	"mt4ws/internal/record"
)

func order(ticket uint32) *record.Order {
	return &record.Order{
		Ticket:    ticket,
		Symbol:    "EURUSD",
		Cmd:       record.CmdBuy,
		Volume:    10000,
		OpenPrice: 1.1,
	}
}

func update(notifyType record.NotifyType, ticket uint32) *record.OrderUpdate {
	return &record.OrderUpdate{NotifyType: notifyType, Order: order(ticket)}
}

func TestNewOrderInsertsIntoOpen(t *testing.T) {
	t.Parallel()

	b := New()
	b.Apply(update(record.NotifyNew, 100))

	open := b.OpenPositions()
	if len(open) != 1 || open[0].Ticket != 100 {
		t.Fatalf("open = %+v, want [100]", open)
	}
	if len(b.History()) != 0 {
		t.Fatalf("history should be empty, got %+v", b.History())
	}
}

func TestNewOrderOnExistingTicketReplacesIdempotently(t *testing.T) {
	t.Parallel()

	b := New()
	b.Apply(update(record.NotifyNew, 100))
	second := order(100)
	second.OpenPrice = 1.2
	b.Apply(&record.OrderUpdate{NotifyType: record.NotifyNew, Order: second})

	open := b.OpenPositions()
	if len(open) != 1 {
		t.Fatalf("open = %+v, want exactly one entry (idempotent re-seed)", open)
	}
	if open[0].OpenPrice != 1.2 {
		t.Errorf("OpenPrice = %v, want 1.2 (replaced)", open[0].OpenPrice)
	}
}

func TestClosedMovesFromOpenToHistory(t *testing.T) {
	t.Parallel()

	b := New()
	b.Apply(update(record.NotifyNew, 100))
	b.Apply(update(record.NotifyClosed, 100))

	if len(b.OpenPositions()) != 0 {
		t.Errorf("open = %+v, want empty after close", b.OpenPositions())
	}
	history := b.History()
	if len(history) != 1 || history[0].Ticket != 100 {
		t.Fatalf("history = %+v, want [100]", history)
	}
}

func TestClosedWithoutPriorOpenStillAppendsToHistory(t *testing.T) {
	t.Parallel()

	b := New()
	b.Apply(update(record.NotifyClosed, 100))

	if len(b.OpenPositions()) != 0 {
		t.Errorf("open should stay empty, got %+v", b.OpenPositions())
	}
	if history := b.History(); len(history) != 1 || history[0].Ticket != 100 {
		t.Fatalf("history = %+v, want [100]", history)
	}
}

func TestModifiedReplacesOpenEntry(t *testing.T) {
	t.Parallel()

	b := New()
	b.Apply(update(record.NotifyNew, 100))
	modified := order(100)
	modified.SL = 1.05
	b.Apply(&record.OrderUpdate{NotifyType: record.NotifyModified, Order: modified})

	open := b.OpenPositions()
	if len(open) != 1 || open[0].SL != 1.05 {
		t.Fatalf("open = %+v, want ticket 100 with SL 1.05", open)
	}
}

func TestModifiedWithoutPriorOpenInsertsAsUnseen(t *testing.T) {
	t.Parallel()

	b := New()
	b.Apply(update(record.NotifyModified, 100))

	open := b.OpenPositions()
	if len(open) != 1 || open[0].Ticket != 100 {
		t.Fatalf("open = %+v, want [100] (treated as unseen-then-modified)", open)
	}
}

func TestNewAfterCloseMovesBackFromHistory(t *testing.T) {
	t.Parallel()

	b := New()
	b.Apply(update(record.NotifyNew, 100))
	b.Apply(update(record.NotifyClosed, 100))
	b.Apply(update(record.NotifyNew, 100))

	if len(b.History()) != 0 {
		t.Errorf("history = %+v, want empty (moved back to open)", b.History())
	}
	open := b.OpenPositions()
	if len(open) != 1 || open[0].Ticket != 100 {
		t.Fatalf("open = %+v, want [100]", open)
	}
}

func TestCloseByAppliesSequentiallyBothEndUpInHistory(t *testing.T) {
	t.Parallel()

	b := New()
	b.Apply(update(record.NotifyNew, 100))
	b.Apply(update(record.NotifyNew, 200))

	b.ApplyAll([]*record.OrderUpdate{
		update(record.NotifyClosed, 100),
		update(record.NotifyClosed, 200),
	})

	if len(b.OpenPositions()) != 0 {
		t.Errorf("open = %+v, want empty", b.OpenPositions())
	}
	history := b.History()
	if len(history) != 2 || history[0].Ticket != 100 || history[1].Ticket != 200 {
		t.Fatalf("history = %+v, want [100, 200] in emission order", history)
	}
}

func TestAccountUpdateDoesNotTouchBookButAccumulatesDeltas(t *testing.T) {
	t.Parallel()

	b := New()
	b.Apply(update(record.NotifyNew, 100))
	b.Apply(&record.OrderUpdate{NotifyType: record.NotifyAccountUpdate, DF: 50, XH: 5})
	b.Apply(&record.OrderUpdate{NotifyType: record.NotifyAccountUpdate, DF: -10, XH: 0})

	if len(b.OpenPositions()) != 1 {
		t.Errorf("open = %+v, want unchanged [100]", b.OpenPositions())
	}
	if got := b.BalanceDelta(); got != 40 {
		t.Errorf("BalanceDelta() = %v, want 40", got)
	}
	if got := b.CreditDelta(); got != 5 {
		t.Errorf("CreditDelta() = %v, want 5", got)
	}
}

func TestPositionLookup(t *testing.T) {
	t.Parallel()

	b := New()
	if _, ok := b.Position(999); ok {
		t.Error("Position on empty book should report false")
	}
	b.Apply(update(record.NotifyNew, 100))
	got, ok := b.Position(100)
	if !ok || got.Ticket != 100 {
		t.Fatalf("Position(100) = %+v, %v", got, ok)
	}
}

func TestOpenPositionsPreservesInsertionOrder(t *testing.T) {
	t.Parallel()

	b := New()
	b.Apply(update(record.NotifyNew, 300))
	b.Apply(update(record.NotifyNew, 100))
	b.Apply(update(record.NotifyNew, 200))

	open := b.OpenPositions()
	if len(open) != 3 || open[0].Ticket != 300 || open[1].Ticket != 100 || open[2].Ticket != 200 {
		t.Fatalf("open = %+v, want insertion order [300, 100, 200]", open)
	}
}
