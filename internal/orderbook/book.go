// Package orderbook maintains the local mirror of open positions and trade
// history that the session state machine's OrderUpdate events reconcile
// into. It owns no I/O and is not safe to leave unsynchronized across
// goroutines beyond what its own mutex provides.
package orderbook

import (
	"sync"

	"mt4ws/internal/record"
)

// Book tracks the set of open positions (keyed by ticket, insertion order
// preserved for deterministic iteration) and the append-mostly history list.
// A ticket lives in at most one of the two containers at a time.
type Book struct {
	mu sync.RWMutex

	open    map[uint32]*record.Order
	openSeq []uint32 // insertion order of open, for stable iteration
	history []*record.Order

	balance float64 // cumulative df from AccountUpdate notifications
	credit  float64 // cumulative xh from AccountUpdate notifications
}

// New returns an empty order book.
func New() *Book {
	return &Book{
		open: make(map[uint32]*record.Order),
	}
}

// Apply reconciles one OrderUpdate into the book per the notify_type rules:
// New/Closed/Modified mutate open and history; AccountUpdate only adjusts
// the running balance/credit deltas and never touches either container.
func (b *Book) Apply(u *record.OrderUpdate) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch u.NotifyType {
	case record.NotifyAccountUpdate:
		b.balance += u.DF
		b.credit += u.XH
	case record.NotifyNew:
		b.applyNew(u.Order)
	case record.NotifyClosed:
		b.applyClosed(u.Order)
	case record.NotifyModified:
		b.applyModified(u.Order)
	}
}

// ApplyAll reconciles a sequence of updates in order, as a Close-By frame's
// two halves must be: each ticket's transition depends on the book state
// left by the previous update in the same frame.
func (b *Book) ApplyAll(updates []*record.OrderUpdate) {
	for _, u := range updates {
		b.Apply(u)
	}
}

func (b *Book) applyNew(o *record.Order) {
	if _, inHistory := b.findHistory(o.Ticket); inHistory {
		b.removeHistory(o.Ticket)
	}
	if _, exists := b.open[o.Ticket]; !exists {
		b.openSeq = append(b.openSeq, o.Ticket)
	}
	b.open[o.Ticket] = o
}

func (b *Book) applyClosed(o *record.Order) {
	delete(b.open, o.Ticket)
	b.removeFromOpenSeq(o.Ticket)
	b.history = append(b.history, o)
}

func (b *Book) applyModified(o *record.Order) {
	if _, exists := b.open[o.Ticket]; !exists {
		b.openSeq = append(b.openSeq, o.Ticket)
	}
	b.open[o.Ticket] = o
}

func (b *Book) removeFromOpenSeq(ticket uint32) {
	for i, t := range b.openSeq {
		if t == ticket {
			b.openSeq = append(b.openSeq[:i], b.openSeq[i+1:]...)
			return
		}
	}
}

func (b *Book) findHistory(ticket uint32) (*record.Order, bool) {
	for _, o := range b.history {
		if o.Ticket == ticket {
			return o, true
		}
	}
	return nil, false
}

func (b *Book) removeHistory(ticket uint32) {
	for i, o := range b.history {
		if o.Ticket == ticket {
			b.history = append(b.history[:i], b.history[i+1:]...)
			return
		}
	}
}

// OpenPositions returns a snapshot of open orders in insertion order.
func (b *Book) OpenPositions() []*record.Order {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]*record.Order, 0, len(b.openSeq))
	for _, ticket := range b.openSeq {
		out = append(out, b.open[ticket])
	}
	return out
}

// History returns a snapshot of closed orders in emission order.
func (b *Book) History() []*record.Order {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]*record.Order, len(b.history))
	copy(out, b.history)
	return out
}

// Position looks up a single open order by ticket.
func (b *Book) Position(ticket uint32) (*record.Order, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	o, ok := b.open[ticket]
	return o, ok
}

// BalanceDelta and CreditDelta report the cumulative account-update deltas
// seen since the book was created.
func (b *Book) BalanceDelta() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.balance
}

func (b *Book) CreditDelta() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.credit
}
