package record

import (
	"encoding/binary"
	"fmt"
)

// UpdateHeaderSize is the 24-byte notification header prefixed to every
// OrderUpdate envelope, ahead of the embedded Order.
const UpdateHeaderSize = 24

// UpdateSize is the size of a single OrderUpdate envelope (header + Order).
const UpdateSize = UpdateHeaderSize + OrderSize // 185

const (
	offNotifyID   = 0
	offNotifyType = 4
	offDF         = 8
	offXH         = 16
)

// NotifyType classifies what changed about the embedded Order.
type NotifyType int32

const (
	NotifyNew           NotifyType = 0
	NotifyClosed        NotifyType = 1
	NotifyModified      NotifyType = 2
	NotifyAccountUpdate NotifyType = 3
)

// OrderUpdate is a single notification envelope: a 24-byte header describing
// what kind of change occurred, followed by the affected Order in full.
//
// RelatedOrder exists on the struct for API shape compatibility with a
// hypothetical future correlation feature (pairing the two halves of a
// Close-By) but is never populated by ParseAll — the protocol sends Close-By
// as two fully independent 185-byte envelopes, not one combined record, and
// this client does not attempt to merge them.
type OrderUpdate struct {
	NotifyID     uint32
	NotifyType   NotifyType
	DF           float64
	XH           float64
	Order        *Order
	RelatedOrder *Order
}

// ParseOrderUpdate decodes a single 185-byte envelope.
func ParseOrderUpdate(b []byte) (*OrderUpdate, error) {
	if len(b) != UpdateSize {
		return nil, fmt.Errorf("record: OrderUpdate requires %d bytes, got %d", UpdateSize, len(b))
	}
	order, err := ParseOrder(b[UpdateHeaderSize:])
	if err != nil {
		return nil, fmt.Errorf("record: OrderUpdate embedded order: %w", err)
	}
	return &OrderUpdate{
		NotifyID:   binary.LittleEndian.Uint32(b[offNotifyID:]),
		NotifyType: NotifyType(int32(binary.LittleEndian.Uint32(b[offNotifyType:]))),
		DF:         parseFloat64(b[offDF:]),
		XH:         parseFloat64(b[offXH:]),
		Order:      order,
	}, nil
}

// ParseAllOrderUpdates decodes a notification payload into however many
// independent 185-byte envelopes fit. A Close-By notification arrives as
// exactly two such envelopes back to back (370 bytes total) — this function
// does not special-case that length, it is simply what falls out of
// repeatedly peeling off UpdateSize bytes. Any trailing remainder shorter
// than UpdateSize is discarded rather than erroring, matching ParseOrderList's
// tolerance of a short final chunk.
func ParseAllOrderUpdates(b []byte) ([]*OrderUpdate, error) {
	n := len(b) / UpdateSize
	updates := make([]*OrderUpdate, 0, n)
	for i := 0; i < n; i++ {
		start := i * UpdateSize
		u, err := ParseOrderUpdate(b[start : start+UpdateSize])
		if err != nil {
			return nil, fmt.Errorf("record: order update %d: %w", i, err)
		}
		updates = append(updates, u)
	}
	return updates, nil
}

// Bytes serializes the envelope back to its 185-byte wire form.
func (u *OrderUpdate) Bytes() []byte {
	b := make([]byte, UpdateSize)
	binary.LittleEndian.PutUint32(b[offNotifyID:], u.NotifyID)
	binary.LittleEndian.PutUint32(b[offNotifyType:], uint32(u.NotifyType))
	putFloat64(b[offDF:], u.DF)
	putFloat64(b[offXH:], u.XH)
	copy(b[UpdateHeaderSize:], u.Order.Bytes())
	return b
}
