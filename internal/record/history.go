package record

import (
	"encoding/binary"
	"fmt"
)

// HistoryRangeSize is the fixed size of the time-range history request
// payload: a start and end unix timestamp, each a signed 32-bit int.
const HistoryRangeSize = 8

// HistoryRange is the payload for a time-bounded order-history request.
type HistoryRange struct {
	Start int32
	End   int32
}

// Bytes serializes the range to its 8-byte wire form.
func (h HistoryRange) Bytes() []byte {
	b := make([]byte, HistoryRangeSize)
	binary.LittleEndian.PutUint32(b[0:4], uint32(h.Start))
	binary.LittleEndian.PutUint32(b[4:8], uint32(h.End))
	return b
}

// ParseHistoryRange decodes an 8-byte time-range payload.
func ParseHistoryRange(b []byte) (HistoryRange, error) {
	if len(b) != HistoryRangeSize {
		return HistoryRange{}, fmt.Errorf("record: HistoryRange requires %d bytes, got %d", HistoryRangeSize, len(b))
	}
	return HistoryRange{
		Start: int32(binary.LittleEndian.Uint32(b[0:4])),
		End:   int32(binary.LittleEndian.Uint32(b[4:8])),
	}, nil
}
