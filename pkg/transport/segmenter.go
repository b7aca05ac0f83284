package transport

import (
	"sync"

	"github.com/digitalservo/cands-go/internal/crc"
	"github.com/digitalservo/cands-go/pkg/cyphal"
)

// MaxTransferPayloadBytes bounds the size of a single logical transfer this
// engine will segment. It exists to keep a single misbehaving caller from
// asking for an unbounded number of frames; it is not a wire-format limit.
const MaxTransferPayloadBytes = 1 << 20

// Segmenter turns application payloads into a train of emit-ready CAN-FD
// frames, advancing a single mod-32 transfer-id counter across every
// transfer it produces.
//
// A Segmenter is safe for concurrent use; the transfer-id counter is the
// only shared state and is guarded by a mutex rather than split across
// per-caller instances, since the wire protocol requires one counter per
// source node regardless of how many goroutines originate transfers.
type Segmenter struct {
	mu         sync.Mutex
	transferID uint8
	mtu        int
}

// NewSegmenter creates a Segmenter seeded at the given initial transfer id
// and configured for the given MTU (payload bytes per CAN-FD frame,
// including the trailing tail byte). Callers seed this from wall-clock time
// at startup so that a restarted process does not replay a transfer id a
// peer has already seen.
func NewSegmenter(seedTransferID uint8, mtu int) *Segmenter {
	if mtu <= 0 {
		mtu = DefaultMTU
	}
	return &Segmenter{transferID: seedTransferID & 0x1F, mtu: mtu}
}

// Segment splits payload into one or more OutFrame values addressed with
// the given XID, consuming one transfer-id value. Frames share the same XID
// and the caller is responsible for transmitting them back-to-back, in
// order, on the same priority level.
func (s *Segmenter) Segment(xid cyphal.XID, payload []byte) ([]OutFrame, error) {
	if s.mtu < 2 {
		return nil, ErrMTUTooSmall
	}
	if len(payload) > MaxTransferPayloadBytes {
		return nil, ErrPayloadTooLarge
	}

	s.mu.Lock()
	transferID := s.transferID
	s.transferID = cyphal.NextTransferID(s.transferID)
	s.mu.Unlock()

	chunkSize := s.mtu - 1

	if len(payload) <= chunkSize {
		tail := cyphal.EncodeTail(true, true, true, transferID)
		frame := OutFrame{
			XID:     xid,
			Payload: append(append([]byte{}, payload...), byte(tail)),
		}
		return []OutFrame{frame}, nil
	}

	stream := make([]byte, 0, len(payload)+2)
	stream = append(stream, payload...)
	checksum := crc.Compute(payload)
	crcBytes := checksum.Bytes()
	stream = append(stream, crcBytes[0], crcBytes[1])

	var frames []OutFrame
	toggle := true
	for offset := 0; offset < len(stream); offset += chunkSize {
		end := offset + chunkSize
		if end > len(stream) {
			end = len(stream)
		}
		chunk := stream[offset:end]
		isFirst := offset == 0
		isLast := end == len(stream)
		tail := cyphal.EncodeTail(isFirst, isLast, toggle, transferID)

		out := make([]byte, 0, len(chunk)+1)
		out = append(out, chunk...)
		out = append(out, byte(tail))
		frames = append(frames, OutFrame{XID: xid, Payload: out})

		toggle = !toggle
	}
	return frames, nil
}
