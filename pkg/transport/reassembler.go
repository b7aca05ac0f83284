package transport

import (
	"github.com/digitalservo/cands-go/internal/crc"
	"github.com/digitalservo/cands-go/pkg/cyphal"
	"github.com/sirupsen/logrus"
)

// Key identifies one in-flight transfer. The transfer-id is not part of the
// key: a Start frame for a key already in progress silently supersedes
// whatever was partially assembled, whatever transfer-id either carries.
//
// SourceNodeID is carried in the key even though it is already folded into
// XID (bits 0-6), so two sources can never collide on the same Key by
// construction; it is kept explicit here so the field exists for any future
// relaxation of how XID is computed, rather than relying on bit position.
type Key struct {
	XID          cyphal.XID
	PortID       uint16
	SourceNodeID uint8
}

type partial struct {
	payload    []byte
	toggle     bool
	transferID uint8
	props      Props
	xid        cyphal.XID
}

// Reassembler implements the multi-frame reassembly state machine. It is
// not safe for concurrent use; callers serialize access to Ingest, which
// matches how a single transceiver RX path feeds it.
type Reassembler struct {
	log      *logrus.Entry
	inflight map[Key]*partial
}

// NewReassembler creates an empty Reassembler.
func NewReassembler(log *logrus.Entry) *Reassembler {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Reassembler{
		log:      log.WithField("component", "reassembler"),
		inflight: make(map[Key]*partial),
	}
}

func keyFor(xid cyphal.XID) (Key, cyphal.FrameID) {
	fid := cyphal.Decode(xid)
	return Key{XID: xid, PortID: fid.PortID, SourceNodeID: fid.SourceNodeID}, fid
}

func propsFrom(fid cyphal.FrameID, transferID uint8) Props {
	return Props{
		PortID:       fid.PortID,
		SourceNodeID: fid.SourceNodeID,
		DestNodeID:   fid.DestNodeID,
		Kind:         fid.Kind,
		TransferID:   transferID,
		Priority:     fid.Priority,
	}
}

// Ingest folds one inbound frame into the reassembly state. It returns a
// completed RxFrame when this frame finished a transfer, and a non-nil error
// when this frame finished (ErrCRCMismatch) or aborted (ErrToggleMismatch) a
// transfer without producing one. Both a nil frame and a nil error mean the
// frame was consumed into an in-progress transfer with nothing to report
// yet.
func (r *Reassembler) Ingest(raw RawFrame) (*RxFrame, error) {
	if len(raw.Payload) == 0 {
		return nil, ErrEmptyFrame
	}

	body := raw.Payload[:len(raw.Payload)-1]
	tail := cyphal.TailByte(raw.Payload[len(raw.Payload)-1])
	_, end, toggle, transferID := cyphal.DecodeTail(tail)
	key, fid := keyFor(raw.XID)

	switch cyphal.ClassifyTail(tail) {
	case cyphal.SingleFrame:
		delete(r.inflight, key)
		return &RxFrame{
			XID:     raw.XID,
			Payload: append([]byte{}, body...),
			Props:   propsFrom(fid, transferID),
		}, nil

	case cyphal.MultiFrameStart:
		r.inflight[key] = &partial{
			payload:    append([]byte{}, body...),
			toggle:     toggle,
			transferID: transferID,
			props:      propsFrom(fid, transferID),
			xid:        raw.XID,
		}
		return nil, nil

	case cyphal.MultiFrameInProcess, cyphal.MultiFrameEnd:
		p, ok := r.inflight[key]
		if !ok {
			// No Start frame seen for this key; nothing to continue.
			return nil, nil
		}
		if toggle == p.toggle {
			delete(r.inflight, key)
			return nil, ErrToggleMismatch
		}
		p.toggle = toggle
		p.payload = append(p.payload, body...)

		if !end {
			return nil, nil
		}

		delete(r.inflight, key)
		if len(p.payload) < 2 {
			return nil, ErrCRCMismatch
		}
		payload := p.payload[:len(p.payload)-2]
		wantCRC := p.payload[len(p.payload)-2:]
		got := crc.Compute(payload).Bytes()
		if got[0] != wantCRC[0] || got[1] != wantCRC[1] {
			return nil, ErrCRCMismatch
		}
		return &RxFrame{
			XID:     p.xid,
			Payload: append([]byte{}, payload...),
			Props:   p.props,
		}, nil
	}

	return nil, nil
}

// Clear discards every in-progress transfer.
func (r *Reassembler) Clear() {
	r.inflight = make(map[Key]*partial)
}

// Pending reports how many transfers are currently in progress.
func (r *Reassembler) Pending() int {
	return len(r.inflight)
}
