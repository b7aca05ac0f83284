// Package transport implements the segmented Cyphal/CAN frame engine: the
// segmentation engine that turns an application payload into an ordered
// train of emit-ready CAN-FD frames, the reassembly engine that turns an
// inbound frame stream back into payloads, and the RX FIFO/demultiplexer
// that higher layers drain from.
package transport

import (
	"github.com/digitalservo/cands-go/pkg/cyphal"
)

// DefaultMTU is the CAN-FD payload size this transport segments against.
const DefaultMTU = 64

// OutFrame is a single emit-ready CAN-FD frame produced by the segmentation
// engine: an extended id and a payload, already carrying its trailing tail
// byte (and, at the end of a multi-frame transfer, the two CRC bytes just
// before the tail).
type OutFrame struct {
	XID     cyphal.XID
	Payload []byte
}

// RawFrame is a single inbound CAN-FD frame as delivered by the transceiver,
// decoded only as far as separating the XID from the payload bytes — the
// reassembly engine does the rest.
type RawFrame struct {
	XID     cyphal.XID
	Payload []byte
}

// Props mirrors the header properties carried by a completed RxFrame,
// captured from the frame(s) that produced it.
type Props struct {
	PortID       uint16
	SourceNodeID uint8
	DestNodeID   uint8
	Kind         cyphal.Kind
	TransferID   uint8
	Priority     cyphal.Priority
}

// RxFrame is a completed, reassembled application payload together with the
// header properties of the transfer that produced it.
type RxFrame struct {
	XID     cyphal.XID
	Payload []byte
	Props   Props
}
