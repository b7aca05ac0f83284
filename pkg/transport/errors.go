package transport

import "errors"

// ErrPayloadTooLarge is returned by the segmentation engine when a payload
// exceeds MaxTransferPayloadBytes.
var ErrPayloadTooLarge = errors.New("transport: payload too large for a single transfer")

// ErrCRCMismatch is surfaced by the reassembly engine when a completed
// multi-frame transfer's trailing CRC does not match the payload it guards.
// The transfer is discarded; it is never placed on the complete FIFO.
var ErrCRCMismatch = errors.New("transport: crc mismatch on multi-frame transfer")

// ErrMTUTooSmall is returned by the segmentation engine when the configured
// MTU cannot hold at least one payload byte in addition to the tail byte.
var ErrMTUTooSmall = errors.New("transport: mtu too small to carry data and a tail byte")

// ErrToggleMismatch is surfaced by the reassembly engine when an in-process
// frame's toggle bit does not alternate from the previous frame of the same
// transfer. The partial transfer is abandoned.
var ErrToggleMismatch = errors.New("transport: toggle bit mismatch, transfer abandoned")

// ErrEmptyFrame is returned when an inbound frame has no payload at all, so
// it cannot even carry a tail byte.
var ErrEmptyFrame = errors.New("transport: frame has no tail byte")
